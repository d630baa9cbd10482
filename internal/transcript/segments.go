package transcript

import (
	"strings"

	"github.com/MrWong99/phonebridge/pkg/provider/stt"
)

// Filter holds the thresholds used to discard noise segments from verbose
// transcription output.
type Filter struct {
	// NoSpeechThreshold drops segments whose no-speech probability exceeds it.
	NoSpeechThreshold float64

	// LogprobFloor drops segments whose average log-probability is below it.
	LogprobFloor float64

	// MinDuration in seconds. Shorter segments with at most one word are
	// dropped.
	MinDuration float64
}

// DefaultFilter returns the thresholds tuned for 8 kHz phone audio.
func DefaultFilter() Filter {
	return Filter{
		NoSpeechThreshold: 0.6,
		LogprobFloor:      -1.0,
		MinDuration:       0.45,
	}
}

// Keep reports whether seg is genuine speech under f.
func (f Filter) Keep(seg stt.Segment) bool {
	text := strings.TrimSpace(seg.Text)
	switch {
	case text == "":
		return false
	case seg.NoSpeechProb > f.NoSpeechThreshold:
		return false
	case seg.AvgLogprob < f.LogprobFloor:
		return false
	case seg.Duration() < f.MinDuration && len(strings.Fields(text)) <= 1:
		return false
	}
	return true
}

// FilterSegments returns the segments f keeps, in order.
func (f Filter) FilterSegments(segs []stt.Segment) []stt.Segment {
	var out []stt.Segment
	for _, s := range segs {
		if f.Keep(s) {
			out = append(out, s)
		}
	}
	return out
}

// Normalize reduces a transcription result to display text. Verbose results
// are filtered segment by segment; plain results use the text as is. The
// cleaner is applied in both cases.
func Normalize(res stt.Result, f Filter, c *Cleaner) string {
	text := res.Text
	if res.Segments != nil {
		kept := f.FilterSegments(res.Segments)
		parts := make([]string, 0, len(kept))
		for _, s := range kept {
			parts = append(parts, strings.TrimSpace(s.Text))
		}
		text = strings.Join(parts, " ")
	}
	if c == nil {
		return strings.Join(strings.Fields(text), " ")
	}
	return c.Clean(text)
}
