package transcript_test

import (
	"testing"

	"github.com/MrWong99/phonebridge/internal/transcript"
	"github.com/MrWong99/phonebridge/pkg/provider/stt"
)

func TestFilter_Keep(t *testing.T) {
	t.Parallel()

	f := transcript.DefaultFilter()
	tests := []struct {
		name string
		seg  stt.Segment
		want bool
	}{
		{"good", stt.Segment{Text: "I need to reschedule", Start: 0, End: 1.5, AvgLogprob: -0.3, NoSpeechProb: 0.1}, true},
		{"empty", stt.Segment{Text: "  ", Start: 0, End: 2}, false},
		{"no speech", stt.Segment{Text: "hello", Start: 0, End: 1, NoSpeechProb: 0.9}, false},
		{"no speech at threshold kept", stt.Segment{Text: "hello", Start: 0, End: 1, NoSpeechProb: 0.6}, true},
		{"low confidence", stt.Segment{Text: "hmm what", Start: 0, End: 1, AvgLogprob: -1.2}, false},
		{"short single word", stt.Segment{Text: "uh", Start: 1, End: 1.3}, false},
		{"short two words kept", stt.Segment{Text: "yes please", Start: 1, End: 1.3}, true},
		{"long single word kept", stt.Segment{Text: "Tuesday", Start: 1, End: 1.6}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.Keep(tt.seg); got != tt.want {
				t.Errorf("Keep(%+v) = %v, want %v", tt.seg, got, tt.want)
			}
		})
	}
}

func TestNormalize_DropsNoSpeechSegment(t *testing.T) {
	t.Parallel()

	res := stt.Result{
		Text: "Hello. Thank you for watching. I'd like to book.",
		Segments: []stt.Segment{
			{Text: "Hello.", Start: 0, End: 0.8, AvgLogprob: -0.2, NoSpeechProb: 0.05},
			{Text: "Bzzt static.", Start: 0.8, End: 2.0, AvgLogprob: -0.4, NoSpeechProb: 0.9},
			{Text: "I'd like to book.", Start: 2.0, End: 3.2, AvgLogprob: -0.3, NoSpeechProb: 0.02},
		},
	}
	got := transcript.Normalize(res, transcript.DefaultFilter(), transcript.NewCleaner())
	want := "Hello. I'd like to book."
	if got != want {
		t.Errorf("Normalize = %q, want %q", got, want)
	}
}

func TestNormalize_PlainText(t *testing.T) {
	t.Parallel()

	res := stt.Result{Text: "  yes  yes I can  "}
	if got := transcript.Normalize(res, transcript.DefaultFilter(), transcript.NewCleaner()); got != "yes I can" {
		t.Errorf("Normalize = %q, want %q", got, "yes I can")
	}
	if got := transcript.Normalize(res, transcript.DefaultFilter(), nil); got != "yes yes I can" {
		t.Errorf("Normalize without cleaner = %q, want %q", got, "yes yes I can")
	}
}
