package transcript

import (
	"strings"
	"time"
)

// Turn is the assembler's view of one resolved turn.
type Turn struct {
	Speaker Speaker
	Ordinal int

	// Text is the agent's streamed text or the caller turn's own
	// transcription. Empty when nothing was resolved.
	Text string

	// Bytes is the caller audio attributed to the turn. Zero for agent turns.
	Bytes int

	At time.Time
}

// Assembler builds final transcripts. Its sequence counter is the tie-breaker
// for entries sharing an ordinal and position; keep one Assembler per call.
// An Assembler is not safe for concurrent use.
type Assembler struct {
	seq uint64
}

func (a *Assembler) entry(sp Speaker, ordinal, position int, text string, at time.Time) Entry {
	a.seq++
	return Entry{
		Speaker:   sp,
		Text:      text,
		Ordinal:   ordinal,
		Position:  position,
		Seq:       a.seq,
		Timestamp: at,
	}
}

// Live builds the transcript from per-turn texts only. Turns without text are
// skipped.
func (a *Assembler) Live(turns []Turn) []Entry {
	var out []Entry
	for _, t := range turns {
		if strings.TrimSpace(t.Text) == "" {
			continue
		}
		out = append(out, a.entry(t.Speaker, t.Ordinal, 0, t.Text, t.At))
	}
	Sort(out)
	return out
}

// Reconcile builds the transcript from agent turn texts and one full-call
// caller transcription. The batch text is split into sentences and spread
// over the caller turns in proportion to their audio bytes, or evenly when no
// byte counts were recorded. Caller turns assigned no sentence produce no
// entry. Batch text with no caller turn to hold it becomes one trailing
// caller entry.
func (a *Assembler) Reconcile(turns []Turn, batch string) []Entry {
	var (
		out     []Entry
		callers []Turn
		last    int
	)
	for _, t := range turns {
		last = max(last, t.Ordinal)
		if t.Speaker == SpeakerCaller {
			callers = append(callers, t)
			continue
		}
		if strings.TrimSpace(t.Text) != "" {
			out = append(out, a.entry(t.Speaker, t.Ordinal, 0, t.Text, t.At))
		}
	}

	sentences := SplitSentences(batch)
	switch {
	case len(sentences) == 0:
	case len(callers) == 0:
		out = append(out, a.entry(SpeakerCaller, last+1, 0, strings.Join(sentences, " "), time.Time{}))
	default:
		weights := make([]int, len(callers))
		for i, c := range callers {
			weights[i] = c.Bytes
		}
		buckets := Distribute(sentences, Allocate(len(sentences), weights))
		pos := 0
		for i, c := range callers {
			if len(buckets[i]) > 0 {
				out = append(out, a.entry(SpeakerCaller, c.Ordinal, pos, strings.Join(buckets[i], " "), c.At))
			}
			pos += len(buckets[i])
		}
	}
	Sort(out)
	return out
}
