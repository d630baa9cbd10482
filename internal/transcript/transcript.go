// Package transcript turns the text produced during a call into one ordered,
// speaker-labelled transcript.
//
// Three sources feed it, none of which arrive in a reliable order: agent text
// deltas streamed by the conversational engine, per-turn batch transcriptions
// of caller audio, and one full-call batch transcription run at hang-up.
// Ordering is therefore never derived from completion time. Every [Entry]
// carries its turn ordinal, its position within that turn and a sequence
// number assigned at creation, and [Sort] orders by exactly those keys.
//
// The package is pure: it performs no I/O and holds no goroutines. The
// session layer decides when to call it.
package transcript

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Speaker identifies who produced a line of the transcript.
type Speaker string

const (
	SpeakerCaller Speaker = "caller"
	SpeakerAgent  Speaker = "agent"
)

// Label returns the display prefix used in notifications ("Caller", "Agent").
func (s Speaker) Label() string {
	switch s {
	case SpeakerAgent:
		return "Agent"
	case SpeakerCaller:
		return "Caller"
	default:
		return string(s)
	}
}

// Mode selects which text sources feed the transcript.
type Mode string

const (
	// ModeLive emits agent sentences and per-turn caller transcriptions while
	// the call is running and builds the final transcript from them.
	ModeLive Mode = "live"

	// ModePostCall emits nothing during the call and builds the transcript from
	// one full-call transcription distributed over the caller turns.
	ModePostCall Mode = "post_call"

	// ModeHybrid emits live notifications but the post-call reconciliation is
	// authoritative for the final transcript.
	ModeHybrid Mode = "hybrid"
)

// ParseMode converts a configuration string to a Mode. The empty string maps
// to ModeHybrid.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeHybrid:
		return ModeHybrid, nil
	case ModeLive:
		return ModeLive, nil
	case ModePostCall:
		return ModePostCall, nil
	default:
		return "", fmt.Errorf("transcript: unknown mode %q", s)
	}
}

// Live reports whether per-turn notifications are emitted during the call.
func (m Mode) Live() bool { return m == ModeLive || m == ModeHybrid }

// PostCall reports whether a full-call transcription runs at hang-up.
func (m Mode) PostCall() bool { return m == ModePostCall || m == ModeHybrid }

// Entry is one immutable line of the final transcript.
type Entry struct {
	Speaker Speaker
	Text    string

	// Ordinal is the turn's position in the call.
	Ordinal int

	// Position orders entries within the same turn. For reconciled caller
	// turns it is the index of the first sentence in the full-call
	// transcription.
	Position int

	// Seq is assigned at creation and breaks remaining ties.
	Seq uint64

	// Timestamp is informational only and never used for ordering.
	Timestamp time.Time
}

// Line formats the entry as "Agent: …" or "Caller: …".
func (e Entry) Line() string {
	return e.Speaker.Label() + ": " + e.Text
}

// Sort orders entries by (Ordinal, Position, Seq) in place.
func Sort(entries []Entry) {
	slices.SortStableFunc(entries, func(a, b Entry) int {
		if a.Ordinal != b.Ordinal {
			return a.Ordinal - b.Ordinal
		}
		if a.Position != b.Position {
			return a.Position - b.Position
		}
		switch {
		case a.Seq < b.Seq:
			return -1
		case a.Seq > b.Seq:
			return 1
		}
		return 0
	})
}

// Format renders entries one line each, in order.
func Format(entries []Entry) string {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, e.Line())
	}
	return strings.Join(lines, "\n")
}
