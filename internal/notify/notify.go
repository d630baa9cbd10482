// Package notify delivers call progress and results to humans.
//
// A [Sink] receives plain-text [Message]s: live "Agent: ..." and "Caller: ..."
// lines while a call runs, then the final transcript and an optional summary
// once it ends. Sinks are fire-and-forget from the call's point of view; a
// failing sink is logged by the caller and never affects the audio relay.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Kind classifies a notification.
type Kind string

const (
	// KindLive is one flushed chunk of live turn text.
	KindLive Kind = "live"

	// KindTranscript is the final assembled transcript.
	KindTranscript Kind = "transcript"

	// KindSummary is the natural-language summary of the call.
	KindSummary Kind = "summary"

	// KindNotice is an operational notice such as a timeout placeholder.
	KindNotice Kind = "notice"
)

// Message is one notification.
type Message struct {
	CallID string
	Kind   Kind
	Text   string
}

// Sink delivers notifications. Implementations must be safe for concurrent
// use.
type Sink interface {
	Notify(ctx context.Context, msg Message) error
}

// Multi fans a message out to every sink concurrently and joins their errors.
type Multi []Sink

// Notify implements [Sink].
func (m Multi) Notify(ctx context.Context, msg Message) error {
	if len(m) == 0 {
		return nil
	}
	errs := make([]error, len(m))
	var wg sync.WaitGroup
	for i, s := range m {
		wg.Go(func() {
			errs[i] = s.Notify(ctx, msg)
		})
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Log writes notifications to a structured logger.
type Log struct {
	Logger *slog.Logger
}

// Notify implements [Sink].
func (l Log) Notify(ctx context.Context, msg Message) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "call notification", "call_id", msg.CallID, "kind", string(msg.Kind), "text", msg.Text)
	return nil
}

// Discard drops every message.
type Discard struct{}

// Notify implements [Sink].
func (Discard) Notify(context.Context, Message) error { return nil }

// Format renders msg as a single text block with a header naming the call.
func Format(msg Message) string {
	switch msg.Kind {
	case KindTranscript:
		return fmt.Sprintf("Transcript for call %s:\n%s", msg.CallID, msg.Text)
	case KindSummary:
		return fmt.Sprintf("[%s] Summary: %s", msg.CallID, msg.Text)
	default:
		return fmt.Sprintf("[%s] %s", msg.CallID, msg.Text)
	}
}

// chunk splits s into pieces of at most limit bytes, preferring line breaks.
func chunk(s string, limit int) []string {
	if limit <= 0 || len(s) <= limit {
		return []string{s}
	}
	var out []string
	for len(s) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if s[i-1] == '\n' {
				cut = i
				break
			}
		}
		// Avoid splitting a multi-byte rune.
		for cut > 0 && cut < len(s) && s[cut]&0xC0 == 0x80 {
			cut--
		}
		out = append(out, s[:cut])
		s = s[cut:]
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}
