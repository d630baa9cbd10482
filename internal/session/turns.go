package session

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/phonebridge/internal/observe"
	"github.com/MrWong99/phonebridge/internal/transcript"
	"github.com/MrWong99/phonebridge/internal/turn"
	"github.com/MrWong99/phonebridge/pkg/audio"
	"github.com/MrWong99/phonebridge/pkg/provider/s2s"
	"github.com/MrWong99/phonebridge/pkg/provider/stt"
)

// onSilence handles a silence timer expiry. Enough pending audio becomes a
// caller turn: with a ready engine the turn is committed (plus a response
// request when the single-flight slot is free) before it is materialised.
// Bursts below the minimum stay pending, and so does audio whose commit
// failed; the next frame re-arms the timer and retries.
func (s *Session) onSilence(gen uint64) {
	if !s.deb.Expired(gen) || s.state == StateNew || s.state >= StateEnding {
		return
	}
	c, ok := s.seg.SilenceElapsed()
	if !ok {
		return
	}

	sent, err := s.commitTurn(c)
	if err != nil {
		s.seg.Aborted()
		s.engineLost(err)
		return
	}

	c, _ = s.seg.Committed()
	if c.Respond && !sent {
		s.seg.Release()
	}
	s.materialise(c)
}

// commitTurn sends the commit and, when c holds the single-flight slot, the
// response request. sent reports whether a response was requested.
func (s *Session) commitTurn(c turn.Commit) (sent bool, err error) {
	if s.engState != engineReady || s.cfg.Engine.ServerVAD {
		return false, nil
	}
	if err := s.engineDo(func(ctx context.Context) error {
		return s.engine.Commit(ctx)
	}); err != nil {
		return false, err
	}
	if !c.Respond {
		s.log.Debug("response deferred until current response completes", "ordinal", c.Ordinal)
		return false, nil
	}
	if err := s.requestResponse(s2s.ResponseRequest{}); err != nil {
		return false, err
	}
	return true, nil
}

// materialise records a committed caller turn and dispatches its
// transcription when the mode uses per-turn text.
func (s *Session) materialise(c turn.Commit) {
	ct := &callerTurn{
		ordinal: c.Ordinal,
		span:    c.Span,
		at:      s.clk.Now(),
		done:    make(chan struct{}),
	}
	s.callers = append(s.callers, ct)
	s.deps.Metrics.CallerTurns.Add(s.base, 1)
	s.log.Debug("caller turn", "ordinal", c.Ordinal, "start", c.Span.Start, "end", c.Span.End)

	if s.deps.Transcriber == nil || !s.cfg.Mode.Live() {
		close(ct.done)
		return
	}
	go s.transcribeTurn(ct, s.inbound[c.Span.Start:c.Span.End:c.Span.End])
}

// transcribeTurn runs on its own goroutine. It completes ct and then tells
// the loop about it. The request is detached from the call so it survives the
// end of the call; the end-of-call pipeline bounds how long it is awaited.
func (s *Session) transcribeTurn(ct *callerTurn, mulaw []byte) {
	defer s.post(evTranscribed{turn: ct})
	defer close(ct.done)

	ctx, span := observe.StartSpan(s.base, "call.transcribe_turn",
		trace.WithAttributes(attribute.Int("phonebridge.turn", ct.ordinal)))
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, s.cfg.FinalizeTimeout)
	defer cancel()

	if lim := s.deps.Limiter; lim != nil {
		if err := lim.Acquire(ctx, 1); err != nil {
			ct.err = err
			return
		}
		defer lim.Release(1)
	}

	start := s.clk.Now()
	res, err := s.deps.Transcriber.Transcribe(ctx, stt.Audio{
		Samples:    audio.MuLawToPCM16(mulaw),
		SampleRate: s.cfg.SampleRate,
		Language:   s.cfg.Language,
	})
	s.deps.Metrics.RecordTranscription(ctx, "turn", s.clk.Since(start))
	if err != nil {
		s.deps.Metrics.RecordProviderError(ctx, "stt", "turn")
		ct.err = err
		return
	}
	ct.text = transcript.Normalize(res, s.cfg.Filter, s.cfg.Cleaner)
}
