package session

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/phonebridge/internal/notify"
	"github.com/MrWong99/phonebridge/internal/observe"
	"github.com/MrWong99/phonebridge/internal/store"
	"github.com/MrWong99/phonebridge/internal/transcript"
	"github.com/MrWong99/phonebridge/pkg/audio"
	"github.com/MrWong99/phonebridge/pkg/provider/stt"
)

// Notices emitted in place of a transcript that could not be produced.
const (
	NoticeUnavailable = "transcript unavailable"
	NoticeTimeout     = "transcript unavailable (timeout)"
)

// attrStatus is the call span attribute carrying the final record status.
const attrStatus = attribute.Key("phonebridge.call_status")

// onEnd stops the call and runs the end-of-call pipeline on the loop
// goroutine. Later calls are no-ops.
func (s *Session) onEnd() {
	switch s.state {
	case StateEnding, StateClosed:
		return
	case StateNew:
		s.log.Debug("call ended before start")
		s.engineCancel()
		s.span.SetAttributes(attrStatus.String("not_started"))
		s.span.End()
		s.state = StateClosed
		close(s.notifyQ)
		<-s.notifyDone
		return
	}

	s.state = StateEnding
	s.publish()
	s.deb.Stop()

	final := s.seg.Finalize()
	if final.HasAgent {
		s.closeAgentTurn(final.Agent)
	}
	s.closeEngine()
	if final.HasCaller {
		s.materialise(final.Caller)
	}
	s.log.Info("call ended",
		"caller_bytes", len(s.inbound),
		"caller_seconds", audio.MuLawDuration(len(s.inbound), s.cfg.SampleRate),
		"caller_turns", len(s.callers),
		"agent_turns", len(s.agents),
	)

	rec := s.finalize()

	s.mu.Lock()
	s.record = &rec
	s.mu.Unlock()

	close(s.notifyQ)
	<-s.notifyDone
	s.deps.Metrics.ActiveCalls.Add(s.base, -1)
	s.span.SetAttributes(attrStatus.String(string(rec.Status)))
	s.span.End()
	s.state = StateClosed
}

// finalize resolves caller text, assembles the transcript, emits it with the
// optional summary and persists the record.
func (s *Session) finalize() store.Record {
	start := s.clk.Now()
	ctx, span := observe.StartSpan(s.base, "call.finalize")
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, s.cfg.FinalizeTimeout)
	defer cancel()

	turns, turnStatus := s.resolveTurns(ctx)

	var (
		asm     transcript.Assembler
		entries []transcript.Entry
		status  = turnStatus
	)
	switch batch, err := s.transcribeCall(ctx); {
	case err == nil && batch.ok:
		entries = asm.Reconcile(turns, batch.text)
		status = store.StatusComplete
	case err != nil:
		s.log.Warn("full-call transcription failed, using per-turn text", "err", err)
		status = store.StatusUnavailable
		if isTimeout(err) {
			status = store.StatusTimeout
		}
		entries = asm.Live(turns)
	default:
		entries = asm.Live(turns)
	}

	switch status {
	case store.StatusTimeout:
		s.notifyFinal(notify.KindNotice, NoticeTimeout)
	case store.StatusUnavailable:
		s.notifyFinal(notify.KindNotice, NoticeUnavailable)
	}
	if len(entries) > 0 {
		s.notifyFinal(notify.KindTranscript, transcript.Format(entries))
	}

	rec := store.Record{
		CallID:      s.id,
		StreamID:    s.streamID,
		Mode:        s.cfg.Mode,
		Status:      status,
		StartedAt:   s.startedAt,
		EndedAt:     s.clk.Now(),
		CallerBytes: len(s.inbound),
		Entries:     entries,
	}
	rec.Summary = s.summarise(ctx, entries)
	if rec.Summary != "" {
		s.notifyFinal(notify.KindSummary, rec.Summary)
	}

	if s.deps.Store != nil {
		if err := s.deps.Store.Save(ctx, rec); err != nil {
			s.log.Error("failed to persist call record", "err", err)
		}
	}
	s.deps.Metrics.RecordFinalized(s.base, string(status), s.clk.Since(start))
	s.log.Info("call finalized", "status", string(status), "entries", len(entries), "duration", s.clk.Since(start))
	return rec
}

// resolveTurns waits up to TurnTimeout for outstanding per-turn
// transcriptions and returns every turn in ordinal order. Turns still pending
// at the deadline keep empty text; status reports whether that happened or a
// transcription failed.
func (s *Session) resolveTurns(ctx context.Context) ([]transcript.Turn, store.Status) {
	status := store.StatusComplete
	if s.deps.Transcriber == nil && len(s.inbound) > 0 {
		status = store.StatusUnavailable
	}

	timer := s.clk.Timer(s.cfg.TurnTimeout)
	defer timer.Stop()
	expired := false

	turns := make([]transcript.Turn, 0, len(s.callers)+len(s.agents))
	turns = append(turns, s.agents...)
	for _, ct := range s.callers {
		t := transcript.Turn{
			Speaker: transcript.SpeakerCaller,
			Ordinal: ct.ordinal,
			Bytes:   ct.span.Len(),
			At:      ct.at,
		}
		if !expired {
			select {
			case <-ct.done:
			case <-timer.C:
				expired = true
			case <-ctx.Done():
				expired = true
			}
		}
		select {
		case <-ct.done:
			if ct.err == nil {
				t.Text = ct.text
			} else if status == store.StatusComplete {
				status = store.StatusUnavailable
			}
		default:
			status = store.StatusTimeout
		}
		turns = append(turns, t)
	}
	if expired {
		s.log.Warn("per-turn transcriptions timed out", "timeout", s.cfg.TurnTimeout)
	}
	return turns, status
}

type batchResult struct {
	text string
	ok   bool
}

// transcribeCall runs the full-call transcription. ok is false when the mode
// does not use it or there is nothing to transcribe.
func (s *Session) transcribeCall(ctx context.Context) (batchResult, error) {
	if !s.cfg.Mode.PostCall() || s.deps.Transcriber == nil || len(s.inbound) == 0 {
		return batchResult{}, nil
	}
	start := s.clk.Now()
	res, err := s.deps.Transcriber.Transcribe(ctx, stt.Audio{
		Samples:    audio.MuLawToPCM16(s.inbound),
		SampleRate: s.cfg.SampleRate,
		Language:   s.cfg.Language,
	})
	s.deps.Metrics.RecordTranscription(s.base, "call", s.clk.Since(start))
	if err != nil {
		s.deps.Metrics.RecordProviderError(s.base, "stt", "call")
		return batchResult{}, err
	}
	return batchResult{text: transcript.Normalize(res, s.cfg.Filter, s.cfg.Cleaner), ok: true}, nil
}

func (s *Session) summarise(ctx context.Context, entries []transcript.Entry) string {
	if s.deps.Summariser == nil || len(entries) == 0 {
		return ""
	}
	start := s.clk.Now()
	summary, err := s.deps.Summariser.Summarise(ctx, entries)
	s.deps.Metrics.SummaryDuration.Record(s.base, s.clk.Since(start).Seconds())
	if err != nil {
		s.deps.Metrics.RecordProviderError(s.base, "llm", "summary")
		s.log.Warn("call summary failed", "err", err)
		return ""
	}
	return summary
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
