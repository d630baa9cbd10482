package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrWong99/phonebridge/internal/transcript"
	"github.com/MrWong99/phonebridge/pkg/provider/s2s"
)

// errEngineStream is reported when an engine's event stream ends without an
// error of its own.
var errEngineStream = errors.New("session: engine event stream ended")

// dial connects to the engine in the background and posts the outcome.
func (s *Session) dial() {
	s.engState = engineConnecting
	go func() {
		h, err := dialEngine(s.engineCtx, s.clk, s.deps.Engine, s.cfg.Engine, s.cfg.Connect, s.log)
		if !s.post(evConnected{handle: h, err: err}) && h != nil {
			_ = h.Close()
		}
	}()
}

func (s *Session) onConnected(h s2s.SessionHandle, err error) {
	if s.state >= StateEnding {
		if h != nil {
			_ = h.Close()
		}
		return
	}
	if s.state == StateStarting {
		s.state = StateActive
	}
	if err != nil {
		s.engState = engineFailed
		s.deps.Metrics.RecordProviderError(s.base, "s2s", "connect")
		s.log.Warn("engine unavailable, continuing audio-only", "err", err)
		return
	}

	s.engine = h
	s.engState = engineReady
	go s.readEngine(h)
	s.log.Info("engine connected", "reconnects", s.reconnects)

	// Audio that arrived while dialing and is not yet part of a turn.
	if pending := s.inbound[s.seg.Total()-s.seg.Pending():]; len(pending) > 0 {
		if err := s.engineDo(func(ctx context.Context) error {
			return h.AppendAudio(ctx, pending)
		}); err != nil {
			s.engineLost(err)
			return
		}
	}

	if !s.opened {
		s.opened = true
		s.openingLine()
	}
}

// openingLine requests the scripted first agent turn.
func (s *Session) openingLine() {
	if s.prompt == "" || !s.seg.Acquire() {
		return
	}
	instructions := strings.ReplaceAll(s.cfg.OpeningTemplate, "{prompt}", s.prompt)
	if !strings.Contains(s.cfg.OpeningTemplate, "{prompt}") {
		instructions = strings.TrimSpace(s.cfg.OpeningTemplate + " " + s.prompt)
	}
	if err := s.requestResponse(s2s.ResponseRequest{Instructions: instructions}); err != nil {
		s.seg.Release()
		s.engineLost(err)
	}
}

// readEngine forwards h's events to the loop until the stream ends.
func (s *Session) readEngine(h s2s.SessionHandle) {
	for e := range h.Events() {
		if !s.post(evEngine{handle: h, event: e}) {
			return
		}
	}
	err := h.Err()
	if err == nil {
		err = errEngineStream
	}
	s.post(evEngineClosed{handle: h, err: err})
}

// engineDo runs one engine command under the write timeout.
func (s *Session) engineDo(fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(s.base, s.cfg.EngineWriteTimeout)
	defer cancel()
	return fn(ctx)
}

func (s *Session) requestResponse(req s2s.ResponseRequest) error {
	err := s.engineDo(func(ctx context.Context) error {
		return s.engine.CreateResponse(ctx, req)
	})
	if err == nil {
		s.requestAt = s.clk.Now()
	}
	return err
}

// canRespond reports whether the session itself asks the engine for
// responses.
func (s *Session) canRespond() bool {
	return s.engState == engineReady && !s.cfg.Engine.ServerVAD && s.state < StateEnding
}

func (s *Session) onEngineEvent(e s2s.Event) {
	switch e.Type {
	case s2s.EventResponseStarted:
		ord, prev, hadPrev := s.seg.ResponseStarted()
		if hadPrev {
			s.closeAgentTurn(prev)
		}
		s.agentAt = s.clk.Now()
		s.live.Reset()
		s.log.Debug("agent turn opened", "ordinal", ord, "response_id", e.ResponseID)

	case s2s.EventAudioDelta:
		if e.Audio != "" {
			s.send(e.Audio)
		}

	case s2s.EventTextDelta:
		if _, open := s.seg.AgentOpen(); !open {
			return
		}
		if chunk := s.live.Append(e.Text); chunk != "" {
			s.notifyLive(transcript.SpeakerAgent, chunk)
		}

	case s2s.EventResponseDone:
		s.responseFinished(e.Status)

	case s2s.EventError:
		s.deps.Metrics.RecordProviderError(s.base, "s2s", "event")
		s.log.Warn("engine error", "err", e.Err)
		if _, open := s.seg.AgentOpen(); open || s.seg.InFlight() {
			s.responseFinished("failed")
		}
	}
}

// responseFinished closes the agent turn and, when a caller turn was
// committed meanwhile, sends its deferred response request.
func (s *Session) responseFinished(status string) {
	if status == "" {
		status = "completed"
	}
	if !s.requestAt.IsZero() {
		s.deps.Metrics.ResponseDuration.Record(s.base, s.clk.Since(s.requestAt).Seconds())
		s.requestAt = time.Time{}
	}
	s.deps.Metrics.RecordAgentResponse(s.base, status)

	closed, hadOpen, respond := s.seg.ResponseDone()
	if hadOpen {
		s.closeAgentTurn(closed)
	}
	if !respond {
		return
	}
	if !s.canRespond() {
		s.seg.Release()
		return
	}
	if err := s.requestResponse(s2s.ResponseRequest{}); err != nil {
		s.seg.Release()
		s.engineLost(err)
	}
}

// closeAgentTurn flushes the live buffer and records the agent turn.
func (s *Session) closeAgentTurn(ordinal int) {
	if chunk := s.live.Flush(); chunk != "" {
		s.notifyLive(transcript.SpeakerAgent, chunk)
	}
	s.agents = append(s.agents, transcript.Turn{
		Speaker: transcript.SpeakerAgent,
		Ordinal: ordinal,
		Text:    s.live.Text(),
		At:      s.agentAt,
	})
	s.live.Reset()
}

// engineLost drops the current engine connection after a failure. The open
// agent turn is closed and the single-flight slot cleared; the session
// re-dials while reconnects remain, and otherwise continues audio-only.
func (s *Session) engineLost(err error) {
	if s.engine == nil {
		return
	}
	s.log.Warn("engine connection lost", "err", err)
	s.deps.Metrics.RecordProviderError(s.base, "s2s", "connection")
	_ = s.engine.Close()
	s.engine = nil
	s.engState = engineFailed

	if _, open := s.seg.AgentOpen(); open || s.seg.InFlight() {
		closed, hadOpen, respond := s.seg.ResponseDone()
		if hadOpen {
			s.closeAgentTurn(closed)
		}
		if respond {
			s.seg.Release()
		}
	}

	if s.state >= StateEnding || s.reconnects >= s.cfg.Connect.MaxReconnects {
		return
	}
	s.reconnects++
	s.dial()
}

// closeEngine releases the engine at the end of the call.
func (s *Session) closeEngine() {
	s.engineCancel()
	if s.engine != nil {
		if err := s.engine.Close(); err != nil {
			s.log.Debug("engine close", "err", err)
		}
		s.engine = nil
	}
	if s.engState != engineFailed {
		s.engState = engineNone
	}
}
