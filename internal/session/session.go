// Package session runs one phone call from the transport's start event to the
// final transcript.
//
// Each [Session] owns a single event-loop goroutine. Transport callbacks,
// engine events, silence timer expiries and transcription results are posted
// to that loop as messages; only the loop touches call state. Network work
// (engine connect, per-turn transcription, the end-of-call pipeline's
// providers) runs in helper goroutines that report back to the loop, or is
// awaited by the loop once the call has ended.
//
// Engine and transcription failures never stop the audio relay. Without an
// engine the call continues audio-only; without transcriptions the final
// transcript carries an "unavailable" notice instead.
package session

import (
	"context"
	"encoding/base64"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/MrWong99/phonebridge/internal/notify"
	"github.com/MrWong99/phonebridge/internal/observe"
	"github.com/MrWong99/phonebridge/internal/store"
	"github.com/MrWong99/phonebridge/internal/transcript"
	"github.com/MrWong99/phonebridge/internal/turn"
	"github.com/MrWong99/phonebridge/pkg/audio"
	"github.com/MrWong99/phonebridge/pkg/provider/s2s"
	"github.com/MrWong99/phonebridge/pkg/provider/stt"
)

// Defaults applied by [Config] when a field is left zero.
const (
	DefaultMinTurnBytes       = 2000
	DefaultTurnTimeout        = 10 * time.Second
	DefaultFinalizeTimeout    = 60 * time.Second
	DefaultNotifyTimeout      = 10 * time.Second
	DefaultEngineWriteTimeout = 5 * time.Second

	// DefaultOpeningTemplate frames the opening prompt for the engine.
	// "{prompt}" is replaced with the prompt text.
	DefaultOpeningTemplate = "Open the call by saying the following to the person who answered, then continue the conversation naturally: {prompt}"

	eventQueueSize  = 256
	notifyQueueSize = 128
)

// Config tunes one call. The zero value is usable.
type Config struct {
	// Debounce is the caller silence that ends a turn.
	Debounce time.Duration

	// MinTurnBytes is the smallest amount of caller audio that becomes a turn
	// on its own. Shorter bursts are folded into the next turn. 2000 bytes is
	// 250ms of 8kHz mu-law.
	MinTurnBytes int

	// SampleRate of the inbound mu-law stream.
	SampleRate int

	// Language is an optional transcription hint.
	Language string

	Mode       transcript.Mode
	FlushChars int

	// TurnTimeout bounds how long the end-of-call pipeline waits for
	// outstanding per-turn transcriptions.
	TurnTimeout time.Duration

	// FinalizeTimeout bounds the whole end-of-call pipeline.
	FinalizeTimeout time.Duration

	// NotifyTimeout bounds a single notification delivery.
	NotifyTimeout time.Duration

	// EngineWriteTimeout bounds a single engine command.
	EngineWriteTimeout time.Duration

	Filter  transcript.Filter
	Cleaner *transcript.Cleaner

	// Engine is sent to the engine on connect.
	Engine s2s.SessionConfig

	// OpeningTemplate wraps the opening prompt. Empty selects
	// DefaultOpeningTemplate.
	OpeningTemplate string

	Connect ConnectPolicy
}

func (c Config) withDefaults() Config {
	if c.Debounce <= 0 {
		c.Debounce = turn.DefaultDebounce
	}
	if c.MinTurnBytes <= 0 {
		c.MinTurnBytes = DefaultMinTurnBytes
	}
	if c.SampleRate <= 0 {
		c.SampleRate = audio.TelephonyRate
	}
	if c.Mode == "" {
		c.Mode = transcript.ModeHybrid
	}
	if c.TurnTimeout <= 0 {
		c.TurnTimeout = DefaultTurnTimeout
	}
	if c.FinalizeTimeout <= 0 {
		c.FinalizeTimeout = DefaultFinalizeTimeout
	}
	if c.NotifyTimeout <= 0 {
		c.NotifyTimeout = DefaultNotifyTimeout
	}
	if c.EngineWriteTimeout <= 0 {
		c.EngineWriteTimeout = DefaultEngineWriteTimeout
	}
	if c.Filter == (transcript.Filter{}) {
		c.Filter = transcript.DefaultFilter()
	}
	if c.Cleaner == nil {
		c.Cleaner = transcript.NewCleaner()
	}
	if c.OpeningTemplate == "" {
		c.OpeningTemplate = DefaultOpeningTemplate
	}
	if c.Engine.AudioFormat == "" {
		c.Engine.AudioFormat = s2s.FormatG711ULaw
	}
	c.Connect = c.Connect.withDefaults()
	return c
}

// Output delivers agent audio back to the caller. payload is base64-encoded
// mu-law, ready for the transport's media message.
type Output interface {
	SendAudio(payload string) error
}

// Deps are the collaborators of a session. Every field except Output may be
// nil; the session degrades accordingly.
type Deps struct {
	// Engine is the conversational engine. Nil runs every call audio-only.
	Engine s2s.Provider

	// Transcriber produces per-turn and full-call caller text.
	Transcriber stt.Transcriber

	// Summariser produces the optional end-of-call summary.
	Summariser Summariser

	Notifier notify.Sink
	Store    store.Store
	Output   Output
	Clock    clock.Clock
	Metrics  *observe.Metrics

	// Limiter bounds concurrent per-turn transcriptions across all calls.
	Limiter *semaphore.Weighted

	// Logger receives call logs with call_id and the call span's trace_id
	// attached. Nil uses the default logger.
	Logger *slog.Logger
}

// Info is a point-in-time view of a session for the admin API.
type Info struct {
	CallID      string    `json:"call_id"`
	StreamID    string    `json:"stream_id,omitempty"`
	State       string    `json:"state"`
	Engine      string    `json:"engine"`
	Echo        bool      `json:"echo,omitempty"`
	StartedAt   time.Time `json:"started_at,omitzero"`
	CallerBytes int       `json:"caller_bytes"`
	CallerTurns int       `json:"caller_turns"`
	AgentTurns  int       `json:"agent_turns"`
	Responding  bool      `json:"responding"`
}

// Session is one call. All exported methods are safe for concurrent use.
type Session struct {
	id   string
	cfg  Config
	deps Deps
	log  *slog.Logger
	clk  clock.Clock

	// span covers the call from New until the end-of-call pipeline is done.
	span trace.Span

	// base outlives the call so helpers dispatched before the end can still
	// finish; engineCtx is cancelled at the end to abort pending dials.
	base         context.Context
	engineCtx    context.Context
	engineCancel context.CancelFunc

	events chan event
	done   chan struct{}

	notifyQ    chan notify.Message
	notifyDone chan struct{}

	mu       sync.Mutex
	info     Info
	pubState State
	record   *store.Record

	// Loop-owned state below.
	state      State
	streamID   string
	echo       bool
	prompt     string
	startedAt  time.Time
	seg        *turn.Segmenter
	deb        *turn.Debouncer
	inbound    []byte
	engine     s2s.SessionHandle
	engState   engineState
	opened     bool
	reconnects int
	live       *transcript.LiveBuffer
	agentAt    time.Time
	requestAt  time.Time
	callers    []*callerTurn
	agents     []transcript.Turn
}

// callerTurn is a materialised caller turn and its pending transcription.
// text and err are valid once done is closed.
type callerTurn struct {
	ordinal int
	span    turn.Span
	at      time.Time

	done chan struct{}
	text string
	err  error
}

// New creates a session for callID and starts its loop. Cancelling ctx ends
// the call as if OnEnd had been called; the end-of-call pipeline still runs
// on a context detached from ctx.
func New(ctx context.Context, callID string, cfg Config, deps Deps) *Session {
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Discard{}
	}
	if deps.Metrics == nil {
		deps.Metrics = observe.DefaultMetrics()
	}
	cfg = cfg.withDefaults()

	base, span := observe.StartCallSpan(context.WithoutCancel(ctx), callID)
	log := observe.CallLogger(base, deps.Logger, callID)
	engineCtx, engineCancel := context.WithCancel(base)
	s := &Session{
		id:           callID,
		cfg:          cfg,
		deps:         deps,
		log:          log,
		clk:          deps.Clock,
		span:         span,
		base:         base,
		engineCtx:    engineCtx,
		engineCancel: engineCancel,
		events:       make(chan event, eventQueueSize),
		done:         make(chan struct{}),
		notifyQ:      make(chan notify.Message, notifyQueueSize),
		notifyDone:   make(chan struct{}),
		seg:          turn.New(cfg.MinTurnBytes),
		live:         transcript.NewLiveBuffer(cfg.FlushChars),
		info:         Info{CallID: callID, State: StateNew.String(), Engine: engineNone.String()},
	}
	s.deb = turn.NewDebouncer(s.clk, cfg.Debounce, func(gen uint64) {
		s.post(evTimer{gen: gen})
	})

	go s.runNotifier()
	go s.run(ctx)
	return s
}

// ID returns the call id.
func (s *Session) ID() string { return s.id }

// StartOption customises OnStart.
type StartOption func(*evStart)

// WithEcho loops caller audio straight back instead of connecting an engine.
func WithEcho(echo bool) StartOption {
	return func(e *evStart) { e.echo = echo }
}

// OnStart begins the call. Only the first call has an effect.
func (s *Session) OnStart(streamID, prompt string, opts ...StartOption) {
	ev := evStart{streamID: streamID, prompt: prompt}
	for _, o := range opts {
		o(&ev)
	}
	s.post(ev)
}

// OnAudioFrame hands one inbound mu-law frame to the session. Frames before
// OnStart or after OnEnd are dropped. The session keeps payload; the caller
// must not modify it afterwards.
func (s *Session) OnAudioFrame(payload []byte) {
	if len(payload) == 0 {
		return
	}
	s.post(evAudio{data: payload})
}

// OnEnd ends the call. It is idempotent and returns immediately; use Done to
// wait for the end-of-call pipeline.
func (s *Session) OnEnd() {
	s.post(evEnd{})
}

// Done is closed once the session has finished its end-of-call pipeline and
// delivered every notification.
func (s *Session) Done() <-chan struct{} { return s.done }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pubState
}

// Info returns a snapshot of the session.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// Record returns the persisted outcome once the session is closed.
func (s *Session) Record() (store.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.record == nil {
		return store.Record{}, false
	}
	return *s.record, true
}

// post delivers ev to the loop. It returns false once the loop has exited.
func (s *Session) post(ev event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	for s.state != StateClosed {
		select {
		case ev := <-s.events:
			s.handle(ev)
		case <-ctx.Done():
			s.log.Info("call context cancelled, ending call", "err", ctx.Err())
			s.handle(evEnd{})
			ctx = context.Background()
		}
		s.publish()
	}
}

func (s *Session) handle(ev event) {
	switch ev := ev.(type) {
	case evStart:
		s.onStart(ev)
	case evAudio:
		s.onAudio(ev.data)
	case evTimer:
		s.onSilence(ev.gen)
	case evConnected:
		s.onConnected(ev.handle, ev.err)
	case evEngine:
		if ev.handle == s.engine {
			s.onEngineEvent(ev.event)
		}
	case evEngineClosed:
		if ev.handle == s.engine {
			s.engineLost(ev.err)
		}
	case evTranscribed:
		s.onTranscribed(ev.turn)
	case evEnd:
		s.onEnd()
	}
}

func (s *Session) publish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pubState = s.state
	s.info.State = s.state.String()
	s.info.StreamID = s.streamID
	s.info.Engine = s.engState.String()
	s.info.Echo = s.echo
	s.info.StartedAt = s.startedAt
	s.info.CallerBytes = len(s.inbound)
	s.info.CallerTurns = len(s.callers)
	s.info.AgentTurns = len(s.agents)
	s.info.Responding = s.seg.InFlight()
}

func (s *Session) onStart(ev evStart) {
	if s.state != StateNew {
		s.log.Debug("duplicate start ignored", "stream_id", ev.streamID)
		return
	}
	s.streamID = ev.streamID
	s.prompt = strings.TrimSpace(ev.prompt)
	s.echo = ev.echo
	s.startedAt = s.clk.Now()
	s.deps.Metrics.ActiveCalls.Add(s.base, 1)

	s.log.Info("call started", "stream_id", ev.streamID, "echo", ev.echo, "has_prompt", s.prompt != "")

	if s.echo || s.deps.Engine == nil {
		s.state = StateActive
		return
	}
	s.state = StateStarting
	s.dial()
}

func (s *Session) onAudio(data []byte) {
	if s.state == StateNew || s.state >= StateEnding {
		return
	}
	if !s.seg.Audio(len(data)) {
		return
	}
	s.inbound = append(s.inbound, data...)

	if s.echo {
		s.send(base64.StdEncoding.EncodeToString(data))
	}
	if s.engState == engineReady {
		if err := s.engineDo(func(ctx context.Context) error {
			return s.engine.AppendAudio(ctx, data)
		}); err != nil {
			s.engineLost(err)
		}
	}
	s.deb.Reset()
}

func (s *Session) onTranscribed(ct *callerTurn) {
	if ct.err != nil {
		s.log.Warn("caller turn transcription failed", "ordinal", ct.ordinal, "err", ct.err)
		return
	}
	if ct.text == "" || s.state >= StateEnding {
		return
	}
	s.notifyLive(transcript.SpeakerCaller, ct.text)
}

func (s *Session) send(payload string) {
	if s.deps.Output == nil || s.state >= StateEnding {
		return
	}
	if err := s.deps.Output.SendAudio(payload); err != nil {
		s.log.Debug("outbound audio dropped", "err", err)
	}
}

func (s *Session) notifyLive(sp transcript.Speaker, text string) {
	msg := notify.Message{CallID: s.id, Kind: notify.KindLive, Text: transcript.Entry{Speaker: sp, Text: text}.Line()}
	select {
	case s.notifyQ <- msg:
	default:
		s.log.Warn("notification queue full, dropping live line")
		s.deps.Metrics.RecordNotification(s.base, string(notify.KindLive), "dropped")
	}
}

// notifyFinal queues msg, waiting for room. Only the end-of-call pipeline
// uses it.
func (s *Session) notifyFinal(kind notify.Kind, text string) {
	s.notifyQ <- notify.Message{CallID: s.id, Kind: kind, Text: text}
}

// runNotifier delivers queued notifications in order until notifyQ is
// closed.
func (s *Session) runNotifier() {
	defer close(s.notifyDone)
	for msg := range s.notifyQ {
		ctx, cancel := context.WithTimeout(s.base, s.cfg.NotifyTimeout)
		err := s.deps.Notifier.Notify(ctx, msg)
		cancel()
		status := "ok"
		if err != nil {
			status = "error"
			s.log.Warn("notification failed", "kind", string(msg.Kind), "err", err)
		}
		s.deps.Metrics.RecordNotification(s.base, string(msg.Kind), status)
	}
}
