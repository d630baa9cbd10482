// Package openai implements the s2s.Provider interface for OpenAI's Realtime
// API.
//
// It establishes a bidirectional WebSocket connection to the Realtime
// endpoint and exchanges JSON events according to the Realtime protocol.
// Audio travels as base64 G.711 mu-law by default, so telephone frames are
// forwarded without transcoding. Turn detection is left to the caller unless
// server VAD is requested.
package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/MrWong99/phonebridge/pkg/provider/s2s"
)

// Compile-time assertions that Provider and session satisfy the s2s interfaces.
var _ s2s.Provider = (*Provider)(nil)
var _ s2s.SessionHandle = (*session)(nil)

const (
	defaultModel   = "gpt-4o-realtime-preview"
	defaultBaseURL = "wss://api.openai.com/v1/realtime"

	eventBuffer = 256
)

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the OpenAI model used for sessions.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithBaseURL overrides the base WebSocket URL. Primarily used in tests to
// point at a local mock server.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// ── Provider ───────────────────────────────────────────────────────────────────

// Provider implements s2s.Provider for OpenAI's Realtime API.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
}

// New creates a new OpenAI Realtime Provider with the given API key and options.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:  apiKey,
		model:   defaultModel,
		baseURL: defaultBaseURL,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Connect establishes a new Realtime session and sends session.update with
// cfg. The returned SessionHandle is ready to accept audio immediately.
func (p *Provider) Connect(ctx context.Context, cfg s2s.SessionConfig) (s2s.SessionHandle, error) {
	wsURL := fmt.Sprintf("%s?model=%s", p.baseURL, p.model)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Authorization": []string{"Bearer " + p.apiKey},
			"OpenAI-Beta":   []string{"realtime=v1"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai: dial: %w", err)
	}
	// Audio deltas for a long answer can exceed the 32 KiB default.
	conn.SetReadLimit(4 << 20)

	sessCtx, sessCancel := context.WithCancel(context.Background())
	sess := &session{
		conn:   conn,
		events: make(chan s2s.Event, eventBuffer),
		ctx:    sessCtx,
		cancel: sessCancel,
	}

	if err := sess.sendSessionUpdate(ctx, cfg); err != nil {
		sessCancel()
		conn.Close(websocket.StatusInternalError, "session update failed")
		return nil, fmt.Errorf("openai: session update: %w", err)
	}

	go sess.receiveLoop()

	return sess, nil
}

// ── Protocol message types (outgoing) ─────────────────────────────────────────

type sessionUpdateMessage struct {
	Type    string        `json:"type"`
	Session sessionParams `json:"session"`
}

type sessionParams struct {
	Voice             string         `json:"voice,omitempty"`
	Instructions      string         `json:"instructions,omitempty"`
	Modalities        []string       `json:"modalities,omitempty"`
	InputAudioFormat  string         `json:"input_audio_format"`
	OutputAudioFormat string         `json:"output_audio_format"`
	TurnDetection     *turnDetection `json:"turn_detection"`
}

type turnDetection struct {
	Type string `json:"type"`
}

type appendAudioMessage struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

type responseCreateMessage struct {
	Type     string         `json:"type"`
	Response responseParams `json:"response"`
}

type responseParams struct {
	Modalities   []string `json:"modalities,omitempty"`
	Instructions string   `json:"instructions,omitempty"`
}

// ── Protocol message types (incoming) ─────────────────────────────────────────

// serverErrorDetail represents the nested error object in a Realtime error
// event: {"type":"error","error":{"type":"...","code":"...","message":"..."}}.
type serverErrorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type serverResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type serverEvent struct {
	Type string `json:"type"`

	// response.audio.delta / response.audio_transcript.delta / response.text.delta
	Delta string `json:"delta,omitempty"`

	ResponseID string `json:"response_id,omitempty"`

	// response.created / response.done
	Response *serverResponse `json:"response,omitempty"`

	// error event
	Error *serverErrorDetail `json:"error,omitempty"`
}

// ── session ────────────────────────────────────────────────────────────────────

type session struct {
	conn   *websocket.Conn
	events chan s2s.Event

	mu     sync.Mutex
	errVal error
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
}

func (s *session) sendSessionUpdate(ctx context.Context, cfg s2s.SessionConfig) error {
	format := cfg.AudioFormat
	if format == "" {
		format = s2s.FormatG711ULaw
	}
	params := sessionParams{
		Voice:             cfg.Voice,
		Instructions:      cfg.Instructions,
		Modalities:        []string{"audio", "text"},
		InputAudioFormat:  format,
		OutputAudioFormat: format,
	}
	if cfg.ServerVAD {
		params.TurnDetection = &turnDetection{Type: "server_vad"}
	}
	return s.writeJSON(ctx, sessionUpdateMessage{Type: "session.update", Session: params})
}

// writeJSON marshals v and writes it as a text WebSocket message. The write
// is bounded by both ctx and the session lifetime.
func (s *session) writeJSON(ctx context.Context, v any) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return s2s.ErrClosed
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("openai: marshal: %w", err)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()
	if err := s.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("openai: write: %w", err)
	}
	return nil
}

// receiveLoop reads events from the WebSocket and dispatches them. It owns
// the events channel and closes it when it exits.
func (s *session) receiveLoop() {
	defer close(s.events)

	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.setErr(err)
			return
		}

		var evt serverEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			continue
		}

		out, ok := translate(&evt)
		if !ok {
			continue
		}
		select {
		case s.events <- out:
		case <-s.ctx.Done():
			return
		}
	}
}

// translate maps a Realtime server event to an s2s.Event. Events the relay
// does not consume return false.
func translate(evt *serverEvent) (s2s.Event, bool) {
	switch evt.Type {
	case "response.created":
		out := s2s.Event{Type: s2s.EventResponseStarted}
		if evt.Response != nil {
			out.ResponseID = evt.Response.ID
		}
		return out, true

	case "response.audio.delta":
		if evt.Delta == "" {
			return s2s.Event{}, false
		}
		return s2s.Event{Type: s2s.EventAudioDelta, ResponseID: evt.ResponseID, Audio: evt.Delta}, true

	case "response.audio_transcript.delta", "response.text.delta":
		if evt.Delta == "" {
			return s2s.Event{}, false
		}
		return s2s.Event{Type: s2s.EventTextDelta, ResponseID: evt.ResponseID, Text: evt.Delta}, true

	case "response.done":
		out := s2s.Event{Type: s2s.EventResponseDone}
		if evt.Response != nil {
			out.ResponseID = evt.Response.ID
			out.Status = evt.Response.Status
		}
		return out, true

	case "error":
		msg := "unknown error"
		if evt.Error != nil && evt.Error.Message != "" {
			msg = evt.Error.Message
		}
		return s2s.Event{Type: s2s.EventError, Err: fmt.Errorf("openai: %s", msg)}, true
	}
	return s2s.Event{}, false
}

func (s *session) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errVal == nil {
		s.errVal = err
	}
}

// ── SessionHandle methods ──────────────────────────────────────────────────────

// AppendAudio sends input_audio_buffer.append with the base64-encoded chunk.
func (s *session) AppendAudio(ctx context.Context, chunk []byte) error {
	return s.writeJSON(ctx, appendAudioMessage{
		Type:  "input_audio_buffer.append",
		Audio: base64.StdEncoding.EncodeToString(chunk),
	})
}

// Commit sends input_audio_buffer.commit.
func (s *session) Commit(ctx context.Context) error {
	return s.writeJSON(ctx, map[string]string{"type": "input_audio_buffer.commit"})
}

// CreateResponse sends response.create.
func (s *session) CreateResponse(ctx context.Context, req s2s.ResponseRequest) error {
	modalities := req.Modalities
	if len(modalities) == 0 {
		modalities = []string{"audio", "text"}
	}
	return s.writeJSON(ctx, responseCreateMessage{
		Type: "response.create",
		Response: responseParams{
			Modalities:   modalities,
			Instructions: req.Instructions,
		},
	})
}

// Events returns the ordered engine event stream.
func (s *session) Events() <-chan s2s.Event { return s.events }

// Err returns the first non-nil error that caused the session to terminate.
func (s *session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errVal != nil && errors.Is(s.errVal, context.Canceled) {
		return nil
	}
	return s.errVal
}

// Close terminates the session and releases all resources. Idempotent.
func (s *session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.conn.Close(websocket.StatusNormalClosure, "session closed")
	return nil
}
