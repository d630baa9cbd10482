// Package mock provides test doubles for the s2s package interfaces.
//
// Use Provider to verify Connect calls and hand out controlled sessions. Use
// Session to push engine events from a test and inspect which commands the
// caller issued.
//
// Example:
//
//	sess := mock.NewSession()
//	p := &mock.Provider{Session: sess}
//	handle, _ := p.Connect(ctx, cfg)
//	sess.Emit(s2s.Event{Type: s2s.EventResponseStarted})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/phonebridge/pkg/provider/s2s"
)

// ConnectCall records a single invocation of Provider.Connect.
type ConnectCall struct {
	Ctx context.Context
	Cfg s2s.SessionConfig
}

// Provider is a mock implementation of s2s.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is the SessionHandle returned by Connect. If nil, Connect
	// returns a fresh Session.
	Session s2s.SessionHandle

	// ConnectErr, if non-nil, is returned as the error from Connect.
	ConnectErr error

	// FailFirst makes the first FailFirst calls return ConnectErr and later
	// calls succeed.
	FailFirst int

	// ConnectCalls records every call to Connect in order.
	ConnectCalls []ConnectCall
}

// Connect records the call and returns Session or ConnectErr.
func (p *Provider) Connect(ctx context.Context, cfg s2s.SessionConfig) (s2s.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{Ctx: ctx, Cfg: cfg})
	if p.ConnectErr != nil && (p.FailFirst == 0 || len(p.ConnectCalls) <= p.FailFirst) {
		return nil, p.ConnectErr
	}
	if p.Session != nil {
		return p.Session, nil
	}
	return NewSession(), nil
}

// ConnectCount returns the number of Connect calls. Thread-safe.
func (p *Provider) ConnectCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ConnectCalls)
}

var _ s2s.Provider = (*Provider)(nil)

// Session is a mock implementation of s2s.SessionHandle.
type Session struct {
	mu sync.Mutex

	events    chan s2s.Event
	closeOnce sync.Once

	// AppendErr, CommitErr and CreateResponseErr are returned by the
	// corresponding methods when non-nil.
	AppendErr         error
	CommitErr         error
	CreateResponseErr error

	// OnCreateResponse, if set, is called synchronously after a successful
	// CreateResponse. Tests use it to script engine replies.
	OnCreateResponse func(req s2s.ResponseRequest)

	// Appended holds every chunk passed to AppendAudio.
	Appended [][]byte

	// Commits counts successful Commit calls.
	Commits int

	// Responses records every successful CreateResponse call.
	Responses []s2s.ResponseRequest

	// Closed is set once Close has been called.
	Closed bool

	// ErrVal is returned by Err.
	ErrVal error
}

// NewSession returns a Session with a buffered event channel.
func NewSession() *Session {
	return &Session{events: make(chan s2s.Event, 256)}
}

// Emit pushes an engine event to the consumer. It is a no-op after Close.
func (s *Session) Emit(e s2s.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Closed {
		return
	}
	s.events <- e
}

// AppendAudio records the chunk.
func (s *Session) AppendAudio(_ context.Context, chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Closed {
		return s2s.ErrClosed
	}
	if s.AppendErr != nil {
		return s.AppendErr
	}
	s.Appended = append(s.Appended, append([]byte(nil), chunk...))
	return nil
}

// Commit records the call.
func (s *Session) Commit(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Closed {
		return s2s.ErrClosed
	}
	if s.CommitErr != nil {
		return s.CommitErr
	}
	s.Commits++
	return nil
}

// CreateResponse records the request.
func (s *Session) CreateResponse(_ context.Context, req s2s.ResponseRequest) error {
	s.mu.Lock()
	if s.Closed {
		s.mu.Unlock()
		return s2s.ErrClosed
	}
	if s.CreateResponseErr != nil {
		err := s.CreateResponseErr
		s.mu.Unlock()
		return err
	}
	s.Responses = append(s.Responses, req)
	hook := s.OnCreateResponse
	s.mu.Unlock()

	if hook != nil {
		hook(req)
	}
	return nil
}

// Events returns the event channel.
func (s *Session) Events() <-chan s2s.Event { return s.events }

// Err returns ErrVal.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ErrVal
}

// Close marks the session closed and closes the event channel. Idempotent.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.Closed = true
		close(s.events)
		s.mu.Unlock()
	})
	return nil
}

// Snapshot returns copies of the recorded counters. Thread-safe.
func (s *Session) Snapshot() (appended int, commits int, responses []s2s.ResponseRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Appended), s.Commits, append([]s2s.ResponseRequest(nil), s.Responses...)
}

// SetCommitErr sets CommitErr under the lock.
func (s *Session) SetCommitErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CommitErr = err
}

// SetCreateResponseErr sets CreateResponseErr under the lock.
func (s *Session) SetCreateResponseErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CreateResponseErr = err
}

var _ s2s.SessionHandle = (*Session)(nil)
