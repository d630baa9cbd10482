package app

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/MrWong99/phonebridge/internal/session"
)

var (
	// ErrCallNotFound is returned when no live call has the requested id.
	ErrCallNotFound = errors.New("app: call not found")

	// ErrDuplicateCall is returned by Open when a call with the same id is
	// still live.
	ErrDuplicateCall = errors.New("app: call already active")

	// ErrDraining is returned by Open once shutdown has begun.
	ErrDraining = errors.New("app: server is shutting down")
)

// SessionManager tracks the live calls of the process. Calls are added by
// [SessionManager.Open] and removed once their session is done.
// All exported methods are safe for concurrent use.
type SessionManager struct {
	base   context.Context
	config func() session.Config
	deps   session.Deps
	log    *slog.Logger

	mu       sync.Mutex
	calls    map[string]*session.Session
	draining bool
	wg       sync.WaitGroup
}

// SessionManagerConfig holds all dependencies for a [SessionManager].
type SessionManagerConfig struct {
	// Config returns the session tuning for a new call. It is called once per
	// call so configuration reloads apply to the next call.
	Config func() session.Config

	// Deps are shared by every call. Output is set per call.
	Deps session.Deps
}

// NewSessionManager creates a SessionManager. Calls outlive ctx's
// cancellation; they end through [SessionManager.Hangup],
// [SessionManager.Shutdown] or their transport.
func NewSessionManager(ctx context.Context, cfg SessionManagerConfig) *SessionManager {
	if cfg.Config == nil {
		cfg.Config = func() session.Config { return session.Config{} }
	}
	log := cfg.Deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &SessionManager{
		base:   context.WithoutCancel(ctx),
		config: cfg.Config,
		deps:   cfg.Deps,
		log:    log,
		calls:  make(map[string]*session.Session),
	}
}

// Open creates and registers the session for callID. It implements
// media.Opener.
func (sm *SessionManager) Open(_ context.Context, callID string, out session.Output) (*session.Session, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.draining {
		return nil, ErrDraining
	}
	if _, ok := sm.calls[callID]; ok {
		return nil, fmt.Errorf("%w (id=%s)", ErrDuplicateCall, callID)
	}

	deps := sm.deps
	deps.Output = out
	s := session.New(sm.base, callID, sm.config(), deps)
	sm.calls[callID] = s

	sm.wg.Add(1)
	go func() {
		defer sm.wg.Done()
		<-s.Done()
		sm.mu.Lock()
		if sm.calls[callID] == s {
			delete(sm.calls, callID)
		}
		sm.mu.Unlock()
	}()

	sm.log.Debug("call registered", "call_id", callID)
	return s, nil
}

// Get returns the live session for callID.
func (sm *SessionManager) Get(callID string) (*session.Session, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	s, ok := sm.calls[callID]
	return s, ok
}

// List returns a snapshot of every live call, oldest first.
func (sm *SessionManager) List() []session.Info {
	sm.mu.Lock()
	infos := make([]session.Info, 0, len(sm.calls))
	for _, s := range sm.calls {
		infos = append(infos, s.Info())
	}
	sm.mu.Unlock()

	slices.SortFunc(infos, func(a, b session.Info) int {
		if c := a.StartedAt.Compare(b.StartedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.CallID, b.CallID)
	})
	return infos
}

// Len returns the number of live calls.
func (sm *SessionManager) Len() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.calls)
}

// Hangup ends the call with the given id. The end-of-call pipeline runs in
// the background; the media stream is closed once it finishes.
func (sm *SessionManager) Hangup(callID string) error {
	s, ok := sm.Get(callID)
	if !ok {
		return fmt.Errorf("%w (id=%s)", ErrCallNotFound, callID)
	}
	sm.log.Info("hanging up call", "call_id", callID)
	s.OnEnd()
	return nil
}

// Shutdown stops accepting calls, ends every live call and waits until their
// end-of-call pipelines finish or ctx expires.
func (sm *SessionManager) Shutdown(ctx context.Context) error {
	sm.mu.Lock()
	sm.draining = true
	live := make([]*session.Session, 0, len(sm.calls))
	for _, s := range sm.calls {
		live = append(live, s)
	}
	sm.mu.Unlock()

	if len(live) > 0 {
		sm.log.Info("ending live calls", "count", len(live))
	}
	for _, s := range live {
		s.OnEnd()
	}

	done := make(chan struct{})
	go func() {
		sm.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		sm.log.Warn("calls still finalizing at shutdown deadline", "remaining", sm.Len())
		return ctx.Err()
	}
}
