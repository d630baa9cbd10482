package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// ErrDegraded is returned by [Guard.Ping] while a recent operation on the
// wrapped store has failed.
var ErrDegraded = errors.New("store: degraded")

// DefaultDegradedHold is how long a failure keeps a [Guard] degraded when no
// later operation succeeds.
const DefaultDegradedHold = time.Minute

// Guard wraps a [Store] and tracks whether the backend is failing. A failed
// Save, Get or List marks the guard degraded; any successful one clears it.
// While degraded, Ping fails with [ErrDegraded] so readiness probes take the
// instance out of rotation. Without a successful operation the flag lapses
// after the hold period and Ping falls back to probing the backend.
//
// Errors are still returned to the caller and logged once here with the
// call id.
//
// Guard implements [Store]. All methods are safe for concurrent use.
type Guard struct {
	store Store
	clk   clock.Clock
	hold  time.Duration
	log   *slog.Logger

	mu       sync.Mutex
	lastErr  error
	failedAt time.Time
}

var _ Store = (*Guard)(nil)

// GuardOption configures a [Guard].
type GuardOption func(*Guard)

// WithGuardClock sets the clock used to age failures.
func WithGuardClock(c clock.Clock) GuardOption {
	return func(g *Guard) { g.clk = c }
}

// WithDegradedHold sets how long a failure keeps the guard degraded.
// Non-positive values keep the default.
func WithDegradedHold(d time.Duration) GuardOption {
	return func(g *Guard) {
		if d > 0 {
			g.hold = d
		}
	}
}

// WithGuardLogger sets the logger for failure reports.
func WithGuardLogger(l *slog.Logger) GuardOption {
	return func(g *Guard) { g.log = l }
}

// NewGuard wraps s.
func NewGuard(s Store, opts ...GuardOption) *Guard {
	g := &Guard{
		store: s,
		clk:   clock.New(),
		hold:  DefaultDegradedHold,
		log:   slog.Default(),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Save implements [Store].
func (g *Guard) Save(ctx context.Context, rec Record) error {
	err := g.store.Save(ctx, rec)
	if err != nil {
		g.fail(err)
		g.log.Warn("store guard: Save failed, marking degraded", "call_id", rec.CallID, "err", err)
		return err
	}
	g.succeed()
	return nil
}

// Get implements [Store]. [ErrNotFound] is not a failure.
func (g *Guard) Get(ctx context.Context, callID string) (Record, error) {
	rec, err := g.store.Get(ctx, callID)
	switch {
	case err == nil, errors.Is(err, ErrNotFound):
		g.succeed()
	default:
		g.fail(err)
		g.log.Warn("store guard: Get failed, marking degraded", "call_id", callID, "err", err)
	}
	return rec, err
}

// List implements [Store].
func (g *Guard) List(ctx context.Context, limit int) ([]Record, error) {
	recs, err := g.store.List(ctx, limit)
	if err != nil {
		g.fail(err)
		g.log.Warn("store guard: List failed, marking degraded", "err", err)
		return nil, err
	}
	g.succeed()
	return recs, nil
}

// Ping implements [Store]. It fails with [ErrDegraded] while degraded and
// otherwise probes the backend.
func (g *Guard) Ping(ctx context.Context) error {
	if err := g.Degraded(); err != nil {
		return fmt.Errorf("%w: %w", ErrDegraded, err)
	}
	return g.store.Ping(ctx)
}

// Degraded returns the failure that keeps the guard degraded, or nil.
func (g *Guard) Degraded() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.lastErr == nil {
		return nil
	}
	if g.clk.Since(g.failedAt) >= g.hold {
		g.lastErr = nil
		return nil
	}
	return g.lastErr
}

// IsDegraded reports whether a recent operation failed.
func (g *Guard) IsDegraded() bool { return g.Degraded() != nil }

func (g *Guard) fail(err error) {
	g.mu.Lock()
	g.lastErr = err
	g.failedAt = g.clk.Now()
	g.mu.Unlock()
}

func (g *Guard) succeed() {
	g.mu.Lock()
	g.lastErr = nil
	g.mu.Unlock()
}
