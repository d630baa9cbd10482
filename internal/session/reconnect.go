package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/MrWong99/phonebridge/pkg/provider/s2s"
)

// Default engine connection parameters.
const (
	defaultConnectAttempts = 3
	defaultBackoff         = 500 * time.Millisecond
	defaultMaxBackoff      = 5 * time.Second
)

// ConnectPolicy bounds how hard a session tries to reach the engine.
type ConnectPolicy struct {
	// MaxAttempts is the number of connection attempts before the session
	// gives up and continues without an engine. Defaults to 3.
	MaxAttempts int

	// Backoff is the wait after the first failed attempt. It doubles after
	// each further failure up to MaxBackoff. Defaults to 500ms.
	Backoff time.Duration

	// MaxBackoff caps the wait between attempts. Defaults to 5s.
	MaxBackoff time.Duration

	// MaxReconnects is the number of times a session re-dials an engine
	// connection that dropped mid-call. Zero disables reconnection.
	MaxReconnects int
}

func (p ConnectPolicy) withDefaults() ConnectPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultConnectAttempts
	}
	if p.Backoff <= 0 {
		p.Backoff = defaultBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = defaultMaxBackoff
	}
	return p
}

// dialEngine opens an engine session with exponential backoff between
// attempts. Waits use clk so tests can drive them.
func dialEngine(ctx context.Context, clk clock.Clock, provider s2s.Provider, cfg s2s.SessionConfig, policy ConnectPolicy, log *slog.Logger) (s2s.SessionHandle, error) {
	policy = policy.withDefaults()
	backoff := policy.Backoff

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		log.Debug("connecting to engine", "attempt", attempt, "max_attempts", policy.MaxAttempts)
		h, err := provider.Connect(ctx, cfg)
		if err == nil {
			if attempt > 1 {
				log.Info("engine connected after retry", "attempt", attempt)
			}
			return h, nil
		}
		lastErr = err
		log.Warn("engine connection attempt failed", "attempt", attempt, "err", err)

		if attempt == policy.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-clk.After(backoff):
		}
		backoff = min(backoff*2, policy.MaxBackoff)
	}
	return nil, fmt.Errorf("session: engine unreachable after %d attempts: %w", policy.MaxAttempts, lastErr)
}
