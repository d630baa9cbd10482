package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/MrWong99/phonebridge/pkg/provider/s2s"
	s2smock "github.com/MrWong99/phonebridge/pkg/provider/s2s/mock"
)

var discardLog = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestConnectPolicy_Defaults(t *testing.T) {
	t.Parallel()
	p := ConnectPolicy{}.withDefaults()
	if p.MaxAttempts != 3 || p.Backoff != 500*time.Millisecond || p.MaxBackoff != 5*time.Second {
		t.Errorf("defaults = %+v", p)
	}
}

func TestDialEngine(t *testing.T) {
	t.Parallel()
	errDial := errors.New("dial refused")

	tests := []struct {
		name      string
		provider  *s2smock.Provider
		attempts  int
		wantErr   bool
		wantCalls int
	}{
		{name: "first attempt", provider: &s2smock.Provider{}, attempts: 3, wantCalls: 1},
		{name: "retry succeeds", provider: &s2smock.Provider{ConnectErr: errDial, FailFirst: 2}, attempts: 3, wantCalls: 3},
		{name: "gives up", provider: &s2smock.Provider{ConnectErr: errDial}, attempts: 2, wantErr: true, wantCalls: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			policy := ConnectPolicy{MaxAttempts: tt.attempts, Backoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
			h, err := dialEngine(context.Background(), clock.New(), tt.provider, s2s.SessionConfig{Voice: "alloy"}, policy, discardLog)
			if tt.wantErr {
				if !errors.Is(err, errDial) {
					t.Fatalf("err = %v, want wrapped dial error", err)
				}
			} else if err != nil || h == nil {
				t.Fatalf("dialEngine = %v, %v", h, err)
			}
			if got := tt.provider.ConnectCount(); got != tt.wantCalls {
				t.Errorf("Connect calls = %d, want %d", got, tt.wantCalls)
			}
			if tt.provider.ConnectCalls[0].Cfg.Voice != "alloy" {
				t.Errorf("config not forwarded: %+v", tt.provider.ConnectCalls[0].Cfg)
			}
		})
	}
}

func TestDialEngine_BackoffUsesClock(t *testing.T) {
	t.Parallel()
	clk := clock.NewMock()
	p := &s2smock.Provider{ConnectErr: errors.New("down"), FailFirst: 1}

	done := make(chan error, 1)
	go func() {
		_, err := dialEngine(context.Background(), clk, p, s2s.SessionConfig{}, ConnectPolicy{MaxAttempts: 2, Backoff: time.Second}, discardLog)
		done <- err
	}()

	// The second attempt must wait for the backoff on the injected clock.
	deadline := time.Now().Add(2 * time.Second)
	for p.ConnectCount() < 1 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	select {
	case err := <-done:
		t.Fatalf("returned before backoff elapsed: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	for {
		clk.Add(time.Second)
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("dialEngine: %v", err)
			}
			if p.ConnectCount() != 2 {
				t.Errorf("Connect calls = %d, want 2", p.ConnectCount())
			}
			return
		case <-time.After(5 * time.Millisecond):
		}
		if time.Now().After(deadline) {
			t.Fatal("timeout waiting for retry")
		}
	}
}

func TestDialEngine_ContextCancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := &s2smock.Provider{}
	if _, err := dialEngine(ctx, clock.New(), p, s2s.SessionConfig{}, ConnectPolicy{}, discardLog); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if p.ConnectCount() != 0 {
		t.Error("Connect called with cancelled context")
	}
}
