package app_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/MrWong99/phonebridge/internal/app"
	"github.com/MrWong99/phonebridge/internal/session"
	"github.com/MrWong99/phonebridge/internal/store"
)

var discardLog = slog.New(slog.DiscardHandler)

func newTestSessionManager() (*app.SessionManager, *store.MemStore) {
	recs := store.NewMemStore()
	sm := app.NewSessionManager(context.Background(), app.SessionManagerConfig{
		Deps: session.Deps{
			Store:  recs,
			Clock:  clock.NewMock(),
			Logger: discardLog,
		},
	})
	return sm, recs
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSessionManager_OpenAndRemove(t *testing.T) {
	t.Parallel()
	sm, recs := newTestSessionManager()

	s, err := sm.Open(context.Background(), "CA1", nil)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	s.OnStart("MZ1", "")
	s.OnAudioFrame(make([]byte, 160))

	if got, ok := sm.Get("CA1"); !ok || got != s {
		t.Fatal("Get should return the opened session")
	}
	if sm.Len() != 1 {
		t.Errorf("Len = %d, want 1", sm.Len())
	}

	s.OnEnd()
	<-s.Done()
	waitFor(t, "call removal", func() bool { return sm.Len() == 0 })

	if _, ok := sm.Get("CA1"); ok {
		t.Error("finished call should not be returned by Get")
	}
	rec, err := recs.Get(context.Background(), "CA1")
	if err != nil {
		t.Fatalf("record not stored: %v", err)
	}
	if rec.CallerBytes != 160 {
		t.Errorf("CallerBytes = %d, want 160", rec.CallerBytes)
	}
}

func TestSessionManager_DuplicateCall(t *testing.T) {
	t.Parallel()
	sm, _ := newTestSessionManager()

	first, err := sm.Open(context.Background(), "CA1", nil)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if _, err := sm.Open(context.Background(), "CA1", nil); !errors.Is(err, app.ErrDuplicateCall) {
		t.Errorf("second Open error = %v, want ErrDuplicateCall", err)
	}

	first.OnEnd()
	<-first.Done()
	waitFor(t, "call removal", func() bool { return sm.Len() == 0 })

	again, err := sm.Open(context.Background(), "CA1", nil)
	if err != nil {
		t.Fatalf("Open after the first call ended: %v", err)
	}
	again.OnEnd()
	<-again.Done()
}

func TestSessionManager_List(t *testing.T) {
	t.Parallel()
	sm, _ := newTestSessionManager()

	for _, id := range []string{"CA2", "CA1", "CA3"} {
		s, err := sm.Open(context.Background(), id, nil)
		if err != nil {
			t.Fatalf("Open(%s) error: %v", id, err)
		}
		s.OnStart("MZ-"+id, "")
	}
	waitFor(t, "calls active", func() bool {
		for _, info := range sm.List() {
			if info.State != session.StateActive.String() {
				return false
			}
		}
		return true
	})

	infos := sm.List()
	if len(infos) != 3 {
		t.Fatalf("List len = %d, want 3", len(infos))
	}
	// The mock clock gives every call the same start time, so ids decide.
	for i, want := range []string{"CA1", "CA2", "CA3"} {
		if infos[i].CallID != want {
			t.Errorf("List[%d] = %q, want %q", i, infos[i].CallID, want)
		}
	}
	if err := sm.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
}

func TestSessionManager_Hangup(t *testing.T) {
	t.Parallel()
	sm, _ := newTestSessionManager()

	if err := sm.Hangup("nope"); !errors.Is(err, app.ErrCallNotFound) {
		t.Errorf("Hangup unknown = %v, want ErrCallNotFound", err)
	}

	s, err := sm.Open(context.Background(), "CA1", nil)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	s.OnStart("MZ1", "")
	if err := sm.Hangup("CA1"); err != nil {
		t.Fatalf("Hangup() error: %v", err)
	}
	select {
	case <-s.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("hung up call did not finish")
	}
}

func TestSessionManager_Shutdown(t *testing.T) {
	t.Parallel()
	sm, recs := newTestSessionManager()

	for i := range 3 {
		s, err := sm.Open(context.Background(), fmt.Sprintf("CA%d", i), nil)
		if err != nil {
			t.Fatalf("Open() error: %v", err)
		}
		s.OnStart(fmt.Sprintf("MZ%d", i), "")
		s.OnAudioFrame(make([]byte, 320))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := sm.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
	if sm.Len() != 0 {
		t.Errorf("Len after Shutdown = %d, want 0", sm.Len())
	}
	all, _ := recs.List(context.Background(), 0)
	if len(all) != 3 {
		t.Errorf("records after Shutdown = %d, want 3", len(all))
	}
	if _, err := sm.Open(context.Background(), "late", nil); !errors.Is(err, app.ErrDraining) {
		t.Errorf("Open after Shutdown = %v, want ErrDraining", err)
	}
}

func TestSessionManager_ConcurrentAccess(t *testing.T) {
	t.Parallel()
	sm, _ := newTestSessionManager()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := fmt.Sprintf("CA%d", i)
			s, err := sm.Open(context.Background(), id, nil)
			if err != nil {
				t.Errorf("Open(%s): %v", id, err)
				return
			}
			s.OnStart("MZ", "")
			_ = sm.List()
			_ = sm.Hangup(id)
			<-s.Done()
		}()
	}
	wg.Wait()
	waitFor(t, "all calls removed", func() bool { return sm.Len() == 0 })
}
