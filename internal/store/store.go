// Package store persists the authoritative record of finished calls.
//
// A [Record] is written once, when a call's end-of-call pipeline completes.
// [MemStore] keeps records in process memory; the postgres sub-package
// provides a durable implementation.
package store

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/phonebridge/internal/transcript"
)

// ErrNotFound is returned by Get when no record exists for the call id.
var ErrNotFound = errors.New("store: call not found")

// Status describes how a call's transcript was produced.
type Status string

const (
	StatusComplete    Status = "complete"
	StatusUnavailable Status = "unavailable"
	StatusTimeout     Status = "timeout"
)

// Record is the persisted outcome of one call.
type Record struct {
	CallID    string
	StreamID  string
	Mode      transcript.Mode
	Status    Status
	StartedAt time.Time
	EndedAt   time.Time

	// CallerBytes is the total mu-law audio received from the caller.
	CallerBytes int

	Entries []transcript.Entry
	Summary string
}

// Text renders the record's entries as speaker-prefixed lines.
func (r Record) Text() string { return transcript.Format(r.Entries) }

// Store persists call records. Implementations must be safe for concurrent
// use.
type Store interface {
	// Save writes rec, replacing any earlier record with the same CallID.
	Save(ctx context.Context, rec Record) error

	// Get returns the record for callID or [ErrNotFound].
	Get(ctx context.Context, callID string) (Record, error)

	// List returns up to limit records, most recently ended first. A limit of
	// zero or less returns all records.
	List(ctx context.Context, limit int) ([]Record, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
}

// MemStore is an in-process [Store].
type MemStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{records: make(map[string]Record)}
}

// Save implements [Store].
func (m *MemStore) Save(_ context.Context, rec Record) error {
	rec.Entries = slices.Clone(rec.Entries)
	m.mu.Lock()
	m.records[rec.CallID] = rec
	m.mu.Unlock()
	return nil
}

// Get implements [Store].
func (m *MemStore) Get(_ context.Context, callID string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[callID]
	if !ok {
		return Record{}, ErrNotFound
	}
	rec.Entries = slices.Clone(rec.Entries)
	return rec, nil
}

// List implements [Store].
func (m *MemStore) List(_ context.Context, limit int) ([]Record, error) {
	m.mu.RLock()
	out := make([]Record, 0, len(m.records))
	for _, r := range m.records {
		r.Entries = slices.Clone(r.Entries)
		out = append(out, r)
	}
	m.mu.RUnlock()

	slices.SortFunc(out, func(a, b Record) int {
		if c := b.EndedAt.Compare(a.EndedAt); c != 0 {
			return c
		}
		if a.CallID < b.CallID {
			return -1
		}
		if a.CallID > b.CallID {
			return 1
		}
		return 0
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Ping implements [Store]. It always succeeds.
func (m *MemStore) Ping(context.Context) error { return nil }
