// Package mock provides a test double for the stt.Transcriber interface.
//
// Set Result/Err for a fixed reply, or Func for per-request behaviour. Every
// call is recorded so tests can assert which recordings were submitted.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/phonebridge/pkg/provider/stt"
)

// Transcriber is a mock implementation of stt.Transcriber.
type Transcriber struct {
	mu sync.Mutex

	// Result is returned when Func is nil.
	Result stt.Result

	// Err, if non-nil, is returned when Func is nil.
	Err error

	// Func, if set, handles every call instead of Result/Err.
	Func func(ctx context.Context, audio stt.Audio) (stt.Result, error)

	// Calls records the audio of every Transcribe call in order.
	Calls []stt.Audio
}

// Transcribe records the call and returns the configured reply.
func (m *Transcriber) Transcribe(ctx context.Context, audio stt.Audio) (stt.Result, error) {
	m.mu.Lock()
	cp := audio
	cp.Samples = append([]int16(nil), audio.Samples...)
	m.Calls = append(m.Calls, cp)
	fn := m.Func
	res, err := m.Result, m.Err
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, audio)
	}
	return res, err
}

// CallCount returns the number of Transcribe calls. Thread-safe.
func (m *Transcriber) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// CallsSnapshot returns a copy of the recorded calls. Thread-safe.
func (m *Transcriber) CallsSnapshot() []stt.Audio {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]stt.Audio(nil), m.Calls...)
}

var _ stt.Transcriber = (*Transcriber)(nil)
