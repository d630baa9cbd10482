package resilience

import (
	"context"

	"github.com/MrWong99/phonebridge/pkg/provider/llm"
	"github.com/MrWong99/phonebridge/pkg/provider/stt"
)

// TranscriberFallback implements [stt.Transcriber] with failover across
// several batch transcription backends.
type TranscriberFallback struct {
	group *FallbackGroup[stt.Transcriber]
}

var _ stt.Transcriber = (*TranscriberFallback)(nil)

// NewTranscriberFallback creates a [TranscriberFallback] preferring primary.
func NewTranscriberFallback(primary stt.Transcriber, primaryName string, cfg FallbackConfig) *TranscriberFallback {
	return &TranscriberFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another transcriber.
func (f *TranscriberFallback) AddFallback(name string, t stt.Transcriber) {
	f.group.AddFallback(name, t)
}

// Transcribe sends the audio to the first healthy backend.
func (f *TranscriberFallback) Transcribe(ctx context.Context, a stt.Audio) (stt.Result, error) {
	return ExecuteWithResult(ctx, f.group, func(t stt.Transcriber) (stt.Result, error) {
		return t.Transcribe(ctx, a)
	})
}

// LLMFallback implements [llm.Provider] with failover across several
// completion backends.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] preferring primary.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another LLM provider.
func (f *LLMFallback) AddFallback(name string, p llm.Provider) {
	f.group.AddFallback(name, p)
}

// Complete sends the request to the first healthy backend.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(ctx, f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}
