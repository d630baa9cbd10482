// Package llm defines the Provider interface for Large Language Model backends.
//
// The call relay uses a language model for one thing: condensing a finished
// call transcript into a short natural-language summary. Providers therefore
// expose a single blocking completion call.
//
// Implementors must be safe for concurrent use and must return promptly when
// the supplied context is cancelled.
package llm

import "context"

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	//
	// Returns an error if the request fails or if ctx is cancelled before
	// the completion arrives.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
