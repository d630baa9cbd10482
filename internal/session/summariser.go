package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/MrWong99/phonebridge/internal/transcript"
	"github.com/MrWong99/phonebridge/pkg/provider/llm"
)

// summarisationPrompt is the system prompt sent to the LLM when summarising a
// finished call.
const summarisationPrompt = `Summarise the following phone call between an automated voice agent and a caller.
State who called about what, any decisions or commitments made, and any follow-up the caller expects.
Reply with at most three sentences of plain text.`

// Summariser produces a short natural-language summary of a call transcript.
type Summariser interface {
	Summarise(ctx context.Context, entries []transcript.Entry) (string, error)
}

// LLMSummariser uses an LLM provider to summarise calls.
type LLMSummariser struct {
	llm       llm.Provider
	maxTokens int
}

// NewLLMSummariser creates a new [LLMSummariser] backed by the given provider.
func NewLLMSummariser(provider llm.Provider) *LLMSummariser {
	return &LLMSummariser{llm: provider, maxTokens: 200}
}

// Summarise renders entries as "Agent: ..." / "Caller: ..." lines, sends them
// to the LLM as one user message and returns the trimmed reply. An empty
// transcript yields an empty summary without calling the model.
func (s *LLMSummariser) Summarise(ctx context.Context, entries []transcript.Entry) (string, error) {
	if len(entries) == 0 {
		return "", nil
	}

	resp, err := s.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: summarisationPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: transcript.Format(entries)},
		},
		Temperature: 0.3,
		MaxTokens:   s.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("summarise: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}
