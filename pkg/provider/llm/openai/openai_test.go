package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/phonebridge/pkg/provider/llm"
)

func TestConvertMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		role    string
		wantErr bool
	}{
		{role: "system"},
		{role: "user"},
		{role: "assistant"},
		{role: "tool", wantErr: true},
		{role: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			t.Parallel()
			p, err := convertMessage(llm.Message{Role: tt.role, Content: "x"})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			switch tt.role {
			case "system":
				if p.OfSystem == nil {
					t.Error("OfSystem not set")
				}
			case "user":
				if p.OfUser == nil {
					t.Error("OfUser not set")
				}
			case "assistant":
				if p.OfAssistant == nil {
					t.Error("OfAssistant not set")
				}
			}
		})
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	if _, err := New("", "gpt-4o-mini"); err == nil {
		t.Error("expected error for empty key")
	}
	if _, err := New("key", ""); err == nil {
		t.Error("expected error for empty model")
	}
}

func TestComplete(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "Caller asked about opening hours."}}],
			"usage": {"prompt_tokens": 40, "completion_tokens": 8, "total_tokens": 48}
		}`))
	}))
	t.Cleanup(srv.Close)

	p, err := New("key", "gpt-4o-mini", WithBaseURL(srv.URL), WithMaxRetries(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		SystemPrompt: "Summarise.",
		Messages:     []llm.Message{{Role: "user", Content: "Caller: When are you open?"}},
		MaxTokens:    64,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "Caller asked about opening hours." {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.Usage.TotalTokens != 48 {
		t.Errorf("TotalTokens = %d", resp.Usage.TotalTokens)
	}
	if got["model"] != "gpt-4o-mini" {
		t.Errorf("model = %v", got["model"])
	}
	msgs, _ := got["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("messages = %v", got["messages"])
	}
	if first, _ := msgs[0].(map[string]any); first["role"] != "system" {
		t.Errorf("first message = %v", first)
	}
}

func TestComplete_EmptyChoices(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[]}`))
	}))
	t.Cleanup(srv.Close)

	p, _ := New("key", "m", WithBaseURL(srv.URL), WithMaxRetries(0))
	if _, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: "x"}},
	}); err == nil {
		t.Fatal("expected error for empty choices")
	}
}
