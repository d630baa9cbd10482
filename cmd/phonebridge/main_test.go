package main

import (
	"errors"
	"slices"
	"testing"

	"github.com/MrWong99/phonebridge/internal/config"
	"github.com/MrWong99/phonebridge/internal/resilience"
)

func TestOptHelpers(t *testing.T) {
	t.Parallel()

	opts := map[string]any{"language": "de", "model_rate": 16000, "retries": 2.0, "bad": true}
	if got := optString(opts, "language"); got != "de" {
		t.Errorf("optString(language) = %q, want %q", got, "de")
	}
	if got := optString(opts, "bad"); got != "" {
		t.Errorf("optString(bad) = %q, want empty", got)
	}
	if got := optString(nil, "language"); got != "" {
		t.Errorf("optString(nil) = %q, want empty", got)
	}
	if got := optInt(opts, "model_rate"); got != 16000 {
		t.Errorf("optInt(model_rate) = %d, want 16000", got)
	}
	if got := optInt(opts, "retries"); got != 2 {
		t.Errorf("optInt(retries) = %d, want 2", got)
	}
	if got := optInt(opts, "missing"); got != 0 {
		t.Errorf("optInt(missing) = %d, want 0", got)
	}
}

func TestRegisterBuiltinProviders(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	for kind, want := range config.ValidProviderNames {
		regKind := map[string]string{"realtime": "s2s", "transcriber": "stt", "llm": "llm"}[kind]
		names := reg.Names(regKind)
		for _, name := range want {
			if !slices.Contains(names, name) {
				t.Errorf("%s provider %q is not registered (have %v)", kind, name, names)
			}
		}
	}
}

func TestBuildProviders(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	cfg := &config.Config{}
	cfg.Providers.Realtime = config.ProviderEntry{Name: "openai-realtime", APIKey: "sk-test"}
	cfg.Providers.Transcriber = config.ProviderEntry{Name: "whisper", BaseURL: "http://localhost:8081"}
	cfg.Providers.TranscriberFallback = []config.ProviderEntry{{Name: "openai", APIKey: "sk-test"}}
	cfg.Providers.LLM = config.ProviderEntry{Name: "openai", APIKey: "sk-test", Model: "gpt-4o-mini"}
	cfg.Providers.LLMFallback = []config.ProviderEntry{{Name: "openai", APIKey: "sk-backup", Model: "gpt-4o-mini"}}

	ps, err := buildProviders(cfg, reg)
	if err != nil {
		t.Fatalf("buildProviders: %v", err)
	}
	if ps.Realtime == nil {
		t.Error("Realtime provider is nil")
	}
	if _, ok := ps.LLM.(*resilience.LLMFallback); !ok {
		t.Errorf("LLM = %T, want *resilience.LLMFallback", ps.LLM)
	}
	if _, ok := ps.Transcriber.(*resilience.TranscriberFallback); !ok {
		t.Errorf("Transcriber = %T, want *resilience.TranscriberFallback", ps.Transcriber)
	}
}

func TestBuildProviders_UnknownName(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	cfg := &config.Config{}
	cfg.Providers.LLM = config.ProviderEntry{Name: "does-not-exist"}

	ps, err := buildProviders(cfg, reg)
	if err != nil {
		t.Fatalf("unknown provider should be skipped, got %v", err)
	}
	if ps.LLM != nil {
		t.Errorf("LLM = %T, want nil", ps.LLM)
	}

	cfg.Providers.Transcriber = config.ProviderEntry{Name: "whisper", BaseURL: "http://localhost:8081"}
	cfg.Providers.TranscriberFallback = []config.ProviderEntry{{Name: "nope"}}
	if _, err := buildProviders(cfg, reg); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("unknown fallback error = %v, want ErrProviderNotRegistered", err)
	}
}
