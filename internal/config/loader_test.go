package config_test

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/phonebridge/internal/config"
)

func TestApplyDefaults(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"listen_addr", cfg.Server.ListenAddr, config.DefaultListenAddr},
		{"log_level", cfg.Server.LogLevel, config.LogInfo},
		{"media_path", cfg.Server.MediaPath, config.DefaultMediaPath},
		{"debounce", cfg.Turns.Debounce, config.DefaultDebounce},
		{"min_turn", cfg.Turns.MinTurn, config.DefaultMinTurn},
		{"sample_rate", cfg.Turns.SampleRate, config.DefaultSampleRate},
		{"mode", cfg.Transcript.Mode, config.ModeHybrid},
		{"turn_timeout", cfg.Transcript.TurnTimeout, config.DefaultTurnTimeout},
		{"finalize_timeout", cfg.Transcript.FinalizeTimeout, config.DefaultFinalizeTimeout},
		{"notify timeout", cfg.Notify.Timeout, config.DefaultNotifyTimeout},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s: got %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestApplyDefaults_KeepsExplicitValues(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{Turns: config.TurnsConfig{Debounce: time.Second, MinTurn: 10}}
	config.ApplyDefaults(cfg)
	if cfg.Turns.Debounce != time.Second {
		t.Errorf("debounce: got %s, want 1s", cfg.Turns.Debounce)
	}
	if cfg.Turns.MinTurn != 10 {
		t.Errorf("min_turn: got %d, want 10", cfg.Turns.MinTurn)
	}
}

func TestLoadFromReader_ExpandsEnv(t *testing.T) {
	t.Setenv("PB_TEST_OPENAI_KEY", "sk-from-env")
	t.Setenv("PB_TEST_DSN", "postgres://env/db")

	yaml := `
providers:
  realtime:
    name: openai-realtime
    api_key: ${PB_TEST_OPENAI_KEY}
storage:
  postgres_dsn: $PB_TEST_DSN
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Providers.Realtime.APIKey != "sk-from-env" {
		t.Errorf("api_key: got %q, want %q", cfg.Providers.Realtime.APIKey, "sk-from-env")
	}
	if cfg.Storage.PostgresDSN != "postgres://env/db" {
		t.Errorf("postgres_dsn: got %q", cfg.Storage.PostgresDSN)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	writeFile(t, envPath, "PB_TEST_DOTENV=from-file\nPB_TEST_PRESET=from-file\n")
	t.Setenv("PB_TEST_PRESET", "from-process")
	t.Setenv("PB_TEST_DOTENV", "")
	os.Unsetenv("PB_TEST_DOTENV")

	if err := config.LoadDotEnv(filepath.Join(dir, "missing.env"), envPath); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("PB_TEST_DOTENV"); got != "from-file" {
		t.Errorf("PB_TEST_DOTENV: got %q, want %q", got, "from-file")
	}
	if got := os.Getenv("PB_TEST_PRESET"); got != "from-process" {
		t.Errorf("PB_TEST_PRESET should not be overridden, got %q", got)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected a not-exist error, got %v", err)
	}
}

func TestValidProviderNames(t *testing.T) {
	t.Parallel()
	for _, kind := range []string{"realtime", "transcriber", "llm"} {
		if len(config.ValidProviderNames[kind]) == 0 {
			t.Errorf("ValidProviderNames[%q] is empty", kind)
		}
	}
}
