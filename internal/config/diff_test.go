package config_test

import (
	"testing"
	"time"

	"github.com/MrWong99/phonebridge/internal/config"
)

func baseConfig() *config.Config {
	cfg := &config.Config{
		Agent: config.AgentConfig{Voice: "alloy", Instructions: "Be brief."},
		Providers: config.ProvidersConfig{
			Transcriber: config.ProviderEntry{Name: "whisper", Options: map[string]any{"rate": 16000}},
		},
		Transcript: config.TranscriptConfig{Boilerplate: []string{"thanks for watching"}},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func TestDiff(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   config.ConfigDiff
	}{
		{
			name:   "no changes",
			mutate: func(*config.Config) {},
		},
		{
			name:   "log level",
			mutate: func(c *config.Config) { c.Server.LogLevel = config.LogDebug },
			want:   config.ConfigDiff{LogLevelChanged: true, NewLogLevel: config.LogDebug},
		},
		{
			name:   "agent instructions",
			mutate: func(c *config.Config) { c.Agent.Instructions = "Be verbose." },
			want:   config.ConfigDiff{AgentChanged: true},
		},
		{
			name:   "debounce",
			mutate: func(c *config.Config) { c.Turns.Debounce = time.Second },
			want:   config.ConfigDiff{TurnsChanged: true},
		},
		{
			name:   "boilerplate",
			mutate: func(c *config.Config) { c.Transcript.Boilerplate = append(c.Transcript.Boilerplate, "subscribe") },
			want:   config.ConfigDiff{TranscriptChanged: true},
		},
		{
			name:   "provider option",
			mutate: func(c *config.Config) { c.Providers.Transcriber.Options = map[string]any{"rate": 8000} },
			want:   config.ConfigDiff{RestartRequired: true},
		},
		{
			name:   "storage",
			mutate: func(c *config.Config) { c.Storage.PostgresDSN = "postgres://other" },
			want:   config.ConfigDiff{RestartRequired: true},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			old := baseConfig()
			next := baseConfig()
			tc.mutate(next)

			got := config.Diff(old, next)
			if got != tc.want {
				t.Errorf("Diff: got %+v, want %+v", got, tc.want)
			}
			wantAny := tc.want.LogLevelChanged || tc.want.AgentChanged || tc.want.TurnsChanged || tc.want.TranscriptChanged
			if got.Any() != wantAny {
				t.Errorf("Any: got %v, want %v", got.Any(), wantAny)
			}
		})
	}
}
