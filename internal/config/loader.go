package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr      = ":8080"
	DefaultMediaPath       = "/media"
	DefaultShutdownTimeout = 90 * time.Second
	DefaultDebounce        = 600 * time.Millisecond
	DefaultMinTurn         = 2000
	DefaultSampleRate      = 8000
	DefaultFlushChars      = 200
	DefaultTurnTimeout     = 10 * time.Second
	DefaultFinalizeTimeout = 60 * time.Second
	DefaultNotifyTimeout   = 10 * time.Second
	DefaultMaxConcurrent   = 8
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"realtime":    {"openai-realtime"},
	"transcriber": {"openai", "whisper"},
	"llm":         {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
}

// LoadDotEnv loads KEY=value pairs from the given .env files into the process
// environment without overriding variables that are already set. Missing
// files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: load env file %q: %w", p, err)
		}
	}
	return nil
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands ${VAR} references
// against the environment, applies defaults and validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	return parse(raw)
}

func parse(raw []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(raw))

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero fields of cfg with the built-in defaults.
func ApplyDefaults(cfg *Config) {
	setDefault(&cfg.Server.ListenAddr, DefaultListenAddr)
	setDefault(&cfg.Server.LogLevel, LogInfo)
	setDefault(&cfg.Server.MediaPath, DefaultMediaPath)
	setDefault(&cfg.Server.ShutdownTimeout, DefaultShutdownTimeout)

	setDefault(&cfg.Turns.Debounce, DefaultDebounce)
	setDefault(&cfg.Turns.MinTurn, DefaultMinTurn)
	setDefault(&cfg.Turns.SampleRate, DefaultSampleRate)

	setDefault(&cfg.Transcript.Mode, ModeHybrid)
	setDefault(&cfg.Transcript.FlushChars, DefaultFlushChars)
	setDefault(&cfg.Transcript.TurnTimeout, DefaultTurnTimeout)
	setDefault(&cfg.Transcript.FinalizeTimeout, DefaultFinalizeTimeout)
	setDefault(&cfg.Transcript.MaxConcurrent, DefaultMaxConcurrent)

	setDefault(&cfg.Notify.Timeout, DefaultNotifyTimeout)
}

func setDefault[T comparable](field *T, value T) {
	var zero T
	if *field == zero {
		*field = value
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if p := cfg.Server.MediaPath; p != "" && p[0] != '/' {
		errs = append(errs, fmt.Errorf("server.media_path %q must start with /", p))
	}

	// Unknown provider names only warn.
	validateProviderName("realtime", cfg.Providers.Realtime.Name)
	validateProviderName("transcriber", cfg.Providers.Transcriber.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)
	for i, fb := range cfg.Providers.TranscriberFallback {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.transcriber_fallback[%d].name is required", i))
			continue
		}
		validateProviderName("transcriber", fb.Name)
	}
	if len(cfg.Providers.TranscriberFallback) > 0 && cfg.Providers.Transcriber.Name == "" {
		errs = append(errs, errors.New("providers.transcriber_fallback requires providers.transcriber"))
	}
	for i, fb := range cfg.Providers.LLMFallback {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.llm_fallback[%d].name is required", i))
			continue
		}
		validateProviderName("llm", fb.Name)
	}
	if len(cfg.Providers.LLMFallback) > 0 && cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm_fallback requires providers.llm"))
	}

	// Provider availability
	if cfg.Providers.Realtime.Name == "" {
		slog.Warn("providers.realtime is not configured; calls will run audio-only")
	}
	if cfg.Providers.Transcriber.Name == "" {
		slog.Warn("providers.transcriber is not configured; transcripts will be unavailable")
	}
	if cfg.Agent.Summary && cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("agent.summary requires providers.llm"))
	}

	// Agent
	if cfg.Agent.Connect.Attempts < 0 || cfg.Agent.Connect.Reconnects < 0 {
		errs = append(errs, errors.New("agent.connect attempts and reconnects must not be negative"))
	}

	// Turns
	if cfg.Turns.Debounce < 0 {
		errs = append(errs, fmt.Errorf("turns.debounce %s must not be negative", cfg.Turns.Debounce))
	}
	if cfg.Turns.MinTurn < 0 {
		errs = append(errs, fmt.Errorf("turns.min_turn %d must not be negative", cfg.Turns.MinTurn))
	}
	if cfg.Turns.SampleRate != 0 && cfg.Turns.SampleRate != 8000 && cfg.Turns.SampleRate != 16000 {
		errs = append(errs, fmt.Errorf("turns.sample_rate %d is invalid; valid values: 8000, 16000", cfg.Turns.SampleRate))
	}

	// Transcript
	if cfg.Transcript.Mode != "" && !cfg.Transcript.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("transcript.mode %q is invalid; valid values: live, post_call, hybrid", cfg.Transcript.Mode))
	}
	if t := cfg.Transcript.NoSpeechThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("transcript.no_speech_threshold %.2f is out of range [0, 1]", t))
	}
	if cfg.Transcript.LogprobFloor > 0 {
		errs = append(errs, fmt.Errorf("transcript.logprob_floor %.2f must not be positive", cfg.Transcript.LogprobFloor))
	}
	if cfg.Transcript.MinSegment < 0 {
		errs = append(errs, fmt.Errorf("transcript.min_segment %.2f must not be negative", cfg.Transcript.MinSegment))
	}

	// Notify
	if d := cfg.Notify.Discord; (d.Token == "") != (d.ChannelID == "") {
		errs = append(errs, errors.New("notify.discord requires both token and channel_id"))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
