// Package app wires the phonebridge subsystems together: the call registry,
// record store, notification sinks, telemetry and the HTTP server that hosts
// the media stream endpoint and the admin API.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/semaphore"

	"github.com/MrWong99/phonebridge/internal/config"
	"github.com/MrWong99/phonebridge/internal/health"
	"github.com/MrWong99/phonebridge/internal/media"
	"github.com/MrWong99/phonebridge/internal/notify"
	"github.com/MrWong99/phonebridge/internal/observe"
	"github.com/MrWong99/phonebridge/internal/session"
	"github.com/MrWong99/phonebridge/internal/store"
	"github.com/MrWong99/phonebridge/internal/store/postgres"
	"github.com/MrWong99/phonebridge/internal/transcript"
	"github.com/MrWong99/phonebridge/pkg/provider/llm"
	"github.com/MrWong99/phonebridge/pkg/provider/s2s"
	"github.com/MrWong99/phonebridge/pkg/provider/stt"
)

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	Realtime    s2s.Provider
	Transcriber stt.Transcriber
	LLM         llm.Provider
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       atomic.Pointer[config.Config]
	providers *Providers

	// Subsystems initialised in New and torn down in Shutdown.
	store          store.Store
	guard          *store.Guard
	notifier       notify.Sink
	summariser     session.Summariser
	clock          clock.Clock
	metrics        *observe.Metrics
	metricsHandler http.Handler
	logLevel       *slog.LevelVar
	sessions       *SessionManager
	health         *health.Handler
	handler        http.Handler
	server         *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a record store instead of creating one from config.
func WithStore(s store.Store) Option {
	return func(a *App) { a.store = s }
}

// WithNotifier injects a notification sink instead of building one from config.
func WithNotifier(n notify.Sink) Option {
	return func(a *App) { a.notifier = n }
}

// WithSummariser injects a summariser instead of wrapping providers.LLM.
func WithSummariser(s session.Summariser) Option {
	return func(a *App) { a.summariser = s }
}

// WithClock sets the clock every call runs on.
func WithClock(c clock.Clock) Option {
	return func(a *App) { a.clock = c }
}

// WithMetrics sets the metric instruments. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler mounts h at GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithLogLevel lets configuration reloads change the log level.
func WithLogLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = v }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option functions
// to inject test doubles for any subsystem.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{providers: providers}
	c := *cfg
	config.ApplyDefaults(&c)
	a.cfg.Store(&c)
	for _, o := range opts {
		o(a)
	}
	if a.clock == nil {
		a.clock = clock.New()
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Record store ──────────────────────────────────────────────────
	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}
	a.guard = store.NewGuard(a.store,
		store.WithGuardClock(a.clock),
		store.WithGuardLogger(slog.Default().With("component", "store")),
	)

	// ── 2. Notification sinks ────────────────────────────────────────────
	if err := a.initNotifier(); err != nil {
		return nil, fmt.Errorf("app: init notifier: %w", err)
	}

	// ── 3. Summariser ────────────────────────────────────────────────────
	if a.summariser == nil && providers.LLM != nil {
		a.summariser = session.NewLLMSummariser(providers.LLM)
	}

	// ── 4. Call registry ─────────────────────────────────────────────────
	a.initSessions(ctx)

	// ── 5. HTTP ──────────────────────────────────────────────────────────
	a.initHTTP()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	dsn := a.config().Storage.PostgresDSN
	if dsn == "" {
		slog.Warn("storage.postgres_dsn not set; call records are kept in memory only")
		a.store = store.NewMemStore()
		return nil
	}
	pg, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		return err
	}
	a.store = pg
	a.closers = append(a.closers, func() error {
		pg.Close()
		return nil
	})
	return nil
}

func (a *App) initNotifier() error {
	if a.notifier != nil {
		return nil
	}
	ncfg := a.config().Notify

	var sinks notify.Multi
	if ncfg.Log {
		sinks = append(sinks, notify.Log{Logger: slog.Default().With("component", "notify")})
	}
	if ncfg.Discord.Token != "" {
		d, err := notify.NewDiscord(ncfg.Discord.Token, ncfg.Discord.ChannelID)
		if err != nil {
			return err
		}
		sinks = append(sinks, d)
	}
	if ncfg.Slack.WebhookURL != "" {
		s, err := notify.NewSlack(ncfg.Slack.WebhookURL)
		if err != nil {
			return err
		}
		sinks = append(sinks, s)
	}

	switch len(sinks) {
	case 0:
		a.notifier = notify.Discard{}
	case 1:
		a.notifier = sinks[0]
	default:
		a.notifier = sinks
	}
	return nil
}

func (a *App) initSessions(ctx context.Context) {
	var limiter *semaphore.Weighted
	if n := a.config().Transcript.MaxConcurrent; n > 0 {
		limiter = semaphore.NewWeighted(int64(n))
	}

	var summariser session.Summariser
	if a.summariser != nil {
		summariser = summaryGate{app: a, next: a.summariser}
	}

	deps := session.Deps{
		Engine:      a.providers.Realtime,
		Transcriber: a.providers.Transcriber,
		Summariser:  summariser,
		Notifier:    a.notifier,
		Store:       a.guard,
		Clock:       a.clock,
		Metrics:     a.metrics,
		Limiter:     limiter,
	}
	a.sessions = NewSessionManager(ctx, SessionManagerConfig{
		Config: func() session.Config { return SessionConfig(a.config()) },
		Deps:   deps,
	})
}

func (a *App) initHTTP() {
	cfg := a.config()

	checkers := []health.Checker{health.Ping("store", a.guard)}
	a.health = health.New(checkers...)

	mux := http.NewServeMux()
	mux.Handle("GET "+cfg.Server.MediaPath, media.NewHandler(a.sessions,
		media.WithLogger(slog.Default().With("component", "media")),
	))
	a.health.Register(mux)
	if a.metricsHandler != nil {
		mux.Handle("GET /metrics", a.metricsHandler)
	}
	a.registerAPI(mux)

	a.handler = observe.Middleware(a.metrics)(mux)
	a.server = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Handler returns the root HTTP handler with telemetry middleware applied.
func (a *App) Handler() http.Handler { return a.handler }

// Sessions returns the live call registry.
func (a *App) Sessions() *SessionManager { return a.sessions }

// Store returns the backend record store without the degradation guard.
func (a *App) Store() store.Store { return a.store }

func (a *App) config() *config.Config { return a.cfg.Load() }

// ─── Configuration reload ────────────────────────────────────────────────────

// ApplyConfig installs a reloaded configuration. Turn, transcript and agent
// tuning apply to calls started afterwards; calls in progress keep their
// settings. Fields that need a restart are logged and otherwise ignored.
func (a *App) ApplyConfig(next *config.Config) {
	old := a.cfg.Load()
	d := config.Diff(old, next)

	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(ParseLogLevel(d.NewLogLevel))
	}
	if d.RestartRequired {
		slog.Warn("config reload: provider, storage, notification or listener changes need a restart")
	}
	if !d.Any() {
		return
	}

	// Keep the restart-only sections of the running config.
	merged := *next
	merged.Server.ListenAddr = old.Server.ListenAddr
	merged.Server.MediaPath = old.Server.MediaPath
	merged.Providers = old.Providers
	merged.Notify = old.Notify
	merged.Storage = old.Storage
	merged.Transcript.MaxConcurrent = old.Transcript.MaxConcurrent
	a.cfg.Store(&merged)

	slog.Info("config reload applied",
		"log_level", d.LogLevelChanged,
		"agent", d.AgentChanged,
		"turns", d.TurnsChanged,
		"transcript", d.TranscriptChanged,
	)
}

// ParseLogLevel maps a config log level to a slog level.
func ParseLogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SessionConfig derives per-call tuning from cfg.
func SessionConfig(cfg *config.Config) session.Config {
	filter := transcript.DefaultFilter()
	if v := cfg.Transcript.NoSpeechThreshold; v > 0 {
		filter.NoSpeechThreshold = v
	}
	if v := cfg.Transcript.LogprobFloor; v < 0 {
		filter.LogprobFloor = v
	}
	if v := cfg.Transcript.MinSegment; v > 0 {
		filter.MinDuration = v
	}

	mode, err := transcript.ParseMode(string(cfg.Transcript.Mode))
	if err != nil {
		slog.Warn("invalid transcript mode, using hybrid", "err", err)
		mode = transcript.ModeHybrid
	}

	var cleanerOpts []transcript.CleanerOption
	if len(cfg.Transcript.Boilerplate) > 0 {
		cleanerOpts = append(cleanerOpts, transcript.WithBoilerplate(cfg.Transcript.Boilerplate))
	}

	return session.Config{
		Debounce:           cfg.Turns.Debounce,
		MinTurnBytes:       cfg.Turns.MinTurn,
		SampleRate:         cfg.Turns.SampleRate,
		Language:           cfg.Transcript.Language,
		Mode:               mode,
		FlushChars:         cfg.Transcript.FlushChars,
		TurnTimeout:        cfg.Transcript.TurnTimeout,
		FinalizeTimeout:    cfg.Transcript.FinalizeTimeout,
		NotifyTimeout:      cfg.Notify.Timeout,
		EngineWriteTimeout: cfg.Agent.Connect.WriteTimeout,
		Filter:             filter,
		Cleaner:            transcript.NewCleaner(cleanerOpts...),
		Engine: s2s.SessionConfig{
			Voice:        cfg.Agent.Voice,
			Instructions: cfg.Agent.Instructions,
			ServerVAD:    cfg.Agent.ServerVAD,
		},
		OpeningTemplate: cfg.Agent.OpeningTemplate,
		Connect: session.ConnectPolicy{
			MaxAttempts:   cfg.Agent.Connect.Attempts,
			Backoff:       cfg.Agent.Connect.Backoff,
			MaxBackoff:    cfg.Agent.Connect.MaxBackoff,
			MaxReconnects: cfg.Agent.Connect.Reconnects,
		},
	}
}

// summaryGate skips summaries while agent.summary is disabled.
type summaryGate struct {
	app  *App
	next session.Summariser
}

func (g summaryGate) Summarise(ctx context.Context, entries []transcript.Entry) (string, error) {
	if !g.app.config().Agent.Summary {
		return "", nil
	}
	return g.next.Summarise(ctx, entries)
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP on the configured listen address and blocks until ctx is
// cancelled or the listener fails.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		return fmt.Errorf("app: listen %s: %w", a.server.Addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.Serve(ln)
	}()

	slog.Info("app running", "addr", ln.Addr().String(), "media_path", a.config().Server.MediaPath)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown drains the server: readiness fails, new calls are refused, live
// calls are ended and their end-of-call pipelines awaited, then the HTTP
// server and remaining subsystems are closed. It respects the context
// deadline: if ctx expires, remaining steps are skipped and the context error
// is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "live_calls", a.sessions.Len(), "closers", len(a.closers))
		a.health.SetDraining(true)

		if err := a.sessions.Shutdown(ctx); err != nil {
			shutdownErr = err
		}
		if err := a.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Warn("http shutdown error", "err", err)
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
