// Package app wires all Hearsay subsystems into a running application.
//
// The App struct owns the full lifecycle: New connects the meeting archive,
// builds the answer orchestrator, and assembles the session manager; Shutdown
// tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithMeetingStore, WithMetrics). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hearsay-live/hearsay/internal/answer"
	"github.com/hearsay-live/hearsay/internal/config"
	"github.com/hearsay-live/hearsay/internal/observe"
	"github.com/hearsay-live/hearsay/pkg/audio"
	"github.com/hearsay-live/hearsay/pkg/memory"
	"github.com/hearsay-live/hearsay/pkg/memory/postgres"
	"github.com/hearsay-live/hearsay/pkg/provider/llm"
	"github.com/hearsay-live/hearsay/pkg/provider/stt"
	"github.com/hearsay-live/hearsay/pkg/provider/vad"
)

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured; the pipeline then runs in a degraded mode.
// Populated by main.go via the config registry.
type Providers struct {
	LLM   llm.Provider
	STT   stt.Transcriber
	VAD   vad.Detector
	Audio audio.Platform

	// System is the default capture adapter, registered under
	// [audio.KindSystem]. Sessions whose platform has no adapter fall back
	// to it.
	System audio.Platform
}

// App owns all subsystem lifetimes for the Hearsay meeting assistant.
type App struct {
	cfg       *config.Config
	providers *Providers

	store   memory.MeetingStore
	manager *SessionManager
	metrics *observe.Metrics

	// closers are called in reverse order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithMeetingStore injects a meeting archive instead of creating one from config.
func WithMeetingStore(s memory.MeetingStore) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics injects a metrics sink instead of using the process default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option functions
// to inject test doubles for any subsystem.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	a.manager = NewSessionManager(SessionManagerConfig{
		Platforms:   a.buildPlatforms(),
		VAD:         providers.VAD,
		Transcriber: providers.STT,
		Generator:   a.buildGenerator(),
		Store:       a.store,
		Pipeline:    cfg.Pipeline,
		Metrics:     a.metrics,
	})

	return a, nil
}

// Manager returns the session manager. The HTTP layer drives sessions
// through it.
func (a *App) Manager() *SessionManager {
	return a.manager
}

// Store returns the meeting archive, or nil when archiving is disabled.
func (a *App) Store() memory.MeetingStore {
	return a.store
}

// Shutdown stops all sessions and releases resources. Safe to call more
// than once; only the first call does work.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	a.stopOnce.Do(func() {
		a.manager.StopAll(ctx)
		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := a.closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

// initStore connects the PostgreSQL meeting archive, unless one was injected
// or the DSN is absent. A missing DSN is a valid degraded mode: sessions run
// without durable transcripts.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}

	dsn := a.cfg.Memory.PostgresDSN
	if dsn == "" {
		slog.Warn("no postgres_dsn configured, meeting archive disabled")
		return nil
	}

	store, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		return err
	}
	a.store = store
	a.closers = append(a.closers, func() error {
		store.Close()
		return nil
	})
	return nil
}

// buildPlatforms registers the configured audio adapters. The Discord
// adapter is the only conferencing platform wired so far; kinds without an
// adapter fall back through the session manager to the system capture source.
func (a *App) buildPlatforms() *audio.Registry {
	reg := audio.NewRegistry()
	if a.providers.Audio != nil {
		reg.Register(audio.KindDiscord, a.providers.Audio)
	}
	if a.providers.System != nil {
		reg.Register(audio.KindSystem, a.providers.System)
	}
	return reg
}

// buildGenerator creates the answer orchestrator from the pipeline config.
// A nil LLM provider is fine; the orchestrator then serves templated answers.
func (a *App) buildGenerator() *answer.Orchestrator {
	opts := []answer.Option{answer.WithMetrics(a.metrics)}
	if n := a.cfg.Pipeline.MaxAnswerTokens; n > 0 {
		opts = append(opts, answer.WithMaxTokens(n))
	}
	if t := a.cfg.Pipeline.Temperature; t > 0 {
		opts = append(opts, answer.WithTemperature(t))
	}
	return answer.New(a.providers.LLM, opts...)
}
