package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/dhamidi/pmcopilot"
	"github.com/dhamidi/pmcopilot/briefing"
	"github.com/dhamidi/pmcopilot/config"
	"github.com/dhamidi/pmcopilot/fleet"
	"github.com/dhamidi/pmcopilot/gateway"
	"github.com/dhamidi/pmcopilot/history"
)

// app holds everything a command needs. Fields are opened lazily by the
// open* helpers so fleet-only commands never touch provider credentials.
type app struct {
	cfg      *config.Config
	logger   zerolog.Logger
	registry *prometheus.Registry

	history *history.Store
	fleet   *fleet.SQLiteSource
	service *pmcopilot.Service
}

func loadApp() (*app, error) {
	var (
		cfg *config.Config
		err error
	)
	if cfgPath != "" {
		cfg, err = config.LoadFromPath(afero.NewOsFs(), cfgPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	return &app{
		cfg:      cfg,
		logger:   newLogger(cfg.Log.Level),
		registry: prometheus.NewRegistry(),
	}, nil
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	if verbose {
		lvl = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(lvl).With().Timestamp().Logger()
}

func (a *app) openHistory() (*history.Store, error) {
	if a.history != nil {
		return a.history, nil
	}
	store, err := history.Open(a.cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	a.history = store
	return store, nil
}

func (a *app) openFleet() (*fleet.SQLiteSource, error) {
	if a.fleet != nil {
		return a.fleet, nil
	}
	src, err := fleet.OpenSQLite(a.cfg.Database.FleetPath)
	if err != nil {
		return nil, err
	}
	a.fleet = src
	return src, nil
}

func (a *app) openService(ctx context.Context) (*pmcopilot.Service, error) {
	if a.service != nil {
		return a.service, nil
	}
	store, err := a.openHistory()
	if err != nil {
		return nil, err
	}
	src, err := a.openFleet()
	if err != nil {
		return nil, err
	}
	gw, err := newGateway(ctx, a.cfg, a.logger, a.registry)
	if err != nil {
		return nil, err
	}
	if !gw.Configured() {
		a.logger.Warn().Msg("no provider has an API key; set GEMINI_API_KEY or GROQ_API_KEY")
	}
	a.service = pmcopilot.NewService(store, briefing.NewSummarizer(src), gw,
		pmcopilot.WithLogger(a.logger),
		pmcopilot.WithMetrics(a.registry),
	)
	return a.service, nil
}

// serveMetrics exposes the registry on metrics.addr until ctx ends.
func (a *app) serveMetrics(ctx context.Context) {
	addr := a.cfg.Metrics.Addr
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	go func() {
		a.logger.Info().Str("addr", addr).Msg("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

func (a *app) Close() {
	if a.history != nil {
		a.history.Close()
	}
	if a.fleet != nil {
		a.fleet.Close()
	}
}

func newGateway(ctx context.Context, cfg *config.Config, logger zerolog.Logger, reg prometheus.Registerer) (*gateway.Gateway, error) {
	primary, err := newTier(ctx, cfg.Providers.Primary)
	if err != nil {
		return nil, fmt.Errorf("primary provider: %w", err)
	}
	secondary, err := newTier(ctx, cfg.Providers.Secondary)
	if err != nil {
		return nil, fmt.Errorf("secondary provider: %w", err)
	}

	opts := []gateway.Option{
		gateway.WithLogger(logger),
		gateway.WithMetrics(gateway.NewMetrics(reg)),
	}
	if b := cfg.Gateway.Breaker; b.Enabled {
		settings := gateway.DefaultBreakerSettings()
		settings.MinRequests = b.MinRequests
		settings.FailureRatio = b.FailureRatio
		if b.OpenTimeout > 0 {
			settings.OpenTimeout = b.OpenTimeout
		}
		opts = append(opts, gateway.WithBreaker(settings))
	}

	return gateway.New(gateway.Config{
		Primary:        primary,
		Secondary:      secondary,
		AttemptTimeout: cfg.Gateway.AttemptTimeout,
	}, opts...), nil
}

// newTier returns nil for a tier without credentials.
func newTier(ctx context.Context, pc config.ProviderConfig) (*gateway.Tier, error) {
	if !pc.Enabled() {
		return nil, nil
	}
	var provider gateway.Provider
	switch pc.Kind {
	case config.ProviderGemini:
		g, err := gateway.NewGemini(ctx, pc.APIKey, pc.Name, int32(pc.MaxOutputTokens))
		if err != nil {
			return nil, err
		}
		provider = g
	case config.ProviderOpenAI:
		provider = gateway.NewOpenAI(pc.Name, pc.Endpoint, pc.APIKey, pc.MaxOutputTokens)
	default:
		return nil, fmt.Errorf("unknown provider kind %q", pc.Kind)
	}
	return &gateway.Tier{Provider: provider, Models: pc.Models}, nil
}
