// Package gateway generates text through an ordered chain of providers and
// models, falling back on failure.
package gateway

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Provider is an external text-generation service.
type Provider interface {
	// Name labels answers produced by this provider.
	Name() string
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// Tier is a provider together with the models to try, in priority order.
type Tier struct {
	Provider Provider
	Models   []string
}

func (t *Tier) usable() bool {
	return t != nil && t.Provider != nil && len(t.Models) > 0
}

// Config is the fixed provider setup of a Gateway. A nil tier is skipped.
type Config struct {
	Primary   *Tier
	Secondary *Tier
	// AttemptTimeout bounds each model attempt; zero means no bound.
	AttemptTimeout time.Duration
}

// Result is a successful generation.
type Result struct {
	Text     string
	Provider string
	Model    string
}

// Source is the provenance label stored with the answer.
func (r *Result) Source() string {
	return r.Provider
}

// Gateway tries every model of the primary tier, then every model of the
// secondary tier, until one returns non-blank text.
type Gateway struct {
	tiers    []*Tier
	timeout  time.Duration
	logger   zerolog.Logger
	metrics  *Metrics
	breakers *breakers
	breaker  *BreakerSettings
}

type Option func(*Gateway)

func WithLogger(logger zerolog.Logger) Option {
	return func(g *Gateway) { g.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// WithBreaker guards every provider/model pair with a circuit breaker.
func WithBreaker(settings BreakerSettings) Option {
	return func(g *Gateway) { g.breaker = &settings }
}

// New creates a Gateway from cfg.
func New(cfg Config, opts ...Option) *Gateway {
	g := &Gateway{
		timeout: cfg.AttemptTimeout,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With().Str("component", "gateway").Logger()
	if g.breaker != nil {
		g.breakers = newBreakers(*g.breaker, g.logger)
	}

	for _, tier := range []*Tier{cfg.Primary, cfg.Secondary} {
		if tier.usable() {
			g.tiers = append(g.tiers, tier)
		}
	}
	return g
}

// Configured reports whether any tier can be attempted.
func (g *Gateway) Configured() bool {
	return len(g.tiers) > 0
}

// Generate returns the first non-blank answer. Individual failures are
// logged and only surface, as an *ExhaustedError, once every model failed.
// If ctx ends, its error is returned without trying further models.
func (g *Gateway) Generate(ctx context.Context, prompt string) (*Result, error) {
	if !g.Configured() {
		return nil, ErrUnconfigured
	}

	var attempts []*AttemptError
	for _, tier := range g.tiers {
		name := tier.Provider.Name()
		for _, model := range tier.Models {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			text, err := g.attempt(ctx, tier.Provider, model, prompt)
			if err == nil {
				g.logger.Debug().Str("provider", name).Str("model", model).Int("failed_attempts", len(attempts)).Msg("generated")
				return &Result{Text: text, Provider: name, Model: model}, nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}

			g.logger.Warn().Err(err.Err).Str("provider", name).Str("model", model).Str("kind", string(err.Kind)).Msg("model attempt failed")
			attempts = append(attempts, err)
		}
	}
	return nil, &ExhaustedError{Attempts: attempts}
}

func (g *Gateway) attempt(ctx context.Context, p Provider, model, prompt string) (string, *AttemptError) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := g.breakers.run(p.Name(), model, func() (string, error) {
		text, err := p.Generate(ctx, model, prompt)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(text) == "" {
			return "", errEmptyResponse
		}
		return text, nil
	})
	kind := Classify(err)
	g.metrics.observe(p.Name(), model, kind, time.Since(start))

	if err != nil {
		return "", &AttemptError{Provider: p.Name(), Model: model, Kind: kind, Err: err}
	}
	return text, nil
}
