package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// BreakerSettings configures the optional per provider/model circuit breaker.
// A tripped breaker fails its model immediately so the gateway moves on to
// the next one without waiting for a timeout.
type BreakerSettings struct {
	// MinRequests is the number of calls in the current interval before the
	// failure ratio is evaluated.
	MinRequests  uint32
	FailureRatio float64
	// OpenTimeout is how long a tripped breaker stays open.
	OpenTimeout time.Duration
	// Interval resets the closed-state counts; zero never resets them.
	Interval time.Duration
}

// DefaultBreakerSettings returns conservative breaker settings.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MinRequests:  5,
		FailureRatio: 0.8,
		OpenTimeout:  60 * time.Second,
		Interval:     5 * time.Minute,
	}
}

type breakers struct {
	settings BreakerSettings
	logger   zerolog.Logger

	mu    sync.Mutex
	byKey map[string]*gobreaker.CircuitBreaker
}

func newBreakers(settings BreakerSettings, logger zerolog.Logger) *breakers {
	return &breakers{settings: settings, logger: logger, byKey: make(map[string]*gobreaker.CircuitBreaker)}
}

func (b *breakers) get(provider, model string) *gobreaker.CircuitBreaker {
	key := provider + "/" + model

	b.mu.Lock()
	defer b.mu.Unlock()
	if cb, ok := b.byKey[key]; ok {
		return cb
	}

	settings := b.settings
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        key,
		MaxRequests: 1,
		Interval:    settings.Interval,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < settings.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= settings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			b.logger.Info().Str("breaker", name).Stringer("from", from).Stringer("to", to).Msg("circuit breaker state changed")
		},
		// The caller going away says nothing about the model's health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	b.byKey[key] = cb
	return cb
}

func (b *breakers) run(provider, model string, call func() (string, error)) (string, error) {
	if b == nil {
		return call()
	}
	out, err := b.get(provider, model).Execute(func() (interface{}, error) {
		return call()
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}
