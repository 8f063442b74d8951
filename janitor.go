package pmcopilot

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// ConversationSweeper deletes conversations idle since before cutoff.
type ConversationSweeper interface {
	SweepOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// SessionSweeper evicts anonymous sessions idle for longer than maxAge.
type SessionSweeper interface {
	Sweep(maxAge time.Duration) int
}

type JanitorConfig struct {
	// Schedule is a cron spec such as "@every 1h".
	Schedule           string
	ConversationMaxAge time.Duration
	SessionMaxAge      time.Duration
}

// Janitor applies retention on a schedule. A zero max age disables that sweep.
type Janitor struct {
	cron          *cron.Cron
	conversations ConversationSweeper
	sessions      SessionSweeper
	config        JanitorConfig
	logger        zerolog.Logger
	now           func() time.Time
}

func NewJanitor(conversations ConversationSweeper, sessions SessionSweeper, config JanitorConfig, logger zerolog.Logger) (*Janitor, error) {
	j := &Janitor{
		cron:          cron.New(),
		conversations: conversations,
		sessions:      sessions,
		config:        config,
		logger:        logger.With().Str("component", "janitor").Logger(),
		now:           time.Now,
	}
	_, err := j.cron.AddFunc(config.Schedule, func() {
		if err := j.RunOnce(context.Background()); err != nil {
			j.logger.Error().Err(err).Msg("retention sweep failed")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid retention schedule %q: %w", config.Schedule, err)
	}
	return j, nil
}

// RunOnce performs one sweep immediately.
func (j *Janitor) RunOnce(ctx context.Context) error {
	if j.sessions != nil && j.config.SessionMaxAge > 0 {
		n := j.sessions.Sweep(j.config.SessionMaxAge)
		j.logger.Debug().Int("sessions", n).Msg("swept idle sessions")
	}
	if j.conversations != nil && j.config.ConversationMaxAge > 0 {
		cutoff := j.now().Add(-j.config.ConversationMaxAge)
		n, err := j.conversations.SweepOlderThan(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("sweep conversations: %w", err)
		}
		j.logger.Info().Int64("conversations", n).Time("cutoff", cutoff).Msg("swept old conversations")
	}
	return nil
}

// Run sweeps on the schedule until ctx ends.
func (j *Janitor) Run(ctx context.Context) {
	j.cron.Start()
	<-ctx.Done()
	stopped := j.cron.Stop()
	<-stopped.Done()
}
