package main

import (
	"github.com/spf13/cobra"

	"github.com/dhamidi/pmcopilot"
)

func janitorCmd() *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "janitor",
		Short: "Delete conversations older than retention.conversations",
		Long: `janitor applies the retention policy on retention.schedule until
interrupted. With --once it sweeps a single time and exits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			store, err := a.openHistory()
			if err != nil {
				return err
			}
			janitor, err := pmcopilot.NewJanitor(store, nil, pmcopilot.JanitorConfig{
				Schedule:           a.cfg.Retention.Schedule,
				ConversationMaxAge: a.cfg.Retention.Conversations,
			}, a.logger)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if err := janitor.RunOnce(ctx); err != nil || once {
				return err
			}
			a.logger.Info().Str("schedule", a.cfg.Retention.Schedule).Msg("janitor running")
			janitor.Run(ctx)
			return nil
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "sweep once and exit")
	return cmd
}
