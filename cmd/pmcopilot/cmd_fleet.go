package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dhamidi/pmcopilot/briefing"
	"github.com/dhamidi/pmcopilot/fleet"
)

// fleetReport builds a read-only command that prints one briefing report.
func fleetReport(use, short string, args cobra.PositionalArgs, report func(ctx context.Context, src *fleet.SQLiteSource, args []string) (string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			src, err := a.openFleet()
			if err != nil {
				return err
			}
			text, err := report(cmd.Context(), src, args)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
}

func overviewCmd() *cobra.Command {
	return fleetReport("overview", "Count machines by risk band", cobra.NoArgs,
		func(ctx context.Context, src *fleet.SQLiteSource, _ []string) (string, error) {
			return briefing.Overview(ctx, src)
		})
}

func recommendCmd() *cobra.Command {
	return fleetReport("recommend", "List high-risk machines grouped by predicted failure", cobra.NoArgs,
		func(ctx context.Context, src *fleet.SQLiteSource, _ []string) (string, error) {
			return briefing.Recommendations(ctx, src)
		})
}

func machineCmd() *cobra.Command {
	return fleetReport("machine <id>", "Show the latest diagnostic and sensor readings of a machine", cobra.ExactArgs(1),
		func(ctx context.Context, src *fleet.SQLiteSource, args []string) (string, error) {
			return briefing.MachineDetail(ctx, src, args[0])
		})
}
