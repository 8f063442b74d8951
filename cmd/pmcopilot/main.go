package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	cfgPath string
	dbPath  string
	verbose bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pmcopilot",
		Short: "Predictive maintenance copilot",
		Long: `pmcopilot answers questions about machine health using the latest
diagnostics and keeps a history of every conversation.

Start chatting:       pmcopilot chat --user 7
Fleet overview:       pmcopilot overview
Apply retention:      pmcopilot janitor`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (default ~/.pmcopilot/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "conversation database path (overrides database.path)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(conversationsCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(deleteCmd())
	rootCmd.AddCommand(renameCmd())
	rootCmd.AddCommand(overviewCmd())
	rootCmd.AddCommand(recommendCmd())
	rootCmd.AddCommand(machineCmd())
	rootCmd.AddCommand(janitorCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
