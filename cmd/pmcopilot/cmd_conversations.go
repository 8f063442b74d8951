package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dhamidi/pmcopilot"
	"github.com/dhamidi/pmcopilot/history"
)

func conversationsCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"ls"},
		Short:   "List the conversations of a user, most recent first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			svc, err := a.openService(cmd.Context())
			if err != nil {
				return err
			}
			convs, err := svc.GetUserConversations(cmd.Context(), userID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(convs) == 0 {
				fmt.Fprintln(out, "No conversations found.")
				return nil
			}
			fmt.Fprintln(out, "Conversations:")
			for _, c := range convs {
				fmt.Fprintf(out, "  ID: %s, Title: %s, Updated: %s, Messages: %d, Last Message: %s\n",
					c.ID, c.Title, c.UpdatedAt.Format(time.RFC3339), c.MessageCount, preview(c.LastMessage, 60))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", defaultUser(), "user id")
	return cmd
}

func historyCmd() *cobra.Command {
	var (
		userID string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "history <conversation-id>",
		Short: "Print the messages of a conversation, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			svc, err := a.openService(cmd.Context())
			if err != nil {
				return err
			}
			msgs, err := svc.GetHistory(cmd.Context(), args[0], userID, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Conversation ID: %s\n", args[0])
			fmt.Fprintf(out, "Messages (%d):\n", len(msgs))
			for i, m := range msgs {
				fmt.Fprintf(out, "  [%d] %s %s", i, m.CreatedAt.Format(time.RFC3339), m.Role)
				if m.Source != "" {
					fmt.Fprintf(out, " (%s)", m.Source)
				}
				fmt.Fprintf(out, "\n      %s\n", strings.ReplaceAll(m.Text, "\n", "\n      "))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", defaultUser(), "user id that owns the conversation")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of messages (default 50)")
	return cmd
}

func deleteCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "delete <conversation-id>",
		Short: "Delete a conversation and its messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			svc, err := a.openService(cmd.Context())
			if err != nil {
				return err
			}
			deleted, err := svc.DeleteConversation(cmd.Context(), args[0], userID)
			if err != nil {
				return err
			}
			if !deleted {
				fmt.Fprintf(cmd.OutOrStdout(), "Conversation %s was already gone.\n", args[0])
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Conversation %s deleted.\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", defaultUser(), "user id that owns the conversation")
	return cmd
}

func renameCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "rename <conversation-id> <title...>",
		Short: "Change the title of a conversation",
		Args:  cobra.MinimumNArgs(2),
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
			ctx := cmd.Context()
			if err := store.VerifyOwnership(ctx, args[0], userID); err != nil {
				if errors.Is(err, history.ErrUnauthorized) {
					return pmcopilot.ErrUnauthorized
				}
				return err
			}
			title := preview(strings.Join(args[1:], " "), pmcopilot.MaxTitleLength)
			if err := store.UpdateTitle(ctx, args[0], title); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Conversation %s renamed to %q.\n", args[0], title)
			return nil
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", defaultUser(), "user id that owns the conversation")
	return cmd
}

// preview shortens s to a single line of at most n runes.
func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n-3]) + "..."
	}
	return s
}
