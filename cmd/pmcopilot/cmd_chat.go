package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dhamidi/pmcopilot"
	"github.com/dhamidi/pmcopilot/history"
)

type chatOptions struct {
	userID         string
	conversationID string
	continueLatest bool
	anonymous      bool
	plain          bool
}

func chatCmd() *cobra.Command {
	var opts chatOptions
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Ask the copilot; without a message, start an interactive session",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			svc, err := a.openService(ctx)
			if err != nil {
				return err
			}
			a.serveMetrics(ctx)

			if opts.anonymous {
				janitor, err := pmcopilot.NewJanitor(nil, svc.Sessions(), pmcopilot.JanitorConfig{
					Schedule:      a.cfg.Retention.Schedule,
					SessionMaxAge: a.cfg.Retention.Sessions,
				}, a.logger)
				if err != nil {
					return err
				}
				go janitor.Run(ctx)
			}

			if !opts.anonymous && opts.conversationID == "" && opts.continueLatest {
				store, err := a.openHistory()
				if err != nil {
					return err
				}
				latest, err := store.LatestConversationID(ctx, opts.userID)
				switch {
				case errors.Is(err, history.ErrConversationNotFound):
					fmt.Fprintln(os.Stderr, "No previous conversation found. Starting a new one.")
				case err != nil:
					return err
				default:
					opts.conversationID = latest
				}
			}

			s := &chatSession{svc: svc, opts: opts, display: newDisplay(cmd.OutOrStdout(), opts.plain)}
			if len(args) > 0 {
				return s.send(ctx, strings.Join(args, " "))
			}
			return s.repl(ctx, cmd.InOrStdin())
		},
	}

	cmd.Flags().StringVarP(&opts.userID, "user", "u", defaultUser(), "user id that owns the conversation")
	cmd.Flags().StringVar(&opts.conversationID, "conversation-id", "", "continue a specific conversation")
	cmd.Flags().BoolVarP(&opts.continueLatest, "continue", "c", false, "continue the latest conversation of the user")
	cmd.Flags().BoolVar(&opts.anonymous, "anonymous", false, "chat without saving anything")
	cmd.Flags().BoolVar(&opts.plain, "plain", false, "print answers without markdown rendering")
	return cmd
}

type chatSession struct {
	svc     *pmcopilot.Service
	opts    chatOptions
	display TextDisplayer
}

// send asks one question and remembers the conversation it landed in.
func (s *chatSession) send(ctx context.Context, message string) error {
	var (
		res *pmcopilot.ChatResult
		err error
	)
	if s.opts.anonymous {
		res, err = s.svc.ChatAnonymous(ctx, s.opts.conversationID, message)
	} else {
		res, err = s.svc.Chat(ctx, pmcopilot.ChatRequest{
			Message:        message,
			ConversationID: s.opts.conversationID,
			UserID:         s.opts.userID,
		})
	}
	if err != nil {
		return err
	}

	if s.opts.conversationID == "" && !s.opts.anonymous {
		s.display.DisplayPrompt("\u001b[90m(conversation %s)\u001b[0m\n", res.ConversationID)
	}
	s.opts.conversationID = res.ConversationID
	return s.display.DisplayAnswer(res.Answer, res.Sources)
}

func (s *chatSession) repl(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	s.display.DisplayPrompt("Chat with the maintenance copilot (use 'ctrl-c' or an empty line to quit)\n")
	for {
		s.display.DisplayPrompt("\u001b[94mYou\u001b[0m: ")
		if !scanner.Scan() {
			break
		}
		message := strings.TrimSpace(scanner.Text())
		if message == "" {
			break
		}

		if err := s.send(ctx, message); err != nil {
			if ctx.Err() != nil {
				break
			}
			// the call failed as a whole; the session goes on
			s.display.DisplayError("%s", err)
		}
	}
	if s.opts.anonymous && s.opts.conversationID != "" {
		s.svc.EndSession(s.opts.conversationID)
	}
	if ctx.Err() != nil {
		return nil
	}
	return scanner.Err()
}

func defaultUser() string {
	if u := os.Getenv("PMCOPILOT_USER"); u != "" {
		return u
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "local"
}
