package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/giovanni-lunetta/giovanni-site/pkg/api"
	"github.com/giovanni-lunetta/giovanni-site/pkg/llm"
	"github.com/giovanni-lunetta/giovanni-site/pkg/monitor"
)

func newAskCmd(opts *rootOptions) *cobra.Command {
	var session string

	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Run one turn from the terminal and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(opts)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if t := a.turnTimeout(); t > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, t)
				defer cancel()
			}
			return runAsk(ctx, cmd.OutOrStdout(), a.turns, a.sessions, session, strings.Join(args, " "))
		},
	}
	cmd.Flags().StringVar(&session, "session", "", "continue a named conversation kept under history_dir")
	return cmd
}

// runAsk answers message. With a session name the prior turns are read from
// and the new exchange written to that session's history.
func runAsk(ctx context.Context, out io.Writer, responder api.Responder, sessions *llm.SessionManager, session, message string) error {
	ctx, turnID := monitor.NewTurn(ctx)

	var history *llm.ChatHistory
	var key string
	if session != "" {
		key = api.SessionContext{ChannelID: "cli", ChatID: session}.Key()
		h, err := sessions.GetHistory(key)
		if err != nil {
			return err
		}
		history = h
	}

	var turns []llm.Turn
	if history != nil {
		turns = history.Turns()
	}

	reply, err := responder.Respond(ctx, message, turns)
	if err != nil {
		return fmt.Errorf("turn %s failed: %w", turnID, err)
	}

	if history != nil {
		history.AddExchange(message, reply)
		if err := sessions.SaveSession(key); err != nil {
			slog.WarnContext(ctx, "Failed to persist history", "session", session, "error", err)
		}
	}

	_, err = fmt.Fprintln(out, reply)
	return err
}
