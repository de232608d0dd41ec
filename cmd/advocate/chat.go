package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/sweetpotato0/ai-advocate/advocate"
	"github.com/sweetpotato0/ai-advocate/server"
	"github.com/sweetpotato0/ai-advocate/store"
)

type chatOptions struct {
	sessionID string
	showTrace bool
}

func newChatCmd(a *app) *cobra.Command {
	var opts chatOptions
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the advocate in the terminal",
		Long: "Starts an interactive conversation. Describe what happened; the advocate asks one\n" +
			"question at a time and reports its findings once the facts are complete.\n" +
			"Type \"exit\" to leave. Reuse --session to continue a stored conversation.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, cleanup, err := a.start(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer cleanup()
			return runChat(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), c.coordinator, c.store, opts)
		},
	}
	cmd.Flags().StringVar(&opts.sessionID, "session", "", "session id to continue (default: a new session)")
	cmd.Flags().BoolVar(&opts.showTrace, "trace", false, "print the turn trace after each reply")
	return cmd
}

type advancer interface {
	Advance(ctx context.Context, req advocate.AdvanceRequest) (*advocate.Turn, error)
}

// runChat reads one user message per line until EOF or "exit".
func runChat(ctx context.Context, in io.Reader, out io.Writer, coord advancer, history store.HistoryReader, opts chatOptions) error {
	sessionID := strings.TrimSpace(opts.sessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	fmt.Fprintf(out, "Advocate: %s\n(session %s)\n", server.Greeting, sessionID)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		fmt.Fprint(out, "\nYou: ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		records, err := history.History(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("load history: %w", err)
		}
		turn, err := coord.Advance(ctx, advocate.AdvanceRequest{
			SessionID: sessionID,
			History:   store.Messages(records),
			Message:   line,
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			turn = advocate.ErrorResponse(err)
		}

		fmt.Fprintf(out, "\nAdvocate: %s\n", turn.Response)
		if opts.showTrace {
			raw, _ := json.MarshalIndent(turn.Trace, "", "  ")
			fmt.Fprintf(out, "\n[trace]\n%s\n", raw)
		}
	}
}
