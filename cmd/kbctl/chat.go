package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/kbdesk/backend/internal/chat"
	"github.com/kbdesk/backend/internal/models"
	"github.com/spf13/cobra"
)

func newChatCmd(opts *globalOptions) *cobra.Command {
	var kb string

	cmd := &cobra.Command{
		Use:   "chat [MESSAGE...]",
		Short: "Send a message, or start an interactive session without arguments",
		RunE: func(cmd *cobra.Command, args []string) error {
			if kb == "" {
				kb = opts.cfg.Backend.KnowledgeBase
			}
			relay := chat.NewRelay(opts.client(), chat.Options{KnowledgeBase: kb})
			defer relay.Close()

			out := cmd.OutOrStdout()
			if len(args) > 0 {
				entry, err := relay.Send(cmd.Context(), strings.Join(args, " "))
				printEntry(out, entry)
				return err
			}
			return repl(cmd, relay, cmd.InOrStdin(), out)
		},
	}

	cmd.Flags().StringVar(&kb, "kb", "", "knowledge base to query (omitted when empty)")
	return cmd
}

// repl reads one message per line. Lines starting with "/" are commands.
func repl(cmd *cobra.Command, relay *chat.Relay, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, "Type a question, /use NAME to switch knowledge base, /reset, or /quit.")
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":
			continue
		case line == "/quit" || line == "/exit":
			return nil
		case line == "/reset":
			relay.Reset()
			fmt.Fprintln(out, "transcript cleared")
			continue
		case strings.HasPrefix(line, "/use "):
			name := strings.TrimSpace(strings.TrimPrefix(line, "/use "))
			if err := relay.SwitchKnowledgeBase(cmd.Context(), name); err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
			} else {
				fmt.Fprintf(out, "using %s\n", name)
			}
			continue
		}

		entry, err := relay.Send(cmd.Context(), line)
		if errors.Is(err, chat.ErrEmptyMessage) {
			continue
		}
		printEntry(out, entry)
	}
}

func printEntry(out io.Writer, entry models.ChatEntry) {
	if entry.Content == "" {
		return
	}
	fmt.Fprintln(out, entry.Content)
}
