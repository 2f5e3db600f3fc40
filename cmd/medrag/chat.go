package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/4thel00z/medrag/internal"
	"github.com/spf13/cobra"
)

const (
	chatBanner  = "Medical Chatbot is running... (type 'exit' or 'quit' to leave)"
	chatGoodbye = "Chatbot session ended."
)

// replyFunc answers a query as a stream of text chunks.
type replyFunc func(ctx context.Context, query string) (<-chan string, error)

func NewChatCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive medical chat",
		Long: `Read questions line by line and answer each one from retrieved knowledge.
Blank lines are ignored; 'exit' or 'quit' ends the session.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			scopeHint, _ := cmd.Flags().GetString("scope")
			provider, _ := cmd.Flags().GetString("provider")
			stream, _ := cmd.Flags().GetBool("stream")
			tui, _ := cmd.Flags().GetBool("tui")

			eng, err := a.engines.Open(cmd.Context(), internal.OpenRequest{
				Scope:        scopeHint,
				WithProvider: true,
				Provider:     provider,
			})
			if err != nil {
				return err
			}
			defer eng.Close()

			answerer, err := eng.Answerer()
			if err != nil {
				return err
			}

			if tui {
				return runChatTUI(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), answerer.Answer)
			}

			reply := func(ctx context.Context, query string) (<-chan string, error) {
				answer, err := answerer.Answer(ctx, query)
				if err != nil {
					return nil, err
				}
				ch := make(chan string, 1)
				ch <- answer
				close(ch)
				return ch, nil
			}
			if stream {
				reply = answerer.Stream
			}

			return runChatLoop(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), reply)
		},
	}

	cmd.Flags().String("provider", "", "Provider name (default from config)")
	cmd.Flags().Bool("stream", false, "Print answers as they are generated")
	cmd.Flags().Bool("tui", false, "Use the full-screen terminal UI")
	return cmd
}

// runChatLoop reads one query per line until EOF, exit or quit. Errors
// for a single query are printed and the loop continues.
func runChatLoop(ctx context.Context, in io.Reader, out io.Writer, reply replyFunc) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	fmt.Fprintf(out, "\n%s\n\n", chatBanner)

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		fmt.Fprint(out, "You: ")
		if !scanner.Scan() {
			fmt.Fprintf(out, "\n%s\n", chatGoodbye)
			return scanner.Err()
		}

		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			continue
		}
		if isExitCommand(query) {
			fmt.Fprintln(out, chatGoodbye)
			return nil
		}

		chunks, err := reply(ctx, query)
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			continue
		}

		fmt.Fprint(out, "Chatbot: ")
		for chunk := range chunks {
			fmt.Fprint(out, chunk)
		}
		fmt.Fprintln(out)
	}
}

func isExitCommand(s string) bool {
	return strings.EqualFold(s, "exit") || strings.EqualFold(s, "quit")
}
