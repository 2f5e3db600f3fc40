package main

import (
	"fmt"
	"strings"

	"github.com/4thel00z/medrag/internal"
	"github.com/spf13/cobra"
)

func NewAskCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a medical question from retrieved knowledge",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scopeHint, _ := cmd.Flags().GetString("scope")
			provider, _ := cmd.Flags().GetString("provider")
			showSources, _ := cmd.Flags().GetBool("sources")
			asJSON, _ := cmd.Flags().GetBool("json")

			out, err := internal.NewAskUseCase(a.engines).Execute(cmd.Context(), internal.AskInput{
				Query:    strings.Join(args, " "),
				Scope:    scopeHint,
				Provider: provider,
			})
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			if asJSON {
				return outputJSON(cmd, out)
			}

			fmt.Fprintln(cmd.OutOrStdout(), out.Answer)
			if showSources {
				fmt.Fprintln(cmd.OutOrStdout(), "\nSources:")
				printResults(cmd.OutOrStdout(), out.Sources)
			}
			return nil
		},
	}

	cmd.Flags().String("provider", "", "Provider name (default from config)")
	cmd.Flags().Bool("sources", false, "Print the retrieved knowledge")
	return cmd
}
