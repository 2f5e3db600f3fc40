package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/4thel00z/medrag/internal"
	"github.com/spf13/cobra"
)

func NewRetrieveCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retrieve <query>",
		Short: "Show the knowledge entries closest to a query",
		Long:  `Embed the query and print the k nearest Q&A pairs from the index, closest first.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scopeHint, _ := cmd.Flags().GetString("scope")
			k, _ := cmd.Flags().GetInt("k")
			asJSON, _ := cmd.Flags().GetBool("json")

			out, err := internal.NewRetrieveUseCase(a.engines).Execute(cmd.Context(), internal.RetrieveInput{
				Query: strings.Join(args, " "),
				K:     k,
				Scope: scopeHint,
			})
			if err != nil {
				return fmt.Errorf("retrieve: %w", err)
			}

			if asJSON {
				return outputJSON(cmd, out)
			}
			printResults(cmd.OutOrStdout(), out.Results)
			return nil
		},
	}

	cmd.Flags().IntP("k", "k", 0, "Number of results (default from config)")
	return cmd
}

func printResults(w io.Writer, results []internal.RetrieveResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No results.")
		return
	}
	for i, r := range results {
		fmt.Fprintf(w, "%d. [%.4f] Q: %s\n", i+1, r.Distance, r.Question)
		fmt.Fprintf(w, "   A: %s\n", r.Answer)
	}
}
