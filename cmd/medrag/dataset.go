package main

import (
	"fmt"

	"github.com/4thel00z/medrag/internal"
	"github.com/spf13/cobra"
)

func NewDatasetCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dataset",
		Short: "Manage the Q&A dataset",
	}

	cmd.AddCommand(newDatasetFetchCmd(a))
	return cmd
}

func newDatasetFetchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Load the configured dataset and populate the cache",
		Long: `Load the configured dataset. Hugging Face datasets are downloaded once
and cached under the scope's cache directory; --refresh downloads again.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			scopeHint, _ := cmd.Flags().GetString("scope")
			refresh, _ := cmd.Flags().GetBool("refresh")
			asJSON, _ := cmd.Flags().GetBool("json")

			out, err := internal.NewDatasetFetchUseCase(a.engines).Execute(cmd.Context(), internal.DatasetFetchInput{
				Scope:   scopeHint,
				Refresh: refresh,
			})
			if err != nil {
				return fmt.Errorf("fetch dataset: %w", err)
			}

			if asJSON {
				return outputJSON(cmd, out)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Loaded %d medical Q&A pairs from %s\n", out.Pairs, out.Source)
			if out.Cache != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Cache: %s\n", out.Cache)
			}
			return nil
		},
	}

	cmd.Flags().Bool("refresh", false, "Ignore the cache and download again")
	return cmd
}
