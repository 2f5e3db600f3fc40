package main

import (
	"fmt"
	"time"

	"github.com/4thel00z/medrag/internal"
	"github.com/spf13/cobra"
)

func NewIndexCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Manage the vector index",
		Long:  `Build, inspect or watch the persistent vector index.`,
	}

	cmd.AddCommand(
		newIndexBuildCmd(a),
		newIndexStatusCmd(a),
		NewWatchCmd(a),
	)

	return cmd
}

func newIndexBuildCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the index, reusing a valid index file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			scopeHint, _ := cmd.Flags().GetString("scope")
			force, _ := cmd.Flags().GetBool("force")
			asJSON, _ := cmd.Flags().GetBool("json")

			out, err := internal.NewBuildIndexUseCase(a.engines).Execute(cmd.Context(), internal.BuildIndexInput{
				Scope: scopeHint,
				Force: force,
			})
			if err != nil {
				return fmt.Errorf("build index: %w", err)
			}

			if asJSON {
				return outputJSON(cmd, out)
			}

			if out.Built {
				fmt.Fprintf(cmd.OutOrStdout(), "Built %s index with %d entries (dim %d) in %s\n",
					out.Kind, out.Entries, out.Dimension, out.Duration.Round(time.Millisecond))
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Index is up to date: %s index with %d entries\n", out.Kind, out.Entries)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved at %s\n", out.Path)
			return nil
		},
	}

	cmd.Flags().Bool("force", false, "Rebuild even if the index file is valid")
	return cmd
}

func newIndexStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show index status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			scopeHint, _ := cmd.Flags().GetString("scope")
			asJSON, _ := cmd.Flags().GetBool("json")

			out, err := internal.NewIndexStatusUseCase(a.engines).Execute(internal.IndexStatusInput{Scope: scopeHint})
			if err != nil {
				return fmt.Errorf("index status: %w", err)
			}

			if asJSON {
				return outputJSON(cmd, out)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Path:    %s\n", out.Path)
			switch {
			case !out.Exists:
				fmt.Fprintln(w, "Status:  missing, run 'medrag index build'")
			case out.Problem != "":
				fmt.Fprintf(w, "Status:  unreadable (%s), it will be rebuilt\n", out.Problem)
			default:
				h := out.Header
				fmt.Fprintln(w, "Status:  ok")
				fmt.Fprintf(w, "Kind:    %s\n", h.Kind)
				fmt.Fprintf(w, "Entries: %d\n", h.N)
				fmt.Fprintf(w, "Dim:     %d\n", h.Dimension)
				fmt.Fprintf(w, "Model:   %s\n", h.Model)
				fmt.Fprintf(w, "Built:   %s\n", h.BuiltAt.Format(time.RFC3339))
				if h.Kind != out.Configured {
					fmt.Fprintf(w, "Note:    configured kind is %s, the next run rebuilds\n", out.Configured)
				}
			}
			return nil
		},
	}
}
