package main

import (
	"fmt"
	"os"

	"github.com/4thel00z/medrag/internal"
	"github.com/spf13/cobra"
)

func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a medrag project",
		Long:  `Create a .medrag directory with a default config.yaml in the current directory.`,
		RunE:  runInit,
	}

	cmd.Flags().Bool("global", false, "Initialize global scope (~/.medrag)")
	cmd.Flags().Bool("force", false, "Overwrite an existing config with defaults")
	return cmd
}

func runInit(cmd *cobra.Command, _ []string) error {
	isGlobal, _ := cmd.Flags().GetBool("global")
	force, _ := cmd.Flags().GetBool("force")

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	out, err := internal.NewInitUseCase(internal.NewScopeResolver()).Execute(internal.InitInput{
		Dir:    cwd,
		Global: isGlobal,
		Force:  force,
	})
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}

	if !out.Created {
		fmt.Fprintf(cmd.OutOrStdout(), "Already initialized at %s\n", out.Scope.Dir)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Initialized medrag at %s\n", out.Scope.Dir)
	return nil
}
