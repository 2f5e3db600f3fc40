package main

import (
	"fmt"

	"github.com/4thel00z/medrag/internal"
	"github.com/spf13/cobra"
)

func NewProviderCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provider",
		Short: "Manage chat providers",
		Long:  `List, add, remove, and test the chat model providers used to answer questions.`,
	}

	cmd.AddCommand(
		newProviderListCmd(a),
		newProviderAddCmd(a),
		newProviderRemoveCmd(a),
		newProviderDefaultCmd(a),
		newProviderTestCmd(a),
	)

	return cmd
}

func newProviderListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured providers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			scopeHint, _ := cmd.Flags().GetString("scope")
			asJSON, _ := cmd.Flags().GetBool("json")

			out, err := internal.NewProviderListUseCase(a.providers).Execute(internal.ProviderInput{Scope: scopeHint})
			if err != nil {
				return fmt.Errorf("list providers: %w", err)
			}

			if asJSON {
				return outputJSON(cmd, out)
			}

			if len(out.Names) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No providers configured.")
				return nil
			}

			for _, name := range out.Names {
				marker := " "
				if name == out.Default {
					marker = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", marker, name)
			}
			return nil
		},
	}
}

func newProviderAddCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a provider",
		Long: `Add or replace a provider entry. The type (openai, anthropic, openrouter)
defaults to the entry name; the API key falls back to the provider's
environment variable when omitted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			scopeHint, _ := cmd.Flags().GetString("scope")
			kind, _ := cmd.Flags().GetString("type")
			apiKey, _ := cmd.Flags().GetString("api-key")
			baseURL, _ := cmd.Flags().GetString("base-url")
			model, _ := cmd.Flags().GetString("model")
			timeout, _ := cmd.Flags().GetDuration("timeout")
			retries, _ := cmd.Flags().GetInt("retries")

			if err := internal.NewProviderAddUseCase(a.providers).Execute(internal.ProviderInput{
				Name:  name,
				Scope: scopeHint,
				Config: internal.ProviderConfig{
					Type:    kind,
					APIKey:  apiKey,
					BaseURL: baseURL,
					Model:   model,
					Timeout: timeout,
					Retries: retries,
				},
			}); err != nil {
				return fmt.Errorf("add provider: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Added provider %s\n", name)
			return nil
		},
	}

	cmd.Flags().String("type", "", "Provider type (openai|anthropic|openrouter)")
	cmd.Flags().String("api-key", "", "API key")
	cmd.Flags().String("base-url", "", "Base URL")
	cmd.Flags().String("model", "", "Model name")
	cmd.Flags().Duration("timeout", 0, "Request timeout (default 60s)")
	cmd.Flags().Int("retries", 0, "Extra attempts after a failed request (-1 disables)")
	return cmd
}

func newProviderRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scopeHint, _ := cmd.Flags().GetString("scope")
			if err := internal.NewProviderRemoveUseCase(a.providers).Execute(internal.ProviderInput{Name: args[0], Scope: scopeHint}); err != nil {
				return fmt.Errorf("remove provider: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed provider %s\n", args[0])
			return nil
		},
	}
}

func newProviderDefaultCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "default <name>",
		Short: "Set default provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scopeHint, _ := cmd.Flags().GetString("scope")
			if err := internal.NewProviderSetDefaultUseCase(a.providers).Execute(internal.ProviderInput{Name: args[0], Scope: scopeHint}); err != nil {
				return fmt.Errorf("set default: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Default provider set to %s\n", args[0])
			return nil
		},
	}
}

func newProviderTestCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "test [name]",
		Short: "Test provider connectivity",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scopeHint, _ := cmd.Flags().GetString("scope")
			var name string
			if len(args) > 0 {
				name = args[0]
			}

			reply, err := internal.NewProviderTestUseCase(a.providers).Execute(cmd.Context(), internal.ProviderInput{Name: name, Scope: scopeHint})
			if err != nil {
				return fmt.Errorf("test provider: %w", err)
			}

			label := name
			if label == "" {
				label = "default provider"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Provider %s is working: %s\n", label, reply)
			return nil
		},
	}
}
