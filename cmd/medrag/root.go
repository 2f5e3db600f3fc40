package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/4thel00z/medrag/internal"
	"github.com/spf13/cobra"
)

// app holds the services shared by all subcommands. It is filled in by the
// root command's PersistentPreRunE once flags are parsed.
type app struct {
	engines   *internal.EngineService
	providers *internal.ProviderService
	logger    *slog.Logger

	// extra service options, used by tests to stub the chat provider
	opts []internal.EngineServiceOption
}

func NewRootCmd(version string, opts ...internal.EngineServiceOption) *cobra.Command {
	a := &app{opts: opts}

	rootCmd := &cobra.Command{
		Use:   "medrag",
		Short: "Retrieval-augmented medical question answering",
		Long: `Answer medical questions from a corpus of doctor/patient dialogues.
The corpus is embedded into a persistent vector index, the closest
entries are retrieved for every question and handed to a chat model.`,
		Version:           version,
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}

	addPersistentFlags(rootCmd)
	addSubcommands(rootCmd, a)

	return rootCmd
}

func addPersistentFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("scope", "", "Target scope (global|project)")
	cmd.PersistentFlags().String("config", "", "Config file (default <scope>/config.yaml)")
	cmd.PersistentFlags().Bool("json", false, "Output in JSON format")
	cmd.PersistentFlags().String("log-level", "warn", "Log level (debug|info|warn|error)")
}

func addSubcommands(root *cobra.Command, a *app) {
	root.AddCommand(
		NewInitCmd(),
		NewConfigCmd(a),
		NewDatasetCmd(a),
		NewIndexCmd(a),
		NewRetrieveCmd(a),
		NewAskCmd(a),
		NewChatCmd(a),
		NewMCPCmd(a),
		NewProviderCmd(a),
	)
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	levelName, _ := cmd.Flags().GetString("log-level")
	configPath, _ := cmd.Flags().GetString("config")

	level, err := parseLogLevel(levelName)
	if err != nil {
		return err
	}

	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	slog.SetDefault(a.logger)

	opts := []internal.EngineServiceOption{internal.WithLogger(a.logger)}
	if configPath != "" {
		opts = append(opts, internal.WithConfigPath(configPath))
	}
	opts = append(opts, a.opts...)

	a.engines = internal.NewEngineService(internal.NewScopeResolver(), opts...)
	a.providers = internal.NewProviderService(a.engines)
	return nil
}

func parseLogLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "", "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", name)
	}
}

func outputJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
