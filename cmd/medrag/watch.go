package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/4thel00z/medrag/internal"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

func NewWatchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Rebuild the index when the dataset changes",
		Long: `Watch the dataset file and the config for changes and rebuild the index.
Only file datasets can be watched. The index file is replaced atomically, so
readers always see either the old or the new index.`,
		RunE: makeWatchRunner(a),
	}

	cmd.Flags().Duration("debounce", 500*time.Millisecond, "Debounce window for batching changes")
	return cmd
}

func makeWatchRunner(a *app) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		scopeHint, _ := cmd.Flags().GetString("scope")
		configFlag, _ := cmd.Flags().GetString("config")
		debounce, _ := cmd.Flags().GetDuration("debounce")

		scope, cfg, err := a.engines.Load(scopeHint)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if cfg.Dataset.Source != internal.SourceFile {
			return fmt.Errorf("%w: index watch needs a file dataset, configured source is %q",
				internal.ErrConfig, cfg.Dataset.Source)
		}

		configPath := configFlag
		if configPath == "" {
			configPath = scope.ConfigPath()
		}
		targets := []string{
			filepath.Clean(scope.Resolve(cfg.Dataset.Path)),
			filepath.Clean(configPath),
		}

		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("create watcher: %w", err)
		}
		defer watcher.Close()

		// Parent directories, so files replaced by rename are still seen.
		if err := addWatchDirs(watcher, targets); err != nil {
			return fmt.Errorf("add watch dirs: %w", err)
		}

		build := internal.NewBuildIndexUseCase(a.engines)
		rebuild := func() {
			out, err := build.Execute(cmd.Context(), internal.BuildIndexInput{Scope: scopeHint})
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "rebuild failed: %v\n", err)
				return
			}
			if out.Built {
				fmt.Fprintf(cmd.OutOrStdout(), "Rebuilt %s index: %d entries in %s\n",
					out.Kind, out.Entries, out.Duration.Round(time.Millisecond))
			}
		}

		rebuild()
		fmt.Fprintf(cmd.OutOrStdout(), "Watching %s for changes...\n", targets[0])

		timer := time.NewTimer(0)
		if !timer.Stop() {
			<-timer.C
		}
		pending := false

		for {
			select {
			case <-cmd.Context().Done():
				return nil
			case event, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if shouldIgnoreEvent(event, targets) {
					continue
				}
				if !pending {
					timer.Reset(debounce)
					pending = true
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "watch error: %v\n", err)
			case <-timer.C:
				pending = false
				// A no-op when the header still matches the corpus and embedder.
				rebuild()
			}
		}
	}
}

func addWatchDirs(watcher *fsnotify.Watcher, targets []string) error {
	seen := make(map[string]bool)
	for _, target := range targets {
		dir := filepath.Dir(target)
		if seen[dir] {
			continue
		}
		seen[dir] = true
		if err := watcher.Add(dir); err != nil {
			return err
		}
	}
	return nil
}

func shouldIgnoreEvent(event fsnotify.Event, targets []string) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return true
	}

	name := filepath.Clean(event.Name)
	for _, target := range targets {
		if name == target {
			return false
		}
	}
	return true
}
