package cli

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/recall/internal/adapters/driving/watcher"
)

var watchDebounce time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Ingest documents as they change",
	Long: `Watches the documents directory and ingests files when they are
created or modified, replacing the chunks stored for the previous version.
Runs until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watcher.DefaultDebounce, "quiet period before a changed file is ingested")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	memory, err := requireMemory()
	if err != nil {
		return err
	}
	if documentsDir == "" {
		return errors.New("documents directory not configured")
	}

	w := watcher.New(documentsDir, memory)
	w.SetDebounce(watchDebounce)
	w.SetReporter(func(e watcher.Event) {
		if e.Err != nil {
			cmd.PrintErrf("%s: %v\n", e.Path, e.Err)
			return
		}
		cmd.Printf("Ingested %s: %d chunks (replaced %d)\n", e.Result.Source, e.Result.Chunks, e.Result.Replaced)
	})

	cmd.Printf("Watching %s. Press Ctrl+C to stop.\n", documentsDir)
	return w.Run(cmd.Context())
}
