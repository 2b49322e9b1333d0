// Package cli provides the recall command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driving"
	"github.com/custodia-labs/recall/internal/logger"
)

// version is set at build time via SetVersion.
var version = "dev"

// Global flags.
var (
	configDir string
	verbose   bool
)

// Services injected by SetServices or built by the bootstrap on first use.
var (
	memoryService    driving.MemoryService
	backupService    driving.BackupService
	scheduler        driving.Scheduler
	schedulerEnabled bool
	backupDefaults   domain.BackupOptions
	documentsDir     string
	metricsHandler   http.Handler
	closeServices    func() error
)

var errNotConfigured = errors.New("memory service not configured")

// Services is everything the commands need.
type Services struct {
	Memory    driving.MemoryService
	Backup    driving.BackupService
	Scheduler driving.Scheduler

	// SchedulerEnabled is true when a backup schedule is configured.
	SchedulerEnabled bool

	// BackupDefaults are the configured backup options.
	BackupDefaults domain.BackupOptions

	// DocumentsDir is the corpus watched by the watch command.
	DocumentsDir string

	// Metrics serves Prometheus metrics. Optional.
	Metrics http.Handler

	// Close releases the services. Optional.
	Close func() error
}

// Bootstrap builds the services from the config directory.
type Bootstrap func(configDir string) (*Services, error)

var bootstrap Bootstrap

// SetBootstrap sets the function that builds services before a command runs.
func SetBootstrap(fn Bootstrap) {
	bootstrap = fn
}

// SetServices injects services directly, bypassing the bootstrap.
func SetServices(s *Services) {
	memoryService = s.Memory
	backupService = s.Backup
	scheduler = s.Scheduler
	schedulerEnabled = s.SchedulerEnabled
	backupDefaults = s.BackupDefaults
	documentsDir = s.DocumentsDir
	metricsHandler = s.Metrics
	closeServices = s.Close
}

// SetVersion sets the version reported by the version command.
func SetVersion(v string) {
	version = v
}

// skipServices marks commands that run without the memory store.
const skipServices = "skip-services"

var rootCmd = &cobra.Command{
	Use:   "recall",
	Short: "Retrieval-augmented memory for agents",
	Long: `recall stores documents and conversational facts and answers questions
from them with citations and a confidence score.

Configuration lives in ~/.recall/config.toml; API keys may be set in
~/.recall/.env or the environment.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: prepare,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "configuration directory (default ~/.recall)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// prepare configures logging and builds services for commands that need them.
func prepare(cmd *cobra.Command, _ []string) error {
	logger.SetVerbose(verbose)
	if cmd.Annotations[skipServices] != "" || memoryService != nil || bootstrap == nil {
		return nil
	}

	s, err := bootstrap(configDir)
	if err != nil {
		return err
	}
	SetServices(s)
	return nil
}

// Execute runs the root command, cancelling on SIGINT or SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if closeServices != nil {
		if cerr := closeServices(); cerr != nil {
			logger.Warn("cli: close: %v", cerr)
		}
		closeServices = nil
	}

	if err != nil {
		fmt.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
		var de *domain.Error
		if errors.As(err, &de) && de.SuggestedAction != "" {
			fmt.Fprintf(rootCmd.ErrOrStderr(), "Hint: %s\n", de.SuggestedAction)
		}
	}
	return err
}

// requireMemory returns the memory service or errNotConfigured.
func requireMemory() (driving.MemoryService, error) {
	if memoryService == nil {
		return nil, errNotConfigured
	}
	return memoryService, nil
}

// requireBackup returns the backup service or an error.
func requireBackup() (driving.BackupService, error) {
	if backupService == nil {
		return nil, errors.New("backup service not configured")
	}
	return backupService, nil
}
