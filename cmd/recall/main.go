// Command recall is a retrieval-augmented memory for agents.
package main

import (
	"os"

	"github.com/custodia-labs/recall/internal/adapters/driving/cli"
	"github.com/custodia-labs/recall/internal/app"
	"github.com/custodia-labs/recall/internal/logger"
)

// version is set by the linker: -ldflags "-X main.version=v1.2.3".
var version = "dev"

func main() {
	cli.SetVersion(version)
	cli.SetBootstrap(bootstrap)

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

func bootstrap(configDir string) (*cli.Services, error) {
	a, err := app.New(app.Options{ConfigDir: configDir})
	if err != nil {
		return nil, err
	}
	for _, w := range a.Warnings {
		logger.Warn("recall: %s", w)
	}

	return &cli.Services{
		Memory:           a.Memory,
		Backup:           a.Backups,
		Scheduler:        a.Scheduler,
		SchedulerEnabled: a.Settings.Backup.Schedule != "",
		BackupDefaults:   a.BackupOptions(),
		DocumentsDir:     a.Settings.Paths.DocumentsDir,
		Metrics:          a.Metrics.Handler(),
		Close:            a.Close,
	}, nil
}
