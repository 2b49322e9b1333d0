package cli

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/recall/internal/core/domain"
)

var (
	backupCompress    bool
	backupFormat      string
	backupNoDocuments bool
	backupNoHistory   bool
	backupListJSON    bool
	backupStatusJSON  bool
	backupStatusRuns  int
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Create, list and restore backups",
	Long: `Backups capture the vector store, the documents corpus and the chat
history. Each backup has a manifest recording the outcome per component.`,
}

var backupCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a backup",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runBackupCreate,
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backups, oldest first",
	Args:  cobra.NoArgs,
	RunE:  runBackupList,
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore [name]",
	Short: "Replace the store with a backup",
	Long: `Restores a backup chosen by exact name or unique prefix. The current
store is replaced; take a backup first if you may need it.`,
	Args: cobra.ExactArgs(1),
	RunE: runBackupRestore,
}

var backupScheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run scheduled backups in the foreground",
	Long: `Runs backups on the cron schedule set in [backup] schedule of
config.toml until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runBackupSchedule,
}

var backupStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the backup schedule and recent scheduled runs",
	Args:  cobra.NoArgs,
	RunE:  runBackupStatus,
}

func init() {
	backupCreateCmd.Flags().BoolVar(&backupCompress, "compress", false, "pack the backup into a single archive")
	backupCreateCmd.Flags().StringVar(&backupFormat, "format", "", "archive format: tar.gz or zip (default from config)")
	backupCreateCmd.Flags().BoolVar(&backupNoDocuments, "no-documents", false, "skip the documents corpus")
	backupCreateCmd.Flags().BoolVar(&backupNoHistory, "no-history", false, "skip the chat history")
	backupListCmd.Flags().BoolVar(&backupListJSON, "json", false, "output backups as JSON")
	backupStatusCmd.Flags().IntVarP(&backupStatusRuns, "runs", "n", 5, "recent runs to show")
	backupStatusCmd.Flags().BoolVar(&backupStatusJSON, "json", false, "output status as JSON")

	backupCmd.AddCommand(backupCreateCmd)
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupRestoreCmd)
	backupCmd.AddCommand(backupScheduleCmd)
	backupCmd.AddCommand(backupStatusCmd)
	rootCmd.AddCommand(backupCmd)
}

func runBackupCreate(cmd *cobra.Command, args []string) error {
	backups, err := requireBackup()
	if err != nil {
		return err
	}

	opts := backupDefaults
	if len(args) > 0 {
		opts.Name = args[0]
	}
	if cmd.Flags().Changed("compress") {
		opts.Compress = backupCompress
	}
	if backupFormat != "" {
		format := domain.ArchiveFormat(backupFormat)
		if !format.IsValid() {
			return fmt.Errorf("invalid --format %q: use tar.gz or zip", backupFormat)
		}
		opts.Format = format
		opts.Compress = true
	}
	if backupNoDocuments {
		opts.IncludeDocuments = false
	}
	if backupNoHistory {
		opts.IncludeChatHistory = false
	}

	manifest, err := backups.CreateBackup(cmd.Context(), opts)
	if manifest == nil {
		return fmt.Errorf("backup failed: %w", err)
	}

	cmd.Printf("Backup %s: %s (%s)\n", manifest.Name, manifest.Status, formatBytes(manifest.TotalSize()))
	printComponents(cmd, manifest)
	if err != nil {
		return fmt.Errorf("backup %s: %w", manifest.Status, err)
	}
	return nil
}

func runBackupList(cmd *cobra.Command, _ []string) error {
	backups, err := requireBackup()
	if err != nil {
		return err
	}

	entries, err := backups.ListBackups(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list backups: %w", err)
	}

	if backupListJSON {
		return printJSON(cmd, entries)
	}
	if len(entries) == 0 {
		cmd.Println("No backups found.")
		return nil
	}

	for _, e := range entries {
		kind := "dir"
		if e.Archive {
			kind = "archive"
		}
		created := e.CreatedAt().Local().Format("2006-01-02 15:04")
		if e.Manifest == nil {
			cmd.Printf("  %-28s %s  %-7s  unreadable: %s\n", e.Name, created, kind, e.Problem)
			continue
		}
		cmd.Printf("  %-28s %s  %-7s  %-8s  %s\n", e.Name, created, kind, e.Manifest.Status, formatBytes(e.Manifest.TotalSize()))
	}
	return nil
}

func runBackupRestore(cmd *cobra.Command, args []string) error {
	backups, err := requireBackup()
	if err != nil {
		return err
	}

	result, err := backups.RestoreBackup(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("restore failed: %w", err)
	}

	cmd.Printf("Restored %s.\n", result.Name)
	for _, c := range result.Restored {
		cmd.Printf("  %s: restored\n", c)
	}
	for _, c := range result.Skipped {
		cmd.Printf("  %s: not in backup, left unchanged\n", c)
	}
	return nil
}

func runBackupSchedule(cmd *cobra.Command, _ []string) error {
	if scheduler == nil {
		return errors.New("scheduler not configured")
	}
	if !schedulerEnabled {
		return errors.New("no backup schedule configured: set [backup] schedule in config.toml")
	}

	cmd.Println("Running scheduled backups. Press Ctrl+C to stop.")
	defer func() {
		if err := scheduler.Stop(); err != nil {
			cmd.PrintErrf("scheduler stop error: %v\n", err)
		}
	}()
	return scheduler.Start(cmd.Context())
}

func runBackupStatus(cmd *cobra.Command, _ []string) error {
	if scheduler == nil {
		return errors.New("scheduler not configured")
	}

	status, err := scheduler.Status(cmd.Context(), backupStatusRuns)
	if err != nil {
		return fmt.Errorf("failed to read schedule: %w", err)
	}
	if backupStatusJSON {
		return printJSON(cmd, status)
	}

	if status.Enabled {
		cmd.Printf("Schedule: %s\n", status.Schedule)
	} else {
		cmd.Println("Schedule: (none)")
	}
	if task := status.Task; task != nil {
		if status.Enabled && !task.NextRun.IsZero() {
			cmd.Printf("Next run: %s\n", formatTime(task.NextRun))
		}
		cmd.Printf("Last run: %s\n", formatTime(task.LastRun))
		cmd.Printf("Last success: %s\n", formatTime(task.LastSuccess))
		if task.LastError != "" {
			cmd.Printf("Last error: %s\n", task.LastError)
		}
	}

	if len(status.Recent) == 0 {
		cmd.Println("No scheduled runs recorded.")
		return nil
	}
	cmd.Println("Recent runs:")
	for _, r := range status.Recent {
		outcome := "ok"
		if !r.Success {
			outcome = "failed: " + r.Error
		}
		cmd.Printf("  %s  %6s  %d components  %s\n",
			formatTime(r.StartedAt), r.Duration().Round(time.Second), r.ItemsProcessed, outcome)
	}
	return nil
}

func printComponents(cmd *cobra.Command, manifest *domain.BackupManifest) {
	names := make([]string, 0, len(manifest.Components))
	for name := range manifest.Components {
		names = append(names, string(name))
	}
	sort.Strings(names)

	for _, name := range names {
		c := manifest.Components[domain.ComponentName(name)]
		line := fmt.Sprintf("  %-13s %-8s %s", name, c.Status, formatBytes(c.SizeBytes))
		if c.Error != "" {
			line += "  " + c.Error
		}
		cmd.Println(line)
	}
}
