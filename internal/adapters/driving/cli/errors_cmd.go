package cli

import (
	"slices"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/recall/internal/core/domain"
)

var (
	errorsLimit int
	errorsJSON  bool
)

var errorsCmd = &cobra.Command{
	Use:   "errors",
	Short: "Show recently recorded errors",
	Long: `Shows errors recorded by this process, grouped by kind and component,
with the most recent first. Long-running commands such as mcp serve and
watch accumulate them over their lifetime.`,
	Args: cobra.NoArgs,
	RunE: runErrors,
}

func init() {
	errorsCmd.Flags().IntVarP(&errorsLimit, "limit", "n", 10, "maximum recent errors to show")
	errorsCmd.Flags().BoolVar(&errorsJSON, "json", false, "output summary as JSON")
	rootCmd.AddCommand(errorsCmd)
}

func runErrors(cmd *cobra.Command, _ []string) error {
	memory, err := requireMemory()
	if err != nil {
		return err
	}

	summary := memory.ErrorSummary(cmd.Context(), errorsLimit)
	if errorsJSON {
		return printJSON(cmd, summary)
	}
	if summary.Total == 0 {
		cmd.Println("No errors recorded.")
		return nil
	}

	cmd.Printf("%d errors (%d recoverable)\n", summary.Total, summary.Recoverable)
	kinds := make([]domain.ErrorKind, 0, len(summary.ByKind))
	for k := range summary.ByKind {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	for _, k := range kinds {
		cmd.Printf("  %-16s %d\n", k, summary.ByKind[k])
	}

	cmd.Println("Recent:")
	for _, r := range summary.Recent {
		cmd.Printf("  %s  %s/%s: %s\n", r.Timestamp.Local().Format("15:04:05"), r.Component, r.Kind, r.Message)
		if r.SuggestedAction != "" {
			cmd.Printf("      %s\n", r.SuggestedAction)
		}
	}
	return nil
}
