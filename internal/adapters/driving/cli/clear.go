package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/recall/internal/core/domain"
)

var clearConfirmation string

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all stored knowledge and chat history",
	Long: fmt.Sprintf(`Deletes every stored chunk and the chat history. Backups are kept.

The confirmation must be exactly %q. It is read from --confirm,
or prompted for on a terminal.`, domain.ClearConfirmationPhrase),
	Args: cobra.NoArgs,
	RunE: runClear,
}

func init() {
	clearCmd.Flags().StringVar(&clearConfirmation, "confirm", "", "confirmation text")
	rootCmd.AddCommand(clearCmd)
}

func runClear(cmd *cobra.Command, _ []string) error {
	memory, err := requireMemory()
	if err != nil {
		return err
	}

	confirmation := clearConfirmation
	if confirmation == "" {
		if line, ok := promptLine(cmd, fmt.Sprintf("Type %q to delete everything: ", domain.ClearConfirmationPhrase)); ok {
			confirmation = line
		}
	}

	result, err := memory.ClearAll(cmd.Context(), confirmation)
	if err != nil {
		return fmt.Errorf("clear failed: %w", err)
	}
	if !result.Cleared {
		cmd.Println(result.Warning)
		return nil
	}
	cmd.Printf("Memory cleared: %d chunks removed.\n", result.Removed)
	return nil
}
