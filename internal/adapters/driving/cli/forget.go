package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driving"
)

var (
	forgetConfirmation string
	forgetExpect       int
)

var forgetCmd = &cobra.Command{
	Use:   "forget",
	Short: "Delete stored knowledge",
	Long: `Forgetting is two-step: a preview lists the chunks matching a
description, and only those exact chunks are deleted once confirmed.`,
}

var forgetPreviewCmd = &cobra.Command{
	Use:   "preview [description]",
	Short: "List the chunks a forget would delete",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runForgetPreview,
}

var forgetConfirmCmd = &cobra.Command{
	Use:   "confirm [description]",
	Short: "Preview and delete matching chunks",
	Long: fmt.Sprintf(`Previews the chunks matching the description, then deletes exactly
those chunks when the confirmation contains %q.

The confirmation is read from --confirm, or prompted for on a terminal.
With --confirm, --expect must give the chunk count seen in an earlier
preview; a different count deletes nothing.`, domain.ForgetConfirmationPhrase),
	Example: `  recall forget preview "wifi password"
  recall forget confirm "wifi password" --expect 1 --confirm "confirm delete"`,
	Args:    cobra.MinimumNArgs(1),
	RunE:    runForgetConfirm,
}

func init() {
	forgetConfirmCmd.Flags().StringVar(&forgetConfirmation, "confirm", "", "confirmation text")
	forgetConfirmCmd.Flags().IntVar(&forgetExpect, "expect", -1, "number of chunks the preview must match")
	forgetCmd.AddCommand(forgetPreviewCmd)
	forgetCmd.AddCommand(forgetConfirmCmd)
	rootCmd.AddCommand(forgetCmd)
}

func runForgetPreview(cmd *cobra.Command, args []string) error {
	memory, err := requireMemory()
	if err != nil {
		return err
	}
	_, err = showForgetPreview(cmd, memory, strings.Join(args, " "))
	return err
}

// runForgetConfirm previews and confirms in one process, since previews
// live only as long as the service that issued them.
func runForgetConfirm(cmd *cobra.Command, args []string) error {
	memory, err := requireMemory()
	if err != nil {
		return err
	}
	description := strings.Join(args, " ")
	if forgetConfirmation != "" && forgetExpect < 0 {
		return fmt.Errorf("%w: --confirm requires --expect with the previewed chunk count", domain.ErrInvalidInput)
	}

	preview, err := showForgetPreview(cmd, memory, description)
	if err != nil {
		return err
	}
	if forgetExpect >= 0 && len(preview.Candidates) != forgetExpect {
		return fmt.Errorf("%w: expected %d matching chunks but found %d; nothing was deleted",
			domain.ErrInvalidInput, forgetExpect, len(preview.Candidates))
	}
	if len(preview.Candidates) == 0 {
		return nil
	}

	confirmation := forgetConfirmation
	if confirmation == "" {
		if line, ok := promptLine(cmd, fmt.Sprintf("Type %q to delete these chunks: ", preview.ConfirmationPhrase)); ok {
			confirmation = line
		}
	}

	result, err := memory.ForgetConfirm(cmd.Context(), description, confirmation)
	if err != nil {
		return fmt.Errorf("forget failed: %w", err)
	}
	if !result.Confirmed {
		cmd.Println(result.Warning)
		return nil
	}
	cmd.Printf("Deleted %d chunks (%s).\n", result.Deleted, result.Strategy)
	return nil
}

func showForgetPreview(cmd *cobra.Command, memory driving.MemoryService, description string) (*domain.ForgetPreview, error) {
	preview, err := memory.ForgetPreview(cmd.Context(), description)
	if err != nil {
		return nil, fmt.Errorf("forget preview failed: %w", err)
	}

	if len(preview.Candidates) == 0 {
		cmd.Println("Nothing in memory matches that description.")
		return preview, nil
	}

	cmd.Printf("%d chunks match %q:\n", len(preview.Candidates), description)
	for i, c := range preview.Candidates {
		cmd.Printf("  [%d] %s #%d: %s\n", i+1, c.Source, c.SequenceIndex, truncate(c.Content, 70))
	}
	return preview, nil
}
