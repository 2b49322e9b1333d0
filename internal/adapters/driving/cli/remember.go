package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var rememberCmd = &cobra.Command{
	Use:   "remember [fact]",
	Short: "Store a fact from the conversation",
	Long: `Stores a fact as conversational knowledge. It is recorded in the chat
history and can be cited by later answers under the source "conversation".`,
	Example: `  recall remember "The spare key is under the blue pot"`,
	Args:    cobra.MinimumNArgs(1),
	RunE:    runRemember,
}

func init() {
	rootCmd.AddCommand(rememberCmd)
}

func runRemember(cmd *cobra.Command, args []string) error {
	memory, err := requireMemory()
	if err != nil {
		return err
	}

	chunk, err := memory.Remember(cmd.Context(), strings.Join(args, " "))
	if err != nil {
		return fmt.Errorf("remember failed: %w", err)
	}

	cmd.Printf("Remembered: %s\n", truncate(chunk.Content, 80))
	return nil
}
