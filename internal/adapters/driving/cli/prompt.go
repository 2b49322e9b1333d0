package cli

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// stdin and isTerminal are replaced in tests.
var (
	stdin      io.Reader = os.Stdin
	isTerminal           = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) }
)

// promptLine asks for one line of input on an interactive terminal.
// It returns false when stdin is not a terminal.
func promptLine(cmd *cobra.Command, prompt string) (string, bool) {
	if !isTerminal() {
		return "", false
	}
	cmd.Print(prompt)
	return readLine(bufio.NewReader(stdin)), true
}

//nolint:errcheck // CLI helper, error ignored for UX
func readLine(reader *bufio.Reader) string {
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}
