package cli

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/recall/internal/core/domain"
)

// fakeTerminal makes promptLine read input as if typed at a terminal.
func fakeTerminal(input string) func() {
	oldStdin, oldIsTerminal := stdin, isTerminal
	stdin = strings.NewReader(input)
	isTerminal = func() bool { return true }
	return func() {
		stdin, isTerminal = oldStdin, oldIsTerminal
	}
}

// noTerminal makes promptLine report a non-interactive stdin.
func noTerminal() func() {
	oldStdin, oldIsTerminal := stdin, isTerminal
	stdin = strings.NewReader("")
	isTerminal = func() bool { return false }
	return func() {
		stdin, isTerminal = oldStdin, oldIsTerminal
	}
}

// ==================== Remember Tests ====================

func TestRememberCmd(t *testing.T) {
	_, _, cleanup := setupTestServices()
	defer cleanup()

	out, err := executeCommand(t, "remember", "The spare key is under the blue pot")
	require.NoError(t, err)
	assert.Contains(t, out, "Remembered: The spare key is under the blue pot")
}

func TestRememberCmd_Error(t *testing.T) {
	memory, _, cleanup := setupTestServices()
	defer cleanup()
	memory.err = domain.ValidationErrorf("memory", "fact is empty")

	_, err := executeCommand(t, "remember", " ")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

// ==================== Forget Tests ====================

func TestForgetCmd_Subcommands(t *testing.T) {
	assert.Equal(t, "preview [description]", forgetPreviewCmd.Use)
	assert.Equal(t, "confirm [description]", forgetConfirmCmd.Use)
	assert.NotNil(t, forgetConfirmCmd.Flags().Lookup("confirm"))
	assert.Equal(t, "-1", forgetConfirmCmd.Flags().Lookup("expect").DefValue)
}

func TestForgetPreviewCmd(t *testing.T) {
	memory, _, cleanup := setupTestServices()
	defer cleanup()

	out, err := executeCommand(t, "forget", "preview", "wifi", "password")
	require.NoError(t, err)

	assert.Contains(t, out, `1 chunks match "wifi password"`)
	assert.Contains(t, out, "[1] conversation #0: wifi is hunter2")
	assert.Zero(t, memory.confirmed)
}

func TestForgetPreviewCmd_NoMatches(t *testing.T) {
	_, _, cleanup := setupTestServices()
	defer cleanup()

	out, err := executeCommand(t, "forget", "preview", "nothing")
	require.NoError(t, err)
	assert.Contains(t, out, "Nothing in memory matches that description.")
}

func TestForgetConfirmCmd_Flag(t *testing.T) {
	memory, _, cleanup := setupTestServices()
	defer cleanup()
	defer noTerminal()()

	out, err := executeCommand(t, "forget", "confirm", "wifi", "--expect", "1", "--confirm", "confirm delete")
	require.NoError(t, err)

	assert.Contains(t, out, `1 chunks match "wifi"`)
	assert.Equal(t, "confirm delete", memory.lastConfirm)
	assert.Contains(t, out, "Deleted 1 chunks (direct).")
}

func TestForgetConfirmCmd_FlagRequiresExpect(t *testing.T) {
	memory, _, cleanup := setupTestServices()
	defer cleanup()
	defer noTerminal()()

	_, err := executeCommand(t, "forget", "confirm", "wifi", "--confirm", "confirm delete")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Contains(t, err.Error(), "--expect")
	assert.Zero(t, memory.confirmed)
}

func TestForgetConfirmCmd_ExpectMismatchDeletesNothing(t *testing.T) {
	memory, _, cleanup := setupTestServices()
	defer cleanup()
	defer noTerminal()()

	out, err := executeCommand(t, "forget", "confirm", "wifi", "--expect", "3", "--confirm", "confirm delete")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 3 matching chunks but found 1")
	assert.Contains(t, out, `1 chunks match "wifi"`, "the count is shown before refusing")
	assert.Zero(t, memory.confirmed)
}

func TestForgetConfirmCmd_ExpectWithPrompt(t *testing.T) {
	memory, _, cleanup := setupTestServices()
	defer cleanup()
	defer fakeTerminal("confirm delete\n")()

	_, err := executeCommand(t, "forget", "confirm", "wifi", "--expect", "2")
	require.Error(t, err)
	assert.Zero(t, memory.confirmed, "a mismatch refuses before prompting")
}

func TestForgetConfirmCmd_Prompt(t *testing.T) {
	memory, _, cleanup := setupTestServices()
	defer cleanup()
	defer fakeTerminal("Confirm Delete\n")()

	out, err := executeCommand(t, "forget", "confirm", "wifi")
	require.NoError(t, err)

	assert.Contains(t, out, `Type "confirm delete" to delete these chunks: `)
	assert.Equal(t, "Confirm Delete", memory.lastConfirm)
	assert.Contains(t, out, "Deleted 1 chunks")
}

func TestForgetConfirmCmd_WrongPhrase(t *testing.T) {
	memory, _, cleanup := setupTestServices()
	defer cleanup()
	defer fakeTerminal("yes\n")()

	out, err := executeCommand(t, "forget", "confirm", "wifi")
	require.NoError(t, err)

	assert.Equal(t, 1, memory.confirmed)
	assert.Contains(t, out, "Nothing was deleted.")
	assert.NotContains(t, out, "Deleted")
}

func TestForgetConfirmCmd_NotInteractive(t *testing.T) {
	memory, _, cleanup := setupTestServices()
	defer cleanup()
	defer noTerminal()()

	out, err := executeCommand(t, "forget", "confirm", "wifi")
	require.NoError(t, err)

	assert.Empty(t, memory.lastConfirm)
	assert.Contains(t, out, "Nothing was deleted.")
}

func TestForgetConfirmCmd_NoMatchesSkipsConfirm(t *testing.T) {
	memory, _, cleanup := setupTestServices()
	defer cleanup()

	_, err := executeCommand(t, "forget", "confirm", "nothing", "--expect", "0", "--confirm", "confirm delete")
	require.NoError(t, err)
	assert.Zero(t, memory.confirmed)
}

func TestForgetPreviewCmd_Error(t *testing.T) {
	memory, _, cleanup := setupTestServices()
	defer cleanup()
	memory.err = errors.New("store offline")

	_, err := executeCommand(t, "forget", "preview", "wifi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "forget preview failed")
}

// ==================== Clear Tests ====================

func TestClearCmd_Flag(t *testing.T) {
	memory, _, cleanup := setupTestServices()
	defer cleanup()
	defer noTerminal()()

	out, err := executeCommand(t, "clear", "--confirm", domain.ClearConfirmationPhrase)
	require.NoError(t, err)

	assert.Equal(t, domain.ClearConfirmationPhrase, memory.lastClear)
	assert.Contains(t, out, "Memory cleared: 42 chunks removed.")
}

func TestClearCmd_Prompt(t *testing.T) {
	memory, _, cleanup := setupTestServices()
	defer cleanup()
	defer fakeTerminal("CLEAR ALL MEMORY\n")()

	out, err := executeCommand(t, "clear")
	require.NoError(t, err)

	assert.Equal(t, "CLEAR ALL MEMORY", memory.lastClear)
	assert.Contains(t, out, "Memory cleared")
}

func TestClearCmd_Refused(t *testing.T) {
	_, _, cleanup := setupTestServices()
	defer cleanup()
	defer noTerminal()()

	out, err := executeCommand(t, "clear", "--confirm", "clear all memory")
	require.NoError(t, err)
	assert.Contains(t, out, "Memory was not cleared.")
}

func TestClearCmd_RejectsArgs(t *testing.T) {
	_, _, cleanup := setupTestServices()
	defer cleanup()

	_, err := executeCommand(t, "clear", "now")
	assert.Error(t, err)
}
