package domain

import "time"

// Confirmation strings for destructive operations.
const (
	// ForgetConfirmationPhrase must appear in the forget confirmation (case-insensitive).
	ForgetConfirmationPhrase = "confirm delete"

	// ClearConfirmationPhrase must be supplied exactly to wipe memory.
	ClearConfirmationPhrase = "CLEAR ALL MEMORY"
)

// DeleteStrategy records how chunks were removed.
type DeleteStrategy string

// Delete strategies.
const (
	// DeleteDirect removes chunks by ID.
	DeleteDirect DeleteStrategy = "direct"

	// DeleteRebuild drops the collection and re-adds the complement.
	DeleteRebuild DeleteStrategy = "rebuild"
)

// ForgetPreview lists the chunks a forget request would delete.
type ForgetPreview struct {
	Description        string    `json:"description"`
	Candidates         []Chunk   `json:"candidates"`
	ConfirmationPhrase string    `json:"confirmation_phrase"`
	ExpiresAt          time.Time `json:"expires_at"`
}

// ForgetResult reports a confirmed or refused forget.
type ForgetResult struct {
	Confirmed bool           `json:"confirmed"`
	Deleted   int            `json:"deleted"`
	Strategy  DeleteStrategy `json:"strategy,omitempty"`
	Warning   string         `json:"warning,omitempty"`
}

// ClearResult reports a confirmed or refused clear.
type ClearResult struct {
	Cleared bool   `json:"cleared"`
	Removed int    `json:"removed"`
	Warning string `json:"warning,omitempty"`
}
