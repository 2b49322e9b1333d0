package mcp

import (
	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driving"
)

// Ports aggregates all driving port interfaces required by the MCP server.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Memory answers queries and stores knowledge.
	Memory driving.MemoryService

	// Backup snapshots and restores the store. Optional: backup tools are
	// only registered when it is set.
	Backup driving.BackupService

	// BackupDefaults are the options used by create_backup; the tool may
	// override the name and compression.
	BackupDefaults domain.BackupOptions
}

// Validate ensures all required ports are set.
// Returns an error if any required port is nil.
func (p *Ports) Validate() error {
	if p.Memory == nil {
		return ErrMissingMemoryService
	}
	return nil
}
