package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	// URIScheme is the custom URI scheme for recall resources.
	uriScheme = "recall://"
)

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "errors",
		Name:        "errors",
		Description: "Summary of recently recorded errors",
		MIMEType:    "application/json",
	}, s.handleErrorsResource)

	if s.ports.Backup == nil {
		return
	}

	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "backups",
		Name:        "backups",
		Description: "List of all backups, oldest first",
		MIMEType:    "application/json",
	}, s.handleBackupsResource)

	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "backups/{name}",
		Name:        "backup-manifest",
		Description: "Manifest of a specific backup",
		MIMEType:    "application/json",
	}, s.handleBackupResource)
}

// handleErrorsResource returns the error summary.
func (s *Server) handleErrorsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	return jsonResource(req.Params.URI, toErrorSummaryOutput(s.ports.Memory.ErrorSummary(ctx, defaultErrorLimit)))
}

// handleBackupsResource returns every backup.
func (s *Server) handleBackupsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	entries, err := s.ports.Backup.ListBackups(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing backups: %w", err)
	}

	out := make([]BackupOutput, len(entries))
	for i := range entries {
		out[i] = toBackupOutput(entries[i])
	}
	return jsonResource(req.Params.URI, out)
}

// handleBackupResource returns a single backup by exact name.
func (s *Server) handleBackupResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	// Extract name from URI: recall://backups/{name}
	name := extractBackupName(req.Params.URI)
	if name == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	entries, err := s.ports.Backup.ListBackups(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing backups: %w", err)
	}
	for i := range entries {
		if entries[i].Name == name {
			return jsonResource(req.Params.URI, toBackupOutput(entries[i]))
		}
	}
	return nil, mcp.ResourceNotFoundError(req.Params.URI)
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling %s: %w", uri, err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// extractBackupName extracts the backup name from a URI like recall://backups/{name}.
func extractBackupName(uri string) string {
	const prefix = uriScheme + "backups/"

	if !strings.HasPrefix(uri, prefix) {
		return ""
	}

	name := strings.TrimPrefix(uri, prefix)
	if strings.Contains(name, "/") {
		return ""
	}
	return name
}
