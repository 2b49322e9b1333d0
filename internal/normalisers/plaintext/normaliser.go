package plaintext

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles plain text and source code.
type Normaliser struct{}

// New creates a new plain text normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{
		"text/plain",
		"text/x-go",
		"text/x-python",
		"text/x-rust",
		"text/x-java",
		"text/x-c",
		"text/x-shellscript",
		"text/csv",
		"text/yaml",
		"text/toml",
		"text/javascript",
		"text/css",
		"application/json",
		"application/xml",
	}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 5 // Fallback normaliser
}

// Normalise converts raw bytes to a document. Line endings are unified and
// trailing whitespace is trimmed; otherwise the text is kept as-is.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawDocument) (*domain.Document, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	content := strings.ReplaceAll(string(raw.Content), "\r\n", "\n")
	content = strings.TrimRight(content, " \t\n")

	meta := CopyMetadata(raw.Metadata)
	meta["mime_type"] = raw.MIMEType

	return &domain.Document{
		Source:   raw.Source,
		Title:    TitleFor(raw),
		Content:  content,
		Metadata: meta,
	}, nil
}

// TitleFor returns the title metadata if present, otherwise a title
// derived from the file name (or source label for inline text).
func TitleFor(raw *domain.RawDocument) string {
	if t := raw.Metadata["title"]; t != "" {
		return t
	}
	name := raw.Path
	if name == "" {
		name = raw.Source
	}
	return TitleFromName(name)
}

// TitleFromName turns "meeting_notes-2024.txt" into "meeting notes 2024".
func TitleFromName(name string) string {
	base := filepath.Base(name)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.NewReplacer("_", " ", "-", " ").Replace(base)
}

// CopyMetadata returns a non-nil copy of src.
func CopyMetadata(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src)+2)
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
