package domain

import (
	"mime"
	"path/filepath"
	"strings"
)

// RawDocument is file or inline content before normalisation.
type RawDocument struct {
	// Source is the label chunks are attributed to (usually the file name).
	Source string

	// Path is the file the content was read from, empty for inline text.
	Path string

	MIMEType string
	Content  []byte
	Metadata map[string]string
}

// Document is normalised text ready for chunking.
type Document struct {
	Source   string
	Title    string
	Content  string
	Metadata map[string]string
}

// DefaultMIMEType is assumed for content whose type cannot be detected.
const DefaultMIMEType = "text/plain"

// extensionMIMETypes covers extensions the system MIME table often lacks.
var extensionMIMETypes = map[string]string{
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".txt":      "text/plain",
	".text":     "text/plain",
	".log":      "text/plain",
	".htm":      "text/html",
	".html":     "text/html",
	".xhtml":    "application/xhtml+xml",
	".go":       "text/x-go",
	".py":       "text/x-python",
	".json":     "application/json",
	".yaml":     "text/yaml",
	".yml":      "text/yaml",
	".toml":     "text/toml",
	".csv":      "text/csv",
	".docx":     "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// MIMETypeForPath guesses a MIME type from a file extension.
// Parameters such as charset are stripped.
func MIMETypeForPath(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if t, ok := extensionMIMETypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		if base, _, err := mime.ParseMediaType(t); err == nil {
			return base
		}
		return t
	}
	return DefaultMIMEType
}
