package markdown

import (
	"context"
	"regexp"
	"strings"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
	"github.com/custodia-labs/recall/internal/normalisers/plaintext"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles Markdown documents.
type Normaliser struct{}

// New creates a new Markdown normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{"text/markdown", "text/x-markdown"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50
}

// Normalise converts markdown to plain text. Code block contents are kept
// because they are often what a user wants to recall later.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawDocument) (*domain.Document, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	src := strings.ReplaceAll(string(raw.Content), "\r\n", "\n")
	src = frontMatter.ReplaceAllString(src, "")

	title := extractTitle(src)
	if title == "" {
		title = plaintext.TitleFor(raw)
	}

	meta := plaintext.CopyMetadata(raw.Metadata)
	meta["mime_type"] = raw.MIMEType
	meta["format"] = "markdown"

	return &domain.Document{
		Source:   raw.Source,
		Title:    title,
		Content:  stripMarkdown(src),
		Metadata: meta,
	}, nil
}

var (
	frontMatter   = regexp.MustCompile(`(?s)\A---\n.*?\n---\n`)
	codeFence     = regexp.MustCompile("(?m)^```.*$")
	inlineCode    = regexp.MustCompile("`([^`]+)`")
	images        = regexp.MustCompile(`!\[([^\]]*)\]\([^)]+\)`)
	links         = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	headings      = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	emphasis      = regexp.MustCompile(`(\*\*|__|\*)([^*_\n]+)(\*\*|__|\*)`)
	blockquote    = regexp.MustCompile(`(?m)^>\s?`)
	rule          = regexp.MustCompile(`(?m)^\s*([-*_]\s*){3,}$`)
	bullets       = regexp.MustCompile(`(?m)^\s*[-*+]\s+`)
	numbered      = regexp.MustCompile(`(?m)^\s*\d+\.\s+`)
	multiNewlines = regexp.MustCompile(`\n{3,}`)
)

// extractTitle returns the text of the first level-one heading.
func extractTitle(src string) string {
	for _, line := range strings.Split(src, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(line[2:])
		}
	}
	return ""
}

// stripMarkdown removes markup while keeping the readable text.
func stripMarkdown(src string) string {
	out := codeFence.ReplaceAllString(src, "")
	out = inlineCode.ReplaceAllString(out, "$1")
	out = images.ReplaceAllString(out, "$1")
	out = links.ReplaceAllString(out, "$1")
	out = rule.ReplaceAllString(out, "")
	out = headings.ReplaceAllString(out, "")
	out = emphasis.ReplaceAllString(out, "$2")
	out = blockquote.ReplaceAllString(out, "")
	out = bullets.ReplaceAllString(out, "")
	out = numbered.ReplaceAllString(out, "")
	out = multiNewlines.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}
