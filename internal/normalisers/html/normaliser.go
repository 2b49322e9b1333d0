package html

import (
	"context"
	"html"
	"regexp"
	"strings"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
	"github.com/custodia-labs/recall/internal/normalisers/plaintext"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles HTML documents.
type Normaliser struct{}

// New creates a new HTML normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{"text/html", "application/xhtml+xml"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50
}

// Normalise extracts the readable text of an HTML page.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawDocument) (*domain.Document, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	src := string(raw.Content)

	title := extractTitle(src)
	if title == "" {
		title = plaintext.TitleFor(raw)
	}

	meta := plaintext.CopyMetadata(raw.Metadata)
	meta["mime_type"] = raw.MIMEType
	meta["format"] = "html"

	return &domain.Document{
		Source:   raw.Source,
		Title:    title,
		Content:  stripHTML(src),
		Metadata: meta,
	}, nil
}

// Pre-compiled regular expressions for HTML parsing performance.
var (
	titleTag   = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	dropBlocks = []*regexp.Regexp{
		regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`),
		regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`),
		regexp.MustCompile(`(?is)<noscript[^>]*>.*?</noscript>`),
		regexp.MustCompile(`(?is)<head[^>]*>.*?</head>`),
		regexp.MustCompile(`(?is)<svg[^>]*>.*?</svg>`),
		regexp.MustCompile(`(?s)<!--.*?-->`),
	}
	blockBoundary = regexp.MustCompile(`(?i)</?(p|div|h[1-6]|li|tr|blockquote|pre|table|section|article)[^>]*>|<(br|hr)\s*/?>`)
	anyTag        = regexp.MustCompile(`<[^>]+>`)
	multiSpaces   = regexp.MustCompile(`[ \t]+`)
)

// extractTitle returns the decoded <title> text, or "" if there is none.
func extractTitle(src string) string {
	m := titleTag.FindStringSubmatch(src)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(m[1]))
}

// stripHTML removes tags and non-content elements, one block per line.
func stripHTML(src string) string {
	for _, re := range dropBlocks {
		src = re.ReplaceAllString(src, "")
	}
	src = blockBoundary.ReplaceAllString(src, "\n")
	src = anyTag.ReplaceAllString(src, "")
	src = html.UnescapeString(src)
	src = multiSpaces.ReplaceAllString(src, " ")

	lines := strings.Split(src, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
