package normalisers

import (
	"context"
	"fmt"
	"mime"
	"sort"
	"sync"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
	"github.com/custodia-labs/recall/internal/normalisers/docx"
	"github.com/custodia-labs/recall/internal/normalisers/html"
	"github.com/custodia-labs/recall/internal/normalisers/markdown"
	"github.com/custodia-labs/recall/internal/normalisers/plaintext"
)

// Ensure Registry implements the interface.
var _ driven.Normaliser = (*Registry)(nil)

// Registry dispatches documents to the highest-priority normaliser for
// their MIME type. Text it has no normaliser for goes to the fallback.
type Registry struct {
	mu       sync.RWMutex
	byType   map[string][]driven.Normaliser
	fallback driven.Normaliser
}

// NewRegistry creates a registry with the plain text fallback and the given normalisers.
func NewRegistry(normalisers ...driven.Normaliser) *Registry {
	r := &Registry{
		byType:   make(map[string][]driven.Normaliser),
		fallback: plaintext.New(),
	}
	for _, n := range normalisers {
		r.Register(n)
	}
	return r
}

// DefaultRegistry returns a registry with every built-in normaliser.
func DefaultRegistry() *Registry {
	return NewRegistry(
		plaintext.New(),
		markdown.New(),
		html.New(),
		docx.New(),
	)
}

// Register adds a normaliser for each of its MIME types.
func (r *Registry) Register(n driven.Normaliser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range n.SupportedMIMETypes() {
		list := append(r.byType[t], n)
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].Priority() > list[j].Priority()
		})
		r.byType[t] = list
	}
}

// SupportedMIMETypes returns every registered MIME type, sorted.
func (r *Registry) SupportedMIMETypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.byType))
	for t := range r.byType {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Priority returns the selection priority.
func (r *Registry) Priority() int {
	return 100
}

// Lookup returns the normaliser that would handle mimeType, or nil.
func (r *Registry) Lookup(mimeType string) driven.Normaliser {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if list := r.byType[mimeType]; len(list) > 0 {
		return list[0]
	}
	return nil
}

// Normalise detects the document type and runs the matching normaliser.
// Binary content with no registered normaliser is rejected.
func (r *Registry) Normalise(ctx context.Context, raw *domain.RawDocument) (*domain.Document, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	detected := *raw
	detected.MIMEType = DetectMIMEType(raw)

	if n := r.Lookup(detected.MIMEType); n != nil {
		return n.Normalise(ctx, &detected)
	}
	if !utf8.Valid(raw.Content) {
		return nil, fmt.Errorf("%w: cannot extract text from %s", domain.ErrUnsupportedType, detected.MIMEType)
	}
	return r.fallback.Normalise(ctx, &detected)
}

// DetectMIMEType returns the declared type of raw unless it is missing or
// the generic default, in which case the content is sniffed. Undetectable
// binary content comes back as application/octet-stream.
func DetectMIMEType(raw *domain.RawDocument) string {
	if raw.MIMEType != "" && raw.MIMEType != domain.DefaultMIMEType {
		return raw.MIMEType
	}
	if len(raw.Content) == 0 {
		return domain.DefaultMIMEType
	}
	sniffed := mimetype.Detect(raw.Content).String()
	if base, _, err := mime.ParseMediaType(sniffed); err == nil {
		sniffed = base
	}
	return sniffed
}
