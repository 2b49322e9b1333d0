package normalisers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/recall/internal/core/domain"
)

type stubNormaliser struct {
	types    []string
	priority int
	title    string
}

func (s *stubNormaliser) SupportedMIMETypes() []string { return s.types }
func (s *stubNormaliser) Priority() int                { return s.priority }
func (s *stubNormaliser) Normalise(_ context.Context, raw *domain.RawDocument) (*domain.Document, error) {
	return &domain.Document{Source: raw.Source, Title: s.title, Content: string(raw.Content)}, nil
}

func TestDefaultRegistry_SupportedTypes(t *testing.T) {
	types := DefaultRegistry().SupportedMIMETypes()

	assert.Contains(t, types, "text/plain")
	assert.Contains(t, types, "text/markdown")
	assert.Contains(t, types, "text/html")
	assert.Contains(t, types, "application/vnd.openxmlformats-officedocument.wordprocessingml.document")
	assert.IsIncreasing(t, types)
}

func TestRegistry_HighestPriorityWins(t *testing.T) {
	low := &stubNormaliser{types: []string{"text/x-custom"}, priority: 10, title: "low"}
	high := &stubNormaliser{types: []string{"text/x-custom"}, priority: 90, title: "high"}
	r := NewRegistry(low, high)

	doc, err := r.Normalise(context.Background(), &domain.RawDocument{Source: "a", MIMEType: "text/x-custom", Content: []byte("x")})
	require.NoError(t, err)
	assert.Equal(t, "high", doc.Title)
}

func TestRegistry_DispatchesByDeclaredType(t *testing.T) {
	r := DefaultRegistry()

	doc, err := r.Normalise(context.Background(), &domain.RawDocument{
		Source:   "guide.md",
		MIMEType: "text/markdown",
		Content:  []byte("# Guide\n\n**bold** text"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Guide", doc.Title)
	assert.Equal(t, "markdown", doc.Metadata["format"])
}

func TestRegistry_SniffsUndeclaredHTML(t *testing.T) {
	r := DefaultRegistry()

	doc, err := r.Normalise(context.Background(), &domain.RawDocument{
		Source:  "inline",
		Content: []byte("<!DOCTYPE html><html><head><title>Sniffed</title></head><body><p>hi</p></body></html>"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Sniffed", doc.Title)
	assert.Equal(t, "text/html", doc.Metadata["mime_type"])
}

func TestRegistry_UnknownTextFallsBackToPlaintext(t *testing.T) {
	r := NewRegistry()

	doc, err := r.Normalise(context.Background(), &domain.RawDocument{
		Source:   "notes.rst",
		MIMEType: "text/x-rst",
		Content:  []byte("Title\n=====\n"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Title\n=====", doc.Content)
	assert.Equal(t, "text/x-rst", doc.Metadata["mime_type"])
}

func TestRegistry_RejectsUnknownBinary(t *testing.T) {
	r := DefaultRegistry()

	_, err := r.Normalise(context.Background(), &domain.RawDocument{
		Source:   "blob.bin",
		MIMEType: "application/octet-stream",
		Content:  []byte{0xff, 0xfe, 0x00, 0x81},
	})
	assert.ErrorIs(t, err, domain.ErrUnsupportedType)
}

func TestRegistry_NilDocument(t *testing.T) {
	_, err := DefaultRegistry().Normalise(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestDetectMIMEType(t *testing.T) {
	assert.Equal(t, "text/markdown", DetectMIMEType(&domain.RawDocument{MIMEType: "text/markdown", Content: []byte("<html>")}))
	assert.Equal(t, domain.DefaultMIMEType, DetectMIMEType(&domain.RawDocument{}))
	assert.Equal(t, "text/plain", DetectMIMEType(&domain.RawDocument{Content: []byte("just words")}))
}

func TestRegistry_Lookup(t *testing.T) {
	r := DefaultRegistry()
	assert.NotNil(t, r.Lookup("text/html"))
	assert.Nil(t, r.Lookup("image/png"))
}
