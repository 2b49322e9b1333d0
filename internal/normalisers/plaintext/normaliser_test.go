package plaintext

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/recall/internal/core/domain"
)

func TestNew(t *testing.T) {
	normaliser := New()
	require.NotNil(t, normaliser)
	assert.IsType(t, &Normaliser{}, normaliser)
}

func TestSupportedMIMETypes(t *testing.T) {
	mimeTypes := New().SupportedMIMETypes()

	require.NotEmpty(t, mimeTypes)
	assert.Contains(t, mimeTypes, "text/plain")
	assert.Contains(t, mimeTypes, "text/x-go")
	assert.Contains(t, mimeTypes, "application/json")
	assert.NotContains(t, mimeTypes, "text/html")
}

func TestPriority(t *testing.T) {
	assert.Equal(t, 5, New().Priority())
}

func TestNormalise_Success(t *testing.T) {
	raw := &domain.RawDocument{
		Source:   "document.txt",
		Path:     "/path/to/document.txt",
		MIMEType: "text/plain",
		Content:  []byte("This is plain text content.\r\nSecond line.\n\n"),
	}

	doc, err := New().Normalise(context.Background(), raw)
	require.NoError(t, err)
	require.NotNil(t, doc)

	assert.Equal(t, "document.txt", doc.Source)
	assert.Equal(t, "document", doc.Title)
	assert.Equal(t, "This is plain text content.\nSecond line.", doc.Content)
	assert.Equal(t, "text/plain", doc.Metadata["mime_type"])
}

func TestNormalise_NilDocument(t *testing.T) {
	doc, err := New().Normalise(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Nil(t, doc)
}

func TestNormalise_TitleFromMetadata(t *testing.T) {
	raw := &domain.RawDocument{
		Source:   "a.txt",
		Path:     "/tmp/a.txt",
		Content:  []byte("x"),
		Metadata: map[string]string{"title": "Quarterly Plan"},
	}

	doc, err := New().Normalise(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "Quarterly Plan", doc.Title)
}

func TestNormalise_DoesNotMutateInputMetadata(t *testing.T) {
	meta := map[string]string{"team": "infra"}
	raw := &domain.RawDocument{Source: "inline", Content: []byte("x"), Metadata: meta}

	doc, err := New().Normalise(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, "infra", doc.Metadata["team"])
	_, leaked := meta["mime_type"]
	assert.False(t, leaked)
}

func TestTitleFromName(t *testing.T) {
	tests := map[string]string{
		"/docs/meeting_notes-2024.txt": "meeting notes 2024",
		"README":                       "README",
		"inline":                       "inline",
		"archive.tar.gz":               "archive.tar",
	}
	for name, want := range tests {
		assert.Equal(t, want, TitleFromName(name), name)
	}
}

func TestTitleFor_InlineUsesSource(t *testing.T) {
	assert.Equal(t, "team wiki", TitleFor(&domain.RawDocument{Source: "team-wiki"}))
}

func TestCopyMetadata_NilSource(t *testing.T) {
	dst := CopyMetadata(nil)
	require.NotNil(t, dst)
	assert.Empty(t, dst)
}
