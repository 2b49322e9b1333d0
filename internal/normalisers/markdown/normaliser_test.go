package markdown

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/recall/internal/core/domain"
)

func TestSupportedMIMETypes(t *testing.T) {
	mimeTypes := New().SupportedMIMETypes()
	assert.ElementsMatch(t, []string{"text/markdown", "text/x-markdown"}, mimeTypes)
}

func TestPriority(t *testing.T) {
	assert.Equal(t, 50, New().Priority())
}

func TestNormalise_Success(t *testing.T) {
	src := "# Deploy Guide\n\nRun **make release** then see [the runbook](https://example.com/rb).\n\n- step one\n- step two\n"
	raw := &domain.RawDocument{
		Source:   "deploy.md",
		Path:     "/notes/deploy.md",
		MIMEType: "text/markdown",
		Content:  []byte(src),
	}

	doc, err := New().Normalise(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, "Deploy Guide", doc.Title)
	assert.Equal(t, "deploy.md", doc.Source)
	assert.Equal(t, "markdown", doc.Metadata["format"])
	assert.Equal(t, "Deploy Guide\n\nRun make release then see the runbook.\n\nstep one\nstep two", doc.Content)
}

func TestNormalise_TitleFallsBackToFileName(t *testing.T) {
	raw := &domain.RawDocument{Source: "release_notes.md", Path: "release_notes.md", Content: []byte("## Only a subheading")}

	doc, err := New().Normalise(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "release notes", doc.Title)
	assert.Equal(t, "Only a subheading", doc.Content)
}

func TestNormalise_NilDocument(t *testing.T) {
	_, err := New().Normalise(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

// ==================== stripMarkdown Tests ====================

func TestStripMarkdown(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"keeps code block contents", "```go\nfmt.Println(1)\n```", "fmt.Println(1)"},
		{"inline code", "use `go test` here", "use go test here"},
		{"image alt text", "![diagram](a.png)", "diagram"},
		{"blockquote", "> quoted", "quoted"},
		{"numbered list", "1. first\n2. second", "first\nsecond"},
		{"horizontal rule", "above\n---\nbelow", "above\n\nbelow"},
		{"snake case untouched", "call load_config_file", "call load_config_file"},
		{"emphasis", "*very* __important__", "very important"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripMarkdown(tt.in))
		})
	}
}

func TestNormalise_StripsFrontMatter(t *testing.T) {
	raw := &domain.RawDocument{Source: "post.md", Content: []byte("---\ntitle: x\n---\n# Post\nbody")}

	doc, err := New().Normalise(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "Post", doc.Title)
	assert.Equal(t, "Post\nbody", doc.Content)
}
