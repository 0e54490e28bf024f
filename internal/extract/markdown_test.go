package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/ingestd/internal/types"
)

func TestMarkdownExtractor_CanProcess(t *testing.T) {
	e := NewMarkdownExtractor()
	assert.True(t, e.CanProcess("README.md", nil))
	assert.True(t, e.CanProcess("doc.markdown", nil))
	assert.False(t, e.CanProcess("main.go", nil))
}

func TestMarkdownExtractor_ParsesHeadingCodeAndTable(t *testing.T) {
	e := NewMarkdownExtractor()
	content := "# Title\n\nSome intro paragraph text here.\n\n```go\nfunc main() {}\n```\n\n| a | b |\n|---|---|\n| 1 | 2 |\n"

	fs, err := e.Parse("doc.md", []byte(content))
	require.NoError(t, err)

	var kinds []types.BlockType
	for _, b := range fs.Blocks {
		kinds = append(kinds, b.BlockType)
	}
	assert.Contains(t, kinds, types.BlockHeading)
	assert.Contains(t, kinds, types.BlockCode)
	assert.Contains(t, kinds, types.BlockTable)

	for _, b := range fs.Blocks {
		if b.BlockType == types.BlockCode {
			assert.Equal(t, "go", b.Language)
		}
		if b.BlockType == types.BlockTable {
			assert.Equal(t, 3, b.Metadata["row_count"])
		}
	}
}

func TestMarkdownExtractor_AttachesLinkMetadataToParagraph(t *testing.T) {
	e := NewMarkdownExtractor()
	content := "See [our docs](https://example.com/docs) for more, and the ![logo](https://example.com/logo.png) above.\n"

	fs, err := e.Parse("doc.md", []byte(content))
	require.NoError(t, err)
	require.Len(t, fs.Blocks, 1)

	b := fs.Blocks[0]
	require.NotNil(t, b.Metadata)
	links, ok := b.Metadata["links"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, links, 1)
	assert.Equal(t, "https://example.com/docs", links[0]["href"])

	images, ok := b.Metadata["images"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, images, 1)
	assert.Equal(t, "https://example.com/logo.png", images[0]["src"])
}

func TestMarkdownExtractor_ListItemsAndBlockquotes(t *testing.T) {
	e := NewMarkdownExtractor()
	content := "- first\n- second\n\n> quoted line one\n> quoted line two\n"

	fs, err := e.Parse("doc.md", []byte(content))
	require.NoError(t, err)

	var sawList, sawQuote bool
	for _, b := range fs.Blocks {
		switch b.BlockType {
		case types.BlockListItem:
			sawList = true
		case types.BlockQuote:
			sawQuote = true
			assert.Contains(t, b.Content, "quoted line one")
		}
	}
	assert.True(t, sawList)
	assert.True(t, sawQuote)
}

func TestMarkdownExtractor_AssignsBlockIDs(t *testing.T) {
	e := NewMarkdownExtractor()
	content := "# Title\n\nSome intro paragraph text here.\n"

	fs, err := e.Parse("doc.md", []byte(content))
	require.NoError(t, err)
	require.NotEmpty(t, fs.Blocks)
	for _, b := range fs.Blocks {
		assert.NotEmpty(t, b.BlockID)
	}
}
