package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/ingestd/internal/types"
)

func TestTextExtractor_CanProcess(t *testing.T) {
	e := NewTextExtractor(DefaultTextConfig())
	assert.True(t, e.CanProcess("notes.txt", nil))
	assert.True(t, e.CanProcess("README.readme", nil))
	assert.False(t, e.CanProcess("main.go", nil))
	assert.True(t, e.CanProcess("LICENSE", []byte("MIT License\n\nCopyright")))
}

func TestTextExtractor_SplitsParagraphsAndClassifiesHeading(t *testing.T) {
	e := NewTextExtractor(DefaultTextConfig())
	content := "Introduction\n============\n\nThis is a long enough paragraph of body text to survive the minimum paragraph length filter easily.\n\n- item one\n- item two\n"

	fs, err := e.Parse("notes.txt", []byte(content))
	require.NoError(t, err)
	require.NotEmpty(t, fs.Blocks)

	assert.Equal(t, types.BlockHeading, fs.Blocks[0].BlockType)
	assert.Equal(t, 1, fs.Blocks[0].Level)

	var sawListItem bool
	for _, b := range fs.Blocks {
		if b.BlockType == types.BlockListItem {
			sawListItem = true
		}
	}
	assert.True(t, sawListItem)
}

func TestTextExtractor_DropsLowDensityAndShortParagraphs(t *testing.T) {
	e := NewTextExtractor(TextConfig{MinParagraphLength: 20, MaxParagraphLength: 2000})
	content := "ok\n\n---===---===---===\n\nThis paragraph is long enough to be kept by the extractor's filter rules."

	fs, err := e.Parse("notes.txt", []byte(content))
	require.NoError(t, err)

	for _, b := range fs.Blocks {
		assert.NotEqual(t, "ok", b.Content)
	}
}

func TestTextExtractor_ImportanceScoreBoostedByKeyword(t *testing.T) {
	plain := importanceScore("This is a perfectly ordinary sentence about nothing in particular here today.")
	warned := importanceScore("WARNING: this is a perfectly ordinary sentence about nothing in particular today.")
	assert.Greater(t, warned, plain)
}

func TestTextExtractor_AssignsStableBlockIDs(t *testing.T) {
	e := NewTextExtractor(DefaultTextConfig())
	content := "This is a long enough paragraph of body text to survive the minimum paragraph length filter easily."

	first, err := e.Parse("notes.txt", []byte(content))
	require.NoError(t, err)
	second, err := e.Parse("notes.txt", []byte(content))
	require.NoError(t, err)

	require.NotEmpty(t, first.Blocks)
	for _, b := range first.Blocks {
		assert.NotEmpty(t, b.BlockID)
	}
	require.Len(t, second.Blocks, len(first.Blocks))
	for i := range first.Blocks {
		assert.Equal(t, first.Blocks[i].BlockID, second.Blocks[i].BlockID)
	}
}
