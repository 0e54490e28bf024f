package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/ingestd/internal/config"
	"github.com/standardbeagle/ingestd/internal/extract"
	"github.com/standardbeagle/ingestd/internal/types"
)

func defaultCfg() config.Chunker {
	return config.Chunker{
		MaxChunkSize:       200,
		MinChunkSize:       20,
		OverlapSize:        10,
		MinImportanceScore: 0.0,
		MinComplexityScore: 0.0,
		PreserveStructure:  true,
		MergeSmallBlocks:   true,
		SplitLargeBlocks:   true,
	}
}

func TestNew_RejectsInvalidSizes(t *testing.T) {
	_, err := New(config.Chunker{MaxChunkSize: 10, MinChunkSize: 20, OverlapSize: 5})
	assert.Error(t, err)
}

func TestChunk_SingleBlockFitsWhole(t *testing.T) {
	c, err := New(defaultCfg())
	require.NoError(t, err)

	fs := &types.FileStructure{
		FilePath: "/abs/notes.txt",
		Blocks: []types.Block{
			{Content: strings.Repeat("word ", 10), BlockType: types.BlockParagraph, ImportanceScore: 0.6},
		},
	}

	chunks := c.Chunk(fs)
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Ordinal)
	assert.NotEmpty(t, chunks[0].ChunkID)
	assert.NotEmpty(t, chunks[0].SourceID)
}

func TestChunk_DropsBelowImportanceAndSize(t *testing.T) {
	cfg := defaultCfg()
	cfg.MinImportanceScore = 0.5
	c, err := New(cfg)
	require.NoError(t, err)

	fs := &types.FileStructure{
		FilePath: "/abs/notes.txt",
		Blocks: []types.Block{
			{Content: "short", BlockType: types.BlockParagraph, ImportanceScore: 0.2},
		},
	}

	chunks := c.Chunk(fs)
	assert.Empty(t, chunks)
}

func TestChunk_KeepsShortHighImportanceBlock(t *testing.T) {
	c, err := New(defaultCfg())
	require.NoError(t, err)

	fs := &types.FileStructure{
		FilePath: "/abs/notes.txt",
		Blocks: []types.Block{
			{Content: "short", BlockType: types.BlockParagraph, ImportanceScore: 0.9},
		},
	}

	chunks := c.Chunk(fs)
	require.Len(t, chunks, 1)
}

func TestChunk_SplitsLargeBlockWithOverlap(t *testing.T) {
	c, err := New(defaultCfg())
	require.NoError(t, err)

	var paras []string
	for i := 0; i < 10; i++ {
		paras = append(paras, strings.Repeat("x", 30))
	}
	content := strings.Join(paras, "\n\n")

	fs := &types.FileStructure{
		FilePath: "/abs/big.txt",
		Blocks: []types.Block{
			{Content: content, BlockType: types.BlockParagraph, ImportanceScore: 0.6, BlockID: "parent-1"},
		},
	}

	chunks := c.Chunk(fs)
	require.Greater(t, len(chunks), 1)
	for i := 1; i < len(chunks); i++ {
		assert.Equal(t, chunks[i].Ordinal, i)
	}
}

func TestChunk_PropagatesParentIDFromRealExtractorBlock(t *testing.T) {
	cfg := defaultCfg()
	cfg.MaxChunkSize = 60
	c, err := New(cfg)
	require.NoError(t, err)

	paragraph := strings.Repeat("A long enough sentence to force a split. ", 10)
	te := extract.NewTextExtractor(extract.TextConfig{MinParagraphLength: 10, MaxParagraphLength: 2000})
	fs, err := te.Parse("/abs/big.txt", []byte(paragraph))
	require.NoError(t, err)
	require.Len(t, fs.Blocks, 1)
	require.NotEmpty(t, fs.Blocks[0].BlockID)

	chunks := c.Chunk(fs)
	require.Greater(t, len(chunks), 1)
	for i := range chunks {
		require.NotNil(t, chunks[i].Metadata)
		assert.Equal(t, fs.Blocks[0].BlockID, chunks[i].Metadata["parent_id"])
	}
}

func TestChunk_SizeOnlyModeAccumulatesUntilLimit(t *testing.T) {
	cfg := defaultCfg()
	cfg.PreserveStructure = false
	c, err := New(cfg)
	require.NoError(t, err)

	fs := &types.FileStructure{
		FilePath: "/abs/log.txt",
		Blocks: []types.Block{
			{Content: strings.Repeat("a", 50), ImportanceScore: 0.6, Position: types.Position{StartLine: 1, EndLine: 1}},
			{Content: strings.Repeat("b", 50), ImportanceScore: 0.6, Position: types.Position{StartLine: 2, EndLine: 2}},
			{Content: strings.Repeat("c", 150), ImportanceScore: 0.6, Position: types.Position{StartLine: 3, EndLine: 3}},
		},
	}

	chunks := c.Chunk(fs)
	require.GreaterOrEqual(t, len(chunks), 2)
}

func TestChunk_SourceIDStableAcrossRuns(t *testing.T) {
	c, err := New(defaultCfg())
	require.NoError(t, err)

	fs := &types.FileStructure{
		FilePath: "/abs/notes.txt",
		Blocks:   []types.Block{{Content: strings.Repeat("w ", 15), ImportanceScore: 0.6}},
	}

	first := c.Chunk(fs)
	second := c.Chunk(fs)
	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].SourceID, second[0].SourceID)
}
