package process

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/ingestd/internal/chunker"
	"github.com/standardbeagle/ingestd/internal/config"
	"github.com/standardbeagle/ingestd/internal/extract"
	"github.com/standardbeagle/ingestd/internal/store"
)

func newProcessor(t *testing.T) (*Processor, *store.MemoryVectorStore, *store.MemoryMetadataStore) {
	t.Helper()
	c, err := chunker.New(config.Chunker{
		MaxChunkSize: 2000, MinChunkSize: 10, OverlapSize: 5,
		PreserveStructure: true, MergeSmallBlocks: true, SplitLargeBlocks: true,
	})
	require.NoError(t, err)
	vs := store.NewMemoryVectorStore()
	ms := store.NewMemoryMetadataStore()
	return New(extract.NewRegistry(), c, vs, ms), vs, ms
}

func TestProcess_CompletesAndPersistsChunksAndRecord(t *testing.T) {
	p, vs, ms := newProcessor(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("This is a long enough paragraph of body text for the extractor to keep it around."), 0o644))

	res := p.Process(context.Background(), path)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, 1, res.ChunksCreated)
	assert.NotEmpty(t, vs.Chunks())

	rec, ok, err := ms.GetFileRecord(context.Background(), path)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, rec.ChunksCreated)
}

func TestProcess_EmptyBlocksShortCircuitsSuccess(t *testing.T) {
	p, vs, _ := newProcessor(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.txt")
	require.NoError(t, os.WriteFile(path, []byte(""), 0o644))

	res := p.Process(context.Background(), path)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, 0, res.ChunksCreated)
	assert.Empty(t, vs.Chunks())
}

func TestProcess_MissingFileFails(t *testing.T) {
	p, _, _ := newProcessor(t)
	res := p.Process(context.Background(), "/no/such/file-ingestd-test.txt")
	assert.Equal(t, StatusFailed, res.Status)
	assert.NotEmpty(t, res.ErrorMessage)
}

func TestProcess_UnsupportedExtensionFails(t *testing.T) {
	p, _, _ := newProcessor(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "image.binxyz")
	require.NoError(t, os.WriteFile(path, []byte{0xff, 0xd8, 0xff, 0x00, 0x01}, 0o644))

	res := p.Process(context.Background(), path)
	assert.Equal(t, StatusFailed, res.Status)
}

func TestProcessBatch_IsolatesPerFileFailure(t *testing.T) {
	p, _, _ := newProcessor(t)
	dir := t.TempDir()
	good := filepath.Join(dir, "good.txt")
	require.NoError(t, os.WriteFile(good, []byte("A perfectly reasonable paragraph of prose that will survive filtering easily."), 0o644))

	results := p.ProcessBatch(context.Background(), []string{good, "/no/such/bad-ingestd-test.txt"})
	require.Len(t, results, 2)
	assert.Equal(t, StatusCompleted, results[0].Status)
	assert.Equal(t, StatusFailed, results[1].Status)
}

func TestProcess_RollsBackOnVectorStoreFailure(t *testing.T) {
	c, err := chunker.New(config.Chunker{
		MaxChunkSize: 100, MinChunkSize: 10, OverlapSize: 5,
		PreserveStructure: false, MergeSmallBlocks: false, SplitLargeBlocks: false,
	})
	require.NoError(t, err)
	vs := store.NewMemoryVectorStore()
	vs.FailAfter = 2 // let the first chunk commit, then fail on the second
	ms := store.NewMemoryMetadataStore()
	p := New(extract.NewRegistry(), c, vs, ms)

	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	body := strings.Repeat("Paragraph one has enough body text to stand on its own merit.\n\n", 6)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	res := p.Process(context.Background(), path)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Empty(t, vs.Chunks(), "the first committed chunk must be rolled back when a later one fails")

	rec, ok, err := ms.GetFileRecord(context.Background(), path)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "FAILED", string(rec.Status))
}

func TestMemoryVectorStore_DeleteAfterFailure(t *testing.T) {
	vs := store.NewMemoryVectorStore()
	require.NoError(t, vs.CreateChunk(context.Background(), "a", "x", nil))
	vs.FailOn = "b"
	err := vs.CreateChunk(context.Background(), "b", "y", nil)
	assert.Error(t, err)

	require.NoError(t, vs.DeleteChunk(context.Background(), "a"))
	assert.Empty(t, vs.Chunks())
}
