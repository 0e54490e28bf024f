package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/ingestd/internal/types"
)

func TestCodeExtractor_CanProcess(t *testing.T) {
	e := NewCodeExtractor(DefaultCodeConfig())
	assert.True(t, e.CanProcess("main.go", nil))
	assert.True(t, e.CanProcess("app.py", nil))
	assert.True(t, e.CanProcess("index.tsx", nil))
	assert.False(t, e.CanProcess("README.md", nil))
}

func TestCodeExtractor_ParsesGoFunctions(t *testing.T) {
	e := NewCodeExtractor(DefaultCodeConfig())
	content := `package main

import "fmt"

// greet prints a friendly message.
func greet(name string) {
	if name == "" {
		name = "world"
	}
	fmt.Println("hello", name)
}

func main() {
	greet("gopher")
}
`
	fs, err := e.Parse("main.go", []byte(content))
	require.NoError(t, err)
	assert.Equal(t, "go", fs.Language)

	var names []string
	for _, b := range fs.Blocks {
		if b.BlockType == types.BlockFunction {
			names = append(names, b.Title)
		}
	}
	assert.Contains(t, names, "main")
}

func TestCodeExtractor_FallbackScannerFindsPythonDef(t *testing.T) {
	e := NewCodeExtractor(DefaultCodeConfig())
	blocks := e.parseWithFallback("def handler(event, context):\n    if event:\n        return True\n    return False\n\n\nclass Worker:\n    def run(self):\n        pass\n")

	var sawFunc, sawClass bool
	for _, b := range blocks {
		if b.BlockType == types.BlockFunction && b.Title == "handler" {
			sawFunc = true
		}
		if b.BlockType == types.BlockClass && b.Title == "Worker" {
			sawClass = true
		}
	}
	assert.True(t, sawFunc)
	assert.True(t, sawClass)
}

func TestCodeExtractor_AssignsStableBlockIDs(t *testing.T) {
	e := NewCodeExtractor(DefaultCodeConfig())
	content := `package main

func greet(name string) {
	if name == "" {
		name = "world"
	}
}
`
	first, err := e.Parse("main.go", []byte(content))
	require.NoError(t, err)
	second, err := e.Parse("main.go", []byte(content))
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

func TestChunkTypeForBlock_DraftOverride(t *testing.T) {
	assert.Equal(t, types.ChunkTypeDraft, ChunkTypeForBlock("notes/draft-ideas.md", types.BlockFunction))
	assert.Equal(t, types.ChunkTypeCode, ChunkTypeForBlock("main.go", types.BlockFunction))
	assert.Equal(t, types.ChunkTypeComment, ChunkTypeForBlock("main.go", types.BlockComment))
	assert.Equal(t, types.ChunkTypeDoc, ChunkTypeForBlock("README.md", types.BlockParagraph))
}
