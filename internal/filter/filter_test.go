package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/ingestd/internal/config"
)

func baseCfg() config.Filter {
	return config.Filter{
		MaxFileSize:     1000,
		MinFileSize:     10,
		ExcludePatterns: []string{"**/node_modules/**", "**/*.min.js"},
		IncludePatterns: nil,
	}
}

func TestFilter_AcceptsPlainFile(t *testing.T) {
	f, err := New(baseCfg())
	require.NoError(t, err)

	dec := f.Filter(FileInput{Path: "main.go", RelPath: "main.go", SizeBytes: 100})
	assert.True(t, dec.Accepted)
}

func TestFilter_RejectsByExtension(t *testing.T) {
	cfg := baseCfg()
	cfg.SupportedExtensions = []string{".go", ".md"}
	f, err := New(cfg)
	require.NoError(t, err)

	dec := f.Filter(FileInput{Path: "image.png", RelPath: "image.png", SizeBytes: 100})
	assert.False(t, dec.Accepted)
	assert.Contains(t, dec.Reason, "extension_filter")
}

func TestFilter_RejectsBySizeBand(t *testing.T) {
	f, err := New(baseCfg())
	require.NoError(t, err)

	tooBig := f.Filter(FileInput{Path: "big.go", RelPath: "big.go", SizeBytes: 10000})
	assert.False(t, tooBig.Accepted)
	assert.Contains(t, tooBig.Reason, "size_filter")

	tooSmall := f.Filter(FileInput{Path: "tiny.go", RelPath: "tiny.go", SizeBytes: 1})
	assert.False(t, tooSmall.Accepted)
	assert.Contains(t, tooSmall.Reason, "size_filter")
}

func TestFilter_RejectsByExcludePattern(t *testing.T) {
	f, err := New(baseCfg())
	require.NoError(t, err)

	dec := f.Filter(FileInput{Path: "node_modules/react/index.js", RelPath: "node_modules/react/index.js", SizeBytes: 100})
	assert.False(t, dec.Accepted)
	assert.Contains(t, dec.Reason, "exclude_pattern")
}

func TestFilter_RejectsWhenNotIncluded(t *testing.T) {
	cfg := baseCfg()
	cfg.IncludePatterns = []string{"**/*.go"}
	f, err := New(cfg)
	require.NoError(t, err)

	rejected := f.Filter(FileInput{Path: "notes.txt", RelPath: "notes.txt", SizeBytes: 100})
	assert.False(t, rejected.Accepted)
	assert.Contains(t, rejected.Reason, "include_pattern")

	accepted := f.Filter(FileInput{Path: "main.go", RelPath: "main.go", SizeBytes: 100})
	assert.True(t, accepted.Accepted)
}

func TestFilter_EvaluationOrder_ExtensionWinsOverSize(t *testing.T) {
	cfg := baseCfg()
	cfg.SupportedExtensions = []string{".go"}
	f, err := New(cfg)
	require.NoError(t, err)

	dec := f.Filter(FileInput{Path: "huge.png", RelPath: "huge.png", SizeBytes: 999999})
	assert.False(t, dec.Accepted)
	assert.Contains(t, dec.Reason, "extension_filter", "extension check must run before size band")
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := baseCfg()
	cfg.MaxFileSize = 0
	_, err := New(cfg)
	assert.Error(t, err)
}
