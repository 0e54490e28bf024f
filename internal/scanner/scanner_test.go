package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/ingestd/internal/config"
	"github.com/standardbeagle/ingestd/internal/filter"
	"github.com/standardbeagle/ingestd/internal/lock"
)

func mustFilter(t *testing.T) *filter.Filter {
	t.Helper()
	f, err := filter.New(config.Filter{MaxFileSize: 1 << 20})
	require.NoError(t, err)
	return f
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestScan_ReturnsFilesSortedByPath(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "b.go"), "package b")
	writeFile(t, filepath.Join(root, "a.go"), "package a")
	writeFile(t, filepath.Join(root, "sub", "c.go"), "package c")

	cfg := config.Scanner{MaxDepth: 10, BatchSize: 10, Timeout: 30}
	s := New(cfg, mustFilter(t), lock.New())

	files, err := s.Scan(context.Background(), root, nil)
	require.NoError(t, err)
	require.Len(t, files, 3)

	for i := 1; i < len(files); i++ {
		assert.Less(t, files[i-1].Path, files[i].Path)
	}
}

func TestScan_PrunesAtMaxDepth(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "top.go"), "package top")
	writeFile(t, filepath.Join(root, "deep", "nested.go"), "package deep")

	cfg := config.Scanner{MaxDepth: 1, BatchSize: 10, Timeout: 30}
	s := New(cfg, mustFilter(t), lock.New())

	files, err := s.Scan(context.Background(), root, nil)
	require.NoError(t, err)

	for _, f := range files {
		assert.NotContains(t, f.Path, "nested.go")
	}
}

func TestScan_FailsOnMissingRoot(t *testing.T) {
	cfg := config.Scanner{MaxDepth: 10, BatchSize: 10, Timeout: 30}
	s := New(cfg, mustFilter(t), lock.New())

	_, err := s.Scan(context.Background(), "/no/such/dir/ingestd-test", nil)
	assert.Error(t, err)
}

func TestScan_EmitsProgressCallbacks(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.go"), "package a")

	cfg := config.Scanner{MaxDepth: 10, BatchSize: 1, Timeout: 30}
	s := New(cfg, mustFilter(t), lock.New())

	var phases []Phase
	_, err := s.Scan(context.Background(), root, func(p Progress) {
		phases = append(phases, p.Phase)
	})
	require.NoError(t, err)
	assert.Contains(t, phases, PhaseFiltering)
	assert.Contains(t, phases, PhaseCompleted)
}

func TestScan_ReleasesLockAfterScan(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.go"), "package a")

	cfg := config.Scanner{MaxDepth: 10, BatchSize: 10, Timeout: 30}
	mgr := lock.New()
	s := New(cfg, mustFilter(t), mgr)

	_, err := s.Scan(context.Background(), root, nil)
	require.NoError(t, err)

	lk, err := mgr.Inspect(root)
	require.NoError(t, err)
	assert.Nil(t, lk, "lock should be released once the scan completes")
}
