package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_PassesValidate(t *testing.T) {
	cfg := Default()
	assert.NoError(t, Validate(cfg))
}

func TestValidate_RejectsBadChunkerSizes(t *testing.T) {
	cfg := Default()
	cfg.Chunker.OverlapSize = cfg.Chunker.MinChunkSize
	assert.Error(t, Validate(cfg))
}

func TestValidate_RejectsZeroMaxConcurrentDirectories(t *testing.T) {
	cfg := Default()
	cfg.Orchestrator.MaxConcurrentDirectories = 0
	assert.Error(t, Validate(cfg))
}

func TestLoadKDL_ParsesScannerAndChunkerSections(t *testing.T) {
	dir := t.TempDir()
	kdl := `
project {
    name "demo"
}
scanner {
    max_depth 5
    batch_size 20
}
chunker {
    max_chunk_size 1000
    min_chunk_size 100
    overlap_size 20
}
exclude {
    "**/fixtures/**"
}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, configFileName), []byte(kdl), 0o644))

	cfg, err := LoadKDL(dir)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "demo", cfg.Project.Name)
	assert.Equal(t, 5, cfg.Scanner.MaxDepth)
	assert.Equal(t, 20, cfg.Scanner.BatchSize)
	assert.Equal(t, 1000, cfg.Chunker.MaxChunkSize)
	assert.Equal(t, []string{"**/fixtures/**"}, cfg.Filter.ExcludePatterns)
}

func TestLoadKDL_ReturnsNilWhenAbsent(t *testing.T) {
	cfg, err := LoadKDL(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestMergeConfigs_ProjectWinsExclusionsUnion(t *testing.T) {
	base := Default()
	base.Filter.ExcludePatterns = []string{"**/base-only/**"}
	project := Default()
	project.Worker.MaxWorkers = 7
	project.Filter.ExcludePatterns = []string{"**/project-only/**"}

	merged := mergeConfigs(base, project)
	assert.Equal(t, 7, merged.Worker.MaxWorkers)
	assert.Contains(t, merged.Filter.ExcludePatterns, "**/base-only/**")
	assert.Contains(t, merged.Filter.ExcludePatterns, "**/project-only/**")
}

func TestEnrichExclusionsWithBuildArtifacts_DetectsCargoTarget(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Cargo.toml"), []byte("[package]\nname=\"x\"\n"), 0o644))

	cfg := Default()
	cfg.Project.Root = dir
	require.NoError(t, EnrichExclusionsWithBuildArtifacts(cfg))
	assert.Contains(t, cfg.Filter.ExcludePatterns, "**/target/**")
}
