// Build-artifact detection from language-specific project files, grounded
// on the teacher's internal/config/build_artifact_detector.go. It enriches
// Filter.ExcludePatterns with the output directories a project's own
// build config declares, so FileFilter (spec §4.1) doesn't have to hardcode
// every language's output directory convention.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// EnrichExclusionsWithBuildArtifacts appends detected build-output globs to
// cfg.Filter.ExcludePatterns and deduplicates the result.
func EnrichExclusionsWithBuildArtifacts(cfg *Config) error {
	if cfg.Project.Root == "" {
		return nil
	}

	patterns, err := detectOutputDirectories(cfg.Project.Root)
	if err != nil {
		return err
	}
	if len(patterns) == 0 {
		return nil
	}

	cfg.Filter.ExcludePatterns = dedupe(append(cfg.Filter.ExcludePatterns, patterns...))
	return nil
}

func detectOutputDirectories(root string) ([]string, error) {
	var patterns []string

	patterns = append(patterns, detectRustOutputs(root)...)
	patterns = append(patterns, detectJSOutputs(root)...)

	return patterns, nil
}

// detectRustOutputs reads Cargo.toml for a custom target-dir, falling back
// to the conventional "target" directory when present.
func detectRustOutputs(root string) []string {
	path := filepath.Join(root, "Cargo.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var manifest struct {
		Build struct {
			TargetDir string `toml:"target-dir"`
		} `toml:"build"`
	}
	if err := toml.Unmarshal(data, &manifest); err != nil {
		return []string{"**/target/**"}
	}

	dir := manifest.Build.TargetDir
	if dir == "" {
		dir = "target"
	}
	return []string{"**/" + dir + "/**"}
}

// detectJSOutputs returns the conventional dist/build globs when a parsable
// package.json exists, plus node_modules when it declares workspaces. Its
// scripts and other keys are not inspected.
func detectJSOutputs(root string) []string {
	path := filepath.Join(root, "package.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var pkg map[string]any
	if json.Unmarshal(data, &pkg) != nil {
		return nil
	}

	patterns := []string{"**/dist/**", "**/build/**"}
	if _, ok := pkg["workspaces"]; ok {
		patterns = append(patterns, "**/node_modules/**")
	}
	return patterns
}

func dedupe(patterns []string) []string {
	seen := make(map[string]bool, len(patterns))
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}
