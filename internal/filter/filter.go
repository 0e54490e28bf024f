// Package filter implements C1 FileFilter (spec §4.1): per-file
// accept/reject decisions by extension, size band, and glob include/exclude
// patterns. Pattern matching uses bmatcuk/doublestar/v4, grounded directly
// on the teacher's internal/indexing/pipeline_types.go
// (shouldExcludeFast/shouldIncludeFast).
package filter

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/standardbeagle/ingestd/internal/config"
)

const filterName = "file_filter/v1"

// Decision is the outcome of evaluating one file.
type Decision struct {
	Accepted   bool
	Reason     string
	FilterName string
}

// Filter evaluates files against a config.Filter.
type Filter struct {
	cfg config.Filter
}

// New constructs a Filter, returning an error if cfg violates its invariants
// (spec §4.1: min_file_size <= max_file_size; max_file_size > 0).
func New(cfg config.Filter) (*Filter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Filter{cfg: cfg}, nil
}

// FileInput is the minimal information Filter needs about a candidate file;
// callers (the scanner) pass the relative path used for glob matching and
// the size/extension taken from the stat.
type FileInput struct {
	Path        string // absolute or relative; used only for extension/error messages
	RelPath     string // forward-slash path relative to the scan root, for glob matching
	SizeBytes   int64
}

// Filter evaluates one file, first-rejection-wins in the order spec §4.1
// specifies: extension -> size band -> exclude patterns -> include patterns.
// Any panic/error during evaluation is converted into a rejection rather
// than propagated, so one bad file never aborts a batch.
func (f *Filter) Filter(in FileInput) (dec Decision) {
	defer func() {
		if r := recover(); r != nil {
			dec = Decision{Accepted: false, Reason: fmt.Sprintf("filtering error: %v", r), FilterName: filterName}
		}
	}()

	if len(f.cfg.SupportedExtensions) > 0 {
		ext := strings.ToLower(filepath.Ext(in.Path))
		if !containsFold(f.cfg.SupportedExtensions, ext) {
			return Decision{Accepted: false, Reason: "extension_filter: " + ext, FilterName: filterName}
		}
	}

	if in.SizeBytes > f.cfg.MaxFileSize {
		return Decision{Accepted: false, Reason: "size_filter: exceeds max_file_size", FilterName: filterName}
	}
	if in.SizeBytes < f.cfg.MinFileSize {
		return Decision{Accepted: false, Reason: "size_filter: below min_file_size", FilterName: filterName}
	}

	rel := filepath.ToSlash(in.RelPath)
	for _, pattern := range f.cfg.ExcludePatterns {
		matched, err := doublestar.Match(pattern, rel)
		if err != nil {
			return Decision{Accepted: false, Reason: fmt.Sprintf("filtering error: bad exclude pattern %q: %v", pattern, err), FilterName: filterName}
		}
		if matched {
			return Decision{Accepted: false, Reason: "exclude_pattern: " + pattern, FilterName: filterName}
		}
	}

	if len(f.cfg.IncludePatterns) > 0 {
		included := false
		for _, pattern := range f.cfg.IncludePatterns {
			matched, err := doublestar.Match(pattern, rel)
			if err != nil {
				return Decision{Accepted: false, Reason: fmt.Sprintf("filtering error: bad include pattern %q: %v", pattern, err), FilterName: filterName}
			}
			if matched {
				included = true
				break
			}
		}
		if !included {
			return Decision{Accepted: false, Reason: "include_pattern: no match", FilterName: filterName}
		}
	}

	return Decision{Accepted: true, FilterName: filterName}
}

func containsFold(set []string, ext string) bool {
	for _, s := range set {
		if strings.EqualFold(s, ext) {
			return true
		}
	}
	return false
}
