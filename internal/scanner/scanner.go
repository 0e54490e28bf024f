// Package scanner implements C3 DirectoryScanner (spec §4.3): a bounded-depth
// recursive walk that locks the directory for the duration of the scan,
// extracts per-file metadata, filters candidates through a filter.Filter,
// and returns them sorted by path. Grounded on the teacher's
// internal/indexing/pipeline.go (ScanDirectory/CountFiles) and
// pipeline_progress.go (ProgressTracker), generalized from a channel-fed
// indexing pipeline to a synchronous scan-then-filter pass as spec §4.3
// describes ("Accumulate all candidate FileInfos" before filtering).
package scanner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/standardbeagle/ingestd/internal/config"
	"github.com/standardbeagle/ingestd/internal/debug"
	"github.com/standardbeagle/ingestd/internal/errtypes"
	"github.com/standardbeagle/ingestd/internal/filter"
	"github.com/standardbeagle/ingestd/internal/lock"
	"github.com/standardbeagle/ingestd/internal/types"
)

// Stats are process-scope, best-effort cumulative counters (spec §4.3
// "Statistics" paragraph).
type Stats struct {
	DirectoriesScanned int
	FilesDiscovered    int
	FilesFiltered      int
	LastScanTime       time.Time
	scanTimes          []time.Duration
}

// AverageScanTime is the mean of the retained scan-duration window.
func (s Stats) AverageScanTime() time.Duration {
	if len(s.scanTimes) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range s.scanTimes {
		total += d
	}
	return total / time.Duration(len(s.scanTimes))
}

const scanTimesWindow = 20

// Scanner is C3 DirectoryScanner.
type Scanner struct {
	cfg    config.Scanner
	filter *filter.Filter
	locks  *lock.Manager

	statsMu sync.Mutex
	stats   Stats
}

// New constructs a Scanner bound to a Filter and LockManager.
func New(cfg config.Scanner, flt *filter.Filter, locks *lock.Manager) *Scanner {
	return &Scanner{cfg: cfg, filter: flt, locks: locks}
}

// Scan implements spec §4.3 Scan(dir, progress_callback?) -> FileInfo[].
func (s *Scanner) Scan(ctx context.Context, dir string, progress ProgressFunc) ([]types.FileInfo, error) {
	start := time.Now()

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, errtypes.New(errtypes.KindFilesystemMissing, "scan.resolve", err).WithPath(dir)
	}

	info, err := os.Stat(absDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errtypes.New(errtypes.KindFilesystemMissing, "scan.stat", err).WithPath(absDir)
		}
		if os.IsPermission(err) {
			return nil, errtypes.New(errtypes.KindPermissionDenied, "scan.stat", err).WithPath(absDir)
		}
		return nil, errtypes.New(errtypes.KindUnknown, "scan.stat", err).WithPath(absDir)
	}
	if !info.IsDir() {
		return nil, errtypes.New(errtypes.KindFilesystemMissing, "scan.stat", fmt.Errorf("%s is not a directory", absDir)).WithPath(absDir)
	}

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.cfg.Timeout)*time.Second)
		defer cancel()
	}

	lk, err := s.locks.Acquire(absDir)
	if err != nil {
		return nil, err
	}
	defer func() {
		if _, relErr := s.locks.Release(lk); relErr != nil {
			debug.LogWarn("scanner: failed to release lock on %s: %v", absDir, relErr)
		}
	}()

	track := newTracker(absDir, s.cfg.BatchSize, progress)

	var candidates []types.FileInfo
	var dirsWalked int

	walkErr := s.walk(ctx, absDir, absDir, 0, track, &candidates, &dirsWalked)
	if walkErr != nil {
		track.setPhase(PhaseError)
		if ctx.Err() != nil {
			return nil, errtypes.New(errtypes.KindTimeoutExceeded, "scan.walk", ctx.Err()).WithPath(absDir)
		}
		return nil, walkErr
	}

	track.setPhase(PhaseFiltering)

	accepted := make([]types.FileInfo, 0, len(candidates))
	filteredOut := 0
	for _, fi := range candidates {
		rel, err := filepath.Rel(absDir, fi.Path)
		if err != nil {
			rel = fi.Path
		}
		dec := s.filter.Filter(filter.FileInput{Path: fi.Path, RelPath: rel, SizeBytes: fi.SizeBytes})
		if dec.Accepted {
			accepted = append(accepted, fi)
		} else {
			filteredOut++
		}
	}
	track.setFiltered(filteredOut)
	track.setAccepted(len(accepted))

	sort.Slice(accepted, func(i, j int) bool { return accepted[i].Path < accepted[j].Path })

	track.setPhase(PhaseCompleted)

	s.recordStats(dirsWalked, len(candidates), filteredOut, start)

	debug.LogIndexing("scanner: %s discovered %d, filtered %d, accepted %d in %s",
		absDir, len(candidates), filteredOut, len(accepted), time.Since(start))

	return accepted, nil
}

// walk recurses depth-first, pruning at cfg.MaxDepth (spec §4.3 step 3).
// os.ReadDir returns entries sorted by filename, so traversal is already
// deterministic before the final path sort in Scan.
func (s *Scanner) walk(ctx context.Context, root, dir string, depth int, track *tracker, out *[]types.FileInfo, dirsWalked *int) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsPermission(err) {
			if dir == root {
				return errtypes.New(errtypes.KindPermissionDenied, "scan.readdir", err).WithPath(dir)
			}
			debug.LogWarn("scanner: permission denied on %s, skipping", dir)
			return nil
		}
		if dir == root {
			return errtypes.New(errtypes.KindUnknown, "scan.readdir", err).WithPath(dir)
		}
		debug.LogWarn("scanner: error reading %s: %v, skipping", dir, err)
		return nil
	}
	*dirsWalked++

	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		path := filepath.Join(dir, entry.Name())

		if entry.IsDir() {
			if depth+1 >= s.cfg.MaxDepth {
				continue
			}
			if err := s.walk(ctx, root, path, depth+1, track, out, dirsWalked); err != nil {
				return err
			}
			continue
		}

		fi, err := entry.Info()
		if err != nil {
			if os.IsPermission(err) {
				debug.LogWarn("scanner: permission denied on %s, skipping", path)
				continue
			}
			debug.LogWarn("scanner: stat error on %s: %v, skipping", path, err)
			continue
		}

		*out = append(*out, buildFileInfo(path, fi))
		track.incDiscovered()
	}

	return nil
}

func buildFileInfo(path string, fi os.FileInfo) types.FileInfo {
	metadata := map[string]any{
		"extension":   filepath.Ext(path),
		"permissions": fi.Mode().Perm().String(),
	}
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		metadata["owner_id"] = st.Uid
		metadata["group_id"] = st.Gid
	}
	return types.FileInfo{
		Path:      path,
		SizeBytes: fi.Size(),
		ModTime:   fi.ModTime(),
		IsDir:     false,
		Status:    types.FileStatusPending,
		Metadata:  metadata,
	}
}

func (s *Scanner) recordStats(dirsWalked, discovered, filtered int, start time.Time) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.stats.DirectoriesScanned += dirsWalked
	s.stats.FilesDiscovered += discovered
	s.stats.FilesFiltered += filtered
	s.stats.LastScanTime = start
	s.stats.scanTimes = append(s.stats.scanTimes, time.Since(start))
	if len(s.stats.scanTimes) > scanTimesWindow {
		s.stats.scanTimes = s.stats.scanTimes[len(s.stats.scanTimes)-scanTimesWindow:]
	}
}

// Stats returns a snapshot of the cumulative scan statistics.
func (s *Scanner) Stats() Stats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	cp := s.stats
	cp.scanTimes = append([]time.Duration(nil), s.stats.scanTimes...)
	return cp
}
