// Package worker implements C7 WorkerRuntime and C8 WorkerSupervisor
// (spec §4.7-§4.8). WorkerRuntime is the scan-then-process loop that a
// single worker OS process runs "in-process" (spec §2's component table):
// it does not fork further per file, only fans out internally with bounded
// goroutines (the errgroup.SetLimit pattern from the teacher's
// internal/mcp/integration_test.go, generalized from one-shot background
// indexing to a pausable/cancellable/restartable loop). WorkerSupervisor
// (supervisor.go) is the part that runs in the parent and owns the actual
// OS process boundary: it spawns one real child process per worker via
// os/exec and supervises it the way
// _examples/original_source/docanalyzer/services/main_process_manager.py's
// MainProcessManager supervises multiprocessing.Process children tracked by
// psutil.Process(pid) — this package has no psutil equivalent in the
// retrieval pack, so liveness/zombie checks fall back to
// internal/lock.ProcessProbe (the same POSIX signal(pid, 0) probe the lock
// manager uses) plus a best-effort /proc read for resource usage.
package worker

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/ingestd/internal/config"
	"github.com/standardbeagle/ingestd/internal/debug"
	"github.com/standardbeagle/ingestd/internal/process"
	"github.com/standardbeagle/ingestd/internal/scanner"
	"github.com/standardbeagle/ingestd/internal/types"
)

// State is spec §4.7's WorkerStatus.status enum.
type State string

const (
	StateIdle       State = "idle"
	StateScanning   State = "scanning"
	StateProcessing State = "processing"
	StatePaused     State = "paused"
	StateStopped    State = "stopped"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Status is spec §4.7's WorkerStatus snapshot.
type Status struct {
	WorkerID           string
	Directory          string
	State              State
	FilesFound         int
	FilesProcessed     int
	FilesFailed        int
	ProgressPercentage float64
	ErrorMessage       string
	StartedAt          time.Time
	UpdatedAt          time.Time
}

// BatchReport is emitted to the supervisor after each processed batch
// (spec §4.7 step 4, "a ProcessingResult-shaped batch report to the parent").
type BatchReport struct {
	WorkerID       string
	FilesProcessed int
	FilesFailed    int
	ChunksCreated  int
}

// Runtime owns one worker's scan-then-process loop against one directory.
type Runtime struct {
	id        string
	dir       string
	cfg       config.Worker
	scan      *scanner.Scanner
	processor *process.Processor
	onBatch   func(BatchReport)

	mu     sync.Mutex
	status Status

	paused atomic.Bool
	cancel atomic.Bool
}

// New constructs a Runtime for one directory.
func New(id, dir string, cfg config.Worker, s *scanner.Scanner, p *process.Processor, onBatch func(BatchReport)) *Runtime {
	r := &Runtime{id: id, dir: dir, cfg: cfg, scan: s, processor: p, onBatch: onBatch}
	r.status = Status{WorkerID: id, Directory: dir, State: StateIdle, StartedAt: time.Now(), UpdatedAt: time.Now()}
	return r
}

// Status returns a snapshot of the runtime's current status.
func (r *Runtime) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *Runtime) setState(s State) {
	r.mu.Lock()
	r.status.State = s
	r.status.UpdatedAt = time.Now()
	r.mu.Unlock()
}

func (r *Runtime) setError(err error) {
	r.mu.Lock()
	r.status.State = StateFailed
	r.status.ErrorMessage = err.Error()
	r.status.UpdatedAt = time.Now()
	r.mu.Unlock()
}

// Pause requests the runtime suspend between batches (spec §4.7 step 5).
func (r *Runtime) Pause() { r.paused.Store(true); r.setState(StatePaused) }

// Resume lifts a prior Pause.
func (r *Runtime) Resume() { r.paused.Store(false) }

// Cancel requests cooperative shutdown; takes effect at the next checkpoint.
func (r *Runtime) Cancel() { r.cancel.Store(true) }

// Run executes spec §4.7's loop to completion, failure, or cancellation.
func (r *Runtime) Run(ctx context.Context) error {
	r.setState(StateScanning)

	files, err := r.scan.Scan(ctx, r.dir, nil)
	if err != nil {
		r.setError(err)
		return err
	}
	if r.cancel.Load() {
		r.setState(StateStopped)
		return nil
	}

	r.mu.Lock()
	r.status.FilesFound = len(files)
	r.mu.Unlock()

	batches := batchify(files, r.cfg.BatchSize)
	r.setState(StateProcessing)

	for _, batch := range batches {
		if r.cancel.Load() {
			r.setState(StateStopped)
			return nil
		}
		r.waitWhilePaused(ctx)
		if r.cancel.Load() {
			r.setState(StateStopped)
			return nil
		}

		report := r.processBatch(ctx, batch)
		r.mu.Lock()
		r.status.FilesProcessed += report.FilesProcessed
		r.status.FilesFailed += report.FilesFailed
		if r.status.FilesFound > 0 {
			r.status.ProgressPercentage = 100 * float64(r.status.FilesProcessed+r.status.FilesFailed) / float64(r.status.FilesFound)
		}
		r.status.UpdatedAt = time.Now()
		r.mu.Unlock()

		if r.onBatch != nil {
			r.onBatch(report)
		}
	}

	r.setState(StateCompleted)
	debug.LogIndexing("worker[%s]: completed %s (%d processed, %d failed)", r.id, r.dir, r.Status().FilesProcessed, r.Status().FilesFailed)
	return nil
}

// RunChild runs the loop to completion while emitting one newline-delimited
// JSON Status line to w after every batch (spec §4.7 step 4's "progress
// update ... to the parent" and §4.8's last_activity-based health check).
// This is what the worker-run child-process entrypoint calls; the parent
// Supervisor reads these lines off the child's stdout pipe instead of
// reaching into Runtime state directly, since the runtime now lives in a
// separate OS process.
func (r *Runtime) RunChild(ctx context.Context, w io.Writer) error {
	enc := json.NewEncoder(w)
	prior := r.onBatch
	r.onBatch = func(rep BatchReport) {
		if prior != nil {
			prior(rep)
		}
		if err := enc.Encode(r.Status()); err != nil {
			debug.LogWarn("worker[%s]: failed to report status to parent: %v", r.id, err)
		}
	}
	err := r.Run(ctx)
	_ = enc.Encode(r.Status()) // final snapshot so the parent sees the terminal state even with zero batches
	return err
}

// waitWhilePaused busy-spins at coarse granularity between batches while
// paused, per spec §4.7 step 5.
func (r *Runtime) waitWhilePaused(ctx context.Context) {
	for r.paused.Load() && !r.cancel.Load() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(200 * time.Millisecond):
		}
	}
	if !r.cancel.Load() {
		r.setState(StateProcessing)
	}
}

// processBatch implements spec §4.7 step 3: bounded-concurrency fan-out
// over one batch via errgroup.SetLimit, one process.Processor.Process call
// per file.
func (r *Runtime) processBatch(ctx context.Context, batch []types.FileInfo) BatchReport {
	limit := r.cfg.MaxWorkers
	if limit <= 0 {
		limit = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	var mu sync.Mutex
	report := BatchReport{WorkerID: r.id}

	for _, f := range batch {
		f := f
		g.Go(func() error {
			res := r.processor.Process(gctx, f.Path)
			mu.Lock()
			defer mu.Unlock()
			if res.Status == process.StatusCompleted {
				report.FilesProcessed++
				report.ChunksCreated += res.ChunksCreated
			} else {
				report.FilesFailed++
			}
			return nil
		})
	}
	_ = g.Wait() // per-file errors are captured in Result, never propagated here

	return report
}

func batchify(files []types.FileInfo, size int) [][]types.FileInfo {
	if size <= 0 {
		size = len(files)
		if size == 0 {
			size = 1
		}
	}
	var batches [][]types.FileInfo
	for i := 0; i < len(files); i += size {
		end := i + size
		if end > len(files) {
			end = len(files)
		}
		batches = append(batches, files[i:end])
	}
	return batches
}
