// Package orchestrator implements C9 Orchestrator (spec §4.9): the
// top-level per-directory state machine gating concurrent ingestion runs
// behind a semaphore. Grounded on the teacher's internal/mcp auto-index
// manager (mutex-guarded per-run status object, context-based cancellation)
// generalized from a single in-process indexing run to many concurrently
// tracked directories, using golang.org/x/sync/semaphore for the
// max_concurrent_directories gate the same way internal/mcp uses
// errgroup.SetLimit for bounded fan-out.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/standardbeagle/ingestd/internal/config"
	"github.com/standardbeagle/ingestd/internal/debug"
	"github.com/standardbeagle/ingestd/internal/errctl"
	"github.com/standardbeagle/ingestd/internal/errtypes"
	"github.com/standardbeagle/ingestd/internal/lock"
	"github.com/standardbeagle/ingestd/internal/process"
	"github.com/standardbeagle/ingestd/internal/scanner"
)

// Phase is spec §4.9's per-directory state machine.
type Phase string

const (
	PhasePending    Phase = "pending"
	PhaseScanning   Phase = "scanning"
	PhaseProcessing Phase = "processing"
	PhaseCompleted  Phase = "completed"
	PhaseFailed     Phase = "failed"
	PhaseCancelled  Phase = "cancelled"
)

// DirectoryStatus is spec §4.9's DirectoryProcessingStatus.
type DirectoryStatus struct {
	Directory     string
	Phase         Phase
	FilesFound    int
	FilesProcessed int
	FilesFailed   int
	ChunksCreated int
	Progress      float64
	ErrorMessage  string
	StartedAt     time.Time
	UpdatedAt     time.Time
}

type run struct {
	status DirectoryStatus
	cancel context.CancelFunc
}

// Orchestrator implements spec §4.9's top-level contract.
type Orchestrator struct {
	cfg       config.Orchestrator
	scan      func() *scanner.Scanner
	processor *process.Processor
	locks     *lock.Manager
	errs      *errctl.Controller

	sem *semaphore.Weighted

	mu      sync.Mutex
	inFlight map[string]*run
}

// New wires an Orchestrator from its collaborators.
func New(cfg config.Orchestrator, scanFactory func() *scanner.Scanner, processor *process.Processor, locks *lock.Manager, errs *errctl.Controller) *Orchestrator {
	weight := int64(cfg.MaxConcurrentDirectories)
	if weight <= 0 {
		weight = 1
	}
	return &Orchestrator{
		cfg:       cfg,
		scan:      scanFactory,
		processor: processor,
		locks:     locks,
		errs:      errs,
		sem:       semaphore.NewWeighted(weight),
		inFlight:  make(map[string]*run),
	}
}

// ProcessDirectory implements spec §4.9's ProcessDirectory(dir): gated by
// max_concurrent_directories, rejects if dir is already in flight.
func (o *Orchestrator) ProcessDirectory(ctx context.Context, dir string) (DirectoryStatus, error) {
	o.mu.Lock()
	if _, ok := o.inFlight[dir]; ok {
		o.mu.Unlock()
		return DirectoryStatus{}, fmt.Errorf("orchestrator: %s is already in flight", dir)
	}
	runCtx, cancel := context.WithCancel(ctx)
	r := &run{status: DirectoryStatus{Directory: dir, Phase: PhasePending, StartedAt: time.Now(), UpdatedAt: time.Now()}, cancel: cancel}
	o.inFlight[dir] = r
	o.mu.Unlock()

	if err := o.sem.Acquire(runCtx, 1); err != nil {
		o.finish(dir, PhaseCancelled, err.Error())
		return o.snapshot(r), err
	}
	defer o.sem.Release(1)

	o.run(runCtx, dir, r)
	return o.snapshot(r), nil
}

// ProcessDirectories implements spec §4.9's parallel fan-out under the same gate.
func (o *Orchestrator) ProcessDirectories(ctx context.Context, dirs []string) []DirectoryStatus {
	results := make([]DirectoryStatus, len(dirs))
	var wg sync.WaitGroup
	for i, dir := range dirs {
		i, dir := i, dir
		wg.Add(1)
		go func() {
			defer wg.Done()
			st, err := o.ProcessDirectory(ctx, dir)
			if err != nil {
				debug.LogWarn("orchestrator: %s: %v", dir, err)
			}
			results[i] = st
		}()
	}
	wg.Wait()
	return results
}

func (o *Orchestrator) run(ctx context.Context, dir string, r *run) {
	o.setPhase(dir, PhaseScanning)

	files, err := o.scan().Scan(ctx, dir, nil)
	if err != nil {
		o.handleFailure(ctx, dir, "scan", err)
		return
	}

	o.mu.Lock()
	r.status.FilesFound = len(files)
	r.status.UpdatedAt = time.Now()
	o.mu.Unlock()

	select {
	case <-ctx.Done():
		o.finish(dir, PhaseCancelled, ctx.Err().Error())
		return
	default:
	}

	o.setPhase(dir, PhaseProcessing)

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	results := o.processor.ProcessBatch(ctx, paths)

	var processed, failed, chunks int
	for _, res := range results {
		if res.Status == process.StatusCompleted {
			processed++
			chunks += res.ChunksCreated
		} else {
			failed++
		}
	}

	o.mu.Lock()
	r.status.FilesProcessed = processed
	r.status.FilesFailed = failed
	r.status.ChunksCreated = chunks
	if r.status.FilesFound > 0 {
		r.status.Progress = 100 * float64(processed+failed) / float64(r.status.FilesFound)
	}
	r.status.UpdatedAt = time.Now()
	o.mu.Unlock()

	if failed > 0 && processed == 0 {
		o.finish(dir, PhaseFailed, fmt.Sprintf("%d files failed", failed))
		return
	}
	o.finish(dir, PhaseCompleted, "")
}

func (o *Orchestrator) handleFailure(ctx context.Context, dir, op string, err error) {
	wrapped := errtypes.New(errtypes.KindUnknown, op, err).WithPath(dir)
	if o.errs != nil {
		o.errs.Handle(ctx, wrapped, op, 0)
	}
	debug.LogError("orchestrator: %s during %s for %s: %v", op, op, dir, err)
	o.finish(dir, PhaseFailed, err.Error())
}

func (o *Orchestrator) setPhase(dir string, phase Phase) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if r, ok := o.inFlight[dir]; ok {
		r.status.Phase = phase
		r.status.UpdatedAt = time.Now()
	}
}

// finish implements spec §4.9's on-failure contract: set status, release
// the lock (best effort — the scanner/processor already release their own),
// and retire the run from in-flight bookkeeping.
func (o *Orchestrator) finish(dir string, phase Phase, errMsg string) {
	o.mu.Lock()
	r, ok := o.inFlight[dir]
	if !ok {
		o.mu.Unlock()
		return
	}
	r.status.Phase = phase
	r.status.ErrorMessage = errMsg
	r.status.UpdatedAt = time.Now()
	delete(o.inFlight, dir)
	o.mu.Unlock()

	if lk, err := o.locks.Inspect(dir); err == nil && lk != nil {
		if _, rerr := o.locks.Release(lk); rerr != nil {
			debug.LogWarn("orchestrator: residual lock release failed for %s: %v", dir, rerr)
		}
	}
}

// snapshot returns r's status; r stays valid after finish retires it from
// inFlight, so the terminal status is what callers see.
func (o *Orchestrator) snapshot(r *run) DirectoryStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return r.status
}

// Cancel implements spec §4.9's Cancel(dir): cooperative cancellation.
func (o *Orchestrator) Cancel(dir string) bool {
	o.mu.Lock()
	r, ok := o.inFlight[dir]
	o.mu.Unlock()
	if !ok {
		return false
	}
	r.cancel()
	return true
}

// StopAll implements spec §4.9's StopAll(): cancels every in-flight directory.
func (o *Orchestrator) StopAll() {
	o.mu.Lock()
	runs := make([]*run, 0, len(o.inFlight))
	for _, r := range o.inFlight {
		runs = append(runs, r)
	}
	o.mu.Unlock()

	for _, r := range runs {
		r.cancel()
	}
}

// RetryFailed implements spec §4.9's RetryFailed(dir): refuses while a
// processing is already in flight; otherwise re-enters ProcessDirectory.
func (o *Orchestrator) RetryFailed(ctx context.Context, dir string) (DirectoryStatus, error) {
	o.mu.Lock()
	_, inFlight := o.inFlight[dir]
	o.mu.Unlock()
	if inFlight {
		return DirectoryStatus{}, fmt.Errorf("orchestrator: %s is already in flight", dir)
	}
	return o.ProcessDirectory(ctx, dir)
}

// CleanupProcessed implements spec §4.9's explicit resource sweep: releases
// any residual on-disk lock for dir not tied to an in-flight run.
func (o *Orchestrator) CleanupProcessed(dir string) error {
	o.mu.Lock()
	_, inFlight := o.inFlight[dir]
	o.mu.Unlock()
	if inFlight {
		return fmt.Errorf("orchestrator: %s is still in flight", dir)
	}

	lk, err := o.locks.Inspect(dir)
	if err != nil {
		return err
	}
	if lk == nil {
		return nil
	}
	_, err = o.locks.Release(lk)
	return err
}
