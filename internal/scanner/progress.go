package scanner

import (
	"sync"
	"time"
)

// Phase is the scan lifecycle stage reported in Progress (spec §4.3 step 7:
// "scanning -> filtering -> completed|error").
type Phase string

const (
	PhaseScanning  Phase = "scanning"
	PhaseFiltering Phase = "filtering"
	PhaseCompleted Phase = "completed"
	PhaseError     Phase = "error"
)

// Progress is emitted to a ProgressFunc at least every Scanner.cfg.BatchSize
// files and at every phase transition.
type Progress struct {
	Phase             Phase
	Directory         string
	FilesDiscovered   int
	FilesFiltered     int
	FilesAccepted     int
	Total             int
	Elapsed           time.Duration
	EstimatedTimeLeft time.Duration
}

// ProgressFunc receives scan progress updates. Implementations must not
// block; the scanner calls it synchronously from the walking goroutine.
type ProgressFunc func(Progress)

// tracker accumulates scan counters and computes a linear ETA once both
// processed and total are known (spec §4.3 step 7).
type tracker struct {
	mu              sync.Mutex
	start           time.Time
	discovered      int
	filtered        int
	accepted        int
	total           int
	phase           Phase
	dir             string
	onProgress      ProgressFunc
	batchSize       int
	sinceLastReport int
}

func newTracker(dir string, batchSize int, cb ProgressFunc) *tracker {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &tracker{start: time.Now(), phase: PhaseScanning, dir: dir, onProgress: cb, batchSize: batchSize}
}

func (t *tracker) incDiscovered() {
	t.mu.Lock()
	t.discovered++
	t.sinceLastReport++
	due := t.sinceLastReport >= t.batchSize
	t.mu.Unlock()
	if due {
		t.emit()
	}
}

func (t *tracker) setPhase(p Phase) {
	t.mu.Lock()
	t.phase = p
	t.mu.Unlock()
	t.emit()
}

func (t *tracker) setFiltered(n int) {
	t.mu.Lock()
	t.filtered = n
	t.mu.Unlock()
}

func (t *tracker) setAccepted(n int) {
	t.mu.Lock()
	t.accepted = n
	t.total = n
	t.mu.Unlock()
}

func (t *tracker) emit() {
	if t.onProgress == nil {
		return
	}
	t.mu.Lock()
	t.sinceLastReport = 0
	p := Progress{
		Phase:           t.phase,
		Directory:       t.dir,
		FilesDiscovered: t.discovered,
		FilesFiltered:   t.filtered,
		FilesAccepted:   t.accepted,
		Total:           t.total,
		Elapsed:         time.Since(t.start),
	}
	if t.accepted > 0 && t.total > 0 {
		perFile := p.Elapsed / time.Duration(t.accepted)
		remaining := t.total - t.accepted
		if remaining > 0 {
			p.EstimatedTimeLeft = perFile * time.Duration(remaining)
		}
	}
	t.mu.Unlock()
	t.onProgress(p)
}
