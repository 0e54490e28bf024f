// Package errctl implements C10 ErrorController (spec §4.10): central
// classification, counting, retry-decision and backoff computation for
// every error the pipeline surfaces. Grounded on the teacher's
// internal/errors package (typed errors, counters) generalized from a
// static-analysis error set to the retry/backoff policy the spec
// describes, reusing errtypes.Kind.Retryable for the non-retryable set.
package errctl

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/standardbeagle/ingestd/internal/debug"
	"github.com/standardbeagle/ingestd/internal/errtypes"
)

// Category is spec §4.10's error taxonomy, one layer coarser than errtypes.Kind.
type Category string

const (
	CategoryFileSystem Category = "FILE_SYSTEM"
	CategoryProcessing Category = "PROCESSING"
	CategoryDatabase   Category = "DATABASE"
	CategoryNetwork    Category = "NETWORK"
	CategoryConfig     Category = "CONFIG"
	CategoryValidation Category = "VALIDATION"
	CategoryResource   Category = "RESOURCE"
	CategoryUnknown    Category = "UNKNOWN"
)

// categoryByKind maps errtypes.Kind to spec §4.10's coarser categories.
var categoryByKind = map[errtypes.Kind]Category{
	errtypes.KindFilesystemMissing: CategoryFileSystem,
	errtypes.KindPermissionDenied:  CategoryFileSystem,
	errtypes.KindUnsupportedExt:    CategoryValidation,
	errtypes.KindParseFailure:      CategoryProcessing,
	errtypes.KindFilterError:       CategoryProcessing,
	errtypes.KindLockConflict:      CategoryResource,
	errtypes.KindForeignLock:       CategoryResource,
	errtypes.KindLockCorrupt:       CategoryResource,
	errtypes.KindResourceLimit:     CategoryResource,
	errtypes.KindVectorStoreDown:   CategoryDatabase,
	errtypes.KindDatabaseDown:      CategoryDatabase,
	errtypes.KindTimeoutExceeded:   CategoryNetwork,
	errtypes.KindCancelled:         CategoryProcessing,
	errtypes.KindUnknown:           CategoryUnknown,
}

// RecoveryAttempt records one retry decision made for an ErrorInfo.
type RecoveryAttempt struct {
	At      time.Time
	Delay   time.Duration
	Retried bool
}

// Info is spec §4.10's ErrorInfo record.
type Info struct {
	ID               string
	Kind             errtypes.Kind
	Category         Category
	Message          string
	Operation        string
	Context          map[string]any
	Timestamp        time.Time
	RetryCount       int
	RecoveryAttempts []RecoveryAttempt
}

// Decision is the outcome of Handle: whether to retry and after what delay.
type Decision struct {
	Info    Info
	Retry   bool
	Delay   time.Duration
}

// Strategy overrides the controller's uniform retry policy for one Kind,
// grounded on original_source/docanalyzer/services/error_handler.py's
// ErrorRecoveryStrategy (per-error-type max_retries/retry_delay/should_abort).
// A registered Strategy with ShouldAbort set takes precedence over
// MaxRetryAttempts/ErrorThreshold for that Kind; MaxRetries/RetryDelaySec of
// zero fall back to the controller's global Config values.
type Strategy struct {
	MaxRetries    int
	RetryDelaySec float64
	ShouldAbort   bool
}

// Config mirrors config.ErrorControl (kept decoupled from the config
// package so errctl has no import-cycle risk with components it supervises).
type Config struct {
	MaxRetryAttempts  int
	BaseDelaySec      float64
	BackoffMultiplier float64
	ErrorThreshold    int
}

// Controller implements spec §4.10's Handle/Report.
type Controller struct {
	cfg Config

	mu         sync.Mutex
	counts     map[errtypes.Kind]int
	strategies map[errtypes.Kind]Strategy
	nextID     int
	randSrc    *rand.Rand
}

// New constructs a Controller whose jitter source is seeded from the current time.
func New(cfg Config) *Controller {
	return &Controller{
		cfg:        cfg,
		counts:     make(map[errtypes.Kind]int),
		strategies: make(map[errtypes.Kind]Strategy),
		randSrc:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// RegisterStrategy installs a per-Kind override, replacing any prior
// strategy registered for that Kind (error_handler.py's add_error_strategy).
func (c *Controller) RegisterStrategy(kind errtypes.Kind, s Strategy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.strategies[kind] = s
}

// RemoveStrategy drops a per-Kind override, reverting that Kind to the
// controller's uniform policy (error_handler.py's remove_error_strategy).
// Reports whether a strategy had been registered.
func (c *Controller) RemoveStrategy(kind errtypes.Kind) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.strategies[kind]; !ok {
		return false
	}
	delete(c.strategies, kind)
	return true
}

// Handle implements spec §4.10's classify/log/count/retry-decide/backoff procedure.
func (c *Controller) Handle(_ context.Context, err error, operation string, retryCount int) Decision {
	kind := classify(err)
	category := categoryByKind[kind]
	if category == "" {
		category = CategoryUnknown
	}

	c.mu.Lock()
	c.nextID++
	id := fmt.Sprintf("err-%d", c.nextID)
	c.counts[kind]++
	threshold := c.counts[kind]
	strategy, hasStrategy := c.strategies[kind]
	c.mu.Unlock()

	info := Info{
		ID:         id,
		Kind:       kind,
		Category:   category,
		Message:    err.Error(),
		Operation:  operation,
		Timestamp:  time.Now(),
		RetryCount: retryCount,
	}

	debug.LogError("errctl[%s]: %s/%s during %s: %v (retry=%d)", id, category, kind, operation, err, retryCount)

	maxRetries := c.cfg.MaxRetryAttempts
	if hasStrategy && strategy.ShouldAbort {
		maxRetries = 0
	} else if hasStrategy && strategy.MaxRetries > 0 {
		maxRetries = strategy.MaxRetries
	}

	retry := retryCount < maxRetries &&
		kind.Retryable() &&
		(c.cfg.ErrorThreshold <= 0 || threshold <= c.cfg.ErrorThreshold)

	var delay time.Duration
	if retry {
		delay = c.backoff(retryCount, strategy, hasStrategy)
	}

	info.RecoveryAttempts = append(info.RecoveryAttempts, RecoveryAttempt{At: time.Now(), Delay: delay, Retried: retry})

	return Decision{Info: info, Retry: retry, Delay: delay}
}

// backoff implements spec §4.10: base * multiplier^retry * uniform(0.8,1.2), floor 1s.
// A registered Strategy's RetryDelaySec overrides the controller's base delay.
func (c *Controller) backoff(retryCount int, strategy Strategy, hasStrategy bool) time.Duration {
	base := c.cfg.BaseDelaySec
	if hasStrategy && strategy.RetryDelaySec > 0 {
		base = strategy.RetryDelaySec
	}
	if base <= 0 {
		base = 1.0
	}
	mult := c.cfg.BackoffMultiplier
	if mult <= 0 {
		mult = 2.0
	}

	seconds := base
	for i := 0; i < retryCount; i++ {
		seconds *= mult
	}

	c.mu.Lock()
	jitter := 0.8 + c.randSrc.Float64()*0.4
	c.mu.Unlock()
	seconds *= jitter

	if seconds < 1.0 {
		seconds = 1.0
	}
	return time.Duration(seconds * float64(time.Second))
}

// Report returns a snapshot of error counts by kind, for health/metrics surfaces.
func (c *Controller) Report() map[errtypes.Kind]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[errtypes.Kind]int, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}

// classify recovers the Kind from a (possibly wrapped) *errtypes.Error, or
// falls back to KindUnknown for ordinary errors.
func classify(err error) errtypes.Kind {
	var e *errtypes.Error
	if asErrtypesError(err, &e) {
		return e.Kind
	}
	return errtypes.KindUnknown
}

func asErrtypesError(err error, target **errtypes.Error) bool {
	for err != nil {
		if e, ok := err.(*errtypes.Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
