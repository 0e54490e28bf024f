package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_TicksAndRescans(t *testing.T) {
	o := newOrchestrator(t, 2)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("A perfectly reasonable paragraph of prose for testing purposes today."), 0o644))

	s := NewScheduler(o, 10*time.Millisecond, []string{dir})
	done := make(chan []DirectoryStatus, 1)
	s.OnTick(func(statuses []DirectoryStatus) { done <- statuses })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	select {
	case statuses := <-done:
		require.Len(t, statuses, 1)
		assert.Equal(t, PhaseCompleted, statuses[0].Phase)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for scheduled rescan")
	}
}

func TestScheduler_StartTwiceIsNoop(t *testing.T) {
	o := newOrchestrator(t, 1)
	s := NewScheduler(o, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	s.Start(ctx) // must not replace the running ticker or deadlock
	s.Stop()
}

func TestScheduler_StopBeforeStartIsNoop(t *testing.T) {
	o := newOrchestrator(t, 1)
	s := NewScheduler(o, time.Hour, nil)
	s.Stop()
}
