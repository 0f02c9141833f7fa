package reaper_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thainguyen06/pmc/internal/reaper"
)

func TestSampleOfLiveProcessReportsAliveAndStats(t *testing.T) {
	r := reaper.New()
	s := r.Sample(os.Getpid())
	assert.True(t, s.Alive)
	require.NoError(t, s.Err)
	assert.Greater(t, s.Stats.RSSBytes, uint64(0))
}

func TestSampleOfDeadPidReportsNotAlive(t *testing.T) {
	r := reaper.New()
	// pid 0 is never a valid supervised child (it's the scheduler on
	// Linux); launcher.Alive treats it as dead.
	s := r.Sample(0)
	assert.False(t, s.Alive)
}

func TestForgetDropsCachedHandle(t *testing.T) {
	r := reaper.New()
	r.Sample(os.Getpid())
	r.Forget(os.Getpid())
	// Re-sampling after Forget must not panic or error on a stale handle.
	s := r.Sample(os.Getpid())
	assert.True(t, s.Alive)
}

func TestMemoryExceeded(t *testing.T) {
	assert.False(t, reaper.MemoryExceeded(500, 0), "zero ceiling means unlimited")
	assert.False(t, reaper.MemoryExceeded(100, 200))
	assert.True(t, reaper.MemoryExceeded(300, 200))
	assert.False(t, reaper.MemoryExceeded(200, 200), "exactly at the ceiling does not exceed it")
}
