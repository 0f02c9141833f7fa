package watcher_test

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thainguyen06/pmc/internal/watcher"
)

func TestBurstOfEventsYieldsOneFire(t *testing.T) {
	dir := t.TempDir()
	var fires int32

	w, err := watcher.Start(dir, 100*time.Millisecond, func() {
		atomic.AddInt32(&fires, 1)
	})
	require.NoError(t, err)
	defer w.Close()

	for i := 0; i < 10; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "f"), []byte("x"), 0o644))
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fires), "a burst inside one debounce window must coalesce to a single fire")
}

func TestTwoSeparatedBurstsYieldTwoFires(t *testing.T) {
	dir := t.TempDir()
	var fires int32

	w, err := watcher.Start(dir, 80*time.Millisecond, func() {
		atomic.AddInt32(&fires, 1)
	})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a"), []byte("x"), 0o644))
	time.Sleep(250 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "b"), []byte("x"), 0o644))
	time.Sleep(250 * time.Millisecond)

	assert.Equal(t, int32(2), atomic.LoadInt32(&fires))
}

func TestWatchesNewlyCreatedSubdirectory(t *testing.T) {
	dir := t.TempDir()
	var fires int32

	w, err := watcher.Start(dir, 80*time.Millisecond, func() {
		atomic.AddInt32(&fires, 1)
	})
	require.NoError(t, err)
	defer w.Close()

	sub := filepath.Join(dir, "nested")
	require.NoError(t, os.Mkdir(sub, 0o755))
	time.Sleep(150 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(sub, "f"), []byte("x"), 0o644))
	time.Sleep(250 * time.Millisecond)

	assert.GreaterOrEqual(t, atomic.LoadInt32(&fires), int32(1), "event inside a newly created subdirectory must still be observed")
}
