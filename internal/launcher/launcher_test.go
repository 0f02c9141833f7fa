package launcher_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thainguyen06/pmc/internal/launcher"
	"github.com/thainguyen06/pmc/internal/record"
)

func TestLaunchBadWorkingDirectory(t *testing.T) {
	rec := &record.Record{Name: "a", Script: "true", Path: "/no/such/dir"}
	_, err := launcher.Launch(rec, "/bin/sh", "/dev/null", "/dev/null")
	require.Error(t, err)

	var le *launcher.LaunchError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "bad working directory", le.Reason)
}

func TestLaunchWritesLogsAndExits(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "out.log")
	errPath := filepath.Join(dir, "err.log")

	rec := &record.Record{Name: "a", Script: "echo hello; echo oops 1>&2", Path: dir}
	launched, err := launcher.Launch(rec, "/bin/sh", outPath, errPath)
	require.NoError(t, err)
	assert.Greater(t, launched.PID, 0)

	err2 := launched.Cmd.Wait()
	assert.NoError(t, err2)

	out, _ := os.ReadFile(outPath)
	errOut, _ := os.ReadFile(errPath)
	assert.Contains(t, string(out), "hello")
	assert.Contains(t, string(errOut), "oops")
}

func TestLaunchAppliesEnvOverlay(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "out.log")

	rec := &record.Record{
		Name:   "a",
		Script: "echo $GREETING",
		Path:   dir,
		Env:    map[string]string{"GREETING": "hi-from-record"},
	}
	launched, err := launcher.Launch(rec, "/bin/sh", outPath, "/dev/null")
	require.NoError(t, err)
	require.NoError(t, launched.Cmd.Wait())

	out, _ := os.ReadFile(outPath)
	assert.Contains(t, string(out), "hi-from-record")
}

func TestAliveAndTerminate(t *testing.T) {
	dir := t.TempDir()
	rec := &record.Record{Name: "a", Script: "sleep 30", Path: dir}
	launched, err := launcher.Launch(rec, "/bin/sh", "/dev/null", "/dev/null")
	require.NoError(t, err)

	assert.True(t, launcher.Alive(launched.PID))

	done := make(chan struct{})
	go func() {
		launched.Cmd.Wait()
		close(done)
	}()

	launcher.Terminate(launched.PID, 2*time.Second, func() bool {
		return launcher.Alive(launched.PID)
	})

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("child was not reaped after Terminate")
	}
	assert.False(t, launcher.Alive(launched.PID))
}
