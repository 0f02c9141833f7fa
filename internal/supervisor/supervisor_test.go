package supervisor

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thainguyen06/pmc/internal/config"
	"github.com/thainguyen06/pmc/internal/logging"
	"github.com/thainguyen06/pmc/internal/logstore"
	"github.com/thainguyen06/pmc/internal/record"
	"github.com/thainguyen06/pmc/internal/restart"
)

func newTestSupervisor(t *testing.T) (*Supervisor, *record.Table) {
	t.Helper()
	dir := t.TempDir()
	logs, err := logstore.New(filepath.Join(dir, "logs"))
	require.NoError(t, err)

	cfg := config.Default(dir)
	cfg.SampleInterval = 20 * time.Millisecond
	cfg.TerminateGrace = 200 * time.Millisecond

	tbl := record.New()
	s := New(cfg, logging.Noop(), tbl, logs)

	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	t.Cleanup(func() {
		cancel()
		s.Wait()
	})
	return s, tbl
}

func TestCleanExitStopsAndDoesNotRelaunch(t *testing.T) {
	s, tbl := newTestSupervisor(t)
	dir := t.TempDir()

	var id int
	s.Submit(func(s *Supervisor) {
		rec := &record.Record{Name: "one-shot", Script: "exit 0", Path: dir, CrashLimit: 10}
		require.NoError(t, tbl.Insert(rec))
		id = rec.ID
		require.NoError(t, s.launchRecord(rec))
	})

	assert.Eventually(t, func() bool {
		rec, _ := tbl.GetByID(id)
		return rec.Status == record.StatusStopped
	}, 2*time.Second, 10*time.Millisecond)

	rec, _ := tbl.GetByID(id)
	assert.Equal(t, 0, rec.CrashValue)
}

func TestCrashingProcessLatchesAtCrashLimit(t *testing.T) {
	s, tbl := newTestSupervisor(t)
	dir := t.TempDir()

	var id int
	s.Submit(func(s *Supervisor) {
		rec := &record.Record{Name: "flaky", Script: "exit 1", Path: dir, CrashLimit: 2}
		require.NoError(t, tbl.Insert(rec))
		id = rec.ID
		require.NoError(t, s.launchRecord(rec))
	})

	assert.Eventually(t, func() bool {
		rec, _ := tbl.GetByID(id)
		return rec.Status == record.StatusCrashed
	}, 5*time.Second, 10*time.Millisecond)

	rec, _ := tbl.GetByID(id)
	assert.Equal(t, 2, rec.CrashValue)
}

func TestUserStopTerminatesRunningChild(t *testing.T) {
	s, tbl := newTestSupervisor(t)
	dir := t.TempDir()

	var id int
	s.Submit(func(s *Supervisor) {
		rec := &record.Record{Name: "long-runner", Script: "sleep 30", Path: dir, CrashLimit: 10}
		require.NoError(t, tbl.Insert(rec))
		id = rec.ID
		require.NoError(t, s.launchRecord(rec))
	})

	// Give the child a moment to actually be running before stopping it.
	time.Sleep(50 * time.Millisecond)

	s.Submit(func(s *Supervisor) {
		rec, _ := tbl.GetByID(id)
		s.terminateThenApply(rec, restart.UserStop())
	})

	rec, _ := tbl.GetByID(id)
	assert.Equal(t, record.StatusStopped, rec.Status, "status flips to stopped as soon as terminate is requested, not once the kill lands")

	assert.Eventually(t, func() bool {
		rec, _ := tbl.GetByID(id)
		return rec.PID == 0
	}, 2*time.Second, 10*time.Millisecond, "pid clears once the Wait goroutine observes the kill")
}

func TestSampleAllResetsBackoffOnceUptimeClearsThreshold(t *testing.T) {
	dir := t.TempDir()
	logsDir := t.TempDir()
	logs, err := logstore.New(logsDir)
	require.NoError(t, err)

	cfg := config.Default(t.TempDir())
	cfg.SampleInterval = 20 * time.Millisecond
	cfg.MinUptimeForBackoffReset = 30 * time.Millisecond

	tbl := record.New()
	s := New(cfg, logging.Noop(), tbl, logs)

	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	t.Cleanup(func() {
		cancel()
		s.Wait()
	})

	var id int
	s.Submit(func(s *Supervisor) {
		rec := &record.Record{Name: "settler", Script: "sleep 30", Path: dir, CrashLimit: 10}
		require.NoError(t, tbl.Insert(rec))
		id = rec.ID
		require.NoError(t, s.launchRecord(rec))
		s.backoffAttempt[rec.ID] = 3
	})

	// Still within the uptime threshold: the next tick must not reset yet.
	s.Submit(func(s *Supervisor) {
		s.sampleAll()
		assert.Equal(t, 3, s.backoffAttempt[id])
	})

	time.Sleep(50 * time.Millisecond)

	s.Submit(func(s *Supervisor) {
		s.sampleAll()
		assert.Equal(t, 0, s.backoffAttempt[id])
	})
}
