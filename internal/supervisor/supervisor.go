// Package supervisor implements the Supervisor Loop (spec §4.H, §5): the
// single goroutine that owns the process table and is the only thing
// allowed to mutate it. Every other goroutine — connection handlers, the
// reaper ticker, the file watcher, per-child wait goroutines — communicates
// with it by sending a command or event over a channel and, for commands,
// waiting on a reply channel.
//
// The shape is the teacher's handleConn-per-connection concurrency model
// (internal/daemon/daemon.go) generalized: grove guards its instance map
// with a sync.Mutex shared by every connection goroutine; corral instead
// funnels everything through one loop goroutine, because spec §5 requires
// the table itself to carry no internal locking. The externally visible
// effect is the same — callers get serialized access — but the mechanism
// is message passing instead of a mutex.
package supervisor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/thainguyen06/pmc/internal/config"
	"github.com/thainguyen06/pmc/internal/launcher"
	"github.com/thainguyen06/pmc/internal/logstore"
	"github.com/thainguyen06/pmc/internal/persist"
	"github.com/thainguyen06/pmc/internal/reaper"
	"github.com/thainguyen06/pmc/internal/record"
	"github.com/thainguyen06/pmc/internal/restart"
	"github.com/thainguyen06/pmc/internal/watcher"
)

// exitEvent is posted by a child's dedicated Wait goroutine. It cannot be
// inferred from signal-0 polling alone: a zombie still answers kill(pid,0)
// successfully, so only an actual wait(2) tells the loop the child is truly
// gone (spec §4.C design note).
type exitEvent struct {
	id       int
	pid      int // the pid that exited, to guard against a relaunch racing the old Wait
	exitCode int
}

type watchEvent struct {
	id int
}

// cmd is a unit of work submitted to the loop from the outside. do runs on
// the loop goroutine and must not block on anything but its own table
// access.
type cmd struct {
	do   func(s *Supervisor)
	done chan struct{}
}

// Supervisor owns the table and runs the single serializing loop.
type Supervisor struct {
	cfg      config.Config
	log      *zap.SugaredLogger
	table    *record.Table
	logs     *logstore.Store
	reap     *reaper.Reaper
	watchers map[int]*watcher.Watcher // per-record watch, keyed by record id

	cmds  chan cmd
	exits chan exitEvent
	fires chan watchEvent

	// backoffAttempt tracks consecutive-relaunch counts per id, reset on a
	// clean start or a user restart/start (spec §4.D, separate from
	// crash_value so a back-off cap never itself latches the crash state).
	backoffAttempt map[int]int

	// pendingTerminate holds the decision to apply once a record's Wait
	// goroutine confirms the kill requested by terminateThenApply actually
	// landed. Without it the eventual exit event would be re-scored by
	// restart.Exit as an ordinary crash.
	pendingTerminate map[int]restart.Decision

	done chan struct{}
}

// New constructs a Supervisor around an existing table (already populated
// by a persistence restore, or freshly empty).
func New(cfg config.Config, log *zap.SugaredLogger, tbl *record.Table, logs *logstore.Store) *Supervisor {
	return &Supervisor{
		cfg:              cfg,
		log:              log,
		table:            tbl,
		logs:             logs,
		reap:             reaper.New(),
		watchers:         make(map[int]*watcher.Watcher),
		cmds:             make(chan cmd),
		exits:            make(chan exitEvent, 16),
		fires:            make(chan watchEvent, 16),
		backoffAttempt:   make(map[int]int),
		pendingTerminate: make(map[int]restart.Decision),
		done:             make(chan struct{}),
	}
}

// Submit runs fn on the loop goroutine and blocks until it has completed.
// fn must not itself call Submit (it would deadlock) and must not retain
// *record.Record pointers beyond the call except via Clone.
func (s *Supervisor) Submit(fn func(s *Supervisor)) {
	c := cmd{do: fn, done: make(chan struct{})}
	s.cmds <- c
	<-c.done
}

// Run is the loop itself; it blocks until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.SampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return

		case c := <-s.cmds:
			c.do(s)
			close(c.done)

		case ev := <-s.exits:
			s.handleExit(ev)

		case ev := <-s.fires:
			s.handleWatchFired(ev.id)

		case <-ticker.C:
			s.sampleAll()
		}
	}
}

// Wait blocks until the loop has fully stopped (post shutdown).
func (s *Supervisor) Wait() { <-s.done }

func (s *Supervisor) shutdown() {
	for _, rec := range s.table.Iter() {
		if rec.Status == record.StatusRunning && rec.PID > 0 {
			launcher.Terminate(rec.PID, s.cfg.TerminateGrace, func() bool { return launcher.Alive(rec.PID) })
		}
	}
	for _, w := range s.watchers {
		w.Close()
	}
}

// launchRecord starts rec's script and spawns its Wait goroutine. Must be
// called from the loop goroutine.
func (s *Supervisor) launchRecord(rec *record.Record) error {
	launched, err := launcher.Launch(rec, s.cfg.Shell, s.logs.Path(rec.ID, logstore.StreamOut), s.logs.Path(rec.ID, logstore.StreamErr))
	if err != nil {
		rec.Status = record.StatusCrashed
		return err
	}
	rec.Status = record.StatusRunning
	rec.PID = launched.PID
	rec.StartedAt = launched.StartedAt

	id := rec.ID
	pid := launched.PID
	cmdHandle := launched.Cmd
	go func() {
		err := cmdHandle.Wait()
		code := 0
		if err != nil {
			if exitErr, ok := err.(interface{ ExitCode() int }); ok {
				code = exitErr.ExitCode()
			} else {
				code = -1
			}
		}
		s.exits <- exitEvent{id: id, pid: pid, exitCode: code}
	}()

	if rec.Watch != nil && rec.Watch.Enabled {
		s.startWatch(rec)
	}
	return nil
}

func (s *Supervisor) startWatch(rec *record.Record) {
	if _, exists := s.watchers[rec.ID]; exists {
		return
	}
	id := rec.ID
	w, err := watcher.Start(rec.Watch.Path, s.cfg.WatchDebounce, func() {
		s.fires <- watchEvent{id: id}
	})
	if err != nil {
		s.log.Warnw("failed to start file watch", "record", rec.Name, "path", rec.Watch.Path, "error", err)
		return
	}
	s.watchers[rec.ID] = w
}

func (s *Supervisor) stopWatch(id int) {
	if w, ok := s.watchers[id]; ok {
		w.Close()
		delete(s.watchers, id)
	}
}

func (s *Supervisor) handleExit(ev exitEvent) {
	rec, ok := s.table.GetByID(ev.id)
	if !ok || rec.PID != ev.pid {
		return // record was removed, or this is a stale Wait from a pid already superseded by a relaunch
	}
	s.reap.Forget(ev.pid)
	rec.PID = 0

	if decision, wasPending := s.pendingTerminate[ev.id]; wasPending {
		delete(s.pendingTerminate, ev.id)
		if decision.Relaunch {
			rec.Restarts++
			if err := s.launchRecord(rec); err != nil {
				s.log.Warnw("relaunch after terminate failed", "record", rec.Name, "error", err)
			}
		} else if decision.NewStatus == "" {
			// A memory-ceiling kill (restart.MemoryExceeded) is scored as a
			// non-zero exit, whatever code the child actually exited with.
			s.applyExitDecision(rec, restart.Exit(1, rec.CrashValue, rec.CrashLimit))
		}
		return
	}

	decision := restart.Exit(ev.exitCode, rec.CrashValue, rec.CrashLimit)
	s.applyExitDecision(rec, decision)
}

func (s *Supervisor) applyExitDecision(rec *record.Record, decision restart.Decision) {
	if decision.NewStatus != "" {
		rec.Status = decision.NewStatus
	}
	if decision.ResetCrashValue {
		rec.CrashValue = 0
		s.backoffAttempt[rec.ID] = 0
	} else if decision.NewStatus == record.StatusStopped {
		rec.CrashValue = 0
		s.backoffAttempt[rec.ID] = 0
	} else {
		rec.CrashValue++
	}
	if decision.EmitCrashEvent {
		s.log.Errorw("record latched crashed: crash limit reached", "record", rec.Name, "crash_limit", rec.CrashLimit)
	}
	if decision.Relaunch {
		rec.Restarts++
		s.backoffAttempt[rec.ID]++
		delay := restart.Backoff(s.backoffAttempt[rec.ID])
		id := rec.ID
		go func() {
			time.Sleep(delay)
			s.Submit(func(s *Supervisor) { s.relaunchIfStillAbsent(id) })
		}()
	}
}

// relaunchIfStillAbsent is invoked after a back-off sleep; it only launches
// if the record is still present, still awaiting its relaunch (status left
// at running by the exit decision) and has no live child (a user may have
// stopped, removed, or restarted it during the back-off window).
func (s *Supervisor) relaunchIfStillAbsent(id int) {
	rec, ok := s.table.GetByID(id)
	if !ok || rec.Status != record.StatusRunning || rec.PID != 0 {
		return
	}
	if err := s.launchRecord(rec); err != nil {
		s.log.Warnw("relaunch failed", "record", rec.Name, "error", err)
	}
}

func (s *Supervisor) handleWatchFired(id int) {
	rec, ok := s.table.GetByID(id)
	if !ok {
		return
	}
	if err := s.terminateThenApply(rec, restart.WatchFired()); err != nil {
		s.log.Warnw("reload-on-watch relaunch failed", "record", rec.Name, "error", err)
	}
}

// terminateThenApply applies decision's status/crash-value effects to rec
// immediately (so callers like the control API see the new status right
// away) and, if a child is running, asks launcher.Terminate to kill it from
// a separate goroutine — Terminate blocks for up to TerminateGrace, and the
// loop must never block on child I/O (spec §4.H). decision.Relaunch is not
// acted on here directly: it is stashed in pendingTerminate and carried out
// by handleExit once the kill is confirmed by the child's own Wait
// goroutine, so a relaunch never races the old process's teardown.
func (s *Supervisor) terminateThenApply(rec *record.Record, decision restart.Decision) error {
	if decision.NewStatus != "" {
		rec.Status = decision.NewStatus
	}
	if decision.ResetCrashValue {
		rec.CrashValue = 0
		s.backoffAttempt[rec.ID] = 0
	}

	if !decision.Terminate || rec.PID == 0 {
		if decision.Relaunch {
			return s.launchRecord(rec)
		}
		return nil
	}

	pid := rec.PID
	s.pendingTerminate[rec.ID] = decision
	go func() {
		launcher.Terminate(pid, s.cfg.TerminateGrace, func() bool { return launcher.Alive(pid) })
	}()
	return nil
}

func (s *Supervisor) sampleAll() {
	for _, rec := range s.table.Iter() {
		if rec.Status != record.StatusRunning || rec.PID == 0 {
			continue
		}
		sample := s.reap.Sample(rec.PID)
		if sample.Err != nil {
			continue // spec §4.C: a sampling failure is tolerated, stats stay stale
		}
		if !sample.Alive {
			continue // the exit event will arrive shortly via the Wait goroutine
		}
		rec.Stats = sample.Stats
		// spec §4.D: back-off resets on each clean tick that shows the
		// child still alive past MinUptimeForBackoffReset, not just on a
		// terminate-then-relaunch. Otherwise a child that crash-loops just
		// slowly enough to clear the limit between crashes never resets.
		if !rec.StartedAt.IsZero() && time.Since(rec.StartedAt) >= s.cfg.MinUptimeForBackoffReset {
			s.backoffAttempt[rec.ID] = 0
		}
		if reaper.MemoryExceeded(rec.Stats.RSSBytes, rec.MaxMemory) {
			if err := s.terminateThenApply(rec, restart.MemoryExceeded()); err != nil {
				s.log.Warnw("relaunch after memory ceiling failed", "record", rec.Name, "error", err)
			}
		}
	}
}

// Dump persists the current table to path (spec §4.I `save`).
func (s *Supervisor) Dump(path string) (int, error) {
	var n int
	var err error
	s.Submit(func(s *Supervisor) {
		n, err = persist.Dump(path, s.table.Iter())
	})
	return n, err
}

// RestoreAndRelaunch loads path, inserts every record, and relaunches the
// ones that were running at dump time (spec §4.F). It does not go through
// Submit itself: it is called directly once at startup before Run, and from
// inside a Submit callback (controlapi.Restore) once the loop is running.
func (s *Supervisor) RestoreAndRelaunch(path string) (restored int, skipped []string, err error) {
	loaded, err := persist.Load(path)
	if err != nil {
		return 0, nil, err
	}
	toRelaunch, skipped, err := persist.RestoreInto(s.table, loaded)
	if err != nil {
		return 0, skipped, err
	}
	for _, rec := range toRelaunch {
		if err := s.launchRecord(rec); err != nil {
			s.log.Warnw("restore relaunch failed", "record", rec.Name, "error", err)
		}
	}
	return len(loaded) - len(skipped), skipped, nil
}

// The methods below are the supervisor's half of the control API contract
// (internal/controlapi): the rest of that package's request validation and
// record resolution wraps these, but applying a decision to a record is
// the loop's own business. Every one of them must run on the loop
// goroutine — i.e. only ever called from inside a Submit callback.

// Launch starts rec, exported for callers (controlapi.Create) that have
// just inserted a brand new, not-yet-running record.
func (s *Supervisor) Launch(rec *record.Record) error {
	return s.launchRecord(rec)
}

// ApplyDecision runs a restart.Decision against rec the same way the
// loop's own event handlers do, for control-API-driven actions (start,
// stop, restart, reload).
func (s *Supervisor) ApplyDecision(rec *record.Record, decision restart.Decision) error {
	return s.terminateThenApply(rec, decision)
}

// HasPendingTerminate reports whether id has a kill in flight whose exit
// has not yet been observed, so the control API can reject a conflicting
// action instead of racing it.
func (s *Supervisor) HasPendingTerminate(id int) bool {
	_, pending := s.pendingTerminate[id]
	return pending
}

// StopWatch tears down id's file watch, if any (used by controlapi.Action
// on ActionDelete).
func (s *Supervisor) StopWatch(id int) {
	s.stopWatch(id)
}
