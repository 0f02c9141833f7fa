package controlapi

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/thainguyen06/pmc/internal/config"
	"github.com/thainguyen06/pmc/internal/envfile"
	"github.com/thainguyen06/pmc/internal/logstore"
	"github.com/thainguyen06/pmc/internal/persist"
	"github.com/thainguyen06/pmc/internal/record"
	"github.com/thainguyen06/pmc/internal/restart"
	"github.com/thainguyen06/pmc/internal/supervisor"
	"github.com/thainguyen06/pmc/internal/workers"
)

// API implements every control-API operation (spec §4.I) against one
// daemon's supervisor. Every method that touches the table does so via
// sup.Submit, so API itself holds no lock and is safe to call from any
// number of concurrent transport goroutines.
type API struct {
	cfg config.Config
	sup *supervisor.Supervisor
	tbl *record.Table
	log *logstore.Store
}

func New(cfg config.Config, sup *supervisor.Supervisor, tbl *record.Table, log *logstore.Store) *API {
	return &API{cfg: cfg, sup: sup, tbl: tbl, log: log}
}

// RecordSummary is the `list()` row shape (spec §4.I).
type RecordSummary struct {
	ID       int           `json:"id"`
	Name     string        `json:"name"`
	Status   record.Status `json:"status"`
	Restarts int           `json:"restarts"`
	PID      int           `json:"pid,omitempty"`
}

// RecordDetail is the `info(ref)` response shape.
type RecordDetail struct {
	RecordSummary
	Script     string            `json:"script"`
	Path       string            `json:"path"`
	Env        map[string]string `json:"env"`
	Watch      *record.Watch     `json:"watch,omitempty"`
	MaxMemory  string            `json:"max_memory,omitempty"`
	CrashValue int               `json:"crash_value"`
	CrashLimit int               `json:"crash_limit"`
	Stats      record.Stats      `json:"stats"`
	Workers    string            `json:"workers,omitempty"`
}

func summaryOf(rec *record.Record) RecordSummary {
	return RecordSummary{ID: rec.ID, Name: rec.Name, Status: rec.Status, Restarts: rec.Restarts, PID: rec.PID}
}

func detailOf(rec *record.Record) RecordDetail {
	return RecordDetail{
		RecordSummary: summaryOf(rec),
		Script:        rec.Script,
		Path:          rec.Path,
		Env:           rec.Env,
		Watch:         rec.Watch,
		MaxMemory:     record.FormatMaxMemory(rec.MaxMemory),
		CrashValue:    rec.CrashValue,
		CrashLimit:    rec.CrashLimit,
		Stats:         rec.Stats,
		Workers:       rec.Workers,
	}
}

// List returns every record in insertion order (spec §4.I `list()`).
func (a *API) List() []RecordSummary {
	var out []RecordSummary
	a.sup.Submit(func(s *supervisor.Supervisor) {
		for _, rec := range a.tbl.Iter() {
			out = append(out, summaryOf(rec))
		}
	})
	return out
}

// Info returns ref's full detail (spec §4.I `info(ref)`).
func (a *API) Info(ref string) (RecordDetail, error) {
	var detail RecordDetail
	var resultErr error
	a.sup.Submit(func(s *supervisor.Supervisor) {
		rec, ok := a.tbl.GetByRef(ref)
		if !ok {
			resultErr = ErrNotFound
			return
		}
		detail = detailOf(rec)
	})
	return detail, resultErr
}

// Env returns ref's effective environment mapping (spec §4.I `env(ref)`).
func (a *API) Env(ref string) (map[string]string, error) {
	var env map[string]string
	var resultErr error
	a.sup.Submit(func(s *supervisor.Supervisor) {
		rec, ok := a.tbl.GetByRef(ref)
		if !ok {
			resultErr = ErrNotFound
			return
		}
		env, _ = envfile.Overlay(os.Environ(), rec.Path, rec.Env)
	})
	return env, resultErr
}

// Cstart returns the literal shell command line that would relaunch ref
// (spec §4.I `cstart(ref)`), without starting anything.
func (a *API) Cstart(ref string) (string, error) {
	var line string
	var resultErr error
	a.sup.Submit(func(s *supervisor.Supervisor) {
		rec, ok := a.tbl.GetByRef(ref)
		if !ok {
			resultErr = ErrNotFound
			return
		}
		line = CstartLine(a.cfg.Shell, rec)
	})
	return line, resultErr
}

// CstartLine is the pure function behind Cstart: given a shell and a
// record, it renders exactly what launcher.Launch would exec. Exposed
// standalone so it can be unit tested without a running supervisor.
func CstartLine(shell string, rec *record.Record) string {
	return fmt.Sprintf("%s -c %s", shell, strconv.Quote(rec.Script))
}

// CreateRequest is the `create(...)` payload (spec §4.I, §4.K).
type CreateRequest struct {
	Script    string
	Name      string
	Path      string
	Env       map[string]string
	Watch     *record.Watch
	MaxMemory string
	Workers   int
	PortRange string
}

// Create inserts one new record, or N worker records when Workers>=2 (spec
// §4.K), launching each immediately. Returns the created ids in insertion
// order.
func (a *API) Create(req CreateRequest) ([]int, error) {
	if req.Script == "" {
		return nil, fmt.Errorf("%w: script required", ErrInvalidArgs)
	}

	maxMem, err := record.ParseMaxMemory(req.MaxMemory)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}

	path := req.Path
	if path == "" {
		path = "."
	}

	var specs []workers.Spec
	if req.Workers >= 2 {
		specs, err = workers.Expand(req.Workers, req.PortRange, req.Name, req.Script, path, req.Env, req.Watch, maxMem, a.cfg.DefaultCrashLimit)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidArgs, err)
		}
	} else if req.Workers == 1 {
		return nil, fmt.Errorf("%w: workers must be >= 2", ErrInvalidArgs)
	} else {
		name := req.Name
		specs = []workers.Spec{{Name: name, Script: req.Script, Path: path, Env: req.Env, Watch: req.Watch, MaxMemory: maxMem, CrashLimit: a.cfg.DefaultCrashLimit}}
	}

	var ids []int
	var resultErr error
	a.sup.Submit(func(s *supervisor.Supervisor) {
		var inserted []*record.Record
		for _, sp := range specs {
			rec := &record.Record{
				Name:       sp.Name,
				Script:     sp.Script,
				Path:       sp.Path,
				Env:        sp.Env,
				Watch:      sp.Watch,
				MaxMemory:  sp.MaxMemory,
				CrashLimit: sp.CrashLimit,
				Status:     record.StatusStopped,
				Workers:    sp.WorkerGroup,
			}
			if rec.Name == "" {
				rec.Name = fmt.Sprintf("proc-%d", a.tbl.NextID())
			}
			if insertErr := a.tbl.Insert(rec); insertErr != nil {
				// Roll back everything inserted so far in this batch so a
				// worker-group create is all-or-nothing.
				for _, r := range inserted {
					a.tbl.Remove(strconv.Itoa(r.ID))
				}
				if insertErr == record.ErrNameTaken {
					resultErr = ErrNameTaken
				} else {
					resultErr = insertErr
				}
				return
			}
			inserted = append(inserted, rec)
		}
		for _, rec := range inserted {
			if launchErr := s.Launch(rec); launchErr != nil {
				resultErr = launchErr
				return
			}
			ids = append(ids, rec.ID)
		}
	})
	return ids, resultErr
}

// ActionMethod enumerates `action(ref, method)` methods (spec §4.I).
type ActionMethod string

const (
	ActionStart   ActionMethod = "start"
	ActionStop    ActionMethod = "stop"
	ActionRestart ActionMethod = "restart"
	ActionReload  ActionMethod = "reload"
	ActionFlush   ActionMethod = "flush"
	ActionDelete  ActionMethod = "delete"
)

// Action applies method to ref (spec §4.I `action`). start on a running
// record and stop on a stopped record are idempotent successes (spec §7).
// delete on a missing ref is also an idempotent success (spec §8: "remove
// on a missing record returns success without side effects") rather than
// ErrNotFound — every other method on a missing ref still reports NotFound.
func (a *API) Action(ref string, method ActionMethod) error {
	var resultErr error
	a.sup.Submit(func(s *supervisor.Supervisor) {
		rec, ok := a.tbl.GetByRef(ref)
		if !ok {
			if method != ActionDelete {
				resultErr = ErrNotFound
			}
			return
		}
		if s.HasPendingTerminate(rec.ID) && method != ActionDelete {
			resultErr = ErrInvalidTransition
			return
		}

		switch method {
		case ActionStart:
			if rec.Status == record.StatusRunning {
				return
			}
			if err := s.ApplyDecision(rec, restart.UserStart()); err != nil {
				resultErr = err
			}

		case ActionStop:
			if rec.Status != record.StatusRunning {
				rec.Status = record.StatusStopped
				return
			}
			s.ApplyDecision(rec, restart.UserStop())

		case ActionRestart:
			if err := s.ApplyDecision(rec, restart.UserRestart()); err != nil {
				resultErr = err
			}

		case ActionReload:
			if err := s.ApplyDecision(rec, restart.UserRestart()); err != nil {
				resultErr = err
			}

		case ActionFlush:
			if err := a.log.Flush(rec.ID); err != nil {
				resultErr = &IOError{Reason: "flush logs", Err: err}
			}

		case ActionDelete:
			s.StopWatch(rec.ID)
			if rec.Status == record.StatusRunning {
				s.ApplyDecision(rec, restart.UserStop())
			}
			a.tbl.Remove(strconv.Itoa(rec.ID))
			a.log.Remove(rec.ID)

		default:
			resultErr = fmt.Errorf("%w: unknown action %q", ErrInvalidArgs, method)
		}
	})
	return resultErr
}

// Rename changes ref's name (spec §4.I `rename`).
func (a *API) Rename(ref, newName string) error {
	if strings.TrimSpace(newName) == "" {
		return fmt.Errorf("%w: name required", ErrInvalidArgs)
	}
	var resultErr error
	a.sup.Submit(func(s *supervisor.Supervisor) {
		rec, ok := a.tbl.GetByRef(ref)
		if !ok {
			resultErr = ErrNotFound
			return
		}
		if err := a.tbl.Rename(rec, newName); err != nil {
			resultErr = ErrNameTaken
		}
	})
	return resultErr
}

// AdjustRequest is the `adjust(ref, {command?, name?})` payload; at least
// one field is required (spec §4.I, §7 `InvalidArgs`).
type AdjustRequest struct {
	Command *string
	Name    *string
}

// Adjust edits ref's stored script and/or name without relaunching it.
func (a *API) Adjust(ref string, req AdjustRequest) error {
	if req.Command == nil && req.Name == nil {
		return fmt.Errorf("%w: at least one field required", ErrInvalidArgs)
	}
	var resultErr error
	a.sup.Submit(func(s *supervisor.Supervisor) {
		rec, ok := a.tbl.GetByRef(ref)
		if !ok {
			resultErr = ErrNotFound
			return
		}
		if req.Name != nil {
			if err := a.tbl.Rename(rec, *req.Name); err != nil {
				resultErr = ErrNameTaken
				return
			}
		}
		if req.Command != nil {
			rec.Script = *req.Command
		}
	})
	return resultErr
}

// Logs returns the last N lines of ref's stdout or stderr (spec §4.I
// `logs`).
func (a *API) Logs(ref string, stream logstore.Stream, lines int) ([]string, error) {
	var id int
	var resultErr error
	a.sup.Submit(func(s *supervisor.Supervisor) {
		rec, ok := a.tbl.GetByRef(ref)
		if !ok {
			resultErr = ErrNotFound
			return
		}
		id = rec.ID
	})
	if resultErr != nil {
		return nil, resultErr
	}
	out, err := a.log.Tail(id, stream, lines)
	if err != nil {
		return nil, &IOError{Reason: "read log", Err: err}
	}
	return out, nil
}

// Save dumps the table to the daemon's dumpfile (spec §4.I `save()`).
func (a *API) Save() (int, error) {
	n, err := a.sup.Dump(a.cfg.StateDir + "/dump")
	if err != nil {
		return 0, &IOError{Reason: "write dumpfile", Err: err}
	}
	return n, nil
}

// Restore loads the daemon's dumpfile and relaunches previously running
// records (spec §4.I `restore()`).
func (a *API) Restore() (int, error) {
	var restored int
	var err error
	a.sup.Submit(func(s *supervisor.Supervisor) {
		restored, _, err = s.RestoreAndRelaunch(a.cfg.StateDir + "/dump")
	})
	if err != nil {
		return 0, &IOError{Reason: "read dumpfile", Err: err}
	}
	return restored, nil
}

// Metrics is the `metrics()` response shape (spec §4.I, §6).
type Metrics struct {
	RecordCount  int `json:"record_count"`
	RunningCount int `json:"running_count"`
}

func (a *API) Metrics() Metrics {
	var m Metrics
	a.sup.Submit(func(s *supervisor.Supervisor) {
		for _, rec := range a.tbl.Iter() {
			m.RecordCount++
			if rec.Status == record.StatusRunning {
				m.RunningCount++
			}
		}
	})
	return m
}

// Reset reinitializes the id counter (spec §4.I `reset()`; §9 requires the
// table to be empty first).
func (a *API) Reset() error {
	var resultErr error
	a.sup.Submit(func(s *supervisor.Supervisor) {
		if err := a.tbl.Reset(); err != nil {
			resultErr = fmt.Errorf("%w: table is not empty", ErrInvalidTransition)
		}
	})
	return resultErr
}

// Export writes every record to path as human-readable YAML (spec §6). The
// write happens inside Submit, on the supervisor loop goroutine, so it
// never races the sampler or an action handler mutating the same records
// (spec §5 single-owner invariant — the same reason supervisor.Dump calls
// persist.Dump from inside its own Submit).
func (a *API) Export(path string) error {
	var err error
	a.sup.Submit(func(s *supervisor.Supervisor) {
		err = persist.Export(path, a.tbl.Iter())
	})
	if err != nil {
		return &IOError{Reason: "write export", Err: err}
	}
	return nil
}

// Import reads path and inserts every entry as a new, stopped record.
func (a *API) Import(path string) (int, error) {
	imported, err := persist.Import(path)
	if err != nil {
		return 0, &IOError{Reason: "read export", Err: err}
	}
	var n int
	a.sup.Submit(func(s *supervisor.Supervisor) {
		for _, rec := range imported {
			if err := a.tbl.Insert(rec); err == nil {
				n++
			}
		}
	})
	return n, nil
}
