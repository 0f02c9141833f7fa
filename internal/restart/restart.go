// Package restart implements the Restart Policy decision table (spec §4.D):
// given an event and a record's current crash_value, decide whether an
// exit or a memory overflow yields a restart, a crash-latch, or a permanent
// stop.
package restart

import (
	"time"

	"github.com/thainguyen06/pmc/internal/record"
)

// Event is one of the inputs the restart policy reacts to.
type Event int

const (
	// EventExitZero is a clean exit (exit code 0).
	EventExitZero Event = iota
	// EventExitNonZero is a crashing exit (non-zero exit code).
	EventExitNonZero
	// EventMemoryExceeded is a sampled rss > max_memory.
	EventMemoryExceeded
	// EventWatchFired is a debounced file-watch trigger.
	EventWatchFired
)

// Decision is what the supervisor loop should do in response to an Event.
type Decision struct {
	// NewStatus is the status the record should transition to immediately.
	// Empty means "leave unchanged" (e.g. a relaunch keeps it running).
	NewStatus record.Status

	// Relaunch is true if the record should be launched (or re-launched)
	// as a result of this decision.
	Relaunch bool

	// ResetCrashValue is true if crash_value must be zeroed (a clean start
	// or an explicit user restart, per invariant 4).
	ResetCrashValue bool

	// EmitCrashEvent is true exactly when crash_value reaches crash_limit
	// on this decision (spec §4.D row "= crash_limit - 1").
	EmitCrashEvent bool

	// Terminate is true if the running child must be sent SIGTERM/SIGKILL
	// before anything else happens (memory ceiling, WatchFired, user
	// restart/stop/reload/remove).
	Terminate bool
}

// Exit decides the outcome of an observed process exit. crashValue and
// crashLimit are the record's state *before* this exit is applied.
func Exit(code, crashValue, crashLimit int) Decision {
	if code == 0 {
		return Decision{NewStatus: record.StatusStopped}
	}

	next := crashValue + 1
	if next >= crashLimit {
		return Decision{NewStatus: record.StatusCrashed, EmitCrashEvent: true}
	}
	return Decision{Relaunch: true}
}

// MemoryExceeded decides the outcome of a sampled rss > max_memory. The
// caller terminates the child; the eventual exit is then run back through
// Exit as a non-zero exit (spec §4.D "treat as Exit ≠ 0").
func MemoryExceeded() Decision {
	return Decision{Terminate: true}
}

// WatchFired decides the outcome of a debounced file-watch trigger: the
// child is terminated and relaunched without touching crash_value.
func WatchFired() Decision {
	return Decision{Terminate: true, Relaunch: true}
}

// UserRestart decides the outcome of an explicit user restart/reload: the
// child is terminated, relaunched, and crash_value resets to zero
// (invariant 4).
func UserRestart() Decision {
	return Decision{Terminate: true, Relaunch: true, ResetCrashValue: true}
}

// UserStart decides the outcome of a user `start` on a stopped or crashed
// record: relaunch with crash_value reset.
func UserStart() Decision {
	return Decision{Relaunch: true, ResetCrashValue: true}
}

// UserStop decides the outcome of a user `stop`: terminate and mark
// stopped.
func UserStop() Decision {
	return Decision{Terminate: true, NewStatus: record.StatusStopped}
}

// Backoff computes the relaunch delay for the attempt-th consecutive
// restart (attempt starts at 1), an exponential curve capped at a few
// seconds (spec §4.D; the exact curve is left to the implementer by §9, as
// long as it is monotonic and bounded).
func Backoff(attempt int) time.Duration {
	const (
		base       = 250 * time.Millisecond
		maxBackoff = 8 * time.Second
	)
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}
