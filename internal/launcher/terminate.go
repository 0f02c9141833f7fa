package launcher

import (
	"time"

	"golang.org/x/sys/unix"
)

// Terminate sends SIGTERM to pid's whole process group (the child was
// launched into its own session via Setsid, so -pid addresses the group)
// and, if it is still alive after grace, follows with SIGKILL (spec §4.D
// "Termination uses SIGTERM; if the child is still alive after a grace
// period ... SIGKILL"). alive is polled at a short fixed interval rather
// than blocking on a single sleep so callers observing the child exit
// early (via their own Wait goroutine) aren't forced to wait out the full
// grace period — but Terminate itself has no way to know that, so it uses
// the passed alive func as the source of truth.
func Terminate(pid int, grace time.Duration, alive func() bool) {
	if pid <= 0 {
		return
	}
	unix.Kill(-pid, unix.SIGTERM)

	deadline := time.Now().Add(grace)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for time.Now().Before(deadline) {
		if !alive() {
			return
		}
		<-ticker.C
	}
	if alive() {
		unix.Kill(-pid, unix.SIGKILL)
	}
}

// Alive reports whether pid is still a live process (signal 0, per the
// standard Unix liveness-check idiom).
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return unix.Kill(pid, 0) == nil
}
