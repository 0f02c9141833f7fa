// Package launcher implements the Child Launcher (spec §4.B): forking a
// child with a chosen working directory, environment, stdout/stderr
// redirection, and a detached session.
package launcher

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/thainguyen06/pmc/internal/envfile"
	"github.com/thainguyen06/pmc/internal/record"
)

// LaunchError is returned when a child could not be spawned (spec §7
// `LaunchFailed{reason}`).
type LaunchError struct {
	Reason string
	Err    error
}

func (e *LaunchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("launch failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("launch failed: %s", e.Reason)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// Launched is the result of a successful Launch: the running *exec.Cmd (so
// the caller can Wait on it) and the pid/start time to store on the record.
type Launched struct {
	Cmd       *exec.Cmd
	PID       int
	StartedAt time.Time
}

// Launch starts rec's script under shell, redirecting stdout/stderr to
// outPath/errPath (append mode, created if missing) and placing the child
// in its own session so signals delivered to the daemon do not cascade
// (spec §4.B steps 1-5).
func Launch(rec *record.Record, shell, outPath, errPath string) (*Launched, error) {
	if info, err := os.Stat(rec.Path); err != nil || !info.IsDir() {
		return nil, &LaunchError{Reason: "bad working directory", Err: err}
	}

	outFd, err := os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, &LaunchError{Reason: "cannot open log", Err: err}
	}
	errFd, err := os.OpenFile(errPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		outFd.Close()
		return nil, &LaunchError{Reason: "cannot open log", Err: err}
	}

	_, envList := envfile.Overlay(os.Environ(), rec.Path, rec.Env)

	cmd := exec.Command(shell, "-c", rec.Script)
	cmd.Dir = rec.Path
	cmd.Env = envList
	cmd.Stdout = outFd
	cmd.Stderr = errFd
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		outFd.Close()
		errFd.Close()
		return nil, &LaunchError{Reason: "exec failed", Err: err}
	}

	// The child owns its log fds now via dup(2) in the kernel; our copies
	// only held them open long enough for Start to inherit them.
	outFd.Close()
	errFd.Close()

	return &Launched{Cmd: cmd, PID: cmd.Process.Pid, StartedAt: time.Now()}, nil
}
