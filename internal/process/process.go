// Package process runs one external program with a hard upper bound on its
// lifetime and on the output kept in memory.
//
// The child gets its own process group. When the timeout fires or the
// context ends, the whole group receives a termination signal; if the
// leader is still alive after the kill grace period, the group is killed.
package process

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"time"
)

// DefaultKillGrace is the delay between the termination and kill signals.
const DefaultKillGrace = time.Second

// Spec describes one execution.
type Spec struct {
	// Path is the program, resolved through PATH when it has no separator.
	Path string
	Args []string
	Dir  string

	// Env is the complete child environment. Nil inherits the host's.
	Env []string

	// Timeout bounds the run. Zero means no timeout beyond ctx.
	Timeout time.Duration

	// KillGrace defaults to DefaultKillGrace.
	KillGrace time.Duration

	// MaxOutputBytes caps each of stdout and stderr.
	MaxOutputBytes int
}

// Result is the outcome of a process that was started.
type Result struct {
	// ExitCode is -1 when the process was ended by a signal.
	ExitCode  int
	Stdout    string
	Stderr    string
	TimedOut  bool
	Canceled  bool
	Truncated bool
	Duration  time.Duration
}

// Success reports a zero exit without timeout or cancellation.
func (r Result) Success() bool {
	return r.ExitCode == 0 && !r.TimedOut && !r.Canceled
}

// StartError reports that the program could not be started.
type StartError struct {
	Path string
	Err  error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("starting %s: %v", e.Path, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// NotFound reports whether the program binary could not be located.
func (e *StartError) NotFound() bool {
	return errors.Is(e.Err, exec.ErrNotFound) || errors.Is(e.Err, fs.ErrNotExist)
}

// Run starts the program and waits for it. A non-zero exit, a timeout, or
// a cancellation is reported in Result; the returned error is non-nil
// (and a *StartError) only when the process could not be started.
func Run(ctx context.Context, spec Spec) (Result, error) {
	grace := spec.KillGrace
	if grace <= 0 {
		grace = DefaultKillGrace
	}

	stdout := NewBoundedBuffer(spec.MaxOutputBytes)
	stderr := NewBoundedBuffer(spec.MaxOutputBytes)

	//nolint:gosec // callers validate the program against an allow-list.
	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	// Descendants that keep the pipes open must not stall Wait forever.
	cmd.WaitDelay = grace
	setProcessGroup(cmd)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{}, &StartError{Path: spec.Path, Err: err}
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var timeout <-chan time.Time
	if spec.Timeout > 0 {
		timer := time.NewTimer(spec.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	var res Result
	select {
	case <-done:
	case <-timeout:
		res.TimedOut = true
		terminate(cmd, done, grace)
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			res.TimedOut = true
		} else {
			res.Canceled = true
		}
		terminate(cmd, done, grace)
	}

	res.Duration = time.Since(start)
	res.ExitCode = -1
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()
	res.Truncated = stdout.Truncated() || stderr.Truncated()
	return res, nil
}

// terminate signals the group, waits up to grace for the leader, then
// kills the group. The group is killed even when the leader exits in
// time so no descendant outlives the run.
func terminate(cmd *exec.Cmd, done <-chan error, grace time.Duration) {
	_ = interruptGroup(cmd.Process)

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-done:
		_ = killGroup(cmd.Process)
		return
	case <-timer.C:
	}

	_ = killGroup(cmd.Process)
	<-done
}
