// Package runner is the Tool Runner: it spawns an external tool as a
// subprocess, streams its stdout/stderr line by line to a caller-supplied
// callback, and enforces a timeout with a cancel-then-wait shutdown
// sequence (SIGTERM, then SIGKILL after a grace period).
package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/R3E-Network/orchestrator/pkg/logger"
)

// ErrTimeout is returned by Run when the tool did not exit within its
// timeout and had to be killed.
var ErrTimeout = errors.New("runner: timed out")

// ErrCancelled is returned by Run when Cancel (or the caller's context)
// ended the run before the subprocess exited on its own.
var ErrCancelled = errors.New("runner: cancelled")

// killGrace is how long SIGTERM is given to take effect before SIGKILL.
const killGrace = 5 * time.Second

// OutputLine is one captured line of subprocess output.
type OutputLine struct {
	Type    string // "stdout" or "stderr"
	Content string
}

// OutputFunc receives each OutputLine as it is produced. Implementations
// that do I/O (persist + publish) MUST apply their own backpressure; Run
// delivers lines synchronously and will block the subprocess's pipe if the
// callback blocks, by design — dropping output is not acceptable.
type OutputFunc func(line OutputLine)

// Result is the outcome of one Run.
type Result struct {
	ExitCode int
	TimedOut bool
	PID      int
}

// Runner spawns and supervises one subprocess execution.
type Runner struct {
	command    string
	workDir    string
	timeout    time.Duration
	onOutput   OutputFunc
	log        *logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// New returns a Runner for command, run from workDir with the given
// timeout (zero means no timeout), delivering output lines to onOutput.
func New(command, workDir string, timeout time.Duration, onOutput OutputFunc, log *logger.Logger) *Runner {
	if log == nil {
		log = logger.NewDefault("runner")
	}
	if onOutput == nil {
		onOutput = func(OutputLine) {}
	}
	return &Runner{
		command:  command,
		workDir:  workDir,
		timeout:  timeout,
		onOutput: onOutput,
		log:      log,
	}
}

// Run executes the command to completion (or until Cancel/timeout),
// returning its exit status. Run is not safe to call concurrently on the
// same Runner.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	runCtx, cancel := context.WithCancel(ctx)
	if r.timeout > 0 {
		var timeoutCancel context.CancelFunc
		runCtx, timeoutCancel = context.WithTimeout(runCtx, r.timeout)
		defer timeoutCancel()
	}

	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.cancel = nil
		r.mu.Unlock()
	}()

	if err := os.MkdirAll(r.workDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("runner: create working directory: %w", err)
	}

	cmd := exec.Command("/bin/sh", "-c", r.command)
	cmd.Dir = r.workDir
	cmd.Env = append(os.Environ(),
		"PATH=/usr/local/bin:/usr/bin:/bin:"+os.Getenv("PATH"),
		"NONINTERACTIVE=1",
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, fmt.Errorf("runner: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{}, fmt.Errorf("runner: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("runner: start: %w", err)
	}
	pid := cmd.Process.Pid

	var wg sync.WaitGroup
	wg.Add(2)
	go r.streamLines(&wg, stdout, "stdout")
	go r.streamLines(&wg, stderr, "stderr")

	waitErr := make(chan error, 1)
	go func() {
		wg.Wait()
		waitErr <- cmd.Wait()
	}()

	select {
	case err := <-waitErr:
		return resultFromWaitErr(pid, err)
	case <-runCtx.Done():
		return r.terminateAndWait(cmd, pid, waitErr, runCtx.Err())
	}
}

// Cancel requests early termination of an in-flight Run. Safe to call
// concurrently and more than once; a no-op if no Run is in flight.
func (r *Runner) Cancel() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (r *Runner) streamLines(wg *sync.WaitGroup, pipe io.ReadCloser, typ string) {
	defer wg.Done()
	scanner := bufio.NewScanner(pipe)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		r.onOutput(OutputLine{Type: typ, Content: scanner.Text()})
	}
}

// terminateAndWait implements the cancel-then-wait shutdown sequence:
// SIGTERM immediately, then SIGKILL if the process has not exited within
// killGrace. cause is the triggering context's Err(): DeadlineExceeded
// yields ErrTimeout, Canceled (an explicit Cancel() call, or the caller's
// own context ending) yields ErrCancelled — the pending wait always
// completes with a non-nil error, never a silent success.
func (r *Runner) terminateAndWait(cmd *exec.Cmd, pid int, waitErr chan error, cause error) (Result, error) {
	timedOut := errors.Is(cause, context.DeadlineExceeded)

	_ = cmd.Process.Signal(syscall.SIGTERM)

	select {
	case err := <-waitErr:
		res, _ := resultFromWaitErr(pid, err)
		res.TimedOut = timedOut
		return res, terminationError(timedOut)
	case <-time.After(killGrace):
		_ = cmd.Process.Kill()
		err := <-waitErr
		res, _ := resultFromWaitErr(pid, err)
		res.TimedOut = timedOut
		return res, terminationError(timedOut)
	}
}

func terminationError(timedOut bool) error {
	if timedOut {
		return ErrTimeout
	}
	return ErrCancelled
}

func resultFromWaitErr(pid int, err error) (Result, error) {
	res := Result{PID: pid}
	if err == nil {
		res.ExitCode = 0
		return res, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	return res, fmt.Errorf("runner: wait: %w", err)
}

// ProcessInfo returns a best-effort process identifier snapshot for a
// still-running or just-exited pid. When the process can no longer be found
// it returns an empty name, a zero time and the lookup error.
func ProcessInfo(pid int) (name string, createdAt time.Time, err error) {
	proc, perr := process.NewProcess(int32(pid))
	if perr != nil {
		return "", time.Time{}, perr
	}
	name, _ = proc.Name()
	createMs, _ := proc.CreateTime()
	return name, time.UnixMilli(createMs), nil
}
