package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"photo-triage/internal/workerproto"
)

const (
	// DefaultShutdownGrace bounds how long Shutdown waits before terminating the worker.
	DefaultShutdownGrace = 5 * time.Second

	killGrace = 2 * time.Second
	readChunk = 32 << 10
)

// Spec describes how to launch a worker.
type Spec struct {
	Path string
	Args []string
	Dir  string
	Env  []string
}

// ExitStatus describes how the worker process ended.
type ExitStatus struct {
	Code   int
	Signal string
	Err    error
}

// Process owns one long-lived worker process and its standard streams.
// Stdout is framed into lines, stderr is captured for diagnostics only.
type Process struct {
	spec   Spec
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *stderrSink
	logger *slog.Logger

	lines  chan string
	stop   chan struct{}
	exited chan struct{}
	status ExitStatus

	writeMu      sync.Mutex
	ready        bool
	shutdownOnce sync.Once
}

// Start spawns the worker described by spec. The returned Process must be
// released with Shutdown on every path.
func Start(spec Spec, logger *slog.Logger) (*Process, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(spec.Path) == "" {
		return nil, &SpawnError{Path: spec.Path, Err: errors.New("executable path is empty")}
	}

	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	cmd.WaitDelay = killGrace
	configureProcess(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &SpawnError{Path: spec.Path, Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &SpawnError{Path: spec.Path, Err: err}
	}
	sink := newStderrSink(logger)
	cmd.Stderr = sink

	if err := cmd.Start(); err != nil {
		return nil, &SpawnError{Path: spec.Path, Err: err}
	}

	p := &Process{
		spec:   spec,
		cmd:    cmd,
		stdin:  stdin,
		stderr: sink,
		logger: logger.With("worker_pid", cmd.Process.Pid),
		lines:  make(chan string, 16),
		stop:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	p.logger.Debug("worker started", "path", spec.Path, "args", spec.Args)

	go p.readLoop(stdout)
	return p, nil
}

// readLoop frames stdout into lines until EOF, then reaps the process.
func (p *Process) readLoop(stdout io.Reader) {
	defer func() {
		close(p.lines)
		err := p.cmd.Wait()
		p.status = exitStatusFrom(p.cmd.ProcessState, err)
		p.logger.Debug("worker exited", "exit_code", p.status.Code, "signal", p.status.Signal)
		close(p.exited)
	}()

	var buf workerproto.LineBuffer
	chunk := make([]byte, readChunk)
	for {
		n, err := stdout.Read(chunk)
		if n > 0 {
			for _, line := range buf.Feed(chunk[:n]) {
				p.deliver(line)
			}
		}
		if err != nil {
			if line, ok := buf.Flush(); ok {
				p.deliver(line)
			}
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				p.logger.Warn("worker stdout read failed", "error", err)
			}
			return
		}
	}
}

// deliver hands a line to the consumer; after Shutdown lines are discarded.
func (p *Process) deliver(line string) {
	select {
	case p.lines <- line:
	case <-p.stop:
		p.logger.Debug("worker output after shutdown", "line", line)
	}
}

// AwaitReady blocks until the readiness token arrives. Other output before the
// token is logged and ignored. A zero timeout waits indefinitely.
func (p *Process) AwaitReady(ctx context.Context, timeout time.Duration) error {
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		select {
		case line, ok := <-p.lines:
			if !ok {
				return p.crashError()
			}
			if workerproto.IsReady(line) {
				p.writeMu.Lock()
				p.ready = true
				p.writeMu.Unlock()
				return nil
			}
			p.logger.Debug("worker output before readiness", "line", line)
		case <-deadline:
			return fmt.Errorf("%w after %s", ErrReadyTimeout, timeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Send encodes value as one frame and writes it to the worker.
func (p *Process) Send(value any) error {
	frame, err := workerproto.Encode(value)
	if err != nil {
		return err
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	if !p.ready {
		return fmt.Errorf("%w: worker has not signalled readiness", ErrWriteFailure)
	}
	select {
	case <-p.exited:
		return fmt.Errorf("%w: worker has exited", ErrWriteFailure)
	case <-p.stop:
		return fmt.Errorf("%w: worker is shutting down", ErrWriteFailure)
	default:
	}

	if _, err := p.stdin.Write(frame); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailure, err)
	}
	return nil
}

// Next returns the next output line, skipping repeated readiness tokens.
// When the worker has exited and all its output was consumed, Next returns a *CrashError.
func (p *Process) Next(ctx context.Context) (string, error) {
	for {
		select {
		case line, ok := <-p.lines:
			if !ok {
				return "", p.crashError()
			}
			if workerproto.IsReady(line) {
				p.logger.Debug("ignoring repeated readiness token")
				continue
			}
			return line, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// Exited is closed once the worker process has been reaped.
func (p *Process) Exited() <-chan struct{} {
	return p.exited
}

// Status returns the exit status. Only meaningful after Exited is closed.
func (p *Process) Status() ExitStatus {
	select {
	case <-p.exited:
		return p.status
	default:
		return ExitStatus{Code: -1}
	}
}

// Shutdown writes the exit token, closes stdin and waits up to grace for the
// worker to exit before terminating it. Write failures are tolerated.
func (p *Process) Shutdown(grace time.Duration) error {
	var shutdownErr error
	p.shutdownOnce.Do(func() {
		if grace <= 0 {
			grace = DefaultShutdownGrace
		}

		p.writeMu.Lock()
		if _, err := io.WriteString(p.stdin, workerproto.ExitToken+"\n"); err != nil {
			p.logger.Debug("worker exit token not delivered", "error", err)
		}
		_ = p.stdin.Close()
		close(p.stop)
		p.writeMu.Unlock()

		timer := time.NewTimer(grace)
		defer timer.Stop()
		select {
		case <-p.exited:
			return
		case <-timer.C:
		}

		p.logger.Warn("worker did not exit after shutdown request, terminating", "grace", grace)
		if err := terminateProcess(p.cmd, false); err != nil {
			shutdownErr = fmt.Errorf("terminate worker: %w", err)
		}
		select {
		case <-p.exited:
			return
		case <-time.After(killGrace):
		}

		if err := terminateProcess(p.cmd, true); err != nil {
			shutdownErr = fmt.Errorf("kill worker: %w", err)
		}
		<-p.exited
	})
	return shutdownErr
}

// Stderr returns the captured tail of the worker's error stream.
func (p *Process) Stderr() string {
	return p.stderr.tail.String()
}

func (p *Process) crashError() error {
	<-p.exited
	return &CrashError{
		ExitCode: p.status.Code,
		Signal:   p.status.Signal,
		Stderr:   p.Stderr(),
	}
}

func exitStatusFrom(state *os.ProcessState, err error) ExitStatus {
	status := ExitStatus{Code: -1, Err: err}
	if state == nil {
		return status
	}
	status.Code = state.ExitCode()
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		status.Signal = ws.Signal().String()
	}
	return status
}
