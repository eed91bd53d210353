package process

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

	"github.com/smazurov/streamgear/internal/logging"
)

// Errors returned by Process.
var (
	ErrAlreadyStarted = errors.New("process already started")
	ErrNotRunning     = errors.New("process not running")
	ErrBrokenPipe     = errors.New("process input closed")
)

// ExitCodeKilled is the exit code of a process ended by SIGKILL.
const ExitCodeKilled = 137

// OutputHandler receives output lines from the subprocess.
type OutputHandler interface {
	HandleLine(source, line string)
}

// LogParser parses a log line and returns the log level and message.
type LogParser func(line string) (level, msg string)

// Process manages the lifecycle of one subprocess.
type Process struct {
	id              string
	binary          string
	args            []string
	logger          logging.Logger
	outputLogger    logging.Logger
	logParser       LogParser
	outputHandler   OutputHandler
	withInput       bool
	stdout          io.Writer
	gracefulTimeout time.Duration
	killTimeout     time.Duration
	tail            *LineRing

	mu        sync.Mutex
	state     State
	cmd       *exec.Cmd
	input     io.WriteCloser
	inputOnce sync.Once
	startedAt time.Time
	done      chan struct{}
	exitCode  int
	waitErr   error
	killed    bool
}

// New creates a process that will run binary with args. Nothing is started
// until Start or Run.
func New(id, binary string, args []string, logger logging.Logger, opts ...Option) *Process {
	p := &Process{
		id:              id,
		binary:          binary,
		args:            args,
		logger:          logger,
		gracefulTimeout: 5 * time.Second,
		killTimeout:     5 * time.Second,
		tail:            NewLineRing(50),
		state:           StateNotStarted,
		done:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ID returns the process identifier used in logs.
func (p *Process) ID() string {
	return p.id
}

// State returns the current lifecycle state.
func (p *Process) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Info returns a snapshot of the process.
func (p *Process) Info() Info {
	p.mu.Lock()
	defer p.mu.Unlock()
	info := Info{
		ID:        p.id,
		State:     p.state,
		StartedAt: p.startedAt,
		ExitCode:  p.exitCode,
		Killed:    p.killed,
	}
	if p.cmd != nil && p.cmd.Process != nil {
		info.PID = p.cmd.Process.Pid
	}
	return info
}

// Tail returns up to n of the last stderr lines.
func (p *Process) Tail(n int) []string {
	return p.tail.LastN(n)
}

// Done is closed once the process has exited and its output is drained.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Start launches the subprocess in its own process group.
func (p *Process) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateNotStarted {
		return ErrAlreadyStarted
	}

	cmd := exec.Command(p.binary, p.args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.WaitDelay = p.killTimeout

	var input io.WriteCloser
	if p.withInput {
		var err error
		if input, err = cmd.StdinPipe(); err != nil {
			return fmt.Errorf("create stdin pipe: %w", err)
		}
	}

	stderrR, stderrW := io.Pipe()
	cmd.Stderr = stderrW
	var stdoutR *io.PipeReader
	var stdoutW *io.PipeWriter
	if p.stdout != nil {
		cmd.Stdout = p.stdout
	} else {
		stdoutR, stdoutW = io.Pipe()
		cmd.Stdout = stdoutW
	}

	if err := cmd.Start(); err != nil {
		p.logger.Error("Failed to start process", "id", p.id, "binary", p.binary, "error", err)
		p.state = StateTerminated
		p.exitCode = 1
		p.waitErr = err
		close(p.done)
		return fmt.Errorf("start %s: %w", p.binary, err)
	}

	p.cmd = cmd
	p.input = input
	p.startedAt = time.Now()
	p.state = StateRunning
	p.logger.Info("Process started", "id", p.id, "pid", cmd.Process.Pid)

	var outputs sync.WaitGroup
	if stdoutR != nil {
		outputs.Add(1)
		go func() {
			defer outputs.Done()
			p.streamOutput(stdoutR, "stdout")
		}()
	}
	outputs.Add(1)
	go func() {
		defer outputs.Done()
		p.streamOutput(stderrR, "stderr")
	}()

	go func() {
		err := cmd.Wait()
		if stdoutW != nil {
			stdoutW.Close()
		}
		stderrW.Close()
		outputs.Wait()
		p.finish(err)
	}()

	return nil
}

func (p *Process) finish(err error) {
	p.mu.Lock()
	p.exitCode = exitCodeFromError(err)
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		p.waitErr = err
	}
	p.state = StateTerminated
	code := p.exitCode
	p.mu.Unlock()

	p.logger.Info("Process exited", "id", p.id, "exit_code", code)
	close(p.done)
}

// Write sends b to the process stdin, blocking while the pipe is full.
func (p *Process) Write(b []byte) (int, error) {
	p.mu.Lock()
	state, input := p.state, p.input
	p.mu.Unlock()

	if input == nil || state == StateNotStarted {
		return 0, ErrNotRunning
	}
	select {
	case <-p.done:
		return 0, fmt.Errorf("%w: process exited", ErrBrokenPipe)
	default:
	}
	if state != StateRunning {
		return 0, ErrNotRunning
	}

	n, err := input.Write(b)
	if err != nil {
		return n, fmt.Errorf("%w: %w", ErrBrokenPipe, err)
	}
	return n, nil
}

// CloseInput closes stdin, signalling end of stream. Safe to call repeatedly.
func (p *Process) CloseInput() error {
	p.mu.Lock()
	input := p.input
	p.mu.Unlock()
	if input == nil {
		return nil
	}

	var err error
	p.inputOnce.Do(func() {
		err = input.Close()
	})
	if errors.Is(err, os.ErrClosed) {
		return nil
	}
	return err
}

// Wait blocks until the process exits and returns its exit code. The error
// is non-nil only when the process could not be waited on properly.
func (p *Process) Wait() (int, error) {
	p.mu.Lock()
	notStarted := p.state == StateNotStarted
	p.mu.Unlock()
	if notStarted {
		return 0, ErrNotRunning
	}

	<-p.done
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode, p.waitErr
}

// Run starts the process and blocks until it exits or ctx is cancelled, in
// which case it is stopped.
func (p *Process) Run(ctx context.Context) (int, error) {
	if err := p.Start(); err != nil {
		return 1, err
	}

	select {
	case <-p.done:
		return p.Wait()
	case <-ctx.Done():
		p.logger.Info("Context cancelled, shutting down process", "id", p.id)
		code, err := p.Stop()
		if err == nil {
			err = ctx.Err()
		}
		return code, err
	}
}

// Stop ends the process: stdin is closed (or SIGINT sent when there is no
// input pipe), and the group is killed if it has not exited within the
// graceful timeout. Calling Stop again waits for the same result.
func (p *Process) Stop() (int, error) {
	p.mu.Lock()
	switch p.state {
	case StateNotStarted:
		p.state = StateTerminated
		close(p.done)
		p.mu.Unlock()
		return 0, nil
	case StateTerminating, StateTerminated:
		p.mu.Unlock()
		return p.Wait()
	}
	p.state = StateTerminating
	hasInput := p.input != nil
	p.mu.Unlock()

	if hasInput {
		if err := p.CloseInput(); err != nil {
			p.logger.Warn("Failed to close process input", "id", p.id, "error", err)
		}
	} else {
		p.signalGroup(syscall.SIGINT)
	}

	select {
	case <-p.done:
		return p.Wait()
	case <-time.After(p.gracefulTimeout):
	}

	p.logger.Warn("Graceful shutdown timeout, forcing kill", "id", p.id, "timeout", p.gracefulTimeout)
	p.mu.Lock()
	p.killed = true
	p.mu.Unlock()
	p.signalGroup(syscall.SIGKILL)

	select {
	case <-p.done:
	case <-time.After(p.killTimeout):
		p.logger.Error("Process did not exit after kill signal", "id", p.id)
		return ExitCodeKilled, fmt.Errorf("process %s did not exit after SIGKILL", p.id)
	}
	return p.Wait()
}

// signalGroup signals the whole process group, falling back to the process.
func (p *Process) signalGroup(sig syscall.Signal) {
	p.mu.Lock()
	cmd := p.cmd
	p.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return
	}

	pid := cmd.Process.Pid
	p.logger.Debug("Signalling process group", "id", p.id, "pgid", pid, "signal", sig.String())
	if err := syscall.Kill(-pid, sig); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return
		}
		if err := cmd.Process.Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
			p.logger.Warn("Failed to signal process", "id", p.id, "signal", sig.String(), "error", err)
		}
	}
}

// exitCodeFromError extracts the exit code from a Wait error. Signal deaths
// map to 128+signal like a shell would report them.
func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			return 128 + int(status.Signal())
		}
		return exitErr.ExitCode()
	}
	return 1
}

// streamOutput forwards lines to the handler, the stderr tail and the log.
func (p *Process) streamOutput(reader io.Reader, source string) {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	logger := p.outputLogger
	if logger == nil {
		logger = p.logger
	}

	for scanner.Scan() {
		line := scanner.Text()

		if p.outputHandler != nil {
			p.outputHandler.HandleLine(source, line)
		}

		if source == "stdout" {
			logger.Debug(line)
			continue
		}
		p.tail.Add(line)

		level, msg := "info", line
		if p.logParser != nil {
			level, msg = p.logParser(line)
		}

		switch level {
		case "panic", "fatal", "error":
			logger.Error(msg)
		case "warning":
			logger.Warn(msg)
		case "verbose", "debug", "trace":
			logger.Debug(msg)
		default:
			logger.Info(msg)
		}
	}

	if err := scanner.Err(); err != nil {
		p.logger.Warn("Error reading output", "id", p.id, "source", source, "error", err)
		// Keep draining so the copy goroutine in os/exec can finish.
		_, _ = io.Copy(io.Discard, reader)
	}
}
