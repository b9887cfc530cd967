package backend

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"path/filepath"
	"time"
)

const (
	defaultChunkSize = 32 << 10
	maxStderrTail    = 4 << 10
	maxStderrLine    = 1 << 20
	waitDelay        = 5 * time.Second
)

// CommandRunner is the interface for running commands.
type CommandRunner interface {
	Run(ctx context.Context, name string, args []string, stdin io.Reader) (stdout, stderr []byte, err error)
	Start(ctx context.Context, name string, args []string, stdin io.Reader) (stdout, stderr io.ReadCloser, wait func() error, err error)
}

// ExecCommandRunner uses os/exec.
type ExecCommandRunner struct{}

// Run runs a command.
func (ExecCommandRunner) Run(ctx context.Context, name string, args []string, stdin io.Reader) (stdout, stderr []byte, err error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = stdin
	cmd.WaitDelay = waitDelay

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	err = cmd.Run()
	return outBuf.Bytes(), errBuf.Bytes(), err
}

// Start starts a command.
func (ExecCommandRunner) Start(ctx context.Context, name string, args []string, stdin io.Reader) (stdout, stderr io.ReadCloser, wait func() error, err error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = stdin
	cmd.WaitDelay = waitDelay

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, nil, err
	}

	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, nil, err
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, nil, err
	}

	return stdoutPipe, stderrPipe, cmd.Wait, nil
}

// Executor runs commands.
type Executor struct {
	runner     CommandRunner
	lookPath   func(string) (string, error)
	binaryPath string
	timeout    time.Duration
	chunkSize  int
}

// NewExecutor creates an executor. The binary is resolved at spawn time, so a missing
// binary surfaces as a command error on the first call rather than here.
func NewExecutor(binaryPath string, timeout time.Duration) *Executor {
	return NewExecutorWithRunner(binaryPath, timeout, ExecCommandRunner{})
}

// NewExecutorWithRunner creates an executor with a custom runner.
func NewExecutorWithRunner(binaryPath string, timeout time.Duration, runner CommandRunner) *Executor {
	return &Executor{
		binaryPath: binaryPath,
		timeout:    timeout,
		runner:     runner,
		lookPath:   exec.LookPath,
		chunkSize:  defaultChunkSize,
	}
}

// BinaryPath returns the configured binary.
func (e *Executor) BinaryPath() string {
	return e.binaryPath
}

// Available reports whether the binary can be resolved and executed.
func (e *Executor) Available() (string, error) {
	path, err := e.lookPath(e.binaryPath)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrBinaryNotFound, e.binaryPath, err)
	}

	return path, nil
}

// Execute runs the command to completion and returns its output.
// Any failure, including a non-zero exit or a timeout, is returned as a *CommandError.
func (e *Executor) Execute(ctx context.Context, args []string, stdin io.Reader) (stdout, stderr []byte, err error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	stdout, stderr, err = e.runner.Run(ctx, e.binaryPath, args, stdin)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		return stdout, stderr, e.commandError(args, err, tail(stderr, maxStderrTail))
	}

	return stdout, stderr, nil
}

// Stream runs the command and streams its stdout as raw chunks, in order.
// The final chunk has Done set and carries the exit code. The channel is closed once the
// process has been reaped; callers must drain it.
func (e *Executor) Stream(ctx context.Context, args []string, stdin io.Reader) (<-chan StreamChunk, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)

	stdout, stderr, wait, err := e.runner.Start(ctx, e.binaryPath, args, stdin)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("executor: failed to start command: %w", e.commandError(args, err, ""))
	}

	ch := make(chan StreamChunk, 32)

	go func() {
		defer close(ch)
		defer cancel()

		// Read stderr in background
		stderrTail := newTailBuffer(maxStderrTail)
		stderrDone := make(chan struct{})
		go func() {
			defer close(stderrDone)
			e.drainStderr(stderr, stderrTail)
		}()

		readErr := e.pump(ctx, stdout, ch)
		if readErr != nil {
			cancel()
			_, _ = io.Copy(io.Discard, stdout)
		}

		<-stderrDone
		waitErr := wait()

		final := StreamChunk{Done: true, ExitCode: ExitCode(waitErr)}
		switch {
		case waitErr != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				waitErr = fmt.Errorf("%w: %w", ctxErr, waitErr)
			}
			final.Error = e.commandError(args, waitErr, stderrTail.String())
		case readErr != nil:
			final.Error = fmt.Errorf("executor: failed to read stdout: %w", readErr)
		}

		ch <- final
	}()

	return ch, nil
}

// pump forwards stdout to ch until EOF, a read error, or cancellation.
func (e *Executor) pump(ctx context.Context, r io.Reader, ch chan<- StreamChunk) error {
	buf := make([]byte, e.chunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case ch <- StreamChunk{Data: bytes.Clone(buf[:n])}:
			}
		}

		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// drainStderr logs every stderr line and keeps the tail for error reporting.
func (e *Executor) drainStderr(r io.Reader, tailBuf *tailBuffer) {
	name := filepath.Base(e.binaryPath)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), maxStderrLine)
	for scanner.Scan() {
		line := scanner.Text()
		slog.Debug("Process stderr", "binary", name, "line", line)
		tailBuf.WriteLine(line)
	}

	if err := scanner.Err(); err != nil {
		slog.Error("Failed to read stderr", "binary", name, "error", err)
		_, _ = io.Copy(io.Discard, r)
	}
}

func (e *Executor) commandError(args []string, err error, stderr string) *CommandError {
	return &CommandError{
		Command:  e.binaryPath,
		Args:     args,
		ExitCode: ExitCode(err),
		Stderr:   stderr,
		Err:      err,
	}
}

// tail returns at most limit trailing bytes of b as trimmed text.
func tail(b []byte, limit int) string {
	if len(b) > limit {
		b = b[len(b)-limit:]
	}

	return string(bytes.TrimSpace(b))
}
