// Package backendtest provides a scriptable backend.CommandRunner for tests.
package backendtest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
)

// Call records one command invocation.
type Call struct {
	Name string
	Args []string
}

// Arg returns the value following flag, or "" when absent.
func (c Call) Arg(flag string) string {
	i := slices.Index(c.Args, flag)
	if i < 0 || i+1 >= len(c.Args) {
		return ""
	}

	return c.Args[i+1]
}

// Runner implements backend.CommandRunner with injectable behavior.
type Runner struct {
	RunFunc   func(ctx context.Context, name string, args []string, stdin io.Reader) ([]byte, []byte, error)
	StartFunc func(ctx context.Context, name string, args []string, stdin io.Reader) (io.ReadCloser, io.ReadCloser, func() error, error)

	calls []Call
	mu    sync.Mutex
}

// Run records the call and delegates to RunFunc.
func (r *Runner) Run(ctx context.Context, name string, args []string, stdin io.Reader) ([]byte, []byte, error) {
	r.record(name, args)
	if r.RunFunc == nil {
		return nil, nil, nil
	}

	return r.RunFunc(ctx, name, args, stdin)
}

// Start records the call and delegates to StartFunc. Without one it starts a process that prints nothing.
func (r *Runner) Start(ctx context.Context, name string, args []string, stdin io.Reader) (io.ReadCloser, io.ReadCloser, func() error, error) {
	r.record(name, args)
	if r.StartFunc == nil {
		return Process{}.Start(ctx)
	}

	return r.StartFunc(ctx, name, args, stdin)
}

// Calls returns a copy of every recorded call.
func (r *Runner) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Clone(r.calls)
}

// CallsTo returns the recorded calls whose binary path ends with suffix.
func (r *Runner) CallsTo(suffix string) []Call {
	var out []Call
	for _, c := range r.Calls() {
		if strings.HasSuffix(c.Name, suffix) {
			out = append(out, c)
		}
	}

	return out
}

func (r *Runner) record(name string, args []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, Call{Name: name, Args: slices.Clone(args)})
}

// ExitError mimics *exec.ExitError for a process that exited with Code.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// ExitCode returns the scripted exit code.
func (e *ExitError) ExitCode() int {
	return e.Code
}

// ErrKilled is returned by Wait for a process killed through its context.
var ErrKilled = errors.New("signal: killed")

// Process scripts the observable behavior of a started process.
type Process struct {
	// Err is returned by Wait once stdout is exhausted.
	Err error

	// Stderr is the full diagnostic output.
	Stderr string

	// Stdout is written chunk by chunk, each as a separate write.
	Stdout []string

	// Hang keeps the process alive after its output until the context is done.
	Hang bool
}

// Start launches the scripted process.
func (p Process) Start(ctx context.Context) (io.ReadCloser, io.ReadCloser, func() error, error) {
	pr, pw := io.Pipe()
	done := make(chan error, 1)

	go func() {
		for _, chunk := range p.Stdout {
			if _, err := pw.Write([]byte(chunk)); err != nil {
				break
			}
		}

		var err error
		if p.Hang {
			<-ctx.Done()
			err = ErrKilled
		} else {
			err = p.Err
		}

		pw.Close()
		done <- err
	}()

	wait := func() error {
		return <-done
	}

	return pr, io.NopCloser(strings.NewReader(p.Stderr)), wait, nil
}
