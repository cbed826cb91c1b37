// Package process launches the external test runner and watches it until it exits.
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

	"github.com/fitnesse/test-system-harness/framework"
	"github.com/fitnesse/test-system-harness/framework/opt"

	"github.com/kballard/go-shellquote"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

const maxLineLength = 1024 * 1024

// Process is a launched runner.
type Process interface {
	// Wait blocks until the process has exited and its output has been read.
	Wait() error

	// Done is closed once the process has exited and its output has been read.
	Done() <-chan struct{}

	// ExitCode is defined once the process has exited. It is -1 if the process was ended by
	// a signal.
	ExitCode() opt.Maybe[int]

	// Kill ends the process. Calling it more than once, or after the process has exited, is
	// not an error.
	Kill() error
}

// Launcher starts a command line with extra environment variables, sending every line the
// process prints to output.
type Launcher interface {
	Launch(ctx context.Context, command string, env map[string]string, output framework.Logger) (Process, error)
}

// ExecLauncher runs commands as child processes of the harness.
type ExecLauncher struct {
	// Dir is the working directory of the child; empty means the harness's own.
	Dir string
}

func (l ExecLauncher) Launch(
	ctx context.Context,
	command string,
	env map[string]string,
	output framework.Logger,
) (Process, error) {
	r := NewRunner(command, env, output)
	r.Dir = l.Dir
	if err := r.Start(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// Runner is a single child process.
type Runner struct {
	Dir string

	command  string
	env      map[string]string
	output   framework.Logger
	cmd      *exec.Cmd
	done     chan struct{}
	exitCode opt.Maybe[int]
	waitErr  error
	killed   bool
	lock     sync.Mutex
}

func NewRunner(command string, env map[string]string, output framework.Logger) *Runner {
	if output == nil {
		output = framework.NullLogger()
	}
	return &Runner{
		command: command,
		env:     env,
		output:  output,
		done:    make(chan struct{}),
	}
}

func (r *Runner) Command() string { return r.command }

// Start splits the command line the way a POSIX shell would and starts the process. The
// context only governs starting; the process is not tied to it afterward.
func (r *Runner) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	args, err := shellquote.Split(r.command)
	if err != nil {
		return fmt.Errorf("invalid command line %q: %w", r.command, err)
	}
	if len(args) == 0 {
		return errors.New("command line is empty")
	}

	r.lock.Lock()
	defer r.lock.Unlock()
	if r.cmd != nil {
		return errors.New("process was already started")
	}

	cmd := exec.Command(args[0], args[1:]...) //nolint:gosec
	cmd.Dir = r.Dir
	cmd.Env = MergeEnvironment(os.Environ(), r.env)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %q: %w", args[0], err)
	}
	r.cmd = cmd

	var readers sync.WaitGroup
	readers.Add(2)
	go r.readLines(stdout, r.output, &readers)
	go r.readLines(stderr, framework.LoggerWithPrefix(r.output, "[stderr] "), &readers)
	go r.waitForExit(&readers)
	return nil
}

func (r *Runner) readLines(from io.Reader, to framework.Logger, readers *sync.WaitGroup) {
	defer readers.Done()
	scanner := bufio.NewScanner(from)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineLength)
	for scanner.Scan() {
		to.Printf("%s", scanner.Text())
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		to.Printf("error reading process output: %s", err)
	}
}

// exec.Cmd.Wait closes the pipes, so the readers have to finish first.
func (r *Runner) waitForExit(readers *sync.WaitGroup) {
	readers.Wait()
	err := r.cmd.Wait()

	r.lock.Lock()
	if state := r.cmd.ProcessState; state != nil {
		r.exitCode = opt.Some(state.ExitCode())
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// a nonzero exit is reported through ExitCode
		err = nil
	}
	r.waitErr = err
	r.lock.Unlock()
	close(r.done)
}

func (r *Runner) Wait() error {
	<-r.done
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.waitErr
}

func (r *Runner) Done() <-chan struct{} { return r.done }

func (r *Runner) ExitCode() opt.Maybe[int] {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.exitCode
}

func (r *Runner) Kill() error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.cmd == nil || r.killed {
		return nil
	}
	r.killed = true
	select {
	case <-r.done:
		return nil
	default:
	}
	if err := r.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

// MergeEnvironment appends the extra variables, in name order, to a base environment in
// os.Environ form. Where a name is already present the extra value wins.
func MergeEnvironment(base []string, extra map[string]string) []string {
	ret := slices.Clone(base)
	names := maps.Keys(extra)
	slices.Sort(names)
	for _, name := range names {
		ret = append(ret, name+"="+extra[name])
	}
	return ret
}
