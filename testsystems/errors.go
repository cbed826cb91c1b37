package testsystems

import (
	"errors"
	"fmt"

	"github.com/fitnesse/test-system-harness/framework/opt"
)

var (
	// ErrStartupFailure means the external runner could not be launched.
	ErrStartupFailure = errors.New("test system could not be started")

	// ErrLogChannelFailure means the channel that carries results back from the runner could
	// not be established. The runner was never launched.
	ErrLogChannelFailure = errors.New("test system result channel could not be established")

	// ErrInterruptedShutdown means a graceful shutdown, or a wait for results, was cut short.
	// The caller may still Kill the test system.
	ErrInterruptedShutdown = errors.New("test system shutdown was interrupted")

	// ErrInvalidState means an operation was called out of order, such as Start before
	// ExecutionLog or a second Start.
	ErrInvalidState = errors.New("operation is not valid in the current test system state")
)

// RuntimeFault is a failure reported by, or observed in, a runner that had started. It is
// recorded in the ExecutionLog and passed to the listener; the lifecycle never returns it.
type RuntimeFault struct {
	Message  string
	ExitCode opt.Maybe[int]
	Err      error
}

func (f RuntimeFault) Error() string {
	message := f.Message
	if f.ExitCode.IsDefined() {
		message = fmt.Sprintf("%s (exit code %d)", message, f.ExitCode.Value())
	}
	if f.Err != nil {
		return message + ": " + f.Err.Error()
	}
	return message
}

func (f RuntimeFault) Unwrap() error { return f.Err }
