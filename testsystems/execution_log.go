package testsystems

import (
	"fmt"
	"sync"

	"github.com/fitnesse/test-system-harness/framework"
	"github.com/fitnesse/test-system-harness/framework/opt"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"golang.org/x/exp/slices"
)

// ExecutionLog is the record of one run of a test system: the command that was launched,
// what the process printed, its exit code, and anything that went wrong. It is written to by
// the lifecycle and by whatever is monitoring the process, possibly at the same time, and read
// by the caller afterward.
type ExecutionLog struct {
	command    string
	output     *framework.CapturingLogger
	exitCode   opt.Maybe[int]
	reasons    []string
	exceptions []error
	lock       sync.Mutex
}

func NewExecutionLog(command string) *ExecutionLog {
	return &ExecutionLog{command: command, output: &framework.CapturingLogger{}}
}

// Command is the command line that was, or will be, launched.
func (l *ExecutionLog) Command() string { return l.command }

// OutputLogger receives the lines the process writes to stdout and stderr.
func (l *ExecutionLog) OutputLogger() framework.Logger { return l.output }

// Output returns what the process has written so far.
func (l *ExecutionLog) Output() framework.CapturedOutput { return l.output.Output() }

func (l *ExecutionLog) SetExitCode(code int) {
	l.lock.Lock()
	l.exitCode = opt.Some(code)
	l.lock.Unlock()
}

// ExitCode is undefined until the process has exited.
func (l *ExecutionLog) ExitCode() opt.Maybe[int] {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.exitCode
}

func (l *ExecutionLog) AddReason(reason string) {
	l.lock.Lock()
	l.reasons = append(l.reasons, reason)
	l.lock.Unlock()
}

func (l *ExecutionLog) Reasons() []string {
	l.lock.Lock()
	defer l.lock.Unlock()
	return slices.Clone(l.reasons)
}

func (l *ExecutionLog) AddException(err error) {
	l.lock.Lock()
	l.exceptions = append(l.exceptions, err)
	l.lock.Unlock()
}

func (l *ExecutionLog) Exceptions() []error {
	l.lock.Lock()
	defer l.lock.Unlock()
	return slices.Clone(l.exceptions)
}

func (l *ExecutionLog) HasCapturedExceptions() bool {
	return l.ExceptionCount() > 0
}

func (l *ExecutionLog) ExceptionCount() int {
	l.lock.Lock()
	defer l.lock.Unlock()
	return len(l.exceptions)
}

// recordAbort adds the exception and the matching reason in one step, so the exit code in the
// reason is the one that was current when the exception was recorded.
func (l *ExecutionLog) recordAbort(err error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.exceptions = append(l.exceptions, err)
	l.reasons = append(l.reasons,
		fmt.Sprintf("Test execution aborted abnormally with error code %s", exitCodeText(l.exitCode)))
}

func exitCodeText(code opt.Maybe[int]) string {
	if code.IsDefined() {
		return fmt.Sprint(code.Value())
	}
	return "unknown"
}

// MarshalJSON writes the log as a JSON object, for saving alongside test reports.
func (l *ExecutionLog) MarshalJSON() ([]byte, error) {
	l.lock.Lock()
	exitCode := l.exitCode
	reasons := slices.Clone(l.reasons)
	exceptions := slices.Clone(l.exceptions)
	l.lock.Unlock()

	w := jwriter.NewWriter()
	obj := w.Object()
	obj.Name("command").String(l.command)
	obj.Maybe("exitCode", exitCode.IsDefined()).Int(exitCode.Value())
	reasonsArray := obj.Name("reasons").Array()
	for _, r := range reasons {
		reasonsArray.String(r)
	}
	reasonsArray.End()
	exceptionsArray := obj.Name("exceptions").Array()
	for _, e := range exceptions {
		exceptionsArray.String(e.Error())
	}
	exceptionsArray.End()
	outputArray := obj.Name("output").Array()
	for _, m := range l.output.Output() {
		outputArray.String(m.Message)
	}
	outputArray.End()
	obj.End()
	return w.Bytes(), w.Error()
}
