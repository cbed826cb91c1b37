package testsystems

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/fitnesse/test-system-harness/config"
	"github.com/fitnesse/test-system-harness/framework"
	"github.com/fitnesse/test-system-harness/framework/opt"
)

// State is where a TestSystem is in its lifecycle.
type State int

const (
	StateCreated State = iota
	StateStarted
	StateRunning
	StateCompleted
	StateFaulted
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarted:
		return "started"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFaulted:
		return "faulted"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// RunSpec is everything a Variant needs to know to launch the runner.
type RunSpec struct {
	// Command is the descriptor's command pattern with %p and %m filled in.
	Command string

	// Environment holds variables to set for the runner in addition to the harness's own
	// environment. It is nil when the page does not define CLASSPATH_PROPERTY.
	Environment map[string]string

	Classpath   string
	Descriptor  Descriptor
	FastTest    bool
	ManualStart bool
}

// Variant is the part of a test system that differs between kinds of runners: how the
// process is launched and how its results get back to the harness.
//
// CreateExecutionLog is called once, before Start. The variant reports whatever the runner
// sends back by calling the methods of events, which is the owning TestSystem; it may do so
// from any goroutine.
type Variant interface {
	CreateExecutionLog(spec RunSpec, events Listener) (*ExecutionLog, error)
	Start(ctx context.Context) error
	RunTests(ctx context.Context, page PageData) (string, error)
	Bye(ctx context.Context) error
	Kill() error
}

// TestSystem drives one external test runner through its lifecycle:
//
//	ExecutionLog -> Start -> RunTestsAndGenerateHTML (any number of pages) -> Bye or Kill
//
// Everything the runner reports passes through the TestSystem on its way to the listener,
// so exceptions are always recorded in the ExecutionLog first.
//
// Kill and ExceptionOccurred may be called from any goroutine at any time after Start,
// including while RunTestsAndGenerateHTML is blocked.
type TestSystem struct {
	page        config.VariableSource
	listener    Listener
	variant     Variant
	logger      framework.Logger
	fastTest    bool
	manualStart bool

	descriptor opt.Maybe[Descriptor]
	log        *ExecutionLog
	state      State
	started    bool
	starting   bool
	killOnce   sync.Once
	killErr    error

	lock         sync.Mutex // guards the fields above
	createLock   sync.Mutex // serializes ExecutionLog creation
	dispatchLock sync.Mutex // serializes calls to the listener
}

// NewTestSystem creates a TestSystem for a page. The page's variables are used to derive the
// runner's environment. The listener is shared with the caller and is not closed.
func NewTestSystem(
	page config.VariableSource,
	listener Listener,
	variant Variant,
	logger framework.Logger,
) *TestSystem {
	if page == nil {
		page = config.Variables(nil)
	}
	if listener == nil {
		listener = NullListener()
	}
	if logger == nil {
		logger = framework.NullLogger()
	}
	return &TestSystem{
		page:     page,
		listener: listener,
		variant:  variant,
		logger:   logger,
	}
}

// SetFastTest asks the variant to run the tests in the quickest way it supports.
func (ts *TestSystem) SetFastTest(fastTest bool) {
	ts.lock.Lock()
	ts.fastTest = fastTest
	ts.lock.Unlock()
}

// SetManualStart tells the variant that the operator will start the runner by hand.
func (ts *TestSystem) SetManualStart(manualStart bool) {
	ts.lock.Lock()
	ts.manualStart = manualStart
	ts.lock.Unlock()
}

func (ts *TestSystem) State() State {
	ts.lock.Lock()
	defer ts.lock.Unlock()
	return ts.state
}

// Descriptor returns the descriptor the execution log was created with, if it has been.
func (ts *TestSystem) Descriptor() opt.Maybe[Descriptor] {
	ts.lock.Lock()
	defer ts.lock.Unlock()
	return ts.descriptor
}

// ExecutionLog creates the log for this run the first time it is called, and returns the
// same log afterward. Creating it is when the variant sets up the result channel, so a
// failure here wraps ErrLogChannelFailure; a later call may try again.
func (ts *TestSystem) ExecutionLog(classpath string, descriptor Descriptor) (*ExecutionLog, error) {
	ts.createLock.Lock()
	defer ts.createLock.Unlock()

	ts.lock.Lock()
	if ts.log != nil {
		log := ts.log
		ts.lock.Unlock()
		return log, nil
	}
	if ts.state == StateTerminated {
		ts.lock.Unlock()
		return nil, fmt.Errorf("%w: test system has been terminated", ErrInvalidState)
	}
	spec := RunSpec{
		Command:     BuildCommand(descriptor, classpath),
		Environment: ts.ClasspathEnvironment(classpath),
		Classpath:   classpath,
		Descriptor:  descriptor,
		FastTest:    ts.fastTest,
		ManualStart: ts.manualStart,
	}
	ts.lock.Unlock()

	ts.logger.Printf("Creating execution log for %s", descriptor)
	log, err := ts.variant.CreateExecutionLog(spec, ts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLogChannelFailure, err)
	}
	if log == nil {
		log = NewExecutionLog(spec.Command)
	}

	ts.lock.Lock()
	ts.log = log
	ts.descriptor = opt.Some(descriptor)
	ts.lock.Unlock()
	return log, nil
}

func (ts *TestSystem) currentLog() *ExecutionLog {
	ts.lock.Lock()
	defer ts.lock.Unlock()
	return ts.log
}

// Start launches the runner. It may be attempted only once; if it fails, the error wraps
// ErrStartupFailure and IsSuccessfullyStarted stays false.
func (ts *TestSystem) Start(ctx context.Context) error {
	ts.lock.Lock()
	switch {
	case ts.log == nil:
		ts.lock.Unlock()
		return fmt.Errorf("%w: execution log must be created before starting", ErrInvalidState)
	case ts.state != StateCreated || ts.starting:
		state := ts.state
		ts.lock.Unlock()
		return fmt.Errorf("%w: cannot start a test system that is %s", ErrInvalidState, state)
	}
	ts.starting = true
	log := ts.log
	ts.lock.Unlock()

	ts.logger.Printf("Starting test system: %s", log.Command())
	err := ts.variant.Start(ctx)

	ts.lock.Lock()
	defer ts.lock.Unlock()
	if err == nil && ts.state == StateTerminated {
		err = errors.New("test system was killed while starting")
	}
	if err != nil {
		ts.state = StateTerminated
		log.AddReason(fmt.Sprintf("Test system could not be started: %s", err))
		return fmt.Errorf("%w: %w", ErrStartupFailure, err)
	}
	ts.started = true
	ts.state = StateStarted
	return nil
}

// IsSuccessfullyStarted reports whether Start succeeded.
func (ts *TestSystem) IsSuccessfullyStarted() bool {
	ts.lock.Lock()
	defer ts.lock.Unlock()
	return ts.started
}

// AcceptOutputFirst passes output from the runner to the listener.
func (ts *TestSystem) AcceptOutputFirst(output string) error {
	if !ts.IsSuccessfullyStarted() {
		return fmt.Errorf("%w: output received before the test system started", ErrInvalidState)
	}
	ts.dispatchLock.Lock()
	defer ts.dispatchLock.Unlock()
	return ts.listener.AcceptOutputFirst(output)
}

// RunTestsAndGenerateHTML hands a page to the runner and blocks until the runner has finished
// it, returning the output it produced. If the runner fails partway through, the fault is
// recorded and the partial output is returned without an error.
func (ts *TestSystem) RunTestsAndGenerateHTML(ctx context.Context, page PageData) (string, error) {
	ts.lock.Lock()
	if !ts.started || ts.state == StateTerminated {
		state := ts.state
		ts.lock.Unlock()
		return "", fmt.Errorf("%w: cannot run tests in a test system that is %s", ErrInvalidState, state)
	}
	ts.state = StateRunning
	ts.lock.Unlock()

	return ts.variant.RunTests(ctx, page)
}

// TestComplete passes a page's summary to the listener.
func (ts *TestSystem) TestComplete(summary TestSummary) error {
	if !ts.IsSuccessfullyStarted() {
		return fmt.Errorf("%w: completion received before the test system started", ErrInvalidState)
	}
	ts.dispatchLock.Lock()
	err := ts.listener.TestComplete(summary)
	ts.dispatchLock.Unlock()

	ts.lock.Lock()
	if ts.state != StateTerminated && ts.state != StateFaulted {
		ts.state = StateCompleted
	}
	ts.lock.Unlock()
	return err
}

// ExceptionOccurred records a fault in the execution log, along with a reason giving the exit
// code known at that moment, and then passes it to the listener.
func (ts *TestSystem) ExceptionOccurred(err error) {
	if log := ts.currentLog(); log != nil {
		log.recordAbort(err)
	}
	ts.logger.Printf("Test system fault: %s", err)

	ts.dispatchLock.Lock()
	ts.listener.ExceptionOccurred(err)
	ts.dispatchLock.Unlock()

	ts.lock.Lock()
	if ts.state != StateTerminated {
		ts.state = StateFaulted
	}
	ts.lock.Unlock()
}

// Bye asks the runner to finish and waits for it to exit. If ctx ends first, the error wraps
// ErrInterruptedShutdown and the test system is left running so that it can be killed.
func (ts *TestSystem) Bye(ctx context.Context) error {
	ts.lock.Lock()
	if ts.state == StateTerminated {
		ts.lock.Unlock()
		return nil
	}
	if !ts.started {
		state := ts.state
		ts.lock.Unlock()
		return fmt.Errorf("%w: cannot shut down a test system that is %s", ErrInvalidState, state)
	}
	ts.lock.Unlock()

	if err := ts.variant.Bye(ctx); err != nil {
		if errors.Is(err, ErrInterruptedShutdown) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrInterruptedShutdown, err)
	}

	ts.lock.Lock()
	ts.state = StateTerminated
	ts.lock.Unlock()
	return nil
}

// Kill stops the runner immediately. It can be called from any goroutine, any number of
// times; only the first call does anything.
func (ts *TestSystem) Kill() error {
	ts.killOnce.Do(func() {
		ts.lock.Lock()
		ts.state = StateTerminated
		ts.lock.Unlock()

		ts.logger.Printf("Killing test system")
		ts.killErr = ts.variant.Kill()
	})
	return ts.killErr
}

// ClasspathEnvironment returns the environment the runner needs to find its classpath: if the
// page defines CLASSPATH_PROPERTY, a single variable of that name set to classpath; otherwise
// nil.
func (ts *TestSystem) ClasspathEnvironment(classpath string) map[string]string {
	property := ts.page.Variable(config.ClasspathProperty)
	if !property.IsDefined() {
		return nil
	}
	return map[string]string{property.Value(): classpath}
}
