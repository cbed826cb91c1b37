package testsystems

import "errors"

// Listener receives what a test system reports while it runs. A test system may call it from
// the goroutine that is monitoring the runner, concurrently with the caller's own calls, so
// implementations must be safe for concurrent use. The test system never calls a listener
// concurrently with itself.
type Listener interface {
	AcceptOutputFirst(output string) error
	TestComplete(summary TestSummary) error
	ExceptionOccurred(err error)
}

type nullListener struct{}

func (nullListener) AcceptOutputFirst(string) error { return nil }
func (nullListener) TestComplete(TestSummary) error { return nil }
func (nullListener) ExceptionOccurred(error)        {}

// NullListener discards everything.
func NullListener() Listener { return nullListener{} }

// Event is one notification from a test system, as delivered by a ChannelListener.
type Event interface {
	EventName() string
}

// OutputEvent carries output from the runner.
type OutputEvent struct {
	Output string
}

// CompleteEvent carries the summary of a finished page.
type CompleteEvent struct {
	Summary TestSummary
}

// FaultEvent carries an exception raised during the run.
type FaultEvent struct {
	Err error
}

func (OutputEvent) EventName() string   { return "output" }
func (CompleteEvent) EventName() string { return "complete" }
func (FaultEvent) EventName() string    { return "fault" }

// ChannelListener turns listener calls into Events on a channel, in the order they were made.
// Sends block when the buffer is full, so the channel must be drained.
type ChannelListener struct {
	events chan Event
}

func NewChannelListener(bufferSize int) *ChannelListener {
	return &ChannelListener{events: make(chan Event, bufferSize)}
}

// Events returns the channel that events are delivered on.
func (c *ChannelListener) Events() <-chan Event { return c.events }

func (c *ChannelListener) AcceptOutputFirst(output string) error {
	c.events <- OutputEvent{Output: output}
	return nil
}

func (c *ChannelListener) TestComplete(summary TestSummary) error {
	c.events <- CompleteEvent{Summary: summary}
	return nil
}

func (c *ChannelListener) ExceptionOccurred(err error) {
	c.events <- FaultEvent{Err: err}
}

// MultiListener forwards every call to each listener in turn. Errors from all of them are
// joined.
type MultiListener []Listener

func (m MultiListener) AcceptOutputFirst(output string) error {
	var errs []error
	for _, l := range m {
		errs = append(errs, l.AcceptOutputFirst(output))
	}
	return errors.Join(errs...)
}

func (m MultiListener) TestComplete(summary TestSummary) error {
	var errs []error
	for _, l := range m {
		errs = append(errs, l.TestComplete(summary))
	}
	return errors.Join(errs...)
}

func (m MultiListener) ExceptionOccurred(err error) {
	for _, l := range m {
		l.ExceptionOccurred(err)
	}
}
