package helpers

import (
	"errors"
	"strings"
)

// TestContext is a minimal interface for types like *testing.T representing a test that can
// fail. Functions can use this to avoid a specific dependency on the testing package.
type TestContext interface {
	Errorf(msgFormat string, msgArgs ...interface{})
	FailNow()
}

// TestRecorder is a TestContext that just remembers what happened, for testing helpers that
// are supposed to fail a test.
type TestRecorder struct {
	Errors           []string
	Terminated       bool
	PanicOnTerminate bool
}

func (t *TestRecorder) Errorf(msgFormat string, msgArgs ...interface{}) {
	t.Errors = append(t.Errors, fmtMessage(msgFormat, msgArgs...))
}

// FailNow marks the recorder as terminated. If PanicOnTerminate is set it panics with the
// recorder itself, so a test can use assert.PanicsWithValue to stop at that point.
func (t *TestRecorder) FailNow() {
	t.Terminated = true
	if t.PanicOnTerminate {
		panic(t)
	}
}

// Err returns all recorded failure messages as a single error, or nil if there were none.
func (t *TestRecorder) Err() error {
	if len(t.Errors) == 0 {
		return nil
	}
	return errors.New(strings.Join(t.Errors, ", "))
}
