package suite

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fitnesse/test-system-harness/framework"
	"github.com/fitnesse/test-system-harness/framework/opt"
	"github.com/fitnesse/test-system-harness/testsystems"
)

// PageRunner is the part of a TestSystem the suite needs.
type PageRunner interface {
	RunTestsAndGenerateHTML(ctx context.Context, page testsystems.PageData) (string, error)
}

// ErrPageNotCompleted is reported for a page whose runner never sent a summary for it.
var ErrPageNotCompleted = errors.New("page did not complete")

// Runner runs pages one at a time. It is also a testsystems.Listener: pass it to the
// TestSystem so that output, summaries, and faults are attributed to the page being run.
type Runner struct {
	filters RegexFilters
	logger  ResultLogger

	current *pageState
	orphans []error
	lock    sync.Mutex
}

type pageState struct {
	id      PageID
	output  *framework.CapturingLogger
	summary opt.Maybe[testsystems.TestSummary]
	errors  []error
}

func NewRunner(filters RegexFilters, logger ResultLogger) *Runner {
	if logger == nil {
		logger = NullResultLogger()
	}
	return &Runner{filters: filters, logger: logger}
}

// Run runs each page that passes the filters. It stops early if ctx is done or the test system
// can no longer run pages; the remaining pages are reported as skipped.
func (r *Runner) Run(ctx context.Context, pageRunner PageRunner, pages []testsystems.PageData) Results {
	var results Results
	stopReason := ""
	for _, page := range pages {
		id := ParsePageID(page.Name)
		if stopReason == "" && ctx.Err() != nil {
			stopReason = "run was interrupted"
		}
		if stopReason != "" {
			results.add(r.skip(id, stopReason))
			continue
		}
		if !r.filters.Match(id) {
			results.add(r.skip(id, ""))
			continue
		}

		result, err := r.runPage(ctx, pageRunner, id, page)
		results.add(result)
		switch {
		case errors.Is(err, testsystems.ErrInterruptedShutdown):
			stopReason = "run was interrupted"
		case errors.Is(err, testsystems.ErrInvalidState):
			stopReason = "test system is not running"
		}
	}
	return results
}

func (r *Runner) skip(id PageID, reason string) PageResult {
	r.logger.PageSkipped(id, reason)
	return PageResult{Page: id, Skipped: opt.Some(reason)}
}

func (r *Runner) runPage(
	ctx context.Context,
	pageRunner PageRunner,
	id PageID,
	page testsystems.PageData,
) (PageResult, error) {
	state := &pageState{id: id, output: &framework.CapturingLogger{}}
	r.lock.Lock()
	r.current = state
	r.lock.Unlock()

	r.logger.PageStarted(id)
	startTime := time.Now()
	_, err := pageRunner.RunTestsAndGenerateHTML(ctx, page)
	duration := time.Since(startTime)

	r.lock.Lock()
	r.current = nil
	if err != nil {
		state.errors = append(state.errors, err)
	}
	if !state.summary.IsDefined() && err == nil {
		state.errors = append(state.errors, ErrPageNotCompleted)
	}
	if s := state.summary; s.IsDefined() && !s.Value().OK() {
		state.errors = append(state.errors, fmt.Errorf("assertions failed: %s", s.Value()))
	}
	result := PageResult{
		Page:     id,
		Summary:  state.summary,
		Errors:   state.errors,
		Duration: duration,
	}
	r.lock.Unlock()

	for _, e := range result.Errors {
		r.logger.PageError(id, e)
	}
	r.logger.PageFinished(id, result, state.output.Output())
	return result, err
}

// AcceptOutputFirst keeps the output with the page being run.
func (r *Runner) AcceptOutputFirst(output string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.current == nil {
		return fmt.Errorf("%w: output received while no page is running", testsystems.ErrInvalidState)
	}
	r.current.output.Println(output)
	return nil
}

// TestComplete records the summary for the page being run.
func (r *Runner) TestComplete(summary testsystems.TestSummary) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.current == nil {
		return fmt.Errorf("%w: summary received while no page is running", testsystems.ErrInvalidState)
	}
	r.current.summary = opt.Some(summary)
	return nil
}

// ExceptionOccurred records a fault against the page being run, or against the run as a whole
// if there is none.
func (r *Runner) ExceptionOccurred(err error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.current == nil {
		r.orphans = append(r.orphans, err)
		return
	}
	r.current.errors = append(r.current.errors, err)
}

// Faults returns the faults that were reported while no page was running.
func (r *Runner) Faults() []error {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]error(nil), r.orphans...)
}

var _ testsystems.Listener = (*Runner)(nil)
