package suite

import (
	"strings"
	"time"

	"github.com/fitnesse/test-system-harness/framework/opt"
	"github.com/fitnesse/test-system-harness/testsystems"
)

// PageID is a page name split into its path segments.
type PageID []string

func ParsePageID(name string) PageID {
	if name == "" {
		return nil
	}
	return strings.Split(name, ".")
}

func (p PageID) String() string {
	return strings.Join(p, ".")
}

type PageResult struct {
	Page     PageID
	Summary  opt.Maybe[testsystems.TestSummary]
	Errors   []error
	Skipped  opt.Maybe[string]
	Duration time.Duration
}

// Failed is true if the page ran and either reported a problem or never completed.
func (r PageResult) Failed() bool {
	return !r.Skipped.IsDefined() && len(r.Errors) != 0
}

type Results struct {
	Pages    []PageResult
	Failures []PageResult
	Summary  testsystems.TestSummary
}

func (r Results) OK() bool {
	return len(r.Failures) == 0
}

func (r *Results) add(result PageResult) {
	r.Pages = append(r.Pages, result)
	if result.Failed() {
		r.Failures = append(r.Failures, result)
	}
	r.Summary = r.Summary.Add(result.Summary.Value())
}
