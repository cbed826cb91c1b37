package testsystems

import "fmt"

// TestSummary counts the assertions a test runner evaluated for one page.
type TestSummary struct {
	Right      int `json:"right"`
	Wrong      int `json:"wrong"`
	Ignores    int `json:"ignores"`
	Exceptions int `json:"exceptions"`
}

// OK is true when nothing went wrong on the page.
func (s TestSummary) OK() bool {
	return s.Wrong == 0 && s.Exceptions == 0
}

// Add returns the sum of two summaries.
func (s TestSummary) Add(other TestSummary) TestSummary {
	return TestSummary{
		Right:      s.Right + other.Right,
		Wrong:      s.Wrong + other.Wrong,
		Ignores:    s.Ignores + other.Ignores,
		Exceptions: s.Exceptions + other.Exceptions,
	}
}

func (s TestSummary) String() string {
	return fmt.Sprintf("%d right, %d wrong, %d ignored, %d exceptions", s.Right, s.Wrong, s.Ignores, s.Exceptions)
}

// PageData is one page of tests to hand to the runner.
type PageData struct {
	Name    string
	Content string
}
