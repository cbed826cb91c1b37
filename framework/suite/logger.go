package suite

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fitnesse/test-system-harness/framework"

	"github.com/fatih/color"
)

var consolePageErrorColor = color.New(color.FgYellow)              //nolint:gochecknoglobals
var consolePageFailedColor = color.New(color.FgRed)                //nolint:gochecknoglobals
var consolePageSkippedColor = color.New(color.Faint, color.FgBlue) //nolint:gochecknoglobals
var consoleOutputColor = color.New(color.Faint)                    //nolint:gochecknoglobals
var allPagesPassedColor = color.New(color.FgGreen)                 //nolint:gochecknoglobals

// ResultLogger is told about each page as the suite runs.
type ResultLogger interface {
	PageStarted(id PageID)
	PageError(id PageID, err error)
	PageFinished(id PageID, result PageResult, output framework.CapturedOutput)
	PageSkipped(id PageID, reason string)
}

type nullResultLogger struct{}

func (nullResultLogger) PageStarted(PageID)                                        {}
func (nullResultLogger) PageError(PageID, error)                                   {}
func (nullResultLogger) PageFinished(PageID, PageResult, framework.CapturedOutput) {}
func (nullResultLogger) PageSkipped(PageID, string)                                {}

func NullResultLogger() ResultLogger { return nullResultLogger{} }

// MultiResultLogger passes everything on to each of its loggers.
type MultiResultLogger []ResultLogger

func (m MultiResultLogger) PageStarted(id PageID) {
	for _, l := range m {
		l.PageStarted(id)
	}
}

func (m MultiResultLogger) PageError(id PageID, err error) {
	for _, l := range m {
		l.PageError(id, err)
	}
}

func (m MultiResultLogger) PageFinished(id PageID, result PageResult, output framework.CapturedOutput) {
	for _, l := range m {
		l.PageFinished(id, result, output)
	}
}

func (m MultiResultLogger) PageSkipped(id PageID, reason string) {
	for _, l := range m {
		l.PageSkipped(id, reason)
	}
}

type ConsoleLogger struct {
	OutputOnFailure bool
	OutputOnSuccess bool
}

func (c ConsoleLogger) PageStarted(id PageID) {
	fmt.Printf("[%s]\n", id)
}

func (c ConsoleLogger) PageError(id PageID, err error) {
	for _, line := range strings.Split(err.Error(), "\n") {
		_, _ = consolePageErrorColor.Printf("  %s\n", line)
	}
}

func (c ConsoleLogger) PageFinished(id PageID, result PageResult, output framework.CapturedOutput) {
	failed := result.Failed()
	if result.Summary.IsDefined() {
		fmt.Printf("  %s\n", result.Summary.Value())
	}
	if failed {
		_, _ = consolePageFailedColor.Printf("  FAILED: %s\n", id)
	}
	if len(output) > 0 &&
		((failed && c.OutputOnFailure) || (!failed && c.OutputOnSuccess)) {
		_, _ = consoleOutputColor.Println(output.ToString("    OUTPUT "))
	}
}

func (c ConsoleLogger) PageSkipped(id PageID, reason string) {
	if reason == "" {
		_, _ = consolePageSkippedColor.Printf("  SKIPPED: %s\n", id)
	} else {
		_, _ = consolePageSkippedColor.Printf("  SKIPPED: %s (%s)\n", id, reason)
	}
}

// PrintFilterDescription tells the user which pages the filters will leave out.
func PrintFilterDescription(filters RegexFilters) {
	if !filters.IsDefined() {
		return
	}
	fmt.Println("Some pages will be skipped based on the filter criteria for this run:")
	if filters.MustMatch.IsDefined() {
		fmt.Printf("  skip any not matching %s\n", filters.MustMatch)
	}
	if filters.MustNotMatch.IsDefined() {
		fmt.Printf("  skip any matching %s\n", filters.MustNotMatch)
	}
	fmt.Println()
}

func PrintResults(results Results) {
	printResults(os.Stdout, os.Stderr, results)
}

func printResults(stdout, stderr io.Writer, results Results) {
	if results.OK() {
		_, _ = allPagesPassedColor.Fprintf(stdout, "All pages passed (%s)\n", results.Summary)
		return
	}
	_, _ = consolePageFailedColor.Fprintf(stderr, "FAILED PAGES (%d):\n", len(results.Failures))
	for _, f := range results.Failures {
		_, _ = consolePageFailedColor.Fprintf(stderr, "  * %s\n", f.Page)
	}
}
