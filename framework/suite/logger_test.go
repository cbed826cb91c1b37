package suite

import (
	"bytes"
	"errors"
	"testing"

	"github.com/fitnesse/test-system-harness/testsystems"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func TestPrintResults(t *testing.T) {
	color.NoColor = true

	var stdout, stderr bytes.Buffer
	printResults(&stdout, &stderr, Results{Summary: testsystems.TestSummary{Right: 4}})
	assert.Equal(t, "All pages passed (4 right, 0 wrong, 0 ignored, 0 exceptions)\n", stdout.String())
	assert.Empty(t, stderr.String())

	stdout.Reset()
	failure := PageResult{Page: ParsePageID("Suite.Bad"), Errors: []error{errors.New("x")}}
	printResults(&stdout, &stderr, Results{Failures: []PageResult{failure}})
	assert.Empty(t, stdout.String())
	assert.Equal(t, "FAILED PAGES (1):\n  * Suite.Bad\n", stderr.String())
}

func TestMultiResultLogger(t *testing.T) {
	a, b := &recordingLogger{}, &recordingLogger{}
	m := MultiResultLogger{a, b, NullResultLogger()}
	id := ParsePageID("P")
	m.PageStarted(id)
	m.PageError(id, errors.New("e"))
	m.PageFinished(id, PageResult{Page: id}, nil)
	m.PageSkipped(id, "why")

	expected := []string{"start P", "error P: e", "finish P []", "skip P (why)"}
	assert.Equal(t, expected, a.events)
	assert.Equal(t, expected, b.events)
}

func TestPageResultFailed(t *testing.T) {
	assert.False(t, PageResult{}.Failed())
	assert.True(t, PageResult{Errors: []error{errors.New("x")}}.Failed())
}
