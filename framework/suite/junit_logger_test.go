package suite

import (
	"encoding/xml"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fitnesse/test-system-harness/framework"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJUnitReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junit.xml")
	var filters RegexFilters
	require.NoError(t, filters.MustNotMatch.Set("Other/Skipped"))
	logger := NewJUnitLogger(path, map[string]string{"testSystem": "fit:fit.FitServer"}, filters)

	passed := ParsePageID("Suite.Passed")
	logger.PageStarted(passed)
	logger.PageFinished(passed, PageResult{Page: passed, Duration: 1500 * time.Millisecond}, nil)

	failed := ParsePageID("Suite.Failed")
	logger.PageStarted(failed)
	logger.PageError(failed, errors.New("assertions failed"))
	output := &framework.CapturingLogger{}
	output.Println("<table>wrong</table>")
	logger.PageFinished(failed, PageResult{Page: failed}, output.Output())

	logger.PageSkipped(ParsePageID("Other.Skipped"), "")

	require.NoError(t, logger.EndLog())
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc jUnitXMLDocument
	require.NoError(t, xml.Unmarshal(data, &doc))
	require.Len(t, doc.Suites, 2)

	suite := doc.Suites[0]
	assert.Equal(t, "FitNesse pages: Suite", suite.Name)
	assert.Equal(t, 2, suite.Tests)
	assert.Equal(t, 1, suite.Failures)
	assert.Equal(t, "1.500", suite.Time)
	assert.Contains(t, suite.Properties, jUnitXMLProperty{Name: "testSystem", Value: "fit:fit.FitServer"})
	require.Len(t, suite.TestCases, 2)
	assert.Equal(t, "Suite", suite.TestCases[0].Classname)
	assert.Equal(t, "Suite.Passed", suite.TestCases[0].Name)
	assert.Nil(t, suite.TestCases[0].Failure)
	require.NotNil(t, suite.TestCases[1].Failure)
	assert.Equal(t, "assertions failed", suite.TestCases[1].Failure.Message)
	assert.Equal(t, "<table>wrong</table>", suite.TestCases[1].Failure.Contents)

	other := doc.Suites[1]
	require.Len(t, other.TestCases, 1)
	require.NotNil(t, other.TestCases[0].SkipMessage)
	assert.Equal(t, 0, other.Failures)
}
