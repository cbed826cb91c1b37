package suite

import (
	"encoding/xml"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fitnesse/test-system-harness/framework"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// JUnitLogger collects page results and writes them as a JUnit XML report when EndLog is
// called, with one test suite per top-level page.
type JUnitLogger struct {
	filePath   string
	properties map[string]string
	filters    RegexFilters
	pageIDs    []PageID // in the order the pages were run
	pages      map[string]jUnitPageStatus
	lock       sync.Mutex
}

type jUnitPageStatus struct {
	failures  []error
	skipped   *string
	output    string
	startTime time.Time
	duration  time.Duration
}

// Struct definitions for the JUnit XML schema - see https://github.com/jstemmer/go-junit-report

type jUnitXMLDocument struct {
	XMLName xml.Name            `xml:"testsuites"`
	Suites  []jUnitXMLTestSuite `xml:"testsuite"`
}

type jUnitXMLTestSuite struct {
	XMLName    xml.Name           `xml:"testsuite"`
	Tests      int                `xml:"tests,attr"`
	Failures   int                `xml:"failures,attr"`
	Time       string             `xml:"time,attr"`
	Name       string             `xml:"name,attr"`
	Properties []jUnitXMLProperty `xml:"properties>property,omitempty"`
	TestCases  []jUnitXMLTestCase `xml:"testcase"`
}

type jUnitXMLTestCase struct {
	XMLName     xml.Name             `xml:"testcase"`
	Classname   string               `xml:"classname,attr"`
	Name        string               `xml:"name,attr"`
	Time        string               `xml:"time,attr"`
	SkipMessage *jUnitXMLSkipMessage `xml:"skipped,omitempty"`
	Failure     *jUnitXMLFailure     `xml:"failure,omitempty"`
}

type jUnitXMLSkipMessage struct {
	Message string `xml:"message,attr"`
}

type jUnitXMLProperty struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type jUnitXMLFailure struct {
	Message  string `xml:"message,attr"`
	Type     string `xml:"type,attr"`
	Contents string `xml:",chardata"`
}

// NewJUnitLogger creates a logger that will write to filePath. The properties, such as the
// test system name and command, are repeated in each suite of the report.
func NewJUnitLogger(filePath string, properties map[string]string, filters RegexFilters) *JUnitLogger {
	return &JUnitLogger{
		filePath:   filePath,
		properties: properties,
		filters:    filters,
		pages:      make(map[string]jUnitPageStatus),
	}
}

func (j *JUnitLogger) PageStarted(id PageID) {
	j.lock.Lock()
	defer j.lock.Unlock()
	j.pageIDs = append(j.pageIDs, id)
	j.pages[id.String()] = jUnitPageStatus{startTime: time.Now()}
}

func (j *JUnitLogger) PageError(id PageID, err error) {
	j.lock.Lock()
	defer j.lock.Unlock()
	status := j.pages[id.String()]
	status.failures = append(status.failures, err)
	j.pages[id.String()] = status
}

func (j *JUnitLogger) PageFinished(id PageID, result PageResult, output framework.CapturedOutput) {
	j.lock.Lock()
	defer j.lock.Unlock()
	status := j.pages[id.String()]
	status.output = strings.Join(output.Messages(), "\n")
	status.duration = result.Duration
	j.pages[id.String()] = status
}

func (j *JUnitLogger) PageSkipped(id PageID, reason string) {
	j.lock.Lock()
	defer j.lock.Unlock()
	if _, seen := j.pages[id.String()]; !seen {
		j.pageIDs = append(j.pageIDs, id)
	}
	status := j.pages[id.String()]
	status.skipped = &reason
	j.pages[id.String()] = status
}

func (j *JUnitLogger) EndLog() error {
	j.lock.Lock()
	defer j.lock.Unlock()

	properties := []jUnitXMLProperty{
		{Name: "pages.filter.mustMatch", Value: j.filters.MustMatch.String()},
		{Name: "pages.filter.mustNotMatch", Value: j.filters.MustNotMatch.String()},
	}
	names := maps.Keys(j.properties)
	slices.Sort(names)
	for _, name := range names {
		properties = append(properties, jUnitXMLProperty{Name: name, Value: j.properties[name]})
	}

	var doc jUnitXMLDocument
	for _, topLevel := range topLevelNames(j.pageIDs) {
		suite := jUnitXMLTestSuite{
			Name:       fmt.Sprintf("FitNesse pages: %s", topLevel),
			Properties: properties,
		}
		suiteTotalDuration := time.Duration(0)
		for _, id := range j.pageIDs {
			if len(id) == 0 || id[0] != topLevel {
				continue
			}
			status := j.pages[id.String()]

			suite.Tests++
			if len(status.failures) != 0 {
				suite.Failures++
			}
			suiteTotalDuration += status.duration

			testCase := jUnitXMLTestCase{
				Classname: strings.Join(id[:len(id)-1], "."),
				Name:      id.String(),
				Time:      jUnitDurationString(status.duration),
			}
			if status.skipped != nil {
				testCase.SkipMessage = &jUnitXMLSkipMessage{Message: *status.skipped}
			}
			if len(status.failures) != 0 {
				messages := make([]string, 0, len(status.failures))
				for _, e := range status.failures {
					messages = append(messages, e.Error())
				}
				testCase.Failure = &jUnitXMLFailure{
					Message:  strings.Join(messages, "\n"),
					Contents: status.output,
				}
			}
			suite.TestCases = append(suite.TestCases, testCase)
		}
		suite.Time = jUnitDurationString(suiteTotalDuration)
		doc.Suites = append(doc.Suites, suite)
	}

	bytes, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	bytes = append(bytes, '\n')

	return os.WriteFile(j.filePath, bytes, 0644) //nolint:gosec
}

func topLevelNames(allIDs []PageID) []string {
	var ret []string
	seen := make(map[string]bool)
	for _, id := range allIDs {
		if len(id) != 0 && !seen[id[0]] {
			ret = append(ret, id[0])
			seen[id[0]] = true
		}
	}
	return ret
}

func jUnitDurationString(d time.Duration) string {
	return fmt.Sprintf("%.3f", d.Seconds())
}
