package output

import (
	"encoding/xml"
	"fmt"
	"io"
	"time"

	"github.com/abdul-hamid-achik/treq/packages/core/pipeline"
	"github.com/abdul-hamid-achik/treq/packages/stats"
)

// JUnit XML structures, one testsuite per request file.

type junitTestSuites struct {
	XMLName xml.Name         `xml:"testsuites"`
	Name    string           `xml:"name,attr,omitempty"`
	Tests   int              `xml:"tests,attr"`
	Errors  int              `xml:"errors,attr"`
	Skipped int              `xml:"skipped,attr"`
	Time    float64          `xml:"time,attr"`
	Suites  []junitTestSuite `xml:"testsuite"`
}

type junitTestSuite struct {
	XMLName   xml.Name        `xml:"testsuite"`
	Name      string          `xml:"name,attr"`
	Tests     int             `xml:"tests,attr"`
	Errors    int             `xml:"errors,attr"`
	Skipped   int             `xml:"skipped,attr"`
	Time      float64         `xml:"time,attr"`
	Timestamp string          `xml:"timestamp,attr,omitempty"`
	Cases     []junitTestCase `xml:"testcase"`
}

type junitTestCase struct {
	XMLName   xml.Name      `xml:"testcase"`
	Name      string        `xml:"name,attr"`
	ClassName string        `xml:"classname,attr"`
	Time      float64       `xml:"time,attr"`
	Error     *junitError   `xml:"error,omitempty"`
	Skipped   *junitSkipped `xml:"skipped,omitempty"`
}

type junitError struct {
	Message string `xml:"message,attr,omitempty"`
	Type    string `xml:"type,attr,omitempty"`
}

type junitSkipped struct {
	Message string `xml:"message,attr,omitempty"`
}

// JUnitFormatter accumulates suites and writes the XML document on
// Flush, for CI systems that ingest JUnit reports.
type JUnitFormatter struct {
	writer io.Writer
	suites []junitTestSuite
}

func NewJUnitFormatter(opts ...Option) *JUnitFormatter {
	o := applyOptions(opts)
	return &JUnitFormatter{writer: o.writer}
}

func (f *JUnitFormatter) FileResults(path string, results []*pipeline.FileResult) {
	suite := junitTestSuite{
		Name:      path,
		Tests:     len(results),
		Timestamp: time.Now().Format(time.RFC3339),
	}

	for _, res := range results {
		tc := junitTestCase{
			Name:      requestLabel(res),
			ClassName: path,
			Time:      res.Duration.Seconds(),
		}
		suite.Time += res.Duration.Seconds()

		switch {
		case res.Skipped:
			suite.Skipped++
			tc.Skipped = &junitSkipped{Message: res.SkipReason}
		case res.Err != nil:
			suite.Errors++
			tc.Error = &junitError{Message: res.Err.Error(), Type: "RequestError"}
		}

		suite.Cases = append(suite.Cases, tc)
	}

	f.suites = append(f.suites, suite)
}

func (f *JUnitFormatter) Flush(summary *stats.Summary) error {
	root := junitTestSuites{
		Name:   "treq",
		Suites: f.suites,
	}
	for _, suite := range f.suites {
		root.Tests += suite.Tests
		root.Errors += suite.Errors
		root.Skipped += suite.Skipped
	}
	if summary != nil {
		root.Time = summary.Elapsed.Seconds()
	}

	if _, err := fmt.Fprintf(f.writer, "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n"); err != nil {
		return err
	}
	encoder := xml.NewEncoder(f.writer)
	encoder.Indent("", "  ")
	if err := encoder.Encode(root); err != nil {
		return err
	}
	_, err := fmt.Fprintln(f.writer)
	return err
}
