package output

import (
	"fmt"

	"github.com/abdul-hamid-achik/treq/packages/core/pipeline"
	"github.com/abdul-hamid-achik/treq/packages/stats"
)

// Formatter consumes per-file results and emits a final summary.
type Formatter interface {
	// FileResults records the outcomes of one file's run.
	FileResults(path string, results []*pipeline.FileResult)
	// Flush writes any accumulated output plus the run summary.
	Flush(summary *stats.Summary) error
}

// Format names a supported output format.
type Format string

const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
	FormatJUnit   Format = "junit"
	FormatTAP     Format = "tap"
)

// NewFormatter builds the formatter for a named format.
func NewFormatter(format Format, opts ...Option) (Formatter, error) {
	switch format {
	case FormatConsole, "":
		return NewConsoleFormatter(opts...), nil
	case FormatJSON:
		return NewJSONFormatter(opts...), nil
	case FormatJUnit:
		return NewJUnitFormatter(opts...), nil
	case FormatTAP:
		return NewTAPFormatter(opts...), nil
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}

func requestLabel(res *pipeline.FileResult) string {
	if res.Request.Name != "" {
		return res.Request.Name
	}
	return res.Request.Method + " " + res.Request.URL
}

func resultError(res *pipeline.FileResult) string {
	if res.Err == nil {
		return ""
	}
	return res.Err.Error()
}
