package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/abdul-hamid-achik/treq/packages/core/pipeline"
	"github.com/abdul-hamid-achik/treq/packages/stats"
)

// TAPFormatter emits Test Anything Protocol version 13 output.
type TAPFormatter struct {
	writer io.Writer
	lines  []tapLine
}

type tapLine struct {
	name       string
	skipped    bool
	skipReason string
	errMsg     string
}

func NewTAPFormatter(opts ...Option) *TAPFormatter {
	o := applyOptions(opts)
	return &TAPFormatter{writer: o.writer}
}

func (f *TAPFormatter) FileResults(path string, results []*pipeline.FileResult) {
	for _, res := range results {
		f.lines = append(f.lines, tapLine{
			name:       requestLabel(res),
			skipped:    res.Skipped,
			skipReason: res.SkipReason,
			errMsg:     resultError(res),
		})
	}
}

func (f *TAPFormatter) Flush(summary *stats.Summary) error {
	fmt.Fprintf(f.writer, "TAP version 13\n")
	fmt.Fprintf(f.writer, "1..%d\n", len(f.lines))

	for i, line := range f.lines {
		number := i + 1

		switch {
		case line.skipped:
			reason := line.skipReason
			if reason == "" {
				reason = "SKIP"
			}
			fmt.Fprintf(f.writer, "ok %d - %s # SKIP %s\n", number, line.name, reason)
		case line.errMsg != "":
			fmt.Fprintf(f.writer, "not ok %d - %s\n", number, line.name)
			fmt.Fprintf(f.writer, "  ---\n")
			fmt.Fprintf(f.writer, "  message: %s\n", escapeYAML(line.errMsg))
			fmt.Fprintf(f.writer, "  severity: error\n")
			fmt.Fprintf(f.writer, "  ...\n")
		default:
			fmt.Fprintf(f.writer, "ok %d - %s\n", number, line.name)
		}
	}

	fmt.Fprintln(f.writer)
	return nil
}

func escapeYAML(s string) string {
	if strings.ContainsAny(s, ":\n\"'[]{}#&*!|>%@`") {
		s = strings.ReplaceAll(s, "\"", "\\\"")
		return "\"" + s + "\""
	}
	return s
}
