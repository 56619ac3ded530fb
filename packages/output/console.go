package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/abdul-hamid-achik/treq/packages/core/pipeline"
	"github.com/abdul-hamid-achik/treq/packages/stats"
)

// ConsoleFormatter prints results as they arrive, one line per request.
type ConsoleFormatter struct {
	writer  io.Writer
	verbose bool
}

// Option configures any of the formatters; unknown options are ignored
// by formatters they do not apply to.
type Option func(*options)

type options struct {
	writer  io.Writer
	verbose bool
}

func WithWriter(w io.Writer) Option {
	return func(o *options) { o.writer = w }
}

func WithVerbose(v bool) Option {
	return func(o *options) { o.verbose = v }
}

func applyOptions(opts []Option) *options {
	o := &options{writer: os.Stdout}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func NewConsoleFormatter(opts ...Option) *ConsoleFormatter {
	o := applyOptions(opts)
	return &ConsoleFormatter{writer: o.writer, verbose: o.verbose}
}

func (f *ConsoleFormatter) FileResults(path string, results []*pipeline.FileResult) {
	for _, res := range results {
		label := requestLabel(res)

		switch {
		case res.Skipped:
			color.New(color.FgYellow).Fprintf(f.writer, "SKIP")
			fmt.Fprintf(f.writer, "  %s (%s)\n", label, res.SkipReason)
		case res.Err != nil:
			color.New(color.FgRed).Fprintf(f.writer, "FAIL")
			fmt.Fprintf(f.writer, "  %s: %v\n", label, res.Err)
		default:
			color.New(color.FgGreen).Fprintf(f.writer, "PASS")
			fmt.Fprintf(f.writer, "  %s %d (%s)\n",
				label, res.Response.StatusCode, res.Duration.Round(time.Millisecond))
		}

		if f.verbose && res.Response != nil {
			body := strings.TrimSpace(res.Response.BodyString())
			if body != "" {
				fmt.Fprintf(f.writer, "      %s\n", body)
			}
		}
	}
}

func (f *ConsoleFormatter) Flush(summary *stats.Summary) error {
	if summary == nil || summary.Total == 0 {
		return nil
	}

	fmt.Fprintf(f.writer, "\n%d requests, %d passed, %d failed, %d retried, %d skipped in %s\n",
		summary.Total, summary.Success, summary.Errors, summary.Retries, summary.Skips,
		summary.Elapsed.Round(time.Millisecond))

	if f.verbose {
		fmt.Fprintf(f.writer, "latency p50=%s p95=%s p99=%s max=%s\n",
			summary.P50, summary.P95, summary.P99, summary.Max)
	}
	return nil
}
