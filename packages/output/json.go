package output

import (
	"encoding/json"
	"io"
	"time"

	"github.com/abdul-hamid-achik/treq/packages/core/pipeline"
	"github.com/abdul-hamid-achik/treq/packages/stats"
)

// JSONReport is the top-level structure emitted by the JSON formatter.
type JSONReport struct {
	Summary JSONSummary `json:"summary"`
	Runs    []JSONRun   `json:"runs"`
	Time    string      `json:"time"`
}

type JSONSummary struct {
	Total     int64   `json:"total"`
	Passed    int64   `json:"passed"`
	Failed    int64   `json:"failed"`
	Retries   int64   `json:"retries"`
	Skipped   int64   `json:"skipped"`
	ElapsedMs int64   `json:"elapsedMs"`
	P50Ms     float64 `json:"p50Ms"`
	P95Ms     float64 `json:"p95Ms"`
	P99Ms     float64 `json:"p99Ms"`
	MaxMs     float64 `json:"maxMs"`
}

type JSONRun struct {
	Name       string `json:"name"`
	File       string `json:"file"`
	RunID      string `json:"runId,omitempty"`
	Method     string `json:"method,omitempty"`
	URL        string `json:"url,omitempty"`
	Status     int    `json:"status,omitempty"`
	DurationMs int64  `json:"durationMs"`
	Skipped    bool   `json:"skipped,omitempty"`
	SkipReason string `json:"skipReason,omitempty"`
	Error      string `json:"error,omitempty"`
}

// JSONFormatter accumulates runs and writes one report on Flush.
type JSONFormatter struct {
	writer io.Writer
	runs   []JSONRun
}

func NewJSONFormatter(opts ...Option) *JSONFormatter {
	o := applyOptions(opts)
	return &JSONFormatter{writer: o.writer}
}

func (f *JSONFormatter) FileResults(path string, results []*pipeline.FileResult) {
	for _, res := range results {
		run := JSONRun{
			Name:       requestLabel(res),
			File:       path,
			RunID:      res.RunID,
			Method:     res.Request.Method,
			URL:        res.Request.URL,
			DurationMs: res.Duration.Milliseconds(),
			Skipped:    res.Skipped,
			SkipReason: res.SkipReason,
			Error:      resultError(res),
		}
		if res.Response != nil {
			run.Status = res.Response.StatusCode
		}
		f.runs = append(f.runs, run)
	}
}

func (f *JSONFormatter) Flush(summary *stats.Summary) error {
	report := JSONReport{
		Runs: f.runs,
		Time: time.Now().Format(time.RFC3339),
	}
	if report.Runs == nil {
		report.Runs = []JSONRun{}
	}
	if summary != nil {
		report.Summary = JSONSummary{
			Total:     summary.Total,
			Passed:    summary.Success,
			Failed:    summary.Errors,
			Retries:   summary.Retries,
			Skipped:   summary.Skips,
			ElapsedMs: summary.Elapsed.Milliseconds(),
			P50Ms:     float64(summary.P50.Microseconds()) / 1000,
			P95Ms:     float64(summary.P95.Microseconds()) / 1000,
			P99Ms:     float64(summary.P99.Microseconds()) / 1000,
			MaxMs:     float64(summary.Max.Microseconds()) / 1000,
		}
	}

	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}
