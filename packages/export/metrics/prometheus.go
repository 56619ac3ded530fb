package metrics

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/abdul-hamid-achik/treq/packages/stats"
)

// PrometheusExporter renders the summary in Prometheus textfile format,
// suitable for the node_exporter textfile collector.
type PrometheusExporter struct{}

func NewPrometheusExporter() *PrometheusExporter {
	return &PrometheusExporter{}
}

func (e *PrometheusExporter) Export(w io.Writer, summary *stats.Summary) error {
	fmt.Fprintln(w, "# HELP treq_requests_total Total requests run")
	fmt.Fprintln(w, "# TYPE treq_requests_total counter")
	fmt.Fprintf(w, "treq_requests_total %d\n\n", summary.Total)

	fmt.Fprintln(w, "# HELP treq_requests_failed_total Requests that ended in an error")
	fmt.Fprintln(w, "# TYPE treq_requests_failed_total counter")
	fmt.Fprintf(w, "treq_requests_failed_total %d\n\n", summary.Errors)

	fmt.Fprintln(w, "# HELP treq_retries_total Retry attempts scheduled by hooks")
	fmt.Fprintln(w, "# TYPE treq_retries_total counter")
	fmt.Fprintf(w, "treq_retries_total %d\n\n", summary.Retries)

	fmt.Fprintln(w, "# HELP treq_skips_total Requests skipped by before-hooks")
	fmt.Fprintln(w, "# TYPE treq_skips_total counter")
	fmt.Fprintf(w, "treq_skips_total %d\n\n", summary.Skips)

	fmt.Fprintln(w, "# HELP treq_request_duration_ms Request latency in milliseconds")
	fmt.Fprintln(w, "# TYPE treq_request_duration_ms gauge")
	fmt.Fprintf(w, "treq_request_duration_ms{quantile=\"min\"} %.3f\n", ms(summary.Min))
	fmt.Fprintf(w, "treq_request_duration_ms{quantile=\"0.50\"} %.3f\n", ms(summary.P50))
	fmt.Fprintf(w, "treq_request_duration_ms{quantile=\"0.95\"} %.3f\n", ms(summary.P95))
	fmt.Fprintf(w, "treq_request_duration_ms{quantile=\"0.99\"} %.3f\n", ms(summary.P99))
	fmt.Fprintf(w, "treq_request_duration_ms{quantile=\"max\"} %.3f\n\n", ms(summary.Max))

	if len(summary.PerRequest) == 0 {
		return nil
	}

	names := make([]string, 0, len(summary.PerRequest))
	for name := range summary.PerRequest {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(w, "# HELP treq_request_runs_total Runs per named request")
	fmt.Fprintln(w, "# TYPE treq_request_runs_total counter")
	for _, name := range names {
		rs := summary.PerRequest[name]
		fmt.Fprintf(w, "treq_request_runs_total{request=\"%s\"} %d\n", escapeLabel(name), rs.Total)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "# HELP treq_request_p95_ms 95th percentile latency per named request")
	fmt.Fprintln(w, "# TYPE treq_request_p95_ms gauge")
	for _, name := range names {
		rs := summary.PerRequest[name]
		fmt.Fprintf(w, "treq_request_p95_ms{request=\"%s\"} %.3f\n", escapeLabel(name), ms(rs.P95))
	}

	return nil
}

func escapeLabel(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}
