package metrics

import (
	"encoding/json"
	"io"
	"sort"
	"time"

	"github.com/abdul-hamid-achik/treq/packages/stats"
)

// JSONExporter renders the summary as an indented JSON document.
type JSONExporter struct{}

func NewJSONExporter() *JSONExporter {
	return &JSONExporter{}
}

type jsonDocument struct {
	Timestamp  string            `json:"timestamp"`
	ElapsedMs  int64             `json:"elapsed_ms"`
	Total      int64             `json:"total"`
	Success    int64             `json:"success"`
	Errors     int64             `json:"errors"`
	Retries    int64             `json:"retries"`
	Skips      int64             `json:"skips"`
	Latency    jsonLatency       `json:"latency"`
	PerRequest []jsonRequestItem `json:"per_request,omitempty"`
}

type jsonLatency struct {
	MinMs  float64 `json:"min_ms"`
	MaxMs  float64 `json:"max_ms"`
	MeanMs float64 `json:"mean_ms"`
	P50Ms  float64 `json:"p50_ms"`
	P95Ms  float64 `json:"p95_ms"`
	P99Ms  float64 `json:"p99_ms"`
}

type jsonRequestItem struct {
	Name   string  `json:"name"`
	Total  int64   `json:"total"`
	Errors int64   `json:"errors"`
	P50Ms  float64 `json:"p50_ms"`
	P95Ms  float64 `json:"p95_ms"`
	MeanMs float64 `json:"mean_ms"`
}

func (e *JSONExporter) Export(w io.Writer, summary *stats.Summary) error {
	doc := jsonDocument{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		ElapsedMs: summary.Elapsed.Milliseconds(),
		Total:     summary.Total,
		Success:   summary.Success,
		Errors:    summary.Errors,
		Retries:   summary.Retries,
		Skips:     summary.Skips,
		Latency: jsonLatency{
			MinMs:  ms(summary.Min),
			MaxMs:  ms(summary.Max),
			MeanMs: ms(summary.Mean),
			P50Ms:  ms(summary.P50),
			P95Ms:  ms(summary.P95),
			P99Ms:  ms(summary.P99),
		},
	}

	names := make([]string, 0, len(summary.PerRequest))
	for name := range summary.PerRequest {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		rs := summary.PerRequest[name]
		doc.PerRequest = append(doc.PerRequest, jsonRequestItem{
			Name:   rs.Name,
			Total:  rs.Total,
			Errors: rs.Errors,
			P50Ms:  ms(rs.P50),
			P95Ms:  ms(rs.P95),
			MeanMs: ms(rs.Mean),
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
