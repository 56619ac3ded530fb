// Package stats aggregates latency and outcome metrics across request
// runs. A Recorder can also subscribe to plugin manager events to count
// retries and skips.
package stats

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/abdul-hamid-achik/treq/packages/plugin"
)

// Recorder collects per-run latencies and outcome counters.
type Recorder struct {
	mu sync.RWMutex

	total   atomic.Int64
	success atomic.Int64
	errors  atomic.Int64
	retries atomic.Int64
	skips   atomic.Int64

	// Latencies in microseconds, 1us to 60s, 3 significant digits.
	histogram *hdrhistogram.Histogram

	perRequest map[string]*requestStats

	startTime time.Time
}

type requestStats struct {
	name      string
	total     atomic.Int64
	errors    atomic.Int64
	histogram *hdrhistogram.Histogram
	mu        sync.Mutex
}

func NewRecorder() *Recorder {
	return &Recorder{
		histogram:  hdrhistogram.New(1, 60_000_000, 3),
		perRequest: make(map[string]*requestStats),
		startTime:  time.Now(),
	}
}

// Observe counts retry and skip events; pass it to Manager.Subscribe.
func (r *Recorder) Observe(ev plugin.Event) {
	switch ev.Type {
	case plugin.EventRetryScheduled:
		r.retries.Add(1)
	case plugin.EventRequestSkipped:
		r.skips.Add(1)
	}
}

// Record adds one completed run.
func (r *Recorder) Record(name string, duration time.Duration, err error) {
	r.total.Add(1)
	if err != nil {
		r.errors.Add(1)
	} else {
		r.success.Add(1)
	}

	latencyUs := clampLatency(duration)

	r.mu.Lock()
	_ = r.histogram.RecordValue(latencyUs)
	rs, ok := r.perRequest[name]
	if !ok {
		rs = &requestStats{
			name:      name,
			histogram: hdrhistogram.New(1, 60_000_000, 3),
		}
		r.perRequest[name] = rs
	}
	r.mu.Unlock()

	rs.total.Add(1)
	if err != nil {
		rs.errors.Add(1)
	}
	rs.mu.Lock()
	_ = rs.histogram.RecordValue(latencyUs)
	rs.mu.Unlock()
}

func clampLatency(d time.Duration) int64 {
	us := d.Microseconds()
	if us < 1 {
		us = 1
	}
	if us > 60_000_000 {
		us = 60_000_000
	}
	return us
}

// Summary is a point-in-time aggregate of everything recorded.
type Summary struct {
	Elapsed time.Duration
	Total   int64
	Success int64
	Errors  int64
	Retries int64
	Skips   int64

	P50  time.Duration
	P95  time.Duration
	P99  time.Duration
	Min  time.Duration
	Max  time.Duration
	Mean time.Duration

	PerRequest map[string]RequestSummary
}

// RequestSummary aggregates one named request's runs.
type RequestSummary struct {
	Name   string
	Total  int64
	Errors int64
	P50    time.Duration
	P95    time.Duration
	Mean   time.Duration
}

func (r *Recorder) Summary() *Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := &Summary{
		Elapsed: time.Since(r.startTime),
		Total:   r.total.Load(),
		Success: r.success.Load(),
		Errors:  r.errors.Load(),
		Retries: r.retries.Load(),
		Skips:   r.skips.Load(),
		P50:     time.Duration(r.histogram.ValueAtQuantile(50)) * time.Microsecond,
		P95:     time.Duration(r.histogram.ValueAtQuantile(95)) * time.Microsecond,
		P99:     time.Duration(r.histogram.ValueAtQuantile(99)) * time.Microsecond,
		Min:     time.Duration(r.histogram.Min()) * time.Microsecond,
		Max:     time.Duration(r.histogram.Max()) * time.Microsecond,
		Mean:    time.Duration(r.histogram.Mean()) * time.Microsecond,
	}

	s.PerRequest = make(map[string]RequestSummary, len(r.perRequest))
	for name, rs := range r.perRequest {
		rs.mu.Lock()
		s.PerRequest[name] = RequestSummary{
			Name:   name,
			Total:  rs.total.Load(),
			Errors: rs.errors.Load(),
			P50:    time.Duration(rs.histogram.ValueAtQuantile(50)) * time.Microsecond,
			P95:    time.Duration(rs.histogram.ValueAtQuantile(95)) * time.Microsecond,
			Mean:   time.Duration(rs.histogram.Mean()) * time.Microsecond,
		}
		rs.mu.Unlock()
	}

	return s
}
