package plugin

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// reportLedger stores reports per opaque scope key, with an independent
// 1-based sequence counter per scope. Entries and counters for a scope
// are cleared together, so a reused scope key starts again at seq 1.
type reportLedger struct {
	mu       sync.Mutex
	entries  map[string][]*Report
	counters map[string]int
}

func newReportLedger() *reportLedger {
	return &reportLedger{
		entries:  make(map[string][]*Report),
		counters: make(map[string]int),
	}
}

func (l *reportLedger) append(scope string, template *Report) *Report {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counters[scope]++
	entry := *template
	entry.Seq = l.counters[scope]
	l.entries[scope] = append(l.entries[scope], &entry)
	return &entry
}

func (l *reportLedger) get(scope string) []*Report {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Report(nil), l.entries[scope]...)
}

func (l *reportLedger) clear(scope string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, scope)
	delete(l.counters, scope)
}

// Scope keys for the two independent report scopes. The prefix keeps a
// runId and a flowId with the same text from sharing a counter.
func runScope(runID string) string   { return "run:" + runID }
func flowScope(flowID string) string { return "flow:" + flowID }

// report validates serializability and appends under the run scope and,
// when a flowId is present, the flow scope with its own counter.
func (m *Manager) report(pluginName, runID, flowID, requestName string, data any) error {
	if _, err := json.Marshal(data); err != nil {
		return fmt.Errorf("report data is not serializable: %w", err)
	}

	template := &Report{
		PluginName:  pluginName,
		RunID:       runID,
		Ts:          time.Now(),
		RequestName: requestName,
		Data:        data,
	}

	m.ledger.append(runScope(runID), template)
	if flowID != "" {
		m.ledger.append(flowScope(flowID), template)
	}
	return nil
}

// ReportsForRun returns the reports recorded for a run scope, in append
// order.
func (m *Manager) ReportsForRun(runID string) []*Report {
	return m.ledger.get(runScope(runID))
}

// ReportsForFlow returns the reports recorded for a flow scope.
func (m *Manager) ReportsForFlow(flowID string) []*Report {
	return m.ledger.get(flowScope(flowID))
}

// ClearReportsForRun removes the run scope's reports and resets its
// sequence counter, so the next report under the same id gets seq 1.
func (m *Manager) ClearReportsForRun(runID string) {
	m.ledger.clear(runScope(runID))
}

// ClearReportsForFlow removes the flow scope's reports and resets its
// sequence counter.
func (m *Manager) ClearReportsForFlow(flowID string) {
	m.ledger.clear(flowScope(flowID))
}
