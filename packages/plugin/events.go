package plugin

import (
	"time"
)

// Pipeline telemetry event types.
const (
	EventFetchStarted   = "fetchStarted"
	EventFetchFinished  = "fetchFinished"
	EventRequestSkipped = "requestSkipped"
	EventRetryScheduled = "retryScheduled"
	EventError          = "error"
)

// Event is a pipeline telemetry record fanned out to subscribers. Plugins
// may subscribe without participating in the hook pipeline.
type Event struct {
	Type        string
	Plugin      string
	Hook        string
	Stage       string
	RequestName string
	Method      string
	URL         string
	Status      int
	Retries     int
	DelayMs     int64
	Message     string
	Ts          time.Time
}

// Subscribe registers a telemetry listener. Listeners are invoked
// synchronously in subscription order.
func (m *Manager) Subscribe(fn EventFunc) {
	if fn == nil {
		return
	}
	m.subMu.Lock()
	m.subscribers = append(m.subscribers, fn)
	m.subMu.Unlock()
}

// Emit publishes an event to the log, all subscribers, and every plugin
// with an OnEvent callback.
func (m *Manager) Emit(ev Event) {
	if ev.Ts.IsZero() {
		ev.Ts = time.Now()
	}

	logger := m.logger.Debug()
	if ev.Type == EventError {
		logger = m.logger.Warn()
	}
	logger.
		Str("event", ev.Type).
		Str("plugin", ev.Plugin).
		Str("hook", ev.Hook).
		Str("stage", ev.Stage).
		Str("request", ev.RequestName).
		Msg(ev.Message)

	m.subMu.RLock()
	subs := append([]EventFunc(nil), m.subscribers...)
	m.subMu.RUnlock()
	for _, fn := range subs {
		fn(ev)
	}

	for _, lp := range m.Plugins() {
		if lp.Definition.OnEvent != nil {
			lp.Definition.OnEvent(ev)
		}
	}
}
