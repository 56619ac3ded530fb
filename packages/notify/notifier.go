// Package notify posts run outcomes to chat webhooks (Slack, Microsoft
// Teams) once a run completes.
package notify

import (
	"context"
	"time"
)

// NotifyOn selects which run outcomes trigger a notification.
type NotifyOn string

const (
	// NotifyAlways posts after every run.
	NotifyAlways NotifyOn = "always"
	// NotifyFailure posts only when requests failed.
	NotifyFailure NotifyOn = "failure"
	// NotifySuccess posts only when everything passed.
	NotifySuccess NotifyOn = "success"
	// NotifyRecovery posts on failures and on the first clean run after
	// a failure.
	NotifyRecovery NotifyOn = "recovery"
)

// RunSummary is the outcome payload handed to notifiers.
type RunSummary struct {
	Total       int64
	Passed      int64
	Failed      int64
	Skipped     int64
	Retries     int64
	Elapsed     time.Duration
	Environment string
	Failures    []Failure
	IsRecovery  bool
}

// Failure identifies one failed request.
type Failure struct {
	Name  string
	File  string
	Error string
}

// Notifier posts a run summary to one destination.
type Notifier interface {
	Notify(ctx context.Context, summary *RunSummary) error
	Name() string
}

// Manager fans a summary out to its notifiers according to the
// configured policy. It keeps the previous run's outcome so recovery
// notifications fire exactly once.
type Manager struct {
	notifiers []Notifier
	notifyOn  NotifyOn
	lastClean bool
}

func NewManager(notifyOn NotifyOn, notifiers ...Notifier) *Manager {
	return &Manager{
		notifiers: notifiers,
		notifyOn:  notifyOn,
		lastClean: true,
	}
}

func (m *Manager) AddNotifier(n Notifier) {
	m.notifiers = append(m.notifiers, n)
}

// Notify applies the policy and posts to every notifier. The last error
// wins; one destination failing does not stop the others.
func (m *Manager) Notify(ctx context.Context, summary *RunSummary) error {
	clean := summary.Failed == 0

	send := false
	switch m.notifyOn {
	case NotifyAlways:
		send = true
	case NotifyFailure:
		send = !clean
	case NotifySuccess:
		send = clean
	case NotifyRecovery:
		if !m.lastClean && clean {
			send = true
			summary.IsRecovery = true
		}
		if !clean {
			send = true
		}
	}
	m.lastClean = clean

	if !send {
		return nil
	}

	var lastErr error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, summary); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
