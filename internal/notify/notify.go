// Package notify delivers sync outcomes to the user: through the log, over
// WebSocket, or both.
package notify

import "github.com/kimhsiao/resellerdesk/backend/internal/logging"

// Notifier receives aggregate pass outcomes and connectivity changes.
type Notifier interface {
	NotifySuccess(count int)
	NotifyError(count int)
	NotifyConnectivityChanged(online bool)
}

// Log writes notifications through the structured logger.
type Log struct {
	log *logging.Logger
}

// NewLog creates a log notifier.
func NewLog() *Log {
	return &Log{log: logging.Component("notify")}
}

func (l *Log) NotifySuccess(count int) {
	l.log.Info("Changes synced", map[string]interface{}{"count": count})
}

func (l *Log) NotifyError(count int) {
	l.log.Warn("Changes failed to sync and will be retried", map[string]interface{}{"count": count})
}

func (l *Log) NotifyConnectivityChanged(online bool) {
	l.log.Info("Connectivity changed", map[string]interface{}{"online": online})
}

// Multi fans every notification out to several notifiers in order.
type Multi []Notifier

func (m Multi) NotifySuccess(count int) {
	for _, n := range m {
		n.NotifySuccess(count)
	}
}

func (m Multi) NotifyError(count int) {
	for _, n := range m {
		n.NotifyError(count)
	}
}

func (m Multi) NotifyConnectivityChanged(online bool) {
	for _, n := range m {
		n.NotifyConnectivityChanged(online)
	}
}
