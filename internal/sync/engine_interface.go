// Package sync provides the offline write queue and the reconciliation engine
// that drains it into the remote store.
package sync

import (
	"context"

	"github.com/kimhsiao/resellerdesk/backend/internal/models"
)

// SyncEngineInterface defines the engine operations used by the HTTP API and
// the CLI. It allows for mocking in tests.
type SyncEngineInterface interface {
	// Enqueue records a local write and returns the queued mutation id.
	Enqueue(ctx context.Context, table models.Table, op models.Operation, payload map[string]interface{}) (string, error)

	// ForceSync runs a reconciliation pass now.
	ForceSync(ctx context.Context) (*SyncResult, error)

	// GetCached returns the locally cached records of a table.
	GetCached(ctx context.Context, table models.Table) ([]map[string]interface{}, error)

	// GetCachedRecord returns one cached record.
	GetCachedRecord(ctx context.Context, table models.Table, id string) (map[string]interface{}, error)

	// RefreshCache replaces a table snapshot with records from the server.
	RefreshCache(ctx context.Context, table models.Table, records []map[string]interface{}) error

	// FetchTable pulls a table from the remote store into the cache.
	FetchTable(ctx context.Context, table models.Table) (int, error)

	// Pending lists queued mutations in replay order.
	Pending(ctx context.Context) ([]*models.PendingMutation, error)

	// PendingByID returns one queued mutation.
	PendingByID(ctx context.Context, id string) (*models.PendingMutation, error)

	// State returns the observable sync state.
	State(ctx context.Context) (models.SyncState, error)

	// SetOnline relays the platform connectivity signal.
	SetOnline(online bool)
}

// RemoteStore is the server-side data service mutations are replayed into.
type RemoteStore interface {
	Insert(ctx context.Context, table models.Table, record map[string]interface{}) error
	Update(ctx context.Context, table models.Table, id string, fields map[string]interface{}) error
	Delete(ctx context.Context, table models.Table, id string) error
}

// Fetcher is implemented by remote stores that can read a whole table.
type Fetcher interface {
	Fetch(ctx context.Context, table models.Table) ([]map[string]interface{}, error)
}

// Notifier receives aggregate pass outcomes and connectivity changes.
type Notifier interface {
	NotifySuccess(count int)
	NotifyError(count int)
	NotifyConnectivityChanged(online bool)
}

// FieldSealer transforms payloads before they are stored locally.
type FieldSealer interface {
	Seal(payload map[string]interface{}) (map[string]interface{}, error)
}

type nopNotifier struct{}

func (nopNotifier) NotifySuccess(int)              {}
func (nopNotifier) NotifyError(int)                {}
func (nopNotifier) NotifyConnectivityChanged(bool) {}
