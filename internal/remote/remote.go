// Package remote implements the server-side data stores the sync engine
// replays mutations into.
package remote

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/kimhsiao/resellerdesk/backend/internal/errors"
	"github.com/kimhsiao/resellerdesk/backend/internal/models"
)

// Kind selects a remote store implementation.
type Kind string

const (
	KindPostgREST Kind = "postgrest"
	KindPostgres  Kind = "postgres"
	KindMemory    Kind = "memory"
)

// Options configures Open.
type Options struct {
	Kind    Kind
	URL     string
	APIKey  string
	DSN     string
	Timeout time.Duration
}

// Store is the common surface of every implementation.
type Store interface {
	Insert(ctx context.Context, table models.Table, record map[string]interface{}) error
	Update(ctx context.Context, table models.Table, id string, fields map[string]interface{}) error
	Delete(ctx context.Context, table models.Table, id string) error
	Fetch(ctx context.Context, table models.Table) ([]map[string]interface{}, error)
	Close()
}

// Open creates the store named by opts.Kind.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Kind {
	case KindPostgREST, "":
		if opts.URL == "" {
			return nil, apperrors.New(apperrors.ErrConfigInvalid, "postgrest remote requires a url")
		}
		return NewPostgREST(opts.URL, opts.APIKey, opts.Timeout), nil
	case KindPostgres:
		if opts.DSN == "" {
			return nil, apperrors.New(apperrors.ErrConfigInvalid, "postgres remote requires a dsn")
		}
		return NewPostgres(ctx, opts.DSN)
	case KindMemory:
		return NewMemory(), nil
	}
	return nil, apperrors.Newf(apperrors.ErrConfigInvalid, "unknown remote kind %q", opts.Kind)
}

// StatusError is a non-2xx answer from an HTTP remote.
type StatusError struct {
	Method     string
	Table      models.Table
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s %s failed with status %d: %s", e.Method, e.Table, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s %s failed with status %d", e.Method, e.Table, e.StatusCode)
}

func rejected(message string, err error) error {
	return apperrors.Wrap(apperrors.ErrRemoteRejected, message, err)
}
