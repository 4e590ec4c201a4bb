package sync

import (
	"context"
	"database/sql"
	"time"

	apperrors "github.com/kimhsiao/resellerdesk/backend/internal/errors"
	"github.com/kimhsiao/resellerdesk/backend/internal/models"
)

func loadLastSync(ctx context.Context, db *sql.DB) (*time.Time, error) {
	var value string
	err := db.QueryRowContext(ctx, `SELECT value FROM sync_metadata WHERE key = ?`, models.MetaLastSyncAt).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "load last sync time", err)
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "parse last sync time", err)
	}
	return &t, nil
}

func saveLastSync(ctx context.Context, db *sql.DB, t time.Time) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO sync_metadata (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		models.MetaLastSyncAt, t.UTC().Format(time.RFC3339Nano), time.Now().UnixMilli())
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "save last sync time", err)
	}
	return nil
}
