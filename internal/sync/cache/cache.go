// Package cache mirrors remote tables locally so reads keep working offline.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	apperrors "github.com/kimhsiao/resellerdesk/backend/internal/errors"
	"github.com/kimhsiao/resellerdesk/backend/internal/models"
)

// Record is one cached row. It is opaque to the cache apart from its id.
type Record = map[string]interface{}

// Cache is a per-table snapshot stored in the local_cache table
// (logical key local_cache.<table>). Records keep the order in which they
// were loaded or first inserted.
type Cache struct {
	db  *sql.DB
	mu  sync.Mutex
	now func() time.Time
}

// New creates a Cache over an opened database.
func New(db *sql.DB) *Cache {
	return &Cache{db: db, now: time.Now}
}

// ReplaceTable swaps a table's snapshot for records, typically after a fetch
// from the remote store. Records without an id are skipped.
func (c *Cache) ReplaceTable(ctx context.Context, table models.Table, records []Record) error {
	if !table.Valid() {
		return apperrors.Newf(apperrors.ErrInvalidTable, "unknown table %q", table)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin replace", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM local_cache WHERE table_name = ?`, string(table)); err != nil {
		return storageErr("clear table", err)
	}

	now := c.now().UnixMilli()
	for i, record := range records {
		id, ok := models.RecordIDOf(record)
		if !ok {
			continue
		}
		data, err := json.Marshal(record)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrInvalid, "record is not serializable", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO local_cache (table_name, record_id, position, data, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(table_name, record_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
			string(table), id, i, string(data), now)
		if err != nil {
			return storageErr("store record", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storageErr("commit replace", err)
	}
	return nil
}

// Patch applies one write to the snapshot. Inserts and updates merge the
// given fields into the cached record (creating it if missing); deletes
// remove it.
func (c *Cache) Patch(ctx context.Context, table models.Table, op models.Operation, record Record) error {
	if !table.Valid() {
		return apperrors.Newf(apperrors.ErrInvalidTable, "unknown table %q", table)
	}
	id, ok := models.RecordIDOf(record)
	if !ok {
		return apperrors.Newf(apperrors.ErrInvalid, "%s record has no %q", table, models.IDField)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch op {
	case models.OperationDelete:
		_, err := c.db.ExecContext(ctx, `DELETE FROM local_cache WHERE table_name = ? AND record_id = ?`, string(table), id)
		if err != nil {
			return storageErr("delete record", err)
		}
		return nil
	case models.OperationInsert, models.OperationUpdate:
	default:
		return apperrors.Newf(apperrors.ErrInvalidOperation, "unknown operation %q", op)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin patch", err)
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRowContext(ctx, `SELECT data FROM local_cache WHERE table_name = ? AND record_id = ?`, string(table), id).Scan(&existing)
	merged := record
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return storageErr("read record", err)
	default:
		current, decodeErr := models.DecodeRecord([]byte(existing))
		if decodeErr != nil {
			return storageErr("decode record", decodeErr)
		}
		merged = models.MergePayload(current, record)
	}

	data, err := json.Marshal(merged)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInvalid, "record is not serializable", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO local_cache (table_name, record_id, position, data, updated_at)
		VALUES (?, ?, (SELECT COALESCE(MAX(position), -1) + 1 FROM local_cache WHERE table_name = ?), ?, ?)
		ON CONFLICT(table_name, record_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		string(table), id, string(table), string(data), c.now().UnixMilli())
	if err != nil {
		return storageErr("store record", err)
	}

	if err := tx.Commit(); err != nil {
		return storageErr("commit patch", err)
	}
	return nil
}

// Read returns every cached record of a table. An unloaded table reads as empty.
func (c *Cache) Read(ctx context.Context, table models.Table) ([]Record, error) {
	if !table.Valid() {
		return nil, apperrors.Newf(apperrors.ErrInvalidTable, "unknown table %q", table)
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT data FROM local_cache WHERE table_name = ? ORDER BY position ASC, record_id ASC`, string(table))
	if err != nil {
		return nil, storageErr("read table", err)
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, storageErr("scan record", err)
		}
		record, err := models.DecodeRecord([]byte(data))
		if err != nil {
			return nil, storageErr("decode record", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("read table", err)
	}
	return records, nil
}

// Get returns a single cached record.
func (c *Cache) Get(ctx context.Context, table models.Table, id string) (Record, error) {
	var data string
	err := c.db.QueryRowContext(ctx, `
		SELECT data FROM local_cache WHERE table_name = ? AND record_id = ?`, string(table), id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, apperrors.Newf(apperrors.ErrNotFound, "%s/%s not cached", table, id)
	}
	if err != nil {
		return nil, storageErr("get record", err)
	}
	record, err := models.DecodeRecord([]byte(data))
	if err != nil {
		return nil, storageErr("decode record", err)
	}
	return record, nil
}

func storageErr(op string, err error) error {
	return apperrors.Wrap(apperrors.ErrStorage, "cache: "+op, err)
}
