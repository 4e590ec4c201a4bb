// Package queue provides the durable, submission-ordered log of mutations
// that were applied locally but have not reached the remote store yet.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/kimhsiao/resellerdesk/backend/internal/errors"
	"github.com/kimhsiao/resellerdesk/backend/internal/logging"
	"github.com/kimhsiao/resellerdesk/backend/internal/models"
	"github.com/kimhsiao/resellerdesk/backend/internal/uuid"
)

// Policy decides what happens when a mutation targets a record that already
// has an unsynced entry in the queue.
type Policy string

const (
	// PolicyCoalesce folds the new mutation into the queued one in place.
	PolicyCoalesce Policy = "coalesce"
	// PolicyAppend queues every mutation and replays all of them in order.
	PolicyAppend Policy = "append"
)

// ParsePolicy validates a policy name. Empty means PolicyCoalesce.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyCoalesce:
		return PolicyCoalesce, nil
	case PolicyAppend:
		return PolicyAppend, nil
	}
	return "", fmt.Errorf("unknown queue policy %q", s)
}

// Config holds queue configuration.
type Config struct {
	Policy  Policy
	MaxSize int // 0 disables the cap
}

// DefaultConfig returns the default queue configuration.
func DefaultConfig() *Config {
	return &Config{
		Policy:  PolicyCoalesce,
		MaxSize: 1000,
	}
}

// Store is the SQLite-backed pending mutation log.
//
// Individual appends and removals are atomic with respect to each other.
// Entries handed to the reconciler are tracked as in flight; a write to the
// same record while its entry is in flight is appended rather than merged so
// the content being sent is never rewritten underneath the sender.
type Store struct {
	db       *sql.DB
	policy   Policy
	maxSize  int
	mu       sync.Mutex
	inFlight map[string]bool
	now      func() time.Time
	log      *logging.Logger
}

// NewStore creates a Store over an opened database (see db.Open).
func NewStore(db *sql.DB, config *Config) *Store {
	if config == nil {
		config = DefaultConfig()
	}
	policy := config.Policy
	if policy == "" {
		policy = PolicyCoalesce
	}
	return &Store{
		db:       db,
		policy:   policy,
		maxSize:  config.MaxSize,
		inFlight: make(map[string]bool),
		now:      time.Now,
		log:      logging.Component("queue"),
	}
}

// Policy returns the de-duplication policy in effect.
func (s *Store) Policy() Policy {
	return s.policy
}

// Append queues a mutation and returns its id. The mutation's ID, RecordID,
// Seq and timestamps are assigned here.
//
// Under PolicyCoalesce an unsynced entry for the same (table, record) that is
// not in flight is replaced in place, keeping its submission position:
//
//	insert + update -> insert (merged payload)
//	update + update -> update (merged payload)
//	update + delete -> delete
//	insert + delete -> both dropped, nothing reaches the server
//
// Every other combination is appended.
func (s *Store) Append(ctx context.Context, m *models.PendingMutation) (string, error) {
	if err := m.Validate(); err != nil {
		return "", apperrors.Wrap(apperrors.ErrInvalid, "invalid mutation", err)
	}
	recordID, _ := models.RecordIDOf(m.Payload)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UnixMilli()
	m.ID = uuid.NewOrdered()
	m.RecordID = recordID
	m.SubmittedAt = now
	m.UpdatedAt = now
	m.Attempts = 0
	m.LastError = ""

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", storageErr("begin append", err)
	}
	defer tx.Rollback()

	if s.policy == PolicyCoalesce {
		done, err := s.coalesce(ctx, tx, m)
		if err != nil {
			return "", err
		}
		if done {
			if err := tx.Commit(); err != nil {
				return "", storageErr("commit append", err)
			}
			return m.ID, nil
		}
	}

	if s.maxSize > 0 {
		var count int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_mutations`).Scan(&count); err != nil {
			return "", storageErr("count queue", err)
		}
		if count >= s.maxSize {
			return "", apperrors.Newf(apperrors.ErrQueueFull, "queue is full (max size: %d)", s.maxSize)
		}
	}

	payload, err := encodePayload(m.Payload)
	if err != nil {
		return "", err
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO pending_mutations
		(id, table_name, operation, record_id, payload, submitted_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, string(m.Table), string(m.Operation), m.RecordID, payload, m.SubmittedAt, m.UpdatedAt)
	if err != nil {
		return "", storageErr("append mutation", err)
	}
	if m.Seq, err = res.LastInsertId(); err != nil {
		return "", storageErr("append mutation", err)
	}
	if err := tx.Commit(); err != nil {
		return "", storageErr("commit append", err)
	}

	s.log.Debug("Appended mutation", map[string]interface{}{
		"id": m.ID, "seq": m.Seq, "table": string(m.Table), "operation": string(m.Operation), "record_id": m.RecordID,
	})
	return m.ID, nil
}

// coalesce folds m into the latest queued entry for the same record when a
// merge is well defined. It reports whether m was fully handled.
func (s *Store) coalesce(ctx context.Context, tx *sql.Tx, m *models.PendingMutation) (bool, error) {
	row := tx.QueryRowContext(ctx, selectColumns+`
		WHERE table_name = ? AND record_id = ?
		ORDER BY seq DESC LIMIT 1`, string(m.Table), m.RecordID)
	existing, err := scanMutation(row)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, storageErr("find queued mutation", err)
	}
	if s.inFlight[existing.ID] {
		return false, nil
	}

	var (
		op      models.Operation
		payload map[string]interface{}
	)
	switch {
	case existing.Operation == models.OperationInsert && m.Operation == models.OperationUpdate:
		op, payload = models.OperationInsert, models.MergePayload(existing.Payload, m.Payload)
	case existing.Operation == models.OperationUpdate && m.Operation == models.OperationUpdate:
		op, payload = models.OperationUpdate, models.MergePayload(existing.Payload, m.Payload)
	case existing.Operation == models.OperationUpdate && m.Operation == models.OperationDelete:
		op, payload = models.OperationDelete, m.Payload
	case existing.Operation == models.OperationInsert && m.Operation == models.OperationDelete:
		if _, err := tx.ExecContext(ctx, `DELETE FROM pending_mutations WHERE seq = ?`, existing.Seq); err != nil {
			return false, storageErr("collapse insert", err)
		}
		m.Seq = 0
		s.log.Debug("Collapsed unsynced insert", map[string]interface{}{
			"table": string(m.Table), "record_id": m.RecordID, "dropped": existing.ID,
		})
		return true, nil
	default:
		return false, nil
	}

	encoded, err := encodePayload(payload)
	if err != nil {
		return false, err
	}
	// The new id replaces the old one so that a reconciler still holding the
	// old id can't remove the merged content.
	_, err = tx.ExecContext(ctx, `
		UPDATE pending_mutations
		SET id = ?, operation = ?, payload = ?, updated_at = ?, attempts = 0, last_error = ''
		WHERE seq = ?`,
		m.ID, string(op), encoded, m.UpdatedAt, existing.Seq)
	if err != nil {
		return false, storageErr("coalesce mutation", err)
	}

	m.Seq = existing.Seq
	m.SubmittedAt = existing.SubmittedAt
	m.Operation = op
	m.Payload = payload
	s.log.Debug("Coalesced mutation", map[string]interface{}{
		"id": m.ID, "seq": m.Seq, "replaced": existing.ID, "operation": string(op),
	})
	return true, nil
}

// RemoveByID deletes a mutation after the remote store confirmed it.
func (s *Store) RemoveByID(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM pending_mutations WHERE id = ?`, id)
	if err != nil {
		return storageErr("remove mutation", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("remove mutation", err)
	}
	if n == 0 {
		return apperrors.Newf(apperrors.ErrNotFound, "mutation %s not found", id)
	}
	delete(s.inFlight, id)
	return nil
}

// MarkFailed records a failed delivery attempt. The entry stays queued.
func (s *Store) MarkFailed(ctx context.Context, id string, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE pending_mutations
		SET attempts = attempts + 1, last_error = ?, updated_at = ?
		WHERE id = ?`, msg, s.now().UnixMilli(), id)
	if err != nil {
		return storageErr("mark failed", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.Newf(apperrors.ErrNotFound, "mutation %s not found", id)
	}
	return nil
}

// Snapshot lists every queued mutation in submission order and marks each
// one in flight. Writes appended while the marks are held never merge into a
// listed entry. Callers release the marks with EndSend.
func (s *Store) Snapshot(ctx context.Context) ([]*models.PendingMutation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending, err := s.ListOrdered(ctx)
	if err != nil {
		return nil, err
	}
	for _, m := range pending {
		s.inFlight[m.ID] = true
	}
	return pending, nil
}

// EndSend clears in-flight marks set by Snapshot.
func (s *Store) EndSend(ids ...string) {
	s.mu.Lock()
	for _, id := range ids {
		delete(s.inFlight, id)
	}
	s.mu.Unlock()
}

// ListOrdered returns every queued mutation in submission order.
func (s *Store) ListOrdered(ctx context.Context) ([]*models.PendingMutation, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY seq ASC`)
	if err != nil {
		return nil, storageErr("list queue", err)
	}
	defer rows.Close()

	var out []*models.PendingMutation
	for rows.Next() {
		m, err := scanMutation(rows)
		if err != nil {
			return nil, storageErr("scan queue", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list queue", err)
	}
	return out, nil
}

// Get returns a single queued mutation.
func (s *Store) Get(ctx context.Context, id string) (*models.PendingMutation, error) {
	m, err := scanMutation(s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, apperrors.Newf(apperrors.ErrNotFound, "mutation %s not found", id)
	}
	if err != nil {
		return nil, storageErr("get mutation", err)
	}
	return m, nil
}

// Count returns the number of queued mutations.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_mutations`).Scan(&n); err != nil {
		return 0, storageErr("count queue", err)
	}
	return n, nil
}

// CountFor returns how many mutations are queued for one record.
func (s *Store) CountFor(ctx context.Context, table models.Table, recordID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM pending_mutations WHERE table_name = ? AND record_id = ?`,
		string(table), recordID).Scan(&n)
	if err != nil {
		return 0, storageErr("count record", err)
	}
	return n, nil
}

// Stats returns queue counts: "total", "failing" (attempted at least once)
// and one entry per table name.
func (s *Store) Stats(ctx context.Context) (map[string]int, error) {
	stats := map[string]int{"total": 0, "failing": 0}

	rows, err := s.db.QueryContext(ctx, `
		SELECT table_name, COUNT(*), SUM(CASE WHEN attempts > 0 THEN 1 ELSE 0 END)
		FROM pending_mutations GROUP BY table_name`)
	if err != nil {
		return nil, storageErr("queue stats", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			table          string
			total, failing int
		)
		if err := rows.Scan(&table, &total, &failing); err != nil {
			return nil, storageErr("queue stats", err)
		}
		stats[table] = total
		stats["total"] += total
		stats["failing"] += failing
	}
	return stats, rows.Err()
}

// Clear removes every queued mutation.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM pending_mutations`); err != nil {
		return storageErr("clear queue", err)
	}
	s.log.Info("Queue cleared")
	return nil
}

const selectColumns = `
	SELECT seq, id, table_name, operation, record_id, payload, submitted_at, updated_at, attempts, last_error
	FROM pending_mutations`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMutation(row rowScanner) (*models.PendingMutation, error) {
	var (
		m       models.PendingMutation
		table   string
		op      string
		payload string
	)
	err := row.Scan(&m.Seq, &m.ID, &table, &op, &m.RecordID, &payload,
		&m.SubmittedAt, &m.UpdatedAt, &m.Attempts, &m.LastError)
	if err != nil {
		return nil, err
	}
	m.Table = models.Table(table)
	m.Operation = models.Operation(op)
	if m.Payload, err = models.DecodeRecord([]byte(payload)); err != nil {
		return nil, fmt.Errorf("mutation %s: %w", m.ID, err)
	}
	return &m, nil
}

func encodePayload(payload map[string]interface{}) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrInvalid, "payload is not serializable", err)
	}
	return string(data), nil
}

func storageErr(op string, err error) error {
	return apperrors.Wrap(apperrors.ErrStorage, op, err)
}
