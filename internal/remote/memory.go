package remote

import (
	"context"
	"sync"

	apperrors "github.com/kimhsiao/resellerdesk/backend/internal/errors"
	"github.com/kimhsiao/resellerdesk/backend/internal/models"
)

// Call is one request received by a Memory store.
type Call struct {
	Operation models.Operation
	Table     models.Table
	ID        string
}

// Memory is an in-process remote store. It behaves like a strict server:
// inserting an existing id and updating a missing one are rejected.
type Memory struct {
	mu     sync.Mutex
	tables map[models.Table]*memTable
	fail   map[string]error
	calls  []Call
}

type memTable struct {
	order []string
	rows  map[string]map[string]interface{}
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		tables: make(map[models.Table]*memTable),
		fail:   make(map[string]error),
	}
}

func failKey(table models.Table, id string) string {
	return string(table) + "/" + id
}

// Fail makes every request for table/id return err until Heal is called.
func (m *Memory) Fail(table models.Table, id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[failKey(table, id)] = err
}

// Heal clears injected failures.
func (m *Memory) Heal() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = make(map[string]error)
}

// Calls returns the requests received so far.
func (m *Memory) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

func (m *Memory) table(t models.Table) *memTable {
	tbl, ok := m.tables[t]
	if !ok {
		tbl = &memTable{rows: make(map[string]map[string]interface{})}
		m.tables[t] = tbl
	}
	return tbl
}

func (m *Memory) begin(ctx context.Context, op models.Operation, table models.Table, id string) error {
	if err := ctx.Err(); err != nil {
		return rejected("request cancelled", err)
	}
	m.calls = append(m.calls, Call{Operation: op, Table: table, ID: id})
	if err := m.fail[failKey(table, id)]; err != nil {
		return rejected("remote rejected request", err)
	}
	return nil
}

// Insert creates a record.
func (m *Memory) Insert(ctx context.Context, table models.Table, record map[string]interface{}) error {
	id, ok := models.RecordIDOf(record)
	if !ok {
		return apperrors.Newf(apperrors.ErrRemoteRejected, "%s record has no id", table)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx, models.OperationInsert, table, id); err != nil {
		return err
	}

	tbl := m.table(table)
	if _, exists := tbl.rows[id]; exists {
		return apperrors.Newf(apperrors.ErrRemoteRejected, "%s/%s already exists", table, id)
	}
	tbl.order = append(tbl.order, id)
	tbl.rows[id] = models.MergePayload(record, nil)
	return nil
}

// Update merges fields into an existing record.
func (m *Memory) Update(ctx context.Context, table models.Table, id string, fields map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx, models.OperationUpdate, table, id); err != nil {
		return err
	}

	tbl := m.table(table)
	row, ok := tbl.rows[id]
	if !ok {
		return apperrors.Newf(apperrors.ErrRemoteRejected, "%s/%s does not exist", table, id)
	}
	tbl.rows[id] = models.MergePayload(row, fields)
	return nil
}

// Delete removes a record. Deleting a missing record succeeds.
func (m *Memory) Delete(ctx context.Context, table models.Table, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx, models.OperationDelete, table, id); err != nil {
		return err
	}

	tbl := m.table(table)
	if _, ok := tbl.rows[id]; !ok {
		return nil
	}
	delete(tbl.rows, id)
	for i, existing := range tbl.order {
		if existing == id {
			tbl.order = append(tbl.order[:i], tbl.order[i+1:]...)
			break
		}
	}
	return nil
}

// Fetch returns a table's records in insertion order.
func (m *Memory) Fetch(ctx context.Context, table models.Table) ([]map[string]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, rejected("request cancelled", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	tbl := m.table(table)
	out := make([]map[string]interface{}, 0, len(tbl.order))
	for _, id := range tbl.order {
		out = append(out, models.MergePayload(tbl.rows[id], nil))
	}
	return out, nil
}

// Close is a no-op.
func (m *Memory) Close() {}
