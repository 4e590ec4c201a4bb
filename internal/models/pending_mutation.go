package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// IDField is the payload key that carries a record's primary key.
const IDField = "id"

// PendingMutation is a write that has been applied locally but not yet
// confirmed by the remote store.
type PendingMutation struct {
	ID          string                 `db:"id" json:"id"`
	Seq         int64                  `db:"seq" json:"seq"`
	Table       Table                  `db:"table_name" json:"table"`
	Operation   Operation              `db:"operation" json:"operation"`
	RecordID    string                 `db:"record_id" json:"record_id"`
	Payload     map[string]interface{} `db:"payload" json:"payload"`
	SubmittedAt int64                  `db:"submitted_at" json:"submitted_at"` // unix ms
	UpdatedAt   int64                  `db:"updated_at" json:"updated_at"`     // unix ms
	Attempts    int                    `db:"attempts" json:"attempts"`
	LastError   string                 `db:"last_error" json:"last_error,omitempty"`
}

// TableName returns the table name for PendingMutation.
func (PendingMutation) TableName() string {
	return "pending_mutations"
}

// Submitted returns SubmittedAt as time.Time.
func (m *PendingMutation) Submitted() time.Time {
	return time.UnixMilli(m.SubmittedAt)
}

// RecordIDOf extracts the id field of a payload as a string.
func RecordIDOf(payload map[string]interface{}) (string, bool) {
	raw, ok := payload[IDField]
	if !ok || raw == nil {
		return "", false
	}
	switch v := raw.(type) {
	case string:
		return v, v != ""
	case json.Number:
		return v.String(), true
	case float64:
		return fmt.Sprintf("%.0f", v), true
	case int:
		return fmt.Sprintf("%d", v), true
	case int64:
		return fmt.Sprintf("%d", v), true
	default:
		return fmt.Sprint(v), true
	}
}

// FieldsWithoutID returns a copy of the payload minus the id field, which is
// the shape an update-by-id sends to the remote store.
func FieldsWithoutID(payload map[string]interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		if k == IDField {
			continue
		}
		fields[k] = v
	}
	return fields
}

// MergePayload returns base overlaid with patch. Neither input is modified.
func MergePayload(base, patch map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(base)+len(patch))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range patch {
		merged[k] = v
	}
	return merged
}

// Validate checks that the mutation can be queued.
func (m *PendingMutation) Validate() error {
	if !m.Table.Valid() {
		return fmt.Errorf("unknown table %q", m.Table)
	}
	if _, err := ParseOperation(string(m.Operation)); err != nil {
		return err
	}
	if _, ok := RecordIDOf(m.Payload); !ok {
		return fmt.Errorf("%s on %s requires payload field %q", m.Operation, m.Table, IDField)
	}
	return nil
}
