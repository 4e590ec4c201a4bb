// Package models tests for data model definitions.
package models

import (
	"encoding/json"
	"testing"
)

func TestParseTable(t *testing.T) {
	tests := []struct {
		in      string
		want    Table
		wantErr bool
	}{
		{"clients", TableClients, false},
		{" Servers ", TableServers, false},
		{"templates", TableTemplates, false},
		{"customers_typo", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := ParseTable(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseTable(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseTable(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTable_CacheKey(t *testing.T) {
	if got := TableClients.CacheKey(); got != "local_cache.clients" {
		t.Errorf("CacheKey() = %q, want local_cache.clients", got)
	}
}

func TestParseOperation(t *testing.T) {
	for _, in := range []string{"insert", "Update", "DELETE"} {
		if _, err := ParseOperation(in); err != nil {
			t.Errorf("ParseOperation(%q) err = %v", in, err)
		}
	}
	if _, err := ParseOperation("upsert"); err == nil {
		t.Error("ParseOperation(upsert) should fail")
	}
}

func TestRecordIDOf(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]interface{}
		want    string
		ok      bool
	}{
		{"string", map[string]interface{}{"id": "c1"}, "c1", true},
		{"float", map[string]interface{}{"id": float64(42)}, "42", true},
		{"number", map[string]interface{}{"id": json.Number("7")}, "7", true},
		{"empty", map[string]interface{}{"id": ""}, "", false},
		{"missing", map[string]interface{}{"name": "x"}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := RecordIDOf(tt.payload)
			if got != tt.want || ok != tt.ok {
				t.Errorf("RecordIDOf() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestFieldsWithoutID(t *testing.T) {
	payload := map[string]interface{}{"id": "c1", "name": "Maria"}
	fields := FieldsWithoutID(payload)

	if _, ok := fields["id"]; ok {
		t.Error("FieldsWithoutID() kept id")
	}
	if fields["name"] != "Maria" {
		t.Errorf("name = %v, want Maria", fields["name"])
	}
	if _, ok := payload["id"]; !ok {
		t.Error("FieldsWithoutID() modified its input")
	}
}

func TestMergePayload(t *testing.T) {
	merged := MergePayload(
		map[string]interface{}{"id": "c1", "name": "Maria", "plan": "basic"},
		map[string]interface{}{"id": "c1", "plan": "pro"},
	)
	if merged["name"] != "Maria" || merged["plan"] != "pro" {
		t.Errorf("MergePayload() = %v", merged)
	}
}

func TestPendingMutation_Validate(t *testing.T) {
	ok := &PendingMutation{Table: TableClients, Operation: OperationUpdate, Payload: map[string]interface{}{"id": "c1"}}
	if err := ok.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}

	noID := &PendingMutation{Table: TableClients, Operation: OperationDelete, Payload: map[string]interface{}{}}
	if err := noID.Validate(); err == nil {
		t.Error("Validate() should require an id")
	}

	badTable := &PendingMutation{Table: "customers", Operation: OperationInsert, Payload: map[string]interface{}{"id": "c1"}}
	if err := badTable.Validate(); err == nil {
		t.Error("Validate() should reject unknown tables")
	}
}

func TestDecodeRecord(t *testing.T) {
	rec, err := DecodeRecord([]byte(`{"id": 9007199254740993, "amount": 12.5, "name": "Maria"}`))
	if err != nil {
		t.Fatalf("DecodeRecord failed: %v", err)
	}
	if id, _ := RecordIDOf(rec); id != "9007199254740993" {
		t.Errorf("id = %q, want exact integer", id)
	}
	if rec["amount"] != json.Number("12.5") {
		t.Errorf("amount = %#v, want json.Number", rec["amount"])
	}

	for _, in := range []string{`[1,2]`, `null`, `{`} {
		if _, err := DecodeRecord([]byte(in)); err == nil {
			t.Errorf("DecodeRecord(%s) succeeded, want error", in)
		}
	}
}
