// Package models provides data model definitions for the ResellerDesk sync engine.
package models

import (
	"fmt"
	"strings"
)

// Table names a remote record collection. Only the values below are accepted
// by the engine; anything else is rejected before it reaches the queue.
type Table string

const (
	TableClients   Table = "clients"
	TableServers   Table = "servers"
	TablePlans     Table = "plans"
	TableTemplates Table = "templates"
	TablePayments  Table = "payments"
)

// Tables lists every known table in a stable order.
var Tables = []Table{TableClients, TableServers, TablePlans, TableTemplates, TablePayments}

// ParseTable validates a table name.
func ParseTable(s string) (Table, error) {
	t := Table(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown table %q", s)
	}
	return t, nil
}

// Valid reports whether t is one of the known tables.
func (t Table) Valid() bool {
	for _, known := range Tables {
		if t == known {
			return true
		}
	}
	return false
}

// String returns the table name.
func (t Table) String() string {
	return string(t)
}

// CacheKey returns the logical persisted key for this table's cache snapshot.
func (t Table) CacheKey() string {
	return "local_cache." + string(t)
}

// Operation is the kind of write a mutation applies.
type Operation string

const (
	OperationInsert Operation = "insert"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// ParseOperation validates an operation name (case-insensitive).
func ParseOperation(s string) (Operation, error) {
	op := Operation(strings.ToLower(strings.TrimSpace(s)))
	switch op {
	case OperationInsert, OperationUpdate, OperationDelete:
		return op, nil
	}
	return "", fmt.Errorf("unknown operation %q", s)
}
