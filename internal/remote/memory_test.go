package remote

import (
	"context"
	"errors"
	"testing"

	apperrors "github.com/kimhsiao/resellerdesk/backend/internal/errors"
	"github.com/kimhsiao/resellerdesk/backend/internal/models"
)

func TestMemory(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.Insert(ctx, models.TableClients, map[string]interface{}{"id": "c1", "name": "Maria"}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := m.Insert(ctx, models.TableClients, map[string]interface{}{"id": "c1"}); !apperrors.Is(err, apperrors.ErrRemoteRejected) {
		t.Errorf("duplicate Insert err = %v, want REMOTE_REJECTED", err)
	}
	if err := m.Update(ctx, models.TableClients, "c1", map[string]interface{}{"phone": "555"}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if err := m.Update(ctx, models.TableClients, "c9", map[string]interface{}{"phone": "555"}); !apperrors.Is(err, apperrors.ErrRemoteRejected) {
		t.Errorf("Update missing err = %v, want REMOTE_REJECTED", err)
	}

	rows, _ := m.Fetch(ctx, models.TableClients)
	if len(rows) != 1 || rows[0]["name"] != "Maria" || rows[0]["phone"] != "555" {
		t.Errorf("Fetch() = %v", rows)
	}

	if err := m.Delete(ctx, models.TableClients, "c1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := m.Delete(ctx, models.TableClients, "c1"); err != nil {
		t.Errorf("second Delete err = %v, want nil", err)
	}
	if rows, _ := m.Fetch(ctx, models.TableClients); len(rows) != 0 {
		t.Errorf("Fetch() after delete = %v", rows)
	}
	if n := len(m.Calls()); n != 6 {
		t.Errorf("len(Calls()) = %d, want 6", n)
	}
}

func TestMemory_failureInjection(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	m.Fail(models.TablePayments, "p2", errors.New("503 unavailable"))

	if err := m.Insert(ctx, models.TablePayments, map[string]interface{}{"id": "p1"}); err != nil {
		t.Errorf("Insert p1 err = %v", err)
	}
	if err := m.Insert(ctx, models.TablePayments, map[string]interface{}{"id": "p2"}); !apperrors.Is(err, apperrors.ErrRemoteRejected) {
		t.Errorf("Insert p2 err = %v, want REMOTE_REJECTED", err)
	}

	m.Heal()
	if err := m.Insert(ctx, models.TablePayments, map[string]interface{}{"id": "p2"}); err != nil {
		t.Errorf("Insert p2 after Heal err = %v", err)
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Options{Kind: KindMemory})
	if err != nil {
		t.Fatalf("Open(memory) failed: %v", err)
	}
	s.Close()

	s, err = Open(ctx, Options{Kind: KindPostgREST, URL: "https://example.supabase.co", APIKey: "k"})
	if err != nil {
		t.Fatalf("Open(postgrest) failed: %v", err)
	}
	if p := s.(*PostgREST); p.baseURL != "https://example.supabase.co/rest/v1" {
		t.Errorf("baseURL = %q", p.baseURL)
	}

	invalid := []Options{
		{Kind: KindPostgREST},
		{Kind: KindPostgres},
		{Kind: KindPostgres, DSN: "postgres://user:pw@localhost:notaport/db"},
		{Kind: "ftp"},
	}
	for _, opts := range invalid {
		if _, err := Open(ctx, opts); !apperrors.Is(err, apperrors.ErrConfigInvalid) {
			t.Errorf("Open(%+v) err = %v, want CONFIG_INVALID", opts, err)
		}
	}
}
