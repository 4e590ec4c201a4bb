package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kimhsiao/resellerdesk/backend/internal/logging"
	"github.com/kimhsiao/resellerdesk/backend/internal/models"
)

// DefaultTimeout is the HTTP client timeout used when none is configured.
const DefaultTimeout = 30 * time.Second

const maxErrorBody = 512

// PostgREST talks to a PostgREST (or Supabase) endpoint over HTTPS.
type PostgREST struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     *logging.Logger
}

// NewPostgREST creates a client for baseURL. "/rest/v1" is appended when
// missing.
func NewPostgREST(baseURL, apiKey string, timeout time.Duration) *PostgREST {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	base := strings.TrimRight(baseURL, "/")
	if !strings.HasSuffix(base, "/rest/v1") {
		base += "/rest/v1"
	}
	return &PostgREST{
		baseURL: base,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		log:     logging.Component("postgrest"),
	}
}

func (p *PostgREST) tableURL(table models.Table, id string) string {
	u := p.baseURL + "/" + url.PathEscape(string(table))
	if id != "" {
		u += "?" + models.IDField + "=eq." + url.QueryEscape(id)
	}
	return u
}

// Insert creates a record.
func (p *PostgREST) Insert(ctx context.Context, table models.Table, record map[string]interface{}) error {
	return p.do(ctx, http.MethodPost, table, p.tableURL(table, ""), record, nil)
}

// Update patches the record with the given id.
func (p *PostgREST) Update(ctx context.Context, table models.Table, id string, fields map[string]interface{}) error {
	return p.do(ctx, http.MethodPatch, table, p.tableURL(table, id), fields, nil)
}

// Delete removes the record with the given id.
func (p *PostgREST) Delete(ctx context.Context, table models.Table, id string) error {
	return p.do(ctx, http.MethodDelete, table, p.tableURL(table, id), nil, nil)
}

// Fetch returns every row of a table.
func (p *PostgREST) Fetch(ctx context.Context, table models.Table) ([]map[string]interface{}, error) {
	var rows []map[string]interface{}
	if err := p.do(ctx, http.MethodGet, table, p.tableURL(table, "")+"?select=*", nil, &rows); err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []map[string]interface{}{}
	}
	return rows, nil
}

// Close releases idle connections.
func (p *PostgREST) Close() {
	p.client.CloseIdleConnections()
}

func (p *PostgREST) do(ctx context.Context, method string, table models.Table, target string, body interface{}, out *[]map[string]interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return rejected("failed to encode request", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return rejected("failed to create request", err)
	}
	req.Header.Set("apikey", p.apiKey)
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet {
		req.Header.Set("Prefer", "return=minimal")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return rejected("request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		statusErr := &StatusError{
			Method:     method,
			Table:      table,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(msg)),
		}
		p.log.Debug("Remote rejected request", map[string]interface{}{
			"method": method,
			"table":  string(table),
			"status": resp.StatusCode,
		})
		return rejected("remote rejected request", statusErr)
	}

	if out == nil {
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return rejected("failed to read response", err)
	}
	return decodeRows(data, out)
}

func decodeRows(data []byte, out *[]map[string]interface{}) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return rejected("failed to decode response", err)
	}
	rows := make([]map[string]interface{}, 0, len(raw))
	for _, r := range raw {
		row, err := models.DecodeRecord(r)
		if err != nil {
			return rejected("failed to decode row", err)
		}
		rows = append(rows, row)
	}
	*out = rows
	return nil
}
