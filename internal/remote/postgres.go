package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/kimhsiao/resellerdesk/backend/internal/errors"
	"github.com/kimhsiao/resellerdesk/backend/internal/logging"
	"github.com/kimhsiao/resellerdesk/backend/internal/models"
)

// Postgres writes directly into a PostgreSQL database.
type Postgres struct {
	pool *pgxpool.Pool
	log  *logging.Logger
}

// NewPostgres opens a small connection pool for dsn.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrConfigInvalid, "invalid postgres dsn", err)
	}

	cfg.MaxConns = 3
	cfg.MinConns = 0
	cfg.MaxConnLifetime = time.Minute * 30
	cfg.MaxConnIdleTime = time.Minute * 10

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrConfigInvalid, "failed to create postgres pool", err)
	}
	return &Postgres{pool: pool, log: logging.Component("postgres")}, nil
}

// Insert creates a record.
func (p *Postgres) Insert(ctx context.Context, table models.Table, record map[string]interface{}) error {
	sql, args := buildInsert(table, record)
	if _, err := p.pool.Exec(ctx, sql, args...); err != nil {
		return rejected(fmt.Sprintf("insert into %s", table), err)
	}
	return nil
}

// Update sets the given fields on the record with id. Updating a row that
// does not exist is rejected. An update with nothing to set is a no-op.
func (p *Postgres) Update(ctx context.Context, table models.Table, id string, fields map[string]interface{}) error {
	sql, args := buildUpdate(table, id, fields)
	if sql == "" {
		return nil
	}
	tag, err := p.pool.Exec(ctx, sql, args...)
	if err != nil {
		return rejected(fmt.Sprintf("update %s", table), err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.Newf(apperrors.ErrRemoteRejected, "%s/%s does not exist", table, id)
	}
	return nil
}

// Delete removes a record. Deleting a missing row succeeds.
func (p *Postgres) Delete(ctx context.Context, table models.Table, id string) error {
	sql := fmt.Sprintf("DELETE FROM %s WHERE %s = $1", pgx.Identifier{string(table)}.Sanitize(), pgx.Identifier{models.IDField}.Sanitize())
	if _, err := p.pool.Exec(ctx, sql, id); err != nil {
		return rejected(fmt.Sprintf("delete from %s", table), err)
	}
	return nil
}

// Fetch returns every row of a table as JSON objects.
func (p *Postgres) Fetch(ctx context.Context, table models.Table) ([]map[string]interface{}, error) {
	sql := fmt.Sprintf("SELECT row_to_json(t)::text FROM %s AS t", pgx.Identifier{string(table)}.Sanitize())
	rows, err := p.pool.Query(ctx, sql)
	if err != nil {
		return nil, rejected(fmt.Sprintf("select from %s", table), err)
	}
	defer rows.Close()

	out := make([]map[string]interface{}, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, rejected("scan row", err)
		}
		record, err := models.DecodeRecord([]byte(data))
		if err != nil {
			return nil, rejected("decode row", err)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, rejected(fmt.Sprintf("select from %s", table), err)
	}
	return out, nil
}

// Close closes the pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func buildInsert(table models.Table, record map[string]interface{}) (string, []interface{}) {
	keys := sortedKeys(record)
	cols := make([]string, len(keys))
	params := make([]string, len(keys))
	args := make([]interface{}, len(keys))
	for i, k := range keys {
		cols[i] = pgx.Identifier{k}.Sanitize()
		params[i] = fmt.Sprintf("$%d", i+1)
		args[i] = pgValue(record[k])
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		pgx.Identifier{string(table)}.Sanitize(), strings.Join(cols, ", "), strings.Join(params, ", "))
	return sql, args
}

// buildUpdate returns an empty statement when fields hold nothing besides
// the id column.
func buildUpdate(table models.Table, id string, fields map[string]interface{}) (string, []interface{}) {
	keys := sortedKeys(models.FieldsWithoutID(fields))
	if len(keys) == 0 {
		return "", nil
	}
	sets := make([]string, len(keys))
	args := make([]interface{}, 0, len(keys)+1)
	for i, k := range keys {
		sets[i] = fmt.Sprintf("%s = $%d", pgx.Identifier{k}.Sanitize(), i+1)
		args = append(args, pgValue(fields[k]))
	}
	args = append(args, id)
	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d",
		pgx.Identifier{string(table)}.Sanitize(), strings.Join(sets, ", "),
		pgx.Identifier{models.IDField}.Sanitize(), len(args))
	return sql, args
}

// pgValue converts decoded JSON values into types pgx can encode.
func pgValue(v interface{}) interface{} {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case map[string]interface{}, []interface{}:
		data, err := json.Marshal(x)
		if err != nil {
			return nil
		}
		return string(data)
	}
	return v
}
