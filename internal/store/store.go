// Package store is the record store adapter. Every collection keeps one
// serialized record per row next to a handful of denormalized index
// columns; callers that need typed access decode the document and treat
// corrupt or empty cells as absent.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Fields carries values for a collection's index columns, keyed by column
// name. Missing columns are stored as NULL.
type Fields map[string]any

// Row is one record destined for a wholesale Replace.
type Row struct {
	Key    string
	Doc    any
	Fields Fields
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store adapts named record collections onto PostgreSQL.
type Store struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	ensured sync.Map
}

// New constructs a Store.
func New(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	return &Store{pool: pool, logger: logger}
}

// Decode unmarshals a stored document into dest, reporting false for
// empty or corrupt documents so callers can substitute defaults.
func Decode(raw []byte, dest any) bool {
	if len(raw) == 0 {
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false
	}
	return true
}

func marshalDoc(doc any) ([]byte, error) {
	if doc == nil {
		return nil, errors.New("store: nil document")
	}
	if raw, ok := doc.([]byte); ok {
		return raw, nil
	}
	return json.Marshal(doc)
}

// Ensure lazily creates the collection's table and indexes. It is
// idempotent and runs at most once per process per collection.
func (s *Store) Ensure(ctx context.Context, col Collection) error {
	if _, done := s.ensured.Load(col.Table); done {
		return nil
	}
	for _, stmt := range col.schemaSQL() {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("store: ensure %s: %w", col.Name, err)
		}
	}
	s.ensured.Store(col.Table, struct{}{})
	return nil
}

// EnsureAll creates every known collection plus the settings table.
func (s *Store) EnsureAll(ctx context.Context) error {
	for _, col := range All {
		if err := s.Ensure(ctx, col); err != nil {
			return err
		}
	}
	return s.ensureSettings(ctx)
}

// Get fetches one record document by key.
func (s *Store) Get(ctx context.Context, col Collection, tenantID, key string) ([]byte, bool, error) {
	if err := s.Ensure(ctx, col); err != nil {
		return nil, false, err
	}
	return getDoc(ctx, s.pool, col, tenantID, key, false)
}

// Put upserts one record document and its index columns.
func (s *Store) Put(ctx context.Context, col Collection, tenantID, key string, doc any, fields Fields) error {
	if err := s.Ensure(ctx, col); err != nil {
		return err
	}
	return putDoc(ctx, s.pool, col, tenantID, key, doc, fields)
}

// Scan returns every readable document in the collection. Corrupt rows
// are skipped, mirroring the absent-on-decode-failure contract.
func (s *Store) Scan(ctx context.Context, col Collection, tenantID string) ([][]byte, error) {
	if err := s.Ensure(ctx, col); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT doc FROM %s WHERE tenant_id = $1 ORDER BY %s`, col.Table, col.scanOrder())
	return collectDocs(ctx, s.pool, query, tenantID)
}

// Tail returns up to limit documents, newest first. Log collections and
// chronologically appended keyed collections support it.
func (s *Store) Tail(ctx context.Context, col Collection, tenantID string, limit int) ([][]byte, error) {
	if err := s.Ensure(ctx, col); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 200
	}
	query := fmt.Sprintf(`SELECT doc FROM %s WHERE tenant_id = $1 ORDER BY %s DESC LIMIT $2`, col.Table, col.tailOrder())
	return collectDocs(ctx, s.pool, query, tenantID, limit)
}

// Append inserts one row into an append-only collection. A zero at
// timestamp defaults to now.
func (s *Store) Append(ctx context.Context, col Collection, tenantID string, doc any, fields Fields, at time.Time) error {
	if err := s.Ensure(ctx, col); err != nil {
		return err
	}
	return appendDoc(ctx, s.pool, col, tenantID, doc, fields, at)
}

// Replace swaps the tenant's entire collection content in one
// transaction. Destructive by design; callers run merge logic first.
func (s *Store) Replace(ctx context.Context, col Collection, tenantID string, rows []Row) error {
	if err := s.Ensure(ctx, col); err != nil {
		return err
	}
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE tenant_id = $1`, col.Table), tenantID); err != nil {
			return fmt.Errorf("store: replace clear %s: %w", col.Name, err)
		}
		for _, row := range rows {
			if err := putDoc(ctx, tx, col, tenantID, row.Key, row.Doc, row.Fields); err != nil {
				return err
			}
		}
		return nil
	})
}

// Prune deletes log rows older than cutoff across all tenants. Used by
// the retention job; keyed collections are never pruned.
func (s *Store) Prune(ctx context.Context, col Collection, cutoff time.Time) (int64, error) {
	if col.Kind != KindLog {
		return 0, fmt.Errorf("store: %s is not an append-only collection", col.Name)
	}
	if err := s.Ensure(ctx, col); err != nil {
		return 0, err
	}
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE logged_at < $1`, col.Table), cutoff)
	if err != nil {
		return 0, fmt.Errorf("store: prune %s: %w", col.Name, err)
	}
	return tag.RowsAffected(), nil
}

// Delete removes one record by key.
func (s *Store) Delete(ctx context.Context, col Collection, tenantID, key string) error {
	if err := s.Ensure(ctx, col); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE tenant_id = $1 AND key = $2`, col.Table), tenantID, key)
	if err != nil {
		return fmt.Errorf("store: delete from %s: %w", col.Name, err)
	}
	return nil
}

// Tx exposes the adapter operations inside one transaction, plus
// GetForUpdate for single-row compare-and-set flows.
type Tx struct {
	tx pgx.Tx
}

// WithTx runs fn inside a repeatable-read transaction.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, *Tx) error) error {
	if err := s.EnsureAll(ctx); err != nil {
		return err
	}
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead}, func(tx pgx.Tx) error {
		return fn(ctx, &Tx{tx: tx})
	})
}

// Get fetches one record document by key.
func (t *Tx) Get(ctx context.Context, col Collection, tenantID, key string) ([]byte, bool, error) {
	return getDoc(ctx, t.tx, col, tenantID, key, false)
}

// GetForUpdate fetches one record and row-locks it for the transaction.
func (t *Tx) GetForUpdate(ctx context.Context, col Collection, tenantID, key string) ([]byte, bool, error) {
	return getDoc(ctx, t.tx, col, tenantID, key, true)
}

// Put upserts one record document and its index columns.
func (t *Tx) Put(ctx context.Context, col Collection, tenantID, key string, doc any, fields Fields) error {
	return putDoc(ctx, t.tx, col, tenantID, key, doc, fields)
}

// Append inserts one row into an append-only collection.
func (t *Tx) Append(ctx context.Context, col Collection, tenantID string, doc any, fields Fields, at time.Time) error {
	return appendDoc(ctx, t.tx, col, tenantID, doc, fields, at)
}

// Scan returns every readable document in the collection.
func (t *Tx) Scan(ctx context.Context, col Collection, tenantID string) ([][]byte, error) {
	query := fmt.Sprintf(`SELECT doc FROM %s WHERE tenant_id = $1 ORDER BY %s`, col.Table, col.scanOrder())
	return collectDocs(ctx, t.tx, query, tenantID)
}

func getDoc(ctx context.Context, q querier, col Collection, tenantID, key string, forUpdate bool) ([]byte, bool, error) {
	if col.Kind != KindKeyed {
		return nil, false, fmt.Errorf("store: %s is not a keyed collection", col.Name)
	}
	query := fmt.Sprintf(`SELECT doc FROM %s WHERE tenant_id = $1 AND key = $2`, col.Table)
	if forUpdate {
		query += " FOR UPDATE"
	}
	var raw []byte
	err := q.QueryRow(ctx, query, tenantID, key).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("store: get from %s: %w", col.Name, err)
	}
	if len(raw) == 0 || !json.Valid(raw) {
		// A corrupt cell reads as absent, never as a failure.
		return nil, false, nil
	}
	return raw, true, nil
}

func putDoc(ctx context.Context, q querier, col Collection, tenantID, key string, doc any, fields Fields) error {
	if col.Kind != KindKeyed {
		return fmt.Errorf("store: %s is not a keyed collection", col.Name)
	}
	raw, err := marshalDoc(doc)
	if err != nil {
		return fmt.Errorf("store: encode %s record: %w", col.Name, err)
	}
	args := make([]any, 0, len(col.Columns)+3)
	args = append(args, tenantID, key)
	for _, c := range col.Columns {
		args = append(args, fields[c.Name])
	}
	args = append(args, raw)
	if _, err := q.Exec(ctx, col.upsertSQL(), args...); err != nil {
		return fmt.Errorf("store: put into %s: %w", col.Name, err)
	}
	return nil
}

func appendDoc(ctx context.Context, q querier, col Collection, tenantID string, doc any, fields Fields, at time.Time) error {
	if col.Kind != KindLog {
		return fmt.Errorf("store: %s is not an append-only collection", col.Name)
	}
	raw, err := marshalDoc(doc)
	if err != nil {
		return fmt.Errorf("store: encode %s record: %w", col.Name, err)
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	args := make([]any, 0, len(col.Columns)+3)
	args = append(args, tenantID)
	for _, c := range col.Columns {
		args = append(args, fields[c.Name])
	}
	args = append(args, raw, at)
	if _, err := q.Exec(ctx, col.appendSQL(), args...); err != nil {
		return fmt.Errorf("store: append into %s: %w", col.Name, err)
	}
	return nil
}

func collectDocs(ctx context.Context, q querier, query string, args ...any) ([][]byte, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: scan: %w", err)
	}
	defer rows.Close()
	var docs [][]byte
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("store: scan row: %w", err)
		}
		if len(raw) == 0 || !json.Valid(raw) {
			continue
		}
		docs = append(docs, raw)
	}
	return docs, rows.Err()
}

func (c Collection) schemaSQL() []string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", c.Table)
	if c.Kind == KindLog {
		b.WriteString("\tid BIGSERIAL PRIMARY KEY,\n\ttenant_id TEXT NOT NULL,\n")
	} else {
		b.WriteString("\ttenant_id TEXT NOT NULL,\n\tkey TEXT NOT NULL,\n")
	}
	for _, col := range c.Columns {
		fmt.Fprintf(&b, "\t%s %s,\n", col.Name, col.Type)
	}
	b.WriteString("\tdoc JSONB,\n")
	if c.Kind == KindLog {
		b.WriteString("\tlogged_at TIMESTAMPTZ NOT NULL DEFAULT now()\n)")
	} else {
		b.WriteString("\tupdated_at TIMESTAMPTZ NOT NULL DEFAULT now(),\n\tPRIMARY KEY (tenant_id, key)\n)")
	}
	stmts := []string{b.String()}
	if c.Kind == KindLog {
		stmts = append(stmts, fmt.Sprintf(
			"CREATE INDEX IF NOT EXISTS %s_tenant_logged_idx ON %s (tenant_id, logged_at DESC)", c.Table, c.Table))
	}
	for _, name := range c.Indexed {
		stmts = append(stmts, fmt.Sprintf(
			"CREATE INDEX IF NOT EXISTS %s_%s_idx ON %s (tenant_id, %s)", c.Table, name, c.Table, name))
	}
	return stmts
}

func (c Collection) upsertSQL() string {
	cols := []string{"tenant_id", "key"}
	for _, col := range c.Columns {
		cols = append(cols, col.Name)
	}
	cols = append(cols, "doc")
	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	updates := make([]string, 0, len(c.Columns)+2)
	for _, col := range c.Columns {
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", col.Name, col.Name))
	}
	updates = append(updates, "doc = EXCLUDED.doc", "updated_at = now()")
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (tenant_id, key) DO UPDATE SET %s",
		c.Table, strings.Join(cols, ", "), strings.Join(placeholders, ", "), strings.Join(updates, ", "))
}

func (c Collection) appendSQL() string {
	cols := []string{"tenant_id"}
	for _, col := range c.Columns {
		cols = append(cols, col.Name)
	}
	cols = append(cols, "doc", "logged_at")
	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		c.Table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
}

func (c Collection) scanOrder() string {
	if c.Kind == KindLog {
		return "id"
	}
	if c.TailColumn != "" {
		return c.TailColumn
	}
	return "key"
}

func (c Collection) tailOrder() string {
	if c.Kind == KindLog {
		return "id"
	}
	if c.TailColumn != "" {
		return c.TailColumn
	}
	return "updated_at"
}
