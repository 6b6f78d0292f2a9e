// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package sqlstore implements storage.Provider over database/sql, with
// dialect-aware SQL for sqlite, postgres and mysql (spec §4.1, §5 Domain
// Stack). A generic two-table schema (kv_store, kv_lists) backs every
// namespaced KV/list operation so one schema serves every backend this
// package registers.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/agentdock/agentdock-core/config"
	"github.com/agentdock/agentdock-core/memory"
	"github.com/agentdock/agentdock-core/storage"
)

func init() {
	storage.RegisterBackend(config.BackendSQLite, func(cfg config.StorageConfig) (storage.Provider, error) {
		return New("sqlite3", "sqlite", cfg.DSN, cfg.Namespace)
	})
	storage.RegisterBackend(config.BackendPostgres, func(cfg config.StorageConfig) (storage.Provider, error) {
		return New("postgres", "postgres", cfg.DSN, cfg.Namespace)
	})
	storage.RegisterBackend(config.BackendMySQL, func(cfg config.StorageConfig) (storage.Provider, error) {
		return New("mysql", "mysql", cfg.DSN, cfg.Namespace)
	})
}

// Provider is a database/sql-backed storage.Provider. Safe for concurrent
// use via *sql.DB's own connection pool; no additional locking is needed.
type Provider struct {
	db               *sql.DB
	dialect          string
	defaultNamespace string
}

// New opens dsn with driverName and initializes the shared schema.
// dialect is one of "sqlite", "postgres", "mysql" and governs placeholder
// style and upsert syntax.
func New(driverName, dialect, dsn, defaultNamespace string) (*Provider, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", driverName, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlstore: ping %s: %w", driverName, err)
	}

	p := &Provider{db: db, dialect: dialect, defaultNamespace: defaultNamespace}
	if err := p.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

func (p *Provider) initSchema() error {
	schema := `
CREATE TABLE IF NOT EXISTS kv_store (
    namespace   VARCHAR(255) NOT NULL,
    key         VARCHAR(512) NOT NULL,
    value       BLOB,
    expires_at  TIMESTAMP NULL,
    PRIMARY KEY (namespace, key)
);

CREATE TABLE IF NOT EXISTS kv_lists (
    namespace   VARCHAR(255) NOT NULL,
    key         VARCHAR(512) NOT NULL,
    list_key    VARCHAR(767) NOT NULL,
    position    INTEGER NOT NULL,
    value       BLOB,
    PRIMARY KEY (list_key, position)
);
`

	// BLOB is not a recognized type name in postgres; use BYTEA there.
	if p.dialect == "postgres" {
		schema = strings.ReplaceAll(schema, "BLOB", "BYTEA")
	}

	if _, err := p.db.Exec(schema); err != nil {
		return fmt.Errorf("sqlstore: init schema: %w", err)
	}
	return nil
}

// ph returns the dialect-appropriate positional placeholder for argument
// index n (1-based).
func (p *Provider) ph(n int) string {
	if p.dialect == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (p *Provider) ns(opts storage.Options) string {
	if opts.Namespace != "" {
		return opts.Namespace
	}
	return p.defaultNamespace
}

func (p *Provider) Name() string { return p.dialect }

func (p *Provider) Get(ctx context.Context, key string, opts storage.Options) ([]byte, bool, error) {
	query := fmt.Sprintf(
		"SELECT value FROM kv_store WHERE namespace = %s AND key = %s AND (expires_at IS NULL OR expires_at > %s)",
		p.ph(1), p.ph(2), p.ph(3))

	var value []byte
	err := p.db.QueryRowContext(ctx, query, p.ns(opts), key, storage.Now()).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlstore: get: %w", err)
	}
	return value, true, nil
}

func (p *Provider) Set(ctx context.Context, key string, value []byte, opts storage.Options) error {
	var expiresAt *time.Time
	if opts.TTLSeconds > 0 {
		t := storage.Now().Add(time.Duration(opts.TTLSeconds) * time.Second)
		expiresAt = &t
	}

	var query string
	switch p.dialect {
	case "postgres":
		query = fmt.Sprintf(`
INSERT INTO kv_store (namespace, key, value, expires_at) VALUES (%s, %s, %s, %s)
ON CONFLICT (namespace, key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`,
			p.ph(1), p.ph(2), p.ph(3), p.ph(4))
	case "mysql":
		query = `
INSERT INTO kv_store (namespace, key, value, expires_at) VALUES (?, ?, ?, ?)
ON DUPLICATE KEY UPDATE value = VALUES(value), expires_at = VALUES(expires_at)`
	default: // sqlite
		query = `
INSERT INTO kv_store (namespace, key, value, expires_at) VALUES (?, ?, ?, ?)
ON CONFLICT(namespace, key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`
	}

	if _, err := p.db.ExecContext(ctx, query, p.ns(opts), key, value, expiresAt); err != nil {
		return fmt.Errorf("sqlstore: set: %w", err)
	}
	return nil
}

func (p *Provider) Delete(ctx context.Context, key string, opts storage.Options) (bool, error) {
	query := fmt.Sprintf("DELETE FROM kv_store WHERE namespace = %s AND key = %s", p.ph(1), p.ph(2))
	res, err := p.db.ExecContext(ctx, query, p.ns(opts), key)
	if err != nil {
		return false, fmt.Errorf("sqlstore: delete: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (p *Provider) Exists(ctx context.Context, key string, opts storage.Options) (bool, error) {
	_, ok, err := p.Get(ctx, key, opts)
	return ok, err
}

func (p *Provider) GetMany(ctx context.Context, keys []string, opts storage.Options) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if v, ok, err := p.Get(ctx, k, opts); err != nil {
			return nil, err
		} else if ok {
			out[k] = v
		}
	}
	return out, nil
}

// SetMany runs inside a single transaction so a batch is atomic — either
// every key lands or none do (spec §4.1: "atomic per-batch where the
// backend supports transactions").
func (p *Provider) SetMany(ctx context.Context, items map[string][]byte, opts storage.Options) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlstore: set many: begin: %w", err)
	}
	defer tx.Rollback()

	for k, v := range items {
		if err := p.setTx(ctx, tx, k, v, opts); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlstore: set many: commit: %w", err)
	}
	return nil
}

func (p *Provider) setTx(ctx context.Context, tx *sql.Tx, key string, value []byte, opts storage.Options) error {
	var expiresAt *time.Time
	if opts.TTLSeconds > 0 {
		t := storage.Now().Add(time.Duration(opts.TTLSeconds) * time.Second)
		expiresAt = &t
	}

	var query string
	switch p.dialect {
	case "postgres":
		query = fmt.Sprintf(`
INSERT INTO kv_store (namespace, key, value, expires_at) VALUES (%s, %s, %s, %s)
ON CONFLICT (namespace, key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`,
			p.ph(1), p.ph(2), p.ph(3), p.ph(4))
	case "mysql":
		query = `
INSERT INTO kv_store (namespace, key, value, expires_at) VALUES (?, ?, ?, ?)
ON DUPLICATE KEY UPDATE value = VALUES(value), expires_at = VALUES(expires_at)`
	default:
		query = `
INSERT INTO kv_store (namespace, key, value, expires_at) VALUES (?, ?, ?, ?)
ON CONFLICT(namespace, key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`
	}
	if _, err := tx.ExecContext(ctx, query, p.ns(opts), key, value, expiresAt); err != nil {
		return fmt.Errorf("sqlstore: set many: %w", err)
	}
	return nil
}

func (p *Provider) DeleteMany(ctx context.Context, keys []string, opts storage.Options) (int, error) {
	count := 0
	for _, k := range keys {
		if existed, err := p.Delete(ctx, k, opts); err != nil {
			return count, err
		} else if existed {
			count++
		}
	}
	return count, nil
}

func (p *Provider) List(ctx context.Context, prefix string, opts storage.Options) ([]string, error) {
	query := fmt.Sprintf(
		"SELECT key FROM kv_store WHERE namespace = %s AND key LIKE %s AND (expires_at IS NULL OR expires_at > %s) ORDER BY key",
		p.ph(1), p.ph(2), p.ph(3))

	rows, err := p.db.QueryContext(ctx, query, p.ns(opts), escapeLikePrefix(prefix)+"%", storage.Now())
	if err != nil {
		return nil, fmt.Errorf("sqlstore: list: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("sqlstore: list scan: %w", err)
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// escapeLikePrefix escapes SQL LIKE metacharacters so a key containing %
// or _ cannot widen a prefix scan into unrelated keys.
func escapeLikePrefix(prefix string) string {
	r := strings.NewReplacer("\\", "\\\\", "%", "\\%", "_", "\\_")
	return r.Replace(prefix)
}

func (p *Provider) listKey(key string, opts storage.Options) string {
	return p.ns(opts) + "/" + key
}

func (p *Provider) GetList(ctx context.Context, key string, start, end int, opts storage.Options) ([][]byte, bool, error) {
	query := fmt.Sprintf(
		"SELECT value FROM kv_lists WHERE list_key = %s ORDER BY position", p.ph(1))
	rows, err := p.db.QueryContext(ctx, query, p.listKey(key, opts))
	if err != nil {
		return nil, false, fmt.Errorf("sqlstore: get list: %w", err)
	}
	defer rows.Close()

	var values [][]byte
	for rows.Next() {
		var v []byte
		if err := rows.Scan(&v); err != nil {
			return nil, false, fmt.Errorf("sqlstore: get list scan: %w", err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	if values == nil {
		return nil, false, nil
	}

	if end < 0 || end > len(values) {
		end = len(values)
	}
	if start < 0 {
		start = 0
	}
	if start > end {
		start = end
	}
	return values[start:end], true, nil
}

// SaveList replaces the whole list atomically: delete-then-reinsert inside
// one transaction so concurrent readers never observe a partially written
// list.
func (p *Provider) SaveList(ctx context.Context, key string, values [][]byte, opts storage.Options) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlstore: save list: begin: %w", err)
	}
	defer tx.Rollback()

	lk := p.listKey(key, opts)
	delQuery := fmt.Sprintf("DELETE FROM kv_lists WHERE list_key = %s", p.ph(1))
	if _, err := tx.ExecContext(ctx, delQuery, lk); err != nil {
		return fmt.Errorf("sqlstore: save list: clear: %w", err)
	}

	insQuery := fmt.Sprintf("INSERT INTO kv_lists (namespace, key, position, list_key, value) VALUES (%s, %s, %s, %s, %s)",
		p.ph(1), p.ph(2), p.ph(3), p.ph(4), p.ph(5))
	for i, v := range values {
		if _, err := tx.ExecContext(ctx, insQuery, p.ns(opts), key, i, lk, v); err != nil {
			return fmt.Errorf("sqlstore: save list: insert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlstore: save list: commit: %w", err)
	}
	return nil
}

func (p *Provider) DeleteList(ctx context.Context, key string, opts storage.Options) (bool, error) {
	query := fmt.Sprintf("DELETE FROM kv_lists WHERE list_key = %s", p.ph(1))
	res, err := p.db.ExecContext(ctx, query, p.listKey(key, opts))
	if err != nil {
		return false, fmt.Errorf("sqlstore: delete list: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (p *Provider) Clear(ctx context.Context, prefix string) error {
	kvQuery := fmt.Sprintf("DELETE FROM kv_store WHERE key LIKE %s", p.ph(1))
	if _, err := p.db.ExecContext(ctx, kvQuery, escapeLikePrefix(prefix)+"%"); err != nil {
		return fmt.Errorf("sqlstore: clear kv: %w", err)
	}
	listQuery := fmt.Sprintf("DELETE FROM kv_lists WHERE list_key LIKE %s", p.ph(1))
	if _, err := p.db.ExecContext(ctx, listQuery, escapeLikePrefix(prefix)+"%"); err != nil {
		return fmt.Errorf("sqlstore: clear lists: %w", err)
	}
	return nil
}

func (p *Provider) Destroy() error {
	return p.db.Close()
}

// AsMemoryOps satisfies memory.Capable via the same generic Engine the
// in-memory backend uses: SQL storage gives MemoryOps durability and
// cross-process sharing for free, with no backend-specific memory logic.
func (p *Provider) AsMemoryOps() (memory.Ops, bool) {
	return memory.NewEngine(p, nil), true
}
