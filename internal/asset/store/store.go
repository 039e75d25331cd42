// Package store implements the per-owner embedded relational storage
// backend (§3.2-§3.3, §4.2): open/backup/recover, transactional mutation,
// equality+pagination query, and idempotent schema evolution. The engine is
// modernc.org/sqlite, the example pack's only pure-Go (CGO-free) embedded
// SQL engine, matching "embedded relational store" from §1.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/assetsvc/assetsvc/internal/asset/asseterr"
)

// CurrentSchemaVersion is the latest known DB schema version (§4.2).
const CurrentSchemaVersion = 1

const createTableSQL = `
CREATE TABLE IF NOT EXISTS assets (
	id                    INTEGER PRIMARY KEY AUTOINCREMENT,
	secret                BLOB,
	alias                 TEXT NOT NULL,
	owner                 TEXT NOT NULL,
	owner_type            INTEGER NOT NULL,
	group_id              BLOB,
	sync_type             INTEGER NOT NULL,
	accessibility         INTEGER NOT NULL,
	auth_type             INTEGER NOT NULL,
	require_password_set  INTEGER NOT NULL,
	is_persistent         INTEGER NOT NULL,
	create_time           TEXT NOT NULL,
	update_time           TEXT NOT NULL,
	version               INTEGER NOT NULL,
	local_status          INTEGER NOT NULL,
	sync_status           INTEGER NOT NULL,
	wrap_type             INTEGER NOT NULL,
	critical1 BLOB, critical2 BLOB, critical3 BLOB, critical4 BLOB,
	normal1 BLOB, normal2 BLOB, normal3 BLOB, normal4 BLOB,
	normal_local1 BLOB, normal_local2 BLOB, normal_local3 BLOB, normal_local4 BLOB,
	delete_type           INTEGER NOT NULL DEFAULT 0,
	UNIQUE(owner, alias)
);

CREATE TABLE IF NOT EXISTS cloud_adapt (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	origin_id INTEGER NOT NULL,
	cloud_meta BLOB
);
`

const allColumns = `id, secret, alias, owner, owner_type, group_id, sync_type, accessibility,
	auth_type, require_password_set, is_persistent, create_time, update_time, version,
	local_status, sync_status, wrap_type,
	critical1, critical2, critical3, critical4,
	normal1, normal2, normal3, normal4,
	normal_local1, normal_local2, normal_local3, normal_local4,
	delete_type`

// Store wraps one owner-scoped sqlite file, per §3.3.
type Store struct {
	path   string
	db     *sql.DB
}

// Open opens path, verifying it with an integrity probe (§4.2). On failure
// it restores from path+".backup"; if that also fails, the store is
// truncated and recreated empty.
func Open(path string) (*Store, error) {
	s, err := openRaw(path)
	if err != nil {
		return nil, err
	}
	if probeErr := s.integrityCheck(); probeErr != nil {
		_ = s.db.Close()
		if restoreErr := restoreFromBackup(path); restoreErr != nil {
			// Both main and backup are bad: recreate empty.
			_ = os.Remove(path)
			s, err = openRaw(path)
			if err != nil {
				return nil, asseterr.Wrap(asseterr.DataCorrupted, err, "recreating store %s after backup restore failed", path)
			}
		} else {
			s, err = openRaw(path)
			if err != nil {
				return nil, asseterr.Wrap(asseterr.DataCorrupted, err, "reopening store %s after backup restore", path)
			}
		}
	}
	if err := s.ensureSchema(); err != nil {
		_ = s.db.Close()
		return nil, err
	}
	return s, nil
}

func openRaw(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, asseterr.Wrap(asseterr.FileOperationError, err, "creating store directory for %s", path)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, asseterr.Wrap(asseterr.DatabaseError, err, "opening store %s", path)
	}
	db.SetMaxOpenConns(1) // §4.2: single per-file mutex model, no reader/writer split
	return &Store{path: path, db: db}, nil
}

func (s *Store) integrityCheck() error {
	var result string
	if err := s.db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return err
	}
	if result != "ok" {
		return fmt.Errorf("integrity_check reported %q", result)
	}
	return nil
}

func restoreFromBackup(path string) error {
	backup := path + ".backup"
	if _, err := os.Stat(backup); err != nil {
		return err
	}
	tmp, err := copyFile(backup, path+".restoring")
	if err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (s *Store) ensureSchema() error {
	if _, err := s.db.Exec(createTableSQL); err != nil {
		return asseterr.Wrap(asseterr.DatabaseError, err, "creating schema for %s", s.path)
	}
	return runMigrations(s.db)
}

// Close releases the underlying file handle.
func (s *Store) Close() error { return s.db.Close() }

// Path returns the store's file path.
func (s *Store) Path() string { return s.path }

// Backup atomically replaces <path>.backup with the current main file,
// called after a successful Commit (§4.2).
func (s *Store) Backup() error {
	tmp := s.path + ".backup.tmp"
	if _, err := copyFile(s.path, tmp); err != nil {
		return asseterr.Wrap(asseterr.FileOperationError, err, "copying %s for backup", s.path)
	}
	if err := os.Rename(tmp, s.path+".backup"); err != nil {
		return asseterr.Wrap(asseterr.FileOperationError, err, "promoting backup for %s", s.path)
	}
	return nil
}

func copyFile(src, dst string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	defer out.Close()
	if _, err := out.ReadFrom(in); err != nil {
		return "", err
	}
	return dst, nil
}

// Txn wraps a single multi-row mutation, per §4.2.
type Txn struct {
	tx *sql.Tx
	s  *Store
}

func (s *Store) BeginTxn(ctx context.Context) (*Txn, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, asseterr.Wrap(asseterr.DatabaseError, err, "beginning transaction on %s", s.path)
	}
	return &Txn{tx: tx, s: s}, nil
}

// Commit commits the sqlite transaction then atomically refreshes the
// backup copy, per §4.2's durability contract.
func (t *Txn) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return asseterr.Wrap(asseterr.DatabaseError, err, "committing transaction on %s", t.s.path)
	}
	return t.s.Backup()
}

func (t *Txn) Rollback() error {
	if err := t.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return asseterr.Wrap(asseterr.DatabaseError, err, "rolling back transaction on %s", t.s.path)
	}
	return nil
}

// execer is satisfied by both *sql.DB and *sql.Tx, letting every mutation
// method work either standalone or inside an explicit Txn.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) exec(t *Txn) execer {
	if t != nil {
		return t.tx
	}
	return s.db
}

// Insert adds row, failing with Duplicated if (owner, alias) collides with
// a live (non-tombstone) row, per §4.6.
func (s *Store) Insert(ctx context.Context, t *Txn, row Row) (int64, error) {
	var existingStatus sql.NullInt64
	err := s.exec(t).QueryRowContext(ctx,
		`SELECT sync_status FROM assets WHERE owner = ? AND alias = ?`, row.Owner, row.Alias,
	).Scan(&existingStatus)
	if err == nil && SyncStatus(existingStatus.Int64) != SyncDel {
		return 0, asseterr.New(asseterr.Duplicated, "owner/alias already exists")
	}

	res, err := s.exec(t).ExecContext(ctx, insertSQL, insertArgs(row)...)
	if err != nil {
		return 0, asseterr.Wrap(asseterr.DatabaseError, err, "inserting row")
	}
	return res.LastInsertId()
}

// Replace performs an unconditional upsert keyed by cond (§4.2): delete any
// row matching cond, then insert row.
func (s *Store) Replace(ctx context.Context, t *Txn, cond Condition, row Row) (int64, error) {
	clause, args := cond.build()
	if _, err := s.exec(t).ExecContext(ctx, "DELETE FROM assets WHERE "+clause, args...); err != nil {
		return 0, asseterr.Wrap(asseterr.DatabaseError, err, "replacing row (delete phase)")
	}
	res, err := s.exec(t).ExecContext(ctx, insertSQL, insertArgs(row)...)
	if err != nil {
		return 0, asseterr.Wrap(asseterr.DatabaseError, err, "replacing row (insert phase)")
	}
	return res.LastInsertId()
}

const insertSQL = `INSERT INTO assets (
	secret, alias, owner, owner_type, group_id, sync_type, accessibility,
	auth_type, require_password_set, is_persistent, create_time, update_time, version,
	local_status, sync_status, wrap_type,
	critical1, critical2, critical3, critical4,
	normal1, normal2, normal3, normal4,
	normal_local1, normal_local2, normal_local3, normal_local4,
	delete_type
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func insertArgs(r Row) []any {
	return []any{
		r.Secret, r.Alias, r.Owner, r.OwnerType, nullableBytes(r.GroupID), r.SyncType, r.Accessibility,
		r.AuthType, boolToInt(r.RequirePasswordSet), boolToInt(r.IsPersistent), r.CreateTime, r.UpdateTime, r.Version,
		int(r.LocalStatus), int(r.SyncStatus), r.WrapType,
		nullableBytes(r.Critical[0]), nullableBytes(r.Critical[1]), nullableBytes(r.Critical[2]), nullableBytes(r.Critical[3]),
		nullableBytes(r.Normal[0]), nullableBytes(r.Normal[1]), nullableBytes(r.Normal[2]), nullableBytes(r.Normal[3]),
		nullableBytes(r.NormalLocal[0]), nullableBytes(r.NormalLocal[1]), nullableBytes(r.NormalLocal[2]), nullableBytes(r.NormalLocal[3]),
		r.DeleteType,
	}
}

func nullableBytes(b []byte) any {
	if b == nil {
		return nil
	}
	return b
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Update sets every column named in sets (a nil value writes NULL) on the
// rows matching cond, returning the affected row count, per §4.2.
func (s *Store) Update(ctx context.Context, t *Txn, cond Condition, sets map[string]any) (int64, error) {
	if len(sets) == 0 {
		return 0, nil
	}
	cols := make([]string, 0, len(sets))
	args := make([]any, 0, len(sets))
	for c, v := range sets {
		cols = append(cols, c+" = ?")
		args = append(args, v)
	}
	clause, whereArgs := cond.build()
	query := fmt.Sprintf("UPDATE assets SET %s WHERE %s", joinComma(cols), clause)
	args = append(args, whereArgs...)

	res, err := s.exec(t).ExecContext(ctx, query, args...)
	if err != nil {
		return 0, asseterr.Wrap(asseterr.DatabaseError, err, "updating rows")
	}
	return res.RowsAffected()
}

func joinComma(cols []string) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += c
	}
	return out
}

// Delete removes rows matching cond, returning the affected row count,
// per §4.2. It takes no separate reverse (exclusion) condition; cond alone
// selects the rows.
func (s *Store) Delete(ctx context.Context, t *Txn, cond Condition) (int64, error) {
	clause, args := cond.build()
	res, err := s.exec(t).ExecContext(ctx, "DELETE FROM assets WHERE "+clause, args...)
	if err != nil {
		return 0, asseterr.Wrap(asseterr.DatabaseError, err, "deleting rows")
	}
	return res.RowsAffected()
}

// Query returns rows matching cond, shaped by opts, per §4.2.
func (s *Store) Query(ctx context.Context, t *Txn, cond Condition, opts QueryOptions) ([]Row, error) {
	clause, args := cond.build()
	if opts.RawWhereSuffix != "" {
		clause += " " + opts.RawWhereSuffix
	}
	query := "SELECT " + allColumns + " FROM assets WHERE " + clause
	if len(opts.OrderBy) > 0 {
		dir := "ASC"
		if opts.Descending {
			dir = "DESC"
		}
		query += " ORDER BY " + joinComma(opts.OrderBy) + " " + dir
	}
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", opts.Offset)
	}

	rows, err := s.exec(t).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, asseterr.Wrap(asseterr.DatabaseError, err, "querying rows")
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, asseterr.Wrap(asseterr.DatabaseError, err, "scanning row")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRow(rows *sql.Rows) (Row, error) {
	var r Row
	var groupID, c1, c2, c3, c4, n1, n2, n3, n4, l1, l2, l3, l4 []byte
	var reqPwd, isPersistent int
	err := rows.Scan(
		&r.ID, &r.Secret, &r.Alias, &r.Owner, &r.OwnerType, &groupID, &r.SyncType, &r.Accessibility,
		&r.AuthType, &reqPwd, &isPersistent, &r.CreateTime, &r.UpdateTime, &r.Version,
		&r.LocalStatus, &r.SyncStatus, &r.WrapType,
		&c1, &c2, &c3, &c4,
		&n1, &n2, &n3, &n4,
		&l1, &l2, &l3, &l4,
		&r.DeleteType,
	)
	if err != nil {
		return Row{}, err
	}
	r.GroupID = groupID
	r.RequirePasswordSet = reqPwd != 0
	r.IsPersistent = isPersistent != 0
	r.Critical = [4][]byte{c1, c2, c3, c4}
	r.Normal = [4][]byte{n1, n2, n3, n4}
	r.NormalLocal = [4][]byte{l1, l2, l3, l4}
	return r, nil
}

// Count returns the number of rows matching cond.
func (s *Store) Count(ctx context.Context, t *Txn, cond Condition) (int64, error) {
	clause, args := cond.build()
	var n int64
	err := s.exec(t).QueryRowContext(ctx, "SELECT COUNT(*) FROM assets WHERE "+clause, args...).Scan(&n)
	if err != nil {
		return 0, asseterr.Wrap(asseterr.DatabaseError, err, "counting rows")
	}
	return n, nil
}

// Exists reports whether any row matches cond.
func (s *Store) Exists(ctx context.Context, t *Txn, cond Condition) (bool, error) {
	n, err := s.Count(ctx, t, cond)
	return n > 0, err
}

// CreateAdaptCloudTable idempotently creates the cloud-adaptation secondary
// table, per §4.2. It is already created by ensureSchema; exposed
// separately so callers can invoke it explicitly after a legacy upgrade.
func (s *Store) CreateAdaptCloudTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS cloud_adapt (
		id INTEGER PRIMARY KEY AUTOINCREMENT, origin_id INTEGER NOT NULL, cloud_meta BLOB
	)`)
	if err != nil {
		return asseterr.Wrap(asseterr.DatabaseError, err, "creating cloud adapt table")
	}
	return nil
}
