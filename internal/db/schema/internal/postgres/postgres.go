// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

// Package postgres is the driver used by the schema patcher. It owns the
// nested connection of one run and knows every statement the patcher issues
// besides the migration files themselves.
package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"io"
	"strings"

	"github.com/gridguyz/patcher/internal/db"
	"github.com/gridguyz/patcher/internal/db/schema/migration"
	"github.com/gridguyz/patcher/internal/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres is a driver usable by a schema.Patcher.
// This struct is not thread safe.
type Postgres struct {
	conn *db.NestedConn
}

// New creates a Postgres with the provided sql.DB verified as connectable.
func New(ctx context.Context, d *sql.DB) (*Postgres, error) {
	const op = "postgres.New"
	if d == nil {
		return nil, errors.New(errors.InvalidParameter, op, "missing db")
	}
	if err := d.PingContext(ctx); err != nil {
		return nil, errors.Wrap(err, op)
	}
	conn, err := db.NewNestedConn(ctx, d)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}
	return &Postgres{conn: conn}, nil
}

// Executor returns the executor migration hooks run their statements on.
func (p *Postgres) Executor() migration.Executor {
	return p.conn
}

// Begin starts the outer transaction, or a savepoint when one is open.
func (p *Postgres) Begin(ctx context.Context) error {
	const op = "postgres.(Postgres).Begin"
	if err := p.conn.Begin(ctx); err != nil {
		return errors.Wrap(err, op)
	}
	return nil
}

// Commit commits the innermost open transaction level.
func (p *Postgres) Commit(ctx context.Context) error {
	const op = "postgres.(Postgres).Commit"
	if err := p.conn.Commit(ctx); err != nil {
		return errors.Wrap(err, op)
	}
	return nil
}

// Rollback rolls back the innermost open transaction level.
func (p *Postgres) Rollback(ctx context.Context) error {
	const op = "postgres.(Postgres).Rollback"
	if err := p.conn.Rollback(ctx); err != nil {
		return errors.Wrap(err, op)
	}
	return nil
}

// RollbackAll rolls back the outer transaction and every savepoint in it.
func (p *Postgres) RollbackAll(ctx context.Context) error {
	const op = "postgres.(Postgres).RollbackAll"
	if err := p.conn.RollbackAll(ctx); err != nil {
		return errors.Wrap(err, op)
	}
	return nil
}

// TryLock attempts to take a transaction scoped exclusive advisory lock. The
// lock is released when the outer transaction ends.
// https://www.postgresql.org/docs/current/explicit-locking.html#ADVISORY-LOCKS
func (p *Postgres) TryLock(ctx context.Context) error {
	const op = "postgres.(Postgres).TryLock"
	if p.conn.Depth() == 0 {
		return errors.New(errors.MigrationIntegrity, op, "no pending transaction")
	}
	var gotLock bool
	if err := p.conn.QueryRowContext(ctx, tryXactLock, patchAccessLockId).Scan(&gotLock); err != nil {
		return errors.Wrap(err, op)
	}
	if !gotLock {
		return errors.New(errors.MigrationIntegrity, op, "another patch run holds the lock")
	}
	return nil
}

// CurrentSchemas returns the schemas of the effective search path.
func (p *Postgres) CurrentSchemas(ctx context.Context) ([]string, error) {
	const op = "postgres.(Postgres).CurrentSchemas"
	rows, err := p.conn.QueryContext(ctx, currentSchemas)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}
	defer rows.Close()
	var schemas []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, errors.Wrap(err, op)
		}
		schemas = append(schemas, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, op)
	}
	return schemas, nil
}

// SearchPath returns the raw search_path setting.
func (p *Postgres) SearchPath(ctx context.Context) (string, error) {
	const op = "postgres.(Postgres).SearchPath"
	var s string
	if err := p.conn.QueryRowContext(ctx, showSearchPath).Scan(&s); err != nil {
		return "", errors.Wrap(err, op)
	}
	return s, nil
}

// SetSearchPath replaces the search path with the given raw setting.
func (p *Postgres) SetSearchPath(ctx context.Context, path string) error {
	const op = "postgres.(Postgres).SetSearchPath"
	var got string
	if err := p.conn.QueryRowContext(ctx, setSearchPath, path).Scan(&got); err != nil {
		return errors.Wrap(err, op, errors.WithMsg(fmt.Sprintf("search_path %q", path)))
	}
	return nil
}

// PrependSearchPath puts schema in front of the effective search path.
func (p *Postgres) PrependSearchPath(ctx context.Context, schema string) error {
	const op = "postgres.(Postgres).PrependSearchPath"
	current, err := p.CurrentSchemas(ctx)
	if err != nil {
		return errors.Wrap(err, op)
	}
	path := []string{schema}
	for _, s := range current {
		if s != schema {
			path = append(path, s)
		}
	}
	if err := p.SetSearchPath(ctx, QuoteSearchPath(path)); err != nil {
		return errors.Wrap(err, op)
	}
	return nil
}

// SwitchSchema makes schema the head of the search path, replacing the
// current head. It returns the previous raw search path and whether anything
// changed; an unchanged path needs no restore.
func (p *Postgres) SwitchSchema(ctx context.Context, schema string) (string, bool, error) {
	const op = "postgres.(Postgres).SwitchSchema"
	if schema == "" {
		return "", false, errors.New(errors.InvalidParameter, op, "missing schema")
	}
	current, err := p.CurrentSchemas(ctx)
	if err != nil {
		return "", false, errors.Wrap(err, op)
	}
	if len(current) > 0 && current[0] == schema {
		return "", false, nil
	}
	previous, err := p.SearchPath(ctx)
	if err != nil {
		return "", false, errors.Wrap(err, op)
	}
	path := []string{schema}
	if len(current) > 1 {
		path = append(path, current[1:]...)
	}
	if err := p.SetSearchPath(ctx, QuoteSearchPath(path)); err != nil {
		return "", false, errors.Wrap(err, op)
	}
	return previous, true, nil
}

// QuoteSearchPath renders schemas as a search_path value.
func QuoteSearchPath(schemas []string) string {
	quoted := make([]string, 0, len(schemas))
	for _, s := range schemas {
		quoted = append(quoted, pgx.Identifier{s}.Sanitize())
	}
	return strings.Join(quoted, ", ")
}

// TableExists reports whether table exists in schema. An empty schema means
// the current schema.
func (p *Postgres) TableExists(ctx context.Context, schema, table string) (bool, error) {
	const op = "postgres.(Postgres).TableExists"
	var exists bool
	if err := p.conn.QueryRowContext(ctx, tableExists, schema, table).Scan(&exists); err != nil {
		return false, errors.Wrap(err, op)
	}
	return exists, nil
}

// SiteSchemas lists the tenant schemas registered in the central site table.
func (p *Postgres) SiteSchemas(ctx context.Context) ([]string, error) {
	const op = "postgres.(Postgres).SiteSchemas"
	rows, err := p.conn.QueryContext(ctx, siteSchemas)
	if err != nil {
		if errors.IsMissingTableError(err) {
			return nil, errors.Wrap(err, op, errors.WithCode(errors.MissingTable))
		}
		return nil, errors.Wrap(err, op)
	}
	defer rows.Close()
	var schemas []string
	for rows.Next() {
		var s sql.NullString
		if err := rows.Scan(&s); err != nil {
			return nil, errors.Wrap(err, op)
		}
		if s.Valid && s.String != "" {
			schemas = append(schemas, s.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, op)
	}
	return schemas, nil
}

// EnsureSchema creates schema when it does not exist yet.
func (p *Postgres) EnsureSchema(ctx context.Context, schema string) error {
	const op = "postgres.(Postgres).EnsureSchema"
	if schema == "" {
		return errors.New(errors.InvalidParameter, op, "missing schema")
	}
	if _, err := p.conn.ExecContext(ctx, fmt.Sprintf(createSchema, pgx.Identifier{schema}.Sanitize())); err != nil {
		return errors.Wrap(err, op)
	}
	return nil
}

func versionTable(schema string) string {
	if schema == "" {
		return pgx.Identifier{VersionTable}.Sanitize()
	}
	return pgx.Identifier{schema, VersionTable}.Sanitize()
}

// EnsureVersionTable ensures that the bookkeeping table exists in schema and
// is in the correct state. Tables written by older revisions lack the fix
// column, which is added in place.
func (p *Postgres) EnsureVersionTable(ctx context.Context, schema string) error {
	const op = "postgres.(Postgres).EnsureVersionTable"
	table := versionTable(schema)
	if _, err := p.conn.ExecContext(ctx, fmt.Sprintf(createVersionTable, table)); err != nil {
		return errors.Wrap(err, op)
	}

	hasFix := false
	if err := p.conn.QueryRowContext(ctx, columnExists, schema, VersionTable, "fix").Scan(&hasFix); err != nil {
		return errors.Wrap(err, op)
	}
	if !hasFix {
		if _, err := p.conn.ExecContext(ctx, fmt.Sprintf(addFixColumn, table)); err != nil {
			return errors.Wrap(err, op)
		}
	}
	return nil
}

// Records loads every bookkeeping row of schema.
func (p *Postgres) Records(ctx context.Context, schema string) ([]migration.Record, error) {
	const op = "postgres.(Postgres).Records"
	rows, err := p.conn.QueryContext(ctx, fmt.Sprintf(selectRecords, versionTable(schema)))
	if err != nil {
		return nil, errors.Wrap(err, op)
	}
	defer rows.Close()
	var records []migration.Record
	for rows.Next() {
		var section, version string
		var fix int
		if err := rows.Scan(&section, &version, &fix); err != nil {
			return nil, errors.Wrap(err, op)
		}
		v, err := migration.ParseVersion(version)
		if err != nil {
			return nil, errors.Wrap(err, op, errors.WithCode(errors.MigrationIntegrity),
				errors.WithMsg(fmt.Sprintf("section %q in schema %q has an invalid recorded version", section, schema)))
		}
		records = append(records, migration.Record{Section: section, Version: v, Fix: fix})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, op)
	}
	return records, nil
}

// InsertVersion adds the bookkeeping row of section.
func (p *Postgres) InsertVersion(ctx context.Context, schema string, r migration.Record) error {
	const op = "postgres.(Postgres).InsertVersion"
	if _, err := p.conn.ExecContext(ctx, fmt.Sprintf(insertVersion, versionTable(schema)), r.Section, r.Version.String(), r.Fix); err != nil {
		if errors.IsUniqueError(err) {
			return errors.Wrap(err, op, errors.WithCode(errors.NotUnique))
		}
		return errors.Wrap(err, op)
	}
	return nil
}

// UpdateVersion rewrites the bookkeeping row of section.
func (p *Postgres) UpdateVersion(ctx context.Context, schema string, r migration.Record) error {
	const op = "postgres.(Postgres).UpdateVersion"
	res, err := p.conn.ExecContext(ctx, fmt.Sprintf(updateVersion, versionTable(schema)), r.Section, r.Version.String(), r.Fix)
	if err != nil {
		return errors.Wrap(err, op)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.New(errors.MigrationIntegrity, op, fmt.Sprintf("no bookkeeping row for section %q in schema %q", r.Section, schema))
	}
	return nil
}

// DeleteVersion removes the bookkeeping row of section.
func (p *Postgres) DeleteVersion(ctx context.Context, schema, section string) error {
	const op = "postgres.(Postgres).DeleteVersion"
	if _, err := p.conn.ExecContext(ctx, fmt.Sprintf(deleteVersion, versionTable(schema)), section); err != nil {
		return errors.Wrap(err, op)
	}
	return nil
}

// Run executes the statements read from r. name identifies the file in
// error messages. This should always run inside Begin and Commit.
func (p *Postgres) Run(ctx context.Context, name string, r io.Reader) error {
	const op = "postgres.(Postgres).Run"
	if p.conn.Depth() == 0 {
		return errors.New(errors.MigrationIntegrity, op, "no pending transaction")
	}
	migr, err := io.ReadAll(r)
	if err != nil {
		return errors.Wrap(err, op, errors.WithCode(errors.Io))
	}
	query := string(migr)
	if strings.TrimSpace(query) == "" {
		return nil
	}

	if _, err := p.conn.ExecContext(ctx, query); err != nil {
		var pgErr *pgconn.PgError
		if stderrors.As(err, &pgErr) {
			var line uint
			var col uint
			var lineColOK bool
			if pgErr.Position != 0 {
				line, col, lineColOK = computeLineFromPos(query, int(pgErr.Position))
			}
			message := fmt.Sprintf("migration %s failed", name)
			if lineColOK {
				message = fmt.Sprintf("%s on line %d (column %d)", message, line, col)
			}
			if pgErr.Detail != "" {
				message = fmt.Sprintf("%s, %s", message, pgErr.Detail)
			}
			return errors.Wrap(err, op, errors.WithCode(errors.MigrationFailed), errors.WithMsg(message))
		}
		return errors.Wrap(err, op, errors.WithCode(errors.MigrationFailed), errors.WithMsg(fmt.Sprintf("migration %s failed", name)))
	}
	return nil
}

// Close rolls back anything left open and releases the connection.
func (p *Postgres) Close() error {
	return p.conn.Close()
}

func computeLineFromPos(s string, pos int) (line uint, col uint, ok bool) {
	// replace crlf with lf
	s = strings.ReplaceAll(s, "\r\n", "\n")
	// pg docs: pos uses index 1 for the first character, and positions are measured in characters not bytes
	runes := []rune(s)
	if pos > len(runes) {
		return 0, 0, false
	}
	sel := runes[:pos]
	line = uint(runesCount(sel, newLine) + 1)
	col = uint(pos - 1 - runesLastIndex(sel, newLine))
	return line, col, true
}

const newLine = '\n'

func runesCount(input []rune, target rune) int {
	var count int
	for _, r := range input {
		if r == target {
			count++
		}
	}
	return count
}

func runesLastIndex(input []rune, target rune) int {
	for i := len(input) - 1; i >= 0; i-- {
		if input[i] == target {
			return i
		}
	}
	return -1
}
