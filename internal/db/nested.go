// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/gridguyz/patcher/internal/errors"
	"github.com/hashicorp/go-secure-stdlib/base62"
)

const savepointTokenLength = 12

// NestedConn layers savepoint based pseudo transactions under one real
// transaction on a single connection. The first Begin starts the real
// transaction; deeper calls create savepoints named <token>_<depth>.
// This struct is not thread safe.
type NestedConn struct {
	conn  *sql.Conn
	tx    *sql.Tx
	depth int
	token string
}

// NewNestedConn returns a NestedConn on a connection taken from db.
func NewNestedConn(ctx context.Context, db *sql.DB) (*NestedConn, error) {
	const op = "db.NewNestedConn"
	if db == nil {
		return nil, errors.New(errors.InvalidParameter, op, "missing db")
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}
	return newNestedConn(conn)
}

func newNestedConn(conn *sql.Conn) (*NestedConn, error) {
	const op = "db.newNestedConn"
	r, err := base62.Random(savepointTokenLength)
	if err != nil {
		return nil, errors.Wrap(err, op, errors.WithMsg("unable to generate savepoint token"))
	}
	return &NestedConn{
		conn:  conn,
		token: "tr_" + r,
	}, nil
}

// Depth returns the number of open transaction levels.
func (c *NestedConn) Depth() int {
	return c.depth
}

// Token returns the savepoint name prefix used by c.
func (c *NestedConn) Token() string {
	return c.token
}

func (c *NestedConn) savepoint(depth int) string {
	return fmt.Sprintf("%s_%d", c.token, depth)
}

// Begin opens the real transaction at depth 0 and a savepoint otherwise.
func (c *NestedConn) Begin(ctx context.Context) error {
	const op = "db.(NestedConn).Begin"
	if c.depth == 0 {
		tx, err := c.conn.BeginTx(ctx, nil)
		if err != nil {
			return errors.Wrap(err, op)
		}
		c.tx = tx
		c.depth++
		return nil
	}
	if _, err := c.tx.ExecContext(ctx, "savepoint "+c.savepoint(c.depth)); err != nil {
		return errors.Wrap(err, op)
	}
	c.depth++
	return nil
}

// Commit releases the innermost savepoint, or commits the real transaction
// when only the outermost level remains.
func (c *NestedConn) Commit(ctx context.Context) error {
	const op = "db.(NestedConn).Commit"
	if c.depth == 0 {
		return errors.New(errors.MigrationIntegrity, op, "no pending transaction")
	}
	c.depth--
	if c.depth > 0 {
		if _, err := c.tx.ExecContext(ctx, "release savepoint "+c.savepoint(c.depth)); err != nil {
			return errors.Wrap(err, op)
		}
		return nil
	}
	tx := c.tx
	c.tx = nil
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, op)
	}
	return nil
}

// Rollback undoes the work of the innermost level. At the outermost level
// the real transaction is rolled back, discarding everything done since the
// first Begin including released savepoints.
func (c *NestedConn) Rollback(ctx context.Context) error {
	const op = "db.(NestedConn).Rollback"
	if c.depth == 0 {
		return errors.New(errors.MigrationIntegrity, op, "no pending transaction")
	}
	c.depth--
	if c.depth > 0 {
		if _, err := c.tx.ExecContext(ctx, "rollback to savepoint "+c.savepoint(c.depth)); err != nil {
			return errors.Wrap(err, op)
		}
		return nil
	}
	tx := c.tx
	c.tx = nil
	if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return errors.Wrap(err, op)
	}
	return nil
}

// RollbackAll unwinds every open level by rolling back the real transaction.
// It is a no-op when no transaction is open.
func (c *NestedConn) RollbackAll(ctx context.Context) error {
	if c.depth == 0 {
		return nil
	}
	c.depth = 1
	return c.Rollback(ctx)
}

// ExecContext runs query inside the open transaction, or directly on the
// connection when none is open.
func (c *NestedConn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if c.tx != nil {
		return c.tx.ExecContext(ctx, query, args...)
	}
	return c.conn.ExecContext(ctx, query, args...)
}

// QueryContext runs query inside the open transaction, or directly on the
// connection when none is open.
func (c *NestedConn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if c.tx != nil {
		return c.tx.QueryContext(ctx, query, args...)
	}
	return c.conn.QueryContext(ctx, query, args...)
}

// QueryRowContext runs query inside the open transaction, or directly on the
// connection when none is open.
func (c *NestedConn) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	if c.tx != nil {
		return c.tx.QueryRowContext(ctx, query, args...)
	}
	return c.conn.QueryRowContext(ctx, query, args...)
}

// Close rolls back any open transaction and returns the connection to the
// pool.
func (c *NestedConn) Close() error {
	const op = "db.(NestedConn).Close"
	if err := c.RollbackAll(context.Background()); err != nil {
		_ = c.conn.Close()
		return errors.Wrap(err, op)
	}
	if err := c.conn.Close(); err != nil {
		return errors.Wrap(err, op)
	}
	return nil
}
