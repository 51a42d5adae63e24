// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

// Package migration holds the types shared by the schema patcher and its
// collaborators: versions, migration files, bookkeeping records and the
// hook and observer contracts.
package migration

import (
	"context"
	"database/sql"
	"fmt"
)

// Kind is the kind of a migration file. Schema files are applied before data
// files for the same hop.
type Kind string

const (
	Schema Kind = "schema"
	Data   Kind = "data"
	Fix    Kind = "fix"
)

// Order returns the position of the kind within a hop.
func (k Kind) Order() int {
	if k == Schema {
		return 0
	}
	return 1
}

// File is a patch file named <kind>.<from>-<to>.sql which moves a section
// from one version to another.
type File struct {
	Name string
	Path string
	Kind Kind
	From Version
	To   Version
}

// IsUpgrade reports whether the file moves a section forward.
func (f File) IsUpgrade() bool {
	return f.To.Compare(f.From) > 0
}

func (f File) String() string {
	return fmt.Sprintf("%s (%s %s -> %s)", f.Path, f.Kind, f.From, f.To)
}

// FixFile is a file named fix.<version>-<index>.sql which corrects an
// installed version in place, without changing the recorded version.
type FixFile struct {
	Name    string
	Path    string
	Version Version
	Index   int
}

// Record is a row of the per-schema bookkeeping table.
type Record struct {
	Section string
	Version Version
	Fix     int
}

// Executor runs statements on the connection owned by the patcher. It is
// satisfied by *sql.Tx, *sql.Conn and the patcher's nested connection.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Hook lets a package run its own logic around a patch batch. Each call runs
// inside its own savepoint; returning an error aborts the whole batch. A nil
// to means the batch migrates every section as far as its files allow.
type Hook interface {
	BeforePatch(ctx context.Context, exec Executor, from Version, to *Version) error
	AfterPatch(ctx context.Context, exec Executor, from Version, to *Version) error
}
