// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package schema

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/gridguyz/patcher/internal/db/schema/migration"
	"github.com/gridguyz/patcher/internal/errors"
)

// fakeState is everything the fake database keeps, so a transaction can
// snapshot and restore it as a whole.
type fakeState struct {
	schemas    map[string]bool
	tables     map[string]map[string]migration.Record
	executed   []string
	searchPath string
}

func (s fakeState) clone() fakeState {
	c := fakeState{
		schemas:    maps.Clone(s.schemas),
		tables:     make(map[string]map[string]migration.Record, len(s.tables)),
		executed:   slices.Clone(s.executed),
		searchPath: s.searchPath,
	}
	for k, v := range s.tables {
		c.tables[k] = maps.Clone(v)
	}
	return c
}

// fakeDriver is an in memory database for the patcher. Migration files are
// recorded instead of executed; a file containing FAIL returns an error.
type fakeDriver struct {
	state     fakeState
	snapshots []fakeState
	multisite bool
	tenants   []string

	begins, commits, rollbacks int
	lockErr                    error
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		state: fakeState{
			schemas:    map[string]bool{"public": true},
			tables:     map[string]map[string]migration.Record{},
			searchPath: `"public"`,
		},
	}
}

func (d *fakeDriver) depth() int { return len(d.snapshots) }

func (d *fakeDriver) Begin(context.Context) error {
	d.begins++
	d.snapshots = append(d.snapshots, d.state.clone())
	return nil
}

func (d *fakeDriver) Commit(context.Context) error {
	if d.depth() == 0 {
		return errors.New(errors.MigrationIntegrity, "fake.Commit", "no pending transaction")
	}
	d.commits++
	d.snapshots = d.snapshots[:d.depth()-1]
	return nil
}

func (d *fakeDriver) Rollback(context.Context) error {
	if d.depth() == 0 {
		return errors.New(errors.MigrationIntegrity, "fake.Rollback", "no pending transaction")
	}
	d.rollbacks++
	d.state = d.snapshots[d.depth()-1]
	d.snapshots = d.snapshots[:d.depth()-1]
	return nil
}

func (d *fakeDriver) RollbackAll(ctx context.Context) error {
	if d.depth() == 0 {
		return nil
	}
	d.snapshots = d.snapshots[:1]
	return d.Rollback(ctx)
}

func (d *fakeDriver) TryLock(context.Context) error { return d.lockErr }

func (d *fakeDriver) Executor() migration.Executor { return nil }

func (d *fakeDriver) head() string {
	first, _, _ := strings.Cut(d.state.searchPath, ",")
	return strings.Trim(strings.TrimSpace(first), `"`)
}

func (d *fakeDriver) SwitchSchema(_ context.Context, schema string) (string, bool, error) {
	if d.head() == schema {
		return "", false, nil
	}
	prev := d.state.searchPath
	_, rest, found := strings.Cut(prev, ",")
	d.state.searchPath = fmt.Sprintf("%q", schema)
	if found {
		d.state.searchPath += "," + rest
	}
	return prev, true, nil
}

func (d *fakeDriver) SetSearchPath(_ context.Context, path string) error {
	d.state.searchPath = path
	return nil
}

func (d *fakeDriver) PrependSearchPath(_ context.Context, schema string) error {
	d.state.searchPath = fmt.Sprintf("%q, %s", schema, d.state.searchPath)
	return nil
}

func (d *fakeDriver) Run(_ context.Context, name string, r io.Reader) error {
	if d.depth() == 0 {
		return errors.New(errors.MigrationIntegrity, "fake.Run", "no pending transaction")
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if strings.Contains(string(b), "FAIL") {
		return errors.New(errors.MigrationFailed, "fake.Run", fmt.Sprintf("migration %s failed", name))
	}
	d.state.executed = append(d.state.executed, d.head()+":"+name)
	return nil
}

func (d *fakeDriver) Close() error { return nil }

func (d *fakeDriver) EnsureSchema(_ context.Context, schema string) error {
	d.state.schemas[schema] = true
	return nil
}

func tableKey(schema string) string {
	if schema == "" {
		return "public"
	}
	return schema
}

func (d *fakeDriver) EnsureVersionTable(_ context.Context, schema string) error {
	if _, ok := d.state.tables[tableKey(schema)]; !ok {
		d.state.tables[tableKey(schema)] = map[string]migration.Record{}
	}
	return nil
}

func (d *fakeDriver) Records(_ context.Context, schema string) ([]migration.Record, error) {
	t, ok := d.state.tables[tableKey(schema)]
	if !ok {
		return nil, errors.New(errors.MissingTable, "fake.Records", "missing table")
	}
	var recs []migration.Record
	for _, r := range t {
		recs = append(recs, r)
	}
	return recs, nil
}

func (d *fakeDriver) InsertVersion(_ context.Context, schema string, r migration.Record) error {
	t := d.state.tables[tableKey(schema)]
	if _, ok := t[r.Section]; ok {
		return errors.New(errors.NotUnique, "fake.InsertVersion", "duplicate section")
	}
	t[r.Section] = r
	return nil
}

func (d *fakeDriver) UpdateVersion(_ context.Context, schema string, r migration.Record) error {
	t := d.state.tables[tableKey(schema)]
	if _, ok := t[r.Section]; !ok {
		return errors.New(errors.MigrationIntegrity, "fake.UpdateVersion", "missing row")
	}
	t[r.Section] = r
	return nil
}

func (d *fakeDriver) DeleteVersion(_ context.Context, schema, section string) error {
	delete(d.state.tables[tableKey(schema)], section)
	return nil
}

func (d *fakeDriver) TableExists(_ context.Context, schema, table string) (bool, error) {
	return d.multisite && schema == "_central" && table == "site", nil
}

func (d *fakeDriver) SiteSchemas(context.Context) ([]string, error) {
	return d.tenants, nil
}

// record returns the committed bookkeeping row of section in schema.
func (d *fakeDriver) record(schema, section string) (migration.Record, bool) {
	r, ok := d.state.tables[tableKey(schema)][section]
	return r, ok
}
