// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

// Package store keeps the per schema bookkeeping of installed section
// versions. Schemas and bookkeeping tables are created on first use, and all
// records of a schema are loaded once and served from memory afterwards.
package store

import (
	"context"
	"fmt"

	"github.com/gridguyz/patcher/internal/db/schema/migration"
	"github.com/gridguyz/patcher/internal/errors"
	"github.com/hashicorp/go-hclog"
)

// Driver is the subset of the postgres driver the store needs.
type Driver interface {
	EnsureSchema(ctx context.Context, schema string) error
	EnsureVersionTable(ctx context.Context, schema string) error
	Records(ctx context.Context, schema string) ([]migration.Record, error)
	InsertVersion(ctx context.Context, schema string, r migration.Record) error
	UpdateVersion(ctx context.Context, schema string, r migration.Record) error
	DeleteVersion(ctx context.Context, schema, section string) error
}

// Store caches bookkeeping records per schema. The empty schema name stands
// for the session's current schema and is never created.
// This struct is not thread safe.
type Store struct {
	driver   Driver
	logger   hclog.Logger
	observer migration.Observer

	ensured map[string]bool
	records map[string]map[string]migration.Record
}

// New creates a Store backed by d.
func New(d Driver, opt ...Option) (*Store, error) {
	const op = "store.New"
	if d == nil {
		return nil, errors.New(errors.InvalidParameter, op, "missing driver")
	}
	opts := getOpts(opt...)
	return &Store{
		driver:   d,
		logger:   opts.withLogger,
		observer: opts.withObserver,
		ensured:  make(map[string]bool),
		records:  make(map[string]map[string]migration.Record),
	}, nil
}

// Invalidate drops every cached schema and record.
func (s *Store) Invalidate() {
	s.ensured = make(map[string]bool)
	s.records = make(map[string]map[string]migration.Record)
}

func (s *Store) load(ctx context.Context, schema string) (map[string]migration.Record, error) {
	const op = "store.(Store).load"
	if recs, ok := s.records[schema]; ok {
		return recs, nil
	}
	if !s.ensured[schema] {
		if schema != "" {
			if err := s.driver.EnsureSchema(ctx, schema); err != nil {
				return nil, errors.Wrap(err, op)
			}
		}
		if err := s.driver.EnsureVersionTable(ctx, schema); err != nil {
			return nil, errors.Wrap(err, op)
		}
		s.ensured[schema] = true
	}
	rows, err := s.driver.Records(ctx, schema)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}
	recs := make(map[string]migration.Record, len(rows))
	for _, r := range rows {
		recs[r.Section] = r
	}
	s.records[schema] = recs
	return recs, nil
}

// CurrentVersion returns the record of section in schema. A section without a
// row is at the zero version with fix 0.
func (s *Store) CurrentVersion(ctx context.Context, schema, section string) (migration.Record, error) {
	const op = "store.(Store).CurrentVersion"
	recs, err := s.load(ctx, schema)
	if err != nil {
		return migration.Record{}, errors.Wrap(err, op, errors.WithMsg(fmt.Sprintf("schema %q", schema)))
	}
	if r, ok := recs[section]; ok {
		return r, nil
	}
	return migration.Record{Section: section, Version: migration.ZeroVersion}, nil
}

// SetVersion records that section in schema is now at version with the given
// fix index. Nothing is written when the record is unchanged. Setting the zero
// version removes the row. WithObserver adds an observer notified of this
// write only, after the Store's own.
func (s *Store) SetVersion(ctx context.Context, schema, section string, version migration.Version, fix int, opt ...Option) error {
	const op = "store.(Store).SetVersion"
	var callOpts options
	for _, o := range opt {
		if o != nil {
			o(&callOpts)
		}
	}
	recs, err := s.load(ctx, schema)
	if err != nil {
		return errors.Wrap(err, op, errors.WithMsg(fmt.Sprintf("schema %q", schema)))
	}
	if version.IsZero() {
		fix = 0
	}
	old, exists := recs[section]
	if !exists {
		old = migration.Record{Section: section, Version: migration.ZeroVersion}
	}
	if old.Version.Equal(version) && old.Fix == fix {
		return nil
	}

	r := migration.Record{Section: section, Version: version, Fix: fix}
	switch {
	case version.IsZero():
		if exists {
			if err := s.driver.DeleteVersion(ctx, schema, section); err != nil {
				return errors.Wrap(err, op)
			}
		}
		delete(recs, section)
	case exists:
		if err := s.driver.UpdateVersion(ctx, schema, r); err != nil {
			return errors.Wrap(err, op)
		}
		recs[section] = r
	default:
		if err := s.driver.InsertVersion(ctx, schema, r); err != nil {
			return errors.Wrap(err, op)
		}
		recs[section] = r
	}

	s.logger.Info("version set", "section", section, "schema", schema, "version", version.String(), "fix", fix)
	e := migration.VersionSet{
		Section: section,
		Schema:  schema,
		Version: version,
		Fix:     fix,
	}
	s.observer.OnVersionSet(ctx, e)
	if callOpts.withObserver != nil {
		callOpts.withObserver.OnVersionSet(ctx, e)
	}
	return nil
}
