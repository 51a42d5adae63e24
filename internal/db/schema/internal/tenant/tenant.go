// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

// Package tenant enumerates the schemas a section's migrations run against.
package tenant

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gridguyz/patcher/internal/errors"
	"github.com/ryanuber/go-glob"
)

// Reserved schema names.
const (
	CommonSchema   = "_common"
	CentralSchema  = "_central"
	TemplateSchema = "_template"

	// SiteTable is the tenant registry in the central schema. Its presence
	// makes a database multisite.
	SiteTable = "site"

	// CurrentSchema selects the default schema of a single site database in
	// a schema filter.
	CurrentSchema = "current_schema()"
)

// Section subdirectories.
const (
	CommonDir  = "common"
	CentralDir = "central"
	SiteDir    = "site"
)

// Driver is the subset of the postgres driver the replicator needs.
type Driver interface {
	TableExists(ctx context.Context, schema, table string) (bool, error)
	SiteSchemas(ctx context.Context) ([]string, error)
}

// Target is one schema a section directory is migrated in. An empty Schema
// is the session's current schema, used by single site databases.
type Target struct {
	Dir    string
	Schema string
}

// Label names the target schema for humans.
func (t Target) Label() string {
	if t.Schema == "" {
		return CurrentSchema
	}
	return t.Schema
}

// Replicator resolves targets and caches the multisite probe and the tenant
// list. This struct is not thread safe.
type Replicator struct {
	driver    Driver
	multisite *bool
	tenants   []string
}

// New creates a Replicator backed by d.
func New(d Driver) (*Replicator, error) {
	const op = "tenant.New"
	if d == nil {
		return nil, errors.New(errors.InvalidParameter, op, "missing driver")
	}
	return &Replicator{driver: d}, nil
}

// Invalidate forgets the multisite probe and the tenant list.
func (r *Replicator) Invalidate() {
	r.multisite = nil
	r.tenants = nil
}

// IsMultisite reports whether the central tenant registry exists.
func (r *Replicator) IsMultisite(ctx context.Context) (bool, error) {
	const op = "tenant.(Replicator).IsMultisite"
	if r.multisite != nil {
		return *r.multisite, nil
	}
	ok, err := r.driver.TableExists(ctx, CentralSchema, SiteTable)
	if err != nil {
		return false, errors.Wrap(err, op)
	}
	r.multisite = &ok
	return ok, nil
}

// Tenants returns the registered tenant schemas in name order.
func (r *Replicator) Tenants(ctx context.Context) ([]string, error) {
	const op = "tenant.(Replicator).Tenants"
	if r.tenants != nil {
		return r.tenants, nil
	}
	schemas, err := r.driver.SiteSchemas(ctx)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}
	seen := make(map[string]struct{}, len(schemas))
	tenants := make([]string, 0, len(schemas))
	for _, s := range schemas {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		tenants = append(tenants, s)
	}
	sort.Strings(tenants)
	r.tenants = tenants
	return tenants, nil
}

// Targets returns the targets of the section at sectionPath in the order
// they are migrated: _common, then _central, then either the current schema
// or _template followed by every tenant. A non empty filter restricts the
// schemas to the listed names and glob patterns; literal names that are not
// registered tenants yet are still targeted in a multisite database.
func (r *Replicator) Targets(ctx context.Context, sectionPath string, filter []string) ([]Target, error) {
	const op = "tenant.(Replicator).Targets"
	f := newFilter(filter)
	var targets []Target

	if dir := filepath.Join(sectionPath, CommonDir); isDir(dir) && f.allows(CommonSchema) {
		targets = append(targets, Target{Dir: dir, Schema: CommonSchema})
	}
	if dir := filepath.Join(sectionPath, CentralDir); isDir(dir) && f.allows(CentralSchema) {
		targets = append(targets, Target{Dir: dir, Schema: CentralSchema})
	}

	dir := filepath.Join(sectionPath, SiteDir)
	if !isDir(dir) {
		return targets, nil
	}
	multisite, err := r.IsMultisite(ctx)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}
	if !multisite {
		if f.allows(CurrentSchema) {
			targets = append(targets, Target{Dir: dir})
		}
		return targets, nil
	}

	tenants, err := r.Tenants(ctx)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}
	added := map[string]struct{}{}
	add := func(schema string) {
		if _, ok := added[schema]; ok {
			return
		}
		added[schema] = struct{}{}
		targets = append(targets, Target{Dir: dir, Schema: schema})
	}
	if f.allows(TemplateSchema) {
		add(TemplateSchema)
	}
	for _, s := range tenants {
		if f.allows(s) {
			add(s)
		}
	}
	for _, s := range f.literals {
		switch s {
		case CommonSchema, CentralSchema, CurrentSchema:
			continue
		}
		add(s)
	}
	return targets, nil
}

type filter struct {
	all      bool
	literals []string
	patterns []string
}

func newFilter(schemas []string) filter {
	f := filter{all: len(schemas) == 0}
	for _, s := range schemas {
		s = strings.TrimSpace(s)
		switch {
		case s == "":
		case strings.Contains(s, "*"):
			f.patterns = append(f.patterns, s)
		default:
			f.literals = append(f.literals, s)
		}
	}
	return f
}

func (f filter) allows(schema string) bool {
	if f.all {
		return true
	}
	for _, l := range f.literals {
		if l == schema {
			return true
		}
	}
	for _, p := range f.patterns {
		if glob.Glob(p, schema) {
			return true
		}
	}
	return false
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}
