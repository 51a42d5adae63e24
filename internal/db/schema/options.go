// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package schema

import (
	"path/filepath"

	"github.com/gridguyz/patcher/internal/db/schema/migration"
	"github.com/hashicorp/go-hclog"
)

// getOpts - iterate the inbound Options and return a struct.
func getOpts(opt ...Option) options {
	return applyOpts(getDefaultOptions(), opt...)
}

func applyOpts(opts options, opt ...Option) options {
	for _, o := range opt {
		if o != nil {
			o(&opts)
		}
	}
	return opts
}

// Option - how Options are passed as arguments.
type Option func(*options)

type hookEntry struct {
	installed migration.Version
	hook      migration.Hook
}

// options = how options are represented
type options struct {
	withLogger      hclog.Logger
	withObservers   []migration.Observer
	withSearchPath  string
	withLock        bool
	withExactTarget bool
	withSchemas     []string
	withHooks       map[string]hookEntry
}

func getDefaultOptions() options {
	return options{
		withLogger:      hclog.NewNullLogger(),
		withExactTarget: true,
	}
}

// WithLogger sets the logger of the patcher. Only valid for NewPatcher.
func WithLogger(l hclog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.withLogger = l
		}
	}
}

// WithObserver adds an observer notified while batches run. It may be given
// more than once.
func WithObserver(ob migration.Observer) Option {
	return func(o *options) {
		if ob != nil {
			o.withObservers = append(o.withObservers, ob)
		}
	}
}

// WithSearchPath puts schema in front of the session search path before any
// batch runs. Only valid for NewPatcher.
func WithSearchPath(schema string) Option {
	return func(o *options) {
		o.withSearchPath = schema
	}
}

// WithLock makes every batch take an exclusive transaction scoped advisory
// lock, failing fast when another patcher holds it.
func WithLock(lock bool) Option {
	return func(o *options) {
		o.withLock = lock
	}
}

// WithExactTarget controls whether a section that cannot land exactly on the
// target version fails the batch. It defaults to true; when false a section
// lands on the nearest version its files reach.
func WithExactTarget(exact bool) Option {
	return func(o *options) {
		o.withExactTarget = exact
	}
}

// WithSchemas restricts a batch to the named schemas. Entries containing *
// are glob patterns; current_schema() selects the default schema of a single
// site database.
func WithSchemas(schemas ...string) Option {
	return func(o *options) {
		o.withSchemas = append(o.withSchemas, schemas...)
	}
}

// WithHook registers hook to run around the sections of root. installed is
// the version of the package owning root before the batch, and is passed to
// the hook as its from version.
func WithHook(root string, installed migration.Version, hook migration.Hook) Option {
	return func(o *options) {
		if hook == nil {
			return
		}
		hooks := make(map[string]hookEntry, len(o.withHooks)+1)
		for k, v := range o.withHooks {
			hooks[k] = v
		}
		hooks[filepath.Clean(root)] = hookEntry{installed: installed, hook: hook}
		o.withHooks = hooks
	}
}
