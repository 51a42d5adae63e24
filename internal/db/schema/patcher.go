// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package schema

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gridguyz/patcher/internal/db/schema/internal/patchfile"
	"github.com/gridguyz/patcher/internal/db/schema/internal/postgres"
	"github.com/gridguyz/patcher/internal/db/schema/internal/provider"
	"github.com/gridguyz/patcher/internal/db/schema/internal/store"
	"github.com/gridguyz/patcher/internal/db/schema/internal/tenant"
	"github.com/gridguyz/patcher/internal/db/schema/migration"
	"github.com/gridguyz/patcher/internal/errors"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
)

// driver is the database side of a Patcher.
type driver interface {
	store.Driver
	tenant.Driver

	Begin(context.Context) error
	Commit(context.Context) error
	Rollback(context.Context) error
	RollbackAll(context.Context) error
	TryLock(context.Context) error
	Executor() migration.Executor
	SwitchSchema(ctx context.Context, schema string) (string, bool, error)
	SetSearchPath(ctx context.Context, path string) error
	PrependSearchPath(ctx context.Context, schema string) error
	Run(ctx context.Context, name string, r io.Reader) error
	Close() error
}

// Patcher brings migration sections found under root directories to a
// target version. Every call to Patch runs in one transaction on one
// connection, so a batch either applies completely or not at all.
// Patcher is not thread safe.
type Patcher struct {
	driver     driver
	opts       options
	logger     hclog.Logger
	observer   migration.Observer
	index      *patchfile.Index
	store      *store.Store
	replicator *tenant.Replicator
}

// NewPatcher creates a Patcher on a connection taken from db. Supported
// options are WithLogger, WithObserver, WithSearchPath, WithLock,
// WithExactTarget and WithSchemas; the last three become defaults for every
// batch. A batch given its own WithSchemas uses that filter instead of the
// default one, while observers given to a batch are added to the NewPatcher
// ones for that batch only.
func NewPatcher(ctx context.Context, db *sql.DB, opt ...Option) (*Patcher, error) {
	const op = "schema.NewPatcher"
	d, err := postgres.New(ctx, db)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}
	p, err := newPatcher(ctx, d, opt...)
	if err != nil {
		_ = d.Close()
		return nil, errors.Wrap(err, op)
	}
	return p, nil
}

func newPatcher(ctx context.Context, d driver, opt ...Option) (*Patcher, error) {
	const op = "schema.newPatcher"
	opts := getOpts(opt...)

	observers := append(migration.Observers{NewLogObserver(opts.withLogger)}, opts.withObservers...)

	st, err := store.New(d, store.WithLogger(opts.withLogger), store.WithObserver(observers))
	if err != nil {
		return nil, errors.Wrap(err, op)
	}
	r, err := tenant.New(d)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}
	if opts.withSearchPath != "" {
		if err := d.PrependSearchPath(ctx, opts.withSearchPath); err != nil {
			return nil, errors.Wrap(err, op)
		}
	}
	return &Patcher{
		driver:     d,
		opts:       opts,
		logger:     opts.withLogger,
		observer:   observers,
		index:      patchfile.NewIndex(),
		store:      st,
		replicator: r,
	}, nil
}

// Invalidate drops every cache: classified files, ensured schemas, recorded
// versions, the multisite probe and the tenant list.
func (p *Patcher) Invalidate() {
	p.index.Invalidate("")
	p.invalidateState()
}

func (p *Patcher) invalidateState() {
	p.store.Invalidate()
	p.replicator.Invalidate()
}

// Close releases the connection held by the Patcher.
func (p *Patcher) Close() error {
	const op = "schema.(Patcher).Close"
	if err := p.driver.Close(); err != nil {
		return errors.Wrap(err, op)
	}
	return nil
}

// callOpts layers the options of one call over the NewPatcher defaults.
// Schemas given to the call replace the default filter, and observers given
// to the call are notified after the NewPatcher ones.
func (p *Patcher) callOpts(opt ...Option) options {
	base := p.opts
	base.withSchemas = nil
	base.withObservers = nil
	opts := applyOpts(base, opt...)
	if len(opts.withSchemas) == 0 {
		opts.withSchemas = slices.Clone(p.opts.withSchemas)
	}
	return opts
}

// callObserver returns the observers to notify during one call.
func (p *Patcher) callObserver(opts options) migration.Observer {
	if len(opts.withObservers) == 0 {
		return p.observer
	}
	return append(migration.Observers{p.observer}, opts.withObservers...)
}

// Patch migrates every section under roots towards to. A nil to migrates each
// section as far as its files allow; the zero version uninstalls. Roots that
// are not readable directories are skipped, and when none remain Patch does
// nothing. Supported options are WithSchemas, WithExactTarget, WithLock,
// WithObserver and WithHook.
func (p *Patcher) Patch(ctx context.Context, roots []string, to *migration.Version, opt ...Option) error {
	const op = "schema.(Patcher).Patch"
	opts := p.callOpts(opt...)
	roots = p.readableRoots(roots)
	if len(roots) == 0 {
		p.logger.Debug("no readable migration roots, nothing to patch")
		return nil
	}
	err := p.inTransaction(ctx, opts, func() error {
		for _, root := range roots {
			if err := p.patchRoot(ctx, root, to, opts, nil); err != nil {
				return err
			}
		}
		return nil
	}, true)
	return errors.Wrap(err, op)
}

// Plan resolves what Patch would do with the same arguments without applying
// anything. Bookkeeping tables and schemas it needs to inspect are created
// inside a transaction that is always rolled back. Hooks are not run.
func (p *Patcher) Plan(ctx context.Context, roots []string, to *migration.Version, opt ...Option) (*Plan, error) {
	const op = "schema.(Patcher).Plan"
	opts := p.callOpts(opt...)
	plan := &Plan{Target: to}
	roots = p.readableRoots(roots)
	if len(roots) == 0 {
		return plan, nil
	}
	err := p.inTransaction(ctx, opts, func() error {
		for _, root := range roots {
			if err := p.patchRoot(ctx, root, to, opts, plan); err != nil {
				return err
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}
	return plan, nil
}

// inTransaction runs fn inside the outer transaction. The transaction is
// committed only when fn succeeds and commit is true; otherwise it is rolled
// back and the state caches are dropped.
func (p *Patcher) inTransaction(ctx context.Context, opts options, fn func() error, commit bool) (retErr error) {
	const op = "schema.(Patcher).inTransaction"
	if err := p.driver.Begin(ctx); err != nil {
		return errors.Wrap(err, op)
	}
	defer func() {
		if retErr == nil && commit {
			return
		}
		if err := p.driver.RollbackAll(ctx); err != nil {
			retErr = multierror.Append(retErr, errors.Wrap(err, op, errors.WithMsg("rollback error")))
		}
		p.invalidateState()
	}()

	if opts.withLock {
		if err := p.driver.TryLock(ctx); err != nil {
			return errors.Wrap(err, op)
		}
	}
	if err := fn(); err != nil {
		return err
	}
	if !commit {
		return nil
	}
	if err := p.driver.Commit(ctx); err != nil {
		return errors.Wrap(err, op, errors.WithMsg("commit error"))
	}
	return nil
}

func (p *Patcher) readableRoots(roots []string) []string {
	readable := make([]string, 0, len(roots))
	for _, root := range roots {
		if root == "" {
			continue
		}
		f, err := os.Open(root)
		if err != nil {
			p.logger.Warn("skipping migration root", "root", root, "error", err)
			continue
		}
		fi, err := f.Stat()
		_ = f.Close()
		if err != nil || !fi.IsDir() {
			p.logger.Warn("skipping migration root, not a directory", "root", root)
			continue
		}
		readable = append(readable, filepath.Clean(root))
	}
	return readable
}

// sections lists the section directories of root, following symbolic links.
func (p *Patcher) sections(root string) ([]string, error) {
	const op = "schema.(Patcher).sections"
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, errors.Wrap(err, op, errors.WithCode(errors.Io))
	}
	var names []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		isDir := e.IsDir()
		if e.Type()&fs.ModeSymlink != 0 {
			fi, err := os.Stat(filepath.Join(root, e.Name()))
			if err != nil {
				p.logger.Warn("skipping broken section link", "root", root, "section", e.Name(), "error", err)
				continue
			}
			isDir = fi.IsDir()
		}
		if isDir {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// patchRoot migrates the sections of root. A non nil plan switches to dry
// run mode: steps are recorded in plan instead of being applied.
func (p *Patcher) patchRoot(ctx context.Context, root string, to *migration.Version, opts options, plan *Plan) error {
	const op = "schema.(Patcher).patchRoot"
	hook, hasHook := opts.withHooks[root]
	if hasHook && plan == nil {
		if err := p.runHook(ctx, root, hook, to, true); err != nil {
			return errors.Wrap(err, op)
		}
	}

	names, err := p.sections(root)
	if err != nil {
		return errors.Wrap(err, op)
	}
	for _, section := range names {
		targets, err := p.replicator.Targets(ctx, filepath.Join(root, section), opts.withSchemas)
		if err != nil {
			return errors.Wrap(err, op, errors.WithMsg(fmt.Sprintf("section %q", section)))
		}
		for _, target := range targets {
			select {
			case <-ctx.Done():
				return errors.Wrap(ctx.Err(), op)
			default:
				// context is not done yet. Continue on to the next target.
			}
			if err := p.patchTarget(ctx, root, section, target, to, opts, plan); err != nil {
				return errors.Wrap(err, op)
			}
		}
	}

	if hasHook && plan == nil {
		if err := p.runHook(ctx, root, hook, to, false); err != nil {
			return errors.Wrap(err, op)
		}
	}
	return nil
}

// runHook calls one side of a hook inside its own savepoint.
func (p *Patcher) runHook(ctx context.Context, root string, h hookEntry, to *migration.Version, before bool) error {
	const op = "schema.(Patcher).runHook"
	stage := "after"
	if before {
		stage = "before"
	}
	if err := p.driver.Begin(ctx); err != nil {
		return errors.Wrap(err, op)
	}
	var err error
	if before {
		err = h.hook.BeforePatch(ctx, p.driver.Executor(), h.installed, to)
	} else {
		err = h.hook.AfterPatch(ctx, p.driver.Executor(), h.installed, to)
	}
	if err != nil {
		hookErr := errors.Wrap(err, op, errors.WithCode(errors.HookFailed), errors.WithMsg(fmt.Sprintf("%s patch hook of %s", stage, root)))
		if rbErr := p.driver.Rollback(ctx); rbErr != nil {
			return multierror.Append(hookErr, errors.Wrap(rbErr, op))
		}
		return hookErr
	}
	if err := p.driver.Commit(ctx); err != nil {
		return errors.Wrap(err, op)
	}
	p.logger.Debug("patch hook ran", "root", root, "stage", stage)
	return nil
}

// patchTarget moves one section in one schema.
func (p *Patcher) patchTarget(ctx context.Context, root, section string, target tenant.Target, to *migration.Version, opts options, plan *Plan) (retErr error) {
	const op = "schema.(Patcher).patchTarget"
	where := fmt.Sprintf("section %q in schema %s", section, target.Label())
	ob := p.callObserver(opts)
	setOpt := store.WithObserver(migration.Observers(opts.withObservers))

	if target.Schema != "" {
		previous, switched, err := p.driver.SwitchSchema(ctx, target.Schema)
		if err != nil {
			return errors.Wrap(err, op, errors.WithMsg(where))
		}
		if switched {
			ob.OnSchemaSwitch(ctx, migration.SchemaSwitch{Section: section, Previous: previous, Schema: target.Schema})
			defer func() {
				if retErr != nil {
					// the search path is restored by the rollback
					return
				}
				if err := p.driver.SetSearchPath(ctx, previous); err != nil {
					retErr = errors.Wrap(err, op, errors.WithMsg(where))
				}
			}()
		}
	}

	current, err := p.store.CurrentVersion(ctx, target.Schema, section)
	if err != nil {
		return errors.Wrap(err, op, errors.WithMsg(where))
	}
	patches, err := p.index.PatchFiles(target.Dir)
	if err != nil {
		return errors.Wrap(err, op, errors.WithMsg(where))
	}
	fixes, err := p.index.FixFiles(target.Dir)
	if err != nil {
		return errors.Wrap(err, op, errors.WithMsg(where))
	}

	prov, err := provider.New(patches, fixes, current, to, provider.WithExactTarget(opts.withExactTarget))
	if plan != nil {
		plan.add(root, section, target, current, prov, err)
		if err != nil && !errors.IsCode(err, errors.UnreachableVersion) {
			return errors.Wrap(err, op, errors.WithMsg(where))
		}
		return nil
	}
	if err != nil {
		return errors.Wrap(err, op, errors.WithMsg(where))
	}

	for prov.Next() {
		step := prov.Step()
		if step.IsFix() {
			if err := p.runFile(ctx, step.Fix.Path); err != nil {
				return errors.Wrap(err, op, errors.WithMsg(fmt.Sprintf("%s, %s", where, step)))
			}
			ob.OnPatchApplied(ctx, migration.PatchApplied{
				Section: section,
				Schema:  target.Schema,
				Path:    step.Fix.Path,
				Kind:    migration.Fix,
				From:    step.From,
				To:      step.To,
				Fix:     step.Fix.Index,
			})
			if err := p.store.SetVersion(ctx, target.Schema, section, step.From, step.Fix.Index, setOpt); err != nil {
				return errors.Wrap(err, op, errors.WithMsg(where))
			}
			continue
		}
		for _, f := range step.Files {
			if err := p.runFile(ctx, f.Path); err != nil {
				return errors.Wrap(err, op, errors.WithMsg(fmt.Sprintf("%s, %s", where, step)))
			}
			ob.OnPatchApplied(ctx, migration.PatchApplied{
				Section: section,
				Schema:  target.Schema,
				Path:    f.Path,
				Kind:    f.Kind,
				From:    f.From,
				To:      f.To,
			})
		}
	}

	landed, fix := prov.Landed()
	if err := p.store.SetVersion(ctx, target.Schema, section, landed, fix, setOpt); err != nil {
		return errors.Wrap(err, op, errors.WithMsg(where))
	}
	return nil
}

func (p *Patcher) runFile(ctx context.Context, path string) error {
	const op = "schema.(Patcher).runFile"
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, op, errors.WithCode(errors.Io))
	}
	defer f.Close()
	if err := p.driver.Run(ctx, path, f); err != nil {
		return errors.Wrap(err, op)
	}
	return nil
}
