// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package schema

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gridguyz/patcher/internal/db/schema/migration"
	"github.com/gridguyz/patcher/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tree writes files relative to a new root. Empty contents become a no-op
// statement.
func tree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
		if content == "" {
			content = "select 1;"
		}
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	}
	return root
}

func testPatcher(t *testing.T, d *fakeDriver, opt ...Option) *Patcher {
	t.Helper()
	p, err := newPatcher(context.Background(), d, opt...)
	require.NoError(t, err)
	return p
}

func vp(s string) *migration.Version {
	v := migration.MustParseVersion(s)
	return &v
}

// executed strips root from the paths the fake database ran.
func executed(d *fakeDriver, root string) []string {
	var out []string
	for _, e := range d.state.executed {
		out = append(out, strings.ReplaceAll(e, root+string(filepath.Separator), ""))
	}
	return out
}

func TestPatch_Idempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	assert, require := assert.New(t), require.New(t)
	root := tree(t, map[string]string{
		"core/site/schema.0-1.sql": "",
		"core/site/schema.1-2.sql": "",
		"core/site/data.1-2.sql":   "",
	})
	d := newFakeDriver()
	p := testPatcher(t, d)

	require.NoError(p.Patch(ctx, []string{root}, nil))
	assert.Equal([]string{
		"public:core/site/schema.0-1.sql",
		"public:core/site/schema.1-2.sql",
		"public:core/site/data.1-2.sql",
	}, executed(d, root))
	rec, ok := d.record("", "core")
	require.True(ok)
	assert.Equal("2", rec.Version.String())

	for _, to := range []*migration.Version{nil, vp("2")} {
		require.NoError(p.Patch(ctx, []string{root}, to))
		assert.Len(d.state.executed, 3)
		again, ok := d.record("", "core")
		require.True(ok)
		assert.Equal(rec, again)
	}
	assert.Equal(0, d.depth())
}

func TestPatch_RoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	require := require.New(t)
	root := tree(t, map[string]string{
		"core/common/schema.0-1.sql": "",
		"core/common/schema.1-2.sql": "",
		"core/common/schema.2-1.sql": "",
		"core/common/schema.1-0.sql": "",
		"core/site/schema.0-2.sql":   "",
		"core/site/schema.2-0.sql":   "",
	})
	d := newFakeDriver()
	p := testPatcher(t, d)

	require.NoError(p.Patch(ctx, []string{root}, nil))
	rec, ok := d.record("_common", "core")
	require.True(ok)
	require.Equal("2", rec.Version.String())
	_, ok = d.record("", "core")
	require.True(ok)

	require.NoError(p.Patch(ctx, []string{root}, vp("0")))
	_, ok = d.record("_common", "core")
	require.False(ok)
	_, ok = d.record("", "core")
	require.False(ok)
	require.Equal([]string{
		"_common:core/common/schema.2-1.sql",
		"_common:core/common/schema.1-0.sql",
		"public:core/site/schema.2-0.sql",
	}, executed(d, root)[3:])
}

func TestPatch_GreedyHops(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	root := tree(t, map[string]string{
		"core/site/schema.0-1.sql": "",
		"core/site/schema.0-2.sql": "",
		"core/site/schema.1-3.sql": "",
	})
	d := newFakeDriver()
	p := testPatcher(t, d)

	require.NoError(t, p.Patch(ctx, []string{root}, nil))
	rec, _ := d.record("", "core")
	assert.Equal(t, "2", rec.Version.String())
	assert.Equal(t, []string{"public:core/site/schema.0-2.sql"}, executed(d, root))
}

func TestPatch_SchemaBeforeData(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	root := tree(t, map[string]string{
		"core/site/data.0-1.sql":   "",
		"core/site/schema.0-1.sql": "",
	})
	d := newFakeDriver()
	require.NoError(t, testPatcher(t, d).Patch(ctx, []string{root}, nil))
	assert.Equal(t, []string{
		"public:core/site/schema.0-1.sql",
		"public:core/site/data.0-1.sql",
	}, executed(d, root))
}

func TestPatch_MultisiteFanOut(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	assert, require := assert.New(t), require.New(t)
	root := tree(t, map[string]string{
		"blog/site/schema.0-1.sql": "",
		"blog/site/schema.1-2.sql": "",
	})
	d := newFakeDriver()
	d.multisite = true
	d.tenants = []string{"b", "a"}
	p := testPatcher(t, d)

	require.NoError(p.Patch(ctx, []string{root}, nil))
	for _, schema := range []string{"_template", "a", "b"} {
		rec, ok := d.record(schema, "blog")
		require.Truef(ok, "missing row in %s", schema)
		assert.Equal("2", rec.Version.String())
		assert.True(d.state.schemas[schema])
	}
	_, ok := d.record("", "blog")
	assert.False(ok)
	assert.Equal([]string{
		"_template:blog/site/schema.0-1.sql",
		"_template:blog/site/schema.1-2.sql",
		"a:blog/site/schema.0-1.sql",
		"a:blog/site/schema.1-2.sql",
		"b:blog/site/schema.0-1.sql",
		"b:blog/site/schema.1-2.sql",
	}, executed(d, root))
	// the search path is restored after every schema
	assert.Equal(`"public"`, d.state.searchPath)
}

func TestPatch_SchemaFilter(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	root := tree(t, map[string]string{
		"blog/common/schema.0-1.sql": "",
		"blog/site/schema.0-1.sql":   "",
	})
	d := newFakeDriver()
	d.multisite = true
	d.tenants = []string{"a", "b"}
	p := testPatcher(t, d)

	require.NoError(t, p.Patch(ctx, []string{root}, nil, WithSchemas("b", "new_site")))
	assert.Equal(t, []string{
		"b:blog/site/schema.0-1.sql",
		"new_site:blog/site/schema.0-1.sql",
	}, executed(d, root))
	_, ok := d.record("_common", "blog")
	assert.False(t, ok)
}

func TestPatch_SchemaFilterReplacesDefault(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	root := tree(t, map[string]string{"blog/site/schema.0-1.sql": ""})
	d := newFakeDriver()
	d.multisite = true
	d.tenants = []string{"a", "b"}
	p := testPatcher(t, d, WithSchemas("a", "b"))

	require.NoError(t, p.Patch(ctx, []string{root}, nil, WithSchemas("b")))
	assert.Equal(t, []string{"b:blog/site/schema.0-1.sql"}, executed(d, root))

	d.state.executed = nil
	require.NoError(t, p.Patch(ctx, []string{root}, nil))
	assert.Equal(t, []string{"a:blog/site/schema.0-1.sql"}, executed(d, root))
	_, ok := d.record("_template", "blog")
	assert.False(t, ok)
}

func TestPatch_SymlinkedSection(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	assert, require := assert.New(t), require.New(t)
	shared := tree(t, map[string]string{"core/site/schema.0-1.sql": ""})
	root := t.TempDir()
	if err := os.Symlink(filepath.Join(shared, "core"), filepath.Join(root, "core")); err != nil {
		t.Skipf("symlinks not supported: %s", err)
	}
	require.NoError(os.Symlink(filepath.Join(root, "missing"), filepath.Join(root, "broken")))
	d := newFakeDriver()

	require.NoError(testPatcher(t, d).Patch(ctx, []string{root}, nil))
	assert.Equal([]string{"public:core/site/schema.0-1.sql"}, executed(d, root))
	rec, ok := d.record("", "core")
	require.True(ok)
	assert.Equal("1", rec.Version.String())
	_, ok = d.record("", "broken")
	assert.False(ok)
}

func TestPatch_FailureAtomicity(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	assert, require := assert.New(t), require.New(t)
	root := tree(t, map[string]string{
		"a/site/schema.0-1.sql": "",
		"b/site/schema.0-1.sql": "FAIL",
		"c/site/schema.0-1.sql": "",
	})
	d := newFakeDriver()
	p := testPatcher(t, d)

	err := p.Patch(ctx, []string{root}, nil)
	require.Error(err)
	assert.True(errors.Match(errors.T(errors.MigrationFailed), err), err)
	assert.Contains(err.Error(), filepath.Join(root, "b", "site", "schema.0-1.sql"))
	assert.Contains(err.Error(), `section "b"`)

	_, ok := d.record("", "a")
	assert.False(ok, "section a must be rolled back")
	assert.Empty(d.state.executed)
	assert.Equal(0, d.depth())
	assert.Equal(0, d.commits)
	assert.Equal(1, d.rollbacks)

	// caches were dropped, so a fixed tree patches cleanly from scratch
	require.NoError(os.WriteFile(filepath.Join(root, "b", "site", "schema.0-1.sql"), []byte("select 1;"), 0o600))
	p.Invalidate()
	require.NoError(p.Patch(ctx, []string{root}, nil))
	for _, s := range []string{"a", "b", "c"} {
		rec, ok := d.record("", s)
		require.True(ok)
		assert.Equal("1", rec.Version.String())
	}
}

func TestPatch_MissingRoots(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := newFakeDriver()
	p := testPatcher(t, d)
	file := filepath.Join(t.TempDir(), "file.sql")
	require.NoError(t, os.WriteFile(file, nil, 0o600))

	require.NoError(t, p.Patch(ctx, []string{"", filepath.Join(t.TempDir(), "missing"), file}, nil))
	assert.Equal(t, 0, d.begins)
}

func TestPatch_SkipsDotDirectories(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	root := tree(t, map[string]string{
		".git/site/schema.0-1.sql": "",
		"core/site/schema.0-1.sql": "",
		"README.md":                "",
	})
	d := newFakeDriver()
	require.NoError(t, testPatcher(t, d).Patch(ctx, []string{root}, nil))
	assert.Equal(t, []string{"public:core/site/schema.0-1.sql"}, executed(d, root))
}

func TestPatch_ExactTarget(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	files := map[string]string{
		"core/site/schema.0-1.sql": "",
		"core/site/schema.0-2.sql": "",
		"core/site/schema.1-3.sql": "",
	}

	t.Run("strict", func(t *testing.T) {
		t.Parallel()
		root := tree(t, files)
		d := newFakeDriver()
		err := testPatcher(t, d).Patch(ctx, []string{root}, vp("3"))
		require.Error(t, err)
		assert.True(t, errors.Match(errors.T(errors.UnreachableVersion), err), err)
		_, ok := d.record("", "core")
		assert.False(t, ok)
	})
	t.Run("best-effort", func(t *testing.T) {
		t.Parallel()
		root := tree(t, files)
		d := newFakeDriver()
		require.NoError(t, testPatcher(t, d).Patch(ctx, []string{root}, vp("3"), WithExactTarget(false)))
		rec, ok := d.record("", "core")
		require.True(t, ok)
		assert.Equal(t, "2", rec.Version.String())
	})
	t.Run("best-effort-default", func(t *testing.T) {
		t.Parallel()
		root := tree(t, files)
		d := newFakeDriver()
		require.NoError(t, testPatcher(t, d, WithExactTarget(false)).Patch(ctx, []string{root}, vp("3")))
		rec, _ := d.record("", "core")
		assert.Equal(t, "2", rec.Version.String())
	})
}

func TestPatch_Fixes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	assert, require := assert.New(t), require.New(t)
	root := tree(t, map[string]string{
		"core/site/schema.0-1.sql": "",
		"core/site/fix.1-1.sql":    "",
		"core/site/fix.1-2.sql":    "",
		"core/site/schema.1-2.sql": "",
		"core/site/fix.2-1.sql":    "",
	})
	d := newFakeDriver()
	p := testPatcher(t, d)

	require.NoError(p.Patch(ctx, []string{root}, vp("1")))
	rec, _ := d.record("", "core")
	assert.Equal("1", rec.Version.String())
	assert.Equal(2, rec.Fix, "a fresh install already includes the fixes of its version")

	// pretend only the first fix was known when 1 was installed
	d.state.tables["public"]["core"] = migration.Record{Section: "core", Version: rec.Version, Fix: 1}
	p.Invalidate()
	require.NoError(p.Patch(ctx, []string{root}, nil))
	assert.Equal([]string{
		"public:core/site/schema.0-1.sql",
		"public:core/site/fix.1-2.sql",
		"public:core/site/schema.1-2.sql",
	}, executed(d, root))
	rec, _ = d.record("", "core")
	assert.Equal("2", rec.Version.String())
	assert.Equal(1, rec.Fix)
}

type recordingHook struct {
	calls []string
	fail  string
}

func (h *recordingHook) BeforePatch(_ context.Context, _ migration.Executor, from migration.Version, to *migration.Version) error {
	h.calls = append(h.calls, "before "+from.String()+" "+targetString(to))
	if h.fail == "before" {
		return errors.New(errors.InvalidParameter, "hook", "refused")
	}
	return nil
}

func (h *recordingHook) AfterPatch(_ context.Context, _ migration.Executor, from migration.Version, to *migration.Version) error {
	h.calls = append(h.calls, "after "+from.String()+" "+targetString(to))
	if h.fail == "after" {
		return errors.New(errors.InvalidParameter, "hook", "refused")
	}
	return nil
}

func targetString(to *migration.Version) string {
	if to == nil {
		return "latest"
	}
	return to.String()
}

func TestPatch_Hooks(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	files := map[string]string{"core/site/schema.0-1.sql": ""}

	t.Run("around-sections", func(t *testing.T) {
		t.Parallel()
		root := tree(t, files)
		d := newFakeDriver()
		h := &recordingHook{}
		err := testPatcher(t, d).Patch(ctx, []string{root}, nil, WithHook(root, migration.MustParseVersion("0.9"), h))
		require.NoError(t, err)
		assert.Equal(t, []string{"before 0.9 latest", "after 0.9 latest"}, h.calls)
		// one outer transaction plus one savepoint per hook
		assert.Equal(t, 3, d.begins)
		assert.Equal(t, 3, d.commits)
	})
	for _, stage := range []string{"before", "after"} {
		stage := stage
		t.Run("fails-"+stage, func(t *testing.T) {
			t.Parallel()
			root := tree(t, files)
			d := newFakeDriver()
			h := &recordingHook{fail: stage}
			err := testPatcher(t, d).Patch(ctx, []string{root}, vp("1"), WithHook(root, migration.ZeroVersion, h))
			require.Error(t, err)
			assert.True(t, errors.Match(errors.T(errors.HookFailed), err), err)
			_, ok := d.record("", "core")
			assert.False(t, ok)
			assert.Empty(t, d.state.executed)
			assert.Equal(t, 0, d.depth())
		})
	}
}

type countingObserver struct {
	switches, applied, sets int
}

func (o *countingObserver) OnSchemaSwitch(context.Context, migration.SchemaSwitch) { o.switches++ }
func (o *countingObserver) OnPatchApplied(context.Context, migration.PatchApplied) { o.applied++ }
func (o *countingObserver) OnVersionSet(context.Context, migration.VersionSet)     { o.sets++ }

func TestPatch_Observer(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	root := tree(t, map[string]string{
		"core/common/schema.0-1.sql": "",
		"core/site/schema.0-1.sql":   "",
		"core/site/data.0-1.sql":     "",
	})
	d := newFakeDriver()
	ob := &countingObserver{}
	require.NoError(t, testPatcher(t, d, WithObserver(ob)).Patch(ctx, []string{root}, nil))
	assert.Equal(t, 1, ob.switches)
	assert.Equal(t, 3, ob.applied)
	assert.Equal(t, 2, ob.sets)
}

func TestPatch_CallObserver(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	root := tree(t, map[string]string{
		"core/site/schema.0-1.sql": "",
		"core/site/data.0-1.sql":   "",
	})
	d := newFakeDriver()
	owned, call := &countingObserver{}, &countingObserver{}
	p := testPatcher(t, d, WithObserver(owned))

	require.NoError(t, p.Patch(ctx, []string{root}, nil, WithObserver(call)))
	assert.Equal(t, 2, call.applied)
	assert.Equal(t, 1, call.sets)
	assert.Equal(t, 2, owned.applied)
	assert.Equal(t, 1, owned.sets)

	other := tree(t, map[string]string{"blog/site/schema.0-1.sql": ""})
	require.NoError(t, p.Patch(ctx, []string{other}, nil))
	assert.Equal(t, 2, call.applied, "call observers are not kept")
	assert.Equal(t, 3, owned.applied)
	assert.Equal(t, 2, owned.sets)
}

func TestPatch_Lock(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	root := tree(t, map[string]string{"core/site/schema.0-1.sql": ""})
	d := newFakeDriver()
	d.lockErr = errors.New(errors.MigrationIntegrity, "fake.TryLock", "another patch run holds the lock")

	require.NoError(t, testPatcher(t, d).Patch(ctx, []string{root}, nil))
	d.state.executed = nil

	err := testPatcher(t, d, WithLock(true)).Patch(ctx, []string{root}, vp("0"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "holds the lock")
	assert.Empty(t, d.state.executed)
}

func TestPatcher_SearchPath(t *testing.T) {
	t.Parallel()
	d := newFakeDriver()
	testPatcher(t, d, WithSearchPath("app"))
	assert.Equal(t, `"app", "public"`, d.state.searchPath)
}

func TestPlan(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	assert, require := assert.New(t), require.New(t)
	root := tree(t, map[string]string{
		"core/site/schema.0-1.sql": "",
		"core/site/data.0-1.sql":   "",
		"core/site/schema.1-2.sql": "",
		"blog/site/schema.0-3.sql": "",
	})
	d := newFakeDriver()
	p := testPatcher(t, d)

	plan, err := p.Plan(ctx, []string{root}, vp("2"))
	require.NoError(err)
	assert.Empty(d.state.executed)
	assert.Empty(d.state.tables)
	assert.Equal(0, d.depth())
	assert.Equal(1, d.rollbacks)

	require.Len(plan.Sections, 2)
	blog, core := plan.Sections[0], plan.Sections[1]
	assert.Equal("blog", blog.Section)
	assert.NotEmpty(blog.Error)
	assert.Len(plan.Unreachable(), 1)

	assert.Equal("core", core.Section)
	assert.Equal("current_schema()", core.Schema)
	assert.Equal("up", core.Direction)
	assert.Equal("2", core.Landed.String())
	require.Len(core.Steps, 2)
	assert.Equal(migration.Kind("hop"), core.Steps[0].Kind)
	assert.Len(core.Steps[0].Files, 2)
	assert.Equal(migration.Schema, core.Steps[1].Kind)
	assert.Equal(3, plan.Pending())
}
