// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package patchfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gridguyz/patcher/internal/db/schema/migration"
	"github.com/gridguyz/patcher/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("select 1;"), 0o600))
	}
	return dir
}

func TestPatchFiles(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	dir := writeFiles(t,
		"data.1-2.sql",
		"schema.1-2.SQL",
		"schema.0-1.sql",
		"schema.2-1.sql",
		"schema.1.0.rc1-1.0.sql",
		"README.md",
		"schema.1-2.sql.bak",
		"Schema.2-3.sql",
		"fix.1-1.sql",
	)
	require.NoError(os.Mkdir(filepath.Join(dir, "schema.3-4.sql"), 0o700))

	idx := NewIndex()
	got, err := idx.PatchFiles(dir)
	require.NoError(err)

	type hop struct{ kind, from, to string }
	var hops []hop
	for _, f := range got {
		hops = append(hops, hop{string(f.Kind), f.From.String(), f.To.String()})
		assert.Equal(filepath.Join(dir, f.Name), f.Path)
	}
	assert.Equal([]hop{
		{"schema", "0", "1"},
		{"schema", "1", "2"},
		{"schema", "1.0.rc1", "1.0"},
		{"schema", "2", "1"},
		{"data", "1", "2"},
	}, hops)

	assert.True(got[1].IsUpgrade())
	assert.False(got[3].IsUpgrade())
}

func TestFixFiles(t *testing.T) {
	t.Parallel()
	dir := writeFiles(t, "fix.1-2.sql", "fix.1-1.sql", "fix.0.9-10.Sql", "fix.1-x.sql", "schema.0-1.sql")

	got, err := NewIndex().FixFiles(dir)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "0.9", got[0].Version.String())
	assert.Equal(t, 10, got[0].Index)
	assert.Equal(t, 1, got[1].Index)
	assert.Equal(t, 2, got[2].Index)
	assert.True(t, got[2].Version.Equal(migration.MustParseVersion("1")))
}

func TestIndex_Integrity(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		files []string
	}{
		{name: "same-version", files: []string{"schema.1-1.sql"}},
		{name: "semantic-duplicate", files: []string{"schema.1-2.sql", "schema.01-2.sql"}},
		{name: "duplicate-fix", files: []string{"fix.1-1.sql", "fix.1-01.sql"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			dir := writeFiles(t, tt.files...)
			_, err := NewIndex().PatchFiles(dir)
			require.Error(t, err)
			assert.True(t, errors.Match(errors.T(errors.MigrationIntegrity), err), err)
		})
	}
}

func TestIndex_MissingDir(t *testing.T) {
	t.Parallel()
	_, err := NewIndex().PatchFiles(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.True(t, errors.Match(errors.T(errors.InvalidPath), err))
}

func TestIndex_Cache(t *testing.T) {
	t.Parallel()
	require := require.New(t)
	dir := writeFiles(t, "schema.0-1.sql")
	idx := NewIndex()

	got, err := idx.PatchFiles(dir)
	require.NoError(err)
	require.Len(got, 1)

	require.NoError(os.WriteFile(filepath.Join(dir, "schema.1-2.sql"), nil, 0o600))
	got, err = idx.PatchFiles(dir + string(filepath.Separator))
	require.NoError(err)
	require.Len(got, 1, "cached result expected")

	idx.Invalidate(dir)
	got, err = idx.PatchFiles(dir)
	require.NoError(err)
	require.Len(got, 2)

	require.NoError(os.WriteFile(filepath.Join(dir, "schema.2-3.sql"), nil, 0o600))
	idx.Invalidate("")
	got, err = idx.PatchFiles(dir)
	require.NoError(err)
	require.Len(got, 3)
}
