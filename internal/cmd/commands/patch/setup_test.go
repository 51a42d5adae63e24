// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package patch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gridguyz/patcher/internal/cmd/base"
	"github.com/gridguyz/patcher/internal/cmd/config"
	"github.com/gridguyz/patcher/internal/db/schema"
	"github.com/gridguyz/patcher/internal/db/schema/migration"
	"github.com/mitchellh/cli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBase(format string) (*base.Command, *cli.MockUi) {
	ui := cli.NewMockUi()
	return &base.Command{
		Context: context.Background(),
		UI:      &base.PatcherUI{Ui: ui, Format: format},
	}, ui
}

// unsetEnv clears keys for the duration of the test.
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoadConfig(t *testing.T) {
	assert, require := assert.New(t), require.New(t)
	unsetEnv(t, "PATCHER_DATABASE_URL", "PATCHER_SCHEMAS", "PATCHER_EXACT_TARGET", "PATCHER_TO_VERSION", "PATCHER_CONNECT_TIMEOUT")
	cfgFile := filepath.Join(t.TempDir(), "patcher.hcl")
	require.NoError(os.WriteFile(cfgFile, []byte(`
database {
  url    = "postgres://file/app"
  schema = "app"
}
roots        = ["/from/config"]
schemas      = ["a"]
exact_target = false
to_version   = "1.0"
`), 0o600))

	c, _ := newBase("table")
	cmd := &Command{Command: c}
	set := cmd.Flags()
	require.NoError(set.Parse([]string{
		"-config", cfgFile,
		"-database-url", "postgres://flag/app",
		"-schema", "b", "-schema", "c",
		"-exact-target=true",
		"-connect-timeout", "3s",
		"/from/args",
	}))

	cfg, err := loadConfig(c, set, &cmd.runFlags)
	require.NoError(err)
	assert.Equal("postgres://flag/app", cfg.Database.Url)
	assert.Equal("app", cfg.Database.Schema)
	assert.Equal(3*time.Second, cfg.Database.ConnectTimeout)
	assert.Equal([]string{"b", "c"}, cfg.Schemas)
	assert.True(cfg.ExactTarget)
	assert.Equal("1.0", cfg.ToVersion, "unset flags keep the file value")
	assert.Equal([]string{"/from/args"}, cfg.Roots)

	to, err := targetVersion(cfg)
	require.NoError(err)
	assert.Equal("1.0", to.String())
}

func TestLoadConfig_Errors(t *testing.T) {
	unsetEnv(t, "PATCHER_DATABASE_URL")
	c, _ := newBase("table")
	cmd := &Command{Command: c}
	set := cmd.Flags()
	require.NoError(t, set.Parse(nil))

	_, err := loadConfig(c, set, &cmd.runFlags)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing database url")
	assert.Contains(t, err.Error(), "at least one migration root is required")
}

func TestTargetVersion(t *testing.T) {
	t.Parallel()
	cfg := config.New()
	to, err := targetVersion(cfg)
	require.NoError(t, err)
	assert.Nil(t, to)

	cfg.ToVersion = "0"
	to, err = targetVersion(cfg)
	require.NoError(t, err)
	require.NotNil(t, to)
	assert.True(t, to.IsZero())

	cfg.ToVersion = "v2"
	_, err = targetVersion(cfg)
	assert.Error(t, err)
}

func TestRun_UserErrors(t *testing.T) {
	unsetEnv(t, "PATCHER_DATABASE_URL", "PATCHER_TO_VERSION", "PATCHER_LOG_LEVEL")
	tests := []struct {
		name string
		args []string
	}{
		{name: "bad-flag", args: []string{"-nope"}},
		{name: "no-url", args: []string{"/tmp"}},
		{name: "bad-version", args: []string{"-database-url", "postgres://x/y", "-to-version", "v1", "/tmp"}},
		{name: "bad-log-level", args: []string{"-database-url", "postgres://x/y", "-log-level", "loud", "/tmp"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ui := newBase("table")
			assert.Equal(t, base.CommandUserError, (&Command{Command: c}).Run(tt.args))
			assert.NotEmpty(t, ui.ErrorWriter.String())

			c, _ = newBase("table")
			assert.Equal(t, base.CommandUserError, (&PlanCommand{Command: c}).Run(tt.args))
		})
	}
}

func TestSummary(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newSummary()
	s.OnPatchApplied(ctx, migration.PatchApplied{})
	s.OnPatchApplied(ctx, migration.PatchApplied{})
	s.OnVersionSet(ctx, migration.VersionSet{Section: "core", Version: migration.MustParseVersion("2")})
	s.OnVersionSet(ctx, migration.VersionSet{Section: "blog", Schema: "a", Version: migration.MustParseVersion("1")})

	res := s.result(nil, 1500*time.Millisecond)
	assert.Equal(t, "latest", res.Target)
	assert.Equal(t, 2, res.FilesApplied)
	assert.Equal(t, 2, res.VersionsSet)
	assert.Equal(t, "1.5s", res.Duration)
	assert.Equal(t, []string{"blog in a: 1", "core in current_schema(): 2"}, res.Sections)
}

func TestFormatPlan(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "No sections found.", formatPlan(&schema.Plan{}))

	to := migration.MustParseVersion("2")
	out := formatPlan(&schema.Plan{
		Target: &to,
		Sections: []schema.SectionPlan{
			{
				Section:   "core",
				Schema:    "current_schema()",
				Direction: "up",
				Version:   migration.MustParseVersion("1"),
				Fix:       1,
				Landed:    to,
				Steps: []schema.PlanStep{
					{Kind: migration.Fix, From: migration.MustParseVersion("1"), To: migration.MustParseVersion("1"), Fix: 2, Files: []string{"fix.1-2.sql"}},
					{Kind: migration.Schema, From: migration.MustParseVersion("1"), To: to, Files: []string{"schema.1-2.sql"}},
				},
			},
			{Section: "blog", Schema: "a", Version: to, Landed: to},
			{Section: "shop", Schema: "b", Error: "cannot move"},
		},
	})
	assert.Contains(t, out, "Plan to 2, 2 file(s) pending:")
	assert.Contains(t, out, "core in current_schema(): 1 (fix 1) -> 2 (up)")
	assert.Contains(t, out, "fix 1-2: fix.1-2.sql")
	assert.Contains(t, out, "1 -> 2: schema.1-2.sql")
	assert.Contains(t, out, "blog in a: 2 (up to date)")
	assert.Contains(t, out, "shop in b: 0 (unreachable)")
}
