// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package base

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessLogLevelAndFormat(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name                                    string
		flagLevel, flagFormat, cfgLevel, cfgFmt string
		wantLevel                               hclog.Level
		wantFormat                              LogFormat
		wantErr                                 bool
	}{
		{name: "defaults", wantLevel: hclog.Info, wantFormat: StandardFormat},
		{name: "config", cfgLevel: "debug", cfgFmt: "json", wantLevel: hclog.Debug, wantFormat: JSONFormat},
		{name: "flags-win", flagLevel: "TRACE", flagFormat: "standard", cfgLevel: "debug", cfgFmt: "json", wantLevel: hclog.Trace, wantFormat: StandardFormat},
		{name: "aliases", flagLevel: "warning", wantLevel: hclog.Warn, wantFormat: StandardFormat},
		{name: "bad-level", flagLevel: "loud", wantErr: true},
		{name: "bad-format", flagFormat: "xml", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			level, format, err := ProcessLogLevelAndFormat(tt.flagLevel, tt.flagFormat, tt.cfgLevel, tt.cfgFmt)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantLevel, level)
			assert.Equal(t, tt.wantFormat, format)
		})
	}
}

func TestNewLogger_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "patcher.log")
	logger, closer, err := NewLogger("patcher", hclog.Info, JSONFormat, path)
	require.NoError(t, err)
	logger.Info("version set", "section", "core")
	require.NoError(t, closer.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"section":"core"`)

	_, _, err = NewLogger("patcher", hclog.Info, StandardFormat, filepath.Join(t.TempDir(), "missing", "patcher.log"))
	assert.Error(t, err)
}

func TestFlagSets(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)

	var (
		name    string
		enabled bool
		timeout time.Duration
		schemas []string
		secret  string
	)
	sets := NewFlagSets(cli.NewMockUi())
	f := sets.NewFlagSet("Command Options")
	f.StringVar(&StringVar{Name: "name", Target: &name, Default: "x", Usage: "Name."})
	f.BoolVar(&BoolVar{Name: "enabled", Target: &enabled, Default: true, Usage: "Enabled."})
	f.DurationVar(&DurationVar{Name: "timeout", Target: &timeout, Usage: "Timeout."})
	f.StringSliceVar(&StringSliceVar{Name: "schema", Aliases: []string{"s"}, Target: &schemas, Usage: "Schema."})
	f.StringVar(&StringVar{Name: "secret", Target: &secret, Hidden: true})

	assert.Equal("x", name)
	assert.True(enabled)

	require.NoError(sets.Parse([]string{"-name=y", "-enabled=false", "-timeout=90", "-schema", "a", "-s", "b", "root"}))
	assert.Equal("y", name)
	assert.False(enabled)
	assert.Equal(90*time.Second, timeout)
	assert.Equal([]string{"a", "b"}, schemas)
	assert.Equal([]string{"root"}, sets.Args())

	help := sets.Help()
	assert.Contains(help, "Command Options:")
	assert.Contains(help, "-name=<string>")
	assert.Contains(help, "The default is x.")
	assert.Contains(help, `This is aliased as "-s".`)
	assert.NotContains(help, "-secret")
	assert.Contains(sets.Completions(), "-schema")

	assert.Error(sets.Parse([]string{"-timeout=soon"}))
}

func TestWrapForHelpText(t *testing.T) {
	t.Parallel()
	long := "  " + strings.Repeat("word ", 30)
	out := WrapForHelpText([]string{"Usage: patcher patch", "", long})
	for _, line := range strings.Split(out, "\n") {
		assert.LessOrEqual(t, len(line), int(TermWidth))
	}
	assert.True(t, strings.HasPrefix(out, "Usage: patcher patch\n\n  word"))
}

func TestWrapMap(t *testing.T) {
	t.Parallel()
	out := WrapMap(2, 0, map[string]any{"Version": "1.2", "Schemas": []string{"a"}})
	assert.Equal(t, "  Schemas: [\"a\"]\n  Version: 1.2", out)
}

func TestWrapSlice(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "  core in public: 0 -> 2\n  blog in a: 1 -> 2", WrapSlice(2, []string{"core in public: 0 -> 2", "blog in a: 1 -> 2"}))
	assert.Equal(t, "", WrapSlice(2, nil))
}

func TestPrintCliError(t *testing.T) {
	t.Parallel()
	var errOut bytes.Buffer
	c := &Command{UI: &PatcherUI{Ui: &cli.BasicUi{Writer: &errOut, ErrorWriter: &errOut}, Format: "json"}}
	c.PrintCliError(assert.AnError)
	assert.JSONEq(t, `{"error":"`+assert.AnError.Error()+`"}`, errOut.String())
}
