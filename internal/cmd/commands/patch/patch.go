// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package patch

import (
	"context"
	"sort"
	"time"

	"github.com/gridguyz/patcher/internal/cmd/base"
	"github.com/gridguyz/patcher/internal/db/schema"
	"github.com/gridguyz/patcher/internal/db/schema/migration"
	"github.com/mitchellh/cli"
	"github.com/posener/complete"
)

var (
	_ cli.Command             = (*Command)(nil)
	_ cli.CommandAutocomplete = (*Command)(nil)
)

// Command applies migrations.
type Command struct {
	*base.Command
	runFlags
}

func (c *Command) Synopsis() string {
	return "Apply migrations to a database"
}

func (c *Command) Help() string {
	return base.WrapForHelpText([]string{
		"Usage: patcher patch [options] <root>...",
		"",
		"  Move every section found under the given migration roots to a target version. Each root holds one directory per section, with common, central and site subdirectories of migration files.",
		"",
		"  The whole run is one transaction: when any migration fails nothing is applied.",
		"",
		"    $ patcher patch -database-url=postgres://localhost/app -to-version=2.0 ./vendor/app/sql",
		"",
	}) + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSets {
	set := c.FlagSet(base.FlagSetDatabase | base.FlagSetLogging | base.FlagSetOutputFormat)
	f := set.NewFlagSet("Command Options")
	c.runFlags.addFlags(f, true)
	return set
}

func (c *Command) AutocompleteArgs() complete.Predictor {
	return complete.PredictDirs("*")
}

func (c *Command) AutocompleteFlags() complete.Flags {
	return c.Flags().Completions()
}

func (c *Command) Run(args []string) int {
	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	r, code := setup(ctx, c.Command, c.Flags(), &c.runFlags, args)
	if code != base.CommandSuccess {
		return code
	}
	defer r.close()

	sum := newSummary()
	start := time.Now()
	err := r.patcher.Patch(ctx, r.cfg.Roots, r.to, schema.WithObserver(sum))
	if merr := r.writeMetrics(start, err); merr != nil {
		r.logger.Error("error writing metrics file", "path", r.cfg.MetricsFile, "error", merr)
	}
	if err != nil {
		c.PrintCliError(err)
		return base.CommandMigrationError
	}

	if base.Format(c.UI) == "json" {
		if !c.PrintJson(sum.result(r.to, time.Since(start))) {
			return base.CommandCliError
		}
		return base.CommandSuccess
	}

	res := sum.result(r.to, time.Since(start))
	ret := []string{
		"",
		base.Highlight("Patch complete."),
		base.WrapMap(2, 0, map[string]any{
			"Target":        res.Target,
			"Files applied": res.FilesApplied,
			"Versions set":  res.VersionsSet,
			"Duration":      res.Duration,
		}),
	}
	if len(res.Sections) > 0 {
		ret = append(ret, "", "Sections:", base.WrapSlice(2, res.Sections))
	}
	ret = append(ret, "")
	c.UI.Output(base.WrapForHelpText(ret))
	return base.CommandSuccess
}

// summary counts what a run did, for the command output.
type summary struct {
	applied int
	set     int
	landed  map[string]string
}

var _ migration.Observer = (*summary)(nil)

func newSummary() *summary {
	return &summary{landed: map[string]string{}}
}

func (s *summary) OnSchemaSwitch(context.Context, migration.SchemaSwitch) {}

func (s *summary) OnPatchApplied(context.Context, migration.PatchApplied) {
	s.applied++
}

func (s *summary) OnVersionSet(_ context.Context, e migration.VersionSet) {
	s.set++
	schemaName := e.Schema
	if schemaName == "" {
		schemaName = "current_schema()"
	}
	s.landed[e.Section+" in "+schemaName] = e.Version.String()
}

type patchResult struct {
	Target       string   `json:"target"`
	FilesApplied int      `json:"files_applied"`
	VersionsSet  int      `json:"versions_set"`
	Duration     string   `json:"duration"`
	Sections     []string `json:"sections,omitempty"`
}

func (s *summary) result(to *migration.Version, d time.Duration) patchResult {
	target := "latest"
	if to != nil {
		target = to.String()
	}
	res := patchResult{
		Target:       target,
		FilesApplied: s.applied,
		VersionsSet:  s.set,
		Duration:     d.Round(time.Millisecond).String(),
	}
	for k, v := range s.landed {
		res.Sections = append(res.Sections, k+": "+v)
	}
	sort.Strings(res.Sections)
	return res
}
