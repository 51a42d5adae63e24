// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package patch

import (
	"context"
	"fmt"
	"strings"

	"github.com/gridguyz/patcher/internal/cmd/base"
	"github.com/gridguyz/patcher/internal/db/schema"
	"github.com/mitchellh/cli"
	"github.com/posener/complete"
)

var (
	_ cli.Command             = (*PlanCommand)(nil)
	_ cli.CommandAutocomplete = (*PlanCommand)(nil)
)

// PlanCommand shows what patch would do without changing the database.
type PlanCommand struct {
	*base.Command
	runFlags
}

func (c *PlanCommand) Synopsis() string {
	return "Show the migrations patch would apply"
}

func (c *PlanCommand) Help() string {
	return base.WrapForHelpText([]string{
		"Usage: patcher plan [options] <root>...",
		"",
		"  Resolve, for every section and schema, the migration files patch would run with the same options. Nothing is applied; any bookkeeping the plan needs is rolled back.",
		"",
		"  The command exits with a non zero status when a section cannot reach -to-version.",
		"",
	}) + c.Flags().Help()
}

func (c *PlanCommand) Flags() *base.FlagSets {
	set := c.FlagSet(base.FlagSetDatabase | base.FlagSetLogging | base.FlagSetOutputFormat)
	f := set.NewFlagSet("Command Options")
	c.runFlags.addFlags(f, false)
	return set
}

func (c *PlanCommand) AutocompleteArgs() complete.Predictor {
	return complete.PredictDirs("*")
}

func (c *PlanCommand) AutocompleteFlags() complete.Flags {
	return c.Flags().Completions()
}

func (c *PlanCommand) Run(args []string) int {
	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	r, code := setup(ctx, c.Command, c.Flags(), &c.runFlags, args)
	if code != base.CommandSuccess {
		return code
	}
	defer r.close()

	plan, err := r.patcher.Plan(ctx, r.cfg.Roots, r.to)
	if err != nil {
		c.PrintCliError(err)
		return base.CommandMigrationError
	}

	if base.Format(c.UI) == "json" {
		if !c.PrintJson(plan) {
			return base.CommandCliError
		}
	} else {
		c.UI.Output(formatPlan(plan))
	}
	if len(plan.Unreachable()) > 0 {
		return base.CommandMigrationError
	}
	return base.CommandSuccess
}

func formatPlan(plan *schema.Plan) string {
	if len(plan.Sections) == 0 {
		return "No sections found."
	}
	target := "latest"
	if plan.Target != nil {
		target = plan.Target.String()
	}
	ret := []string{
		"",
		fmt.Sprintf("Plan to %s, %d file(s) pending:", target, plan.Pending()),
	}
	for _, s := range plan.Sections {
		ret = append(ret, "")
		header := fmt.Sprintf("  %s in %s: %s", s.Section, s.Schema, versionFix(s.Version.String(), s.Fix))
		switch {
		case s.Error != "":
			ret = append(ret, header+" (unreachable)")
			ret = append(ret, "    "+s.Error)
			continue
		case len(s.Steps) == 0:
			ret = append(ret, header+" (up to date)")
			continue
		}
		ret = append(ret, fmt.Sprintf("%s -> %s (%s)", header, versionFix(s.Landed.String(), s.LandedFix), s.Direction))
		for _, st := range s.Steps {
			label := fmt.Sprintf("%s -> %s", st.From, st.To)
			if st.Fix > 0 {
				label = fmt.Sprintf("fix %s-%d", st.From, st.Fix)
			}
			ret = append(ret, fmt.Sprintf("    %s: %s", label, strings.Join(st.Files, ", ")))
		}
	}
	ret = append(ret, "")
	return base.WrapForHelpText(ret)
}

func versionFix(v string, fix int) string {
	if fix == 0 {
		return v
	}
	return fmt.Sprintf("%s (fix %d)", v, fix)
}
