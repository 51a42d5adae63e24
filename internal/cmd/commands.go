// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package cmd

import (
	"github.com/gridguyz/patcher/internal/cmd/base"
	"github.com/gridguyz/patcher/internal/cmd/commands/patch"
	"github.com/gridguyz/patcher/internal/cmd/commands/version"
	"github.com/mitchellh/cli"
)

// Commands is the mapping of all the available commands.
var Commands map[string]cli.CommandFactory

func initCommands(ui cli.Ui) {
	Commands = map[string]cli.CommandFactory{
		"patch": func() (cli.Command, error) {
			return &patch.Command{
				Command: base.NewCommand(ui),
			}, nil
		},
		"plan": func() (cli.Command, error) {
			return &patch.PlanCommand{
				Command: base.NewCommand(ui),
			}, nil
		},
		"version": func() (cli.Command, error) {
			return &version.Command{
				Command: base.NewCommand(ui),
			}, nil
		},
	}
}
