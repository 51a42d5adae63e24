// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package base

import (
	"github.com/mitchellh/cli"
)

// PatcherUI is a cli.Ui that remembers the output format chosen for the
// invocation.
type PatcherUI struct {
	cli.Ui
	Format string
}

// TermWidth is the width help text is wrapped at.
var TermWidth uint = 80
