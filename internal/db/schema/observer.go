// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package schema

import (
	"context"

	"github.com/gridguyz/patcher/internal/db/schema/migration"
	"github.com/hashicorp/go-hclog"
)

// LogObserver reports batch progress to an hclog.Logger.
type LogObserver struct {
	logger hclog.Logger
}

var _ migration.Observer = (*LogObserver)(nil)

// NewLogObserver returns a LogObserver writing to l, or discarding output
// when l is nil.
func NewLogObserver(l hclog.Logger) *LogObserver {
	if l == nil {
		l = hclog.NewNullLogger()
	}
	return &LogObserver{logger: l}
}

func (o *LogObserver) OnSchemaSwitch(_ context.Context, e migration.SchemaSwitch) {
	o.logger.Debug("schema switched", "section", e.Section, "schema", e.Schema, "previous", e.Previous)
}

func (o *LogObserver) OnPatchApplied(_ context.Context, e migration.PatchApplied) {
	if e.Kind == migration.Fix {
		o.logger.Info("fix applied", "section", e.Section, "schema", e.Schema, "path", e.Path, "version", e.From.String(), "fix", e.Fix)
		return
	}
	o.logger.Info("patch applied", "section", e.Section, "schema", e.Schema, "path", e.Path, "from", e.From.String(), "to", e.To.String())
}

// OnVersionSet is logged by the version store itself.
func (o *LogObserver) OnVersionSet(context.Context, migration.VersionSet) {}
