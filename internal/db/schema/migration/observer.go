// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package migration

import "context"

// SchemaSwitch describes a change of the session search path.
type SchemaSwitch struct {
	Section  string
	Previous string
	Schema   string
}

// PatchApplied describes one executed patch or fix file.
type PatchApplied struct {
	Section string
	Schema  string
	Path    string
	Kind    Kind
	From    Version
	To      Version
	// Fix is the fix index for fix files and 0 otherwise.
	Fix int
}

// VersionSet describes a bookkeeping write.
type VersionSet struct {
	Section string
	Schema  string
	Version Version
	Fix     int
}

// Observer receives structured notifications while a batch runs.
// Notifications are delivered before the outer transaction commits, so an
// observer may see events for work that is later rolled back.
type Observer interface {
	OnSchemaSwitch(ctx context.Context, e SchemaSwitch)
	OnPatchApplied(ctx context.Context, e PatchApplied)
	OnVersionSet(ctx context.Context, e VersionSet)
}

// NopObserver ignores every notification.
type NopObserver struct{}

func (NopObserver) OnSchemaSwitch(context.Context, SchemaSwitch) {}
func (NopObserver) OnPatchApplied(context.Context, PatchApplied) {}
func (NopObserver) OnVersionSet(context.Context, VersionSet)     {}

// Observers fans notifications out to each observer in order.
type Observers []Observer

func (o Observers) OnSchemaSwitch(ctx context.Context, e SchemaSwitch) {
	for _, ob := range o {
		ob.OnSchemaSwitch(ctx, e)
	}
}

func (o Observers) OnPatchApplied(ctx context.Context, e PatchApplied) {
	for _, ob := range o {
		ob.OnPatchApplied(ctx, e)
	}
}

func (o Observers) OnVersionSet(ctx context.Context, e VersionSet) {
	for _, ob := range o {
		ob.OnVersionSet(ctx, e)
	}
}
