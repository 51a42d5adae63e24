// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

// Package metric provides a migration observer that counts what a patch run
// does, and writes the result in the Prometheus text format so it can be
// picked up by the node exporter textfile collector.
package metric

import (
	"context"
	"time"

	"github.com/gridguyz/patcher/internal/db/schema/migration"
	"github.com/gridguyz/patcher/internal/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	LabelKind    = "kind"
	LabelSchema  = "schema"
	LabelSection = "section"
	LabelResult  = "result"

	namespace = "patcher"

	currentSchemaValue = "current_schema()"
)

var allKinds = []migration.Kind{migration.Schema, migration.Data, migration.Fix}

// Observer implements migration.Observer on its own registry.
type Observer struct {
	registry *prometheus.Registry

	switches  prometheus.Counter
	applied   *prometheus.CounterVec
	versions  *prometheus.CounterVec
	fix       *prometheus.GaugeVec
	runs      *prometheus.CounterVec
	duration  prometheus.Gauge
	lastRunTs prometheus.Gauge
}

var _ migration.Observer = (*Observer)(nil)

// New creates an Observer with every collector registered and the kind
// labels of the applied counter zeroed.
func New() *Observer {
	o := &Observer{
		registry: prometheus.NewRegistry(),
		switches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schema_switches_total",
			Help:      "Number of times the search path head was switched to another schema.",
		}),
		applied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_applied_total",
			Help:      "Number of migration files executed, by kind.",
		}, []string{LabelKind}),
		versions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "versions_set_total",
			Help:      "Number of bookkeeping rows written, by section.",
		}, []string{LabelSection}),
		fix: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "section_fix",
			Help:      "Fix index recorded for a section in a schema after the last version write.",
		}, []string{LabelSection, LabelSchema}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Number of patch runs, by result.",
		}, []string{LabelResult}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_duration_seconds",
			Help:      "Wall time of the last patch run.",
		}),
		lastRunTs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last patch run finished.",
		}),
	}
	o.registry.MustRegister(o.switches, o.applied, o.versions, o.fix, o.runs, o.duration, o.lastRunTs)
	for _, k := range allKinds {
		o.applied.With(prometheus.Labels{LabelKind: string(k)})
	}
	for _, r := range []string{"success", "failure"} {
		o.runs.With(prometheus.Labels{LabelResult: r})
	}
	return o
}

// Registry returns the registry holding the observer's collectors.
func (o *Observer) Registry() *prometheus.Registry {
	return o.registry
}

func (o *Observer) OnSchemaSwitch(context.Context, migration.SchemaSwitch) {
	o.switches.Inc()
}

func (o *Observer) OnPatchApplied(_ context.Context, e migration.PatchApplied) {
	o.applied.With(prometheus.Labels{LabelKind: string(e.Kind)}).Inc()
}

func (o *Observer) OnVersionSet(_ context.Context, e migration.VersionSet) {
	o.versions.With(prometheus.Labels{LabelSection: e.Section}).Inc()
	schema := e.Schema
	if schema == "" {
		schema = currentSchemaValue
	}
	o.fix.With(prometheus.Labels{LabelSection: e.Section, LabelSchema: schema}).Set(float64(e.Fix))
}

// RecordRun records the outcome of a whole patch run that started at start.
func (o *Observer) RecordRun(start time.Time, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	o.runs.With(prometheus.Labels{LabelResult: result}).Inc()
	o.duration.Set(time.Since(start).Seconds())
	o.lastRunTs.SetToCurrentTime()
}

// WriteTextfile writes every metric to path atomically.
func (o *Observer) WriteTextfile(path string) error {
	const op = "metric.(Observer).WriteTextfile"
	if path == "" {
		return errors.New(errors.InvalidParameter, op, "missing path")
	}
	if err := prometheus.WriteToTextfile(path, o.registry); err != nil {
		return errors.Wrap(err, op, errors.WithCode(errors.Io))
	}
	return nil
}
