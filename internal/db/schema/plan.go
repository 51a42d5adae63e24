// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package schema

import (
	"github.com/gridguyz/patcher/internal/db/schema/internal/provider"
	"github.com/gridguyz/patcher/internal/db/schema/internal/tenant"
	"github.com/gridguyz/patcher/internal/db/schema/migration"
)

// Plan is the result of a dry run.
type Plan struct {
	Target   *migration.Version `json:"target"`
	Sections []SectionPlan      `json:"sections"`
}

// SectionPlan describes how one section moves in one schema.
type SectionPlan struct {
	Root      string            `json:"root"`
	Section   string            `json:"section"`
	Schema    string            `json:"schema"`
	Direction string            `json:"direction"`
	Version   migration.Version `json:"version"`
	Fix       int               `json:"fix"`
	Landed    migration.Version `json:"landed"`
	LandedFix int               `json:"landed_fix"`
	Steps     []PlanStep        `json:"steps,omitempty"`
	// Error is set when the section cannot reach the target.
	Error string `json:"error,omitempty"`
}

// PlanStep is one fix file or one hop with its files in execution order.
type PlanStep struct {
	Kind  migration.Kind    `json:"kind"`
	From  migration.Version `json:"from"`
	To    migration.Version `json:"to"`
	Fix   int               `json:"fix,omitempty"`
	Files []string          `json:"files"`
}

// Pending returns the number of files the plan would execute.
func (p *Plan) Pending() int {
	n := 0
	for _, s := range p.Sections {
		for _, st := range s.Steps {
			n += len(st.Files)
		}
	}
	return n
}

// Unreachable returns the sections that cannot reach the target.
func (p *Plan) Unreachable() []SectionPlan {
	var out []SectionPlan
	for _, s := range p.Sections {
		if s.Error != "" {
			out = append(out, s)
		}
	}
	return out
}

func (p *Plan) add(root, section string, target tenant.Target, current migration.Record, prov *provider.Provider, err error) {
	sp := SectionPlan{
		Root:      root,
		Section:   section,
		Schema:    target.Label(),
		Version:   current.Version,
		Fix:       current.Fix,
		Landed:    current.Version,
		LandedFix: current.Fix,
	}
	if err != nil {
		sp.Error = err.Error()
		sp.Direction = provider.DirectionOf(current.Version, p.Target).String()
		p.Sections = append(p.Sections, sp)
		return
	}
	sp.Direction = prov.Direction().String()
	sp.Landed, sp.LandedFix = prov.Landed()
	for _, st := range prov.Steps() {
		if st.IsFix() {
			sp.Steps = append(sp.Steps, PlanStep{
				Kind:  migration.Fix,
				From:  st.From,
				To:    st.To,
				Fix:   st.Fix.Index,
				Files: []string{st.Fix.Path},
			})
			continue
		}
		ps := PlanStep{From: st.From, To: st.To}
		for i, f := range st.Files {
			if i == 0 {
				ps.Kind = f.Kind
			}
			ps.Files = append(ps.Files, f.Path)
		}
		if len(st.Files) > 1 {
			ps.Kind = "hop"
		}
		sp.Steps = append(sp.Steps, ps)
	}
	p.Sections = append(p.Sections, sp)
}
