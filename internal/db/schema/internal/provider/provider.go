// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

// Package provider resolves the ordered steps that move one section in one
// schema from its installed version towards a target version. Steps are
// provided through an iterator in the order they must be applied.
package provider

import (
	"fmt"
	"sort"

	"github.com/gridguyz/patcher/internal/db/schema/migration"
	"github.com/gridguyz/patcher/internal/errors"
)

// Direction is the sign of a version walk.
type Direction int

const (
	Down Direction = -1
	None Direction = 0
	Up   Direction = 1
)

func (d Direction) String() string {
	switch d {
	case Up:
		return "up"
	case Down:
		return "down"
	default:
		return "none"
	}
}

// DirectionOf returns the direction of a walk starting at from. A nil target
// or an unmigrated start always walks up; the zero target walks down.
func DirectionOf(from migration.Version, to *migration.Version) Direction {
	switch {
	case to == nil || from.IsZero():
		return Up
	case to.IsZero():
		return Down
	}
	switch c := to.Compare(from); {
	case c > 0:
		return Up
	case c < 0:
		return Down
	default:
		return None
	}
}

// Step is either one fix file or one hop between two versions. A hop lists
// its schema files before its data files.
type Step struct {
	From  migration.Version
	To    migration.Version
	Fix   *migration.FixFile
	Files []migration.File
}

// IsFix reports whether the step applies a fix file.
func (s Step) IsFix() bool {
	return s.Fix != nil
}

func (s Step) String() string {
	if s.Fix != nil {
		return fmt.Sprintf("fix %s-%d", s.Fix.Version, s.Fix.Index)
	}
	return fmt.Sprintf("%s -> %s", s.From, s.To)
}

// Provider provides the steps of one walk to the schema.Patcher in order.
type Provider struct {
	pos       int
	steps     []Step
	direction Direction
	landed    migration.Version
	fix       int
}

// New resolves the steps that move a section recorded at current towards to.
// A nil to walks up as far as the patches allow. When the walk cannot land
// exactly on to, New fails with errors.UnreachableVersion unless
// WithExactTarget(false) is given, in which case a downgrade takes one final
// hop below to and an upgrade stops where the patches end.
func New(patches []migration.File, fixes []migration.FixFile, current migration.Record, to *migration.Version, opt ...Option) (*Provider, error) {
	const op = "provider.New"
	opts := getOpts(opt...)
	from := current.Version
	p := &Provider{
		pos:       -1,
		direction: DirectionOf(from, to),
		landed:    from,
		fix:       current.Fix,
	}

	if p.direction != Down && !from.IsZero() {
		pending := make([]migration.FixFile, 0, len(fixes))
		for _, f := range fixes {
			if f.Version.Equal(from) && f.Index > current.Fix {
				pending = append(pending, f)
			}
		}
		sort.SliceStable(pending, func(i, j int) bool { return pending[i].Index < pending[j].Index })
		for i := range pending {
			f := pending[i]
			p.steps = append(p.steps, Step{From: from, To: from, Fix: &f})
			p.fix = f.Index
		}
	}
	if p.direction == None {
		return p, nil
	}

	prev := from
	for {
		next, ok := nextVersion(patches, p.direction, prev, to)
		if !ok {
			break
		}
		p.steps = append(p.steps, hop(patches, prev, next))
		prev = next
	}

	if to != nil && !prev.Equal(*to) {
		if opts.withExactTarget {
			return nil, errors.New(errors.UnreachableVersion, op,
				fmt.Sprintf("cannot move from %s to %s, no step leaves %s", from, to, prev))
		}
		if p.direction == Down {
			if last, ok := lastVersion(patches, prev, *to); ok {
				p.steps = append(p.steps, hop(patches, prev, last))
				prev = last
			}
		}
	}

	if !prev.Equal(from) {
		p.landed = prev
		p.fix = maxFix(fixes, prev)
	}
	return p, nil
}

// nextVersion returns the furthest version reachable from current in one hop
// of direction d without passing bound.
func nextVersion(patches []migration.File, d Direction, current migration.Version, bound *migration.Version) (migration.Version, bool) {
	var best migration.Version
	found := false
	for _, f := range patches {
		if !f.From.Equal(current) || Direction(f.To.Compare(f.From)) != d {
			continue
		}
		switch d {
		case Up:
			if bound != nil && f.To.Compare(*bound) > 0 {
				continue
			}
			if !found || f.To.Compare(best) > 0 {
				best, found = f.To, true
			}
		case Down:
			if bound != nil && f.To.Compare(*bound) < 0 {
				continue
			}
			if !found || f.To.Compare(best) < 0 {
				best, found = f.To, true
			}
		}
	}
	return best, found
}

// lastVersion returns the closest version below bound reachable from current
// in one downgrade hop.
func lastVersion(patches []migration.File, current, bound migration.Version) (migration.Version, bool) {
	var best migration.Version
	found := false
	for _, f := range patches {
		if !f.From.Equal(current) || f.To.Compare(f.From) >= 0 || f.To.Compare(bound) > 0 {
			continue
		}
		if !found || f.To.Compare(best) > 0 {
			best, found = f.To, true
		}
	}
	return best, found
}

func hop(patches []migration.File, from, to migration.Version) Step {
	s := Step{From: from, To: to}
	for _, k := range []migration.Kind{migration.Schema, migration.Data} {
		for _, f := range patches {
			if f.Kind == k && f.From.Equal(from) && f.To.Equal(to) {
				s.Files = append(s.Files, f)
			}
		}
	}
	return s
}

func maxFix(fixes []migration.FixFile, v migration.Version) int {
	if v.IsZero() {
		return 0
	}
	fix := 0
	for _, f := range fixes {
		if f.Version.Equal(v) && f.Index > fix {
			fix = f.Index
		}
	}
	return fix
}

// Next proceeds to the next step. It returns true on success or false if
// there are no more steps.
func (p *Provider) Next() bool {
	p.pos++
	return len(p.steps) > p.pos
}

// Step returns the current step.
func (p *Provider) Step() Step {
	if p.pos < 0 || p.pos >= len(p.steps) {
		return Step{}
	}
	return p.steps[p.pos]
}

// Steps returns every step of the walk.
func (p *Provider) Steps() []Step {
	return p.steps
}

// Direction returns the direction of the walk.
func (p *Provider) Direction() Direction {
	return p.direction
}

// Landed returns the version and fix index the section is at once every
// step has been applied.
func (p *Provider) Landed() (migration.Version, int) {
	return p.landed, p.fix
}
