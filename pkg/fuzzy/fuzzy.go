// Package fuzzy computes membership degrees of zones in regions.
//
// A [Fuzzier] turns the flows of a zone into a degree for each of its
// assignments. The degree weights the zone mass counted toward the region,
// so updating the degrees of a region also refreshes its cached mass.
//
// # Strategies
//
//   - basic: every assignment has degree 1
//   - hampl: share of the zone's mutual flow bound to the region, counting
//     flows to the whole region for core zones and to its cores otherwise
//   - simbera: share of the zone's mutual flow going to the region
//   - feng: hampl membership without exclave penalization
//
// # Exclave Penalization
//
// With a penalization coefficient p other than 1, every update first
// recomputes the exclave flags of the region. Exclave assignments then get
// p times their membership, or 0 when p is 0.
package fuzzy

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/matzehuels/regionkit/pkg/colors"
	"github.com/matzehuels/regionkit/pkg/region"
)

// ErrUnknownType is returned by [New] for an unregistered fuzzier name.
var ErrUnknownType = errors.New("unknown fuzzier type")

// Fuzzier assigns membership degrees to zone assignments.
type Fuzzier interface {
	// Name returns the configuration name of the strategy.
	Name() string
	// Membership returns the unpenalized degree of assignment a.
	Membership(m *region.Model, a int) float64
	// ForeignMembership returns the membership zone z would have in region
	// r it is not assigned to.
	ForeignMembership(m *region.Model, z, r int) float64
	// MembershipDifference returns the change in the degree of assignment
	// a that moving zone z into or out of its region would cause.
	MembershipDifference(m *region.Model, a, z int) float64
	// MembershipDict returns the weighted region colors of zone z.
	MembershipDict(m *region.Model, z int) []colors.Share
	// Update recomputes the degrees of every assignment of region r and
	// then its mass.
	Update(m *region.Model, r int)
	// UpdateAll calls Update for every region in rs.
	UpdateAll(m *region.Model, rs []int)
	Penalization() float64
	HasExclavePenalization() bool
	// Active reports whether stages refresh the degrees before running.
	Active() bool
}

// Options configures every fuzzier.
type Options struct {
	// Penalization is the exclave penalization coefficient in [0, 1].
	Penalization float64
	Active       bool
}

// DefaultOptions returns active options without exclave penalization.
func DefaultOptions() Options {
	return Options{Penalization: 1, Active: true}
}

// Types maps configuration names to fuzzier constructors.
var Types = map[string]func(Options) Fuzzier{
	"basic":   func(o Options) Fuzzier { return NewBasic(o) },
	"hampl":   func(o Options) Fuzzier { return NewHampl(o) },
	"simbera": func(o Options) Fuzzier { return NewSimbera(o) },
	"feng":    func(o Options) Fuzzier { return NewFeng(o) },
}

// TypeNames returns the registered fuzzier names in sorted order.
func TypeNames() []string {
	names := make([]string, 0, len(Types))
	for n := range Types {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// New returns the fuzzier registered under name. The empty name selects
// basic.
func New(name string, opts Options) (Fuzzier, error) {
	if name == "" || name == "default" {
		name = "basic"
	}
	ctor, ok := Types[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (must be one of: %s)", ErrUnknownType, name, strings.Join(TypeNames(), ", "))
	}
	return ctor(opts), nil
}

type base struct {
	opts       Options
	membership func(m *region.Model, a int) float64
}

func (b *base) Penalization() float64 { return b.opts.Penalization }

func (b *base) HasExclavePenalization() bool { return b.opts.Penalization != 1 }

func (b *base) Active() bool { return b.opts.Active }

func (b *base) fuzzify(m *region.Model, a int) float64 {
	if b.HasExclavePenalization() && m.Assignment(a).Exclave {
		if b.opts.Penalization == 0 {
			return 0
		}
		return b.opts.Penalization * b.membership(m, a)
	}
	return b.membership(m, a)
}

func (b *base) Update(m *region.Model, r int) {
	if b.HasExclavePenalization() {
		m.DetectExclaves(r)
	}
	for _, a := range m.RegionAssignments(r) {
		m.SetDegree(a, b.fuzzify(m, a))
	}
	m.RecomputeMass(r)
}

func (b *base) UpdateAll(m *region.Model, rs []int) {
	for _, r := range rs {
		b.Update(m, r)
	}
}

// regionShares returns one share per region target of v, weighted by
// weight.
func regionShares(m *region.Model, targets []int, weight func(r int) float64) []colors.Share {
	out := make([]colors.Share, 0, len(targets))
	for _, r := range targets {
		out = append(out, colors.Share{Color: m.Region(r).Color, Weight: weight(r)})
	}
	return out
}
