package restructure

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/matzehuels/regionkit/pkg/flow"
	"github.com/matzehuels/regionkit/pkg/fuzzy"
	"github.com/matzehuels/regionkit/pkg/verify"
)

// ErrUnknownMerger is returned by [NewMerger] for an unsupported merger type.
var ErrUnknownMerger = errors.New("unknown merger type")

// MergerOptions configure a merger.
type MergerOptions struct {
	Threshold float64
	// Regional measures flows of whole regions instead of their cores.
	Regional bool
	// Neighbourhood restricts flow-based merge targets to adjacent regions.
	Neighbourhood bool
	// CounterFlow is the minimal counter-flow share for the Coombes merger.
	CounterFlow float64
	// ToFlow is the minimal outflow share for the Coombes merger.
	ToFlow float64
	// Ordering decides which regions try to merge first. Nil uses raw mass.
	Ordering verify.ValueFunc
}

// Merger merges regions into neighbours they overlap with.
type Merger struct {
	Name string
	opts MergerOptions
	// score rates region r merging into other. Only scores passing
	// accept are candidates.
	score  func(env *Env, r, other int) float64
	accept func(score, threshold float64) bool
	// candidates lists the regions r may merge into.
	candidates func(env *Env, r int) []int
	sorter     *verify.Sorter
}

var mergers = map[string]func(*Merger){
	"watts": func(mg *Merger) {
		mg.score = func(env *Env, r, o int) float64 {
			m := env.Model
			return flow.Ratio(AbsoluteOverlap(env, r, o), m.Mass(r)+m.Mass(o))
		}
	},
	"minimal": func(mg *Merger) {
		mg.score = func(env *Env, r, o int) float64 {
			m := env.Model
			return flow.Ratio(AbsoluteOverlap(env, r, o)/2, min(m.Mass(r), m.Mass(o)))
		}
	},
	"hampl": func(mg *Merger) {
		mg.score = HamplOverlap
	},
	"coombes": func(mg *Merger) {
		mg.score = mg.coombes
		mg.accept = func(s, th float64) bool { return s >= th }
		mg.candidates = mg.coombesTargets
	},
}

// MergerNames returns the supported merger types, sorted.
func MergerNames() []string {
	names := make([]string, 0, len(mergers))
	for n := range mergers {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// NewMerger returns the named merger.
func NewMerger(name string, opts MergerOptions) (*Merger, error) {
	setup, ok := mergers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (must be one of: %s)", ErrUnknownMerger, name, strings.Join(MergerNames(), ", "))
	}
	key := opts.Ordering
	if key == nil {
		key = verify.RawMass
	}
	mg := &Merger{
		Name:   name,
		opts:   opts,
		accept: func(s, th float64) bool { return s > th },
		candidates: func(env *Env, r int) []int {
			return env.Model.ContiguousRegions(r)
		},
		sorter: verify.NewSorter(key),
	}
	setup(mg)
	return mg, nil
}

// Score returns the merge score of region r into other.
func (mg *Merger) Score(env *Env, r, other int) float64 { return mg.score(env, r, other) }

// Target returns the best region for r to merge into. Equal scores are
// decided by the merger's ordering, then by region ID.
func (mg *Merger) Target(env *Env, r int) (int, bool) {
	var tops []int
	bestScore := 0.0
	for _, o := range mg.candidates(env, r) {
		if o == r || !env.Model.Alive(o) {
			continue
		}
		s := mg.score(env, r, o)
		if !mg.accept(s, mg.opts.Threshold) {
			continue
		}
		switch {
		case len(tops) == 0 || s > bestScore:
			tops, bestScore = append(tops[:0], o), s
		case s == bestScore:
			tops = append(tops, o)
		}
	}
	switch len(tops) {
	case 0:
		return -1, false
	case 1:
		return tops[0], true
	}
	best, _ := mg.sorter.Max(env.Model, Targets(tops))
	return best.Index, true
}

// Single merges region r into its best target and reports whether it did.
func (mg *Merger) Single(env *Env, r int) bool {
	if !env.Model.Alive(r) {
		return false
	}
	target, ok := mg.Target(env, r)
	if !ok {
		return false
	}
	mg.Merge(env, target, r)
	return true
}

// Run tries to merge every region, in ascending order, and returns the
// number of merges.
func (mg *Merger) Run(env *Env, regions []int) int {
	us := Targets(regions)
	mg.sorter.Sort(env.Model, us, false)
	merged := 0
	for _, u := range us {
		if mg.Single(env, u.Index) {
			merged++
		}
	}
	return merged
}

// Merge moves the cores of slave into master as cores, its hinterland as
// hinterland, and erases slave. Zones with a zero degree move too.
func (mg *Merger) Merge(env *Env, master, slave int) {
	m := env.Model
	cores, hinter := m.CoreZones(slave), m.AllHinterlandZones(slave)
	env.logger().Debug("merging regions", "slave", m.Region(slave).ID, "master", m.Region(master).ID)
	m.EraseRegion(slave)
	for _, z := range cores {
		if err := env.Move(z, master, true); err != nil {
			env.logger().Debug("core move failed", "zone", m.Zone(z).ID, "err", err)
		}
	}
	for _, z := range hinter {
		if err := env.Attach(z, master, false); err != nil {
			env.logger().Debug("hinterland move failed", "zone", m.Zone(z).ID, "err", err)
		}
	}
	env.Refresh(master)
}

// AbsoluteOverlap returns the mass of r1 that foreign-belongs to r2 plus
// the mass of r2 that foreign-belongs to r1.
func AbsoluteOverlap(env *Env, r1, r2 int) float64 {
	m := env.Model
	f := env.fuzzier()
	var sum float64
	for _, pair := range [2][2]int{{r1, r2}, {r2, r1}} {
		for _, z := range m.Zones(pair[0]) {
			sum += m.Zone(z).Mass * f.ForeignMembership(m, z, pair[1])
		}
	}
	return sum
}

// HamplOverlap returns the mass-weighted Hampl membership of the cores of
// r in region other.
func HamplOverlap(env *Env, r, other int) float64 {
	m := env.Model
	var weighted, total float64
	for _, z := range m.CoreZones(r) {
		w := m.Zone(z).Mass
		weighted += w * fuzzy.HamplMembership(m, z, other, 1)
		total += w
	}
	return flow.Ratio(weighted, total)
}

// regionalFlows returns the flows of r reduced to other regions.
func (mg *Merger) regionalFlows(env *Env, r int, out bool) *flow.Vector {
	m := env.Model
	var v *flow.Vector
	if out {
		v = m.Outflows(r, true, mg.opts.Regional)
	} else {
		v = m.Inflows(r, true, mg.opts.Regional)
	}
	return v.ToRegional(m).RestrictKind(flow.KindRegion).Exclude(flow.RegionUnit(r))
}

// coombesTargets returns the regions receiving at least ToFlow of the
// outflows of r, adjacent ones only when Neighbourhood is set.
func (mg *Merger) coombesTargets(env *Env, r int) []int {
	out := mg.regionalFlows(env, r, true)
	if out.Empty() {
		return nil
	}
	var contig []int
	if mg.opts.Neighbourhood {
		contig = env.Model.ContiguousRegions(r)
	}
	var targets []int
	for _, u := range out.Div(out.Sum()).AllOver(mg.opts.ToFlow) {
		if !mg.opts.Neighbourhood || slices.Contains(contig, u.Index) {
			targets = append(targets, u.Index)
		}
	}
	return targets
}

// rejected scores a pair that fails the counter flow condition.
const rejected = -1

// coombes scores the two-way flow dependency between r and other. Regions
// whose counter flow share stays under CounterFlow are rejected.
func (mg *Merger) coombes(env *Env, r, other int) float64 {
	out := mg.regionalFlows(env, r, true)
	in := mg.regionalFlows(env, r, false)
	toOther := out.Get(flow.RegionUnit(other))
	fromOther := in.Get(flow.RegionUnit(other))
	counterOut := mg.regionalFlows(env, other, true).Sum()
	counterIn := mg.regionalFlows(env, other, false).Sum()
	if fromOther <= 0 || flow.Ratio(fromOther, counterOut) < mg.opts.CounterFlow {
		return rejected
	}
	return flow.Ratio(fromOther*fromOther, in.Sum()*counterOut) +
		flow.Ratio(toOther*toOther, out.Sum()*counterIn)
}
