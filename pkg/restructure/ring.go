package restructure

import (
	"fmt"
	"slices"

	"github.com/matzehuels/regionkit/pkg/flow"
)

// RingAggregator attaches unassigned zones whose dominant outflow goes to
// the core of a region.
type RingAggregator struct {
	aggregator
	// Threshold is the minimal share of the strongest outflow, 0 to 1.
	Threshold float64
}

// NewRingAggregator returns a ring aggregator. It always consumes zones.
func NewRingAggregator(opts AggregatorOptions, threshold float64) *RingAggregator {
	opts.Regional = false
	a := &RingAggregator{aggregator: newAggregator(opts), Threshold: threshold}
	a.reason = func(*Env) string {
		return fmt.Sprintf("no flows over %g %% found", threshold*100)
	}
	return a
}

func (a *RingAggregator) Aggregate(env *Env, u flow.Unit) bool {
	return a.done(u, u.IsZone() && a.attach(env, u.Index))
}

func (a *RingAggregator) attach(env *Env, z int) bool {
	m := env.Model
	if m.IsAssigned(z) {
		return false
	}
	out := m.Zone(z).Outflows
	top, value, ok := out.Strongest(nil)
	if !ok || !top.IsZone() || flow.Ratio(value, out.Sum()) < a.Threshold {
		return false
	}
	target, ok := m.CoreOf(top.Index)
	if !ok {
		return false
	}
	if a.opts.Neighbourhood && !slices.Contains(m.ZoneContiguousRegions(z), target) {
		return false
	}
	if err := env.Attach(z, target, false); err != nil {
		return false
	}
	env.Refresh(target)
	return true
}

// NeighbourhoodAggregator attaches each candidate to the adjacent region
// ranked highest by the secondary ordering.
type NeighbourhoodAggregator struct {
	aggregator
}

// NewNeighbourhoodAggregator returns a neighbourhood aggregator.
func NewNeighbourhoodAggregator(opts AggregatorOptions) *NeighbourhoodAggregator {
	a := &NeighbourhoodAggregator{aggregator: newAggregator(opts)}
	a.reason = func(*Env) string { return "no assigned neighbours found" }
	return a
}

func (a *NeighbourhoodAggregator) Aggregate(env *Env, u flow.Unit) bool {
	m := env.Model
	var contig []int
	if u.IsRegion() {
		if !m.Alive(u.Index) {
			return a.done(u, true)
		}
		contig = m.ContiguousRegions(u.Index)
	} else {
		contig = m.ZoneContiguousRegions(u.Index)
	}
	best, ok := a.secondary.Max(m, Targets(contig))
	if !ok {
		return a.done(u, false)
	}
	if u.IsRegion() {
		_, err := absorb(env, u.Index, best.Index, false)
		return a.done(u, err == nil)
	}
	if err := env.Attach(u.Index, best.Index, false); err != nil {
		return a.done(u, false)
	}
	env.Refresh(best.Index)
	return a.done(u, true)
}
