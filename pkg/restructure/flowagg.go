package restructure

import (
	"slices"

	"github.com/matzehuels/regionkit/pkg/flow"
)

// FlowOptions configure a [FlowAggregator].
type FlowOptions struct {
	AggregatorOptions
	// TargetCoreOnly counts only flows to core zones of a region.
	TargetCoreOnly bool
	// Bidirectional adds inflows to outflows.
	Bidirectional bool
	// UseHinterlandFlows includes the hinterland when a region candidate
	// is measured.
	UseHinterlandFlows bool
	// SeparateHinterland moves only the cores of an absorbed region and
	// places its hinterland zones one by one.
	SeparateHinterland bool
	Transform          Transform
	Linkage            Linkage
}

// DefaultFlowOptions returns the aggregator defaults.
func DefaultFlowOptions() FlowOptions {
	return FlowOptions{
		AggregatorOptions:  DefaultAggregatorOptions(),
		Bidirectional:      true,
		UseHinterlandFlows: true,
		Linkage:            LinkageNone,
	}
}

// FlowAggregator assigns each candidate to the region it has the strongest
// flows with.
type FlowAggregator struct {
	aggregator
	opts FlowOptions
}

// NewFlowAggregator returns a flow aggregator.
func NewFlowAggregator(opts FlowOptions) *FlowAggregator {
	if opts.Linkage == "" {
		opts.Linkage = LinkageNone
	}
	a := &FlowAggregator{aggregator: newAggregator(opts.AggregatorOptions), opts: opts}
	a.reason = func(*Env) string {
		if opts.Neighbourhood {
			return "no flows to contiguous targets found"
		}
		return "no flows found"
	}
	return a
}

func (a *FlowAggregator) Aggregate(env *Env, u flow.Unit) bool {
	if u.IsRegion() {
		return a.done(u, a.aggregateRegion(env, u.Index))
	}
	return a.done(u, a.aggregateZone(env, u.Index))
}

func (a *FlowAggregator) aggregateZone(env *Env, z int) bool {
	m := env.Model
	flows := a.linked(env, flow.ZoneUnit(z), a.zoneFlows(env, z))
	contig := m.ZoneContiguousRegions(z)
	target, ok := a.pick(env, flows, a.limit(contig))
	if !ok || (a.opts.Neighbourhood && !slices.Contains(contig, target)) {
		return false
	}
	if err := env.Attach(z, target, false); err != nil {
		env.logger().Debug("attach failed", "zone", m.Zone(z).ID, "err", err)
		return false
	}
	env.Refresh(target)
	env.logger().Debug("aggregated zone", "zone", m.Zone(z).ID, "region", m.Region(target).ID)
	return true
}

func (a *FlowAggregator) aggregateRegion(env *Env, r int) bool {
	m := env.Model
	if !m.Alive(r) {
		return true
	}
	flows := a.linked(env, flow.RegionUnit(r), a.regionFlows(env, r))
	contig := m.ContiguousRegions(r)
	target, ok := a.pick(env, flows, a.limit(contig))
	if !ok || target == r || (a.opts.Neighbourhood && !slices.Contains(contig, target)) {
		return false
	}
	id := m.Region(r).ID
	rest, err := absorb(env, r, target, a.opts.SeparateHinterland)
	if err != nil {
		env.logger().Debug("absorb failed", "region", id, "err", err)
		return false
	}
	env.logger().Debug("aggregated region", "region", id, "into", m.Region(target).ID)
	for _, z := range rest {
		if !a.aggregateZone(env, z) {
			env.logger().Debug("hinterland zone left unassigned", "zone", m.Zone(z).ID)
		}
	}
	return true
}

// limit returns the regions the candidate may go to in the final round.
func (a *FlowAggregator) limit(contig []int) []int {
	if a.queue.FinalRound() && a.opts.Neighbourhood {
		return contig
	}
	return nil
}

func (a *FlowAggregator) zoneFlows(env *Env, z int) *flow.Vector {
	zone := env.Model.Zone(z)
	flows := a.process(env, zone.Outflows, true)
	if a.opts.Bidirectional {
		flows.Add(a.process(env, zone.Inflows, false))
	}
	return flows.Exclude(flow.ZoneUnit(z))
}

func (a *FlowAggregator) regionFlows(env *Env, r int) *flow.Vector {
	m := env.Model
	flows := a.process(env, m.Outflows(r, true, a.opts.UseHinterlandFlows), true)
	if a.opts.Bidirectional {
		flows.Add(a.process(env, m.Inflows(r, true, a.opts.UseHinterlandFlows), false))
	}
	return flows.Exclude(flow.RegionUnit(r))
}

// process reduces raw flows to regions and applies the transform. out
// tells whether v holds outflows of the candidate.
func (a *FlowAggregator) process(env *Env, v *flow.Vector, out bool) *flow.Vector {
	var regional *flow.Vector
	if a.opts.TargetCoreOnly {
		regional = v.ToCore(env.Model)
	} else {
		regional = v.ToRegional(env.Model)
	}
	if a.opts.Transform == nil {
		return regional
	}
	total := regional.Sum()
	for _, t := range regional.Targets() {
		regional.Set(t, a.opts.Transform(regional.Get(t), total, a.counterSum(env, t, out)))
	}
	return regional
}

// counterSum returns the total flow of target t in the direction opposite
// to the candidate's flows.
func (a *FlowAggregator) counterSum(env *Env, t flow.Unit, out bool) float64 {
	m := env.Model
	if t.IsRegion() {
		if out {
			return m.Inflows(t.Index, true, a.opts.UseHinterlandFlows).Sum()
		}
		return m.Outflows(t.Index, true, a.opts.UseHinterlandFlows).Sum()
	}
	if out {
		return m.Zone(t.Index).Inflows.Sum()
	}
	return m.Zone(t.Index).Outflows.Sum()
}

// linked applies the indirect linkage to the flows of source.
func (a *FlowAggregator) linked(env *Env, source flow.Unit, flows *flow.Vector) *flow.Vector {
	switch a.opts.Linkage {
	case LinkageGradual:
		return a.gradeDown(env, source, flows)
	case LinkageMarkov:
		return flows
	}
	return flows.RestrictKind(flow.KindRegion)
}

// gradeDown follows the strongest flow while it ends in an unassigned zone,
// blending that zone's own flows in proportion to the share it receives.
func (a *FlowAggregator) gradeDown(env *Env, source flow.Unit, flows *flow.Vector) *flow.Vector {
	sources := []flow.Unit{source}
	for {
		top, _, ok := flows.Strongest(nil)
		if !ok || top.IsRegion() {
			return flows
		}
		share := flow.Ratio(flows.Get(top), flows.Sum())
		sources = append(sources, top)
		flows.Add(a.zoneFlows(env, top.Index).Scale(share))
		flows.Exclude(sources...)
	}
}
