package fuzzy

import (
	"github.com/matzehuels/regionkit/pkg/colors"
	"github.com/matzehuels/regionkit/pkg/flow"
	"github.com/matzehuels/regionkit/pkg/region"
)

// Hampl measures membership by the share of mutual flow a zone exchanges
// with the region. Flows between hinterland zones of the same region do not
// count toward the membership of a hinterland zone.
type Hampl struct{ base }

// NewHampl returns a Hampl fuzzier.
func NewHampl(opts Options) *Hampl {
	h := &Hampl{}
	h.base = base{opts: opts, membership: h.Membership}
	return h
}

func (*Hampl) Name() string { return "hampl" }

func (*Hampl) Membership(m *region.Model, a int) float64 {
	return hamplDegree(m, m.Assignment(a))
}

func hamplDegree(m *region.Model, asg region.Assignment) float64 {
	flows := m.ZoneMutualFlows(asg.Zone)
	if flows.Empty() {
		return 0
	}
	var in, out float64
	if asg.Core {
		in, out = flows.SumsByRegion(m, asg.Region)
	} else {
		in, out = flows.SumsByCore(m, asg.Region)
	}
	return flow.Ratio(in, in+out)
}

func (*Hampl) ForeignMembership(m *region.Model, z, r int) float64 {
	flows := m.ZoneMutualFlows(z)
	if flows.Empty() {
		return 0
	}
	core, out := flows.SumsByCore(m, r)
	return flow.Ratio(core, core+out)
}

func (h *Hampl) MembershipDifference(m *region.Model, a, z int) float64 {
	mass := m.Zone(m.Assignment(a).Zone).Mass
	return flow.Ratio(HamplMassDiff(m, a, z, h.Penalization()), mass)
}

// MembershipDict weights the regions of a core zone by their share of its
// regional flow. A hinterland zone gets its flow to each region's cores
// relative to that flow plus the flow leaving the region.
func (*Hampl) MembershipDict(m *region.Model, z int) []colors.Share {
	flows := m.ZoneMutualFlows(z)
	regflows := flows.ToRegional(m)
	sum := flows.Sum()
	if m.IsCore(z) {
		return regionShares(m, regionTargets(regflows), func(r int) float64 {
			return flow.Ratio(regflows.Get(flow.RegionUnit(r)), sum)
		})
	}
	coreflows := flows.ToCore(m)
	return regionShares(m, regionTargets(coreflows), func(r int) float64 {
		u := flow.RegionUnit(r)
		return flow.Ratio(coreflows.Get(u), sum-regflows.Get(u)+coreflows.Get(u))
	})
}

// Feng uses the Hampl membership function and ignores exclaves.
type Feng struct{ Hampl }

// NewFeng returns a Feng fuzzier. The penalization coefficient is forced to
// 1.
func NewFeng(opts Options) *Feng {
	opts.Penalization = 1
	f := &Feng{}
	f.base = base{opts: opts, membership: f.Membership}
	return f
}

func (*Feng) Name() string { return "feng" }

func (*Feng) MembershipDifference(*region.Model, int, int) float64 { return 0 }
