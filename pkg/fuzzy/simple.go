package fuzzy

import (
	"github.com/matzehuels/regionkit/pkg/colors"
	"github.com/matzehuels/regionkit/pkg/flow"
	"github.com/matzehuels/regionkit/pkg/region"
)

// Basic gives every assignment full membership.
type Basic struct{ base }

// NewBasic returns a basic fuzzier.
func NewBasic(opts Options) *Basic {
	b := &Basic{}
	b.base = base{opts: opts, membership: b.Membership}
	return b
}

func (*Basic) Name() string { return "basic" }

func (*Basic) Membership(*region.Model, int) float64 { return 1 }

func (*Basic) ForeignMembership(*region.Model, int, int) float64 { return 0 }

func (*Basic) MembershipDifference(*region.Model, int, int) float64 { return 0 }

// MembershipDict returns the color of the primary region of z with full
// weight, or nothing for an unassigned zone.
func (*Basic) MembershipDict(m *region.Model, z int) []colors.Share {
	r, ok := m.RegionOf(z)
	if !ok {
		return nil
	}
	return []colors.Share{{Color: m.Region(r).Color, Weight: 1}}
}

// Simbera measures membership as the share of the zone's mutual flow that
// goes to the region.
type Simbera struct{ base }

// NewSimbera returns a Simbera fuzzier.
func NewSimbera(opts Options) *Simbera {
	s := &Simbera{}
	s.base = base{opts: opts, membership: s.Membership}
	return s
}

func (*Simbera) Name() string { return "simbera" }

func (s *Simbera) Membership(m *region.Model, a int) float64 {
	asg := m.Assignment(a)
	return s.ForeignMembership(m, asg.Zone, asg.Region)
}

func (*Simbera) ForeignMembership(m *region.Model, z, r int) float64 {
	flows := m.ZoneMutualFlows(z)
	if flows.Empty() {
		return 0
	}
	return flow.Ratio(flows.SumToRegion(m, r), flows.Sum())
}

func (*Simbera) MembershipDifference(*region.Model, int, int) float64 { return 0 }

func (*Simbera) MembershipDict(m *region.Model, z int) []colors.Share {
	regflows := m.ZoneMutualFlows(z).ToRegional(m)
	sum := regflows.Sum()
	return regionShares(m, regionTargets(regflows), func(r int) float64 {
		return flow.Ratio(regflows.Get(flow.RegionUnit(r)), sum)
	})
}

func regionTargets(v *flow.Vector) []int {
	var out []int
	for _, u := range v.Targets() {
		if u.IsRegion() {
			out = append(out, u.Index)
		}
	}
	return out
}
