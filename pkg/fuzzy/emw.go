package fuzzy

import (
	"github.com/matzehuels/regionkit/pkg/flow"
	"github.com/matzehuels/regionkit/pkg/region"
)

// HamplMembership returns the Hampl membership of zone z in region r. A
// core zone of r counts its flows to all of r and is never penalized; any
// other zone counts flows to the cores of r, multiplied by penal.
func HamplMembership(m *region.Model, z, r int, penal float64) float64 {
	flows := m.ZoneMutualFlows(z)
	var in, out float64
	if m.IsCoreOf(z, r) {
		in, out = flows.SumsByRegion(m, r)
		penal = 1
	} else {
		in, out = flows.SumsByCore(m, r)
	}
	return penal * flow.Ratio(in, in+out)
}

// HamplMembershipMass returns the mass zone z contributes to region r
// under the Hampl membership.
func HamplMembershipMass(m *region.Model, z, r int, penal float64) float64 {
	return m.Zone(z).Mass * HamplMembership(m, z, r, penal)
}

// HamplMassDiff returns the change zone d would cause in the membership
// mass of assignment a by moving into or out of its region. penal is the
// exclave penalization coefficient in force.
//
// For a hinterland zone with c flow to the cores, o flow out of the region
// and d flow to the moved zone, the difference is
// m*c*(1/(c+o) - e/(c+o+d)), where e is the penalization applied when d is
// the zone's only link to the cores.
func HamplMassDiff(m *region.Model, a, d int, penal float64) float64 {
	asg := m.Assignment(a)
	zone := m.Zone(asg.Zone)
	flows := m.ZoneMutualFlows(asg.Zone)
	if flows.Empty() {
		return 0
	}
	du := flow.ZoneUnit(d)
	if asg.Core {
		if !flows.Has(du) {
			return 0
		}
		in, out := flows.SumsByRegion(m, asg.Region)
		return zone.Mass * flow.Ratio(flows.Get(du), in+out)
	}
	if d == asg.Zone {
		return 0
	}
	var toZone float64
	switch {
	case flows.Has(du):
		toZone = flows.Get(du)
	case penal == 1:
		return 0
	}
	e := 1.0
	if penal != 1 && m.IsNeighbour(asg.Zone, d) && m.IsOnlyConnection(a, d) {
		e = penal
	}
	if toZone == 0 && e == 1 {
		return 0
	}
	toCore, out := flows.SumsByCore(m, asg.Region)
	if !m.IsInRegion(d, asg.Region) {
		out -= toZone
	}
	part := toCore + out
	if part == 0 || part+toZone == 0 {
		return 0
	}
	return zone.Mass * toCore * (1/part - e/(part+toZone))
}

// penalizationDiff returns the coefficient zone z would get in region r:
// penal when none of its neighbours belongs to r, 1 otherwise.
func penalizationDiff(m *region.Model, z, r int, penal float64) float64 {
	if penal == 1 {
		return 1
	}
	for _, n := range m.Zone(z).Neighbours {
		if m.IsInRegion(n, r) {
			return 1
		}
	}
	return penal
}

// EMWDiff returns the change in the EMW of region r caused by moving zone
// z into or out of it.
func EMWDiff(m *region.Model, r, z int, penal float64) float64 {
	var sum float64
	for _, a := range m.RegionAssignments(r) {
		sum += HamplMassDiff(m, a, z, penal)
	}
	return sum + HamplMembershipMass(m, z, r, penalizationDiff(m, z, r, penal))
}

// EMW returns the effective mass of region r: the sum of Hampl membership
// masses of its zones, exclaves penalized by penal.
func EMW(m *region.Model, r int, penal float64) float64 {
	var w float64
	for _, a := range m.RegionAssignments(r) {
		asg := m.Assignment(a)
		p := 1.0
		if asg.Exclave {
			p = penal
		}
		w += HamplMembershipMass(m, asg.Zone, r, p)
	}
	return w
}
