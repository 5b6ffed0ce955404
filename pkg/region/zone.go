package region

import (
	"slices"

	"github.com/matzehuels/regionkit/pkg/flow"
)

// ZoneAssignments returns the live assignment indices of zone z.
func (m *Model) ZoneAssignments(z int) []int {
	return slices.Clone(m.zones[z].assigns)
}

// IsAssigned reports whether zone z holds any assignment.
func (m *Model) IsAssigned(z int) bool {
	return len(m.zones[z].assigns) > 0
}

// AssignmentTo returns the assignment of zone z to region r.
func (m *Model) AssignmentTo(z, r int) (int, bool) {
	for _, a := range m.zones[z].assigns {
		if m.assigns[a].Region == r {
			return a, true
		}
	}
	return -1, false
}

// RegionOf returns the primary region of zone z. In fuzzy mode this is the
// assignment with the highest degree, ties going to the lower region index.
func (m *Model) RegionOf(z int) (int, bool) {
	assigns := m.zones[z].assigns
	if len(assigns) == 0 {
		return -1, false
	}
	best := m.assigns[assigns[0]]
	for _, a := range assigns[1:] {
		cand := m.assigns[a]
		if cand.Degree > best.Degree || (cand.Degree == best.Degree && cand.Region < best.Region) {
			best = cand
		}
	}
	return best.Region, true
}

// CoreOf returns the region that zone z anchors as a core zone.
func (m *Model) CoreOf(z int) (int, bool) {
	for _, a := range m.zones[z].assigns {
		if m.assigns[a].Core {
			return m.assigns[a].Region, true
		}
	}
	return -1, false
}

// IsCoreOf reports whether zone z is a core zone of region r.
func (m *Model) IsCoreOf(z, r int) bool {
	a, ok := m.AssignmentTo(z, r)
	return ok && m.assigns[a].Core
}

// IsCore reports whether zone z is a core zone of any region.
func (m *Model) IsCore(z int) bool {
	_, ok := m.CoreOf(z)
	return ok
}

// IsInRegion reports whether zone z is assigned to region r.
func (m *Model) IsInRegion(z, r int) bool {
	_, ok := m.AssignmentTo(z, r)
	return ok
}

// IsInContiguousRegion reports whether zone z belongs to region r and is
// not an exclave of it.
func (m *Model) IsInContiguousRegion(z, r int) bool {
	a, ok := m.AssignmentTo(z, r)
	return ok && !m.assigns[a].Exclave
}

// RegionsOf returns the regions of every assignment of zone z in
// assignment order.
func (m *Model) RegionsOf(z int) []int {
	out := make([]int, 0, len(m.zones[z].assigns))
	for _, a := range m.zones[z].assigns {
		out = append(out, m.assigns[a].Region)
	}
	return out
}

// ZoneContiguousRegions returns the sorted regions held by neighbours of
// zone z.
func (m *Model) ZoneContiguousRegions(z int) []int {
	var out []int
	for _, n := range m.zones[z].Neighbours {
		for _, a := range m.zones[n].assigns {
			out = insertSorted(out, m.assigns[a].Region)
		}
	}
	return out
}

// ZoneMutualFlows returns inflows plus outflows of zone z.
func (m *Model) ZoneMutualFlows(z int) *flow.Vector {
	return m.zones[z].Inflows.Clone().Add(m.zones[z].Outflows)
}

// IsNeighbour reports whether zones a and b are adjacent.
func (m *Model) IsNeighbour(a, b int) bool {
	_, found := slices.BinarySearch(m.zones[a].Neighbours, b)
	return found
}

// ZoneMass returns the mass of zone z weighted by all its assignment
// degrees, or the raw mass for an unassigned zone.
func (m *Model) ZoneMass(z int) float64 {
	zone := &m.zones[z]
	if len(zone.assigns) == 0 {
		return zone.Mass
	}
	var deg float64
	for _, a := range zone.assigns {
		deg += m.assigns[a].Degree
	}
	return zone.Mass * deg
}

// AssignmentMass returns zone mass times degree of assignment a.
func (m *Model) AssignmentMass(a int) float64 {
	asg := m.assigns[a]
	return m.zones[asg.Zone].Mass * asg.Degree
}
