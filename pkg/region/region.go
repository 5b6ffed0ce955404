package region

import (
	"cmp"
	"slices"

	"github.com/matzehuels/regionkit/pkg/flow"
)

// RegionAssignments returns the live assignment indices of region r.
func (m *Model) RegionAssignments(r int) []int {
	return slices.Clone(m.regions[r].assigns)
}

// Alive reports whether region r is not erased and holds assignments.
func (m *Model) Alive(r int) bool {
	reg := &m.regions[r]
	return !reg.erased && len(reg.assigns) > 0
}

// Mass returns the cached mass of region r.
func (m *Model) Mass(r int) float64 { return m.regions[r].mass }

// CoreMass returns the cached degree-weighted mass of the core zones.
func (m *Model) CoreMass(r int) float64 { return m.regions[r].coreMass }

// RawCoreMass returns the cached unweighted mass of the core zones.
func (m *Model) RawCoreMass(r int) float64 { return m.regions[r].rawCoreMass }

// HinterlandMass returns the mass of the non-core part of region r.
func (m *Model) HinterlandMass(r int) float64 {
	return m.regions[r].mass - m.regions[r].coreMass
}

// SecondaryMass returns the degree-weighted secondary mass of region r.
func (m *Model) SecondaryMass(r int) float64 {
	var s float64
	for _, a := range m.regions[r].assigns {
		asg := m.assigns[a]
		s += m.zones[asg.Zone].SecondaryMass * asg.Degree
	}
	return s
}

// Zones returns the zones of non-oscillatory assignments of region r.
func (m *Model) Zones(r int) []int {
	return m.zonesWhere(r, func(a Assignment) bool { return a.Degree != 0 })
}

// MemberZones returns every zone assigned to region r.
func (m *Model) MemberZones(r int) []int {
	return m.zonesWhere(r, func(Assignment) bool { return true })
}

// CoreZones returns the core zones of region r.
func (m *Model) CoreZones(r int) []int {
	return m.zonesWhere(r, func(a Assignment) bool { return a.Core })
}

// HinterlandZones returns the non-core zones of region r with a nonzero
// degree.
func (m *Model) HinterlandZones(r int) []int {
	return m.zonesWhere(r, func(a Assignment) bool { return !a.Core && a.Degree != 0 })
}

// AllHinterlandZones returns every non-core zone of region r.
func (m *Model) AllHinterlandZones(r int) []int {
	return m.zonesWhere(r, func(a Assignment) bool { return !a.Core })
}

func (m *Model) zonesWhere(r int, keep func(Assignment) bool) []int {
	var out []int
	for _, a := range m.regions[r].assigns {
		if asg := m.assigns[a]; keep(asg) {
			out = append(out, asg.Zone)
		}
	}
	return out
}

func (m *Model) partZones(r int, core, hinter bool) []int {
	return m.zonesWhere(r, func(a Assignment) bool {
		if a.Core {
			return core
		}
		return hinter && a.Degree != 0
	})
}

// Outflows returns the summed outflows of the chosen parts of region r to
// zones outside it.
func (m *Model) Outflows(r int, core, hinter bool) *flow.Vector {
	out := flow.New()
	for _, z := range m.partZones(r, core, hinter) {
		out.Add(m.zones[z].Outflows)
	}
	return m.excludeOwn(r, out)
}

// Inflows returns the summed inflows of the chosen parts of region r from
// zones outside it.
func (m *Model) Inflows(r int, core, hinter bool) *flow.Vector {
	out := flow.New()
	for _, z := range m.partZones(r, core, hinter) {
		out.Add(m.zones[z].Inflows)
	}
	return m.excludeOwn(r, out)
}

// MutualFlows returns inflows plus outflows of region r.
func (m *Model) MutualFlows(r int, hinter bool) *flow.Vector {
	return m.Outflows(r, true, hinter).Add(m.Inflows(r, true, hinter))
}

func (m *Model) excludeOwn(r int, v *flow.Vector) *flow.Vector {
	for _, z := range m.MemberZones(r) {
		v.Delete(flow.ZoneUnit(z))
	}
	v.Delete(flow.RegionUnit(r))
	return v
}

// Intraflows returns the flows from the chosen source part of region r to
// the chosen target part. The result is cached until the region changes and
// must not be mutated.
func (m *Model) Intraflows(r int, fromCore, fromHinter, toCore, toHinter bool) *flow.Vector {
	key := intraKey{fromCore, fromHinter, toCore, toHinter}
	reg := &m.regions[r]
	if v, ok := reg.intra[key]; ok {
		return v
	}
	targets := make(map[flow.Unit]bool)
	for _, z := range m.partZones(r, toCore, toHinter) {
		targets[flow.ZoneUnit(z)] = true
	}
	out := flow.New()
	for _, z := range m.partZones(r, fromCore, fromHinter) {
		out.Add(m.zones[z].Outflows)
	}
	out.Restrict(targets)
	out.SetRaw(0)
	if reg.intra == nil {
		reg.intra = make(map[intraKey]*flow.Vector)
	}
	reg.intra[key] = out
	return out
}

// ContiguousZones returns the sorted zones adjacent to non-exclave members
// of region r that are not members themselves.
func (m *Model) ContiguousZones(r int) []int {
	var out []int
	for _, a := range m.regions[r].assigns {
		asg := m.assigns[a]
		if asg.Exclave {
			continue
		}
		for _, n := range m.zones[asg.Zone].Neighbours {
			if !m.IsInRegion(n, r) {
				out = insertSorted(out, n)
			}
		}
	}
	return out
}

// ContiguousRegions returns the sorted regions adjacent to non-exclave
// members of region r, excluding r itself.
func (m *Model) ContiguousRegions(r int) []int {
	var out []int
	for _, a := range m.regions[r].assigns {
		asg := m.assigns[a]
		if asg.Exclave {
			continue
		}
		for _, other := range m.ZoneContiguousRegions(asg.Zone) {
			if other != r {
				out = insertSorted(out, other)
			}
		}
	}
	return out
}

// HinterlandBorderings maps every hinterland zone of region r to the other
// regions it touches. Zones touching no other region are omitted.
func (m *Model) HinterlandBorderings(r int) map[int][]int {
	out := make(map[int][]int)
	for _, z := range m.HinterlandZones(r) {
		var others []int
		for _, other := range m.ZoneContiguousRegions(z) {
			if other != r {
				others = append(others, other)
			}
		}
		if len(others) > 0 {
			out[z] = others
		}
	}
	return out
}

// LiveRegions returns the distinct primary regions of all assigned zones,
// sorted by region ID and then index.
func (m *Model) LiveRegions() []int {
	seen := make(map[int]bool)
	var out []int
	for z := range m.zones {
		if r, ok := m.RegionOf(z); ok && !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	m.SortByID(out)
	return out
}

// SortByID orders region indices by region ID, then index.
func (m *Model) SortByID(rs []int) {
	slices.SortFunc(rs, func(a, b int) int {
		if c := cmp.Compare(m.regions[a].ID, m.regions[b].ID); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
}

// FindRegion returns the live region with the given ID.
func (m *Model) FindRegion(id string) (int, bool) {
	for r := range m.regions {
		if m.regions[r].ID == id && !m.regions[r].erased {
			return r, true
		}
	}
	return -1, false
}
