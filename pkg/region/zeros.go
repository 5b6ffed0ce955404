package region

import "strconv"

// DropZeros moves zero-mass hinterland zones out of the weighted regions
// they do not hold together and gives each of them, as well as every
// unassigned zero-mass zone, a singleton region of its own. It returns the
// created regions.
func (m *Model) DropZeros() []int {
	var created []int
	seed := func(z int) {
		zone := &m.zones[z]
		r := m.NewRegion(m.unusedID(zone.ID), zone.Color)
		if _, err := m.Tangle(z, r, true); err != nil {
			m.regions[r].erased = true
			return
		}
		created = append(created, r)
	}
	for _, r := range m.LiveRegions() {
		if m.Mass(r) == 0 {
			continue
		}
		for _, a := range m.RegionAssignments(r) {
			asg := m.assigns[a]
			if !asg.live || asg.Core || m.zones[asg.Zone].Mass != 0 || m.IsArticulation(r, asg.Zone) {
				continue
			}
			m.Deassign(asg.Zone)
			seed(asg.Zone)
		}
	}
	for z := range m.zones {
		if m.zones[z].Mass == 0 && !m.IsAssigned(z) {
			seed(z)
		}
	}
	return created
}

// unusedID returns id, or id with the smallest numeric suffix that no live
// region carries.
func (m *Model) unusedID(id string) string {
	if _, taken := m.FindRegion(id); !taken {
		return id
	}
	for i := 1; ; i++ {
		try := id + "-" + strconv.Itoa(i)
		if _, taken := m.FindRegion(try); !taken {
			return try
		}
	}
}
