package region

// DetectExclaves flags every hinterland assignment of region r that cannot
// be reached from a core zone through zones of r. Reached assignments are
// cleared; core assignments are never exclaves.
func (m *Model) DetectExclaves(r int) {
	reached := make(map[int]bool)
	var queue []int
	for _, z := range m.CoreZones(r) {
		reached[z] = true
		queue = append(queue, z)
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, n := range m.zones[cur].Neighbours {
			if !reached[n] && m.IsInRegion(n, r) {
				reached[n] = true
				queue = append(queue, n)
			}
		}
	}
	for _, a := range m.regions[r].assigns {
		asg := m.assigns[a]
		m.SetExclave(a, !asg.Core && !reached[asg.Zone])
	}
}

// Exclaves returns the zones currently flagged as exclaves of region r.
func (m *Model) Exclaves(r int) []int {
	return m.zonesWhere(r, func(a Assignment) bool { return a.Exclave })
}
