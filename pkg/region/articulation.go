package region

import "slices"

// Articulation returns the fragments of region r that removing zone z would
// cut off from the rest of the region, or nil when z is not an articulation
// point of the non-exclave part of r.
//
// For a zone outside r the answer is the set of exclaves of r that adding z
// would connect, as a single fragment, or nil when there are none.
func (m *Model) Articulation(r, z int) [][]int {
	if !m.IsInRegion(z, r) {
		if frag := m.reachableExclaves(r, z); len(frag) > 0 {
			return [][]int{frag}
		}
		return nil
	}
	reg := &m.regions[r]
	if reg.artic == nil {
		reg.artic = m.calcArticulations(r)
	}
	return reg.artic[z]
}

// IsArticulation reports whether removing zone z splits region r.
func (m *Model) IsArticulation(r, z int) bool {
	return len(m.Articulation(r, z)) > 0
}

// calcArticulations runs one iterative depth-first traversal per component
// of the non-exclave subgraph of region r and records, for every
// articulation point, the subtrees it separates.
func (m *Model) calcArticulations(r int) map[int][][]int {
	var members []int
	for _, a := range m.regions[r].assigns {
		if asg := m.assigns[a]; !asg.Exclave {
			members = append(members, asg.Zone)
		}
	}
	slices.Sort(members)

	adj := make(map[int][]int, len(members))
	for _, z := range members {
		for _, n := range m.zones[z].Neighbours {
			if m.IsInContiguousRegion(n, r) {
				adj[z] = append(adj[z], n)
			}
		}
	}

	type frame struct{ v, parent, next int }
	disc := make(map[int]int, len(members))
	low := make(map[int]int, len(members))
	size := make(map[int]int, len(members))
	children := make(map[int][]int)
	var order []int
	var roots []int

	for _, root := range members {
		if _, seen := disc[root]; seen {
			continue
		}
		roots = append(roots, root)
		disc[root] = len(order)
		low[root] = disc[root]
		order = append(order, root)
		stack := []frame{{v: root, parent: -1}}
		for len(stack) > 0 {
			top := len(stack) - 1
			v := stack[top].v
			if next := stack[top].next; next < len(adj[v]) {
				stack[top].next++
				w := adj[v][next]
				if _, seen := disc[w]; !seen {
					disc[w] = len(order)
					low[w] = disc[w]
					order = append(order, w)
					children[v] = append(children[v], w)
					stack = append(stack, frame{v: w, parent: v})
				} else if w != stack[top].parent {
					low[v] = min(low[v], disc[w])
				}
				continue
			}
			size[v] = len(order) - disc[v]
			if p := stack[top].parent; p >= 0 {
				low[p] = min(low[p], low[v])
			}
			stack = stack[:top]
		}
	}

	subtree := func(c int) []int {
		return slices.Clone(order[disc[c] : disc[c]+size[c]])
	}
	isRoot := make(map[int]bool, len(roots))
	for _, root := range roots {
		isRoot[root] = true
	}

	out := make(map[int][][]int)
	for _, v := range members {
		var frags [][]int
		if isRoot[v] {
			if kids := children[v]; len(kids) >= 2 {
				for _, c := range kids[1:] {
					frags = append(frags, subtree(c))
				}
			}
		} else {
			for _, c := range children[v] {
				if low[c] >= disc[v] {
					frags = append(frags, subtree(c))
				}
			}
		}
		if len(frags) > 0 {
			out[v] = frags
		}
	}
	return out
}

// reachableExclaves collects the exclaves of region r connected to the
// outside zone z through other exclaves of r.
func (m *Model) reachableExclaves(r, z int) []int {
	isExclave := func(n int) bool {
		a, ok := m.AssignmentTo(n, r)
		return ok && m.assigns[a].Exclave
	}
	seen := map[int]bool{z: true}
	var frag []int
	queue := []int{z}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, n := range m.zones[cur].Neighbours {
			if seen[n] || !isExclave(n) {
				continue
			}
			seen[n] = true
			frag = append(frag, n)
			queue = append(queue, n)
		}
	}
	slices.Sort(frag)
	return frag
}

// IsOnlyConnection reports whether zone x is the only link between the zone
// of assignment a and the cores of its region: removing x (or, for x outside
// the region, leaving it out) leaves the zone separated from every core.
func (m *Model) IsOnlyConnection(a, x int) bool {
	asg := m.assigns[a]
	frags := m.Articulation(asg.Region, x)
	if frags == nil {
		return false
	}
	cores := m.CoreZones(asg.Region)
	remaining := len(cores)
	for _, frag := range frags {
		inFrag := 0
		for _, c := range cores {
			if slices.Contains(frag, c) {
				inFrag++
			}
		}
		if slices.Contains(frag, asg.Zone) {
			return !asg.Core && inFrag == 0
		}
		if inFrag > 0 {
			remaining -= inFrag
			if remaining <= 0 {
				return true
			}
		}
	}
	return false
}
