package restructure

import (
	"github.com/matzehuels/regionkit/pkg/flow"
)

// Destroyer removes weak memberships: regions or zones whose summed
// assignment degree does not exceed a threshold, and optionally exclaves.
type Destroyer struct {
	// Regional erases regions instead of deassigning zones.
	Regional bool
	// Threshold is the summed degree at or below which a target is
	// destroyed. Nil disables the check.
	Threshold *float64
	// Exclave destroys zones that are exclaves of any region.
	Exclave bool
}

// Run destroys every qualifying target and returns how many were
// destroyed.
func (d *Destroyer) Run(env *Env, targets []flow.Unit) int {
	n := 0
	for _, u := range targets {
		if !d.qualifies(env, u) {
			continue
		}
		if u.IsRegion() {
			env.logger().Debug("erasing region", "region", env.ID(u))
			env.Model.EraseRegion(u.Index)
		} else {
			env.logger().Debug("deassigning zone", "zone", env.ID(u))
			regions := env.Model.RegionsOf(u.Index)
			env.Model.Deassign(u.Index)
			env.Refresh(regions...)
		}
		n++
	}
	return n
}

func (d *Destroyer) qualifies(env *Env, u flow.Unit) bool {
	m := env.Model
	if u.IsRegion() && !m.Alive(u.Index) {
		return false
	}
	if u.IsZone() && !m.IsAssigned(u.Index) {
		return false
	}
	if d.Threshold != nil && d.degree(env, u) <= *d.Threshold {
		return true
	}
	return d.Exclave && u.IsZone() && d.isExclave(env, u.Index)
}

func (d *Destroyer) degree(env *Env, u flow.Unit) float64 {
	m := env.Model
	var as []int
	if u.IsRegion() {
		as = m.RegionAssignments(u.Index)
	} else {
		as = m.ZoneAssignments(u.Index)
	}
	var sum float64
	for _, a := range as {
		sum += m.Assignment(a).Degree
	}
	return sum
}

func (d *Destroyer) isExclave(env *Env, z int) bool {
	for _, a := range env.Model.ZoneAssignments(z) {
		if env.Model.Assignment(a).Exclave {
			return true
		}
	}
	return false
}

// CountHalter stops an aggregation once few enough targets are left.
type CountHalter struct {
	Threshold int
}

// Halt reports whether the live targets among pending number at most
// Threshold. A region is live while it is not erased; a zone while it is
// unassigned.
func (h CountHalter) Halt(env *Env, pending []flow.Unit) bool {
	live := 0
	for _, u := range pending {
		if u.IsRegion() && env.Model.Alive(u.Index) || u.IsZone() && !env.Model.IsAssigned(u.Index) {
			live++
		}
	}
	return live <= h.Threshold
}
