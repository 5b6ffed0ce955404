package restructure

import (
	"cmp"
	"slices"

	"github.com/matzehuels/regionkit/pkg/flow"
	"github.com/matzehuels/regionkit/pkg/fuzzy"
)

// Change moves one border zone from its region to a neighbouring region.
// Source is -1 for an unassigned zone.
type Change struct {
	Zone   int
	Source int
	Target int
	// Gain is the change in expected membership weight, relative to the
	// zone mass when the changer is relative.
	Gain float64
}

type changeKey struct{ zone, source, target int }

func (c Change) key() changeKey { return changeKey{c.Zone, c.Source, c.Target} }

// affects reports whether c touches any of the given regions.
func (c Change) affects(rs ...int) bool {
	return slices.Contains(rs, c.Source) || slices.Contains(rs, c.Target)
}

// Changer moves hinterland zones across region borders while the expected
// membership weight gain exceeds a threshold.
type Changer struct {
	Threshold float64
	// Relative divides the gain by the zone mass.
	Relative bool
	// Protect rolls back changes that leave the source region failing the
	// verifier.
	Protect bool

	performed map[changeKey]bool
}

// NewChanger returns a changer. Accepted changes are remembered until
// [Changer.Reset] so that no zone oscillates between two regions.
func NewChanger(threshold float64, relative, protect bool) *Changer {
	return &Changer{Threshold: threshold, Relative: relative, Protect: protect, performed: make(map[changeKey]bool)}
}

// Reset forgets the accepted changes.
func (c *Changer) Reset() { clear(c.performed) }

// Performed reports whether the move of zone z from source to target has
// been accepted before.
func (c *Changer) Performed(z, source, target int) bool {
	return c.performed[changeKey{z, source, target}]
}

func (c *Changer) penalization(env *Env) float64 {
	if env.Fuzzier == nil {
		return 1
	}
	return env.Fuzzier.Penalization()
}

// evaluate computes the gain of moving z from source to target.
func (c *Changer) evaluate(env *Env, z, source, target int) Change {
	m := env.Model
	p := c.penalization(env)
	gain := fuzzy.EMWDiff(m, target, z, p)
	if source >= 0 {
		gain -= fuzzy.EMWDiff(m, source, z, p)
	}
	if c.Relative {
		gain = flow.Ratio(gain, m.Zone(z).Mass)
	}
	return Change{Zone: z, Source: source, Target: target, Gain: gain}
}

func (c *Changer) viable(ch Change) bool {
	return ch.Gain > c.Threshold && !c.performed[ch.key()]
}

// ChangesTo returns the viable moves of non-core zones bordering region r
// into r.
func (c *Changer) ChangesTo(env *Env, r int) []Change {
	m := env.Model
	var out []Change
	for _, z := range m.ContiguousZones(r) {
		if m.IsCore(z) {
			continue
		}
		source := -1
		if s, ok := m.RegionOf(z); ok {
			source = s
		}
		if ch := c.evaluate(env, z, source, r); c.viable(ch) {
			out = append(out, ch)
		}
	}
	return out
}

// ChangesFrom returns the viable moves of hinterland zones of region r to
// the other regions they border, except notTo.
func (c *Changer) ChangesFrom(env *Env, r, notTo int) []Change {
	borders := env.Model.HinterlandBorderings(r)
	zones := make([]int, 0, len(borders))
	for z := range borders {
		zones = append(zones, z)
	}
	slices.Sort(zones)
	var out []Change
	for _, z := range zones {
		for _, t := range borders[z] {
			if t == notTo {
				continue
			}
			if ch := c.evaluate(env, z, r, t); c.viable(ch) {
				out = append(out, ch)
			}
		}
	}
	return out
}

// sortChanges orders changes so the best one is last.
func sortChanges(env *Env, cs []Change) {
	slices.SortStableFunc(cs, func(a, b Change) int {
		if c := cmp.Compare(a.Gain, b.Gain); c != 0 {
			return c
		}
		// Equal gains: smaller zone ID is taken first.
		return cmp.Compare(env.Model.Zone(b.Zone).ID, env.Model.Zone(a.Zone).ID)
	})
}

// apply performs ch and refreshes both regions.
func (c *Changer) apply(env *Env, ch Change) error {
	if err := env.Move(ch.Zone, ch.Target, false); err != nil {
		return err
	}
	env.Refresh(ch.Source, ch.Target)
	return nil
}

// revert undoes an applied change.
func (c *Changer) revert(env *Env, ch Change) {
	env.Model.Deassign(ch.Zone)
	if ch.Source >= 0 && env.Model.Alive(ch.Source) {
		env.Model.Tangle(ch.Zone, ch.Source, false)
	}
	env.Refresh(ch.Source, ch.Target)
}

// try applies ch and keeps it unless protection rejects it.
func (c *Changer) try(env *Env, ch Change) bool {
	if err := c.apply(env, ch); err != nil {
		return false
	}
	if c.Protect && ch.Source >= 0 && env.Verifier != nil && !env.Verifier.Verify(env.Model, flow.RegionUnit(ch.Source)) {
		c.revert(env, ch)
		return false
	}
	c.performed[ch.key()] = true
	return true
}

// Optimize repeatedly applies the best viable change among the given
// regions until none is left, and returns the number of accepted changes.
func (c *Changer) Optimize(env *Env, regions []int) int {
	var changes []Change
	for _, r := range regions {
		if env.Model.Alive(r) {
			changes = append(changes, c.ChangesTo(env, r)...)
		}
	}
	sortChanges(env, changes)
	accepted := 0
	for len(changes) > 0 {
		last := len(changes) - 1
		ch := changes[last]
		changes = changes[:last]
		if !c.try(env, ch) {
			continue
		}
		accepted++
		env.logger().Debug("changed zone", "zone", env.Model.Zone(ch.Zone).ID, "to", env.Model.Region(ch.Target).ID, "gain", ch.Gain)
		changes = slices.DeleteFunc(changes, func(o Change) bool { return o.affects(ch.Source, ch.Target) })
		changes = append(changes, c.affected(env, ch)...)
		sortChanges(env, changes)
	}
	return accepted
}

// affected recomputes the changes touching the two regions of ch.
func (c *Changer) affected(env *Env, ch Change) []Change {
	m := env.Model
	var out []Change
	if m.Alive(ch.Target) {
		out = append(out, c.ChangesTo(env, ch.Target)...)
		out = append(out, c.ChangesFrom(env, ch.Target, ch.Source)...)
	}
	if ch.Source >= 0 && m.Alive(ch.Source) {
		out = append(out, c.ChangesTo(env, ch.Source)...)
		out = append(out, c.ChangesFrom(env, ch.Source, ch.Target)...)
	}
	seen := make(map[changeKey]bool, len(out))
	return slices.DeleteFunc(out, func(o Change) bool {
		if seen[o.key()] {
			return true
		}
		seen[o.key()] = true
		return false
	})
}

// Enlarge pulls border zones into region r, best gain first, until r
// passes the verifier. If r still fails when no viable change is left,
// every change is rolled back and Enlarge reports false.
func (c *Changer) Enlarge(env *Env, r int) bool {
	u := flow.RegionUnit(r)
	var done []Change
	changes := c.ChangesTo(env, r)
	sortChanges(env, changes)
	for len(changes) > 0 && !env.Verified(u) {
		ch := changes[len(changes)-1]
		if !c.try(env, ch) {
			changes = changes[:len(changes)-1]
			continue
		}
		done = append(done, ch)
		changes = c.ChangesTo(env, r)
		sortChanges(env, changes)
	}
	if env.Verified(u) {
		return true
	}
	for i := len(done) - 1; i >= 0; i-- {
		c.revert(env, done[i])
	}
	return false
}
