package verify

import (
	"cmp"
	"slices"

	"github.com/matzehuels/regionkit/pkg/flow"
	"github.com/matzehuels/regionkit/pkg/region"
)

// zeroKey replaces zero factors in [Multiply].
const zeroKey = 1e-4

// Multiply returns a key that multiplies the given keys, treating zeros as
// a small positive factor so that one empty measure does not hide the
// others.
func Multiply(keys ...ValueFunc) ValueFunc {
	return func(m *region.Model, u flow.Unit) float64 {
		prod := 1.0
		for _, k := range keys {
			v := k(m, u)
			if v == 0 {
				v = zeroKey
			}
			prod *= v
		}
		return prod
	}
}

// Sorter orders units by a key. Keys are cached per unit and recomputed
// when the unit's mass changes.
type Sorter struct {
	key    ValueFunc
	keys   map[flow.Unit]float64
	masses map[flow.Unit]float64
}

// NewSorter returns a sorter over key. A nil key sorts by mass.
func NewSorter(key ValueFunc) *Sorter {
	if key == nil {
		key = mass
	}
	return &Sorter{key: key, keys: make(map[flow.Unit]float64), masses: make(map[flow.Unit]float64)}
}

// Key returns the cached key of u.
func (s *Sorter) Key(m *region.Model, u flow.Unit) float64 {
	w := mass(m, u)
	if old, ok := s.masses[u]; ok && old == w {
		return s.keys[u]
	}
	k := s.key(m, u)
	s.keys[u] = k
	s.masses[u] = w
	return k
}

// Sort orders us by ascending key, or descending when desc is set. Equal
// keys fall back to the unit ID so that runs are reproducible.
func (s *Sorter) Sort(m *region.Model, us []flow.Unit, desc bool) {
	keys := make(map[flow.Unit]float64, len(us))
	for _, u := range us {
		keys[u] = s.Key(m, u)
	}
	slices.SortStableFunc(us, func(a, b flow.Unit) int {
		c := cmp.Compare(keys[a], keys[b])
		if c == 0 {
			c = cmp.Compare(UnitID(m, a), UnitID(m, b))
		}
		if desc {
			return -c
		}
		return c
	})
}

// Max returns the unit with the highest key. Ties go to the smaller ID.
func (s *Sorter) Max(m *region.Model, us []flow.Unit) (flow.Unit, bool) {
	if len(us) == 0 {
		return flow.Unit{}, false
	}
	best, bestKey := us[0], s.Key(m, us[0])
	for _, u := range us[1:] {
		k := s.Key(m, u)
		if k > bestKey || (k == bestKey && UnitID(m, u) < UnitID(m, best)) {
			best, bestKey = u, k
		}
	}
	return best, true
}

// UnitID returns the external ID of a zone or region.
func UnitID(m *region.Model, u flow.Unit) string {
	if u.IsZone() {
		return m.Zone(u.Index).ID
	}
	return m.Region(u.Index).ID
}
