package flow

import (
	"fmt"
	"maps"
	"slices"
)

// Kind distinguishes the two kinds of flow destination.
type Kind uint8

const (
	// KindZone marks a destination that is a single zone.
	KindZone Kind = iota
	// KindRegion marks a destination that is a whole region.
	KindRegion
)

// String returns "zone" or "region".
func (k Kind) String() string {
	if k == KindRegion {
		return "region"
	}
	return "zone"
}

// Unit identifies a flow destination by kind and arena index.
// Units order zones before regions, then by index.
type Unit struct {
	Kind  Kind
	Index int
}

// ZoneUnit returns the unit of the zone with arena index i.
func ZoneUnit(i int) Unit { return Unit{Kind: KindZone, Index: i} }

// RegionUnit returns the unit of the region with arena index i.
func RegionUnit(i int) Unit { return Unit{Kind: KindRegion, Index: i} }

// IsZone reports whether the unit is a zone.
func (u Unit) IsZone() bool { return u.Kind == KindZone }

// IsRegion reports whether the unit is a region.
func (u Unit) IsRegion() bool { return u.Kind == KindRegion }

// Less reports whether u orders before o.
func (u Unit) Less(o Unit) bool {
	if u.Kind != o.Kind {
		return u.Kind < o.Kind
	}
	return u.Index < o.Index
}

// Compare returns -1, 0 or +1 following [Unit.Less].
func (u Unit) Compare(o Unit) int {
	switch {
	case u.Less(o):
		return -1
	case o.Less(u):
		return 1
	}
	return 0
}

func (u Unit) String() string {
	return fmt.Sprintf("%s#%d", u.Kind, u.Index)
}

// Owner resolves zone indices to the regions holding them.
// It is implemented by the region model.
type Owner interface {
	// CoreOf returns the region the zone anchors as a core zone.
	CoreOf(zone int) (region int, ok bool)
	// RegionOf returns the primary region of the zone in any role.
	RegionOf(zone int) (region int, ok bool)
	// IsCoreOf reports whether the zone is a core zone of the region.
	IsCoreOf(zone, region int) bool
	// IsInRegion reports whether the zone is assigned to the region.
	IsInRegion(zone, region int) bool
}

// Vector is a sparse mapping from destination units to flow strength,
// plus a raw residual of flow to unmatched destinations.
//
// The zero value is not usable; create vectors with [New].
type Vector struct {
	flows  map[Unit]float64
	raw    float64
	sum    float64
	summed bool
}

// New returns an empty vector.
func New() *Vector {
	return &Vector{flows: make(map[Unit]float64)}
}

// Clone returns a deep copy of v.
func (v *Vector) Clone() *Vector {
	return &Vector{
		flows:  maps.Clone(v.flows),
		raw:    v.raw,
		sum:    v.sum,
		summed: v.summed,
	}
}

// Get returns the strength toward u, or 0.
func (v *Vector) Get(u Unit) float64 { return v.flows[u] }

// Has reports whether u is a target of v.
func (v *Vector) Has(u Unit) bool {
	_, ok := v.flows[u]
	return ok
}

// Set replaces the strength toward u.
func (v *Vector) Set(u Unit, value float64) {
	v.flows[u] = value
	v.summed = false
}

// AddTo accumulates value onto the strength toward u.
func (v *Vector) AddTo(u Unit, value float64) {
	v.flows[u] += value
	v.summed = false
}

// Delete removes u from the targets.
func (v *Vector) Delete(u Unit) {
	delete(v.flows, u)
	v.summed = false
}

// Raw returns the residual flow to unmatched destinations.
func (v *Vector) Raw() float64 { return v.raw }

// AddRaw accumulates value onto the raw residual.
func (v *Vector) AddRaw(value float64) {
	v.raw += value
	v.summed = false
}

// SetRaw replaces the raw residual.
func (v *Vector) SetRaw(value float64) {
	v.raw = value
	v.summed = false
}

// Len returns the number of targets.
func (v *Vector) Len() int { return len(v.flows) }

// Empty reports whether v has no targets.
func (v *Vector) Empty() bool { return len(v.flows) == 0 }

// Add accumulates other into v target-wise, raw included, and returns v.
func (v *Vector) Add(other *Vector) *Vector {
	if other == nil {
		return v
	}
	for u, val := range other.flows {
		v.flows[u] += val
	}
	v.raw += other.raw
	v.summed = false
	return v
}

// Sub subtracts other from v target-wise, raw included, and returns v.
func (v *Vector) Sub(other *Vector) *Vector {
	if other == nil {
		return v
	}
	for u, val := range other.flows {
		v.flows[u] -= val
	}
	v.raw -= other.raw
	v.summed = false
	return v
}

// Scale multiplies every strength and the raw residual by f in place.
func (v *Vector) Scale(f float64) *Vector {
	for u := range v.flows {
		v.flows[u] *= f
	}
	v.raw *= f
	v.summed = false
	return v
}

// Mul returns a new vector with every strength multiplied by f.
func (v *Vector) Mul(f float64) *Vector {
	return v.Clone().Scale(f)
}

// Div returns a new vector with every strength divided by d.
// A zero divisor yields a vector of zeros over the same targets.
func (v *Vector) Div(d float64) *Vector {
	if d == 0 {
		return v.Clone().Scale(0)
	}
	return v.Clone().Scale(1 / d)
}

// Filter drops every target for which keep returns false.
func (v *Vector) Filter(keep func(Unit) bool) *Vector {
	for u := range v.flows {
		if !keep(u) {
			delete(v.flows, u)
		}
	}
	v.summed = false
	return v
}

// Restrict drops every target not in set.
func (v *Vector) Restrict(set map[Unit]bool) *Vector {
	return v.Filter(func(u Unit) bool { return set[u] })
}

// RestrictKind drops every target not of kind k.
func (v *Vector) RestrictKind(k Kind) *Vector {
	return v.Filter(func(u Unit) bool { return u.Kind == k })
}

// Exclude drops the given targets.
func (v *Vector) Exclude(units ...Unit) *Vector {
	for _, u := range units {
		delete(v.flows, u)
	}
	v.summed = false
	return v
}

// Sum returns the total strength including the raw residual.
// The result is cached until the next mutation.
func (v *Vector) Sum() float64 {
	if !v.summed {
		s := v.raw
		for _, val := range v.flows {
			s += val
		}
		v.sum = s
		v.summed = true
	}
	return v.sum
}

// Max returns the largest strength, or 0 for an empty vector.
func (v *Vector) Max() float64 {
	first := true
	var m float64
	for _, val := range v.flows {
		if first || val > m {
			m = val
			first = false
		}
	}
	return m
}

// Targets returns the targets in unit order.
func (v *Vector) Targets() []Unit {
	out := slices.Collect(maps.Keys(v.flows))
	slices.SortFunc(out, Unit.Compare)
	return out
}

// SortedTargets returns the targets strongest first, ties in unit order.
func (v *Vector) SortedTargets() []Unit {
	out := v.Targets()
	slices.SortStableFunc(out, func(a, b Unit) int {
		switch va, vb := v.flows[a], v.flows[b]; {
		case va > vb:
			return -1
		case va < vb:
			return 1
		}
		return 0
	})
	return out
}

// AllOver returns the targets whose strength is at least threshold, in unit order.
func (v *Vector) AllOver(threshold float64) []Unit {
	var out []Unit
	for _, u := range v.Targets() {
		if v.flows[u] >= threshold {
			out = append(out, u)
		}
	}
	return out
}

// Strongest returns the target with the largest strength. Among equal
// strengths, the target preferred by prefer wins; a nil prefer falls back
// to unit order. ok is false for an empty vector.
func (v *Vector) Strongest(prefer func(a, b Unit) bool) (u Unit, value float64, ok bool) {
	if prefer == nil {
		prefer = Unit.Less
	}
	for _, t := range v.Targets() {
		val := v.flows[t]
		if !ok || val > value || (val == value && prefer(t, u)) {
			u, value, ok = t, val, true
		}
	}
	return u, value, ok
}

// Significant returns the leading flows that stand out from the rest.
//
// Strengths are normalized by the maximum and sorted descending. A step
// profile [1/n ... 1/n, 0 ... 0] is grown for n = 1, 2, ... while its
// residual sum of squares against the profile keeps decreasing; the first n
// that does not improve determines how many flows are kept. The returned
// vector holds normalized strengths and no raw residual.
func (v *Vector) Significant() *Vector {
	out := New()
	maxFlow := v.Max()
	if v.Empty() || maxFlow <= 0 {
		return out
	}
	order := v.SortedTargets()
	norm := make([]float64, len(order))
	for i, u := range order {
		norm[i] = v.flows[u] / maxFlow
	}
	num := 0
	prev := float64(len(norm) + 2)
	res := prev - 1
	for res < prev {
		if num == len(norm) {
			break
		}
		num++
		step := 1 / float64(num)
		prev = res
		res = 0
		for i, r := range norm {
			var expected float64
			if i < num {
				expected = step
			}
			res += (r - expected) * (r - expected)
		}
	}
	for i := 0; i < num; i++ {
		out.flows[order[i]] = norm[i]
	}
	return out
}

// ToCore returns a copy with every zone target anchored by a region as a
// core zone replaced by that region. Other targets pass through.
func (v *Vector) ToCore(owner Owner) *Vector {
	return v.reduce(owner.CoreOf)
}

// ToRegional returns a copy with every assigned zone target replaced by its
// primary region. Unassigned targets pass through.
func (v *Vector) ToRegional(owner Owner) *Vector {
	return v.reduce(owner.RegionOf)
}

func (v *Vector) reduce(resolve func(int) (int, bool)) *Vector {
	out := New()
	out.raw = v.raw
	for u, val := range v.flows {
		if u.IsZone() {
			if r, ok := resolve(u.Index); ok {
				out.flows[RegionUnit(r)] += val
				continue
			}
		}
		out.flows[u] += val
	}
	return out
}

// SumsByRegion splits the strength into flow to zones assigned to region
// and flow elsewhere. A region target equal to region counts as inside.
func (v *Vector) SumsByRegion(owner Owner, region int) (inside, outside float64) {
	for u, val := range v.flows {
		if u.IsRegion() {
			if u.Index == region {
				inside += val
			} else {
				outside += val
			}
			continue
		}
		if owner.IsInRegion(u.Index, region) {
			inside += val
		} else {
			outside += val
		}
	}
	return inside, outside
}

// SumsByCore splits the strength into flow to the core zones of region and
// flow to zones outside region. Flow to its hinterland counts toward
// neither side.
func (v *Vector) SumsByCore(owner Owner, region int) (core, outside float64) {
	for u, val := range v.flows {
		if u.IsRegion() {
			if u.Index == region {
				core += val
			} else {
				outside += val
			}
			continue
		}
		switch {
		case owner.IsCoreOf(u.Index, region):
			core += val
		case !owner.IsInRegion(u.Index, region):
			outside += val
		}
	}
	return core, outside
}

// SumToRegion returns the strength toward zones of region.
func (v *Vector) SumToRegion(owner Owner, region int) float64 {
	in, _ := v.SumsByRegion(owner, region)
	return in
}

// SumOutOf returns the strength toward anything outside region, raw
// residual included.
func (v *Vector) SumOutOf(owner Owner, region int) float64 {
	_, out := v.SumsByRegion(owner, region)
	return out + v.raw
}

// Ratio returns a/b, or 0 when b is 0.
func Ratio(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}
