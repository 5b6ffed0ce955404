package verify

import (
	"sort"

	"github.com/matzehuels/regionkit/pkg/flow"
	"github.com/matzehuels/regionkit/pkg/region"
)

// ValueFunc measures a zone or region.
type ValueFunc func(m *region.Model, u flow.Unit) float64

type kind struct {
	value ValueFunc
	key   ValueFunc
	ratio bool
}

var kinds = map[string]kind{
	"mass":                      {value: mass, key: mass},
	"hinterland-mass":           {value: hinterlandMass, key: mass},
	"secondary-mass":            {value: secondaryMass, key: secondaryMass},
	"minimal-self-containment":  {value: minimalSC, key: minimalSC, ratio: true},
	"ratio-self-containment":    {value: ratioSC, key: ratioSC, ratio: true},
	"outflow-self-containment":  {value: outflowSC, key: outflowSC, ratio: true},
	"inflow-self-containment":   {value: inflowSC, key: inflowSC, ratio: true},
	"averaged-self-containment": {value: averagedSC, key: averagedSC, ratio: true},
	"region-integrity":          {value: regionIntegrity, key: regionIntegrity, ratio: true},
	"hinterland-integrity":      {value: hinterlandIntegrity, key: hinterlandIntegrity, ratio: true},
}

// CriterionNames returns the supported criterion names in sorted order.
func CriterionNames() []string {
	names := make([]string, 0, len(kinds))
	for n := range kinds {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// IsCriterion reports whether name is a supported criterion.
func IsCriterion(name string) bool {
	_, ok := kinds[name]
	return ok
}

// IsRatio reports whether the criterion measures a ratio. Ratio thresholds
// are configured in percent.
func IsRatio(name string) bool {
	return kinds[name].ratio
}

// Value returns the value of the named criterion for u, or 0 for an
// unknown name.
func Value(name string, m *region.Model, u flow.Unit) float64 {
	k, ok := kinds[name]
	if !ok {
		return 0
	}
	return k.value(m, u)
}

// Mass returns the mass of a zone or region. It is the default sort key of
// aggregation targets.
func Mass(m *region.Model, u flow.Unit) float64 { return mass(m, u) }

// RawMass returns the unweighted mass of a zone, or the raw core mass of a
// region.
func RawMass(m *region.Model, u flow.Unit) float64 {
	if u.IsZone() {
		return m.Zone(u.Index).Mass
	}
	return m.RawCoreMass(u.Index)
}

func mass(m *region.Model, u flow.Unit) float64 {
	if u.IsZone() {
		return m.Zone(u.Index).Mass
	}
	return m.Mass(u.Index)
}

func hinterlandMass(m *region.Model, u flow.Unit) float64 {
	if u.IsZone() {
		return 0
	}
	return m.HinterlandMass(u.Index)
}

func secondaryMass(m *region.Model, u flow.Unit) float64 {
	if u.IsZone() {
		return m.Zone(u.Index).SecondaryMass
	}
	return m.SecondaryMass(u.Index)
}

// flowSums returns the internal, outgoing and incoming flow sums of u. The
// internal flow of a zone is its flow to itself.
func flowSums(m *region.Model, u flow.Unit) (intra, out, in float64) {
	if u.IsZone() {
		z := m.Zone(u.Index)
		self := flow.ZoneUnit(u.Index)
		intra = z.Outflows.Get(self)
		return intra, z.Outflows.Sum() - intra, z.Inflows.Sum() - z.Inflows.Get(self)
	}
	r := u.Index
	return m.Intraflows(r, true, true, true, true).Sum(), m.Outflows(r, true, true).Sum(), m.Inflows(r, true, true).Sum()
}

func ratioSC(m *region.Model, u flow.Unit) float64 {
	intra, out, in := flowSums(m, u)
	return flow.Ratio(intra, out+in)
}

func outflowSC(m *region.Model, u flow.Unit) float64 {
	intra, out, _ := flowSums(m, u)
	return flow.Ratio(intra, intra+out)
}

func inflowSC(m *region.Model, u flow.Unit) float64 {
	intra, _, in := flowSums(m, u)
	return flow.Ratio(intra, intra+in)
}

func minimalSC(m *region.Model, u flow.Unit) float64 {
	return min(inflowSC(m, u), outflowSC(m, u))
}

func averagedSC(m *region.Model, u flow.Unit) float64 {
	intra, out, in := flowSums(m, u)
	if intra+in == 0 || intra+out == 0 {
		return 0
	}
	return 0.5 * intra * (1/(intra+in) + 1/(intra+out))
}

func regionIntegrity(m *region.Model, u flow.Unit) float64 {
	if u.IsZone() {
		return 0
	}
	r := u.Index
	coreHinter := m.Intraflows(r, true, false, false, true).Sum()
	hinterCore := m.Intraflows(r, false, true, true, false).Sum()
	return flow.Ratio(coreHinter+hinterCore, m.Outflows(r, true, true).Sum())
}

func hinterlandIntegrity(m *region.Model, u flow.Unit) float64 {
	if u.IsZone() {
		return 0
	}
	r := u.Index
	return flow.Ratio(m.Intraflows(r, false, true, true, false).Sum(), m.Outflows(r, false, true).Sum())
}
