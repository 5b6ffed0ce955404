package region

import (
	"errors"
	"fmt"
	"slices"

	"github.com/matzehuels/regionkit/pkg/flow"
)

var (
	// ErrDuplicateZoneID is returned by [Model.AddZone] when a zone with the
	// same ID already exists.
	ErrDuplicateZoneID = errors.New("duplicate zone ID")

	// ErrInvalidZoneID is returned by [Model.AddZone] for an empty ID.
	ErrInvalidZoneID = errors.New("zone ID must not be empty")

	// ErrNegativeMass is returned by [Model.AddZone] for a negative mass.
	ErrNegativeMass = errors.New("zone mass must not be negative")

	// ErrZoneAssigned is returned by [Model.Tangle] in exclusive mode when
	// the zone already holds an assignment.
	ErrZoneAssigned = errors.New("zone already assigned")

	// ErrDuplicateAssignment is returned by [Model.Tangle] in fuzzy mode when
	// the zone is already assigned to the region.
	ErrDuplicateAssignment = errors.New("zone already assigned to region")

	// ErrRegionErased is returned when tangling into an erased region.
	ErrRegionErased = errors.New("region erased")
)

// Mode selects how many simultaneous assignments a zone may hold.
type Mode int

const (
	// Exclusive allows at most one assignment per zone.
	Exclusive Mode = iota
	// Fuzzy allows one assignment per region with fractional degrees.
	Fuzzy
)

// String returns the configuration name of the mode.
func (m Mode) String() string {
	if m == Fuzzy {
		return "fuzzy"
	}
	return "exclusive"
}

// Zone is the smallest spatial unit. Static attributes are set at load time;
// assignments change only through the owning [Model].
type Zone struct {
	ID            string
	Mass          float64
	SecondaryMass float64
	Color         string // hex, may be empty
	Coreable      bool

	// Neighbours holds sorted zone indices; symmetric via [Model.Connect].
	Neighbours []int
	Inflows    *flow.Vector
	Outflows   *flow.Vector

	assigns []int
}

// Region is a cluster of zones anchored by core zones.
type Region struct {
	ID    string
	Color string

	assigns     []int
	mass        float64
	coreMass    float64
	rawCoreMass float64
	erased      bool

	artic map[int][][]int
	intra map[intraKey]*flow.Vector
}

// Assignment links a zone to a region.
type Assignment struct {
	Zone    int
	Region  int
	Core    bool
	Degree  float64
	Exclave bool

	live bool
}

// Oscillatory reports whether the assignment has zero degree and does not
// count toward region membership.
func (a Assignment) Oscillatory() bool { return a.Degree == 0 }

// Live reports whether the assignment is still registered.
func (a Assignment) Live() bool { return a.live }

type intraKey struct {
	fromCore, fromHinter, toCore, toHinter bool
}

// Model owns the zone, region and assignment arenas.
type Model struct {
	mode    Mode
	zones   []Zone
	regions []Region
	assigns []Assignment
	byID    map[string]int
}

// NewModel returns an empty model with the given membership mode.
func NewModel(mode Mode) *Model {
	return &Model{mode: mode, byID: make(map[string]int)}
}

// Mode returns the membership mode fixed at construction.
func (m *Model) Mode() Mode { return m.mode }

// AddZone appends a zone and returns its index. Nil flow vectors are
// replaced with empty ones.
func (m *Model) AddZone(z Zone) (int, error) {
	if z.ID == "" {
		return -1, ErrInvalidZoneID
	}
	if z.Mass < 0 {
		return -1, fmt.Errorf("%w: %s", ErrNegativeMass, z.ID)
	}
	if _, ok := m.byID[z.ID]; ok {
		return -1, fmt.Errorf("%w: %s", ErrDuplicateZoneID, z.ID)
	}
	if z.Inflows == nil {
		z.Inflows = flow.New()
	}
	if z.Outflows == nil {
		z.Outflows = flow.New()
	}
	z.Neighbours = nil
	z.assigns = nil
	i := len(m.zones)
	m.zones = append(m.zones, z)
	m.byID[z.ID] = i
	return i, nil
}

// ZoneIndex returns the index of the zone with the given ID.
func (m *Model) ZoneIndex(id string) (int, bool) {
	i, ok := m.byID[id]
	return i, ok
}

// NumZones returns the number of zones.
func (m *Model) NumZones() int { return len(m.zones) }

// NumRegions returns the number of regions ever created, erased included.
func (m *Model) NumRegions() int { return len(m.regions) }

// Zone returns the zone with index i.
func (m *Model) Zone(i int) *Zone { return &m.zones[i] }

// Region returns the region with index r.
func (m *Model) Region(r int) *Region { return &m.regions[r] }

// Assignment returns a copy of the assignment with index a.
func (m *Model) Assignment(a int) Assignment { return m.assigns[a] }

// Connect makes zones a and b neighbours. Self links are ignored.
func (m *Model) Connect(a, b int) {
	if a == b {
		return
	}
	m.zones[a].Neighbours = insertSorted(m.zones[a].Neighbours, b)
	m.zones[b].Neighbours = insertSorted(m.zones[b].Neighbours, a)
	for _, z := range []int{a, b} {
		for _, asg := range m.zones[z].assigns {
			m.regions[m.assigns[asg].Region].artic = nil
		}
	}
}

// AddFlow records an interaction of strength value from zone a to zone b.
func (m *Model) AddFlow(a, b int, value float64) {
	m.zones[a].Outflows.AddTo(flow.ZoneUnit(b), value)
	m.zones[b].Inflows.AddTo(flow.ZoneUnit(a), value)
}

func insertSorted(s []int, v int) []int {
	i, found := slices.BinarySearch(s, v)
	if found {
		return s
	}
	return slices.Insert(s, i, v)
}

// NewRegion creates an empty region and returns its index.
func (m *Model) NewRegion(id, color string) int {
	m.regions = append(m.regions, Region{ID: id, Color: color})
	return len(m.regions) - 1
}

// SeedRegion creates a region named after zone z with z as its core.
func (m *Model) SeedRegion(z int) (int, error) {
	zone := &m.zones[z]
	r := m.NewRegion(zone.ID, zone.Color)
	if _, err := m.Tangle(z, r, true); err != nil {
		m.regions[r].erased = true
		return -1, err
	}
	return r, nil
}

// Tangle assigns zone z to region r and returns the assignment index.
// Both sides are registered and the region caches updated.
func (m *Model) Tangle(z, r int, core bool) (int, error) {
	reg := &m.regions[r]
	if reg.erased {
		return -1, fmt.Errorf("%w: %s", ErrRegionErased, reg.ID)
	}
	zone := &m.zones[z]
	if m.mode == Exclusive && len(zone.assigns) > 0 {
		return -1, fmt.Errorf("%w: %s", ErrZoneAssigned, zone.ID)
	}
	if _, ok := m.AssignmentTo(z, r); ok {
		return -1, fmt.Errorf("%w: %s to %s", ErrDuplicateAssignment, zone.ID, reg.ID)
	}
	a := len(m.assigns)
	m.assigns = append(m.assigns, Assignment{Zone: z, Region: r, Core: core, Degree: 1, live: true})
	zone.assigns = append(zone.assigns, a)
	reg.assigns = append(reg.assigns, a)
	reg.mass += zone.Mass
	if core {
		reg.coreMass += zone.Mass
		reg.rawCoreMass += zone.Mass
	}
	m.invalidate(r)
	return a, nil
}

// Erase removes assignment a from both the zone and the region.
func (m *Model) Erase(a int) {
	asg := &m.assigns[a]
	if !asg.live {
		return
	}
	reg := &m.regions[asg.Region]
	reg.assigns = slices.DeleteFunc(reg.assigns, func(x int) bool { return x == a })
	m.unweigh(asg)
	m.invalidate(asg.Region)
	m.dissolve(a)
}

// dissolve removes the zone side of assignment a and marks it dead.
func (m *Model) dissolve(a int) {
	asg := &m.assigns[a]
	zone := &m.zones[asg.Zone]
	zone.assigns = slices.DeleteFunc(zone.assigns, func(x int) bool { return x == a })
	asg.live = false
	if m.mode == Fuzzy && len(zone.assigns) == 1 {
		rest := zone.assigns[0]
		if m.assigns[rest].Degree == 0 {
			m.SetDegree(rest, 1)
		}
	}
}

func (m *Model) unweigh(asg *Assignment) {
	reg := &m.regions[asg.Region]
	mass := m.zones[asg.Zone].Mass
	reg.mass -= mass * asg.Degree
	if asg.Core {
		reg.coreMass -= mass * asg.Degree
		reg.rawCoreMass -= mass
	}
	if len(reg.assigns) == 0 {
		reg.mass, reg.coreMass, reg.rawCoreMass = 0, 0, 0
	}
}

// EraseRegion dissolves every assignment of region r and marks it erased.
func (m *Model) EraseRegion(r int) {
	reg := &m.regions[r]
	assigns := reg.assigns
	reg.assigns = nil
	reg.mass, reg.coreMass, reg.rawCoreMass = 0, 0, 0
	reg.erased = true
	m.invalidate(r)
	for _, a := range assigns {
		m.dissolve(a)
	}
}

// Deassign erases every assignment of zone z.
func (m *Model) Deassign(z int) {
	for _, a := range slices.Clone(m.zones[z].assigns) {
		m.Erase(a)
	}
}

// SetDegree changes the fuzzy degree of assignment a and adjusts the cached
// region masses.
func (m *Model) SetDegree(a int, degree float64) {
	asg := &m.assigns[a]
	old := asg.Degree
	if old == degree {
		return
	}
	asg.Degree = degree
	if !asg.live {
		return
	}
	reg := &m.regions[asg.Region]
	delta := m.zones[asg.Zone].Mass * (degree - old)
	reg.mass += delta
	if asg.Core {
		reg.coreMass += delta
	}
	if (old == 0) != (degree == 0) {
		reg.intra = nil
	}
}

// SetExclave changes the exclave flag of assignment a.
func (m *Model) SetExclave(a int, exclave bool) {
	asg := &m.assigns[a]
	if asg.Exclave == exclave {
		return
	}
	asg.Exclave = exclave
	if asg.live {
		m.regions[asg.Region].artic = nil
	}
}

// RecomputeMass rebuilds the cached masses of region r from its
// assignments.
func (m *Model) RecomputeMass(r int) {
	reg := &m.regions[r]
	reg.mass, reg.coreMass, reg.rawCoreMass = 0, 0, 0
	for _, a := range reg.assigns {
		asg := m.assigns[a]
		mass := m.zones[asg.Zone].Mass
		reg.mass += mass * asg.Degree
		if asg.Core {
			reg.coreMass += mass * asg.Degree
			reg.rawCoreMass += mass
		}
	}
}

func (m *Model) invalidate(r int) {
	m.regions[r].artic = nil
	m.regions[r].intra = nil
}
