package region

import (
	"errors"
	"math"
	"slices"
	"testing"
)

const eps = 1e-9

// line builds zones with the given masses connected in sequence.
func line(t *testing.T, mode Mode, masses ...float64) *Model {
	t.Helper()
	m := NewModel(mode)
	for i, mass := range masses {
		id := string(rune('A' + i))
		if _, err := m.AddZone(Zone{ID: id, Mass: mass, Coreable: i == 0}); err != nil {
			t.Fatalf("AddZone(%s): %v", id, err)
		}
		if i > 0 {
			m.Connect(i-1, i)
		}
	}
	return m
}

func assertMassInvariant(t *testing.T, m *Model, r int) {
	t.Helper()
	var sum float64
	for _, a := range m.RegionAssignments(r) {
		sum += m.AssignmentMass(a)
	}
	if math.Abs(sum-m.Mass(r)) > eps {
		t.Errorf("region %s mass = %v, assignments sum to %v", m.Region(r).ID, m.Mass(r), sum)
	}
}

func TestAddZoneValidation(t *testing.T) {
	m := NewModel(Exclusive)
	tests := []struct {
		zone    Zone
		wantErr error
	}{
		{Zone{ID: "A", Mass: 1}, nil},
		{Zone{ID: "A", Mass: 2}, ErrDuplicateZoneID},
		{Zone{ID: "", Mass: 2}, ErrInvalidZoneID},
		{Zone{ID: "B", Mass: -1}, ErrNegativeMass},
	}
	for _, tt := range tests {
		_, err := m.AddZone(tt.zone)
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("AddZone(%+v) error = %v, want %v", tt.zone, err, tt.wantErr)
		}
	}
}

func TestConnectSymmetric(t *testing.T) {
	m := line(t, Exclusive, 1, 1, 1)
	m.Connect(2, 0)
	m.Connect(0, 0)
	if got := m.Zone(0).Neighbours; !slices.Equal(got, []int{1, 2}) {
		t.Errorf("Neighbours(A) = %v, want [1 2]", got)
	}
	if !m.IsNeighbour(2, 0) || !m.IsNeighbour(0, 2) {
		t.Error("Connect should be symmetric")
	}
}

func TestTangleAndErase(t *testing.T) {
	m := line(t, Exclusive, 10, 5, 5)
	r, err := m.SeedRegion(0)
	if err != nil {
		t.Fatalf("SeedRegion: %v", err)
	}
	b, err := m.Tangle(1, r, false)
	if err != nil {
		t.Fatalf("Tangle: %v", err)
	}
	if _, err := m.Tangle(1, r, false); !errors.Is(err, ErrZoneAssigned) {
		t.Errorf("second Tangle error = %v, want ErrZoneAssigned", err)
	}
	if m.Mass(r) != 15 || m.CoreMass(r) != 10 || m.HinterlandMass(r) != 5 {
		t.Errorf("masses = %v/%v/%v, want 15/10/5", m.Mass(r), m.CoreMass(r), m.HinterlandMass(r))
	}
	assertMassInvariant(t, m, r)

	m.Erase(b)
	if m.IsAssigned(1) {
		t.Error("zone B still assigned after Erase")
	}
	if m.Mass(r) != 10 {
		t.Errorf("mass after Erase = %v, want 10", m.Mass(r))
	}
	assertMassInvariant(t, m, r)

	m.EraseRegion(r)
	if m.Alive(r) || m.IsAssigned(0) {
		t.Error("EraseRegion should dissolve every assignment")
	}
	if _, err := m.Tangle(2, r, false); !errors.Is(err, ErrRegionErased) {
		t.Errorf("Tangle into erased region error = %v, want ErrRegionErased", err)
	}
}

func TestSetDegreeKeepsMass(t *testing.T) {
	m := line(t, Exclusive, 10, 5, 5)
	r, _ := m.SeedRegion(0)
	b, _ := m.Tangle(1, r, false)
	c, _ := m.Tangle(2, r, false)
	m.SetDegree(b, 0.5)
	m.SetDegree(c, 0)
	assertMassInvariant(t, m, r)
	if got := m.Zones(r); !slices.Equal(got, []int{0, 1}) {
		t.Errorf("Zones() = %v, want oscillatory zone excluded", got)
	}
	if got := m.AllHinterlandZones(r); !slices.Equal(got, []int{1, 2}) {
		t.Errorf("AllHinterlandZones() = %v, want [1 2]", got)
	}
	m.RecomputeMass(r)
	if math.Abs(m.Mass(r)-12.5) > eps {
		t.Errorf("RecomputeMass = %v, want 12.5", m.Mass(r))
	}
}

func TestFuzzyMode(t *testing.T) {
	m := NewModel(Fuzzy)
	for _, id := range []string{"A", "B", "C"} {
		m.AddZone(Zone{ID: id, Mass: 4, Coreable: id != "B"})
	}
	m.Connect(0, 1)
	m.Connect(1, 2)
	ra, _ := m.SeedRegion(0)
	rc, _ := m.SeedRegion(2)
	a1, err := m.Tangle(1, ra, false)
	if err != nil {
		t.Fatalf("Tangle: %v", err)
	}
	if _, err := m.Tangle(1, ra, false); !errors.Is(err, ErrDuplicateAssignment) {
		t.Errorf("duplicate Tangle error = %v, want ErrDuplicateAssignment", err)
	}
	a2, err := m.Tangle(1, rc, false)
	if err != nil {
		t.Fatalf("second region Tangle: %v", err)
	}
	m.SetDegree(a1, 0.25)
	m.SetDegree(a2, 0.75)
	if r, _ := m.RegionOf(1); r != rc {
		t.Errorf("RegionOf(B) = %d, want highest degree region %d", r, rc)
	}
	m.SetDegree(a1, 0)
	m.Erase(a2)
	if got := m.Assignment(a1).Degree; got != 1 {
		t.Errorf("remaining zero degree = %v, want solidified to 1", got)
	}
	assertMassInvariant(t, m, ra)
	assertMassInvariant(t, m, rc)
}

func TestArticulation(t *testing.T) {
	m := line(t, Exclusive, 10, 1, 1, 1, 1)
	r, _ := m.SeedRegion(0)
	for z := 1; z < 5; z++ {
		m.Tangle(z, r, false)
	}
	tests := []struct {
		zone int
		want [][]int
	}{
		{0, nil},
		{1, [][]int{{2, 3, 4}}},
		{2, [][]int{{3, 4}}},
		{4, nil},
	}
	for _, tt := range tests {
		got := m.Articulation(r, tt.zone)
		if len(got) != len(tt.want) {
			t.Errorf("Articulation(%d) = %v, want %v", tt.zone, got, tt.want)
			continue
		}
		for i := range got {
			if !slices.Equal(got[i], tt.want[i]) {
				t.Errorf("Articulation(%d)[%d] = %v, want %v", tt.zone, i, got[i], tt.want[i])
			}
		}
	}

	// closing the line into a cycle removes every articulation point
	m.Connect(0, 4)
	for z := 0; z < 5; z++ {
		if m.IsArticulation(r, z) {
			t.Errorf("zone %d is articulation point in a cycle", z)
		}
	}
}

func TestArticulationRootWithTwoChildren(t *testing.T) {
	m := NewModel(Exclusive)
	for _, id := range []string{"A", "B", "C"} {
		m.AddZone(Zone{ID: id, Mass: 1})
	}
	m.Connect(0, 1)
	m.Connect(0, 2)
	r, _ := m.SeedRegion(0)
	m.Tangle(1, r, false)
	m.Tangle(2, r, false)
	got := m.Articulation(r, 0)
	if len(got) != 1 || !slices.Equal(got[0], []int{2}) {
		t.Errorf("Articulation(root) = %v, want [[2]]", got)
	}
}

func mustAssignment(t *testing.T, m *Model, z, r int) int {
	t.Helper()
	a, ok := m.AssignmentTo(z, r)
	if !ok {
		t.Fatalf("zone %d not in region %d", z, r)
	}
	return a
}

// C - P - X - Q1 - Q2, all in the region of core C.
func TestExclavesAfterArticulationRemoval(t *testing.T) {
	m := line(t, Exclusive, 10, 1, 1, 1, 1)
	r, _ := m.SeedRegion(0)
	for z := 1; z < 5; z++ {
		m.Tangle(z, r, false)
	}
	m.DetectExclaves(r)
	if got := m.Exclaves(r); len(got) != 0 {
		t.Fatalf("Exclaves() on connected region = %v", got)
	}

	x := mustAssignment(t, m, 2, r)
	m.Erase(x)
	m.DetectExclaves(r)
	if got := m.Exclaves(r); !slices.Equal(got, []int{3, 4}) {
		t.Errorf("Exclaves() after removing X = %v, want [3 4]", got)
	}
	if got := m.Articulation(r, 2); len(got) != 1 || !slices.Equal(got[0], []int{3, 4}) {
		t.Errorf("Articulation(outside X) = %v, want [[3 4]]", got)
	}
	q1 := mustAssignment(t, m, 3, r)
	if !m.IsOnlyConnection(q1, 2) {
		t.Error("IsOnlyConnection(Q1, X) = false, want true")
	}
	p := mustAssignment(t, m, 1, r)
	if m.IsOnlyConnection(p, 2) {
		t.Error("IsOnlyConnection(P, X) = true, want false")
	}

	if _, err := m.Tangle(2, r, false); err != nil {
		t.Fatalf("Tangle(X): %v", err)
	}
	m.DetectExclaves(r)
	if got := m.Exclaves(r); len(got) != 0 {
		t.Errorf("Exclaves() after reconnecting = %v, want none", got)
	}
}

func TestContiguity(t *testing.T) {
	m := line(t, Exclusive, 10, 5, 5, 8)
	m.Zone(3).Coreable = true
	ra, _ := m.SeedRegion(0)
	rd, _ := m.SeedRegion(3)
	m.Tangle(1, ra, false)
	m.Tangle(2, rd, false)

	if got := m.ContiguousZones(ra); len(got) != 1 || got[0] != 2 {
		t.Errorf("ContiguousZones(A) = %v, want [2]", got)
	}
	if got := m.ContiguousRegions(ra); !slices.Equal(got, []int{rd}) {
		t.Errorf("ContiguousRegions(A) = %v, want [%d]", got, rd)
	}
	b := m.HinterlandBorderings(ra)
	if got := b[1]; !slices.Equal(got, []int{rd}) {
		t.Errorf("HinterlandBorderings(A)[B] = %v, want [%d]", got, rd)
	}
	if got := m.LiveRegions(); !slices.Equal(got, []int{ra, rd}) {
		t.Errorf("LiveRegions() = %v", got)
	}
}

func TestRegionFlows(t *testing.T) {
	m := line(t, Exclusive, 10, 5, 5)
	m.AddFlow(1, 0, 6)
	m.AddFlow(1, 2, 2)
	m.AddFlow(0, 1, 3)
	m.AddFlow(2, 0, 4)
	r, _ := m.SeedRegion(0)
	m.Tangle(1, r, false)

	if got := m.Outflows(r, true, true).Sum(); got != 2 {
		t.Errorf("Outflows sum = %v, want 2", got)
	}
	if got := m.Inflows(r, true, true).Sum(); got != 4 {
		t.Errorf("Inflows sum = %v, want 4", got)
	}
	if got := m.Intraflows(r, true, true, true, true).Sum(); got != 9 {
		t.Errorf("Intraflows sum = %v, want 9", got)
	}
	if got := m.Intraflows(r, false, true, true, false).Sum(); got != 6 {
		t.Errorf("hinterland to core Intraflows = %v, want 6", got)
	}
	// cache is dropped when the region changes
	m.Tangle(2, r, false)
	if got := m.Intraflows(r, true, true, true, true).Sum(); got != 15 {
		t.Errorf("Intraflows after Tangle = %v, want 15", got)
	}
}

func TestDropZeros(t *testing.T) {
	m := NewModel(Exclusive)
	m.AddZone(Zone{ID: "A", Mass: 10, Coreable: true})
	m.AddZone(Zone{ID: "B", Mass: 0})
	m.AddZone(Zone{ID: "C", Mass: 5})
	m.AddZone(Zone{ID: "D", Mass: 0})
	m.Connect(0, 1)
	m.Connect(1, 2)
	m.Connect(0, 2)
	r, _ := m.SeedRegion(0)
	m.Tangle(1, r, false)
	m.Tangle(2, r, false)

	created := m.DropZeros()
	if len(created) != 2 {
		t.Fatalf("DropZeros created %d regions, want 2", len(created))
	}
	for _, z := range []int{1, 3} {
		got, ok := m.RegionOf(z)
		if !ok || m.Region(got).ID != m.Zone(z).ID || !m.IsCoreOf(z, got) {
			t.Errorf("zone %s not in its own singleton region", m.Zone(z).ID)
		}
		if m.Mass(got) != 0 {
			t.Errorf("singleton mass = %v, want 0", m.Mass(got))
		}
	}
	if got := m.Mass(r); got != 15 {
		t.Errorf("mass of A after DropZeros = %v, want 15", got)
	}
}

func TestDropZerosUnusedID(t *testing.T) {
	m := NewModel(Exclusive)
	m.AddZone(Zone{ID: "A", Mass: 10, Coreable: true})
	m.AddZone(Zone{ID: "B", Mass: 0})
	m.Connect(0, 1)
	taken := m.NewRegion("B", "")
	m.Tangle(0, taken, true)
	m.NewRegion("B-1", "")
	dead := m.NewRegion("B-2", "")
	m.EraseRegion(dead)

	created := m.DropZeros()
	if len(created) != 1 {
		t.Fatalf("DropZeros created %d regions, want 1", len(created))
	}
	if got := m.Region(created[0]).ID; got != "B-2" {
		t.Errorf("singleton ID = %q, want B-2", got)
	}
	if got := m.Region(taken).ID; got != "B" {
		t.Errorf("existing region renamed to %q", got)
	}
}

func TestDropZerosKeepsArticulation(t *testing.T) {
	m := line(t, Exclusive, 10, 0, 5)
	r, _ := m.SeedRegion(0)
	m.Tangle(1, r, false)
	m.Tangle(2, r, false)
	if created := m.DropZeros(); len(created) != 0 {
		t.Errorf("DropZeros removed the bridging zone: %v", created)
	}
}
