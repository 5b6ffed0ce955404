package fuzzy

import (
	"errors"
	"math"
	"testing"

	"github.com/matzehuels/regionkit/pkg/region"
)

type fixture struct {
	m          *region.Model
	a, b, c    int
	rA, rC, ab int
}

// newFixture builds two regions anchored at A and C with hinterland zone B
// assigned to A. B exchanges 4 with A and 2 with C.
func newFixture(t *testing.T, connect bool) fixture {
	t.Helper()
	m := region.NewModel(region.Exclusive)
	add := func(id string, mass float64, color string) int {
		i, err := m.AddZone(region.Zone{ID: id, Mass: mass, Color: color, Coreable: color != ""})
		if err != nil {
			t.Fatal(err)
		}
		return i
	}
	f := fixture{m: m}
	f.a = add("A", 10, "ff0000")
	f.b = add("B", 4, "")
	f.c = add("C", 6, "0000ff")
	m.AddFlow(f.b, f.a, 3)
	m.AddFlow(f.a, f.b, 1)
	m.AddFlow(f.b, f.c, 2)
	if connect {
		m.Connect(f.a, f.b)
		m.Connect(f.b, f.c)
	}
	var err error
	if f.rA, err = m.SeedRegion(f.a); err != nil {
		t.Fatal(err)
	}
	if f.rC, err = m.SeedRegion(f.c); err != nil {
		t.Fatal(err)
	}
	if f.ab, err = m.Tangle(f.b, f.rA, false); err != nil {
		t.Fatal(err)
	}
	return f
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestHamplMembership(t *testing.T) {
	f := newFixture(t, true)
	h := NewHampl(DefaultOptions())
	aa, _ := f.m.AssignmentTo(f.a, f.rA)
	cc, _ := f.m.AssignmentTo(f.c, f.rC)

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"core A", h.Membership(f.m, aa), 1},
		{"hinterland B", h.Membership(f.m, f.ab), 4.0 / 6},
		{"core C", h.Membership(f.m, cc), 0},
		{"foreign B in C", h.ForeignMembership(f.m, f.b, f.rC), 1.0 / 3},
	}
	for _, tt := range tests {
		if !approx(tt.got, tt.want) {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}

	h.UpdateAll(f.m, []int{f.rA, f.rC})
	if got, want := f.m.Mass(f.rA), 10+4*4.0/6; !approx(got, want) {
		t.Errorf("Mass(A) after update = %v, want %v", got, want)
	}
	before := f.m.Assignment(f.ab).Degree
	h.Update(f.m, f.rA)
	if after := f.m.Assignment(f.ab).Degree; after != before {
		t.Errorf("second Update changed degree %v -> %v", before, after)
	}
}

func TestSimberaMembership(t *testing.T) {
	f := newFixture(t, true)
	s := NewSimbera(DefaultOptions())
	if got := s.Membership(f.m, f.ab); !approx(got, 4.0/6) {
		t.Errorf("Membership(B) = %v, want %v", got, 4.0/6)
	}
	dict := s.MembershipDict(f.m, f.b)
	if len(dict) != 2 || !approx(dict[0].Weight, 4.0/6) || dict[1].Color != "0000ff" {
		t.Errorf("MembershipDict(B) = %v", dict)
	}
}

func TestExclavePenalization(t *testing.T) {
	tests := []struct {
		penal float64
		want  float64
	}{
		{1, 1},
		{0.5, 0.5},
		{0, 0},
	}
	for _, tt := range tests {
		f := newFixture(t, false)
		opts := DefaultOptions()
		opts.Penalization = tt.penal
		b := NewBasic(opts)
		b.Update(f.m, f.rA)
		if got := f.m.Assignment(f.ab).Degree; got != tt.want {
			t.Errorf("penal %v: degree = %v, want %v", tt.penal, got, tt.want)
		}
		if got, want := f.m.Mass(f.rA), 10+4*tt.want; !approx(got, want) {
			t.Errorf("penal %v: mass = %v, want %v", tt.penal, got, want)
		}
	}

	f := newFixture(t, false)
	opts := DefaultOptions()
	opts.Penalization = 0
	b := NewBasic(opts)
	b.Update(f.m, f.rA)
	f.m.Connect(f.a, f.b)
	b.Update(f.m, f.rA)
	if got := f.m.Assignment(f.ab); got.Exclave || got.Degree != 1 {
		t.Errorf("after connecting: exclave=%v degree=%v, want false 1", got.Exclave, got.Degree)
	}
}

func TestFengIgnoresPenalization(t *testing.T) {
	opts := DefaultOptions()
	opts.Penalization = 0
	f := NewFeng(opts)
	if f.HasExclavePenalization() {
		t.Error("feng fuzzier reports exclave penalization")
	}
	if f.Name() != "feng" {
		t.Errorf("Name() = %q", f.Name())
	}
}

func TestHamplMembershipDict(t *testing.T) {
	f := newFixture(t, true)
	dict := NewHampl(DefaultOptions()).MembershipDict(f.m, f.b)
	if len(dict) != 2 {
		t.Fatalf("MembershipDict(B) = %v, want 2 shares", dict)
	}
	if dict[0].Color != "ff0000" || !approx(dict[0].Weight, 4.0/6) {
		t.Errorf("share A = %+v", dict[0])
	}
	if dict[1].Color != "0000ff" || !approx(dict[1].Weight, 2.0/6) {
		t.Errorf("share C = %+v", dict[1])
	}
}

func TestEMW(t *testing.T) {
	f := newFixture(t, true)
	if got, want := EMW(f.m, f.rA, 1), 10+4*4.0/6; !approx(got, want) {
		t.Errorf("EMW(A) = %v, want %v", got, want)
	}
	if got, want := HamplMassDiff(f.m, f.ab, f.c, 1), 16*(1.0/4-1.0/6); !approx(got, want) {
		t.Errorf("HamplMassDiff(B, C) = %v, want %v", got, want)
	}
	if got := HamplMassDiff(f.m, f.ab, f.b, 1); got != 0 {
		t.Errorf("HamplMassDiff(B, B) = %v, want 0", got)
	}
	if got, want := EMWDiff(f.m, f.rC, f.b, 1), 6+4.0/3; !approx(got, want) {
		t.Errorf("EMWDiff(C, B) = %v, want %v", got, want)
	}
}

func TestNew(t *testing.T) {
	for _, name := range []string{"", "default", "basic", "hampl", "simbera", "feng"} {
		if _, err := New(name, DefaultOptions()); err != nil {
			t.Errorf("New(%q) error: %v", name, err)
		}
	}
	if _, err := New("oscillating", DefaultOptions()); !errors.Is(err, ErrUnknownType) {
		t.Errorf("New(oscillating) error = %v, want ErrUnknownType", err)
	}
}
