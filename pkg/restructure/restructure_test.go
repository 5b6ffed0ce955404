package restructure

import (
	"math"
	"slices"
	"testing"

	"github.com/matzehuels/regionkit/pkg/flow"
	"github.com/matzehuels/regionkit/pkg/fuzzy"
	"github.com/matzehuels/regionkit/pkg/region"
	"github.com/matzehuels/regionkit/pkg/verify"
)

const eps = 1e-9

type link struct {
	from, to int
	value    float64
}

// build returns a model over zones with the given adjacency and flows.
func build(t *testing.T, zones []region.Zone, edges [][2]int, flows []link) *region.Model {
	t.Helper()
	m := region.NewModel(region.Exclusive)
	for _, z := range zones {
		if _, err := m.AddZone(z); err != nil {
			t.Fatal(err)
		}
	}
	for _, e := range edges {
		m.Connect(e[0], e[1])
	}
	for _, f := range flows {
		m.AddFlow(f.from, f.to, f.value)
	}
	return m
}

func basicEnv(m *region.Model) *Env {
	env := NewEnv(m)
	env.Fuzzier = fuzzy.NewBasic(fuzzy.DefaultOptions())
	return env
}

func seed(t *testing.T, m *region.Model, z int) int {
	t.Helper()
	r, err := m.SeedRegion(z)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func drain(env *Env, a Aggregator) {
	for u, ok := a.Next(env); ok; u, ok = a.Next(env) {
		a.Aggregate(env, u)
	}
}

// lineModel is A(10, core) - B - C with B flowing to A and C to B.
func lineModel(t *testing.T, massB, massC float64) (*region.Model, int) {
	m := build(t,
		[]region.Zone{{ID: "A", Mass: 10, Coreable: true}, {ID: "B", Mass: massB}, {ID: "C", Mass: massC}},
		[][2]int{{0, 1}, {1, 2}},
		[]link{{1, 0, 4}, {2, 1, 3}},
	)
	return m, seed(t, m, 0)
}

func TestQueueOrderAndFinalRound(t *testing.T) {
	m := build(t, []region.Zone{{ID: "a", Mass: 3}, {ID: "b", Mass: 1}, {ID: "c", Mass: 2}}, nil, nil)
	env := NewEnv(m)
	q := NewQueue(nil)
	q.Feed(env, ZoneTargets([]int{0, 1, 2}))

	var order []string
	pops := 0
	for u, ok := q.Next(env); ok; u, ok = q.Next(env) {
		if pops < 3 {
			order = append(order, env.ID(u))
		}
		pops++
		q.Done(u, false)
	}
	if want := []string{"b", "c", "a"}; !slices.Equal(order, want) {
		t.Errorf("pop order = %v, want %v", order, want)
	}
	if pops != 6 {
		t.Errorf("pops = %d, want 6 (one pass and one final round)", pops)
	}
	if !q.FinalRound() {
		t.Error("FinalRound() = false after exhausting retries")
	}
	if got := len(q.Failed()); got != 3 {
		t.Errorf("len(Failed()) = %d, want 3", got)
	}

	q.HighestFirst = true
	q.Feed(env, ZoneTargets([]int{0, 1, 2}))
	if u, _ := q.Next(env); env.ID(u) != "a" {
		t.Errorf("HighestFirst first pop = %s, want a", env.ID(u))
	}
}

func TestFlowAggregatorLine(t *testing.T) {
	m, rA := lineModel(t, 5, 5)
	env := basicEnv(m)
	opts := DefaultFlowOptions()
	opts.Bidirectional = false
	a := NewFlowAggregator(opts)
	a.Feed(env, ZoneTargets([]int{1, 2}))
	drain(env, a)

	for z := 1; z <= 2; z++ {
		if r, ok := m.RegionOf(z); !ok || r != rA {
			t.Errorf("RegionOf(%s) = %d, %v; want %d", m.Zone(z).ID, r, ok, rA)
		}
	}
	if got := m.Mass(rA); math.Abs(got-20) > eps {
		t.Errorf("Mass(A) = %v, want 20", got)
	}
	if _, failed := a.Failure(env); failed {
		t.Error("Failure reported for a complete aggregation")
	}
}

func TestFlowAggregatorRetriesDeferred(t *testing.T) {
	// C is lighter and popped first; its only flow goes to unassigned B.
	m, rA := lineModel(t, 6, 5)
	env := basicEnv(m)
	opts := DefaultFlowOptions()
	opts.Bidirectional = false
	a := NewFlowAggregator(opts)
	a.Feed(env, ZoneTargets([]int{1, 2}))
	drain(env, a)

	if r, ok := m.RegionOf(2); !ok || r != rA {
		t.Errorf("RegionOf(C) = %d, %v; want %d", r, ok, rA)
	}
	if got := m.Mass(rA); math.Abs(got-21) > eps {
		t.Errorf("Mass(A) = %v, want 21", got)
	}
}

func TestFlowAggregatorFailure(t *testing.T) {
	m, _ := lineModel(t, 5, 5)
	d, _ := m.AddZone(region.Zone{ID: "D", Mass: 1})
	env := basicEnv(m)
	a := NewFlowAggregator(DefaultFlowOptions())
	a.Feed(env, ZoneTargets([]int{d}))
	drain(env, a)

	f, ok := a.Failure(env)
	if !ok {
		t.Fatal("no failure for an isolated zone")
	}
	if got, want := f.String(), "Zones D could not be assigned (no flows found)"; got != want {
		t.Errorf("Failure = %q, want %q", got, want)
	}
}

func TestGradualLinkage(t *testing.T) {
	tests := []struct {
		linkage Linkage
		want    bool
	}{
		{LinkageNone, false},
		{LinkageGradual, true},
		{LinkageMarkov, false},
	}
	for _, tt := range tests {
		m, rA := lineModel(t, 5, 5)
		env := basicEnv(m)
		opts := DefaultFlowOptions()
		opts.Bidirectional = false
		opts.Linkage = tt.linkage
		a := NewFlowAggregator(opts)
		a.Feed(env, ZoneTargets([]int{2}))
		drain(env, a)
		if got := m.IsInRegion(2, rA); got != tt.want {
			t.Errorf("linkage %s: C in A = %v, want %v", tt.linkage, got, tt.want)
		}
	}
}

func TestFlowAggregatorRegions(t *testing.T) {
	// Region B (core B, hinterland C) sends most of its flow to region A.
	m := build(t,
		[]region.Zone{{ID: "A", Mass: 10, Coreable: true}, {ID: "B", Mass: 3, Coreable: true}, {ID: "C", Mass: 2}},
		[][2]int{{0, 1}, {1, 2}},
		[]link{{1, 0, 5}, {2, 1, 1}, {2, 0, 1}},
	)
	rA, rB := seed(t, m, 0), seed(t, m, 1)
	if _, err := m.Tangle(2, rB, false); err != nil {
		t.Fatal(err)
	}
	env := basicEnv(m)
	opts := DefaultFlowOptions()
	opts.Regional = true
	a := NewFlowAggregator(opts)
	a.Feed(env, Targets([]int{rB}))
	drain(env, a)

	if m.Alive(rB) {
		t.Error("absorbed region still alive")
	}
	if got := m.Mass(rA); math.Abs(got-15) > eps {
		t.Errorf("Mass(A) = %v, want 15", got)
	}
	if m.IsCoreOf(1, rA) {
		t.Error("absorbed core became a core of the target")
	}
}

func TestTransforms(t *testing.T) {
	tests := []struct {
		name                 string
		flow, total, counter float64
		want                 float64
	}{
		{"intramax", 2, 4, 5, 0.1},
		{"smart", 2, 4, 5, 0.2},
		{"curds", 2, 4, 5, 0.9},
		{"curds", 2, 0, 5, 0},
		{"intramax", 2, 4, 0, 0},
	}
	for _, tt := range tests {
		tr, err := LookupTransform(tt.name)
		if err != nil {
			t.Fatal(err)
		}
		if got := tr(tt.flow, tt.total, tt.counter); math.Abs(got-tt.want) > eps {
			t.Errorf("%s(%v, %v, %v) = %v, want %v", tt.name, tt.flow, tt.total, tt.counter, got, tt.want)
		}
	}
	if _, err := LookupTransform("gravity"); err == nil {
		t.Error("LookupTransform(gravity) returned no error")
	}
	if _, err := ParseLinkage("random"); err == nil {
		t.Error("ParseLinkage(random) returned no error")
	}
}

func TestRingAggregator(t *testing.T) {
	m, rA := lineModel(t, 5, 5)
	env := basicEnv(m)
	tests := []struct {
		threshold float64
		want      bool
	}{
		{1, true},
		{1.5, false},
	}
	for _, tt := range tests {
		m.Deassign(1)
		m.RecomputeMass(rA)
		a := NewRingAggregator(DefaultAggregatorOptions(), tt.threshold)
		a.Feed(env, ZoneTargets([]int{1}))
		drain(env, a)
		if got := m.IsInRegion(1, rA); got != tt.want {
			t.Errorf("threshold %v: B in A = %v, want %v", tt.threshold, got, tt.want)
		}
		if !tt.want {
			f, _ := a.Failure(env)
			if f.Reason != "no flows over 150 % found" {
				t.Errorf("reason = %q", f.Reason)
			}
		}
	}
}

func TestNeighbourhoodAggregator(t *testing.T) {
	m := build(t,
		[]region.Zone{{ID: "A", Mass: 10, Coreable: true}, {ID: "B", Mass: 1}, {ID: "C", Mass: 20, Coreable: true}},
		[][2]int{{0, 1}, {1, 2}},
		nil,
	)
	seed(t, m, 0)
	rC := seed(t, m, 2)
	env := basicEnv(m)
	a := NewNeighbourhoodAggregator(DefaultAggregatorOptions())
	a.Feed(env, ZoneTargets([]int{1}))
	drain(env, a)
	if !m.IsInRegion(1, rC) {
		t.Error("B not attached to the heavier neighbour C")
	}
}

// overlapModel returns regions A (10) and B (12) whose absolute overlap
// under the Hampl fuzzier is 8.
func overlapModel(t *testing.T) (*Env, int, int) {
	m := build(t,
		[]region.Zone{
			{ID: "A", Mass: 10, Coreable: true},
			{ID: "B", Mass: 12, Coreable: true},
			{ID: "X"},
			{ID: "Y"},
		},
		[][2]int{{0, 1}},
		[]link{{0, 1, 2}, {0, 2, 3}, {1, 3, 4}},
	)
	rA, rB := seed(t, m, 0), seed(t, m, 1)
	env := NewEnv(m)
	env.Fuzzier = fuzzy.NewHampl(fuzzy.DefaultOptions())
	return env, rA, rB
}

func TestOverlapMergers(t *testing.T) {
	env, rA, rB := overlapModel(t)
	if got := AbsoluteOverlap(env, rA, rB); math.Abs(got-8) > eps {
		t.Fatalf("AbsoluteOverlap = %v, want 8", got)
	}
	tests := []struct {
		name      string
		threshold float64
		score     float64
		merges    bool
	}{
		{"watts", 0.3, 8.0 / 22, true},
		{"watts", 0.4, 8.0 / 22, false},
		{"minimal", 0.3, 0.4, true},
		{"minimal", 0.4, 0.4, false},
		{"hampl", 0.3, 0.4, true},
	}
	for _, tt := range tests {
		mg, err := NewMerger(tt.name, MergerOptions{Threshold: tt.threshold})
		if err != nil {
			t.Fatal(err)
		}
		if got := mg.Score(env, rA, rB); math.Abs(got-tt.score) > eps {
			t.Errorf("%s score = %v, want %v", tt.name, got, tt.score)
		}
		_, ok := mg.Target(env, rA)
		if ok != tt.merges {
			t.Errorf("%s at %v: target found = %v, want %v", tt.name, tt.threshold, ok, tt.merges)
		}
	}
}

func TestMergeKeepsCoreRoles(t *testing.T) {
	env, rA, rB := overlapModel(t)
	m := env.Model
	mg, _ := NewMerger("watts", MergerOptions{Threshold: 0.3})
	if n := mg.Run(env, []int{rA, rB}); n != 1 {
		t.Fatalf("Run merged %d regions, want 1", n)
	}
	// A is lighter and merges first, into B.
	if m.Alive(rA) || !m.Alive(rB) {
		t.Fatalf("Alive(A, B) = %v, %v; want false, true", m.Alive(rA), m.Alive(rB))
	}
	if !m.IsCoreOf(0, rB) {
		t.Error("core of the absorbed region lost its core role")
	}
	if _, err := NewMerger("ward", MergerOptions{}); err == nil {
		t.Error("NewMerger(ward) returned no error")
	}
}

func TestMergeTargetTies(t *testing.T) {
	tests := []struct {
		name   string
		p, q   float64
		target string
	}{
		{"heavier later region", 3, 8, "Q"},
		{"heavier earlier region", 8, 3, "P"},
		{"equal ordering", 5, 5, "P"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := build(t,
				[]region.Zone{
					{ID: "S", Mass: 1, Coreable: true},
					{ID: "P", Mass: tt.p, Coreable: true},
					{ID: "Q", Mass: tt.q, Coreable: true},
				},
				[][2]int{{0, 1}, {0, 2}},
				nil,
			)
			rS := seed(t, m, 0)
			seed(t, m, 1)
			seed(t, m, 2)
			mg, err := NewMerger("watts", MergerOptions{Threshold: 0.1})
			if err != nil {
				t.Fatal(err)
			}
			mg.score = func(*Env, int, int) float64 { return 0.5 }

			r, ok := mg.Target(basicEnv(m), rS)
			if !ok {
				t.Fatal("no merge target")
			}
			if got := m.Region(r).ID; got != tt.target {
				t.Errorf("Target = %s, want %s", got, tt.target)
			}
		})
	}
}

// zeroDegreeModel is A(core) - H - B(core) with H in region A but flowing
// only to B, so the Hampl degree of H in A is 0.
func zeroDegreeModel(t *testing.T) (*Env, int, int) {
	m := build(t,
		[]region.Zone{{ID: "A", Mass: 10, Coreable: true}, {ID: "H", Mass: 4}, {ID: "B", Mass: 10, Coreable: true}},
		[][2]int{{0, 1}, {1, 2}},
		[]link{{1, 2, 5}},
	)
	rA, rB := seed(t, m, 0), seed(t, m, 2)
	if _, err := m.Tangle(1, rA, false); err != nil {
		t.Fatal(err)
	}
	env := NewEnv(m)
	env.Fuzzier = fuzzy.NewHampl(fuzzy.DefaultOptions())
	env.Refresh(rA, rB)
	return env, rA, rB
}

func TestMergeMovesZeroDegreeZones(t *testing.T) {
	env, rA, rB := zeroDegreeModel(t)
	m := env.Model
	a, ok := m.AssignmentTo(1, rA)
	if !ok || m.Assignment(a).Degree != 0 {
		t.Fatalf("degree of H in A = %v, want 0", m.Assignment(a).Degree)
	}
	// A core without any flow has a zero degree as well.
	if a, _ := m.AssignmentTo(0, rA); m.Assignment(a).Degree != 0 {
		t.Fatalf("degree of core A = %v, want 0", m.Assignment(a).Degree)
	}

	mg, _ := NewMerger("watts", MergerOptions{})
	mg.Merge(env, rB, rA)
	for z, core := range map[int]bool{0: true, 1: false} {
		if !m.IsInRegion(z, rB) {
			t.Errorf("zone %s not moved into B", m.Zone(z).ID)
		}
		if m.IsCoreOf(z, rB) != core {
			t.Errorf("zone %s core = %v, want %v", m.Zone(z).ID, !core, core)
		}
	}
	assertAllAssigned(t, m)
}

func TestAbsorbMovesZeroDegreeZones(t *testing.T) {
	tests := []struct {
		name     string
		separate bool
		rest     []int
	}{
		{"whole", false, nil},
		{"separate", true, []int{1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, rA, rB := zeroDegreeModel(t)
			m := env.Model
			rest, err := absorb(env, rA, rB, tt.separate)
			if err != nil {
				t.Fatal(err)
			}
			if !slices.Equal(rest, tt.rest) {
				t.Errorf("rest = %v, want %v", rest, tt.rest)
			}
			if !m.IsInRegion(0, rB) {
				t.Error("zero-degree core A not moved into B")
			}
			if !tt.separate {
				if !m.IsInRegion(1, rB) {
					t.Error("zero-degree zone H not moved into B")
				}
				assertAllAssigned(t, m)
			}
		})
	}
}

func assertAllAssigned(t *testing.T, m *region.Model) {
	t.Helper()
	for z := range m.NumZones() {
		if !m.IsAssigned(z) {
			t.Errorf("zone %s left unassigned", m.Zone(z).ID)
		}
	}
}

func TestCoombesMerger(t *testing.T) {
	m := build(t,
		[]region.Zone{{ID: "A", Mass: 10, Coreable: true}, {ID: "B", Mass: 10, Coreable: true}},
		[][2]int{{0, 1}},
		[]link{{0, 1, 4}, {1, 0, 2}},
	)
	rA, rB := seed(t, m, 0), seed(t, m, 1)
	env := basicEnv(m)
	// Both directions carry all flow: 2^2/(2*2) + 4^2/(4*4) = 2.
	mg, _ := NewMerger("coombes", MergerOptions{Threshold: 2, ToFlow: 0.5, CounterFlow: 0.5})
	if got := mg.Score(env, rA, rB); math.Abs(got-2) > eps {
		t.Errorf("coombes score = %v, want 2", got)
	}
	if target, ok := mg.Target(env, rA); !ok || target != rB {
		t.Errorf("Target(A) = %d, %v; want %d", target, ok, rB)
	}
}

// borderModel is A(core) - X - C(core) with X in region A but flowing
// mostly to C.
func borderModel(t *testing.T) (*Env, int, int) {
	m := build(t,
		[]region.Zone{{ID: "A", Mass: 10, Coreable: true}, {ID: "X", Mass: 4}, {ID: "C", Mass: 10, Coreable: true}},
		[][2]int{{0, 1}, {1, 2}},
		[]link{{1, 0, 1}, {1, 2, 5}},
	)
	rA, rC := seed(t, m, 0), seed(t, m, 2)
	if _, err := m.Tangle(1, rA, false); err != nil {
		t.Fatal(err)
	}
	return basicEnv(m), rA, rC
}

func TestChangerNeverRepeats(t *testing.T) {
	env, rA, rC := borderModel(t)
	m := env.Model
	c := NewChanger(0, true, false)

	if n := c.Optimize(env, []int{rA, rC}); n != 1 {
		t.Fatalf("first Optimize accepted %d changes, want 1", n)
	}
	if !m.IsInRegion(1, rC) {
		t.Fatal("X not moved to C")
	}
	if !c.Performed(1, rA, rC) {
		t.Error("accepted change not recorded")
	}

	if err := env.Move(1, rA, false); err != nil {
		t.Fatal(err)
	}
	env.Refresh(rA, rC)
	if n := c.Optimize(env, []int{rA, rC}); n != 0 {
		t.Errorf("repeated change accepted %d times", n)
	}
	if !m.IsInRegion(1, rA) {
		t.Error("X left A although its move was already performed")
	}

	c.Reset()
	if n := c.Optimize(env, []int{rA, rC}); n != 1 {
		t.Errorf("Optimize after Reset accepted %d changes, want 1", n)
	}
}

func TestChangerGain(t *testing.T) {
	env, rA, rC := borderModel(t)
	c := NewChanger(0, false, false)
	changes := c.ChangesTo(env, rC)
	if len(changes) != 1 {
		t.Fatalf("ChangesTo(C) = %v, want one change", changes)
	}
	// 10 + 4*5/6 into C, minus 10 + 4*1/6 out of A.
	if got, want := changes[0].Gain, 8.0/3; math.Abs(got-want) > eps {
		t.Errorf("gain = %v, want %v", got, want)
	}
	if got := c.ChangesTo(env, rA); len(got) != 0 {
		t.Errorf("ChangesTo(A) = %v, want none", got)
	}
}

func TestChangerProtect(t *testing.T) {
	env, rA, rC := borderModel(t)
	th := 14.0
	crit, _ := verify.NewCriterion("mass", true, &th)
	env.Verifier = crit
	c := NewChanger(0, true, true)
	if n := c.Optimize(env, []int{rA, rC}); n != 0 {
		t.Errorf("protected Optimize accepted %d changes", n)
	}
	if !env.Model.IsInRegion(1, rA) || env.Model.Mass(rA) != 14 {
		t.Error("rejected change not rolled back")
	}
}

func TestEnlarge(t *testing.T) {
	tests := []struct {
		threshold float64
		want      bool
		massC     float64
	}{
		{14, true, 14},
		{20, false, 10},
	}
	for _, tt := range tests {
		env, _, rC := borderModel(t)
		th := tt.threshold
		crit, _ := verify.NewCriterion("mass", true, &th)
		env.Verifier = crit
		c := NewChanger(0, true, false)
		if got := c.Enlarge(env, rC); got != tt.want {
			t.Errorf("Enlarge to %v = %v, want %v", tt.threshold, got, tt.want)
		}
		if got := env.Model.Mass(rC); got != tt.massC {
			t.Errorf("Mass(C) after Enlarge to %v = %v, want %v", tt.threshold, got, tt.massC)
		}
	}
}

func TestDestroyer(t *testing.T) {
	env, rA, _ := borderModel(t)
	m := env.Model
	a, _ := m.AssignmentTo(1, rA)
	m.SetDegree(a, 0.2)
	th := 0.5
	d := &Destroyer{Threshold: &th}
	if n := d.Run(env, ZoneTargets([]int{0, 1, 2})); n != 1 {
		t.Errorf("Run destroyed %d zones, want 1", n)
	}
	if m.IsAssigned(1) {
		t.Error("weak zone still assigned")
	}
	if !m.IsAssigned(0) {
		t.Error("core zone deassigned")
	}

	d = &Destroyer{Regional: true, Threshold: &th}
	if n := d.Run(env, Targets([]int{rA})); n != 0 {
		t.Errorf("Run erased %d regions with degree 1 over 0.5", n)
	}
}

func TestCountHalter(t *testing.T) {
	env, rA, rC := borderModel(t)
	h := CountHalter{Threshold: 1}
	pending := []flow.Unit{flow.RegionUnit(rA), flow.RegionUnit(rC)}
	if h.Halt(env, pending) {
		t.Error("Halt with 2 live regions over threshold 1")
	}
	env.Model.EraseRegion(rC)
	if !h.Halt(env, pending) {
		t.Error("no Halt with 1 live region at threshold 1")
	}
}
