package flow

import (
	"errors"
	"fmt"
	"maps"
	"slices"
)

var (
	// ErrLengthMismatch is returned when strengths of different lengths are
	// combined.
	ErrLengthMismatch = errors.New("flow length mismatch")

	// ErrComponentRange is returned by [Multi.Component] for an index
	// outside the vector length.
	ErrComponentRange = errors.New("flow component out of range")
)

// Multi is a sparse vector whose strengths are fixed-length slices, used
// when an interaction table carries several value columns. The length is
// set once by [NewMulti] and every strength must match it.
type Multi struct {
	length int
	flows  map[Unit][]float64
	raw    []float64
}

// NewMulti returns an empty multi-valued vector of the given length.
func NewMulti(length int) *Multi {
	if length < 1 {
		length = 1
	}
	return &Multi{
		length: length,
		flows:  make(map[Unit][]float64),
		raw:    make([]float64, length),
	}
}

// Length returns the number of values per target.
func (m *Multi) Length() int { return m.length }

// Len returns the number of targets.
func (m *Multi) Len() int { return len(m.flows) }

// Get returns a copy of the strengths toward u; zeros when absent.
func (m *Multi) Get(u Unit) []float64 {
	if vals, ok := m.flows[u]; ok {
		return slices.Clone(vals)
	}
	return make([]float64, m.length)
}

// AddTo accumulates vals onto the strengths toward u.
func (m *Multi) AddTo(u Unit, vals []float64) error {
	if len(vals) != m.length {
		return fmt.Errorf("%w: got %d values, want %d", ErrLengthMismatch, len(vals), m.length)
	}
	cur, ok := m.flows[u]
	if !ok {
		cur = make([]float64, m.length)
		m.flows[u] = cur
	}
	for i, v := range vals {
		cur[i] += v
	}
	return nil
}

// AddRaw accumulates vals onto the raw residual.
func (m *Multi) AddRaw(vals []float64) error {
	if len(vals) != m.length {
		return fmt.Errorf("%w: got %d values, want %d", ErrLengthMismatch, len(vals), m.length)
	}
	for i, v := range vals {
		m.raw[i] += v
	}
	return nil
}

// Add accumulates other into m target-wise.
func (m *Multi) Add(other *Multi) error {
	if other.length != m.length {
		return fmt.Errorf("%w: got %d values, want %d", ErrLengthMismatch, other.length, m.length)
	}
	for u, vals := range other.flows {
		if err := m.AddTo(u, vals); err != nil {
			return err
		}
	}
	return m.AddRaw(other.raw)
}

// Sum returns the per-component totals, raw included.
func (m *Multi) Sum() []float64 {
	out := slices.Clone(m.raw)
	for _, vals := range m.flows {
		for i, v := range vals {
			out[i] += v
		}
	}
	return out
}

// Targets returns the targets in unit order.
func (m *Multi) Targets() []Unit {
	out := slices.Collect(maps.Keys(m.flows))
	slices.SortFunc(out, Unit.Compare)
	return out
}

// Component projects the i-th value of every strength to a scalar vector.
func (m *Multi) Component(i int) (*Vector, error) {
	if i < 0 || i >= m.length {
		return nil, fmt.Errorf("%w: %d (length %d)", ErrComponentRange, i, m.length)
	}
	v := New()
	for u, vals := range m.flows {
		v.flows[u] = vals[i]
	}
	v.raw = m.raw[i]
	return v, nil
}
