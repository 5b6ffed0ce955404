// Package verify decides whether zones and regions satisfy the criteria of
// a functional region, and orders them by those criteria.
//
// A [Criterion] compares one measure (mass, self-containment, integrity)
// against a threshold, from below or from above. A [Group] combines
// criteria. When a criterion is configured without a threshold, the first
// call to InitThreshold derives one from the current regions with
// [GenMode].
package verify

import (
	"errors"
	"fmt"
	"strings"

	"github.com/matzehuels/regionkit/pkg/flow"
	"github.com/matzehuels/regionkit/pkg/region"
)

var (
	// ErrUnknownCriterion is returned by [NewCriterion] for an unsupported
	// criterion name.
	ErrUnknownCriterion = errors.New("unknown verification criterion")

	// ErrUnknownGroup is returned by [NewGroup] for an unknown group mode.
	ErrUnknownGroup = errors.New("unknown verification group")

	// ErrUnsupportedGroup is returned by [NewGroup] for group modes whose
	// combination rule is not implemented.
	ErrUnsupportedGroup = errors.New("verification group not supported")

	// ErrGroupSize is returned by [ValidateGroup] when a group has the
	// wrong number of members.
	ErrGroupSize = errors.New("invalid verification group size")
)

// Verifier checks zones and regions against one or more criteria.
type Verifier interface {
	Verify(m *region.Model, u flow.Unit) bool
	// VerifyTimes checks the value of u multiplied by times.
	VerifyTimes(m *region.Model, u flow.Unit, times float64) bool
	// VerifyWithout checks the value of u minus the value of part.
	VerifyWithout(m *region.Model, u, part flow.Unit) bool
	// VerifyTogether checks the summed value of us.
	VerifyTogether(m *region.Model, us []flow.Unit) bool
	// InitThreshold derives unset thresholds from the values of us.
	InitThreshold(m *region.Model, us []flow.Unit)
	// Key returns the sort key function matching the criteria.
	Key() ValueFunc
	Active() bool
}

// Criterion verifies one measure against a threshold.
type Criterion struct {
	Name string
	// Min selects a lower bound (value >= threshold); otherwise the
	// threshold is an upper bound.
	Min       bool
	threshold float64
	set       bool
	active    bool
	kind      kind
}

// NewCriterion returns an active criterion, a lower bound when lower is
// set. A nil threshold is derived later by InitThreshold.
func NewCriterion(name string, lower bool, threshold *float64) (*Criterion, error) {
	k, ok := kinds[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (must be one of: %s)", ErrUnknownCriterion, name, strings.Join(CriterionNames(), ", "))
	}
	c := &Criterion{Name: name, Min: lower, kind: k, active: true}
	if threshold != nil {
		c.threshold, c.set = *threshold, true
	}
	return c, nil
}

// Threshold returns the current threshold and whether it has been set.
func (c *Criterion) Threshold() (float64, bool) { return c.threshold, c.set }

// SetActive switches the criterion on or off for stage-level checks.
func (c *Criterion) SetActive(active bool) { c.active = active }

func (c *Criterion) Active() bool { return c.active }

func (c *Criterion) Key() ValueFunc { return c.kind.key }

func (c *Criterion) check(v float64) bool {
	if c.Min {
		return v >= c.threshold
	}
	return v <= c.threshold
}

func (c *Criterion) Verify(m *region.Model, u flow.Unit) bool {
	return c.check(c.kind.value(m, u))
}

func (c *Criterion) VerifyTimes(m *region.Model, u flow.Unit, times float64) bool {
	return c.check(c.kind.value(m, u) * times)
}

func (c *Criterion) VerifyWithout(m *region.Model, u, part flow.Unit) bool {
	return c.check(c.kind.value(m, u) - c.kind.value(m, part))
}

func (c *Criterion) VerifyTogether(m *region.Model, us []flow.Unit) bool {
	var sum float64
	for _, u := range us {
		sum += c.kind.value(m, u)
	}
	return c.check(sum)
}

func (c *Criterion) InitThreshold(m *region.Model, us []flow.Unit) {
	if c.set || len(us) == 0 {
		return
	}
	values := make([]float64, len(us))
	for i, u := range us {
		values[i] = c.kind.value(m, u)
	}
	if mode, err := GenMode(values); err == nil {
		c.threshold, c.set = mode, true
	}
}

// Group modes.
const (
	Simultaneous   = "simultaneous"
	Alternative    = "alternative"
	LinearTradeoff = "linear-tradeoff"
)

// GroupModes lists every group mode accepted by [ValidateGroup].
var GroupModes = []string{Simultaneous, Alternative, LinearTradeoff}

// ValidateGroup checks a group mode and its member count.
func ValidateGroup(mode string, members int) error {
	switch mode {
	case Simultaneous, Alternative:
		return nil
	case LinearTradeoff:
		if members != 2 {
			return fmt.Errorf("%w: %s needs exactly 2 criteria, got %d", ErrGroupSize, mode, members)
		}
		return nil
	}
	return fmt.Errorf("%w: %q (must be one of: %s)", ErrUnknownGroup, mode, strings.Join(GroupModes, ", "))
}

// Group passes when every member passes.
type Group struct {
	Members []Verifier
	active  bool
}

// NewGroup returns an active group of the given mode. Only simultaneous
// groups can be built.
func NewGroup(mode string, members []Verifier) (*Group, error) {
	if err := ValidateGroup(mode, len(members)); err != nil {
		return nil, err
	}
	if mode != Simultaneous {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedGroup, mode)
	}
	return &Group{Members: members, active: true}, nil
}

// SetActive switches the group on or off for stage-level checks.
func (g *Group) SetActive(active bool) { g.active = active }

func (g *Group) Active() bool { return g.active }

func (g *Group) all(pass func(Verifier) bool) bool {
	for _, v := range g.Members {
		if !pass(v) {
			return false
		}
	}
	return true
}

func (g *Group) Verify(m *region.Model, u flow.Unit) bool {
	return g.all(func(v Verifier) bool { return v.Verify(m, u) })
}

func (g *Group) VerifyTimes(m *region.Model, u flow.Unit, times float64) bool {
	return g.all(func(v Verifier) bool { return v.VerifyTimes(m, u, times) })
}

func (g *Group) VerifyWithout(m *region.Model, u, part flow.Unit) bool {
	return g.all(func(v Verifier) bool { return v.VerifyWithout(m, u, part) })
}

func (g *Group) VerifyTogether(m *region.Model, us []flow.Unit) bool {
	return g.all(func(v Verifier) bool { return v.VerifyTogether(m, us) })
}

func (g *Group) InitThreshold(m *region.Model, us []flow.Unit) {
	for _, v := range g.Members {
		v.InitThreshold(m, us)
	}
}

// Key returns the key of a single member, or the product of member keys.
func (g *Group) Key() ValueFunc {
	if len(g.Members) == 1 {
		return g.Members[0].Key()
	}
	keys := make([]ValueFunc, len(g.Members))
	for i, v := range g.Members {
		keys[i] = v.Key()
	}
	return Multiply(keys...)
}
