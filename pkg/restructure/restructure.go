// Package restructure implements the strategies that grow, reshape, merge
// and prune regions: aggregators, the border changer, mergers, the
// membership destroyer and the count halter.
//
// # Environment
//
// Every strategy operates through an [Env], which carries the model and the
// fuzzier and verifier wired into the current stage. Strategies move zones
// with [Env.Move] and refresh membership degrees with [Env.Refresh], so
// region masses stay consistent after every step.
//
// # Determinism
//
// Candidate selection never depends on map iteration order. Targets are
// ordered by a key, then by unit ID; ties between candidate regions are
// broken by the secondary ordering and then by region ID.
//
// # Failures
//
// A strategy that cannot place a target records it instead of raising. The
// stage collects the unresolved units into a [Failure] and logs one summary
// warning per pass.
package restructure

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/regionkit/pkg/flow"
	"github.com/matzehuels/regionkit/pkg/fuzzy"
	"github.com/matzehuels/regionkit/pkg/region"
	"github.com/matzehuels/regionkit/pkg/verify"
)

// Env is the stage context a strategy runs in.
type Env struct {
	Model *region.Model
	// Fuzzier refreshes degrees after every move. Nil leaves degrees alone.
	Fuzzier fuzzy.Fuzzier
	// Verifier decides whether a unit is complete. Nil verifies nothing.
	Verifier verify.Verifier
	Logger   *log.Logger
}

// NewEnv returns an environment over m with a discarding logger.
func NewEnv(m *region.Model) *Env {
	return &Env{Model: m, Logger: log.NewWithOptions(io.Discard, log.Options{})}
}

func (e *Env) logger() *log.Logger {
	if e.Logger == nil {
		e.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return e.Logger
}

// Move detaches zone z from every region and assigns it to region r. It
// does not refresh degrees.
func (e *Env) Move(z, r int, core bool) error {
	e.Model.Deassign(z)
	_, err := e.Model.Tangle(z, r, core)
	return err
}

// Attach adds zone z to region r unless it already belongs to it. In
// exclusive mode any other assignment of z is removed first.
func (e *Env) Attach(z, r int, core bool) error {
	if e.Model.IsInRegion(z, r) {
		return nil
	}
	if e.Model.Mode() == region.Exclusive {
		e.Model.Deassign(z)
	}
	_, err := e.Model.Tangle(z, r, core)
	return err
}

// Refresh recomputes the degrees of every live region in rs.
func (e *Env) Refresh(rs ...int) {
	if e.Fuzzier == nil {
		return
	}
	for _, r := range rs {
		if r >= 0 && e.Model.Alive(r) {
			e.Fuzzier.Update(e.Model, r)
		}
	}
}

// Verified reports whether the stage verifier accepts u. Without an active
// verifier nothing is verified.
func (e *Env) Verified(u flow.Unit) bool {
	return e.Verifier != nil && e.Verifier.Active() && e.Verifier.Verify(e.Model, u)
}

// ID returns the external ID of u.
func (e *Env) ID(u flow.Unit) string { return verify.UnitID(e.Model, u) }

func (e *Env) fuzzier() fuzzy.Fuzzier {
	if e.Fuzzier == nil {
		return fuzzy.NewBasic(fuzzy.DefaultOptions())
	}
	return e.Fuzzier
}

// Failure summarizes the units a strategy could not place in one pass.
type Failure struct {
	Regions bool
	IDs     []string
	Reason  string
}

func (f Failure) String() string {
	kind := "Zones"
	if f.Regions {
		kind = "Regions"
	}
	return fmt.Sprintf("%s %s could not be assigned (%s)", kind, strings.Join(f.IDs, ", "), f.Reason)
}

// Targets converts region indices to flow units.
func Targets(rs []int) []flow.Unit {
	out := make([]flow.Unit, len(rs))
	for i, r := range rs {
		out[i] = flow.RegionUnit(r)
	}
	return out
}

// ZoneTargets converts zone indices to flow units.
func ZoneTargets(zs []int) []flow.Unit {
	out := make([]flow.Unit, len(zs))
	for i, z := range zs {
		out[i] = flow.ZoneUnit(z)
	}
	return out
}
