package pipeline

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/regionkit/pkg/flow"
	"github.com/matzehuels/regionkit/pkg/fuzzy"
	"github.com/matzehuels/regionkit/pkg/region"
	"github.com/matzehuels/regionkit/pkg/restructure"
	"github.com/matzehuels/regionkit/pkg/verify"
)

// Strategy names reported in [StageStat].
const (
	StrategyAggregate = "aggregate"
	StrategyMerge     = "merge"
	StrategyChange    = "change"
	StrategyDestroy   = "destroy"
	StrategyNone      = "none"
)

// Pipeline is an ordered list of stages plus the output stages. Build a
// fresh one for every run.
type Pipeline struct {
	Name      string
	Mode      region.Mode
	DropZeros bool
	Stages    []*Stage
	Outputs   []*OutputStage
	// SetupHash identifies the setup the pipeline was built from. Runs
	// with an empty hash are not cached.
	SetupHash string
}

// Stage wires the strategies of one pass. Exactly one of Aggregator,
// Merger, Changer and Destroyer drives the stage, in that priority; the
// changer and merger of an aggregating stage serve its try-change and
// try-merge steps.
type Stage struct {
	Message    string
	Fuzzier    fuzzy.Fuzzier
	Verifier   verify.Verifier
	Aggregator restructure.Aggregator
	Merger     *restructure.Merger
	Changer    *restructure.Changer
	Destroyer  *restructure.Destroyer
	Halter     *restructure.CountHalter
}

// Strategy names the strategy driving the stage.
func (s *Stage) Strategy() string {
	switch {
	case s.Aggregator != nil:
		return StrategyAggregate
	case s.Merger != nil:
		return StrategyMerge
	case s.Changer != nil:
		return StrategyChange
	case s.Destroyer != nil:
		return StrategyDestroy
	}
	return StrategyNone
}

func (s *Stage) env(m *region.Model, logger *log.Logger) *restructure.Env {
	return &restructure.Env{Model: m, Fuzzier: s.Fuzzier, Verifier: s.Verifier, Logger: logger}
}

// prepare refreshes the degrees and derives unset verification thresholds
// from the current regions.
func (s *Stage) prepare(env *restructure.Env) {
	regions := env.Model.LiveRegions()
	if s.Fuzzier != nil && s.Fuzzier.Active() {
		s.Fuzzier.UpdateAll(env.Model, regions)
	}
	if s.Verifier != nil {
		s.Verifier.InitThreshold(env.Model, restructure.Targets(regions))
	}
}

// run executes the stage and returns how many units it changed and the
// units it could not place.
func (s *Stage) run(ctx context.Context, env *restructure.Env) (int, []restructure.Failure, error) {
	s.prepare(env)
	m := env.Model
	switch s.Strategy() {
	case StrategyAggregate:
		return s.aggregate(ctx, env)
	case StrategyMerge:
		return s.Merger.Run(env, m.LiveRegions()), nil, nil
	case StrategyChange:
		return s.Changer.Optimize(env, m.LiveRegions()), nil, nil
	case StrategyDestroy:
		var targets []flow.Unit
		if s.Destroyer.Regional {
			targets = restructure.Targets(m.LiveRegions())
		} else {
			targets = restructure.ZoneTargets(allZones(m))
		}
		return s.Destroyer.Run(env, targets), nil, nil
	}
	return 0, nil, nil
}

func (s *Stage) aggregate(ctx context.Context, env *restructure.Env) (int, []restructure.Failure, error) {
	m := env.Model
	agg := s.Aggregator
	if agg.Regional() {
		agg.Feed(env, restructure.Targets(m.LiveRegions()))
	} else {
		agg.Feed(env, restructure.ZoneTargets(unassignedZones(m)))
	}
	changed := 0
	for {
		if err := ctx.Err(); err != nil {
			return changed, nil, err
		}
		if s.Halter != nil && s.Halter.Halt(env, agg.Pending()) {
			env.Logger.Debug("halting aggregation", "pending", len(agg.Pending()))
			break
		}
		u, ok := agg.Next(env)
		if !ok {
			break
		}
		if u.IsRegion() && s.settled(env, u) {
			agg.Skip(u)
			continue
		}
		if u.IsRegion() && s.complete(env, agg, u.Index) {
			agg.Skip(u)
			changed++
			continue
		}
		if agg.Aggregate(env, u) {
			changed++
		}
	}
	if s.Halter != nil {
		return changed, nil, nil
	}
	if f, ok := agg.Failure(env); ok {
		return changed, []restructure.Failure{f}, nil
	}
	return changed, nil, nil
}

// settled reports whether region candidate u needs no aggregation.
func (s *Stage) settled(env *restructure.Env, u flow.Unit) bool {
	return !env.Model.Alive(u.Index) || env.Verified(u)
}

// complete tries the changer and then the merger on region r.
func (s *Stage) complete(env *restructure.Env, agg restructure.Aggregator, r int) bool {
	if agg.TryChange() && s.Changer != nil && env.Verifier != nil && env.Verifier.Active() {
		if s.Changer.Enlarge(env, r) {
			return true
		}
	}
	return agg.TryMerge() && s.Merger != nil && s.Merger.Single(env, r)
}

// OutputStage computes zone colors or region overlaps after the last
// stage.
type OutputStage struct {
	// Coloring mixes zone colors from the fuzzier membership dict.
	Coloring bool
	Mixer    string
	Fuzzier  fuzzy.Fuzzier
	// Overlap scores every pair of contiguous regions with Merger.
	Overlap bool
	Merger  *restructure.Merger
}

func allZones(m *region.Model) []int {
	out := make([]int, m.NumZones())
	for z := range out {
		out[z] = z
	}
	return out
}

func unassignedZones(m *region.Model) []int {
	var out []int
	for z := range m.NumZones() {
		if !m.IsAssigned(z) {
			out = append(out, z)
		}
	}
	return out
}
