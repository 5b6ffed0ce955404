package restructure

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/matzehuels/regionkit/pkg/flow"
	"github.com/matzehuels/regionkit/pkg/verify"
)

var (
	// ErrUnknownTransform is returned for an unsupported flow transform.
	ErrUnknownTransform = errors.New("unknown flow transform")

	// ErrUnknownLinkage is returned for an unsupported indirect linkage.
	ErrUnknownLinkage = errors.New("unknown indirect linkage")
)

// Aggregator assigns unassigned zones or small regions to larger regions.
type Aggregator interface {
	// Regional reports whether the aggregator consumes regions rather than
	// unassigned zones.
	Regional() bool
	// TryChange and TryMerge report whether the stage should first try to
	// complete a region candidate by border changes or by a merge.
	TryChange() bool
	TryMerge() bool

	Feed(env *Env, targets []flow.Unit)
	Next(env *Env) (flow.Unit, bool)
	// Aggregate tries to place u and records the outcome in the queue.
	Aggregate(env *Env, u flow.Unit) bool
	// Skip marks u as handled without aggregating it.
	Skip(u flow.Unit)
	Pending() []flow.Unit
	// Failure summarizes the candidates left after the queue is exhausted.
	Failure(env *Env) (Failure, bool)
}

// AggregatorOptions hold the settings shared by every aggregator.
type AggregatorOptions struct {
	// Regional consumes regions instead of unassigned zones.
	Regional bool
	// HighestFirst pops the largest candidate first.
	HighestFirst bool
	WarnFail     bool
	TryChange    bool
	TryMerge     bool
	// Neighbourhood restricts targets to regions adjacent to the candidate.
	Neighbourhood bool
	// Ordering keys the candidate queue. Nil orders by raw mass.
	Ordering verify.ValueFunc
	// Secondary breaks ties between target regions. Nil uses mass.
	Secondary verify.ValueFunc
}

// DefaultAggregatorOptions returns the defaults: lowest candidates first
// with failure warnings on.
func DefaultAggregatorOptions() AggregatorOptions {
	return AggregatorOptions{WarnFail: true}
}

// aggregator carries the queue and target ordering of every aggregator.
type aggregator struct {
	opts      AggregatorOptions
	queue     *Queue
	secondary *verify.Sorter
	reason    func(env *Env) string
}

func newAggregator(opts AggregatorOptions) aggregator {
	q := NewQueue(opts.Ordering)
	q.HighestFirst = opts.HighestFirst
	return aggregator{opts: opts, queue: q, secondary: verify.NewSorter(opts.Secondary)}
}

func (a *aggregator) Regional() bool  { return a.opts.Regional }
func (a *aggregator) TryChange() bool { return a.opts.TryChange }
func (a *aggregator) TryMerge() bool  { return a.opts.TryMerge }

func (a *aggregator) Feed(env *Env, targets []flow.Unit) { a.queue.Feed(env, targets) }

func (a *aggregator) Next(env *Env) (flow.Unit, bool) { return a.queue.Next(env) }

func (a *aggregator) Skip(u flow.Unit) { a.queue.Done(u, true) }

func (a *aggregator) Pending() []flow.Unit { return a.queue.Pending() }

func (a *aggregator) Failure(env *Env) (Failure, bool) {
	failed := a.queue.Failed()
	if len(failed) == 0 || !a.opts.WarnFail {
		return Failure{}, false
	}
	f := Failure{Regions: a.opts.Regional, Reason: a.reason(env)}
	for _, u := range failed {
		f.IDs = append(f.IDs, env.ID(u))
	}
	slices.Sort(f.IDs)
	return f, true
}

// done records ok for u and returns it.
func (a *aggregator) done(u flow.Unit, ok bool) bool {
	a.queue.Done(u, ok)
	return ok
}

// pick returns the best region target among the strongest flows. limit,
// when non-empty, restricts the candidates to those regions.
func (a *aggregator) pick(env *Env, flows *flow.Vector, limit []int) (int, bool) {
	if flows.Empty() {
		return -1, false
	}
	if len(limit) > 0 {
		set := make(map[flow.Unit]bool, len(limit))
		for _, r := range limit {
			set[flow.RegionUnit(r)] = true
		}
		flows.Restrict(set)
	}
	top := flows.Max()
	if flows.Empty() || top <= 0 {
		return -1, false
	}
	var tops []flow.Unit
	for _, u := range flows.AllOver(top) {
		if u.IsRegion() {
			tops = append(tops, u)
		}
	}
	switch len(tops) {
	case 0:
		return -1, false
	case 1:
		return tops[0].Index, true
	}
	best, _ := a.secondary.Max(env.Model, tops)
	return best.Index, true
}

// absorb moves every zone of region r, whatever its degree, into target as
// hinterland and erases r. With separate set only the cores move; the
// former hinterland zones are returned to be placed individually.
func absorb(env *Env, r, target int, separate bool) (rest []int, err error) {
	m := env.Model
	zones := m.MemberZones(r)
	if separate {
		zones, rest = m.CoreZones(r), m.AllHinterlandZones(r)
	}
	m.EraseRegion(r)
	for _, z := range zones {
		if err := env.Attach(z, target, false); err != nil {
			return nil, err
		}
	}
	env.Refresh(target)
	return rest, nil
}

// Transform rescales the flow toward one target. flow is the flow toward
// the target, total the candidate's total flow, counter the target's total
// flow in the opposite direction.
type Transform func(flow, total, counter float64) float64

// Transforms maps configuration names to flow transforms. "none" is
// represented by a nil transform.
var Transforms = map[string]Transform{
	"none": nil,
	"curds": func(f, total, counter float64) float64 {
		if total == 0 || counter == 0 {
			return 0
		}
		return f/total + f/counter
	},
	"intramax": func(f, total, counter float64) float64 {
		return flow.Ratio(f, total*counter)
	},
	"smart": func(f, total, counter float64) float64 {
		return flow.Ratio(f*f, total*counter)
	},
}

// LookupTransform returns the named transform. The empty name means none.
func LookupTransform(name string) (Transform, error) {
	if name == "" {
		return nil, nil
	}
	t, ok := Transforms[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (must be one of: %s)", ErrUnknownTransform, name, strings.Join(TransformNames(), ", "))
	}
	return t, nil
}

// TransformNames returns the supported transform names, sorted.
func TransformNames() []string {
	names := make([]string, 0, len(Transforms))
	for n := range Transforms {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Linkage selects how flows through unassigned zones are treated.
type Linkage string

const (
	// LinkageNone keeps only flows that end in regions.
	LinkageNone Linkage = "none"
	// LinkageGradual follows the strongest flow through unassigned zones,
	// weighting their flows by the share of flow they receive.
	LinkageGradual Linkage = "gradual"
	// LinkageMarkov passes flows to unassigned zones through unchanged.
	LinkageMarkov Linkage = "markov"
)

// Linkages lists the accepted linkage names.
var Linkages = []Linkage{LinkageNone, LinkageGradual, LinkageMarkov}

// ParseLinkage validates a linkage name. The empty name means none.
func ParseLinkage(name string) (Linkage, error) {
	if name == "" {
		return LinkageNone, nil
	}
	for _, l := range Linkages {
		if string(l) == name {
			return l, nil
		}
	}
	names := make([]string, len(Linkages))
	for i, l := range Linkages {
		names[i] = string(l)
	}
	return "", fmt.Errorf("%w: %q (must be one of: %s)", ErrUnknownLinkage, name, strings.Join(names, ", "))
}
