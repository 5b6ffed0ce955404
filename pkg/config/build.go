package config

import (
	stderrors "errors"
	"fmt"
	"slices"
	"strings"

	"github.com/matzehuels/regionkit/pkg/colors"
	"github.com/matzehuels/regionkit/pkg/errors"
	"github.com/matzehuels/regionkit/pkg/fuzzy"
	"github.com/matzehuels/regionkit/pkg/pipeline"
	"github.com/matzehuels/regionkit/pkg/region"
	"github.com/matzehuels/regionkit/pkg/restructure"
	"github.com/matzehuels/regionkit/pkg/verify"
)

// Element kinds.
const (
	KindFuzzier    = "fuzzier"
	KindCriterion  = "criterion"
	KindVerifier   = "verifier"
	KindAggregator = "aggregator"
	KindMerger     = "merger"
	KindChanger    = "changer"
	KindDestroyer  = "destroyer"
	KindHalter     = "halter"
	KindColoring   = "coloring"
	KindOverlap    = "overlap"
)

// Aggregator types.
const (
	AggregatorFlow          = "flow"
	AggregatorRing          = "ring"
	AggregatorNeighbourhood = "neighbourhood"
)

// Target kinds.
const (
	TargetZone   = "zone"
	TargetRegion = "region"
)

// Criterion directions.
const (
	DirectionMin = "min"
	DirectionMax = "max"
)

// builder resolves elements once per build, so that stages referencing
// the same ID share one strategy.
type builder struct {
	setup    *Setup
	elements map[string]*Element
	built    map[string]any
	// resolving guards against verifier groups that contain themselves.
	resolving map[string]bool
}

// Build validates s and assembles a fresh pipeline from it.
func Build(s *Setup) (*pipeline.Pipeline, error) {
	mode := s.Settings.Mode
	if mode == "" {
		mode = region.Exclusive.String()
	}
	if !pipeline.ValidModes[mode] {
		return nil, invalid("settings", "mode", mode, Vocabulary()["modes"])
	}

	b := &builder{
		setup:     s,
		elements:  make(map[string]*Element, len(s.Elements)),
		built:     make(map[string]any),
		resolving: make(map[string]bool),
	}
	for i := range s.Elements {
		e := &s.Elements[i]
		if e.ID == "" {
			return nil, errors.New(errors.ErrCodeConfigMissing, "element %d has no id", i+1)
		}
		if _, dup := b.elements[e.ID]; dup {
			return nil, errors.New(errors.ErrCodeConfigMalformed, "duplicate element id %q", e.ID)
		}
		if !slices.Contains(Kinds, e.Kind) {
			return nil, invalid(e.ID, "kind", e.Kind, Kinds)
		}
		b.elements[e.ID] = e
	}

	p := &pipeline.Pipeline{
		Name:      s.Metadata.Name,
		DropZeros: s.Settings.DropZeros,
		SetupHash: s.Hash,
	}
	if mode == region.Fuzzy.String() {
		p.Mode = region.Fuzzy
	}

	global := &pipeline.Stage{}
	for _, id := range s.Global.Elements {
		e, ok := b.elements[id]
		if !ok {
			return nil, errors.New(errors.ErrCodeConfigUnresolved, "global: unknown element %q", id)
		}
		if !slices.Contains([]string{KindFuzzier, KindCriterion, KindVerifier}, e.Kind) {
			return nil, errors.New(errors.ErrCodeConfigMalformed, "global: element %q of kind %s cannot be shared (only fuzzier, criterion and verifier)", id, e.Kind)
		}
		if err := b.place(global, e, "global"); err != nil {
			return nil, err
		}
	}

	for i, spec := range s.Stages {
		n := i + 1
		stage := &pipeline.Stage{Message: spec.Message}
		if stage.Message == "" {
			stage.Message = fmt.Sprintf("stage %d", n)
		}
		where := fmt.Sprintf("stage %d", n)
		for _, id := range spec.Elements {
			e, ok := b.elements[id]
			if !ok {
				return nil, errors.New(errors.ErrCodeConfigUnresolved, "%s: unknown element %q", where, id)
			}
			if err := b.place(stage, e, where); err != nil {
				return nil, err
			}
		}
		if stage.Fuzzier == nil {
			stage.Fuzzier = global.Fuzzier
		}
		if stage.Verifier == nil {
			stage.Verifier = global.Verifier
		}
		p.Stages = append(p.Stages, stage)
	}

	for i, spec := range s.Outputs {
		for _, id := range spec.Elements {
			e, ok := b.elements[id]
			if !ok {
				return nil, errors.New(errors.ErrCodeConfigUnresolved, "output %d: unknown element %q", i+1, id)
			}
			out, err := b.output(e, global.Fuzzier)
			if err != nil {
				return nil, err
			}
			p.Outputs = append(p.Outputs, out)
		}
	}
	return p, nil
}

// place puts element e into its slot of stage.
func (b *builder) place(stage *pipeline.Stage, e *Element, where string) error {
	v, err := b.resolve(e)
	if err != nil {
		return err
	}
	taken := func() error {
		return errors.New(errors.ErrCodeConfigMalformed, "%s: more than one %s (%q)", where, e.Kind, e.ID)
	}
	switch x := v.(type) {
	case fuzzy.Fuzzier:
		if stage.Fuzzier != nil {
			return taken()
		}
		stage.Fuzzier = x
	case verify.Verifier:
		if stage.Verifier != nil {
			return errors.New(errors.ErrCodeConfigMalformed, "%s: more than one criterion or verifier (%q)", where, e.ID)
		}
		stage.Verifier = x
	case restructure.Aggregator:
		if stage.Aggregator != nil {
			return taken()
		}
		stage.Aggregator = x
	case *restructure.Merger:
		if stage.Merger != nil {
			return taken()
		}
		stage.Merger = x
	case *restructure.Changer:
		if stage.Changer != nil {
			return taken()
		}
		stage.Changer = x
	case *restructure.Destroyer:
		if stage.Destroyer != nil {
			return taken()
		}
		stage.Destroyer = x
	case *restructure.CountHalter:
		if stage.Halter != nil {
			return taken()
		}
		stage.Halter = x
	default:
		return errors.New(errors.ErrCodeConfigMalformed, "%s: element %q of kind %s belongs to an output stage", where, e.ID, e.Kind)
	}
	return nil
}

// resolve builds element e, or returns the instance built before.
func (b *builder) resolve(e *Element) (any, error) {
	if v, ok := b.built[e.ID]; ok {
		return v, nil
	}
	if b.resolving[e.ID] {
		return nil, errors.New(errors.ErrCodeConfigMalformed, "element %q references itself", e.ID)
	}
	b.resolving[e.ID] = true
	defer delete(b.resolving, e.ID)

	var (
		v   any
		err error
	)
	switch e.Kind {
	case KindFuzzier:
		v, err = b.fuzzier(e)
	case KindCriterion:
		v, err = b.criterion(e)
	case KindVerifier:
		v, err = b.verifier(e)
	case KindAggregator:
		v, err = b.aggregator(e)
	case KindMerger:
		v, err = b.merger(e)
	case KindChanger:
		v = restructure.NewChanger(value(e.Threshold, 0), e.Relative, e.Protect)
	case KindDestroyer:
		v, err = b.destroyer(e)
	case KindHalter:
		v, err = b.halter(e)
	case KindColoring, KindOverlap:
		v = e
	}
	if err != nil {
		return nil, err
	}
	b.built[e.ID] = v
	return v, nil
}

// lookup resolves a reference from element from to an element of one of
// the given kinds.
func (b *builder) lookup(from *Element, field, id string, kinds ...string) (any, error) {
	e, ok := b.elements[id]
	if !ok {
		return nil, errors.New(errors.ErrCodeConfigUnresolved, "element %q: unknown %s %q", from.ID, field, id)
	}
	if !slices.Contains(kinds, e.Kind) {
		return nil, errors.New(errors.ErrCodeConfigMalformed, "element %q: %s %q is a %s (must be one of: %s)", from.ID, field, id, e.Kind, strings.Join(kinds, ", "))
	}
	return b.resolve(e)
}

// key resolves an ordering reference to the sort key of a criterion or
// verifier. The empty reference yields nil.
func (b *builder) key(from *Element, field, id string) (verify.ValueFunc, error) {
	if id == "" {
		return nil, nil
	}
	v, err := b.lookup(from, field, id, KindCriterion, KindVerifier)
	if err != nil {
		return nil, err
	}
	return v.(verify.Verifier).Key(), nil
}

func (b *builder) fuzzier(e *Element) (fuzzy.Fuzzier, error) {
	opts := fuzzy.DefaultOptions()
	opts.Active = value(e.Active, true)
	if e.Penalization != nil {
		p, err := percent(e.ID, "penalization", *e.Penalization)
		if err != nil {
			return nil, err
		}
		opts.Penalization = p
	}
	f, err := fuzzy.New(e.Type, opts)
	if err != nil {
		return nil, invalid(e.ID, "type", e.Type, fuzzy.TypeNames())
	}
	return f, nil
}

func (b *builder) criterion(e *Element) (*verify.Criterion, error) {
	if e.Criterion == "" {
		return nil, errors.New(errors.ErrCodeConfigMissing, "element %q: criterion is required", e.ID)
	}
	if !verify.IsCriterion(e.Criterion) {
		return nil, invalid(e.ID, "criterion", e.Criterion, verify.CriterionNames())
	}
	dir := e.Direction
	if dir == "" {
		dir = DirectionMin
	}
	if dir != DirectionMin && dir != DirectionMax {
		return nil, invalid(e.ID, "direction", dir, []string{DirectionMax, DirectionMin})
	}
	var threshold *float64
	if e.Threshold != nil {
		t := *e.Threshold
		if verify.IsRatio(e.Criterion) {
			var err error
			if t, err = percent(e.ID, "threshold", t); err != nil {
				return nil, err
			}
		}
		threshold = &t
	}
	c, err := verify.NewCriterion(e.Criterion, dir == DirectionMin, threshold)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfigInvalidValue, err, "element %q", e.ID)
	}
	c.SetActive(value(e.Active, true))
	return c, nil
}

func (b *builder) verifier(e *Element) (verify.Verifier, error) {
	mode := e.Type
	if mode == "" {
		mode = verify.Simultaneous
	}
	if err := verify.ValidateGroup(mode, len(e.Members)); err != nil {
		if stderrors.Is(err, verify.ErrGroupSize) {
			return nil, errors.Wrap(errors.ErrCodeConfigMalformed, err, "element %q", e.ID)
		}
		return nil, invalid(e.ID, "type", mode, verify.GroupModes)
	}
	if len(e.Members) == 0 {
		return nil, errors.New(errors.ErrCodeConfigMissing, "element %q: members are required", e.ID)
	}
	members := make([]verify.Verifier, 0, len(e.Members))
	for _, id := range e.Members {
		v, err := b.lookup(e, "member", id, KindCriterion, KindVerifier)
		if err != nil {
			return nil, err
		}
		members = append(members, v.(verify.Verifier))
	}
	g, err := verify.NewGroup(mode, members)
	if err != nil {
		if stderrors.Is(err, verify.ErrUnsupportedGroup) {
			return nil, errors.Wrap(errors.ErrCodeUnsupported, err, "element %q", e.ID)
		}
		return nil, errors.Wrap(errors.ErrCodeConfigMalformed, err, "element %q", e.ID)
	}
	g.SetActive(value(e.Active, true))
	return g, nil
}

func (b *builder) aggregator(e *Element) (restructure.Aggregator, error) {
	target := e.Target
	if target == "" {
		target = TargetZone
	}
	if target != TargetZone && target != TargetRegion {
		return nil, invalid(e.ID, "target", target, []string{TargetRegion, TargetZone})
	}
	opts := restructure.DefaultAggregatorOptions()
	opts.Regional = target == TargetRegion
	opts.HighestFirst = !value(e.DescendingOrdering, true)
	opts.WarnFail = value(e.WarnFail, true)
	opts.TryChange, opts.TryMerge = e.TryChange, e.TryMerge
	opts.Neighbourhood = e.Neighbourhood
	var err error
	if opts.Ordering, err = b.key(e, "ordering", e.Ordering); err != nil {
		return nil, err
	}
	if opts.Secondary, err = b.key(e, "secondary", e.Secondary); err != nil {
		return nil, err
	}

	switch e.Type {
	case AggregatorFlow, "":
		transform, err := restructure.LookupTransform(e.Transform)
		if err != nil {
			return nil, invalid(e.ID, "transform", e.Transform, restructure.TransformNames())
		}
		linkage, err := restructure.ParseLinkage(e.Linkage)
		if err != nil {
			return nil, invalid(e.ID, "linkage", e.Linkage, linkageNames())
		}
		fo := restructure.DefaultFlowOptions()
		fo.AggregatorOptions = opts
		fo.TargetCoreOnly = e.TargetCoreOnly
		fo.Bidirectional = value(e.Bidirectional, true)
		fo.UseHinterlandFlows = value(e.UseHinterlandFlows, true)
		fo.SeparateHinterland = e.SeparateHinterland
		fo.Transform = transform
		fo.Linkage = linkage
		return restructure.NewFlowAggregator(fo), nil
	case AggregatorRing:
		if opts.Regional {
			return nil, invalid(e.ID, "target", target, []string{TargetZone})
		}
		if e.Threshold == nil {
			return nil, errors.New(errors.ErrCodeConfigMissing, "element %q: threshold is required", e.ID)
		}
		t, err := percent(e.ID, "threshold", *e.Threshold)
		if err != nil {
			return nil, err
		}
		return restructure.NewRingAggregator(opts, t), nil
	case AggregatorNeighbourhood:
		return restructure.NewNeighbourhoodAggregator(opts), nil
	}
	return nil, invalid(e.ID, "type", e.Type, AggregatorTypes)
}

func (b *builder) merger(e *Element) (*restructure.Merger, error) {
	if !slices.Contains(restructure.MergerNames(), e.Type) {
		return nil, invalid(e.ID, "type", e.Type, restructure.MergerNames())
	}
	if e.Threshold == nil {
		return nil, errors.New(errors.ErrCodeConfigMissing, "element %q: threshold is required", e.ID)
	}
	opts := restructure.MergerOptions{Regional: e.Regional, Neighbourhood: e.Neighbourhood}
	var err error
	if opts.Threshold, err = percent(e.ID, "threshold", *e.Threshold); err != nil {
		return nil, err
	}
	if opts.CounterFlow, err = percent(e.ID, "counter-flow", e.CounterFlow); err != nil {
		return nil, err
	}
	if opts.ToFlow, err = percent(e.ID, "to-flow", e.ToFlow); err != nil {
		return nil, err
	}
	if opts.Ordering, err = b.key(e, "ordering", e.Ordering); err != nil {
		return nil, err
	}
	mg, err := restructure.NewMerger(e.Type, opts)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfigInvalidValue, err, "element %q", e.ID)
	}
	return mg, nil
}

func (b *builder) destroyer(e *Element) (*restructure.Destroyer, error) {
	target := e.Target
	if target == "" {
		target = TargetZone
	}
	if target != TargetZone && target != TargetRegion {
		return nil, invalid(e.ID, "target", target, []string{TargetRegion, TargetZone})
	}
	if e.Threshold == nil && !e.Exclave {
		return nil, errors.New(errors.ErrCodeConfigMissing, "element %q: threshold or exclave is required", e.ID)
	}
	return &restructure.Destroyer{Regional: target == TargetRegion, Threshold: e.Threshold, Exclave: e.Exclave}, nil
}

func (b *builder) halter(e *Element) (*restructure.CountHalter, error) {
	if e.Threshold == nil {
		return nil, errors.New(errors.ErrCodeConfigMissing, "element %q: threshold is required", e.ID)
	}
	t := *e.Threshold
	if t < 0 || t != float64(int(t)) {
		return nil, errors.New(errors.ErrCodeConfigInvalidValue, "element %q: threshold %g is not a count", e.ID, t)
	}
	return &restructure.CountHalter{Threshold: int(t)}, nil
}

// output builds an output stage from a coloring or overlap element.
func (b *builder) output(e *Element, global fuzzy.Fuzzier) (*pipeline.OutputStage, error) {
	out := &pipeline.OutputStage{Fuzzier: global}
	if e.Fuzzier != "" {
		v, err := b.lookup(e, "fuzzier", e.Fuzzier, KindFuzzier)
		if err != nil {
			return nil, err
		}
		out.Fuzzier = v.(fuzzy.Fuzzier)
	}
	switch e.Kind {
	case KindColoring:
		mixer := e.Mixer
		if mixer == "" {
			mixer = colors.DefaultMixer
		}
		if _, err := colors.Lookup(mixer); err != nil {
			return nil, invalid(e.ID, "mixer", mixer, colors.MixerNames())
		}
		out.Coloring, out.Mixer = true, mixer
	case KindOverlap:
		if e.Merger == "" {
			return nil, errors.New(errors.ErrCodeConfigMissing, "element %q: merger is required", e.ID)
		}
		v, err := b.lookup(e, "merger", e.Merger, KindMerger)
		if err != nil {
			return nil, err
		}
		out.Overlap, out.Merger = true, v.(*restructure.Merger)
	default:
		return nil, errors.New(errors.ErrCodeConfigMalformed, "element %q of kind %s cannot be an output", e.ID, e.Kind)
	}
	return out, nil
}

func invalid(id, field, got string, allowed []string) error {
	return errors.New(errors.ErrCodeConfigInvalidValue, "%s: invalid %s %q (must be one of: %s)", id, field, got, strings.Join(allowed, ", "))
}

// percent validates a percentage and returns it as a ratio.
func percent(id, field string, v float64) (float64, error) {
	if err := errors.ValidatePercent(id+": "+field, v); err != nil {
		return 0, err
	}
	return v / 100, nil
}

func value[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}
