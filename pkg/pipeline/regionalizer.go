package pipeline

import (
	"cmp"
	"context"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/regionkit/pkg/colors"
	"github.com/matzehuels/regionkit/pkg/errors"
	"github.com/matzehuels/regionkit/pkg/flow"
	"github.com/matzehuels/regionkit/pkg/fuzzy"
	"github.com/matzehuels/regionkit/pkg/observability"
	"github.com/matzehuels/regionkit/pkg/region"
	"github.com/matzehuels/regionkit/pkg/restructure"
	"github.com/matzehuels/regionkit/pkg/verify"
)

// colorSeed seeds the palette shuffle for regions without a color.
const colorSeed = 42

// Regionalizer runs a pipeline over one model.
type Regionalizer struct {
	pipe   *Pipeline
	model  *region.Model
	logger *log.Logger

	regions  []int
	failures []Failure
	stages   []StageStat
	colors   map[int]string
	overlaps map[[2]int]float64
}

// NewRegionalizer returns a regionalizer of pipe over m. A nil logger
// logs through the default logger.
func NewRegionalizer(pipe *Pipeline, m *region.Model, logger *log.Logger) *Regionalizer {
	if logger == nil {
		logger = log.Default()
	}
	return &Regionalizer{pipe: pipe, model: m, logger: logger}
}

// Model returns the model being regionalized.
func (rz *Regionalizer) Model() *region.Model { return rz.model }

// InitRun seeds one region per coreable zone with positive mass, in zone
// ID order, and applies the presets. A preset naming an unknown zone or
// region is logged and leaves the zone unassigned.
//
// Changers shared by the stages start the run with no remembered changes.
func (rz *Regionalizer) InitRun(presets []Preset) {
	m := rz.model
	for _, s := range rz.pipe.Stages {
		if s.Changer != nil {
			s.Changer.Reset()
		}
	}
	seeds := make([]int, 0, m.NumZones())
	for z := range m.NumZones() {
		if zone := m.Zone(z); zone.Coreable && zone.Mass > 0 {
			seeds = append(seeds, z)
		}
	}
	slices.SortFunc(seeds, func(a, b int) int {
		return cmp.Compare(m.Zone(a).ID, m.Zone(b).ID)
	})
	for _, z := range seeds {
		if _, err := m.SeedRegion(z); err != nil {
			rz.logger.Warn("could not seed region", "zone", m.Zone(z).ID, "err", err)
		}
	}

	env := restructure.NewEnv(m)
	env.Logger = rz.logger
	for _, p := range presets {
		if err := rz.applyPreset(env, p); err != nil {
			rz.logger.Warn("ignoring preset", "zone", p.Zone, "region", p.Region, "err", errors.UserMessage(err))
		}
	}
	rz.regions = m.LiveRegions()
	rz.logger.Info("seeded regions", "regions", len(rz.regions), "presets", len(presets))
}

func (rz *Regionalizer) applyPreset(env *restructure.Env, p Preset) error {
	m := rz.model
	z, ok := m.ZoneIndex(p.Zone)
	if !ok {
		return errors.New(errors.ErrCodeDataPreset, "unknown zone %q", p.Zone)
	}
	r, ok := m.FindRegion(p.Region)
	if !ok {
		m.Deassign(z)
		return errors.New(errors.ErrCodeDataPreset, "unknown region %q", p.Region)
	}
	if m.IsInRegion(z, r) && m.IsCoreOf(z, r) == p.Core && len(m.ZoneAssignments(z)) == 1 {
		return nil
	}
	if err := env.Move(z, r, p.Core); err != nil {
		return errors.Wrap(errors.ErrCodeDataPreset, err, "assign %q", p.Zone)
	}
	return nil
}

// Run executes every stage in order. The context is checked between
// stages and inside aggregation loops.
func (rz *Regionalizer) Run(ctx context.Context) error {
	m := rz.model
	for i, s := range rz.pipe.Stages {
		n := i + 1
		if err := ctx.Err(); err != nil {
			return errors.Wrap(errors.ErrCodeCancelled, err, "stage %d", n)
		}
		rz.logger.Info(s.Message, "stage", n, "strategy", s.Strategy())
		observability.Pipeline().OnStageStart(ctx, n, s.Message)
		start := time.Now()

		env := s.env(m, rz.logger)
		changed, failures, err := s.run(ctx, env)
		rz.regions = m.LiveRegions()
		elapsed := time.Since(start)
		observability.Pipeline().OnStageComplete(ctx, n, s.Message, len(rz.regions), elapsed, err)
		if err != nil {
			return errors.Wrap(errors.ErrCodeCancelled, err, "stage %d", n)
		}

		for _, f := range failures {
			rz.failures = append(rz.failures, toFailure(n, f))
			rz.logger.Warn(f.String(), "stage", n)
		}
		rz.stages = append(rz.stages, StageStat{
			Message:  s.Message,
			Strategy: s.Strategy(),
			Changed:  changed,
			Regions:  len(rz.regions),
			Duration: elapsed,
		})
		rz.logger.Debug("stage done", "stage", n, "changed", changed, "regions", len(rz.regions), "duration", elapsed)
	}
	return nil
}

func toFailure(stage int, f restructure.Failure) Failure {
	kind := "zone"
	if f.Regions {
		kind = "region"
	}
	return Failure{Stage: stage, Kind: kind, IDs: slices.Clone(f.IDs), Reason: f.Reason}
}

// PostRun drops zero-mass zones when configured and runs the output
// stages.
func (rz *Regionalizer) PostRun(ctx context.Context) error {
	m := rz.model
	if rz.pipe.DropZeros {
		created := m.DropZeros()
		rz.logger.Debug("dropped zero-mass zones", "regions", len(created))
	}
	rz.regions = m.LiveRegions()
	for _, out := range rz.pipe.Outputs {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(errors.ErrCodeCancelled, err, "output stage")
		}
		if out.Coloring {
			rz.colorZones(out)
		}
		if out.Overlap && out.Merger != nil {
			rz.measureOverlaps(out)
		}
	}
	return nil
}

// colorZones gives uncolored regions palette colors that differ from
// their neighbours, then mixes each zone color from its membership dict.
func (rz *Regionalizer) colorZones(out *OutputStage) {
	m := rz.model
	adjacency := make(map[string][]string)
	for _, r := range rz.regions {
		if m.Region(r).Color != "" {
			continue
		}
		id := m.Region(r).ID
		adjacency[id] = nil
		for _, o := range m.ContiguousRegions(r) {
			adjacency[id] = append(adjacency[id], m.Region(o).ID)
		}
	}
	if len(adjacency) > 0 {
		chosen := colors.Choose(adjacency, colors.DefaultPalette, rand.New(rand.NewPCG(colorSeed, colorSeed)))
		for _, r := range rz.regions {
			if c, ok := chosen[m.Region(r).ID]; ok && m.Region(r).Color == "" {
				m.Region(r).Color = c
			}
		}
	}

	fz := out.Fuzzier
	if fz == nil {
		fz = fuzzy.NewBasic(fuzzy.DefaultOptions())
	}
	mixer := out.Mixer
	if mixer == "" {
		mixer = colors.DefaultMixer
	}
	rz.colors = make(map[int]string, m.NumZones())
	for z := range m.NumZones() {
		if !m.IsAssigned(z) {
			continue
		}
		hex, err := colors.Mix(mixer, fz.MembershipDict(m, z))
		if err != nil {
			rz.logger.Debug("falling back to region color", "zone", m.Zone(z).ID, "err", err)
			r, _ := m.RegionOf(z)
			hex = m.Region(r).Color
		}
		rz.colors[z] = hex
	}
}

// measureOverlaps scores every ordered pair of contiguous live regions.
func (rz *Regionalizer) measureOverlaps(out *OutputStage) {
	m := rz.model
	env := restructure.NewEnv(m)
	env.Logger = rz.logger
	env.Fuzzier = out.Fuzzier
	rz.overlaps = make(map[[2]int]float64)
	for _, r := range rz.regions {
		for _, o := range m.ContiguousRegions(r) {
			if o != r && m.Alive(o) {
				rz.overlaps[[2]int{r, o}] = out.Merger.Score(env, r, o)
			}
		}
	}
}

// Regions returns the live regions sorted by ID.
func (rz *Regionalizer) Regions() []int { return slices.Clone(rz.regions) }

// Failures returns the aggregation failures of every stage.
func (rz *Regionalizer) Failures() []Failure { return slices.Clone(rz.failures) }

// StageStats returns the statistics of the stages run so far.
func (rz *Regionalizer) StageStats() []StageStat { return slices.Clone(rz.stages) }

// RegionOverlaps returns the overlap scores keyed by region ID and then
// neighbour ID. It is nil unless an overlap output stage ran.
func (rz *Regionalizer) RegionOverlaps() map[string]map[string]float64 {
	if rz.overlaps == nil {
		return nil
	}
	m := rz.model
	out := make(map[string]map[string]float64)
	for pair, score := range rz.overlaps {
		from, to := m.Region(pair[0]).ID, m.Region(pair[1]).ID
		if out[from] == nil {
			out[from] = make(map[string]float64)
		}
		out[from][to] = score
	}
	return out
}

// OutputZones returns the final assignment of every zone in input order.
func (rz *Regionalizer) OutputZones() []ZoneRow {
	m := rz.model
	rows := make([]ZoneRow, 0, m.NumZones())
	for z := range m.NumZones() {
		row := ZoneRow{ID: m.Zone(z).ID, Color: rz.colors[z]}
		if r, ok := m.RegionOf(z); ok {
			row.Region = m.Region(r).ID
			if a, ok := m.AssignmentTo(z, r); ok {
				asg := m.Assignment(a)
				row.Core, row.Exclave, row.Degree = asg.Core, asg.Exclave, asg.Degree
			}
		}
		if m.Mode() == region.Fuzzy {
			for _, r := range m.RegionsOf(z) {
				row.Regions = append(row.Regions, m.Region(r).ID)
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// RegionRows summarizes the live regions.
func (rz *Regionalizer) RegionRows() []RegionRow {
	m := rz.model
	penal := 1.0
	for _, s := range rz.pipe.Stages {
		if s.Fuzzier != nil {
			penal = s.Fuzzier.Penalization()
		}
	}
	rows := make([]RegionRow, 0, len(rz.regions))
	for _, r := range rz.regions {
		u := flow.RegionUnit(r)
		rows = append(rows, RegionRow{
			ID:              m.Region(r).ID,
			Mass:            m.Mass(r),
			HinterlandMass:  m.HinterlandMass(r),
			Cores:           len(m.CoreZones(r)),
			Zones:           len(m.MemberZones(r)),
			SelfContainment: verify.Value("ratio-self-containment", m, u),
			EMW:             fuzzy.EMW(m, r, penal),
			Color:           m.Region(r).Color,
		})
	}
	return rows
}

// Overlaps returns the overlap scores as rows ordered by region IDs.
func (rz *Regionalizer) Overlaps() []Overlap {
	var rows []Overlap
	for from, tos := range rz.RegionOverlaps() {
		for to, score := range tos {
			rows = append(rows, Overlap{From: from, To: to, Score: score})
		}
	}
	slices.SortFunc(rows, func(a, b Overlap) int {
		if c := cmp.Compare(a.From, b.From); c != 0 {
			return c
		}
		return cmp.Compare(a.To, b.To)
	})
	return rows
}
