package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/matzehuels/regionkit/pkg/cache"
	"github.com/matzehuels/regionkit/pkg/errors"
	"github.com/matzehuels/regionkit/pkg/flow"
	"github.com/matzehuels/regionkit/pkg/region"
)

// ZoneRecord is one row of the zone table.
type ZoneRecord struct {
	ID            string  `json:"id" csv:"id"`
	Mass          float64 `json:"mass" csv:"mass"`
	SecondaryMass float64 `json:"secondary_mass,omitempty" csv:"secondary_mass,omitempty"`
	Color         string  `json:"color,omitempty" csv:"color,omitempty"`
	Coreable      bool    `json:"coreable" csv:"coreable"`
	// Coop pins the zone to the named region as a core.
	Coop string `json:"coop,omitempty" csv:"coop,omitempty"`
	// Assign pins the zone to the named region as hinterland.
	Assign string `json:"assign,omitempty" csv:"assign,omitempty"`
}

// FlowRecord is one interaction. Values holds one strength per flow
// column.
type FlowRecord struct {
	From   string    `json:"from"`
	To     string    `json:"to"`
	Values []float64 `json:"values"`
}

// NeighbourRecord makes two zones adjacent.
type NeighbourRecord struct {
	From string `json:"from" csv:"from"`
	To   string `json:"to" csv:"to"`
}

// Dataset holds the loaded zone, flow and neighbour tables.
type Dataset struct {
	Zones      []ZoneRecord      `json:"zones"`
	Flows      []FlowRecord      `json:"flows"`
	Neighbours []NeighbourRecord `json:"neighbours"`
}

// Preset pins a zone to a region before the first stage.
type Preset struct {
	Zone   string
	Region string
	Core   bool
}

// BuildStats describes how the tables were resolved.
type BuildStats struct {
	// RawFlows counts flows with one unknown end; their strength is kept as
	// the raw residual of the known end.
	RawFlows int
	// DroppedFlows counts flows with both ends unknown.
	DroppedFlows int
	// DroppedNeighbours counts neighbour pairs naming unknown zones.
	DroppedNeighbours int
}

// FlowWidth returns the number of values per flow, 0 without flows.
func (d *Dataset) FlowWidth() int {
	if len(d.Flows) == 0 {
		return 0
	}
	return len(d.Flows[0].Values)
}

// Validate checks the tables for malformed rows.
func (d *Dataset) Validate() error {
	seen := make(map[string]bool, len(d.Zones))
	for i, z := range d.Zones {
		if err := errors.ValidateZoneID(z.ID); err != nil {
			return errors.Wrap(errors.ErrCodeDataInvalid, err, "zone row %d", i+1)
		}
		if seen[z.ID] {
			return errors.New(errors.ErrCodeDataInvalid, "duplicate zone ID %q", z.ID)
		}
		seen[z.ID] = true
		if z.Mass < 0 {
			return errors.New(errors.ErrCodeDataInvalid, "zone %q has negative mass %g", z.ID, z.Mass)
		}
	}
	width := d.FlowWidth()
	for i, f := range d.Flows {
		if len(f.Values) == 0 {
			return errors.New(errors.ErrCodeDataInvalid, "flow row %d (%s -> %s) has no values", i+1, f.From, f.To)
		}
		if len(f.Values) != width {
			return errors.New(errors.ErrCodeDataInvalid, "flow row %d has %d values, want %d", i+1, len(f.Values), width)
		}
	}
	return nil
}

// Hash returns a content hash of the dataset.
func (d *Dataset) Hash() string {
	data, err := json.Marshal(d)
	if err != nil {
		return ""
	}
	return cache.Hash(data)
}

// Build validates the dataset and loads it into a new model of the given
// mode, using the flow values of the given column. It returns the presets
// found in the zone table.
func (d *Dataset) Build(mode region.Mode, column int) (*region.Model, []Preset, BuildStats, error) {
	var stats BuildStats
	if err := d.Validate(); err != nil {
		return nil, nil, stats, err
	}
	width := max(d.FlowWidth(), 1)
	if column < 0 || column >= width {
		return nil, nil, stats, errors.New(errors.ErrCodeInvalidInput, "flow column %d out of range (flows carry %d values)", column, width)
	}

	m := region.NewModel(mode)
	var presets []Preset
	for _, rec := range d.Zones {
		if _, err := m.AddZone(region.Zone{
			ID:            rec.ID,
			Mass:          rec.Mass,
			SecondaryMass: rec.SecondaryMass,
			Color:         rec.Color,
			Coreable:      rec.Coreable,
		}); err != nil {
			return nil, nil, stats, errors.Wrap(errors.ErrCodeDataInvalid, err, "add zone %q", rec.ID)
		}
		switch {
		case rec.Coop != "":
			presets = append(presets, Preset{Zone: rec.ID, Region: rec.Coop, Core: true})
		case rec.Assign != "":
			presets = append(presets, Preset{Zone: rec.ID, Region: rec.Assign})
		}
	}

	if err := d.loadFlows(m, width, column, &stats); err != nil {
		return nil, nil, stats, err
	}

	for _, n := range d.Neighbours {
		a, okA := m.ZoneIndex(n.From)
		b, okB := m.ZoneIndex(n.To)
		if !okA || !okB {
			stats.DroppedNeighbours++
			continue
		}
		m.Connect(a, b)
	}
	return m, presets, stats, nil
}

// loadFlows accumulates the flow table into per-zone multi-valued vectors
// and projects them to the selected column.
func (d *Dataset) loadFlows(m *region.Model, width, column int, stats *BuildStats) error {
	n := m.NumZones()
	outs := make([]*flow.Multi, n)
	ins := make([]*flow.Multi, n)
	for i := range n {
		outs[i], ins[i] = flow.NewMulti(width), flow.NewMulti(width)
	}
	for i, f := range d.Flows {
		from, okFrom := m.ZoneIndex(f.From)
		to, okTo := m.ZoneIndex(f.To)
		var err error
		switch {
		case okFrom && okTo:
			if err = outs[from].AddTo(flow.ZoneUnit(to), f.Values); err == nil {
				err = ins[to].AddTo(flow.ZoneUnit(from), f.Values)
			}
		case okFrom:
			stats.RawFlows++
			err = outs[from].AddRaw(f.Values)
		case okTo:
			stats.RawFlows++
			err = ins[to].AddRaw(f.Values)
		default:
			stats.DroppedFlows++
		}
		if err != nil {
			return errors.Wrap(errors.ErrCodeDataInvalid, err, "flow row %d", i+1)
		}
	}
	for z := range n {
		out, err := outs[z].Component(column)
		if err != nil {
			return fmt.Errorf("project outflows: %w", err)
		}
		in, err := ins[z].Component(column)
		if err != nil {
			return fmt.Errorf("project inflows: %w", err)
		}
		zone := m.Zone(z)
		zone.Outflows, zone.Inflows = out, in
	}
	return nil
}
