// Package pipeline runs a configured regionalization over a dataset.
//
// This package implements the seed → stages → outputs run that the CLI and
// the HTTP API share, so both entry points produce identical regions for
// identical inputs.
//
// # Architecture
//
// A run has three phases:
//
//  1. InitRun: one region per coreable zone, then the preset assignments
//  2. Run: every [Stage] in order, each running one restructuring strategy
//  3. PostRun: zero-mass zone dropping and the [OutputStage] computations
//
// A [Pipeline] is single-use: its strategies keep per-run state, so build a
// fresh one for every run.
//
// # Usage
//
// Create a Runner and execute a pipeline:
//
//	runner := pipeline.NewRunner(cache, nil, logger)
//	result, err := runner.Execute(ctx, pipeline.Options{
//	    Dataset:  dataset,
//	    Pipeline: pipe,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, z := range result.Zones {
//	    fmt.Println(z.ID, z.Region)
//	}
//
// Drive the phases yourself:
//
//	model, presets, _ := dataset.Build(pipe.Mode, 0)
//	rz := pipeline.NewRegionalizer(pipe, model, logger)
//	rz.InitRun(presets)
//	err := rz.Run(ctx)
//	err = rz.PostRun(ctx)
package pipeline

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/regionkit/pkg/cache"
	"github.com/matzehuels/regionkit/pkg/errors"
)

// =============================================================================
// Default Values
// =============================================================================

// DefaultFormat is the output format used when none is requested.
const DefaultFormat = FormatJSON

// Format constants for output formats.
const (
	FormatJSON        = "json"
	FormatCSV         = "csv"
	FormatRegionsCSV  = "regions-csv"
	FormatOverlapsCSV = "overlaps-csv"
	FormatDOT         = "dot"
	FormatSVG         = "svg"
	FormatXLSX        = "xlsx"
)

// ValidFormats is the set of supported output formats.
var ValidFormats = map[string]bool{
	FormatJSON:        true,
	FormatCSV:         true,
	FormatRegionsCSV:  true,
	FormatOverlapsCSV: true,
	FormatDOT:         true,
	FormatSVG:         true,
	FormatXLSX:        true,
}

// ValidModes is the set of supported membership modes.
var ValidModes = map[string]bool{
	"exclusive": true,
	"fuzzy":     true,
}

// =============================================================================
// Options - Run Configuration
// =============================================================================

// Options contains all configuration for one run.
type Options struct {
	// FlowColumn selects the value column of multi-valued flow tables.
	FlowColumn int      `json:"flow_column,omitempty"`
	Formats    []string `json:"formats,omitempty"`
	// Refresh bypasses the result cache.
	Refresh bool `json:"refresh,omitempty"`

	// Runtime options (not serialized)
	Dataset  *Dataset    `json:"-"`
	Pipeline *Pipeline   `json:"-"`
	Logger   *log.Logger `json:"-"`

	validated bool
}

// =============================================================================
// Validation Functions
// =============================================================================

func sortedKeys(m map[string]bool) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return strings.Join(keys, ", ")
}

// ValidateFormat checks that a format is valid.
func ValidateFormat(format string) error {
	if !ValidFormats[format] {
		return errors.New(errors.ErrCodeInvalidFormat, "invalid format: %q (must be one of: %s)", format, sortedKeys(ValidFormats))
	}
	return nil
}

// ValidateFormats checks that all formats are valid.
func ValidateFormats(formats []string) error {
	for _, f := range formats {
		if err := ValidateFormat(f); err != nil {
			return err
		}
	}
	return nil
}

// ValidateMode checks that a membership mode is valid.
func ValidateMode(mode string) error {
	if !ValidModes[mode] {
		return errors.New(errors.ErrCodeInvalidMode, "invalid mode: %q (must be one of: %s)", mode, sortedKeys(ValidModes))
	}
	return nil
}

// ValidateAndSetDefaults checks required fields and applies defaults.
// Calling it more than once has no further effect.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}
	if o.Dataset == nil {
		return errors.New(errors.ErrCodeInvalidInput, "dataset is required")
	}
	if o.Pipeline == nil {
		return errors.New(errors.ErrCodeConfigMissing, "pipeline is required")
	}
	if o.FlowColumn < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "flow column must not be negative, got %d", o.FlowColumn)
	}
	if w := o.Dataset.FlowWidth(); w > 0 && o.FlowColumn >= w {
		return errors.New(errors.ErrCodeInvalidInput, "flow column %d out of range (flows carry %d values)", o.FlowColumn, w)
	}
	if len(o.Formats) == 0 {
		o.Formats = []string{DefaultFormat}
	}
	if err := ValidateFormats(o.Formats); err != nil {
		return err
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	o.validated = true
	return nil
}

// ResultKeyOpts returns the cache key options of the run.
func (o *Options) ResultKeyOpts() cache.ResultKeyOpts {
	return cache.ResultKeyOpts{
		Mode:       o.Pipeline.Mode.String(),
		FlowColumn: o.FlowColumn,
		DropZeros:  o.Pipeline.DropZeros,
	}
}

// =============================================================================
// Result
// =============================================================================

// Result contains the outputs of a run.
type Result struct {
	RunID    string      `json:"run_id"`
	Name     string      `json:"name,omitempty"`
	Mode     string      `json:"mode"`
	Zones    []ZoneRow   `json:"zones"`
	Regions  []RegionRow `json:"regions"`
	Overlaps []Overlap   `json:"overlaps,omitempty"`
	Failures []Failure   `json:"failures,omitempty"`
	Stats    Stats       `json:"stats"`

	CacheInfo CacheInfo `json:"-"`
}

// ZoneRow is the final assignment of one zone.
type ZoneRow struct {
	ID string `json:"id"`
	// Region is the primary region, empty for an unassigned zone.
	Region string `json:"region,omitempty"`
	// Regions lists every region of the zone in fuzzy mode.
	Regions []string `json:"regions,omitempty"`
	Core    bool     `json:"core"`
	Exclave bool     `json:"exclave"`
	Degree  float64  `json:"degree"`
	Color   string   `json:"color,omitempty"`
}

// RegionRow summarizes one live region.
type RegionRow struct {
	ID              string  `json:"id" csv:"id"`
	Mass            float64 `json:"mass" csv:"mass"`
	HinterlandMass  float64 `json:"hinterland_mass" csv:"hinterland_mass"`
	Cores           int     `json:"cores" csv:"cores"`
	Zones           int     `json:"zones" csv:"zones"`
	SelfContainment float64 `json:"self_containment" csv:"self_containment"`
	EMW             float64 `json:"emw" csv:"emw"`
	Color           string  `json:"color,omitempty" csv:"color,omitempty"`
}

// Overlap is the overlap score of region From with region To.
type Overlap struct {
	From  string  `json:"from" csv:"from"`
	To    string  `json:"to" csv:"to"`
	Score float64 `json:"score" csv:"score"`
}

// Failure lists the units a stage could not place.
type Failure struct {
	Stage  int      `json:"stage"`
	Kind   string   `json:"kind"`
	IDs    []string `json:"ids"`
	Reason string   `json:"reason"`
}

func (f Failure) String() string {
	kind := "Zones"
	if f.Kind == "region" {
		kind = "Regions"
	}
	return fmt.Sprintf("%s %s could not be assigned (%s)", kind, strings.Join(f.IDs, ", "), f.Reason)
}

// Stats contains run statistics.
type Stats struct {
	Zones      int           `json:"zones"`
	Regions    int           `json:"regions"`
	Unassigned int           `json:"unassigned"`
	RawFlows   int           `json:"raw_flows"`
	Stages     []StageStat   `json:"stages,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// StageStat records one stage of a run.
type StageStat struct {
	Message  string        `json:"message"`
	Strategy string        `json:"strategy"`
	Changed  int           `json:"changed"`
	Regions  int           `json:"regions"`
	Duration time.Duration `json:"duration"`
}

// CacheInfo tracks whether the result came from the cache.
type CacheInfo struct {
	Hit bool
	Key string
}
