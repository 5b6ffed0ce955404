// Package config loads pipeline setups and builds them into runnable
// pipelines.
//
// A setup is a TOML or YAML document with a flat list of named elements
// (fuzziers, criteria, aggregators, mergers...) and an ordered list of
// stages that reference them by ID:
//
//	[settings]
//	mode = "exclusive"
//
//	[[elements]]
//	id = "agg"
//	kind = "aggregator"
//	type = "flow"
//	target = "zone"
//
//	[[stages]]
//	message = "aggregating"
//	elements = ["agg"]
//
// Every enumerated value is checked against its closed vocabulary while
// building; see [Vocabulary]. Ratios are written in percent.
package config

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/matzehuels/regionkit/pkg/cache"
	"github.com/matzehuels/regionkit/pkg/errors"
)

// Setup formats.
const (
	FormatTOML = "toml"
	FormatYAML = "yaml"
)

// Setup is the decoded pipeline setup.
type Setup struct {
	Metadata Metadata     `toml:"metadata" yaml:"metadata"`
	Settings Settings     `toml:"settings" yaml:"settings"`
	Elements []Element    `toml:"elements" yaml:"elements"`
	Stages   []StageSpec  `toml:"stages" yaml:"stages"`
	Global   GlobalSpec   `toml:"global" yaml:"global"`
	Outputs  []OutputSpec `toml:"outputs" yaml:"outputs"`

	// Hash identifies the raw setup document.
	Hash string `toml:"-" yaml:"-"`
}

// Metadata describes the setup.
type Metadata struct {
	Name        string `toml:"name" yaml:"name"`
	Description string `toml:"description" yaml:"description"`
}

// Settings hold the run-wide choices.
type Settings struct {
	// Mode is exclusive or fuzzy.
	Mode      string `toml:"mode" yaml:"mode"`
	DropZeros bool   `toml:"drop-zeros" yaml:"drop-zeros"`
}

// Element is one strategy definition. Which fields apply depends on Kind.
type Element struct {
	ID   string `toml:"id" yaml:"id"`
	Kind string `toml:"kind" yaml:"kind"`
	Type string `toml:"type" yaml:"type"`
	// Active switches fuzziers and verifiers on for stage-level refreshes
	// and checks. Defaults to true.
	Active *bool `toml:"active" yaml:"active"`

	// Aggregators
	Target             string `toml:"target" yaml:"target"`
	Transform          string `toml:"transform" yaml:"transform"`
	Linkage            string `toml:"linkage" yaml:"linkage"`
	Bidirectional      *bool  `toml:"bidirectional" yaml:"bidirectional"`
	TargetCoreOnly     bool   `toml:"target-core-only" yaml:"target-core-only"`
	UseHinterlandFlows *bool  `toml:"use-hinterland-flows" yaml:"use-hinterland-flows"`
	SeparateHinterland bool   `toml:"separate-hinterland" yaml:"separate-hinterland"`
	Neighbourhood      bool   `toml:"neighbourhood" yaml:"neighbourhood"`
	TryChange          bool   `toml:"try-change" yaml:"try-change"`
	TryMerge           bool   `toml:"try-merge" yaml:"try-merge"`
	// DescendingOrdering pops the smallest candidate first. Defaults to
	// true; false pops the largest first.
	DescendingOrdering *bool `toml:"descending-ordering" yaml:"descending-ordering"`
	WarnFail           *bool `toml:"warn-fail" yaml:"warn-fail"`
	// Ordering and Secondary reference criterion or verifier elements
	// whose keys order candidates and break ties between targets.
	Ordering  string `toml:"ordering" yaml:"ordering"`
	Secondary string `toml:"secondary" yaml:"secondary"`

	// Threshold is a percentage for ring aggregators and mergers, a degree
	// sum for destroyers, a gain for changers, a count for halters and the
	// criterion threshold for criteria.
	Threshold *float64 `toml:"threshold" yaml:"threshold"`

	// Criteria and verifier groups
	Criterion string   `toml:"criterion" yaml:"criterion"`
	Direction string   `toml:"direction" yaml:"direction"`
	Members   []string `toml:"members" yaml:"members"`

	// Fuzziers: exclave penalization in percent.
	Penalization *float64 `toml:"penalization" yaml:"penalization"`

	// Mergers
	Regional    bool    `toml:"regional" yaml:"regional"`
	CounterFlow float64 `toml:"counter-flow" yaml:"counter-flow"`
	ToFlow      float64 `toml:"to-flow" yaml:"to-flow"`

	// Changers
	Relative bool `toml:"relative" yaml:"relative"`
	Protect  bool `toml:"protect" yaml:"protect"`

	// Destroyers
	Exclave bool `toml:"exclave" yaml:"exclave"`

	// Coloring
	Mixer   string `toml:"mixer" yaml:"mixer"`
	Fuzzier string `toml:"fuzzier" yaml:"fuzzier"`
	// Overlap
	Merger string `toml:"merger" yaml:"merger"`
}

// StageSpec lists the elements of one stage.
type StageSpec struct {
	Message  string   `toml:"message" yaml:"message"`
	Elements []string `toml:"elements" yaml:"elements"`
}

// GlobalSpec lists elements used by every stage that names no element of
// the same kind.
type GlobalSpec struct {
	Elements []string `toml:"elements" yaml:"elements"`
}

// OutputSpec lists the elements of one output stage.
type OutputSpec struct {
	Elements []string `toml:"elements" yaml:"elements"`
}

// FormatOf returns the setup format implied by a file name.
func FormatOf(name string) (string, error) {
	if err := errors.ValidateSetupFilename(name); err != nil {
		return "", err
	}
	if strings.ToLower(filepath.Ext(name)) == ".toml" {
		return FormatTOML, nil
	}
	return FormatYAML, nil
}

// Load reads and decodes the setup file at path.
func Load(path string) (*Setup, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "setup %s", path)
		}
		return nil, errors.Wrap(errors.ErrCodeConfigMissing, err, "read setup %s", path)
	}
	return Parse(data, format)
}

// Parse decodes a setup document. Unknown keys are rejected.
func Parse(data []byte, format string) (*Setup, error) {
	var s Setup
	switch format {
	case FormatTOML:
		md, err := toml.Decode(string(data), &s)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeConfigMalformed, err, "decode TOML setup")
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, errors.New(errors.ErrCodeConfigMalformed, "unknown setup keys: %s", strings.Join(keys, ", "))
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&s); err != nil && err != io.EOF {
			return nil, errors.Wrap(errors.ErrCodeConfigMalformed, err, "decode YAML setup")
		}
	default:
		return nil, errors.New(errors.ErrCodeConfigMalformed, "unknown setup format %q (must be one of: %s, %s)", format, FormatTOML, FormatYAML)
	}
	s.Hash = cache.Hash(data)
	return &s, nil
}
