package config

import (
	"slices"

	"github.com/matzehuels/regionkit/pkg/colors"
	"github.com/matzehuels/regionkit/pkg/fuzzy"
	"github.com/matzehuels/regionkit/pkg/restructure"
	"github.com/matzehuels/regionkit/pkg/verify"
)

// Kinds lists the element kinds.
var Kinds = []string{
	KindAggregator, KindChanger, KindColoring, KindCriterion, KindDestroyer,
	KindFuzzier, KindHalter, KindMerger, KindOverlap, KindVerifier,
}

// AggregatorTypes lists the aggregator types.
var AggregatorTypes = []string{AggregatorFlow, AggregatorNeighbourhood, AggregatorRing}

func linkageNames() []string {
	out := make([]string, len(restructure.Linkages))
	for i, l := range restructure.Linkages {
		out[i] = string(l)
	}
	slices.Sort(out)
	return out
}

// Vocabulary returns every closed vocabulary of the setup format, keyed by
// the name of the value set.
func Vocabulary() map[string][]string {
	return map[string][]string{
		"kinds":       slices.Clone(Kinds),
		"modes":       {"exclusive", "fuzzy"},
		"targets":     {TargetRegion, TargetZone},
		"directions":  {DirectionMax, DirectionMin},
		"fuzziers":    fuzzy.TypeNames(),
		"criteria":    verify.CriterionNames(),
		"groups":      slices.Clone(verify.GroupModes),
		"aggregators": slices.Clone(AggregatorTypes),
		"transforms":  restructure.TransformNames(),
		"linkages":    linkageNames(),
		"mergers":     restructure.MergerNames(),
		"mixers":      colors.MixerNames(),
	}
}
