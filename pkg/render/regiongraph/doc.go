// Package regiongraph draws the regions of a run as a graph: one node per
// region, filled with its color, and one edge per overlap.
//
//	dot := regiongraph.ToDOT(res, regiongraph.Options{MinScore: 0.1})
//	svg, err := regiongraph.RenderSVG(ctx, dot)
//
// Overlaps come from the overlap output stage of the pipeline; a result
// without one renders as isolated nodes. With Significant set, each region
// keeps only its strongest link.
//
// SVG rendering runs Graphviz in-process through
// [github.com/goccy/go-graphviz]; no external binary is needed.
package regiongraph
