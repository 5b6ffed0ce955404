// Package render holds the visual outputs of regionkit.
//
// The [regiongraph] subpackage draws the regions of a result as a Graphviz
// graph: one filled node per region in its region color, and one edge per
// overlap scored by the output merger.
//
//	dot := regiongraph.ToDOT(res, regiongraph.Options{Significant: true})
//	svg, err := regiongraph.RenderSVG(ctx, dot)
package render
