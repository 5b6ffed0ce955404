package regiongraph

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/regionkit/pkg/pipeline"
)

// Options configures region graph rendering.
type Options struct {
	// Detailed adds mass, zone count and self-containment to node labels.
	// When false, only the region ID is shown.
	Detailed bool
	// MinScore hides overlap links scoring below it.
	MinScore float64
	// Significant keeps only the strongest outgoing link of every region.
	Significant bool
}

// ToDOT converts the regions of a result to Graphviz DOT. Regions become
// filled nodes in their region color; overlaps become edges whose width
// grows with the score.
func ToDOT(res *pipeline.Result, opts Options) string {
	var buf bytes.Buffer
	buf.WriteString("digraph regions {\n")
	buf.WriteString("  layout=neato;\n")
	buf.WriteString("  overlap=false;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=ellipse, style=filled, fillcolor=white, fontsize=14];\n")
	buf.WriteString("\n")

	for _, r := range res.Regions {
		fmt.Fprintf(&buf, "  %q [%s];\n", r.ID, strings.Join(fmtAttrs(r, opts.Detailed), ", "))
	}

	buf.WriteString("\n")
	for _, o := range links(res.Overlaps, opts) {
		fmt.Fprintf(&buf, "  %q -> %q [penwidth=%.2f, label=%q];\n",
			o.From, o.To, 1+4*o.Score, strconv.FormatFloat(o.Score, 'f', 2, 64))
	}

	buf.WriteString("}\n")
	return buf.String()
}

func fmtAttrs(r pipeline.RegionRow, detailed bool) []string {
	label := r.ID
	if detailed {
		label = fmt.Sprintf("%s\nmass: %g\nzones: %d\nsc: %.2f", r.ID, r.Mass, r.Zones, r.SelfContainment)
	}
	attrs := []string{fmt.Sprintf("label=%q", label)}
	if r.Color != "" {
		attrs = append(attrs, fmt.Sprintf("fillcolor=\"#%s\"", r.Color))
	}
	return attrs
}

// links filters and orders the overlaps to draw.
func links(overlaps []pipeline.Overlap, opts Options) []pipeline.Overlap {
	var out []pipeline.Overlap
	best := make(map[string]pipeline.Overlap)
	for _, o := range overlaps {
		if o.Score <= 0 || o.Score < opts.MinScore {
			continue
		}
		if !opts.Significant {
			out = append(out, o)
			continue
		}
		if b, ok := best[o.From]; !ok || o.Score > b.Score {
			best[o.From] = o
		}
	}
	for _, o := range best {
		out = append(out, o)
	}
	slices.SortFunc(out, func(a, b pipeline.Overlap) int {
		return cmp.Or(cmp.Compare(a.From, b.From), cmp.Compare(a.To, b.To))
	})
	return out
}

// RenderSVG renders a DOT graph to SVG using Graphviz.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return normalizeViewBox(buf.Bytes()), nil
}

var (
	svgTagRe  = regexp.MustCompile(`<svg[^>]*>`)
	viewBoxRe = regexp.MustCompile(`viewBox="([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)"`)
)

// normalizeViewBox rewrites the root element so the SVG scales to its
// container.
func normalizeViewBox(svg []byte) []byte {
	match := viewBoxRe.FindSubmatch(svg)
	if match == nil {
		return svg
	}
	w, _ := strconv.ParseFloat(string(match[3]), 64)
	h, _ := strconv.ParseFloat(string(match[4]), 64)
	if w == 0 || h == 0 {
		return svg
	}
	root := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.2f %.2f" width="%.0f" height="%.0f">`, w, h, w, h)
	return svgTagRe.ReplaceAll(svg, []byte(root))
}
