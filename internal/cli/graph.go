package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/matzehuels/regionkit/pkg/errors"
	"github.com/matzehuels/regionkit/pkg/pipeline"
	"github.com/matzehuels/regionkit/pkg/render/regiongraph"
)

type graphOpts struct {
	format      string
	output      string
	minScore    float64
	significant bool
	detailed    bool
}

// graphCommand creates the graph command, which draws the regions of a
// stored run linked by their overlaps.
func (c *CLI) graphCommand() *cobra.Command {
	var opts graphOpts

	cmd := &cobra.Command{
		Use:   "graph <run-id>",
		Short: "Draw the region overlap graph of a stored run",
		Example: `  regionkit graph 3f1c... -f svg -o regions.svg
  regionkit graph 3f1c... --significant --min-score 0.05 | dot -Tpng > regions.png`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeRunIDs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraph(cmd.Context(), args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.format, "format", "f", pipeline.FormatDOT, "output format: dot, svg")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().Float64Var(&opts.minScore, "min-score", 0, "hide overlaps below this score")
	cmd.Flags().BoolVar(&opts.significant, "significant", false, "keep only the strongest overlap of each region")
	cmd.Flags().BoolVar(&opts.detailed, "detailed", false, "label regions with mass and zone counts")

	return cmd
}

func runGraph(ctx context.Context, id string, opts graphOpts) error {
	if opts.format != pipeline.FormatDOT && opts.format != pipeline.FormatSVG {
		return errors.New(errors.ErrCodeInvalidFormat, "invalid graph format: %q (must be one of: %s, %s)", opts.format, pipeline.FormatDOT, pipeline.FormatSVG)
	}
	rec, err := loadRun(ctx, id)
	if err != nil {
		return err
	}

	data := []byte(regiongraph.ToDOT(rec.Result, regiongraph.Options{
		Detailed:    opts.detailed,
		MinScore:    opts.minScore,
		Significant: opts.significant,
	}))
	if opts.format == pipeline.FormatSVG {
		if data, err = regiongraph.RenderSVG(ctx, string(data)); err != nil {
			return err
		}
	}

	if opts.output == "" {
		_, err = out.Write(data)
		return err
	}
	if err := os.WriteFile(opts.output, data, 0o644); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "write %s", opts.output)
	}
	printSuccess("Wrote region graph")
	printFile(opts.output)
	return nil
}
