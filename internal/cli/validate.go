package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/matzehuels/regionkit/pkg/config"
	rio "github.com/matzehuels/regionkit/pkg/io"
	"github.com/matzehuels/regionkit/pkg/pipeline"
)

type validateOpts struct {
	zones      string
	flows      string
	neighbours string
	flowColumn int
}

// validateCommand creates the validate command. It builds the setup, and
// the dataset when both tables are given, without running anything.
func (c *CLI) validateCommand() *cobra.Command {
	var opts validateOpts

	cmd := &cobra.Command{
		Use:   "validate <setup>",
		Short: "Check a pipeline setup without running it",
		Example: `  regionkit validate setup.toml
  regionkit validate setup.yaml --zones zones.csv --flows flows.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd.Context(), args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.zones, "zones", "", "zone table (CSV)")
	cmd.Flags().StringVar(&opts.flows, "flows", "", "flow table (CSV)")
	cmd.Flags().StringVar(&opts.neighbours, "neighbours", "", "neighbour table (CSV, optional)")
	cmd.Flags().IntVar(&opts.flowColumn, "flow-column", 0, "value column of a multi-valued flow table")
	cmd.MarkFlagsRequiredTogether("zones", "flows")

	return cmd
}

func runValidate(ctx context.Context, path string, opts validateOpts) error {
	setup, err := config.Load(path)
	if err != nil {
		return err
	}
	pipe, err := config.Build(setup)
	if err != nil {
		return err
	}
	printSuccess("Setup %s is valid", StyleHighlight.Render(path))
	printDetail("mode %s, %d stages, %d outputs", pipe.Mode, len(pipe.Stages), len(pipe.Outputs))
	for i, s := range pipe.Stages {
		printDetail("%d. %s (%s)", i+1, s.Message, s.Strategy())
	}

	if opts.zones == "" {
		return nil
	}
	ds, err := rio.LoadDataset(ctx, rio.Paths{Zones: opts.zones, Flows: opts.flows, Neighbours: opts.neighbours})
	if err != nil {
		return err
	}
	runOpts := pipeline.Options{Dataset: ds, Pipeline: pipe, FlowColumn: opts.flowColumn}
	if err := runOpts.ValidateAndSetDefaults(); err != nil {
		return err
	}
	_, _, stats, err := ds.Build(pipe.Mode, opts.flowColumn)
	if err != nil {
		return err
	}
	printSuccess("Dataset is valid")
	printDetail("%d zones, %d flows, %d neighbour pairs", len(ds.Zones), len(ds.Flows), len(ds.Neighbours))
	if stats.RawFlows > 0 {
		printWarning("%d flows have one unknown end, kept as raw flows", stats.RawFlows)
	}
	if stats.DroppedFlows > 0 {
		printWarning("%d flows between unknown zones dropped", stats.DroppedFlows)
	}
	if stats.DroppedNeighbours > 0 {
		printWarning("%d neighbour pairs naming unknown zones dropped", stats.DroppedNeighbours)
	}
	return nil
}
