package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/regionkit/pkg/config"
	"github.com/matzehuels/regionkit/pkg/errors"
	rio "github.com/matzehuels/regionkit/pkg/io"
	"github.com/matzehuels/regionkit/pkg/observability"
	"github.com/matzehuels/regionkit/pkg/pipeline"
	"github.com/matzehuels/regionkit/pkg/runstore"
)

// delimitOpts holds the flags of the delimit command.
type delimitOpts struct {
	setup      string
	zones      string
	flows      string
	neighbours string
	flowColumn int
	formats    string
	output     string
	noCache    bool
	refresh    bool
	noStore    bool
}

// delimitCommand creates the delimit command.
func (c *CLI) delimitCommand() *cobra.Command {
	var opts delimitOpts

	cmd := &cobra.Command{
		Use:   "delimit",
		Short: "Delimit functional regions from a dataset",
		Long: `Delimit runs a pipeline setup on a dataset of zones and flows.

With a single format and no --output the result is written to stdout.
Otherwise every format is written next to the --output base path, e.g.
-o out/run -f json,csv,svg writes out/run.json, out/run.zones.csv and
out/run.svg.`,
		Example: `  regionkit delimit --setup setup.toml --zones zones.csv --flows flows.csv
  regionkit delimit --setup setup.yaml --zones z.csv --flows f.csv --neighbours n.csv -f json,svg -o out/cz`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runDelimit(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.setup, "setup", "s", "", "pipeline setup file (.toml, .yaml)")
	cmd.Flags().StringVar(&opts.zones, "zones", "", "zone table (CSV)")
	cmd.Flags().StringVar(&opts.flows, "flows", "", "flow table (CSV)")
	cmd.Flags().StringVar(&opts.neighbours, "neighbours", "", "neighbour table (CSV, optional)")
	cmd.Flags().IntVar(&opts.flowColumn, "flow-column", 0, "value column of a multi-valued flow table")
	cmd.Flags().StringVarP(&opts.formats, "format", "f", "", "output formats: json, csv, regions-csv, overlaps-csv, xlsx, dot, svg (comma-separated)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output base path")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "disable the result cache")
	cmd.Flags().BoolVar(&opts.refresh, "refresh", false, "recompute even when a cached result exists")
	cmd.Flags().BoolVar(&opts.noStore, "no-store", false, "do not keep the run in the run store")
	_ = cmd.MarkFlagRequired("setup")
	_ = cmd.MarkFlagRequired("zones")
	_ = cmd.MarkFlagRequired("flows")

	return cmd
}

func (c *CLI) runDelimit(ctx context.Context, opts delimitOpts) error {
	logger := loggerFromContext(ctx)
	formats := parseFormats(opts.formats)
	if err := pipeline.ValidateFormats(formats); err != nil {
		return err
	}
	toStdout := opts.output == ""
	if toStdout && len(formats) > 1 {
		return errors.New(errors.ErrCodeInvalidInput, "--output is required for more than one format")
	}

	setup, err := config.Load(opts.setup)
	if err != nil {
		return err
	}
	pipe, err := config.Build(setup)
	if err != nil {
		return err
	}

	prog := newProgress(logger)
	ds, err := rio.LoadDataset(ctx, rio.Paths{Zones: opts.zones, Flows: opts.flows, Neighbours: opts.neighbours})
	if err != nil {
		return err
	}
	prog.done(fmt.Sprintf("Loaded %d zones and %d flows", len(ds.Zones), len(ds.Flows)))

	runner, err := c.newRunner(ctx, opts.noCache)
	if err != nil {
		return err
	}
	defer runner.Close()

	spinner := newSpinnerWithContext(ctx, "Delimiting regions...")
	observability.SetPipelineHooks(&spinnerHooks{spinner: spinner})
	defer observability.SetPipelineHooks(observability.NoopPipelineHooks{})
	spinner.Start()

	res, err := runner.Execute(ctx, pipeline.Options{
		Dataset:    ds,
		Pipeline:   pipe,
		FlowColumn: opts.flowColumn,
		Formats:    formats,
		Refresh:    opts.refresh,
		Logger:     logger,
	})
	spinner.Stop()
	if err != nil {
		return err
	}

	for _, f := range res.Failures {
		logger.Warn(f.String(), "stage", f.Stage)
	}

	if !opts.noStore {
		if err := c.storeRun(ctx, res); err != nil {
			logger.Warn("could not store run", "err", err)
		}
	}

	if toStdout {
		return rio.Write(ctx, res, formats[0], out)
	}

	paths, err := rio.Export(ctx, res, formats, opts.output)
	if err != nil {
		return err
	}
	printSuccess("Delimited %s", StyleHighlight.Render(displayName(res)))
	printStats(res.Stats.Zones, res.Stats.Regions, res.Stats.Unassigned, res.CacheInfo.Hit)
	for _, p := range paths {
		printFile(p)
	}
	if !opts.noStore {
		printNewline()
		printNextStep("Inspect the run", "regionkit runs show "+res.RunID)
	}
	return nil
}

// storeRun keeps res in the file run store.
func (c *CLI) storeRun(ctx context.Context, res *pipeline.Result) error {
	store, err := newStore()
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Put(ctx, runstore.NewRecord(res))
}

func displayName(res *pipeline.Result) string {
	if res.Name != "" {
		return res.Name
	}
	return res.RunID
}

// spinnerHooks shows the running stage on the spinner.
type spinnerHooks struct {
	observability.NoopPipelineHooks
	spinner *Spinner
}

func (h *spinnerHooks) OnStageStart(_ context.Context, stage int, message string) {
	h.spinner.SetMessage(fmt.Sprintf("Stage %d: %s...", stage, message))
}

func (h *spinnerHooks) OnStageComplete(_ context.Context, stage int, message string, regions int, d time.Duration, err error) {
	if err == nil {
		h.spinner.SetMessage(fmt.Sprintf("Stage %d done, %d regions", stage, regions))
	}
}
