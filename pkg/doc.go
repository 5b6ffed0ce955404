// Package pkg provides the libraries behind regionkit, a functional-regions
// delimitation engine.
//
// # Overview
//
// Regionkit groups zones (municipalities, grid cells, postcodes) into
// functional regions by the interaction flows between them, typically
// commuting. A run takes a dataset and a pipeline setup and produces an
// assignment of every zone to its region(s). The pkg directory is organized
// into four areas:
//
//  1. Model - [flow] vectors and the [region] zone/region/assignment model
//  2. Strategies - [fuzzy] membership, [verify] region criteria,
//     [restructure] aggregation, merging, border change and destruction
//  3. Orchestration - [pipeline] stages and the cached [pipeline.Runner],
//     [config] setups
//  4. Infrastructure - [io] tables, [cache], [runstore], [api], [colors],
//     [render/regiongraph], [observability]
//
// # Architecture
//
// The typical data flow through a run:
//
//	zones.csv + flows.csv (+ neighbours.csv)
//	         ↓
//	    [io] package (read tables into a pipeline.Dataset)
//	         ↓
//	    [config] package (setup document → pipeline.Pipeline)
//	         ↓
//	    [pipeline] package (stages mutate a region.Model)
//	         ↓
//	    JSON / CSV / DOT / SVG output
//
// # Quick Start
//
//	setup, _ := config.Load("setup.toml")
//	pipe, _ := config.Build(setup)
//	ds, _ := io.LoadDataset(ctx, io.Paths{Zones: "zones.csv", Flows: "flows.csv"})
//
//	runner := pipeline.NewRunner(nil, nil, logger)
//	res, _ := runner.Execute(ctx, pipeline.Options{Dataset: ds, Pipeline: pipe})
//	io.Write(ctx, res, pipeline.FormatJSON, os.Stdout)
//
// # Error Handling
//
// Errors that reach users carry a code from [errors]: CONFIG_* for setup
// problems, DATA_* for dataset problems, and so on. The CLI and the HTTP API
// both map codes to exit statuses and HTTP statuses respectively.
package pkg
