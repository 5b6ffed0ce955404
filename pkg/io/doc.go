// Package io reads the zone, flow and neighbour tables of a dataset and
// writes run results.
//
// # Input Tables
//
// All tables are CSV files with a header row. [LoadDataset] also accepts
// .xlsx workbooks, reading the first sheet with the same columns.
//
// Zones:
//
//	id,mass,secondary_mass,color,coreable,coop,assign
//	A,120,,ff0000,true,,
//	B,40,,,false,,A
//
// Only id and mass are required. A missing coreable column makes every zone
// coreable. coop pins the zone to a region as a core, assign as hinterland.
//
// Flows:
//
//	from,to,commuters,students
//	B,A,30,4
//
// The first two columns name the zones; every following column is one flow
// value. All rows carry the same number of values; the pipeline selects one
// of them with its flow column.
//
// Neighbours:
//
//	from,to
//	A,B
//
// Adjacency is symmetric, so each pair needs to be listed once. Pairs of a
// zone with itself are dropped.
//
// # Reading
//
// [LoadDataset] reads the three files concurrently; [ReadDataset] does the
// same for arbitrary readers:
//
//	ds, err := io.LoadDataset(ctx, io.Paths{Zones: "zones.csv", Flows: "flows.csv"})
//
// Malformed rows are DATA_INVALID errors naming the table and row.
//
// # Writing
//
// [Write] encodes a result in one of the pipeline output formats: the full
// JSON result, the zone, region or overlap table as CSV, all three tables
// as sheets of one .xlsx workbook, or the region graph as DOT or SVG.
package io
