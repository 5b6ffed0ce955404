package io

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/jszwec/csvutil"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/regionkit/pkg/errors"
	"github.com/matzehuels/regionkit/pkg/pipeline"
)

// Paths locates the tables of a dataset. Neighbours is optional.
type Paths struct {
	Zones      string
	Flows      string
	Neighbours string
}

// Sources supplies the tables of a dataset. A nil Neighbours reader means
// no adjacency.
type Sources struct {
	Zones      io.Reader
	Flows      io.Reader
	Neighbours io.Reader
}

// zoneRow mirrors the zone table. Coreable is a pointer so that an empty
// cell or a missing column can default to true.
type zoneRow struct {
	ID            string  `csv:"id"`
	Mass          float64 `csv:"mass"`
	SecondaryMass float64 `csv:"secondary_mass,omitempty"`
	Color         string  `csv:"color,omitempty"`
	Coreable      *bool   `csv:"coreable,omitempty"`
	Coop          string  `csv:"coop,omitempty"`
	Assign        string  `csv:"assign,omitempty"`
}

// LoadDataset opens and reads the tables at paths.
func LoadDataset(ctx context.Context, paths Paths) (*pipeline.Dataset, error) {
	if paths.Zones == "" || paths.Flows == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "zones and flows tables are required")
	}
	var src Sources
	var files []*os.File
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()
	open := func(path string) (io.Reader, error) {
		if isWorkbook(path) {
			return sheetCSV(path)
		}
		f, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "open %s", path)
			}
			return nil, errors.Wrap(errors.ErrCodeInvalidPath, err, "open %s", path)
		}
		files = append(files, f)
		return f, nil
	}
	var err error
	if src.Zones, err = open(paths.Zones); err != nil {
		return nil, err
	}
	if src.Flows, err = open(paths.Flows); err != nil {
		return nil, err
	}
	if paths.Neighbours != "" {
		if src.Neighbours, err = open(paths.Neighbours); err != nil {
			return nil, err
		}
	}
	return ReadDataset(ctx, src)
}

// ReadDataset decodes the three tables concurrently and validates the
// result.
func ReadDataset(ctx context.Context, src Sources) (*pipeline.Dataset, error) {
	var ds pipeline.Dataset
	g, gctx := errgroup.WithContext(ctx)
	read := func(table func() error) {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return errors.Wrap(errors.ErrCodeCancelled, err, "read dataset")
			}
			return table()
		})
	}
	read(func() (err error) {
		ds.Zones, err = ReadZones(src.Zones)
		return err
	})
	read(func() (err error) {
		ds.Flows, err = ReadFlows(src.Flows)
		return err
	})
	if src.Neighbours != nil {
		read(func() (err error) {
			ds.Neighbours, err = ReadNeighbours(src.Neighbours)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return &ds, nil
}

// ReadZones decodes the zone table.
func ReadZones(r io.Reader) ([]pipeline.ZoneRecord, error) {
	dec, err := csvutil.NewDecoder(newCSVReader(r))
	if err != nil {
		return nil, tableError("zones", err)
	}
	if !slices.Contains(dec.Header(), "id") || !slices.Contains(dec.Header(), "mass") {
		return nil, errors.New(errors.ErrCodeDataInvalid, "zones: header must contain id and mass, got %s", strings.Join(dec.Header(), ","))
	}
	var out []pipeline.ZoneRecord
	for row := 2; ; row++ {
		var z zoneRow
		if err := dec.Decode(&z); err == io.EOF {
			return out, nil
		} else if err != nil {
			return nil, errors.Wrap(errors.ErrCodeDataInvalid, err, "zones: row %d", row)
		}
		out = append(out, pipeline.ZoneRecord{
			ID:            strings.TrimSpace(z.ID),
			Mass:          z.Mass,
			SecondaryMass: z.SecondaryMass,
			Color:         strings.TrimPrefix(z.Color, "#"),
			Coreable:      z.Coreable == nil || *z.Coreable,
			Coop:          z.Coop,
			Assign:        z.Assign,
		})
	}
}

// ReadFlows decodes the flow table. Every column after from and to holds
// one flow value.
func ReadFlows(r io.Reader) ([]pipeline.FlowRecord, error) {
	cr := newCSVReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, tableError("flows", err)
	}
	if len(header) < 3 || header[0] != "from" || header[1] != "to" {
		return nil, errors.New(errors.ErrCodeDataInvalid, "flows: header must be from,to followed by value columns, got %s", strings.Join(header, ","))
	}
	width := len(header) - 2
	var out []pipeline.FlowRecord
	for row := 2; ; row++ {
		rec, err := cr.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeDataInvalid, err, "flows: row %d", row)
		}
		values := make([]float64, width)
		for i, cell := range rec[2:] {
			v, err := parseValue(cell)
			if err != nil {
				return nil, errors.Wrap(errors.ErrCodeDataInvalid, err, "flows: row %d, column %s", row, header[i+2])
			}
			values[i] = v
		}
		out = append(out, pipeline.FlowRecord{From: rec[0], To: rec[1], Values: values})
	}
}

// ReadNeighbours decodes the neighbour table, dropping self pairs.
func ReadNeighbours(r io.Reader) ([]pipeline.NeighbourRecord, error) {
	dec, err := csvutil.NewDecoder(newCSVReader(r))
	if err != nil {
		return nil, tableError("neighbours", err)
	}
	var out []pipeline.NeighbourRecord
	for row := 2; ; row++ {
		var n pipeline.NeighbourRecord
		if err := dec.Decode(&n); err == io.EOF {
			return out, nil
		} else if err != nil {
			return nil, errors.Wrap(errors.ErrCodeDataInvalid, err, "neighbours: row %d", row)
		}
		if n.From == "" || n.To == "" {
			return nil, errors.New(errors.ErrCodeDataInvalid, "neighbours: row %d has an empty zone", row)
		}
		if n.From != n.To {
			out = append(out, n)
		}
	}
}

func newCSVReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	return cr
}

// parseValue reads a flow value. Empty cells are zero.
func parseValue(cell string) (float64, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q", cell)
	}
	return v, nil
}

func tableError(table string, err error) error {
	if err == io.EOF {
		return errors.New(errors.ErrCodeDataInvalid, "%s: table is empty", table)
	}
	return errors.Wrap(errors.ErrCodeDataInvalid, err, "%s: read header", table)
}
