package io

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jszwec/csvutil"

	"github.com/matzehuels/regionkit/pkg/errors"
	"github.com/matzehuels/regionkit/pkg/pipeline"
	"github.com/matzehuels/regionkit/pkg/render/regiongraph"
)

// zoneCSV is one row of the zone output table.
type zoneCSV struct {
	ID      string  `csv:"id"`
	Region  string  `csv:"region"`
	Regions string  `csv:"regions,omitempty"`
	Core    bool    `csv:"core"`
	Exclave bool    `csv:"exclave"`
	Degree  float64 `csv:"degree"`
	Color   string  `csv:"color,omitempty"`
}

// WriteJSON encodes the full result as indented JSON.
func WriteJSON(res *pipeline.Result, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}

// WriteZonesCSV writes one row per zone. In fuzzy mode the regions column
// lists every region of the zone, separated by semicolons.
func WriteZonesCSV(res *pipeline.Result, w io.Writer) error {
	rows := make([]zoneCSV, len(res.Zones))
	for i, z := range res.Zones {
		rows[i] = zoneCSV{
			ID:      z.ID,
			Region:  z.Region,
			Regions: strings.Join(z.Regions, ";"),
			Core:    z.Core,
			Exclave: z.Exclave,
			Degree:  z.Degree,
			Color:   z.Color,
		}
	}
	return writeCSV(w, rows)
}

// WriteRegionsCSV writes one row per live region.
func WriteRegionsCSV(res *pipeline.Result, w io.Writer) error {
	return writeCSV(w, res.Regions)
}

// WriteOverlapsCSV writes one row per ordered region pair.
func WriteOverlapsCSV(res *pipeline.Result, w io.Writer) error {
	return writeCSV(w, res.Overlaps)
}

func writeCSV[T any](w io.Writer, rows []T) error {
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)
	if len(rows) == 0 {
		var zero T
		if err := enc.EncodeHeader(zero); err != nil {
			return fmt.Errorf("encode header: %w", err)
		}
	}
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Write encodes res in the given output format.
func Write(ctx context.Context, res *pipeline.Result, format string, w io.Writer) error {
	switch format {
	case pipeline.FormatJSON:
		return WriteJSON(res, w)
	case pipeline.FormatCSV:
		return WriteZonesCSV(res, w)
	case pipeline.FormatRegionsCSV:
		return WriteRegionsCSV(res, w)
	case pipeline.FormatOverlapsCSV:
		return WriteOverlapsCSV(res, w)
	case pipeline.FormatXLSX:
		return WriteXLSX(res, w)
	case pipeline.FormatDOT:
		_, err := io.WriteString(w, regiongraph.ToDOT(res, regiongraph.Options{}))
		return err
	case pipeline.FormatSVG:
		svg, err := regiongraph.RenderSVG(ctx, regiongraph.ToDOT(res, regiongraph.Options{}))
		if err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "render region graph")
		}
		_, err = w.Write(svg)
		return err
	}
	return pipeline.ValidateFormat(format)
}

// Extension returns the file extension of a format.
func Extension(format string) string {
	switch format {
	case pipeline.FormatCSV, pipeline.FormatRegionsCSV, pipeline.FormatOverlapsCSV:
		return "csv"
	}
	return format
}

// Export writes res in each format to files named base plus a suffix, and
// returns the written paths.
func Export(ctx context.Context, res *pipeline.Result, formats []string, base string) ([]string, error) {
	if dir := filepath.Dir(base); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidPath, err, "create %s", dir)
		}
	}
	var paths []string
	for _, format := range formats {
		path := base
		switch format {
		case pipeline.FormatCSV:
			path += ".zones"
		case pipeline.FormatRegionsCSV:
			path += ".regions"
		case pipeline.FormatOverlapsCSV:
			path += ".overlaps"
		}
		path += "." + Extension(format)
		if err := exportFile(ctx, res, format, path); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func exportFile(ctx context.Context, res *pipeline.Result, format, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := Write(ctx, res, format, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
