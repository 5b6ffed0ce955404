package io

import (
	"bytes"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tealeg/xlsx/v2"

	"github.com/matzehuels/regionkit/pkg/errors"
	"github.com/matzehuels/regionkit/pkg/pipeline"
)

// WriteXLSX writes the zone, region and overlap tables as the sheets of
// one workbook.
func WriteXLSX(res *pipeline.Result, w io.Writer) error {
	f := xlsx.NewFile()

	zones, err := addSheet(f, "zones", "id", "region", "regions", "core", "exclave", "degree", "color")
	if err != nil {
		return err
	}
	for _, z := range res.Zones {
		row := zones.AddRow()
		row.AddCell().SetString(z.ID)
		row.AddCell().SetString(z.Region)
		row.AddCell().SetString(strings.Join(z.Regions, ";"))
		row.AddCell().SetBool(z.Core)
		row.AddCell().SetBool(z.Exclave)
		row.AddCell().SetFloat(z.Degree)
		row.AddCell().SetString(z.Color)
	}

	regions, err := addSheet(f, "regions", "id", "mass", "hinterland_mass", "cores", "zones", "self_containment", "emw", "color")
	if err != nil {
		return err
	}
	for _, r := range res.Regions {
		row := regions.AddRow()
		row.AddCell().SetString(r.ID)
		row.AddCell().SetFloat(r.Mass)
		row.AddCell().SetFloat(r.HinterlandMass)
		row.AddCell().SetInt(r.Cores)
		row.AddCell().SetInt(r.Zones)
		row.AddCell().SetFloat(r.SelfContainment)
		row.AddCell().SetFloat(r.EMW)
		row.AddCell().SetString(r.Color)
	}

	overlaps, err := addSheet(f, "overlaps", "from", "to", "score")
	if err != nil {
		return err
	}
	for _, o := range res.Overlaps {
		row := overlaps.AddRow()
		row.AddCell().SetString(o.From)
		row.AddCell().SetString(o.To)
		row.AddCell().SetFloat(o.Score)
	}

	if err := f.Write(w); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "write workbook")
	}
	return nil
}

func addSheet(f *xlsx.File, name string, header ...string) (*xlsx.Sheet, error) {
	sheet, err := f.AddSheet(name)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "add sheet %s", name)
	}
	row := sheet.AddRow()
	for _, h := range header {
		row.AddCell().SetString(h)
	}
	return sheet, nil
}

func isWorkbook(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".xlsx")
}

// sheetCSV reads the first sheet of the workbook at path and re-encodes it
// as CSV, so that workbooks go through the same table decoders.
func sheetCSV(path string) (io.Reader, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "open %s", path)
	}
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDataInvalid, err, "open workbook %s", path)
	}
	if len(f.Sheets) == 0 {
		return nil, errors.New(errors.ErrCodeDataInvalid, "workbook %s has no sheets", path)
	}
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	width := 0
	for i, row := range f.Sheets[0].Rows {
		if row == nil {
			continue
		}
		if i == 0 {
			width = len(row.Cells)
		}
		// Trailing empty cells are not stored; pad to the header width.
		cells := make([]string, max(width, len(row.Cells)))
		for j, cell := range row.Cells {
			cells[j] = strings.TrimSpace(cell.String())
		}
		if strings.Join(cells, "") == "" {
			continue
		}
		if err := cw.Write(cells); err != nil {
			return nil, errors.Wrap(errors.ErrCodeDataInvalid, err, "convert workbook %s", path)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeDataInvalid, err, "convert workbook %s", path)
	}
	return &buf, nil
}
