package tabular

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// ReadOptions configures how a raw file maps onto a table.
type ReadOptions struct {
	EntityCol string   // default "country"
	YearCol   string   // default "year"
	DimCols   []string // extra index columns beyond entity and year
	SheetName string   // XLSX only; default first sheet
}

func (o ReadOptions) withDefaults() ReadOptions {
	if o.EntityCol == "" {
		o.EntityCol = "country"
	}
	if o.YearCol == "" {
		o.YearCol = "year"
	}
	return o
}

// ReadCSV loads a CSV file into a table. The header row names every column;
// columns other than the entity, year, and declared dimension columns are
// parsed as float metrics, with empty cells read as missing.
func ReadCSV(path string, opts ReadOptions) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "tabular: open %s", path)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, eris.Wrapf(err, "tabular: read %s", path)
	}
	return fromRecords(records, opts, path)
}

// ReadXLSX loads a spreadsheet into a table using the same column rules
// as ReadCSV.
func ReadXLSX(path string, opts ReadOptions) (*Table, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "tabular: open %s", path)
	}

	var sheet *xlsx.Sheet
	if opts.SheetName != "" {
		s, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("tabular: sheet %q not found in %s", opts.SheetName, path)
		}
		sheet = s
	} else {
		if len(f.Sheets) == 0 {
			return nil, eris.Errorf("tabular: %s has no sheets", path)
		}
		sheet = f.Sheets[0]
	}

	var records [][]string
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		records = append(records, cells)
	}
	return fromRecords(records, opts, path)
}

func fromRecords(records [][]string, opts ReadOptions, path string) (*Table, error) {
	opts = opts.withDefaults()
	if len(records) == 0 {
		return nil, eris.Errorf("tabular: %s is empty", path)
	}

	header := records[0]
	colIdx := make(map[string]int, len(header))
	for i, name := range header {
		colIdx[name] = i
	}

	entityIdx, ok := colIdx[opts.EntityCol]
	if !ok {
		return nil, eris.Errorf("tabular: %s is missing column %q", path, opts.EntityCol)
	}
	yearIdx, ok := colIdx[opts.YearCol]
	if !ok {
		return nil, eris.Errorf("tabular: %s is missing column %q", path, opts.YearCol)
	}

	dimIdx := make(map[string]int, len(opts.DimCols))
	for _, d := range opts.DimCols {
		i, ok := colIdx[d]
		if !ok {
			return nil, eris.Errorf("tabular: %s is missing dimension column %q", path, d)
		}
		dimIdx[d] = i
	}

	indexCols := map[int]bool{entityIdx: true, yearIdx: true}
	for _, i := range dimIdx {
		indexCols[i] = true
	}

	var metricCols []string
	metricIdx := make(map[string]int)
	for i, name := range header {
		if !indexCols[i] {
			metricCols = append(metricCols, name)
			metricIdx[name] = i
		}
	}

	t := New(opts.EntityCol, opts.YearCol, opts.DimCols, metricCols)
	for n, rec := range records[1:] {
		if len(rec) != len(header) {
			return nil, eris.Errorf("tabular: %s row %d has %d fields, want %d", path, n+2, len(rec), len(header))
		}

		year, err := strconv.Atoi(rec[yearIdx])
		if err != nil {
			return nil, eris.Wrapf(err, "tabular: %s row %d: parse year %q", path, n+2, rec[yearIdx])
		}

		row := Row{
			Entity: rec[entityIdx],
			Year:   year,
			Values: make(map[string]float64, len(metricCols)),
		}
		if len(opts.DimCols) > 0 {
			row.Dims = make(map[string]string, len(opts.DimCols))
			for d, i := range dimIdx {
				row.Dims[d] = rec[i]
			}
		}

		for col, i := range metricIdx {
			raw := rec[i]
			if raw == "" {
				row.Values[col] = Missing()
				continue
			}
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, eris.Wrapf(err, "tabular: %s row %d: parse %s=%q", path, n+2, col, raw)
			}
			row.Values[col] = v
		}

		t.AddRow(row)
	}

	return t, nil
}

// WriteCSV writes the table to a CSV file. Missing metric values are
// written as empty cells.
func WriteCSV(t *Table, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "tabular: create %s", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)

	header := make([]string, 0, 2+len(t.DimCols)+len(t.MetricCols))
	header = append(header, t.EntityCol, t.YearCol)
	header = append(header, t.DimCols...)
	header = append(header, t.MetricCols...)
	if err := w.Write(header); err != nil {
		return eris.Wrapf(err, "tabular: write header to %s", path)
	}

	for _, r := range t.Rows {
		rec := make([]string, 0, len(header))
		rec = append(rec, r.Entity, strconv.Itoa(r.Year))
		for _, d := range t.DimCols {
			rec = append(rec, r.Dims[d])
		}
		for _, c := range t.MetricCols {
			v := r.Value(c)
			if IsMissing(v) {
				rec = append(rec, "")
			} else {
				rec = append(rec, formatFloat(v))
			}
		}
		if err := w.Write(rec); err != nil {
			return eris.Wrapf(err, "tabular: write row to %s", path)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrapf(err, "tabular: flush %s", path)
	}
	return nil
}

func formatFloat(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
