package tabular

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// ColumnMeta carries per-column display metadata. Transformations that
// rewrite a column are responsible for passing its metadata through
// explicitly; nothing propagates it automatically.
type ColumnMeta struct {
	Title     string `json:"title,omitempty"`
	Unit      string `json:"unit,omitempty"`
	ShortUnit string `json:"short_unit,omitempty"`
}

// Row is one observation: an entity at a year, with optional extra
// dimension values and float metric values. Missing metric values are NaN.
type Row struct {
	Entity string
	Year   int
	Dims   map[string]string
	Values map[string]float64
}

// Table is an in-memory tabular dataset indexed by
// (entity, year, extra dimension columns).
type Table struct {
	EntityCol  string
	YearCol    string
	DimCols    []string
	MetricCols []string
	Rows       []Row
	Meta       map[string]ColumnMeta
}

// New creates an empty table with the given column layout.
func New(entityCol, yearCol string, dimCols, metricCols []string) *Table {
	return &Table{
		EntityCol:  entityCol,
		YearCol:    yearCol,
		DimCols:    append([]string(nil), dimCols...),
		MetricCols: append([]string(nil), metricCols...),
		Meta:       map[string]ColumnMeta{},
	}
}

// IsMissing reports whether a metric value represents a missing observation.
func IsMissing(v float64) bool {
	return math.IsNaN(v)
}

// Missing is the canonical missing metric value.
func Missing() float64 {
	return math.NaN()
}

// Value returns the row's value for a metric column, or NaN if absent.
func (r Row) Value(col string) float64 {
	v, ok := r.Values[col]
	if !ok {
		return math.NaN()
	}
	return v
}

// Dim returns the row's value for an extra dimension column.
func (r Row) Dim(col string) string {
	return r.Dims[col]
}

// CloneRow returns a deep copy of the row.
func (r Row) CloneRow() Row {
	out := Row{Entity: r.Entity, Year: r.Year}
	if r.Dims != nil {
		out.Dims = make(map[string]string, len(r.Dims))
		for k, v := range r.Dims {
			out.Dims[k] = v
		}
	}
	if r.Values != nil {
		out.Values = make(map[string]float64, len(r.Values))
		for k, v := range r.Values {
			out.Values[k] = v
		}
	}
	return out
}

// AddRow appends a row to the table.
func (t *Table) AddRow(r Row) {
	t.Rows = append(t.Rows, r)
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	out := New(t.EntityCol, t.YearCol, t.DimCols, t.MetricCols)
	out.Rows = make([]Row, 0, len(t.Rows))
	for _, r := range t.Rows {
		out.Rows = append(out.Rows, r.CloneRow())
	}
	for k, v := range t.Meta {
		out.Meta[k] = v
	}
	return out
}

// GroupKey encodes the (year, extra dimensions) index of a row. Rows with
// equal group keys belong to the same aggregation group; the entity column
// never participates.
func (t *Table) GroupKey(r Row) string {
	if len(t.DimCols) == 0 {
		return fmt.Sprintf("%d", r.Year)
	}
	parts := make([]string, 0, len(t.DimCols)+1)
	parts = append(parts, fmt.Sprintf("%d", r.Year))
	for _, d := range t.DimCols {
		parts = append(parts, r.Dims[d])
	}
	return strings.Join(parts, "\x1f")
}

// GroupKeys returns all distinct group keys in first-seen order.
func (t *Table) GroupKeys() []string {
	seen := make(map[string]bool)
	var keys []string
	for _, r := range t.Rows {
		k := t.GroupKey(r)
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	return keys
}

// Entities returns the distinct entity names in first-seen order.
func (t *Table) Entities() []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range t.Rows {
		if !seen[r.Entity] {
			seen[r.Entity] = true
			out = append(out, r.Entity)
		}
	}
	return out
}

// HasEntity reports whether any row belongs to the given entity.
func (t *Table) HasEntity(name string) bool {
	for _, r := range t.Rows {
		if r.Entity == name {
			return true
		}
	}
	return false
}

// HasMetric reports whether the table declares the given metric column.
func (t *Table) HasMetric(col string) bool {
	for _, c := range t.MetricCols {
		if c == col {
			return true
		}
	}
	return false
}

// AddMetricCol declares a new metric column if not already present.
func (t *Table) AddMetricCol(col string) {
	if !t.HasMetric(col) {
		t.MetricCols = append(t.MetricCols, col)
	}
}

// SortByIndex sorts rows by (entity, year, extra dims), in place.
func (t *Table) SortByIndex() {
	sort.SliceStable(t.Rows, func(i, j int) bool {
		a, b := t.Rows[i], t.Rows[j]
		if a.Entity != b.Entity {
			return a.Entity < b.Entity
		}
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		for _, d := range t.DimCols {
			if a.Dims[d] != b.Dims[d] {
				return a.Dims[d] < b.Dims[d]
			}
		}
		return false
	})
}

// Equal reports whether two tables have identical layout and rows.
// NaN values compare equal to NaN so that missing observations match.
func (t *Table) Equal(other *Table) bool {
	if t.EntityCol != other.EntityCol || t.YearCol != other.YearCol {
		return false
	}
	if len(t.DimCols) != len(other.DimCols) || len(t.MetricCols) != len(other.MetricCols) {
		return false
	}
	for i := range t.DimCols {
		if t.DimCols[i] != other.DimCols[i] {
			return false
		}
	}
	for i := range t.MetricCols {
		if t.MetricCols[i] != other.MetricCols[i] {
			return false
		}
	}
	if len(t.Rows) != len(other.Rows) {
		return false
	}
	for i := range t.Rows {
		a, b := t.Rows[i], other.Rows[i]
		if a.Entity != b.Entity || a.Year != b.Year {
			return false
		}
		for _, d := range t.DimCols {
			if a.Dims[d] != b.Dims[d] {
				return false
			}
		}
		for _, c := range t.MetricCols {
			av, bv := a.Value(c), b.Value(c)
			if IsMissing(av) != IsMissing(bv) {
				return false
			}
			if !IsMissing(av) && av != bv {
				return false
			}
		}
	}
	return true
}
