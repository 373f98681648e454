package geo

import (
	"sort"

	"go.uber.org/zap"

	"github.com/datagarden/etl-cli/internal/tabular"
)

// AcceptedOverlap declares one expected historical-region/successor
// co-occurrence. The entity set must match a detected overlap exactly;
// subsets and supersets still warn.
type AcceptedOverlap struct {
	Year     int
	Entities []string
}

func (o AcceptedOverlap) matches(year int, entities []string) bool {
	if o.Year != year || len(o.Entities) != len(entities) {
		return false
	}
	set := make(map[string]bool, len(o.Entities))
	for _, e := range o.Entities {
		set[e] = true
	}
	for _, e := range entities {
		if !set[e] {
			return false
		}
	}
	return true
}

// InspectOverlapsWithHistoricalRegions scans for years where a historical
// region and one or more of its successor countries both carry data, which
// would double-count once the region aggregates are added. Findings are
// logged, never fatal; aggregation proceeds regardless.
func (a *Aggregator) InspectOverlapsWithHistoricalRegions(tb *tabular.Table, accepted []AcceptedOverlap, ignoreZeros bool) {
	log := zap.L().With(zap.String("component", "geo.aggregate"))

	// Years where each entity has at least one informative value.
	informed := make(map[string]map[int]bool)
	for _, row := range tb.Rows {
		hasData := false
		for _, col := range tb.MetricCols {
			v := row.Value(col)
			if tabular.IsMissing(v) {
				continue
			}
			if ignoreZeros && v == 0 {
				continue
			}
			hasData = true
			break
		}
		if !hasData {
			continue
		}
		if informed[row.Entity] == nil {
			informed[row.Entity] = make(map[int]bool)
		}
		informed[row.Entity][row.Year] = true
	}

	for _, historical := range a.regions.HistoricalRegions() {
		histYears := informed[historical.Name]
		if len(histYears) == 0 {
			continue
		}

		years := make([]int, 0, len(histYears))
		for y := range histYears {
			years = append(years, y)
		}
		sort.Ints(years)

		for _, year := range years {
			entities := []string{historical.Name}
			for _, successor := range historical.Successors {
				if informed[successor][year] {
					entities = append(entities, successor)
				}
			}
			if len(entities) == 1 {
				continue
			}
			sort.Strings(entities)

			isAccepted := false
			for _, acc := range accepted {
				if acc.matches(year, entities) {
					isAccepted = true
					break
				}
			}
			if isAccepted {
				continue
			}

			log.Warn("historical region overlaps its successors",
				zap.Int("year", year),
				zap.Strings("entities", entities),
			)
		}
	}
}
