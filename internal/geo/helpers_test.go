package geo

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/datagarden/etl-cli/internal/catalog"
	"github.com/datagarden/etl-cli/internal/tabular"
)

// captureWarnings swaps in an observed global logger for the duration of
// the test and returns the recorded log sink.
func captureWarnings(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zap.WarnLevel)
	prev := zap.L()
	zap.ReplaceGlobals(zap.New(core))
	t.Cleanup(func() { zap.ReplaceGlobals(prev) })
	return logs
}

func warningsWithMessage(logs *observer.ObservedLogs, msg string) int {
	count := 0
	for _, entry := range logs.All() {
		if entry.Message == msg {
			count++
		}
	}
	return count
}

func testRegions() *Regions {
	year2020 := 2020
	return NewRegions(
		[]catalog.RegionRecord{
			{Code: "BLR", Name: "Belarus", RegionType: "country"},
			{Code: "ESP", Name: "Spain", RegionType: "country"},
			{Code: "EUR", Name: "Europe", RegionType: "continent",
				Members: []string{"FRA", "ITA", "ESP", "RUS", "BLR"}},
			{Code: "FRA", Name: "France", RegionType: "country"},
			{Code: "GEO", Name: "Georgia", RegionType: "country"},
			{Code: "ITA", Name: "Italy", RegionType: "country"},
			{Code: "RUS", Name: "Russia", RegionType: "country"},
			{Code: "SUN", Name: "USSR", RegionType: "country", IsHistorical: true,
				Successors: []string{"Russia", "Belarus", "Georgia", "Ukraine"}},
			{Code: "UKR", Name: "Ukraine", RegionType: "country"},
		},
		[]catalog.IncomeGroupRecord{
			{Country: "France", Year: &year2020, Classification: "High-income countries"},
			{Country: "Italy", Classification: "High-income countries"},
			{Country: "Belarus", Classification: "Upper-middle-income countries"},
		},
	)
}

func table(metricCols []string, rows ...tabular.Row) *tabular.Table {
	tb := tabular.New("country", "year", nil, metricCols)
	for _, r := range rows {
		tb.AddRow(r)
	}
	return tb
}

func obs(entity string, year int, values map[string]float64) tabular.Row {
	return tabular.Row{Entity: entity, Year: year, Values: values}
}

// findRow returns the first row for (entity, year), or nil.
func findRow(tb *tabular.Table, entity string, year int) *tabular.Row {
	for i := range tb.Rows {
		if tb.Rows[i].Entity == entity && tb.Rows[i].Year == year {
			return &tb.Rows[i]
		}
	}
	return nil
}

func sumAggregator(t *testing.T, regions *Regions, cols ...string) *Aggregator {
	t.Helper()
	aggs := make(map[string]Reducer, len(cols))
	for _, c := range cols {
		aggs[c] = ReducerSum
	}
	agg, err := NewAggregator(regions, AggregatorOptions{
		Specs:        []RegionSpec{{Name: "Europe"}},
		Aggregations: aggs,
	})
	if err != nil {
		t.Fatalf("NewAggregator: %v", err)
	}
	return agg
}
