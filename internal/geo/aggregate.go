package geo

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/datagarden/etl-cli/internal/tabular"
)

// Reducer names how member values collapse into a region value.
type Reducer string

const (
	ReducerSum  Reducer = "sum"
	ReducerMean Reducer = "mean"
)

// AggregatorOptions configures a region aggregator.
type AggregatorOptions struct {
	// Specs lists the regions to aggregate, with optional member modifiers.
	Specs []RegionSpec
	// KnownRegions, when non-empty, is the closed set of acceptable region
	// names; a spec naming anything else is rejected.
	KnownRegions []string
	// Aggregations maps metric columns to their reducers. Columns not
	// listed are never touched by aggregation.
	Aggregations map[string]Reducer
	// Population enables per-capita computation.
	Population PopulationLookup
}

// AggregateOptions configures one AddAggregates run.
type AggregateOptions struct {
	// NaN policy, evaluated independently per aggregated column. With all
	// three unset, exactly one missing member value is tolerated per group.
	NumAllowedNaNsPerYear  *int
	FracAllowedNaNsPerYear *float64
	MinNumValuesPerYear    *int

	// CountriesThatMustHaveData forces a region's aggregate to missing,
	// per column, whenever a required country lacks a value for that
	// column in the group. Keys must name configured regions.
	CountriesThatMustHaveData map[string][]string

	// CheckForRegionOverlaps scans for historical-region/successor
	// overlaps before aggregating.
	CheckForRegionOverlaps bool
	AcceptedOverlaps       []AcceptedOverlap
	IgnoreOverlapsOfZeros  bool

	// KeepOriginalRegionWithSuffix, when set, retains replaced region rows
	// under "{region}{suffix}" instead of dropping them.
	KeepOriginalRegionWithSuffix string
}

// DefaultAggregateOptions returns the standard aggregation behavior:
// overlap checking on, default NaN tolerance.
func DefaultAggregateOptions() AggregateOptions {
	return AggregateOptions{CheckForRegionOverlaps: true}
}

// Aggregator computes region aggregate rows over member countries.
type Aggregator struct {
	regions      *Regions
	specs        []RegionSpec
	aggregations map[string]Reducer
	aggCols      []string
	population   PopulationLookup
}

// NewAggregator validates the configuration and builds an aggregator.
func NewAggregator(regions *Regions, opts AggregatorOptions) (*Aggregator, error) {
	known := make(map[string]bool, len(opts.KnownRegions))
	for _, name := range opts.KnownRegions {
		known[name] = true
	}

	for _, spec := range opts.Specs {
		if len(opts.KnownRegions) > 0 && !known[spec.Name] {
			return nil, eris.Errorf("geo: region %q is not in the known region set", spec.Name)
		}
		if len(spec.Modifiers.CustomMembers) > 0 {
			continue
		}
		if _, err := regions.Region(spec.Name); err != nil {
			return nil, err
		}
	}

	aggCols := make([]string, 0, len(opts.Aggregations))
	for col, reducer := range opts.Aggregations {
		if reducer != ReducerSum && reducer != ReducerMean {
			return nil, eris.Errorf("geo: unsupported reducer %q for column %q", reducer, col)
		}
		aggCols = append(aggCols, col)
	}
	sort.Strings(aggCols)

	return &Aggregator{
		regions:      regions,
		specs:        append([]RegionSpec(nil), opts.Specs...),
		aggregations: opts.Aggregations,
		aggCols:      aggCols,
		population:   opts.Population,
	}, nil
}

// RegionNames returns the configured region names in spec order.
func (a *Aggregator) RegionNames() []string {
	out := make([]string, 0, len(a.specs))
	for _, spec := range a.specs {
		out = append(out, spec.Name)
	}
	return out
}

// memberList resolves a spec's effective member countries: custom members
// if given, otherwise the region's default members, then exclusions and
// inclusions.
func (a *Aggregator) memberList(spec RegionSpec) ([]string, error) {
	log := zap.L().With(zap.String("component", "geo.aggregate"))

	var base []string
	if len(spec.Modifiers.CustomMembers) > 0 {
		base = append(base, spec.Modifiers.CustomMembers...)
	} else {
		region, err := a.regions.Region(spec.Name)
		if err != nil {
			return nil, err
		}
		base = append(base, region.Members...)
	}

	if len(spec.Modifiers.ExcludedMembers) > 0 {
		inBase := make(map[string]bool, len(base))
		for _, m := range base {
			inBase[m] = true
		}
		excluded := make(map[string]bool, len(spec.Modifiers.ExcludedMembers))
		for _, m := range spec.Modifiers.ExcludedMembers {
			if !inBase[m] {
				log.Warn("excluded member is not a member of the region",
					zap.String("region", spec.Name),
					zap.String("member", m),
				)
			}
			excluded[m] = true
		}
		filtered := base[:0]
		for _, m := range base {
			if !excluded[m] {
				filtered = append(filtered, m)
			}
		}
		base = filtered
	}

	present := make(map[string]bool, len(base))
	for _, m := range base {
		present[m] = true
	}
	for _, m := range spec.Modifiers.IncludedMembers {
		if !present[m] {
			base = append(base, m)
			present[m] = true
		}
	}

	return base, nil
}

// AddAggregates inserts or replaces one row per (region, group) with
// freshly computed aggregates. Groups are formed over the year and every
// extra dimension column jointly, never just the year. The input table is
// not modified.
func (a *Aggregator) AddAggregates(tb *tabular.Table, opts AggregateOptions) (*tabular.Table, error) {
	specNames := make(map[string]bool, len(a.specs))
	for _, spec := range a.specs {
		specNames[spec.Name] = true
	}
	for name := range opts.CountriesThatMustHaveData {
		if !specNames[name] {
			return nil, eris.Errorf("geo: countries_that_must_have_data references unknown region %q", name)
		}
	}

	if opts.CheckForRegionOverlaps {
		a.InspectOverlapsWithHistoricalRegions(tb, opts.AcceptedOverlaps, opts.IgnoreOverlapsOfZeros)
	}

	out := tb.Clone()

	for _, spec := range a.specs {
		members, err := a.memberList(spec)
		if err != nil {
			return nil, err
		}
		memberSet := make(map[string]bool, len(members))
		for _, m := range members {
			memberSet[m] = true
		}

		// Group member rows over (year, extra dims), in first-seen order.
		type group struct {
			year int
			dims map[string]string
			rows []tabular.Row
		}
		groups := make(map[string]*group)
		var order []string
		for _, row := range tb.Rows {
			if !memberSet[row.Entity] {
				continue
			}
			key := tb.GroupKey(row)
			g, ok := groups[key]
			if !ok {
				g = &group{year: row.Year, dims: row.Dims}
				groups[key] = g
				order = append(order, key)
			}
			g.rows = append(g.rows, row)
		}

		// No member data anywhere: leave the table untouched for this region.
		if len(groups) == 0 {
			continue
		}

		required := opts.CountriesThatMustHaveData[spec.Name]

		// Pre-existing region rows, for replacement and for preserving
		// their non-aggregated columns.
		existing := make(map[string]tabular.Row)
		for _, row := range out.Rows {
			if row.Entity == spec.Name {
				existing[out.GroupKey(row)] = row
			}
		}

		fresh := make(map[string]tabular.Row, len(order))
		for _, key := range order {
			g := groups[key]
			row := tabular.Row{
				Entity: spec.Name,
				Year:   g.year,
				Values: make(map[string]float64, len(tb.MetricCols)),
			}
			if g.dims != nil {
				row.Dims = make(map[string]string, len(g.dims))
				for k, v := range g.dims {
					row.Dims[k] = v
				}
			}
			for _, col := range a.aggCols {
				if !tb.HasMetric(col) {
					continue
				}
				row.Values[col] = aggregateColumn(g.rows, col, a.aggregations[col], required, opts)
			}
			// Non-aggregated columns keep their pre-existing values.
			if prev, ok := existing[key]; ok {
				for _, col := range tb.MetricCols {
					if _, isAgg := a.aggregations[col]; !isAgg {
						row.Values[col] = prev.Value(col)
					}
				}
			}
			fresh[key] = row
		}

		kept := make([]tabular.Row, 0, len(out.Rows)+len(fresh))
		for _, row := range out.Rows {
			if row.Entity != spec.Name {
				kept = append(kept, row)
				continue
			}
			key := out.GroupKey(row)
			if _, replaced := fresh[key]; !replaced {
				// No fresh aggregate for this group; keep the original row.
				kept = append(kept, row)
				continue
			}
			if opts.KeepOriginalRegionWithSuffix != "" {
				renamed := row.CloneRow()
				renamed.Entity = spec.Name + opts.KeepOriginalRegionWithSuffix
				kept = append(kept, renamed)
			}
		}
		for _, key := range order {
			kept = append(kept, fresh[key])
		}
		out.Rows = kept
	}

	out.SortByIndex()
	return out, nil
}

// aggregateColumn reduces one column over one group's member rows,
// applying the mandatory-country gate and the NaN policy for this column
// alone.
func aggregateColumn(rows []tabular.Row, col string, reducer Reducer, required []string, opts AggregateOptions) float64 {
	for _, req := range required {
		found := false
		for _, r := range rows {
			if r.Entity == req && !tabular.IsMissing(r.Value(col)) {
				found = true
				break
			}
		}
		if !found {
			return tabular.Missing()
		}
	}

	total := len(rows)
	var nonNull int
	var sum float64
	for _, r := range rows {
		v := r.Value(col)
		if tabular.IsMissing(v) {
			continue
		}
		nonNull++
		sum += v
	}
	nans := total - nonNull

	if opts.NumAllowedNaNsPerYear == nil && opts.FracAllowedNaNsPerYear == nil && opts.MinNumValuesPerYear == nil {
		// Historical default: tolerate exactly one missing member value.
		if nans > 1 {
			return tabular.Missing()
		}
	} else {
		if opts.NumAllowedNaNsPerYear != nil && nans > *opts.NumAllowedNaNsPerYear {
			return tabular.Missing()
		}
		if opts.FracAllowedNaNsPerYear != nil && float64(nans) > *opts.FracAllowedNaNsPerYear*float64(total) {
			return tabular.Missing()
		}
		if opts.MinNumValuesPerYear != nil && nonNull < *opts.MinNumValuesPerYear {
			return tabular.Missing()
		}
	}

	if nonNull == 0 {
		return tabular.Missing()
	}

	switch reducer {
	case ReducerMean:
		return sum / float64(nonNull)
	default:
		return sum
	}
}

// AddRegionsOptions bundles everything AddRegionsToTable needs.
type AddRegionsOptions struct {
	Aggregator AggregatorOptions
	Aggregate  AggregateOptions
	PerCapita  *PerCapitaOptions
}

// AddRegionsToTable is the one-call convenience wrapper: build an
// aggregator, add aggregates, then optionally add per-capita columns.
func AddRegionsToTable(regions *Regions, tb *tabular.Table, opts AddRegionsOptions) (*tabular.Table, error) {
	agg, err := NewAggregator(regions, opts.Aggregator)
	if err != nil {
		return nil, err
	}
	out, err := agg.AddAggregates(tb, opts.Aggregate)
	if err != nil {
		return nil, err
	}
	if opts.PerCapita != nil {
		out, err = agg.AddPerCapita(out, *opts.PerCapita)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ParseReducers converts the string form of an aggregations mapping
// ("sum" / "mean") into typed reducers.
func ParseReducers(raw map[string]string) (map[string]Reducer, error) {
	out := make(map[string]Reducer, len(raw))
	for col, name := range raw {
		switch Reducer(strings.ToLower(name)) {
		case ReducerSum:
			out[col] = ReducerSum
		case ReducerMean:
			out[col] = ReducerMean
		default:
			return nil, eris.Errorf("geo: unsupported reducer %q for column %q", name, col)
		}
	}
	return out, nil
}
