package geo

import (
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/datagarden/etl-cli/internal/catalog"
	"github.com/datagarden/etl-cli/internal/tabular"
)

// PopulationLookup resolves (country, year) to population.
type PopulationLookup map[string]map[int]float64

// NewPopulationLookup indexes population records by country and year.
func NewPopulationLookup(recs []catalog.PopulationRecord) PopulationLookup {
	out := make(PopulationLookup)
	for _, rec := range recs {
		if out[rec.Country] == nil {
			out[rec.Country] = make(map[int]float64)
		}
		out[rec.Country][rec.Year] = rec.Population
	}
	return out
}

// Get returns the population of a country at a year.
func (p PopulationLookup) Get(country string, year int) (float64, bool) {
	years, ok := p[country]
	if !ok {
		return 0, false
	}
	v, ok := years[year]
	return v, ok
}

// PerCapitaOptions configures AddPerCapita.
type PerCapitaOptions struct {
	// Columns to divide by population.
	Columns []string
	// Prefix and Suffix shape the new column name {prefix}{column}{suffix}.
	Prefix string
	Suffix string
	// OnlyInformedCountriesInRegions makes a region's denominator the
	// summed population of just those members with data for the column in
	// the group, instead of the whole region's population.
	OnlyInformedCountriesInRegions bool
	// WarnOnMissingCountries logs entities with no population data.
	WarnOnMissingCountries bool
}

// DefaultPerCapitaOptions returns the standard per-capita behavior.
func DefaultPerCapitaOptions(columns ...string) PerCapitaOptions {
	return PerCapitaOptions{
		Columns:                        columns,
		Suffix:                         "_per_capita",
		OnlyInformedCountriesInRegions: true,
		WarnOnMissingCountries:         true,
	}
}

// AddPerCapita adds {prefix}{column}{suffix} = column / population for each
// listed column. Region rows use the configured denominator policy; all
// other rows use the entity's own population. The input table is not
// modified.
func (a *Aggregator) AddPerCapita(tb *tabular.Table, opts PerCapitaOptions) (*tabular.Table, error) {
	log := zap.L().With(zap.String("component", "geo.percapita"))

	if a.population == nil {
		return nil, eris.New("geo: per-capita requires a population lookup")
	}
	if opts.Suffix == "" && opts.Prefix == "" {
		return nil, eris.New("geo: per-capita needs a prefix or suffix for new columns")
	}
	for _, col := range opts.Columns {
		if !tb.HasMetric(col) {
			return nil, eris.Errorf("geo: per-capita column %q is not in the table", col)
		}
	}

	regionMembers := make(map[string]map[string]bool, len(a.specs))
	for _, spec := range a.specs {
		members, err := a.memberList(spec)
		if err != nil {
			return nil, err
		}
		set := make(map[string]bool, len(members))
		for _, m := range members {
			set[m] = true
		}
		regionMembers[spec.Name] = set
	}

	// Informed-member population per (region, group, column): the summed
	// population of members that actually carry a value there.
	type denomKey struct {
		region string
		group  string
		col    string
	}
	denominators := make(map[denomKey]float64)
	if opts.OnlyInformedCountriesInRegions {
		for _, row := range tb.Rows {
			group := tb.GroupKey(row)
			for region, members := range regionMembers {
				if !members[row.Entity] {
					continue
				}
				pop, ok := a.population.Get(row.Entity, row.Year)
				if !ok {
					continue
				}
				for _, col := range opts.Columns {
					if tabular.IsMissing(row.Value(col)) {
						continue
					}
					denominators[denomKey{region, group, col}] += pop
				}
			}
		}
	}

	out := tb.Clone()
	missingPop := make(map[string]bool)

	for _, col := range opts.Columns {
		newCol := opts.Prefix + col + opts.Suffix
		out.AddMetricCol(newCol)
		if meta, ok := out.Meta[col]; ok {
			// Explicit metadata pass-through for the derived column.
			out.Meta[newCol] = meta
		}
	}

	for i := range out.Rows {
		row := &out.Rows[i]
		group := out.GroupKey(*row)
		_, isRegion := regionMembers[row.Entity]

		for _, col := range opts.Columns {
			newCol := opts.Prefix + col + opts.Suffix
			value := row.Value(col)
			if tabular.IsMissing(value) {
				row.Values[newCol] = tabular.Missing()
				continue
			}

			var pop float64
			var ok bool
			if isRegion && opts.OnlyInformedCountriesInRegions {
				pop, ok = denominators[denomKey{row.Entity, group, col}], true
				if pop == 0 {
					ok = false
				}
			} else {
				pop, ok = a.population.Get(row.Entity, row.Year)
			}

			if !ok || pop <= 0 {
				if !isRegion {
					missingPop[row.Entity] = true
				}
				row.Values[newCol] = tabular.Missing()
				continue
			}
			row.Values[newCol] = value / pop
		}
	}

	if opts.WarnOnMissingCountries && len(missingPop) > 0 {
		names := make([]string, 0, len(missingPop))
		for n := range missingPop {
			names = append(names, n)
		}
		sort.Strings(names)
		log.Warn("no population data for entities",
			zap.Strings("entities", names),
		)
	}

	return out, nil
}
