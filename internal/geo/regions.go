package geo

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/datagarden/etl-cli/internal/catalog"
)

// Region is a named aggregate: a continent, an income group, a country,
// or a historical entity with successor countries.
type Region struct {
	Code         string
	Name         string
	RegionType   string // "continent" | "country" | "custom" | "income_group"
	IsHistorical bool
	Members      []string // canonical country names
	Successors   []string // canonical country names replacing a historical region
}

// RegionNotFoundError reports a region name absent from both the regions
// table and the income-group classifications.
type RegionNotFoundError struct {
	Name string
}

func (e RegionNotFoundError) Error() string {
	return fmt.Sprintf("geo: region %q not found in regions or income groups", e.Name)
}

// Regions resolves region names to definitions. It merges two backing
// sources: the regions reference table (keyed by code, members stored as
// code lists) and the income-groups table (classification label per
// country). Construct once and inject by reference; the package holds no
// globals.
type Regions struct {
	byName       map[string]Region
	incomeGroups map[string][]string // classification -> member countries
	names        []string            // deterministic iteration order
	incomeNames  []string
}

// NewRegions builds a resolver from catalog records. Member codes are
// translated to canonical names; codes that resolve to no known region are
// logged and skipped. For time-keyed income groups, each country's latest
// classification decides its membership.
func NewRegions(regionRecs []catalog.RegionRecord, incomeRecs []catalog.IncomeGroupRecord) *Regions {
	log := zap.L().With(zap.String("component", "geo.regions"))

	codeToName := make(map[string]string, len(regionRecs))
	for _, rec := range regionRecs {
		codeToName[rec.Code] = rec.Name
	}

	r := &Regions{
		byName:       make(map[string]Region, len(regionRecs)),
		incomeGroups: make(map[string][]string),
	}

	for _, rec := range regionRecs {
		region := Region{
			Code:         rec.Code,
			Name:         rec.Name,
			RegionType:   rec.RegionType,
			IsHistorical: rec.IsHistorical,
			Successors:   append([]string(nil), rec.Successors...),
		}
		for _, code := range rec.Members {
			name, ok := codeToName[code]
			if !ok {
				log.Warn("member code resolves to no known region",
					zap.String("region", rec.Name),
					zap.String("member_code", code),
				)
				continue
			}
			region.Members = append(region.Members, name)
		}
		r.byName[rec.Name] = region
		r.names = append(r.names, rec.Name)
	}
	sort.Strings(r.names)

	// Latest classification per country.
	latest := make(map[string]catalog.IncomeGroupRecord)
	for _, rec := range incomeRecs {
		prev, ok := latest[rec.Country]
		if !ok || laterClassification(rec, prev) {
			latest[rec.Country] = rec
		}
	}
	countries := make([]string, 0, len(latest))
	for c := range latest {
		countries = append(countries, c)
	}
	sort.Strings(countries)
	for _, c := range countries {
		cls := latest[c].Classification
		r.incomeGroups[cls] = append(r.incomeGroups[cls], c)
	}
	for cls := range r.incomeGroups {
		r.incomeNames = append(r.incomeNames, cls)
	}
	sort.Strings(r.incomeNames)

	return r
}

// laterClassification reports whether a supersedes b for the same country.
// A record without a year is the "latest" variant and always wins.
func laterClassification(a, b catalog.IncomeGroupRecord) bool {
	if a.Year == nil {
		return true
	}
	if b.Year == nil {
		return false
	}
	return *a.Year > *b.Year
}

// Region looks up a single region by name, checking the regions table
// first and the income-group classifications second.
func (r *Regions) Region(name string) (Region, error) {
	if region, ok := r.byName[name]; ok {
		return region, nil
	}
	if members, ok := r.incomeGroups[name]; ok {
		return Region{
			Name:       name,
			RegionType: "income_group",
			Members:    append([]string(nil), members...),
		}, nil
	}
	return Region{}, RegionNotFoundError{Name: name}
}

// RegionsByName is the batch form of Region. With no names it returns
// every known region: the reference regions plus the income groups.
func (r *Regions) RegionsByName(names ...string) (map[string]Region, error) {
	if len(names) == 0 {
		names = r.AllRegionNames()
	}
	out := make(map[string]Region, len(names))
	for _, name := range names {
		region, err := r.Region(name)
		if err != nil {
			return nil, err
		}
		out[name] = region
	}
	return out, nil
}

// Members returns the bare member list of a region.
func (r *Regions) Members(name string) ([]string, error) {
	region, err := r.Region(name)
	if err != nil {
		return nil, err
	}
	return region.Members, nil
}

// MemberLists returns bare member lists for a batch of region names.
func (r *Regions) MemberLists(names ...string) (map[string][]string, error) {
	regions, err := r.RegionsByName(names...)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]string, len(regions))
	for name, region := range regions {
		out[name] = region.Members
	}
	return out, nil
}

// AllRegionNames returns every known region name, sorted, with income
// groups after the reference regions.
func (r *Regions) AllRegionNames() []string {
	out := make([]string, 0, len(r.names)+len(r.incomeNames))
	out = append(out, r.names...)
	out = append(out, r.incomeNames...)
	return out
}

// HistoricalRegions returns the historical regions that declare successors.
func (r *Regions) HistoricalRegions() []Region {
	var out []Region
	for _, name := range r.names {
		region := r.byName[name]
		if region.IsHistorical && len(region.Successors) > 0 {
			out = append(out, region)
		}
	}
	return out
}

// CountryNames returns the canonical names of all plain countries in the
// reference table, sorted.
func (r *Regions) CountryNames() []string {
	var out []string
	for _, name := range r.names {
		if r.byName[name].RegionType == "country" {
			out = append(out, name)
		}
	}
	return out
}
