package geo

import (
	"encoding/json"
	"os"
	"sort"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/datagarden/etl-cli/internal/tabular"
)

// HarmonizeOptions configures country-name harmonization.
type HarmonizeOptions struct {
	// CountriesFile is a JSON object mapping raw names to canonical names.
	CountriesFile string
	// ExcludedCountriesFile is an optional JSON array of raw names to drop
	// from the table before mapping.
	ExcludedCountriesFile string
	// MakeMissingNull drops rows whose raw name has no mapping entry
	// instead of keeping them under the raw name.
	MakeMissingNull bool
	// WarnOnMissingCountries logs raw names found in the data but absent
	// from the mapping.
	WarnOnMissingCountries bool
	// WarnOnUnusedCountries logs mapping entries never matched by the data.
	WarnOnUnusedCountries bool
}

// DefaultHarmonizeOptions returns the standard harmonization behavior:
// warn on unmapped raw names, keep them in the table.
func DefaultHarmonizeOptions(countriesFile string) HarmonizeOptions {
	return HarmonizeOptions{
		CountriesFile:          countriesFile,
		WarnOnMissingCountries: true,
	}
}

// HarmonizeNames replaces raw entity names with canonical ones using the
// mapping file. It is a pure rename, never fuzzy: a raw name either maps,
// is excluded, or passes through (with a warning). Harmonizing an already
// canonical table with the same mapping is a no-op.
func (r *Regions) HarmonizeNames(tb *tabular.Table, opts HarmonizeOptions) (*tabular.Table, error) {
	log := zap.L().With(zap.String("component", "geo.harmonize"))

	mapping, err := loadCountryMapping(opts.CountriesFile)
	if err != nil {
		return nil, err
	}

	excluded := map[string]bool{}
	if opts.ExcludedCountriesFile != "" {
		excluded, err = loadExcludedCountries(opts.ExcludedCountriesFile)
		if err != nil {
			return nil, err
		}
	}

	out := tb.Clone()
	out.Rows = out.Rows[:0]

	usedKeys := make(map[string]bool, len(mapping))
	seenExcluded := make(map[string]bool, len(excluded))
	missing := make(map[string]bool)

	for _, row := range tb.Rows {
		if excluded[row.Entity] {
			seenExcluded[row.Entity] = true
			continue
		}
		canonical, ok := mapping[row.Entity]
		if ok {
			usedKeys[row.Entity] = true
			row = row.CloneRow()
			row.Entity = canonical
			out.AddRow(row)
			continue
		}
		missing[row.Entity] = true
		if opts.MakeMissingNull {
			continue
		}
		out.AddRow(row.CloneRow())
	}

	if opts.WarnOnMissingCountries && len(missing) > 0 {
		names := sortedKeys(missing)
		log.Warn("raw country names have no mapping entry",
			zap.Strings("countries", names),
			zap.Strings("suggestions", r.suggestCanonical(names, mapping)),
			zap.String("countries_file", opts.CountriesFile),
		)
	}

	if opts.WarnOnUnusedCountries {
		var unused []string
		for key := range mapping {
			if !usedKeys[key] {
				unused = append(unused, key)
			}
		}
		if len(unused) > 0 {
			sort.Strings(unused)
			log.Warn("mapping entries never matched any row",
				zap.Strings("countries", unused),
				zap.String("countries_file", opts.CountriesFile),
			)
		}
	}

	var unknownExcluded []string
	for name := range excluded {
		if !seenExcluded[name] {
			unknownExcluded = append(unknownExcluded, name)
		}
	}
	if len(unknownExcluded) > 0 {
		sort.Strings(unknownExcluded)
		log.Warn("unknown excluded countries absent from input data",
			zap.Strings("countries", unknownExcluded),
			zap.String("excluded_countries_file", opts.ExcludedCountriesFile),
		)
	}

	return out, nil
}

func loadCountryMapping(path string) (map[string]string, error) {
	if path == "" {
		return nil, eris.New("geo: countries file not specified")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "geo: read countries file %s", path)
	}
	var mapping map[string]string
	if err := json.Unmarshal(raw, &mapping); err != nil {
		return nil, eris.Wrapf(err, "geo: decode countries file %s", path)
	}
	return mapping, nil
}

func loadExcludedCountries(path string) (map[string]bool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "geo: read excluded countries file %s", path)
	}
	var names []string
	if err := json.Unmarshal(raw, &names); err != nil {
		return nil, eris.Wrapf(err, "geo: decode excluded countries file %s", path)
	}
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out, nil
}

// suggestCanonical proposes canonical names whose folded form (lowercase,
// diacritics stripped) matches a missing raw name. Suggestions only ever
// feed the warning message; they never rename anything.
func (r *Regions) suggestCanonical(missing []string, mapping map[string]string) []string {
	folded := make(map[string]string)
	for _, name := range r.names {
		folded[foldName(name)] = name
	}
	for _, canonical := range mapping {
		folded[foldName(canonical)] = canonical
	}

	var suggestions []string
	for _, name := range missing {
		if canonical, ok := folded[foldName(name)]; ok && canonical != name {
			suggestions = append(suggestions, name+" -> "+canonical)
		}
	}
	sort.Strings(suggestions)
	return suggestions
}

var foldChain = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func foldName(s string) string {
	out, _, err := transform.String(foldChain, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
