package geo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestHarmonizeNames_Renames(t *testing.T) {
	r := testRegions()
	mapping := writeJSON(t, "countries.json", `{"FRANCE": "France", "Italia": "Italy"}`)

	tb := table([]string{"gdp"},
		obs("FRANCE", 2020, map[string]float64{"gdp": 1}),
		obs("Italia", 2020, map[string]float64{"gdp": 2}),
	)

	out, err := r.HarmonizeNames(tb, DefaultHarmonizeOptions(mapping))
	require.NoError(t, err)

	assert.Equal(t, []string{"France", "Italy"}, out.Entities())
	// Input untouched.
	assert.Equal(t, []string{"FRANCE", "Italia"}, tb.Entities())
}

func TestHarmonizeNames_Idempotent(t *testing.T) {
	r := testRegions()
	mapping := writeJSON(t, "countries.json", `{"FRANCE": "France", "France": "France", "Italy": "Italy"}`)

	tb := table([]string{"gdp"},
		obs("France", 2020, map[string]float64{"gdp": 1}),
		obs("Italy", 2021, map[string]float64{"gdp": 2}),
	)

	once, err := r.HarmonizeNames(tb, DefaultHarmonizeOptions(mapping))
	require.NoError(t, err)
	twice, err := r.HarmonizeNames(once, DefaultHarmonizeOptions(mapping))
	require.NoError(t, err)

	assert.True(t, tb.Equal(once))
	assert.True(t, once.Equal(twice))
}

func TestHarmonizeNames_MissingFileFatal(t *testing.T) {
	r := testRegions()
	tb := table([]string{"gdp"})

	_, err := r.HarmonizeNames(tb, DefaultHarmonizeOptions(filepath.Join(t.TempDir(), "missing.json")))
	assert.ErrorContains(t, err, "read countries file")

	_, err = r.HarmonizeNames(tb, HarmonizeOptions{})
	assert.ErrorContains(t, err, "countries file not specified")
}

func TestHarmonizeNames_WarnOnMissingCountries(t *testing.T) {
	logs := captureWarnings(t)
	r := testRegions()
	mapping := writeJSON(t, "countries.json", `{"FRANCE": "France"}`)

	tb := table([]string{"gdp"},
		obs("FRANCE", 2020, map[string]float64{"gdp": 1}),
		obs("Ruritania", 2020, map[string]float64{"gdp": 2}),
	)

	out, err := r.HarmonizeNames(tb, DefaultHarmonizeOptions(mapping))
	require.NoError(t, err)

	// Unmapped name passes through unchanged.
	assert.Equal(t, []string{"France", "Ruritania"}, out.Entities())
	assert.Equal(t, 1, warningsWithMessage(logs, "raw country names have no mapping entry"))
}

func TestHarmonizeNames_MakeMissingNullDropsRows(t *testing.T) {
	_ = captureWarnings(t)
	r := testRegions()
	mapping := writeJSON(t, "countries.json", `{"FRANCE": "France"}`)

	tb := table([]string{"gdp"},
		obs("FRANCE", 2020, map[string]float64{"gdp": 1}),
		obs("Ruritania", 2020, map[string]float64{"gdp": 2}),
	)

	opts := DefaultHarmonizeOptions(mapping)
	opts.MakeMissingNull = true
	out, err := r.HarmonizeNames(tb, opts)
	require.NoError(t, err)

	assert.Equal(t, []string{"France"}, out.Entities())
}

func TestHarmonizeNames_WarnOnUnusedCountries(t *testing.T) {
	logs := captureWarnings(t)
	r := testRegions()
	mapping := writeJSON(t, "countries.json", `{"FRANCE": "France", "Italia": "Italy"}`)

	tb := table([]string{"gdp"}, obs("FRANCE", 2020, map[string]float64{"gdp": 1}))

	opts := DefaultHarmonizeOptions(mapping)
	opts.WarnOnUnusedCountries = true
	_, err := r.HarmonizeNames(tb, opts)
	require.NoError(t, err)

	assert.Equal(t, 1, warningsWithMessage(logs, "mapping entries never matched any row"))
}

func TestHarmonizeNames_ExcludedCountries(t *testing.T) {
	logs := captureWarnings(t)
	r := testRegions()
	mapping := writeJSON(t, "countries.json", `{"FRANCE": "France"}`)
	excluded := writeJSON(t, "excluded.json", `["World", "Not in data"]`)

	tb := table([]string{"gdp"},
		obs("FRANCE", 2020, map[string]float64{"gdp": 1}),
		obs("World", 2020, map[string]float64{"gdp": 99}),
	)

	opts := DefaultHarmonizeOptions(mapping)
	opts.ExcludedCountriesFile = excluded
	out, err := r.HarmonizeNames(tb, opts)
	require.NoError(t, err)

	assert.Equal(t, []string{"France"}, out.Entities())
	// "Not in data" was declared excluded but never appeared.
	assert.Equal(t, 1, warningsWithMessage(logs, "unknown excluded countries absent from input data"))
}

func TestHarmonizeNames_SuggestionsInWarning(t *testing.T) {
	logs := captureWarnings(t)
	r := testRegions()
	mapping := writeJSON(t, "countries.json", `{"Italia": "Italy"}`)

	tb := table([]string{"gdp"}, obs("fránce", 2020, map[string]float64{"gdp": 1}))

	_, err := r.HarmonizeNames(tb, DefaultHarmonizeOptions(mapping))
	require.NoError(t, err)

	entries := logs.FilterMessage("raw country names have no mapping entry").All()
	require.Len(t, entries, 1)

	suggestions, ok := entries[0].ContextMap()["suggestions"].([]interface{})
	require.True(t, ok)
	assert.Equal(t, []interface{}{"fránce -> France"}, suggestions)
}

func TestHarmonizeNames_BadJSON(t *testing.T) {
	r := testRegions()
	mapping := writeJSON(t, "countries.json", `["not", "an", "object"]`)

	tb := table([]string{"gdp"})
	_, err := r.HarmonizeNames(tb, DefaultHarmonizeOptions(mapping))
	assert.ErrorContains(t, err, "decode countries file")
}
