package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datagarden/etl-cli/internal/catalog"
)

func TestRegion_FromRegionsTable(t *testing.T) {
	r := testRegions()

	europe, err := r.Region("Europe")
	require.NoError(t, err)
	assert.Equal(t, "continent", europe.RegionType)
	assert.Equal(t, []string{"France", "Italy", "Spain", "Russia", "Belarus"}, europe.Members)
}

func TestRegion_FromIncomeGroups(t *testing.T) {
	r := testRegions()

	hic, err := r.Region("High-income countries")
	require.NoError(t, err)
	assert.Equal(t, "income_group", hic.RegionType)
	assert.Equal(t, []string{"France", "Italy"}, hic.Members)
}

func TestRegion_NotFound(t *testing.T) {
	r := testRegions()

	_, err := r.Region("Atlantis")
	var notFound RegionNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "Atlantis", notFound.Name)
}

func TestRegionsByName_AllKnown(t *testing.T) {
	r := testRegions()

	all, err := r.RegionsByName()
	require.NoError(t, err)

	// 9 reference regions + 2 income groups.
	assert.Len(t, all, 11)
	assert.Contains(t, all, "Europe")
	assert.Contains(t, all, "Upper-middle-income countries")
}

func TestMemberLists(t *testing.T) {
	r := testRegions()

	lists, err := r.MemberLists("Europe", "High-income countries")
	require.NoError(t, err)
	assert.Equal(t, []string{"France", "Italy", "Spain", "Russia", "Belarus"}, lists["Europe"])
	assert.Equal(t, []string{"France", "Italy"}, lists["High-income countries"])

	_, err = r.MemberLists("Atlantis")
	assert.Error(t, err)
}

func TestNewRegions_UnknownMemberCodeSkipped(t *testing.T) {
	logs := captureWarnings(t)

	r := NewRegions([]catalog.RegionRecord{
		{Code: "FRA", Name: "France", RegionType: "country"},
		{Code: "EUR", Name: "Europe", RegionType: "continent", Members: []string{"FRA", "XXX"}},
	}, nil)

	members, err := r.Members("Europe")
	require.NoError(t, err)
	assert.Equal(t, []string{"France"}, members)
	assert.Equal(t, 1, warningsWithMessage(logs, "member code resolves to no known region"))
}

func TestIncomeGroups_LatestClassificationWins(t *testing.T) {
	y2000, y2021 := 2000, 2021
	r := NewRegions(nil, []catalog.IncomeGroupRecord{
		{Country: "Chile", Year: &y2000, Classification: "Upper-middle-income countries"},
		{Country: "Chile", Year: &y2021, Classification: "High-income countries"},
	})

	hic, err := r.Region("High-income countries")
	require.NoError(t, err)
	assert.Equal(t, []string{"Chile"}, hic.Members)

	// The old classification no longer lists Chile; with nobody left in it,
	// the group does not exist.
	_, err = r.Region("Upper-middle-income countries")
	assert.Error(t, err)
}

func TestHistoricalRegions(t *testing.T) {
	r := testRegions()

	hist := r.HistoricalRegions()
	require.Len(t, hist, 1)
	assert.Equal(t, "USSR", hist[0].Name)
	assert.Equal(t, []string{"Russia", "Belarus", "Georgia", "Ukraine"}, hist[0].Successors)
}

func TestCountryNames(t *testing.T) {
	r := testRegions()

	countries := r.CountryNames()
	assert.Contains(t, countries, "France")
	assert.Contains(t, countries, "USSR")
	assert.NotContains(t, countries, "Europe")
}
