package dag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dagOf(steps map[string][]string) *DAG {
	return &DAG{Steps: steps}
}

func testGraph(t *testing.T) *Graph {
	t.Helper()
	active := dagOf(map[string][]string{
		"meadow://gapminder/2023-01-01/population": {
			"snapshot://gapminder/2023-01-01/population.csv",
		},
		"garden://gapminder/2023-01-01/population": {
			"meadow://gapminder/2023-01-01/population",
		},
		"grapher://gapminder/2023-01-01/population": {
			"garden://gapminder/2023-01-01/population",
		},
		"garden://faostat/2024-03-01/food": {
			"snapshot://faostat/2024-03-01/food.csv",
			"garden://gapminder/2023-01-01/population",
		},
	})
	archive := dagOf(map[string][]string{
		"grapher://gapminder/2019-05-01/population": {
			"snapshot://gapminder/2019-05-01/population.csv",
		},
	})
	g, err := BuildGraph(active, archive)
	require.NoError(t, err)
	return g
}

func TestBuildGraph_SnapshotLeaves(t *testing.T) {
	g := testGraph(t)

	node, ok := g.Node("snapshot://gapminder/2023-01-01/population.csv")
	require.True(t, ok)
	assert.Empty(t, node.Dependencies)
	assert.Equal(t, StateActive, node.State)

	node, ok = g.Node("grapher://gapminder/2019-05-01/population")
	require.True(t, ok)
	assert.Equal(t, StateArchive, node.State)
}

func TestBuildGraph_UndeclaredDependency(t *testing.T) {
	_, err := BuildGraph(dagOf(map[string][]string{
		"grapher://gapminder/2023-01-01/population": {
			"garden://gapminder/2023-01-01/population",
		},
	}), nil)
	assert.ErrorContains(t, err, "undeclared step")
}

func TestBuildGraph_Cycle(t *testing.T) {
	_, err := BuildGraph(dagOf(map[string][]string{
		"garden://a/2023-01-01/x": {"garden://b/2023-01-01/y"},
		"garden://b/2023-01-01/y": {"garden://c/2023-01-01/z"},
		"garden://c/2023-01-01/z": {"garden://a/2023-01-01/x"},
	}), nil)
	require.Error(t, err)

	var cycle CycleError
	require.ErrorAs(t, err, &cycle)
	assert.Len(t, cycle.Steps, 4)
	assert.Equal(t, cycle.Steps[0], cycle.Steps[len(cycle.Steps)-1])
}

func TestGraph_DirectEdges(t *testing.T) {
	g := testGraph(t)

	deps, err := g.DirectDependencies("garden://faostat/2024-03-01/food")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"garden://gapminder/2023-01-01/population",
		"snapshot://faostat/2024-03-01/food.csv",
	}, deps)

	uses, err := g.DirectUsages("garden://gapminder/2023-01-01/population")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"garden://faostat/2024-03-01/food",
		"grapher://gapminder/2023-01-01/population",
	}, uses)

	_, err = g.DirectDependencies("garden://nope/2023-01-01/x")
	assert.ErrorContains(t, err, "unknown step")
}

func TestGraph_TransitiveClosures(t *testing.T) {
	g := testGraph(t)

	deps, err := g.AllDependencies("grapher://gapminder/2023-01-01/population")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"garden://gapminder/2023-01-01/population",
		"meadow://gapminder/2023-01-01/population",
		"snapshot://gapminder/2023-01-01/population.csv",
	}, deps)

	uses, err := g.AllUsages("snapshot://gapminder/2023-01-01/population.csv")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"garden://faostat/2024-03-01/food",
		"garden://gapminder/2023-01-01/population",
		"grapher://gapminder/2023-01-01/population",
		"meadow://gapminder/2023-01-01/population",
	}, uses)
}

func TestGraph_ActiveClosures(t *testing.T) {
	active := dagOf(map[string][]string{
		"garden://gapminder/2023-01-01/population": {
			"snapshot://gapminder/2023-01-01/population.csv",
		},
	})
	archive := dagOf(map[string][]string{
		"grapher://gapminder/2023-01-01/population": {
			"garden://gapminder/2023-01-01/population",
		},
	})
	g, err := BuildGraph(active, archive)
	require.NoError(t, err)

	all, err := g.AllUsages("garden://gapminder/2023-01-01/population")
	require.NoError(t, err)
	assert.Equal(t, []string{"grapher://gapminder/2023-01-01/population"}, all)

	activeUses, err := g.AllActiveUsages("garden://gapminder/2023-01-01/population")
	require.NoError(t, err)
	assert.Empty(t, activeUses)
}

func TestGraph_LatestVersion(t *testing.T) {
	g := testGraph(t)

	u, err := ParseURI("grapher://gapminder/2019-05-01/population")
	require.NoError(t, err)
	assert.Equal(t, "2023-01-01", g.LatestVersion(u))

	v, err := ParseURI("garden://faostat/2024-03-01/food")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01", g.LatestVersion(v))
}
