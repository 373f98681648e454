package tracker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datagarden/etl-cli/internal/dag"
	"github.com/datagarden/etl-cli/internal/fetcher"
)

type fakeDB struct {
	ids    map[string]int64
	counts map[string]int
}

func (f *fakeDB) DatasetIDs(context.Context) (map[string]int64, error) {
	return f.ids, nil
}

func (f *fakeDB) ChartCounts(context.Context) (map[string]int, error) {
	return f.counts, nil
}

func (f *fakeDB) Close() {}

func buildGraph(t *testing.T, active, archive map[string][]string) *dag.Graph {
	t.Helper()
	var arch *dag.DAG
	if archive != nil {
		arch = &dag.DAG{Steps: archive}
	}
	g, err := dag.BuildGraph(&dag.DAG{Steps: active}, arch)
	require.NoError(t, err)
	return g
}

func rowsByURI(rows []StepRow) map[string]StepRow {
	out := make(map[string]StepRow, len(rows))
	for _, r := range rows {
		out[r.URI] = r
	}
	return out
}

func TestStepsTable_UpToDate(t *testing.T) {
	g := buildGraph(t, map[string][]string{
		"garden://gapminder/2023-01-01/population": {
			"snapshot://gapminder/2023-01-01/population.csv",
		},
		"grapher://gapminder/2023-01-01/population": {
			"garden://gapminder/2023-01-01/population",
		},
	}, nil)

	tr := New(Options{
		Graph: g,
		DB: &fakeDB{
			ids:    map[string]int64{"gapminder/2023-01-01/population": 512},
			counts: map[string]int{"gapminder/2023-01-01/population": 7},
		},
		SnapshotDir: t.TempDir(),
	})

	rows, err := tr.StepsTable(context.Background())
	require.NoError(t, err)
	byURI := rowsByURI(rows)

	grapher := byURI["grapher://gapminder/2023-01-01/population"]
	assert.Equal(t, UpToDate, grapher.UpdateState)
	require.NotNil(t, grapher.DatasetID)
	assert.Equal(t, int64(512), *grapher.DatasetID)
	assert.Equal(t, 7, grapher.ChartCount)

	// The garden step inherits chart usage from its downstream grapher
	// dataset.
	garden := byURI["garden://gapminder/2023-01-01/population"]
	assert.Equal(t, UpToDate, garden.UpdateState)
	assert.Equal(t, 7, garden.ChartCount)
	assert.Equal(t, 2, garden.DirectDeps+garden.DirectUsages)
}

func TestStepsTable_OutdatedAndArchivable(t *testing.T) {
	g := buildGraph(t, map[string][]string{
		"garden://gapminder/2023-01-01/population": {
			"snapshot://gapminder/2023-01-01/population.csv",
		},
		"garden://gapminder/2024-06-01/population": {
			"snapshot://gapminder/2023-01-01/population.csv",
		},
		"grapher://gapminder/2023-01-01/population": {
			"garden://gapminder/2023-01-01/population",
		},
	}, nil)

	tr := New(Options{
		Graph: g,
		DB: &fakeDB{
			ids:    map[string]int64{"gapminder/2023-01-01/population": 512},
			counts: map[string]int{"gapminder/2023-01-01/population": 3},
		},
		SnapshotDir: t.TempDir(),
	})

	rows, err := tr.StepsTable(context.Background())
	require.NoError(t, err)
	byURI := rowsByURI(rows)

	// The old garden version still feeds 3 charts through its grapher
	// step, so it is outdated but not archivable.
	old := byURI["garden://gapminder/2023-01-01/population"]
	assert.Equal(t, "2024-06-01", old.LatestVersion)
	assert.Equal(t, Outdated, old.UpdateState)

	current := byURI["garden://gapminder/2024-06-01/population"]
	assert.Equal(t, UpToDate, current.UpdateState)
}

func TestStepsTable_ArchivableWhenNoCharts(t *testing.T) {
	g := buildGraph(t, map[string][]string{
		"garden://gapminder/2023-01-01/population": {
			"snapshot://gapminder/2023-01-01/population.csv",
		},
		"garden://gapminder/2024-06-01/population": {
			"snapshot://gapminder/2023-01-01/population.csv",
		},
	}, nil)

	tr := New(Options{Graph: g, SnapshotDir: t.TempDir()})

	rows, err := tr.StepsTable(context.Background())
	require.NoError(t, err)
	byURI := rowsByURI(rows)

	assert.Equal(t, Archivable, byURI["garden://gapminder/2023-01-01/population"].UpdateState)
}

func TestStepsTable_MinorUpdate(t *testing.T) {
	// The grapher step pins the old garden version while a newer one
	// exists; no origin has changed, so only a rebuild is needed.
	g := buildGraph(t, map[string][]string{
		"garden://gapminder/2023-01-01/population": {
			"snapshot://gapminder/2023-01-01/population.csv",
		},
		"garden://gapminder/2024-06-01/population": {
			"snapshot://gapminder/2023-01-01/population.csv",
		},
		"grapher://gapminder/2023-01-01/population": {
			"garden://gapminder/2023-01-01/population",
		},
	}, nil)

	tr := New(Options{
		Graph: g,
		DB: &fakeDB{
			ids:    map[string]int64{"gapminder/2023-01-01/population": 512},
			counts: map[string]int{"gapminder/2023-01-01/population": 3},
		},
		SnapshotDir: t.TempDir(),
	})

	rows, err := tr.StepsTable(context.Background())
	require.NoError(t, err)
	byURI := rowsByURI(rows)

	assert.Equal(t, MinorUpdate, byURI["grapher://gapminder/2023-01-01/population"].UpdateState)
}

func TestStepsTable_MajorUpdate(t *testing.T) {
	published := "2024-06-01"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Last-Modified",
			time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC).Format(http.TimeFormat))
	}))
	defer srv.Close()

	snapshotDir := t.TempDir()
	metaDir := filepath.Join(snapshotDir, "gapminder", "2024-06-01")
	require.NoError(t, os.MkdirAll(metaDir, 0o755))
	meta := "origin:\n  url: " + srv.URL + "\n  date_published: " + published + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(metaDir, "population.csv.yml"), []byte(meta), 0o644))

	g := buildGraph(t, map[string][]string{
		"garden://gapminder/2024-06-01/population": {
			"snapshot://gapminder/2024-06-01/population.csv",
		},
	}, nil)

	tr := New(Options{
		Graph:       g,
		Prober:      fetcher.NewProber(fetcher.ProbeOptions{RatePerSec: 1000, Burst: 1000}),
		SnapshotDir: snapshotDir,
	})

	rows, err := tr.StepsTable(context.Background())
	require.NoError(t, err)
	byURI := rowsByURI(rows)

	assert.Equal(t, MajorUpdate, byURI["snapshot://gapminder/2024-06-01/population.csv"].UpdateState)
	assert.Equal(t, MajorUpdate, byURI["garden://gapminder/2024-06-01/population"].UpdateState)
}

func TestStepsTable_Unused(t *testing.T) {
	g := buildGraph(t, map[string][]string{
		"grapher://gapminder/2023-01-01/population": {
			"snapshot://gapminder/2023-01-01/population.csv",
		},
	}, nil)

	tr := New(Options{
		Graph: g,
		DB: &fakeDB{
			ids:    map[string]int64{"gapminder/2023-01-01/population": 512},
			counts: map[string]int{},
		},
		SnapshotDir: t.TempDir(),
	})

	rows, err := tr.StepsTable(context.Background())
	require.NoError(t, err)
	byURI := rowsByURI(rows)

	assert.Equal(t, Unused, byURI["grapher://gapminder/2023-01-01/population"].UpdateState)
}

func TestStepsTable_ArchivedStepsListed(t *testing.T) {
	g := buildGraph(t,
		map[string][]string{
			"garden://gapminder/2024-06-01/population": {
				"snapshot://gapminder/2024-06-01/population.csv",
			},
		},
		map[string][]string{
			"garden://who/2019-01-01/mortality": {
				"snapshot://who/2019-01-01/mortality.csv",
			},
		})

	tr := New(Options{Graph: g, SnapshotDir: t.TempDir()})

	rows, err := tr.StepsTable(context.Background())
	require.NoError(t, err)
	byURI := rowsByURI(rows)

	archived := byURI["garden://who/2019-01-01/mortality"]
	assert.Equal(t, dag.StateArchive, archived.State)
}
