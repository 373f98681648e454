package tracker

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datagarden/etl-cli/internal/dag"
)

func snapshotURI(t *testing.T) dag.URI {
	t.Helper()
	u, err := dag.ParseURI("snapshot://gapminder/2024-06-01/population.csv")
	require.NoError(t, err)
	return u
}

func TestLoadSnapshotMeta(t *testing.T) {
	dir := t.TempDir()
	u := snapshotURI(t)

	path := SnapshotMetaPath(dir, u)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(
		"origin:\n  url: https://example.org/data.csv\n  date_published: 2024-06-01\n",
	), 0o644))

	meta, err := LoadSnapshotMeta(dir, u)
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, "https://example.org/data.csv", meta.Origin.URL)

	published, err := meta.PublishedAt()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), published)
}

func TestLoadSnapshotMeta_Missing(t *testing.T) {
	meta, err := LoadSnapshotMeta(t.TempDir(), snapshotURI(t))
	require.NoError(t, err)
	assert.Nil(t, meta)
}

func TestLoadSnapshotMeta_Malformed(t *testing.T) {
	dir := t.TempDir()
	u := snapshotURI(t)

	path := SnapshotMetaPath(dir, u)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("origin: [not a mapping"), 0o644))

	_, err := LoadSnapshotMeta(dir, u)
	assert.Error(t, err)
}

func TestPublishedAt_Formats(t *testing.T) {
	meta := &SnapshotMeta{Origin: Origin{DatePublished: "2024-06-01T12:30:00Z"}}
	published, err := meta.PublishedAt()
	require.NoError(t, err)
	assert.Equal(t, 2024, published.Year())

	meta.Origin.DatePublished = "June 2024"
	_, err = meta.PublishedAt()
	assert.Error(t, err)
}
