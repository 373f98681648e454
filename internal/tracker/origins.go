package tracker

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/datagarden/etl-cli/internal/dag"
)

// Origin describes where a snapshot's raw data came from.
type Origin struct {
	URL           string `yaml:"url"`
	DatePublished string `yaml:"date_published"`
}

// SnapshotMeta is the sidecar metadata stored next to each snapshot:
// snapshots/<namespace>/<version>/<name>.yml.
type SnapshotMeta struct {
	Origin Origin `yaml:"origin"`
}

// PublishedAt parses the origin's publication date. Dates are ISO
// (2006-01-02), with RFC3339 accepted for timestamped origins.
func (m *SnapshotMeta) PublishedAt() (time.Time, error) {
	if t, err := time.Parse("2006-01-02", m.Origin.DatePublished); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, m.Origin.DatePublished)
	if err != nil {
		return time.Time{}, eris.Errorf("tracker: unparseable date_published %q", m.Origin.DatePublished)
	}
	return t, nil
}

// SnapshotMetaPath returns the metadata file path for a snapshot step.
func SnapshotMetaPath(snapshotDir string, u dag.URI) string {
	return filepath.Join(snapshotDir, u.Namespace, u.Version, u.Name+".yml")
}

// LoadSnapshotMeta reads a snapshot's origin metadata. A missing file
// returns nil without error: not every snapshot declares an origin.
func LoadSnapshotMeta(snapshotDir string, u dag.URI) (*SnapshotMeta, error) {
	raw, err := os.ReadFile(SnapshotMetaPath(snapshotDir, u))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "tracker: read snapshot metadata for %s", u.String())
	}

	var meta SnapshotMeta
	if err := yaml.Unmarshal(raw, &meta); err != nil {
		return nil, eris.Wrapf(err, "tracker: decode snapshot metadata for %s", u.String())
	}
	return &meta, nil
}
