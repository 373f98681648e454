// Package tracker classifies pipeline steps by update urgency and
// plans version bumps and archivals over the DAG files.
package tracker

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/datagarden/etl-cli/internal/dag"
	"github.com/datagarden/etl-cli/internal/fetcher"
	"github.com/datagarden/etl-cli/internal/grapherdb"
)

// UpdateState classifies how urgently a step needs attention.
type UpdateState string

const (
	// UpToDate: latest version, all origins current.
	UpToDate UpdateState = "UP_TO_DATE"
	// MinorUpdate: some dependency has a newer version in the DAG, but
	// every upstream origin is still current.
	MinorUpdate UpdateState = "MINOR_UPDATE"
	// MajorUpdate: an upstream origin has published newer data.
	MajorUpdate UpdateState = "MAJOR_UPDATE"
	// Outdated: a strictly newer version of this step exists.
	Outdated UpdateState = "OUTDATED"
	// Archivable: outdated and nothing charts off it.
	Archivable UpdateState = "ARCHIVABLE"
	// Unused: a live grapher dataset with zero charts and zero usages.
	Unused UpdateState = "UNUSED"
)

// StepRow is one row of the steps table.
type StepRow struct {
	URI           string        `json:"uri"`
	Channel       dag.Channel   `json:"channel"`
	Namespace     string        `json:"namespace"`
	Version       string        `json:"version"`
	Name          string        `json:"name"`
	State         dag.StepState `json:"state"`
	LatestVersion string        `json:"latest_version"`
	DirectDeps    int           `json:"direct_dependencies"`
	DirectUsages  int           `json:"direct_usages"`
	ActiveDeps    int           `json:"all_active_dependencies"`
	ActiveUsages  int           `json:"all_active_usages"`
	ChartCount    int           `json:"chart_count"`
	DatasetID     *int64        `json:"dataset_id,omitempty"`
	UpdateState   UpdateState   `json:"update_state"`
}

// Options configures a VersionTracker. DB and Prober are optional:
// without them chart counts stay zero and origin freshness stays
// unknown, which degrades classification but never fails it.
type Options struct {
	Graph          *dag.Graph
	DB             grapherdb.Client
	Prober         *fetcher.Prober
	SnapshotDir    string
	MaxConcurrency int
}

// VersionTracker builds the steps table: the full graph plus one
// computed update state per step.
type VersionTracker struct {
	graph       *dag.Graph
	db          grapherdb.Client
	prober      *fetcher.Prober
	snapshotDir string
	maxProbes   int
	log         *zap.Logger
}

// New creates a VersionTracker.
func New(opts Options) *VersionTracker {
	maxProbes := opts.MaxConcurrency
	if maxProbes <= 0 {
		maxProbes = 8
	}
	return &VersionTracker{
		graph:       opts.Graph,
		db:          opts.DB,
		prober:      opts.Prober,
		snapshotDir: opts.SnapshotDir,
		maxProbes:   maxProbes,
		log:         zap.L().With(zap.String("component", "tracker")),
	}
}

// catalogPath is how the grapher database refers to a dataset.
func catalogPath(u dag.URI) string {
	return u.Namespace + "/" + u.Version + "/" + u.Name
}

// StepsTable materializes every step with its computed update state,
// sorted by URI.
func (t *VersionTracker) StepsTable(ctx context.Context) ([]StepRow, error) {
	datasetIDs := map[string]int64{}
	chartCounts := map[string]int{}
	if t.db != nil {
		var err error
		if datasetIDs, err = t.db.DatasetIDs(ctx); err != nil {
			return nil, err
		}
		if chartCounts, err = t.db.ChartCounts(ctx); err != nil {
			return nil, err
		}
	}

	freshness, err := t.probeOrigins(ctx)
	if err != nil {
		return nil, err
	}

	steps := t.graph.Steps()
	rows := make([]StepRow, 0, len(steps))
	for _, raw := range steps {
		node, _ := t.graph.Node(raw)

		directDeps, err := t.graph.DirectDependencies(raw)
		if err != nil {
			return nil, err
		}
		directUsages, err := t.graph.DirectUsages(raw)
		if err != nil {
			return nil, err
		}
		activeDeps, err := t.graph.AllActiveDependencies(raw)
		if err != nil {
			return nil, err
		}
		activeUsages, err := t.graph.AllActiveUsages(raw)
		if err != nil {
			return nil, err
		}

		row := StepRow{
			URI:           raw,
			Channel:       node.URI.Channel,
			Namespace:     node.URI.Namespace,
			Version:       node.URI.Version,
			Name:          node.URI.Name,
			State:         node.State,
			LatestVersion: t.graph.LatestVersion(node.URI),
			DirectDeps:    len(directDeps),
			DirectUsages:  len(directUsages),
			ActiveDeps:    len(activeDeps),
			ActiveUsages:  len(activeUsages),
		}

		if node.URI.Channel == dag.ChannelGrapher {
			if id, ok := datasetIDs[catalogPath(node.URI)]; ok {
				row.DatasetID = &id
			}
		}
		row.ChartCount = t.chartCountFor(raw, activeUsages, chartCounts)

		row.UpdateState, err = t.classify(row, node, freshness)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// chartCountFor counts charts built on a step: its own grapher dataset
// plus every grapher dataset downstream of it.
func (t *VersionTracker) chartCountFor(raw string, activeUsages []string, chartCounts map[string]int) int {
	total := 0
	count := func(uri string) {
		node, ok := t.graph.Node(uri)
		if !ok || node.URI.Channel != dag.ChannelGrapher {
			return
		}
		total += chartCounts[catalogPath(node.URI)]
	}
	count(raw)
	for _, usage := range activeUsages {
		count(usage)
	}
	return total
}

// probeOrigins checks every snapshot step's upstream source once,
// bounded by the configured concurrency.
func (t *VersionTracker) probeOrigins(ctx context.Context) (map[string]fetcher.Freshness, error) {
	out := map[string]fetcher.Freshness{}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.maxProbes)

	for _, raw := range t.graph.Steps() {
		node, _ := t.graph.Node(raw)
		if node.URI.Channel != dag.ChannelSnapshot {
			continue
		}

		meta, err := LoadSnapshotMeta(t.snapshotDir, node.URI)
		if err != nil {
			return nil, err
		}
		if meta == nil || meta.Origin.URL == "" || t.prober == nil {
			mu.Lock()
			out[raw] = fetcher.FreshnessUnknown
			mu.Unlock()
			continue
		}

		publishedAt, err := meta.PublishedAt()
		if err != nil {
			t.log.Warn("snapshot origin has unparseable publication date",
				zap.String("uri", raw),
				zap.String("date_published", meta.Origin.DatePublished),
			)
			mu.Lock()
			out[raw] = fetcher.FreshnessUnknown
			mu.Unlock()
			continue
		}

		uri := raw
		url := meta.Origin.URL
		g.Go(func() error {
			freshness := t.prober.Probe(gctx, url, publishedAt)
			mu.Lock()
			out[uri] = freshness
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// classify computes the update state for one step.
func (t *VersionTracker) classify(row StepRow, node *dag.Node, freshness map[string]fetcher.Freshness) (UpdateState, error) {
	outdated := dag.CompareVersions(row.Version, row.LatestVersion) < 0
	if outdated {
		if row.ChartCount == 0 {
			return Archivable, nil
		}
		return Outdated, nil
	}

	allDeps, err := t.graph.AllDependencies(row.URI)
	if err != nil {
		return "", err
	}

	// An origin with newer upstream data anywhere beneath this step
	// calls for a fresh snapshot.
	if freshness[row.URI] == fetcher.FreshnessStale {
		return MajorUpdate, nil
	}
	for _, dep := range allDeps {
		if freshness[dep] == fetcher.FreshnessStale {
			return MajorUpdate, nil
		}
	}

	// A dependency with a newer DAG version, while every origin is
	// still current, only needs a rebuild against the new version.
	for _, dep := range allDeps {
		depNode, ok := t.graph.Node(dep)
		if !ok {
			continue
		}
		if dag.CompareVersions(depNode.URI.Version, t.graph.LatestVersion(depNode.URI)) < 0 {
			return MinorUpdate, nil
		}
	}

	if node.State == dag.StateActive &&
		node.URI.Channel == dag.ChannelGrapher &&
		row.DatasetID != nil &&
		row.ChartCount == 0 &&
		row.ActiveUsages == 0 {
		return Unused, nil
	}

	return UpToDate, nil
}
