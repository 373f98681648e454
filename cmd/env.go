package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/datagarden/etl-cli/internal/catalog"
	"github.com/datagarden/etl-cli/internal/dag"
	"github.com/datagarden/etl-cli/internal/fetcher"
	"github.com/datagarden/etl-cli/internal/geo"
	"github.com/datagarden/etl-cli/internal/grapherdb"
	"github.com/datagarden/etl-cli/internal/tracker"
)

// loadRegions opens the reference catalog and builds the region
// resolver plus a population lookup. The catalog is read once and
// closed before returning.
func loadRegions(ctx context.Context) (*geo.Regions, geo.PopulationLookup, error) {
	cat, err := catalog.Open(cfg.Catalog.Path)
	if err != nil {
		return nil, nil, err
	}
	defer cat.Close() //nolint:errcheck

	regionRecs, err := cat.Regions(ctx)
	if err != nil {
		return nil, nil, err
	}
	incomeRecs, err := cat.IncomeGroups(ctx)
	if err != nil {
		return nil, nil, err
	}
	popRecs, err := cat.Population(ctx)
	if err != nil {
		return nil, nil, err
	}

	return geo.NewRegions(regionRecs, incomeRecs), geo.NewPopulationLookup(popRecs), nil
}

// loadGraph builds the dependency graph from the active and archive
// DAG files. The archive file is optional.
func loadGraph() (*dag.Graph, error) {
	active, err := dag.Load(cfg.DAG.Path, false)
	if err != nil {
		return nil, err
	}
	archive, err := dag.Load(cfg.DAG.ArchivePath, true)
	if err != nil {
		return nil, err
	}
	return dag.BuildGraph(active, archive)
}

// newTracker wires a VersionTracker from config. The grapher database
// connection and origin probing are both optional; without them the
// steps table still renders, with weaker classification.
func newTracker(ctx context.Context, probeOrigins bool) (*tracker.VersionTracker, func(), error) {
	graph, err := loadGraph()
	if err != nil {
		return nil, nil, err
	}

	var db grapherdb.Client
	cleanup := func() {}
	if cfg.Grapher.DatabaseURL != "" {
		client, err := grapherdb.Connect(ctx, cfg.Grapher.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		db = client
		cleanup = client.Close
	} else {
		zap.L().Info("no grapher database configured, chart usage unavailable")
	}

	var prober *fetcher.Prober
	if probeOrigins {
		prober = fetcher.NewProber(fetcher.ProbeOptions{
			UserAgent:  cfg.Origins.UserAgent,
			Timeout:    time.Duration(cfg.Origins.TimeoutSecs) * time.Second,
			MaxRetries: cfg.Origins.MaxRetries,
			RatePerSec: cfg.Origins.RatePerSec,
		})
	}

	t := tracker.New(tracker.Options{
		Graph:          graph,
		DB:             db,
		Prober:         prober,
		SnapshotDir:    cfg.DAG.SnapshotDir,
		MaxConcurrency: cfg.Origins.MaxConcurrency,
	})
	return t, cleanup, nil
}

// newUpdater wires a StepUpdater from config.
func newUpdater() (*tracker.StepUpdater, error) {
	graph, err := loadGraph()
	if err != nil {
		return nil, err
	}
	return tracker.NewUpdater(tracker.UpdaterOptions{
		Graph:       graph,
		DAGPath:     cfg.DAG.Path,
		ArchivePath: cfg.DAG.ArchivePath,
		StepsDir:    cfg.DAG.StepsDir,
		SnapshotDir: cfg.DAG.SnapshotDir,
	}), nil
}
