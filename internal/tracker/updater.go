package tracker

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/datagarden/etl-cli/internal/dag"
)

// ErrTargetExists is returned when an update or archive would overwrite
// existing step files or DAG entries. Updates fail loudly instead.
var ErrTargetExists = errors.New("tracker: target already exists")

// StepUpdater plans and executes version bumps and archivals. It only
// ever appends to the active DAG and creates new version directories;
// existing steps are never rewritten.
type StepUpdater struct {
	graph       *dag.Graph
	dagPath     string
	archivePath string
	stepsDir    string
	snapshotDir string
	log         *zap.Logger
}

// UpdaterOptions configures a StepUpdater.
type UpdaterOptions struct {
	Graph       *dag.Graph
	DAGPath     string
	ArchivePath string
	StepsDir    string
	SnapshotDir string
}

// NewUpdater creates a StepUpdater.
func NewUpdater(opts UpdaterOptions) *StepUpdater {
	return &StepUpdater{
		graph:       opts.Graph,
		dagPath:     opts.DAGPath,
		archivePath: opts.ArchivePath,
		stepsDir:    opts.StepsDir,
		snapshotDir: opts.SnapshotDir,
		log:         zap.L().With(zap.String("component", "tracker")),
	}
}

// stepDir returns the directory holding a step's code and metadata.
// Snapshots live under the snapshot dir, everything else under the
// steps dir by channel.
func (u *StepUpdater) stepDir(uri dag.URI) string {
	if uri.Channel == dag.ChannelSnapshot {
		return filepath.Join(u.snapshotDir, uri.Namespace, uri.Version)
	}
	return filepath.Join(u.stepsDir, string(uri.Channel), uri.Namespace, uri.Version)
}

// UpdateStep clones a step to a new version: its files are copied into
// the new version directory, its dependencies are bumped to their
// latest known versions, and the new step is appended to the active
// DAG. Returns the new step URI.
func (u *StepUpdater) UpdateStep(rawURI, toVersion string) (string, error) {
	uri, err := dag.ParseURI(rawURI)
	if err != nil {
		return "", err
	}
	node, ok := u.graph.Node(rawURI)
	if !ok {
		return "", eris.Errorf("tracker: unknown step %s", rawURI)
	}
	if node.State != dag.StateActive {
		return "", eris.Errorf("tracker: cannot update archived step %s", rawURI)
	}
	if dag.CompareVersions(toVersion, uri.Version) <= 0 {
		return "", eris.Errorf("tracker: new version %s is not newer than %s", toVersion, uri.Version)
	}

	newURI := uri.WithVersion(toVersion)
	if _, exists := u.graph.Node(newURI.String()); exists {
		return "", eris.Wrapf(ErrTargetExists, "step %s", newURI.String())
	}

	if err := u.cloneStepFiles(uri, newURI); err != nil {
		return "", err
	}

	deps := make([]string, 0, len(node.Dependencies))
	for _, dep := range node.Dependencies {
		depURI, err := dag.ParseURI(dep)
		if err != nil {
			return "", err
		}
		deps = append(deps, depURI.WithVersion(u.graph.LatestVersion(depURI)).String())
	}

	if err := dag.AppendSteps(u.dagPath, map[string][]string{newURI.String(): deps}); err != nil {
		return "", err
	}

	u.log.Info("step updated",
		zap.String("from", rawURI),
		zap.String("to", newURI.String()),
		zap.Strings("dependencies", deps),
	)
	return newURI.String(), nil
}

// cloneStepFiles copies the step's files from the old version directory
// into the new one. A step owns every file whose name is the step name
// plus an extension (snapshots carry the extension in the name, so
// their metadata sidecar matches as <name>.yml).
func (u *StepUpdater) cloneStepFiles(from, to dag.URI) error {
	srcDir := u.stepDir(from)
	dstDir := u.stepDir(to)

	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return eris.Wrapf(err, "tracker: read step directory for %s", from.String())
	}

	var owned []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if name == from.Name || strings.HasPrefix(name, from.Name+".") {
			owned = append(owned, name)
		}
	}
	if len(owned) == 0 {
		return eris.Errorf("tracker: no files for step %s in %s", from.String(), srcDir)
	}

	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return eris.Wrapf(err, "tracker: create %s", dstDir)
	}

	for _, name := range owned {
		dst := filepath.Join(dstDir, name)
		if _, err := os.Stat(dst); err == nil {
			return eris.Wrapf(ErrTargetExists, "file %s", dst)
		}
		if err := copyFile(filepath.Join(srcDir, name), dst); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return eris.Wrapf(err, "tracker: open %s", src)
	}
	defer in.Close() //nolint:errcheck

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return eris.Wrapf(err, "tracker: create %s", dst)
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return eris.Wrapf(err, "tracker: copy to %s", dst)
	}
	return eris.Wrapf(out.Close(), "tracker: close %s", dst)
}

// ArchiveStep moves a step's DAG entry from the active DAG to the
// archive DAG. It refuses to archive unknown or already archived steps.
func (u *StepUpdater) ArchiveStep(rawURI string) error {
	node, ok := u.graph.Node(rawURI)
	if !ok {
		return eris.Errorf("tracker: unknown step %s", rawURI)
	}
	if node.State == dag.StateArchive {
		return eris.Errorf("tracker: step %s is already archived", rawURI)
	}

	if err := dag.MoveSteps(u.dagPath, u.archivePath, []string{rawURI}); err != nil {
		return err
	}

	u.log.Info("step archived", zap.String("uri", rawURI))
	return nil
}
