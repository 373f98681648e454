package dag

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// DAG is the declarative step specification: one entry per step URI
// listing its direct dependency URIs.
type DAG struct {
	Steps map[string][]string `yaml:"steps"`
}

// Load reads a DAG file. A missing optional file loads as empty when
// allowMissing is set.
func Load(path string, allowMissing bool) (*DAG, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && allowMissing {
			return &DAG{Steps: map[string][]string{}}, nil
		}
		return nil, eris.Wrapf(err, "dag: read %s", path)
	}

	var d DAG
	if err := yaml.Unmarshal(raw, &d); err != nil {
		return nil, eris.Wrapf(err, "dag: decode %s", path)
	}
	if d.Steps == nil {
		d.Steps = map[string][]string{}
	}
	return &d, nil
}

// Has reports whether the DAG declares the given step.
func (d *DAG) Has(uri string) bool {
	_, ok := d.Steps[uri]
	return ok
}

// URIs returns all declared step URIs, sorted.
func (d *DAG) URIs() []string {
	out := make([]string, 0, len(d.Steps))
	for uri := range d.Steps {
		out = append(out, uri)
	}
	sort.Strings(out)
	return out
}

// AppendSteps registers new entries by appending to the DAG file; the
// existing file body is never rewritten. It refuses to act if any entry
// already exists, on disk or among the new entries' duplicates.
func AppendSteps(path string, entries map[string][]string) error {
	if len(entries) == 0 {
		return nil
	}

	existing, err := Load(path, true)
	if err != nil {
		return err
	}
	for uri := range entries {
		if existing.Has(uri) {
			return eris.Errorf("dag: step %s already declared in %s", uri, path)
		}
	}

	uris := make([]string, 0, len(entries))
	for uri := range entries {
		uris = append(uris, uri)
	}
	sort.Strings(uris)

	var sb strings.Builder
	if len(existing.Steps) == 0 {
		if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
			sb.WriteString("steps:\n")
		}
	}
	for _, uri := range uris {
		fmt.Fprintf(&sb, "  %s:\n", uri)
		for _, dep := range entries[uri] {
			fmt.Fprintf(&sb, "    - %s\n", dep)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return eris.Wrapf(err, "dag: open %s for append", path)
	}
	defer f.Close()

	if _, err := f.WriteString(sb.String()); err != nil {
		return eris.Wrapf(err, "dag: append to %s", path)
	}
	return nil
}

// MoveSteps moves entries from one DAG file to another, used to archive
// steps. The source file is rewritten without the moved entries; the
// destination is appended to. It refuses to act if a step is missing from
// the source or already present in the destination.
func MoveSteps(fromPath, toPath string, uris []string) error {
	src, err := Load(fromPath, false)
	if err != nil {
		return err
	}
	dst, err := Load(toPath, true)
	if err != nil {
		return err
	}

	moved := make(map[string][]string, len(uris))
	for _, uri := range uris {
		deps, ok := src.Steps[uri]
		if !ok {
			return eris.Errorf("dag: step %s not declared in %s", uri, fromPath)
		}
		if dst.Has(uri) {
			return eris.Errorf("dag: step %s already declared in %s", uri, toPath)
		}
		moved[uri] = deps
	}

	for uri := range moved {
		delete(src.Steps, uri)
	}
	if err := write(fromPath, src); err != nil {
		return err
	}
	return AppendSteps(toPath, moved)
}

func write(path string, d *DAG) error {
	var sb strings.Builder
	sb.WriteString("steps:\n")
	for _, uri := range d.URIs() {
		fmt.Fprintf(&sb, "  %s:\n", uri)
		for _, dep := range d.Steps[uri] {
			fmt.Fprintf(&sb, "    - %s\n", dep)
		}
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return eris.Wrapf(err, "dag: write %s", path)
	}
	return nil
}
