package dag

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Channel is a pipeline stage of increasing processing.
type Channel string

const (
	ChannelSnapshot Channel = "snapshot"
	ChannelMeadow   Channel = "meadow"
	ChannelGarden   Channel = "garden"
	ChannelGrapher  Channel = "grapher"
	ChannelExplorer Channel = "explorer"
)

// VersionLatest sorts above any dated version.
const VersionLatest = "latest"

var validChannels = map[Channel]bool{
	ChannelSnapshot: true,
	ChannelMeadow:   true,
	ChannelGarden:   true,
	ChannelGrapher:  true,
	ChannelExplorer: true,
}

// URI identifies one pipeline step:
// {channel}://{namespace}/{version}/{name}. Snapshot names keep their file
// extension (e.g. snapshot://gapminder/2023-01-01/population.csv).
type URI struct {
	Channel   Channel
	Namespace string
	Version   string
	Name      string
}

// ParseURI parses a step URI string.
func ParseURI(s string) (URI, error) {
	channel, rest, ok := strings.Cut(s, "://")
	if !ok {
		return URI{}, eris.Errorf("dag: step URI %q has no channel scheme", s)
	}
	if !validChannels[Channel(channel)] {
		return URI{}, eris.Errorf("dag: step URI %q has unknown channel %q", s, channel)
	}

	parts := strings.Split(rest, "/")
	if len(parts) < 3 {
		return URI{}, eris.Errorf("dag: step URI %q needs namespace/version/name", s)
	}

	u := URI{
		Channel:   Channel(channel),
		Namespace: parts[0],
		Version:   parts[1],
		Name:      strings.Join(parts[2:], "/"),
	}
	if u.Namespace == "" || u.Version == "" || u.Name == "" {
		return URI{}, eris.Errorf("dag: step URI %q has empty components", s)
	}
	return u, nil
}

// String renders the URI back to its canonical form.
func (u URI) String() string {
	return fmt.Sprintf("%s://%s/%s/%s", u.Channel, u.Namespace, u.Version, u.Name)
}

// Identifier names the step ignoring its version; steps sharing an
// identifier are versions of the same dataset.
func (u URI) Identifier() string {
	return fmt.Sprintf("%s/%s/%s", u.Channel, u.Namespace, u.Name)
}

// WithVersion returns a copy of the URI at a different version.
func (u URI) WithVersion(version string) URI {
	u.Version = version
	return u
}

// CompareVersions orders step versions. Versions are ISO dates or the
// literal "latest", which sorts above everything; dates compare
// lexicographically.
func CompareVersions(a, b string) int {
	if a == b {
		return 0
	}
	if a == VersionLatest {
		return 1
	}
	if b == VersionLatest {
		return -1
	}
	return strings.Compare(a, b)
}
