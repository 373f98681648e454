package geo

import (
	"sort"

	"go.uber.org/zap"
)

// RegionModifiers adjusts a region's default member list for one
// aggregation run. CustomMembers, when set, replaces the default list
// entirely; exclusions and inclusions then apply on top.
type RegionModifiers struct {
	ExcludedMembers []string
	IncludedMembers []string
	CustomMembers   []string
}

// RegionSpec names a region to aggregate, with optional modifiers.
type RegionSpec struct {
	Name      string
	Modifiers RegionModifiers
}

// Modifier keys accepted in hand-authored region configuration.
const (
	modExcludedMembers = "excluded_members"
	modIncludedMembers = "included_members"
	modCustomMembers   = "custom_members"
)

// ParseRegionSpecs converts the lenient string-keyed configuration form
// ({region: {excluded_members: [...], ...}}) into strict specs. Unknown
// modifier keys are logged with the offending key name and ignored, so a
// typo'd key never aborts a run. Output is ordered by region name.
func ParseRegionSpecs(cfg map[string]map[string][]string) []RegionSpec {
	log := zap.L().With(zap.String("component", "geo.regions"))

	names := make([]string, 0, len(cfg))
	for name := range cfg {
		names = append(names, name)
	}
	sort.Strings(names)

	specs := make([]RegionSpec, 0, len(names))
	for _, name := range names {
		spec := RegionSpec{Name: name}
		for key, values := range cfg[name] {
			switch key {
			case modExcludedMembers:
				spec.Modifiers.ExcludedMembers = append([]string(nil), values...)
			case modIncludedMembers:
				spec.Modifiers.IncludedMembers = append([]string(nil), values...)
			case modCustomMembers:
				spec.Modifiers.CustomMembers = append([]string(nil), values...)
			default:
				log.Warn("unknown region modifier key, ignoring",
					zap.String("region", name),
					zap.String("key", key),
				)
			}
		}
		specs = append(specs, spec)
	}
	return specs
}

// SpecsForNames builds plain specs (no modifiers) for a list of region names.
func SpecsForNames(names []string) []RegionSpec {
	specs := make([]RegionSpec, 0, len(names))
	for _, name := range names {
		specs = append(specs, RegionSpec{Name: name})
	}
	return specs
}
