package discovery

import "strings"

const (
	// LabelFavorite marks an entity for the favorites view.
	LabelFavorite = "favorit"

	// LabelCentral marks an entity for the central view.
	LabelCentral = "zentral"
)

// supportedDomains are the entity domains the dashboard can render.
var supportedDomains = map[string]bool{
	"light":               true,
	"switch":              true,
	"climate":             true,
	"cover":               true,
	"sensor":              true,
	"media_player":        true,
	"camera":              true,
	"fan":                 true,
	"lock":                true,
	"alarm_control_panel": true,
	"input_boolean":       true,
	"automation":          true,
}

// IsSupportedDomain reports whether the dashboard renders entities of domain.
func IsSupportedDomain(domain string) bool {
	return supportedDomains[domain]
}

// Resolve turns the registry snapshots into a Result.
//
// Entities are visited in input order. Disabled or hidden entities and
// unsupported domains are skipped. An entity's own area wins over its
// device's area; entities with neither, or whose area is missing from
// areas, are unassigned. Only areas that
// received at least one entity are listed, in the order of areas.
//
// Resolve is pure: the inputs are not modified and equal inputs give equal
// results.
func Resolve(areas []Area, devices []Device, entities []EntityRegistryEntry) Result {
	knownArea := make(map[string]bool, len(areas))
	for _, a := range areas {
		knownArea[a.AreaID] = true
	}

	deviceArea := make(map[string]string, len(devices))
	for _, d := range devices {
		if d.AreaID != "" {
			deviceArea[d.ID] = d.AreaID
		}
	}

	result := Result{
		Areas:            []AreaEntities{},
		Unassigned:       []string{},
		FavoriteEntities: []string{},
		CentralEntities:  []string{},
	}
	buckets := make(map[string][]string)

	for _, e := range entities {
		if isSet(e.DisabledBy) || isSet(e.HiddenBy) {
			continue
		}
		if !supportedDomains[domainOf(e.EntityID)] {
			continue
		}

		if hasLabel(e.Labels, LabelFavorite) {
			result.FavoriteEntities = append(result.FavoriteEntities, e.EntityID)
		}
		if hasLabel(e.Labels, LabelCentral) {
			result.CentralEntities = append(result.CentralEntities, e.EntityID)
		}

		areaID := e.AreaID
		if areaID == "" && e.DeviceID != "" {
			areaID = deviceArea[e.DeviceID]
		}
		if areaID == "" || !knownArea[areaID] {
			result.Unassigned = append(result.Unassigned, e.EntityID)
			continue
		}
		buckets[areaID] = append(buckets[areaID], e.EntityID)
	}

	for _, a := range areas {
		ids, ok := buckets[a.AreaID]
		if !ok {
			continue
		}
		result.Areas = append(result.Areas, AreaEntities{Area: a, Entities: ids})
		// Duplicate area ids in the snapshot are listed once.
		delete(buckets, a.AreaID)
	}

	return result
}

// isSet reports whether a nullable registry field holds a non-empty value.
func isSet(s *string) bool {
	return s != nil && *s != ""
}

func hasLabel(labels []string, want string) bool {
	for _, l := range labels {
		if strings.EqualFold(l, want) {
			return true
		}
	}
	return false
}
