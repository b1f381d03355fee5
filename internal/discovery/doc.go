// Package discovery builds the dashboard structure from the backend's
// area, device and entity registries.
//
// Resolve is a pure function over one point-in-time snapshot of the three
// registries. It does not talk to the backend; hass.Manager.Discover fetches
// the snapshot and calls it.
//
// Area resolution order for an entity:
//
//	entity.area_id -> device.area_id -> unassigned
//
// Labels "favorit" and "zentral" (case-insensitive) add an entity to the
// favorite and central lists independently of its area.
package discovery
