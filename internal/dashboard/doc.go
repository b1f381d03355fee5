// Package dashboard holds the dashboard layout (views, tiles, settings) and
// its persistence.
//
// The config lives in two tiers:
//
//	backend user data, key "loxhome"     primary, shared across devices
//	local storage, key "loxhome-config"  cache and offline fallback
//
// Load prefers the backend and falls back to the cache, then to Default.
// Save writes both tiers best-effort. Neither ever returns an error, so the
// dashboard always has a config to render.
package dashboard
