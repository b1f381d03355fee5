// Package api implements the HTTP REST API and WebSocket endpoints for
// LoxHome Core.
//
// This package provides:
//   - REST endpoints for discovery, live states, service calls and the
//     dashboard config (JSON and YAML)
//   - A push hub sending entity states, config changes and sidebar toggles
//     to subscribed WebSocket clients; slow clients get only the newest value
//   - The handshake host endpoint (/frame) serving embedded frames
//   - The frontend build under /loxhome_static
//   - Middleware: request IDs, access logs per route, panic recovery, CORS
//     and a body limit
//
// # Graceful Degradation
//
// The server runs while the backend is disconnected: config, cached states
// and the frontend stay available; discovery and service calls answer 503.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
