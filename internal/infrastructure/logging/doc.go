// Package logging is the slog setup shared by loxhome and loxctl.
//
// Every entry carries service=loxhome and the build version. Components
// derive their own logger with With("component", ...), so a line from the
// connection manager reads component=hass and one from the dashboard store
// reads component=dashboard.
//
// Access tokens pass through the handshake and the connection manager.
// They are only ever logged through Redact:
//
//	logger.Info("credential received", "token", logging.Redact(cred.AccessToken))
//
// Tests that do not assert on output use Discard.
package logging
