// loxctl is the LoxHome command-line client.
//
// It connects to the backend with a long-lived access token to run
// discovery, list states, call services and export or import the dashboard
// config. See internal/cli for the commands.
package main

import (
	"os"

	"github.com/nerrad567/loxhome-core/internal/cli"
)

// Version information - set at build time via ldflags
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	os.Exit(cli.Execute(cli.BuildInfo{Version: version, Commit: commit, Date: date}))
}
