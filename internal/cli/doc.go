// Package cli implements loxctl, the LoxHome command-line client.
//
// loxctl talks to the backend directly with a long-lived access token. It
// runs discovery, lists entity states, calls services and moves the
// dashboard config between the backend and YAML files.
//
// Connection settings come from flags or the LOXHOME_BACKEND_URL and
// LOXHOME_BACKEND_TOKEN environment variables; a .env file in the working
// directory is loaded first.
package cli
