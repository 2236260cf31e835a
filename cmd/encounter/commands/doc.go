// Package commands implements the encounter command line: running a node on
// the local network and managing its identity, blocklist and history.
package commands
