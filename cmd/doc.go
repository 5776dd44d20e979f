// Package cmd implements the command-line interface for the pgtide
// transport engine. It provides a hierarchical command structure for
// exercising the wire-protocol stack against a live backend.
//
// The package is organized into several subpackages:
//
//   - ping: Commands for connecting to a backend and running the startup handshake
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See pgtide -help for a list of all commands.
package cmd
