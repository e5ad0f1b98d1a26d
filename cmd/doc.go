// Package cmd implements the command-line interface of tLock.
//
// The package is organized into several subpackages:
//
//   - lock: Commands to run programs under named locks and to inspect lock files
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// Every flag can also be set as environment variable TLOCK_<FLAG> (e.g.
// TLOCK_LOCK_DIR=/var/lock/myapp), .env and .env.local files are loaded as well.
//
// See tlock -help for a list of all commands.
package cmd
