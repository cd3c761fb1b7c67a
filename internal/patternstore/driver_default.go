//go:build !sqlite_cgo

// Package patternstore implements a pattern-library read-through:
// a cross-task, cross-project store of reusable solution shapes keyed by
// (task_kind, pattern_id), grounded on internal/learning's LearningStore and
// internal/state's DB (schema-versioned SQLite with WAL mode). By default it
// opens through the pure-Go modernc.org/sqlite driver so the module builds
// without cgo; pass -tags sqlite_cgo to switch to the mattn/go-sqlite3
// driver in driver_cgo.go instead.
package patternstore

import (
	_ "modernc.org/sqlite"
)

const driverName = "sqlite"
