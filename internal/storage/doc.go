// Package storage persists potential records and run results.
//
// Records are flat key/value snapshots of a potential's configuration
// (cutoffs, code, parameter values, geometry) keyed by a uuid. Two backends
// exist: an in-memory store and, when built with -tags sqlite, a SQLite
// store.
//
//	store, err := storage.NewStore("sqlite", "patches.db")
//	defer storage.CloseIfSupported(store)
//
// Runs are archived on disk by RunArchive, one directory per run.
package storage
