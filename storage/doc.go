// Package storage defines the persistence contracts a Raft-style consensus
// engine depends on: a durable replicated log, stable term/vote state, and
// point-in-time snapshots with a copy mechanism for lagging replicas.
//
// Backends are selected through a Registry keyed by ConnectionURI scheme.
// The package ships two backends: memstore (in-memory, for tests and
// development) and localstore (goleveldb log, file-based stable state, and
// directory-per-generation snapshots).
package storage
