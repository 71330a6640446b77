// Package localstore implements the storage contracts on the local disk
// under the "local" URI scheme: a goleveldb-backed replicated log, an
// atomically rewritten JSON file for term/vote state, and one directory per
// snapshot generation with a JSON manifest. Snapshot copy jobs read their
// source through a pluggable FileSystemAdaptor and can be bandwidth-limited
// with a SnapshotThrottle.
//
// Connection URI: local://<directory>[?sync=true|false]. The sync parameter
// controls whether ordinary log appends fsync; truncation, reset, and all
// stable-state and snapshot writes always do.
package localstore
