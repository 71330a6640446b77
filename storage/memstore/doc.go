// Package memstore provides in-memory implementations of the storage
// contracts under the "memory" URI scheme. It is the conformance reference
// backend used by tests and local development; nothing survives a restart.
package memstore
