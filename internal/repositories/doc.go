// Package repositories implements the storage backends of the preference graph.
//
// Key Implementations:
//   - [SQLiteGraph] : durable backend on SQLite, with reinforcement done by an ON CONFLICT upsert
//   - [MemoryGraph] : in-memory backend with O(1) identity indices and a [SnapshotPersister] hook
//
// Node identity is enforced by the backends themselves: a unique index on external_id, and a
// partial unique index on (type, name) for nodes without an external id. MemoryGraph mirrors
// both with map indices.
//
// Sequence numbers provide stable insertion ordering independent of UUIDs and creation timestamps.
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
//
// Neither backend is safe for multiple writer processes; one process owns the graph.
package repositories
