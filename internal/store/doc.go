// Package store provides the SQLite connection behind an experiment log.
//
// The store holds an append-mostly schema:
//   - meta: the metadata catalog (streams, session templates, users,
//     equipment, the dataset singleton, path entries), kind-tagged
//   - session: session instances forming a tree via parent links
//   - log: timestamped JSON observations, append-only
//   - run / run_session: process lifetimes and the sessions they touched
//   - meta_session: time-stamped metadata bindings
//   - setup: append-only stage history
//   - binary: opaque blobs referenced by log rows
//
// # Write model
//
// A single long-lived transaction buffers all writes; it is committed
// explicitly, on the autocommit interval, or at Close. Combined with
// synchronous=OFF this keeps one append in the microsecond range. The cost
// is that an unclean exit can lose the uncommitted tail; that loss is
// bounded by the autocommit interval and reported as a dirty exit on the
// next open.
//
// # Database Configuration
//
//   - WAL mode: concurrent external reads during writes
//   - synchronous=OFF: no per-statement fsync (writer connection only)
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
//
// One process, one DB, one writer. Cross-process writers are out of scope.
package store
