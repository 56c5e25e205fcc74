// Package sqlite implements the storage repositories on a single SQLite file
// using the pure-Go modernc.org/sqlite driver.
//
// Table names come from storage.Schema and are validated as identifiers
// before being substituted into the embedded schema template. The database
// runs in WAL mode with a busy timeout, and every transaction begins
// IMMEDIATE so concurrent conversation appends serialize on the write lock.
//
// Vectors are stored as little-endian float32 blobs and scored in Go.
package sqlite
