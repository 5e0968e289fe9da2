// Package store journals dispatch records.
//
// Two backends implement Journal:
//
//   - Store: SQLite (mattn/go-sqlite3) in WAL mode, one row per cycle
//   - RedisJournal: one Redis list per instance, one JSON entry per cycle
//
// Records are keyed by (instance_id, seq). Writes are idempotent: writing the
// same seq twice keeps the first row. Reads always return records in seq
// order so a journal can be replayed deterministically.
//
// Payloads are stored as RFC 8785 canonical JSON (ir.MarshalCanonical), so
// the same payload always produces the same bytes.
package store
