// Package ledger records every pass archive that was issued.
//
// The SQLiteRepository keeps one row per archive with its serial number, the
// member slug, the web service authentication token, the archive checksum and
// the generator build that produced it.
// The generator reads the latest row per slug to keep authentication tokens
// stable across runs.
package ledger
