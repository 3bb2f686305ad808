// Package repositories implements SQLite persistence for the records pwatch keeps locally.
//
// Key Implementations:
//   - [ExportLogRepository] : History exports written by the bulk exporter
//
// The session token itself is not stored here; see package tokenstore.
package repositories
