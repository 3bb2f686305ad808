// Package tasks runs long operations over the user's watch list with real-time progress reporting.
//
// # History Export
//
// [HistoryExporter.ExportAll] lists every watch, fetches each one's price history through a
// rate-limited worker pool and writes one CSV file per watch plus an export_manifest.json.
// Partial failures are reported per watch and never abort the whole run.
//
// # Progress Reporting
//
// Operations report through a [ProgressUpdate] channel. Sends use select with default so a
// slow or absent reader never blocks the workers.
//
// # Export Log
//
// The optional [ExportRecorder] (repositories.ExportLogRepository) persists a row per written
// file. Recording errors are logged and otherwise ignored.
package tasks
