// Package sqlite contains SQLite-backed stores for prediction runs,
// per-sample uncertainty regions, and epsilon sweep results.
//
// All database read and write operations for these record types belong
// here rather than in the calibration or search packages, which stay
// free of SQL. Stores share a single *sql.DB opened by internal/db and
// rely on the schema managed by its migrations.
package sqlite
