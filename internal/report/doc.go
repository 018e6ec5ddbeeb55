// Package report renders artifacts for stored prediction runs: summary
// statistics over region radii and errors, HTML chart pages, and PNG
// diagnostics. It consumes rows from the sqlite stores and never touches
// the database itself; callers load the data and hand it in.
package report
