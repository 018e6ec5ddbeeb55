// Package api serves the JSON surface over the results database: listing
// and deleting runs, fetching regions and summaries, rendering report
// pages, and triggering background prediction runs. Handlers read through
// the sqlite stores; database admin endpoints mount from internal/db.
package api
