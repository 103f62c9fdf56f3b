// Package cli implements the command-line interface for course-scraper.
//
// The cli package provides the Cobra-based CLI: scraping a query into the
// store, listing stored courses (text/JSON, sorted by storage order,
// timestamp or code), deleting a course, and serving the HTTP API. It wires
// config, logger, scraper, storage, runner and server together.
package cli
