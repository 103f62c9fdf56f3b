// Package scraper provides HTTP fetching and HTML extraction for the university course search.
//
// The scraper builds the advanced-search URL for a free-text query, fetches the
// results page, and extracts one course record per result block. Extraction is
// tolerant of damaged blocks: a block missing its course code or title is skipped
// and reported in the batch rather than aborting the whole page. Descriptions are
// whitespace-normalized and a trailing bracketed credit annotation is split out
// into the record's credits field.
package scraper
