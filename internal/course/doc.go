// Package course defines the course record scraped from the university course search.
//
// A Record is the unit of persistence: one row of the CSV store. Records are keyed by
// their course code, which is the only identifier used for deduplication and removal.
// The timestamp is assigned when a record is extracted and is not a stable identifier.
package course
