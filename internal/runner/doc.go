// Package runner executes scrape-and-merge runs on a bounded pool of workers.
//
// Submitting a query never blocks the caller: the run is queued, assigned an id
// and reported as pending. Workers move it through running to succeeded or
// failed, and the outcome stays queryable by id. A full queue rejects new runs
// instead of growing without bound.
package runner
