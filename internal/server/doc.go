// Package server exposes the scrape pipeline over HTTP.
//
// Routes:
//
//	POST /scrape         queue a run for {"course_code": "..."}; 202 with the run
//	GET  /results        every stored record, keyed by CSV column
//	POST /delete-entry   remove {"courseCode": "..."}; {"success": bool}
//	GET  /runs           recent runs, newest first
//	GET  /runs/{id}      one run
//	GET  /healthz        liveness
//	GET  /metrics        counter and timing snapshot
package server
