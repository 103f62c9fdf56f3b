package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pfrederiksen/course-scraper/internal/course"
	"github.com/pfrederiksen/course-scraper/internal/logger"
	"github.com/pfrederiksen/course-scraper/internal/runner"
)

// maxBody bounds JSON request bodies
const maxBody = 1 << 16

type errorResponse struct {
	Error string `json:"error"`
}

type scrapeRequest struct {
	CourseCode string `json:"course_code"`
}

type scrapeResponse struct {
	Message string     `json:"message"`
	RunID   string     `json:"run_id"`
	Run     runner.Run `json:"run"`
}

type deleteRequest struct {
	CourseCode string `json:"courseCode"`
}

type deleteResponse struct {
	Success bool `json:"success"`
}

type healthzResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// resultRow is a stored record keyed by its CSV column names
type resultRow struct {
	Timestamp   string `json:"Timestamp"`
	CourseCode  string `json:"Course Code"`
	CourseName  string `json:"Course Name"`
	Description string `json:"Description"`
	HubUnits    string `json:"Hub Units"`
	Credits     string `json:"Credits"`
	URL         string `json:"URL"`
}

func toResultRow(r *course.Record) resultRow {
	return resultRow{
		Timestamp:   r.Timestamp,
		CourseCode:  r.CourseCode,
		CourseName:  r.CourseName,
		Description: r.Description,
		HubUnits:    r.HubUnitsText(),
		Credits:     r.Credits,
		URL:         r.SourceURL,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", nil, err)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	return dec.Decode(v)
}

func scrape(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req scrapeRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
			return
		}
		query := strings.TrimSpace(req.CourseCode)
		if query == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "course_code is required"})
			return
		}

		run, err := d.Runs.Submit(query)
		switch {
		case errors.Is(err, runner.ErrQueueFull):
			w.Header().Set("Retry-After", "5")
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
			return
		case err != nil:
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
			return
		}

		w.Header().Set("Location", "/runs/"+run.ID)
		writeJSON(w, http.StatusAccepted, scrapeResponse{Message: "Scraping started", RunID: run.ID, Run: run})
	}
}

func results(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := d.Store.ReadAll()
		if err != nil {
			// The front end expects a 200 with an error object
			logger.Error("Failed to read store", nil, err)
			writeJSON(w, http.StatusOK, errorResponse{Error: err.Error()})
			return
		}

		rows := make([]resultRow, 0, len(records))
		for _, rec := range records {
			rows = append(rows, toResultRow(rec))
		}
		writeJSON(w, http.StatusOK, rows)
	}
}

func deleteEntry(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req deleteRequest
		if err := decodeJSON(w, r, &req); err != nil || strings.TrimSpace(req.CourseCode) == "" {
			writeJSON(w, http.StatusBadRequest, deleteResponse{Success: false})
			return
		}

		writeJSON(w, http.StatusOK, deleteResponse{Success: d.Store.DeleteByKey(req.CourseCode)})
	}
}

func listRuns(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, d.Runs.Runs())
	}
}

func getRun(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, ok := d.Runs.Status(chi.URLParam(r, "id"))
		if !ok {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "run not found"})
			return
		}
		writeJSON(w, http.StatusOK, run)
	}
}

func healthz(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, healthzResponse{
			Status:        "ok",
			UptimeSeconds: time.Since(d.StartTime).Seconds(),
		})
	}
}

func metrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, logger.GetMetricsSnapshot())
}
