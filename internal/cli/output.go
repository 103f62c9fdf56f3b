package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/pfrederiksen/course-scraper/internal/course"
)

// OutputFormat specifies the output format
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
)

// OutputResult contains data to be output
type OutputResult struct {
	ListedAt time.Time        `json:"listed_at"`
	Store    string           `json:"store"`
	Count    int              `json:"count"`
	Records  []*course.Record `json:"records"`
}

// WriteOutput writes the result in the specified format
func WriteOutput(w io.Writer, result *OutputResult, format OutputFormat, verbose bool) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, result)
	case FormatText:
		return writeText(w, result, verbose)
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

// writeJSON outputs results as JSON
func writeJSON(w io.Writer, result *OutputResult) error {
	if result.Records == nil {
		result.Records = []*course.Record{}
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

// writeText outputs results as human-readable text
func writeText(w io.Writer, result *OutputResult, verbose bool) error {
	if result.Count == 0 {
		fmt.Fprintln(w, "No courses stored.")
		return nil
	}

	for _, rec := range result.Records {
		fmt.Fprintf(w, "%s: %s %s\n", rec.CourseCode, rec.CourseName, rec.Credits)
		if verbose {
			fmt.Fprintf(w, "     Hub: %s\n", rec.HubUnitsText())
			if rec.Description != "" {
				fmt.Fprintf(w, "     Description: %s\n", rec.Description)
			}
			fmt.Fprintf(w, "     Scraped: %s\n", rec.Timestamp)
			fmt.Fprintf(w, "     URL: %s\n", rec.SourceURL)
		}
	}
	fmt.Fprintf(w, "\nTotal: %d courses\n", result.Count)

	return nil
}
