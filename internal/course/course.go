package course

import (
	"strings"
	"time"
)

const (
	// TimestampLayout is ISO-8601 in UTC with microsecond precision and no zone suffix
	TimestampLayout = "2006-01-02T15:04:05.000000"

	// CreditsNotFound is stored when a description carries no bracketed credit annotation
	CreditsNotFound = "Credits information not found"

	// NoHubUnits is the single hub unit recorded for courses without a hub list
	NoHubUnits = "N/A"

	// HubUnitSeparator joins hub units into the single stored field
	HubUnitSeparator = ", "
)

// Record represents one course from the course search results
type Record struct {
	Timestamp   string   `json:"timestamp"`
	CourseCode  string   `json:"course_code"`
	CourseName  string   `json:"course_name"`
	Description string   `json:"description"`
	HubUnits    []string `json:"hub_units"`
	Credits     string   `json:"credits"`
	SourceURL   string   `json:"source_url"`
}

// FormatTimestamp renders t in the stored timestamp layout
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses a stored timestamp.
// Returns time.Time{} (zero value) if parsing fails.
func ParseTimestamp(s string) time.Time {
	if t, err := time.Parse(TimestampLayout, s); err == nil {
		return t
	}
	// Rows written without fractional seconds
	if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
		return t
	}
	return time.Time{}
}

// NewRecord creates a new Record stamped with now
func NewRecord(code, name, description string, hubUnits []string, credits, sourceURL string, now time.Time) *Record {
	if hubUnits == nil {
		hubUnits = []string{}
	}
	return &Record{
		Timestamp:   FormatTimestamp(now),
		CourseCode:  code,
		CourseName:  name,
		Description: description,
		HubUnits:    hubUnits,
		Credits:     credits,
		SourceURL:   sourceURL,
	}
}

// HubUnitsText returns the hub units as stored
func (r *Record) HubUnitsText() string {
	return JoinHubUnits(r.HubUnits)
}

// JoinHubUnits collapses hub units into a single field
func JoinHubUnits(units []string) string {
	return strings.Join(units, HubUnitSeparator)
}

// SplitHubUnits reverses JoinHubUnits. A blank field is an empty hub list.
// Units that themselves contain the separator do not survive the round trip.
func SplitHubUnits(s string) []string {
	parts := strings.Split(s, HubUnitSeparator)
	units := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			units = append(units, p)
		}
	}
	return units
}
