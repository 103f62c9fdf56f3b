package cli

import (
	"sort"
	"strings"

	"github.com/pfrederiksen/course-scraper/internal/course"
)

// SortOrder represents the available sorting options
type SortOrder string

const (
	SortByStored    SortOrder = "stored"
	SortByTimestamp SortOrder = "timestamp"
	SortByCode      SortOrder = "code"
)

func (o SortOrder) valid() bool {
	switch o {
	case SortByStored, SortByTimestamp, SortByCode:
		return true
	}
	return false
}

// sortRecords sorts records in place. Storage order is left untouched.
func sortRecords(records []*course.Record, order SortOrder) {
	switch order {
	case SortByTimestamp:
		sort.SliceStable(records, func(i, j int) bool {
			return compareByTimestamp(records[i], records[j])
		})
	case SortByCode:
		sort.SliceStable(records, func(i, j int) bool {
			return strings.ToLower(records[i].CourseCode) < strings.ToLower(records[j].CourseCode)
		})
	}
}

// compareByTimestamp orders older records first.
// Records with an unparseable timestamp go last.
func compareByTimestamp(i, j *course.Record) bool {
	ti := course.ParseTimestamp(i.Timestamp)
	tj := course.ParseTimestamp(j.Timestamp)

	if !ti.IsZero() && !tj.IsZero() {
		return ti.Before(tj)
	}
	if !ti.IsZero() {
		return true
	}
	return false
}
