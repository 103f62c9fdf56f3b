package scraper

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pfrederiksen/course-scraper/internal/course"
)

// Skip records a result block that could not be turned into a record
type Skip struct {
	Index  int   // position of the block in the document, zero-based
	Reason error // wraps ErrMalformedRecord
}

// Batch is the outcome of one extraction pass over a results page
type Batch struct {
	SourceURL string
	Records   []*course.Record // document order, not deduplicated
	Skipped   []Skip
}

// Extract parses a results page into course records.
// Blocks missing a course code or title are skipped and reported in Batch.Skipped.
func (s *Scraper) Extract(r io.Reader, sourceURL string) (*Batch, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}

	batch := &Batch{
		SourceURL: sourceURL,
		Records:   make([]*course.Record, 0),
	}

	doc.Find(resultBlockSelector).Each(func(i int, block *goquery.Selection) {
		rec, err := s.extractRecord(block, sourceURL)
		if err != nil {
			batch.Skipped = append(batch.Skipped, Skip{
				Index:  i,
				Reason: fmt.Errorf("result block %d: %w", i, err),
			})
			return
		}
		batch.Records = append(batch.Records, rec)
	})

	return batch, nil
}

// extractRecord builds a record from a single result block
func (s *Scraper) extractRecord(block *goquery.Selection, sourceURL string) (*course.Record, error) {
	codeSel := block.Find(codeSelector).First()
	if codeSel.Length() == 0 {
		return nil, fmt.Errorf("missing course code <%s>: %w", codeSelector, ErrMalformedRecord)
	}
	nameSel := block.Find(nameSelector).First()
	if nameSel.Length() == 0 {
		return nil, fmt.Errorf("missing course name <%s>: %w", nameSelector, ErrMalformedRecord)
	}

	description, credits := SplitCredits(textOf(block.Find(descriptionSelector).First()))

	return course.NewRecord(
		textOf(codeSel),
		textOf(nameSel),
		description,
		extractHubUnits(block),
		credits,
		sourceURL,
		s.now(),
	), nil
}

// extractHubUnits returns the trimmed items of the block's hub list, or the
// N/A placeholder when the list is absent. A list without items yields an
// empty slice.
func extractHubUnits(block *goquery.Selection) []string {
	list := block.Find(hubListSelector).First()
	if list.Length() == 0 {
		return []string{course.NoHubUnits}
	}

	units := make([]string, 0)
	list.Find("li").Each(func(_ int, li *goquery.Selection) {
		units = append(units, strings.TrimSpace(li.Text()))
	})
	return units
}

// SplitCredits separates a bracketed credit annotation from a description.
// The description is whitespace-collapsed first; then the text between the first
// '[' and the first ']' after it becomes the credits and everything before '['
// the description. Without a complete bracket pair the description is returned
// unchanged alongside course.CreditsNotFound.
func SplitCredits(description string) (string, string) {
	description = CollapseWhitespace(description)

	start := strings.Index(description, "[")
	if start == -1 {
		return description, course.CreditsNotFound
	}
	end := strings.Index(description[start:], "]")
	if end == -1 {
		return description, course.CreditsNotFound
	}
	end += start

	credits := strings.TrimSpace(description[start+1 : end])
	return strings.TrimSpace(description[:start]), credits
}

// CollapseWhitespace replaces every run of whitespace with a single space and
// trims both ends
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// textOf returns the text of sel with each text node trimmed, joined by single
// spaces and whitespace-collapsed. Adjacent block elements therefore never run
// their words together.
func textOf(sel *goquery.Selection) string {
	var parts []string

	var walk func(*goquery.Selection)
	walk = func(s *goquery.Selection) {
		s.Contents().Each(func(_ int, child *goquery.Selection) {
			if goquery.NodeName(child) == "#text" {
				if t := strings.TrimSpace(child.Text()); t != "" {
					parts = append(parts, t)
				}
				return
			}
			walk(child)
		})
	}
	walk(sel)

	return CollapseWhitespace(strings.Join(parts, " "))
}
