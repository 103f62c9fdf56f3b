package runner

import (
	"context"
	"fmt"

	"github.com/pfrederiksen/course-scraper/internal/course"
	"github.com/pfrederiksen/course-scraper/internal/logger"
	"github.com/pfrederiksen/course-scraper/internal/scraper"
	"github.com/pfrederiksen/course-scraper/internal/storage"
)

// Scraper fetches and extracts the results page for a query
type Scraper interface {
	Scrape(ctx context.Context, query string) (*scraper.Batch, error)
}

// Merger persists a batch of records
type Merger interface {
	Merge(batch []*course.Record) (storage.MergeResult, error)
}

// Pipeline returns the Job that fetches the results for a query, extracts
// its records and merges them into the store. Nothing is written when the
// fetch fails.
func Pipeline(sc Scraper, store Merger) Job {
	return func(ctx context.Context, query string) (Report, error) {
		batch, err := sc.Scrape(ctx, query)
		if err != nil {
			return Report{}, fmt.Errorf("scraping %q: %w", query, err)
		}

		for _, skip := range batch.Skipped {
			logger.Warn("Skipped malformed result block", logger.Fields{
				"url":    batch.SourceURL,
				"index":  skip.Index,
				"reason": skip.Reason.Error(),
			})
		}
		logger.AddCounter("extract.skipped", int64(len(batch.Skipped)))

		report := Report{
			Fetched: len(batch.Records),
			Skipped: len(batch.Skipped),
		}

		result, err := store.Merge(batch.Records)
		if err != nil {
			return report, fmt.Errorf("merging records: %w", err)
		}
		report.Appended = result.Appended
		report.Duplicates = result.Duplicates

		logger.AddCounter("merge.appended", int64(result.Appended))
		logger.AddCounter("merge.duplicates", int64(result.Duplicates))
		logger.Debug("Merged batch", logger.Fields{
			"url":        batch.SourceURL,
			"fetched":    report.Fetched,
			"appended":   report.Appended,
			"duplicates": report.Duplicates,
		})

		return report, nil
	}
}
