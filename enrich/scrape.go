package enrich

import (
	"context"
	"time"
)

// Scrape stage defaults
const (
	DefaultScrapeLimit = 100
	DefaultScrapeDelay = 100 * time.Millisecond
)

// ScrapeOptions are the inputs of one scrape pass
type ScrapeOptions struct {
	Limit int           // Maximum number of items visited, skipped items included
	Force bool          // Re-scrape items that already carry scraped_at
	Delay time.Duration // Pause after every item that was not skipped
}

// DefaultScrapeOptions returns the stage defaults
func DefaultScrapeOptions() ScrapeOptions {
	return ScrapeOptions{Limit: DefaultScrapeLimit, Delay: DefaultScrapeDelay}
}

// ScrapeResult is the outcome of a scrape pass
type ScrapeResult struct {
	Messages      []string `json:"messages"`
	LastScrapedID int      `json:"last_scraped_id"`
}

// Scrape runs the scrape stage over ownerID's model. The loop always starts
// at the first item; the limit bounds loop iterations, so items skipped
// because they are already scraped still consume it.
func (r *Runner) Scrape(ctx context.Context, ownerID string, modelID int64, opts ScrapeOptions) (*ScrapeResult, error) {
	m, err := r.load(ctx, ownerID, modelID)
	if err != nil {
		return nil, err
	}

	logger := r.logger.With("model_id", modelID, "stage", "scrape")
	msgs := newMessageLog(logger)
	lastScraped := 0

	for i := range m.Data.Items {
		if i >= opts.Limit {
			break
		}
		item := &m.Data.Items[i]
		if !opts.Force && item.ScrapedAt != nil {
			r.metrics.IncStageItem("scrape", "skipped")
			continue
		}

		page, err := r.scraper.Scrape(ctx, item.URL, m.BaseURL)
		if err != nil {
			item.Error = err.Error()
			msgs.fail("Failed to scrape %s: %v", item.URL, err)
			r.metrics.IncStageItem("scrape", "failed")
		} else {
			item.ApplyPage(page)
			msgs.info("Successfully scraped: %s", item.URL)
			r.metrics.IncStageItem("scrape", "ok")
		}

		lastScraped = i
		r.pause(opts.Delay)
	}

	m.LastScrapedID = lastScraped
	if err := r.save(ctx, ownerID, m); err != nil {
		return nil, err
	}

	logger.Info("scrape completed", "messages", len(msgs.messages), "last_scraped_id", lastScraped)
	return &ScrapeResult{Messages: msgs.messages, LastScrapedID: lastScraped}, nil
}
