package harvest

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/jobpost-harvester/internal/metrics"
)

// ScrapeStatus tells the caller what ScrapeOne did with a URL.
type ScrapeStatus int

// Scrape statuses.
const (
	// StatusScraped means a record was produced; its Outcome may still be Failed.
	StatusScraped ScrapeStatus = iota
	// StatusSkipped means the identifier was already harvested; nothing was fetched.
	StatusSkipped
	// StatusInvalid means no identifier could be extracted from the URL.
	StatusInvalid
)

// ScrapeOne extracts the identifier of url and, unless seen already knows it, fetches
// the posting. Navigation and extraction failures become a Failed outcome.
func (h *Harvester) ScrapeOne(ctx context.Context, b Browser, seen Seen, url string) (PostingRecord, ScrapeStatus, error) {
	id, err := h.cfg.Identifiers.Extract(url)
	if err != nil {
		return PostingRecord{}, StatusInvalid, err
	}
	logger := h.logger.With(zap.String("identifier", id), zap.String("url", url))
	if seen != nil && seen.Contains(id) {
		logger.Info("posting already harvested; skipping")
		return PostingRecord{}, StatusSkipped, nil
	}

	rec := PostingRecord{ID: id, URL: url, Outcome: h.fetchPosting(ctx, b, url)}
	if rec.Outcome.OK() {
		logger.Info("posting scraped", zap.Int("markup_bytes", len(rec.Outcome.Raw())))
	} else {
		logger.Warn("posting scrape failed; recording failure", zap.Error(rec.Outcome.Reason()))
	}
	return rec, StatusScraped, nil
}

// fetchPosting captures markup before scrolling the detail page.
func (h *Harvester) fetchPosting(ctx context.Context, b Browser, url string) Outcome {
	err := h.deps.Fetch.Do(ctx, "navigate posting", func(ctx context.Context) error {
		return b.Navigate(ctx, url)
	})
	if err != nil {
		return Failed(fmt.Errorf("navigate: %w", err))
	}
	h.pause(ctx)

	raw, err := b.PageSource(ctx)
	if err != nil {
		return Failed(fmt.Errorf("page source: %w", err))
	}
	text, err := h.deps.Extractor.Extract(raw)
	if err != nil {
		return Failed(fmt.Errorf("extract text: %w", err))
	}
	h.scrollToEnd(ctx, b)
	return Succeeded(raw, text)
}

func (h *Harvester) scrapeAll(ctx context.Context, st *runState, urls []string) error {
	for _, url := range urls {
		if h.cfg.MaxPostings > 0 && len(st.batch) >= h.cfg.MaxPostings {
			st.logger.Info("posting limit reached", zap.Int("max_postings", h.cfg.MaxPostings))
			break
		}
		rec, status, err := h.ScrapeOne(ctx, st.browser, st, url)
		switch status {
		case StatusInvalid:
			st.summary.Invalid++
			metrics.ObservePosting("invalid")
			if h.cfg.Invalid == InvalidFail {
				return fmt.Errorf("scrape postings: %w", err)
			}
			st.logger.Warn("skipping posting without identifier", zap.String("url", url), zap.Error(err))
			continue
		case StatusSkipped:
			st.summary.Skipped++
			metrics.ObservePosting("skipped")
			continue
		}

		st.seen[rec.ID] = struct{}{}
		st.batch = append(st.batch, rec)
		if rec.Outcome.OK() {
			st.summary.Scraped++
			metrics.ObservePosting("scraped")
		} else {
			st.summary.Failed++
			metrics.ObservePosting("failed")
		}
		h.pause(ctx)
	}
	st.logger.Info("scrape loop finished", zap.Int("batch", len(st.batch)))
	return nil
}
