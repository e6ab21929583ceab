package harvest

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Discover navigates to the listing page, scrolls it to the end so lazy-loaded
// postings render, and returns posting URLs in DOM order. Duplicates are kept.
func (h *Harvester) Discover(ctx context.Context, b Browser) ([]string, error) {
	err := h.deps.Fetch.Do(ctx, "navigate index page", func(ctx context.Context) error {
		return b.Navigate(ctx, h.cfg.IndexURL)
	})
	if err != nil {
		return nil, err
	}
	h.pause(ctx)
	h.scrollToEnd(ctx, b)

	links, err := b.Links(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerate links: %w", err)
	}
	urls := FilterPostingLinks(links, h.cfg.PostingMarker)
	h.logger.Info("postings discovered", zap.Int("links", len(links)), zap.Int("postings", len(urls)))
	return urls, nil
}
