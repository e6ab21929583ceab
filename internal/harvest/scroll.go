package harvest

import (
	"context"

	"go.uber.org/zap"
)

// scrollToEnd scrolls in fixed increments with a pause after each until the viewport
// reaches the document end. Failure to get there is logged and otherwise ignored.
func (h *Harvester) scrollToEnd(ctx context.Context, b Browser) bool {
	h.logger.Debug("scrolling to end of page", zap.Int("step_px", h.cfg.ScrollStep))
	for step := 1; step <= h.cfg.MaxScrollSteps; step++ {
		if err := b.ScrollBy(ctx, h.cfg.ScrollStep); err != nil {
			h.logger.Info("could not scroll to end of page", zap.Int("step", step), zap.Error(err))
			return false
		}
		h.pause(ctx)
		bottom, err := b.AtBottom(ctx)
		if err != nil {
			h.logger.Info("could not read scroll position", zap.Int("step", step), zap.Error(err))
			return false
		}
		if bottom {
			h.logger.Debug("scrolled to end of page", zap.Int("steps", step))
			h.pause(ctx)
			return true
		}
	}
	h.logger.Info("end of page not detected; giving up", zap.Int("max_steps", h.cfg.MaxScrollSteps))
	return false
}
