package harvest

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/jobpost-harvester/internal/metrics"
)

// CommitIndex appends one row per record, in batch order, right after the rows of snap.
// It is retried as a whole; exhaustion returns ErrIndexCommit.
func (h *Harvester) CommitIndex(ctx context.Context, snap Snapshot, batch []PostingRecord) error {
	if len(batch) == 0 {
		h.logger.Info("no new postings; index unchanged")
		return nil
	}
	ids := make([]string, len(batch))
	for i, rec := range batch {
		ids[i] = rec.ID
	}
	err := h.deps.Commit.Do(ctx, "commit index", func(ctx context.Context) error {
		return h.deps.Index.AppendIdentifiers(ctx, snap.Rows, ids)
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIndexCommit, err)
	}
	metrics.ObserveIndexAppend(len(ids))
	h.logger.Info("index rows appended", zap.Int("offset", snap.Rows), zap.Int("rows", len(ids)))
	return nil
}

// CommitBlobs uploads the source code and text of every record. The whole loop is
// retried; single upload failures are logged and counted but never abort the loop.
// Uploads that landed before a retry are uploaded again.
func (h *Harvester) CommitBlobs(ctx context.Context, batch []PostingRecord) (uploaded, failed int, err error) {
	if len(batch) == 0 {
		return 0, 0, nil
	}
	err = h.deps.Commit.Do(ctx, "commit blobs", func(ctx context.Context) error {
		uploaded, failed = 0, 0
		if rc, ok := h.deps.Blobs.(ReadyChecker); ok {
			if err := rc.Ready(ctx); err != nil {
				return fmt.Errorf("blob destination not ready: %w", err)
			}
		}
		for _, rec := range batch {
			for _, blob := range rec.Blobs() {
				if h.upload(ctx, blob) {
					uploaded++
				} else {
					failed++
				}
			}
		}
		return nil
	})
	if err != nil {
		return uploaded, failed, err
	}
	h.logger.Info("blobs written", zap.Int("uploaded", uploaded), zap.Int("failed", failed))
	return uploaded, failed, nil
}

func (h *Harvester) upload(ctx context.Context, blob Blob) bool {
	uri, err := h.deps.Blobs.PutObject(ctx, blob.Name, h.cfg.ContentType, strings.NewReader(blob.Content))
	if err != nil {
		metrics.ObserveBlobUpload(string(blob.Kind), "error")
		h.logger.Warn("blob upload failed; continuing", zap.String("blob", blob.Name), zap.Error(err))
		return false
	}
	metrics.ObserveBlobUpload(string(blob.Kind), "ok")
	h.logger.Debug("blob uploaded", zap.String("blob", blob.Name), zap.String("uri", uri))
	return true
}
