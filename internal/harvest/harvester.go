package harvest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobpost-harvester/internal/metrics"
	"github.com/JakeFAU/jobpost-harvester/internal/retry"
	"github.com/JakeFAU/jobpost-harvester/internal/telemetry"
)

// InvalidPolicy decides what happens to posting URLs without a usable identifier.
type InvalidPolicy string

// Supported invalid-identifier policies.
const (
	InvalidSkip InvalidPolicy = "skip"
	InvalidFail InvalidPolicy = "fail"
)

// ErrIndexCommit marks a failed index write-back; no blobs are written after it.
var ErrIndexCommit = errors.New("index write-back failed")

// Config controls Harvester behavior.
type Config struct {
	IndexURL       string
	PostingMarker  string
	Identifiers    IdentifierParser
	MaxPostings    int
	Invalid        InvalidPolicy
	MinPause       time.Duration
	MaxPause       time.Duration
	ScrollStep     int
	MaxScrollSteps int
	ContentType    string
	Topic          string
}

// Deps bundles the collaborators of a Harvester. Fetch wraps the snapshot load and
// every navigation; Commit wraps the two write-back phases.
type Deps struct {
	Launcher  Launcher
	Extractor TextExtractor
	Index     IndexStore
	Blobs     BlobStore
	Publisher Publisher
	Sleeper   Sleeper
	Clock     Clock
	IDs       IDGenerator
	Fetch     *retry.Runner
	Commit    *retry.Runner

	// Tracer records run and phase spans; nil uses the global tracer.
	Tracer trace.Tracer
}

// Harvester drives one harvest run at a time.
type Harvester struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger
}

// New validates dependencies and constructs a Harvester.
func New(cfg Config, deps Deps, logger *zap.Logger) (*Harvester, error) {
	switch {
	case deps.Launcher == nil:
		return nil, fmt.Errorf("launcher is required")
	case deps.Extractor == nil:
		return nil, fmt.Errorf("text extractor is required")
	case deps.Index == nil:
		return nil, fmt.Errorf("index store is required")
	case deps.Blobs == nil:
		return nil, fmt.Errorf("blob store is required")
	case deps.Sleeper == nil:
		return nil, fmt.Errorf("sleeper is required")
	case deps.Clock == nil:
		return nil, fmt.Errorf("clock is required")
	case deps.IDs == nil:
		return nil, fmt.Errorf("id generator is required")
	case deps.Fetch == nil || deps.Commit == nil:
		return nil, fmt.Errorf("fetch and commit retry runners are required")
	}
	if cfg.IndexURL == "" {
		return nil, fmt.Errorf("index url is required")
	}
	if cfg.PostingMarker == "" {
		cfg.PostingMarker = DefaultPostingMarker
	}
	if cfg.Invalid == "" {
		cfg.Invalid = InvalidSkip
	}
	if cfg.ScrollStep <= 0 {
		cfg.ScrollStep = 500
	}
	if cfg.MaxScrollSteps <= 0 {
		cfg.MaxScrollSteps = 200
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "text/plain; charset=utf-8"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Harvester{cfg: cfg, deps: deps, logger: logger}, nil
}

// runState is owned by a single Run and discarded when it returns.
type runState struct {
	snapshot Snapshot
	browser  Browser
	released bool
	seen     map[string]struct{}
	batch    []PostingRecord
	summary  Summary
	logger   *zap.Logger
}

// Contains reports identifiers already in the index or already scraped this run.
func (s *runState) Contains(id string) bool {
	if s.snapshot.Contains(id) {
		return true
	}
	_, ok := s.seen[id]
	return ok
}

func (s *runState) releaseBrowser() {
	if s.browser == nil || s.released {
		return
	}
	s.released = true
	if err := s.browser.Close(); err != nil {
		s.logger.Warn("browser close failed", zap.Error(err))
		return
	}
	s.logger.Info("browser session released")
}

// Run executes one harvest: snapshot, discovery, scrape loop, index write-back, then
// blob write-back. A returned error means the run did not complete.
func (h *Harvester) Run(ctx context.Context) (summary Summary, err error) {
	runID, err := h.deps.IDs.NewID()
	if err != nil {
		return Summary{}, fmt.Errorf("generate run id: %w", err)
	}
	ctx, span := h.tracer().Start(ctx, "harvest.run", trace.WithAttributes(
		attribute.String("harvest.run_id", runID),
		attribute.String("harvest.index_url", h.cfg.IndexURL),
	))
	logger := h.logger.With(zap.String("run_id", runID))
	if traceID := telemetry.TraceID(ctx); traceID != "" {
		logger = logger.With(zap.String("trace_id", traceID))
	}
	st := &runState{
		seen:   make(map[string]struct{}),
		logger: logger,
		summary: Summary{
			RunID:     runID,
			StartedAt: h.deps.Clock.Now(),
			IndexURL:  h.cfg.IndexURL,
		},
	}
	defer func() {
		st.releaseBrowser()
		summary = h.finish(ctx, st, err)
		telemetry.End(span, err,
			attribute.Int("harvest.discovered", summary.Discovered),
			attribute.Int("harvest.scraped", summary.Scraped),
			attribute.Int("harvest.failed", summary.Failed),
			attribute.Int("harvest.index_rows", summary.IndexRows),
			attribute.Int("harvest.blobs_uploaded", summary.BlobsUploaded),
		)
	}()

	st.logger.Info("harvest run starting", zap.String("index_url", h.cfg.IndexURL))

	err = h.phase(ctx, "harvest.load_snapshot", func(ctx context.Context) (err error) {
		st.snapshot, err = h.LoadSnapshot(ctx)
		return err
	})
	if err != nil {
		return st.summary, fmt.Errorf("load index snapshot: %w", err)
	}
	st.summary.SnapshotRows = st.snapshot.Rows

	err = h.phase(ctx, "harvest.launch_browser", func(ctx context.Context) (err error) {
		st.browser, err = h.deps.Launcher.Launch(ctx)
		return err
	})
	if err != nil {
		return st.summary, fmt.Errorf("launch browser: %w", err)
	}
	st.logger.Info("browser session acquired")

	var urls []string
	err = h.phase(ctx, "harvest.discover", func(ctx context.Context) (err error) {
		urls, err = h.Discover(ctx, st.browser)
		return err
	})
	if err != nil {
		return st.summary, fmt.Errorf("discover postings: %w", err)
	}
	st.summary.Discovered = len(urls)

	if err = h.phase(ctx, "harvest.scrape", func(ctx context.Context) error {
		return h.scrapeAll(ctx, st, urls)
	}); err != nil {
		return st.summary, err
	}
	st.releaseBrowser()

	if err = h.phase(ctx, "harvest.commit_index", func(ctx context.Context) error {
		return h.CommitIndex(ctx, st.snapshot, st.batch)
	}); err != nil {
		return st.summary, err
	}
	st.summary.IndexRows = len(st.batch)

	err = h.phase(ctx, "harvest.commit_blobs", func(ctx context.Context) (err error) {
		st.summary.BlobsUploaded, st.summary.BlobFailures, err = h.CommitBlobs(ctx, st.batch)
		return err
	})
	if err != nil {
		return st.summary, fmt.Errorf("blob write-back: %w", err)
	}
	return st.summary, nil
}

func (h *Harvester) tracer() trace.Tracer {
	if h.deps.Tracer != nil {
		return h.deps.Tracer
	}
	return telemetry.Tracer()
}

// phase runs fn inside a child span named name.
func (h *Harvester) phase(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := h.tracer().Start(ctx, name)
	err := fn(ctx)
	telemetry.End(span, err)
	return err
}

// LoadSnapshot reads the index store once under the fetch retry policy.
func (h *Harvester) LoadSnapshot(ctx context.Context) (Snapshot, error) {
	rows, err := retry.Value(ctx, h.deps.Fetch, "load index snapshot", h.deps.Index.LoadIdentifiers)
	if err != nil {
		return Snapshot{}, err
	}
	snap := NewSnapshot(rows)
	metrics.ObserveSnapshot(snap.Rows)
	h.logger.Info("index snapshot loaded", zap.Int("rows", snap.Rows), zap.Int("unique", snap.Unique()))
	return snap, nil
}

func (h *Harvester) finish(ctx context.Context, st *runState, runErr error) Summary {
	st.summary.FinishedAt = h.deps.Clock.Now()
	result := "succeeded"
	if runErr != nil {
		result = "failed"
		st.summary.Error = runErr.Error()
	}
	metrics.ObserveRun(result, st.summary.FinishedAt.Sub(st.summary.StartedAt), st.summary.FinishedAt)

	fields := []zap.Field{
		zap.String("result", result),
		zap.Int("snapshot_rows", st.summary.SnapshotRows),
		zap.Int("discovered", st.summary.Discovered),
		zap.Int("skipped", st.summary.Skipped),
		zap.Int("invalid", st.summary.Invalid),
		zap.Int("scraped", st.summary.Scraped),
		zap.Int("failed", st.summary.Failed),
		zap.Int("index_rows", st.summary.IndexRows),
		zap.Int("blobs_uploaded", st.summary.BlobsUploaded),
		zap.Int("blob_failures", st.summary.BlobFailures),
	}
	if runErr != nil {
		st.logger.Error("harvest run failed", append(fields, zap.Error(runErr))...)
	} else {
		st.logger.Info("harvest run finished", fields...)
	}

	if h.deps.Publisher != nil && h.cfg.Topic != "" {
		if id, err := h.deps.Publisher.Publish(ctx, h.cfg.Topic, st.summary); err != nil {
			st.logger.Warn("publish run summary failed", zap.Error(err))
		} else {
			st.logger.Info("run summary published", zap.String("message_id", id))
		}
	}
	return st.summary
}

func (h *Harvester) pause(ctx context.Context) {
	d := retry.Uniform(h.cfg.MinPause, h.cfg.MaxPause)
	if err := h.deps.Sleeper.Sleep(ctx, d); err != nil {
		h.logger.Debug("pause interrupted", zap.Error(err))
	}
}
