// Package app builds the harvester and its backends from configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/JakeFAU/jobpost-harvester/internal/browser/headless"
	"github.com/JakeFAU/jobpost-harvester/internal/clock/system"
	"github.com/JakeFAU/jobpost-harvester/internal/config"
	"github.com/JakeFAU/jobpost-harvester/internal/extract"
	"github.com/JakeFAU/jobpost-harvester/internal/harvest"
	"github.com/JakeFAU/jobpost-harvester/internal/id/uuid"
	"github.com/JakeFAU/jobpost-harvester/internal/metrics"
	"github.com/JakeFAU/jobpost-harvester/internal/publisher/pubsub"
	"github.com/JakeFAU/jobpost-harvester/internal/retry"
	"github.com/JakeFAU/jobpost-harvester/internal/storage/drive"
	"github.com/JakeFAU/jobpost-harvester/internal/storage/gcs"
	"github.com/JakeFAU/jobpost-harvester/internal/storage/local"
	memstore "github.com/JakeFAU/jobpost-harvester/internal/storage/memory"
	"github.com/JakeFAU/jobpost-harvester/internal/storage/postgres"
	"github.com/JakeFAU/jobpost-harvester/internal/storage/redis"
	"github.com/JakeFAU/jobpost-harvester/internal/storage/sheets"
	"github.com/JakeFAU/jobpost-harvester/internal/telemetry"
)

// Option overrides a collaborator App would otherwise build itself.
type Option func(*overrides)

type overrides struct {
	launcher  harvest.Launcher
	sleeper   harvest.Sleeper
	publisher harvest.Publisher
	googleOps []option.ClientOption
}

// WithLauncher replaces headless Chrome.
func WithLauncher(l harvest.Launcher) Option {
	return func(o *overrides) { o.launcher = l }
}

// WithSleeper replaces the wall-clock sleeper used for pacing and backoff.
func WithSleeper(s harvest.Sleeper) Option {
	return func(o *overrides) { o.sleeper = s }
}

// WithPublisher replaces the configured run-summary publisher.
func WithPublisher(p harvest.Publisher) Option {
	return func(o *overrides) { o.publisher = p }
}

// WithGoogleOptions appends client options to every Google API client.
func WithGoogleOptions(opts ...option.ClientOption) Option {
	return func(o *overrides) { o.googleOps = append(o.googleOps, opts...) }
}

// App owns the harvester and every backend it was built with.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	harvester *harvest.Harvester
	index     harvest.IndexStore
	blobs     harvest.BlobStore
	closers   []func() error
}

// New wires the harvester described by cfg. Backends opened before a failure
// are closed again.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o overrides
	for _, opt := range opts {
		opt(&o)
	}
	metrics.Init()

	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if cfg.Tracing.Enabled {
		tp, terr := telemetry.InitTracerProvider(ctx, cfg.Tracing.ServiceName)
		if terr != nil {
			return nil, fmt.Errorf("tracing: %w", terr)
		}
		a.onClose(func() error { return tp.Shutdown(context.Background()) })
	}

	googleOpts := append(GoogleOptions(cfg.Google), o.googleOps...)

	if a.index, err = a.buildIndex(ctx, googleOpts); err != nil {
		return nil, fmt.Errorf("index store: %w", err)
	}
	if a.blobs, err = a.buildBlobs(ctx, googleOpts); err != nil {
		return nil, fmt.Errorf("blob store: %w", err)
	}
	pub := o.publisher
	if pub == nil {
		if pub, err = a.buildPublisher(ctx, googleOpts); err != nil {
			return nil, fmt.Errorf("publisher: %w", err)
		}
	}

	clock := system.New()
	var sleeper harvest.Sleeper = clock
	if o.sleeper != nil {
		sleeper = o.sleeper
	}
	launcher := o.launcher
	if launcher == nil {
		launcher = headless.NewLauncher(headless.Config{
			Headless:              cfg.Browser.Headless,
			UserAgent:             cfg.Browser.UserAgent,
			NavigationTimeout:     cfg.Browser.NavTimeout,
			MinNavigationInterval: cfg.Browser.MinNavInterval,
		}, logger.Named("browser"))
	}

	fetch := retry.Jittered(cfg.Retry.MaxAttempts, cfg.Retry.MinDelay, cfg.Retry.MaxDelay)
	commit := retry.Fixed(cfg.Writeback.MaxAttempts, cfg.Writeback.Delay)
	for _, p := range []retry.Policy{fetch, commit} {
		if err = p.Validate(); err != nil {
			return nil, fmt.Errorf("retry policy: %w", err)
		}
	}

	a.harvester, err = harvest.New(harvest.Config{
		IndexURL:      cfg.Harvest.IndexURL,
		PostingMarker: cfg.Harvest.PostingMarker,
		Identifiers: harvest.IdentifierParser{
			Start: cfg.Harvest.IDStartMarker,
			End:   cfg.Harvest.IDEndMarker,
		},
		MaxPostings:    cfg.Harvest.MaxPostings,
		Invalid:        harvest.InvalidPolicy(cfg.Harvest.InvalidIdentifier),
		MinPause:       cfg.Pacing.MinSleep,
		MaxPause:       cfg.Pacing.MaxSleep,
		ScrollStep:     cfg.Scroll.StepPx,
		MaxScrollSteps: cfg.Scroll.MaxSteps,
		ContentType:    cfg.Blob.ContentType,
		Topic:          cfg.Publisher.Topic,
	}, harvest.Deps{
		Launcher:  launcher,
		Extractor: extract.New(),
		Index:     a.index,
		Blobs:     a.blobs,
		Publisher: pub,
		Sleeper:   sleeper,
		Clock:     clock,
		IDs:       uuid.New("run"),
		Fetch:     retry.New(fetch, sleeper, logger.Named("retry")),
		Commit:    retry.New(commit, sleeper, logger.Named("retry")),
	}, logger.Named("harvest"))
	if err != nil {
		return nil, err
	}
	logger.Info("harvester ready",
		zap.String("index_provider", cfg.Index.Provider),
		zap.String("blob_provider", cfg.Blob.Provider),
		zap.Bool("publish_summary", cfg.Publisher.Topic != ""))
	return a, nil
}

// GoogleOptions turns configured credentials into client options. With none
// configured the clients fall back to Application Default Credentials.
func GoogleOptions(g config.GoogleConfig) []option.ClientOption {
	switch {
	case g.CredentialsJSON != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(g.CredentialsJSON))}
	case g.CredentialsFile != "":
		return []option.ClientOption{option.WithCredentialsFile(g.CredentialsFile)}
	default:
		return nil
	}
}

func (a *App) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

func (a *App) buildIndex(ctx context.Context, googleOpts []option.ClientOption) (harvest.IndexStore, error) {
	cfg := a.cfg.Index
	switch cfg.Provider {
	case "sheets":
		a.logger.Info("using sheets index", zap.String("spreadsheet_id", cfg.Sheets.SpreadsheetID))
		return sheets.NewIndexStore(ctx, sheets.Config{
			SpreadsheetID: cfg.Sheets.SpreadsheetID,
			Sheet:         cfg.Sheets.Sheet,
		}, googleOpts...)
	case "postgres":
		a.logger.Info("using postgres index", zap.String("table", cfg.Postgres.Table))
		store, err := postgres.NewIndexStore(ctx, postgres.Config{
			DSN:             cfg.Postgres.DSN,
			Table:           cfg.Postgres.Table,
			MaxConns:        cfg.Postgres.MaxConns,
			MaxConnLifetime: cfg.Postgres.MaxConnLifetime,
		})
		if err != nil {
			return nil, err
		}
		a.onClose(func() error { store.Close(); return nil })
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return store, nil
	case "redis":
		a.logger.Info("using redis index", zap.String("key", cfg.Redis.Key))
		client, err := redis.NewClient(ctx, redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		a.onClose(client.Close)
		return redis.NewIndexStore(client, cfg.Redis.Key, a.logger.Named("redis"))
	case "memory":
		a.logger.Info("using in-memory index; rows are lost on exit")
		return memstore.NewIndexStore(), nil
	default:
		return nil, fmt.Errorf("unknown index provider: %s", cfg.Provider)
	}
}

func (a *App) buildBlobs(ctx context.Context, googleOpts []option.ClientOption) (harvest.BlobStore, error) {
	cfg := a.cfg.Blob
	switch cfg.Provider {
	case "drive":
		a.logger.Info("using drive blob store", zap.String("folder_id", cfg.Drive.FolderID))
		return drive.New(ctx, drive.Config{FolderID: cfg.Drive.FolderID}, googleOpts...)
	case "gcs":
		a.logger.Info("using gcs blob store", zap.String("bucket", cfg.GCS.Bucket))
		client, err := gcstorage.NewClient(ctx, googleOpts...)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		a.onClose(client.Close)
		return gcs.New(client, gcs.Config{Bucket: cfg.GCS.Bucket, Prefix: cfg.GCS.Prefix})
	case "local":
		a.logger.Info("using local blob store", zap.String("base_dir", cfg.Local.BaseDir))
		return local.New(local.Config{BaseDir: cfg.Local.BaseDir})
	case "memory":
		a.logger.Info("using in-memory blob store; artifacts are lost on exit")
		return memstore.NewBlobStore(), nil
	default:
		return nil, fmt.Errorf("unknown blob provider: %s", cfg.Provider)
	}
}

func (a *App) buildPublisher(ctx context.Context, googleOpts []option.ClientOption) (harvest.Publisher, error) {
	cfg := a.cfg.Publisher
	if cfg.Topic == "" {
		return nil, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID, googleOpts...)
	if err != nil {
		return nil, err
	}
	pub := pubsub.New(client, map[string]string{"source": "jobpost-harvester"})
	a.onClose(pub.Close)
	return pub, nil
}

// Harvester returns the wired harvester.
func (a *App) Harvester() *harvest.Harvester {
	return a.harvester
}

// Index returns the configured index store.
func (a *App) Index() harvest.IndexStore {
	return a.index
}

// Blobs returns the configured blob store.
func (a *App) Blobs() harvest.BlobStore {
	return a.blobs
}

// Run performs one harvest and pushes run metrics when a Pushgateway is set.
func (a *App) Run(ctx context.Context) (harvest.Summary, error) {
	summary, err := a.harvester.Run(ctx)
	if url := a.cfg.Metrics.PushgatewayURL; url != "" {
		if pushErr := metrics.Push(ctx, url, a.cfg.Metrics.Job); pushErr != nil {
			a.logger.Warn("push metrics failed", zap.String("url", url), zap.Error(pushErr))
		}
	}
	return summary, err
}

// Close releases backends in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("error closing backends", zap.Error(err))
		return err
	}
	return nil
}
