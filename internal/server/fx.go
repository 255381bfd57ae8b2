// Package server builds the application graph from configuration and owns its
// lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/pwa-discovery/internal/api"
	"github.com/JakeFAU/pwa-discovery/internal/batch"
	"github.com/JakeFAU/pwa-discovery/internal/classifier"
	"github.com/JakeFAU/pwa-discovery/internal/clock/system"
	"github.com/JakeFAU/pwa-discovery/internal/config"
	"github.com/JakeFAU/pwa-discovery/internal/crawler"
	"github.com/JakeFAU/pwa-discovery/internal/extract"
	collyfetcher "github.com/JakeFAU/pwa-discovery/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/pwa-discovery/internal/fetcher/headless"
	"github.com/JakeFAU/pwa-discovery/internal/hash/sha256"
	"github.com/JakeFAU/pwa-discovery/internal/headless/detector"
	"github.com/JakeFAU/pwa-discovery/internal/id/uuid"
	"github.com/JakeFAU/pwa-discovery/internal/logging"
	"github.com/JakeFAU/pwa-discovery/internal/metrics"
	"github.com/JakeFAU/pwa-discovery/internal/pipeline"
	"github.com/JakeFAU/pwa-discovery/internal/policy/ratelimit"
	"github.com/JakeFAU/pwa-discovery/internal/policy/simple"
	"github.com/JakeFAU/pwa-discovery/internal/progress"
	progresssinks "github.com/JakeFAU/pwa-discovery/internal/progress/sinks"
	memorypublisher "github.com/JakeFAU/pwa-discovery/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/pwa-discovery/internal/publisher/pubsub"
	"github.com/JakeFAU/pwa-discovery/internal/sources"
	gcsstorage "github.com/JakeFAU/pwa-discovery/internal/storage/gcs"
	"github.com/JakeFAU/pwa-discovery/internal/storage/jsonfile"
	localstorage "github.com/JakeFAU/pwa-discovery/internal/storage/local"
	memorystorage "github.com/JakeFAU/pwa-discovery/internal/storage/memory"
	"github.com/JakeFAU/pwa-discovery/internal/storage/notion"
	pgstore "github.com/JakeFAU/pwa-discovery/internal/storage/postgres"
	"github.com/JakeFAU/pwa-discovery/internal/store"
)

const shutdownTimeout = 10 * time.Second

// App contains the application's dependencies.
type App struct {
	cfg             *config.Config
	logger          *zap.Logger
	service         *pipeline.Service
	apiServer       *api.Server
	progressHub     *progress.Hub
	browser         *headlessfetcher.Browser
	pubsubClient    *pubsub.Client
	pubsubPublisher *gcppublisher.Publisher
	storage         *storage.Client
	recordStore     store.RecordStore
	runStore        store.RunRepository
}

// NewApp creates a new App with the given configuration.
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	// Only non-sensitive fields; DSNs and tokens stay out of the log.
	logger.Info("creating application",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("store_backend", cfg.Store.Backend),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.String("strategy", cfg.Classifier.Strategy),
	)
	return &App{cfg: cfg, logger: logger}, nil
}

// Service returns the directory operations.
func (a *App) Service() *pipeline.Service {
	return a.service
}

// Logger returns the root logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the loaded configuration.
func (a *App) Config() *config.Config {
	return a.cfg
}

// Handler returns the HTTP API handler.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run serves the HTTP API and blocks until the context is canceled or a
// termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}

// Close flushes progress, stops notifiers and releases every client. It is
// safe to call on a partially built App.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("progress hub: %w", err))
		}
	}
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Close()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("pubsub client: %w", err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("gcs client: %w", err))
		}
	}
	if a.browser != nil {
		a.browser.Close()
	}
	if pg, ok := a.recordStore.(*pgstore.RecordStore); ok {
		pg.Close()
	}
	if pg, ok := a.runStore.(*pgstore.RunStore); ok {
		pg.Close()
	}
	// Sync fails on stdout/stderr for some platforms; not worth reporting.
	_ = a.logger.Sync()
	return errors.Join(errs...)
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (_ *App, err error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	app, err := NewApp(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("app init failed: %w", err)
	}
	defer func() {
		if err != nil {
			_ = app.Close(ctx)
		}
	}()

	blobStore, err := setupStorage(ctx, app)
	if err != nil {
		return nil, err
	}
	if app.recordStore, err = setupRecordStore(ctx, app); err != nil {
		return nil, err
	}
	if app.runStore, err = setupRunStore(ctx, app); err != nil {
		return nil, err
	}
	publisher, err := setupPublisher(ctx, app)
	if err != nil {
		return nil, err
	}
	emitter, err := setupProgress(ctx, app)
	if err != nil {
		return nil, err
	}

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:      cfg.HTTP.UserAgent,
		Accept:         cfg.HTTP.Accept,
		AcceptLanguage: cfg.HTTP.AcceptLanguage,
		Timeout:        cfg.HTTPTimeout(),
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
	})
	extractor := extract.New(cfg.Classifier.Extractor)
	checker, err := setupClassifier(app, fetcher, extractor)
	if err != nil {
		return nil, err
	}

	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.RateLimit.RPS,
		DefaultBurst: cfg.RateLimit.Burst,
	})
	if cfg.RateLimit.RPS > 0 {
		app.logger.Info("rate limiter enabled",
			zap.Float64("rps", cfg.RateLimit.RPS),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
	}

	settings, err := Settings(cfg)
	if err != nil {
		return nil, err
	}
	app.service, err = pipeline.New(pipeline.Deps{
		Checker:   checker,
		Fetcher:   fetcher,
		Extractor: extractor,
		Store:     app.recordStore,
		Sources:   setupSources(app, fetcher),
		Limiter:   limiter,
		Blobs:     blobStore,
		Publisher: publisher,
		Progress:  emitter,
		Clock:     system.New(),
		IDs:       uuid.NewUUIDGenerator(),
		Logger:    logger,
	}, settings)
	if err != nil {
		return nil, fmt.Errorf("pipeline init failed: %w", err)
	}

	app.apiServer = api.NewServer(app.service, app.runStore, system.New(), *cfg, logger.Named("api"))
	return app, nil
}

// Settings maps configuration onto pipeline settings.
func Settings(cfg *config.Config) (pipeline.Settings, error) {
	mode, err := batch.ParseMode(cfg.Batch.Mode)
	if err != nil {
		return pipeline.Settings{}, fmt.Errorf("batch mode: %w", err)
	}
	s := pipeline.DefaultSettings()
	s.Database = cfg.Store.Database
	if cfg.Store.Backend == "postgres" {
		// The postgres store addresses its configured table when no database is named.
		s.Database = ""
	}
	s.Mode = mode
	s.Concurrency = cfg.Batch.Concurrency
	if cfg.Storage.Prefix != "" {
		s.ArchivePrefix = cfg.Storage.Prefix
	}
	s.Discover = pipeline.DiscoverSettings{
		Source:          cfg.Discover.Source,
		Limit:           cfg.Discover.Limit,
		Offset:          cfg.Discover.Offset,
		Concurrency:     cfg.Discover.Concurrency,
		Delay:           config.Millis(cfg.Discover.DelayMs),
		CheckpointEvery: cfg.Discover.CheckpointEvery,
		HistoryPath:     cfg.Discover.HistoryPath,
		Tags:            cfg.Discover.Tags,
		SeenFilterPath:  cfg.Discover.SeenFilterPath,
	}
	s.Crawl = pipeline.CrawlSettings{
		Source:               cfg.Crawl.Source,
		DataPath:             cfg.Crawl.DataPath,
		CandidatesPath:       cfg.Crawl.CandidatesPath,
		Concurrency:          cfg.Crawl.Concurrency,
		Timeout:              time.Duration(cfg.Crawl.TimeoutSeconds) * time.Second,
		RequireServiceWorker: cfg.Crawl.RequireServiceWorker,
	}
	s.Import = pipeline.ImportSettings{
		Concurrency: cfg.Import.Concurrency,
		Delay:       config.Millis(cfg.Import.DelayMs),
		Tags:        cfg.Import.Tags,
	}
	s.Describe = pipeline.DescribeSettings{
		Concurrency: cfg.Describe.Concurrency,
		ItemDelay:   config.Millis(cfg.Describe.ItemDelayMs),
		BatchDelay:  config.Millis(cfg.Describe.BatchDelayMs),
		Timeout:     time.Duration(cfg.Describe.TimeoutSeconds) * time.Second,
	}
	return s, nil
}

func setupStorage(ctx context.Context, app *App) (crawler.BlobStore, error) {
	switch app.cfg.Storage.Backend {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		app.storage = client
		blobStore, err := gcsstorage.New(client, gcsstorage.Config{Bucket: app.cfg.Storage.Bucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		verifyCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := blobStore.VerifyBucket(verifyCtx); err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		app.logger.Info("using GCS archive backend", zap.String("bucket", app.cfg.Storage.Bucket))
		return blobStore, nil
	case "local":
		blobStore, err := localstorage.New(localstorage.Config{BaseDir: app.cfg.Storage.Local.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		app.logger.Info("using local archive backend", zap.String("path", app.cfg.Storage.Local.BaseDir))
		return blobStore, nil
	default:
		app.logger.Info("using in-memory archive backend")
		return memorystorage.NewBlobStore(), nil
	}
}

func setupRecordStore(ctx context.Context, app *App) (store.RecordStore, error) {
	sc := app.cfg.Store
	switch sc.Backend {
	case "postgres":
		rs, err := pgstore.NewRecordStore(ctx, pgstore.PoolConfig{DSN: sc.DSN, MaxConns: sc.MaxConns}, sc.Table)
		if err != nil {
			return nil, fmt.Errorf("record store init failed: %w", err)
		}
		app.logger.Info("using postgres record store", zap.String("table", sc.Table))
		return rs, nil
	case "notion":
		client, err := notion.NewClient(notion.Config{
			BaseURL: sc.Notion.BaseURL,
			Token:   sc.Notion.Token,
			Version: sc.Notion.Version,
			Limiter: ratelimit.New(ratelimit.Config{DefaultRPS: sc.Notion.RPS, DefaultBurst: 1}),
		})
		if err != nil {
			return nil, fmt.Errorf("notion client init failed: %w", err)
		}
		rs, err := notion.NewRecordStore(client, sc.Database)
		if err != nil {
			return nil, fmt.Errorf("record store init failed: %w", err)
		}
		app.logger.Info("using notion record store", zap.String("database", sc.Database))
		return rs, nil
	case "file":
		rs, err := jsonfile.NewRecordStore(sc.File.Path, sha256.NewTruncated(16))
		if err != nil {
			return nil, fmt.Errorf("record store init failed: %w", err)
		}
		app.logger.Info("using JSON file record store", zap.String("path", sc.File.Path))
		return rs, nil
	default:
		app.logger.Warn("using in-memory record store; records are lost on exit")
		return memorystorage.NewRecordStore(), nil
	}
}

func setupRunStore(ctx context.Context, app *App) (store.RunRepository, error) {
	if app.cfg.Database.DSN == "" {
		app.logger.Debug("no database.dsn, tracking runs in memory")
		return memorystorage.NewRunStore(), nil
	}
	runs, err := pgstore.NewRunStore(ctx, pgstore.PoolConfig{DSN: app.cfg.Database.DSN})
	if err != nil {
		return nil, fmt.Errorf("run store init failed: %w", err)
	}
	app.logger.Info("run tracking in postgres")
	return runs, nil
}

func setupPublisher(ctx context.Context, app *App) (crawler.Publisher, error) {
	if app.cfg.PubSub.TopicName == "" || app.cfg.PubSub.ProjectID == "" {
		app.logger.Debug("no Pub/Sub topic configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	client, err := pubsub.NewClient(ctx, app.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	app.pubsubClient = client
	app.pubsubPublisher = gcppublisher.New(client.Topic(app.cfg.PubSub.TopicName))
	app.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", app.cfg.PubSub.ProjectID),
		zap.String("topic", app.cfg.PubSub.TopicName),
	)
	return app.pubsubPublisher, nil
}

func setupProgress(ctx context.Context, app *App) (progress.Emitter, error) {
	pc := app.cfg.Progress
	if !pc.Enabled {
		app.logger.Info("progress tracking disabled")
		return nil, nil
	}
	promSink, err := progresssinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		return nil, fmt.Errorf("progress prometheus sink: %w", err)
	}
	sinkList := []progress.Sink{
		progresssinks.NewStoreSink(app.runStore, app.logger.Named("progress_store")),
		promSink,
	}
	if pc.LogEnabled {
		sinkList = append(sinkList, progresssinks.NewLogSink(app.logger.Named("progress_log")))
	}
	hubCfg := progress.Config{
		BufferSize:     pc.BufferSize,
		MaxBatchEvents: pc.Batch.MaxEvents,
		MaxBatchWait:   config.Millis(pc.Batch.MaxWaitMs),
		SinkTimeout:    config.Millis(pc.SinkTimeoutMs),
		BaseContext:    context.WithoutCancel(ctx),
		Logger:         app.logger.Named("progress_hub"),
	}
	app.progressHub = progress.NewHub(hubCfg, sinkList...)
	app.logger.Debug("progress hub initialized",
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch_events", hubCfg.MaxBatchEvents),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
		zap.Int("sinks", len(sinkList)),
	)
	return app.progressHub, nil
}

func setupClassifier(app *App, fetcher crawler.Fetcher, extractor extract.Extractor) (classifier.Strategy, error) {
	cc := app.cfg.Classifier
	verdict := simple.New(simple.Config{RequireIcons: cc.RequireIcons, RequireDisplay: cc.RequireDisplay})
	static := classifier.NewStatic(fetcher, extractor, verdict, app.logger.Named("static"))

	var rendered *classifier.Rendered
	if app.cfg.Headless.Enabled {
		browser, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       app.cfg.Headless.MaxParallel,
			UserAgent:         app.cfg.HTTP.UserAgent,
			NavigationTimeout: time.Duration(app.cfg.Headless.NavTimeoutSec) * time.Second,
			ServiceWorkerWait: config.Millis(app.cfg.Headless.SWWaitMs),
		})
		var prober headlessfetcher.Prober = browser
		switch {
		case err == nil:
			app.browser = browser
			app.logger.Info("headless browser enabled", zap.Int("max_parallel", app.cfg.Headless.MaxParallel))
		case strings.EqualFold(strings.TrimSpace(cc.Strategy), classifier.NameAuto):
			// Auto keeps the static verdict whenever the rendered pass fails.
			app.logger.Warn("headless browser unavailable; auto strategy will not escalate", zap.Error(err))
			prober = headlessfetcher.NewNoop()
		default:
			return nil, fmt.Errorf("headless browser init failed: %w", err)
		}
		rendered = classifier.NewRendered(prober, fetcher, extractor, verdict, app.logger.Named("rendered"))
	}

	strategy, err := classifier.Select(cc.Strategy, static, rendered,
		detector.NewHeuristic(app.cfg.Headless.PromotionThresh))
	if err != nil {
		return nil, fmt.Errorf("classifier init failed: %w", err)
	}
	app.logger.Info("classifier ready",
		zap.String("strategy", strategy.Name()),
		zap.String("extractor", cc.Extractor),
	)
	return strategy, nil
}

func setupSources(app *App, fetcher crawler.Fetcher) *sources.Aggregator {
	sc := app.cfg.Sources
	tranco := sources.NewTranco(fetcher, sources.TrancoConfig{
		ListPageURL:  sc.Tranco.ListPageURL,
		DownloadBase: sc.Tranco.DownloadBase,
		Fallback:     sc.FallbackDomains,
	}, app.logger.Named("tranco"))
	markdown := sources.NewMarkdown(fetcher, sc.MarkdownURLs, app.logger.Named("markdown"))
	return sources.NewAggregator(tranco, markdown, app.logger.Named("sources"))
}
