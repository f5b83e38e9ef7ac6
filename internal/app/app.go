package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"CivicIndex/internal/api"
	"CivicIndex/internal/config"
	"CivicIndex/internal/domain"
	"CivicIndex/internal/infrastructure/archive"
	"CivicIndex/internal/infrastructure/fetcher"
	"CivicIndex/internal/infrastructure/llm"
	"CivicIndex/internal/infrastructure/parser"
	"CivicIndex/internal/infrastructure/storage"
	"CivicIndex/internal/infrastructure/telegram"
	"CivicIndex/internal/logging"
	"CivicIndex/internal/ports"
	"CivicIndex/internal/usecase"
)

const shutdownTimeout = 15 * time.Second

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg        config.Config
	logger     *slog.Logger
	closeStore func(context.Context) error

	crawler   *usecase.Crawler
	uploader  *usecase.Uploader
	records   *usecase.Records
	assistant *usecase.Assistant
}

// SiteReport is the outcome of one configured site crawl.
type SiteReport struct {
	Site   string             `json:"site"`
	URL    string             `json:"url"`
	Report domain.CrawlReport `json:"report"`
	Error  string             `json:"error,omitempty"`
}

// New connects the record store and builds every use case.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	repo, closeStore, err := openStore(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	registry := llm.NewRegistry()
	registry.Register(llm.NewAnthropicClient(cfg.Anthropic, cfg.Extraction.Timeout))
	registry.Register(llm.NewChatGPTClient(cfg.ChatGPT, cfg.Extraction.Timeout))

	strategies, err := registry.Strategies(cfg.Extraction.Providers, 0)
	if err != nil {
		_ = closeStore(ctx)
		return nil, fmt.Errorf("extraction providers: %w", err)
	}
	providers, err := registry.Ordered(cfg.Extraction.Providers)
	if err != nil {
		_ = closeStore(ctx)
		return nil, fmt.Errorf("answer providers: %w", err)
	}

	extractor := llm.NewChain(strategies, cfg.Extraction.MaxInputChars, cfg.Extraction.Timeout, baseLogger.With("component", "extraction"))
	textExtractor := parser.NewTextExtractor()

	httpFetcher := fetcher.New(nil, fetcher.Options{
		UserAgent:         cfg.Crawler.UserAgent,
		RequestsPerSecond: cfg.Crawler.RequestsPerSecond,
		RespectRobots:     cfg.Crawler.RobotsEnabled(),
		MaxPageBytes:      cfg.Crawler.MaxPageBytes,
		MaxDocumentBytes:  cfg.Crawler.MaxDocumentBytes,
		Timeout:           cfg.Crawler.FetchTimeout,
	}, baseLogger.With("component", "fetcher"))

	var notifier ports.Notifier
	tg := cfg.Notifications.Telegram
	if n := telegram.NewNotifier(tg.Endpoint, tg.BotToken, tg.ChatID); n.Configured() {
		notifier = n
	}

	var documentArchive ports.DocumentArchive
	if cfg.Archive.S3Bucket != "" {
		awsCfg, err := archive.LoadAWSConfig(ctx, cfg.Archive.Region)
		if err != nil {
			baseLogger.Warn("document archive disabled", "error", err)
		} else {
			documentArchive = archive.NewS3Archive(awsCfg, cfg.Archive.S3Bucket, cfg.Archive.Prefix)
		}
	}

	return &Application{
		cfg:        cfg,
		logger:     baseLogger,
		closeStore: closeStore,
		crawler: usecase.NewCrawler(usecase.CrawlerDeps{
			Fetcher:           httpFetcher,
			Links:             parser.NewLinkDiscoverer(cfg.Crawler.TargetDomain),
			Text:              textExtractor,
			Inspector:         parser.Inspector{},
			Extractor:         extractor,
			Repository:        repo,
			Notifier:          notifier,
			Logger:            baseLogger.With("component", "crawler"),
			DefaultSource:     cfg.Crawler.DefaultSource,
			NavigationLinkCap: cfg.Crawler.NavigationLinkCap,
			MaxPagesLimit:     cfg.Crawler.MaxPagesLimit,
			FailClosedDedup:   cfg.Dedup.FailClosed,
		}),
		uploader: usecase.NewUploader(usecase.UploaderDeps{
			Text:       textExtractor,
			Extractor:  extractor,
			Repository: repo,
			Archive:    documentArchive,
			Logger:     baseLogger.With("component", "upload"),
			MaxBytes:   cfg.Upload.MaxBytes,
		}),
		records: usecase.NewRecords(repo, nil),
		assistant: usecase.NewAssistant(usecase.AssistantDeps{
			Providers:  providers,
			Repository: repo,
			Logger:     baseLogger.With("component", "assistant"),
			Timeout:    cfg.Extraction.Timeout,
		}),
	}, nil
}

func openStore(ctx context.Context, cfg config.DatabaseConfig) (ports.RecordRepository, func(context.Context) error, error) {
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case storage.DialectPostgres, storage.DialectSQLite:
		db, err := storage.OpenSQL(driver, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		repo := storage.NewSQLRepository(db, driver)
		if err := repo.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return repo, func(context.Context) error { return db.Close() }, nil
	case "mongo", "mongodb":
		coll, err := storage.ConnectMongo(ctx, cfg.DSN, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, err
		}
		repo := storage.NewMongoRepository(coll)
		if err := repo.EnsureIndexes(ctx); err != nil {
			_ = coll.Database().Client().Disconnect(ctx)
			return nil, nil, err
		}
		return repo, func(ctx context.Context) error { return coll.Database().Client().Disconnect(ctx) }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// Handler exposes the HTTP API.
func (a *Application) Handler() http.Handler {
	return api.NewHandler(api.HandlerDeps{
		Crawler:      a.crawler,
		Uploader:     a.uploader,
		Records:      a.records,
		Assistant:    a.assistant,
		Logger:       a.logger.With("component", "api"),
		CrawlTimeout: a.cfg.Server.CrawlTimeout,
	})
}

// Serve runs the HTTP server until ctx is cancelled.
func (a *Application) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:         a.cfg.Server.Addr,
		Handler:      a.Handler(),
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Crawl runs a single crawl of seedURL.
func (a *Application) Crawl(ctx context.Context, seedURL string, opts usecase.CrawlOptions) (domain.CrawlReport, error) {
	return a.crawler.Crawl(ctx, seedURL, opts)
}

// CrawlSites crawls every configured site in order. One failing site does not
// stop the others.
func (a *Application) CrawlSites(ctx context.Context) []SiteReport {
	reports := make([]SiteReport, 0, len(a.cfg.Sites))
	for _, site := range a.cfg.Sites {
		if ctx.Err() != nil {
			break
		}
		opts, err := SiteOptions(site)
		out := SiteReport{Site: site.Name, URL: site.URL}
		if err == nil {
			out.Report, err = a.crawlWithBudget(ctx, site.URL, opts)
		}
		if err != nil {
			a.logger.Warn("site crawl failed", "site", site.Name, "error", err)
			out.Error = err.Error()
		}
		reports = append(reports, out)
	}
	return reports
}

func (a *Application) crawlWithBudget(ctx context.Context, seedURL string, opts usecase.CrawlOptions) (domain.CrawlReport, error) {
	if a.cfg.Server.CrawlTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Server.CrawlTimeout)
		defer cancel()
	}
	return a.crawler.Crawl(ctx, seedURL, opts)
}

// SiteOptions turns a configured site into crawl options.
func SiteOptions(site config.SiteConfig) (usecase.CrawlOptions, error) {
	opts := usecase.CrawlOptions{
		Source:    site.Source,
		ParseHTML: site.ParseHTMLEnabled(),
		Recursive: site.Recursive,
		MaxPages:  site.MaxPages,
	}
	if strings.TrimSpace(site.Category) != "" {
		category, ok := domain.ParseCategory(site.Category)
		if !ok {
			return usecase.CrawlOptions{}, fmt.Errorf("%w: site %s has unknown category %q", domain.ErrValidationFailed, site.Name, site.Category)
		}
		opts.Category = category
	}
	return opts, nil
}

// Close releases the record store.
func (a *Application) Close(ctx context.Context) error {
	if a.closeStore == nil {
		return nil
	}
	return a.closeStore(ctx)
}
