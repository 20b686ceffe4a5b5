// Package app wires configuration into the long-lived services used by the
// CLI commands.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/msnabiel/privacy-policy/internal/config"
	"github.com/msnabiel/privacy-policy/internal/dispatcher"
	"github.com/msnabiel/privacy-policy/internal/extractor"
	collyfetcher "github.com/msnabiel/privacy-policy/internal/fetcher/colly"
	"github.com/msnabiel/privacy-policy/internal/metrics"
	"github.com/msnabiel/privacy-policy/internal/output"
	"github.com/msnabiel/privacy-policy/internal/policy/ratelimit"
	"github.com/msnabiel/privacy-policy/internal/progress"
	"github.com/msnabiel/privacy-policy/internal/progress/sinks"
	"github.com/msnabiel/privacy-policy/internal/publisher/pubsub"
	"github.com/msnabiel/privacy-policy/internal/resolver"
	"github.com/msnabiel/privacy-policy/internal/scraper"
	"github.com/msnabiel/privacy-policy/internal/storage/gcs"
	"github.com/msnabiel/privacy-policy/internal/storage/local"
	"github.com/msnabiel/privacy-policy/internal/storage/memory"
	"github.com/msnabiel/privacy-policy/internal/storage/postgres"
	"github.com/msnabiel/privacy-policy/internal/storage/sqlite"
	"github.com/msnabiel/privacy-policy/internal/worker"
)

// Option overrides a service App would otherwise build from config.
type Option func(*options)

type options struct {
	fetcher   scraper.Fetcher
	blobs     scraper.BlobStore
	results   scraper.ResultStore
	publisher scraper.Publisher
	clock     scraper.Clock
	ids       scraper.IDGenerator
}

// WithFetcher replaces the colly fetcher.
func WithFetcher(f scraper.Fetcher) Option { return func(o *options) { o.fetcher = f } }

// WithBlobStore replaces the configured storage backend.
func WithBlobStore(b scraper.BlobStore) Option { return func(o *options) { o.blobs = b } }

// WithResultStore replaces the configured results backend.
func WithResultStore(s scraper.ResultStore) Option { return func(o *options) { o.results = s } }

// WithPublisher replaces the Pub/Sub publisher. The sink is only added when
// pubsub.topic is set.
func WithPublisher(p scraper.Publisher) Option { return func(o *options) { o.publisher = p } }

// WithClock fixes the clock used for timestamps.
func WithClock(c scraper.Clock) Option { return func(o *options) { o.clock = c } }

// WithIDGenerator fixes run IDs.
func WithIDGenerator(g scraper.IDGenerator) Option { return func(o *options) { o.ids = g } }

// App holds the services shared by the scrape, resolve and extract commands.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	resolver   *resolver.Resolver
	extractor  *extractor.Extractor
	dispatcher *dispatcher.Dispatcher
	hub        *progress.Hub
	registry   *prometheus.Registry
	closers    []func() error
	ran        bool
}

// New builds every service described by cfg. Backends that need a network
// connection are opened here so misconfiguration fails before any site is
// fetched.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	if err := a.build(ctx, o); err != nil {
		return nil, errors.Join(err, a.hub.Close(ctx), a.closeAll())
	}
	return a, nil
}

func (a *App) build(ctx context.Context, o options) error {
	cfg := a.cfg
	fetcher := o.fetcher
	if fetcher == nil {
		limiter := ratelimit.New(ratelimit.Config{
			DefaultRPS:   cfg.HTTP.RequestsPerSecond,
			DefaultBurst: cfg.HTTP.Burst,
		})
		fetcher = collyfetcher.New(collyfetcher.Config{
			UserAgent:   cfg.HTTP.UserAgent,
			Headers:     headers(cfg.HTTP.Headers),
			GetTimeout:  cfg.HTTP.GetTimeout,
			HeadTimeout: cfg.HTTP.HeadTimeout,
			MaxBodySize: cfg.HTTP.MaxBodyBytes,
		}, collyfetcher.WithLimiter(limiter), collyfetcher.WithLogger(a.logger))
	}

	var err error
	a.resolver, err = resolver.New(fetcher, resolver.Config{
		Patterns:      cfg.Resolver.Patterns,
		FallbackPaths: cfg.Resolver.FallbackPaths,
		GetTimeout:    cfg.HTTP.GetTimeout,
		HeadTimeout:   cfg.HTTP.HeadTimeout,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("init resolver: %w", err)
	}
	a.extractor, err = extractor.New(fetcher, extractor.Config{
		StripTags:        cfg.Extractor.StripTags,
		ContentSelectors: cfg.Extractor.ContentSelectors,
		FallbackTags:     cfg.Extractor.FallbackTags,
		MaxLength:        cfg.Extractor.MaxLength,
		GetTimeout:       cfg.HTTP.GetTimeout,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("init extractor: %w", err)
	}

	promSink, err := sinks.NewPrometheusSink(a.registry)
	if err != nil {
		return fmt.Errorf("init progress metrics: %w", err)
	}
	progressSinks := []progress.Sink{promSink}
	if cfg.Progress.LogEvents {
		progressSinks = append(progressSinks, sinks.NewLogSink(a.logger))
	}
	a.hub = progress.NewHub(progress.Config{
		BufferSize:     cfg.Progress.BufferSize,
		MaxBatchEvents: cfg.Progress.MaxBatchEvents,
		MaxBatchWait:   cfg.Progress.MaxBatchWait,
		Logger:         a.logger,
	}, progressSinks...)

	workerCfg := worker.Config{
		DelayMin:      cfg.Scraper.DelayMin,
		DelayMax:      cfg.Scraper.DelayMax,
		MinTextLength: cfg.Scraper.MinTextLength,
	}
	workers := make([]*worker.Worker, 0, cfg.Scraper.Concurrency)
	for i := range cfg.Scraper.Concurrency {
		workers = append(workers, worker.New(
			a.resolver,
			a.extractor,
			o.clock,
			a.hub,
			workerCfg,
			a.logger.With(zap.Int("worker", i)),
		))
	}

	sink, err := a.buildSink(ctx, o)
	if err != nil {
		return err
	}
	a.dispatcher = dispatcher.New(workers, sink, o.ids, o.clock, a.hub, a.logger)
	return nil
}

func (a *App) buildSink(ctx context.Context, o options) (scraper.ResultSink, error) {
	cfg := a.cfg

	blobs := o.blobs
	if blobs == nil {
		var err error
		if blobs, err = a.openBlobStore(ctx); err != nil {
			return nil, err
		}
	}
	csvSink, err := output.NewCSVSink(blobs, output.CSVConfig{
		Prefix:    cfg.Output.Prefix,
		Timestamp: cfg.Output.Timestamp,
	}, a.logger)
	if err != nil {
		return nil, err
	}
	all := []scraper.ResultSink{csvSink}

	results := o.results
	if results == nil && cfg.Results.Backend != "" {
		if results, err = a.openResultStore(ctx); err != nil {
			return nil, err
		}
	}
	if results != nil {
		storeSink, err := output.NewStoreSink(results)
		if err != nil {
			return nil, err
		}
		all = append(all, storeSink)
	}

	if cfg.PubSub.Topic != "" {
		pub := o.publisher
		if pub == nil {
			p, err := pubsub.Open(ctx, cfg.PubSub.ProjectID)
			if err != nil {
				return nil, fmt.Errorf("init pubsub: %w", err)
			}
			a.closers = append(a.closers, p.Close)
			pub = p
		}
		notify, err := output.NewNotifySink(pub, cfg.PubSub.Topic, a.logger)
		if err != nil {
			return nil, err
		}
		all = append(all, notify)
	}
	return output.Multi(all...), nil
}

func (a *App) openBlobStore(ctx context.Context) (scraper.BlobStore, error) {
	cfg := a.cfg
	switch cfg.Storage.Backend {
	case "gcs":
		a.logger.Info("using gcs storage", zap.String("bucket", cfg.Storage.GCSBucket))
		store, err := gcs.Open(ctx, gcs.Config{Bucket: cfg.Storage.GCSBucket, Prefix: cfg.Storage.Prefix})
		if err != nil {
			return nil, fmt.Errorf("init gcs storage: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	case "memory":
		return memory.NewBlobStore(), nil
	default:
		store, err := local.New(local.Config{BaseDir: cfg.Output.Dir})
		if err != nil {
			return nil, fmt.Errorf("init local storage: %w", err)
		}
		return store, nil
	}
}

func (a *App) openResultStore(ctx context.Context) (scraper.ResultStore, error) {
	cfg := a.cfg.Results
	switch cfg.Backend {
	case "postgres":
		store, err := postgres.New(ctx, postgres.Config{
			DSN:       cfg.DSN,
			Table:     cfg.Table,
			MaxConns:  cfg.MaxConns,
			BatchSize: cfg.BatchSize,
		})
		if err != nil {
			return nil, fmt.Errorf("init postgres results: %w", err)
		}
		a.closers = append(a.closers, func() error { store.Close(); return nil })
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("init postgres results: %w", err)
		}
		return store, nil
	case "sqlite":
		store, err := sqlite.Open(ctx, cfg.SQLitePath, cfg.Table)
		if err != nil {
			return nil, fmt.Errorf("init sqlite results: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	default:
		return nil, fmt.Errorf("unknown results backend %q", cfg.Backend)
	}
}

// Logger returns the root logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Scrape runs the full pipeline over sites and writes the outputs.
func (a *App) Scrape(ctx context.Context, sites []string) (scraper.RunReport, error) {
	if len(sites) == 0 {
		return scraper.RunReport{}, errors.New("no sites to scrape")
	}
	a.ran = true
	report, err := a.dispatcher.RunAll(ctx, sites)
	if err != nil {
		return report, fmt.Errorf("run sites: %w", err)
	}
	return report, nil
}

// Resolve finds the policy URL of a single site.
func (a *App) Resolve(ctx context.Context, site string) (string, error) {
	return a.resolver.Resolve(ctx, site)
}

// Extract returns the cleaned text of a single policy page.
func (a *App) Extract(ctx context.Context, url string) (string, error) {
	return a.extractor.Extract(ctx, url)
}

// Close flushes progress events, writes the metrics textfile after a scrape
// when configured, and releases backends.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.hub.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if a.ran && a.cfg.Metrics.Textfile != "" {
		if err := metrics.WriteTextfile(a.cfg.Metrics.Textfile, a.registry); err != nil {
			errs = append(errs, err)
		} else {
			a.logger.Info("metrics written", zap.String("path", a.cfg.Metrics.Textfile))
		}
	}
	errs = append(errs, a.closeAll())
	return errors.Join(errs...)
}

func (a *App) closeAll() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// headers returns nil for an empty map so the fetcher keeps its defaults.
func headers(h map[string]string) map[string]string {
	if len(h) == 0 {
		return nil
	}
	return h
}
