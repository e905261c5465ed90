// Package app builds and runs the long-lived services of the bot.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/archivebot/internal/api"
	"github.com/JakeFAU/archivebot/internal/chatbot"
	"github.com/JakeFAU/archivebot/internal/clock/system"
	"github.com/JakeFAU/archivebot/internal/config"
	"github.com/JakeFAU/archivebot/internal/id/uuid"
	"github.com/JakeFAU/archivebot/internal/irc"
	"github.com/JakeFAU/archivebot/internal/progress"
	progresssinks "github.com/JakeFAU/archivebot/internal/progress/sinks"
	"github.com/JakeFAU/archivebot/internal/publisher"
	memorypublisher "github.com/JakeFAU/archivebot/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/archivebot/internal/publisher/pubsub"
	"github.com/JakeFAU/archivebot/internal/scheduler"
	"github.com/JakeFAU/archivebot/internal/storage"
	gcsstorage "github.com/JakeFAU/archivebot/internal/storage/gcs"
	localstorage "github.com/JakeFAU/archivebot/internal/storage/local"
	"github.com/JakeFAU/archivebot/internal/storage/memory"
	"github.com/JakeFAU/archivebot/internal/telemetry"
	"github.com/JakeFAU/archivebot/internal/worker"
)

const shutdownTimeout = 30 * time.Second

// Option customizes Build.
type Option func(*options)

type options struct {
	registerer prometheus.Registerer
	dial       irc.DialFunc
	publisher  publisher.Publisher
}

// WithRegisterer registers progress collectors on reg instead of the default registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithDialer replaces the IRC dialer.
func WithDialer(dial irc.DialFunc) Option {
	return func(o *options) { o.dial = dial }
}

// WithPublisher replaces the notification publisher.
func WithPublisher(pub publisher.Publisher) Option {
	return func(o *options) { o.publisher = pub }
}

// App holds every service of a running bot.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	registry   *memory.Registry
	hub        *progress.Hub
	publisher  publisher.Publisher
	pubsub     *gcppublisher.Publisher
	gcs        *gcsstorage.BlobStore
	scheduler  *scheduler.Scheduler
	session    *irc.Session
	bot        *chatbot.Bot
	httpServer *http.Server

	tracerShutdown func(context.Context) error
}

// Build wires the services described by cfg. Nothing connects or listens
// until Run.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{cfg: cfg, logger: logger}
	logger.Info("building application",
		zap.String("irc_host", cfg.IRC.Host),
		zap.Strings("channels", cfg.IRC.Channels),
		zap.Int("max_concurrent", cfg.Worker.MaxConcurrent),
	)

	if cfg.Tracing.Enabled {
		tp, err := telemetry.InitTracerProvider(ctx, cfg.Tracing.ServiceName)
		if err != nil {
			return nil, fmt.Errorf("tracer init failed: %w", err)
		}
		a.tracerShutdown = tp.Shutdown
	}

	if err := a.setupPublisher(ctx, o.publisher); err != nil {
		return nil, err
	}
	uploads, err := a.setupUpload(ctx)
	if err != nil {
		return nil, err
	}
	if err := a.setupProgress(o.registerer, uploads); err != nil {
		return nil, err
	}

	clock := system.New()
	a.registry = memory.NewRegistry()
	supervisor := worker.NewSupervisor(
		worker.Config{
			Command: cfg.Worker.Command,
			TempDir: cfg.Worker.TempDir,
			DestDir: cfg.Worker.DestDir,
		},
		a.registry,
		clock,
		a.hub,
		logger.Named("worker"),
	)
	a.scheduler = scheduler.New(
		scheduler.Config{MaxConcurrent: cfg.Worker.MaxConcurrent},
		a.registry,
		supervisor,
		uuid.New(),
		clock,
		a.hub,
		logger.Named("scheduler"),
	)

	a.session = irc.New(irc.Config{
		Host:           cfg.IRC.Host,
		Port:           cfg.IRC.Port,
		TLS:            cfg.IRC.TLS,
		Nick:           cfg.IRC.Nick,
		RealName:       cfg.IRC.RealName,
		Channels:       cfg.IRC.Channels,
		ReconnectDelay: cfg.IRC.ReconnectDelay,
		DialTimeout:    cfg.IRC.DialTimeout,
		SendRate:       cfg.IRC.SendRate,
		SendBurst:      cfg.IRC.SendBurst,
	}, logger.Named("irc"))
	if o.dial != nil {
		a.session.WithDialer(o.dial)
	}
	a.bot = chatbot.New(a.session, a.scheduler, logger.Named("bot"))

	if cfg.HTTP.Enabled {
		apiServer := api.NewServer(a.scheduler, a.session.Connected, logger.Named("api"))
		a.httpServer = &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           apiServer.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	return a, nil
}

func (a *App) setupPublisher(ctx context.Context, override publisher.Publisher) error {
	switch {
	case override != nil:
		a.publisher = override
	case a.cfg.Notify.Enabled():
		pub, err := gcppublisher.New(ctx, a.cfg.Notify.ProjectID, a.cfg.Notify.Topic)
		if err != nil {
			return fmt.Errorf("pubsub publisher init failed: %w", err)
		}
		a.pubsub = pub
		a.publisher = pub
		a.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", a.cfg.Notify.ProjectID),
			zap.String("topic", a.cfg.Notify.Topic),
		)
	default:
		a.logger.Info("no Pub/Sub topic configured, using in-memory publisher")
		a.publisher = memorypublisher.New()
	}
	return nil
}

func (a *App) setupUpload(ctx context.Context) (storage.BlobStore, error) {
	switch a.cfg.Upload.Backend {
	case config.UploadGCS:
		store, err := gcsstorage.New(ctx, gcsstorage.Config{Bucket: a.cfg.Upload.Bucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.gcs = store
		a.logger.Info("shipping archives to GCS", zap.String("bucket", a.cfg.Upload.Bucket))
		return store, nil
	case config.UploadLocal:
		store, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Upload.Dir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Info("shipping archives to local directory", zap.String("dir", a.cfg.Upload.Dir))
		return store, nil
	default:
		return nil, nil
	}
}

func (a *App) setupProgress(reg prometheus.Registerer, uploads storage.BlobStore) error {
	promSink, err := progresssinks.NewPrometheusSink(reg)
	if err != nil {
		return fmt.Errorf("progress prometheus sink init failed: %w", err)
	}
	sinkList := []progress.Sink{
		progresssinks.NewLogSink(a.logger.Named("jobs")),
		promSink,
		progresssinks.NewNotifySink(a.publisher, a.logger.Named("notify")),
	}
	if uploads != nil {
		shipper := storage.NewShipper(uploads, a.cfg.Worker.DestDir, a.cfg.Upload.Prefix, a.logger.Named("upload"))
		sinkList = append(sinkList, progresssinks.NewUploadSink(shipper, a.logger.Named("upload")))
	}
	a.hub = progress.NewHub(progress.Config{Logger: a.logger.Named("progress")}, sinkList...)
	return nil
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Scheduler exposes the job scheduler.
func (a *App) Scheduler() *scheduler.Scheduler {
	return a.scheduler
}

// Session exposes the IRC session.
func (a *App) Session() *irc.Session {
	return a.session
}

// Run serves IRC and HTTP until ctx ends or a service fails, then aborts
// every active job and waits for the workers to exit.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.session.Run(gctx, a.bot)
	})

	if a.httpServer != nil {
		g.Go(func() error {
			a.logger.Info("http server started", zap.String("addr", a.httpServer.Addr))
			if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if a.httpServer != nil {
			if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
				a.logger.Warn("http server shutdown error", zap.Error(err))
			}
		}
		if err := a.scheduler.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("scheduler shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// Close drains progress events and releases clients. It is safe to call
// after Run returned or without Run.
func (a *App) Close(ctx context.Context) error {
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.gcs != nil {
		if err := a.gcs.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.pubsub != nil {
		if err := a.pubsub.Close(); err != nil {
			a.logger.Warn("pubsub publisher close failed", zap.Error(err))
		}
	}
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	a.logger.Info("shutdown complete")
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	return nil
}
