package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	drepo "MarketPulse/internal/domain/repository"
	"MarketPulse/internal/handler/api"
	svccache "MarketPulse/internal/service/cache"
	"MarketPulse/internal/service/fetch"
	"MarketPulse/internal/usecase"
	pkgch "MarketPulse/pkg/clickhouse"
	"MarketPulse/pkg/config"
	xhttp "MarketPulse/pkg/http"
	pkgkafka "MarketPulse/pkg/kafka"
	applogger "MarketPulse/pkg/logger"
)

// App encapsulates the application lifecycle: schema init, cache sweep,
// stream collector, kafka intake, scheduler, and the HTTP surface.
type App struct {
	cfg        *config.Config
	logger     *applogger.Logger
	store      drepo.Store
	respCache  *svccache.ResponseCache
	scheduler  *usecase.Scheduler
	collector  *usecase.TickCollector // nil when the stream is disabled
	consumer   *pkgkafka.Consumer     // nil when candidate intake is disabled
	kh         pkgkafka.MessageHandler
	fetcher    *fetch.Fetcher
	chClient   *pkgch.Client
	producer   *pkgkafka.Producer
	notifier   drepo.Notifier
	ops        *api.OpsHandler
	httpServer *xhttp.Server
}

// logPublisher adapts the Kafka producer to the aggregated-log shipper.
type logPublisher struct {
	producer *pkgkafka.Producer
}

func (lp logPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return lp.producer.Publish(ctx, topic, nil, payload)
}

func New(
	cfg *config.Config,
	logger *applogger.Logger,
	store drepo.Store,
	respCache *svccache.ResponseCache,
	scheduler *usecase.Scheduler,
	collector *usecase.TickCollector,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	fetcher *fetch.Fetcher,
	chClient *pkgch.Client,
	producer *pkgkafka.Producer,
	notifier drepo.Notifier,
	ops *api.OpsHandler,
) *App {
	return &App{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		respCache: respCache,
		scheduler: scheduler,
		collector: collector,
		consumer:  consumer,
		kh:        kh,
		fetcher:   fetcher,
		chClient:  chClient,
		producer:  producer,
		notifier:  notifier,
		ops:       ops,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := a.logger

	if err := a.store.Init(ctx); err != nil {
		return err
	}
	l.Info("store ready", applogger.String("database", a.cfg.ClickHouse.Database))

	if a.cfg.Logging.AggregateTopic != "" {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          a.cfg.Logging.AggregateTopic,
			Publisher:      logPublisher{producer: a.producer},
		})
	}

	a.respCache.Start(ctx)

	if a.collector != nil {
		go func() {
			if err := a.collector.Start(ctx); err != nil {
				l.Error("tick collector error", applogger.Error(err))
			}
		}()
		l.Info("tick collector started", applogger.Strings("symbols", a.cfg.Exchange.Symbols))
	}

	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		go func() {
			if err := a.consumer.Start(); err != nil {
				l.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		l.Info("candidate intake started", applogger.String("topic", a.kh.Topic()))
	}

	if err := a.scheduler.Start(ctx); err != nil {
		return err
	}

	a.httpServer = xhttp.NewServer(a.ops,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithLogger(a.logger),
	)
	if err := a.httpServer.Start(); err != nil {
		l.Error("http server start error", applogger.Error(err))
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	l.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// shutdown stops everything in reverse start order, best effort.
func (a *App) shutdown(ctx context.Context) error {
	l := a.logger

	a.scheduler.Stop()

	if a.collector != nil {
		if err := a.collector.Shutdown(ctx); err != nil {
			l.Warn("tick collector stop error", applogger.Error(err))
		}
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if a.httpServer != nil {
		if err := a.httpServer.Stop(shutdownCtx); err != nil {
			l.Error("http shutdown error", applogger.Error(err))
		}
	}

	a.respCache.Stop()
	a.fetcher.Close()
	a.logger.RemoveCollector()

	if err := a.notifier.Close(); err != nil {
		l.Warn("notifier close error", applogger.Error(err))
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	l.Info("shutdown complete")
	return nil
}
