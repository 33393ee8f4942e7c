package di

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/segmentio/kafka-go"

	"MarketPulse/internal/domain/models"
	drepo "MarketPulse/internal/domain/repository"
	"MarketPulse/internal/handler/api"
	mid "MarketPulse/internal/middleware"
	"MarketPulse/internal/provider"
	internalrepo "MarketPulse/internal/repository"
	svccache "MarketPulse/internal/service/cache"
	svcexchange "MarketPulse/internal/service/exchange"
	"MarketPulse/internal/service/fetch"
	"MarketPulse/internal/usecase"
	pkgcache "MarketPulse/pkg/cache"
	pkgch "MarketPulse/pkg/clickhouse"
	"MarketPulse/pkg/config"
	pkgkafka "MarketPulse/pkg/kafka"
	xlogger "MarketPulse/pkg/logger"
	"MarketPulse/pkg/metrics"
	"MarketPulse/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*xlogger.Logger, error) {
	return xlogger.New(&xlogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() drepo.Metrics {
	return metrics.New()
}

// ProvideClock returns the wall clock.
func ProvideClock() drepo.Clock {
	return drepo.SystemClock{}
}

// ProvideClickHouseClient creates a ClickHouse client.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideStore creates the ClickHouse-backed store. Schema init happens in
// the app lifecycle where a context is available.
func ProvideStore(chClient *pkgch.Client) drepo.Store {
	return internalrepo.NewClickHouseStore(chClient.DB())
}

// ProvideKafkaProducer creates a Kafka producer.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideNotifier creates the alerts-topic notifier.
func ProvideNotifier(producer *pkgkafka.Producer, cfg *config.Config) drepo.Notifier {
	return internalrepo.NewKafkaNotifier(producer, cfg.Kafka.AlertsTopic)
}

// ProvideRedisCache creates the Redis client, or nil when Redis is
// disabled; the alert dedup fast path then degrades to store-only.
func ProvideRedisCache(cfg *config.Config) (*pkgcache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	host, portStr, err := net.SplitHostPort(cfg.Redis.Addr)
	if err != nil {
		return nil, fmt.Errorf("redis addr: %w", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("redis port: %w", err)
	}
	return pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(host),
		pkgcache.WithRedisPort(port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
		pkgcache.WithRedisPrefix("marketpulse"),
	)
}

// ProvideDeduper adapts Redis to the alert dedup fast path.
func ProvideDeduper(rc *pkgcache.RedisCache) usecase.Deduper {
	if rc == nil {
		return nil
	}
	return internalrepo.NewRedisDeduper(rc)
}

// ProvideLayeredCache builds the memory+Redis read cache for the API.
func ProvideLayeredCache(rc *pkgcache.RedisCache) *pkgcache.LayeredCache {
	if rc == nil {
		return nil
	}
	return pkgcache.NewLayeredCache(rc)
}

// ProvideFetcher creates the shared rate-limited HTTP fetcher.
func ProvideFetcher(cfg *config.Config, logger *xlogger.Logger, m drepo.Metrics) *fetch.Fetcher {
	specs := make([]models.ProviderSpec, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		specs = append(specs, providerSpec(p))
	}
	return fetch.NewFetcher(specs, logger, m)
}

func providerSpec(p config.ProviderConfig) models.ProviderSpec {
	return models.ProviderSpec{
		ID:          p.ID,
		Group:       p.Group,
		BaseURL:     p.BaseURL,
		APIKey:      p.APIKey,
		Priority:    p.Priority,
		MaxCalls:    p.MaxCalls,
		Window:      p.Window,
		MinInterval: p.MinInterval,
		Timeout:     p.Timeout,
	}
}

// ProvideSources instantiates one provider client per configured entry,
// chosen by provider group.
func ProvideSources(cfg *config.Config, f *fetch.Fetcher) []provider.Source {
	sources := make([]provider.Source, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		spec := providerSpec(p)
		switch p.Group {
		case "market":
			sources = append(sources, provider.NewMarketIndexClient(spec, f))
		case "economic":
			sources = append(sources, provider.NewTreasuryClient(spec, f))
		case "exchange":
			sources = append(sources, provider.NewExchangeClient(spec, f))
		default: // crypto aggregators
			sources = append(sources, provider.NewAggregatorClient(spec, f))
		}
	}
	return sources
}

// ProvideTrendingSource picks the highest-priority crypto aggregator for
// the derived stage. Nil disables trending and SSR derivation.
func ProvideTrendingSource(sources []provider.Source) usecase.TrendingSource {
	var best *provider.AggregatorClient
	for _, s := range sources {
		agg, ok := s.(*provider.AggregatorClient)
		if !ok {
			continue
		}
		if best == nil || agg.Priority() < best.Priority() {
			best = agg
		}
	}
	if best == nil {
		return nil
	}
	return best
}

// ProvideCalendarSource picks the economic-calendar provider. Nil disables
// event alerts.
func ProvideCalendarSource(sources []provider.Source) usecase.CalendarSource {
	for _, s := range sources {
		if t, ok := s.(*provider.TreasuryClient); ok {
			return t
		}
	}
	return nil
}

// ProvideResponseCache creates the TTL response cache.
func ProvideResponseCache(cfg *config.Config, clock drepo.Clock) *svccache.ResponseCache {
	return svccache.NewResponseCache(clock,
		svccache.WithTTLs(cfg.Cache.FastTTL, cfg.Cache.SlowTTL),
		svccache.WithMaxEntries(cfg.Cache.MaxEntries),
		svccache.WithSweepInterval(cfg.Cache.SweepInterval),
	)
}

// ProvideResolver creates the fallback resolver.
func ProvideResolver(sources []provider.Source, cache *svccache.ResponseCache, logger *xlogger.Logger, m drepo.Metrics) *usecase.Resolver {
	return usecase.NewResolver(sources, cache, logger, m)
}

// ProvideCorrelationEngine creates the correlation engine.
func ProvideCorrelationEngine(store drepo.Store, logger *xlogger.Logger, clock drepo.Clock, cfg *config.Config) *usecase.CorrelationEngine {
	return usecase.NewCorrelationEngine(store, logger, clock,
		cfg.Correlation.Lookback, cfg.Correlation.PeriodDays, cfg.Correlation.MinPoints)
}

// ProvideNarrativeClassifier creates the narrative classifier.
func ProvideNarrativeClassifier(clock drepo.Clock, cfg *config.Config) *usecase.NarrativeClassifier {
	return usecase.NewNarrativeClassifier(clock, cfg.Narrative.TopK, cfg.Narrative.Damping)
}

// ProvideAlertEngine creates the dedup alert engine.
func ProvideAlertEngine(store drepo.Store, notifier drepo.Notifier, dedup usecase.Deduper, logger *xlogger.Logger, m drepo.Metrics, clock drepo.Clock, cfg *config.Config) *usecase.AlertEngine {
	return usecase.NewAlertEngine(store, notifier, dedup, logger, m, clock,
		cfg.Alerts.DedupWindow, cfg.Alerts.Retention)
}

// ProvideScheduler creates the collection scheduler.
func ProvideScheduler(
	cfg *config.Config,
	resolver *usecase.Resolver,
	store drepo.Store,
	correlation *usecase.CorrelationEngine,
	narrative *usecase.NarrativeClassifier,
	alerts *usecase.AlertEngine,
	trending usecase.TrendingSource,
	calendar usecase.CalendarSource,
	logger *xlogger.Logger,
	m drepo.Metrics,
	clock drepo.Clock,
) *usecase.Scheduler {
	return usecase.NewScheduler(usecase.SchedulerConfig{
		CoreCron:        cfg.Collection.CoreCron,
		ExtendedCron:    cfg.Collection.ExtendedCron,
		MaintenanceCron: cfg.Alerts.MaintenanceCron,
		CycleDeadline:   cfg.Collection.CycleDeadline,
		GroupLimit:      cfg.Collection.GroupLimit,
		CoreSymbols:     cfg.Collection.CoreSymbols,
		CorrSymbols:     cfg.Correlation.Symbols,
		PriceMovePct:    cfg.Alerts.PriceMovePct,
		SSRLow:          cfg.Alerts.SSRLow,
		SSRHigh:         cfg.Alerts.SSRHigh,
	}, resolver, store, correlation, narrative, alerts, trending, calendar, logger, m, clock)
}

// ProvideExchangeStream creates the exchange WebSocket stream. Nil when no
// stream URL is configured.
func ProvideExchangeStream(cfg *config.Config, logger *xlogger.Logger) drepo.MarketStream {
	if cfg.Exchange.WebSocketURL == "" || len(cfg.Exchange.Symbols) == 0 {
		return nil
	}
	return svcexchange.NewStream(
		cfg.Exchange.WebSocketURL,
		cfg.Exchange.Symbols,
		cfg.Exchange.ReconnectDelay,
		cfg.Exchange.PingInterval,
		logger,
	)
}

// ProvideTickCollector creates the realtime tick path: stream, pipeline,
// batch processor. Nil when the stream is disabled.
func ProvideTickCollector(stream drepo.MarketStream, store drepo.Store, cache *svccache.ResponseCache, m drepo.Metrics) *usecase.TickCollector {
	if stream == nil {
		return nil
	}
	proc := usecase.NewTickProcessor(store, cache, m, 100, 0)
	pipe := mid.NewRealtimePipeline(proc, m,
		mid.WithMaxRPS(50),
		mid.WithBufferSize(2000),
	)
	return usecase.NewTickCollector(stream, proc, m, pipe)
}

// ProvideKafkaConsumer creates a Kafka consumer for external candidates.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	if cfg.Kafka.CandidatesTopic == "" {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideCandidateHandler registers the external candidate intake.
func ProvideCandidateHandler(cfg *config.Config, alerts *usecase.AlertEngine, m drepo.Metrics, clock drepo.Clock) *usecase.CandidateHandler {
	if cfg.Kafka.CandidatesTopic == "" {
		return nil
	}
	return usecase.NewCandidateHandler(cfg.Kafka.CandidatesTopic, alerts, m, clock)
}

// ProvideOpsHandler creates the HTTP read surface.
func ProvideOpsHandler(logger *xlogger.Logger, store drepo.Store, sched *usecase.Scheduler, collector *usecase.TickCollector, lc *pkgcache.LayeredCache) *api.OpsHandler {
	return api.NewOpsHandler(logger, store, sched, collector, lc)
}

// ProvideApp assembles the application.
func ProvideApp(
	cfg *config.Config,
	logger *xlogger.Logger,
	store drepo.Store,
	respCache *svccache.ResponseCache,
	sched *usecase.Scheduler,
	collector *usecase.TickCollector,
	consumer *pkgkafka.Consumer,
	ch *usecase.CandidateHandler,
	fetcher *fetch.Fetcher,
	chClient *pkgch.Client,
	producer *pkgkafka.Producer,
	notifier drepo.Notifier,
	ops *api.OpsHandler,
) *server.App {
	if consumer != nil {
		consumer.WithConsumerHook(pkgkafka.HookFuncs{
			Err: func(ctx context.Context, topic string, km kafka.Message, data []byte, err error) {
				logger.Error("candidate message failed",
					xlogger.String("topic", topic),
					xlogger.Int("partition", km.Partition),
					xlogger.Error(err))
			},
		})
	}
	var kh pkgkafka.MessageHandler
	if ch != nil {
		kh = ch
	}
	return server.New(cfg, logger, store, respCache, sched, collector, consumer, kh, fetcher, chClient, producer, notifier, ops)
}
