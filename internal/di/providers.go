package di

import (
	"context"
	"fmt"
	"time"

	"TrainCtl/internal/domain/repository"
	"TrainCtl/internal/handler/api"
	mid "TrainCtl/internal/middleware"
	internalrepo "TrainCtl/internal/repository"
	"TrainCtl/internal/service/ratelimit"
	"TrainCtl/internal/services/conflict"
	"TrainCtl/internal/services/decision"
	"TrainCtl/internal/topology"
	"TrainCtl/internal/usecase"
	"TrainCtl/pkg/cache"
	pkgch "TrainCtl/pkg/clickhouse"
	"TrainCtl/pkg/config"
	xhttp "TrainCtl/pkg/http"
	pkgkafka "TrainCtl/pkg/kafka"
	"TrainCtl/pkg/logger"
	"TrainCtl/pkg/metrics"
	"TrainCtl/pkg/server"
)

// ProvideLogger builds the application logger. When log collection is on,
// aggregated warnings and errors are shipped to the log topic.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*logger.Logger, error) {
	l, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if cfg.Log.Collect && producer != nil {
		l.AddCollector(&logger.CollectionConfig{
			TimeInterval:   cfg.Log.FlushInterval,
			CountThreshold: cfg.Log.FlushCount,
			Topic:          cfg.Kafka.LogTopic,
			Publisher:      producer,
		})
	}
	return l.With(logger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideTopology loads the track network. A bad topology aborts startup.
func ProvideTopology(cfg *config.Config, l *logger.Logger) (*topology.Topology, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Topology.FetchTimeout+time.Second)
	defer cancel()

	topo, err := topology.Load(ctx, cfg.Topology.Source,
		topology.WithFetchTimeout(cfg.Topology.FetchTimeout),
		topology.WithHTTPClient(xhttp.NewClient(
			xhttp.WithTimeout(cfg.Topology.FetchTimeout),
			xhttp.WithUserAgent("trainctl/1.0"),
		)),
	)
	if err != nil {
		return nil, err
	}
	l.Info("topology loaded",
		logger.String("source", cfg.Topology.Source),
		logger.String("name", topo.Name()),
		logger.Int("segments", len(topo.Segments())),
		logger.Int("waypoints", len(topo.Waypoints())),
	)
	return topo, nil
}

func ProvideStateStore() repository.StateStore {
	return internalrepo.NewMemoryStateStore()
}

func ProvideConflictDetector(topo *topology.Topology, cfg *config.Config) *conflict.Detector {
	return conflict.NewDetector(topo, conflict.Config{
		Horizon: cfg.Engine.Horizon,
		Headway: cfg.Engine.Headway,
		MinGap:  cfg.Engine.MinGap,
		MaxHops: cfg.Engine.MaxHops,
	})
}

// ProvidePriorityTable merges configured ranks over the built-in classes.
func ProvidePriorityTable(cfg *config.Config) decision.PriorityTable {
	table := decision.DefaultPriorityTable()
	for class, rank := range cfg.Engine.Priorities {
		table.Ranks[class] = rank
	}
	for train, class := range cfg.Engine.Trains {
		table.Trains[train] = class
	}
	if cfg.Engine.DefaultPriority != "" {
		table.Default = cfg.Engine.DefaultPriority
	}
	return table
}

func ProvideDecisionEngine(topo *topology.Topology, table decision.PriorityTable, cfg *config.Config) *decision.Engine {
	return decision.NewEngine(topo, table, decision.Config{
		Headway:             cfg.Engine.Headway,
		ReduceSpeedMaxDelay: cfg.Engine.ReduceSpeedMaxDelay,
		MinSpeedKmh:         cfg.Engine.MinSpeedKmh,
		MinImpact:           cfg.Engine.MinImpact,
	})
}

// ProvideClickHouseClient creates a ClickHouse client, or nil when disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithAddr(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideHistory creates the audit store and its table.
func ProvideHistory(client *pkgch.Client, cfg *config.Config) (repository.History, error) {
	if client == nil {
		return nil, nil
	}
	history := internalrepo.NewClickHouseHistory(client, cfg.ClickHouse.Database+".train_history")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, []string{"CREATE DATABASE IF NOT EXISTS " + cfg.ClickHouse.Database}); err != nil {
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	if err := history.Init(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return history, nil
}

// ProvideHistoryPipeline buffers audit writes in front of the history store.
func ProvideHistoryPipeline(history repository.History, m repository.Metrics, cfg *config.Config, l *logger.Logger) *mid.HistoryPipeline {
	if history == nil {
		return nil
	}
	return mid.NewHistoryPipeline(history, m,
		mid.WithMaxRPS(cfg.Pipeline.MaxRPS),
		mid.WithBufferSize(cfg.Pipeline.BufferSize),
		mid.WithBatch(cfg.ClickHouse.BatchSize, cfg.ClickHouse.BatchTimeout),
		mid.WithMaxRetries(cfg.Pipeline.MaxRetries),
		mid.WithPipelineLogger(l),
	)
}

// ProvideKafkaProducer creates a Kafka producer, or nil when disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithAutoCreateTopics(cfg.Kafka.AutoCreate),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

func ProvideDecisionPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.DecisionPublisher {
	if producer == nil {
		return internalrepo.NopDecisionPublisher{}
	}
	return internalrepo.NewKafkaDecisionPublisher(producer, cfg.Kafka.DecisionTopic)
}

// ProvideKafkaConsumer creates the status consumer, or nil when disabled.
func ProvideKafkaConsumer(cfg *config.Config, l *logger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
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
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.NewHookChain(pkgkafka.TraceHook(), pkgkafka.LoggingHook(l)))
	return consumer, nil
}

// ProvideRedisCache connects to Redis, or returns nil when disabled.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Host, cfg.Redis.Port),
		cache.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
		cache.WithRedisPool(20, 4, 3*time.Second),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return rc, nil
}

// ProvideDecisionCache layers an in-process cache over Redis when Redis is
// available.
func ProvideDecisionCache(rc *cache.RedisCache) cache.Service {
	mem := cache.NewMemoryCache(cache.WithMemoryMaxSize(10000), cache.WithMemoryCleanup(time.Minute))
	if rc == nil {
		return mem
	}
	return cache.NewLayeredCache(rc, mem, cache.WithLayeredL1TTL(10*time.Second))
}

func ProvideStateMirror(rc *cache.RedisCache, cfg *config.Config, l *logger.Logger) repository.StateMirror {
	if rc == nil || !cfg.Redis.Mirror {
		return nil
	}
	return internalrepo.NewRedisStateMirror(rc, l)
}

func ProvideBroker() *api.Broker {
	return api.NewBroker()
}

// ProvideTrafficController assembles the facade from whatever optional
// components are enabled.
func ProvideTrafficController(
	topo *topology.Topology,
	store repository.StateStore,
	detector *conflict.Detector,
	engine *decision.Engine,
	mirror repository.StateMirror,
	history repository.History,
	pipeline *mid.HistoryPipeline,
	publisher repository.DecisionPublisher,
	broker *api.Broker,
	decisions cache.Service,
	m repository.Metrics,
	cfg *config.Config,
	l *logger.Logger,
) *usecase.TrafficController {
	opts := []usecase.ControllerOption{
		usecase.WithDecisionPublisher(publisher),
		usecase.WithBroadcaster(broker),
		usecase.WithDecisionCache(decisions, cfg.Redis.DecisionTTL),
		usecase.WithControllerMetrics(m),
		usecase.WithControllerLogger(l),
	}
	if mirror != nil {
		opts = append(opts, usecase.WithStateMirror(mirror))
	}
	if history != nil && pipeline != nil {
		opts = append(opts, usecase.WithHistory(history, pipeline))
	}
	return usecase.NewTrafficController(topo, store, detector, engine, opts...)
}

func ProvideKafkaStatusHandler(ctl *usecase.TrafficController, m repository.Metrics, cfg *config.Config, l *logger.Logger) *usecase.KafkaStatusHandler {
	return usecase.NewKafkaStatusHandler(cfg.Kafka.StatusTopic, ctl, m, l)
}

func ProvideHTTPHandler(l *logger.Logger, ctl *usecase.TrafficController, broker *api.Broker) xhttp.Handler {
	return api.NewTrafficHandler(l, ctl, broker)
}

// ProvideRateLimiter returns nil when rate limiting is off.
func ProvideRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	if !cfg.RateLimit.Enabled {
		return nil
	}
	return ratelimit.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *logger.Logger,
	ctl *usecase.TrafficController,
	handler xhttp.Handler,
	limiter *ratelimit.Limiter,
	pipeline *mid.HistoryPipeline,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaStatusHandler,
	producer *pkgkafka.Producer,
	chClient *pkgch.Client,
	decisions cache.Service,
) *server.App {
	app := server.New(cfg, l, ctl, handler)
	app.SetRateLimiter(limiter)
	app.SetHistoryPipeline(pipeline)
	if consumer != nil {
		app.SetConsumer(consumer, kh)
	}
	app.SetClosers(producer, chClient, decisions)
	return app
}
