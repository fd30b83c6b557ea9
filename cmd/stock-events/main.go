package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	otelkafka "github.com/Trendyol/otel-kafka-konsumer"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/rl1809/stock-ledger/internal/adapter/consumer"
	"github.com/rl1809/stock-ledger/internal/adapter/storage"
	"github.com/rl1809/stock-ledger/internal/config"
	"github.com/rl1809/stock-ledger/internal/platform/observability"
)

const component = "stock-events"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if len(cfg.KafkaBrokers) == 0 {
		log.Fatal("KAFKA_BROKERS environment variable is required")
	}

	otelShutdown, err := observability.SetupOTelSDK(ctx, cfg, component)
	if err != nil {
		log.Fatalf("failed to setup OpenTelemetry: %v", err)
	}
	defer otelShutdown(context.Background())

	logger := observability.NewLogger(cfg, component)
	defer logger.Sync()

	// Redis backs duplicate detection
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("failed to connect redis", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}
	defer rdb.Close()

	baseReader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.EventTopic,
		GroupID: cfg.ConsumerGroup,
	})
	reader, err := otelkafka.NewReader(baseReader)
	if err != nil {
		logger.Fatal("failed to create kafka reader", zap.Error(err))
	}

	c := consumer.NewEventConsumer(reader, storage.NewRedisAdapter(rdb), cfg.LowStockThreshold, logger)
	defer c.Close()

	logger.Info("consuming stock events",
		zap.Strings("brokers", cfg.KafkaBrokers),
		zap.String("topic", cfg.EventTopic),
		zap.String("group", cfg.ConsumerGroup),
		zap.Int("low_stock_threshold", cfg.LowStockThreshold),
	)
	if err := c.Run(ctx); err != nil {
		logger.Error("consumer stopped", zap.Error(err))
	}
}
