package main

import (
	"context"
	"log"

	"go.opentelemetry.io/otel"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/rl1809/stock-ledger/internal/adapter/eventsink"
	"github.com/rl1809/stock-ledger/internal/adapter/storage"
	temporalAdapter "github.com/rl1809/stock-ledger/internal/adapter/temporal"
	"github.com/rl1809/stock-ledger/internal/config"
	"github.com/rl1809/stock-ledger/internal/core/service"
	"github.com/rl1809/stock-ledger/internal/platform/observability"
	"github.com/rl1809/stock-ledger/internal/port"
)

const component = "worker"

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	otelShutdown, err := observability.SetupOTelSDK(ctx, cfg, component)
	if err != nil {
		log.Fatalf("failed to setup OpenTelemetry: %v", err)
	}
	defer otelShutdown(context.Background())

	logger := observability.NewLogger(cfg, component)
	defer logger.Sync()

	// 1. Connect store
	repo, closeStore, err := storage.Open(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to open store", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	defer closeStore()

	// 2. Connect Temporal
	temporalClient, err := client.Dial(client.Options{
		HostPort: cfg.TemporalHost,
	})
	if err != nil {
		logger.Fatal("unable to create temporal client", zap.Error(err))
	}
	defer temporalClient.Close()

	// 3. Setup activities
	var sink port.EventSink = eventsink.NewLogSink(logger)
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := eventsink.NewKafkaProducer(cfg.KafkaBrokers, cfg.EventTopic, config.ServiceName+"-"+component, otel.GetTracerProvider())
		if err != nil {
			logger.Fatal("failed to create kafka producer", zap.Error(err))
		}
		kafkaSink := eventsink.NewKafkaSink(producer)
		defer kafkaSink.Close()
		sink = kafkaSink
	}

	ledger := service.NewLedgerService(repo, sink, logger, service.WithMaxRetries(cfg.MaxRetries))
	activities := temporalAdapter.NewLedgerActivities(ledger)

	// 4. Start worker
	w := worker.New(temporalClient, cfg.TemporalTaskQueue, worker.Options{})
	w.RegisterActivity(activities.ReserveStock)
	w.RegisterActivity(activities.ReleaseStock)
	w.RegisterActivity(activities.CommitStock)
	w.RegisterActivity(activities.SnapshotStock)

	logger.Info("ledger worker started", zap.String("task_queue", cfg.TemporalTaskQueue))
	if err := w.Run(worker.InterruptCh()); err != nil {
		logger.Fatal("unable to start worker", zap.Error(err))
	}
}
