package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/rl1809/stock-ledger/internal/adapter/eventsink"
	"github.com/rl1809/stock-ledger/internal/adapter/handler"
	"github.com/rl1809/stock-ledger/internal/adapter/storage"
	"github.com/rl1809/stock-ledger/internal/config"
	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/core/service"
	"github.com/rl1809/stock-ledger/internal/platform/observability"
	"github.com/rl1809/stock-ledger/internal/port"
)

const component = "server"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	otelShutdown, err := observability.SetupOTelSDK(ctx, cfg, component)
	if err != nil {
		log.Fatalf("failed to setup OpenTelemetry: %v", err)
	}

	logger := observability.NewLogger(cfg, component)
	defer logger.Sync()

	// Initialize store
	repo, closeStore, err := storage.Open(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to open store", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	logger.Info("connected to store", zap.String("driver", cfg.StoreDriver))

	// Initialize event delivery
	var downstream port.EventSink = eventsink.NewLogSink(logger)
	var kafkaSink *eventsink.KafkaSink
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := eventsink.NewKafkaProducer(cfg.KafkaBrokers, cfg.EventTopic, config.ServiceName, otel.GetTracerProvider())
		if err != nil {
			logger.Fatal("failed to create kafka producer", zap.Error(err))
		}
		kafkaSink = eventsink.NewKafkaSink(producer)
		downstream = kafkaSink
		logger.Info("publishing stock events to kafka",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.String("topic", cfg.EventTopic),
		)
	}

	dispatcher := eventsink.NewDispatcher(downstream, logger, cfg.DispatchQueueSize, cfg.DispatchWorkers)
	dispatcher.Start()
	logger.Info("started event dispatcher", zap.Int("workers", cfg.DispatchWorkers))

	// Initialize ledger
	ledger := service.NewLedgerService(repo, dispatcher, logger, service.WithMaxRetries(cfg.MaxRetries))
	seedStock(ctx, ledger, cfg.StockSeed, logger)

	// Initialize gRPC server
	grpcServer := grpc.NewServer()
	handler.RegisterLedgerServiceServer(grpcServer, handler.NewGRPCHandler(ledger))

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Fatal("failed to listen", zap.String("addr", cfg.GRPCAddr), zap.Error(err))
	}

	go func() {
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server error", zap.Error(err))
		}
	}()

	// Initialize HTTP server
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: handler.NewRouter(handler.NewHTTPHandler(ledger)),
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown", zap.Error(err))
	}
	logger.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped")

	// Drain queued events before closing the producer
	dispatcher.Close()

	if kafkaSink != nil {
		if err := kafkaSink.Close(); err != nil {
			logger.Error("failed to close kafka producer", zap.Error(err))
		}
	}

	closeStore()
	logger.Info("connections closed")

	if err := otelShutdown(shutdownCtx); err != nil {
		logger.Error("OpenTelemetry shutdown", zap.Error(err))
	}
}

// seedStock creates the configured products. Products that already exist
// keep their current state.
func seedStock(ctx context.Context, ledger *service.LedgerService, seed map[string]int, logger *zap.Logger) {
	for productID, onHand := range seed {
		_, err := ledger.CreateStock(ctx, productID, onHand)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrAlreadyExists):
			logger.Info("stock already present, seed skipped", zap.String("product_id", productID))
		default:
			logger.Fatal("failed to seed stock", zap.String("product_id", productID), zap.Error(err))
		}
	}
}
