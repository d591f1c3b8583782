// Package main запускает HTTP-сервер сервиса обработки заказов.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/retail-orders/internal/blobstore"
	"github.com/mmeshcher/retail-orders/internal/config"
	"github.com/mmeshcher/retail-orders/internal/handler"
	"github.com/mmeshcher/retail-orders/internal/model"
	"github.com/mmeshcher/retail-orders/internal/notify"
	"github.com/mmeshcher/retail-orders/internal/repository"
	"github.com/mmeshcher/retail-orders/internal/service"
)

const dedupeTTL = 24 * time.Hour

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := openRepository(cfg)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	blobs, err := blobstore.Open(ctx, cfg.BlobBucketURL, logger)
	if err != nil {
		sugar.Fatalw("blob storage initialization error", "error", err.Error())
	}
	defer blobs.Close()

	var publisher notify.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		publisher = notify.NewKafkaPublisher(cfg.KafkaBrokers)
	} else {
		sugar.Info("kafka brokers not configured, notifications are logged only")
		publisher = notify.NewLogPublisher(logger)
	}
	defer publisher.Close()

	dispatcher := notify.NewDispatcher(publisher, logger, cfg.NotifyBuffer)

	svc := service.NewService(repo, dispatcher, blobs, logger, service.Options{
		OrderChannel:  cfg.OrderQueue,
		StockChannel:  cfg.StockQueue,
		InitialStatus: model.OrderStatus(cfg.InitialStatus),
	})
	defer svc.Close()

	h := handler.NewHandler(svc, logger)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	// Отправка уведомлений из буфера. Диспетчер останавливается только после
	// завершения HTTP-сервера, чтобы обработчики в полёте успели поставить уведомления.
	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	defer stopDispatch()
	g.Go(func() error {
		return dispatcher.Run(dispatchCtx)
	})

	// Обработчики очередей уведомлений
	if len(cfg.KafkaBrokers) > 0 {
		dedupe, closeDedupe := openDeduper(cfg, sugar)
		defer closeDedupe()

		for _, channel := range []string{cfg.OrderQueue, cfg.StockQueue} {
			consumer := notify.NewConsumer(cfg.KafkaBrokers, channel, cfg.ConsumerGroup, dedupe, logger)
			g.Go(func() error {
				return consumer.Run(ctx)
			})
		}
	}

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting retail orders server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		defer stopDispatch()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}

func openRepository(cfg *config.Config) (service.Repository, error) {
	if cfg.DatabaseURI == "" {
		return repository.NewMemoryRepository(), nil
	}
	return repository.NewPostgresRepository(cfg.DatabaseURI, cfg.StoreRetryAttempts)
}

func openDeduper(cfg *config.Config, sugar *zap.SugaredLogger) (notify.Deduper, func()) {
	if cfg.RedisAddr == "" {
		sugar.Info("redis not configured, duplicate tracking is in-process")
		return notify.NewMemoryDeduper(dedupeTTL), func() {}
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	return notify.NewRedisDeduper(rdb, dedupeTTL), func() {
		if err := rdb.Close(); err != nil {
			sugar.Warnw("redis close error", "error", err)
		}
	}
}
