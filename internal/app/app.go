// Package app собирает сервис заказов: хранилище, прикладной слой, gRPC и REST,
// фоновые воркеры и HTTP-эндпоинты метрик и проб.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	healthcheck "github.com/vladislavdragonenkov/cardapio/internal/health"
	"github.com/vladislavdragonenkov/cardapio/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/cardapio/internal/metrics"
	grpcsvc "github.com/vladislavdragonenkov/cardapio/internal/service/grpc"
	"github.com/vladislavdragonenkov/cardapio/internal/service/idempotency"
	"github.com/vladislavdragonenkov/cardapio/internal/service/ordering"
	"github.com/vladislavdragonenkov/cardapio/internal/service/outbox"
	"github.com/vladislavdragonenkov/cardapio/internal/transport/httpapi"
	"github.com/vladislavdragonenkov/cardapio/internal/version"
)

// Run запускает сервис и блокируется до отмены ctx или падения одного из серверов.
func Run(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := log.WithField("component", "app")
	logger.WithField("build", version.String()).Info("starting cardapio order service")

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close(logger)

	if cfg.SeedDemo {
		if err := seedDemoCatalog(ctx, deps); err != nil {
			return fmt.Errorf("seed demo catalog: %w", err)
		}
		logger.WithField("restaurant_id", DemoRestaurantID).Info("demo catalog seeded")
	}

	pricePolicy, _ := ordering.ParsePricePolicy(cfg.MergePricePolicy)
	serviceOpts := []ordering.Option{
		ordering.WithLogger(logger.WithField("component", "ordering")),
		ordering.WithMetrics(metrics.NewOrderMetrics()),
		ordering.WithPricePolicy(pricePolicy),
	}
	if cfg.TxRetryAttempts > 1 {
		retry := ordering.DefaultRetryConfig()
		retry.MaxAttempts = cfg.TxRetryAttempts
		serviceOpts = append(serviceOpts, ordering.WithRetry(retry))
	}

	healthHandler := healthcheck.NewHandler(version.Current().Version)
	healthHandler.RegisterChecker("storage", deps.storageChecker)

	cache := initOrderCache(ctx, cfg, logger)
	defer closeOrderCache(cache, logger)
	if cache != nil {
		serviceOpts = append(serviceOpts, ordering.WithCache(cache))
		healthHandler.RegisterOptional("cache", healthcheck.NewPingChecker("cache", cache))
	}

	orderService := ordering.New(deps.transactor, deps.catalog, deps.orders, deps.timelineRepo, serviceOpts...)

	producer := initKafkaProducer(cfg.Brokers(), logger)
	defer closeKafkaProducer(producer, logger)

	workersCtx, stopWorkers := context.WithCancel(ctx)
	var workers []<-chan struct{}
	defer func() { shutdownWorkers(stopWorkers, workers, cfg.ShutdownTimeout, logger) }()

	if producer != nil {
		worker := outbox.NewWorker(
			deps.outboxRepo,
			kafka.NewOutboxPublisher(producer, kafka.TopicOrderEvents),
			outbox.WithDLQPublisher(kafka.NewOutboxPublisher(producer, kafka.TopicDeadLetterQueue)),
			outbox.WithLogger(logger.WithField("component", "outbox-worker")),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
			outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
		)
		workers = append(workers, runWorker(workersCtx, worker.Run))
	}

	cleanup := idempotency.NewCleanupWorker(
		deps.idempotencyRepo,
		idempotency.WithLogger(logger.WithField("component", "idempotency-cleanup")),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
	)
	workers = append(workers, runWorker(workersCtx, cleanup.Run))

	if cache != nil {
		consumer := startCacheInvalidator(workersCtx, cfg, cache, producer, logger)
		defer stopKafkaConsumer(consumer, logger)
	}

	grpcServer, grpcHealth := newGRPCServer(orderService, deps, logger)

	apiSrv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpapi.NewRouter(orderService,
			httpapi.WithLogger(logger.WithField("component", "http-api")),
			httpapi.WithIdempotency(deps.idempotencyRepo),
			httpapi.WithRequestTimeout(cfg.RequestTimeout),
		),
		ReadHeaderTimeout: 5 * time.Second,
	}
	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		shutdownHTTP(metricsSrv, logger)
		return fmt.Errorf("listen grpc: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Infof("gRPC сервер слушает %s", lis.Addr())
		errCh <- grpcServer.Serve(lis)
	}()
	go func() {
		logger.Infof("REST API слушает %s", cfg.HTTPAddr)
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http api: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем серверы")
		runErr = ctx.Err()
	case err := <-errCh:
		if !errors.Is(err, grpc.ErrServerStopped) {
			runErr = err
		}
	}

	grpcHealth.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	stopGRPC(grpcServer, cfg.ShutdownTimeout, logger)
	shutdownHTTP(apiSrv, logger)
	shutdownHTTP(metricsSrv, logger)
	return runErr
}

func newGRPCServer(orderService *ordering.Service, deps *runtimeDependencies, logger *log.Entry) (*grpc.Server, *health.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	server := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()))
	grpcsvc.RegisterOrderServiceServer(server, grpcsvc.NewOrderService(
		orderService,
		deps.idempotencyRepo,
		logger.WithField("component", "grpc-order-service"),
	))
	grpcMetrics.InitializeMetrics(server)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(grpcsvc.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)

	return server, healthServer
}

// stopGRPC дожидается завершения активных RPC, но не дольше timeout.
func stopGRPC(server *grpc.Server, timeout time.Duration, logger *log.Entry) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(timeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		server.Stop()
	}
}

func runWorker(ctx context.Context, run func(context.Context)) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		run(ctx)
	}()
	return done
}

// shutdownWorkers отменяет контекст воркеров и ждёт их завершения.
func shutdownWorkers(cancel context.CancelFunc, done []<-chan struct{}, timeout time.Duration, logger *log.Entry) {
	if cancel != nil {
		cancel()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	deadline := time.After(timeout)
	for _, ch := range done {
		if ch == nil {
			continue
		}
		select {
		case <-ch:
		case <-deadline:
			logger.Warn("background workers did not stop in time")
			return
		}
	}
}

// startMetricsServer запускает HTTP-обработчик /metrics, пробы и /version.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	mux.HandleFunc("/version", version.Handler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).WithField("addr", srv.Addr).Warn("http shutdown with error")
	}
}
