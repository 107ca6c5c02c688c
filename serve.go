package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/Zhima-Mochi/foodorder-pipeline/internal/application/lifecycle"
	appOrder "github.com/Zhima-Mochi/foodorder-pipeline/internal/application/order"
	appPayment "github.com/Zhima-Mochi/foodorder-pipeline/internal/application/payment"
	"github.com/Zhima-Mochi/foodorder-pipeline/internal/application/webhook"
	"github.com/Zhima-Mochi/foodorder-pipeline/internal/config"
	domexchange "github.com/Zhima-Mochi/foodorder-pipeline/internal/domain/exchange"
	domorder "github.com/Zhima-Mochi/foodorder-pipeline/internal/domain/order"
	dompayment "github.com/Zhima-Mochi/foodorder-pipeline/internal/domain/payment"
	"github.com/Zhima-Mochi/foodorder-pipeline/internal/domain/receipt"
	exchangeamqp "github.com/Zhima-Mochi/foodorder-pipeline/internal/infrastructure/exchange/amqp"
	exchangememory "github.com/Zhima-Mochi/foodorder-pipeline/internal/infrastructure/exchange/memory"
	"github.com/Zhima-Mochi/foodorder-pipeline/internal/infrastructure/gateway"
	"github.com/Zhima-Mochi/foodorder-pipeline/internal/infrastructure/id"
	"github.com/Zhima-Mochi/foodorder-pipeline/internal/infrastructure/memory"
	infraobs "github.com/Zhima-Mochi/foodorder-pipeline/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/foodorder-pipeline/internal/infrastructure/observability/oteltrace"
	"github.com/Zhima-Mochi/foodorder-pipeline/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/foodorder-pipeline/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/foodorder-pipeline/internal/infrastructure/postgres"
	"github.com/Zhima-Mochi/foodorder-pipeline/internal/observability"
	httppresentation "github.com/Zhima-Mochi/foodorder-pipeline/internal/presentation/http"
	workerpresentation "github.com/Zhima-Mochi/foodorder-pipeline/internal/presentation/worker"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func serveCmd(load func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the signal retry queue and the receipt sweeper",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

type stores struct {
	orders   domorder.Repository
	payments dompayment.Repository
	receipts receipt.Store
	close    func()
}

func openStores(ctx context.Context, cfg *config.Config) (stores, error) {
	if cfg.Store.Driver != config.DriverPostgres {
		return stores{
			orders:   memory.NewOrderRepository(),
			payments: memory.NewPaymentRepository(),
			receipts: memory.NewReceiptStore(),
			close:    func() {},
		}, nil
	}
	pool, err := postgres.Open(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns)
	if err != nil {
		return stores{}, err
	}
	return stores{
		orders:   postgres.NewOrderRepository(pool),
		payments: postgres.NewPaymentRepository(pool),
		receipts: postgres.NewReceiptStore(pool),
		close:    pool.Close,
	}, nil
}

func openExchange(ctx context.Context, cfg *config.Config, tel observability.Observability) domexchange.Exchange {
	if cfg.Exchange.Driver != config.DriverAMQP {
		return exchangememory.New(cfg.Exchange.Buffer, tel)
	}
	x := exchangeamqp.New(exchangeamqp.Config{
		URL:            cfg.AMQP.URL,
		Exchange:       cfg.Exchange.Name,
		Buffer:         cfg.Exchange.Buffer,
		ReconnectDelay: cfg.AMQP.ReconnectDelay,
		DialTimeout:    cfg.AMQP.DialTimeout,
	}, tel)
	if err := x.Connect(ctx); err != nil {
		tel.Logger().Warn("exchange_connect_deferred", observability.Err(err))
	}
	return x
}

func serve(parent context.Context, cfg *config.Config) error {
	logger, err := zaplogger.New(zaplogger.Options{
		Level: cfg.Log.Level,
		File:  cfg.Log.File,
		Fields: []observability.Field{
			observability.F("service", cfg.Service.Name),
			observability.F("env", cfg.Service.Env),
		},
	})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	systemLogger := logger.With(observability.F("component", "system"))

	shutdownTracing := oteltrace.Setup(sdktrace.WithResource(resource.NewSchemaless(
		attribute.String("service.name", cfg.Service.Name),
	)))
	defer func() { _ = shutdownTracing(context.Background()) }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	counters, histograms := prometrics.Instruments(prometrics.New(reg, "", ""))
	tel := infraobs.New(oteltrace.New(cfg.Service.Name), logger, counters, histograms)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	events := openExchange(ctx, cfg, tel)
	defer func() { _ = events.Close() }()

	engine := lifecycle.NewEngine(st.orders, st.payments, st.receipts, events, tel, lifecycle.Options{
		LockTimeout:     cfg.Lifecycle.LockTimeout,
		ConflictRetries: cfg.Lifecycle.ConflictRetries,
	})
	retries := lifecycle.NewRetryQueue(engine, tel, lifecycle.RetryOptions{
		Attempts:  cfg.Lifecycle.RetryAttempts,
		Backoff:   cfg.Lifecycle.RetryBackoff,
		QueueSize: cfg.Lifecycle.RetryQueueSize,
		Decorate:  workerpresentation.EventContext(logger),
	})
	sweeper := lifecycle.NewReceiptSweeper(st.receipts, tel, cfg.Receipts.TTL, cfg.Receipts.SweepInterval)

	ids := id.NewUUIDGenerator()
	handler := httppresentation.NewHandler(httppresentation.Deps{
		CreateOrder:    appOrder.NewCreateOrderUseCase(st.orders, ids, events, tel),
		GetOrder:       appOrder.NewGetOrderUseCase(st.orders, tel),
		RequestPayment: appPayment.NewRequestPaymentUseCase(st.orders, st.payments, gateway.NewSandbox(cfg.Gateway.PixTTL, logger), ids, events, tel),
		GetPayment:     appPayment.NewGetPaymentUseCase(st.payments, tel),
		CapturePayment: appPayment.NewCapturePaymentUseCase(st.payments, engine, tel),
		RefundPayment:  appPayment.NewRefundPaymentUseCase(st.payments, engine, tel),
		IngestWebhook:  webhook.NewIngestUseCase(engine, retries, events, tel),
		Operator:       engine,
		Events:         events,
		Metrics:        promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}, tel)

	var wg sync.WaitGroup
	for _, loop := range []func(context.Context) error{retries.Run, sweeper.Run} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := loop(ctx); err != nil {
				systemLogger.Error("background_loop_error", observability.Err(err))
			}
		}()
	}

	server := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: handler.Router(),
	}
	// event streams only end when their subscription does
	server.RegisterOnShutdown(func() { _ = events.Close() })
	serveErr := make(chan error, 1)
	go func() {
		systemLogger.Info("http_server_start",
			observability.F("addr", server.Addr),
			observability.F("store", cfg.Store.Driver),
			observability.F("exchange", cfg.Exchange.Driver),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			systemLogger.Error("http_server_error", observability.Err(err))
			stop()
			wg.Wait()
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		systemLogger.Error("http_server_shutdown_error", observability.Err(err))
	} else {
		systemLogger.Info("http_server_stopped")
	}
	stop()
	wg.Wait()
	return nil
}
