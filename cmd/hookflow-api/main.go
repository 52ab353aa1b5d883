// Hookflow API — приём вебхуков и управление workflow.
//
// Сервер:
//   - POST /api/v1/hooks/{name} — запуск workflow по имени хука
//   - CRUD /api/v1/workflows — управление определениями workflow
//   - GET /api/v1/executions — просмотр истории выполнений
//
// Задачи httpTask/gptTask выполняются либо внутри процесса, либо
// удалёнными воркерами через RabbitMQ (HOOKFLOW_DISPATCH_MODE=remote).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Hookflow/internal/api"
	"github.com/shaiso/Hookflow/internal/dispatch"
	"github.com/shaiso/Hookflow/internal/engine"
	"github.com/shaiso/Hookflow/internal/mq"
	"github.com/shaiso/Hookflow/internal/repo"
	"github.com/shaiso/Hookflow/internal/telemetry"
)

var (
	startTime = time.Now()
	reqTotal  = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hookflow_api_http_requests_total",
		Help: "Total HTTP requests handled by hookflow_api",
	})
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting hookflow-api")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Хранилища: Postgres, при недоступности — in-memory fallback
	var workflows api.WorkflowStore
	var executions api.ExecutionStore
	var recorder engine.Recorder

	pool, err := repo.NewPool(ctx)
	if err != nil {
		logger.Warn("database not available, using in-memory stores", "error", err)
		workflows = repo.NewMemoryWorkflowRepo()
		memExec := repo.NewMemoryExecutionRepo()
		executions = memExec
		recorder = memExec
	} else {
		defer pool.Close()
		logger.Info("connected to database")
		workflows = repo.NewWorkflowRepo(pool)
		execRepo := repo.NewExecutionRepo(pool)
		executions = execRepo
		recorder = execRepo
	}

	// Диспетчер задач: in-process по умолчанию, remote через RabbitMQ
	dispatcher, cleanup, err := buildDispatcher(ctx, logger)
	if err != nil {
		logger.Error("failed to build dispatcher", "error", err)
		os.Exit(1)
	}
	if cleanup != nil {
		defer cleanup()
	}

	eng := engine.New(engine.Config{
		Dispatcher: dispatcher,
		Recorder:   recorder,
	})

	handler := api.NewHandler(api.Config{
		Workflows:  workflows,
		Executions: executions,
		Engine:     eng,
		Logger:     logger,
	})

	mux := http.NewServeMux()

	// Health и metrics
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		reqTotal.Inc()
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime))
	})
	mux.Handle("/metrics", promhttp.Handler())

	handler.RegisterRoutes(mux)

	addr := ":8080"
	if v := os.Getenv("API_PORT"); v != "" {
		addr = ":" + v
	}

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("stopped")
}

// buildDispatcher выбирает способ выполнения задач.
//
// HOOKFLOW_DISPATCH_MODE=remote — задачи публикуются в RabbitMQ и выполняются
// воркерами; иначе HTTP/GPT вызовы выполняются внутри процесса.
func buildDispatcher(ctx context.Context, logger *slog.Logger) (engine.Dispatcher, func(), error) {
	if os.Getenv("HOOKFLOW_DISPATCH_MODE") != "remote" {
		return dispatch.NewRegistry(), nil, nil
	}

	mqURL := os.Getenv("RABBITMQ_URL")
	if mqURL == "" {
		mqURL = mq.DefaultURL()
	}

	conn, err := mq.NewConnection(mqURL, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to RabbitMQ: %w", err)
	}

	if err := mq.SetupTopology(ctx, conn); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("setup topology: %w", err)
	}

	publisher := mq.NewPublisher(conn, logger)
	remote := dispatch.NewRemoteDispatcher(publisher, logger)

	consumer := mq.NewConsumer(conn, logger, mq.ConsumerConfig{
		Queue:   string(mq.QueueTasksResults),
		Handler: remote.ResultHandler,
	})
	go func() {
		if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("results consumer error", "error", err)
		}
	}()

	cleanup := func() {
		consumer.Stop()
		conn.Close()
	}
	return remote, cleanup, nil
}
