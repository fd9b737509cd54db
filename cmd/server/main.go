package main

import (
	"collab-lab/execution"
	"collab-lab/infrastructure/grpc/server"
	"collab-lab/infrastructure/rest"
	"collab-lab/infrastructure/websocket"
	"collab-lab/internal"
	"collab-lab/observability"
	"collab-lab/repositories"
	"collab-lab/runtime"
	"collab-lab/runtime/workers"
	"collab-lab/search"
	"collab-lab/storage"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const shutdownTimeout = 15 * time.Second

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// Every defer runs before the process exits.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return exitConfig, err
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	// 3. Storage: room files on disk, chat history and search in memory only
	roomStorage, err := storage.NewRoomStorage(config.StorageRoot, log)
	if err != nil {
		return exitConfig, fmt.Errorf("storage root: %w", err)
	}
	db, err := repositories.OpenInMemory()
	if err != nil {
		return exitRuntime, fmt.Errorf("history store opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing history store...")
		_ = db.Close()
	}()
	index, err := search.NewMessageIndex(log)
	if err != nil {
		return exitRuntime, fmt.Errorf("search index opening failed: %w", err)
	}
	defer func() { _ = index.Close() }()

	// 4. Execution pipeline, its processes reported to the health worker
	healthWorker := workers.NewHealthMonitoringWorker(log, metrics, config.MetricInterval, config.BufferSize)
	runner := execution.NewProcessRunner(log, config.MaxOutputBytes, healthWorker)
	executor := execution.NewExecutor(log, roomStorage, execution.DefaultToolchains(execution.Binaries{
		Python: config.PythonBin,
		Node:   config.NodeBin,
		GCC:    config.GCCBin,
		GXX:    config.GXXBin,
		Javac:  config.JavacBin,
		Java:   config.JavaBin,
	}), runner, execution.JavacResolver{}, execution.Config{
		Timeout:        config.ExecutionTimeout,
		MaxPerRoom:     config.MaxExecutionsPerRoom,
		MaxOutputBytes: config.MaxOutputBytes,
	}, metrics)

	// 5. Session core under supervision
	sup := workers.NewSupervisor(log)
	sup.Add(healthWorker)
	orchestrator := runtime.NewOrchestrator(log, sup, roomStorage,
		repositories.NewMessageRepository(db, log, config.HistoryLimit), index, executor, metrics,
		runtime.Config{
			GraceWindow:     config.GraceWindow,
			SinkTimeout:     config.SinkTimeout,
			ChatBufferSize:  config.BufferSize,
			CharReplacement: charReplacement,
			SearchLimit:     config.SearchLimit,
			MetricInterval:  config.MetricInterval,
		})

	// 6. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 3)
	go func() {
		if err := orchestrator.Start(ctx); err != nil {
			errChan <- fmt.Errorf("orchestrator failed to start: %w", err)
		}
	}()

	// 7. HTTP: websocket, uploads, inspection API, metrics
	ws := websocket.NewServer(ctx, log, orchestrator, websocket.Config{
		BufferSize:        config.ConnectionBufferSize,
		MaxMessageSize:    config.MaxMessageBytes,
		MessagesPerSecond: config.MessagesPerSecond,
		MessageBurst:      config.MessageBurst,
		AllowedOrigin:     config.CorsOrigin,
	})
	httpServer := &http.Server{
		Addr: fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler: rest.NewRouter(log, orchestrator, roomStorage, ws, registry, rest.Config{
			AllowedOrigin:  config.CorsOrigin,
			MaxUploadBytes: config.MaxUploadMB << 20,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("Starting HTTP server", "address", httpServer.Addr, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// 8. gRPC health
	grpcAddress := fmt.Sprintf("%s:%d", config.Host, config.GrpcPort)
	listener, err := net.Listen("tcp", grpcAddress)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", grpcAddress, err)
	}
	healthServer := server.NewHealthServer(log)
	go func() {
		if err := healthServer.Serve(listener); err != nil {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	// 9. Wait for Stop or Error
	code := exitOK
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err = <-errChan:
		log.Error("Shutting down after failure", "error", err)
		code = exitRuntime
	}

	// 10. Final Cleanup: stop accepting work, then let running executions deliver
	healthServer.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown incomplete", "error", err)
	}
	orchestrator.Stop()
	executor.Wait()
	log.Info("Program stopped cleanly")

	return code, err
}
