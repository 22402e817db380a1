// Package main is the entry point for the computable-lab executor
// service. The executor is the worker that claims execution tasks from
// the control plane, dispatches them to the configured runner and
// reports sequenced progress back until each task is terminal.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/brad-usredoxlabs/computable-lab/internal/client"
	"github.com/brad-usredoxlabs/computable-lab/internal/config"
	"github.com/brad-usredoxlabs/computable-lab/internal/deck"
	"github.com/brad-usredoxlabs/computable-lab/internal/logger"
	"github.com/brad-usredoxlabs/computable-lab/internal/observability"
	"github.com/brad-usredoxlabs/computable-lab/internal/runner"
	"github.com/brad-usredoxlabs/computable-lab/internal/worker"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (optional; CL_* env vars always apply)")
	once := flag.Bool("once", false, "Run exactly one claim cycle and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *once {
		cfg.RunOnce = true
	}

	slogger := logger.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing
	shutdownTracer, err := observability.InitTracer(ctx, "computable-lab-executor", cfg.OTELEndpoint)
	if err != nil {
		log.Fatalf("Failed to init tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Printf("Failed to shutdown tracer: %v", err)
		}
	}()

	// Metrics
	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatalf("Failed to init metrics: %v", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			log.Printf("Failed to shutdown metrics: %v", err)
		}
	}()

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metricsHandler)
		addr := fmt.Sprintf(":%d", cfg.MetricsPort)
		log.Printf("Executor metrics listening on %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Printf("Metrics server error: %v", err)
		}
	}()

	registry, err := buildRegistry(cfg, slogger)
	if err != nil {
		log.Fatalf("Failed to build runner registry: %v", err)
	}

	reporter := client.New(client.Config{
		BaseURL:       cfg.APIBaseURL,
		ExecutorID:    cfg.ExecutorID,
		Token:         cfg.ExecutorToken,
		Capabilities:  cfg.Capabilities,
		MaxTasks:      cfg.MaxTasks,
		LeaseDuration: cfg.LeaseDuration,
		MaxRPS:        cfg.MaxRPS,
	})

	agent := worker.New(reporter, registry, worker.AgentConfig{
		ExecutorID:   cfg.ExecutorID,
		PollInterval: cfg.PollInterval,
		RunOnce:      cfg.RunOnce,
	}, slogger)

	log.Printf("Executor %s started (adapters: %v)", cfg.ExecutorID, registry.Adapters())

	errCh := make(chan error, 1)
	go func() { errCh <- agent.Run(ctx) }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Println("Shutting down executor...")
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Fatalf("Executor stopped: %v", err)
		}
	}
}

// buildRegistry wires the adapters this executor is configured for.
func buildRegistry(cfg *config.Config, slogger *slog.Logger) (*runner.Registry, error) {
	layout, err := deck.LoadLayout(cfg.DeckLayoutFile)
	if err != nil {
		return nil, err
	}

	registry := runner.NewRegistry()
	registry.Register(runner.AdapterIntegraAssist, runner.NewIntegra(runner.IntegraConfig{
		Backend:       cfg.IntegraBackend,
		ForceSimulate: cfg.IntegraSimulate,
		SimDelay:      cfg.IntegraSimDelay,
		BridgeCommand: cfg.IntegraBridgeCommand,
		BridgeTimeout: cfg.IntegraBridgeTimeout,
		RecordsRoot:   cfg.RecordsRoot,
		Layout:        layout,
	}, slogger))
	return registry, nil
}
