package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Kirito123l/emission-agent/internal/cleanup"
	"github.com/Kirito123l/emission-agent/internal/config"
	rcontext "github.com/Kirito123l/emission-agent/internal/context"
	"github.com/Kirito123l/emission-agent/internal/executor"
	"github.com/Kirito123l/emission-agent/internal/llm"
	"github.com/Kirito123l/emission-agent/internal/memory"
	"github.com/Kirito123l/emission-agent/internal/observability"
	"github.com/Kirito123l/emission-agent/internal/router"
	"github.com/Kirito123l/emission-agent/internal/sessions"
	"github.com/Kirito123l/emission-agent/internal/standardize"
	"github.com/Kirito123l/emission-agent/internal/tools"
	"github.com/Kirito123l/emission-agent/internal/tools/factors"
	"github.com/Kirito123l/emission-agent/internal/tools/fileanalyzer"
	"github.com/Kirito123l/emission-agent/internal/tools/knowledge"
	"github.com/Kirito123l/emission-agent/internal/tools/macro"
	"github.com/Kirito123l/emission-agent/internal/tools/micro"
	"github.com/Kirito123l/emission-agent/internal/web"
)

type serveOptions struct {
	mappingsPath string
	promptsPath  string
	debug        bool
}

// runServe wires every component in dependency order (C1 through C11)
// and serves HTTP until a shutdown signal arrives.
func runServe(ctx context.Context, opts serveOptions) error {
	logger := buildLogger(opts.debug)
	slog.SetDefault(logger)

	// C1: config loader. Failure is fatal per spec.md §4.1.
	bundle, err := config.Load(opts.mappingsPath, opts.promptsPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg := bundle.Server

	for _, dir := range []string{cfg.DataDir, cfg.OutputsDir, cfg.TmpDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	logger.Info("configuration loaded",
		"llm_provider", cfg.LLMProvider,
		"addr", cfg.Addr,
		"data_dir", cfg.DataDir,
	)

	if watcher, err := config.WatchForChanges(logger, opts.mappingsPath, opts.promptsPath); err != nil {
		logger.Warn("failed to start config file watcher", "error", err)
	} else {
		defer watcher.Close()
	}

	// Observability: Prometheus metrics against the default registry
	// (served by promhttp.Handler() at /metrics) and an in-process tracer.
	metrics := observability.NewMetrics(nil)
	tracer := observability.NewTracer(cfg.ServiceName)
	defer tracer.Shutdown(context.Background())
	obs := observability.New(metrics, tracer)

	// C2: standardizer.
	standardizer := standardize.New(bundle.Mappings)

	// C3: LLM client, with proxy/direct failover if configured.
	llmClient, err := llm.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to build LLM client: %w", err)
	}
	if fc, ok := llmClient.(*llm.FailoverClient); ok {
		fc.OnFailover(obs.Failover)
	}

	// C4/C5: tool registry.
	registry := tools.NewRegistry()
	registry.Register(logger, factors.New())
	registry.Register(logger, micro.New(cfg.OutputsDir))
	registry.Register(logger, macro.New(standardizer, cfg.OutputsDir))
	registry.Register(logger, fileanalyzer.New(standardizer))

	retriever, err := knowledge.NewJSONLRetriever(cfg.KnowledgeCorpusPath)
	if err != nil {
		return fmt.Errorf("failed to load knowledge corpus: %w", err)
	}
	registry.Register(logger, knowledge.New(retriever, llmClient, bundle.Prompts.RefinerPrompt))

	bundle.SetToolDefinitions(registry.Descriptors)

	// C6: executor, shared process-wide across every session.
	exec := executor.New(registry, standardizer, cfg.LLMTimeout, logger)
	exec.SetObserver(obs)

	// C8: context assembler, shared process-wide (system prompt and tool
	// definitions are static once loaded).
	assembler := rcontext.New(bundle.Prompts.SystemPrompt, bundle.LoadToolDefinitions())

	// C9/C10: one Router per session, built lazily on first use, each
	// owning its own C7 memory.Manager rooted at the session's owning
	// SessionManager's per-user storage directory.
	newRouter := func(sessionID, dataDir string) *router.Router {
		mem := memory.NewManager(sessionID, dataDir, logger)
		r := router.New(assembler, exec, mem, llmClient, bundle.Prompts.SynthesisPrompt, logger)
		r.SetObserver(obs)
		return r
	}
	sessionRegistry := sessions.NewRegistry(filepath.Join(cfg.DataDir, "sessions"), newRouter, logger)

	// Background retention sweep of uploaded/result files (spec.md §6
	// persisted-state layout).
	sweeper := cleanup.NewSweeper(logger, cfg.OutputsTTL, cfg.TmpDir, cfg.OutputsDir)
	cronJob, err := sweeper.Schedule(cfg.CleanupCronSpec)
	if err != nil {
		return fmt.Errorf("failed to schedule cleanup sweep: %w", err)
	}
	defer cronJob.Stop()

	// C11: HTTP surface.
	handler := web.NewHandler(web.Config{
		Registry:       sessionRegistry,
		OutputsDir:     cfg.OutputsDir,
		TmpDir:         cfg.TmpDir,
		CORSOrigins:    cfg.CORSOrigins,
		HeartbeatEvery: cfg.HeartbeatEvery,
		Logger:         logger,
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:    cfg.Addr,
		Handler: handler.Mount(),
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("emission-agent listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	logger.Info("emission-agent stopped")
	return nil
}

func buildLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
