// Command dialogd runs the Dialog Workflow Engine as a single process: an
// HTTP API for creating and resuming dialogs, a job worker that advances
// them, and a broadcast hub observers can subscribe to for live updates.
//
// Usage:
//
//	dialogd -config dialogd.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dialogforge/core/internal/broadcast"
	"github.com/dialogforge/core/internal/completion"
	"github.com/dialogforge/core/internal/completion/providers"
	"github.com/dialogforge/core/internal/config"
	"github.com/dialogforge/core/internal/dialogapi"
	"github.com/dialogforge/core/internal/engine"
	"github.com/dialogforge/core/internal/handlers"
	"github.com/dialogforge/core/internal/invokables"
	"github.com/dialogforge/core/internal/jobs"
	"github.com/dialogforge/core/internal/models"
	"github.com/dialogforge/core/internal/obs"
	"github.com/dialogforge/core/internal/registry"
	"github.com/dialogforge/core/internal/storage"
	"github.com/dialogforge/core/internal/workflow"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	var (
		configPath string
		httpAddr   string
	)
	flag.StringVar(&configPath, "config", "dialogd.yaml", "Path to YAML configuration file")
	flag.StringVar(&httpAddr, "addr", ":8080", "HTTP listen address")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, configPath, httpAddr); err != nil {
		slog.Error("dialogd exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath, httpAddr string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := obs.NewLogger(obs.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	metrics := obs.NewMetrics()

	slog.SetDefault(logger.Slog())
	logger.Info(ctx, "starting dialogd", "version", version, "commit", commit, "config", configPath)

	reg := registry.New(logger.Slog(), true)
	if err := loadRegistry(reg, cfg); err != nil {
		return fmt.Errorf("load registry: %w", err)
	}
	invokables.Register(reg)

	dialogStore, err := newDialogStore(cfg.Storage)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	jobStore, err := newJobStore(cfg.Jobs)
	if err != nil {
		return fmt.Errorf("init job store: %w", err)
	}

	hub := broadcast.NewHub(logger.Slog(), broadcast.DefaultClientBuffer)
	hub.OnDrop(metrics.RecordBroadcastDrop)
	if cfg.Broadcast.RedisAddr != "" {
		bridge, err := broadcast.NewRedisBridge(cfg.Broadcast.RedisAddr, logger.Slog())
		if err != nil {
			return fmt.Errorf("init redis broadcast bridge: %w", err)
		}
		hub.AttachPublisher(bridge)
		go func() { _ = bridge.Listen(ctx, hub) }()
	}
	updates := broadcast.NewModelUpdates(hub)
	observer := broadcast.NewObserverHandler(hub, logger.Slog())

	chain, err := newCompletionChain(cfg.Providers)
	if err != nil {
		return fmt.Errorf("init completion providers: %w", err)
	}
	completionSvc := completion.NewService(chain)

	handlerMap := map[models.StepType]handlers.Handler{
		models.StepMessage:   handlers.NewMessageStepHandler(reg),
		models.StepPrompt:    handlers.NewPromptStepHandler(reg, completionSvc, updates),
		models.StepUserInput: handlers.NewUserInputStepHandler(completionSvc, updates),
		models.StepInvoke:    handlers.NewInvokeStepHandler(reg),
	}

	eng := engine.New(dialogStore, handlerMap, updates, logger.Slog(), metrics)
	workflowSvc := workflow.NewService(reg, eng, dialogStore)

	worker := jobs.NewWorker(jobStore, dialogapi.JobHandlers(workflowSvc), workerConfig(cfg.Jobs, logger))
	worker.Start(ctx)

	server := dialogapi.NewServer(workflowSvc, jobStore, observer, logger.Slog())
	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           server.Mux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	listener, err := net.Listen("tcp", httpAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", httpAddr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	logger.Info(ctx, "dialogd started", "addr", httpAddr)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server error: %w", err)
	}

	logger.Info(ctx, "shutdown signal received, draining")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn(shutdownCtx, "http shutdown error", "error", err.Error())
	}
	if err := worker.Stop(shutdownCtx); err != nil {
		logger.Warn(shutdownCtx, "worker shutdown error", "error", err.Error())
	}
	if err := hub.Shutdown(shutdownCtx, "dialogd is shutting down"); err != nil {
		logger.Warn(shutdownCtx, "broadcast shutdown error", "error", err.Error())
	}

	logger.Info(ctx, "dialogd stopped gracefully")
	return nil
}

func loadRegistry(reg *registry.Registry, cfg *config.BootConfig) error {
	templates, err := config.LoadTemplates(cfg.DialogTemplatesDir, cfg.TemplatePaths)
	if err != nil {
		return err
	}
	for _, tpl := range templates {
		if _, err := reg.AddTemplate(tpl); err != nil {
			return err
		}
	}

	prompts, err := config.LoadPrompts(cfg.PromptPaths)
	if err != nil {
		return err
	}
	for _, p := range prompts {
		reg.AddPrompt(p.Name, p.Body)
	}

	schemas, err := config.LoadSchemas(cfg.SchemaModules)
	if err != nil {
		return err
	}
	for _, s := range schemas {
		if _, err := reg.AddSchema(s.Name, s.Doc); err != nil {
			return err
		}
	}

	for alias, fullName := range cfg.Models {
		reg.AddModel(alias, fullName)
	}

	return nil
}

func newDialogStore(cfg config.StorageConfig) (storage.DialogStore, error) {
	switch cfg.Driver {
	case "", "memory":
		return storage.NewMemoryStore(), nil
	case "cockroach":
		return storage.NewCockroachStore(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func newJobStore(cfg config.JobsConfig) (jobs.Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return jobs.NewMemoryStore(), nil
	case "cockroach":
		return jobs.NewCockroachStore(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown jobs driver %q", cfg.Driver)
	}
}

func workerConfig(cfg config.JobsConfig, logger *obs.Logger) jobs.WorkerConfig {
	wc := jobs.WorkerConfig{
		Concurrency: cfg.WorkerCount,
		Logger:      logger.Slog(),
	}
	if d, err := time.ParseDuration(cfg.PollInterval); err == nil {
		wc.PollInterval = d
	}
	if d, err := time.ParseDuration(cfg.LeaseTTL); err == nil {
		wc.LeaseDuration = d
	}
	return wc
}

// newCompletionChain registers providers in cfg.FallbackChain order (first
// match wins, per completion.Chain.Complete), defaulting to Anthropic then
// OpenAI when FallbackChain is empty but credentials are present.
func newCompletionChain(cfg config.ProvidersConfig) (*completion.Chain, error) {
	chain := completion.NewChain()

	order := cfg.FallbackChain
	if len(order) == 0 {
		order = []string{"anthropic", "openai"}
	}

	for _, name := range order {
		switch name {
		case "anthropic":
			if cfg.Anthropic.APIKey == "" {
				continue
			}
			p, err := providers.NewAnthropicProvider(providers.AnthropicConfig{
				APIKey:  cfg.Anthropic.APIKey,
				BaseURL: cfg.Anthropic.BaseURL,
			})
			if err != nil {
				return nil, fmt.Errorf("anthropic provider: %w", err)
			}
			chain.Register(p)
		case "openai":
			if cfg.OpenAI.APIKey == "" {
				continue
			}
			chain.Register(providers.NewOpenAIProvider(cfg.OpenAI.APIKey, 3, time.Second))
		default:
			return nil, fmt.Errorf("unknown provider %q in providers.fallback_chain", name)
		}
	}

	return chain, nil
}
