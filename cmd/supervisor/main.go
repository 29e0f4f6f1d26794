// Command supervisor runs the workflow supervisor: it tails the project's
// workflow log, classifies issues, generates interventions, and serves the
// model-routing proxy, all in one long-running process (spec.md §4.9, §5).
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/oss-supervisor/workflow-supervisor/internal/core"
	"github.com/oss-supervisor/workflow-supervisor/internal/health"
	"github.com/oss-supervisor/workflow-supervisor/internal/llmfallback"
	"github.com/oss-supervisor/workflow-supervisor/internal/logging"
	"github.com/oss-supervisor/workflow-supervisor/internal/proxy"
	"github.com/oss-supervisor/workflow-supervisor/internal/state"
	"github.com/oss-supervisor/workflow-supervisor/internal/supervisor"
)

func main() {
	projectDir := flag.String("project", ".", "project directory to watch")
	proxyAddr := flag.String("proxy-addr", fmt.Sprintf(":%d", proxy.DefaultPort), "address the routing proxy listens on")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "auto", "log format (auto, text, json)")
	llmEndpoint := flag.String("llm-endpoint", "", "optional LLM fallback classifier endpoint; empty disables it")
	flag.Parse()

	dir, err := filepath.Abs(*projectDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "supervisor: resolving project dir:", err)
		os.Exit(1)
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = *logLevel
	logCfg.Format = *logFormat
	logger := logging.New(logCfg)

	routingCfg := state.LoadRoutingConfig(state.UserConfigPath(), state.ProjectConfigPath(dir))
	settingsCfg := state.LoadSettings(state.UserSettingsPath())

	sup, err := newSupervisor(dir, logger, routingCfg, *llmEndpoint)
	if err != nil {
		logger.Error("supervisor: initializing", "error", err)
		os.Exit(1)
	}
	if err := sup.Start(); err != nil {
		logger.Error("supervisor: starting", "error", err)
		os.Exit(1)
	}
	logger.Info("supervisor started", "project_dir", dir, "run_id", sup.RunID())

	proxySrv := newProxyServer(routingCfg, logger.Logger)
	httpSrv := &http.Server{Addr: *proxyAddr, Handler: proxySrv}
	go func() {
		logger.Info("proxy listening", "addr", *proxyAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("proxy: serving", "error", err)
		}
	}()

	report := health.RunAll(health.Deps{
		Now:         time.Now(),
		ProjectDir:  dir,
		NotifierBin: settingsCfg.NotifierBin,
		QueuePath:   filepath.Join(dir, ".oss", "queue.json"),
	})
	logger.Info("startup health check", "status", report.OverallStatus)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("supervisor: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("proxy: shutdown", "error", err)
	}
	if err := sup.Stop(); err != nil {
		logger.Warn("supervisor: stop", "error", err)
	}
	logger.Info("supervisor stopped")
}

// newSupervisor wires C9 over settings rooted at dir, optionally attaching an
// LLM fallback classifier (C3) when an endpoint is configured.
func newSupervisor(dir string, logger *logging.Logger, routingCfg core.RoutingProviderConfig, llmEndpoint string) (*supervisor.Supervisor, error) {
	settings := supervisor.DefaultSettings(dir)

	opts := []supervisor.Option{
		supervisor.WithLogger(logger.Logger),
		supervisor.WithNotify(func(n core.Notification) {
			logger.Info("intervention notification", "title", n.Title, "message", n.Message, "priority", n.Priority)
		}),
	}

	if llmEndpoint != "" {
		cfg := llmfallback.Config{
			Endpoint:        llmEndpoint,
			APIKey:          routingCfg.APIKeys["openrouter"],
			ConfidenceFloor: settings.LLMConfidenceFloor,
		}
		opts = append(opts, supervisor.WithLLMClassifier(llmfallback.New(cfg, logger.Logger)))
	}

	return supervisor.New(settings, opts...)
}

// newProxyServer wires C10 over the routing config's provider credentials.
func newProxyServer(routingCfg core.RoutingProviderConfig, logger *slog.Logger) *proxy.Server {
	registry := proxy.NewRegistry()

	ollamaBaseURL := routingCfg.APIKeys["ollama_base_url"]
	if ollamaBaseURL == "" {
		ollamaBaseURL = proxy.DefaultLocalBaseURL
	}
	registry.Register("ollama/", proxy.NewLocalHandler(ollamaBaseURL))

	if key := routingCfg.APIKeys["openrouter"]; key != "" {
		registry.Register("openrouter/", proxy.NewRemoteHandler("https://openrouter.ai/api/v1", key))
	}
	if key := routingCfg.APIKeys["openai"]; key != "" {
		registry.Register("openai/", proxy.NewRemoteHandler("https://api.openai.com/v1", key))
	}

	defaultModel := routingCfg.DefaultTarget
	if defaultModel == "" {
		defaultModel = "ollama/llama3"
	}

	return proxy.NewServer(registry, proxy.WithLogger(logger), proxy.WithDefaultModel(defaultModel))
}
