// Package server wires a config.Config into a running arc engine: the
// reliable model chain (retry + breaker + fallbacks), guard pipelines,
// hooks, cache, memory store, and the HTTP surface for health, metrics,
// and remote approval responses. Grounded on the teacher's runServe/
// buildServeCmd wiring (cmd/arc/main.go.teacher-ref.txt), re-keyed from
// channel adapters to the single Agent Run Lifecycle this spec describes.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/StarkFactory/arc-reactor-sub012/internal/config"
	"github.com/StarkFactory/arc-reactor-sub012/internal/engine"
	"github.com/StarkFactory/arc-reactor-sub012/internal/engine/providers"
	"github.com/StarkFactory/arc-reactor-sub012/internal/infra"
	"github.com/StarkFactory/arc-reactor-sub012/internal/ratelimit"
	"github.com/StarkFactory/arc-reactor-sub012/internal/retry"
	"github.com/StarkFactory/arc-reactor-sub012/pkg/arc"
)

// Server holds one wired Lifecycle plus the HTTP mux serving health,
// metrics, and approval-response endpoints.
type Server struct {
	cfg       *config.Config
	lifecycle *engine.Lifecycle
	approvals *engine.MemoryApprovalStore
	registry  *prometheus.Registry
	breakers  *infra.CircuitBreakerRegistry
	health    *infra.HealthCheckRegistry
	shutdown  *infra.ShutdownCoordinator
}

// Build wires cfg into a runnable Server. tools is the caller-supplied tool
// registry -- this package has no opinion on what tools exist, only on how
// the lifecycle around them is assembled.
func Build(cfg *config.Config, tools map[string]arc.ToolCallback) (*Server, error) {
	primary, fallbacks, err := buildModels(cfg)
	if err != nil {
		return nil, err
	}

	breakers := infra.NewCircuitBreakerRegistry(infra.CircuitBreakerConfig{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		SuccessThreshold: cfg.Breaker.SuccessThreshold,
		Timeout:          cfg.Breaker.Timeout,
		OnStateChange: func(name, from, to string) {
			slog.Warn("model circuit breaker state change", "model", name, "from", from, "to", to)
		},
	})
	retryCfg := retry.Config{
		MaxAttempts:  cfg.Retry.MaxAttempts,
		InitialDelay: cfg.Retry.InitialDelay,
		MaxDelay:     cfg.Retry.MaxDelay,
		Factor:       cfg.Retry.Factor,
		Jitter:       cfg.Retry.Jitter,
	}
	reliable := engine.NewReliableModel(primary, retryCfg, breakers.Get(cfg.Providers.Default), fallbacks)

	registry := prometheus.NewRegistry()
	metrics := engine.NewPrometheusMetrics(registry)

	approvals := engine.NewMemoryApprovalStore()

	var allowlist map[string]struct{}
	if len(cfg.Engine.AllowedTools) > 0 {
		allowlist = make(map[string]struct{}, len(cfg.Engine.AllowedTools))
		for _, name := range cfg.Engine.AllowedTools {
			allowlist[name] = struct{}{}
		}
	}

	hooks := engine.NewHookExecutor(nil, nil, slog.Default())

	health := infra.NewHealthCheckRegistry()
	health.Register(infra.HealthCheckConfig{Name: "liveness", Critical: true, Checker: infra.LivenessChecker()})
	health.RegisterSimple("model_breaker", func(ctx context.Context) error {
		open := breakers.OpenCircuits()
		if len(open) == 0 {
			return nil
		}
		stats := breakers.Get(open[0]).Stats()
		return fmt.Errorf("circuit breaker open for %v (last failure: %s)", open, stats.LastFailure.Format(time.RFC3339))
	})

	shutdown := infra.NewShutdownCoordinator(10*time.Second, slog.Default())

	lifecycle := engine.NewLifecycle(engine.LifecycleConfig{
		Concurrency:  engine.NewSemaphore(cfg.Engine.MaxConcurrentRuns),
		InputGuards:  buildInputGuards(cfg),
		OutputGuards: buildOutputGuards(cfg),
		Hooks:        hooks,
		Cache:        engine.NewResponseCache(cfg.Cache.TTL, cfg.Cache.MaxSize),
		Model:        reliable,
		Tools:        tools,
		Orchestrator: engine.OrchestratorConfig{
			DefaultTimeout:  cfg.Engine.DefaultToolTimeout,
			AllowedTools:    allowlist,
			ApprovalPolicy:  engine.AlwaysApprovalPolicy{},
			ApprovalStore:   approvals,
			ApprovalTimeout: cfg.Engine.ApprovalTimeout,
			Hooks:           hooks,
		},
		Memory:        engine.NewInProcessMemoryStore(),
		Metrics:       metrics,
		HistoryBudget: cfg.Engine.HistoryBudgetChars,
	})

	return &Server{
		cfg:       cfg,
		lifecycle: lifecycle,
		approvals: approvals,
		registry:  registry,
		breakers:  breakers,
		health:    health,
		shutdown:  shutdown,
	}, nil
}

func buildModels(cfg *config.Config) (engine.ChatModel, []engine.ChatModel, error) {
	byName := map[string]func() (engine.ChatModel, error){
		"anthropic": func() (engine.ChatModel, error) {
			return providers.NewAnthropicModel(providers.AnthropicConfig{
				APIKey:       cfg.Providers.Anthropic.APIKey,
				BaseURL:      cfg.Providers.Anthropic.BaseURL,
				DefaultModel: cfg.Providers.Anthropic.DefaultModel,
				MaxTokens:    cfg.Providers.Anthropic.MaxTokens,
			})
		},
		"openai": func() (engine.ChatModel, error) {
			return providers.NewOpenAIModel(providers.OpenAIConfig{
				APIKey:       cfg.Providers.OpenAI.APIKey,
				BaseURL:      cfg.Providers.OpenAI.BaseURL,
				DefaultModel: cfg.Providers.OpenAI.DefaultModel,
			})
		},
	}

	build, ok := byName[cfg.Providers.Default]
	if !ok {
		return nil, nil, fmt.Errorf("server: unknown default provider %q", cfg.Providers.Default)
	}
	primary, err := build()
	if err != nil {
		return nil, nil, fmt.Errorf("server: building primary model: %w", err)
	}

	var fallbacks []engine.ChatModel
	for _, name := range cfg.Providers.Fallbacks {
		fb, ok := byName[name]
		if !ok {
			return nil, nil, fmt.Errorf("server: unknown fallback provider %q", name)
		}
		model, err := fb()
		if err != nil {
			return nil, nil, fmt.Errorf("server: building fallback model %q: %w", name, err)
		}
		fallbacks = append(fallbacks, model)
	}
	return primary, fallbacks, nil
}

func buildInputGuards(cfg *config.Config) *engine.InputGuardPipeline {
	var stages []engine.InputGuard
	if cfg.Guards.RateLimit.Enabled {
		stages = append(stages, engine.NewRateLimitGuard(ratelimit.Config{
			RequestsPerSecond: cfg.Guards.RateLimit.RequestsPerSecond,
			BurstSize:         cfg.Guards.RateLimit.BurstSize,
			Enabled:           true,
		}))
	}
	if cfg.Guards.PromptInjection {
		stages = append(stages, engine.NewPromptInjectionGuard())
	}
	return engine.NewInputGuardPipeline(stages, nil, nil)
}

func buildOutputGuards(cfg *config.Config) *engine.OutputGuardPipeline {
	var stages []engine.OutputGuard
	if cfg.Guards.PIIMaskOutput {
		stages = append(stages, engine.NewPIIMaskOutputGuard())
	}
	if cfg.Guards.MinOutputChars > 0 {
		stages = append(stages, &engine.MinLengthOutputGuard{MinChars: cfg.Guards.MinOutputChars})
	}
	return engine.NewOutputGuardPipeline(stages)
}

// Lifecycle exposes the wired Lifecycle for one-shot (non-serving) callers.
func (s *Server) Lifecycle() *engine.Lifecycle { return s.lifecycle }

// ListenAndServe starts the HTTP surface (health, Prometheus metrics, and --
// if enabled -- the JWT-gated approval-response endpoint) and blocks until
// ctx is cancelled or the server fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	httpSrv := &http.Server{Addr: fmt.Sprintf(":%d", s.cfg.Server.HTTPPort), Handler: mux}
	s.shutdown.RegisterService("http", func(ctx context.Context) error { return httpSrv.Shutdown(ctx) })

	errCh := make(chan error, 2)
	go func() {
		slog.Info("http server listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
			return
		}
		errCh <- nil
	}()

	if s.cfg.Approval.Enabled {
		approvalSrv := s.buildApprovalServer()
		s.shutdown.RegisterService("approvals", func(ctx context.Context) error { return approvalSrv.Shutdown(ctx) })
		go func() {
			slog.Info("approval server listening", "addr", approvalSrv.Addr)
			if err := approvalSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("approval server: %w", err)
				return
			}
			errCh <- nil
		}()
	} else {
		errCh <- nil
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	for _, result := range s.shutdown.Shutdown(context.Background()) {
		if result.Error != nil {
			slog.Warn("shutdown handler failed", "handler", result.Name, "error", result.Error)
		}
	}
	return nil
}

// handleHealthz runs the registered health checks (process liveness, model
// circuit breaker state) and reports degraded/unhealthy as a 503.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	report := s.health.CheckAll(r.Context())
	w.Header().Set("Content-Type", "application/json")
	if !report.IsHealthy() {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(report)
}

// approvalRequest is the body a human-in-the-loop reviewer posts to resolve
// a pending tool-call approval (spec §12 supplemented feature).
type approvalRequest struct {
	RequestID string `json:"requestId"`
	Approved  bool   `json:"approved"`
	Reason    string `json:"reason"`
}

func (s *Server) buildApprovalServer() *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/approvals/respond", s.handleApprovalRespond)
	return &http.Server{Addr: s.cfg.Approval.Addr, Handler: mux}
}

func (s *Server) handleApprovalRespond(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if _, err := s.verifyBearerToken(r); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req approvalRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.RequestID == "" {
		http.Error(w, "requestId is required", http.StatusBadRequest)
		return
	}
	s.approvals.Respond(req.RequestID, req.Approved, req.Reason)
	w.WriteHeader(http.StatusNoContent)
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func (s *Server) verifyBearerToken(r *http.Request) (*jwt.Token, error) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return nil, errors.New("server: missing bearer token")
	}
	raw := header[len(prefix):]
	return jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("server: unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.cfg.Approval.JWTSecret), nil
	})
}
