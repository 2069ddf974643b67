// ABOUTME: Gateway orchestrator wiring sessions, runtime, analysis, and HTTP together
// ABOUTME: Manages startup, route registration, and graceful shutdown

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/2389/knowledge-gateway/internal/agent"
	"github.com/2389/knowledge-gateway/internal/analysis"
	"github.com/2389/knowledge-gateway/internal/auth"
	"github.com/2389/knowledge-gateway/internal/chat"
	"github.com/2389/knowledge-gateway/internal/config"
	"github.com/2389/knowledge-gateway/internal/ingest"
	"github.com/2389/knowledge-gateway/internal/metrics"
	"github.com/2389/knowledge-gateway/internal/store"
)

// Gateway orchestrates the knowledge-gateway server components.
type Gateway struct {
	config     *config.Config
	store      store.Store
	registry   *chat.Registry
	runtime    agent.Runtime
	trigger    *analysis.Trigger
	directory  *auth.Directory
	verifier   *auth.JWTVerifier // nil when authentication is disabled
	ingest     *ingest.Service
	metrics    *metrics.Metrics
	httpServer *http.Server
	logger     *slog.Logger
}

// New builds a gateway from configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}

	directory, err := auth.NewDirectory(cfg.Auth.UsersFile, logger)
	if err != nil {
		st.Close()
		return nil, err
	}

	var verifier *auth.JWTVerifier
	if cfg.Auth.JWTSecret != "" {
		verifier = auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	} else {
		logger.Warn("auth.jwt_secret not set, authentication disabled")
	}

	m := metrics.New()

	g := &Gateway{
		config:    cfg,
		store:     st,
		directory: directory,
		verifier:  verifier,
		ingest:    ingest.NewService(st, cfg.Ingest.DataDir, m, logger),
		metrics:   m,
		logger:    logger.With("component", "gateway"),
	}

	g.runtime, err = buildRuntime(cfg, logger)
	if err != nil {
		st.Close()
		return nil, err
	}

	g.registry = chat.NewRegistry(g.channelFactory(), cfg.Chat.SessionTTL, logger)
	g.trigger = buildTrigger(cfg, st, m, logger)

	mux := http.NewServeMux()
	g.registerRoutes(mux)
	g.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return g, nil
}

// buildRuntime selects the agent runtime from configuration.
func buildRuntime(cfg *config.Config, logger *slog.Logger) (agent.Runtime, error) {
	streaming := cfg.Chat.Mode == config.ModeStreaming

	switch cfg.Agent.Provider {
	case config.ProviderOpenAI:
		return agent.NewOpenAIRuntime(cfg.Agent.APIKey, cfg.Agent.Model, streaming, logger), nil
	case config.ProviderScripted:
		chunk := 0
		if streaming {
			chunk = 16
		}
		return &agent.ScriptedRuntime{ChunkSize: chunk}, nil
	default:
		return nil, fmt.Errorf("unknown agent provider %q", cfg.Agent.Provider)
	}
}

// buildTrigger wires the background analysis pipeline, or returns nil when
// analysis is disabled or cannot run.
func buildTrigger(cfg *config.Config, st store.Store, m *metrics.Metrics, logger *slog.Logger) *analysis.Trigger {
	if !cfg.Analysis.Enabled {
		return nil
	}
	if cfg.Agent.APIKey == "" {
		logger.Warn("analysis enabled but agent.api_key not set, analysis disabled")
		return nil
	}

	model := cfg.Analysis.Model
	if model == "" {
		model = cfg.Agent.Model
	}
	extractor := analysis.NewPropositionExtractor(
		openai.NewClient(cfg.Agent.APIKey), st, model, m, logger)
	return analysis.NewTrigger(extractor, cfg.Analysis.QueueSize, cfg.Analysis.RunTimeout, m, logger)
}

// channelFactory returns the output channel constructor for the configured
// chat mode. Every session of one gateway instance uses the same mode.
func (g *Gateway) channelFactory() chat.ChannelFactory {
	if g.config.Chat.Mode == config.ModeOneShot {
		return func(processID string) chat.OutputChannel {
			return chat.NewWaitableChannel(g.logger)
		}
	}
	return func(processID string) chat.OutputChannel {
		return chat.NewStreamingChannel(processID, g.logger)
	}
}

func (g *Gateway) registerRoutes(mux *http.ServeMux) {
	authMW := auth.Middleware(g.verifierOrNil(), g.directory)

	mux.HandleFunc("POST /login", g.handleLogin)
	mux.Handle("POST /logout", authMW(http.HandlerFunc(g.handleLogout)))
	mux.Handle("GET /users", authMW(http.HandlerFunc(g.handleListUsers)))
	mux.HandleFunc("POST /users/{id}", g.handleUserToken)

	mux.Handle("POST /chat/init", authMW(http.HandlerFunc(g.handleInit)))
	mux.Handle("GET /chat/stream/{processId}", authMW(http.HandlerFunc(g.handleStream)))
	mux.Handle("POST /chat/message", authMW(http.HandlerFunc(g.handleSendMessage)))
	mux.Handle("GET /chat/history/{conversationId}", authMW(http.HandlerFunc(g.handleHistory)))
	mux.Handle("GET /chat/conversations", authMW(http.HandlerFunc(g.handleListConversations)))

	mux.Handle("GET /propositions", authMW(http.HandlerFunc(g.handlePropositions)))
	mux.Handle("GET /documents", authMW(http.HandlerFunc(g.handleListDocuments)))

	mux.Handle("POST /ingest", authMW(http.HandlerFunc(g.handleIngest)))

	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /health/ready", g.handleReady)

	if g.config.Metrics.Enabled {
		mux.Handle("GET "+g.config.Metrics.Path, g.metrics.Handler())
	}
}

// verifierOrNil exists because a nil *JWTVerifier stored in the TokenVerifier
// interface would not compare equal to nil inside the middleware.
func (g *Gateway) verifierOrNil() auth.TokenVerifier {
	if g.verifier == nil {
		return nil
	}
	return g.verifier
}

// Run starts the HTTP server and blocks until the context is canceled or the
// server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", g.config.Server.HTTPAddr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is
// already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown stops the HTTP server, the analysis worker, and the store.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	if err := g.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}

	g.registry.Close()
	if g.trigger != nil {
		g.trigger.Close()
	}

	if err := g.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady reports readiness along with the live session count.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d sessions)", g.registry.Len())
}
