// ABOUTME: Gateway orchestrator wiring store, bus, transport, and the conversation manager
// ABOUTME: Runs the HTTP server hosting the websocket endpoint and the REST API

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/2389/strand-gateway/internal/bus"
	"github.com/2389/strand-gateway/internal/config"
	"github.com/2389/strand-gateway/internal/conversation"
	"github.com/2389/strand-gateway/internal/session"
	"github.com/2389/strand-gateway/internal/store"
	"github.com/2389/strand-gateway/internal/transport"
)

// Gateway assembles the strand-gateway server: one process of the fleet,
// hosting agent-loop sessions and the client connections attached to them.
type Gateway struct {
	config     *config.Config
	logger     *slog.Logger
	store      store.Store
	bus        bus.Bus
	transport  transport.Transport
	registry   *session.Registry
	manager    *conversation.Manager
	httpServer *http.Server
}

// Deps are the swappable backends. Zero-value fields get production
// defaults: SQLite store, in-memory bus, websocket transport, local engine.
type Deps struct {
	Store         store.Store
	Bus           bus.Bus
	Transport     transport.Transport
	EngineFactory session.EngineFactory
}

// New creates a gateway with production backends.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	return NewWithDeps(cfg, logger, Deps{})
}

// NewWithDeps creates a gateway, filling in production defaults for any
// backend the caller did not supply.
func NewWithDeps(cfg *config.Config, logger *slog.Logger, deps Deps) (*Gateway, error) {
	s := deps.Store
	if s == nil {
		var err error
		s, err = initStore(cfg)
		if err != nil {
			return nil, err
		}
	}

	b := deps.Bus
	if b == nil {
		b = bus.NewMemoryBus(logger)
	}

	tr := deps.Transport
	if tr == nil {
		tr = transport.NewWSTransport(logger)
	}

	factory := deps.EngineFactory
	if factory == nil {
		factory = session.NewLocalEngineFactory(cfg.Session.WorkspaceRoot, logger)
	}

	gw := &Gateway{
		config:    cfg,
		logger:    logger.With("component", "gateway"),
		store:     s,
		bus:       b,
		transport: tr,
	}

	// The registry's sink feeds the manager, which is built after the
	// registry; route through the gateway so the closure stays valid.
	gw.registry = session.NewRegistry(factory, func(conversationID string, event session.Event) {
		gw.manager.OnSessionEvent(conversationID, event)
	}, logger)

	locator := conversation.NewLocator(b, cfg.Locator.ControlChannel, cfg.Locator.Timeout, gw.registry, logger)
	reconciler := conversation.NewReconciler(gw.registry, s, tr, logger)

	gw.manager = conversation.NewManager(conversation.ManagerParams{
		Registry:   gw.registry,
		Index:      conversation.NewIndex(),
		Locator:    locator,
		Reconciler: reconciler,
		Transport:  tr,
		Bus:        b,
		Logger:     logger,
	})

	tr.SetHandlers(transport.Handlers{
		OnDisconnect: gw.manager.OnDisconnect,
		OnMessage:    gw.handleInbound,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", gw.handleHealthz)
	mux.HandleFunc("/healthz/ready", gw.handleReady)
	if h, ok := tr.(http.Handler); ok {
		mux.Handle("/ws", h)
	}
	gw.registerAPIRoutes(mux)

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// initStore creates the SQLite store from config, honoring the
// STRAND_DB_PATH override.
func initStore(cfg *config.Config) (store.Store, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("STRAND_DB_PATH"); envPath != "" {
		dbPath = envPath
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// Handler exposes the HTTP handler for tests.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// Manager exposes the conversation manager for tests.
func (g *Gateway) Manager() *conversation.Manager {
	return g.manager
}

// Run starts the gateway and blocks until the context is canceled or the
// server fails. Returns nil on graceful shutdown.
func (g *Gateway) Run(ctx context.Context) error {
	g.manager.Start(ctx)

	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
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
// Uses context.Background() intentionally since the run context is already
// canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown stops accepting connections, retires every local session, and
// releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	if err := g.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}

	g.manager.Stop(ctx)
	g.bus.Close()

	if err := g.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// handleHealthz returns 200 OK if the server is alive.
func (g *Gateway) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady reports readiness along with the number of locally hosted
// sessions. The gateway is ready as soon as it serves; session count is
// informational.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	running := g.registry.Running()
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d sessions)", len(running))
}
