package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"tutorboard/internal/api"
	"tutorboard/internal/auth"
	"tutorboard/internal/chat"
	"tutorboard/internal/config"
	"tutorboard/internal/pricing"
	"tutorboard/internal/registry"
	"tutorboard/internal/store"
)

// Application wires all components together. Initialization follows
// dependency order: Store -> Pricing -> Registry -> Auth -> Chat -> API ->
// HTTP. Shutdown runs in reverse.
type Application struct {
	config      *config.Config
	store       *store.Store
	pricing     *pricing.Provider
	registry    *registry.Registry
	chatHandler *chat.Handler
	apiServer   *api.Server
	httpServer  *http.Server

	cleanupCancel context.CancelFunc
}

func NewApplication(cfg *config.Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	provider := pricing.NewProvider(st, cfg.Pricing.RefreshInterval)
	if err := provider.Refresh(context.Background()); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to load pricing data: %w", err)
	}

	reg := registry.New()
	resolver := auth.NewJWTResolver(cfg.Auth.JWTSecret)
	chatHandler := chat.NewHandler(reg, st, resolver, cfg.WebSocket)
	apiServer := api.NewServer(st, provider, reg, resolver)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.HandleFunc("/ws", chatHandler.HandleWebSocket)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:      cfg,
		store:       st,
		pricing:     provider,
		registry:    reg,
		chatHandler: chatHandler,
		apiServer:   apiServer,
		httpServer:  httpServer,
	}, nil
}

// Start launches background workers and the HTTP server, returning once the
// server is accepting connections.
func (app *Application) Start(ctx context.Context) error {
	log.Printf("starting tutorboard on %s", app.httpServer.Addr)

	cleanupCtx, cancel := context.WithCancel(context.Background())
	app.cleanupCancel = cancel
	app.chatHandler.StartCleanup(cleanupCtx)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		cancel()
		return err
	case <-time.After(100 * time.Millisecond):
		log.Printf("tutorboard started")
		return nil
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
}

// Stop shuts the application down: stop accepting requests, close live
// connections, then close the database.
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("shutting down tutorboard")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	if app.cleanupCancel != nil {
		app.cleanupCancel()
	}
	app.registry.Shutdown()

	if err := app.store.Close(); err != nil {
		log.Printf("store shutdown error: %v", err)
	}

	log.Printf("tutorboard shutdown complete")
	return nil
}

// Addr returns the listen address.
func (app *Application) Addr() string {
	return app.httpServer.Addr
}
