package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/NaManMu-10th-team7/matetrip-backend-sub000/internal/app"
	"github.com/NaManMu-10th-team7/matetrip-backend-sub000/internal/cache"
	"github.com/NaManMu-10th-team7/matetrip-backend-sub000/internal/chat"
	"github.com/NaManMu-10th-team7/matetrip-backend-sub000/internal/config"
	"github.com/NaManMu-10th-team7/matetrip-backend-sub000/internal/realtime"
	"github.com/NaManMu-10th-team7/matetrip-backend-sub000/internal/search"
	"github.com/NaManMu-10th-team7/matetrip-backend-sub000/internal/store"
	"github.com/NaManMu-10th-team7/matetrip-backend-sub000/internal/workspace"
)

func newServeCommand(cfg *config.Config) *cobra.Command {
	var skipMigrations bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), *cfg, !skipMigrations)
		},
	}
	cmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "do not apply pending migrations on start")
	return cmd
}

func serve(parent context.Context, cfg config.Config, migrate bool) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	if migrate {
		if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
			return fmt.Errorf("migrations failed: %w", err)
		}
	}

	redisClient, err := cache.NewClient(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis connection failed: %w", err)
	}
	defer redisClient.Close()

	dataStore := store.NewPostgresStore(db)
	pois := cache.NewPOICoordinator(redisClient, dataStore)
	conns := cache.NewConnectionCoordinator(redisClient, dataStore)
	manager := workspace.NewManager(dataStore, pois, conns)

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, pgfts)
	go searchService.ReindexAllFromPG(ctx)

	var agent chat.Agent
	if httpAgent := chat.NewHTTPAgent(chat.AgentConfig{URL: cfg.AgentURL, Timeout: cfg.AgentTimeout}); httpAgent.IsConfigured() {
		agent = httpAgent
	} else {
		log.Println("chat: AGENT_URL not set; @AI mentions are stored but not answered")
	}
	chatService := chat.NewService(dataStore, agent)

	hub := realtime.NewHub()
	flusher := realtime.NewFlusher(pois, conns, searchService, hub)
	router := realtime.NewRouter(realtime.RouterConfig{
		Hub:            hub,
		Workspaces:     manager,
		POIs:           pois,
		Connections:    conns,
		Chat:           chatService,
		Flusher:        flusher,
		CommandTimeout: cfg.CacheOpTimeout,
		AgentTimeout:   cfg.AgentTimeout,
	})
	secret := []byte(cfg.JWTSecret)

	service := app.NewService(app.Deps{
		PingDatabase: dataStore.Ping,
		PingRedis:    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		Workspaces:   manager,
		POIs:         pois,
		Connections:  conns,
		Flusher:      flusher,
		Search:       searchService,
		Chat:         chatService,
		Realtime:     realtime.NewWSHandler(router, secret),
	})

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.NewHTTPServer(service, secret, cfg.CORSOrigin).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go flusher.Run(ctx, cfg.FlushInterval, cfg.CacheOpTimeout*6)

	errCh := make(chan error, 1)
	go func() {
		log.Printf("matetrip API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	// Commit what connected clients left in the cache before Redis goes away.
	active := hub.ActiveWorkspaces()
	hub.CloseAll()
	for _, workspaceID := range active {
		if _, err := flusher.Flush(shutdownCtx, workspaceID); err != nil {
			log.Printf("shutdown flush: %v", err)
		}
	}
	return nil
}
