package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"servidores/api/internal/app"
	"servidores/api/internal/auth"
	"servidores/api/internal/config"
	"servidores/api/internal/liveview"
	"servidores/api/internal/logging"
	"servidores/api/internal/realtime"
	"servidores/api/internal/search"
	"servidores/api/internal/store"
)

func main() {
	var configPath string
	root := &cobra.Command{
		Use:          "api",
		Short:        "Servidores portal API",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a config file")
	root.AddCommand(migrateCmd(&configPath))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func migrateCmd(configPath *string) *cobra.Command {
	var down bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply (or with --down, revert) database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			db, err := store.Open(cmd.Context(), cfg.Database.URL)
			if err != nil {
				return err
			}
			defer db.Close()
			if down {
				return store.MigrateDown(db)
			}
			return store.Migrate(db, logger)
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "revert every migration")
	return cmd
}

func setup(configPath string) (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func serve(ctx context.Context, configPath string) error {
	cfg, logger, err := setup(configPath)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := store.Open(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()
	if err := store.Migrate(db, logger); err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}
	dataStore := store.NewPostgresStore(db)

	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
		logger.Info("using redis for the change relay and search cache")
	}

	searchOpts := search.ServiceOptions{
		Stages:            dataStore,
		EnrichConcurrency: cfg.Search.EnrichConcurrency,
		Logger:            logger,
	}
	if cfg.Meili.URL != "" {
		meili := search.NewMeili(cfg.Meili.URL, cfg.Meili.Key, logger)
		defer meili.Close()
		searchOpts.Meili = meili
	}
	if rdb != nil {
		searchOpts.Shared = search.NewRedisCacheWithClient(rdb, cfg.Search.CacheTTL)
	}
	searchService := search.NewService(search.NewPostgres(dataStore), searchOpts)

	hub := realtime.NewHub()
	defer hub.Close()

	registry := liveview.NewRegistry(dataStore, hub, liveview.RegistryOptions{
		Timing: liveview.Timing{
			NewTTL:          cfg.LiveView.NewTTL,
			ChangedTTL:      cfg.LiveView.ChangedTTL,
			RefreshDebounce: cfg.LiveView.RefreshDebounce,
			ReactivationTTL: cfg.LiveView.ReactivationTTL,
			RefreshInterval: cfg.LiveView.RefreshInterval,
		},
		IdleTTL: cfg.LiveView.IdleTTL,
		Logger:  logger,
		OnWrite: func() {
			// The view loop must not block on Redis.
			go searchService.Invalidate(context.Background())
		},
	})
	defer registry.Close()

	service := app.NewService(app.ServiceOptions{
		Store:       dataStore,
		Views:       registry,
		Search:      searchService,
		Verifier:    auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
		Logger:      logger,
		SearchLimit: cfg.Search.Limit,
		MinQueryLen: cfg.Search.MinQueryLen,
	})
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           app.NewHTTPServer(service, cfg.Server.CORSOrigin, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	startFeed(ctx, g, cfg, hub, rdb, logger)
	g.Go(func() error { return registry.Run(ctx) })
	g.Go(func() error {
		people := hub.Subscribe(ctx, realtime.Filter{Tables: []string{realtime.TablePeople}})
		defer people.Close()
		for ev := range people.Events() {
			if ev.Kind == realtime.KindSubscribed {
				continue
			}
			syncPerson(searchService, ev, logger)
			searchService.Invalidate(ctx)
		}
		return nil
	})
	g.Go(func() error {
		searchService.ReindexAllFromPG(ctx)
		return nil
	})
	g.Go(func() error {
		logger.Info("portal api listening", zap.String("addr", cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown error", zap.Error(err))
		}
		return nil
	})
	return g.Wait()
}

// startFeed connects the PostgreSQL change feed to the hub. With Redis configured the
// listener publishes to the relay and every instance reads the relay back into its hub.
func startFeed(ctx context.Context, g *errgroup.Group, cfg config.Config, hub *realtime.Hub, rdb *redis.Client, logger *zap.Logger) {
	var listener *realtime.PGListener
	if cfg.Database.Listen {
		listener = realtime.NewPGListener(cfg.Database.URL, cfg.Database.NotifyChannel, logger)
	}
	if rdb == nil {
		g.Go(func() error { return listener.Run(ctx, hub) })
		return
	}
	relay := realtime.NewRedisRelay(rdb, cfg.Redis.Channel, logger)
	g.Go(func() error { return relay.Run(ctx, hub) })
	if listener != nil {
		g.Go(func() error { return listener.Run(ctx, relay) })
	}
}

func syncPerson(svc *search.Service, ev realtime.Event, logger *zap.Logger) {
	row, removed, err := ev.Person()
	if err != nil {
		logger.Warn("people event", zap.Error(err))
		return
	}
	if removed {
		svc.RemovePerson(row.ID)
		return
	}
	p := search.Person{ID: row.ID, Name: row.FullName}
	if row.Phone != nil {
		p.Contact = *row.Phone
	}
	if row.Cedula != nil {
		p.Cedula = *row.Cedula
	}
	svc.IndexPerson(p)
}
