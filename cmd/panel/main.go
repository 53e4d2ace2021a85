package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"servidores/api/internal/assignment"
	"servidores/api/internal/config"
	"servidores/api/internal/liveview"
	"servidores/api/internal/rbac"
	"servidores/api/internal/realtime"
	"servidores/api/internal/search"
	"servidores/api/internal/store"
	"servidores/api/internal/tui"
)

func main() {
	var (
		configPath string
		userID     string
		logFile    string
	)
	root := &cobra.Command{
		Use:          "panel --user <id>",
		Short:        "Terminal follow-up call panel",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath, userID, logFile)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "", "path to a config file")
	root.Flags().StringVarP(&userID, "user", "u", "", "portal user id")
	root.Flags().StringVar(&logFile, "log-file", "", "write logs to this file")
	_ = root.MarkFlagRequired("user")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// newLogger writes to a file because the terminal belongs to the panel.
func newLogger(cfg config.LogConfig, path string) (*zap.Logger, error) {
	if path == "" {
		return zap.NewNop(), nil
	}
	zc := zap.NewProductionConfig()
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	zc.Level = level
	zc.OutputPaths = []string{path}
	zc.ErrorOutputPaths = []string{path}
	return zc.Build()
}

func run(ctx context.Context, configPath, userID, logFile string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Log, logFile)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := store.Open(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()
	dataStore := store.NewPostgresStore(db)

	user, err := dataStore.GetPortalUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("load user %s: %w", userID, err)
	}
	if !rbac.Can(rbac.Normalize(user.Role), rbac.ActionPanel) {
		return fmt.Errorf("user %s (%s) may not use the panel", user.DisplayName, user.Role)
	}
	records, err := dataStore.Assignments(ctx, userID)
	if err != nil {
		return fmt.Errorf("load assignments: %w", err)
	}
	scope, ok := assignment.Resolve(records)
	if !ok {
		return errors.New("no current assignment for this user")
	}

	hub := realtime.NewHub()
	defer hub.Close()

	searchService := search.NewService(search.NewPostgres(dataStore), search.ServiceOptions{
		Stages:            dataStore,
		EnrichConcurrency: cfg.Search.EnrichConcurrency,
		Logger:            logger,
	})
	typeahead := search.NewTypeahead(searchService, search.TypeaheadOptions{
		Debounce:  cfg.Search.Debounce,
		CacheTTL:  cfg.Search.CacheTTL,
		MinLength: cfg.Search.MinQueryLen,
		Limit:     cfg.Search.Limit,
	})
	defer typeahead.Close()

	view := liveview.New(dataStore, liveview.Options{
		Timing: liveview.Timing{
			NewTTL:          cfg.LiveView.NewTTL,
			ChangedTTL:      cfg.LiveView.ChangedTTL,
			RefreshDebounce: cfg.LiveView.RefreshDebounce,
			ReactivationTTL: cfg.LiveView.ReactivationTTL,
			RefreshInterval: cfg.LiveView.RefreshInterval,
		},
		Logger:  logger,
		ActorID: userID,
		OnWrite: typeahead.Clear,
	})
	defer view.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	listener := realtime.NewPGListener(cfg.Database.URL, cfg.Database.NotifyChannel, logger)
	g.Go(func() error { return listener.Run(ctx, hub) })

	view.Follow(hub.Subscribe(ctx, realtime.Filter{}))
	view.SetScope(scope)

	program := tea.NewProgram(tui.New(view, typeahead), tea.WithAltScreen(), tea.WithContext(ctx))
	g.Go(func() error {
		defer cancel()
		_, err := program.Run()
		if errors.Is(err, tea.ErrProgramKilled) {
			return nil
		}
		return err
	})
	return g.Wait()
}
