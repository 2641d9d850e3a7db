package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"roombook/internal/api"
	"roombook/internal/auth"
	"roombook/internal/booking"
	"roombook/internal/config"
	"roombook/internal/dashboard"
	"roombook/internal/directory"
	"roombook/internal/metrics"
	"roombook/internal/notify"
	"roombook/internal/outbox"
)

func init() {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the booking API",
		Long: `Run the booking API

Starts the HTTP API, the calendar outbox workers, the health and metrics
servers and the rooms.yaml watcher. Stops on SIGINT or SIGTERM.
`,
		Args: cobra.NoArgs,
		RunE: serve,
	}
	RootCmd.AddCommand(serveCmd)
}

func serve(cmd *cobra.Command, args []string) error {
	if cfg.Auth.JWTSecret == "" {
		return errors.New("set auth.jwt_secret in config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := newReservationsClient()
	resolver, err := newResolver()
	if err != nil {
		return err
	}
	roomsCat, err := loadRooms()
	if err != nil {
		return err
	}
	err = config.WatchRooms(ctx, cfg.RoomsPath(), 30*time.Second, logger, func(rc *config.RoomsConfig) {
		roomsCat.Replace(rc.Rooms)
		logger.Info().Int("rooms", len(rc.Rooms)).Msg("rooms loaded")
	})
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn().Err(err).Msg("rooms hot reload disabled")
	}

	store, rdb := newStore()
	if rdb != nil {
		defer rdb.Close()
	}

	failures, err := outbox.OpenFailureLog(cfg.FailureLogPath())
	if err != nil {
		return err
	}
	defer failures.Close()
	go failures.RunBackups(ctx, outbox.BackupConfig{
		Dir:           cfg.Outbox.Backup.Dir,
		Interval:      cfg.BackupInterval(),
		RetentionDays: cfg.Outbox.Backup.RetentionDays,
	}, logger)

	provider, graph, err := newCalendar(ctx)
	if err != nil {
		return err
	}

	var sender outbox.Sender
	if cfg.Telegram.BotToken != "" && len(cfg.Telegram.ManagerChats) > 0 {
		bot, err := notify.NewBot(cfg.Telegram.BotToken)
		if err != nil {
			logger.Warn().Err(err).Msg("telegram notifications disabled")
		} else {
			sender = notify.NewTelegram(bot, cfg.Telegram.ManagerChats, logger)
		}
	}

	ob := outbox.New(provider, client, store, sender, failures, outbox.Options{
		Workers:   cfg.OutboxWorkers(),
		QueueSize: cfg.OutboxQueueSize(),
		Location:  cfg.Location(),
		RefTTL:    cfg.EventRefTTL(),
	}, logger)
	ob.Start(ctx)

	drafts := booking.NewDraftStore(cfg.DraftIdle())
	go sweepDrafts(ctx, drafts)

	submitter := booking.NewSubmitter(client, roomsCat, resolver, drafts, ob, ob, booking.Options{
		OrgDomain:         cfg.Booking.OrgDomain,
		PrecheckConflicts: cfg.PrecheckConflicts(),
	}, logger)

	deps := api.Deps{
		Rooms:     roomsCat,
		Snapshots: client,
		Resolver:  resolver,
		Drafts:    drafts,
		Booker:    submitter,
	}
	if graph != nil {
		deps.Directory = directory.New(graph, cfg.Booking.OrgDomain, cfg.DirectoryDebounce(), cfg.DirectoryMaxResults(), logger)
	}
	if cfg.Dashboard.BaseURL != "" {
		times, err := cfg.RefreshTimes()
		if err != nil {
			return err
		}
		fetcher := dashboard.NewHTTPFetcher(cfg.Dashboard.BaseURL, cfg.Dashboard.APIKey, cfg.Dashboard.Endpoints, cfg.ReservationsTimeout())
		deps.Dashboards = dashboard.NewService(store, fetcher, dashboard.NewRefreshPolicy(times, cfg.Location()), 0, logger)
	}

	go startHealthServer(ctx, healthPort(), readinessChecks{
		"reservations": client.HealthCheck,
		"store":        store.Ping,
		"failure_log":  failures.Ping,
	}, logger)

	if cfg.Monitoring.PrometheusEnabled {
		port := cfg.Monitoring.PrometheusPort
		if port == 0 {
			port = 9090
		}
		metrics.Register()
		go startMetricsServer(ctx, port, logger)
	}

	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience)
	router := api.NewRouter(api.NewHandler(deps, logger), jwtManager, cfg.Server.AllowedOrigins, logger)

	srv := &http.Server{
		Addr:              cfg.ServerAddr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("calendar", cfg.CalendarProvider()).Msg("roombook API started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		if err != nil {
			stop()
			ob.Close()
			return err
		}
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelDrain()
	if err := ob.Shutdown(drainCtx); err != nil {
		logger.Warn().Err(err).Msg("outbox not fully drained")
	}
	return nil
}

func healthPort() int {
	if cfg.Monitoring.HealthCheckPort == 0 {
		return 8090
	}
	return cfg.Monitoring.HealthCheckPort
}

func sweepDrafts(ctx context.Context, drafts *booking.DraftStore) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := drafts.Cleanup(); n > 0 {
				logger.Debug().Int("expired", n).Msg("idle drafts discarded")
			}
		}
	}
}
