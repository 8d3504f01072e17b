package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/altss/altss/internal/app"
	"github.com/altss/altss/internal/audit"
	audithttp "github.com/altss/altss/internal/audit/http"
	"github.com/altss/altss/internal/auth"
	"github.com/altss/altss/internal/backend"
	"github.com/altss/altss/internal/cabinet"
	"github.com/altss/altss/internal/directory"
	"github.com/altss/altss/internal/enrichment"
	"github.com/altss/altss/internal/events"
	"github.com/altss/altss/internal/favorites"
	"github.com/altss/altss/internal/integration"
	"github.com/altss/altss/internal/live"
	"github.com/altss/altss/internal/observability"
	"github.com/altss/altss/internal/platform/cache"
	"github.com/altss/altss/internal/platform/db"
	"github.com/altss/altss/internal/rbac"
	"github.com/altss/altss/internal/savedsearch"
	"github.com/altss/altss/internal/shared"
	"github.com/altss/altss/internal/users"
	"github.com/altss/altss/internal/view"
	"github.com/altss/altss/jobs"
	"github.com/altss/altss/report"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns, MaxConnLifetime: cfg.PGMaxConnLifetime})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	redisOpt, err := jobs.RedisOpt(cfg.RedisAddr)
	if err != nil {
		logger.Error("parse redis address", slog.Any("error", err))
		os.Exit(1)
	}

	sessionManager := shared.NewSessionManager(redisClient, "altss_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	bus := events.NewRedisBus(redisClient, events.DefaultChannel, events.NewLocalBus(logger), logger)
	if err := bus.Start(ctx); err != nil {
		logger.Error("start event relay", slog.Any("error", err))
		os.Exit(1)
	}
	defer bus.Stop()

	client := backend.NewClient(backend.Options{
		BaseURL:  cfg.BackendURL,
		APIKey:   cfg.BackendAPIKey,
		Timeout:  cfg.BackendTimeout,
		Logger:   logger,
		Observer: metrics,
	})
	directoryCache := backend.NewCache(redisClient, cfg.CacheTTL)
	catalog := backend.NewCatalog(client, directoryCache)

	jobClient, err := jobs.NewClient(redisOpt)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpt)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	tokens := auth.NewTokenValidator(cfg.SupabaseJWTSecret)
	identity := auth.NewGoTrue(cfg.SupabaseURL, cfg.SupabaseAnonKey, cfg.BackendTimeout)
	authService := auth.NewService(identity, client, tokens, auditLogger, logger)
	guard := auth.NewGuard(authService, logger, cfg.StatusTTL)
	authHandler := auth.NewHandler(logger, authService, guard, templates, sessionManager, csrfManager, cfg.PublicURL)

	policy := rbac.DefaultPolicy().Merge(rbac.ParsePolicy(cfg.RBACGrants))
	rbacMiddleware := rbac.Middleware{Service: rbac.NewService(policy), Logger: logger}

	bridge := favorites.NewBridge(client, bus, logger)
	savedSearches := savedsearch.NewService(savedsearch.NewRepository(dbpool), auditLogger, bus, logger)
	enricher := enrichment.NewService(client, jobClient, idempotencyStore, bus, logger)
	pdf := report.NewClient(cfg.GotenbergURL, 30*time.Second)

	screens := directory.NewScreens(client, cfg.LegacyContacts)
	directoryHandler := directory.NewHandler(directory.Options{
		Logger:    logger,
		Templates: templates,
		CSRF:      csrfManager,
		Screens:   screens,
		Records:   catalog,
		Counter:   catalog,
		Favorites: bridge,
		PDF:       pdf,
	})
	liveHandler := live.NewHandler(live.Options{
		Logger:         logger,
		Screens:        directory.Mounters(screens),
		Bridge:         bridge,
		Bus:            bus,
		Enricher:       enricher,
		Accounts:       client,
		Debounce:       cfg.SearchDebounce,
		StatusInterval: cfg.StatusPollInterval,
		Metrics:        metrics,
	})

	integrationHooks := integration.NewHooks(directoryCache, bus, jobClient, logger)
	integrationService := integration.NewService(client, integrationHooks, auditLogger, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessionManager,
		CSRFManager:        csrfManager,
		Guard:              guard,
		RBACMiddleware:     rbacMiddleware,
		Metrics:            metrics,
		AuthHandler:        authHandler,
		DirectoryHandler:   directoryHandler,
		LiveHandler:        liveHandler,
		EnrichmentHandler:  enrichment.NewHandler(logger, enricher),
		SavedSearchHandler: savedsearch.NewHandler(logger, savedSearches),
		FavoritesHandler:   favorites.NewHandler(logger, bridge),
		CabinetHandler:     cabinet.NewHandler(logger, bridge, savedSearches, templates, csrfManager),
		IntegrationHandler: integration.NewHandler(logger, integrationService, templates, csrfManager, rbacMiddleware),
		UsersHandler:       users.NewHandler(logger, users.NewService(client, auditLogger, logger), templates, csrfManager, rbacMiddleware),
		AuditHandler:       audithttp.NewHandler(logger, audit.NewService(audit.NewRepository(dbpool)), templates, csrfManager, rbacMiddleware),
		JobHandler:         jobs.NewHandler(inspector, logger),
		ReportHandler:      report.NewHandler(pdf, logger),
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
