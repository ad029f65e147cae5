package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/pricewatch/pricewatch/internal/app"
	"github.com/pricewatch/pricewatch/internal/auth"
	"github.com/pricewatch/pricewatch/internal/authz"
	"github.com/pricewatch/pricewatch/internal/catalog"
	"github.com/pricewatch/pricewatch/internal/feed"
	"github.com/pricewatch/pricewatch/internal/observability"
	"github.com/pricewatch/pricewatch/internal/platform/cache"
	"github.com/pricewatch/pricewatch/internal/platform/db"
	"github.com/pricewatch/pricewatch/internal/pricehist"
	"github.com/pricewatch/pricewatch/internal/shared"
	"github.com/pricewatch/pricewatch/internal/users"
	"github.com/pricewatch/pricewatch/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
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

	sessionManager := shared.NewSessionManager(redisClient, "pricewatch_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	auditLogger := shared.NewAuditLogger(dbpool)
	broker := feed.NewBroker(redisClient, logger)

	metrics := observability.NewMetrics()

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo, cfg.AdminEmail, sessionManager, broker, logger)
	guard := authz.NewGuard(authService, cfg.GuardLogoutDelay, logger, nil)
	authHandler := auth.NewHandler(logger, authService, sessionManager, guard)
	authMiddleware := auth.Middleware{Service: authService, Guard: guard, Logger: logger}

	grantStore := authz.NewPGGrantStore(dbpool)
	evaluator := authz.NewEvaluator(cfg.AdminEmail, grantStore, logger)
	authzMiddleware := authz.Middleware{Evaluator: evaluator, Logger: logger, Denials: metrics}
	permissionHandler := authz.NewHandler(logger, grantStore, broker, auditLogger)

	usersRepo := users.NewRepository(dbpool)
	usersService := users.NewService(usersRepo, cfg.AdminEmail, broker, auditLogger, logger)
	usersHandler := users.NewHandler(logger, usersService)

	catalogRepo := catalog.NewRepository(dbpool)
	catalogService := catalog.NewService(catalogRepo, broker, auditLogger, logger)
	catalogHandler := catalog.NewHandler(logger, catalogService, authzMiddleware)

	priceRepo := pricehist.NewRepository(dbpool)
	priceService := pricehist.NewService(priceRepo, broker, auditLogger, logger)
	priceHandler := pricehist.NewHandler(logger, priceService, authzMiddleware)

	feedHandler := feed.NewHandler(logger, broker)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, jobClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		SessionManager:    sessionManager,
		CSRFManager:       csrfManager,
		AuthHandler:       authHandler,
		AuthMiddleware:    authMiddleware,
		AuthzMiddleware:   authzMiddleware,
		CatalogHandler:    catalogHandler,
		PriceHistHandler:  priceHandler,
		UsersHandler:      usersHandler,
		PermissionHandler: permissionHandler,
		FeedHandler:       feedHandler,
		JobHandler:        jobHandler,
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	group.Go(func() error {
		return runBlockBridge(groupCtx, broker, authService, guard, logger)
	})

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && err != context.Canceled {
		logger.Error("run", slog.Any("error", err))
		os.Exit(1)
	}
}

// runBlockBridge watches profile change events and pushes blocked principals
// into the guard so every live session of a blocked user is terminated, not
// only the one that happens to issue the next request.
func runBlockBridge(ctx context.Context, broker *feed.Broker, authService *auth.Service, guard *authz.Guard, logger *slog.Logger) error {
	events, err := broker.Subscribe(ctx, feed.TableProfiles)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				return nil
			}
			if event.Type != feed.EventUpdate {
				continue
			}
			profile, ok := event.New.(map[string]any)
			if !ok {
				continue
			}
			role, _ := profile["role"].(string)
			if role != authz.RoleBlocked {
				continue
			}
			userID, _ := profile["id"].(string)
			if userID == "" {
				continue
			}
			sessionIDs, err := authService.SessionIDsByUser(ctx, userID)
			if err != nil {
				logger.Warn("list sessions for blocked user",
					slog.String("user_id", userID), slog.Any("error", err))
				continue
			}
			for _, sid := range sessionIDs {
				guard.OnPrincipalChanged(ctx, sid, userID, authz.RoleBlocked)
			}
		}
	}
}
