package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rafflehq/ticket-engine/internal/cache"
	"github.com/rafflehq/ticket-engine/internal/checkout"
	"github.com/rafflehq/ticket-engine/internal/config"
	"github.com/rafflehq/ticket-engine/internal/content"
	"github.com/rafflehq/ticket-engine/internal/db"
	"github.com/rafflehq/ticket-engine/internal/entries"
	"github.com/rafflehq/ticket-engine/internal/http/api/admin"
	"github.com/rafflehq/ticket-engine/internal/http/api/front"
	"github.com/rafflehq/ticket-engine/internal/identity"
	"github.com/rafflehq/ticket-engine/internal/logging"
	"github.com/rafflehq/ticket-engine/internal/maintenance"
	"github.com/rafflehq/ticket-engine/internal/payments"
	"github.com/rafflehq/ticket-engine/internal/retry"
	"github.com/rafflehq/ticket-engine/internal/sequencer"
	"github.com/rafflehq/ticket-engine/internal/settings"
	"github.com/rafflehq/ticket-engine/internal/settlement"
	"github.com/rafflehq/ticket-engine/internal/util"
	"github.com/rafflehq/ticket-engine/internal/wallet"
	"github.com/rafflehq/ticket-engine/internal/winning"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const shutdownTimeout = 15 * time.Second

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	defer db.Close(conn)
	if errMigrate := db.Migrate(conn.WithContext(ctx)); errMigrate != nil {
		return errMigrate
	}
	log.Info("migrations applied")
	return nil
}

// RunServer boots the ticket engine HTTP server and its background maintenance loop.
// It blocks until ctx is cancelled or the listener fails.
func RunServer(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	appCfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logCloser, errLog := logging.Setup(appCfg.Log)
	if errLog != nil {
		return errLog
	}
	defer func() { _ = logCloser.Close() }()

	conn, err := openDatabase(appCfg.Database)
	if err != nil {
		return err
	}
	defer db.Close(conn)
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}
	if errRefresh := settings.RefreshDBConfigSnapshot(ctx, conn); errRefresh != nil {
		log.WithError(errRefresh).Warn("initial settings refresh failed")
	}

	redisClient, errRedis := cache.Open(ctx, cache.Config{
		Addr:     appCfg.Redis.Addr,
		Password: appCfg.Redis.Password,
		DB:       appCfg.Redis.DB,
		Prefix:   appCfg.Redis.Prefix,
	})
	if errRedis != nil {
		log.WithError(errRedis).Warn("redis unavailable, continuing without it")
		redisClient = nil
	}
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	policy := retry.Policy{
		MaxAttempts: appCfg.Checkout.MaxAttempts,
		BaseDelay:   appCfg.Checkout.BaseBackoff,
		MaxDelay:    appCfg.Checkout.MaxBackoff,
	}
	if policy.MaxAttempts <= 0 {
		policy = retry.DefaultPolicy()
	}

	seq := sequencer.New(conn,
		sequencer.WithRetryPolicy(policy),
		sequencer.WithLockTimeout(appCfg.Sequencer.LockTimeout),
	)
	entryStore := entries.NewStore(conn)
	ledger := wallet.NewLedger(conn, policy)
	tracker := payments.NewTracker(conn, appCfg.Gateway.SuccessCode)
	registry := winning.NewRegistry(conn)

	coordinator := checkout.New(conn, checkout.Deps{
		Sequencer: seq,
		Entries:   entryStore,
		Wallet:    ledger,
		Payments:  tracker,
		Gateway: payments.NewHTTPGateway(payments.GatewayConfig{
			BaseURL: appCfg.Gateway.BaseURL,
			APIKey:  appCfg.Gateway.APIKey,
			Timeout: appCfg.Gateway.Timeout,
		}),
		Detector: settlement.NewDetector(),
		Guard:    cache.NewGuard(redisClient, appCfg.Redis.Prefix),
	}, checkout.Config{
		Currency:                  appCfg.Gateway.Currency,
		GatewayTimeout:            appCfg.Gateway.Timeout,
		MaxQuantityPerLine:        appCfg.Checkout.MaxQuantityPerLine,
		RefundFailedLinesToWallet: appCfg.Checkout.RefundToWallet(),
		Retry:                     policy,
	})

	var contentCache content.Cache
	if redisClient != nil {
		contentCache = cache.NewJSONCache(redisClient, appCfg.Redis.Prefix)
	}
	contentClient := content.NewClient(content.Config{
		BaseURL:  appCfg.CMS.BaseURL,
		APIKey:   appCfg.CMS.APIKey,
		Timeout:  appCfg.CMS.Timeout,
		CacheTTL: appCfg.CMS.CacheTTL,
	}, contentCache)

	reaper := maintenance.NewReaper(conn, tracker, appCfg.Checkout.ReaperInterval)
	reaper.SetPendingOrderTTL(appCfg.Checkout.PendingOrderTTL)
	reaper.Start(ctx)

	if appCfg.Server.Mode != "" {
		gin.SetMode(appCfg.Server.Mode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery(), logging.GinMiddleware())
	front.RegisterFrontRoutes(engine, front.Deps{
		DB:          conn,
		JWTSecret:   appCfg.JWT.Secret,
		Resolver:    identity.NewResolver(conn),
		Coordinator: coordinator,
		Entries:     entryStore,
		Wallet:      ledger,
		Registry:    registry,
		Content:     contentClient,
	})
	admin.RegisterAdminRoutes(engine, admin.Deps{
		DB:       conn,
		JWT:      appCfg.JWT,
		Registry: registry,
		Entries:  entryStore,
		Wallet:   ledger,
		Payments: tracker,
		Redis:    redisClient,
	})

	server := &http.Server{
		Addr:              appCfg.Server.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.WithFields(log.Fields{
			"addr":     appCfg.Server.Addr,
			"config":   configPath,
			"gateway":  appCfg.Gateway.BaseURL,
			"redis":    appCfg.Redis.Addr != "",
			"database": util.HideSecret(appCfg.Database.DSN),
		}).Info("ticket engine listening")
		if errServe := server.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			serveErr <- errServe
		}
		close(serveErr)
	}()

	select {
	case errServe, ok := <-serveErr:
		if ok {
			return fmt.Errorf("app: serve: %w", errServe)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
		return fmt.Errorf("app: shutdown: %w", errShutdown)
	}
	log.Info("ticket engine stopped")
	return nil
}

// openDatabase opens the DSN and applies pool settings.
func openDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	conn, err := db.Open(cfg.DSN)
	if err != nil {
		return nil, err
	}
	sqlDB, errDB := conn.DB()
	if errDB != nil {
		return nil, fmt.Errorf("app: database handle: %w", errDB)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return conn, nil
}
