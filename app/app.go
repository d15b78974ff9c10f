package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go-token-auth/config"
	"go-token-auth/db"
	"go-token-auth/handler"
	"go-token-auth/logger"
	"go-token-auth/repository"
	"go-token-auth/router"
	"go-token-auth/service"
	"go-token-auth/token"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// App holds the wired components of a running server.
type App struct {
	Config *config.Config
	DB     *sql.DB
	Redis  *redis.Client
	Auth   *service.AuthService
	Router http.Handler
	log    logrus.FieldLogger
}

// newBlacklist selects the blacklist backend named in the configuration.
func newBlacklist(ctx context.Context, cfg *config.Config, database *sql.DB, log logrus.FieldLogger) (repository.TokenBlacklist, *redis.Client, error) {
	switch cfg.Blacklist.Backend {
	case "redis":
		rdb, err := db.ConnectRedis(ctx, cfg, log)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewRedisBlacklist(rdb, log), rdb, nil
	case "memory":
		log.Warn("Using in-process token blacklist; revocations are lost on restart")
		return repository.NewMemoryBlacklist(), nil, nil
	default:
		return repository.NewBlacklistRepository(database, log), nil, nil
	}
}

// New connects the stores, loads the signing keys and wires every layer.
func New(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*App, error) {
	database, err := db.Connect(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := db.RunMigrations(database, cfg.Database.MigrationsPath, log); err != nil {
		database.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	private, public, err := token.LoadRSAKeys(cfg.JWT.PrivateKeyPath, cfg.JWT.PublicKeyPath)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("load signing keys: %w", err)
	}
	signer, err := token.NewRSASigner(private, public)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("build signer: %w", err)
	}

	blacklist, rdb, err := newBlacklist(ctx, cfg, database, log)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("build blacklist: %w", err)
	}

	store := repository.NewRefreshTokenRepository(database, log)
	credentials := service.NewCredentialService(repository.NewUserRepository(database, log), log)
	tokens := service.NewTokenService(
		token.NewCodec(cfg.JWT.Issuer, cfg.JWT.Audience),
		signer, store, blacklist, credentials,
		service.TokenConfigFrom(cfg.JWT), log,
	)
	auth := service.NewAuthService(tokens, credentials, credentials, store, blacklist, cfg.JWT.MaxActiveTokens, log)

	authHandler := handler.NewAuthHandler(auth, cfg.Maintenance.RevokedRetentionDays)
	userHandler := handler.NewUserHandler(credentials)

	return &App{
		Config: cfg,
		DB:     database,
		Redis:  rdb,
		Auth:   auth,
		Router: router.NewRouter(authHandler, userHandler, auth),
		log:    log,
	}, nil
}

// RunMaintenance runs both cleanup passes every interval until ctx is done.
func (a *App) RunMaintenance(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		a.log.Info("Token maintenance disabled")
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired := a.Auth.CleanupExpiredTokens(ctx, nil)
			revoked := a.Auth.CleanupRevokedTokens(ctx, a.Config.Maintenance.RevokedRetentionDays)
			a.log.WithFields(logrus.Fields{
				"expired_deleted": expired,
				"revoked_deleted": revoked,
			}).Debug("Token maintenance pass finished")
		}
	}
}

func (a *App) Close() {
	if a.Redis != nil {
		a.Redis.Close()
	}
	a.DB.Close()
}

func Run() {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Log.Fatalf("Error loading configuration: %v", err)
	}
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	logger.Log.Info("Configuration loaded successfully")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := New(ctx, cfg, logger.Log)
	if err != nil {
		logger.Log.Fatalf("Error starting application: %v", err)
	}
	defer a.Close()

	go a.RunMaintenance(ctx, cfg.Maintenance.CleanupInterval)

	port := cfg.Server.Port
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Log.Infof("Server starting on port :%s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Log.Warn("Shutdown signal received. Starting graceful shutdown...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Log.Info("Server exited properly")
}
