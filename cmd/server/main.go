package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/crypto/bcrypt"

	"pizzatruck/backend/internal/cache"
	"pizzatruck/backend/internal/config"
	"pizzatruck/backend/internal/domain"
	"pizzatruck/backend/internal/httpapi"
	"pizzatruck/backend/internal/logger"
	"pizzatruck/backend/internal/service"
	"pizzatruck/backend/internal/store"
	"pizzatruck/backend/internal/store/memory"
	pgstore "pizzatruck/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Development: cfg.LogDevelopment})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)
	defer func() { _ = log.Sync() }()

	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalw("invalid security configuration", "error", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ctx = logger.WithLogger(ctx, log)

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL, pgstore.WithMaxRetries(cfg.TxMaxRetries))
		if err != nil {
			log.Fatalw("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback", "error", err)
		}
		closers = append(closers, pg.Close)
		if cfg.DBAutoMigrate {
			if err := pg.Migrate(ctx); err != nil {
				log.Fatalw("schema migration failed", "error", err)
			}
		}
		if err := bootstrapUsers(ctx, pg); err != nil {
			log.Fatalw("user bootstrap failed", "error", err)
		}
		repo = pg
		log.Infow("repository ready", "kind", "postgres", "tx_max_retries", cfg.TxMaxRetries)
	} else {
		repo = memory.NewSeeded()
		log.Infow("repository ready", "kind", "memory")
	}

	stockCache := cache.StockCache(cache.NoopStockCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisStockCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Warnw("redis unavailable, using noop cache", "error", err)
		} else {
			stockCache = redisCache
			closers = append(closers, redisCache.Close)
			log.Infow("cache ready", "kind", "redis", "ttl", cfg.StockCacheTTL())
		}
	} else {
		log.Infow("cache ready", "kind", "noop")
	}

	svc := service.New(repo, stockCache, service.WithStockCacheTTL(cfg.StockCacheTTL()))
	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL(), repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Infow("pizza truck backend listening", "addr", cfg.Address())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server error", "error", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warnw("shutdown error", "error", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Warnw("close error", "error", err)
		}
	}

	log.Infow("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.TxMaxRetries < 0 {
		return fmt.Errorf("TX_MAX_RETRIES must not be negative")
	}
	return nil
}

type userBootstrapper interface {
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	CreateUser(ctx context.Context, user domain.UserAccount) error
}

// bootstrapUsers creates the first accounts of an empty user table from
// SEED_ADMIN_PASSWORD, SEED_CASHIER_PASSWORD and SEED_KITCHEN_PASSWORD.
// Unset variables skip that account.
func bootstrapUsers(ctx context.Context, users userBootstrapper) error {
	existing, err := users.ListUsers(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	accounts := []struct {
		username string
		envKey   string
		role     string
	}{
		{"admin", "SEED_ADMIN_PASSWORD", domain.RoleAdmin},
		{"cashier", "SEED_CASHIER_PASSWORD", domain.RoleCashier},
		{"kitchen", "SEED_KITCHEN_PASSWORD", domain.RoleKitchen},
	}
	created := 0
	for _, a := range accounts {
		password := strings.TrimSpace(os.Getenv(a.envKey))
		if password == "" {
			continue
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		if err := users.CreateUser(ctx, domain.UserAccount{
			Username:  a.username,
			Password:  string(hash),
			Role:      a.role,
			Active:    true,
			CreatedAt: time.Now().UTC(),
		}); err != nil {
			return fmt.Errorf("create %s: %w", a.username, err)
		}
		created++
	}
	if created == 0 {
		logger.Warn(ctx, "user table is empty and no SEED_*_PASSWORD is set; nobody can log in")
		return nil
	}
	logger.Info(ctx, "bootstrapped user accounts", "count", created)
	return nil
}
