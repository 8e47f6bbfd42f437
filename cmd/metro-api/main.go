// README: Entry point; loads config, wires services, serves HTTP until SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"metro/internal/config"
	httptransport "metro/internal/http"
	"metro/internal/infra"
	"metro/internal/modules/catalog"
	"metro/internal/modules/trip"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := infra.NewLogger(cfg.Log.Mode)
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("metro-api stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	var (
		dbPool      *pgxpool.Pool
		redisClient *redis.Client
		verifier    infra.TokenVerifier
	)

	// connect dependencies in parallel; any failure aborts startup
	startup, sctx := errgroup.WithContext(ctx)
	startup.Go(func() error {
		pool, err := infra.NewDB(sctx, cfg.DB.DSN)
		if err != nil {
			return fmt.Errorf("db init: %w", err)
		}
		dbPool = pool
		return nil
	})
	startup.Go(func() error {
		client := infra.NewRedis(cfg.Redis.Addr)
		pingCtx, cancel := context.WithTimeout(sctx, 3*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			// the cache is optional; lookups fall through to Postgres
			logger.Warn("redis unavailable, catalog cache disabled", zap.Error(err))
			_ = client.Close()
			return nil
		}
		redisClient = client
		return nil
	})
	startup.Go(func() error {
		v, err := newVerifier(sctx, cfg.Auth)
		if err != nil {
			return fmt.Errorf("auth init: %w", err)
		}
		verifier = v
		return nil
	})
	if err := startup.Wait(); err != nil {
		if dbPool != nil {
			dbPool.Close()
		}
		return err
	}
	defer dbPool.Close()
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	var cache *catalog.Cache
	if redisClient != nil {
		cache = catalog.NewCache(redisClient, time.Duration(cfg.Catalog.CacheTTLSeconds)*time.Second)
	}
	catalogSvc := catalog.NewService(
		catalog.NewStore(dbPool, cfg.Trip.Currency),
		cache,
		newEstimator(cfg.Catalog, logger),
		logger,
	)
	tripSvc := trip.NewService(
		trip.NewPgStore(dbPool),
		catalogSvc,
		logger,
		trip.WithMaxAttempts(cfg.Trip.MaxAttempts),
	)

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Catalog:     catalogSvc,
		Trips:       tripSvc,
		Verifier:    verifier,
		Log:         logger,
		CORSOrigins: cfg.HTTP.CORSOrigins,
		Currency:    cfg.Trip.Currency,
	})
	return httptransport.NewServer(cfg.HTTP.Addr, router, logger).Run(ctx)
}

func newVerifier(ctx context.Context, cfg config.AuthConfig) (infra.TokenVerifier, error) {
	if cfg.Mode == "firebase" {
		return infra.NewFirebaseVerifier(ctx, cfg.ProjectID, cfg.CredentialsFile)
	}
	return infra.NewJWTVerifier(cfg.JWTSecret), nil
}

func newEstimator(cfg config.CatalogConfig, logger *zap.Logger) catalog.Estimator {
	random := catalog.RandomEstimator{Min: 30, Max: 300}
	if cfg.MapsAPIKey == "" {
		return random
	}
	maps, err := catalog.NewMapsEstimator(cfg.MapsAPIKey)
	if err != nil {
		logger.Warn("maps estimator disabled", zap.Error(err))
		return random
	}
	return catalog.FallbackEstimator{Primary: maps, Secondary: random}
}
