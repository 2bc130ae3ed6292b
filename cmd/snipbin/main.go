package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"snipbin/cfg"
	"snipbin/metrics"
	"snipbin/pkg/ident"
	"snipbin/svc/api"
	"snipbin/svc/cache"
	"snipbin/svc/lim"
	"snipbin/svc/store"
	"snipbin/svc/svc"
	"snipbin/svc/util"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()

	c, err := cfg.Load()
	if err != nil {
		util.Fatal().Err(err).Msg("failed to load configuration")
		os.Exit(1)
	}
	if err := cfg.Validate(c); err != nil {
		util.Fatal().Err(err).Msg("invalid configuration")
		os.Exit(1)
	}
	defer c.Wipe()
	util.InitLog(c.LogLevel, c.Environment == "development")
	util.Info().Str("environment", c.Environment).Msg("starting snipbin API")
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var repo store.Repository
	var sqlDB *store.SQLite
	switch c.StorageBackend {
	case "sqlite":
		sqlDB, err = store.NewSQLiteWithConfig(c.DatabasePath, c.DBMaxOpenConns, c.DBMaxIdleConns, c.DBQueryTimeout)
		if err != nil {
			util.Fatal().Err(err).Msg("failed to initialize database")
			os.Exit(1)
		}
		repo = sqlDB
		util.Info().Str("path", c.DatabasePath).Msg("sqlite storage initialized")
	default:
		repo = store.NewMemory()
		util.Info().Msg("in-memory storage initialized")
	}
	defer repo.Close()

	var rdb *store.Redis
	if c.RedisURL != "" {
		rdb, err = store.NewRedis(c.RedisURL, c)
		if err != nil {
			if c.Environment == "production" {
				util.Fatal().Err(err).Msg("redis required in production")
				os.Exit(1)
			}
			util.Warn().Err(err).Msg("redis unavailable, continuing without shared cache")
			rdb = nil
		} else {
			util.Info().Msg("redis connected")
		}
	}
	if rdb != nil {
		defer rdb.Close()
	}

	lruCache, err := cache.NewLRU(c.LRUCacheSize, c.CacheTTL)
	if err != nil {
		util.Fatal().Err(err).Msg("failed to create LRU cache")
		os.Exit(1)
	}
	util.Info().Int("size", c.LRUCacheSize).Dur("ttl", c.CacheTTL).Msg("LRU cache initialized")

	gen, err := ident.NewGenerator(c.WorkerID)
	if err != nil {
		util.Fatal().Err(err).Msg("failed to create identity generator")
		os.Exit(1)
	}
	obf, err := ident.NewObfuscator([]byte(c.ObfuscationKey.Value()))
	if err != nil {
		util.Fatal().Err(err).Msg("failed to create token obfuscator")
		os.Exit(1)
	}
	issuer := ident.NewIssuer(gen, obf)
	util.Info().Int64("worker_id", c.WorkerID).Msg("token issuer initialized")

	limiter := lim.New(c.RateLimitPerMinute, rdb)
	defer limiter.Stop()
	util.Info().
		Int("per_minute", c.RateLimitPerMinute).
		Strs("trusted_proxies", c.TrustedProxies).
		Msg("rate limiter initialized")

	pasteSvc := svc.NewPaste(repo, lruCache, rdb, limiter, issuer, c)
	server := api.NewServer(c, pasteSvc, repo, rdb)

	if err := svc.StartCleaner(ctx, repo, c.CleanupInterval); err != nil {
		util.Error().Err(err).Msg("failed to start cleanup worker")
	} else {
		util.Info().Dur("interval", c.CleanupInterval).Msg("expired paste cleanup worker started")
	}

	quitWAL := make(chan struct{})
	if sqlDB != nil {
		go store.StartWALMaintenance(sqlDB.DB(), quitWAL)
		util.Info().Msg("WAL maintenance worker started")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		util.Info().Str("port", c.Port).Msg("server starting")
		return server.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		util.Info().Msg("shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		util.Error().Err(err).Msg("server exited with error")
	}
	close(quitWAL)
	util.Info().Msg("shutdown complete")
}
