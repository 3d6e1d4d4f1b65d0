package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"fibermap/core-go/internal/config"
	"fibermap/core-go/internal/db"
	"fibermap/core-go/internal/enrichment/snmp"
	"fibermap/core-go/internal/httpapi"
	"fibermap/core-go/internal/locator"
	"fibermap/core-go/internal/metrics"
	"fibermap/core-go/internal/routecache"
	"fibermap/core-go/internal/topology"
	"fibermap/core-go/internal/trafficpoller"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger := httpapi.NewLogger("info")
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	logger := httpapi.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *db.Pool
	if cfg.DatabaseURL != "" {
		p, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer p.Close()
		pool = p
	}

	m := metrics.New()
	opts := httpapi.Options{
		Metrics:     m,
		CORSOrigins: cfg.CORSOrigins,
		Layout:      layoutOptions(cfg),
	}

	if q := pool.Queries(); q != nil {
		lopts := locator.Options{
			Defaults: locator.Settings{
				NearestSearchMaxKm:        cfg.Map.NearestSearchMaxKm,
				SnapMaxM:                  cfg.Map.SnapMaxM,
				AllowStraightlineFallback: cfg.Map.AllowStraightlineFallback,
			},
			Metrics: m,
		}
		if cache := openCache(ctx, cfg, logger); cache != nil {
			defer cache.Close()
			lopts.Cache = cache
		}
		opts.Locator = locator.New(logger, q, lopts)

		if cfg.TrafficPoll.Enabled {
			poller := trafficpoller.New(logger, q, nil, trafficpoller.Options{
				Interval: cfg.TrafficPoll.Interval,
				Workers:  cfg.TrafficPoll.Workers,
				SNMP: snmp.Config{
					Community: cfg.SNMP.Community,
					Version:   cfg.SNMP.Version,
					Port:      cfg.SNMP.Port,
					Timeout:   cfg.SNMP.Timeout,
					Retries:   cfg.SNMP.Retries,
				},
			}, m)
			go poller.Run(ctx)
		}
	}

	h := httpapi.NewHandler(logger, pool, opts)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("core-go listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	logger.Info().Msg("shutdown complete")
}

// openCache returns nil when no Redis is configured or it cannot be reached;
// routing then runs uncached.
func openCache(ctx context.Context, cfg config.Config, logger zerolog.Logger) *routecache.Cache {
	if cfg.RedisAddr == "" {
		return nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	cache, err := routecache.Open(pingCtx, cfg.RedisAddr, cfg.RouteCacheTTL, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("route cache disabled")
		return nil
	}
	return cache
}

func layoutOptions(cfg config.Config) topology.Options {
	o := topology.DefaultOptions()
	o.WarnBps = cfg.Weathermap.WarnBps
	o.HighBps = cfg.Weathermap.HighBps
	return o
}
