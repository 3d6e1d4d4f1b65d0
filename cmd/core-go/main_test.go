package main

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fibermap/core-go/internal/config"
)

func TestLayoutOptions_UsesConfiguredThresholds(t *testing.T) {
	cfg := config.Default()
	cfg.Weathermap.WarnBps = 1_000
	cfg.Weathermap.HighBps = 2_000

	o := layoutOptions(cfg)
	assert.Equal(t, 1_000.0, o.WarnBps)
	assert.Equal(t, 2_000.0, o.HighBps)
}

func TestOpenCache(t *testing.T) {
	log := zerolog.New(io.Discard)
	ctx := context.Background()

	cfg := config.Default()
	cfg.RedisAddr = ""
	assert.Nil(t, openCache(ctx, cfg, log), "no address means no cache")

	mr, err := miniredis.Run()
	require.NoError(t, err)
	cfg.RedisAddr = mr.Addr()
	cfg.RouteCacheTTL = time.Minute
	cache := openCache(ctx, cfg, log)
	require.NotNil(t, cache)
	require.NoError(t, cache.Close())

	mr.Close()
	assert.Nil(t, openCache(ctx, cfg, log), "unreachable redis falls back to uncached routing")
}
