package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/tunabay/go-infounit"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"maptiles/internal/cache"
	"maptiles/internal/config"
	httphandlers "maptiles/internal/http"
	"maptiles/internal/logger"
	"maptiles/internal/tile"
	"maptiles/internal/tile_loader"
	"maptiles/internal/upstream"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	decoder, shutdownDecoder, err := newDecoder(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize decoder", zap.Error(err))
	}
	defer shutdownDecoder()

	store, err := cache.NewStore(cfg.CacheType, cfg.CacheDir, cfg.TileExtension, log)
	if err != nil {
		log.Fatal("Failed to initialize cache", zap.Error(err))
	}
	evictor := cache.NewEvictor(store, infounit.ByteCount(cfg.CacheMaxBytes), log)

	client := upstream.New(upstream.Config{
		UserAgent:         cfg.UserAgent,
		Timeout:           cfg.FetchTimeout,
		Concurrency:       int64(cfg.FetchConcurrency),
		RequestsPerSecond: cfg.FetchRate,
		MaxBodySize:       infounit.ByteCount(cfg.MaxTileBytes),
	}, log)

	loader := tile_loader.New(tile_loader.Config{
		TileServer: cfg.TileServer,
		EvictEvery: cfg.EvictEvery,
	}, store, evictor, decoder, client, log)
	client.SetHandler(loader)

	log.Info("Starting maptiles server",
		zap.Int("port", cfg.Port),
		zap.String("cache_root", store.Root()),
		zap.String("max_size", fmt.Sprintf("%.1S", evictor.MaxSize())),
		zap.String("tile_server", cfg.TileServer),
	)

	loader.Evict()

	handlers := httphandlers.New(cfg, log, loader)

	if cfg.WarmupLevels > 0 {
		go warmupTiles(cfg.WarmupLevels, cfg.WarmupWorkers, loader, log)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: handlers.Routes(),
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	log.Info("Server started", zap.Int("port", cfg.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = multierr.Combine(
		server.Shutdown(ctx),
		client.Close(ctx),
	)
	if err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server stopped")
}

// warmupTiles requests every tile of zoom levels 0..levels so they are on
// disk before the first client asks.
func warmupTiles(levels int, workerLimit int, loader *tile_loader.Loader, log *zap.Logger) {
	if levels > tile.MaxZoom {
		levels = tile.MaxZoom
	}

	log.Info("Starting tile warmup", zap.Int("levels", levels))

	if workerLimit <= 0 {
		workerLimit = 1
	}

	workerChan := make(chan struct{}, workerLimit)
	var wg sync.WaitGroup

	for z := 0; z <= levels; z++ {
		n := uint32(1) << z
		for x := uint32(0); x < n; x++ {
			for y := uint32(0); y < n; y++ {
				wg.Add(1)
				workerChan <- struct{}{} // Acquire worker slot

				go func(c tile.Coord) {
					defer wg.Done()
					defer func() { <-workerChan }() // Release worker slot

					loader.RequestTile(c)
				}(tile.New(x, y, uint8(z)))
			}
		}
	}

	wg.Wait()
	log.Info("Tile warmup completed")
}
