package tile_loader

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/tunabay/go-infounit"
	"go.uber.org/zap"

	"maptiles/internal/cache"
	"maptiles/internal/decode"
	"maptiles/internal/metrics"
	"maptiles/internal/tile"
)

const (
	// Carto Voyager, no API key required.
	DefaultTileServer = "https://a.basemaps.cartocdn.com/rastertiles/voyager/{z}/{x}/{y}@2x.png"
	DefaultEvictEvery = 100
)

// Fetcher issues a network fetch and later delivers exactly one completion
// for id to the Loader. Issue must not deliver synchronously.
type Fetcher interface {
	Issue(id cache.RequestID, url string)
}

type Config struct {
	TileServer string
	// EvictEvery runs eviction after every Nth successful network body.
	EvictEvery int
}

// Loader decides per tile whether to serve from memory, from disk or from
// the network, and applies network results to both tiers.
//
// All state transitions happen under mu, which makes the Loader the single
// owner of its MemoryCache. Disk I/O and decoding run while the lock is held.
type Loader struct {
	mu         sync.Mutex
	memory     *cache.MemoryCache
	store      cache.Store
	evictor    *cache.Evictor
	decoder    decode.Decoder
	fetcher    Fetcher
	tileServer string
	evictEvery uint64
	saves      uint64
	newID      func() cache.RequestID
	logger     *zap.Logger
}

// Stats is a snapshot of the cache tiers.
type Stats struct {
	Tiles     int                `json:"tiles"`
	Pending   int                `json:"pending"`
	DiskRoot  string             `json:"disk_root"`
	DiskBytes infounit.ByteCount `json:"disk_bytes"`
	MaxBytes  infounit.ByteCount `json:"max_bytes"`
}

func New(cfg Config, store cache.Store, evictor *cache.Evictor, decoder decode.Decoder, fetcher Fetcher, logger *zap.Logger) *Loader {
	if cfg.TileServer == "" {
		cfg.TileServer = DefaultTileServer
	}
	if cfg.EvictEvery <= 0 {
		cfg.EvictEvery = DefaultEvictEvery
	}
	return &Loader{
		memory:     cache.NewMemoryCache(),
		store:      store,
		evictor:    evictor,
		decoder:    decoder,
		fetcher:    fetcher,
		tileServer: cfg.TileServer,
		evictEvery: uint64(cfg.EvictEvery),
		newID:      uuid.New,
		logger:     logger,
	}
}

// SetTileServer changes the URL template used for future fetches.
func (l *Loader) SetTileServer(template string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tileServer = template
}

// RequestTile makes sure c is loaded or loading. A tile already known to the
// memory tier, in any state, is left alone.
func (l *Loader) RequestTile(c tile.Coord) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.memory.Lookup(c); ok {
		metrics.MemoryHits.Inc()
		return
	}

	if data, ok := l.store.Load(c); ok {
		surface, err := l.decoder.Decode(data)
		if err == nil {
			metrics.DiskHits.Inc()
			l.memory.MarkReady(c, surface)
			return
		}
		// Corrupt file: refetch, leave the file for the next save to overwrite.
		metrics.DiskCorrupt.Inc()
		l.logger.Debug("Corrupt disk tile", zap.Stringer("tile", c), zap.Error(err))
	} else {
		metrics.DiskMisses.Inc()
	}

	id := l.newID()
	url := c.URL(l.tileServer)
	l.fetcher.Issue(id, url)
	l.memory.MarkPending(c, id)
	metrics.UpstreamFetches.Inc()

	l.logger.Debug("Fetching tile",
		zap.Stringer("tile", c),
		zap.Stringer("request_id", id),
		zap.String("url", url),
	)
}

// HandleFetchCompletion applies a network response. Responses for unknown or
// already resolved ids, including those issued before ClearAll, are dropped.
func (l *Loader) HandleFetchCompletion(id cache.RequestID, statusCode int, body []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.memory.Resolve(id)
	if !ok {
		l.logger.Debug("Dropping stale tile response", zap.Stringer("request_id", id))
		return
	}

	switch {
	case statusCode < 200 || statusCode > 299:
		l.fail(c, "status", fmt.Sprintf("HTTP %d", statusCode))
		return
	case len(body) == 0:
		l.fail(c, "empty", "empty response body")
		return
	}

	if !l.store.Save(c, body) {
		l.logger.Debug("Tile not persisted", zap.Stringer("tile", c))
	}
	l.saves++
	if l.saves%l.evictEvery == 0 {
		l.evict()
	}

	surface, err := l.decoder.Decode(body)
	if err != nil {
		l.fail(c, "decode", fmt.Sprintf("decode error: %v", err))
		return
	}
	l.memory.MarkReady(c, surface)
}

// HandleFetchError marks the tile failed after a transport error.
func (l *Loader) HandleFetchError(id cache.RequestID, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.memory.Resolve(id)
	if !ok {
		return
	}
	l.fail(c, "transport", fmt.Sprintf("transport error: %v", err))
}

func (l *Loader) fail(c tile.Coord, kind, reason string) {
	metrics.UpstreamFailures.WithLabelValues(kind).Inc()
	l.memory.MarkFailed(c, reason)
	l.logger.Warn("Tile failed", zap.Stringer("tile", c), zap.String("reason", reason))
}

func (l *Loader) evict() cache.EvictionResult {
	res := l.evictor.EvictIfNeeded()
	metrics.EvictedFiles.Add(float64(res.Removed))
	metrics.EvictedBytes.Add(float64(res.Freed))
	return res
}

// Evict runs an eviction pass immediately.
func (l *Loader) Evict() cache.EvictionResult {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.evict()
}

func (l *Loader) Lookup(c tile.Coord) (cache.State, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.memory.Lookup(c)
}

// Tile returns the surface of a ready tile.
func (l *Loader) Tile(c tile.Coord) (decode.Surface, bool) {
	st, ok := l.Lookup(c)
	if !ok || st.Status != cache.StatusReady {
		return nil, false
	}
	return st.Surface, true
}

// ClearAll forgets every tile in memory and deletes the disk tier. Dropped
// surfaces are closed; a caller still holding one gets decode.ErrClosed from
// Encode. Fetches in flight are not cancelled; their completions are discarded.
func (l *Loader) ClearAll() {
	l.mu.Lock()
	defer l.mu.Unlock()

	dropped := l.memory.Clear()
	for _, s := range dropped {
		s.Close()
	}
	l.store.RemoveAll()
	l.logger.Info("Tile cache cleared", zap.Int("closed_surfaces", len(dropped)))
}

func (l *Loader) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	return Stats{
		Tiles:     l.memory.Len(),
		Pending:   l.memory.PendingLen(),
		DiskRoot:  l.store.Root(),
		DiskBytes: l.store.TotalSize(),
		MaxBytes:  l.evictor.MaxSize(),
	}
}
