package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/tunabay/go-infounit"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"maptiles/internal/cache"
	"maptiles/internal/metrics"
)

const (
	tracerName = "maptiles/internal/upstream"

	DefaultMaxBodySize = 8 * infounit.Mebibyte
)

var (
	ErrClosed       = errors.New("upstream client closed")
	ErrBodyTooLarge = errors.New("tile body too large")
)

// Handler receives exactly one completion per issued fetch.
type Handler interface {
	HandleFetchCompletion(id cache.RequestID, statusCode int, body []byte)
	HandleFetchError(id cache.RequestID, err error)
}

type Config struct {
	UserAgent   string
	Timeout     time.Duration
	Concurrency int64
	// RequestsPerSecond limits fetch starts. Zero disables the limit.
	RequestsPerSecond float64
	// MaxBodySize caps a tile response body. Zero means DefaultMaxBodySize.
	MaxBodySize infounit.ByteCount
}

// Client issues tile fetches asynchronously and reports their results to a
// Handler.
type Client struct {
	httpClient *http.Client
	userAgent  string
	sem        *semaphore.Weighted
	limiter    *rate.Limiter
	maxBody    infounit.ByteCount
	handler    Handler
	logger     *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.MaxBodySize == 0 {
		cfg.MaxBodySize = DefaultMaxBodySize
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "maptiles/1.0"
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		userAgent:  cfg.UserAgent,
		sem:        semaphore.NewWeighted(cfg.Concurrency),
		limiter:    limiter,
		maxBody:    cfg.MaxBodySize,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// SetHandler binds the completion receiver. It must be called before Issue.
func (c *Client) SetHandler(h Handler) {
	c.handler = h
}

// Issue starts fetching url in the background and returns immediately.
// After Close the fetch fails with ErrClosed, still delivered asynchronously.
func (c *Client) Issue(id cache.RequestID, url string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		go c.handler.HandleFetchError(id, ErrClosed)
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.fetch(id, url)
	}()
}

func (c *Client) fetch(id cache.RequestID, url string) {
	ctx, span := otel.Tracer(tracerName).Start(c.ctx, "tile.fetch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("url.full", url),
			attribute.String("tile.request_id", id.String()),
		),
	)
	defer span.End()

	fail := func(err error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn("Tile fetch failed", zap.String("url", url), zap.Error(err))
		c.handler.HandleFetchError(id, err)
	}

	if err := c.sem.Acquire(ctx, 1); err != nil {
		fail(fmt.Errorf("waiting for fetch slot: %w", err))
		return
	}
	defer c.sem.Release(1)

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			fail(fmt.Errorf("rate limit: %w", err))
			return
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		fail(fmt.Errorf("failed to create request: %w", err))
		return
	}
	req.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.UpstreamLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		fail(err)
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(c.maxBody)+1))
	if err != nil {
		fail(fmt.Errorf("failed to read tile data: %w", err))
		return
	}
	if infounit.ByteCount(len(body)) > c.maxBody {
		fail(fmt.Errorf("%w: over %.1S", ErrBodyTooLarge, c.maxBody))
		return
	}

	span.SetAttributes(
		attribute.Int("http.response.status_code", resp.StatusCode),
		attribute.Int("http.response.body.size", len(body)),
	)
	c.logger.Debug("Fetched tile",
		zap.String("url", url),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(body)),
		zap.Duration("duration", time.Since(start)),
	)
	c.handler.HandleFetchCompletion(id, resp.StatusCode, body)
}

// Close cancels outstanding fetches and waits for their completions to be
// delivered, or for ctx to end.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.cancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
