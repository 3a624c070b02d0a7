// Package vips_decoder decodes tiles with libvips. It is the only package
// besides cmd/server that links vipsgen.
package vips_decoder

import (
	"fmt"
	"sync"

	"github.com/cshum/vipsgen/vips"
	"go.uber.org/zap"

	"maptiles/internal/decode"
)

type Config struct {
	MaxCacheMB  int
	Concurrency int
}

// Startup initializes libvips and routes its warnings to log. The returned
// func shuts libvips down.
func Startup(cfg Config, log *zap.Logger) func() {
	vipsConfig := &vips.Config{
		ConcurrencyLevel: cfg.Concurrency,
		MaxCacheMem:      cfg.MaxCacheMB * 1024 * 1024, // Convert MB to bytes
		MaxCacheFiles:    0,                            // Disable disk cache
		MaxCacheSize:     0,                            // Disable disk cache
		ReportLeaks:      false,
		CacheTrace:       false,
		VectorEnabled:    true,
	}

	vips.SetLogging(func(domain string, level vips.LogLevel, message string) {
		if level >= vips.LogLevelError {
			log.Error("vips", zap.String("domain", domain), zap.Int("level", int(level)), zap.String("message", message))
		} else if level >= vips.LogLevelWarning {
			log.Warn("vips", zap.String("domain", domain), zap.Int("level", int(level)), zap.String("message", message))
		}
	}, vips.LogLevelError)

	vips.Startup(vipsConfig)

	log.Info("VIPS initialized",
		zap.Int("max_cache_mb", cfg.MaxCacheMB),
		zap.Int("concurrency", cfg.Concurrency),
	)
	return vips.Shutdown
}

// Decoder decodes tiles with libvips. Startup must have been called.
type Decoder struct{}

var _ decode.Decoder = (*Decoder)(nil)

func New() *Decoder {
	return &Decoder{}
}

func (d *Decoder) Decode(data []byte) (decode.Surface, error) {
	if len(data) == 0 {
		return nil, decode.ErrEmpty
	}

	image, err := vips.NewImageFromBuffer(data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load tile: %w", err)
	}
	return &surface{image: image}, nil
}

// surface serializes access to the vips image. After Close the image is
// released and Encode reports decode.ErrClosed.
type surface struct {
	mu    sync.Mutex
	image *vips.Image
}

func (s *surface) Width() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.image == nil {
		return 0
	}
	return s.image.Width()
}

func (s *surface) Height() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.image == nil {
		return 0
	}
	return s.image.Height()
}

func (s *surface) Encode() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.image == nil {
		return nil, decode.ErrClosed
	}

	pngOpts := vips.DefaultPngsaveBufferOptions()
	pngOpts.Interlace = false

	data, err := s.image.PngsaveBuffer(pngOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to export: %w", err)
	}
	return data, nil
}

func (s *surface) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.image != nil {
		s.image.Close()
		s.image = nil
	}
}
