//go:build novips

package main

import (
	"go.uber.org/zap"

	"maptiles/internal/config"
	"maptiles/internal/decode"
)

// newDecoder returns the pure-Go decoder; this build does not link libvips.
func newDecoder(cfg *config.Config, log *zap.Logger) (decode.Decoder, func(), error) {
	if cfg.Decoder == "vips" {
		log.Warn("Built without libvips, using image decoder")
		cfg.Decoder = "image"
	}
	d, err := decode.New(cfg.Decoder)
	return d, func() {}, err
}
