//go:build !novips

package main

import (
	"go.uber.org/zap"

	"maptiles/internal/config"
	"maptiles/internal/decode"
	"maptiles/internal/vips_decoder"
)

// newDecoder returns the configured decoder and a cleanup func.
func newDecoder(cfg *config.Config, log *zap.Logger) (decode.Decoder, func(), error) {
	if cfg.Decoder != "vips" {
		d, err := decode.New(cfg.Decoder)
		return d, func() {}, err
	}

	shutdown := vips_decoder.Startup(vips_decoder.Config{
		MaxCacheMB:  cfg.VipsMaxCacheMB,
		Concurrency: cfg.VipsConcurrency,
	}, log)
	return vips_decoder.New(), shutdown, nil
}
