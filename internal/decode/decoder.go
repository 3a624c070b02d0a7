package decode

import (
	"errors"
	"fmt"
)

// Surface is a decoded, display-ready tile. The cache treats it as opaque.
type Surface interface {
	Width() int
	Height() int
	// Encode returns the surface as PNG bytes, or ErrClosed after Close.
	Encode() ([]byte, error)
	// Close releases the pixels. It may run while another goroutine holds
	// the surface.
	Close()
}

// Decoder turns raw tile bytes into a Surface.
type Decoder interface {
	Decode(data []byte) (Surface, error)
}

var (
	ErrEmpty  = errors.New("empty tile data")
	ErrClosed = errors.New("surface closed")
)

// New returns the pure-Go decoder registered under name. The libvips decoder
// lives in package vips_decoder so that this package stays cgo-free.
func New(name string) (Decoder, error) {
	switch name {
	case "image":
		return NewImageDecoder(), nil
	default:
		return nil, fmt.Errorf("unknown decoder: %s (supported: image)", name)
	}
}
