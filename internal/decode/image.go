package decode

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"sync"
)

// ImageDecoder decodes PNG and JPEG tiles with the Go image packages.
// It needs no cgo and is used when libvips is unavailable.
type ImageDecoder struct{}

func NewImageDecoder() *ImageDecoder {
	return &ImageDecoder{}
}

func (d *ImageDecoder) Decode(data []byte) (Surface, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode tile: %w", err)
	}
	return &imageSurface{img: img, format: format}, nil
}

type imageSurface struct {
	mu     sync.Mutex
	img    image.Image
	format string
}

func (s *imageSurface) Width() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.img == nil {
		return 0
	}
	return s.img.Bounds().Dx()
}

func (s *imageSurface) Height() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.img == nil {
		return 0
	}
	return s.img.Bounds().Dy()
}

func (s *imageSurface) Encode() ([]byte, error) {
	s.mu.Lock()
	img := s.img
	s.mu.Unlock()
	if img == nil {
		return nil, ErrClosed
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode %s tile: %w", s.format, err)
	}
	return buf.Bytes(), nil
}

func (s *imageSurface) Close() {
	s.mu.Lock()
	s.img = nil
	s.mu.Unlock()
}
