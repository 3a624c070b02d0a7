package http

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"maptiles/internal/cache"
	"maptiles/internal/config"
	"maptiles/internal/decode"
	"maptiles/internal/tile"
	"maptiles/internal/tile_loader"
)

type Handlers struct {
	config *config.Config
	logger *zap.Logger
	loader *tile_loader.Loader
}

func New(config *config.Config, logger *zap.Logger, loader *tile_loader.Loader) *Handlers {
	return &Handlers{
		config: config,
		logger: logger,
		loader: loader,
	}
}

// Routes returns the service mux wrapped in CORS and request logging.
func (h *Handlers) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/tiles/", h.HandleTile)
	mux.HandleFunc("/api/cache", h.HandleCache)
	mux.HandleFunc("/healthz", h.HandleHealthz)
	mux.Handle("/metrics", promhttp.Handler())

	return h.CORSMiddleware(h.RequestLoggingMiddleware(mux))
}

func (h *Handlers) RequestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		h.logger.Info("request",
			zap.String("request_id", requestID),
			zap.String("ip", h.extractIP(r)),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", wrapped.statusCode),
			zap.Int64("bytes", wrapped.bytesWritten),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (h *Handlers) CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowedOrigin := h.config.AllowedOrigin
		if allowedOrigin == "" {
			allowedOrigin = "*"
		}

		w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// HandleCache reports tier statistics (GET) or clears both tiers (DELETE).
func (h *Handlers) HandleCache(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(h.loader.Stats())
	case http.MethodDelete:
		h.loader.ClearAll()
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleTile serves /api/tiles/{z}/{x}/{y}.png from whichever tier has it.
// A tile still loading answers 202 so the client can poll. HEAD only reports
// what memory holds and never starts a load.
func (h *Handlers) HandleTile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/tiles/")
	coord, err := parseTilePath(path)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if r.Method == http.MethodGet {
		h.loader.RequestTile(coord)
	}

	st, ok := h.loader.Lookup(coord)
	if !ok {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		// cleared between request and lookup
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusAccepted)
		return
	}

	switch st.Status {
	case cache.StatusPending:
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusAccepted)
	case cache.StatusFailed:
		http.Error(w, st.Reason, http.StatusBadGateway)
	case cache.StatusReady:
		data, err := st.Surface.Encode()
		if errors.Is(err, decode.ErrClosed) {
			// released by a concurrent clear
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusAccepted)
			return
		}
		if err != nil {
			h.logger.Error("Failed to encode tile", zap.Stringer("tile", coord), zap.Error(err))
			http.Error(w, "Failed to encode tile", http.StatusInternalServerError)
			return
		}

		etag := `"` + tileETag(data) + `"`
		w.Header().Set("ETag", etag)
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "public, max-age=86400")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))

		// HEAD request doesn't send body
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Write(data)
	}
}

func tileETag(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])[:16]
}

func parseTilePath(path string) (tile.Coord, error) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 3 {
		return tile.Coord{}, fmt.Errorf("invalid path")
	}

	z, err := strconv.ParseUint(parts[0], 10, 8)
	if err != nil {
		return tile.Coord{}, fmt.Errorf("invalid zoom level")
	}
	x, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return tile.Coord{}, fmt.Errorf("invalid x coordinate")
	}
	y, err := strconv.ParseUint(strings.TrimSuffix(parts[2], ".png"), 10, 32)
	if err != nil {
		return tile.Coord{}, fmt.Errorf("invalid y coordinate")
	}

	coord := tile.New(uint32(x), uint32(y), uint8(z))
	if !coord.Valid() {
		return tile.Coord{}, fmt.Errorf("tile %s outside zoom grid", coord)
	}
	return coord, nil
}

// Not for real production use due to potential spoofing
func (h *Handlers) extractIP(r *http.Request) string {
	if ip := r.Header.Get("X-Real-Ip"); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}

type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}
