package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port             int
	LogLevel         string
	LogFormat        string
	CacheType        string
	CacheDir         string
	CacheMaxBytes    int64
	EvictEvery       int
	TileServer       string
	TileExtension    string
	UserAgent        string
	FetchTimeout     time.Duration
	FetchConcurrency int
	FetchRate        float64
	MaxTileBytes     int64
	Decoder          string
	VipsMaxCacheMB   int
	VipsConcurrency  int
	WarmupLevels     int
	WarmupWorkers    int
	AllowedOrigin    string
}

// Load reads the configuration from the environment. Values in a .env file
// in the working directory are used for variables that are not already set.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnvInt("PORT", 8080),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFormat:        getEnv("LOG_FORMAT", "json"),
		CacheType:        getEnv("CACHE", "file"),
		CacheDir:         getEnv("TILE_CACHE_DIR", ""),
		CacheMaxBytes:    getEnvInt64("CACHE_MAX_BYTES", 50*1024*1024), // 50MiB default
		EvictEvery:       getEnvInt("EVICT_EVERY", 100),
		TileServer:       getEnv("TILE_SERVER", "https://a.basemaps.cartocdn.com/rastertiles/voyager/{z}/{x}/{y}@2x.png"),
		TileExtension:    getEnv("TILE_EXTENSION", ".png"),
		UserAgent:        getEnv("USER_AGENT", "maptiles/1.0"),
		FetchTimeout:     getEnvDuration("FETCH_TIMEOUT", 30*time.Second),
		FetchConcurrency: getEnvInt("FETCH_CONCURRENCY", 8),
		FetchRate:        getEnvFloat("FETCH_RATE", 0),
		MaxTileBytes:     getEnvInt64("MAX_TILE_BYTES", 8*1024*1024), // 8MiB default
		Decoder:          getEnv("DECODER", "vips"),
		VipsMaxCacheMB:   getEnvInt("VIPS_MAX_CACHE_MB", 64),
		VipsConcurrency:  getEnvInt("VIPS_CONCURRENCY", 1),
		WarmupLevels:     getEnvInt("WARMUP_LEVELS", 0),
		WarmupWorkers:    getEnvInt("WARMUP_WORKERS", 1),
		AllowedOrigin:    getEnv("ALLOWED_ORIGIN", ""),
	}

	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
