package cache

import (
	"os"
	"path/filepath"
	"runtime"
)

const appDir = "maptiles"

// DefaultRoot resolves the cache root for the running platform.
func DefaultRoot() (string, bool) {
	return ResolveRoot(runtime.GOOS, os.Getenv)
}

// ResolveRoot returns the cache root for goos, reading environment values
// through getenv. It reports false when the platform has no known convention
// or a required variable is unset.
func ResolveRoot(goos string, getenv func(string) string) (string, bool) {
	switch goos {
	case "android":
		if dir := getenv("CACHE_DIR"); dir != "" {
			return filepath.Join(dir, appDir), true
		}
	case "ios", "darwin":
		if home := getenv("HOME"); home != "" {
			return filepath.Join(home, "Library", "Caches", appDir), true
		}
	case "linux", "freebsd", "openbsd", "netbsd", "dragonfly":
		if dir := getenv("XDG_CACHE_HOME"); dir != "" {
			return filepath.Join(dir, appDir), true
		}
		if home := getenv("HOME"); home != "" {
			return filepath.Join(home, ".cache", appDir), true
		}
	case "windows":
		if dir := getenv("LOCALAPPDATA"); dir != "" {
			return filepath.Join(dir, appDir, "cache"), true
		}
	}
	return "", false
}
