package cache

import (
	"fmt"

	"go.uber.org/zap"
)

// NewStore creates the persistent tier based on the cache type. An empty dir
// selects the platform cache root; when none resolves the cache is disabled.
func NewStore(cacheType, dir, ext string, log *zap.Logger) (Store, error) {
	switch cacheType {
	case "file":
		if dir == "" {
			root, ok := DefaultRoot()
			if !ok {
				log.Warn("No platform cache directory, disk cache disabled")
				return NewNoopStore(), nil
			}
			dir = root
		}
		log.Info("Using file cache", zap.String("cache_dir", dir))
		return NewFileStore(dir, ext, log), nil
	case "disabled":
		log.Info("Disk cache disabled")
		return NewNoopStore(), nil
	default:
		return nil, fmt.Errorf("unknown cache type: %s (supported: file, disabled)", cacheType)
	}
}
