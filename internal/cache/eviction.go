package cache

import (
	"fmt"

	"github.com/tunabay/go-infounit"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// DefaultMaxSize is the default disk budget.
const DefaultMaxSize = 50 * infounit.Mebibyte

// EvictionResult summarizes one eviction pass.
type EvictionResult struct {
	Before  infounit.ByteCount
	After   infounit.ByteCount
	Removed int
	Freed   infounit.ByteCount
}

// Evictor keeps a Store under a byte budget by deleting the least recently
// modified files.
type Evictor struct {
	store   Store
	maxSize infounit.ByteCount
	log     *zap.Logger
}

func NewEvictor(store Store, maxSize infounit.ByteCount, log *zap.Logger) *Evictor {
	if maxSize == 0 {
		maxSize = DefaultMaxSize
	}
	return &Evictor{
		store:   store,
		maxSize: maxSize,
		log:     log,
	}
}

func (e *Evictor) MaxSize() infounit.ByteCount {
	return e.maxSize
}

// EvictIfNeeded deletes oldest files until the store fits the budget, then
// prunes empty directories. Size and listing come from separate walks, so a
// concurrent writer may leave the store briefly over budget.
func (e *Evictor) EvictIfNeeded() EvictionResult {
	size := e.store.TotalSize()
	res := EvictionResult{Before: size, After: size}
	if size <= e.maxSize {
		return res
	}

	var skipped error
	for _, f := range e.store.OldestFirst() {
		if size <= e.maxSize {
			break
		}
		n, ok := e.store.RemoveFile(f.Path)
		if !ok {
			skipped = multierr.Append(skipped, fmt.Errorf("%s: not removed", f.Path))
			continue
		}
		res.Removed++
		res.Freed += n
		if n > size {
			size = 0
		} else {
			size -= n
		}
	}
	res.After = size

	e.store.PruneEmptyDirs()

	if skipped != nil {
		e.log.Debug("Eviction skipped files",
			zap.Int("count", len(multierr.Errors(skipped))),
			zap.Error(skipped),
		)
	}
	e.log.Info("Evicted tiles",
		zap.Int("removed", res.Removed),
		zap.String("before", fmt.Sprintf("%.1S", res.Before)),
		zap.String("after", fmt.Sprintf("%.1S", res.After)),
		zap.String("budget", fmt.Sprintf("%.1S", e.maxSize)),
	)
	return res
}
