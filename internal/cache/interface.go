package cache

import (
	"time"

	"github.com/tunabay/go-infounit"

	"maptiles/internal/tile"
)

// Store is the persistent tile tier. Every failure degrades to false, absent or
// zero; nothing is returned as an error.
type Store interface {
	Root() string
	Save(c tile.Coord, data []byte) bool
	Load(c tile.Coord) ([]byte, bool)
	TotalSize() infounit.ByteCount
	OldestFirst() []FileEntry
	Remove(c tile.Coord)
	RemoveFile(path string) (infounit.ByteCount, bool)
	RemoveAll()
	PruneEmptyDirs()
}

// FileEntry is one tile file found by a walk of the store.
type FileEntry struct {
	Path    string
	ModTime time.Time
	Size    infounit.ByteCount
}
