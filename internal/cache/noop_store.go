package cache

import (
	"github.com/tunabay/go-infounit"

	"maptiles/internal/tile"
)

// NoopStore stands in when no cache root is available.
type NoopStore struct{}

var _ Store = (*NoopStore)(nil)

func NewNoopStore() *NoopStore {
	return &NoopStore{}
}

func (s *NoopStore) Root() string { return "" }

func (s *NoopStore) Save(c tile.Coord, data []byte) bool { return false }

func (s *NoopStore) Load(c tile.Coord) ([]byte, bool) { return nil, false }

func (s *NoopStore) TotalSize() infounit.ByteCount { return 0 }

func (s *NoopStore) OldestFirst() []FileEntry { return nil }

func (s *NoopStore) Remove(c tile.Coord) {}

func (s *NoopStore) RemoveFile(path string) (infounit.ByteCount, bool) { return 0, false }

func (s *NoopStore) RemoveAll() {}

func (s *NoopStore) PruneEmptyDirs() {}
