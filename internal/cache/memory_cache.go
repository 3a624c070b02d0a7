package cache

import (
	"maptiles/internal/decode"
	"maptiles/internal/tile"
)

// MemoryCache holds the lifecycle state of every tile the process has asked
// for, plus the index of in-flight requests. It is not synchronized; its owner
// serializes access.
type MemoryCache struct {
	tiles   map[tile.Coord]State
	pending map[RequestID]tile.Coord
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		tiles:   make(map[tile.Coord]State),
		pending: make(map[RequestID]tile.Coord),
	}
}

func (c *MemoryCache) Lookup(coord tile.Coord) (State, bool) {
	st, ok := c.tiles[coord]
	return st, ok
}

// MarkPending records an outstanding fetch. An existing entry is overwritten.
func (c *MemoryCache) MarkPending(coord tile.Coord, id RequestID) {
	c.tiles[coord] = Pending(id)
	c.pending[id] = coord
}

// Resolve removes the request from the pending index and returns the tile it
// was issued for. Unknown ids report false.
func (c *MemoryCache) Resolve(id RequestID) (tile.Coord, bool) {
	coord, ok := c.pending[id]
	if !ok {
		return tile.Coord{}, false
	}
	delete(c.pending, id)
	return coord, true
}

func (c *MemoryCache) MarkReady(coord tile.Coord, surface decode.Surface) {
	c.tiles[coord] = Ready(surface)
}

func (c *MemoryCache) MarkFailed(coord tile.Coord, reason string) {
	c.tiles[coord] = Failed(reason)
}

// Clear forgets every tile and every outstanding request. It returns the
// surfaces of the ready tiles it dropped so the caller can release them.
func (c *MemoryCache) Clear() []decode.Surface {
	var dropped []decode.Surface
	for _, st := range c.tiles {
		if st.Status == StatusReady && st.Surface != nil {
			dropped = append(dropped, st.Surface)
		}
	}
	c.tiles = make(map[tile.Coord]State)
	c.pending = make(map[RequestID]tile.Coord)
	return dropped
}

func (c *MemoryCache) Len() int {
	return len(c.tiles)
}

func (c *MemoryCache) PendingLen() int {
	return len(c.pending)
}
