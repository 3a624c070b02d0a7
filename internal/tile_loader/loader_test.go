package tile_loader

import (
	"bytes"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tunabay/go-infounit"
	"go.uber.org/zap"

	"maptiles/internal/cache"
	"maptiles/internal/decode"
	"maptiles/internal/tile"
)

type issued struct {
	id  cache.RequestID
	url string
}

// fakeFetcher records fetches without completing them.
type fakeFetcher struct {
	calls []issued
}

func (f *fakeFetcher) Issue(id cache.RequestID, url string) {
	f.calls = append(f.calls, issued{id: id, url: url})
}

func (f *fakeFetcher) last(t *testing.T) issued {
	t.Helper()
	require.NotEmpty(t, f.calls)
	return f.calls[len(f.calls)-1]
}

type fakeSurface struct {
	data   []byte
	closed bool
}

func (s *fakeSurface) Width() int  { return 256 }
func (s *fakeSurface) Height() int { return 256 }
func (s *fakeSurface) Close()      { s.closed = true }

func (s *fakeSurface) Encode() ([]byte, error) {
	if s.closed {
		return nil, decode.ErrClosed
	}
	return s.data, nil
}

// fakeDecoder accepts bytes starting with "PNG".
type fakeDecoder struct{}

func (fakeDecoder) Decode(data []byte) (decode.Surface, error) {
	if !bytes.HasPrefix(data, []byte("PNG")) {
		return nil, errors.New("not a png")
	}
	return &fakeSurface{data: data}, nil
}

type fixture struct {
	loader  *Loader
	store   *cache.FileStore
	fetcher *fakeFetcher
}

func newFixture(t *testing.T, budget infounit.ByteCount, evictEvery int) *fixture {
	t.Helper()
	log := zap.NewNop()
	store := cache.NewFileStore(t.TempDir(), ".png", log)
	fetcher := &fakeFetcher{}
	loader := New(
		Config{TileServer: "https://tiles.test/{z}/{x}/{y}.png", EvictEvery: evictEvery},
		store,
		cache.NewEvictor(store, budget, log),
		fakeDecoder{},
		fetcher,
		log,
	)
	return &fixture{loader: loader, store: store, fetcher: fetcher}
}

func TestLoader_RequestIssuesOneFetch(t *testing.T) {
	f := newFixture(t, 0, 0)
	c := tile.New(2, 1, 3)

	f.loader.RequestTile(c)
	f.loader.RequestTile(c)

	require.Len(t, f.fetcher.calls, 1)
	assert.Equal(t, "https://tiles.test/3/2/1.png", f.fetcher.calls[0].url)

	st, ok := f.loader.Lookup(c)
	require.True(t, ok)
	assert.Equal(t, cache.StatusPending, st.Status)
	assert.Equal(t, f.fetcher.calls[0].id, st.RequestID)
}

func TestLoader_CompletionReady(t *testing.T) {
	f := newFixture(t, 0, 0)
	c := tile.New(0, 0, 0)

	f.loader.RequestTile(c)
	f.loader.HandleFetchCompletion(f.fetcher.last(t).id, 200, []byte("PNG tile"))

	st, ok := f.loader.Lookup(c)
	require.True(t, ok)
	assert.Equal(t, cache.StatusReady, st.Status)

	surface, ok := f.loader.Tile(c)
	require.True(t, ok)
	out, err := surface.Encode()
	require.NoError(t, err)
	assert.Equal(t, []byte("PNG tile"), out)

	// persisted as fetched
	data, ok := f.store.Load(c)
	require.True(t, ok)
	assert.Equal(t, []byte("PNG tile"), data)

	// further requests are answered from memory
	f.loader.RequestTile(c)
	assert.Len(t, f.fetcher.calls, 1)
}

func TestLoader_CompletionHTTPError(t *testing.T) {
	f := newFixture(t, 0, 0)
	c := tile.New(1, 1, 1)

	f.loader.RequestTile(c)
	f.loader.HandleFetchCompletion(f.fetcher.last(t).id, 404, []byte("not found"))

	st, ok := f.loader.Lookup(c)
	require.True(t, ok)
	assert.Equal(t, cache.StatusFailed, st.Status)
	assert.Contains(t, st.Reason, "404")

	_, ok = f.store.Load(c)
	assert.False(t, ok)
	_, ok = f.loader.Tile(c)
	assert.False(t, ok)

	// failed tiles are not retried automatically
	f.loader.RequestTile(c)
	assert.Len(t, f.fetcher.calls, 1)
}

func TestLoader_CompletionEmptyBody(t *testing.T) {
	f := newFixture(t, 0, 0)
	c := tile.New(1, 0, 1)

	f.loader.RequestTile(c)
	f.loader.HandleFetchCompletion(f.fetcher.last(t).id, 200, nil)

	st, _ := f.loader.Lookup(c)
	assert.Equal(t, cache.StatusFailed, st.Status)
	assert.Equal(t, "empty response body", st.Reason)
}

func TestLoader_CompletionDecodeError(t *testing.T) {
	f := newFixture(t, 0, 0)
	c := tile.New(0, 1, 1)

	f.loader.RequestTile(c)
	f.loader.HandleFetchCompletion(f.fetcher.last(t).id, 200, []byte("<html>"))

	st, _ := f.loader.Lookup(c)
	assert.Equal(t, cache.StatusFailed, st.Status)
	assert.Contains(t, st.Reason, "decode error")

	// bytes are saved before decoding
	_, ok := f.store.Load(c)
	assert.True(t, ok)
}

func TestLoader_TransportError(t *testing.T) {
	f := newFixture(t, 0, 0)
	c := tile.New(0, 0, 1)

	f.loader.RequestTile(c)
	f.loader.HandleFetchError(f.fetcher.last(t).id, errors.New("connection refused"))

	st, _ := f.loader.Lookup(c)
	assert.Equal(t, cache.StatusFailed, st.Status)
	assert.Contains(t, st.Reason, "connection refused")
}

func TestLoader_UnknownCompletionIsNoop(t *testing.T) {
	f := newFixture(t, 0, 0)
	c := tile.New(0, 0, 0)

	f.loader.RequestTile(c)
	id := f.fetcher.last(t).id

	f.loader.HandleFetchCompletion(f.loader.newID(), 200, []byte("PNG other"))
	f.loader.HandleFetchError(f.loader.newID(), errors.New("boom"))

	st, _ := f.loader.Lookup(c)
	assert.Equal(t, cache.StatusPending, st.Status)

	f.loader.HandleFetchCompletion(id, 200, []byte("PNG first"))
	f.loader.HandleFetchCompletion(id, 500, nil)

	st, _ = f.loader.Lookup(c)
	assert.Equal(t, cache.StatusReady, st.Status)
	assert.Equal(t, 1, f.loader.Stats().Tiles)
	assert.Equal(t, 0, f.loader.Stats().Pending)
}

func TestLoader_DiskHit(t *testing.T) {
	f := newFixture(t, 0, 0)
	c := tile.New(4, 4, 4)
	require.True(t, f.store.Save(c, []byte("PNG from disk")))

	f.loader.RequestTile(c)

	assert.Empty(t, f.fetcher.calls)
	surface, ok := f.loader.Tile(c)
	require.True(t, ok)
	out, _ := surface.Encode()
	assert.Equal(t, []byte("PNG from disk"), out)
}

func TestLoader_CorruptDiskFallsThrough(t *testing.T) {
	f := newFixture(t, 0, 0)
	c := tile.New(4, 4, 4)
	require.True(t, f.store.Save(c, []byte("garbage")))

	f.loader.RequestTile(c)

	require.Len(t, f.fetcher.calls, 1)
	st, _ := f.loader.Lookup(c)
	assert.Equal(t, cache.StatusPending, st.Status)

	// corrupt file stays until the refetched bytes replace it
	data, ok := f.store.Load(c)
	require.True(t, ok)
	assert.Equal(t, []byte("garbage"), data)

	f.loader.HandleFetchCompletion(f.fetcher.last(t).id, 200, []byte("PNG fresh"))
	data, _ = f.store.Load(c)
	assert.Equal(t, []byte("PNG fresh"), data)
}

func TestLoader_ClearAll(t *testing.T) {
	f := newFixture(t, 0, 0)
	ready, pending := tile.New(0, 0, 1), tile.New(1, 1, 1)

	f.loader.RequestTile(ready)
	f.loader.HandleFetchCompletion(f.fetcher.last(t).id, 200, []byte("PNG a"))
	held, ok := f.loader.Tile(ready)
	require.True(t, ok)
	f.loader.RequestTile(pending)
	inflight := f.fetcher.last(t).id

	f.loader.ClearAll()

	// surfaces dropped by the clear are released
	assert.True(t, held.(*fakeSurface).closed)
	_, err := held.Encode()
	require.ErrorIs(t, err, decode.ErrClosed)

	_, ok = f.loader.Lookup(ready)
	assert.False(t, ok)
	_, ok = f.loader.Lookup(pending)
	assert.False(t, ok)
	_, ok = f.store.Load(ready)
	assert.False(t, ok)

	// completion for a fetch issued before the clear is discarded
	f.loader.HandleFetchCompletion(inflight, 200, []byte("PNG late"))
	_, ok = f.loader.Lookup(pending)
	assert.False(t, ok)
	_, ok = f.store.Load(pending)
	assert.False(t, ok)

	// and the tile can be requested again
	f.loader.RequestTile(ready)
	assert.Len(t, f.fetcher.calls, 3)
}

func TestLoader_EvictionCadence(t *testing.T) {
	f := newFixture(t, 100, 3)
	base := time.Now().Add(-time.Hour)

	coords := []tile.Coord{tile.New(0, 0, 2), tile.New(1, 0, 2), tile.New(2, 0, 2)}
	body := append([]byte("PNG"), make([]byte, 37)...)

	for i, c := range coords[:2] {
		f.loader.RequestTile(c)
		f.loader.HandleFetchCompletion(f.fetcher.last(t).id, 200, body)
		ts := base.Add(time.Duration(i) * time.Second)
		require.NoError(t, os.Chtimes(f.store.Path(c), ts, ts))
	}
	// a failed response does not count toward the cadence
	f.loader.RequestTile(tile.New(3, 3, 2))
	f.loader.HandleFetchCompletion(f.fetcher.last(t).id, 503, nil)
	assert.Equal(t, infounit.ByteCount(80), f.store.TotalSize())

	f.loader.RequestTile(coords[2])
	f.loader.HandleFetchCompletion(f.fetcher.last(t).id, 200, body)

	// third save triggers eviction: 120 bytes over a 100 byte budget
	assert.Equal(t, infounit.ByteCount(80), f.store.TotalSize())
	_, ok := f.store.Load(coords[0])
	assert.False(t, ok)
	_, ok = f.store.Load(coords[2])
	assert.True(t, ok)

	// memory keeps the evicted tile
	_, ok = f.loader.Tile(coords[0])
	assert.True(t, ok)
}

func TestLoader_DisabledDisk(t *testing.T) {
	log := zap.NewNop()
	store := cache.NewNoopStore()
	fetcher := &fakeFetcher{}
	loader := New(Config{}, store, cache.NewEvictor(store, 0, log), fakeDecoder{}, fetcher, log)
	c := tile.New(0, 0, 0)

	loader.RequestTile(c)
	require.Len(t, fetcher.calls, 1)
	assert.Equal(t, "https://a.basemaps.cartocdn.com/rastertiles/voyager/0/0/0@2x.png", fetcher.calls[0].url)

	loader.HandleFetchCompletion(fetcher.calls[0].id, 200, []byte("PNG"))
	_, ok := loader.Tile(c)
	assert.True(t, ok)
}

func TestLoader_SetTileServer(t *testing.T) {
	f := newFixture(t, 0, 0)
	f.loader.SetTileServer("https://other.test/{z}/{y}/{x}")

	f.loader.RequestTile(tile.New(1, 2, 3))
	assert.Equal(t, "https://other.test/3/2/1", f.fetcher.last(t).url)
}

func TestLoader_Stats(t *testing.T) {
	f := newFixture(t, 1000, 0)
	f.loader.RequestTile(tile.New(0, 0, 0))
	f.loader.RequestTile(tile.New(0, 0, 1))
	f.loader.HandleFetchCompletion(f.fetcher.calls[0].id, 200, []byte("PNG12345"))

	st := f.loader.Stats()
	assert.Equal(t, 2, st.Tiles)
	assert.Equal(t, 1, st.Pending)
	assert.Equal(t, f.store.Root(), st.DiskRoot)
	assert.Equal(t, infounit.ByteCount(8), st.DiskBytes)
	assert.Equal(t, infounit.ByteCount(1000), st.MaxBytes)
}
