package cache

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/petar/GoLLRB/llrb"
	"github.com/tunabay/go-infounit"
	"go.uber.org/zap"

	"maptiles/internal/tile"
)

// tmpSuffix marks a save in progress. Leftovers from an interrupted save are
// ignored by walks and removed by PruneEmptyDirs.
const tmpSuffix = ".tmp"

// FileStore keeps raw tile bytes on disk.
// Structure: {root}/tiles/{z}/{x}/{y}{ext}
//
// There is no index: the directory tree is the index and file mtime is the
// only recency signal. Every size or age query walks the tree.
type FileStore struct {
	root string
	ext  string
	log  *zap.Logger
}

var _ Store = (*FileStore)(nil)

func NewFileStore(root, ext string, log *zap.Logger) *FileStore {
	if ext == "" {
		ext = ".png"
	}
	return &FileStore{
		root: root,
		ext:  ext,
		log:  log,
	}
}

func (s *FileStore) Root() string {
	return s.root
}

func (s *FileStore) tilesDir() string {
	return filepath.Join(s.root, "tiles")
}

// Path returns the file path for a tile.
func (s *FileStore) Path(c tile.Coord) string {
	seg := c.Segments()
	return filepath.Join(s.tilesDir(), seg[0], seg[1], seg[2]+s.ext)
}

func (s *FileStore) Save(c tile.Coord, data []byte) bool {
	filePath := s.Path(c)
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		s.log.Debug("Failed to create tile directory", zap.Stringer("tile", c), zap.Error(err))
		return false
	}

	tmpPath := filePath + tmpSuffix
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		s.log.Debug("Failed to write tile", zap.Stringer("tile", c), zap.Error(err))
		os.Remove(tmpPath)
		return false
	}

	if err := os.Rename(tmpPath, filePath); err != nil {
		s.log.Debug("Failed to rename tile", zap.Stringer("tile", c), zap.Error(err))
		os.Remove(tmpPath)
		return false
	}
	return true
}

func (s *FileStore) Load(c tile.Coord) ([]byte, bool) {
	data, err := os.ReadFile(s.Path(c))
	if err != nil {
		return nil, false
	}
	return data, true
}

// walkFiles calls fn for every tile file under tiles/. Unreadable
// directories and entries are skipped, as are temp files.
func (s *FileStore) walkFiles(fn func(path string, info fs.FileInfo)) {
	_ = filepath.WalkDir(s.tilesDir(), func(path string, d fs.DirEntry, err error) error {
		switch {
		case err != nil:
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		case !d.Type().IsRegular(), strings.HasSuffix(d.Name(), tmpSuffix):
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		fn(path, info)
		return nil
	})
}

func (s *FileStore) TotalSize() infounit.ByteCount {
	var total infounit.ByteCount
	s.walkFiles(func(_ string, info fs.FileInfo) {
		total += infounit.ByteCount(info.Size())
	})
	return total
}

// candidate orders files by mtime, then path.
type candidate FileEntry

func (c *candidate) Less(than llrb.Item) bool {
	x := than.(*candidate) //nolint:forcetypeassert
	if !c.ModTime.Equal(x.ModTime) {
		return c.ModTime.Before(x.ModTime)
	}
	return c.Path < x.Path
}

// OldestFirst lists every tile file ordered by ascending modification time.
func (s *FileStore) OldestFirst() []FileEntry {
	tree := llrb.New()
	s.walkFiles(func(path string, info fs.FileInfo) {
		tree.ReplaceOrInsert(&candidate{
			Path:    path,
			ModTime: info.ModTime(),
			Size:    infounit.ByteCount(info.Size()),
		})
	})

	entries := make([]FileEntry, 0, tree.Len())
	tree.AscendGreaterOrEqual(&candidate{}, func(item llrb.Item) bool {
		entries = append(entries, FileEntry(*item.(*candidate))) //nolint:forcetypeassert
		return true
	})
	return entries
}

func (s *FileStore) Remove(c tile.Coord) {
	if err := os.Remove(s.Path(c)); err != nil && !os.IsNotExist(err) {
		s.log.Debug("Failed to remove tile", zap.Stringer("tile", c), zap.Error(err))
	}
}

// RemoveFile deletes one file and reports the size it occupied.
func (s *FileStore) RemoveFile(path string) (infounit.ByteCount, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, false
	}
	if err := os.Remove(path); err != nil {
		return 0, false
	}
	return infounit.ByteCount(info.Size()), true
}

func (s *FileStore) RemoveAll() {
	if err := os.RemoveAll(s.tilesDir()); err != nil {
		s.log.Debug("Failed to clear tiles", zap.String("dir", s.tilesDir()), zap.Error(err))
	}
}

// PruneEmptyDirs removes leftover temp files and then empty directories
// below tiles/, deepest first.
func (s *FileStore) PruneEmptyDirs() {
	pruneDir(s.tilesDir())
}

func pruneDir(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			if strings.HasSuffix(entry.Name(), tmpSuffix) {
				_ = os.Remove(filepath.Join(dir, entry.Name()))
			}
			continue
		}
		sub := filepath.Join(dir, entry.Name())
		pruneDir(sub)
		// fails on non-empty directories
		_ = os.Remove(sub)
	}
}
