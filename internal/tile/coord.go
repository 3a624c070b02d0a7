package tile

import (
	"strconv"
	"strings"
)

// MaxZoom is the deepest zoom level whose grid fits in uint32 coordinates.
const MaxZoom = 31

// Coord identifies a slippy-map tile by column, row and zoom level.
type Coord struct {
	X uint32
	Y uint32
	Z uint8
}

func New(x, y uint32, z uint8) Coord {
	return Coord{X: x, Y: y, Z: z}
}

// Segments returns the relative path segments [z, x, y] used by the disk tier.
func (c Coord) Segments() []string {
	return []string{
		strconv.FormatUint(uint64(c.Z), 10),
		strconv.FormatUint(uint64(c.X), 10),
		strconv.FormatUint(uint64(c.Y), 10),
	}
}

func (c Coord) String() string {
	return strings.Join(c.Segments(), "/")
}

// URL substitutes {z}, {x} and {y} in a tile server template.
// Out-of-range coordinates still produce a well-formed URL.
func (c Coord) URL(template string) string {
	s := c.Segments()
	return strings.NewReplacer("{z}", s[0], "{x}", s[1], "{y}", s[2]).Replace(template)
}

// Valid reports whether X and Y fall inside the 2^Z grid.
func (c Coord) Valid() bool {
	if c.Z > MaxZoom {
		return false
	}
	n := uint64(1) << c.Z
	return uint64(c.X) < n && uint64(c.Y) < n
}
