// Package tilekey addresses quad-tree tiles by (row, column, level) and
// provides the dense integer encodings used as cache keys.
package tilekey

import (
	"fmt"
	"math/bits"
)

// MaxLevel is the deepest supported quad-tree level. The Morton code of a
// level-24 tile fits in 49 bits, leaving room for the wrap offset in the
// combined key (see Encode).
const MaxLevel = 24

// TileKey identifies a quad-tree tile. Row 0 / column 0 is the first tile of
// the level; level L has 1<<L rows and columns. The zero value is the single
// level-0 root tile.
type TileKey struct {
	Row    uint32
	Column uint32
	Level  uint32
}

// New returns the tile key for the given row, column and level.
func New(row, column, level uint32) TileKey {
	return TileKey{Row: row, Column: column, Level: level}
}

// Parent returns the key one level up. The parent of the root is the root.
func (k TileKey) Parent() TileKey {
	if k.Level == 0 {
		return k
	}
	return TileKey{Row: k.Row >> 1, Column: k.Column >> 1, Level: k.Level - 1}
}

// Children returns the four sub-keys one level deeper, in row-major order.
func (k TileKey) Children() [4]TileKey {
	r := k.Row << 1
	c := k.Column << 1
	l := k.Level + 1
	return [4]TileKey{
		{Row: r, Column: c, Level: l},
		{Row: r, Column: c + 1, Level: l},
		{Row: r + 1, Column: c, Level: l},
		{Row: r + 1, Column: c + 1, Level: l},
	}
}

// ChildrenAtDistance appends to dst every descendant of k that is exactly
// levels quad-splits deeper and returns the extended slice.
func (k TileKey) ChildrenAtDistance(levels uint32, dst []TileKey) []TileKey {
	n := uint32(1) << levels
	for r := uint32(0); r < n; r++ {
		for c := uint32(0); c < n; c++ {
			dst = append(dst, TileKey{
				Row:    k.Row<<levels + r,
				Column: k.Column<<levels + c,
				Level:  k.Level + levels,
			})
		}
	}
	return dst
}

// RowCount returns the number of tile rows at this key's level.
func (k TileKey) RowCount() uint32 { return 1 << k.Level }

// ColumnCount returns the number of tile columns at this key's level.
func (k TileKey) ColumnCount() uint32 { return 1 << k.Level }

// MortonCode returns a dense integer encoding of the key: a marker bit at
// position 2*level, column bits interleaved at even positions and row bits at
// odd positions. Codes are unique across all levels up to MaxLevel and give a
// total order usable as a deterministic tie-break.
func (k TileKey) MortonCode() uint64 {
	code := uint64(1) << (2 * k.Level)
	col := uint64(k.Column)
	row := uint64(k.Row)
	for i := uint32(0); i < k.Level; i++ {
		code |= (col >> i & 1) << (2 * i)
		code |= (row >> i & 1) << (2*i + 1)
	}
	return code
}

// FromMortonCode decodes a Morton code back into a tile key. It is the
// inverse of MortonCode for every key with Level <= MaxLevel.
func FromMortonCode(code uint64) TileKey {
	level := uint32(bits.Len64(code)-1) / 2
	var row, col uint32
	for i := uint32(0); i < level; i++ {
		col |= uint32(code>>(2*i)&1) << i
		row |= uint32(code>>(2*i+1)&1) << i
	}
	return TileKey{Row: row, Column: col, Level: level}
}

func (k TileKey) String() string {
	return fmt.Sprintf("%d/%d/%d", k.Level, k.Column, k.Row)
}
