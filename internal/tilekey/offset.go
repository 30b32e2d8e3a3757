package tilekey

import "github.com/pkg/errors"

// Wrap-offset encoding. A tile key and its horizontal world-wrap offset are
// packed into one uint64: the Morton code occupies the low OffsetShift bits
// and the offset, biased by OffsetBias, sits above it. OffsetBits is an
// explicit capacity parameter of the encoding, not a hidden constant: with 4
// bits the supported offset range is [-MaxOffset, MaxOffset] = [-7, 7].
const (
	OffsetBits  = 4
	OffsetShift = 2*MaxLevel + 1
	OffsetBias  = 1 << (OffsetBits - 1)
	MaxOffset   = OffsetBias - 1
)

// Encode packs a tile key and wrap offset into a single combined key.
// It fails when the offset lies outside [-MaxOffset, MaxOffset] or the key is
// deeper than MaxLevel.
func Encode(key TileKey, offset int) (uint64, error) {
	if offset < -MaxOffset || offset > MaxOffset {
		return 0, errors.Errorf("tile offset %d outside supported range [%d, %d]", offset, -MaxOffset, MaxOffset)
	}
	if key.Level > MaxLevel {
		return 0, errors.Errorf("tile level %d exceeds maximum %d", key.Level, MaxLevel)
	}
	return key.MortonCode() | uint64(offset+OffsetBias)<<OffsetShift, nil
}

// MustEncode is Encode for offsets already validated by the caller.
// It panics on a range violation, which is a programmer error.
func MustEncode(key TileKey, offset int) uint64 {
	code, err := Encode(key, offset)
	if err != nil {
		panic(err)
	}
	return code
}

// Decode splits a combined key back into its tile key and wrap offset.
// Decode(Encode(k, o)) == (k, o) for every valid input.
func Decode(code uint64) (TileKey, int) {
	offset := int(code>>OffsetShift) - OffsetBias
	return FromMortonCode(code & (1<<OffsetShift - 1)), offset
}
