package tileset

import (
	"math"
	"sort"

	"terraview/internal/geo"
	"terraview/internal/tilekey"
)

// TileKeyEntry is a quad-tree node considered during traversal, carrying its
// approximate screen footprint for priority ordering. Entries live for one
// frame and are discarded after the sort.
type TileKeyEntry struct {
	Key    tilekey.TileKey
	Area   float64
	Offset int
}

// areaEqualityEpsilon is the relative tolerance under which two projected
// areas count as equal and the Morton-code tie-break applies. The value is an
// empirical constant kept tunable; it is not load-bearing beyond keeping the
// sort order stable frame to frame.
const areaEqualityEpsilon = 1e-3

// sortByPriority orders entries by descending projected area; areas within
// the epsilon of each other fall back to Morton code descending so the order
// is deterministic and equal-priority boundaries do not flicker.
func sortByPriority(entries []TileKeyEntry) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].Area, entries[j].Area
		if math.Abs(a-b) <= areaEqualityEpsilon*(a+b) {
			return entries[i].Key.MortonCode() > entries[j].Key.MortonCode()
		}
		return a > b
	})
}

// intersectionResult is the per-tiling-scheme output of one frame's frustum
// traversal, shared read-only by every data source using that scheme.
type intersectionResult struct {
	entries []TileKeyEntry
	// allElevationFinal is false when any elevation bound used during the
	// traversal was an estimate rather than a final value.
	allElevationFinal bool
}

// computeIntersection walks the quad tree of one tiling scheme and collects
// every node intersecting the camera frustum up to maxLevel, together with
// its approximate projected screen area.
func computeIntersection(camera geo.Camera, scheme *geo.TilingScheme, maxLevel uint32,
	wrapping, extendedCulling bool, elevation ElevationRangeSource) *intersectionResult {

	frustum := geo.NewFrustum(camera.ViewProjection())
	culling := frustum
	if extendedCulling {
		culling = frustum.Grown(scheme.TileSize(maxLevel) / 2)
	}
	if elevation != nil && elevation.TilingScheme().Name != scheme.Name {
		elevation = nil
	}

	res := &intersectionResult{allElevationFinal: true}

	// Flat per-traversal arena: encoded key -> projected area. Discarded
	// with the traversal, so no cross-frame invalidation is needed.
	areas := make(map[uint64]float64)

	visit := func(key tilekey.TileKey, offset int) (uint64, float64) {
		code := tilekey.MustEncode(key, offset)
		minElev, maxElev := 0.0, 0.0
		if elevation != nil {
			er := elevation.GetElevationRange(key)
			minElev, maxElev = er.MinElevation, er.MaxElevation
			if er.Status != CalculationFinalPrecise {
				res.allElevationFinal = false
			}
		}
		var area float64
		if culling.IntersectsBox(scheme.TileBox(key, offset, minElev, maxElev)) {
			area = frustum.ProjectedArea(scheme.GroundCorners(key, offset))
		}
		areas[code] = area
		return code, area
	}

	// Seed one root per potentially visible world copy.
	copies := 0
	if wrapping && scheme.Projection == geo.Planar {
		copies = geo.VisibleWorldCopies(camera, scheme.WorldSize)
	}
	var stack []TileKeyEntry
	root := tilekey.TileKey{}
	for offset := -copies; offset <= copies; offset++ {
		if _, area := visit(root, offset); area > 0 {
			stack = append(stack, TileKeyEntry{Key: root, Area: area, Offset: offset})
		}
	}

	for len(stack) > 0 {
		entry := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		code := tilekey.MustEncode(entry.Key, entry.Offset)
		area, ok := areas[code]
		if !ok {
			// Every popped key must have been visited; anything else is
			// a traversal bug, not a runtime condition.
			panic("tileset: frustum traversal popped a tile key with no precomputed area")
		}
		if area <= 0 || entry.Key.Level > maxLevel {
			continue
		}
		res.entries = append(res.entries, TileKeyEntry{Key: entry.Key, Area: area, Offset: entry.Offset})
		if entry.Key.Level == maxLevel {
			continue
		}
		for _, child := range entry.Key.Children() {
			childCode := tilekey.MustEncode(child, entry.Offset)
			childArea, seen := areas[childCode]
			if !seen {
				_, childArea = visit(child, entry.Offset)
			}
			if childArea > 0 {
				stack = append(stack, TileKeyEntry{Key: child, Area: childArea, Offset: entry.Offset})
			}
		}
	}
	return res
}
