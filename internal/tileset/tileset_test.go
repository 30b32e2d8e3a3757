package tileset

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"terraview/internal/geo"
	"terraview/internal/tilekey"
)

const testWorldSize = 1 << 22

type testTile struct {
	key    tilekey.TileKey
	offset int

	basic    bool
	all      bool
	finished bool

	frame   int
	visible bool

	reloads  int
	cancels  int
	disposes int
}

func (t *testTile) Key() tilekey.TileKey         { return t.key }
func (t *testTile) Offset() int                  { return t.offset }
func (t *testTile) BasicGeometryLoaded() bool    { return t.basic }
func (t *testTile) AllGeometryLoaded() bool      { return t.all }
func (t *testTile) LoadFinished() bool           { return t.finished }
func (t *testTile) CancelLoad()                  { t.cancels++; t.finished = true }
func (t *testTile) FrameNumLastRequested() int   { return t.frame }
func (t *testTile) SetFrameNumLastRequested(n int) { t.frame = n }
func (t *testTile) MemoryUsage() int64           { return 1 << 20 }
func (t *testTile) SetVisible(v bool)            { t.visible = v }
func (t *testTile) Load()                        {}
func (t *testTile) Reload()                      { t.reloads++ }
func (t *testTile) Dispose()                     { t.disposes++ }

type testSource struct {
	name   string
	scheme *geo.TilingScheme
	min    uint32
	max    uint32

	// Encoded keys whose tiles are created with their load still pending.
	unloaded map[uint64]bool

	tiles        map[uint64]*testTile
	getTileCalls map[uint64]int
}

func newTestSource(scheme *geo.TilingScheme, min, max uint32) *testSource {
	return &testSource{
		name:         "test",
		scheme:       scheme,
		min:          min,
		max:          max,
		unloaded:     make(map[uint64]bool),
		tiles:        make(map[uint64]*testTile),
		getTileCalls: make(map[uint64]int),
	}
}

func (s *testSource) Name() string                    { return s.name }
func (s *testSource) TilingScheme() *geo.TilingScheme { return s.scheme }
func (s *testSource) Cacheable() bool                 { return true }
func (s *testSource) MinZoomLevel() uint32            { return s.min }
func (s *testSource) MaxZoomLevel() uint32            { return s.max }
func (s *testSource) IsFullyCovering() bool           { return true }

func (s *testSource) DisplayZoomLevel(zoom float64) uint32 {
	level := uint32(math.Max(0, math.Floor(zoom)))
	if level < s.min {
		level = s.min
	}
	if level > s.max {
		level = s.max
	}
	return level
}

func (s *testSource) ShouldRender(displayLevel uint32, key tilekey.TileKey) bool {
	return key.Level == displayLevel
}

func (s *testSource) GetTile(key tilekey.TileKey, offset int) Tile {
	code := tilekey.MustEncode(key, offset)
	s.getTileCalls[code]++
	t := &testTile{key: key, offset: offset}
	if !s.unloaded[code] {
		t.basic, t.all, t.finished = true, true, true
	}
	s.tiles[code] = t
	return t
}

func testScheme() *geo.TilingScheme {
	return geo.WebMercatorTilingScheme(testWorldSize, geo.Planar)
}

// cameraOverEdge places the camera straight above world position
// (colEdge, rowCenter) expressed in tile units of the given level, at half a
// tile of altitude with a 45 degree vertical FOV. The ground footprint then
// spans ~0.41 tiles in each axis.
func cameraOverEdge(scheme *geo.TilingScheme, colEdge, rowCenter float64, level uint32) geo.Camera {
	ts := scheme.TileSize(level)
	x := colEdge * ts
	y := rowCenter * ts
	h := ts / 2
	return geo.Camera{
		Position: geo.Vec3{X: x, Y: y, Z: h},
		Target:   geo.Vec3{X: x, Y: y},
		Up:       geo.Vec3{Y: 1},
		FovY:     math.Pi / 4,
		Aspect:   1,
		Near:     h / 100,
		Far:      h * 10,
	}
}

func mortonSet(tiles []Tile) map[uint64]bool {
	set := make(map[uint64]bool, len(tiles))
	for _, t := range tiles {
		set[t.Key().MortonCode()] = true
	}
	return set
}

// Camera centered over a fixed point at zoom 15 against a data source capped
// at level 14: the traversal must yield exactly the two tiles observed in the
// original system, fully loaded and with no fallback entries.
func TestTwoVisibleTilesAtStorageLevel(t *testing.T) {
	scheme := testScheme()
	src := newTestSource(scheme, 1, 14)
	vts := New(Options{}, nil)
	vts.AttachDataSource(src)

	camera := cameraOverEdge(scheme, 8801, 5373.5, 14)
	lists := vts.UpdateRenderList(camera, 15)

	require.Len(t, lists, 1)
	list := lists[0]
	assert.Equal(t, uint32(14), list.DisplayZoomLevel)
	require.Len(t, list.VisibleTiles, 2)

	codes := mortonSet(list.VisibleTiles)
	assert.True(t, codes[371506850])
	assert.True(t, codes[371506851])

	// Equal projected areas: Morton code descending breaks the tie.
	assert.Equal(t, uint64(371506851), list.VisibleTiles[0].Key().MortonCode())

	assert.Equal(t, 0, list.NumTilesLoading)
	assert.Len(t, list.RenderedTiles, 2)
	for _, tile := range list.RenderedTiles {
		assert.Equal(t, uint32(14), tile.Key().Level, "no fallback entries expected")
	}
	assert.True(t, list.AllVisibleTilesLoaded)
	assert.True(t, vts.AllVisibleTilesLoaded())
}

// With a 3-up/2-down search and one tile's geometry missing, the fallback
// search must substitute that tile's direct parent, exactly once.
func TestFallbackSubstitutesDirectParent(t *testing.T) {
	scheme := testScheme()
	src := newTestSource(scheme, 1, 14)
	vts := New(Options{QuadTreeSearchDistanceUp: 3, QuadTreeSearchDistanceDown: 2}, nil)
	vts.AttachDataSource(src)

	camera := cameraOverEdge(scheme, 8801, 5373.5, 14)

	// Prime the cache with the loaded parent at level 13.
	lists := vts.UpdateRenderList(camera, 13)
	require.Len(t, lists[0].VisibleTiles, 1)
	require.Equal(t, uint64(92876712), lists[0].VisibleTiles[0].Key().MortonCode())

	// Now render at level 14 with one tile's geometry not yet loaded.
	missing := tilekey.New(5373, 8800, 14)
	src.unloaded[tilekey.MustEncode(missing, 0)] = true

	lists = vts.UpdateRenderList(camera, 15)
	list := lists[0]
	require.Len(t, list.VisibleTiles, 2)
	assert.Equal(t, 1, list.NumTilesLoading)
	assert.False(t, list.AllVisibleTilesLoaded)

	var fallbacks []Tile
	for _, tile := range list.RenderedTiles {
		if tile.Key().Level != 14 {
			fallbacks = append(fallbacks, tile)
		}
	}
	require.Len(t, fallbacks, 1)
	assert.Equal(t, uint64(92876712), fallbacks[0].Key().MortonCode())
}

// A substitute's level distance must never exceed the configured search
// distance: with only the grandparent cached, a 1-up search finds nothing.
func TestFallbackRespectsSearchDistance(t *testing.T) {
	run := func(up int) (fallbacks int) {
		scheme := testScheme()
		src := newTestSource(scheme, 1, 14)
		vts := New(Options{QuadTreeSearchDistanceUp: up}, nil)
		vts.AttachDataSource(src)

		camera := cameraOverEdge(scheme, 8801, 5373.5, 14)
		// Cache the grandparent (level 12) only.
		vts.UpdateRenderList(camera, 12)

		missing := tilekey.New(5373, 8800, 14)
		src.unloaded[tilekey.MustEncode(missing, 0)] = true
		lists := vts.UpdateRenderList(camera, 15)
		for _, tile := range lists[0].RenderedTiles {
			if tile.Key().Level != 14 {
				fallbacks++
			}
		}
		return fallbacks
	}

	assert.Equal(t, 0, run(1), "grandparent is beyond a 1-up search")
	assert.Equal(t, 1, run(2))
}

// markTilesDirty must reload every retained tile exactly once and dispose
// exactly the cached-but-not-retained tiles, without reloading those.
func TestMarkTilesDirty(t *testing.T) {
	scheme := testScheme()
	src := newTestSource(scheme, 1, 14)
	vts := New(Options{}, nil)
	vts.AttachDataSource(src)

	vts.UpdateRenderList(cameraOverEdge(scheme, 8801, 5373.5, 14), 15)
	// Move four tiles east: the old pair stays cached but is not retained.
	vts.UpdateRenderList(cameraOverEdge(scheme, 8805, 5373.5, 14), 15)

	vts.MarkTilesDirty(nil)
	vts.DisposePendingTiles()

	old := []tilekey.TileKey{tilekey.New(5373, 8800, 14), tilekey.New(5373, 8801, 14)}
	current := []tilekey.TileKey{tilekey.New(5373, 8804, 14), tilekey.New(5373, 8805, 14)}
	for _, key := range current {
		tile := src.tiles[tilekey.MustEncode(key, 0)]
		require.NotNil(t, tile)
		assert.Equal(t, 1, tile.reloads, "retained tile %v", key)
		assert.Equal(t, 0, tile.disposes)
	}
	for _, key := range old {
		tile := src.tiles[tilekey.MustEncode(key, 0)]
		require.NotNil(t, tile)
		assert.Equal(t, 0, tile.reloads, "dropped tile %v", key)
		assert.Equal(t, 1, tile.disposes)
	}
}

// Wrapping enabled must yield strictly more visible tiles than disabled for a
// camera looking toward the horizon at a low zoom level.
func TestWrappingCoversRepeatedWorldCopies(t *testing.T) {
	horizon := geo.Camera{
		Position: geo.Vec3{X: testWorldSize * 0.5, Y: testWorldSize * 0.5, Z: testWorldSize * 0.3},
		Target:   geo.Vec3{X: testWorldSize * 2, Y: testWorldSize * 0.5},
		Up:       geo.Vec3{Y: 1},
		FovY:     math.Pi / 2,
		Aspect:   1,
		Near:     testWorldSize * 0.01,
		Far:      testWorldSize * 30,
	}

	count := func(wrap bool) int {
		scheme := testScheme()
		src := newTestSource(scheme, 0, 2)
		vts := New(Options{TileWrappingEnabled: wrap, MaxVisibleDataSourceTiles: 1000}, nil)
		vts.AttachDataSource(src)
		lists := vts.UpdateRenderList(horizon, 2)
		return len(lists[0].VisibleTiles)
	}

	wrapped := count(true)
	single := count(false)
	assert.Greater(t, single, 0)
	assert.Greater(t, wrapped, single)
}

// The same tile identity must never produce two live tile objects: repeated
// frames reuse the cached tile and fetch from the data source only once.
func TestAtMostOneTilePerIdentity(t *testing.T) {
	scheme := testScheme()
	src := newTestSource(scheme, 1, 14)
	vts := New(Options{}, nil)
	vts.AttachDataSource(src)

	camera := cameraOverEdge(scheme, 8801, 5373.5, 14)
	lists := vts.UpdateRenderList(camera, 15)
	firstFrame := append([]Tile(nil), lists[0].VisibleTiles...)
	lists = vts.UpdateRenderList(camera, 15)

	for code, calls := range src.getTileCalls {
		assert.Equal(t, 1, calls, "tile %d fetched more than once", code)
	}
	require.Len(t, lists[0].VisibleTiles, 2)
	for i := range lists[0].VisibleTiles {
		assert.Same(t, firstFrame[i], lists[0].VisibleTiles[i])
	}
}

// Tiles requested this frame are protected: a one-unit cache must still hold
// both visible tiles at frame end.
func TestProtectedTilesExceedCapacity(t *testing.T) {
	scheme := testScheme()
	src := newTestSource(scheme, 1, 14)
	vts := New(Options{TileCacheSize: 1}, nil)
	vts.AttachDataSource(src)

	camera := cameraOverEdge(scheme, 8801, 5373.5, 14)
	vts.UpdateRenderList(camera, 15)
	vts.UpdateRenderList(camera, 15)

	for code, calls := range src.getTileCalls {
		assert.Equal(t, 1, calls, "tile %d was evicted while protected", code)
	}
}

func TestVisibleTileBudget(t *testing.T) {
	scheme := testScheme()
	src := newTestSource(scheme, 1, 14)
	vts := New(Options{MaxVisibleDataSourceTiles: 1}, nil)
	vts.AttachDataSource(src)

	lists := vts.UpdateRenderList(cameraOverEdge(scheme, 8801, 5373.5, 14), 15)
	require.Len(t, lists[0].VisibleTiles, 1)
	assert.Equal(t, uint64(371506851), lists[0].VisibleTiles[0].Key().MortonCode())
}

func TestClearTileCacheCancelsAndDisposes(t *testing.T) {
	scheme := testScheme()
	src := newTestSource(scheme, 1, 14)
	vts := New(Options{}, nil)
	vts.AttachDataSource(src)

	missing := tilekey.New(5373, 8800, 14)
	src.unloaded[tilekey.MustEncode(missing, 0)] = true
	vts.UpdateRenderList(cameraOverEdge(scheme, 8801, 5373.5, 14), 15)

	vts.ClearTileCache("")
	vts.DisposePendingTiles()

	loading := src.tiles[tilekey.MustEncode(missing, 0)]
	require.NotNil(t, loading)
	assert.Equal(t, 1, loading.cancels)
	for _, tile := range src.tiles {
		assert.Equal(t, 1, tile.disposes)
	}
}

func TestRemoveDataSourceDropsBookkeeping(t *testing.T) {
	scheme := testScheme()
	src := newTestSource(scheme, 1, 14)
	vts := New(Options{}, nil)
	vts.AttachDataSource(src)

	vts.UpdateRenderList(cameraOverEdge(scheme, 8801, 5373.5, 14), 15)
	vts.RemoveDataSource("test")
	vts.DisposePendingTiles()

	assert.Empty(t, vts.DataSourceTileLists())
	for _, tile := range src.tiles {
		assert.Equal(t, 1, tile.disposes)
	}
}

type testElevation struct {
	scheme *geo.TilingScheme
	status CalculationStatus
}

func (e *testElevation) TilingScheme() *geo.TilingScheme { return e.scheme }
func (e *testElevation) GetElevationRange(tilekey.TileKey) ElevationRange {
	return ElevationRange{MinElevation: 0, MaxElevation: 100, Status: e.status}
}

// Estimated elevation bounds keep the global loaded flag false even when
// every tile finished loading.
func TestEstimatedElevationHoldsBackLoadedFlag(t *testing.T) {
	scheme := testScheme()
	src := newTestSource(scheme, 1, 14)
	vts := New(Options{}, nil)
	vts.AttachDataSource(src)
	vts.SetElevationRangeSource(&testElevation{scheme: scheme, status: CalculationEstimate})

	lists := vts.UpdateRenderList(cameraOverEdge(scheme, 8801, 5373.5, 14), 15)
	assert.True(t, lists[0].AllVisibleTilesLoaded)
	assert.False(t, vts.AllVisibleTilesLoaded())

	vts.SetElevationRangeSource(&testElevation{scheme: scheme, status: CalculationFinalPrecise})
	vts.UpdateRenderList(cameraOverEdge(scheme, 8801, 5373.5, 14), 15)
	assert.True(t, vts.AllVisibleTilesLoaded())
}

func TestSortByPriorityDeterministic(t *testing.T) {
	build := func(order []int) []TileKeyEntry {
		base := []TileKeyEntry{
			{Key: tilekey.New(0, 0, 2), Area: 1.0},          // morton 16
			{Key: tilekey.New(1, 0, 2), Area: 1.0000001},    // morton 18, ties with 16
			{Key: tilekey.New(0, 1, 2), Area: 0.5},          // morton 17
		}
		entries := make([]TileKeyEntry, len(order))
		for i, idx := range order {
			entries[i] = base[idx]
		}
		return entries
	}

	a := build([]int{0, 1, 2})
	b := build([]int{2, 0, 1})
	sortByPriority(a)
	sortByPriority(b)
	assert.Equal(t, a, b)
	assert.Equal(t, uint64(18), a[0].Key.MortonCode(), "tie broken by Morton code descending")
	assert.Equal(t, uint64(16), a[1].Key.MortonCode())
	assert.Equal(t, uint64(17), a[2].Key.MortonCode())
}

// No-longer-visible tiles whose load never settled are cancelled and evicted
// at frame end.
func TestStaleLoadingTilesEvicted(t *testing.T) {
	scheme := testScheme()
	src := newTestSource(scheme, 1, 14)
	vts := New(Options{}, nil)
	vts.AttachDataSource(src)

	missing := tilekey.New(5373, 8800, 14)
	src.unloaded[tilekey.MustEncode(missing, 0)] = true
	vts.UpdateRenderList(cameraOverEdge(scheme, 8801, 5373.5, 14), 15)

	// Move away; the still-loading tile is no longer visible.
	vts.UpdateRenderList(cameraOverEdge(scheme, 8805, 5373.5, 14), 15)
	vts.DisposePendingTiles()

	stale := src.tiles[tilekey.MustEncode(missing, 0)]
	require.NotNil(t, stale)
	assert.Equal(t, 1, stale.cancels)
	assert.Equal(t, 1, stale.disposes)
}
