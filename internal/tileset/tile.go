// Package tileset decides, frame by frame, which quad-tree tiles of each
// attached data source must be fetched, kept or evicted for the current
// camera, and which cached ancestors or descendants stand in for tiles that
// are still loading.
package tileset

import (
	"terraview/internal/geo"
	"terraview/internal/tilekey"
)

// Tile is the handle the tile set keeps per resident tile. Loading happens
// asynchronously outside this package; the tile set only reads the state
// flags, requests cancellation and schedules disposal.
type Tile interface {
	Key() tilekey.TileKey
	Offset() int

	// BasicGeometryLoaded reports whether the tile has enough decoded
	// content to be shown, even if embellishment phases are still pending.
	BasicGeometryLoaded() bool
	// AllGeometryLoaded reports whether the tile reached full precision.
	AllGeometryLoaded() bool
	// LoadFinished reports whether the load settled (success or cancel).
	LoadFinished() bool
	// CancelLoad requests best-effort cancellation of an in-flight load.
	// A late completion callback must be a no-op on a cancelled tile.
	CancelLoad()

	FrameNumLastRequested() int
	SetFrameNumLastRequested(frame int)

	// MemoryUsage estimates the tile's resource footprint in bytes.
	MemoryUsage() int64

	SetVisible(visible bool)

	Load()
	Reload()
	// Dispose releases the tile's resources. Called only from
	// DisposePendingTiles, never mid-traversal.
	Dispose()
}

// DataSource produces tiles for one tiling scheme.
type DataSource interface {
	// Name namespaces the data source's tile cache.
	Name() string
	TilingScheme() *geo.TilingScheme
	// DisplayZoomLevel maps the camera zoom to the quad-tree level this
	// data source renders at.
	DisplayZoomLevel(zoom float64) uint32
	// ShouldRender reports whether the tile is rendered when the data
	// source displays at the given level.
	ShouldRender(displayLevel uint32, key tilekey.TileKey) bool
	// GetTile returns the tile for a key, or nil when the data source has
	// nothing there. A nil result is normal control flow, not an error.
	GetTile(key tilekey.TileKey, offset int) Tile
	// Cacheable reports whether tiles may outlive the frame that
	// requested them.
	Cacheable() bool
	MinZoomLevel() uint32
	MaxZoomLevel() uint32
	// IsFullyCovering reports whether the data source covers every tile,
	// letting the renderer short-circuit layers below it.
	IsFullyCovering() bool
}

// CalculationStatus qualifies an elevation range: a final value will not
// change for the tile, an estimate may be refined later.
type CalculationStatus int

const (
	CalculationEstimate CalculationStatus = iota
	CalculationFinalPrecise
)

// ElevationRange bounds the terrain heights inside a tile.
type ElevationRange struct {
	MinElevation float64
	MaxElevation float64
	Status       CalculationStatus
}

// ElevationRangeSource supplies per-tile elevation bounds so frustum tests
// account for terrain height. Only consulted for data sources whose tiling
// scheme matches its own.
type ElevationRangeSource interface {
	TilingScheme() *geo.TilingScheme
	GetElevationRange(key tilekey.TileKey) ElevationRange
}
