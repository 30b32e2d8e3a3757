package tileset

import "terraview/internal/geo"

// ResourceComputation selects how cached tiles are charged against the tile
// cache capacity.
type ResourceComputation int

const (
	// ByTileCount charges one capacity unit per tile.
	ByTileCount ResourceComputation = iota
	// ByEstimatedMemory charges the tile's estimated resource size in MB.
	ByEstimatedMemory
)

// Options configures a VisibleTileSet. The zero value plus withDefaults gives
// a usable configuration for a planar non-wrapping world.
type Options struct {
	// Projection of the world the tile set renders.
	Projection geo.ProjectionType
	// MaxVisibleDataSourceTiles bounds how many tiles one data source may
	// contribute to a frame.
	MaxVisibleDataSourceTiles int
	// ExtendedFrustumCulling grows the culling frustum by roughly one tile
	// so tiles entering the view during camera movement do not pop in late.
	ExtendedFrustumCulling bool
	// TileCacheSize is the per-data-source cache capacity, in tiles or MB
	// depending on ResourceComputation.
	TileCacheSize float64
	ResourceComputation ResourceComputation
	// QuadTreeSearchDistanceUp bounds how many levels up the fallback
	// search may look for a loaded ancestor. 0 disables the upward search.
	QuadTreeSearchDistanceUp int
	// QuadTreeSearchDistanceDown bounds the downward search for loaded
	// descendants. 0 disables it.
	QuadTreeSearchDistanceDown int
	// TileWrappingEnabled seeds extra traversal roots for repeated world
	// copies in horizontally wrapping planar worlds.
	TileWrappingEnabled bool
}

func (o Options) withDefaults() Options {
	if o.MaxVisibleDataSourceTiles <= 0 {
		o.MaxVisibleDataSourceTiles = 100
	}
	if o.TileCacheSize <= 0 {
		o.TileCacheSize = 200
	}
	return o
}
