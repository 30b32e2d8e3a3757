// Package datasource provides a synthetic in-memory data source whose tiles
// load asynchronously after a configurable latency. It exists so the viewer
// binary and integration-style tests can exercise the visible-tile core
// without network or decoder plumbing.
package datasource

import (
	"math"
	"time"

	"go.uber.org/zap"

	"terraview/internal/geo"
	"terraview/internal/tilekey"
	"terraview/internal/tileset"
)

// Source is a fully covering synthetic data source over one tiling scheme.
type Source struct {
	name      string
	scheme    *geo.TilingScheme
	minZoom   uint32
	maxZoom   uint32
	loadDelay time.Duration
	log       *zap.Logger
}

// New creates a synthetic data source. A zero loadDelay makes tiles load
// synchronously inside GetTile, which is what most tests want.
func New(name string, scheme *geo.TilingScheme, minZoom, maxZoom uint32, loadDelay time.Duration, log *zap.Logger) *Source {
	if log == nil {
		log = zap.NewNop()
	}
	return &Source{
		name:      name,
		scheme:    scheme,
		minZoom:   minZoom,
		maxZoom:   maxZoom,
		loadDelay: loadDelay,
		log:       log,
	}
}

func (s *Source) Name() string                   { return s.name }
func (s *Source) TilingScheme() *geo.TilingScheme { return s.scheme }
func (s *Source) Cacheable() bool                { return true }
func (s *Source) MinZoomLevel() uint32           { return s.minZoom }
func (s *Source) MaxZoomLevel() uint32           { return s.maxZoom }
func (s *Source) IsFullyCovering() bool          { return true }

// DisplayZoomLevel clamps the camera zoom to the supported level range.
func (s *Source) DisplayZoomLevel(zoom float64) uint32 {
	level := uint32(math.Max(0, math.Floor(zoom)))
	if level < s.minZoom {
		level = s.minZoom
	}
	if level > s.maxZoom {
		level = s.maxZoom
	}
	return level
}

// ShouldRender accepts exactly the tiles of the display level.
func (s *Source) ShouldRender(displayLevel uint32, key tilekey.TileKey) bool {
	return key.Level == displayLevel
}

// GetTile creates a tile and starts its load.
func (s *Source) GetTile(key tilekey.TileKey, offset int) tileset.Tile {
	t := newTile(key, offset, s.loadDelay)
	t.Load()
	return t
}
