package tileset

import (
	"terraview/internal/metrics"
	"terraview/internal/tilekey"
)

// fillMissingTiles builds the rendered set: visible tiles that already have
// basic geometry go in directly; for the rest, the caches are searched for an
// ancestor or descendant substitute so the screen shows no gap while the
// correct-resolution tile loads.
func (s *VisibleTileSet) fillMissingTiles(entry *dataSourceEntry, list *DataSourceTileList) {
	searchUp := s.opts.QuadTreeSearchDistanceUp > 0
	searchDown := s.opts.QuadTreeSearchDistanceDown > 0

	for _, tile := range list.VisibleTiles {
		code := tilekey.MustEncode(tile.Key(), tile.Offset())
		if tile.BasicGeometryLoaded() {
			list.RenderedTiles[code] = tile
			continue
		}
		if !searchUp && !searchDown {
			continue
		}
		// Candidate keys already examined this search round.
		checked := make(map[uint64]bool)
		if searchUp && s.searchLoadedAncestor(entry, tile, list, checked) {
			continue
		}
		if searchDown {
			s.searchLoadedDescendants(entry, tile, list, checked)
		}
	}
}

// searchLoadedAncestor walks up the parent chain, nearest level first, and
// substitutes the first cached ancestor that has basic geometry. The walk
// stops at the configured distance and never climbs above the data source's
// minimum zoom level.
func (s *VisibleTileSet) searchLoadedAncestor(entry *dataSourceEntry, tile Tile, list *DataSourceTileList, checked map[uint64]bool) bool {
	key := tile.Key()
	for dist := 1; dist <= s.opts.QuadTreeSearchDistanceUp; dist++ {
		if key.Level == 0 || key.Level-1 < entry.ds.MinZoomLevel() {
			return false
		}
		key = key.Parent()
		code := tilekey.MustEncode(key, tile.Offset())
		if _, rendered := list.RenderedTiles[code]; rendered {
			// Another incomplete tile already pulled in this ancestor.
			return true
		}
		if checked[code] {
			continue
		}
		checked[code] = true
		if cached, ok := entry.cache.Get(code); ok && cached.BasicGeometryLoaded() {
			cached.SetFrameNumLastRequested(s.frameNumber)
			cached.SetVisible(true)
			list.RenderedTiles[code] = cached
			metrics.FallbackSubstitutions.WithLabelValues(entry.cacheName).Inc()
			return true
		}
	}
	return false
}

// searchLoadedDescendants breadth-first searches the subtree below the tile,
// level distance by level distance, substituting every cached descendant with
// basic geometry. Quadrants without a loaded descendant are expanded one
// level deeper until the configured distance or the data source's maximum
// zoom level is reached.
func (s *VisibleTileSet) searchLoadedDescendants(entry *dataSourceEntry, tile Tile, list *DataSourceTileList, checked map[uint64]bool) {
	children := tile.Key().Children()
	frontier := children[:]
	for dist := 1; dist <= s.opts.QuadTreeSearchDistanceDown && len(frontier) > 0; dist++ {
		var next []tilekey.TileKey
		for _, key := range frontier {
			if key.Level > entry.ds.MaxZoomLevel() {
				continue
			}
			code := tilekey.MustEncode(key, tile.Offset())
			if _, rendered := list.RenderedTiles[code]; rendered {
				continue
			}
			if checked[code] {
				continue
			}
			checked[code] = true
			if cached, ok := entry.cache.Get(code); ok && cached.BasicGeometryLoaded() {
				cached.SetFrameNumLastRequested(s.frameNumber)
				cached.SetVisible(true)
				list.RenderedTiles[code] = cached
				metrics.FallbackSubstitutions.WithLabelValues(entry.cacheName).Inc()
				continue
			}
			kids := key.Children()
			next = append(next, kids[:]...)
		}
		frontier = next
	}
}
