package tileset

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"terraview/internal/cache"
	"terraview/internal/geo"
	"terraview/internal/metrics"
	"terraview/internal/tilekey"
)

// DataSourceTileList is the per-frame output for one data source: the sorted
// visible tiles, the final rendered set including fallback substitutes, and
// the loading counters the renderer uses to drive fade effects.
type DataSourceTileList struct {
	DataSource       DataSource
	DisplayZoomLevel uint32
	// VisibleTiles are the correct-resolution tiles for this frame, in
	// priority order.
	VisibleTiles []Tile
	// RenderedTiles is what actually gets drawn: loaded visible tiles plus
	// ancestor/descendant substitutes, keyed by encoded tile key so a
	// fallback shared by several incomplete tiles appears once.
	RenderedTiles map[uint64]Tile
	// NumTilesLoading counts visible tiles whose load has not settled.
	NumTilesLoading int
	// NumTilesPartiallyLoaded counts visible tiles with basic geometry but
	// embellishment phases still pending.
	NumTilesPartiallyLoaded int
	// AllVisibleTilesLoaded is true when every visible tile reached full
	// precision.
	AllVisibleTilesLoaded bool
}

type dataSourceEntry struct {
	ds DataSource
	// cacheName namespaces metrics and bookkeeping; differs from
	// ds.Name() only for anonymous data sources.
	cacheName string
	cache     *cache.Cache[Tile]
}

// VisibleTileSet orchestrates the per-frame tile selection for all attached
// data sources. It is single-threaded by contract: UpdateRenderList runs to
// completion before the render list is handed off, and nothing in here
// suspends or locks.
type VisibleTileSet struct {
	log  *zap.Logger
	opts Options

	frameNumber int
	dataSources []*dataSourceEntry
	byName      map[string]*dataSourceEntry

	elevationSource ElevationRangeSource

	// pendingDispose collects tiles evicted during the frame; their
	// resources are released only by DisposePendingTiles so the GPU-owner
	// side is never mutated mid-traversal.
	pendingDispose []Tile

	results               []DataSourceTileList
	allVisibleTilesLoaded bool
}

// New creates a visible tile set with the given options.
func New(opts Options, log *zap.Logger) *VisibleTileSet {
	if log == nil {
		log = zap.NewNop()
	}
	return &VisibleTileSet{
		log:    log,
		opts:   opts.withDefaults(),
		byName: make(map[string]*dataSourceEntry),
	}
}

// AttachDataSource registers a data source and creates its tile cache.
// Anonymous data sources get a generated cache namespace.
func (s *VisibleTileSet) AttachDataSource(ds DataSource) {
	name := ds.Name()
	if name == "" {
		name = "datasource-" + uuid.NewString()
	}
	if _, exists := s.byName[name]; exists {
		s.log.Warn("data source already attached", zap.String("data_source", name))
		return
	}
	entry := &dataSourceEntry{ds: ds, cacheName: name}
	capacity := s.opts.TileCacheSize
	if !ds.Cacheable() {
		// Non-cacheable tiles survive only while protected by the
		// current frame stamp.
		capacity = 0
	}
	entry.cache = cache.New[Tile](capacity, s.costFunc(), s.evictionFilter(), s.evictionCallback(entry))
	s.dataSources = append(s.dataSources, entry)
	s.byName[name] = entry
	s.log.Info("data source attached",
		zap.String("data_source", name),
		zap.Float64("cache_capacity", capacity),
		zap.Bool("cacheable", ds.Cacheable()),
	)
}

// RemoveDataSource detaches a data source, draining its cache and dropping
// all bookkeeping for it.
func (s *VisibleTileSet) RemoveDataSource(name string) {
	entry, ok := s.byName[name]
	if !ok {
		return
	}
	entry.cache.EvictAll()
	delete(s.byName, name)
	for i, e := range s.dataSources {
		if e == entry {
			s.dataSources = append(s.dataSources[:i], s.dataSources[i+1:]...)
			break
		}
	}
	for i := range s.results {
		if s.results[i].DataSource == entry.ds {
			s.results = append(s.results[:i], s.results[i+1:]...)
			break
		}
	}
	s.log.Info("data source removed", zap.String("data_source", name))
}

// SetElevationRangeSource installs the optional provider of per-tile
// elevation bounds used during frustum tests.
func (s *VisibleTileSet) SetElevationRangeSource(src ElevationRangeSource) {
	s.elevationSource = src
}

// FrameNumber returns the current frame stamp.
func (s *VisibleTileSet) FrameNumber() int { return s.frameNumber }

// DataSourceTileLists returns the output of the last UpdateRenderList call.
func (s *VisibleTileSet) DataSourceTileLists() []DataSourceTileList { return s.results }

// AllVisibleTilesLoaded reports whether the last frame had every visible tile
// at full precision with only final elevation bounds. The renderer uses it to
// suppress fade transitions.
func (s *VisibleTileSet) AllVisibleTilesLoaded() bool { return s.allVisibleTilesLoaded }

func (s *VisibleTileSet) costFunc() cache.CostFunc[Tile] {
	if s.opts.ResourceComputation == ByEstimatedMemory {
		return func(t Tile) float64 { return float64(t.MemoryUsage()) / (1 << 20) }
	}
	return func(Tile) float64 { return 1 }
}

func (s *VisibleTileSet) evictionFilter() cache.EvictionFilter[Tile] {
	return func(t Tile) bool {
		// Tiles requested this frame are in use and must not be evicted.
		return t.FrameNumLastRequested() != s.frameNumber
	}
}

func (s *VisibleTileSet) evictionCallback(entry *dataSourceEntry) cache.EvictionCallback[Tile] {
	return func(_ uint64, t Tile) {
		if !t.LoadFinished() {
			t.CancelLoad()
		}
		t.SetVisible(false)
		s.pendingDispose = append(s.pendingDispose, t)
		metrics.TileEvictions.WithLabelValues(entry.cacheName).Inc()
	}
}

// UpdateRenderList computes the frame's render list for every attached data
// source: frustum traversal per tiling scheme, priority sort, materialization
// up to the visible-tile budget, fallback search, then eviction of stale
// loading tiles and cache shrinking.
func (s *VisibleTileSet) UpdateRenderList(camera geo.Camera, zoom float64) []DataSourceTileList {
	start := time.Now()
	s.frameNumber++
	s.results = s.results[:0]

	// One traversal per tiling scheme, shared by every data source that
	// quad-splits identically. Results never outlive the frame.
	maxLevels := make(map[string]uint32)
	schemes := make(map[string]*geo.TilingScheme)
	for _, entry := range s.dataSources {
		scheme := entry.ds.TilingScheme()
		level := entry.ds.DisplayZoomLevel(zoom)
		if level > maxLevels[scheme.Name] {
			maxLevels[scheme.Name] = level
		}
		schemes[scheme.Name] = scheme
	}
	intersections := make(map[string]*intersectionResult, len(schemes))
	for name, scheme := range schemes {
		intersections[name] = computeIntersection(
			camera, scheme, maxLevels[name],
			s.opts.TileWrappingEnabled && s.opts.Projection == geo.Planar,
			s.opts.ExtendedFrustumCulling,
			s.elevationSource,
		)
	}

	allLoaded := true
	for _, entry := range s.dataSources {
		res := intersections[entry.ds.TilingScheme().Name]
		list := s.updateDataSource(entry, res, zoom)
		if !list.AllVisibleTilesLoaded || !res.allElevationFinal {
			allLoaded = false
		}
		s.results = append(s.results, list)

		metrics.VisibleTiles.WithLabelValues(entry.cacheName).Set(float64(len(list.VisibleTiles)))
		metrics.RenderedTiles.WithLabelValues(entry.cacheName).Set(float64(len(list.RenderedTiles)))
		metrics.TilesLoading.WithLabelValues(entry.cacheName).Set(float64(list.NumTilesLoading))
	}
	s.allVisibleTilesLoaded = allLoaded

	s.evictStaleLoadingTiles()
	for _, entry := range s.dataSources {
		entry.cache.ShrinkToCapacity()
		metrics.CacheEntries.WithLabelValues(entry.cacheName).Set(float64(entry.cache.Len()))
		metrics.CacheCost.WithLabelValues(entry.cacheName).Set(entry.cache.Size())
	}

	metrics.FrameDuration.Observe(time.Since(start).Seconds())
	s.log.Debug("render list updated",
		zap.Int("frame", s.frameNumber),
		zap.Float64("zoom", zoom),
		zap.Bool("all_loaded", s.allVisibleTilesLoaded),
		zap.Int("pending_dispose", len(s.pendingDispose)),
	)
	return s.results
}

func (s *VisibleTileSet) updateDataSource(entry *dataSourceEntry, res *intersectionResult, zoom float64) DataSourceTileList {
	ds := entry.ds
	level := ds.DisplayZoomLevel(zoom)

	candidates := make([]TileKeyEntry, 0, len(res.entries))
	for _, e := range res.entries {
		if ds.ShouldRender(level, e.Key) {
			candidates = append(candidates, e)
		}
	}
	sortByPriority(candidates)

	list := DataSourceTileList{
		DataSource:            ds,
		DisplayZoomLevel:      level,
		RenderedTiles:         make(map[uint64]Tile),
		AllVisibleTilesLoaded: true,
	}
	for _, e := range candidates {
		if len(list.VisibleTiles) >= s.opts.MaxVisibleDataSourceTiles {
			break
		}
		tile := s.getOrCreateTile(entry, e.Key, e.Offset)
		if tile == nil {
			continue
		}
		list.VisibleTiles = append(list.VisibleTiles, tile)
		if !tile.LoadFinished() {
			list.NumTilesLoading++
		}
		if tile.BasicGeometryLoaded() && !tile.AllGeometryLoaded() {
			list.NumTilesPartiallyLoaded++
		}
		if !tile.AllGeometryLoaded() {
			list.AllVisibleTilesLoaded = false
		}
	}

	s.fillMissingTiles(entry, &list)
	return list
}

// getOrCreateTile fetches a tile from the data source cache, creating it on
// first request, and stamps it as requested this frame so the eviction filter
// protects it.
func (s *VisibleTileSet) getOrCreateTile(entry *dataSourceEntry, key tilekey.TileKey, offset int) Tile {
	code := tilekey.MustEncode(key, offset)
	if tile, ok := entry.cache.Get(code); ok {
		tile.SetFrameNumLastRequested(s.frameNumber)
		tile.SetVisible(true)
		return tile
	}
	tile := entry.ds.GetTile(key, offset)
	if tile == nil {
		return nil
	}
	tile.SetFrameNumLastRequested(s.frameNumber)
	tile.SetVisible(true)
	entry.cache.Set(code, tile)
	return tile
}

// evictStaleLoadingTiles cancels and drops tiles that are no longer visible
// while their load is still in flight. Loaded invisible tiles stay resident
// for the capacity policy to handle.
func (s *VisibleTileSet) evictStaleLoadingTiles() {
	type stale struct {
		code uint64
		tile Tile
	}
	for _, entry := range s.dataSources {
		var found []stale
		entry.cache.ForEach(func(code uint64, t Tile) {
			if t.FrameNumLastRequested() != s.frameNumber && !t.LoadFinished() {
				found = append(found, stale{code, t})
			}
		})
		for _, st := range found {
			st.tile.CancelLoad()
			st.tile.SetVisible(false)
			entry.cache.Delete(st.code)
			s.pendingDispose = append(s.pendingDispose, st.tile)
			metrics.TileEvictions.WithLabelValues(entry.cacheName).Inc()
		}
	}
}

// MarkTilesDirty forces a reload of every tile retained by the current frame
// of the given data source (nil means all) and evicts cached tiles that are
// not retained.
func (s *VisibleTileSet) MarkTilesDirty(ds DataSource) {
	for _, entry := range s.dataSources {
		if ds != nil && entry.ds != ds {
			continue
		}
		retained := make(map[uint64]bool)
		for _, list := range s.results {
			if list.DataSource != entry.ds {
				continue
			}
			for _, t := range list.VisibleTiles {
				retained[tilekey.MustEncode(t.Key(), t.Offset())] = true
			}
			for code := range list.RenderedTiles {
				retained[code] = true
			}
		}

		type resident struct {
			code uint64
			tile Tile
		}
		var all []resident
		entry.cache.ForEach(func(code uint64, t Tile) {
			all = append(all, resident{code, t})
		})
		reloads, drops := 0, 0
		for _, r := range all {
			if retained[r.code] {
				r.tile.Reload()
				reloads++
				continue
			}
			if !r.tile.LoadFinished() {
				r.tile.CancelLoad()
			}
			r.tile.SetVisible(false)
			entry.cache.Delete(r.code)
			s.pendingDispose = append(s.pendingDispose, r.tile)
			drops++
		}
		s.log.Debug("tiles marked dirty",
			zap.String("data_source", entry.cacheName),
			zap.Int("reloaded", reloads),
			zap.Int("dropped", drops),
		)
	}
}

// ClearTileCache drains the cache of one data source, or of all data sources
// when name is empty. Evicted in-flight loads are cancelled and the tiles
// queued for disposal.
func (s *VisibleTileSet) ClearTileCache(name string) {
	if name != "" {
		if entry, ok := s.byName[name]; ok {
			entry.cache.EvictAll()
		}
		return
	}
	for _, entry := range s.dataSources {
		entry.cache.EvictAll()
	}
}

// DisposePendingTiles releases every tile queued by eviction since the last
// call. Runs at end of frame so resource owners are never mutated
// mid-traversal.
func (s *VisibleTileSet) DisposePendingTiles() {
	for _, t := range s.pendingDispose {
		t.Dispose()
	}
	s.pendingDispose = s.pendingDispose[:0]
}
