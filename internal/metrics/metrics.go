// Package metrics exposes the Prometheus collectors of the visible-tile core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	VisibleTiles = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "terraview_visible_tiles",
		Help: "Visible tiles selected for the last frame, per data source",
	}, []string{"data_source"})

	RenderedTiles = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "terraview_rendered_tiles",
		Help: "Rendered tiles (visible plus fallback substitutes) in the last frame",
	}, []string{"data_source"})

	TilesLoading = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "terraview_tiles_loading",
		Help: "Visible tiles whose load had not settled in the last frame",
	}, []string{"data_source"})

	CacheEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "terraview_tile_cache_entries",
		Help: "Resident entries in the per-data-source tile cache",
	}, []string{"data_source"})

	CacheCost = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "terraview_tile_cache_cost",
		Help: "Total resident cost of the tile cache in capacity units",
	}, []string{"data_source"})

	TileEvictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "terraview_tile_evictions_total",
		Help: "Tiles evicted from the cache",
	}, []string{"data_source"})

	FallbackSubstitutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "terraview_fallback_substitutions_total",
		Help: "Ancestor or descendant tiles substituted for tiles still loading",
	}, []string{"data_source"})

	FrameDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "terraview_frame_update_duration_seconds",
		Help:    "Duration of UpdateRenderList calls",
		Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1},
	})
)
