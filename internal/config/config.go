// Package config loads the viewer configuration from the environment.
package config

import (
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	"terraview/internal/geo"
	"terraview/internal/tileset"
)

type Config struct {
	// MetricsPort serves the Prometheus endpoint; 0 disables it.
	MetricsPort int `env:"METRICS_PORT" envDefault:"9090"`

	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogEncoding string `env:"LOG_ENCODING" envDefault:"console"`

	Projection                 string  `env:"PROJECTION" envDefault:"planar"`
	MaxVisibleDataSourceTiles  int     `env:"MAX_VISIBLE_TILES" envDefault:"100"`
	ExtendedFrustumCulling     bool    `env:"EXTENDED_FRUSTUM_CULLING" envDefault:"true"`
	TileCacheSize              float64 `env:"TILE_CACHE_SIZE" envDefault:"200"`
	CacheCostByMemory          bool    `env:"CACHE_COST_BY_MEMORY" envDefault:"false"`
	QuadTreeSearchDistanceUp   int     `env:"SEARCH_DISTANCE_UP" envDefault:"3"`
	QuadTreeSearchDistanceDown int     `env:"SEARCH_DISTANCE_DOWN" envDefault:"2"`
	TileWrappingEnabled        bool    `env:"TILE_WRAPPING" envDefault:"true"`

	// Demo loop shape.
	Frames       int     `env:"FRAMES" envDefault:"600"`
	FrameDelayMS int     `env:"FRAME_DELAY_MS" envDefault:"16"`
	StartZoom    float64 `env:"START_ZOOM" envDefault:"4"`
	EndZoom      float64 `env:"END_ZOOM" envDefault:"14"`
	TileLoadMS   int     `env:"TILE_LOAD_MS" envDefault:"40"`
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, errors.Wrap(err, "parsing environment")
	}
	return &cfg, nil
}

// TileSetOptions maps the environment configuration onto the tile set's
// option struct.
func (c *Config) TileSetOptions() tileset.Options {
	opts := tileset.Options{
		Projection:                 geo.Planar,
		MaxVisibleDataSourceTiles:  c.MaxVisibleDataSourceTiles,
		ExtendedFrustumCulling:     c.ExtendedFrustumCulling,
		TileCacheSize:              c.TileCacheSize,
		QuadTreeSearchDistanceUp:   c.QuadTreeSearchDistanceUp,
		QuadTreeSearchDistanceDown: c.QuadTreeSearchDistanceDown,
		TileWrappingEnabled:        c.TileWrappingEnabled,
	}
	if c.Projection == "spherical" {
		opts.Projection = geo.Spherical
		opts.TileWrappingEnabled = false
	}
	if c.CacheCostByMemory {
		opts.ResourceComputation = tileset.ByEstimatedMemory
	}
	return opts
}
