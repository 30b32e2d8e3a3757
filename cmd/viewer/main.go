package main

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"terraview/internal/config"
	"terraview/internal/datasource"
	"terraview/internal/geo"
	"terraview/internal/logger"
	"terraview/internal/tileset"
)

// worldSize is the side length of the level-0 tile in world units.
const worldSize = 1 << 20

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogEncoding)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	sessionID := uuid.New().String()
	log.Info("Starting terraview viewer",
		zap.String("session_id", sessionID),
		zap.String("projection", cfg.Projection),
		zap.Int("frames", cfg.Frames),
	)

	var metricsServer *http.Server
	if cfg.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
			Handler: mux,
		}
		go func() {
			log.Info("Metrics endpoint listening", zap.Int("port", cfg.MetricsPort))
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("Metrics server failed", zap.Error(err))
			}
		}()
	}

	opts := cfg.TileSetOptions()
	scheme := geo.WebMercatorTilingScheme(worldSize, opts.Projection)
	vts := tileset.New(opts, log)
	vts.AttachDataSource(datasource.New(
		"synthetic",
		scheme,
		1, 16,
		time.Duration(cfg.TileLoadMS)*time.Millisecond,
		log,
	))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runLoop(ctx, cfg, vts, log)

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		metricsServer.Shutdown(shutdownCtx)
	}
	log.Info("Viewer stopped", zap.String("session_id", sessionID))
}

// runLoop flies the camera from a high overview down toward a fixed target,
// updating the render list once per frame.
func runLoop(ctx context.Context, cfg *config.Config, vts *tileset.VisibleTileSet, log *zap.Logger) {
	target := geo.Vec3{X: worldSize * 0.537, Y: worldSize * 0.328, Z: 0}
	delay := time.Duration(cfg.FrameDelayMS) * time.Millisecond

	for frame := 0; frame < cfg.Frames; frame++ {
		select {
		case <-ctx.Done():
			log.Info("Interrupted", zap.Int("frame", frame))
			return
		default:
		}

		t := float64(frame) / float64(max(cfg.Frames-1, 1))
		zoom := cfg.StartZoom + (cfg.EndZoom-cfg.StartZoom)*t
		// Camera altitude halves per zoom level, the classic slippy-map
		// relation between zoom and height.
		height := worldSize / math.Pow(2, zoom)
		camera := geo.Camera{
			Position: geo.Vec3{X: target.X, Y: target.Y + height*0.2, Z: height},
			Target:   target,
			Up:       geo.Vec3{Y: 1},
			FovY:     math.Pi / 4,
			Aspect:   16.0 / 9.0,
			Near:     height / 100,
			Far:      height * 100,
		}

		lists := vts.UpdateRenderList(camera, zoom)
		vts.DisposePendingTiles()

		if frame%60 == 0 {
			visible, rendered, loading := 0, 0, 0
			for _, list := range lists {
				visible += len(list.VisibleTiles)
				rendered += len(list.RenderedTiles)
				loading += list.NumTilesLoading
			}
			log.Info("frame",
				zap.Int("n", frame),
				zap.Float64("zoom", zoom),
				zap.Int("visible", visible),
				zap.Int("rendered", rendered),
				zap.Int("loading", loading),
				zap.Bool("all_loaded", vts.AllVisibleTilesLoaded()),
			)
		}
		if delay > 0 {
			time.Sleep(delay)
		}
	}
}
