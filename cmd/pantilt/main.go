// pantilt keeps a detected object centered in the frame of a camera mounted
// on a two-axis pan/tilt servo mount.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/teslashibe/go-pantilt/internal/config"
	"github.com/teslashibe/go-pantilt/internal/log"
	"github.com/teslashibe/go-pantilt/pkg/camera"
	"github.com/teslashibe/go-pantilt/pkg/servo"
	"github.com/teslashibe/go-pantilt/pkg/sim"
	"github.com/teslashibe/go-pantilt/pkg/tracking"
	"github.com/teslashibe/go-pantilt/pkg/tracking/detection"
	"github.com/teslashibe/go-pantilt/pkg/web"
)

var exampleUsage = strings.TrimSpace(`
  pantilt --cascade haarcascade_frontalface_default.xml
  pantilt --cascade models/yolov8n.onnx --detector yolo --class dog --fallback hold
  pantilt --simulate --status-addr :8080 --log-level debug
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := config.DefaultConfig()
	var cfgPath string

	root := &cobra.Command{
		Use:          "pantilt",
		Short:        "Track an object with a pan/tilt camera mount",
		Example:      exampleUsage,
		Version:      fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			changed := map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

			if err := loadConfig(&cfg, cfgPath, changed); err != nil {
				return err
			}

			log.Init(cfg.LogLevel)

			ctx, stop := interruptContext(cmd.Context())
			defer stop()
			return run(ctx, cfg, log.Component("main"))
		},
	}

	f := root.Flags()
	f.StringVar(&cfgPath, "config", "", "TOML config file (default $HOME/.pantilt/config.toml)")
	f.StringVar(&cfg.Cascade, "cascade", cfg.Cascade, "classifier definition (cascade XML, or ONNX model for yunet/yolo)")
	f.StringVar(&cfg.Detector, "detector", cfg.Detector, "detection backend: cascade, yunet or yolo")
	f.StringVar(&cfg.Class, "class", cfg.Class, "object class to follow with --detector yolo")
	f.StringVar(&cfg.Camera, "camera", cfg.Camera, "video device index or path")
	f.IntVar(&cfg.Width, "width", cfg.Width, "capture width in pixels")
	f.IntVar(&cfg.Height, "height", cfg.Height, "capture height in pixels")
	f.BoolVar(&cfg.NoFlip, "no-flip", cfg.NoFlip, "do not flip frames vertically (camera mounted upright)")
	f.StringVar(&cfg.Fallback, "fallback", cfg.Fallback, "object position when nothing is detected: center or hold")
	f.BoolVar(&cfg.Simulate, "simulate", cfg.Simulate, "run against a simulated mount instead of hardware")
	f.StringVar(&cfg.StatusAddr, "status-addr", cfg.StatusAddr, "serve status and preview on this address (disabled when empty)")
	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	f.StringVar(&cfg.I2CBus, "i2c-bus", cfg.I2CBus, "I2C bus of the Pan-Tilt HAT (default bus when empty)")

	return root
}

// interruptContext is cancelled by the first SIGINT or SIGTERM. Signal
// capture ends at that point, so a second interrupt kills the process even
// while a loop is stuck in a blocking capture read.
func interruptContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	releaseOnDone(ctx, stop)
	return ctx, stop
}

func releaseOnDone(ctx context.Context, release func()) {
	go func() {
		<-ctx.Done()
		release()
	}()
}

// loadConfig layers the config file and environment under the flags already
// parsed into cfg, then validates the result.
func loadConfig(cfg *config.Config, path string, changed map[string]bool) error {
	file := path
	if file == "" {
		file = config.DefaultConfigPath()
	}
	switch {
	case file != "" && config.FileExists(file):
		fc, err := config.LoadFileConfig(file)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := config.ApplyFileConfig(cfg, fc, changed); err != nil {
			return err
		}
	case path != "":
		return fmt.Errorf("config file %s not found", path)
	}

	if err := config.ApplyEnvConfig(cfg, changed); err != nil {
		return err
	}
	return cfg.Validate()
}

// rig is the set of collaborators the tracker runs against.
type rig struct {
	source   tracking.VideoSource
	detector tracking.Detector
	actuator tracking.Actuator
	closers  []func() error
}

func (r *rig) close(logger *slog.Logger) {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			logger.Warn("release failed", "error", err)
		}
	}
}

func openHardware(ctx context.Context, cfg config.Config, logger *slog.Logger) (*rig, error) {
	r := &rig{}

	dc, err := cfg.DetectorConfig()
	if err != nil {
		return nil, err
	}
	det, err := detection.Open(dc, log.Component("detector"))
	if err != nil {
		return nil, fmt.Errorf("load detector: %w", err)
	}
	r.detector = det
	r.closers = append(r.closers, det.Close)

	hat, err := servo.Open(cfg.ServoConfig(), log.Component("servo"))
	if err != nil {
		r.close(logger)
		return nil, fmt.Errorf("open servos: %w", err)
	}
	r.actuator = hat
	r.closers = append(r.closers, hat.Close)

	src, err := camera.Open(ctx, cfg.CameraConfig(), log.Component("camera"))
	if err != nil {
		r.close(logger)
		return nil, fmt.Errorf("open camera: %w", err)
	}
	r.source = src
	r.closers = append(r.closers, src.Close)

	return r, nil
}

func openSimulation(cfg config.Config, tc tracking.Config, logger *slog.Logger) *rig {
	scene := sim.DefaultConfig()
	scene.Width, scene.Height = cfg.Width, cfg.Height
	scene.UpsideDown = tc.FlipVertical
	plant := sim.NewPlant(scene)
	logger.Info("running against simulated mount",
		"target_pan", scene.Target[0], "target_tilt", scene.Target[1])
	return &rig{source: sim.NewCamera(plant), detector: sim.Detector{}, actuator: plant}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	tc, err := cfg.TrackingConfig()
	if err != nil {
		return err
	}

	var r *rig
	if cfg.Simulate {
		r = openSimulation(cfg, tc, logger)
	} else {
		r, err = openHardware(ctx, cfg, logger)
		if err != nil {
			logger.Error("startup failed", "error", err)
			return err
		}
	}
	defer r.close(logger)

	tr, err := tracking.New(tc, r.source, r.detector, r.actuator)
	if err != nil {
		return err
	}

	if wc, ok := cfg.StatusConfig(); ok {
		ln, err := net.Listen("tcp", wc.Addr)
		if err != nil {
			return fmt.Errorf("status server: %w", err)
		}
		srv := web.NewServer(wc, tr.Status, log.Component("web"))
		tr.SetFrameObserver(srv.Preview())

		srvCtx, stopSrv := context.WithCancel(context.Background())
		srvDone := make(chan error, 1)
		go func() { srvDone <- srv.Serve(srvCtx, ln) }()
		defer func() {
			stopSrv()
			if err := <-srvDone; err != nil {
				logger.Warn("status server stopped with error", "error", err)
			}
		}()
	}

	logger.Info("pantilt starting", "run_id", tr.RunID(), "detector", cfg.Detector, "simulate", cfg.Simulate)
	if err := tr.Run(ctx); err != nil {
		logger.Error("tracker stopped", "error", err)
		return fmt.Errorf("tracker: %w", err)
	}
	logger.Info("pantilt stopped")
	return nil
}
