package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"tryon-compositor/internal/app"
	"tryon-compositor/internal/config"
	"tryon-compositor/internal/logging"
	"tryon-compositor/internal/orchestrator"
	"tryon-compositor/internal/pose"
	"tryon-compositor/internal/recording"
	"tryon-compositor/internal/server"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	configFile := flag.String("config", "config.yaml", "Path to config.yaml")
	addr := flag.String("addr", "", "HTTP listen address (overrides server.addr)")
	catalogFile := flag.String("catalog", "", "Asset catalog (overrides catalog.path)")
	recDir := flag.String("recording", "", "Recorded session to loop as the camera feed")
	height := flag.Float64("height", 0, "User height in cm; calibrates the measurement scale")
	logMode := flag.String("log", "", "Log mode: debug or release")
	flag.Parse()

	cfg, cfgErr := config.New(*configFile)
	cfg.Resolve(config.Flags{
		Addr:      *addr,
		LogMode:   *logMode,
		Catalog:   *catalogFile,
		Recording: *recDir,
		Height:    *height,
	})

	log, err := logging.New(cfg.Log.Mode)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync(log)

	if cfgErr != nil {
		log.Warn("config not loaded, using defaults", zap.Error(cfgErr))
	}
	log.Info("starting tryond",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit))

	if err := run(cfg, log); err != nil {
		log.Error("tryond stopped", zap.Error(err))
		logging.Sync(log)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	a, err := app.Build(cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.ApplySession(ctx, cfg.Session); err != nil {
		log.Warn("starting without part of the session", zap.Error(err))
	}

	var src *recording.Source
	if cfg.Replay.Input != "" {
		src, err = recording.Open(cfg.Replay.Input, a.Device, log.Named("recording"))
		if err != nil {
			return err
		}
	}

	srv := server.New(a.Orchestrator, server.BuildInfo{
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
	}, cfg.Server.Mode, log.Named("http"))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, 2)
	running := 1
	go func() {
		errc <- srv.Run(ctx, cfg.Server.Addr, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout)
	}()
	if src != nil {
		running++
		go func() {
			errc <- frameLoop(ctx, a.Orchestrator, src, cfg.Orchestrator.FPS, log)
		}()
	} else {
		log.Info("no recording configured; serving controls only")
	}

	// the first component to stop takes the other down with it
	var first error
	for i := 0; i < running; i++ {
		err := <-errc
		if i == 0 {
			first = err
			cancel()
		}
	}
	if first != nil && !errors.Is(first, context.Canceled) {
		return first
	}
	return nil
}

type frameSource interface {
	Next(ctx context.Context) (*recording.Frame, error)
	Rewind()
}

type frameUpdater interface {
	Update(ctx context.Context, res pose.Result, video *image.NRGBA) (orchestrator.Output, error)
}

// frameLoop plays src at fps, starting over at the end.
func frameLoop(ctx context.Context, loop frameUpdater, src frameSource, fps int, log *zap.Logger) error {
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		f, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			src.Rewind()
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// the source has moved past the bad frame
			log.Warn("recorded frame skipped", zap.Error(err))
			continue
		}
		if _, err := loop.Update(ctx, f.Result, f.Video); err != nil {
			log.Warn("frame dropped", zap.Uint64("seq", f.Result.Seq), zap.Error(err))
		}
		f.Release()
	}
}
