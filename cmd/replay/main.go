package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/cheggaaa/pb/v3"

	"tryon-compositor/internal/app"
	"tryon-compositor/internal/batch"
	"tryon-compositor/internal/config"
	"tryon-compositor/internal/logging"
	"tryon-compositor/internal/measure"
	"tryon-compositor/internal/recording"
)

func main() {
	// CLI flags
	configFile := flag.String("config", "config.yaml", "Path to config.yaml")
	recDir := flag.String("recording", "", "Recorded session directory (overrides replay.input)")
	outputDir := flag.String("output", "", "Output directory (overrides replay.output)")
	catalogFile := flag.String("catalog", "", "Asset catalog (overrides catalog.path)")
	workers := flag.Int("workers", 0, "WebP encoder goroutines (default: NumCPU)")
	height := flag.Float64("height", 0, "User height in cm; calibrates the measurement scale")
	logMode := flag.String("log", "", "Log mode: debug or release")
	noBar := flag.Bool("no-progress", false, "Disable the progress bar")

	flag.Parse()

	cfg, err := config.New(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
	}

	// CLI flags override config file
	cfg.Resolve(config.Flags{
		LogMode:   *logMode,
		Catalog:   *catalogFile,
		Recording: *recDir,
		OutputDir: *outputDir,
		Workers:   *workers,
		Height:    *height,
	})

	if cfg.Replay.Input == "" {
		fmt.Fprintln(os.Stderr, "Error: no recording. Use -recording or replay.input in config.yaml.")
		os.Exit(1)
	}

	log, err := logging.New(cfg.Log.Mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync(log)

	a, err := app.Build(cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := a.ApplySession(ctx, cfg.Session); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: session: %v\n", err)
	}

	src, err := recording.Open(cfg.Replay.Input, a.Device, log.Named("recording"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	snap := a.Orchestrator.Snapshot()
	fmt.Printf("Try-on replay → WebP\n")
	fmt.Printf("Frames: %d, Workers: %d\n", src.Len(), cfg.Replay.Workers)
	fmt.Printf("Outfit: %s, Hat: %s, Background: %s (%s)\n", snap.Outfit.ID, snap.Hat.ID, snap.Background.ID, snap.Mode)
	fmt.Printf("Output: %s\n", cfg.Replay.Output)
	fmt.Println("------------------------------------------------------------")

	start := time.Now()

	var bar *pb.ProgressBar
	if !*noBar {
		bar = batch.NewProgressBar(src.Len())
	}
	results, runErr := batch.Run(ctx, batch.Config{
		OutputDir: cfg.Replay.Output,
		Workers:   cfg.Replay.Workers,
		Log:       log.Named("batch"),
	}, src, a.Orchestrator, bar)

	elapsed := time.Since(start)
	fmt.Println("------------------------------------------------------------")
	fmt.Printf("Done in %.1fs\n", elapsed.Seconds())
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Stopped early: %v\n", runErr)
	}

	// Count results
	success, failed := 0, 0
	var errors []batch.Result
	for _, r := range results {
		if r.Success {
			success++
		} else {
			failed++
			errors = append(errors, r)
		}
	}
	fmt.Printf("Composited: %d/%d\n", success, len(results))

	if len(errors) > 0 {
		fmt.Printf("\nFailed (%d):\n", failed)
		limit := 20
		if len(errors) < limit {
			limit = len(errors)
		}
		for _, e := range errors[:limit] {
			fmt.Printf("  frame %d: %s\n", e.Seq, e.Error)
		}
	}

	var final *measure.Result
	if r, ok := a.Orchestrator.Measurement(); ok {
		final = &r
		fmt.Printf("Measurement: height %.1f cm, waist %.1f cm, size %s\n", r.HeightCm, r.WaistCm, sizeLabel(r))
	}

	// Write manifest
	manifestPath := filepath.Join(cfg.Replay.Output, "manifest.json")
	m := batch.NewManifest(cfg.Replay.Input, a.Orchestrator.Snapshot(), results, final)
	if err := batch.WriteManifest(manifestPath, m); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: manifest write failed: %v\n", err)
	} else {
		fmt.Printf("Manifest: %s (session %s)\n", manifestPath, m.Session)
	}

	if failed > 0 || runErr != nil {
		os.Exit(1)
	}
}

func sizeLabel(r measure.Result) string {
	if r.Size == measure.SizeNone {
		return "n/a"
	}
	return string(r.Size)
}
