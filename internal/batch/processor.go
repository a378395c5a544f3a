// Package batch replays a recorded session through the frame loop and
// writes every composite as WebP.
package batch

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/HugoSmits86/nativewebp"
	"github.com/cheggaaa/pb/v3"
	"go.uber.org/zap"

	"tryon-compositor/internal/orchestrator"
	"tryon-compositor/internal/pose"
	"tryon-compositor/internal/recording"
)

// Config holds the output side of a replay.
type Config struct {
	OutputDir string
	Workers   int
	Log       *zap.Logger
}

// Source yields recorded frames until io.EOF.
type Source interface {
	Len() int
	Next(ctx context.Context) (*recording.Frame, error)
}

// Processor is the per-frame loop.
type Processor interface {
	Update(ctx context.Context, res pose.Result, video *image.NRGBA) (orchestrator.Output, error)
}

// Result holds the outcome of one frame.
type Result struct {
	Seq     uint64
	Image   string
	Output  orchestrator.Output
	Success bool
	Error   string
}

type job struct {
	idx int
	img *image.NRGBA
}

// NewProgressBar starts a console progress bar over total frames.
func NewProgressBar(total int) *pb.ProgressBar {
	template := `{{ string . "prefix" }} {{counters . "%s/%s" "%s/?"}} {{bar . }} {{percent . "%.01f%%" "?"}} {{etime . "%s elapsed"}} {{rtime . "%s remain" "%s total" "???"}}`
	return pb.ProgressBarTemplate(template).Start(total)
}

// Run feeds every frame of src to proc in order. Frames are processed
// sequentially; encoding runs on a worker pool. bar may be nil.
// A frame that fails to load or to process is recorded in its Result and
// does not stop the run; only another source error or cancellation does.
func Run(ctx context.Context, cfg Config, src Source, proc Processor, bar *pb.ProgressBar) ([]Result, error) {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("batch: %w", err)
	}

	results := make([]Result, 0, src.Len())
	var mu sync.Mutex
	jobs := make(chan job, workers*2)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				mu.Lock()
				path := filepath.Join(cfg.OutputDir, results[j.idx].Image)
				mu.Unlock()
				err := writeWebP(path, j.img)
				mu.Lock()
				if err != nil {
					results[j.idx].Success = false
					results[j.idx].Error = err.Error()
				}
				mu.Unlock()
				if bar != nil {
					bar.Increment()
				}
			}
		}()
	}

	var runErr error
	for {
		f, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		var bad *recording.FrameError
		if errors.As(err, &bad) {
			log.Warn("frame skipped", zap.Uint64("seq", bad.Seq), zap.Error(err))
			mu.Lock()
			results = append(results, Result{Seq: bad.Seq, Error: err.Error()})
			mu.Unlock()
			if bar != nil {
				bar.Increment()
			}
			continue
		}
		if err != nil {
			runErr = err
			break
		}
		out, err := proc.Update(ctx, f.Result, f.Video)
		f.Release()

		r := Result{Seq: f.Result.Seq, Output: out, Success: err == nil}
		if err != nil {
			r.Error = err.Error()
			log.Warn("frame failed", zap.Uint64("seq", r.Seq), zap.Error(err))
		}
		if err == nil && out.Image != nil {
			r.Image = fmt.Sprintf("%06d.webp", r.Seq)
		}

		mu.Lock()
		results = append(results, r)
		idx := len(results) - 1
		mu.Unlock()

		if r.Image != "" {
			jobs <- job{idx: idx, img: out.Image}
		} else if bar != nil {
			bar.Increment()
		}
	}
	close(jobs)
	wg.Wait()
	if bar != nil {
		bar.Finish()
	}
	return results, runErr
}

func writeWebP(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := nativewebp.Encode(f, img, nil); err != nil {
		f.Close()
		return fmt.Errorf("WebP encode: %w", err)
	}
	return f.Close()
}
