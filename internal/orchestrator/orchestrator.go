// Package orchestrator runs the per-frame loop: presence tracking, gesture
// overlay, compositing and opportunistic measurement.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"tryon-compositor/internal/attach"
	"tryon-compositor/internal/gesture"
	"tryon-compositor/internal/gpu"
	"tryon-compositor/internal/mathutil"
	"tryon-compositor/internal/measure"
	"tryon-compositor/internal/notify"
	"tryon-compositor/internal/pipeline"
	"tryon-compositor/internal/pose"
)

// DefaultNoPoseLimit is how many pose-less frames bring up the holding screen.
const DefaultNoPoseLimit = 1000

// SceneRenderer draws the attached 3D content for a frame of the given size.
type SceneRenderer interface {
	Render(width, height int) *pipeline.SceneLayer
}

// Overlay is the object revealed by the arms-up gesture.
type Overlay interface {
	SetEnabled(on bool)
	// SetPosition places the overlay in metric camera space.
	SetPosition(p mathutil.Vec3)
}

// Config tunes the loop.
type Config struct {
	NoPoseLimit int `mapstructure:"no_pose_limit"`
	// MeasureEvery measures every n-th frame with a pose; 0 measures only on request.
	MeasureEvery int `mapstructure:"measure_every"`
}

// DefaultConfig measures twice a second at 30 fps.
func DefaultConfig() Config {
	return Config{NoPoseLimit: DefaultNoPoseLimit, MeasureEvery: 15}
}

// Options wires the orchestrator. Pipeline and Attach are required.
type Options struct {
	Pipeline *pipeline.Pipeline
	Attach   *attach.Manager
	Scene    SceneRenderer
	Device   gpu.Device
	Engine   *measure.Engine
	Latest   *measure.Latest
	Notifier notify.Notifier
	Overlay  Overlay
	Config   Config
	Log      *zap.Logger
}

// Output summarizes one processed frame.
type Output struct {
	Seq        uint64
	Image      *image.NRGBA
	HasPose    bool
	ArmsUp     bool
	Holding    bool
	Measured   bool
	Measure    measure.Result
	MeasureErr error
}

// Orchestrator is driven by one frame loop goroutine; the swap and query
// methods may be called from any goroutine.
type Orchestrator struct {
	pipe     *pipeline.Pipeline
	att      *attach.Manager
	scene    SceneRenderer
	dev      gpu.Device
	engine   *measure.Engine
	latest   *measure.Latest
	notifier notify.Notifier
	overlay  Overlay
	cfg      Config
	log      *zap.Logger

	// frame loop state
	arms     *gesture.ArmsUp
	noPose   int
	holding  bool
	scanned  bool
	withPose uint64

	measureReq atomic.Bool
	last       atomic.Pointer[image.NRGBA]
	modeMu     sync.Mutex
}

// New validates opts.
func New(opts Options) (*Orchestrator, error) {
	if opts.Pipeline == nil || opts.Attach == nil {
		return nil, errors.New("orchestrator: pipeline and attachment manager are required")
	}
	if opts.Engine != nil && opts.Device == nil {
		return nil, errors.New("orchestrator: measurement needs a device")
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	n := opts.Notifier
	if n == nil {
		n = notify.Nop{}
	}
	latest := opts.Latest
	if latest == nil {
		latest = &measure.Latest{}
	}
	cfg := opts.Config
	if cfg.NoPoseLimit <= 0 {
		cfg.NoPoseLimit = DefaultNoPoseLimit
	}
	return &Orchestrator{
		pipe:     opts.Pipeline,
		att:      opts.Attach,
		scene:    opts.Scene,
		dev:      opts.Device,
		engine:   opts.Engine,
		latest:   latest,
		notifier: n,
		overlay:  opts.Overlay,
		cfg:      cfg,
		log:      log,
		arms:     gesture.NewArmsUp(),
	}, nil
}

// Update processes one frame. A panic inside the frame's work is recovered
// and returned as that frame's error; the loop may continue with the next.
func (o *Orchestrator) Update(ctx context.Context, res pose.Result, video *image.NRGBA) (out Output, err error) {
	out.Seq = res.Seq
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("orchestrator: frame %d: panic: %v", res.Seq, r)
			o.log.Error("frame panicked", zap.Uint64("seq", res.Seq), zap.Any("panic", r))
		}
	}()
	if err := ctx.Err(); err != nil {
		return out, err
	}

	p := res.Primary()
	out.HasPose = p != nil
	o.trackPresence(p)
	out.Holding = o.holding
	out.ArmsUp = o.updateGesture(p)

	var mask *pose.Mask
	if p != nil {
		mask = p.Mask
	}
	frame := pipeline.NewFrame(res.Seq, video, mask)
	err = o.att.Frame(func(v attach.View) error {
		v.EnsurePatchParts()
		frame.Background = v.Background()
		if o.scene != nil && frame.Video != nil {
			w, h := frame.Size()
			frame.Scene = o.scene.Render(w, h)
		}
		if err := o.pipe.Run(frame); err != nil {
			return err
		}
		frame.CompositeScene()
		return nil
	})
	if err != nil {
		return out, fmt.Errorf("orchestrator: frame %d: %w", res.Seq, err)
	}
	out.Image = frame.Output
	if frame.Output != nil {
		o.last.Store(frame.Output)
	}

	if p != nil && o.shouldMeasure() {
		out.Measured = true
		out.Measure, out.MeasureErr = o.measure(res.Seq, p)
	}
	return out, nil
}

// trackPresence drives the holding screen and the scan cue.
func (o *Orchestrator) trackPresence(p *pose.Pose) {
	if p == nil {
		o.scanned = false
		if o.holding {
			return
		}
		o.noPose++
		if o.noPose > o.cfg.NoPoseLimit {
			o.holding = true
			frames := o.noPose
			o.noPose = 0
			o.emit("no-pose", o.notifier.NoPose(frames))
		}
		return
	}
	o.noPose = 0
	o.holding = false
	o.withPose++
	if !o.scanned {
		o.scanned = true
		o.emit("scan-started", o.notifier.ScanStarted())
	}
}

func (o *Orchestrator) updateGesture(p *pose.Pose) bool {
	if p == nil {
		o.arms.Reset()
		if o.overlay != nil {
			o.overlay.SetEnabled(false)
		}
		return false
	}
	up, err := o.arms.Update(p)
	if err != nil {
		o.log.Debug("arms-up not evaluated", zap.Error(err))
	}
	if o.overlay != nil {
		if wrists, err := p.Metric(pose.WristL, pose.WristR); err == nil {
			o.overlay.SetPosition(mathutil.Mid(wrists[0], wrists[1]))
		}
		o.overlay.SetEnabled(up)
	}
	return up
}

func (o *Orchestrator) shouldMeasure() bool {
	if o.engine == nil {
		return false
	}
	if o.measureReq.Swap(false) {
		return true
	}
	return o.cfg.MeasureEvery > 0 && o.withPose%uint64(o.cfg.MeasureEvery) == 0
}

func (o *Orchestrator) measure(seq uint64, p *pose.Pose) (measure.Result, error) {
	r, err := o.engine.MeasureFromDevice(o.dev, p)
	if err != nil {
		o.log.Debug("measurement skipped", zap.Uint64("seq", seq), zap.Error(err))
		return measure.Result{}, err
	}
	r.Seq = seq
	if !r.Detected() {
		// No silhouette at the waist: keep showing the previous result.
		o.log.Debug("silhouette not found", zap.Uint64("seq", seq))
		return r, nil
	}
	o.latest.Store(r)
	o.emit("measurement", o.notifier.MeasurementUpdated(r))
	return r, nil
}

func (o *Orchestrator) emit(event string, err error) {
	if err != nil {
		o.log.Warn("notification failed", zap.String("event", event), zap.Error(err))
	}
}

// RequestMeasurement measures the next frame that has a pose.
func (o *Orchestrator) RequestMeasurement() {
	o.measureReq.Store(true)
}

// Measurement returns the live measurement.
func (o *Orchestrator) Measurement() (measure.Result, bool) {
	return o.latest.Load()
}

// LastFrame returns the most recent composite, or nil before the first frame.
func (o *Orchestrator) LastFrame() *image.NRGBA {
	return o.last.Load()
}
