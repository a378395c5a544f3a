package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"strings"
	"sync"
	"testing"

	"tryon-compositor/internal/attach"
	"tryon-compositor/internal/catalog"
	"tryon-compositor/internal/coords"
	"tryon-compositor/internal/gpu"
	"tryon-compositor/internal/mathutil"
	"tryon-compositor/internal/measure"
	"tryon-compositor/internal/pipeline"
	"tryon-compositor/internal/pose"
	"tryon-compositor/internal/raster"
	"tryon-compositor/internal/scene"
)

type noModels struct{}

func (noModels) Load(_ context.Context, url string) (*scene.Node, error) {
	return nil, fmt.Errorf("fetch %s: not found", url)
}

type images map[string]*image.NRGBA

func (f images) Image(_ context.Context, url string) (*image.NRGBA, error) {
	if img, ok := f[url]; ok {
		return img, nil
	}
	return nil, fmt.Errorf("fetch %s: not found", url)
}

type events struct {
	mu     sync.Mutex
	log    []string
	noPose []int
	last   measure.Result
	mode   pipeline.Mode
}

func (e *events) add(s string) {
	e.mu.Lock()
	e.log = append(e.log, s)
	e.mu.Unlock()
}

func (e *events) NoPose(frames int) error {
	e.noPose = append(e.noPose, frames)
	e.add("no-pose")
	return nil
}
func (e *events) ScanStarted() error { e.add("scan"); return nil }
func (e *events) MeasurementUpdated(r measure.Result) error {
	e.last = r
	e.add("measure")
	return nil
}
func (e *events) BackgroundModeChanged(m pipeline.Mode) error {
	e.mode = m
	e.add("mode:" + string(m))
	return nil
}

func (e *events) String() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return strings.Join(e.log, ",")
}

type overlay struct {
	on  bool
	pos mathutil.Vec3
}

func (o *overlay) SetEnabled(on bool)          { o.on = on }
func (o *overlay) SetPosition(p mathutil.Vec3) { o.pos = p }

type panicScene struct{ left int }

func (s *panicScene) Render(w, h int) *pipeline.SceneLayer {
	if s.left > 0 {
		s.left--
		panic("renderer lost context")
	}
	return nil
}

type fixture struct {
	dev     *gpu.SoftDevice
	orch    *Orchestrator
	events  *events
	overlay *overlay
	latest  *measure.Latest
}

const testCatalog = `
backgrounds:
  bg1: {url: bg1.png}
  noBg: {mode: blur}
`

func newFixture(t *testing.T, cfg Config, sc SceneRenderer) *fixture {
	t.Helper()
	dev := gpu.NewSoftDevice()
	std, err := pipeline.NewStandard(dev, pipeline.DefaultParams(), nil)
	if err != nil {
		t.Fatal(err)
	}
	cat, err := catalog.Parse([]byte(testCatalog))
	if err != nil {
		t.Fatal(err)
	}
	mgr, err := attach.New(attach.Options{
		Catalog:    cat,
		Loader:     noModels{},
		Images:     images{"bg1.png": image.NewNRGBA(image.Rect(0, 0, 8, 8))},
		Renderer:   scene.NewWorld(),
		Background: std.Background,
		Patch:      std.Patch,
	})
	if err != nil {
		t.Fatal(err)
	}
	eng, err := measure.NewEngine(measure.DefaultConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}
	f := &fixture{dev: dev, events: &events{}, overlay: &overlay{}, latest: &measure.Latest{}}
	f.orch, err = New(Options{
		Pipeline: std.Pipeline,
		Attach:   mgr,
		Scene:    sc,
		Device:   dev,
		Engine:   eng,
		Latest:   f.latest,
		Notifier: f.events,
		Overlay:  f.overlay,
		Config:   cfg,
	})
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func video() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 20, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 20; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 90, G: 120, B: 150, A: 255})
		}
	}
	return img
}

// person returns a pose with the arms raised (up) or hanging, and a mask
// whose hip row is 60 texels wide.
func (f *fixture) person(up bool) *pose.Pose {
	kp := func(x, y float64, m mathutil.Vec3) pose.Keypoint {
		return pose.Keypoint{Pixel: coords.Norm{X: x, Y: y}, Metric: m, Visibility: 1}
	}
	elbowY, wristY := 1.1, 0.8
	if up {
		elbowY, wristY = 1.7, 2.0
	}
	buf := raster.NewBuffer(200, 100)
	for x := 70; x <= 130; x++ {
		buf.Pix[buf.Offset(x, 50)] = 255
	}
	return &pose.Pose{
		Points: map[pose.Joint]pose.Keypoint{
			pose.Nose:      kp(0.5, 0.1, mathutil.Vec3{0, 1.5, 0}),
			pose.ShoulderL: kp(0.25, 0.3, mathutil.Vec3{-0.25, 1.4, 0}),
			pose.ShoulderR: kp(0.75, 0.3, mathutil.Vec3{0.25, 1.4, 0}),
			pose.ElbowL:    kp(0.25, 0.2, mathutil.Vec3{-0.25, elbowY, 0}),
			pose.ElbowR:    kp(0.75, 0.2, mathutil.Vec3{0.25, elbowY, 0}),
			pose.WristL:    kp(0.25, 0.1, mathutil.Vec3{-0.25, wristY, 0.1}),
			pose.WristR:    kp(0.75, 0.1, mathutil.Vec3{0.25, wristY, 0.1}),
			pose.HipL:      kp(0.4, 0.5, mathutil.Vec3{-0.25, 0.9, 0}),
			pose.HipR:      kp(0.6, 0.5, mathutil.Vec3{0.25, 0.9, 0}),
			pose.AnkleL:    kp(0.45, 0.85, mathutil.Vec3{-0.1, 0.1, 0}),
			pose.AnkleR:    kp(0.55, 0.85, mathutil.Vec3{0.1, 0.1, 0}),
		},
		Mask: &pose.Mask{Texture: f.dev.NewTexture(buf), Width: 200, Height: 100, Box: coords.FullBox},
	}
}

func (f *fixture) step(t *testing.T, seq uint64, p *pose.Pose) Output {
	t.Helper()
	res := pose.Result{Seq: seq}
	if p != nil {
		res.Poses = []*pose.Pose{p}
	}
	out, err := f.orch.Update(context.Background(), res, video())
	if err != nil {
		t.Fatalf("frame %d: %v", seq, err)
	}
	return out
}

func TestNoPoseHoldingScreen(t *testing.T) {
	f := newFixture(t, Config{NoPoseLimit: 3}, nil)

	var seq uint64
	for i := 0; i < 10; i++ {
		seq++
		f.step(t, seq, nil)
	}
	if got := f.events.String(); got != "no-pose" {
		t.Fatalf("events = %q, want a single no-pose", got)
	}
	if f.events.noPose[0] != 4 {
		t.Errorf("no-pose after %d frames, want 4", f.events.noPose[0])
	}

	seq++
	out := f.step(t, seq, f.person(false))
	if out.Holding || !out.HasPose {
		t.Errorf("pose frame output = %+v", out)
	}
	seq++
	f.step(t, seq, f.person(false))
	if got := f.events.String(); got != "no-pose,scan" {
		t.Fatalf("events = %q", got)
	}

	// the counter restarts once a person was seen
	for i := 0; i < 4; i++ {
		seq++
		f.step(t, seq, nil)
	}
	seq++
	f.step(t, seq, f.person(false))
	if got := f.events.String(); got != "no-pose,scan,no-pose,scan" {
		t.Fatalf("events = %q", got)
	}
}

func TestArmsUpDrivesOverlay(t *testing.T) {
	f := newFixture(t, Config{}, nil)

	out := f.step(t, 1, f.person(true))
	if !out.ArmsUp || !f.overlay.on {
		t.Fatalf("arms up not detected: %+v", out)
	}
	if f.overlay.pos != (mathutil.Vec3{0, 2.0, 0.1}) {
		t.Errorf("overlay at %v, want wrist midpoint", f.overlay.pos)
	}

	if out := f.step(t, 2, f.person(false)); out.ArmsUp || f.overlay.on {
		t.Error("overlay still shown with arms down")
	}

	f.step(t, 3, f.person(true))
	if out := f.step(t, 4, nil); out.ArmsUp || f.overlay.on {
		t.Error("overlay shown without a pose")
	}
}

func TestMeasurementCadence(t *testing.T) {
	f := newFixture(t, Config{MeasureEvery: 2}, nil)

	if out := f.step(t, 1, f.person(false)); out.Measured {
		t.Error("measured on the first frame")
	}
	out := f.step(t, 2, f.person(false))
	if !out.Measured || out.MeasureErr != nil {
		t.Fatalf("second frame not measured: %+v", out)
	}
	if out.Measure.WaistPx != 60 || out.Measure.Seq != 2 {
		t.Errorf("measure = %+v", out.Measure)
	}
	got, ok := f.orch.Measurement()
	if !ok || got.Seq != 2 || f.events.last.Seq != 2 {
		t.Errorf("latest = %+v (%v), notified %+v", got, ok, f.events.last)
	}
	if f.dev.LiveFramebuffers() != 0 {
		t.Error("measurement left a framebuffer behind")
	}
}

func TestRequestedMeasurement(t *testing.T) {
	f := newFixture(t, Config{}, nil)

	if out := f.step(t, 1, f.person(false)); out.Measured {
		t.Fatal("measured without a request")
	}
	f.orch.RequestMeasurement()
	f.step(t, 2, nil)
	if _, ok := f.latest.Load(); ok {
		t.Fatal("measured a frame without a pose")
	}
	if out := f.step(t, 3, f.person(false)); !out.Measured {
		t.Fatal("request not honored on the next pose")
	}
	if out := f.step(t, 4, f.person(false)); out.Measured {
		t.Error("request honored twice")
	}
}

func TestFailedMeasurementKeepsLatest(t *testing.T) {
	f := newFixture(t, Config{MeasureEvery: 1}, nil)
	f.step(t, 1, f.person(false))

	p := f.person(false)
	delete(p.Points, pose.HipL)
	out := f.step(t, 2, p)
	if !errors.Is(out.MeasureErr, measure.ErrMissingKeypoint) {
		t.Fatalf("measure err = %v", out.MeasureErr)
	}
	if got, _ := f.latest.Load(); got.Seq != 1 {
		t.Errorf("latest replaced by a failed measurement: %+v", got)
	}

	empty := f.person(false)
	empty.Mask.Texture = f.dev.NewTexture(raster.NewBuffer(200, 100))
	out = f.step(t, 3, empty)
	if !out.Measured || out.MeasureErr != nil || out.Measure.Detected() {
		t.Fatalf("empty mask measured as %+v, err %v", out.Measure, out.MeasureErr)
	}
	if got, _ := f.latest.Load(); got.Seq != 1 || got.Size == measure.SizeNone {
		t.Errorf("latest replaced by an undetected silhouette: %+v", got)
	}
	if got := f.events.String(); got != "scan,measure" {
		t.Errorf("events = %q", got)
	}
}

func TestPanicOnlyAffectsOneFrame(t *testing.T) {
	f := newFixture(t, Config{}, &panicScene{left: 1})

	_, err := f.orch.Update(context.Background(), pose.Result{Seq: 1}, video())
	if err == nil || !strings.Contains(err.Error(), "panic") {
		t.Fatalf("err = %v", err)
	}
	out := f.step(t, 2, nil)
	if out.Image == nil || f.orch.LastFrame() != out.Image {
		t.Error("loop did not recover after a panicking frame")
	}
}

func TestCanceledContext(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.orch.Update(ctx, pose.Result{}, video()); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}

func TestBackgroundModeNotifications(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	ctx := context.Background()

	if changed, err := f.orch.ToggleBgMode(pipeline.ModeBlur); err != nil || !changed {
		t.Fatalf("toggle: %v %v", changed, err)
	}
	if changed, _ := f.orch.ToggleBgMode(pipeline.ModeBlur); changed {
		t.Error("repeated toggle reported a change")
	}
	if err := f.orch.SetBackground(ctx, "bg1"); err != nil {
		t.Fatal(err)
	}
	if err := f.orch.SetBackground(ctx, "missing"); !errors.Is(err, attach.ErrUnknownAsset) {
		t.Fatalf("unknown background: %v", err)
	}
	if got := f.events.String(); got != "mode:blur,mode:replace" {
		t.Errorf("events = %q", got)
	}
	if f.orch.Mode() != pipeline.ModeReplace || f.orch.Snapshot().Background.ID != "bg1" {
		t.Errorf("mode %q snapshot %+v", f.orch.Mode(), f.orch.Snapshot())
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("New accepted empty options")
	}
}
