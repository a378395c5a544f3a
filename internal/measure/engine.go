// Package measure estimates body size from the segmentation mask and the
// pose: silhouette width at body levels, stature from the skeletal chain,
// and a size label from a configurable table.
package measure

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"tryon-compositor/internal/coords"
	"tryon-compositor/internal/gpu"
	"tryon-compositor/internal/pose"
	"tryon-compositor/internal/raster"
)

var (
	ErrNoMask          = errors.New("measure: frame has no mask")
	ErrDegenerateScale = errors.New("measure: degenerate scale")
	ErrMissingKeypoint = errors.New("measure: keypoint missing")
	ErrMaskSize        = errors.New("measure: readback size does not match the mask")
)

func missing(j pose.Joint) error {
	return wrapMissing(&pose.MissingError{Joint: j})
}

func wrapMissing(err error) error {
	return fmt.Errorf("%w: %w", ErrMissingKeypoint, err)
}

// ChestLevel is where the chest row sits between shoulders (0) and hips (1).
const ChestLevel = 0.3

// Config tunes the engine.
type Config struct {
	Threshold uint8
	Channel   raster.Channel
	// ReferenceHeightCm switches the scale to the user's stated height when > 0.
	ReferenceHeightCm float64
	Table             SizeTable
}

// DefaultConfig reads the red channel against 128 with the default table.
func DefaultConfig() Config {
	return Config{Threshold: 128, Channel: raster.ChannelR, Table: DefaultSizeTable()}
}

// Result is one measurement. Derived only: nothing else holds on to it.
type Result struct {
	Seq        uint64  `json:"seq"`
	HeightCm   float64 `json:"heightCm"`
	WaistPx    int     `json:"waistPx"`
	WaistCm    float64 `json:"waistCm"`
	ChestPx    int     `json:"chestPx"`
	ChestCm    float64 `json:"chestCm"`
	CmPerPx    float64 `json:"cmPerPx"`
	Calibrated bool    `json:"calibrated"`
	Size       Size    `json:"size"`
}

// Detected reports whether the waist silhouette was found.
func (r Result) Detected() bool { return r.WaistPx > 0 }

// Engine measures frames. It keeps no per-frame state.
type Engine struct {
	cfg Config
	log *zap.Logger
}

// NewEngine validates cfg.
func NewEngine(cfg Config, log *zap.Logger) (*Engine, error) {
	if err := cfg.Table.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{cfg: cfg, log: log}, nil
}

// Config returns the engine's configuration.
func (e *Engine) Config() Config { return e.cfg }

// MeasureFromDevice reads the pose's mask back from dev and measures it.
func (e *Engine) MeasureFromDevice(dev gpu.Device, p *pose.Pose) (Result, error) {
	buf, err := Readback(dev, p)
	if err != nil {
		return Result{}, err
	}
	if buf.Width != p.Mask.Width || buf.Height != p.Mask.Height {
		return Result{}, fmt.Errorf("%w: texture is %dx%d, mask declares %dx%d",
			ErrMaskSize, buf.Width, buf.Height, p.Mask.Width, p.Mask.Height)
	}
	return e.Measure(p, buf.Pix)
}

// Measure computes a Result from a pose and the RGBA readback of its mask.
// A silhouette that is not found at the waist row yields a zero width and
// no size, not an error.
func (e *Engine) Measure(p *pose.Pose, pixels []byte) (Result, error) {
	if p == nil || p.Mask == nil {
		return Result{}, ErrNoMask
	}
	w, h, box := p.Mask.Width, p.Mask.Height, p.Mask.Box
	if !box.Valid() {
		box = coords.FullBox
	}
	if w <= 0 || h <= 0 || len(pixels) < w*h*4 {
		return Result{}, fmt.Errorf("measure: readback holds %d bytes for a %dx%d mask", len(pixels), w, h)
	}

	var res Result
	var err error
	if e.cfg.ReferenceHeightCm > 0 {
		res.CmPerPx, err = ScaleFromReference(e.cfg.ReferenceHeightCm, p, pixels, w, h, box, e.cfg.Channel, e.cfg.Threshold)
		res.Calibrated = true
	} else {
		res.CmPerPx, err = ScaleFromShoulders(p, box, w, h)
	}
	if err != nil {
		return Result{}, err
	}

	res.HeightCm, err = HeightCm(p)
	if err != nil {
		return Result{}, err
	}

	waistY, chestY, err := levels(p)
	if err != nil {
		return Result{}, err
	}
	waist := MeasureWidth(pixels, w, h, coords.MaskRow(waistY, box, h), e.cfg.Channel, e.cfg.Threshold)
	chest := MeasureWidth(pixels, w, h, coords.MaskRow(chestY, box, h), e.cfg.Channel, e.cfg.Threshold)

	res.WaistPx, res.ChestPx = waist.Width, chest.Width
	res.WaistCm = float64(waist.Width) * res.CmPerPx
	res.ChestCm = float64(chest.Width) * res.CmPerPx
	res.Size = e.cfg.Table.Classify(res.HeightCm, res.WaistCm)
	if !waist.Found() {
		e.log.Debug("no silhouette at waist row")
	}
	return res, nil
}

// levels returns the normalized Y of the waist (hip midpoint) and chest rows.
func levels(p *pose.Pose) (waist, chest float64, err error) {
	hl, ok := p.Point(pose.HipL)
	if !ok {
		return 0, 0, missing(pose.HipL)
	}
	hr, ok := p.Point(pose.HipR)
	if !ok {
		return 0, 0, missing(pose.HipR)
	}
	sl, ok := p.Point(pose.ShoulderL)
	if !ok {
		return 0, 0, missing(pose.ShoulderL)
	}
	sr, ok := p.Point(pose.ShoulderR)
	if !ok {
		return 0, 0, missing(pose.ShoulderR)
	}
	waist = (hl.Pixel.Y + hr.Pixel.Y) / 2
	shoulders := (sl.Pixel.Y + sr.Pixel.Y) / 2
	chest = shoulders + (waist-shoulders)*ChestLevel
	return waist, chest, nil
}
