package pipeline

import (
	"go.uber.org/zap"

	"tryon-compositor/internal/gpu"
)

// Params holds every numeric knob of the default stage set.
type Params struct {
	SmoothRadius   int     `mapstructure:"smooth_radius"`
	FillRadius     int     `mapstructure:"fill_radius"`
	MorphRadius    int     `mapstructure:"morph_radius"`
	ErodeRadius    int     `mapstructure:"erode_radius"`
	DespeckleRatio float64 `mapstructure:"despeckle_ratio"`
	PatchThreshold float64 `mapstructure:"patch_threshold"`
	PatchRadius    int     `mapstructure:"patch_radius"`
	ReplaceLo      float64 `mapstructure:"replace_lo"`
	ReplaceHi      float64 `mapstructure:"replace_hi"`
	BlurRadius     int     `mapstructure:"blur_radius"`
	BlurTransition float64 `mapstructure:"blur_transition"`
	Brightness     float64 `mapstructure:"brightness"`
	Mirror         bool    `mapstructure:"mirror"`
	Upscale        bool    `mapstructure:"upscale"`
	InitialMode    Mode    `mapstructure:"initial_mode"`
}

// DefaultParams mirrors the tuning of the stock try-on scene.
func DefaultParams() Params {
	return Params{
		SmoothRadius:   3,
		MorphRadius:    -2,
		PatchThreshold: 0.01,
		PatchRadius:    8,
		ReplaceLo:      0.1,
		ReplaceHi:      0.3,
		BlurRadius:     2,
		BlurTransition: 0.4,
		Brightness:     1,
		Mirror:         true,
		Upscale:        true,
		InitialMode:    ModeReplace,
	}
}

// Standard is the assembled default pipeline with handles to the stages
// other components talk to.
type Standard struct {
	Pipeline   *Pipeline
	Patch      *BodypartPatch
	Background *BackgroundSwitch
}

// NewStandard builds: upload → smooth → fill → morph → erode → despeckle →
// upscale → [patch → replace | blur] → brightness. Zero-valued knobs leave
// their stage out.
func NewStandard(dev gpu.Device, prm Params, log *zap.Logger) (*Standard, error) {
	p := New(log)
	stages := []Stage{NewMaskUpload(dev)}
	if prm.SmoothRadius > 0 {
		stages = append(stages, NewMaskSmooth(prm.SmoothRadius))
	}
	if prm.FillRadius > 0 {
		stages = append(stages, NewMaskFill(prm.FillRadius))
	}
	if prm.MorphRadius != 0 {
		stages = append(stages, NewMaskMorph(prm.MorphRadius))
	}
	if prm.ErodeRadius > 0 {
		stages = append(stages, NewMaskErode(prm.ErodeRadius))
	}
	if prm.DespeckleRatio > 0 {
		stages = append(stages, NewMaskDespeckle(prm.DespeckleRatio))
	}
	if prm.Upscale {
		stages = append(stages, NewMaskUpscale())
	}
	if prm.Brightness > 0 && prm.Brightness != 1 {
		stages = append(stages, NewBrightness(prm.Brightness))
	}
	for _, s := range stages {
		if err := p.Add(s); err != nil {
			return nil, err
		}
	}

	patch := NewBodypartPatch(prm.PatchThreshold, prm.PatchRadius)
	mode := prm.InitialMode
	if mode == "" {
		mode = ModeReplace
	}
	bg, err := NewBackgroundSwitch(p,
		NewBgReplace(prm.ReplaceLo, prm.ReplaceHi, prm.Mirror),
		NewBgBlur(prm.BlurRadius, prm.BlurTransition),
		patch, mode)
	if err != nil {
		return nil, err
	}
	return &Standard{Pipeline: p, Patch: patch, Background: bg}, nil
}
