package pipeline

import (
	"image"
	"sync"

	"tryon-compositor/internal/coords"
	"tryon-compositor/internal/raster"
)

// PartSet is a set of submesh ids.
type PartSet map[uint32]struct{}

// NewPartSet builds a set from ids.
func NewPartSet(ids ...uint32) PartSet {
	s := make(PartSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s PartSet) Has(id uint32) bool {
	_, ok := s[id]
	return ok
}

// BodypartPatch removes real-body silhouette that sticks out around the
// patched garment parts: within Radius pixels of a patch part, foreground
// pixels covered by neither a patch nor a keep part are cut from the matte,
// so the background stage paints over them.
type BodypartPatch struct {
	Threshold float64
	Radius    int

	mu    sync.RWMutex
	patch PartSet
	keep  PartSet
}

func NewBodypartPatch(threshold float64, radius int) *BodypartPatch {
	return &BodypartPatch{Threshold: threshold, Radius: radius}
}

func (s *BodypartPatch) Name() string { return "bodypart-patch" }
func (s *BodypartPatch) Kind() Kind   { return KindPatch }

// SetParts replaces the patch and keep sets. Empty sets disable the stage.
func (s *BodypartPatch) SetParts(patch, keep []uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patch = NewPartSet(patch...)
	s.keep = NewPartSet(keep...)
}

// Parts returns copies of the current sets.
func (s *BodypartPatch) Parts() (patch, keep []uint32) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id := range s.patch {
		patch = append(patch, id)
	}
	for id := range s.keep {
		keep = append(keep, id)
	}
	return patch, keep
}

func (s *BodypartPatch) Apply(f *Frame) error {
	s.mu.RLock()
	patch, keep := s.patch, s.keep
	s.mu.RUnlock()

	if f.Matte == nil || f.Scene == nil || f.Scene.Color == nil || len(patch) == 0 {
		return nil
	}
	w, h := f.Size()
	if f.Scene.Color.Rect.Dx() != w || f.Scene.Color.Rect.Dy() != h {
		return nil
	}

	covered := raster.NewMatte(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if patch.Has(f.Scene.PartAt(x, y)) {
				covered.Set(x, y, 255)
			}
		}
	}
	near := covered
	if s.Radius > 0 {
		near = morph(covered, s.Radius)
	}

	out := f.Matte.Clone()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if near.At(x, y) == 0 || covered.At(x, y) != 0 {
				continue
			}
			part := f.Scene.PartAt(x, y)
			if part != 0 && keep.Has(part) {
				continue
			}
			if f.Coverage(x, y) <= s.Threshold {
				continue
			}
			col, row, ok := coords.FrameToMaskTexel(x, y, w, h, f.MatteBox, out.Width, out.Height)
			if ok {
				out.Set(col, row, 0)
			}
		}
	}
	f.Matte = out
	return nil
}

// BgReplace composites the video over a replacement background using the
// matte as alpha, ramped between Lo and Hi. Mirror flips the background to
// match a mirrored camera.
type BgReplace struct {
	Lo, Hi float64
	Mirror bool
}

func NewBgReplace(lo, hi float64, mirror bool) *BgReplace {
	return &BgReplace{Lo: lo, Hi: hi, Mirror: mirror}
}

func (s *BgReplace) Name() string { return "bg-replace" }
func (s *BgReplace) Kind() Kind   { return KindBackground }

func (s *BgReplace) Apply(f *Frame) error {
	if f.Video == nil || f.Background == nil || f.Matte == nil {
		return nil
	}
	w, h := f.Size()
	bg := raster.ScaleNRGBA(f.Background, w, h, s.Mirror)
	blend(f, bg, func(c float64) float64 { return smoothstep(s.Lo, s.Hi, c) })
	return nil
}

// BgBlur keeps the subject sharp and blurs everything else.
type BgBlur struct {
	Radius     int
	Transition float64
}

func NewBgBlur(radius int, transition float64) *BgBlur {
	return &BgBlur{Radius: radius, Transition: transition}
}

func (s *BgBlur) Name() string { return "bg-blur" }
func (s *BgBlur) Kind() Kind   { return KindBackground }

func (s *BgBlur) Apply(f *Frame) error {
	if f.Video == nil || f.Matte == nil || s.Radius <= 0 {
		return nil
	}
	w, h := f.Size()
	blurred := raster.CloneNRGBA(f.Video)
	blurred.Pix = boxBlur(f.Video.Pix, w, h, 4, s.Radius)
	blend(f, blurred, func(c float64) float64 {
		if s.Transition <= 0 {
			if c > 0.5 {
				return 1
			}
			return 0
		}
		return clamp01(c / s.Transition)
	})
	return nil
}

// Brightness scales output RGB by Gain.
type Brightness struct {
	Gain float64
}

func NewBrightness(gain float64) *Brightness { return &Brightness{Gain: gain} }

func (s *Brightness) Name() string { return "brightness" }
func (s *Brightness) Kind() Kind   { return KindTone }

func (s *Brightness) Apply(f *Frame) error {
	if f.Output == nil || s.Gain == 1 {
		return nil
	}
	out := raster.CloneNRGBA(f.Output)
	for i := 0; i < len(out.Pix); i += 4 {
		out.Pix[i] = raster.Clamp8(float64(out.Pix[i]) * s.Gain)
		out.Pix[i+1] = raster.Clamp8(float64(out.Pix[i+1]) * s.Gain)
		out.Pix[i+2] = raster.Clamp8(float64(out.Pix[i+2]) * s.Gain)
	}
	f.Output = out
	return nil
}

// blend writes video·a + other·(1−a) into the output, a = alpha(coverage).
func blend(f *Frame, other *image.NRGBA, alpha func(float64) float64) {
	w, h := f.Size()
	src := f.Video
	out := raster.CloneNRGBA(src)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			a := alpha(f.Coverage(x, y))
			si := src.PixOffset(x, y)
			bi := other.PixOffset(x, y)
			for c := 0; c < 3; c++ {
				out.Pix[si+c] = raster.Clamp8(float64(src.Pix[si+c])*a + float64(other.Pix[bi+c])*(1-a))
			}
			out.Pix[si+3] = 255
		}
	}
	f.Output = out
}

func smoothstep(lo, hi, v float64) float64 {
	if hi <= lo {
		if v >= hi {
			return 1
		}
		return 0
	}
	t := clamp01((v - lo) / (hi - lo))
	return t * t * (3 - 2*t)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
