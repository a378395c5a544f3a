package pipeline

import (
	"image"

	"golang.org/x/image/draw"

	"tryon-compositor/internal/coords"
	"tryon-compositor/internal/gpu"
	"tryon-compositor/internal/raster"
)

// MaskUpload brings the frame's segmentation texture into the working matte.
// It must run before any shape filter.
type MaskUpload struct {
	Device  gpu.Device
	Channel raster.Channel
}

// NewMaskUpload reads the activation from the red channel.
func NewMaskUpload(dev gpu.Device) *MaskUpload {
	return &MaskUpload{Device: dev, Channel: raster.ChannelR}
}

func (s *MaskUpload) Name() string { return "mask-upload" }
func (s *MaskUpload) Kind() Kind   { return KindIngest }

func (s *MaskUpload) Apply(f *Frame) error {
	f.Matte = nil
	f.MatteBox = coords.FullBox
	if f.Mask == nil || f.Mask.Texture == nil {
		return nil
	}
	buf, err := s.Device.Sample(f.Mask.Texture)
	if err != nil {
		return err
	}
	f.Matte = raster.MatteFromBuffer(buf, s.Channel)
	if f.Mask.Box.Valid() {
		f.MatteBox = f.Mask.Box
	}
	return nil
}

// MaskSmooth blurs the matte with a separable box filter.
type MaskSmooth struct {
	Radius int
}

func NewMaskSmooth(radius int) *MaskSmooth { return &MaskSmooth{Radius: radius} }

func (s *MaskSmooth) Name() string { return "mask-smooth" }
func (s *MaskSmooth) Kind() Kind   { return KindShape }

func (s *MaskSmooth) Apply(f *Frame) error {
	if f.Matte == nil || s.Radius <= 0 {
		return nil
	}
	m := f.Matte
	f.Matte = &raster.Matte{Width: m.Width, Height: m.Height, Pix: boxBlur(m.Pix, m.Width, m.Height, 1, s.Radius)}
	return nil
}

// MaskMorph dilates (Radius > 0) or erodes (Radius < 0) the matte with a
// square structuring element of side 2|Radius|+1.
type MaskMorph struct {
	Radius int
	name   string
}

func NewMaskMorph(radius int) *MaskMorph { return &MaskMorph{Radius: radius, name: "mask-morph"} }

// NewMaskErode shrinks the matte by radius texels.
func NewMaskErode(radius int) *MaskMorph {
	if radius < 0 {
		radius = -radius
	}
	return &MaskMorph{Radius: -radius, name: "mask-erode"}
}

func (s *MaskMorph) Name() string {
	if s.name == "" {
		return "mask-morph"
	}
	return s.name
}
func (s *MaskMorph) Kind() Kind { return KindShape }

func (s *MaskMorph) Apply(f *Frame) error {
	if f.Matte == nil || s.Radius == 0 {
		return nil
	}
	f.Matte = morph(f.Matte, s.Radius)
	return nil
}

// MaskFill closes the matte (dilate, then erode) to fill holes narrower than 2·Radius.
type MaskFill struct {
	Radius int
}

func NewMaskFill(radius int) *MaskFill { return &MaskFill{Radius: radius} }

func (s *MaskFill) Name() string { return "mask-fill" }
func (s *MaskFill) Kind() Kind   { return KindShape }

func (s *MaskFill) Apply(f *Frame) error {
	if f.Matte == nil || s.Radius <= 0 {
		return nil
	}
	f.Matte = morph(morph(f.Matte, s.Radius), -s.Radius)
	return nil
}

// MaskDespeckle zeroes matte islands smaller than MinRatio of the total
// foreground area. KeepLargest drops every island but the biggest one.
type MaskDespeckle struct {
	MinRatio    float64
	Threshold   uint8
	KeepLargest bool
}

func NewMaskDespeckle(minRatio float64) *MaskDespeckle {
	return &MaskDespeckle{MinRatio: minRatio, Threshold: 128}
}

func (s *MaskDespeckle) Name() string { return "mask-despeckle" }
func (s *MaskDespeckle) Kind() Kind   { return KindShape }

func (s *MaskDespeckle) Apply(f *Frame) error {
	if f.Matte == nil {
		return nil
	}
	f.Matte = removeSmallClusters(f.Matte, s.Threshold, s.MinRatio, s.KeepLargest)
	return nil
}

// MaskUpscale resamples the matte to the video resolution, placing it at the
// mask box so later stages can address it pixel for pixel.
type MaskUpscale struct {
	Interpolator draw.Interpolator
}

func NewMaskUpscale() *MaskUpscale { return &MaskUpscale{Interpolator: draw.BiLinear} }

func (s *MaskUpscale) Name() string { return "mask-upscale" }
func (s *MaskUpscale) Kind() Kind   { return KindShape }

func (s *MaskUpscale) Apply(f *Frame) error {
	if f.Matte == nil || f.Video == nil {
		return nil
	}
	w, h := f.Size()
	box := f.MatteBox
	if f.Matte.Width == w && f.Matte.Height == h && box == coords.FullBox {
		return nil
	}

	x0, y0 := coords.NormToFrame(box.Min, w, h)
	x1, y1 := coords.NormToFrame(box.Max, w, h)
	dstRect := image.Rect(int(x0+0.5), int(y0+0.5), int(x1+0.5), int(y1+0.5)).Intersect(image.Rect(0, 0, w, h))

	src := raster.MatteToGray(f.Matte)
	dst := image.NewGray(image.Rect(0, 0, w, h))
	if !dstRect.Empty() {
		interp := s.Interpolator
		if interp == nil {
			interp = draw.BiLinear
		}
		interp.Scale(dst, dstRect, src, src.Bounds(), draw.Src, nil)
	}
	f.Matte = raster.GrayToMatte(dst)
	f.MatteBox = coords.FullBox
	return nil
}

// morph applies a separable max (r > 0) or min (r < 0) filter.
func morph(m *raster.Matte, r int) *raster.Matte {
	dilate := r > 0
	if r < 0 {
		r = -r
	}
	w, h := m.Width, m.Height
	tmp := make([]uint8, len(m.Pix))
	out := raster.NewMatte(w, h)

	pick := func(a, b uint8) uint8 {
		if dilate {
			if b > a {
				return b
			}
			return a
		}
		if b < a {
			return b
		}
		return a
	}

	// Horizontal pass. Out-of-range texels are ignored so edges neither grow nor erode.
	for y := 0; y < h; y++ {
		row := m.Pix[y*w : (y+1)*w]
		for x := 0; x < w; x++ {
			v := row[x]
			for k := x - r; k <= x+r; k++ {
				if k < 0 || k >= w {
					continue
				}
				v = pick(v, row[k])
			}
			tmp[y*w+x] = v
		}
	}
	// Vertical pass
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			v := tmp[y*w+x]
			for k := y - r; k <= y+r; k++ {
				if k < 0 || k >= h {
					continue
				}
				v = pick(v, tmp[k*w+x])
			}
			out.Pix[y*w+x] = v
		}
	}
	return out
}

// boxBlur returns a blurred copy of an interleaved pixel slice with edge clamping.
func boxBlur(pix []uint8, w, h, channels, r int) []uint8 {
	tmp := make([]uint8, len(pix))
	out := make([]uint8, len(pix))
	n := float64(2*r + 1)
	clampI := func(v, hi int) int {
		if v < 0 {
			return 0
		}
		if v > hi {
			return hi
		}
		return v
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			for c := 0; c < channels; c++ {
				sum := 0
				for k := x - r; k <= x+r; k++ {
					sum += int(pix[(y*w+clampI(k, w-1))*channels+c])
				}
				tmp[(y*w+x)*channels+c] = raster.Clamp8(float64(sum) / n)
			}
		}
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			for c := 0; c < channels; c++ {
				sum := 0
				for k := y - r; k <= y+r; k++ {
					sum += int(tmp[(clampI(k, h-1)*w+x)*channels+c])
				}
				out[(y*w+x)*channels+c] = raster.Clamp8(float64(sum) / n)
			}
		}
	}
	return out
}

// removeSmallClusters finds 8-connected islands above threshold via BFS and
// zeroes those below minRatio of the total foreground (or all but the largest).
func removeSmallClusters(m *raster.Matte, threshold uint8, minRatio float64, keepLargest bool) *raster.Matte {
	w, h := m.Width, m.Height

	fg := make([]bool, w*h)
	total := 0
	for i, v := range m.Pix {
		if v > threshold {
			fg[i] = true
			total++
		}
	}
	if total == 0 {
		return m
	}

	labels := make([]int, w*h)
	for i := range labels {
		labels[i] = -1
	}
	var compSizes []int
	compID := 0

	dx := [8]int{-1, 0, 1, -1, 1, -1, 0, 1}
	dy := [8]int{-1, -1, -1, 0, 0, 1, 1, 1}
	queue := make([]int, 0, 1024)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			idx := y*w + x
			if !fg[idx] || labels[idx] >= 0 {
				continue
			}
			queue = queue[:0]
			queue = append(queue, idx)
			labels[idx] = compID
			size := 0
			for len(queue) > 0 {
				curr := queue[0]
				queue = queue[1:]
				size++
				cy := curr / w
				cx := curr % w
				for d := 0; d < 8; d++ {
					nx := cx + dx[d]
					ny := cy + dy[d]
					if nx < 0 || nx >= w || ny < 0 || ny >= h {
						continue
					}
					ni := ny*w + nx
					if fg[ni] && labels[ni] < 0 {
						labels[ni] = compID
						queue = append(queue, ni)
					}
				}
			}
			compSizes = append(compSizes, size)
			compID++
		}
	}

	if compID <= 1 {
		return m
	}

	keep := make([]bool, compID)
	if keepLargest {
		best := 0
		for i := 1; i < compID; i++ {
			if compSizes[i] > compSizes[best] {
				best = i
			}
		}
		keep[best] = true
	} else {
		minSize := int(float64(total) * minRatio)
		for i, sz := range compSizes {
			keep[i] = sz >= minSize
		}
	}

	out := m.Clone()
	for i, l := range labels {
		if l >= 0 && !keep[l] {
			out.Pix[i] = 0
		}
	}
	return out
}
