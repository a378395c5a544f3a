package pipeline

import (
	"image"

	"tryon-compositor/internal/coords"
	"tryon-compositor/internal/pose"
	"tryon-compositor/internal/raster"
)

// SceneLayer is the renderer's output for one frame: the garment color layer
// plus, per pixel, the id of the submesh that covers it (0 = nothing).
// Both are top-down and sized like the video frame.
type SceneLayer struct {
	Color *image.NRGBA
	Parts []uint32
}

// PartAt returns the submesh id covering (x, y).
func (l *SceneLayer) PartAt(x, y int) uint32 {
	if l == nil || l.Color == nil {
		return 0
	}
	w := l.Color.Rect.Dx()
	i := y*w + x
	if i < 0 || i >= len(l.Parts) {
		return 0
	}
	return l.Parts[i]
}

// Frame carries one camera frame through the stages. Each stage reads what
// the previous stages left and writes its own result back.
type Frame struct {
	Seq   uint64
	Video *image.NRGBA
	Mask  *pose.Mask

	// Matte is the working mask in texture orientation; nil when the frame has no mask.
	Matte *raster.Matte
	// MatteBox is the region of the video the matte covers.
	MatteBox coords.Box

	Scene      *SceneLayer
	Background *image.NRGBA

	Output *image.NRGBA
}

// NewFrame prepares a frame whose output starts as a copy of the video.
func NewFrame(seq uint64, video *image.NRGBA, mask *pose.Mask) *Frame {
	f := &Frame{Seq: seq, Mask: mask, MatteBox: coords.FullBox}
	if video != nil {
		f.Video = raster.ToNRGBA(video)
		f.Output = raster.CloneNRGBA(f.Video)
	}
	return f
}

// Size returns the video dimensions.
func (f *Frame) Size() (w, h int) {
	if f.Video == nil {
		return 0, 0
	}
	return f.Video.Rect.Dx(), f.Video.Rect.Dy()
}

// Coverage returns the matte value (0..1) under video pixel (x, y).
// Without a matte every pixel counts as foreground.
func (f *Frame) Coverage(x, y int) float64 {
	m := f.Matte
	if m == nil {
		return 1
	}
	w, h := f.Size()
	if m.Width == w && m.Height == h && f.MatteBox == coords.FullBox {
		return float64(m.At(x, coords.FlipRow(y, h))) / 255
	}
	col, row, ok := coords.FrameToMaskTexel(x, y, w, h, f.MatteBox, m.Width, m.Height)
	if !ok {
		return 0
	}
	return float64(m.At(col, row)) / 255
}

// CompositeScene draws the scene layer over the output using the layer's
// alpha. It runs after the stages, the way the renderer draws 3D content
// over the processed camera image.
func (f *Frame) CompositeScene() {
	if f.Output == nil || f.Scene == nil || f.Scene.Color == nil {
		return
	}
	w, h := f.Size()
	src := f.Scene.Color
	if src.Rect.Dx() != w || src.Rect.Dy() != h {
		return
	}
	dst := f.Output
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			si := src.PixOffset(x, y)
			a := uint32(src.Pix[si+3])
			if a == 0 {
				continue
			}
			di := dst.PixOffset(x, y)
			for c := 0; c < 3; c++ {
				dst.Pix[di+c] = uint8((uint32(src.Pix[si+c])*a + uint32(dst.Pix[di+c])*(255-a) + 127) / 255)
			}
			da := uint32(dst.Pix[di+3])
			dst.Pix[di+3] = uint8(a + da*(255-a)/255)
		}
	}
}
