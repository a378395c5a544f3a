// Package coords converts between the coordinate spaces the core juggles.
//
//   - Norm: normalized source-frame position, origin top-left, X right, Y down, in [0,1].
//   - Frame pixels: Norm scaled by the video frame size, same origin and axes.
//   - Mask texels: integer (col, row) in the mask texture, row 0 at the BOTTOM,
//     covering only Box of the source frame.
//   - Image rows: integer rows of a top-down image buffer.
//   - Metric: camera-relative meters with +Y up (see MetricUp).
//
// Every flip lives here. Nothing else in the module inverts an axis by hand.
package coords

import "math"

// MetricUp is the world up axis of metric keypoints.
var MetricUp = [3]float64{0, 1, 0}

// Norm is a normalized source-frame position.
type Norm struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Box is the normalized region of the source frame a mask covers.
type Box struct {
	Min Norm `json:"min"`
	Max Norm `json:"max"`
}

// FullBox covers the whole frame.
var FullBox = Box{Min: Norm{0, 0}, Max: Norm{1, 1}}

// Valid reports whether the box has positive area.
func (b Box) Valid() bool {
	return b.Max.X > b.Min.X && b.Max.Y > b.Min.Y
}

// Inner maps n into box-relative coordinates (0..1 inside the box, unclamped).
func (b Box) Inner(n Norm) Norm {
	if !b.Valid() {
		return n
	}
	return Norm{
		X: (n.X - b.Min.X) / (b.Max.X - b.Min.X),
		Y: (n.Y - b.Min.Y) / (b.Max.Y - b.Min.Y),
	}
}

// Outer is the inverse of Inner.
func (b Box) Outer(in Norm) Norm {
	if !b.Valid() {
		return in
	}
	return Norm{
		X: b.Min.X + in.X*(b.Max.X-b.Min.X),
		Y: b.Min.Y + in.Y*(b.Max.Y-b.Min.Y),
	}
}

// NormToFrame returns frame pixel coordinates for n.
func NormToFrame(n Norm, w, h int) (x, y float64) {
	return n.X * float64(w), n.Y * float64(h)
}

// FrameToNorm is the inverse of NormToFrame.
func FrameToNorm(x, y float64, w, h int) Norm {
	if w <= 0 || h <= 0 {
		return Norm{}
	}
	return Norm{X: x / float64(w), Y: y / float64(h)}
}

// MaskRow converts a top-down normalized Y into a mask texture row:
// row = floor(maskH × (1 − innerY)), innerY clamped to [0,1] and the
// result clamped to a valid row.
func MaskRow(yNorm float64, box Box, maskH int) int {
	if maskH <= 0 {
		return 0
	}
	inner := clamp01(box.Inner(Norm{Y: yNorm}).Y)
	return clampIndex(int(math.Floor(float64(maskH)*(1-inner))), maskH)
}

// MaskCol converts a normalized X into a mask texture column.
func MaskCol(xNorm float64, box Box, maskW int) int {
	if maskW <= 0 {
		return 0
	}
	inner := clamp01(box.Inner(Norm{X: xNorm}).X)
	return clampIndex(int(math.Floor(float64(maskW)*inner)), maskW)
}

// MaskTexel returns (col, row) of the mask texel under n.
func MaskTexel(n Norm, box Box, maskW, maskH int) (col, row int) {
	return MaskCol(n.X, box, maskW), MaskRow(n.Y, box, maskH)
}

// MaskRowToNormY returns the normalized top-down Y at the center of a texture row.
func MaskRowToNormY(row int, box Box, maskH int) float64 {
	if maskH <= 0 {
		return 0
	}
	inner := 1 - (float64(row)+0.5)/float64(maskH)
	return box.Outer(Norm{Y: inner}).Y
}

// MaskColToNormX returns the normalized X at the center of a texture column.
func MaskColToNormX(col int, box Box, maskW int) float64 {
	if maskW <= 0 {
		return 0
	}
	return box.Outer(Norm{X: (float64(col) + 0.5) / float64(maskW)}).X
}

// MaskDistance is the distance between a and b measured in mask texels
// (unrounded), honoring the box crop on both axes.
func MaskDistance(a, b Norm, box Box, maskW, maskH int) float64 {
	ia, ib := box.Inner(a), box.Inner(b)
	dx := (ia.X - ib.X) * float64(maskW)
	dy := (ia.Y - ib.Y) * float64(maskH)
	return math.Hypot(dx, dy)
}

// FlipRow converts between a top-down image row and a bottom-up texture row
// for buffers of equal height. It is its own inverse.
func FlipRow(row, height int) int {
	return height - 1 - row
}

// FrameToMaskTexel maps a frame pixel (top-down) to the mask texel covering it.
// ok is false when the pixel lies outside the mask box.
func FrameToMaskTexel(x, y, frameW, frameH int, box Box, maskW, maskH int) (col, row int, ok bool) {
	n := Norm{
		X: (float64(x) + 0.5) / float64(frameW),
		Y: (float64(y) + 0.5) / float64(frameH),
	}
	in := box.Inner(n)
	if in.X < 0 || in.X >= 1 || in.Y < 0 || in.Y >= 1 {
		return 0, 0, false
	}
	col = clampIndex(int(in.X*float64(maskW)), maskW)
	row = clampIndex(int(math.Floor(float64(maskH)*(1-in.Y))), maskH)
	return col, row, true
}

// MirrorX mirrors a normalized X around the frame center.
func MirrorX(n Norm) Norm {
	return Norm{X: 1 - n.X, Y: n.Y}
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

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
