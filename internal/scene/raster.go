package scene

import (
	"image/color"
	"math"
)

// layerBuffer is the render target: color, depth and the id of the mesh
// that won the depth test, all top-down at frame size.
type layerBuffer struct {
	w, h  int
	color []uint8
	depth []float64
	parts []uint32
}

func newLayerBuffer(w, h int) *layerBuffer {
	b := &layerBuffer{
		w:     w,
		h:     h,
		color: make([]uint8, w*h*4),
		depth: make([]float64, w*h),
		parts: make([]uint32, w*h),
	}
	for i := range b.depth {
		b.depth[i] = math.Inf(-1)
	}
	return b
}

// fillTriangle rasterizes one projected triangle with a z-buffer where a
// larger z is nearer. Depth-only surfaces clear color and part id.
func fillTriangle(b *layerBuffer, px, py, pz []float64, vi [3]int, c color.NRGBA, depthOnly bool, part uint32) {
	nv := len(px)
	for _, i := range vi {
		if i < 0 || i >= nv {
			return
		}
	}
	x0, y0, z0 := px[vi[0]], py[vi[0]], pz[vi[0]]
	x1, y1, z1 := px[vi[1]], py[vi[1]], pz[vi[1]]
	x2, y2, z2 := px[vi[2]], py[vi[2]], pz[vi[2]]

	minX := int(math.Floor(math.Min(math.Min(x0, x1), x2)))
	maxX := int(math.Ceil(math.Max(math.Max(x0, x1), x2)))
	minY := int(math.Floor(math.Min(math.Min(y0, y1), y2)))
	maxY := int(math.Ceil(math.Max(math.Max(y0, y1), y2)))
	if minX < 0 {
		minX = 0
	}
	if maxX > b.w-1 {
		maxX = b.w - 1
	}
	if minY < 0 {
		minY = 0
	}
	if maxY > b.h-1 {
		maxY = b.h - 1
	}
	if minX > maxX || minY > maxY {
		return
	}

	det := (y1-y2)*(x0-x2) + (x2-x1)*(y0-y2)
	if det > -1e-8 && det < 1e-8 {
		return
	}
	invDet := 1.0 / det
	dy12 := y1 - y2
	dx21 := x2 - x1
	dy20 := y2 - y0
	dx02 := x0 - x2

	// Pixel centers, no allocations in the loop
	for sy := minY; sy <= maxY; sy++ {
		dsy := float64(sy) + 0.5 - y2
		rowOff := sy * b.w
		for sx := minX; sx <= maxX; sx++ {
			dsx := float64(sx) + 0.5 - x2
			w0 := (dy12*dsx + dx21*dsy) * invDet
			w1 := (dy20*dsx + dx02*dsy) * invDet
			w2 := 1.0 - w0 - w1
			if w0 < -0.001 || w1 < -0.001 || w2 < -0.001 {
				continue
			}
			z := w0*z0 + w1*z1 + w2*z2
			idx := rowOff + sx
			if z <= b.depth[idx] {
				continue
			}
			b.depth[idx] = z
			ci := idx * 4
			if depthOnly {
				b.parts[idx] = 0
				b.color[ci], b.color[ci+1], b.color[ci+2], b.color[ci+3] = 0, 0, 0, 0
				continue
			}
			b.parts[idx] = part
			b.color[ci], b.color[ci+1], b.color[ci+2], b.color[ci+3] = c.R, c.G, c.B, c.A
		}
	}
}
