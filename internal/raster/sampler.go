package raster

// SampleMatte performs bilinear filtering with edge clamping.
// u, v are in [0,1] texture space (v=0 is the bottom row). Returns 0..1.
func SampleMatte(m *Matte, u, v float64) float64 {
	w := m.Width
	h := m.Height
	if w == 0 || h == 0 {
		return 0
	}

	fx := clampF(u*float64(w)-0.5, 0, float64(w-1))
	fy := clampF(v*float64(h)-0.5, 0, float64(h-1))
	x0 := int(fx)
	y0 := int(fy)
	x1 := x0 + 1
	if x1 >= w {
		x1 = w - 1
	}
	y1 := y0 + 1
	if y1 >= h {
		y1 = h - 1
	}
	dx := fx - float64(x0)
	dy := fy - float64(y0)

	pix := m.Pix

	// Four texels
	p00 := float64(pix[y0*w+x0])
	p10 := float64(pix[y0*w+x1])
	p01 := float64(pix[y1*w+x0])
	p11 := float64(pix[y1*w+x1])

	f := p00*(1-dx)*(1-dy) + p10*dx*(1-dy) + p01*(1-dx)*dy + p11*dx*dy
	return f / 255
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Clamp8 rounds and clamps v to a byte.
func Clamp8(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v + 0.5)
}
