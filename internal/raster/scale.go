package raster

import (
	"image"
	"image/color"
	stddraw "image/draw"

	"golang.org/x/image/draw"
)

// ScaleNRGBA resizes img to w×h with premultiplied-alpha-aware CatmullRom filtering.
// This prevents dark halo artifacts at transparent edges.
// When mirror is set the result is flipped horizontally.
func ScaleNRGBA(img *image.NRGBA, w, h int, mirror bool) *image.NRGBA {
	b := img.Bounds()
	if w <= 0 || h <= 0 {
		return image.NewNRGBA(image.Rect(0, 0, 0, 0))
	}

	// Premultiply alpha
	premul := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			si := img.PixOffset(x, y)
			di := premul.PixOffset(x, y)
			a := float64(img.Pix[si+3]) / 255.0
			premul.Pix[di] = uint8(float64(img.Pix[si])*a + 0.5)
			premul.Pix[di+1] = uint8(float64(img.Pix[si+1])*a + 0.5)
			premul.Pix[di+2] = uint8(float64(img.Pix[si+2])*a + 0.5)
			premul.Pix[di+3] = img.Pix[si+3]
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if b.Dx() == w && b.Dy() == h {
		copy(dst.Pix, premul.Pix)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), premul, b, draw.Src, nil)
	}

	// Unpremultiply alpha
	result := image.NewNRGBA(dst.Bounds())
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sx := x
			if mirror {
				sx = w - 1 - x
			}
			si := dst.PixOffset(sx, y)
			di := result.PixOffset(x, y)
			a := float64(dst.Pix[si+3])
			if a > 1 {
				inv := 255.0 / a
				result.Pix[di] = Clamp8(float64(dst.Pix[si]) * inv)
				result.Pix[di+1] = Clamp8(float64(dst.Pix[si+1]) * inv)
				result.Pix[di+2] = Clamp8(float64(dst.Pix[si+2]) * inv)
			}
			result.Pix[di+3] = dst.Pix[si+3]
		}
	}

	return result
}

// ToNRGBA converts any image to NRGBA format with bounds starting at the origin.
func ToNRGBA(src image.Image) *image.NRGBA {
	if n, ok := src.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		return n
	}
	b := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	switch src.(type) {
	case *image.YCbCr, *image.Gray:
		// No alpha: draw, then force opaque
		stddraw.Draw(dst, dst.Bounds(), src, b.Min, stddraw.Src)
		for i := 3; i < len(dst.Pix); i += 4 {
			dst.Pix[i] = 255
		}
	default:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				c := color.NRGBAModel.Convert(src.At(x, y)).(color.NRGBA)
				dst.SetNRGBA(x-b.Min.X, y-b.Min.Y, c)
			}
		}
	}
	return dst
}

// CloneNRGBA returns a deep copy of img.
func CloneNRGBA(img *image.NRGBA) *image.NRGBA {
	c := image.NewNRGBA(img.Rect)
	copy(c.Pix, img.Pix)
	return c
}

// MatteToGray converts a matte into a top-down grayscale image.
func MatteToGray(m *Matte) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, m.Width, m.Height))
	for row := 0; row < m.Height; row++ {
		y := m.Height - 1 - row
		copy(g.Pix[y*g.Stride:y*g.Stride+m.Width], m.Pix[row*m.Width:(row+1)*m.Width])
	}
	return g
}

// GrayToMatte is the inverse of MatteToGray.
func GrayToMatte(g *image.Gray) *Matte {
	b := g.Bounds()
	m := NewMatte(b.Dx(), b.Dy())
	for y := 0; y < m.Height; y++ {
		row := m.Height - 1 - y
		off := g.PixOffset(b.Min.X, b.Min.Y+y)
		copy(m.Pix[row*m.Width:(row+1)*m.Width], g.Pix[off:off+m.Width])
	}
	return m
}
