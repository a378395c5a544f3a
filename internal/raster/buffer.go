package raster

import "image"

// Buffer is an RGBA texel store in texture orientation (row 0 = bottom).
// It backs software textures and holds readback results.
type Buffer struct {
	Width  int
	Height int
	Pix    []uint8 // RGBA interleaved, len = W*H*4
}

// NewBuffer allocates a zeroed buffer.
func NewBuffer(w, h int) *Buffer {
	return &Buffer{
		Width:  w,
		Height: h,
		Pix:    make([]uint8, w*h*4),
	}
}

// Offset returns the index of the R byte of texel (col, row).
func (b *Buffer) Offset(col, row int) int {
	return (row*b.Width + col) * 4
}

// Clone returns a deep copy.
func (b *Buffer) Clone() *Buffer {
	c := &Buffer{Width: b.Width, Height: b.Height, Pix: make([]uint8, len(b.Pix))}
	copy(c.Pix, b.Pix)
	return c
}

// Channel selects one byte of an RGBA texel.
type Channel int

const (
	ChannelR Channel = 0
	ChannelG Channel = 1
	ChannelB Channel = 2
	ChannelA Channel = 3
)

// BufferFromNRGBA converts a top-down image into texture orientation.
func BufferFromNRGBA(img *image.NRGBA) *Buffer {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	b := NewBuffer(w, h)
	for y := 0; y < h; y++ {
		src := img.Pix[y*img.Stride : y*img.Stride+w*4]
		copy(b.Pix[b.Offset(0, h-1-y):], src)
	}
	return b
}

// NRGBA converts the buffer back into a top-down image.
func (b *Buffer) NRGBA() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, b.Width, b.Height))
	for row := 0; row < b.Height; row++ {
		off := b.Offset(0, row)
		copy(img.Pix[(b.Height-1-row)*img.Stride:], b.Pix[off:off+b.Width*4])
	}
	return img
}
