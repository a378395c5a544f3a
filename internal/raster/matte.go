package raster

// Matte is a single-channel coverage map in texture orientation (row 0 = bottom).
// 0 is background, 255 is fully foreground.
type Matte struct {
	Width  int
	Height int
	Pix    []uint8 // len = W*H
}

// NewMatte allocates a zeroed matte.
func NewMatte(w, h int) *Matte {
	return &Matte{Width: w, Height: h, Pix: make([]uint8, w*h)}
}

// MatteFromBuffer extracts one channel of an RGBA buffer.
func MatteFromBuffer(b *Buffer, ch Channel) *Matte {
	m := NewMatte(b.Width, b.Height)
	for i := range m.Pix {
		m.Pix[i] = b.Pix[i*4+int(ch)]
	}
	return m
}

// At returns the value at (col, row), or 0 outside the matte.
func (m *Matte) At(col, row int) uint8 {
	if col < 0 || row < 0 || col >= m.Width || row >= m.Height {
		return 0
	}
	return m.Pix[row*m.Width+col]
}

// Set writes v at (col, row). Out-of-range writes are ignored.
func (m *Matte) Set(col, row int, v uint8) {
	if col < 0 || row < 0 || col >= m.Width || row >= m.Height {
		return
	}
	m.Pix[row*m.Width+col] = v
}

// Clone returns a deep copy.
func (m *Matte) Clone() *Matte {
	c := NewMatte(m.Width, m.Height)
	copy(c.Pix, m.Pix)
	return c
}

// Equal reports whether both mattes hold identical texels.
func (m *Matte) Equal(o *Matte) bool {
	if m == nil || o == nil {
		return m == o
	}
	if m.Width != o.Width || m.Height != o.Height {
		return false
	}
	for i := range m.Pix {
		if m.Pix[i] != o.Pix[i] {
			return false
		}
	}
	return true
}

// Count returns how many texels exceed threshold.
func (m *Matte) Count(threshold uint8) int {
	n := 0
	for _, v := range m.Pix {
		if v > threshold {
			n++
		}
	}
	return n
}
