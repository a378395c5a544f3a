package measure

import "tryon-compositor/internal/raster"

// Span is the foreground extent of one mask row. Left and Right are -1 when
// no texel qualifies.
type Span struct {
	Left  int `json:"left"`
	Right int `json:"right"`
	Width int `json:"width"`
}

// Found reports whether any texel qualified.
func (s Span) Found() bool { return s.Right >= 0 }

// MeasureWidth scans texture row `row` of an RGBA buffer of w×h texels and
// returns the outermost columns whose channel ch exceeds threshold.
// Width is Right−Left, or 0 when nothing qualifies or the row is outside
// the buffer.
func MeasureWidth(pixels []byte, w, h, row int, ch raster.Channel, threshold uint8) Span {
	none := Span{Left: -1, Right: -1}
	if w <= 0 || row < 0 || row >= h || len(pixels) < (row+1)*w*4 {
		return none
	}
	left, right := w, -1
	base := row * w * 4
	for x := 0; x < w; x++ {
		if pixels[base+x*4+int(ch)] > threshold {
			if x < left {
				left = x
			}
			right = x
		}
	}
	if right < 0 {
		return none
	}
	return Span{Left: left, Right: right, Width: right - left}
}

// topRow walks up (increasing texture row) from row at column col while the
// texel stays foreground and returns the last foreground row, or -1 if the
// start texel is background.
func topRow(pixels []byte, w, h, col, row int, ch raster.Channel, threshold uint8) int {
	if col < 0 || col >= w || row < 0 || row >= h || len(pixels) < w*h*4 {
		return -1
	}
	top := -1
	for r := row; r < h; r++ {
		if pixels[(r*w+col)*4+int(ch)] <= threshold {
			break
		}
		top = r
	}
	return top
}
