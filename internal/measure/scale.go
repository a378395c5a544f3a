package measure

import (
	"fmt"

	"tryon-compositor/internal/coords"
	"tryon-compositor/internal/mathutil"
	"tryon-compositor/internal/pose"
	"tryon-compositor/internal/raster"
)

// minPixelSpan is the smallest texel distance a scale may be derived from.
const minPixelSpan = 1.0

// ScaleFromShoulders returns centimeters per mask texel from the metric and
// the mask-space distance between the shoulders.
func ScaleFromShoulders(p *pose.Pose, box coords.Box, maskW, maskH int) (float64, error) {
	l, okL := p.Point(pose.ShoulderL)
	r, okR := p.Point(pose.ShoulderR)
	if !okL {
		return 0, missing(pose.ShoulderL)
	}
	if !okR {
		return 0, missing(pose.ShoulderR)
	}
	px := coords.MaskDistance(l.Pixel, r.Pixel, box, maskW, maskH)
	if px < minPixelSpan {
		return 0, fmt.Errorf("%w: shoulders %.2f texels apart", ErrDegenerateScale, px)
	}
	return mathutil.Dist(l.Metric, r.Metric) * 100 / px, nil
}

// ScaleFromReference calibrates centimeters per mask texel from the user's
// stated height: refCm over the rows between the ankles and the top of the
// silhouette above the nose.
func ScaleFromReference(refCm float64, p *pose.Pose, pixels []byte, maskW, maskH int, box coords.Box, ch raster.Channel, threshold uint8) (float64, error) {
	if refCm <= 0 {
		return 0, fmt.Errorf("%w: reference height %.1f cm", ErrDegenerateScale, refCm)
	}
	nose, ok := p.Point(pose.Nose)
	if !ok {
		return 0, missing(pose.Nose)
	}
	al, okL := p.Point(pose.AnkleL)
	ar, okR := p.Point(pose.AnkleR)
	if !okL {
		return 0, missing(pose.AnkleL)
	}
	if !okR {
		return 0, missing(pose.AnkleR)
	}

	col, row := coords.MaskTexel(nose.Pixel, box, maskW, maskH)
	top := topRow(pixels, maskW, maskH, col, row, ch, threshold)
	if top < 0 {
		return 0, fmt.Errorf("%w: no silhouette above the nose", ErrDegenerateScale)
	}
	ankle := coords.MaskRow((al.Pixel.Y+ar.Pixel.Y)/2, box, maskH)
	span := float64(top - ankle)
	if span < minPixelSpan {
		return 0, fmt.Errorf("%w: head-to-ankle span %.0f rows", ErrDegenerateScale, span)
	}
	return refCm / span, nil
}
