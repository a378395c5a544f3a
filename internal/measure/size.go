package measure

import (
	"fmt"
)

// Size is a clothing size label.
type Size string

const (
	SizeXS Size = "XS"
	SizeS  Size = "S"
	SizeM  Size = "M"
	SizeL  Size = "L"
	SizeXL Size = "XL"
	// SizeOutOfRange is returned for measurements past the last row of the table.
	SizeOutOfRange Size = "out-of-range"
	// SizeNone means no suggestion: the silhouette was not detected.
	SizeNone Size = ""
)

// SizeTable maps measurements to labels. Waist[i] and Height[i] are the
// exclusive upper bounds of Labels[i] and must increase strictly. A
// measurement picks the first label whose bound it is under; with both
// axes the larger of the two picks wins. Height may be empty.
type SizeTable struct {
	Labels []Size    `mapstructure:"labels" json:"labels"`
	Waist  []float64 `mapstructure:"waist" json:"waist"`
	Height []float64 `mapstructure:"height" json:"height"`
}

// DefaultSizeTable bounds waist width (front silhouette, cm) and stature (cm).
func DefaultSizeTable() SizeTable {
	return SizeTable{
		Labels: []Size{SizeXS, SizeS, SizeM, SizeL, SizeXL},
		Waist:  []float64{26, 30, 34, 38, 44},
		Height: []float64{155, 165, 175, 185, 195},
	}
}

// Validate checks shape and monotonicity.
func (t SizeTable) Validate() error {
	if len(t.Labels) == 0 {
		return fmt.Errorf("measure: size table has no labels")
	}
	if len(t.Waist) != len(t.Labels) {
		return fmt.Errorf("measure: size table has %d labels but %d waist bounds", len(t.Labels), len(t.Waist))
	}
	if len(t.Height) != 0 && len(t.Height) != len(t.Labels) {
		return fmt.Errorf("measure: size table has %d labels but %d height bounds", len(t.Labels), len(t.Height))
	}
	for _, bounds := range [][]float64{t.Waist, t.Height} {
		for i := 1; i < len(bounds); i++ {
			if bounds[i] <= bounds[i-1] {
				return fmt.Errorf("measure: size bounds must increase: %v", bounds)
			}
		}
	}
	return nil
}

// Classify returns the label for a stature and waist width. A waist of
// zero or less yields SizeNone; a height of zero or less ignores height.
func (t SizeTable) Classify(heightCm, waistCm float64) Size {
	if waistCm <= 0 {
		return SizeNone
	}
	idx := bucket(t.Waist, waistCm)
	if idx < 0 {
		return SizeOutOfRange
	}
	if len(t.Height) > 0 && heightCm > 0 {
		h := bucket(t.Height, heightCm)
		if h < 0 {
			return SizeOutOfRange
		}
		if h > idx {
			idx = h
		}
	}
	if idx >= len(t.Labels) {
		return SizeOutOfRange
	}
	return t.Labels[idx]
}

// bucket returns the first i with v < bounds[i], or -1.
func bucket(bounds []float64, v float64) int {
	for i, b := range bounds {
		if v < b {
			return i
		}
	}
	return -1
}
