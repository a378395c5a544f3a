// Package gesture turns per-frame pose metrics into stable boolean states.
package gesture

import (
	"fmt"
	"math"

	"tryon-compositor/internal/mathutil"
	"tryon-compositor/internal/pose"
)

// Hysteresis is a two-threshold latch: the state turns on above Enter,
// off below Exit, and holds inside [Exit, Enter].
type Hysteresis struct {
	Enter float64
	Exit  float64
	state bool
}

// NewHysteresis validates the band.
func NewHysteresis(enter, exit float64) (*Hysteresis, error) {
	if math.IsNaN(enter) || math.IsNaN(exit) || exit > enter {
		return nil, fmt.Errorf("gesture: invalid band enter=%v exit=%v", enter, exit)
	}
	return &Hysteresis{Enter: enter, Exit: exit}, nil
}

// Update feeds one sample and returns the resulting state.
func (h *Hysteresis) Update(v float64) bool {
	switch {
	case v > h.Enter:
		h.state = true
	case v < h.Exit:
		h.state = false
	}
	return h.state
}

func (h *Hysteresis) State() bool { return h.state }

// Reset forces the state off.
func (h *Hysteresis) Reset() { h.state = false }

// ArmCosines returns, in metric space, the cosines between torso and upper
// arm (left, right) and between forearm and upper arm (left, right).
func ArmCosines(p *pose.Pose) ([4]float64, error) {
	pts, err := p.Metric(
		pose.HipL, pose.HipR,
		pose.ShoulderL, pose.ShoulderR,
		pose.ElbowL, pose.ElbowR,
		pose.WristL, pose.WristR,
	)
	if err != nil {
		return [4]float64{}, err
	}
	hipL, hipR := pts[0], pts[1]
	shL, shR := pts[2], pts[3]
	elL, elR := pts[4], pts[5]
	wrL, wrR := pts[6], pts[7]

	torsoL, torsoR := shL.Sub(hipL), shR.Sub(hipR)
	armL, armR := elL.Sub(shL), elR.Sub(shR)
	foreL, foreR := wrL.Sub(elL), wrR.Sub(elR)

	return [4]float64{
		mathutil.Cosine(torsoL, armL),
		mathutil.Cosine(torsoR, armR),
		mathutil.Cosine(foreL, armL),
		mathutil.Cosine(foreR, armR),
	}, nil
}

// MinArmCosine is the smallest of ArmCosines: near 1 when both arms point
// straight up along the torso.
func MinArmCosine(p *pose.Pose) (float64, error) {
	c, err := ArmCosines(p)
	if err != nil {
		return 0, err
	}
	return math.Min(math.Min(c[0], c[1]), math.Min(c[2], c[3])), nil
}

// Arms-up thresholds.
const (
	ArmsUpEnter = 0.8
	ArmsUpExit  = 0.7
)

// ArmsUp detects both arms raised straight above the head.
type ArmsUp struct {
	h Hysteresis
}

func NewArmsUp() *ArmsUp {
	return &ArmsUp{h: Hysteresis{Enter: ArmsUpEnter, Exit: ArmsUpExit}}
}

// Update evaluates p. When a needed keypoint is missing the previous state
// is kept and the error returned.
func (a *ArmsUp) Update(p *pose.Pose) (bool, error) {
	c, err := MinArmCosine(p)
	if err != nil {
		return a.h.State(), err
	}
	return a.h.Update(c), nil
}

func (a *ArmsUp) State() bool { return a.h.State() }

func (a *ArmsUp) Reset() { a.h.Reset() }
