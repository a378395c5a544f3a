// Package pose holds the per-frame output of the upstream pose/mask estimator.
//
// Everything here is immutable once a frame has been handed to the core:
// consumers read keypoints and the mask descriptor, they never write them.
package pose

import (
	"tryon-compositor/internal/coords"
	"tryon-compositor/internal/gpu"
	"tryon-compositor/internal/mathutil"
)

// Joint names a skeletal keypoint.
type Joint string

const (
	Nose      Joint = "nose"
	EyeL      Joint = "eyeL"
	EyeR      Joint = "eyeR"
	EarL      Joint = "earL"
	EarR      Joint = "earR"
	ShoulderL Joint = "shoulderL"
	ShoulderR Joint = "shoulderR"
	ElbowL    Joint = "elbowL"
	ElbowR    Joint = "elbowR"
	WristL    Joint = "wristL"
	WristR    Joint = "wristR"
	HipL      Joint = "hipL"
	HipR      Joint = "hipR"
	KneeL     Joint = "kneeL"
	KneeR     Joint = "kneeR"
	AnkleL    Joint = "ankleL"
	AnkleR    Joint = "ankleR"
)

// Keypoint is one detected joint.
type Keypoint struct {
	// Pixel is normalized to the source frame: origin top-left, Y down.
	Pixel coords.Norm `json:"pixel"`
	// Metric is camera-relative, in meters.
	Metric     mathutil.Vec3 `json:"metric"`
	Visibility float64       `json:"visibility"`
}

// Mask describes the segmentation texture for a frame.
// Texture row 0 is the bottom of the image.
type Mask struct {
	Texture gpu.Texture
	Width   int
	Height  int
	// Box is the normalized region of the source frame the texture covers.
	Box coords.Box
}

// Pose is the full keypoint set for one detected person.
type Pose struct {
	Points map[Joint]Keypoint
	Mask   *Mask
}

// Point returns the keypoint for j and whether it was detected.
func (p *Pose) Point(j Joint) (Keypoint, bool) {
	if p == nil || p.Points == nil {
		return Keypoint{}, false
	}
	kp, ok := p.Points[j]
	return kp, ok
}

// Metric returns the metric position of each requested joint, failing on the first missing one.
func (p *Pose) Metric(joints ...Joint) ([]mathutil.Vec3, error) {
	out := make([]mathutil.Vec3, len(joints))
	for i, j := range joints {
		kp, ok := p.Point(j)
		if !ok {
			return nil, &MissingError{Joint: j}
		}
		out[i] = kp.Metric
	}
	return out, nil
}

// MissingError reports an absent keypoint.
type MissingError struct {
	Joint Joint
}

func (e *MissingError) Error() string {
	return "pose: keypoint " + string(e.Joint) + " missing"
}

// Result is what the estimator delivers per frame: zero or one pose.
type Result struct {
	Seq   uint64
	Poses []*Pose
}

// Primary returns the first pose, or nil when nothing was detected.
func (r Result) Primary() *Pose {
	if len(r.Poses) == 0 {
		return nil
	}
	return r.Poses[0]
}
