package measure

import (
	"tryon-compositor/internal/mathutil"
	"tryon-compositor/internal/pose"
)

const (
	// HeadTopOffset is how far above the nose the top of the head sits, in meters.
	HeadTopOffset = 0.12
	// FootOffset is the ankle-to-floor allowance, in meters.
	FootOffset = 0.04
)

// HeightCm estimates stature from the metric chain head top → shoulder
// midpoint → hip midpoint → ankle midpoint, plus the foot allowance.
func HeightCm(p *pose.Pose) (float64, error) {
	pts, err := p.Metric(
		pose.Nose,
		pose.ShoulderL, pose.ShoulderR,
		pose.HipL, pose.HipR,
		pose.AnkleL, pose.AnkleR,
	)
	if err != nil {
		return 0, wrapMissing(err)
	}
	up := mathutil.Vec3{0, HeadTopOffset, 0}
	headTop := pts[0].Add(up)
	shoulders := mathutil.Mid(pts[1], pts[2])
	hips := mathutil.Mid(pts[3], pts[4])
	ankles := mathutil.Mid(pts[5], pts[6])

	m := mathutil.Dist(headTop, shoulders) +
		mathutil.Dist(shoulders, hips) +
		mathutil.Dist(hips, ankles) +
		FootOffset
	return m * 100, nil
}
