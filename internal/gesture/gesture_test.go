package gesture

import (
	"math"
	"testing"

	"tryon-compositor/internal/mathutil"
	"tryon-compositor/internal/pose"
)

// rotate turns a unit vector in the XY plane by an angle whose cosine is c.
func rotate(v mathutil.Vec3, c float64) mathutil.Vec3 {
	s := math.Sqrt(1 - c*c)
	return mathutil.Vec3{v[0]*c - v[1]*s, v[0]*s + v[1]*c, 0}
}

// armsPose builds a pose whose ArmCosines are exactly c.
func armsPose(c [4]float64) *pose.Pose {
	up := mathutil.Vec3{0, 1, 0}
	pts := map[pose.Joint]pose.Keypoint{}
	side := func(x float64, hip, sh, el, wr pose.Joint, torsoArm, foreArm float64) {
		h := mathutil.Vec3{x, 0, 0}
		s := h.Add(up)
		arm := rotate(up, torsoArm)
		e := s.Add(arm)
		w := e.Add(rotate(arm, foreArm))
		pts[hip] = pose.Keypoint{Metric: h}
		pts[sh] = pose.Keypoint{Metric: s}
		pts[el] = pose.Keypoint{Metric: e}
		pts[wr] = pose.Keypoint{Metric: w}
	}
	side(-0.2, pose.HipL, pose.ShoulderL, pose.ElbowL, pose.WristL, c[0], c[2])
	side(0.2, pose.HipR, pose.ShoulderR, pose.ElbowR, pose.WristR, c[1], c[3])
	return &pose.Pose{Points: pts}
}

func TestArmCosinesRecoverConstruction(t *testing.T) {
	want := [4]float64{0.9, 0.85, 0.95, 0.65}
	got, err := ArmCosines(armsPose(want))
	if err != nil {
		t.Fatal(err)
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Errorf("cosine %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestHysteresisBand(t *testing.T) {
	h, err := NewHysteresis(0.8, 0.7)
	if err != nil {
		t.Fatal(err)
	}
	steps := []struct {
		v    float64
		want bool
	}{
		{0.75, false}, // inside the band from off stays off
		{0.81, true},
		{0.75, true}, // no flicker inside the band
		{0.70, true},
		{0.69, false},
		{0.79, false},
		{0.80, false}, // enter is strict
	}
	for i, s := range steps {
		if got := h.Update(s.v); got != s.want {
			t.Errorf("step %d: Update(%v) = %v, want %v", i, s.v, got, s.want)
		}
	}
	if _, err := NewHysteresis(0.5, 0.7); err == nil {
		t.Error("inverted band accepted")
	}
}

func TestArmsUpScenario(t *testing.T) {
	a := NewArmsUp()
	seq := []struct {
		cos  [4]float64
		want bool
	}{
		{[4]float64{0.95, 0.95, 0.95, 0.95}, true},
		{[4]float64{0.75, 0.9, 0.9, 0.9}, true},
		{[4]float64{0.9, 0.9, 0.9, 0.65}, false},
		{[4]float64{0.75, 0.75, 0.75, 0.75}, false},
	}
	for i, s := range seq {
		got, err := a.Update(armsPose(s.cos))
		if err != nil {
			t.Fatal(err)
		}
		if got != s.want {
			t.Errorf("frame %d: armsUp = %v, want %v", i, got, s.want)
		}
	}
}

func TestArmsUpMissingKeypointKeepsState(t *testing.T) {
	a := NewArmsUp()
	if up, _ := a.Update(armsPose([4]float64{0.95, 0.95, 0.95, 0.95})); !up {
		t.Fatal("expected arms up")
	}
	p := armsPose([4]float64{0.1, 0.1, 0.1, 0.1})
	delete(p.Points, pose.WristR)
	up, err := a.Update(p)
	if err == nil {
		t.Fatal("missing wrist not reported")
	}
	if !up {
		t.Error("state changed on an incomplete pose")
	}
	a.Reset()
	if a.State() {
		t.Error("Reset did not clear the state")
	}
}
