package mathutil

import (
	"math"
	"testing"
)

func TestCosine(t *testing.T) {
	cases := []struct {
		a, b Vec3
		want float64
	}{
		{Vec3{0, 1, 0}, Vec3{0, 2, 0}, 1},
		{Vec3{0, 1, 0}, Vec3{1, 0, 0}, 0},
		{Vec3{0, 1, 0}, Vec3{0, -3, 0}, -1},
		{Vec3{}, Vec3{1, 0, 0}, 0},
	}
	for _, c := range cases {
		if got := Cosine(c.a, c.b); math.Abs(got-c.want) > 1e-9 {
			t.Errorf("Cosine(%v, %v) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestMidAndDist(t *testing.T) {
	a, b := Vec3{0, 0, 0}, Vec3{2, 4, 6}
	if m := Mid(a, b); m != (Vec3{1, 2, 3}) {
		t.Errorf("Mid = %v", m)
	}
	if d := Dist(Vec3{0, 0, 0}, Vec3{3, 4, 0}); d != 5 {
		t.Errorf("Dist = %v, want 5", d)
	}
}

func TestFromTRSTranslatesScaledPoint(t *testing.T) {
	m := FromTRS(Vec3{1, 2, 3}, Vec3{}, Vec3{2, 2, 2})
	got := m.MulPoint(Vec3{1, 1, 1})
	want := Vec3{3, 4, 5}
	for i := range got {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Fatalf("MulPoint = %v, want %v", got, want)
		}
	}
	if tr := m.Translation(); tr != (Vec3{1, 2, 3}) {
		t.Errorf("Translation = %v", tr)
	}
}

func TestFromTRSRotatesAroundY(t *testing.T) {
	m := FromTRS(Vec3{}, Vec3{0, math.Pi, 0}, Vec3{1, 1, 1})
	got := m.MulPoint(Vec3{1, 0, 0})
	if math.Abs(got[0]+1) > 1e-9 || math.Abs(got[2]) > 1e-9 {
		t.Errorf("half turn around Y: got %v", got)
	}
}
