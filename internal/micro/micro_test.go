package micro

import "testing"

func TestFromMMRoundTrip(t *testing.T) {
	cases := []float64{0, 1, 0.1, 123.456, -12.5}
	for _, mm := range cases {
		got := FromMM(mm).ToMM()
		if diff := got - mm; diff > 1e-6 || diff < -1e-6 {
			t.Errorf("FromMM(%v).ToMM() = %v, want %v", mm, got, mm)
		}
	}
}

func TestPointDist(t *testing.T) {
	a := PointFromMM(0, 0)
	b := PointFromMM(3, 4)
	got := a.Dist(b)
	want := float64(FromMM(5))
	if diff := got - want; diff > 1 || diff < -1 {
		t.Errorf("Dist = %v, want ~%v", got, want)
	}
}

func TestShorterThanOrEqual(t *testing.T) {
	p := PointFromMM(3, 4)
	if !p.ShorterThanOrEqual(FromMM(5)) {
		t.Error("expected (3,4) to be within radius 5")
	}
	if p.ShorterThanOrEqual(FromMM(4)) {
		t.Error("expected (3,4) to exceed radius 4")
	}
}
