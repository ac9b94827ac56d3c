package geom

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/aligator/arcoverhang/internal/micro"
)

func square(size float64) Ring {
	return Ring{
		micro.PointFromMM(0, 0),
		micro.PointFromMM(size, 0),
		micro.PointFromMM(size, size),
		micro.PointFromMM(0, size),
		micro.PointFromMM(0, 0),
	}
}

func TestPolygonAreaMM2(t *testing.T) {
	p := Polygon{Outer: square(10)}
	if got := p.AreaMM2(); got < 99.9 || got > 100.1 {
		t.Errorf("AreaMM2() = %v, want ~100", got)
	}
}

func TestPolygonAreaMM2WithHole(t *testing.T) {
	p := Polygon{Outer: square(10), Holes: []Ring{square(5)}}
	if got := p.AreaMM2(); got < 74.9 || got > 75.1 {
		t.Errorf("AreaMM2() with hole = %v, want ~75", got)
	}
}

func TestPolygonContains(t *testing.T) {
	p := Polygon{Outer: square(10)}
	if !p.Contains(micro.PointFromMM(5, 5)) {
		t.Error("expected center point to be contained")
	}
	if p.Contains(micro.PointFromMM(20, 20)) {
		t.Error("expected far point to not be contained")
	}
}

func TestPolygonContainsHoleExcluded(t *testing.T) {
	p := Polygon{Outer: square(10), Holes: []Ring{square(4)}}
	if p.Contains(micro.PointFromMM(1, 1)) {
		t.Error("expected point inside hole to not be contained")
	}
	if !p.Contains(micro.PointFromMM(8, 8)) {
		t.Error("expected point outside hole but inside outer to be contained")
	}
}

func TestSegmentizeInsertsPoints(t *testing.T) {
	r := Ring{micro.PointFromMM(0, 0), micro.PointFromMM(10, 0)}
	out := Segmentize(r, micro.FromMM(3))
	if len(out) < 4 {
		t.Errorf("Segmentize produced %d points, want at least 4", len(out))
	}
	if out[0] != r[0] || out[len(out)-1] != r[len(r)-1] {
		t.Error("Segmentize must preserve endpoints")
	}
}

func TestDistPointToSegment(t *testing.T) {
	a := micro.PointFromMM(0, 0)
	b := micro.PointFromMM(10, 0)
	got := DistPointToSegment(micro.PointFromMM(5, 3), a, b)
	want := float64(micro.FromMM(3))
	if diff := got - want; diff > 1 || diff < -1 {
		t.Errorf("DistPointToSegment = %v, want ~%v", got, want)
	}
}

func TestSegmentizeNoOpBelowThreshold(t *testing.T) {
	r := Ring{micro.PointFromMM(0, 0), micro.PointFromMM(1, 0)}
	got := Segmentize(r, micro.FromMM(5))
	if diff := cmp.Diff(r, got); diff != "" {
		t.Errorf("Segmentize() should be a no-op when the segment is shorter than maxSegLen (-want +got):\n%s", diff)
	}
}

func TestRingLengthMM(t *testing.T) {
	r := square(10)
	if got := r.LengthMM(); got < 39.9 || got > 40.1 {
		t.Errorf("LengthMM() = %v, want ~40", got)
	}
}
