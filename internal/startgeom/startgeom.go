// Package startgeom implements the start-geometry and start-point
// selection (spec.md §4.E): deriving the line segment of an overhang
// polygon that rests on the previous layer's perimeter, and choosing a
// starting point on it by scoring vertices.
package startgeom

import (
	"errors"
	"math"
	"math/rand"

	"github.com/aligator/arcoverhang/internal/geom"
	"github.com/aligator/arcoverhang/internal/micro"
)

// ErrNoStartGeometry is returned when the start polyline cannot be
// derived (spec.md §4.E step 2: "If still empty, reject this
// polygon.").
var ErrNoStartGeometry = errors.New("startgeom: no start geometry found")

// Result bundles the start line and the boundary arcs must not cross.
// Candidate start points are chosen separately by Candidates, not
// carried on Result.
type Result struct {
	StartLineString      geom.Ring
	BoundaryWithoutStart geom.Ring
}

// Derive implements spec.md §4.E steps 1-3: inflate the previous
// layer's external-perimeter union E, compute the start area and start
// line string against overhang polygon P, and the remaining boundary.
func Derive(p geom.Polygon, prevExternal []geom.Polygon) (Result, error) {
	unionExt, err := geom.Union(prevExternal)
	if err != nil || len(unionExt) == 0 {
		return Result{}, ErrNoStartGeometry
	}

	var inflated []geom.Polygon
	for _, e := range unionExt {
		infl, err := geom.Inflate(e)
		if err != nil {
			continue
		}
		inflated = append(inflated, infl)
	}
	if len(inflated) == 0 {
		return Result{}, ErrNoStartGeometry
	}

	var startArea []geom.Polygon
	for _, e := range inflated {
		inter, err := geom.Intersection(p, e)
		if err == nil {
			startArea = append(startArea, inter...)
		}
	}
	if len(startArea) == 0 {
		return Result{}, ErrNoStartGeometry
	}

	// When the overhang polygon's area is wholly inside the start area,
	// its boundary can't be split into a start run and a remainder the
	// way the partial-overlap case can: the original
	// (makeStartLineString) hits this by falling through to
	// startArea.boundary for the start line and poly.boundary, in full,
	// for the "must not cross" boundary, rather than differencing the
	// two.
	if wholeContained(p, startArea) {
		var startLine geom.Ring
		for _, sa := range startArea {
			startLine = append(startLine, sa.Outer...)
		}
		if len(startLine) < 2 {
			return Result{}, ErrNoStartGeometry
		}
		return Result{StartLineString: startLine, BoundaryWithoutStart: p.Outer}, nil
	}

	var runs []geom.Ring
	for _, sa := range startArea {
		runs = append(runs, geom.NearCommonBoundary(p.Outer, sa.Outer, geom.Tolerance)...)
	}
	merged := geom.LineMerge(runs)
	startLine, ok := geom.Longest(merged)
	if !ok {
		return Result{}, ErrNoStartGeometry
	}

	if len(startLine) < 2 {
		return Result{}, ErrNoStartGeometry
	}

	boundaryWithoutStart := boundaryMinusRun(p.Outer, startLine)

	return Result{StartLineString: startLine, BoundaryWithoutStart: boundaryWithoutStart}, nil
}

func wholeContained(p geom.Polygon, startArea []geom.Polygon) bool {
	pArea := p.AreaMM2()
	var saArea float64
	for _, sa := range startArea {
		saArea += sa.AreaMM2()
	}
	return math.Abs(pArea-saArea) < 1e-6
}

// boundaryMinusRun removes the points of run from boundary, returning
// the complementary arc(s) merged into one ring (best-effort; spec.md
// §4.E: "boundaryWithoutStart = ∂P \ ∂startArea").
func boundaryMinusRun(boundary geom.Ring, run geom.Ring) geom.Ring {
	runSet := make(map[micro.Point]bool, len(run))
	for _, p := range run {
		runSet[p] = true
	}
	var out geom.Ring
	for _, p := range boundary {
		if !runSet[p] {
			out = append(out, p)
		}
	}
	return out
}

// Select chooses a start point on the start polyline by scoring each
// interior vertex with lengthscore + anglescore, excluding endpoints
// (spec.md §4.E). If the polyline has exactly two vertices, it returns
// their midpoint.
func Select(line geom.Ring, cornerImportance float64) (micro.Point, error) {
	if len(line) < 2 {
		return micro.Point{}, errors.New("startgeom: start polyline has fewer than 2 points")
	}
	if len(line) == 2 {
		return midpoint(line[0], line[1]), nil
	}

	totalLen := line.LengthMM()
	var cum float64
	bestScore := math.Inf(-1)
	var best micro.Point
	found := false

	for i := 1; i < len(line)-1; i++ {
		cum += line[i-1].Dist(line[i]) / micro.Scale

		length := lengthScore(cum, totalLen)
		angle := angleScore(line[i-1], line[i], line[i+1]) * cornerImportance
		score := length + angle
		if score > bestScore {
			bestScore = score
			best = line[i]
			found = true
		}
	}

	if !found {
		return micro.Point{}, errors.New("startgeom: no interior vertex available")
	}
	return best, nil
}

// lengthScore is a hat function peaking at 1.0 at the polyline midpoint
// and 0 at the ends.
func lengthScore(cumLen, totalLen float64) float64 {
	if totalLen <= 0 {
		return 0
	}
	t := cumLen / totalLen
	return 1 - math.Abs(2*t-1)
}

// angleScore is |sin(angle between incoming and outgoing edges)|.
func angleScore(prev, cur, next micro.Point) float64 {
	v1x, v1y := float64(cur.X-prev.X), float64(cur.Y-prev.Y)
	v2x, v2y := float64(next.X-cur.X), float64(next.Y-cur.Y)
	cross := v1x*v2y - v1y*v2x
	mag1 := math.Hypot(v1x, v1y)
	mag2 := math.Hypot(v2x, v2y)
	if mag1 == 0 || mag2 == 0 {
		return 0
	}
	sinAngle := cross / (mag1 * mag2)
	return math.Abs(sinAngle)
}

func midpoint(a, b micro.Point) micro.Point {
	return micro.Point{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2}
}

const maxFallbackAttempts = 10
const densifySpacingMM = 0.1

// Candidates builds the ordered sequence of start-point candidates
// spec.md §4.E's fallback mode describes: the scored selection on
// line, then the scored selection on a densified line, then up to
// maxFallbackAttempts random interior vertices of line, then up to
// maxFallbackAttempts random interior vertices of the densified line.
//
// Unlike a Select-failure-triggered retry, the decision to advance past
// a candidate belongs to the caller: archfill.Fill only moves on to the
// next candidate here once the previous one produced fewer than
// MinStartArcs arcs, mirroring the original script's retry loop
// (arc_overhangs_v1.0.0.py's "if len(concentricArcs) <
// parameters.get('MinStartArcs')"), not a geometry error.
func Candidates(line geom.Ring, cornerImportance float64, rng *rand.Rand) []micro.Point {
	var out []micro.Point

	if pt, err := Select(line, cornerImportance); err == nil {
		out = append(out, pt)
	}

	dense := geom.Segmentize(line, micro.FromMM(densifySpacingMM))
	if pt, err := Select(dense, cornerImportance); err == nil {
		out = append(out, pt)
	}

	for i := 0; i < maxFallbackAttempts; i++ {
		if pt, ok := randomInteriorVertex(line, rng); ok {
			out = append(out, pt)
		}
	}

	for i := 0; i < maxFallbackAttempts; i++ {
		if pt, ok := randomInteriorVertex(dense, rng); ok {
			out = append(out, pt)
		}
	}

	return out
}

func randomInteriorVertex(line geom.Ring, rng *rand.Rand) (micro.Point, bool) {
	if len(line) < 3 {
		return micro.Point{}, false
	}
	idx := 1 + rng.Intn(len(line)-2)
	return line[idx], true
}
