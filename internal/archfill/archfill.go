// Package archfill implements the concentric-arc generator (spec.md
// §4.F) and the frontier-expansion greedy filler (spec.md §4.G) — the
// computational core of the arc-overhang system.
package archfill

import (
	"errors"
	"math"

	"github.com/aligator/arcoverhang/internal/config"
	"github.com/aligator/arcoverhang/internal/geom"
	"github.com/aligator/arcoverhang/internal/micro"
)

// Arc is a circular segment, clipped to the unfilled portion of the
// overhang, per spec.md §3.
type Arc struct {
	Center  micro.Point
	Radius  micro.Micrometer
	Full    geom.Ring
	Clipped geom.Ring
}

// createCircle samples a full circle centered at center with the given
// radius at pointsPerMM points per millimeter (spec.md §4.F).
func createCircle(center micro.Point, radius micro.Micrometer, pointsPerMM float64) geom.Ring {
	radiusMM := radius.ToMM()
	if radiusMM <= 0 {
		return geom.Ring{center}
	}
	n := int(math.Max(8, math.Round(2*math.Pi*radiusMM*pointsPerMM)))
	ring := make(geom.Ring, 0, n+1)
	cx, cy := center.ToMM()
	for i := 0; i <= n; i++ {
		angle := 2 * math.Pi * float64(i) / float64(n)
		ring = append(ring, micro.PointFromMM(cx+radiusMM*math.Cos(angle), cy+radiusMM*math.Sin(angle)))
	}
	return ring
}

// circleExitsBoundary reports whether any sampled point of circle lies
// outside the polygon bounded by boundary — i.e. the circle has grown
// past B, the outline arcs must not cross (spec.md §4.F: "stop when
// the circle first intersects B").
func circleExitsBoundary(circle geom.Ring, boundary geom.Ring) bool {
	poly := geom.Polygon{Outer: boundary}
	for _, pt := range circle {
		if !poly.Contains(pt) {
			return true
		}
	}
	return false
}

// GenerateConcentricArcs emits nested circular arcs from start within
// remainingSpace, from radius rMin up to rMax in ArcWidth steps,
// stopping when a circle clips to nothing, or (unless
// UseLeastAmountOfCenterPoints) when a circle first escapes
// outerBoundary (spec.md §4.F).
func GenerateConcentricArcs(start micro.Point, rMin, rMax micro.Micrometer, outerBoundary geom.Ring, remainingSpace geom.Polygon, p config.Parameters) []Arc {
	var arcs []Arc
	arcWidth := micro.FromMM(p.ArcWidth)
	if arcWidth <= 0 {
		return nil
	}

	for r := rMin; r <= rMax; r += arcWidth {
		circle := createCircle(start, r, p.ArcPointsPerMillimeter)
		clippedSegs := geom.ClipOpenRingToPolygon(circle, remainingSpace)
		if len(clippedSegs) == 0 {
			break
		}
		clipped, _ := geom.Longest(clippedSegs)

		arcs = append(arcs, Arc{Center: start, Radius: r, Full: circle, Clipped: clipped})

		if !p.UseLeastAmountOfCenterPoints && circleExitsBoundary(circle, outerBoundary) {
			break
		}
	}
	return arcs
}

// disk returns the polygon approximating the full disk of radius r
// around center.
func disk(center micro.Point, r micro.Micrometer, pointsPerMM float64) geom.Polygon {
	return geom.Polygon{Outer: createCircle(center, r, pointsPerMM).AsClosed()}
}

// unionDiskInto folds arc's disk into filled, clipped to poly, matching
// spec.md §4.G step 8: "filled_space = P ∩ (filled_space ∪
// disk(last_arc))".
func unionDiskInto(filled geom.Polygon, arc Arc, poly geom.Polygon, pointsPerMM float64) (geom.Polygon, error) {
	d := disk(arc.Center, arc.Radius, pointsPerMM)
	merged, err := geom.Union([]geom.Polygon{filled, d})
	if err != nil || len(merged) == 0 {
		return filled, err
	}
	// Re-clip to poly; a disk union can, in principle, produce several
	// disjoint pieces, so re-intersect each against poly and take the
	// largest resulting piece as the new filled_space.
	var pieces []geom.Polygon
	for _, m := range merged {
		inter, err := geom.Intersection(m, poly)
		if err != nil {
			continue
		}
		pieces = append(pieces, inter...)
	}
	if len(pieces) == 0 {
		return filled, errors.New("archfill: filled_space clip produced no geometry")
	}
	best := pieces[0]
	for _, piece := range pieces[1:] {
		if piece.AreaMM2() > best.AreaMM2() {
			best = piece
		}
	}
	return best, nil
}

// FillResult is the outcome of a single overhang polygon's frontier
// expansion.
type FillResult struct {
	FilledSpace  geom.Polygon
	Arcs         []Arc
	FillFraction float64
	// Failed is true when the polygon's fill never reached
	// MinStartArcs, or ended below the safe minimum acceptable filling
	// fraction (spec.md §9 Open Question 1 — treated as failed rather
	// than silently deleting a half-filled overhang).
	Failed bool
	Reason string
}

// ErrNoInitialArcs is returned when even after every start-point
// candidate, fewer than MinStartArcs arcs could be produced.
var ErrNoInitialArcs = errors.New("archfill: could not produce MinStartArcs initial arcs")

// Fill runs the frontier-expansion loop (spec.md §4.G) over poly,
// trying each start-point candidate (already computed by
// startgeom.Candidates and its fallback tiers, in order) until an
// initial bundle of at least MinStartArcs arcs is produced.
//
// boundaryWithoutStart is ∂P minus the start line (startgeom.Derive's
// Result.BoundaryWithoutStart) and is the "must not cross" outline for
// the initial bundle only (spec.md §4.E step 3): the start point sits
// on ∂P itself, so checking the first sampled circle against the full
// boundary would trip circleExitsBoundary at the very first radius.
func Fill(poly geom.Polygon, boundaryWithoutStart geom.Ring, startCandidates []micro.Point, nozzleDiameter micro.Micrometer, p config.Parameters) (FillResult, error) {
	arcWidth := micro.FromMM(p.ArcWidth)
	rMax := micro.FromMM(p.RMax)

	var initialArcs []Arc
	for _, candidate := range startCandidates {
		arcs := GenerateConcentricArcs(candidate, nozzleDiameter, rMax, boundaryWithoutStart, poly, p)
		if len(arcs) >= p.MinStartArcs {
			initialArcs = arcs
			break
		}
	}
	if len(initialArcs) == 0 {
		return FillResult{Failed: true, Reason: "no start candidate produced MinStartArcs"}, ErrNoInitialArcs
	}

	// All arcs in a bundle share GenerateConcentricArcs's center and are in
	// strictly increasing radius order, so their disks are nested and only
	// the largest (last) one changes filled_space - folding in every arc's
	// disk one at a time is a geometric no-op for all but the last.
	filled := poly
	filled, _ = clipToFirstDisk(initialArcs[0], poly, p.ArcPointsPerMillimeter)
	filled, _ = unionDiskInto(filled, initialArcs[len(initialArcs)-1], poly, p.ArcPointsPerMillimeter)
	lastArc := initialArcs[len(initialArcs)-1]

	var allArcs []Arc
	allArcs = append(allArcs, initialArcs...)

	minDist := micro.FromMM(p.MinDistanceFromPerimeter)
	centerOffset := micro.FromMM(p.ArcCenterOffset)
	rMinNext := centerOffset + micro.FromMM(p.ArcWidth/1.5)

	// poly.Outer never changes across this loop's iterations (up to
	// SafetyBreakMaxArcNumber of them), so its spatial index is built once
	// here rather than per-iteration inside FarthestFromRing.
	polyIx := geom.NewRingIndex(poly.Outer)

	failureCount := 0
	for iter := 0; iter < p.SafetyBreakMaxArcNumber; iter++ {
		remainingBuf, err := geom.Buffer(filled, arcWidth/2)
		var remaining geom.Polygon
		if err == nil && len(remainingBuf) > 0 {
			diffs, derr := geom.DifferenceMulti(poly, remainingBuf)
			if derr == nil && len(diffs) > 0 {
				remaining = diffs[0]
				for _, d := range diffs[1:] {
					if d.AreaMM2() > remaining.AreaMM2() {
						remaining = d
					}
				}
			}
		}
		if len(remaining.Outer) == 0 {
			break
		}

		n := p.AllowedArcRetries + 1
		candidates := geom.FarthestFromIndexedRing(filled.Outer, polyIx, poly.Outer, n)
		if len(candidates) == 0 {
			break
		}
		if geom.DistPointToRing(candidates[0], poly.Outer) < float64(minDist) {
			break
		}

		succeeded := false
		for _, candidate := range candidates {
			startPt := moveToward(candidate, lastArc.Center, centerOffset)
			newArcs := GenerateConcentricArcs(startPt, rMinNext, rMax, poly.Outer, remaining, p)
			if len(newArcs) == 0 {
				failureCount++
				if failureCount >= p.AllowedArcRetries {
					succeeded = false
					break
				}
				continue
			}

			unioned, unionErr := unionDiskInto(filled, newArcs[len(newArcs)-1], poly, p.ArcPointsPerMillimeter)
			if unionErr != nil {
				// filled_space didn't actually grow - treat like a failed
				// candidate rather than emitting arcs nothing accounts for.
				failureCount++
				if failureCount >= p.AllowedArcRetries {
					succeeded = false
					break
				}
				continue
			}
			filled = unioned
			lastArc = newArcs[len(newArcs)-1]
			allArcs = append(allArcs, newArcs...)
			failureCount = 0
			succeeded = true
			break
		}
		if !succeeded {
			break
		}
	}

	fillFraction := 0.0
	if poly.AreaMM2() > 0 {
		fillFraction = filled.AreaMM2() / poly.AreaMM2() * 100
	}

	result := FillResult{
		FilledSpace:  filled,
		Arcs:         allArcs,
		FillFraction: fillFraction,
	}

	minAcceptable := p.WarnBelowThisFillingPercentage / 2
	if fillFraction < minAcceptable {
		result.Failed = true
		result.Reason = "fill fraction below MinAcceptableFillingPercentage"
	}

	return result, nil
}

func clipToFirstDisk(arc Arc, poly geom.Polygon, pointsPerMM float64) (geom.Polygon, error) {
	d := disk(arc.Center, arc.Radius, pointsPerMM)
	inter, err := geom.Intersection(d, poly)
	if err != nil || len(inter) == 0 {
		return geom.Polygon{}, err
	}
	return inter[0], nil
}

// moveToward moves point by dist toward target, hiding the next arc's
// origin slightly inside already-filled territory (spec.md §4.G step
// 4).
func moveToward(point, target micro.Point, dist micro.Micrometer) micro.Point {
	dx, dy := float64(target.X-point.X), float64(target.Y-point.Y)
	length := math.Hypot(dx, dy)
	if length == 0 {
		return point
	}
	t := float64(dist) / length
	return micro.Point{
		X: point.X + micro.Micrometer(dx*t),
		Y: point.Y + micro.Micrometer(dy*t),
	}
}
