// Package hilbertfill implements the Hilbert planner (spec.md §4.H):
// tiling a solid-infill polygon with a Hilbert-curve point sequence,
// chunked by a time budget and shuffled to distribute heat input.
//
// The index-to-grid-coordinate mapping itself is delegated to
// github.com/google/hilbert, matching spec.md §1's explicit carve-out:
// "the Hilbert-curve coordinate generator (assumed available as a
// library that maps an integer index to a 2D grid coordinate)".
package hilbertfill

import (
	"math"
	"math/rand"

	"github.com/google/hilbert"

	"github.com/aligator/arcoverhang/internal/geom"
	"github.com/aligator/arcoverhang/internal/micro"
)

// Plan tiles polygon s with a Hilbert-curve fill and returns chunked
// point sequences ready for motion emission (spec.md §4.H). layerIndex
// drives the alternating half-width seam offset (SeamOffset) so
// successive Hilbert layers don't stack their start seams.
func Plan(s geom.Polygon, extrusionWidth, fillingPercent, speedMMPerSec, secondsBetweenTravels float64, layerIndex int, rng *rand.Rand) ([]geom.Ring, error) {
	a := fillingPercent / 100
	w := extrusionWidth

	minX, minY, maxX, maxY := bounds(s.Outer)
	l := math.Max(maxX-minX, maxY-minY)
	if a <= 0 || l <= 0 || w <= 0 {
		return nil, nil
	}

	iterations := int(math.Ceil(math.Log2(a*l/w + 1)))
	if iterations < 1 {
		iterations = 1
	}
	side := 1 << uint(iterations)

	curve, err := hilbert.NewHilbert(side)
	if err != nil {
		return nil, err
	}

	scale := w / a
	dx, dy := SeamOffset(layerIndex, extrusionWidth)

	var allPoints geom.Ring
	total := side * side
	for idx := 0; idx < total; idx++ {
		x, y, err := curve.Map(idx)
		if err != nil {
			continue
		}
		allPoints = append(allPoints, micro.PointFromMM(
			minX+float64(x)*scale+dx,
			minY+float64(y)*scale+dy,
		))
	}

	// Filter points inside s, keeping maximal runs of consecutive
	// in-polygon points (spec.md §4.H).
	var runs []geom.Ring
	var cur geom.Ring
	for _, pt := range allPoints {
		if s.Contains(pt) {
			cur = append(cur, pt)
		} else if len(cur) > 0 {
			runs = append(runs, cur)
			cur = nil
		}
	}
	if len(cur) > 0 {
		runs = append(runs, cur)
	}

	// Split each run into chunks bounded by continuous extrusion time.
	chunkLen := int(math.Ceil(speedMMPerSec * secondsBetweenTravels / scale))
	if chunkLen < 1 {
		chunkLen = 1
	}

	var chunks []geom.Ring
	for _, run := range runs {
		for i := 0; i < len(run); i += chunkLen {
			end := i + chunkLen
			if end > len(run) {
				end = len(run)
			}
			chunks = append(chunks, run[i:end])
		}
	}

	rng.Shuffle(len(chunks), func(i, j int) { chunks[i], chunks[j] = chunks[j], chunks[i] })

	return chunks, nil
}

func bounds(r geom.Ring) (minX, minY, maxX, maxY float64) {
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	for _, p := range r {
		x, y := p.ToMM()
		minX, maxX = math.Min(minX, x), math.Max(maxX, x)
		minY, maxY = math.Min(minY, y), math.Max(maxY, y)
	}
	return
}

// SeamOffset returns the per-layer alternating offset used to avoid
// seams between layers (spec.md §4.H), alternating on even/odd layer
// index.
func SeamOffset(layerIndex int, extrusionWidth float64) (dx, dy float64) {
	if layerIndex%2 == 0 {
		return 0, 0
	}
	return extrusionWidth / 2, extrusionWidth / 2
}
