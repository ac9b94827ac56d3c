// Package motion implements the motion emitter (spec.md §4.I): turning
// arcs and Hilbert point sequences into G1 motion commands with
// extrusion, feedrate, and retraction, following the retract/travel/
// unretract choreography the original script's p2GCode/arc2GCode/
// hilbert2GCode functions use.
package motion

import (
	"fmt"
	"math"

	"github.com/aligator/arcoverhang/internal/archfill"
	"github.com/aligator/arcoverhang/internal/config"
	"github.com/aligator/arcoverhang/internal/geom"
	"github.com/aligator/arcoverhang/internal/micro"
)

// State tracks feedrate and timelapse-trigger counts across emitted
// arcs within a bundle.
type State struct {
	Feedrate     float64
	TimelapseCnt int
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// eSteps converts an extrusion cross-section area (mm^2) into the E
// axis advance for a move of the given XY length (mm), dividing by the
// filament circle area unless the slicer uses volumetric extrusion
// (spec.md §4.I).
func eSteps(crossSectionMM2 float64, lengthMM float64, p config.Parameters) float64 {
	volume := crossSectionMM2 * lengthMM
	if p.UseVolumetricExtrusion {
		return volume
	}
	filamentArea := math.Pi * (p.FilamentDiameter / 2) * (p.FilamentDiameter / 2)
	if filamentArea <= 0 {
		return 0
	}
	return volume / filamentArea
}

func arcCrossSection(p config.Parameters) float64 {
	r := p.NozzleDiameter / 2
	return math.Pi * r * r * p.ArcExtrusionMultiplier
}

func hilbertCrossSection(p config.Parameters) float64 {
	w := p.InfillExtrusionWidth
	h := p.LayerHeight
	return ((w-h)*h + math.Pi*(h/2)*(h/2)) * p.HilbertInfillExtrusionMultiplier
}

func g1(p micro.Point, e float64, f float64, hasE, hasF bool) string {
	x, y := p.ToMM()
	line := fmt.Sprintf("G1 X%.4f Y%.4f", x, y)
	if hasE {
		line += fmt.Sprintf(" E%.5f", e)
	}
	if hasF {
		line += fmt.Sprintf(" F%.0f", f)
	}
	return line
}

func retractLine(retract bool, p config.Parameters) string {
	sign := 1.0
	if retract {
		sign = -1.0
	}
	return fmt.Sprintf("G1 E%.5f F%.0f", sign*p.RetractLength, p.RetractSpeed*60)
}

func setFeedrate(f float64) string {
	return fmt.Sprintf("G1 F%.0f", f)
}

// tangentPoint returns a point ExtendArcDist beyond the arc's first
// point, tangent to the arc (a 90-degree turn from the radius at that
// point), per spec.md §4.I step 2.
func tangentPoint(center, first micro.Point, dist float64) micro.Point {
	dx, dy := float64(first.X-center.X), float64(first.Y-center.Y)
	length := math.Hypot(dx, dy)
	if length == 0 {
		return first
	}
	// Tangent direction = radius rotated 90 degrees.
	tx, ty := -dy/length, dx/length
	fx, fy := first.ToMM()
	return micro.PointFromMM(fx-tx*dist, fy-ty*dist)
}

// EmitArc emits one arc's motion block: retract, travel to the
// tangent-extended start, unretract, feedrate, arc polyline (with
// near-duplicate points dropped), and a tangent-extended end (spec.md
// §4.I).
func EmitArc(arc archfill.Arc, idx int, st *State, p config.Parameters) []string {
	var lines []string
	pts := arc.Clipped
	if len(pts) < 2 {
		return nil
	}

	lines = append(lines, retractLine(true, p))

	startExt := tangentPoint(arc.Center, pts[0], p.ExtendArcDist)
	lines = append(lines, g1(startExt, 0, p.ArcTravelFeedRate, false, true))

	lines = append(lines, retractLine(false, p))

	// ArcMinPrintSpeed/ArcPrintSpeed are mm/min already; lengthMM/duration
	// is mm/s and needs its own *60 to land in the same unit before the
	// clip (arc2GCode's np.clip(arcline.length/duration*60, ArcMinPrintSpeed,
	// ArcPrintSpeed)).
	lengthMM := arc.Clipped.LengthMM()
	feedrate := clip(lengthMM/maxf(p.ArcSlowDownBelowThisDuration, 1e-6)*60, p.ArcMinPrintSpeed, p.ArcPrintSpeed)
	lines = append(lines, setFeedrate(feedrate))
	st.Feedrate = feedrate

	crossSection := arcCrossSection(p)
	last := pts[0]
	lines = append(lines, g1(pts[0], 0, 0, false, false))
	for _, pt := range pts[1:] {
		if pt.Dist(last) < float64(micro.FromMM(p.GCodeArcPtMinDist)) {
			continue
		}
		segLenMM := pt.Dist(last) / micro.Scale
		e := eSteps(crossSection, segLenMM, p)
		lines = append(lines, g1(pt, e, 0, true, false))
		last = pt
	}

	endExt := tangentPoint(arc.Center, pts[len(pts)-1], p.ExtendArcDist)
	lines = append(lines, g1(endExt, 0, 0, false, false))

	if p.TimeLapseEveryNArcs > 0 {
		st.TimelapseCnt++
		if st.TimelapseCnt%p.TimeLapseEveryNArcs == 0 {
			lines = append(lines, "M240")
		}
	}

	return lines
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// EmitArcBundle emits every arc of a fill in order.
func EmitArcBundle(arcs []archfill.Arc, st *State, p config.Parameters) []string {
	var lines []string
	for i, arc := range arcs {
		lines = append(lines, EmitArc(arc, i, st, p)...)
	}
	return lines
}

// EmitHilbert emits a chunked Hilbert point-sequence block: pure travel
// (still retracted) to the first chunk's first point, one unretract
// right after arriving there, one retract at the very end, pure travel
// between chunks, and extruding moves within a chunk at
// aboveArcsInfillPrintSpeed (spec.md §4.I).
//
// The unretract happens after the travel into the first chunk, not
// before it, and only for the first chunk - matching hilbert2GCode in
// the original script exactly (travel-move append, then `if idc == 0:
// retractGCode(False, ...)`). Getting this order backwards means
// traveling into the fill region already unretracted, oozing a string
// across the gap.
//
// Per spec.md §9 Open Question 3, the feedrate for the first extruding
// point of each chunk is set on the move itself rather than via a
// separate G1 F line, matching the original script's behavior.
func EmitHilbert(chunks []geom.Ring, p config.Parameters) []string {
	if len(chunks) == 0 {
		return nil
	}
	var lines []string

	crossSection := hilbertCrossSection(p)
	infillFeed := p.AboveArcsInfillPrintSpeed * 60

	for ci, chunk := range chunks {
		if len(chunk) == 0 {
			continue
		}
		lines = append(lines, g1(chunk[0], 0, p.ArcTravelFeedRate, false, true))
		if ci == 0 {
			lines = append(lines, retractLine(false, p))
		}

		last := chunk[0]
		for i, pt := range chunk[1:] {
			segLenMM := pt.Dist(last) / micro.Scale
			e := eSteps(crossSection, segLenMM, p)
			if i == 0 {
				lines = append(lines, g1(pt, e, infillFeed, true, true))
			} else {
				lines = append(lines, g1(pt, e, 0, true, false))
			}
			last = pt
		}
	}

	lines = append(lines, retractLine(true, p))
	return lines
}
