// Package feature reconstructs polygons from a layer's feature motion
// lines (spec.md §4.C): reading G0/G1 coordinates, expanding G2/G3 arcs
// into polyline chords, suppressing wipe moves, closing external
// perimeters into polygons, and buffering bridge-infill polylines into
// BridgeRegion polygons.
package feature

import (
	"math"
	"strconv"
	"strings"

	"github.com/aligator/arcoverhang/internal/geom"
	"github.com/aligator/arcoverhang/internal/micro"
	"github.com/aligator/arcoverhang/internal/toolpath"
)

// defaultArcPointsPerMillimeter matches config.Defaults's
// ArcPointsPerMillimeter, used as expandArc's fallback density whenever
// a caller passes pointsPerMM <= 0.
const defaultArcPointsPerMillimeter = 4

// Polyline extracts the ordered point sequence traced by a feature's
// motion lines, expanding G2/G3 arcs into chords and skipping any
// motion between ";WIPE_START"/";WIPE_END" (spec.md §4.C). Travel
// moves (G0, or G1 with no E) still contribute their endpoint, the way
// the original script's getPtfromCmd always advances "current point"
// regardless of extrusion. pointsPerMM sets G2/G3 chord density,
// matching config.Parameters.ArcPointsPerMillimeter so a feature's
// reconstructed boundary samples arcs at the same rate archfill's own
// circles do.
func Polyline(lines []string, pointsPerMM float64) geom.Ring {
	var ring geom.Ring
	var cur micro.Point
	have := false
	inWipe := false

	for _, raw := range lines {
		trimmed := strings.TrimSpace(raw)
		switch trimmed {
		case ";WIPE_START":
			inWipe = true
			continue
		case ";WIPE_END":
			inWipe = false
			continue
		}
		if inWipe {
			continue
		}
		if strings.HasPrefix(trimmed, ";") {
			continue
		}

		cmd, rest := splitCommand(trimmed)
		switch cmd {
		case "G0", "G1":
			x, hasX := floatParam(rest, 'X')
			y, hasY := floatParam(rest, 'Y')
			next := cur
			if hasX {
				next.X = micro.FromMM(x)
			}
			if hasY {
				next.Y = micro.FromMM(y)
			}
			if hasX || hasY {
				cur = next
				have = true
				ring = append(ring, cur)
			}
		case "G2", "G3":
			if !have {
				continue
			}
			x, hasX := floatParam(rest, 'X')
			y, hasY := floatParam(rest, 'Y')
			i, _ := floatParam(rest, 'I')
			j, _ := floatParam(rest, 'J')
			end := cur
			if hasX {
				end.X = micro.FromMM(x)
			}
			if hasY {
				end.Y = micro.FromMM(y)
			}
			chord := expandArc(cur, end, i, j, cmd == "G2", pointsPerMM)
			ring = append(ring, chord...)
			cur = end
		}
	}
	return ring
}

func splitCommand(line string) (string, string) {
	line = strings.TrimSpace(line)
	if idx := strings.IndexByte(line, ';'); idx >= 0 {
		line = line[:idx]
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", ""
	}
	return strings.ToUpper(fields[0]), strings.Join(fields[1:], " ")
}

func floatParam(rest string, letter byte) (float64, bool) {
	for _, f := range strings.Fields(rest) {
		if len(f) > 1 && (f[0] == letter || f[0] == letter+32) {
			if v, err := strconv.ParseFloat(f[1:], 64); err == nil {
				return v, true
			}
		}
	}
	return 0, false
}

// expandArc expands a G2 (clockwise, cw=true) or G3 (counterclockwise)
// arc command into polyline chords. The arc center is start + (i, j);
// radius is |(i, j)| (spec.md §4.C). pointsPerMM sets the chord density,
// the same parameter archfill.createCircle samples its circles at.
func expandArc(start, end micro.Point, i, j float64, cw bool, pointsPerMM float64) geom.Ring {
	centerX := start.X.ToMM() + i
	centerY := start.Y.ToMM() + j
	radius := math.Hypot(i, j)
	if radius <= 0 {
		return geom.Ring{end}
	}

	startAngle := math.Atan2(start.Y.ToMM()-centerY, start.X.ToMM()-centerX)
	endAngle := math.Atan2(end.Y.ToMM()-centerY, end.X.ToMM()-centerX)

	sweep := endAngle - startAngle
	if cw {
		for sweep > 0 {
			sweep -= 2 * math.Pi
		}
	} else {
		for sweep < 0 {
			sweep += 2 * math.Pi
		}
	}

	if pointsPerMM <= 0 {
		pointsPerMM = defaultArcPointsPerMillimeter
	}
	arcLen := math.Abs(sweep) * radius
	steps := int(math.Max(2, arcLen*pointsPerMM))
	chord := make(geom.Ring, 0, steps)
	for s := 1; s <= steps; s++ {
		t := float64(s) / float64(steps)
		angle := startAngle + sweep*t
		chord = append(chord, micro.PointFromMM(centerX+radius*math.Cos(angle), centerY+radius*math.Sin(angle)))
	}
	return chord
}

// ExternalPerimeterPolygon closes a perimeter feature's polyline into a
// polygon (spec.md §4.C).
func ExternalPerimeterPolygon(lines []string, pointsPerMM float64) (geom.Polygon, bool) {
	ring := Polyline(lines, pointsPerMM)
	if len(ring) < 3 {
		return geom.Polygon{}, false
	}
	return geom.Polygon{Outer: ring.AsClosed()}, true
}

// BridgePolygon buffers a bridge-infill feature's polyline by extend
// (nominally one extrusion width) to produce a BridgeRegion candidate
// polygon (spec.md §3, §4.C).
func BridgePolygon(lines []string, extend float64, pointsPerMM float64) (geom.Polygon, bool) {
	ring := Polyline(lines, pointsPerMM)
	if len(ring) < 2 {
		return geom.Polygon{}, false
	}
	polys, err := geom.BufferLine(ring, micro.FromMM(extend))
	if err != nil || len(polys) == 0 {
		return geom.Polygon{}, false
	}
	return polys[0], true
}

// MergeOverlapping unions bridge-infill polygons that overlap within a
// layer, per spec.md §4.C.
func MergeOverlapping(polys []geom.Polygon) ([]geom.Polygon, error) {
	return geom.Union(polys)
}

// SolidInfillPolygon reconstructs a solid-infill feature's polygon
// using the same buffering approach as bridge infill (spec.md §4.H
// operates on "solid-infill polygon S").
func SolidInfillPolygon(lines []string, extend float64, pointsPerMM float64) (geom.Polygon, bool) {
	return BridgePolygon(lines, extend, pointsPerMM)
}

// FeaturesOfKind filters a layer's features by kind.
func FeaturesOfKind(layer toolpath.Layer, kind toolpath.FeatureKind) []toolpath.Feature {
	var out []toolpath.Feature
	for _, f := range layer.Features {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	return out
}
