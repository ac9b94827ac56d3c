// Package rewrite implements the layer rewriter (spec.md §4.J): it
// deletes the features replaced by arc/Hilbert fills from the original
// stream, splices the generated motion back in at the right injection
// point, restores pre-injection tool state, and applies the
// cooling-zone feedrate/fan overrides to the layers above the
// overhangs.
package rewrite

import (
	"strconv"
	"strings"

	"github.com/aligator/arcoverhang/internal/config"
	"github.com/aligator/arcoverhang/internal/feature"
	"github.com/aligator/arcoverhang/internal/geom"
	"github.com/aligator/arcoverhang/internal/toolpath"
)

// DeleteLines computes the set of absolute line indices to delete from
// a layer: every feature whose type matches target and whose points
// lie inside one of validPolys, from the feature's start line up to
// (but not including) the next feature's first line, excluding
// trailing travel moves (spec.md §4.J step 1).
//
// The set is built against the exact same absolute 0-based line
// numbering toolpath.Tokenize assigns (spec.md §9 "exportThisLine"
// note) — there is no separate per-layer renumbering pass that could
// reintroduce the original's off-by-one.
func DeleteLines(layer toolpath.Layer, target toolpath.FeatureKind, validPolys []geom.Polygon, preservedFailed []geom.Polygon, p config.Parameters) map[int]bool {
	deleted := map[int]bool{}

	for fi, f := range layer.Features {
		if f.Kind != target {
			continue
		}
		ring := feature.Polyline(f.Lines, p.ArcPointsPerMillimeter)
		if !anyPointInAny(ring, validPolys) {
			continue
		}
		if anyPointInAny(ring, preservedFailed) {
			// This region's arc generation failed; its original
			// infill is preserved (spec.md §7 band 2).
			continue
		}

		nextStart := layer.EndLine
		if fi+1 < len(layer.Features) {
			nextStart = layer.Features[fi+1].StartLine
		}

		end := nextStart
		for end > f.StartLine && isTravelOnly(lineAt(layer, end-1)) {
			end--
		}

		for ln := f.StartLine; ln < end; ln++ {
			deleted[ln] = true
		}
	}

	return deleted
}

func lineAt(layer toolpath.Layer, absIdx int) string {
	rel := absIdx - layer.StartLine
	if rel < 0 || rel >= len(layer.RawLines) {
		return ""
	}
	return layer.RawLines[rel]
}

func isTravelOnly(line string) bool {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "G0") && !strings.HasPrefix(trimmed, "G1") {
		return false
	}
	return !strings.Contains(trimmed, "E")
}

func anyPointInAny(ring geom.Ring, polys []geom.Polygon) bool {
	for _, p := range polys {
		for _, pt := range ring {
			if p.Contains(pt) {
				return true
			}
		}
	}
	return false
}

// FeedrateTracker tracks the current feedrate by observing bare "G1
// F..." lines (spec.md §4.J step 5).
type FeedrateTracker struct {
	Current float64
}

// Observe updates the tracker if line is a bare feedrate-setting move.
func (t *FeedrateTracker) Observe(line string) {
	if idx := strings.IndexByte(line, ';'); idx >= 0 {
		line = line[:idx]
	}
	fields := strings.Fields(line)
	if len(fields) != 2 || fields[0] != "G1" {
		return
	}
	if f := fields[1]; len(f) > 1 && f[0] == 'F' {
		if v, err := strconv.ParseFloat(f[1:], 64); err == nil {
			t.Current = v
		}
	}
}

// FindLastXY scans lines backwards from idx (exclusive) for the most
// recent "G1 X.. Y.." move, returning its raw X/Y text, used to restore
// the pre-injection tool position (spec.md §4.J step 2).
func FindLastXY(lines []string, idx int) (string, bool) {
	for i := idx - 1; i >= 0; i-- {
		trimmed := strings.TrimSpace(lines[i])
		if strings.HasPrefix(trimmed, "G1") && strings.Contains(trimmed, "X") && strings.Contains(trimmed, "Y") {
			return extractXY(trimmed), true
		}
	}
	return "", false
}

func extractXY(line string) string {
	var x, y string
	for _, f := range strings.Fields(line) {
		if len(f) > 1 && f[0] == 'X' {
			x = f
		}
		if len(f) > 1 && f[0] == 'Y' {
			y = f
		}
	}
	return strings.TrimSpace(x + " " + y)
}

// CoolingOverride reports whether line's motion point lies inside or
// within CoolingSettingDetectionDistance of any polygon in oldPolys
// (spec.md §4.J step 4). The caller applies the feedrate/fan override.
func CoolingOverride(pt geom.Ring, oldPolys []geom.Polygon, p config.Parameters) (inZone bool) {
	if len(pt) == 0 {
		return false
	}
	threshold := p.CoolingSettingDetectionDistance * 1000 // mm -> micrometers
	for _, poly := range oldPolys {
		for _, ring := range poly.Boundary() {
			if geom.DistPointToRing(pt[0], ring) <= threshold || poly.Contains(pt[0]) {
				return true
			}
		}
	}
	return false
}
