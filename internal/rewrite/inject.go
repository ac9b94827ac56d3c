package rewrite

import (
	"fmt"
	"strings"

	"github.com/aligator/arcoverhang/internal/config"
	"github.com/aligator/arcoverhang/internal/feature"
	"github.com/aligator/arcoverhang/internal/geom"
	"github.com/aligator/arcoverhang/internal/toolpath"
)

// Injection bundles the generated motion for one layer's rewrite pass.
type Injection struct {
	// ArcFeatureIdx is the index of the first bridge-infill feature
	// (the earliest of possibly several, spec.md §8 scenario 6) whose
	// marker line becomes the arc-infill injection point. -1 disables
	// arc injection for this layer.
	ArcFeatureIdx int
	ArcLines      []string

	// HilbertFeatureIdx is the index of the first solid-infill feature
	// that should receive the Hilbert block. -1 disables it.
	HilbertFeatureIdx int
	HilbertLines      []string

	OldPolys []geom.Polygon
}

// ApplyLayer streams layer's lines, deleting DeleteLines' output and
// splicing in Injection's arc/Hilbert blocks at the right points,
// restoring pre-injection tool position, and applying cooling-zone
// overrides to surviving lines (spec.md §4.J).
func ApplyLayer(layer toolpath.Layer, deleted map[int]bool, inj Injection, p config.Parameters) []string {
	var out []string
	tracker := &FeedrateTracker{}
	inCoolingZone := false
	savedFeedrate := 0.0
	currentFan := int(layer.StartFanSpeed)
	savedFan := currentFan

	arcInjected := inj.ArcFeatureIdx < 0
	hilbertInjected := inj.HilbertFeatureIdx < 0

	for fi, f := range layer.Features {
		if !arcInjected && fi == inj.ArcFeatureIdx {
			out = append(out, ";TYPE:Arc infill")
			out = append(out, fmt.Sprintf("M106 S%d", p.ArcFanSpeed))
			out = append(out, inj.ArcLines...)
			if xy, ok := FindLastXY(layer.RawLines, f.StartLine-layer.StartLine); ok {
				out = append(out, "G1 E-"+trimE(p), "G1 "+xy, "G1 E"+trimE(p))
			}
			arcInjected = true
		}
		if !hilbertInjected && fi == inj.HilbertFeatureIdx {
			out = append(out, ";TYPE:Solid infill")
			out = append(out, fmt.Sprintf("M106 S%d", p.AboveArcsFanSpeed))
			out = append(out, inj.HilbertLines...)
			if xy, ok := FindLastXY(layer.RawLines, f.StartLine-layer.StartLine); ok {
				out = append(out, "G1 E-"+trimE(p), "G1 "+xy, "G1 E"+trimE(p))
			}
			hilbertInjected = true
		}

		if markerIdx := f.StartLine - layer.StartLine; markerIdx >= 0 && markerIdx < len(layer.RawLines) {
			if marker := layer.RawLines[markerIdx]; strings.HasPrefix(strings.TrimSpace(marker), ";TYPE:") && !deleted[f.StartLine] {
				out = append(out, marker)
			}
		}

		markerOffset := 0
		if f.HasMarker {
			markerOffset = 1 // skip the marker line itself in numbering space relative to feature content
		}
		for li, raw := range f.Lines {
			abs := f.StartLine + markerOffset + li
			if deleted[abs] {
				continue
			}
			tracker.Observe(raw)
			if fan, ok := observeFan(raw); ok {
				currentFan = fan
			}

			ring := feature.Polyline([]string{raw}, p.ArcPointsPerMillimeter)
			nowInZone := CoolingOverride(ring, inj.OldPolys, p)

			line := raw
			if nowInZone {
				if !inCoolingZone {
					savedFeedrate = tracker.Current
					savedFan = currentFan
					inCoolingZone = true
					out = append(out, fmt.Sprintf("M106 S%d", p.AboveArcsFanSpeed))
				}
				line = overrideFeedrateFan(raw, p.AboveArcsPerimeterPrintSpeed*60)
			} else if inCoolingZone {
				inCoolingZone = false
				if !p.ApplyAboveFanSpeedToWholeLayer {
					out = append(out, fmt.Sprintf("M106 S%d", savedFan))
					line = restoreFeedrate(raw, savedFeedrate)
				}
			}
			out = append(out, line)
		}
	}

	return out
}

func observeFan(line string) (int, bool) {
	trimmed := strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(trimmed, "M106"):
		for _, f := range strings.Fields(trimmed) {
			if len(f) > 1 && f[0] == 'S' {
				var s int
				if _, err := fmt.Sscanf(f[1:], "%d", &s); err == nil {
					return s, true
				}
			}
		}
	case strings.HasPrefix(trimmed, "M107"):
		return 0, true
	}
	return 0, false
}

func trimE(p config.Parameters) string {
	return fmt.Sprintf("%.5f F%.0f", p.RetractLength, p.RetractSpeed*60)
}

func overrideFeedrateFan(line string, feedrate float64) string {
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "G1") && strings.Contains(trimmed, "F") {
		return replaceF(trimmed, feedrate)
	}
	return line
}

func restoreFeedrate(line string, feedrate float64) string {
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "G1") && strings.Contains(trimmed, "F") && feedrate > 0 {
		return replaceF(trimmed, feedrate)
	}
	return line
}

func replaceF(line string, feedrate float64) string {
	fields := strings.Fields(line)
	for i, f := range fields {
		if len(f) > 1 && f[0] == 'F' {
			fields[i] = fmt.Sprintf("F%.0f", feedrate)
		}
	}
	return strings.Join(fields, " ")
}
