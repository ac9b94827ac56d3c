// Package toolpath implements the tokenizer (spec.md §4.B): it splits
// the motion stream into a settings table and a list of Layer objects,
// splitting at ";LAYER_CHANGE" and further splitting each layer into
// Features at ";TYPE:" comments.
package toolpath

import (
	"strconv"
	"strings"

	"github.com/aligator/arcoverhang/internal/dialect"
)

// FeatureKind is a canonical feature type tag (spec.md §3 "Feature").
type FeatureKind string

const (
	FeatureExternalPerimeter FeatureKind = dialect.TagExternalPerimeter
	FeatureOverhangPerimeter FeatureKind = dialect.TagOverhangPerimeter
	FeatureBridgeInfill      FeatureKind = dialect.TagBridgeInfill
	FeatureSolidInfill       FeatureKind = dialect.TagSolidInfill
	FeatureOther             FeatureKind = "other"
)

// Feature is a typed run of motion commands inside a layer (spec.md
// §3).
type Feature struct {
	Kind FeatureKind
	// Lines are the raw motion lines belonging to this feature (not
	// including the ";TYPE:" marker line itself).
	Lines []string
	// StartLine is the absolute 0-based index, counted from the top of
	// the whole file, of this feature's first line: the ";TYPE:" marker
	// line if HasMarker, otherwise (the layer's leading unmarked
	// preamble) the first of Lines itself. The rewriter builds its
	// deletion set against this exact numbering (spec.md §9
	// "exportThisLine" note).
	StartLine int
	// HasMarker is false only for the synthetic feature, if any,
	// collecting a layer's content before its first ";TYPE:" marker
	// (";Z:"/height/fan lines with no feature tag of their own) - every
	// other feature is preceded by a real marker line.
	HasMarker bool
}

// Layer is a contiguous run of tokens between ";LAYER_CHANGE" markers
// (spec.md §3).
type Layer struct {
	Index          int
	Z              float64
	SliceThickness float64
	// FanSpeed is the fan state in effect at the END of this layer (the
	// last M106/M107 seen while scanning it, or the inherited value if
	// none), carried forward as the next layer's StartFanSpeed.
	FanSpeed float64
	// StartFanSpeed is the fan state inherited from the previous layer's
	// end, i.e. what's in effect before this layer's own first M106/M107.
	// Callers replaying a layer from its start (rewrite.ApplyLayer) must
	// seed their fan tracking from this, not from FanSpeed.
	StartFanSpeed float64
	Features      []Feature

	// StartLine is the absolute 0-based line index of this layer's
	// first line (the line right after its ";LAYER_CHANGE" marker; this
	// holds for the very first layer too).
	StartLine int
	// EndLine is the absolute 0-based index one past this layer's last
	// line.
	EndLine int

	// RawLines holds every line of the layer in original order,
	// including feature markers, for the rewriter to stream back out.
	RawLines []string

	// OldPolys and ValidPolys are declared because they are properties
	// of a Layer per spec.md §3, but no pass fills them: the pipeline
	// keeps accepted and forward-annotated polygons in its own per-layer
	// maps (arcoverhang.Processor, validate.AnnotateForward).
	OldPolys   []any
	ValidPolys []any
}

// Document is the tokenizer's full output: the raw settings table and
// the parsed layers.
type Document struct {
	Dialect  dialect.Dialect
	Settings map[string]string
	Layers   []Layer
	// PreludeLines are every line before the first ";LAYER_CHANGE"
	// (including the settings block) in original order.
	PreludeLines []string
}

// Tokenize splits lines into a settings table and a list of Layers.
// If lines contains no ";LAYER_CHANGE" token, it returns zero layers
// (spec.md §8 scenario 1).
func Tokenize(lines []string) (Document, error) {
	d, detected := dialect.Detect(lines)
	doc := Document{Dialect: d}

	settings := map[string]string{}
	if detected {
		settings = parseSettingsBlock(lines, d)
	}
	doc.Settings = settings

	layerBreaks := []int{}
	for i, line := range lines {
		if strings.TrimSpace(line) == ";LAYER_CHANGE" {
			layerBreaks = append(layerBreaks, i)
		}
	}
	if len(layerBreaks) == 0 {
		doc.PreludeLines = lines
		return doc, nil
	}

	doc.PreludeLines = lines[:layerBreaks[0]]

	var lastFan float64
	for li := 0; li < len(layerBreaks); li++ {
		start := layerBreaks[li] + 1
		end := len(lines)
		if li+1 < len(layerBreaks) {
			end = layerBreaks[li+1]
		}
		layerLines := lines[start:end]
		layer := buildLayer(li, start, end, layerLines, lastFan, d)
		lastFan = layer.FanSpeed
		doc.Layers = append(doc.Layers, layer)
	}

	return doc, nil
}

func parseSettingsBlock(lines []string, d dialect.Dialect) map[string]string {
	settings := map[string]string{}
	inBlock := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == d.BeginMarker {
			inBlock = true
			continue
		}
		if trimmed == d.EndMarker {
			break
		}
		if !inBlock {
			continue
		}
		body := strings.TrimPrefix(trimmed, ";")
		body = strings.TrimSpace(body)
		idx := strings.Index(body, "=")
		if idx < 0 {
			continue
		}
		key := strings.TrimSpace(body[:idx])
		val := strings.TrimSpace(body[idx+1:])
		settings[key] = val
	}
	return settings
}

// buildLayer extracts Z, slice thickness, fan speed, and features from
// a layer's raw lines (spec.md §4.B). d drives classifyFeatureTag's
// literal-to-canonical lookup; an undetected dialect (zero value) falls
// back to PrusaSlicer's tag text, the most common case for input that
// has had its settings block stripped.
func buildLayer(index, startLine, endLine int, lines []string, inheritedFan float64, d dialect.Dialect) Layer {
	if d.FeatureTagMap == nil {
		d = dialect.PrusaSlicer
	}
	layer := Layer{
		Index:         index,
		FanSpeed:      inheritedFan,
		StartFanSpeed: inheritedFan,
		StartLine:     startLine,
		EndLine:       endLine,
		RawLines:      lines,
	}

	zFound := false
	curKind := FeatureOther
	var curLines []string
	curStart := startLine
	inWipe := false
	sawMarker := false

	// The layer's leading run - its ";Z:"/"G1 Z..."/";HEIGHT:" preamble,
	// before any real ";TYPE:" marker - is flushed as a FeatureOther
	// feature like any other run so its lines still stream through
	// ApplyLayer, but with HasMarker false: its StartLine is its own
	// first line, not a marker, and callers must not assume a marker
	// line precedes it the way they can for every later feature.
	flush := func() {
		if len(curLines) > 0 {
			layer.Features = append(layer.Features, Feature{
				Kind:      curKind,
				Lines:     curLines,
				StartLine: curStart,
				HasMarker: sawMarker,
			})
		}
		curLines = nil
	}

	for i, raw := range lines {
		abs := startLine + i
		trimmed := strings.TrimSpace(raw)

		if strings.HasPrefix(trimmed, ";TYPE:") {
			flush()
			curKind = classifyFeatureTag(d, trimmed)
			curStart = abs
			sawMarker = true
			continue
		}
		if trimmed == ";WIPE_START" {
			inWipe = true
		}
		if trimmed == ";WIPE_END" {
			inWipe = false
		}
		if inWipe {
			curLines = append(curLines, raw)
			continue
		}

		if !zFound && strings.HasPrefix(trimmed, "G1") && strings.Contains(trimmed, "Z") {
			if z, ok := extractFloatParam(trimmed, 'Z'); ok {
				layer.Z = z
				zFound = true
			}
		}
		if strings.HasPrefix(trimmed, ";HEIGHT:") {
			if v, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimPrefix(trimmed, ";HEIGHT:")), 64); err == nil {
				layer.SliceThickness = v
			}
		}
		if strings.HasPrefix(trimmed, "M106") {
			if s, ok := extractFloatParam(trimmed, 'S'); ok {
				layer.FanSpeed = s
			}
		}
		if strings.HasPrefix(trimmed, "M107") {
			layer.FanSpeed = 0
		}

		curLines = append(curLines, raw)
	}
	flush()

	return layer
}

// classifyFeatureTag matches markerLine (e.g. ";TYPE:Internal solid
// infill") against d's FeatureTagMap, so each dialect's own literal
// marker text drives classification instead of a hardcoded substring
// guess that only happens to fit one dialect.
func classifyFeatureTag(d dialect.Dialect, markerLine string) FeatureKind {
	body := strings.TrimPrefix(markerLine, ";")
	for _, kind := range []FeatureKind{FeatureExternalPerimeter, FeatureOverhangPerimeter, FeatureBridgeInfill, FeatureSolidInfill} {
		if tag, ok := d.FeatureTag(string(kind)); ok && body == tag {
			return kind
		}
	}
	return FeatureOther
}

// extractFloatParam reads the numeric value following letter in a
// G-code line, e.g. extractFloatParam("G1 X10 Y20 Z0.3", 'Z') -> 0.3.
func extractFloatParam(line string, letter byte) (float64, bool) {
	fields := strings.Fields(line)
	for _, f := range fields {
		if len(f) > 1 && f[0] == letter {
			if v, err := strconv.ParseFloat(f[1:], 64); err == nil {
				return v, true
			}
		}
	}
	return 0, false
}
