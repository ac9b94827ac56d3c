// Package dialect provides the per-slicer-dialect lookup tables spec.md
// §6 and §9 call for: a settings-key map (dialect key -> canonical key)
// and a feature-tag map (canonical tag -> dialect literal), plus
// detection of which dialect produced a given toolpath file.
//
// New dialects are added by extending the tables only (spec.md §9
// "Polymorphism over slicer dialects").
package dialect

import "strings"

// Canonical feature/marker tags the rest of the pipeline reads.
const (
	TagExternalPerimeter = "external_perimeter"
	TagOverhangPerimeter = "overhang_perimeter"
	TagBridgeInfill      = "bridge_infill"
	TagSolidInfill       = "solid_infill"
	TagWipeStart         = "wipe_start"
	TagWipeEnd           = "wipe_end"
)

// Canonical setting keys the rest of the pipeline reads.
const (
	KeyAvoidCrossingPerimeters  = "avoid_crossing_perimeters"
	KeyBridgeSpeed              = "bridge_speed"
	KeyExternalPerimetersFirst  = "external_perimeters_first"
	KeyExtrusionWidth           = "extrusion_width"
	KeyFilamentDiameter         = "filament_diameter"
	KeyInfillExtrusionWidth     = "infill_extrusion_width"
	KeyInfillFirst              = "infill_first"
	KeyLayerHeight              = "layer_height"
	KeyNozzleDiameter           = "nozzle_diameter"
	KeyOverhangs                = "overhangs"
	KeyPerimeterExtrusionWidth  = "perimeter_extrusion_width"
	KeyRetractLength            = "retract_length"
	KeyRetractSpeed             = "retract_speed"
	KeySolidInfillExtrusionWidth = "solid_infill_extrusion_width"
	KeyTravelSpeed              = "travel_speed"
	KeyUseRelativeEDistances    = "use_relative_e_distances"
	KeyUseVolumetricExtrusion   = "use_volumetric_e"
	// KeyWallSequence is Orca/Bambu-only: a string setting ("outer
	// wall/inner wall" vs "inner wall/outer wall") rather than a
	// boolean, read alongside KeyExternalPerimetersFirst instead of
	// through it (config.Parse).
	KeyWallSequence = "wall_sequence"
)

// WallSequenceOuterFirst is the wall_sequence literal meaning external
// perimeters print before inner perimeters, the Orca/Bambu equivalent of
// PrusaSlicer's boolean external_perimeters_first=1.
const WallSequenceOuterFirst = "outer wall/inner wall"

// Dialect bundles the two lookup tables spec.md §6 names, plus the
// settings-block delimiters used for detection and extraction.
type Dialect struct {
	Name string

	// BeginMarker / EndMarker bound the settings block in the file.
	BeginMarker string
	EndMarker   string

	// SettingsKeyMap maps this dialect's literal setting key to the
	// canonical key the rest of the pipeline reads.
	SettingsKeyMap map[string]string

	// FeatureTagMap maps a canonical feature/marker tag to this
	// dialect's literal comment text (without the leading ';').
	FeatureTagMap map[string]string

	// LayerChangeMarker is the token that splits the toolpath into
	// layers (spec.md §4.B); ";LAYER_CHANGE" in every dialect seen so
	// far, but kept per-dialect for extensibility.
	LayerChangeMarker string

	// FeatureMarkerPrefix is the comment prefix introducing a feature
	// (";TYPE:" in every dialect seen so far).
	FeatureMarkerPrefix string

	// HeightCommentPrefix introduces the declared slice thickness for
	// a layer (";HEIGHT:").
	HeightCommentPrefix string
}

// CanonicalKey translates a dialect-specific settings key to its
// canonical name, or returns the input unchanged if this dialect has no
// explicit mapping (identity fallback, since most keys are already
// canonical across dialects).
func (d Dialect) CanonicalKey(dialectKey string) string {
	if canon, ok := d.SettingsKeyMap[dialectKey]; ok {
		return canon
	}
	return dialectKey
}

// FeatureTag returns the dialect-literal text (without leading ';')
// for a canonical feature tag.
func (d Dialect) FeatureTag(canonical string) (string, bool) {
	v, ok := d.FeatureTagMap[canonical]
	return v, ok
}

// PrusaSlicer is the dialect for PrusaSlicer / SuperSlicer-derived
// output, matching the key names the original script's
// _SLICER_SETTINGS_MAP already treats as canonical for PrusaSlicer.
var PrusaSlicer = Dialect{
	Name:                "PrusaSlicer",
	BeginMarker:         "; prusaslicer_config = begin",
	EndMarker:           "; prusaslicer_config = end",
	LayerChangeMarker:   ";LAYER_CHANGE",
	FeatureMarkerPrefix: ";TYPE:",
	HeightCommentPrefix: ";HEIGHT:",
	SettingsKeyMap:      map[string]string{}, // already canonical
	FeatureTagMap: map[string]string{
		TagExternalPerimeter: "TYPE:External perimeter",
		TagOverhangPerimeter: "TYPE:Overhang perimeter",
		TagBridgeInfill:      "TYPE:Bridge infill",
		TagSolidInfill:       "TYPE:Solid infill",
		TagWipeStart:         "WIPE_START",
		TagWipeEnd:           "WIPE_END",
	},
}

// OrcaSlicer is the dialect for OrcaSlicer / BambuStudio-derived output
// (spec.md §6's second begin-of-settings marker), which renames a
// handful of settings keys relative to PrusaSlicer.
var OrcaSlicer = Dialect{
	Name:                "OrcaSlicer",
	BeginMarker:         "; CONFIG_BLOCK_START",
	EndMarker:           "; CONFIG_BLOCK_END",
	LayerChangeMarker:   ";LAYER_CHANGE",
	FeatureMarkerPrefix: ";TYPE:",
	HeightCommentPrefix: ";HEIGHT:",
	SettingsKeyMap: map[string]string{
		"line_width":           KeyExtrusionWidth,
		"reduce_crossing_wall": KeyAvoidCrossingPerimeters,
		"outer_wall_speed":     "external_perimeter_speed",
		"is_infill_first":      KeyInfillFirst,
		// wall_sequence is read as-is (identity fallback, matching the
		// original script's "STORE AS DEFAULT NAME" comment) - Orca has
		// no boolean external_perimeters_first of its own.
	},
	FeatureTagMap: map[string]string{
		TagExternalPerimeter: "TYPE:Outer wall",
		TagOverhangPerimeter: "TYPE:Overhang wall",
		TagBridgeInfill:      "TYPE:Bridge",
		TagSolidInfill:       "TYPE:Internal solid infill",
		TagWipeStart:         "WIPE_START",
		TagWipeEnd:           "WIPE_END",
	},
}

// All is the set of dialects this build supports; new dialects extend
// this slice only (spec.md §9).
var All = []Dialect{PrusaSlicer, OrcaSlicer}

// Detect scans lines for a dialect's begin-of-settings marker and
// returns the matching Dialect.
func Detect(lines []string) (Dialect, bool) {
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		for _, d := range All {
			if trimmed == d.BeginMarker {
				return d, true
			}
		}
	}
	return Dialect{}, false
}
