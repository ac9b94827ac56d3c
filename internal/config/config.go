// Package config provides the typed configuration record this module
// reads from a toolpath's settings block, replacing the runtime
// key->value dictionary the original script carried (spec.md §9 Design
// Note "Runtime-flexible settings dictionary").
package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aligator/arcoverhang/internal/dialect"
)

// Parameters holds the tunables spec.md names, split into the arc/fill
// geometry group, the overhang-validation group, the Hilbert/cooling
// group, and the motion/extrusion group, plus the slicer-reported
// values read directly off the settings block. There is no
// AllowedSpaceForArcs field: the allowed-region polygon is carried by
// validate.LayerGeometry.AllowedSpace, which Processor leaves nil.
type Parameters struct {
	// Geometry / arc generation (spec.md §4.F, §4.G)
	NozzleDiameter               float64
	ArcWidth                     float64
	ArcCenterOffset              float64
	RMax                         float64
	MinStartArcs                 int
	MinDistanceFromPerimeter     float64
	ArcPointsPerMillimeter       float64
	UseLeastAmountOfCenterPoints bool
	AllowedArcRetries            int
	SafetyBreakMaxArcNumber      int
	WarnBelowThisFillingPercentage float64
	CornerImportanceMultiplier   float64

	// Overhang validation (spec.md §4.D)
	MinArea             float64
	SpecialCoolingZdist float64

	// Hilbert / cooling (spec.md §4.H, §4.J)
	HilbertFillingPercentage        float64
	AboveArcsInfillPrintSpeed       float64
	AboveArcsPerimeterPrintSpeed    float64
	AboveArcsFanSpeed               int
	ArcFanSpeed                     int
	ApplyAboveFanSpeedToWholeLayer  bool
	CoolingSettingDetectionDistance float64

	// Motion / extrusion (spec.md §4.I)
	RetractLength                    float64
	RetractSpeed                     float64
	ExtendArcDist                    float64
	ArcSlowDownBelowThisDuration     float64
	ArcMinPrintSpeed                 float64
	ArcPrintSpeed                    float64
	GCodeArcPtMinDist                float64
	ArcExtrusionMultiplier           float64
	HilbertInfillExtrusionMultiplier float64
	ArcTravelFeedRate                float64
	TimeLapseEveryNArcs              int
	SecondsBetweenTravels            float64
	InfillSpeed                      float64

	// Slicer-reported, read directly off the settings block.
	UseRelativeEDistances     bool
	UseVolumetricExtrusion    bool
	ExtrusionWidth            float64
	PerimeterExtrusionWidth   float64
	SolidInfillExtrusionWidth float64
	InfillExtrusionWidth      float64
	LayerHeight               float64
	FilamentDiameter          float64
	NozzleDiameterSlicer      float64
	OverhangsEnabled          bool
	BridgeSpeed               float64
	InfillFirst               bool
	ExternalPerimetersFirst   bool
	AvoidCrossingPerimeters   bool
}

// Defaults returns the parameter set with the arc-overhang-specific
// defaults used by the original script, before any settings-block
// overrides are applied.
func Defaults() Parameters {
	return Parameters{
		NozzleDiameter:                  0.4,
		ArcWidth:                        0.4,
		ArcCenterOffset:                 2,
		RMax:                            50,
		MinStartArcs:                    3,
		MinDistanceFromPerimeter:        0.4 * 2,
		ArcPointsPerMillimeter:          4,
		UseLeastAmountOfCenterPoints:    false,
		AllowedArcRetries:               3,
		SafetyBreakMaxArcNumber:         2000,
		WarnBelowThisFillingPercentage:  90,
		CornerImportanceMultiplier:      0.2,
		MinArea:                        5,
		SpecialCoolingZdist:            3,
		HilbertFillingPercentage:       100,
		AboveArcsInfillPrintSpeed:      40,
		AboveArcsPerimeterPrintSpeed:   25,
		AboveArcsFanSpeed:              255,
		ArcFanSpeed:                    255,
		ApplyAboveFanSpeedToWholeLayer: false,
		CoolingSettingDetectionDistance: 3,
		RetractLength:                  0.8,
		RetractSpeed:                   40,
		ExtendArcDist:                  0.5,
		ArcSlowDownBelowThisDuration:   3,
		ArcMinPrintSpeed:               60,
		ArcPrintSpeed:                  120,
		GCodeArcPtMinDist:              0.1,
		ArcExtrusionMultiplier:         1.35,
		HilbertInfillExtrusionMultiplier: 1.0,
		ArcTravelFeedRate:              150 * 60,
		TimeLapseEveryNArcs:            0,
		SecondsBetweenTravels:          3,
		InfillSpeed:                    80,
	}
}

// FirstLiteral collapses a tuple/list-shaped settings value ("a,b,c" or
// "a;b;c") to its first element, matching spec.md §4.B's "tuple/list
// values collapsing to their first element".
func FirstLiteral(raw string) string {
	raw = strings.TrimSpace(raw)
	for _, sep := range []string{",", ";", "x"} {
		if idx := strings.Index(raw, sep); idx > 0 {
			return strings.TrimSpace(raw[:idx])
		}
	}
	return raw
}

// SettingsTable is the raw dialect-keyed table produced by the
// tokenizer (spec.md §4.B item (i)).
type SettingsTable map[string]string

// floatField reads a float setting with a fallback.
func floatField(t SettingsTable, d dialect.Dialect, key string, fallback float64) float64 {
	if raw, ok := lookup(t, d, key); ok {
		if v, err := strconv.ParseFloat(FirstLiteral(raw), 64); err == nil {
			return v
		}
	}
	return fallback
}

func boolField(t SettingsTable, d dialect.Dialect, key string, fallback bool) bool {
	if raw, ok := lookup(t, d, key); ok {
		v := FirstLiteral(raw)
		return v == "1" || strings.EqualFold(v, "true")
	}
	return fallback
}

func lookup(t SettingsTable, d dialect.Dialect, canonicalKey string) (string, bool) {
	// A settings table is keyed by the dialect-literal name; translate
	// canonical -> dialect by scanning the reverse map once. Dialects
	// in this build have small tables so a linear scan is fine.
	for dialectKey, canon := range d.SettingsKeyMap {
		if canon == canonicalKey {
			if v, ok := t[dialectKey]; ok {
				return v, true
			}
		}
	}
	if v, ok := t[canonicalKey]; ok {
		return v, true
	}
	return "", false
}

// Parse populates Parameters' slicer-reported fields from a settings
// table extracted by the tokenizer. The arc-overhang-specific fields
// keep their Defaults() values, except NozzleDiameter, ArcWidth and
// MinDistanceFromPerimeter, which are derived from the slicer's
// nozzle_diameter whenever it is positive.
func Parse(t SettingsTable, d dialect.Dialect) Parameters {
	p := Defaults()

	p.ExtrusionWidth = floatField(t, d, dialect.KeyExtrusionWidth, 0.45)
	p.PerimeterExtrusionWidth = floatField(t, d, dialect.KeyPerimeterExtrusionWidth, p.ExtrusionWidth)
	p.SolidInfillExtrusionWidth = floatField(t, d, dialect.KeySolidInfillExtrusionWidth, p.ExtrusionWidth)
	p.InfillExtrusionWidth = floatField(t, d, dialect.KeyInfillExtrusionWidth, p.ExtrusionWidth)
	p.LayerHeight = floatField(t, d, dialect.KeyLayerHeight, 0.2)
	p.FilamentDiameter = floatField(t, d, dialect.KeyFilamentDiameter, 1.75)
	p.NozzleDiameterSlicer = floatField(t, d, dialect.KeyNozzleDiameter, p.NozzleDiameter)
	p.BridgeSpeed = floatField(t, d, dialect.KeyBridgeSpeed, 20)
	p.RetractLength = floatField(t, d, dialect.KeyRetractLength, p.RetractLength)
	p.RetractSpeed = floatField(t, d, dialect.KeyRetractSpeed, p.RetractSpeed)

	p.OverhangsEnabled = boolField(t, d, dialect.KeyOverhangs, true)
	p.InfillFirst = boolField(t, d, dialect.KeyInfillFirst, false)
	p.ExternalPerimetersFirst = boolField(t, d, dialect.KeyExternalPerimetersFirst, false)
	if raw, ok := lookup(t, d, dialect.KeyWallSequence); ok && FirstLiteral(raw) == dialect.WallSequenceOuterFirst {
		p.ExternalPerimetersFirst = true
	}
	p.AvoidCrossingPerimeters = boolField(t, d, dialect.KeyAvoidCrossingPerimeters, true)
	p.UseRelativeEDistances = boolField(t, d, dialect.KeyUseRelativeEDistances, true)
	p.UseVolumetricExtrusion = boolField(t, d, dialect.KeyUseVolumetricExtrusion, false)

	if p.NozzleDiameterSlicer > 0 {
		p.NozzleDiameter = p.NozzleDiameterSlicer
		p.ArcWidth = p.NozzleDiameterSlicer
		p.MinDistanceFromPerimeter = p.NozzleDiameterSlicer * 2
	}

	return p
}

// CheckRequired enforces spec.md §6's required settings, returning a
// fatal error listing every violation if any fail.
func CheckRequired(p Parameters) error {
	var problems []string
	if !p.UseRelativeEDistances {
		problems = append(problems, "use_relative_e_distances must be enabled")
	}
	if p.PerimeterExtrusionWidth <= 0 {
		problems = append(problems, "perimeter_extrusion_width must be nonzero")
	}
	if p.SolidInfillExtrusionWidth <= 0 {
		problems = append(problems, "solid_infill_extrusion_width must be nonzero")
	}
	if p.ExtrusionWidth <= 0 {
		problems = append(problems, "extrusion_width must be nonzero")
	}
	if !p.OverhangsEnabled {
		problems = append(problems, "overhang detection must be enabled")
	}
	if len(problems) > 0 {
		return fmt.Errorf("incompatible settings: %s", strings.Join(problems, "; "))
	}
	return nil
}

// WarnedSettings returns advisory messages for settings that are
// accepted but worth flagging, per spec.md §6.
func WarnedSettings(p Parameters) []string {
	var warnings []string
	if p.BridgeSpeed > 5 {
		warnings = append(warnings, fmt.Sprintf("bridge_speed %.1f mm/s is above the recommended 5 mm/s", p.BridgeSpeed))
	}
	if p.InfillFirst {
		warnings = append(warnings, "infill_before_perimeter is enabled")
	}
	if p.ExternalPerimetersFirst {
		warnings = append(warnings, "external_perimeter_first is enabled")
	}
	if !p.AvoidCrossingPerimeters {
		warnings = append(warnings, "travel may cross perimeters (avoid_crossing_perimeters disabled)")
	}
	return warnings
}
