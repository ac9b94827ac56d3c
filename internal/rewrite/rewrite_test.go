package rewrite

import (
	"strings"
	"testing"

	"github.com/aligator/arcoverhang/internal/config"
	"github.com/aligator/arcoverhang/internal/geom"
	"github.com/aligator/arcoverhang/internal/micro"
	"github.com/aligator/arcoverhang/internal/toolpath"
)

func buildTestLayer(t *testing.T, lines []string) toolpath.Layer {
	t.Helper()
	doc, err := toolpath.Tokenize(append([]string{";LAYER_CHANGE"}, lines...))
	if err != nil {
		t.Fatalf("Tokenize() error = %v", err)
	}
	if len(doc.Layers) != 1 {
		t.Fatalf("got %d layers, want 1", len(doc.Layers))
	}
	return doc.Layers[0]
}

// square10 is a 10x10mm square polygon covering (0,0)-(10,10).
func square10() geom.Polygon {
	return geom.Polygon{Outer: geom.Ring{
		micro.PointFromMM(0, 0),
		micro.PointFromMM(10, 0),
		micro.PointFromMM(10, 10),
		micro.PointFromMM(0, 10),
		micro.PointFromMM(0, 0),
	}}
}

// TestDeleteLinesAbsoluteNumbering pins spec.md §9's exportThisLine
// note: the deletion set must be keyed against the tokenizer's
// absolute 0-based numbering (the ";TYPE:" marker line itself included)
// with no separate renumbering pass that could shift it by one.
func TestDeleteLinesAbsoluteNumbering(t *testing.T) {
	lines := []string{
		";TYPE:Bridge infill",
		"G1 X1 Y1 E1",
		"G1 X9 Y1 E2",
		";TYPE:External perimeter",
		"G1 X0 Y0 E3",
	}
	layer := buildTestLayer(t, lines)
	p := config.Defaults()

	deleted := DeleteLines(layer, toolpath.FeatureBridgeInfill, []geom.Polygon{square10()}, nil, p)

	// layer.StartLine is 1 (index 0 is the ";LAYER_CHANGE" marker).
	markerAbs := layer.StartLine
	if !deleted[markerAbs] {
		t.Errorf("expected the bridge-infill ;TYPE: marker line (abs %d) to be deleted", markerAbs)
	}
	if deleted[markerAbs+3] {
		t.Errorf("expected the following ;TYPE: marker (abs %d) to survive", markerAbs+3)
	}
	for ln := markerAbs; ln < markerAbs+3; ln++ {
		if !deleted[ln] {
			t.Errorf("expected line %d (within the bridge-infill feature) to be deleted", ln)
		}
	}
}

func TestDeleteLinesPreservesFailedRegions(t *testing.T) {
	lines := []string{
		";TYPE:Bridge infill",
		"G1 X1 Y1 E1",
		"G1 X9 Y1 E2",
	}
	layer := buildTestLayer(t, lines)
	p := config.Defaults()

	deleted := DeleteLines(layer, toolpath.FeatureBridgeInfill, []geom.Polygon{square10()}, []geom.Polygon{square10()}, p)
	if len(deleted) != 0 {
		t.Errorf("expected no deletions when the region is also in preservedFailed, got %v", deleted)
	}
}

func TestApplyLayerNoChangesRoundTrips(t *testing.T) {
	lines := []string{
		";TYPE:External perimeter",
		"G1 X0 Y0 E1",
		"G1 X10 Y0 E2",
	}
	layer := buildTestLayer(t, lines)
	p := config.Defaults()

	out := ApplyLayer(layer, map[int]bool{}, Injection{ArcFeatureIdx: -1, HilbertFeatureIdx: -1}, p)

	joined := strings.Join(out, "\n")
	for _, l := range lines {
		if !strings.Contains(joined, l) {
			t.Errorf("expected output to contain %q, got:\n%s", l, joined)
		}
	}
}

// TestApplyLayerPreservesUnmarkedPreamble pins the off-by-one a review
// caught: a layer's leading, unmarked preamble (HasMarker false) must
// survive ApplyLayer even when the feature right after it is deleted -
// abs indices for the preamble's own lines must not be computed as if
// a marker line preceded them.
func TestApplyLayerPreservesUnmarkedPreamble(t *testing.T) {
	lines := []string{
		";Z:0.2",
		"G1 Z0.2",
		";TYPE:Bridge infill",
		"G1 X1 Y1 E1",
		"G1 X9 Y1 E2",
	}
	layer := buildTestLayer(t, lines)
	p := config.Defaults()

	deleted := DeleteLines(layer, toolpath.FeatureBridgeInfill, []geom.Polygon{square10()}, nil, p)

	out := ApplyLayer(layer, deleted, Injection{ArcFeatureIdx: -1, HilbertFeatureIdx: -1}, p)
	joined := strings.Join(out, "\n")

	if !strings.Contains(joined, "G1 Z0.2") {
		t.Errorf("expected preamble line %q to survive, got:\n%s", "G1 Z0.2", joined)
	}
	if strings.Contains(joined, "G1 X1 Y1 E1") {
		t.Errorf("expected deleted bridge-infill line to be gone, got:\n%s", joined)
	}
}

func TestFindLastXY(t *testing.T) {
	lines := []string{
		"G1 X5 Y5 E1",
		"G1 X6 Y6 E2",
		"G1 E-1",
	}
	xy, ok := FindLastXY(lines, len(lines))
	if !ok {
		t.Fatal("expected to find a preceding X/Y move")
	}
	if !strings.Contains(xy, "X6") || !strings.Contains(xy, "Y6") {
		t.Errorf("FindLastXY = %q, want the most recent X6/Y6 move", xy)
	}
}

func TestCoolingOverrideDetectsProximity(t *testing.T) {
	p := config.Defaults()
	p.CoolingSettingDetectionDistance = 1.0
	near := geom.Ring{micro.PointFromMM(10.2, 5)}
	far := geom.Ring{micro.PointFromMM(50, 50)}

	if !CoolingOverride(near, []geom.Polygon{square10()}, p) {
		t.Error("expected a point just outside the boundary to be in the cooling zone")
	}
	if CoolingOverride(far, []geom.Polygon{square10()}, p) {
		t.Error("expected a far point to not be in the cooling zone")
	}
}

