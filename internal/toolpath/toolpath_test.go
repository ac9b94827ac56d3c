package toolpath

import "testing"

func TestTokenizeNoLayerChangeYieldsNoLayers(t *testing.T) {
	lines := []string{"G28", "G1 X0 Y0 F3000", "M104 S200"}
	doc, err := Tokenize(lines)
	if err != nil {
		t.Fatalf("Tokenize() error = %v", err)
	}
	if len(doc.Layers) != 0 {
		t.Errorf("got %d layers, want 0", len(doc.Layers))
	}
	if len(doc.PreludeLines) != len(lines) {
		t.Errorf("PreludeLines = %d lines, want %d", len(doc.PreludeLines), len(lines))
	}
}

func TestTokenizeSplitsLayersAndFeatures(t *testing.T) {
	lines := []string{
		"; prusaslicer_config = begin",
		"; layer_height = 0.2",
		"; prusaslicer_config = end",
		";LAYER_CHANGE",
		";Z:0.2",
		"G1 Z0.2",
		";TYPE:External perimeter",
		"G1 X0 Y0 E1",
		"G1 X10 Y0 E2",
		";LAYER_CHANGE",
		";Z:0.4",
		"G1 Z0.4",
		";TYPE:Bridge infill",
		"G1 X0 Y0 E1",
	}
	doc, err := Tokenize(lines)
	if err != nil {
		t.Fatalf("Tokenize() error = %v", err)
	}
	if len(doc.Layers) != 2 {
		t.Fatalf("got %d layers, want 2", len(doc.Layers))
	}
	if doc.Layers[0].Index != 0 || doc.Layers[1].Index != 1 {
		t.Errorf("unexpected layer indices: %d, %d", doc.Layers[0].Index, doc.Layers[1].Index)
	}
	// Each layer's ";Z:"/"G1 Z..." preamble lands in its own leading
	// FeatureOther (HasMarker false) ahead of the real marked feature,
	// so the content survives the rewriter instead of being dropped.
	if len(doc.Layers[0].Features) != 2 ||
		doc.Layers[0].Features[0].Kind != FeatureOther || doc.Layers[0].Features[0].HasMarker ||
		doc.Layers[0].Features[1].Kind != FeatureExternalPerimeter || !doc.Layers[0].Features[1].HasMarker {
		t.Errorf("layer 0 features = %+v", doc.Layers[0].Features)
	}
	if len(doc.Layers[1].Features) != 2 ||
		doc.Layers[1].Features[0].Kind != FeatureOther ||
		doc.Layers[1].Features[1].Kind != FeatureBridgeInfill || !doc.Layers[1].Features[1].HasMarker {
		t.Errorf("layer 1 features = %+v", doc.Layers[1].Features)
	}
	if doc.Settings["layer_height"] != "0.2" {
		t.Errorf("settings[layer_height] = %q, want 0.2", doc.Settings["layer_height"])
	}
}

func TestFeatureStartLineIsAbsolute(t *testing.T) {
	lines := []string{
		";LAYER_CHANGE",
		"G1 Z0.2",
		";TYPE:External perimeter",
		"G1 X0 Y0 E1",
	}
	doc, err := Tokenize(lines)
	if err != nil {
		t.Fatalf("Tokenize() error = %v", err)
	}
	f := doc.Layers[0].Features[1]
	if f.StartLine != 2 || !f.HasMarker {
		t.Errorf("StartLine = %d, HasMarker = %v, want 2 (absolute index of ;TYPE: marker), true", f.StartLine, f.HasMarker)
	}
	preamble := doc.Layers[0].Features[0]
	if preamble.HasMarker || preamble.StartLine != 1 {
		t.Errorf("preamble feature = %+v, want StartLine 1, HasMarker false", preamble)
	}
}

// TestUnmarkedLayerKeepsAllLines checks that a layer with no
// ";TYPE:" marker at all still tokenizes into a single unmarked
// FeatureOther carrying every line, instead of losing content.
func TestUnmarkedLayerKeepsAllLines(t *testing.T) {
	lines := []string{
		";LAYER_CHANGE",
		";Z:0.2",
		"G1 Z0.2",
	}
	doc, err := Tokenize(lines)
	if err != nil {
		t.Fatalf("Tokenize() error = %v", err)
	}
	if len(doc.Layers) != 1 || len(doc.Layers[0].Features) != 1 {
		t.Fatalf("layers = %+v", doc.Layers)
	}
	f := doc.Layers[0].Features[0]
	if f.HasMarker || len(f.Lines) != 2 {
		t.Errorf("unmarked layer feature = %+v, want HasMarker=false with both lines kept", f)
	}
}
