package dialect

import "testing"

func TestDetect(t *testing.T) {
	cases := []struct {
		name  string
		lines []string
		want  string
		ok    bool
	}{
		{"prusa", []string{"G1 X0 Y0", "; prusaslicer_config = begin"}, "PrusaSlicer", true},
		{"orca", []string{"; CONFIG_BLOCK_START", "layer_height = 0.2"}, "OrcaSlicer", true},
		{"none", []string{"G1 X0 Y0"}, "", false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			d, ok := Detect(c.lines)
			if ok != c.ok {
				t.Fatalf("Detect() ok = %v, want %v", ok, c.ok)
			}
			if ok && d.Name != c.want {
				t.Errorf("Detect() = %v, want %v", d.Name, c.want)
			}
		})
	}
}

func TestCanonicalKeyFallsBackToIdentity(t *testing.T) {
	if got := PrusaSlicer.CanonicalKey("some_unmapped_key"); got != "some_unmapped_key" {
		t.Errorf("CanonicalKey fallback = %v, want identity", got)
	}
	if got := OrcaSlicer.CanonicalKey("line_width"); got != KeyExtrusionWidth {
		t.Errorf("CanonicalKey(line_width) = %v, want %v", got, KeyExtrusionWidth)
	}
}

func TestFeatureTag(t *testing.T) {
	tag, ok := PrusaSlicer.FeatureTag(TagBridgeInfill)
	if !ok || tag != "TYPE:Bridge infill" {
		t.Errorf("FeatureTag(bridge_infill) = %q, %v", tag, ok)
	}
	tag, ok = OrcaSlicer.FeatureTag(TagBridgeInfill)
	if !ok || tag != "TYPE:Bridge" {
		t.Errorf("FeatureTag(bridge_infill) for Orca = %q, %v", tag, ok)
	}
}
