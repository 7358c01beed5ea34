package models

import "testing"

func TestBot_ConfigAccessors(t *testing.T) {
	b := &Bot{Config: map[string]any{
		"zone_pips":  float64(50),
		"autotrade":  true,
		"sltp":       "pips",
		"lot_steps":  []any{float64(0.01), float64(0.02), float64(0.05)},
	}}

	if got := b.ConfigFloat("zone_pips", -1); got != 50 {
		t.Errorf("expected 50, got %v", got)
	}
	if got := b.ConfigFloat("missing", -1); got != -1 {
		t.Errorf("expected default -1 for missing key, got %v", got)
	}
	if !b.ConfigBool("autotrade", false) {
		t.Error("expected autotrade true")
	}
	if got := b.ConfigString("sltp", ""); got != "pips" {
		t.Errorf("expected pips, got %v", got)
	}

	steps := b.ConfigFloatSlice("lot_steps", nil)
	if len(steps) != 3 || steps[2] != 0.05 {
		t.Fatalf("unexpected lot steps: %v", steps)
	}

	if got := b.ConfigFloatSlice("missing", []float64{0.01}); len(got) != 1 {
		t.Errorf("expected fallback default for missing key, got %v", got)
	}
}
