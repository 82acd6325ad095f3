package lora

import "testing"

var availableLoras = []string{
	"DR34LAY_I2V_14B_HIGH_V2.safetensors",
	"DR34LAY_T2V_14B_HIGH_V2.safetensors",
	"DR34LAY_I2V_A14B_LOW_V2.safetensors",
	"SomeOther_I2V_LoRA.safetensors",
	"ExactMatch.safetensors",
	"MyLora_WAN_2_2_I2V_Style.safetensors",
	"MyLora_Style.safetensors",
	"CoolStyle_I2V (1).safetensors",
	"CoolStyle_I2V.safetensors",
}

func TestFuzzyMatch(t *testing.T) {
	cases := []struct {
		name   string
		search string
		want   string
		found  bool
	}{
		{"renamed missing variant tokens", "DR34LAY_HIGH_V2", "DR34LAY_I2V_14B_HIGH_V2.safetensors", true},
		{"renamed with extension", "DR34LAY_HIGH_V2.safetensors", "DR34LAY_I2V_14B_HIGH_V2.safetensors", true},
		{"renamed missing a14b", "DR34LAY_LOW_V2", "DR34LAY_I2V_A14B_LOW_V2.safetensors", true},
		{"prefers i2v variant", "DR34LAY_I2V_HIGH_V2", "DR34LAY_I2V_14B_HIGH_V2.safetensors", true},
		{"prefers t2v variant", "DR34LAY_T2V_HIGH_V2", "DR34LAY_T2V_14B_HIGH_V2.safetensors", true},
		{"wan version token removed", "MyLora_Style", "MyLora_WAN_2_2_I2V_Style.safetensors", true},
		{"parenthetical suffix ignored", "CoolStyle_I2V", "CoolStyle_I2V (1).safetensors", true},
		{"exact name", "ExactMatch", "ExactMatch.safetensors", true},
		{"no match", "NonExistent_LoRA", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, found := FuzzyMatch(tc.search, availableLoras)
			if found != tc.found {
				t.Fatalf("FuzzyMatch(%q) found = %v, want %v", tc.search, found, tc.found)
			}
			if got != tc.want {
				t.Errorf("FuzzyMatch(%q) = %q, want %q", tc.search, got, tc.want)
			}
		})
	}
}

func TestStripExtension(t *testing.T) {
	cases := []struct{ in, want string }{
		{"style.safetensors", "style"},
		{"style.SafeTensors", "style"},
		{"checkpoint.ckpt", "checkpoint"},
		{"my.lora.v2", "my.lora.v2"},
		{"my.lora.v2.pt", "my.lora.v2"},
		{"noext", "noext"},
	}
	for _, tc := range cases {
		if got := StripExtension(tc.in); got != tc.want {
			t.Errorf("StripExtension(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestBaseName(t *testing.T) {
	if got := BaseName(`wan\styles\glow.safetensors`); got != "glow.safetensors" {
		t.Errorf("backslash path base = %q", got)
	}
	if got := BaseName("wan/styles/glow.safetensors"); got != "glow.safetensors" {
		t.Errorf("slash path base = %q", got)
	}
}

func TestFuzzyMatchEmptyAfterNormalization(t *testing.T) {
	// A name consisting only of removable tokens cannot be matched.
	if _, found := FuzzyMatch("i2v_14b", availableLoras); found {
		t.Fatal("expected no match for token-only name")
	}
}
