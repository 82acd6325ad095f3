package metadata

import (
	"regexp"
	"strconv"
	"strings"
)

// LoraRef is one <lora:name:strength[:strength2]> tag lifted out of
// parameter text.  ClipStrength falls back to ModelStrength when the tag
// carries a single strength.
type LoraRef struct {
	Name          string  `json:"name"`
	ModelStrength float64 `json:"model_strength"`
	ClipStrength  float64 `json:"clip_strength"`
}

// Parameters is the structured decomposition of A1111 parameter text.
// Prompt has its LoRA tags stripped; the tags themselves land in Loras in
// their order of appearance.
type Parameters struct {
	Prompt         string    `json:"prompt"`
	NegativePrompt string    `json:"negative_prompt"`
	Loras          []LoraRef `json:"loras"`
}

var (
	loraTagRe      = regexp.MustCompile(`<lora:([^:>]+):([^:>]+)(?::([^>]+))?>`)
	negativeMarkRe = regexp.MustCompile(`(?i)negative prompt:`)
)

// ParseParameters decomposes A1111-convention parameter text: positive
// prompt, optional "Negative prompt:" section, optional "Steps: ..." tail
// with sampler settings, and inline LoRA tags in the positive section.
func ParseParameters(text string) *Parameters {
	positive := text
	remainder := ""
	if loc := negativeMarkRe.FindStringIndex(text); loc != nil {
		positive = text[:loc[0]]
		remainder = text[loc[1]:]
	}

	p := &Parameters{}
	for _, m := range loraTagRe.FindAllStringSubmatch(positive, -1) {
		ref := LoraRef{Name: strings.TrimSpace(m[1]), ModelStrength: 1.0}
		if v, err := strconv.ParseFloat(strings.TrimSpace(m[2]), 64); err == nil {
			ref.ModelStrength = v
		}
		ref.ClipStrength = ref.ModelStrength
		if m[3] != "" {
			if v, err := strconv.ParseFloat(strings.TrimSpace(m[3]), 64); err == nil {
				ref.ClipStrength = v
			}
		}
		p.Loras = append(p.Loras, ref)
	}

	p.Prompt = strings.TrimSpace(loraTagRe.ReplaceAllString(positive, ""))

	if remainder != "" {
		if idx := strings.Index(remainder, "Steps:"); idx >= 0 {
			p.NegativePrompt = strings.TrimSpace(remainder[:idx])
		} else {
			p.NegativePrompt = strings.TrimSpace(remainder)
		}
	}
	return p
}
