package lora

import "strings"

// Entry is one LoRA application: a path plus model and CLIP strengths.
type Entry struct {
	Path          string  `json:"path"`
	ModelStrength float64 `json:"model_strength"`
	ClipStrength  float64 `json:"clip_strength"`
}

// Stack is an ordered list of LoRA applications.
type Stack []Entry

// key is the case-insensitive identity of an entry, its stripped basename.
func (e Entry) key() string {
	return strings.ToLower(StripExtension(BaseName(e.Path)))
}

// Merge combines a saved preset stack with a connected stack.  Preset
// entries come first; connected entries already present by name are
// dropped, as are duplicates within the connected stack itself.
func Merge(preset, connected Stack) Stack {
	if len(connected) == 0 {
		return append(Stack{}, preset...)
	}
	if len(preset) == 0 {
		return append(Stack{}, connected...)
	}

	seen := make(map[string]bool, len(preset))
	merged := append(Stack{}, preset...)
	for _, e := range preset {
		seen[e.key()] = true
	}
	for _, e := range connected {
		if seen[e.key()] {
			continue
		}
		seen[e.key()] = true
		merged = append(merged, e)
	}
	return merged
}

// Toggle is the per-LoRA state the editor stores alongside a preset:
// whether the entry is applied and an optional strength override.
type Toggle struct {
	Name     string   `json:"name"`
	Active   bool     `json:"active"`
	Strength *float64 `json:"strength,omitempty"`
	// ClipStrength is only used when building a stack from toggles alone.
	ClipStrength *float64 `json:"clip_strength,omitempty"`
}

// Apply filters a stack by toggle state, scales strengths, and resolves
// every surviving path against the registry.  Entries that cannot be
// resolved locally are dropped.
func Apply(stack Stack, toggles []Toggle, reg *Registry) Stack {
	if len(stack) == 0 {
		return Stack{}
	}

	byName := make(map[string]Toggle, len(toggles))
	for _, t := range toggles {
		byName[strings.ToLower(t.Name)] = t
	}

	out := Stack{}
	for _, e := range stack {
		model, clip := e.ModelStrength, e.ClipStrength
		if t, ok := byName[e.key()]; ok {
			if !t.Active {
				continue
			}
			if t.Strength != nil {
				// Scale CLIP strength proportionally to the override.
				ratio := 1.0
				if model != 0 {
					ratio = *t.Strength / model
				}
				model = *t.Strength
				clip = clip * ratio
			}
		}
		resolved, found := reg.ResolvePath(e.Path)
		if !found {
			continue
		}
		out = append(out, Entry{Path: resolved, ModelStrength: model, ClipStrength: clip})
	}
	return out
}

// BuildFromToggles reconstructs a stack from saved toggle data alone,
// resolving names at call time.  Inactive and unresolvable entries are
// skipped; the names that could not be found come back for reporting.
func BuildFromToggles(toggles []Toggle, reg *Registry) (Stack, []string) {
	stack := Stack{}
	var missing []string
	for _, t := range toggles {
		if t.Name == "" || !t.Active {
			continue
		}
		path, found := reg.Resolve(t.Name)
		if !found {
			missing = append(missing, t.Name)
			continue
		}
		model := 1.0
		if t.Strength != nil {
			model = *t.Strength
		}
		clip := model
		if t.ClipStrength != nil {
			clip = *t.ClipStrength
		}
		stack = append(stack, Entry{Path: path, ModelStrength: model, ClipStrength: clip})
	}
	return stack, missing
}

// SplitTriggerWords parses a comma-separated trigger word string.
func SplitTriggerWords(s string) []string {
	var out []string
	for _, w := range strings.Split(s, ",") {
		if w = strings.TrimSpace(w); w != "" {
			out = append(out, w)
		}
	}
	return out
}

// AppendTriggerWords appends trigger words to a prompt, terminating the
// prompt with a period first when it does not already end in punctuation.
func AppendTriggerWords(prompt string, words []string) string {
	if len(words) == 0 {
		return prompt
	}
	prompt = strings.TrimRight(prompt, " \t\n")
	if prompt == "" {
		return strings.Join(words, ", ")
	}
	if !strings.HasSuffix(prompt, ",") && !strings.HasSuffix(prompt, ".") {
		prompt += "."
	}
	return prompt + " " + strings.Join(words, ", ")
}
