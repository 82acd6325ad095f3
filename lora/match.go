// Package lora resolves LoRA names against the files actually present on
// disk and manages LoRA stacks.  Names embedded in shared workflows rarely
// match local filenames exactly, so resolution falls back to token-based
// fuzzy matching tuned for the renaming habits of video-model LoRAs.
package lora

import (
	"regexp"
	"strings"
)

// Extensions lists the file extensions recognized as LoRA weights.
var Extensions = []string{".safetensors", ".ckpt", ".pt", ".bin", ".pth"}

// StripExtension removes a known LoRA extension.  Arbitrary dots in names
// are kept; "my.lora.v2" stays intact while "my.lora.v2.safetensors" loses
// only the suffix.
func StripExtension(name string) string {
	lower := strings.ToLower(name)
	for _, ext := range Extensions {
		if strings.HasSuffix(lower, ext) {
			return name[:len(name)-len(ext)]
		}
	}
	return name
}

// BaseName returns the final path element, accepting either separator since
// stack entries may have been written on another OS.
func BaseName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}

// wanTokens are model-variant markers stripped before fuzzy comparison,
// longest first so shorter tokens cannot eat pieces of longer ones.
var wanTokens = []string{"wan_2_2", "wan22", "wan2.2", "20epoc", "a14b", "14b", "i2v", "t2v"}

var (
	parenRe     = regexp.MustCompile(`\s*\([^)]*\)`)
	separatorRe = regexp.MustCompile(`[_-]`)
	wanTokenRes = compileWanTokenRes()
)

func compileWanTokenRes() []*regexp.Regexp {
	res := make([]*regexp.Regexp, len(wanTokens))
	for i, tok := range wanTokens {
		res[i] = regexp.MustCompile(`(?:^|[_-])` + regexp.QuoteMeta(tok) + `(?:[_-]|$)`)
	}
	return res
}

// normalizeName lowercases, drops parenthetical suffixes like " (1)",
// removes variant tokens and splits on separators.
func normalizeName(name string) []string {
	lower := strings.ToLower(name)
	lower = parenRe.ReplaceAllString(lower, "")
	for _, re := range wanTokenRes {
		lower = re.ReplaceAllString(lower, "_")
	}
	var parts []string
	for _, p := range separatorRe.Split(lower, -1) {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// FuzzyMatch finds a file whose normalized name contains every normalized
// part of name.  Among several candidates it prefers ones sharing the
// original's i2v or t2v marker, then the one with fewest extra parts.
func FuzzyMatch(name string, files []string) (string, bool) {
	search := normalizeName(StripExtension(name))
	if len(search) == 0 {
		return "", false
	}
	searchSet := make(map[string]bool, len(search))
	for _, p := range search {
		searchSet[p] = true
	}

	type candidate struct {
		file  string
		base  string
		extra int
	}
	var candidates []candidate
	for _, f := range files {
		base := StripExtension(BaseName(f))
		fileSet := map[string]bool{}
		for _, p := range normalizeName(base) {
			fileSet[p] = true
		}
		subset := true
		for p := range searchSet {
			if !fileSet[p] {
				subset = false
				break
			}
		}
		if !subset {
			continue
		}
		extra := 0
		for p := range fileSet {
			if !searchSet[p] {
				extra++
			}
		}
		candidates = append(candidates, candidate{file: f, base: base, extra: extra})
	}
	if len(candidates) == 0 {
		return "", false
	}
	if len(candidates) == 1 {
		return candidates[0].file, true
	}

	nameLower := strings.ToLower(name)
	variant := ""
	if strings.Contains(nameLower, "i2v") {
		variant = "i2v"
	} else if strings.Contains(nameLower, "t2v") {
		variant = "t2v"
	}
	if variant != "" {
		var matching []candidate
		for _, c := range candidates {
			if strings.Contains(strings.ToLower(c.base), variant) {
				matching = append(matching, c)
			}
		}
		if len(matching) > 0 {
			candidates = matching
		}
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.extra < best.extra {
			best = c
		}
	}
	return best.file, true
}
