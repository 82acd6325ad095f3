package workflow

import (
	"encoding/json"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// PromptNode is one entry of the API-format prompt document.
type PromptNode struct {
	ClassType string                 `json:"class_type"`
	Inputs    map[string]interface{} `json:"inputs"`
}

// Result is everything harvested from a generation graph.  LorasA holds the
// first (high-noise) loader chain, LorasB the second (low-noise) one.
type Result struct {
	PositivePrompt string `json:"positive_prompt"`
	NegativePrompt string `json:"negative_prompt"`
	LorasA         []Lora `json:"loras_a"`
	LorasB         []Lora `json:"loras_b"`
}

var (
	loraTagRe    = regexp.MustCompile(`<lora:([^:>]+):([^:>]+)(?::([^>]+))?>`)
	multiSpaceRe = regexp.MustCompile(`\s+`)
)

var promptManagerTypes = map[string]bool{
	"PromptManager":         true,
	"PromptManagerAdvanced": true,
}

// ParseRaw decodes the raw JSON documents and parses them.  Either argument
// may be nil.
func ParseRaw(promptRaw, workflowRaw json.RawMessage) *Result {
	var prompt map[string]PromptNode
	if len(promptRaw) > 0 {
		// A malformed prompt document degrades to workflow-only parsing.
		_ = json.Unmarshal(promptRaw, &prompt)
	}
	var graph *Graph
	if len(workflowRaw) > 0 {
		var g Graph
		if err := json.Unmarshal(workflowRaw, &g); err == nil && len(g.Nodes) > 0 {
			graph = &g
		}
	}
	return Parse(prompt, graph)
}

// Parse harvests prompts and LoRA chains from a prompt document, a workflow
// graph, or both.  The graph supplies link topology for traversal and chain
// assignment; the prompt document supplies resolved text values.
func Parse(prompt map[string]PromptNode, graph *Graph) *Result {
	res := &Result{LorasA: []Lora{}, LorasB: []Lora{}}
	if len(prompt) == 0 && graph == nil {
		return res
	}

	var nodes map[int]*Node
	var links map[int]Link
	if graph != nil {
		nodes = graph.nodeMap()
		links = graph.linkMap()
	}

	data := prompt
	if len(data) == 0 && graph != nil {
		data = convertToPromptFormat(graph)
	}

	var positive, negative []string
	seenA := map[string]bool{}
	seenB := map[string]bool{}

	if graph != nil {
		for _, node := range graph.Nodes {
			switch {
			case clipEncodeTypes[node.Type]:
				isNegative := strings.Contains(strings.ToLower(node.Title), "negative")
				text := firstString(node.Widget, 10)
				for _, in := range node.Inputs {
					if in.Name == "text" && in.Link != nil {
						if link, ok := links[*in.Link]; ok {
							if t := traverseText(link.SourceNode, nodes, links, map[int]bool{}, maxTraversalDepth); t != "" {
								text = t
							}
						}
					}
				}
				if text != "" {
					if isNegative {
						negative = append(negative, text)
					} else {
						positive = append(positive, text)
					}
				}

			case promptManagerTypes[node.Type]:
				if s := firstString(node.Widget, 20); s != "" {
					positive = append(positive, s)
				}

			case node.Type == "PrimitiveStringMultiline":
				if s := firstString(node.Widget, 20); s != "" {
					if strings.Contains(strings.ToLower(node.Title), "negative") {
						negative = append(negative, s)
					} else {
						positive = append(positive, s)
					}
				}
			}
		}

		chains := collectChains(graph, nodes, links)
		assignChains(chains, &res.LorasA, &res.LorasB, seenA, seenB)
	}

	// API-format pass: text values here are already resolved, no traversal.
	for _, pn := range data {
		switch {
		case clipEncodeTypes[pn.ClassType], promptManagerTypes[pn.ClassType]:
			if text, ok := pn.Inputs["text"].(string); ok && text != "" {
				positive = append(positive, text)
			}
		case pn.ClassType == "LoraLoader" || pn.ClassType == "LoraLoaderModelOnly":
			name, _ := pn.Inputs["lora_name"].(string)
			if name == "" {
				continue
			}
			// Dedupe on the stripped name so entries already assigned from
			// a graph chain are not counted twice.
			short := stripExt(baseName(name))
			if seenA[name] || seenA[short] || seenB[short] {
				continue
			}
			seenA[short] = true
			model := toFloat(pn.Inputs["strength_model"], toFloat(pn.Inputs["strength"], 1.0))
			clip := toFloat(pn.Inputs["strength_clip"], model)
			res.LorasA = append(res.LorasA, Lora{
				Name:          stripExt(baseName(name)),
				Path:          name,
				ModelStrength: model,
				ClipStrength:  clip,
				Active:        true,
			})
		}
	}

	// Inline <lora:name:strength> tags count toward stack A.
	all := strings.Join(append(append([]string{}, positive...), negative...), " ")
	for _, m := range loraTagRe.FindAllStringSubmatch(all, -1) {
		name := strings.TrimSpace(m[1])
		if name == "" || seenA[name] {
			continue
		}
		seenA[name] = true
		model := toFloat(m[2], 1.0)
		clip := model
		if m[3] != "" {
			clip = toFloat(m[3], model)
		}
		res.LorasA = append(res.LorasA, Lora{
			Name:          name,
			ModelStrength: model,
			ClipStrength:  clip,
			Active:        true,
		})
	}

	res.PositivePrompt = longestCleaned(positive)
	res.NegativePrompt = longestCleaned(negative)
	return res
}

// collectChains finds every LoRA chain in the graph, first from model-input
// terminals and then from terminal stacker nodes.
func collectChains(g *Graph, nodes map[int]*Node, links map[int]Link) []chain {
	var chains []chain
	processed := map[int]bool{}

	for _, term := range findChainTerminals(g, nodes, links) {
		if processed[term.loraSourceID] {
			continue
		}
		processed[term.loraSourceID] = true
		loras, titles := collectModelChain(term.loraSourceID, nodes, links, map[int]bool{})
		if len(loras) > 0 {
			chains = append(chains, chain{
				sourceID:      term.loraSourceID,
				titles:        titles,
				terminalTitle: term.terminalTitle,
				loras:         loras,
			})
		}
	}

	// Stacker chains end at the stacker that feeds no other stacker.
	feeding := map[int]bool{}
	stackers := map[int]*Node{}
	for _, node := range g.Nodes {
		if stackerTypes[node.Type] {
			stackers[node.ID] = node
		}
	}
	for _, node := range g.Nodes {
		if !stackerTypes[node.Type] {
			continue
		}
		for _, in := range node.Inputs {
			if in.Name == "lora_stack" && in.Link != nil {
				if link, ok := links[*in.Link]; ok {
					if _, isStacker := stackers[link.SourceNode]; isStacker {
						feeding[link.SourceNode] = true
					}
				}
			}
		}
	}
	for _, node := range g.Nodes {
		if !stackerTypes[node.Type] || feeding[node.ID] || processed[node.ID] {
			continue
		}
		loras, titles := collectStackChain(node.ID, nodes, links, map[int]bool{})
		if len(loras) > 0 {
			chains = append(chains, chain{
				sourceID:      node.ID,
				titles:        titles,
				terminalTitle: node.Title,
				loras:         loras,
			})
		}
	}
	return chains
}

// assignChains routes each chain to stack A or B.  Titles mentioning "high"
// go to A and "low" to B; untitled chains go by order, first to A, second
// to B, the rest to A.
func assignChains(chains []chain, lorasA, lorasB *[]Lora, seenA, seenB map[string]bool) {
	sort.SliceStable(chains, func(i, j int) bool { return chains[i].sourceID < chains[j].sourceID })

	appendTo := func(dst *[]Lora, seen map[string]bool, loras []Lora) {
		for _, l := range loras {
			if seen[l.Name] {
				continue
			}
			seen[l.Name] = true
			*dst = append(*dst, l)
		}
	}

	for i, c := range chains {
		joined := strings.ToLower(strings.Join(append(append([]string{}, c.titles...), c.terminalTitle), " "))
		hasHigh := strings.Contains(joined, "high")
		hasLow := strings.Contains(joined, "low")
		switch {
		case hasHigh && !hasLow:
			appendTo(lorasA, seenA, c.loras)
		case hasLow && !hasHigh:
			appendTo(lorasB, seenB, c.loras)
		case i == 1:
			appendTo(lorasB, seenB, c.loras)
		default:
			appendTo(lorasA, seenA, c.loras)
		}
	}
}

// convertToPromptFormat fabricates an API-format document from a workflow
// graph, so prompt-less workflow files still yield text and LoRA values.
func convertToPromptFormat(g *Graph) map[string]PromptNode {
	out := make(map[string]PromptNode, len(g.Nodes))
	for _, node := range g.Nodes {
		inputs := map[string]interface{}{}
		switch {
		case node.Type == "CLIPTextEncode" || node.Type == "CLIPTextEncodeSDXL":
			if len(node.Widget) > 0 {
				if s, ok := node.Widget[0].(string); ok {
					inputs["text"] = s
				}
			}
		case standardLoaderTypes[node.Type]:
			if len(node.Widget) >= 1 {
				inputs["lora_name"] = node.Widget[0]
			}
			if len(node.Widget) >= 2 {
				inputs["strength_model"] = node.Widget[1]
			}
			if len(node.Widget) >= 3 {
				inputs["strength_clip"] = node.Widget[2]
			}
		case promptManagerTypes[node.Type]:
			if s := firstString(node.Widget, 20); s != "" {
				inputs["text"] = s
			}
		}
		out[strconv.Itoa(node.ID)] = PromptNode{ClassType: node.Type, Inputs: inputs}
	}
	return out
}

// longestCleaned strips inline LoRA tags, collapses whitespace and returns
// the longest surviving prompt.
func longestCleaned(prompts []string) string {
	best := ""
	for _, p := range prompts {
		cleaned := strings.TrimSpace(loraTagRe.ReplaceAllString(p, ""))
		cleaned = multiSpaceRe.ReplaceAllString(cleaned, " ")
		if len(cleaned) > len(best) {
			best = cleaned
		}
	}
	return best
}
