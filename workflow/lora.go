package workflow

import (
	"strconv"
	"strings"
)

// Lora is a LoRA reference harvested from a loader node or an inline prompt
// tag.  Inactive entries (toggled off in the editor) are kept so the caller
// can decide whether to surface or apply them.
type Lora struct {
	Name          string  `json:"name"`
	Path          string  `json:"path"`
	ModelStrength float64 `json:"model_strength"`
	ClipStrength  float64 `json:"clip_strength"`
	Active        bool    `json:"active"`
}

var stackerTypes = map[string]bool{
	"Lora Stacker (LoraManager)":  true,
	"LoRA Stacker":                true,
	"LoraStacker":                 true,
	"LoRA Stacker (LoRA Manager)": true,
}

var standardLoaderTypes = map[string]bool{
	"LoraLoader":          true,
	"LoraLoaderModelOnly": true,
	"LoRALoader":          true,
	"LoraLoaderKJNodes":   true,
}

const powerLoraLoaderType = "Power Lora Loader (rgthree)"

func isLoraNode(nodeType string) bool {
	return nodeType == powerLoraLoaderType || stackerTypes[nodeType] || standardLoaderTypes[nodeType]
}

// lorasFromNode pulls every LoRA out of a loader node, active or not.
func lorasFromNode(node *Node) []Lora {
	switch {
	case node.Type == powerLoraLoaderType:
		return powerLoraEntries(node)
	case stackerTypes[node.Type]:
		return stackerEntries(node)
	case standardLoaderTypes[node.Type]:
		return standardLoaderEntries(node)
	}
	return nil
}

// powerLoraEntries reads the Power Lora Loader widget rows:
// {"on": bool, "lora": path, "strength": n, "strengthTwo": n|null}.
func powerLoraEntries(node *Node) []Lora {
	var out []Lora
	for _, v := range node.Widget {
		row, ok := v.(map[string]interface{})
		if !ok {
			continue
		}
		path, _ := row["lora"].(string)
		if path == "" {
			continue
		}
		strength := toFloat(row["strength"], 1.0)
		clip := strength
		if two, ok := row["strengthTwo"]; ok && two != nil {
			clip = toFloat(two, strength)
		}
		out = append(out, Lora{
			Name:          stripExt(baseName(path)),
			Path:          path,
			ModelStrength: strength,
			ClipStrength:  clip,
			Active:        toBool(row["on"], true),
		})
	}
	return out
}

// stackerEntries reads LoRA Stacker widgets, where one widget value is an
// array of {"name", "strength", "clipStrength", "active"} rows.  Strengths
// may arrive as strings.
func stackerEntries(node *Node) []Lora {
	var out []Lora
	for _, v := range node.Widget {
		rows, ok := v.([]interface{})
		if !ok {
			continue
		}
		for _, rv := range rows {
			row, ok := rv.(map[string]interface{})
			if !ok {
				continue
			}
			name, _ := row["name"].(string)
			if name == "" {
				continue
			}
			strength := toFloat(row["strength"], 1.0)
			clip := strength
			if c, ok := row["clipStrength"]; ok && c != nil {
				clip = toFloat(c, strength)
			}
			out = append(out, Lora{
				Name:          name,
				ModelStrength: strength,
				ClipStrength:  clip,
				Active:        toBool(row["active"], true),
			})
		}
	}
	return out
}

// standardLoaderEntries reads the positional widgets of LoraLoader nodes:
// name, model strength, clip strength.
func standardLoaderEntries(node *Node) []Lora {
	if len(node.Widget) < 1 {
		return nil
	}
	name, _ := node.Widget[0].(string)
	if name == "" {
		return nil
	}
	model := 1.0
	if len(node.Widget) >= 2 {
		model = toFloat(node.Widget[1], 1.0)
	}
	clip := model
	if len(node.Widget) >= 3 {
		clip = toFloat(node.Widget[2], model)
	}
	return []Lora{{
		Name:          stripExt(baseName(name)),
		Path:          name,
		ModelStrength: model,
		ClipStrength:  clip,
		Active:        true,
	}}
}

// chain is one connected run of LoRA loaders feeding a terminal node.
type chain struct {
	sourceID      int
	titles        []string
	terminalTitle string
	loras         []Lora
}

// collectModelChain walks backward through model and lora_stack links
// gathering every LoRA loader in the run, whatever mix of loader types it
// contains.
func collectModelChain(nodeID int, nodes map[int]*Node, links map[int]Link, visited map[int]bool) ([]Lora, []string) {
	if visited[nodeID] {
		return nil, nil
	}
	visited[nodeID] = true

	node := nodes[nodeID]
	if node == nil {
		return nil, nil
	}

	var loras []Lora
	var titles []string
	if isLoraNode(node.Type) {
		loras = append(loras, lorasFromNode(node)...)
		if node.Title != "" {
			titles = append(titles, node.Title)
		}
	}

	for _, in := range node.Inputs {
		if (in.Name == "model" || in.Name == "MODEL" || in.Name == "lora_stack") && in.Link != nil {
			if link, ok := links[*in.Link]; ok {
				l, t := collectModelChain(link.SourceNode, nodes, links, visited)
				loras = append(loras, l...)
				titles = append(titles, t...)
			}
		}
	}
	return loras, titles
}

// collectStackChain is the LORA_STACK-only variant for stacker nodes chained
// through lora_stack inputs.
func collectStackChain(nodeID int, nodes map[int]*Node, links map[int]Link, visited map[int]bool) ([]Lora, []string) {
	if visited[nodeID] {
		return nil, nil
	}
	visited[nodeID] = true

	node := nodes[nodeID]
	if node == nil {
		return nil, nil
	}

	var loras []Lora
	var titles []string
	if stackerTypes[node.Type] {
		loras = append(loras, stackerEntries(node)...)
		if node.Title != "" {
			titles = append(titles, node.Title)
		}
	}

	for _, in := range node.Inputs {
		if in.Name == "lora_stack" && in.Link != nil {
			if link, ok := links[*in.Link]; ok {
				l, t := collectStackChain(link.SourceNode, nodes, links, visited)
				loras = append(loras, l...)
				titles = append(titles, t...)
			}
		}
	}
	return loras, titles
}

var modelInputNames = map[string]bool{
	"model":            true,
	"MODEL":            true,
	"model_high_noise": true,
	"model_low_noise":  true,
	"base_model":       true,
	"refiner_model":    true,
	"unet":             true,
}

// chainTerminal marks a non-LoRA node that receives model input straight
// from a LoRA loader; it anchors one chain.
type chainTerminal struct {
	terminalTitle string
	loraSourceID  int
}

func findChainTerminals(g *Graph, nodes map[int]*Node, links map[int]Link) []chainTerminal {
	var out []chainTerminal
	for _, node := range g.Nodes {
		if isLoraNode(node.Type) {
			continue
		}
		for _, in := range node.Inputs {
			if !modelInputNames[in.Name] || in.Link == nil {
				continue
			}
			link, ok := links[*in.Link]
			if !ok {
				continue
			}
			source := nodes[link.SourceNode]
			if source != nil && isLoraNode(source.Type) {
				out = append(out, chainTerminal{
					terminalTitle: node.Title,
					loraSourceID:  link.SourceNode,
				})
			}
		}
	}
	return out
}

func baseName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}

func stripExt(name string) string {
	if i := strings.LastIndex(name, "."); i > 0 {
		return name[:i]
	}
	return name
}

func toFloat(v interface{}, def float64) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
			return f
		}
	}
	return def
}

func toBool(v interface{}, def bool) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return def
}
