package workflow

import "strings"

// maxTraversalDepth bounds the backward walk through string-manipulation
// nodes so a cyclic or pathological graph cannot recurse forever.
const maxTraversalDepth = 20

var (
	directStringTypes = map[string]bool{
		"PrimitiveStringMultiline": true,
		"PrimitiveString":          true,
		"String":                   true,
		"Text":                     true,
	}
	clipEncodeTypes = map[string]bool{
		"CLIPTextEncode":     true,
		"CLIPTextEncodeSDXL": true,
		"CLIPTextEncodeFlux": true,
	}
	concatTypes = map[string]bool{
		"StringConcatenate": true,
		"Text Concatenate":  true,
		"Concat String":     true,
	}
	replaceTypes = map[string]bool{
		"Text Find and Replace": true,
		"FindReplace":           true,
		"String Replace":        true,
	}
	captionTypes = map[string]bool{
		"Florence2Run": true,
		"Florence2":    true,
	}
	showTypes = map[string]bool{
		"easy showAnything": true,
		"ShowText":          true,
		"Preview String":    true,
	}
)

// traverseText walks backward from a node to find the prompt text feeding
// it, following through concatenation, find/replace and preview nodes.
func traverseText(nodeID int, nodes map[int]*Node, links map[int]Link, visited map[int]bool, depth int) string {
	if visited[nodeID] || depth <= 0 {
		return ""
	}
	visited[nodeID] = true

	node := nodes[nodeID]
	if node == nil {
		return ""
	}

	follow := func(linkID int, vis map[int]bool) string {
		link, ok := links[linkID]
		if !ok {
			return ""
		}
		return traverseText(link.SourceNode, nodes, links, vis, depth-1)
	}

	switch {
	case directStringTypes[node.Type]:
		if s := firstString(node.Widget, 0); s != "" {
			return s
		}

	case clipEncodeTypes[node.Type]:
		if s := firstString(node.Widget, 10); s != "" {
			return s
		}
		for _, in := range node.Inputs {
			if in.Name == "text" && in.Link != nil {
				return follow(*in.Link, visited)
			}
		}
		return ""

	case concatTypes[node.Type]:
		delimiter := " "
		for _, v := range node.Widget {
			if s, ok := v.(string); ok && len(s) <= 3 {
				delimiter = s
				break
			}
		}
		var parts []string
		for _, in := range node.Inputs {
			switch in.Name {
			case "string_a", "string_b", "text_a", "text_b":
				if in.Link != nil {
					// Each branch gets its own visited set so shared
					// upstream nodes contribute to both operands.
					if s := follow(*in.Link, copyVisited(visited)); s != "" {
						parts = append(parts, s)
					}
				}
			}
		}
		return strings.Join(parts, delimiter)

	case replaceTypes[node.Type]:
		for _, in := range node.Inputs {
			if (in.Name == "text" || in.Name == "string" || in.Name == "input") && in.Link != nil {
				return follow(*in.Link, visited)
			}
		}

	case captionTypes[node.Type]:
		// Caption generators cannot be traversed further; a cached caption
		// may sit in the widgets.
		return firstString(node.Widget, 20)

	case showTypes[node.Type]:
		for _, in := range node.Inputs {
			if in.Link != nil {
				return follow(*in.Link, visited)
			}
		}
	}

	if s := firstString(node.Widget, 20); s != "" {
		return s
	}
	for _, in := range node.Inputs {
		name := strings.ToLower(in.Name)
		if (strings.Contains(name, "text") || strings.Contains(name, "string") || strings.Contains(name, "prompt")) && in.Link != nil {
			if s := follow(*in.Link, visited); s != "" {
				return s
			}
		}
	}
	return ""
}

func copyVisited(visited map[int]bool) map[int]bool {
	out := make(map[int]bool, len(visited))
	for k, v := range visited {
		out[k] = v
	}
	return out
}
