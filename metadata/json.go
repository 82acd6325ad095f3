package metadata

import "encoding/json"

// extractJSON handles workflow files saved as plain JSON.  The buffer is the
// metadata; the only work is telling an API-format prompt (node id keyed
// objects with class_type) from an editor workflow (nodes array) from a
// wrapped {prompt, workflow} export.
func extractJSON(data []byte) *Metadata {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		var any json.RawMessage
		if err := json.Unmarshal(data, &any); err != nil {
			return nil
		}
		return &Metadata{Source: SourceJSON, Prompt: any}
	}

	md := &Metadata{Source: SourceJSON}
	for _, v := range obj {
		var node struct {
			ClassType *string `json:"class_type"`
		}
		if err := json.Unmarshal(v, &node); err == nil && node.ClassType != nil {
			md.Prompt = json.RawMessage(data)
			return md
		}
	}
	if _, ok := obj["nodes"]; ok {
		md.Workflow = json.RawMessage(data)
		return md
	}
	if p, ok := obj["prompt"]; ok {
		md.Prompt = unwrapNested(p)
		if w, ok := obj["workflow"]; ok {
			md.Workflow = unwrapNested(w)
		}
		return md
	}
	md.Prompt = json.RawMessage(data)
	return md
}
