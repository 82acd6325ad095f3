// Package workflow harvests prompt text and LoRA references out of ComfyUI
// graph JSON, in both the editor "workflow" format (nodes/links arrays) and
// the API "prompt" format (node-id keyed class_type objects).
package workflow

import (
	"encoding/json"
	"strings"
)

// Graph is the editor-format workflow.  Only the fields the harvesters need
// are modeled; everything else in the document is ignored.
type Graph struct {
	LastNodeID int     `json:"last_node_id"`
	Nodes      []*Node `json:"nodes"`
	Links      []Link  `json:"links"`
}

type Node struct {
	ID     int     `json:"id"`
	Type   string  `json:"type"`
	Title  string  `json:"title"`
	Widget Widgets `json:"widgets_values"`
	Inputs []Input `json:"inputs"`
}

type Input struct {
	Name string `json:"name"`
	Link *int   `json:"link"`
}

// Widgets tolerates both the usual array form and the object form some
// extensions write.  Object-form widget values carry nothing the harvesters
// read, so they decode to nil.
type Widgets []interface{}

func (w *Widgets) UnmarshalJSON(b []byte) error {
	var arr []interface{}
	if err := json.Unmarshal(b, &arr); err == nil {
		*w = arr
		return nil
	}
	*w = nil
	return nil
}

// Link is one edge.  Top-level links serialize as tuples
// [id, source, source_slot, target, target_slot, type]; links inside
// subgraph definitions serialize as objects.  Both forms are accepted.
type Link struct {
	ID         int
	SourceNode int
	SourceSlot int
	TargetNode int
	TargetSlot int
	Type       string
}

func (l *Link) UnmarshalJSON(b []byte) error {
	var tuple []interface{}
	if err := json.Unmarshal(b, &tuple); err == nil {
		at := func(i int) int {
			if i < len(tuple) {
				if f, ok := tuple[i].(float64); ok {
					return int(f)
				}
			}
			return 0
		}
		l.ID = at(0)
		l.SourceNode = at(1)
		l.SourceSlot = at(2)
		l.TargetNode = at(3)
		l.TargetSlot = at(4)
		if len(tuple) > 5 {
			if s, ok := tuple[5].(string); ok {
				l.Type = s
			}
		}
		return nil
	}

	var obj struct {
		ID         int    `json:"id"`
		OriginID   int    `json:"origin_id"`
		OriginSlot int    `json:"origin_slot"`
		TargetID   int    `json:"target_id"`
		TargetSlot int    `json:"target_slot"`
		Type       string `json:"type"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	l.ID = obj.ID
	l.SourceNode = obj.OriginID
	l.SourceSlot = obj.OriginSlot
	l.TargetNode = obj.TargetID
	l.TargetSlot = obj.TargetSlot
	l.Type = obj.Type
	return nil
}

func (g *Graph) nodeMap() map[int]*Node {
	m := make(map[int]*Node, len(g.Nodes))
	for _, n := range g.Nodes {
		m[n.ID] = n
	}
	return m
}

func (g *Graph) linkMap() map[int]Link {
	m := make(map[int]Link, len(g.Links))
	for _, l := range g.Links {
		m[l.ID] = l
	}
	return m
}

// firstString returns the first widget value that is a string longer than
// min characters, trimmed.
func firstString(widgets Widgets, min int) string {
	for _, v := range widgets {
		if s, ok := v.(string); ok && len(s) > min && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}
