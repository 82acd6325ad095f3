// Package metadata locates and decodes generation metadata embedded in files
// produced by ComfyUI and similar tools: prompt/workflow JSON in PNG text
// chunks, EXIF UserComment payloads in JPEG/WebP, comment tags in
// WebM/Matroska and MP4 containers, and A1111-style parameter text.
//
// Extraction is a pure function of the input buffer: no file-system, network
// or shared state is touched, and a malformed buffer can never make it panic
// or read out of bounds.  A buffer that carries no recognized metadata yields
// a nil result rather than an error.
package metadata

import "encoding/json"

// Kind declares the container type of an input buffer.  Decoders verify the
// container's magic bytes themselves; Kind only selects which decoder runs.
type Kind string

const (
	KindPNG  Kind = "png"
	KindJPEG Kind = "jpeg"
	KindWebP Kind = "webp"
	KindJSON Kind = "json"
	KindWebM Kind = "webm"
	KindMKV  Kind = "mkv"
	KindMP4  Kind = "mp4"
)

// KindForPath maps a file extension to a Kind. Unsupported extensions return
// the empty Kind, which Extract treats as "no metadata".
func KindForPath(path string) Kind {
	dot := -1
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '.' {
			dot = i
			break
		}
		if path[i] == '/' || path[i] == '\\' {
			break
		}
	}
	if dot < 0 {
		return ""
	}
	ext := make([]byte, 0, len(path)-dot-1)
	for i := dot + 1; i < len(path); i++ {
		c := path[i]
		if 'A' <= c && c <= 'Z' {
			c += 'a' - 'A'
		}
		ext = append(ext, c)
	}
	switch string(ext) {
	case "png":
		return KindPNG
	case "jpg", "jpeg":
		return KindJPEG
	case "webp":
		return KindWebP
	case "json":
		return KindJSON
	case "webm":
		return KindWebM
	case "mkv":
		return KindMKV
	case "mp4":
		return KindMP4
	}
	return ""
}

// Source identifies which decoder produced a Metadata value, so consumers
// never have to sniff the result's shape.
type Source string

const (
	SourcePNG  Source = "png"
	SourceEXIF Source = "exif"
	SourceEBML Source = "ebml"
	SourceMP4  Source = "mp4"
	SourceJSON Source = "json"
)

// Metadata is the decoded result of one extraction.  Prompt holds the
// graph-execution (API format) payload, Workflow the editor-graph payload.
// Parameters carries raw A1111 parameter text; ParsedParameters is its
// structured decomposition and is only populated when Parameters is present
// and Workflow is absent.
type Metadata struct {
	Source           Source          `json:"source_format"`
	Prompt           json.RawMessage `json:"prompt,omitempty"`
	Workflow         json.RawMessage `json:"workflow,omitempty"`
	Parameters       string          `json:"parameters,omitempty"`
	ParsedParameters *Parameters     `json:"parsed_parameters,omitempty"`
}

// ScanMode controls how the WebM and MP4 scanners treat a comment tag whose
// payload fails to parse as JSON.
type ScanMode int

const (
	// ScanFirstMatch stops at the first candidate tag even if its payload is
	// not valid JSON.  This matches the embedding toolchain's reader: a
	// corrupted or colliding tag ahead of the real one silently wins.
	ScanFirstMatch ScanMode = iota
	// ScanKeepGoing continues past unparseable candidates until a valid one
	// is found or the buffer is exhausted.
	ScanKeepGoing
)

type options struct {
	mode ScanMode
}

// Option configures an extraction call.
type Option func(*options)

// WithScanMode selects strict (ScanFirstMatch, the default) or lenient
// (ScanKeepGoing) container scanning.
func WithScanMode(m ScanMode) Option {
	return func(o *options) { o.mode = m }
}

// Extract decodes the metadata embedded in data.  kind selects the decoder;
// the decoder then verifies the container's own signature, so a mislabeled
// buffer yields nil rather than garbage.  A nil return means no recognized
// metadata was found; Extract never fails with an error on malformed input.
func Extract(data []byte, kind Kind, opts ...Option) *Metadata {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	switch kind {
	case KindPNG:
		return extractPNG(data)
	case KindJPEG, KindWebP:
		return extractEXIF(data)
	case KindWebM, KindMKV:
		return extractEBML(data, o)
	case KindMP4:
		return extractMP4(data, o)
	case KindJSON:
		return extractJSON(data)
	}
	return nil
}

// classifyObject routes a decoded JSON object into prompt/workflow slots the
// way the reference reader does for video comments: an explicit
// prompt/workflow wrapper wins, a bare graph (nodes / last_node_id) is a
// workflow, anything else is treated as the prompt payload.
func classifyObject(raw []byte, src Source) *Metadata {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		// Valid JSON that is not an object still counts as a prompt payload.
		var any json.RawMessage
		if err := json.Unmarshal(raw, &any); err != nil {
			return nil
		}
		return &Metadata{Source: src, Prompt: any}
	}

	md := &Metadata{Source: src}
	_, hasPrompt := obj["prompt"]
	_, hasWorkflow := obj["workflow"]
	switch {
	case hasPrompt && hasWorkflow:
		md.Prompt = unwrapNested(obj["prompt"])
		md.Workflow = unwrapNested(obj["workflow"])
	case hasWorkflow:
		md.Workflow = unwrapNested(obj["workflow"])
	default:
		if _, ok := obj["nodes"]; ok {
			md.Workflow = json.RawMessage(raw)
		} else if _, ok := obj["last_node_id"]; ok {
			md.Workflow = json.RawMessage(raw)
		} else {
			md.Prompt = json.RawMessage(raw)
		}
	}
	return md
}

// unwrapNested resolves the double-encoding some writers produce, where the
// prompt/workflow value is a JSON string that itself contains JSON.
func unwrapNested(raw json.RawMessage) json.RawMessage {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return raw
	}
	var inner json.RawMessage
	if err := json.Unmarshal([]byte(s), &inner); err != nil {
		return raw
	}
	return inner
}
