package metadata

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func pngChunk(chunkType string, body []byte) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint32(len(body)))
	buf.WriteString(chunkType)
	buf.Write(body)
	buf.Write([]byte{0, 0, 0, 0}) // CRC is not validated
	return buf.Bytes()
}

func textChunk(keyword, text string) []byte {
	body := append([]byte(keyword), 0)
	body = append(body, []byte(text)...)
	return pngChunk("tEXt", body)
}

func itxtChunk(keyword, lang, translated, text string) []byte {
	body := append([]byte(keyword), 0)
	body = append(body, 0) // compression flag
	body = append(body, []byte(lang)...)
	body = append(body, 0)
	body = append(body, []byte(translated)...)
	body = append(body, 0)
	body = append(body, []byte(text)...)
	return pngChunk("iTXt", body)
}

func pngFile(chunks ...[]byte) []byte {
	buf := append([]byte{}, pngSignature...)
	for _, c := range chunks {
		buf = append(buf, c...)
	}
	buf = append(buf, pngChunk("IEND", nil)...)
	return buf
}

func TestPNGRejectsBadSignature(t *testing.T) {
	if md := Extract([]byte("definitely not a png"), KindPNG); md != nil {
		t.Fatalf("expected nil for non-PNG buffer, got %+v", md)
	}
	if md := Extract(nil, KindPNG); md != nil {
		t.Fatalf("expected nil for empty buffer, got %+v", md)
	}
}

func TestPNGPromptChunk(t *testing.T) {
	data := pngFile(textChunk("prompt", `{"a":1}`))
	md := Extract(data, KindPNG)
	if md == nil {
		t.Fatal("expected metadata")
	}
	if md.Source != SourcePNG {
		t.Errorf("source = %q, want %q", md.Source, SourcePNG)
	}
	if string(md.Prompt) != `{"a":1}` {
		t.Errorf("prompt = %q, want {\"a\":1}", md.Prompt)
	}
	if md.Workflow != nil || md.Parameters != "" {
		t.Errorf("unexpected extra fields: %+v", md)
	}
}

func TestPNGWorkflowFromITXt(t *testing.T) {
	data := pngFile(itxtChunk("workflow", "en", "", `{"b":2}`))
	md := Extract(data, KindPNG)
	if md == nil {
		t.Fatal("expected metadata")
	}
	if string(md.Workflow) != `{"b":2}` {
		t.Errorf("workflow = %q, want {\"b\":2}", md.Workflow)
	}
}

func TestPNGParametersGetParsed(t *testing.T) {
	params := "masterpiece, <lora:foo:0.8>, city\nNegative prompt: blurry\nSteps: 20"
	data := pngFile(textChunk("parameters", params))
	md := Extract(data, KindPNG)
	if md == nil {
		t.Fatal("expected metadata")
	}
	if md.Parameters != params {
		t.Errorf("parameters = %q", md.Parameters)
	}
	pp := md.ParsedParameters
	if pp == nil {
		t.Fatal("expected parsed parameters")
	}
	if pp.Prompt != "masterpiece, , city" {
		t.Errorf("prompt = %q, want %q", pp.Prompt, "masterpiece, , city")
	}
	if pp.NegativePrompt != "blurry" {
		t.Errorf("negative = %q, want blurry", pp.NegativePrompt)
	}
	if len(pp.Loras) != 1 || pp.Loras[0].Name != "foo" ||
		pp.Loras[0].ModelStrength != 0.8 || pp.Loras[0].ClipStrength != 0.8 {
		t.Errorf("loras = %+v", pp.Loras)
	}
}

func TestPNGParametersSkippedWhenWorkflowPresent(t *testing.T) {
	data := pngFile(
		textChunk("workflow", `{"nodes":[]}`),
		textChunk("prompt", `{"1":{}}`),
		textChunk("parameters", "a prompt"),
	)
	md := Extract(data, KindPNG)
	if md == nil {
		t.Fatal("expected metadata")
	}
	if md.ParsedParameters != nil {
		t.Errorf("parsed parameters should be absent when workflow is present")
	}
}

func TestPNGInvalidPromptJSONContinues(t *testing.T) {
	data := pngFile(
		textChunk("prompt", "{not json"),
		textChunk("workflow", `{"ok":true}`),
	)
	md := Extract(data, KindPNG)
	if md == nil {
		t.Fatal("expected metadata from the later chunk")
	}
	if md.Prompt != nil {
		t.Errorf("prompt should be absent after parse failure, got %q", md.Prompt)
	}
	if string(md.Workflow) != `{"ok":true}` {
		t.Errorf("workflow = %q", md.Workflow)
	}
}

func TestPNGNoRecognizedKeyword(t *testing.T) {
	data := pngFile(textChunk("Software", "some editor"))
	if md := Extract(data, KindPNG); md != nil {
		t.Fatalf("expected nil, got %+v", md)
	}
}

func TestPNGTruncatedAtLengthField(t *testing.T) {
	data := pngFile(textChunk("prompt", `{"a":1}`))
	// Cut the buffer in the middle of the chunk body.
	truncated := data[:14]
	if md := Extract(truncated, KindPNG); md != nil {
		t.Fatalf("expected nil for truncated buffer, got %+v", md)
	}

	// A length field claiming more data than the buffer holds must stop the
	// walk instead of reading past the end.
	var lying bytes.Buffer
	lying.Write(pngSignature)
	binary.Write(&lying, binary.BigEndian, uint32(1<<30))
	lying.WriteString("tEXt")
	if md := Extract(lying.Bytes(), KindPNG); md != nil {
		t.Fatalf("expected nil for lying length field, got %+v", md)
	}
}

func TestPNGExtractionIsIdempotent(t *testing.T) {
	data := pngFile(textChunk("prompt", `{"a":1}`), textChunk("workflow", `{"b":2}`))
	first := Extract(data, KindPNG)
	second := Extract(data, KindPNG)
	if first == nil || second == nil {
		t.Fatal("expected metadata on both runs")
	}
	if !bytes.Equal(first.Prompt, second.Prompt) || !bytes.Equal(first.Workflow, second.Workflow) {
		t.Errorf("runs differ: %+v vs %+v", first, second)
	}
}
