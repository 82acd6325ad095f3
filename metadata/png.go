package metadata

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"log/slog"
)

var pngSignature = []byte{137, 80, 78, 71, 13, 10, 26, 10}

// extractPNG walks the chunk list of a PNG buffer looking for tEXt/iTXt
// chunks keyed "prompt", "workflow" or "parameters".  The walk stops at
// IEND, at the end of the buffer, or as soon as the interesting keywords
// have all been seen.
func extractPNG(data []byte) *Metadata {
	if len(data) < 8 || !bytes.Equal(data[:8], pngSignature) {
		return nil
	}

	md := &Metadata{Source: SourcePNG}
	found := false

	off := 8
	for off+8 <= len(data) {
		length := int(binary.BigEndian.Uint32(data[off : off+4]))
		chunkType := string(data[off+4 : off+8])
		if chunkType == "IEND" {
			break
		}

		dataStart := off + 8
		dataEnd := dataStart + length
		if length < 0 || dataEnd < dataStart || dataEnd > len(data) {
			// Truncated or corrupt length field; keep whatever was found.
			break
		}

		if chunkType == "tEXt" || chunkType == "iTXt" {
			keyword, text, ok := decodeTextChunk(chunkType, data[dataStart:dataEnd])
			if ok {
				switch keyword {
				case "prompt":
					var raw json.RawMessage
					if err := json.Unmarshal([]byte(text), &raw); err != nil {
						slog.Debug("png: prompt chunk is not valid JSON", "error", err)
					} else {
						md.Prompt = raw
						found = true
					}
				case "workflow":
					var raw json.RawMessage
					if err := json.Unmarshal([]byte(text), &raw); err != nil {
						slog.Debug("png: workflow chunk is not valid JSON", "error", err)
					} else {
						md.Workflow = raw
						found = true
					}
				case "parameters":
					md.Parameters = text
					if md.Workflow == nil {
						md.ParsedParameters = ParseParameters(text)
					}
					found = true
				}
			}
		}

		if md.Prompt != nil && md.Workflow != nil {
			break
		}
		if md.Parameters != "" {
			break
		}

		// Chunk layout is length + type + data + CRC.
		off = dataEnd + 4
	}

	if !found {
		return nil
	}
	return md
}

// decodeTextChunk pulls the keyword and text out of a tEXt or iTXt chunk
// body.  For iTXt the compression flag byte and the two language fields
// between keyword and text are skipped.
func decodeTextChunk(chunkType string, body []byte) (keyword, text string, ok bool) {
	null := bytes.IndexByte(body, 0)
	if null < 0 {
		return "", "", false
	}
	keyword = string(body[:null])
	rest := body[null+1:]

	if chunkType == "tEXt" {
		return keyword, string(rest), true
	}

	// iTXt: compression flag, then null-terminated language tag and
	// translated keyword precede the text.
	if len(rest) < 1 {
		return "", "", false
	}
	rest = rest[1:]
	for i := 0; i < 2; i++ {
		null = bytes.IndexByte(rest, 0)
		if null < 0 {
			return "", "", false
		}
		rest = rest[null+1:]
	}
	return keyword, string(rest), true
}
