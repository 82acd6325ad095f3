package metadata

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"strings"
)

const (
	tagUserComment = 0x9286
	tagExifSubIFD  = 0x8769
)

var exifHeader = []byte("Exif\x00\x00")

// extractEXIF scans JPEG marker segments for an APP1/EXIF payload and walks
// the embedded TIFF directory structure for a UserComment holding JSON.
// WebP buffers produced by the generation toolchain embed the same EXIF
// block, so both kinds land here.
func extractEXIF(data []byte) *Metadata {
	if len(data) < 2 || data[0] != 0xFF || data[1] != 0xD8 {
		return nil
	}

	off := 2
	for off+4 <= len(data) {
		marker := binary.BigEndian.Uint16(data[off : off+2])
		segLen := int(binary.BigEndian.Uint16(data[off+2 : off+4]))
		if segLen < 2 {
			break
		}
		end := off + 2 + segLen
		if end > len(data) {
			break
		}

		if marker == 0xFFE1 {
			payload := data[off+4 : end]
			if bytes.HasPrefix(payload, exifHeader) {
				if md := parseTIFF(payload[len(exifHeader):]); md != nil {
					return md
				}
			}
		}
		off = end
	}
	return nil
}

// parseTIFF reads the byte-order mark and IFD0 offset of a TIFF block and
// recurses into its directories.  All offsets inside entries are relative to
// the start of this block.
func parseTIFF(tiff []byte) *Metadata {
	if len(tiff) < 8 {
		return nil
	}
	var order binary.ByteOrder
	switch {
	case tiff[0] == 'I' && tiff[1] == 'I':
		order = binary.LittleEndian
	case tiff[0] == 'M' && tiff[1] == 'M':
		order = binary.BigEndian
	default:
		return nil
	}
	ifd0 := int(order.Uint32(tiff[4:8]))
	return parseIFD(tiff, ifd0, order, 0)
}

// parseIFD walks one image file directory: a 2-byte entry count followed by
// 12-byte entries of tag, format, count and value-or-offset.  The first
// UserComment that decodes to JSON wins; SubIFD entries recurse.
func parseIFD(tiff []byte, off int, order binary.ByteOrder, depth int) *Metadata {
	if depth > 8 {
		return nil
	}
	if off < 0 || off+2 > len(tiff) {
		return nil
	}
	count := int(order.Uint16(tiff[off : off+2]))

	for i := 0; i < count; i++ {
		entry := off + 2 + i*12
		if entry+12 > len(tiff) {
			return nil
		}
		tag := order.Uint16(tiff[entry : entry+2])
		valCount := int(order.Uint32(tiff[entry+4 : entry+8]))

		switch tag {
		case tagUserComment:
			var value []byte
			if valCount > 4 {
				// Out-of-line value: the entry holds a TIFF-relative offset.
				ptr := int(order.Uint32(tiff[entry+8 : entry+12]))
				if ptr < 0 || valCount < 0 || ptr+valCount < ptr || ptr+valCount > len(tiff) {
					continue
				}
				value = tiff[ptr : ptr+valCount]
			} else {
				if valCount < 0 {
					continue
				}
				value = tiff[entry+8 : entry+8+valCount]
			}
			if md := decodeUserComment(value); md != nil {
				return md
			}
		case tagExifSubIFD:
			sub := int(order.Uint32(tiff[entry+8 : entry+12]))
			if md := parseIFD(tiff, sub, order, depth+1); md != nil {
				return md
			}
		}
	}
	return nil
}

// decodeUserComment strips the EXIF character-code prefix and embedded NULs
// from a UserComment value and parses the remainder as JSON.  Unlike PNG,
// the JSON payload itself carries the prompt/workflow/parameters keys.
func decodeUserComment(value []byte) *Metadata {
	s := string(value)
	if strings.HasPrefix(s, "ASCII") {
		s = s[len("ASCII"):]
	} else if strings.HasPrefix(s, "UNICODE") {
		s = s[len("UNICODE"):]
	}
	s = strings.ReplaceAll(s, "\x00", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	var payload struct {
		Prompt     json.RawMessage `json:"prompt"`
		Workflow   json.RawMessage `json:"workflow"`
		Parameters string          `json:"parameters"`
	}
	if err := json.Unmarshal([]byte(s), &payload); err != nil {
		return nil
	}

	md := &Metadata{
		Source:     SourceEXIF,
		Prompt:     payload.Prompt,
		Workflow:   payload.Workflow,
		Parameters: payload.Parameters,
	}
	if md.Parameters != "" && md.Workflow == nil {
		md.ParsedParameters = ParseParameters(md.Parameters)
	}
	return md
}
