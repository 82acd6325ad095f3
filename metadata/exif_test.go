package metadata

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// tiffWithUserComment builds a minimal TIFF block: header, one IFD with a
// single UserComment entry pointing at comment, then the comment bytes.
func tiffWithUserComment(order binary.ByteOrder, comment []byte) []byte {
	var buf bytes.Buffer
	if order == binary.LittleEndian {
		buf.WriteString("II")
	} else {
		buf.WriteString("MM")
	}
	binary.Write(&buf, order, uint16(42))
	binary.Write(&buf, order, uint32(8)) // IFD0 right after the header

	// IFD0: one entry plus the next-IFD pointer.
	commentOff := uint32(8 + 2 + 12 + 4)
	binary.Write(&buf, order, uint16(1))
	binary.Write(&buf, order, uint16(tagUserComment))
	binary.Write(&buf, order, uint16(7)) // undefined format
	binary.Write(&buf, order, uint32(len(comment)))
	binary.Write(&buf, order, commentOff)
	binary.Write(&buf, order, uint32(0))

	buf.Write(comment)
	return buf.Bytes()
}

func jpegWithEXIF(tiff []byte) []byte {
	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xD8})
	payload := append([]byte("Exif\x00\x00"), tiff...)
	buf.Write([]byte{0xFF, 0xE1})
	binary.Write(&buf, binary.BigEndian, uint16(len(payload)+2))
	buf.Write(payload)
	buf.Write([]byte{0xFF, 0xD9})
	return buf.Bytes()
}

func TestEXIFRejectsNonJPEG(t *testing.T) {
	if md := Extract([]byte("RIFFxxxxWEBP"), KindJPEG); md != nil {
		t.Fatalf("expected nil for non-JPEG buffer, got %+v", md)
	}
}

func TestEXIFUserCommentASCII(t *testing.T) {
	comment := []byte("ASCII\x00\x00\x00{\"workflow\":{}}")
	data := jpegWithEXIF(tiffWithUserComment(binary.LittleEndian, comment))

	md := Extract(data, KindJPEG)
	if md == nil {
		t.Fatal("expected metadata")
	}
	if md.Source != SourceEXIF {
		t.Errorf("source = %q, want %q", md.Source, SourceEXIF)
	}
	if string(md.Workflow) != "{}" {
		t.Errorf("workflow = %q, want {}", md.Workflow)
	}
	if md.Prompt != nil {
		t.Errorf("prompt should be absent, got %q", md.Prompt)
	}
}

func TestEXIFUserCommentBigEndian(t *testing.T) {
	comment := []byte("UNICODE\x00{\"prompt\":{\"1\":{}}}")
	data := jpegWithEXIF(tiffWithUserComment(binary.BigEndian, comment))

	md := Extract(data, KindWebP)
	if md == nil {
		t.Fatal("expected metadata")
	}
	if string(md.Prompt) != `{"1":{}}` {
		t.Errorf("prompt = %q", md.Prompt)
	}
}

func TestEXIFSubIFDRecursion(t *testing.T) {
	comment := []byte("ASCII\x00\x00\x00{\"workflow\":{\"nodes\":[]}}")
	order := binary.LittleEndian

	var buf bytes.Buffer
	buf.WriteString("II")
	binary.Write(&buf, order, uint16(42))
	binary.Write(&buf, order, uint32(8))

	// IFD0 holds only a SubIFD pointer.
	subOff := uint32(8 + 2 + 12 + 4)
	binary.Write(&buf, order, uint16(1))
	binary.Write(&buf, order, uint16(tagExifSubIFD))
	binary.Write(&buf, order, uint16(4))
	binary.Write(&buf, order, uint32(1))
	binary.Write(&buf, order, subOff)
	binary.Write(&buf, order, uint32(0))

	// SubIFD holds the UserComment.
	commentOff := subOff + 2 + 12 + 4
	binary.Write(&buf, order, uint16(1))
	binary.Write(&buf, order, uint16(tagUserComment))
	binary.Write(&buf, order, uint16(7))
	binary.Write(&buf, order, uint32(len(comment)))
	binary.Write(&buf, order, commentOff)
	binary.Write(&buf, order, uint32(0))
	buf.Write(comment)

	md := Extract(jpegWithEXIF(buf.Bytes()), KindJPEG)
	if md == nil {
		t.Fatal("expected metadata via SubIFD")
	}
	if string(md.Workflow) != `{"nodes":[]}` {
		t.Errorf("workflow = %q", md.Workflow)
	}
}

func TestEXIFUserCommentPointerOutOfBounds(t *testing.T) {
	order := binary.LittleEndian
	var buf bytes.Buffer
	buf.WriteString("II")
	binary.Write(&buf, order, uint16(42))
	binary.Write(&buf, order, uint32(8))
	binary.Write(&buf, order, uint16(1))
	binary.Write(&buf, order, uint16(tagUserComment))
	binary.Write(&buf, order, uint16(7))
	binary.Write(&buf, order, uint32(4096)) // way past the buffer
	binary.Write(&buf, order, uint32(26))
	binary.Write(&buf, order, uint32(0))

	if md := Extract(jpegWithEXIF(buf.Bytes()), KindJPEG); md != nil {
		t.Fatalf("expected nil for out-of-bounds value pointer, got %+v", md)
	}
}

func TestEXIFNoAPP1Segment(t *testing.T) {
	// SOI followed by a bare APP0 segment.
	data := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x04, 0x00, 0x00, 0xFF, 0xD9}
	if md := Extract(data, KindJPEG); md != nil {
		t.Fatalf("expected nil without APP1/EXIF, got %+v", md)
	}
}
