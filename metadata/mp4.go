package metadata

import "encoding/binary"

// iTunes-style comment atom ("©cmt") and its data sub-atom tag.
var (
	cmtAtom  = []byte{0xA9, 'c', 'm', 't'}
	dataAtom = []byte("data")
)

// extractMP4 scans an ISO-BMFF buffer for a ©cmt/data atom pair holding
// JSON.  The scan runs backward from the end of the buffer, since the
// metadata atoms the toolchain writes sit in the trailing moov box.  Like
// the EBML scanner, this is a byte-literal search rather than a full atom
// tree walk.
func extractMP4(data []byte, o options) *Metadata {
	if len(data) < 12 {
		return nil
	}
	if string(data[4:8]) != "ftyp" || string(data[8:12]) != "isom" {
		return nil
	}

	for i := len(data) - 4; i >= 8; i-- {
		if data[i] != dataAtom[0] || data[i+1] != dataAtom[1] ||
			data[i+2] != dataAtom[2] || data[i+3] != dataAtom[3] {
			continue
		}
		// A comment payload is [size "©cmt" [size "data" ver locale bytes]];
		// with "data" at i, the ©cmt tag sits 8 bytes back.
		if data[i-8] != cmtAtom[0] || data[i-7] != cmtAtom[1] ||
			data[i-6] != cmtAtom[2] || data[i-5] != cmtAtom[3] {
			continue
		}

		// The data atom's size field covers its 16-byte fixed header.
		size := int(binary.BigEndian.Uint32(data[i-4 : i]))
		length := size - 16
		start := i + 12
		end := start + length
		if length < 0 || end < start || end > len(data) {
			if o.mode == ScanKeepGoing {
				continue
			}
			return nil
		}

		md := classifyObject(data[start:end], SourceMP4)
		if md != nil || o.mode == ScanFirstMatch {
			return md
		}
	}
	return nil
}
