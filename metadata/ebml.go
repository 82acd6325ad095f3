package metadata

import (
	"bytes"
	"math/bits"
)

var ebmlMagic = []byte{0x1A, 0x45, 0xDF, 0xA3}

// Matroska tag-name element ID, preceded in the buffers we care about by the
// literal tag name "COMMENT" written by the embedding tool.
var tagNameID = []byte{0x44, 0x87}

// extractEBML scans a WebM/Matroska buffer for the COMMENT tag the
// generation toolchain writes and parses its value as JSON.  This is a
// deliberate byte-literal search, not a conformant EBML element walk: the
// producing toolchain is fixed, and the full tree carries nothing else we
// need.  Substituting a real demuxer behind this function would not change
// the metadata contract.
func extractEBML(data []byte, o options) *Metadata {
	if len(data) < 4 || !bytes.Equal(data[:4], ebmlMagic) {
		return nil
	}

	for i := 12; i+2 <= len(data); i++ {
		if data[i] != tagNameID[0] || data[i+1] != tagNameID[1] {
			continue
		}
		if i < 7 || !bytes.Equal(data[i-7:i], []byte("COMMENT")) {
			continue
		}

		sizeOff := i + 2
		if sizeOff >= len(data) {
			return nil
		}
		// The element size is an EBML vint: the leading-zero count of the
		// first byte gives the octet count.  Only 1-3 octet sizes occur in
		// practice; anything longer is rejected.
		first := data[sizeOff]
		octets := bits.LeadingZeros8(first) + 1
		if octets >= 4 {
			if o.mode == ScanKeepGoing {
				continue
			}
			return nil
		}
		if sizeOff+octets > len(data) {
			return nil
		}
		length := int(first & (0xFF >> octets))
		for k := 1; k < octets; k++ {
			length = length<<8 | int(data[sizeOff+k])
		}

		start := sizeOff + octets
		end := start + length
		if end < start || end > len(data) {
			if o.mode == ScanKeepGoing {
				continue
			}
			return nil
		}

		md := classifyObject(data[start:end], SourceEBML)
		if md != nil || o.mode == ScanFirstMatch {
			// In first-match mode an unparseable payload ends the scan:
			// matches the reference reader, see ScanFirstMatch.
			return md
		}
	}
	return nil
}
