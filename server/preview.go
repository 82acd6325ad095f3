package server

import (
	"encoding/binary"
	"time"
)

// maxNodeIDBytes is the fixed width of the node id field in a preview
// frame: one length byte plus up to 15 id bytes, Pascal-string style.
const maxNodeIDBytes = 16

// Streamer paces latent preview frames for one sampling run.  Frame
// emission is throttled to rate frames per wall-clock second; sampling is
// never blocked, frames the clock has no room for are simply not sent.
type Streamer struct {
	hub    *Hub
	nodeID string
	rate   float64
	length int

	first    bool
	lastTime time.Time
	index    int
	now      func() time.Time
}

// NewStreamer creates a streamer for a run of length frames originating
// from the node with the given id.
func NewStreamer(hub *Hub, nodeID string, length int, rate float64) *Streamer {
	if rate <= 0 {
		rate = 8
	}
	return &Streamer{
		hub:    hub,
		nodeID: nodeID,
		rate:   rate,
		length: length,
		first:  true,
		now:    time.Now,
	}
}

// Publish offers the current decoded frame set, one JPEG per frame index.
// It returns the number of frames actually sent this call.
func (p *Streamer) Publish(frames [][]byte) int {
	if len(frames) == 0 {
		return 0
	}

	now := p.now()
	if p.lastTime.IsZero() {
		p.lastTime = now
	}

	n := int(now.Sub(p.lastTime).Seconds() * p.rate)
	p.lastTime = p.lastTime.Add(time.Duration(float64(n) / p.rate * float64(time.Second)))
	if n > len(frames) {
		n = len(frames)
	}
	if n <= 0 {
		return 0
	}

	if p.first {
		p.first = false
		p.hub.BroadcastEvent("PM_latentpreview", map[string]interface{}{
			"length": p.length,
			"rate":   p.rate,
			"id":     p.nodeID,
		})
		p.lastTime = now.Add(time.Duration(float64(time.Second) / p.rate))
	}

	for i := 0; i < n; i++ {
		frame := frames[(p.index+i)%len(frames)]
		p.hub.BroadcastBinary(packPreviewFrame((p.index+i)%p.length, p.nodeID, frame))
	}
	p.index = (p.index + n) % len(frames)
	return n
}

// packPreviewFrame lays out a binary preview message: two 4-byte type
// words of 1, the big-endian frame index, the node id as a 16-byte
// Pascal string, then the JPEG payload.
func packPreviewFrame(index int, nodeID string, jpeg []byte) []byte {
	buf := make([]byte, 0, 12+maxNodeIDBytes+len(jpeg))

	var word [4]byte
	binary.BigEndian.PutUint32(word[:], 1)
	buf = append(buf, word[:]...)
	buf = append(buf, word[:]...)
	binary.BigEndian.PutUint32(word[:], uint32(index))
	buf = append(buf, word[:]...)

	id := []byte(nodeID)
	if len(id) > maxNodeIDBytes-1 {
		id = id[:maxNodeIDBytes-1]
	}
	var pascal [maxNodeIDBytes]byte
	pascal[0] = byte(len(id))
	copy(pascal[1:], id)
	buf = append(buf, pascal[:]...)

	return append(buf, jpeg...)
}
