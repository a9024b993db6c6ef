// Package ipd strips the ESP8266 "+IPD" chunk framing from modem output and
// returns the TCP payload as one stream.
package ipd

import (
	"i4.energy/across/atlink/at"
)

// MaxChunk bounds the length a chunk header may declare. ESP8266 firmware
// sends at most 2920 bytes per chunk.
const MaxChunk = 8192

// State is the position of the Reassembler inside the framing.
type State int

const (
	ScanningForMarker State = iota
	ReadingLength
	ReadingPayload
)

func (s State) String() string {
	switch s {
	case ScanningForMarker:
		return "ScanningForMarker"
	case ReadingLength:
		return "ReadingLength"
	case ReadingPayload:
		return "ReadingPayload"
	default:
		return "Unknown"
	}
}

var marker = [len(at.UrcIPD)]byte([]byte(at.UrcIPD))

// Reassembler decodes "+IPD,<len>:<payload>" and "+IPD,<id>,<len>:<payload>"
// chunks byte by byte. Its state survives between writes, so a chunk may be
// split across any number of them.
//
// The zero value is ready to use.
type Reassembler struct {
	state  State
	window [len(marker)]byte
	filled int

	length    int
	digits    int
	sawLinkID bool
	remaining int

	out []byte
}

// Write feeds raw modem output. It never fails.
func (r *Reassembler) Write(p []byte) (int, error) {
	for _, c := range p {
		r.feed(c)
	}
	return len(p), nil
}

// WriteByte feeds a single byte of raw modem output.
func (r *Reassembler) WriteByte(c byte) error {
	r.feed(c)
	return nil
}

func (r *Reassembler) feed(c byte) {
	switch r.state {
	case ScanningForMarker:
		r.scan(c)

	case ReadingLength:
		switch {
		case c >= '0' && c <= '9':
			r.length = r.length*10 + int(c-'0')
			r.digits++
			if r.length > MaxChunk {
				r.rescan(c)
			}
		case c == ',' && r.digits > 0 && !r.sawLinkID:
			// multi-connection form, what we read was the link id
			r.sawLinkID = true
			r.length, r.digits = 0, 0
		case c == ':' && r.digits > 0:
			if r.length == 0 {
				r.state = ScanningForMarker
				return
			}
			r.remaining = r.length
			r.state = ReadingPayload
		default:
			r.rescan(c)
		}

	case ReadingPayload:
		r.out = append(r.out, c)
		r.remaining--
		if r.remaining == 0 {
			r.state = ScanningForMarker
		}
	}
}

// scan slides c into the window and enters ReadingLength on a marker.
func (r *Reassembler) scan(c byte) {
	if r.filled < len(r.window) {
		r.window[r.filled] = c
		r.filled++
	} else {
		copy(r.window[:], r.window[1:])
		r.window[len(r.window)-1] = c
	}
	if r.filled == len(r.window) && r.window == marker {
		r.state = ReadingLength
		r.filled = 0
		r.length, r.digits, r.sawLinkID = 0, 0, false
	}
}

// rescan drops a malformed header and looks at c again as marker input.
func (r *Reassembler) rescan(c byte) {
	r.state = ScanningForMarker
	r.scan(c)
}

// State reports where the next byte will be interpreted.
func (r *Reassembler) State() State {
	return r.state
}

// Bytes returns the payload decoded so far. The slice is valid until the
// next call to Write or Reset.
func (r *Reassembler) Bytes() []byte {
	return r.out
}

// Len returns the number of payload bytes decoded so far.
func (r *Reassembler) Len() int {
	return len(r.out)
}

// Reset discards all state and output.
func (r *Reassembler) Reset() {
	*r = Reassembler{out: r.out[:0]}
}

// Reassemble decodes a complete snapshot of modem output. Without a marker
// the result is empty.
func Reassemble(raw []byte) []byte {
	var r Reassembler
	r.Write(raw)
	return r.Bytes()
}
