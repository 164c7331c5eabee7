// Package h264 iterates a raw H.264 Annex-B bytestream, yielding one
// NALUnit per start code. It is the spec §4.7 NAL iterator, trimmed
// from the teacher's media/codec/h264parser to exactly that scope: the
// NAL header byte and emulation-prevention stripping, nothing past it
// (no SPS/PPS/slice-header/VUI/AVCC — that belongs to a decoding or
// remuxing use case this system never performs).
//
// Start-code scanning and the AnnexB 3-byte/4-byte distinction are
// grounded in the teacher's SplitNALUs/StartCodeBytes; here they are
// rebuilt against internal/parseio's tri-state contract so the scan
// can be retried from a larger window instead of requiring the whole
// stream in memory.
package h264

import (
	"bytes"

	"github.com/rivermux/tsparse/internal/parseio"
)

// NAL unit type codes this decoder distinguishes; everything else
// dispatches to Unknown (spec §3/§4.7).
const (
	NALTypeNonIDR = 1
	NALTypeIDR    = 5
)

// Kind tags which NALUnit variant was produced.
type Kind int

const (
	KindIDRPicture Kind = iota
	KindNonIDRPicture
	KindUnknown
)

// NALUnit is the decoded record of spec §3: a forbidden_zero_bit of 1
// is not treated as malformed — it is folded into KindUnknown along
// with every nal_unit_type this decoder doesn't name explicitly.
type NALUnit struct {
	Kind        Kind
	NALUnitType uint8 // bits 0-4 of the header byte
	RefIDC      uint8 // bits 5-6 of the header byte
	Rest        []byte
}

var startCode3 = []byte{0, 0, 1}

// findStartCode locates the first 3-byte start code (00 00 01) in b at
// or after from. scIndex is where the start code begins, one byte
// earlier when a further 00 precedes it (a 4-byte start code);
// bodyIndex is the first byte after the 01; found is false when there
// is no start code.
func findStartCode(b []byte, from int) (scIndex, bodyIndex int, found bool) {
	idx := bytes.Index(b[from:], startCode3)
	if idx < 0 {
		return 0, 0, false
	}
	idx += from
	start := idx
	if start > 0 && b[start-1] == 0 {
		start--
	}
	return start, idx + 3, true
}

// stripEmulationPrevention removes every 00 00 03 -> 00 00 substitution
// in a single left-to-right pass (spec §3/§4.7, §8 S3).
func stripEmulationPrevention(b []byte) []byte {
	out := make([]byte, 0, len(b))
	zeros := 0
	for _, c := range b {
		if zeros >= 2 && c == 0x03 {
			zeros = 0
			continue
		}
		out = append(out, c)
		if c == 0 {
			zeros++
		} else {
			zeros = 0
		}
	}
	return out
}

func classify(headerByte byte, rest []byte) NALUnit {
	forbidden := headerByte>>7&1 != 0
	typ := headerByte & 0x1f
	refIDC := (headerByte >> 5) & 0x3
	u := NALUnit{NALUnitType: typ, RefIDC: refIDC, Rest: stripEmulationPrevention(rest)}
	switch {
	case forbidden:
		// forbidden_zero_bit must be 0; a stream that violates this is
		// not malformed, just not one of the two named pictures.
		u.Kind = KindUnknown
	case typ == NALTypeIDR:
		u.Kind = KindIDRPicture
	case typ == NALTypeNonIDR:
		u.Kind = KindNonIDRPicture
	default:
		u.Kind = KindUnknown
	}
	return u
}

// Decode implements parseio.Decoder[NALUnit]: locate a start code, then
// the payload up to the next start code (or EOF when the view is
// complete), then split off the header byte and strip emulation
// prevention from the remainder.
func Decode(v parseio.View) parseio.Result[NALUnit] {
	b := v.Bytes

	scStart, bodyStart, found := findStartCode(b, 0)
	if !found {
		if v.Complete {
			// No start code anywhere in a final view: nothing to
			// decode. An empty view ends the stream cleanly; leftover
			// non-NAL bytes are reported by the driver as a truncated
			// stream (Malformed).
			return parseio.Incomplete[NALUnit]()
		}
		return parseio.Incomplete[NALUnit]()
	}
	_ = scStart // any bytes before the start code are filler, folded into Consumed below
	if bodyStart >= len(b) {
		if v.Complete {
			// Start code with nothing after it at all: no header
			// byte ever arrives. Truncated, not a unit.
			return parseio.Incomplete[NALUnit]()
		}
		return parseio.Incomplete[NALUnit]()
	}

	nextSC, _, nextFound := findStartCode(b, bodyStart)
	var payloadEnd int
	if nextFound {
		payloadEnd = nextSC
	} else if v.Complete {
		payloadEnd = len(b)
	} else {
		return parseio.Incomplete[NALUnit]()
	}

	header := b[bodyStart]
	rest := b[bodyStart+1 : payloadEnd]
	unit := classify(header, rest)
	return parseio.Done(unit, payloadEnd)
}
