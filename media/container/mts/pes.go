package mts

import (
	"github.com/rivermux/tsparse/internal/bitio"
	"github.com/rivermux/tsparse/internal/errs"
	"github.com/rivermux/tsparse/internal/parseio"
	"github.com/rivermux/tsparse/internal/pio"
)

// streamIDsWithoutHeader is the header-less stream_id set of spec §3,
// confirmed bit-for-bit against
// _examples/original_source/mts-parser's STREAM_IDS_WITHOUT_HEADER.
var streamIDsWithoutHeader = map[uint8]bool{
	0xBC: true, 0xBE: true, 0xBF: true, 0xF0: true,
	0xF1: true, 0xF2: true, 0xF8: true, 0xFF: true,
}

// PESExtension carries the PES header's nested optional extension
// fields (spec §3).
type PESExtension struct {
	PrivateData                 []byte
	PackHeaderField             []byte
	PacketSequenceCounter       *uint8
	PacketSequenceCounterMarker bool
	OriginalStuffLength         *uint8
	PSTDBufferScale             bool
	PSTDBufferSize              uint16
	HasPSTDBuffer               bool
	ExtensionData               []byte
}

// PESHeader is the optional structured header carried by PES packets
// whose stream_id is not in the header-less set.
type PESHeader struct {
	ScramblingControl    uint8
	Priority             bool
	DataAlignment        bool
	Copyright            bool
	Original             bool
	PTS                  *uint64
	DTS                  *uint64
	ESCRBase             *uint64
	ESCRExtension        *uint16
	ESRate               *uint32
	TrickModeControl     *uint8
	TrickModeFields      *uint8
	AdditionalCopyInfo   *uint8
	PreviousPESPacketCRC *uint16
	Extension            *PESExtension
}

// PESPacket is a decoded Packetized Elementary Stream packet.
type PESPacket struct {
	StreamID uint8
	Header   *PESHeader
	Data     []byte
}

func decodeTimestamp(c *bitio.Cursor, requiredPrefix uint64) (uint64, bool) {
	if c.Uint(4) != requiredPrefix {
		return 0, false
	}
	hi := c.Uint(3)
	if !c.MarkerBit() {
		return 0, false
	}
	mid := c.Uint(15)
	if !c.MarkerBit() {
		return 0, false
	}
	lo := c.Uint(15)
	if !c.MarkerBit() {
		return 0, false
	}
	return hi<<30 | mid<<15 | lo, true
}

func decodePESExtension(b []byte) (*PESExtension, int, error) {
	if len(b) < 1 {
		return nil, 0, errs.Malformed("mts: PES extension truncated")
	}
	flags := b[0]
	pos := 1
	ext := &PESExtension{}

	if flags&0x80 != 0 { // private_data_flag
		if pos+16 > len(b) {
			return nil, 0, errs.Malformed("mts: PES private data truncated")
		}
		ext.PrivateData = append([]byte(nil), b[pos:pos+16]...)
		pos += 16
	}
	if flags&0x40 != 0 { // pack_header_field_flag
		if pos+1 > len(b) {
			return nil, 0, errs.Malformed("mts: PES pack header length truncated")
		}
		n := int(b[pos])
		pos++
		if pos+n > len(b) {
			return nil, 0, errs.Malformed("mts: PES pack header field overruns")
		}
		ext.PackHeaderField = append([]byte(nil), b[pos:pos+n]...)
		pos += n
	}
	if flags&0x20 != 0 { // program_packet_sequence_counter_flag
		if pos+2 > len(b) {
			return nil, 0, errs.Malformed("mts: PES sequence counter truncated")
		}
		c := bitio.NewCursor(b[pos : pos+2])
		if !c.MarkerBit() {
			return nil, 0, errs.Malformed("mts: PES sequence counter marker bit wrong")
		}
		counter := uint8(c.Uint(7))
		if !c.MarkerBit() {
			return nil, 0, errs.Malformed("mts: PES sequence counter marker bit wrong")
		}
		ext.PacketSequenceCounterMarker = c.Bool()
		orig := uint8(c.Uint(6))
		ext.PacketSequenceCounter = &counter
		ext.OriginalStuffLength = &orig
		pos += 2
	}
	if flags&0x10 != 0 { // P-STD_buffer_flag
		if pos+2 > len(b) {
			return nil, 0, errs.Malformed("mts: PES P-STD buffer truncated")
		}
		c := bitio.NewCursor(b[pos : pos+2])
		if c.Uint(2) != 0b01 {
			return nil, 0, errs.Malformed("mts: PES P-STD buffer reserved bits must be 0b01")
		}
		ext.HasPSTDBuffer = true
		ext.PSTDBufferScale = c.Bool()
		ext.PSTDBufferSize = uint16(c.Uint(13))
		pos += 2
	}
	if flags&0x01 != 0 { // PES_extension_flag_2
		if pos+1 > len(b) {
			return nil, 0, errs.Malformed("mts: PES extension data length truncated")
		}
		lenByte := b[pos]
		if lenByte>>7 != 1 {
			return nil, 0, errs.Malformed("mts: PES extension data marker bit wrong")
		}
		n := int(lenByte & 0x7F)
		pos++
		if pos+n > len(b) {
			return nil, 0, errs.Malformed("mts: PES extension data overruns")
		}
		ext.ExtensionData = append([]byte(nil), b[pos:pos+n]...)
		pos += n
	}
	return ext, pos, nil
}

// decodePESHeader parses the PESHeader that precedes the body of any
// PES packet whose stream_id is not header-less. b is exactly the PES
// payload (packet_length bytes, or the whole reassembled buffer when
// packet_length was 0).
func decodePESHeader(b []byte) (PESHeader, []byte, error) {
	if len(b) < 3 {
		return PESHeader{}, nil, errs.Malformed("mts: PES header truncated before flags")
	}
	c := bitio.NewCursor(b[:2])
	if c.Uint(2) != 0b10 {
		return PESHeader{}, nil, errs.Malformed("mts: PES header marker bits must be 0b10")
	}
	h := PESHeader{}
	h.ScramblingControl = uint8(c.Uint(2))
	h.Priority = c.Bool()
	h.DataAlignment = c.Bool()
	h.Copyright = c.Bool()
	h.Original = c.Bool()

	ptsFlag := b[1]>>7&1 != 0
	dtsFlag := b[1]>>6&1 != 0
	escrFlag := b[1]>>5&1 != 0
	esRateFlag := b[1]>>4&1 != 0
	trickModeFlag := b[1]>>3&1 != 0
	additionalCopyFlag := b[1]>>2&1 != 0
	crcFlag := b[1]>>1&1 != 0
	extensionFlag := b[1]&1 != 0

	headerDataLength := int(b[2])
	if 3+headerDataLength > len(b) {
		return PESHeader{}, nil, errs.Malformed("mts: PES header_data_length overruns packet")
	}
	data := b[3 : 3+headerDataLength]
	rest := b[3+headerDataLength:]

	cur := bitio.NewCursor(data)
	bitsLeft := func(n int) bool { return cur.BitsLeft() >= n }

	if ptsFlag {
		prefix := uint64(0b0010)
		if dtsFlag {
			prefix = 0b0011
		}
		if !bitsLeft(40) {
			return PESHeader{}, nil, errs.Malformed("mts: PES PTS truncated")
		}
		v, ok := decodeTimestamp(cur, prefix)
		if !ok {
			return PESHeader{}, nil, errs.Malformed("mts: PES PTS marker bits wrong")
		}
		h.PTS = &v
	}
	if dtsFlag {
		if !bitsLeft(40) {
			return PESHeader{}, nil, errs.Malformed("mts: PES DTS truncated")
		}
		v, ok := decodeTimestamp(cur, 0b0001)
		if !ok {
			return PESHeader{}, nil, errs.Malformed("mts: PES DTS marker bits wrong")
		}
		h.DTS = &v
	}
	if escrFlag {
		if !bitsLeft(48) {
			return PESHeader{}, nil, errs.Malformed("mts: PES ESCR truncated")
		}
		cur.Uint(2) // reserved
		hi := cur.Uint(3)
		if !cur.MarkerBit() {
			return PESHeader{}, nil, errs.Malformed("mts: PES ESCR marker bit wrong")
		}
		mid := cur.Uint(15)
		if !cur.MarkerBit() {
			return PESHeader{}, nil, errs.Malformed("mts: PES ESCR marker bit wrong")
		}
		lo := cur.Uint(15)
		if !cur.MarkerBit() {
			return PESHeader{}, nil, errs.Malformed("mts: PES ESCR marker bit wrong")
		}
		ext := uint16(cur.Uint(9))
		if !cur.MarkerBit() {
			return PESHeader{}, nil, errs.Malformed("mts: PES ESCR marker bit wrong")
		}
		base := hi<<30 | mid<<15 | lo
		h.ESCRBase = &base
		h.ESCRExtension = &ext
	}
	if esRateFlag {
		if !bitsLeft(24) {
			return PESHeader{}, nil, errs.Malformed("mts: PES ES rate truncated")
		}
		if !cur.MarkerBit() {
			return PESHeader{}, nil, errs.Malformed("mts: PES ES rate marker bit wrong")
		}
		rate := uint32(cur.Uint(22))
		if !cur.MarkerBit() {
			return PESHeader{}, nil, errs.Malformed("mts: PES ES rate marker bit wrong")
		}
		h.ESRate = &rate
	}
	if trickModeFlag {
		if !bitsLeft(8) {
			return PESHeader{}, nil, errs.Malformed("mts: PES trick mode truncated")
		}
		ctrl := uint8(cur.Uint(3))
		fields := uint8(cur.Uint(5))
		h.TrickModeControl = &ctrl
		h.TrickModeFields = &fields
	}
	if additionalCopyFlag {
		if !bitsLeft(8) {
			return PESHeader{}, nil, errs.Malformed("mts: PES additional copy info truncated")
		}
		if !cur.MarkerBit() {
			return PESHeader{}, nil, errs.Malformed("mts: PES additional copy info marker bit wrong")
		}
		v := uint8(cur.Uint(7))
		h.AdditionalCopyInfo = &v
	}
	if crcFlag {
		if !bitsLeft(16) {
			return PESHeader{}, nil, errs.Malformed("mts: PES previous CRC truncated")
		}
		v := uint16(cur.Uint(16))
		h.PreviousPESPacketCRC = &v
	}
	if extensionFlag {
		if cur.BytePos()*8 != cur.BitPos() {
			return PESHeader{}, nil, errs.Malformed("mts: PES extension not byte-aligned")
		}
		ext, n, err := decodePESExtension(data[cur.BytePos():])
		if err != nil {
			return PESHeader{}, nil, err
		}
		h.Extension = ext
		cur.SkipBytes(n)
	}
	// Remainder of data[] to headerDataLength is 0xFF padding, not
	// re-verified (spec §7: padding is locally recovered).
	return h, rest, nil
}

// decodePESPayload reads the PES payload starting right after
// packet_length, whose length is either exactly n (n>0) or "the rest
// of what's available" (n==0, only legal once the view is complete).
func decodePESPayload(v parseio.View, afterLenOffset int, packetLen int) (payload []byte, consumed int, ok, incomplete bool) {
	b := v.Bytes
	if packetLen == 0 {
		if !v.Complete {
			return nil, 0, false, true
		}
		return b[afterLenOffset:], len(b), true, false
	}
	end := afterLenOffset + packetLen
	if len(b) < end {
		return nil, 0, false, true
	}
	return b[afterLenOffset:end], end, true, false
}

// DecodePES implements parseio.Decoder[PESPacket].
func DecodePES(v parseio.View) parseio.Result[PESPacket] {
	b := v.Bytes
	if len(b) < 6 {
		return parseio.Incomplete[PESPacket]()
	}
	if b[0] != 0x00 || b[1] != 0x00 || b[2] != 0x01 {
		return parseio.Malformed[PESPacket](errs.Malformed("mts: PES start code missing"))
	}
	streamID := b[3]
	packetLen := int(pio.U16BE(b[4:6]))

	payload, consumed, ok, incomplete := decodePESPayload(v, 6, packetLen)
	if incomplete {
		return parseio.Incomplete[PESPacket]()
	}
	if !ok {
		return parseio.Incomplete[PESPacket]()
	}

	pkt := PESPacket{StreamID: streamID}
	if streamIDsWithoutHeader[streamID] {
		pkt.Data = append([]byte(nil), payload...)
		return parseio.Done(pkt, consumed)
	}

	hdr, rest, err := decodePESHeader(payload)
	if err != nil {
		return parseio.Malformed[PESPacket](err)
	}
	pkt.Header = &hdr
	pkt.Data = append([]byte(nil), rest...)
	return parseio.Done(pkt, consumed)
}
