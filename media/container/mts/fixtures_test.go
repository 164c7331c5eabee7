package mts

import "github.com/rivermux/tsparse/internal/pio"

// buildPacket assembles one 192-byte M2TS frame: a zeroed 4-byte
// copy-protection/timestamp prefix, the mandatory sync byte, and the
// header bits this package's tests need to control (PUSI and PID).
// A payload shorter than the 184-byte body is preceded by an
// adaptation field holding only 0xFF stuffing, so the decoded Payload
// is exactly payload; a full 184-byte payload has no adaptation field.
func buildPacket(pid uint16, pusi bool, payload []byte) []byte {
	if len(payload) > 184 {
		panic("fixture payload too large for one packet body")
	}
	b := make([]byte, PacketSize)
	b[4] = SyncByte
	var pusiBit uint16
	if pusi {
		pusiBit = 1
	}
	word := pusiBit<<14 | pid&0x1FFF
	// transport_error_indicator=0, pusi=bit14, transport_priority=0
	b[5] = byte(word >> 8)
	b[6] = byte(word)
	// transport_scrambling_control=00, adaptation_field_control=01 (payload only), continuity_counter=0
	b[7] = 0x10
	body := b[8:]
	if stuff := 184 - len(payload); stuff > 0 {
		// adaptation_field_control=11: stuffing adaptation field, then payload
		b[7] = 0x30
		body[0] = byte(stuff - 1) // adaptation_field_length
		if stuff > 1 {
			body[1] = 0x00 // no adaptation-field flags set
			for i := 2; i < stuff; i++ {
				body[i] = 0xFF
			}
		}
		body = body[stuff:]
	}
	copy(body, payload)
	return b
}

// concatPackets splits raw payload bytes across as many packets as
// needed for pid, setting PUSI on the first and clearing it on the
// rest, with a leading cutoff byte of 0 on the first packet (no stale
// tail of a prior unknown element).
func concatPackets(pid uint16, raw []byte) [][]byte {
	var packets [][]byte
	first := true
	for len(raw) > 0 || first {
		var body []byte
		if first {
			// 1 cutoff byte + up to 183 bytes of section/PES content.
			n := len(raw)
			if n > 183 {
				n = 183
			}
			body = append([]byte{0}, raw[:n]...)
			raw = raw[n:]
			packets = append(packets, buildPacket(pid, true, body))
			first = false
			continue
		}
		n := len(raw)
		if n > 184 {
			n = 184
		}
		body = raw[:n]
		raw = raw[n:]
		packets = append(packets, buildPacket(pid, false, body))
		if len(raw) == 0 {
			break
		}
	}
	return packets
}

func flattenPackets(packets [][]byte) []byte {
	var out []byte
	for _, p := range packets {
		out = append(out, p...)
	}
	return out
}

// buildPSISection assembles a complete PAT/PMT section: table_id,
// section-syntax word, table_id_extension/version/section-number
// fields, body, and a trailing CRC-32 computed per spec §4.3.
func buildPSISection(tableID uint8, tableIDExtension uint16, body []byte) []byte {
	// table_id_extension(2) + version byte(1) + section_number(1) +
	// last_section_number(1) + body + CRC(4).
	sectionLength := 2 + 1 + 1 + 1 + len(body) + 4

	out := make([]byte, 0, 3+sectionLength)
	out = append(out, tableID)
	word := uint16(1)<<15 | uint16(0b11)<<12 | uint16(sectionLength)&0x3FF
	out = append(out, byte(word>>8), byte(word))
	out = append(out, byte(tableIDExtension>>8), byte(tableIDExtension))
	out = append(out, 0b11000001) // reserved 0b11, version 0, current=1
	out = append(out, 0)          // section_number
	out = append(out, 0)          // last_section_number
	out = append(out, body...)

	crc := crc32MPEG(out)
	var crcBytes [4]byte
	pio.PutU32BE(crcBytes[:], crc)
	out = append(out, crcBytes[:]...)
	return out
}

func buildPATBody(entries []PATEntry) []byte {
	var body []byte
	for _, e := range entries {
		body = append(body, byte(e.ProgramNumber>>8), byte(e.ProgramNumber))
		word := uint16(0b111)<<13 | e.ProgramMapPID&0x1FFF
		body = append(body, byte(word>>8), byte(word))
	}
	return body
}

func buildPMTBody(pcrPID uint16, streams []ElementaryStreamInfo) []byte {
	var body []byte
	pcrWord := uint16(0b111)<<13 | pcrPID&0x1FFF
	body = append(body, byte(pcrWord>>8), byte(pcrWord))
	body = append(body, 0xF0, 0x00) // program_descriptors: 0b1111,0b00,len=0
	for _, s := range streams {
		body = append(body, s.StreamType)
		w := uint16(0b111)<<13 | s.PID&0x1FFF
		body = append(body, byte(w>>8), byte(w))
		descLen := uint16(len(s.Descriptors))
		lenWord := uint16(0xF)<<12 | descLen&0x3FF
		body = append(body, byte(lenWord>>8), byte(lenWord))
		body = append(body, s.Descriptors...)
	}
	return body
}

// buildPESNoHeader assembles a PES packet with a header-less stream_id
// and a given packet_length (0 meaning "until the reassembled buffer
// ends").
func buildPESNoHeader(streamID uint8, data []byte, packetLen uint16) []byte {
	out := []byte{0x00, 0x00, 0x01, streamID, byte(packetLen >> 8), byte(packetLen)}
	return append(out, data...)
}

// buildPESWithHeader assembles a PES packet for a stream_id outside the
// header-less set: a minimal PESHeader (marker bits 0b10, every
// optional flag clear, header_data_length=0) precedes data. packetLen
// is the on-wire packet_length, i.e. the header plus data (0 meaning
// "until the reassembled buffer ends").
func buildPESWithHeader(streamID uint8, data []byte, packetLen uint16) []byte {
	hdr := []byte{0b1000_0000, 0x00, 0x00}
	body := append(append([]byte{}, hdr...), data...)
	out := []byte{0x00, 0x00, 0x01, streamID, byte(packetLen >> 8), byte(packetLen)}
	return append(out, body...)
}
