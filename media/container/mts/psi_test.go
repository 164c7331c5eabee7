package mts

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rivermux/tsparse/internal/parseio"
	"github.com/rivermux/tsparse/internal/pio"
)

func TestDecodePATRoundTrip(t *testing.T) {
	entries := []PATEntry{
		{ProgramNumber: 1, ProgramMapPID: 0x100},
		{ProgramNumber: 2, ProgramMapPID: 0x200},
	}
	section := buildPSISection(tableIDPAT, 1, buildPATBody(entries))

	res := DecodePAT(parseio.View{Bytes: section, Complete: true})
	require.Equal(t, parseio.StatusDone, res.Status)
	require.Equal(t, len(section), res.Consumed)
	require.Equal(t, entries, res.Value.Entries)
	require.True(t, res.Value.Current)
}

func TestDecodePATMalformedCRC(t *testing.T) {
	section := buildPSISection(tableIDPAT, 1, buildPATBody([]PATEntry{{ProgramNumber: 1, ProgramMapPID: 0x100}}))
	section[len(section)-1] ^= 0xFF // corrupt the trailing CRC byte

	res := DecodePAT(parseio.View{Bytes: section, Complete: true})
	require.Equal(t, parseio.StatusMalformed, res.Status)
}

func TestDecodePATIncompleteWhenShort(t *testing.T) {
	section := buildPSISection(tableIDPAT, 1, buildPATBody([]PATEntry{{ProgramNumber: 1, ProgramMapPID: 0x100}}))
	res := DecodePAT(parseio.View{Bytes: section[:len(section)-1]})
	require.Equal(t, parseio.StatusIncomplete, res.Status)
}

func TestDecodePATRejectsWrongSectionSyntaxBit(t *testing.T) {
	section := buildPSISection(tableIDPAT, 1, buildPATBody([]PATEntry{{ProgramNumber: 1, ProgramMapPID: 0x100}}))
	word := pio.U16BE(section[1:3])
	word &^= 1 << 15 // clear section_syntax_indicator
	section[1] = byte(word >> 8)
	section[2] = byte(word)
	// Recompute CRC is unnecessary: the syntax-bit check happens before CRC.
	res := DecodePAT(parseio.View{Bytes: section, Complete: true})
	require.Equal(t, parseio.StatusMalformed, res.Status)
}

func TestDecodePMTRoundTrip(t *testing.T) {
	streams := []ElementaryStreamInfo{
		{StreamType: 0x1B, PID: 0x101, Descriptors: nil},
		{StreamType: 0x0F, PID: 0x102, Descriptors: []byte{0x01, 0x02}},
	}
	section := buildPSISection(tableIDPMT, 1, buildPMTBody(0x101, streams))

	res := DecodePMT(parseio.View{Bytes: section, Complete: true})
	require.Equal(t, parseio.StatusDone, res.Status)
	require.EqualValues(t, 0x101, res.Value.PCRPID)
	require.Equal(t, streams, res.Value.Streams)
}

func TestDecodePATRejectsWrongTableID(t *testing.T) {
	section := buildPSISection(tableIDPMT, 1, buildPMTBody(0x101, nil))
	res := DecodePAT(parseio.View{Bytes: section, Complete: true})
	require.Equal(t, parseio.StatusMalformed, res.Status)
}

func TestDecodePATBodyNotMultipleOf4IsMalformed(t *testing.T) {
	body := buildPATBody([]PATEntry{{ProgramNumber: 1, ProgramMapPID: 0x100}})
	section := buildPSISection(tableIDPAT, 1, append(body, 0x00))
	res := DecodePAT(parseio.View{Bytes: section, Complete: true})
	require.Equal(t, parseio.StatusMalformed, res.Status)
}
