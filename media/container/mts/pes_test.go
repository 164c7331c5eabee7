package mts

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rivermux/tsparse/internal/parseio"
)

func TestDecodePESHeaderlessStreamID(t *testing.T) {
	data := []byte{0xFF, 0xFE, 0xFD}
	pkt := buildPESNoHeader(0xBC, data, uint16(len(data)))

	res := DecodePES(parseio.View{Bytes: pkt, Complete: true})
	require.Equal(t, parseio.StatusDone, res.Status)
	require.Nil(t, res.Value.Header)
	require.Equal(t, data, res.Value.Data)
}

func TestDecodePESZeroLengthRequiresCompleteView(t *testing.T) {
	data := []byte{0xFF, 0xFE, 0xFD}
	pkt := buildPESNoHeader(0xBC, data, 0)

	res := DecodePES(parseio.View{Bytes: pkt, Complete: false})
	require.Equal(t, parseio.StatusIncomplete, res.Status)

	res = DecodePES(parseio.View{Bytes: pkt, Complete: true})
	require.Equal(t, parseio.StatusDone, res.Status)
	require.Equal(t, data, res.Value.Data)
}

func TestDecodePESMalformedStartCode(t *testing.T) {
	pkt := buildPESNoHeader(0xBC, []byte{0x01}, 1)
	pkt[2] = 0x02 // corrupt the mandatory 00 00 01 start code
	res := DecodePES(parseio.View{Bytes: pkt, Complete: true})
	require.Equal(t, parseio.StatusMalformed, res.Status)
}

func TestDecodePESHeaderWithPTSOnly(t *testing.T) {
	// stream_id 0xE0 (video) is not in the header-less set, so a
	// PESHeader precedes the body.
	headerData := []byte{
		0b0010_0001, // '0010' PTS-only prefix, top 3 bits of PTS, marker
		0x00, 0x01, // 15 bits + marker
		0x00, 0x01, // 15 bits + marker
	}
	hdr := []byte{
		0b1000_0000, // '10', scrambling=00, priority=0, alignment=0, copyright=0, original=0
		0b1000_0000, // PTS_DTS_flags = '10' (PTS only)
		byte(len(headerData)),
	}
	hdr = append(hdr, headerData...)
	body := append(append([]byte{}, hdr...), []byte{0xAA, 0xBB}...)
	pkt := buildPESNoHeader(0xE0, body, uint16(len(body)))

	res := DecodePES(parseio.View{Bytes: pkt, Complete: true})
	require.Equal(t, parseio.StatusDone, res.Status)
	require.NotNil(t, res.Value.Header)
	require.NotNil(t, res.Value.Header.PTS)
	require.Nil(t, res.Value.Header.DTS)
	require.Equal(t, []byte{0xAA, 0xBB}, res.Value.Data)
}

func TestDecodePESHeaderBadMarkerBitsIsMalformed(t *testing.T) {
	hdr := []byte{0b0100_0000, 0x00, 0x00} // top bits should be '10', not '01'
	body := append(append([]byte{}, hdr...), []byte{0xAA}...)
	pkt := buildPESNoHeader(0xE0, body, uint16(len(body)))

	res := DecodePES(parseio.View{Bytes: pkt, Complete: true})
	require.Equal(t, parseio.StatusMalformed, res.Status)
}

func TestDecodePESIncompleteShortOfDeclaredLength(t *testing.T) {
	data := []byte{0xFF, 0xFE, 0xFD}
	pkt := buildPESNoHeader(0xBC, data, uint16(len(data)+2))
	res := DecodePES(parseio.View{Bytes: pkt})
	require.Equal(t, parseio.StatusIncomplete, res.Status)
}
