package mts

import (
	"github.com/rivermux/tsparse/internal/errs"
	"github.com/rivermux/tsparse/internal/parseio"
)

// ElementKind tags which variant of the MtsElement record union a
// reassembled payload produced (spec §3's PAT | PMT | PES | UnknownPSI).
type ElementKind int

const (
	ElementPAT ElementKind = iota
	ElementPMT
	ElementPES
	ElementUnknownPSI
)

// Element is the reassembler's output record: exactly one of the PAT,
// PMT, PES, or Unknown* fields is populated, selected by Kind.
type Element struct {
	PID  uint16
	Kind ElementKind

	PAT *PATTable
	PMT *PMTTable
	PES *PESPacket

	// UnknownTableID/UnknownBody carry a syntactically valid,
	// CRC-verified PSI section whose table_id this repository does not
	// decode further (anything but PAT's 0x00 or PMT's 0x02).
	UnknownTableID uint8
	UnknownBody    []byte
}

// decodeSection is the generic PSI dispatcher for every PID in
// pmt_table_pids (nominally PMT, but not asserted to be): it verifies
// the common section frame and CRC once, then branches on table_id,
// falling back to ElementUnknownPSI for anything else — grounded in
// _examples/original_source/mts-parser's Parsable trait, whose shared
// `parse` builds PSISharedTableInfo first and dispatches to
// `parse_body` only for the matching TABLE_ID, else yielding
// UnsupportedPSITable. PID 0x0000 uses the stricter decodePATSection
// instead, since it may not fall back this way (spec §8 invariant 7).
func decodeSection(v parseio.View) parseio.Result[Element] {
	hdrRes := parsePSIHeader(v.Bytes, v.Complete)
	if hdrRes.Status != parseio.StatusDone {
		return parseio.Result[Element]{Status: hdrRes.Status, Err: hdrRes.Err}
	}
	hdr := hdrRes.Value

	switch hdr.TableID {
	case tableIDPAT:
		entries, err := decodePATBody(hdr.body)
		if err != nil {
			return parseio.Malformed[Element](err)
		}
		pat := PATTable{
			TableIDExtension:  hdr.TableIDExtension,
			VersionNumber:     hdr.VersionNumber,
			Current:           hdr.Current,
			SectionNumber:     hdr.SectionNumber,
			LastSectionNumber: hdr.LastSectionNumber,
			Entries:           entries,
		}
		return parseio.Done(Element{Kind: ElementPAT, PAT: &pat}, hdrRes.Consumed)

	case tableIDPMT:
		pmt, err := decodePMTBody(hdr.body)
		if err != nil {
			return parseio.Malformed[Element](err)
		}
		pmt.TableIDExtension = hdr.TableIDExtension
		pmt.VersionNumber = hdr.VersionNumber
		pmt.Current = hdr.Current
		pmt.SectionNumber = hdr.SectionNumber
		pmt.LastSectionNumber = hdr.LastSectionNumber
		return parseio.Done(Element{Kind: ElementPMT, PMT: &pmt}, hdrRes.Consumed)

	default:
		el := Element{
			Kind:           ElementUnknownPSI,
			UnknownTableID: hdr.TableID,
			UnknownBody:    append([]byte(nil), hdr.body...),
		}
		return parseio.Done(el, hdrRes.Consumed)
	}
}

// decodePATSection is PID 0x0000's decoder: spec §4.5 names it
// unconditionally "the PAT decoder", and §8 invariant 7 requires that
// PID 0x0000 produce only PAT — unlike decodeSection's PMT-table-PID
// dispatch, a table_id other than PAT's here is Malformed, not
// ElementUnknownPSI.
func decodePATSection(v parseio.View) parseio.Result[Element] {
	hdrRes := parsePSIHeader(v.Bytes, v.Complete)
	if hdrRes.Status != parseio.StatusDone {
		return parseio.Result[Element]{Status: hdrRes.Status, Err: hdrRes.Err}
	}
	hdr := hdrRes.Value
	if hdr.TableID != tableIDPAT {
		return parseio.Malformed[Element](errs.Malformed("mts: pid 0x0000 table_id 0x%02x is not a PAT", hdr.TableID))
	}
	entries, err := decodePATBody(hdr.body)
	if err != nil {
		return parseio.Malformed[Element](err)
	}
	pat := PATTable{
		TableIDExtension:  hdr.TableIDExtension,
		VersionNumber:     hdr.VersionNumber,
		Current:           hdr.Current,
		SectionNumber:     hdr.SectionNumber,
		LastSectionNumber: hdr.LastSectionNumber,
		Entries:           entries,
	}
	return parseio.Done(Element{Kind: ElementPAT, PAT: &pat}, hdrRes.Consumed)
}

func decodePESElement(v parseio.View) parseio.Result[Element] {
	res := DecodePES(v)
	if res.Status != parseio.StatusDone {
		return parseio.Result[Element]{Status: res.Status, Err: res.Err}
	}
	pes := res.Value
	return parseio.Done(Element{Kind: ElementPES, PES: &pes}, res.Consumed)
}
