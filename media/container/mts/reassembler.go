package mts

import (
	"io"

	"github.com/rs/zerolog/log"

	"github.com/rivermux/tsparse/internal/errs"
	"github.com/rivermux/tsparse/internal/parseio"
	"github.com/rivermux/tsparse/internal/ringbuf"
)

// entry is the per-PID reassembly state of spec §3/§4.5: a ring buffer
// holding the bytes accumulated for the element currently in progress,
// plus an optional cutoff marking exactly where that element ends once
// its boundary becomes known.
type entry struct {
	ring   *ringbuf.Buffer
	cutoff *int
}

func newEntry() *entry {
	return &entry{ring: ringbuf.New(ringbuf.ChunkSize)}
}

func (e *entry) isEmpty() bool { return e.ring.Available() == 0 }

func (e *entry) append(b []byte) {
	for e.ring.AvailableSpace() < len(b) {
		e.ring.MakeRoom()
	}
	n := copy(e.ring.Space(), b)
	e.ring.Fill(n)
}

// Reassembler demultiplexes an MTS packet stream by PID, reconstructs
// PSI sections and PES packets across packet boundaries, and learns
// the PAT -> PMT -> PES PID mapping as it goes (spec §4.5). It owns
// the underlying parseio.Stream[Packet], so a Reassembler is itself
// the top-level iterator a caller drives with Next.
type Reassembler struct {
	packets *parseio.Stream[Packet]
	entries map[uint16]*entry
	pmtPIDs map[uint16]bool
	pesPIDs map[uint16]bool

	lastPID uint16
	hasLast bool
}

// NewReassembler builds a Reassembler reading MTS packets from src.
func NewReassembler(src io.Reader) *Reassembler {
	return &Reassembler{
		packets: parseio.NewStream[Packet](src, DecodePacket),
		entries: make(map[uint16]*entry),
		pmtPIDs: make(map[uint16]bool),
		pesPIDs: make(map[uint16]bool),
	}
}

// Next returns the next reassembled Element, in the order its final
// byte entered the buffer (spec §5 "Ordering").
func (r *Reassembler) Next() (Element, bool, error) {
	for {
		if r.hasLast {
			produced, el, err := r.tryDecode(r.lastPID, true)
			if err != nil {
				return Element{}, false, err
			}
			if produced {
				return el, true, nil
			}
			r.hasLast = false
		}

		pkt, ok, err := r.packets.Next()
		if err != nil {
			return Element{}, false, err
		}
		if !ok {
			el, produced, err := r.drainOnEOF()
			if err != nil {
				return Element{}, false, err
			}
			if produced {
				return el, true, nil
			}
			return Element{}, false, nil
		}

		produced, el, err := r.ingest(pkt)
		if err != nil {
			return Element{}, false, err
		}
		if produced {
			return el, true, nil
		}
	}
}

// ingest applies the element-boundary algorithm of spec §4.5 steps
// 1-7 to one incoming packet, then makes one decode attempt.
func (r *Reassembler) ingest(pkt Packet) (produced bool, el Element, err error) {
	pid := pkt.PID
	if pid == PIDPadding {
		return false, Element{}, nil
	}

	ent, exists := r.entries[pid]
	if !exists && !pkt.PUSI {
		// Mid-element for a PID we have no start for: drop.
		return false, Element{}, nil
	}
	if !exists {
		ent = newEntry()
		r.entries[pid] = ent
	}

	payload := pkt.Payload
	if pkt.PUSI {
		if len(payload) < 1 {
			log.Warn().Uint16("pid", pid).Msg("mts: PUSI set but payload has no cutoff byte")
			return false, Element{}, nil
		}
		cutoff := int(payload[0])
		rest := payload[1:]
		switch {
		case ent.isEmpty():
			if cutoff > len(rest) {
				return false, Element{}, errs.Malformed("mts: pid 0x%04x: cutoff %d exceeds payload", pid, cutoff)
			}
			ent.append(rest[cutoff:])
		default:
			before := ent.ring.Available()
			ent.append(rest)
			boundary := before + cutoff
			ent.cutoff = &boundary
		}
	} else {
		ent.append(payload)
	}

	r.lastPID = pid
	r.hasLast = true
	return r.tryDecode(pid, true)
}

// decoderFor reports which decoder, if any, applies to pid given what
// has been learned from PAT/PMT so far (spec §4.5 "Decoder selection").
func (r *Reassembler) decoderFor(pid uint16) (func(parseio.View) parseio.Result[Element], bool) {
	switch {
	case pid == PIDPAT:
		return decodePATSection, true
	case r.pmtPIDs[pid]:
		return decodeSection, true
	case r.pesPIDs[pid]:
		return decodePESElement, true
	default:
		return nil, false
	}
}

// tryDecode attempts one decode of the entry for pid. strictCutoff
// controls what happens if a cutoff-bounded attempt still reports
// Incomplete: true (normal in-stream processing, where the cutoff was
// derived from a real wire-observed element boundary) upgrades that
// to a propagated Malformed error; false (end-of-stream draining,
// where the cutoff is only a guess that "nothing more is coming") just
// drops the entry silently, per spec §4.5's "emit or drop".
func (r *Reassembler) tryDecode(pid uint16, strictCutoff bool) (produced bool, el Element, err error) {
	ent, ok := r.entries[pid]
	if !ok {
		return false, Element{}, nil
	}
	decode, ok := r.decoderFor(pid)
	if !ok {
		// No decoder attempt is ever made for this PID; its buffer
		// simply accumulates (spec §4.5: "benign memory pressure").
		return false, Element{}, nil
	}

	data := ent.ring.Data()
	limit := len(data)
	complete := false
	if ent.cutoff != nil {
		limit = *ent.cutoff
		complete = true
	}
	if limit > len(data) {
		limit = len(data)
	}

	res := decode(parseio.View{Bytes: data[:limit], Complete: complete})
	switch res.Status {
	case parseio.StatusMalformed:
		return false, Element{}, errs.Malformed("mts: pid 0x%04x: %v", pid, res.Err)

	case parseio.StatusIncomplete:
		if ent.cutoff != nil && strictCutoff {
			return false, Element{}, errs.Malformed("mts: pid 0x%04x: element truncated at its known boundary", pid)
		}
		return false, Element{}, nil

	case parseio.StatusDone:
		el = res.Value
		el.PID = pid
		ent.ring.Consume(res.Consumed)
		if ent.cutoff != nil {
			if err := eatPadding(ent.ring, limit-res.Consumed); err != nil {
				return false, Element{}, errs.Malformed("mts: pid 0x%04x: %v", pid, err)
			}
		} else if el.Kind != ElementPES {
			// No boundary known yet: 0xFF fill directly after a PSI
			// section runs to the end of the payload and is skipped here
			// instead of being offered to the next decode as a table_id.
			n := 0
			for _, b := range ent.ring.Data() {
				if b != 0xFF {
					break
				}
				n++
			}
			ent.ring.Consume(n)
		}
		if ent.ring.Available() == 0 {
			delete(r.entries, pid)
		} else {
			ent.cutoff = nil
		}
		r.learn(el)
		return true, el, nil
	}
	return false, Element{}, nil
}

// eatPadding consumes up to n bytes of the 0xFF padding spec §3 says
// trails a decoded PSI section "to the end of the accumulated buffer":
// once a cutoff has bounded a decode, whatever the decoder didn't
// consume up to that cutoff is padding, not the start of the next
// element (which begins only after the cutoff). Confirmed against
// _examples/original_source/mts-parser's eat_up_padding, which trims
// exactly this span rather than leaving it for the next parse attempt.
func eatPadding(ring *ringbuf.Buffer, n int) error {
	if n <= 0 {
		return nil
	}
	pad := ring.Data()[:n]
	for _, b := range pad {
		if b != 0xFF {
			return errs.Malformed("non-0xFF byte 0x%02x in section padding before next element", b)
		}
	}
	ring.Consume(n)
	return nil
}

// learn grows pmt_table_pids/pes_stream_pids monotonically from
// successfully decoded PAT/PMT tables (spec §4.5 "Learning").
func (r *Reassembler) learn(el Element) {
	switch el.Kind {
	case ElementPAT:
		for _, e := range el.PAT.Entries {
			r.pmtPIDs[e.ProgramMapPID] = true
		}
	case ElementPMT:
		for _, s := range el.PMT.Streams {
			r.pesPIDs[s.PID] = true
		}
	}
}

// drainOnEOF implements spec §4.5's "on source EOF with non-empty
// entries" step: pick any remaining entry, bound it at its current
// size, attempt one last decode, emit or drop — one entry per call.
func (r *Reassembler) drainOnEOF() (Element, bool, error) {
	for pid, ent := range r.entries {
		delete(r.entries, pid)
		if ent.isEmpty() {
			continue
		}
		if ent.cutoff == nil {
			n := ent.ring.Available()
			ent.cutoff = &n
		}
		r.entries[pid] = ent
		produced, el, err := r.tryDecode(pid, false)
		delete(r.entries, pid)
		if err != nil {
			return Element{}, false, err
		}
		if produced {
			return el, true, nil
		}
	}
	return Element{}, false, nil
}
