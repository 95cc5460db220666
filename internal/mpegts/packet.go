// Package mpegts implements the minimal MPEG-TS parsing the reassembly
// pipeline needs: 188-byte packet headers, PSI section extraction for
// PAT/PMT fingerprinting, and the MPEG-2 CRC-32 used inside those tables.
// It does not reassemble PES payloads; elementary streams are opaque here.
package mpegts

import "fmt"

const (
	// PacketSize is the fixed MPEG-TS transport packet size.
	PacketSize = 188
	// SyncByte opens every conformant transport packet.
	SyncByte = 0x47
	// PIDPAT is the reserved PID carrying the Program Association Table.
	PIDPAT = 0x0000

	// TableIDPAT identifies a PAT section.
	TableIDPAT = 0x00
	// TableIDPMT identifies a PMT section.
	TableIDPMT = 0x02
)

// Header contains the parsed fields of a transport packet header.
type Header struct {
	PID                       uint16
	ContinuityCounter         uint8
	PayloadUnitStartIndicator bool
	TransportErrorIndicator   bool
	HasAdaptationField        bool
	HasPayload                bool
	Scrambled                 bool
}

// ParseHeader parses the 4-byte header of a 188-byte transport packet.
func ParseHeader(pkt []byte) (Header, error) {
	var h Header
	if len(pkt) != PacketSize {
		return h, fmt.Errorf("mpegts: packet size %d, expected %d", len(pkt), PacketSize)
	}
	if pkt[0] != SyncByte {
		return h, fmt.Errorf("mpegts: invalid sync byte 0x%02X", pkt[0])
	}

	h.TransportErrorIndicator = pkt[1]&0x80 != 0
	h.PayloadUnitStartIndicator = pkt[1]&0x40 != 0
	h.PID = uint16(pkt[1]&0x1F)<<8 | uint16(pkt[2])
	h.Scrambled = pkt[3]&0xC0 != 0
	h.HasAdaptationField = pkt[3]&0x20 != 0
	h.HasPayload = pkt[3]&0x10 != 0
	h.ContinuityCounter = pkt[3] & 0x0F
	return h, nil
}

// Section extracts the PSI section starting in pkt, returning the parsed
// header, the table ID, and the full section bytes (table header through
// trailing CRC) as a subslice of pkt. It returns ok == false for any packet
// that cannot carry a complete section: wrong size, bad sync, no payload,
// scrambled, no payload-unit start, or a declared section length overrunning
// the packet. Those packets are skipped, never errors; per MPEG-TS
// repetition rules the table reappears in a later packet.
func Section(pkt []byte) (h Header, tableID byte, section []byte, ok bool) {
	h, err := ParseHeader(pkt)
	if err != nil {
		return h, 0, nil, false
	}
	if !h.HasPayload || h.Scrambled || !h.PayloadUnitStartIndicator {
		return h, 0, nil, false
	}

	offset := 4
	if h.HasAdaptationField {
		offset += 1 + int(pkt[4])
		if offset >= PacketSize {
			return h, 0, nil, false
		}
	}

	// Pointer field: one byte for section-carrying packets with PUSI set.
	// The table header begins immediately after it.
	offset += 1 + int(pkt[offset])
	if offset+3 > PacketSize {
		return h, 0, nil, false
	}

	sectionLength := int(pkt[offset+1]&0x0F)<<8 | int(pkt[offset+2])
	end := offset + 3 + sectionLength
	if end > PacketSize {
		return h, 0, nil, false
	}

	return h, pkt[offset], pkt[offset:end], true
}
