package hls

import "encoding/binary"

const (
	tsPacketSize = 188
	tsSyncByte   = 0x47
)

// DetectType sniffs the container family of a raw segment buffer. It is
// used when playlist metadata alone cannot classify a fragment (e.g. a
// recorded dump with no EXT-X-MAP). Returns false when the buffer matches
// no known container.
func DetectType(data []byte) (SegmentType, bool) {
	if len(data) == 0 {
		return 0, false
	}

	// MPEG-TS: sync byte at packet stride. A single 0x47 first byte can
	// occur in box payloads, so require a second sync when enough bytes
	// are present.
	if data[0] == tsSyncByte {
		if len(data) < 2*tsPacketSize || data[tsPacketSize] == tsSyncByte {
			return SegmentTypeTS, true
		}
	}

	// ISOBMFF: walk top-level boxes and classify by FourCC.
	foundMedia := false
	for offset := 0; offset < len(data); {
		size, fourcc, headerSize, ok := readBoxHeader(data[offset:])
		if !ok || size < headerSize {
			break
		}
		switch fourcc {
		case "ftyp", "moov":
			return SegmentTypeM4sInit, true
		case "styp", "moof", "mdat", "sidx", "prft", "emsg":
			foundMedia = true
		}
		if offset+size > len(data) {
			break
		}
		offset += size
	}
	if foundMedia {
		return SegmentTypeM4sMedia, true
	}
	return 0, false
}

// readBoxHeader reads one ISOBMFF box header, handling 32-bit sizes,
// 64-bit extended sizes (size == 1), and box-extends-to-EOF (size == 0).
func readBoxHeader(data []byte) (size int, fourcc string, headerSize int, ok bool) {
	if len(data) < 8 {
		return 0, "", 0, false
	}
	size32 := binary.BigEndian.Uint32(data[:4])
	fourcc = string(data[4:8])

	switch size32 {
	case 1:
		if len(data) < 16 {
			return 0, "", 0, false
		}
		return int(binary.BigEndian.Uint64(data[8:16])), fourcc, 16, true
	case 0:
		return len(data), fourcc, 8, true
	default:
		return int(size32), fourcc, 8, true
	}
}
