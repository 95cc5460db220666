package repair

import (
	"github.com/livepeer/m3u8"

	"github.com/strec/hlsfix/internal/hls"
	"github.com/strec/hlsfix/internal/mpegts"
	"github.com/strec/hlsfix/internal/pipeline"
)

// collect returns an emit sink appending into out.
func collect(out *[]hls.Fragment) pipeline.Emit[hls.Fragment] {
	return func(f hls.Fragment) error {
		*out = append(*out, f)
		return nil
	}
}

func meta(duration float64) *m3u8.MediaSegment {
	return &m3u8.MediaSegment{Duration: duration}
}

// tsFragment wraps raw bytes in a TS fragment with the given duration.
func tsFragment(duration float64, data []byte) *hls.TsSegment {
	return &hls.TsSegment{Segment: meta(duration), Bytes: data}
}

// tsFiller builds a TS fragment of n stuffing packets (PID 0x1FFF).
func tsFiller(n int) *hls.TsSegment {
	data := make([]byte, n*mpegts.PacketSize)
	for i := 0; i < n; i++ {
		pkt := data[i*mpegts.PacketSize:]
		pkt[0] = mpegts.SyncByte
		pkt[1] = 0x1F
		pkt[2] = 0xFF
		pkt[3] = 0x10
	}
	return tsFragment(1.0, data)
}

// buildPSISection assembles a PSI section with a valid trailing MPEG-2 CRC.
func buildPSISection(tableID byte, tableIDExt uint16, body []byte) []byte {
	sectionLength := 5 + len(body) + 4
	section := []byte{
		tableID,
		0xB0 | byte(sectionLength>>8&0x0F),
		byte(sectionLength),
		byte(tableIDExt >> 8), byte(tableIDExt),
		0xC1,
		0x00,
		0x00,
	}
	section = append(section, body...)
	crc := mpegts.ChecksumMPEG2(section)
	return append(section, byte(crc>>24), byte(crc>>16), byte(crc>>8), byte(crc))
}

// patPacket builds one TS packet carrying a PAT with the given
// (programNumber, pmtPID) pairs.
func patPacket(programs [][2]uint16) []byte {
	var body []byte
	for _, p := range programs {
		num, pid := p[0], p[1]
		body = append(body,
			byte(num>>8), byte(num),
			0xE0|byte(pid>>8&0x1F), byte(pid),
		)
	}
	return sectionPacket(mpegts.PIDPAT, buildPSISection(mpegts.TableIDPAT, 1, body))
}

// pmtPacket builds one TS packet carrying a PMT on pid with the given
// (streamType, elementaryPID) entries.
func pmtPacket(pid uint16, streams [][2]uint16) []byte {
	body := []byte{
		0xE0 | byte(streams[0][1]>>8&0x1F), byte(streams[0][1]), // PCR PID
		0xF0, 0x00,
	}
	for _, s := range streams {
		streamType, espid := byte(s[0]), s[1]
		body = append(body,
			streamType,
			0xE0|byte(espid>>8&0x1F), byte(espid),
			0xF0, 0x00,
		)
	}
	return sectionPacket(pid, buildPSISection(mpegts.TableIDPMT, 1, body))
}

// sectionPacket wraps a PSI section in a 188-byte packet with PUSI set.
func sectionPacket(pid uint16, section []byte) []byte {
	pkt := make([]byte, mpegts.PacketSize)
	for i := range pkt {
		pkt[i] = 0xFF
	}
	pkt[0] = mpegts.SyncByte
	pkt[1] = 0x40 | byte(pid>>8&0x1F)
	pkt[2] = byte(pid)
	pkt[3] = 0x10
	pkt[4] = 0x00
	copy(pkt[5:], section)
	return pkt
}

func initFragment(data []byte) *hls.M4sInitSegment {
	return &hls.M4sInitSegment{Segment: meta(0), Bytes: data}
}

func mediaFragment(duration float64, data []byte) *hls.M4sMediaSegment {
	return &hls.M4sMediaSegment{Segment: meta(duration), Bytes: data}
}
