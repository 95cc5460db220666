package mpegts

import "fmt"

// MPEG-2 CRC32 with polynomial 0x04C11DB7, as used inside PSI sections.
// Note this is distinct from the CRC-32/IEEE fingerprint the split
// operator computes over section bytes; this variant exists so sections
// can be built and optionally validated.
var crc32Table [256]uint32

func init() {
	for i := 0; i < 256; i++ {
		crc := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if crc&0x80000000 != 0 {
				crc = (crc << 1) ^ 0x04C11DB7
			} else {
				crc <<= 1
			}
		}
		crc32Table[i] = crc
	}
}

// ChecksumMPEG2 computes the MPEG-2 CRC-32 over data.
func ChecksumMPEG2(data []byte) uint32 {
	crc := uint32(0xFFFFFFFF)
	for _, b := range data {
		crc = (crc << 8) ^ crc32Table[byte(crc>>24)^b]
	}
	return crc
}

// VerifySection checks that a full PSI section (including its trailing
// CRC field) has a valid MPEG-2 CRC-32. A conformant section checksums
// to zero when the CRC field is included.
func VerifySection(section []byte) error {
	if len(section) < 4 {
		return fmt.Errorf("mpegts: section too short for CRC32")
	}
	if ChecksumMPEG2(section) != 0 {
		return fmt.Errorf("mpegts: section CRC32 mismatch")
	}
	return nil
}
