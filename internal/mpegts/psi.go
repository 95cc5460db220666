package mpegts

// PATProgram maps a program number to its PMT PID.
type PATProgram struct {
	ProgramNumber uint16
	PMTPID        uint16
}

// ParsePATPrograms extracts the program entries from a PAT section as
// returned by Section. Program number 0 entries (network PID) are skipped.
// Malformed or truncated sections yield an empty slice.
//
// section layout:
//
//	[0]    table_id
//	[1-2]  section_syntax_indicator(1) + zero(1) + reserved(2) + section_length(12)
//	[3-4]  transport_stream_id
//	[5]    reserved(2) + version(5) + current_next(1)
//	[6]    section_number
//	[7]    last_section_number
//	[8..N-4] program entries (4 bytes each)
//	[N-4..N] CRC32
func ParsePATPrograms(section []byte) []PATProgram {
	if len(section) < 12 { // 8 header + 4 CRC
		return nil
	}

	var programs []PATProgram
	for i := 8; i+4 <= len(section)-4; i += 4 {
		programNumber := uint16(section[i])<<8 | uint16(section[i+1])
		pmtPID := uint16(section[i+2]&0x1F)<<8 | uint16(section[i+3])

		if programNumber == 0 {
			continue // NIT PID, skip
		}
		programs = append(programs, PATProgram{
			ProgramNumber: programNumber,
			PMTPID:        pmtPID,
		})
	}
	return programs
}

// ElementaryStream describes one elementary stream entry in a PMT.
type ElementaryStream struct {
	PID        uint16
	StreamType uint8
}

// ParsePMTStreams extracts the elementary stream entries from a PMT
// section as returned by Section. Used for diagnostics when a PMT change
// splits the stream; the fingerprint itself never depends on this parse.
//
// section layout:
//
//	[0]    table_id
//	[1-2]  section_syntax_indicator(1) + zero(1) + reserved(2) + section_length(12)
//	[3-4]  program_number
//	[5]    reserved(2) + version(5) + current_next(1)
//	[6]    section_number
//	[7]    last_section_number
//	[8-9]  reserved(3) + PCR_PID(13)
//	[10-11] reserved(4) + program_info_length(12)
//	[...]  program descriptors
//	[...]  elementary stream entries (5 bytes + ES info each)
//	[...]  CRC32
func ParsePMTStreams(section []byte) []ElementaryStream {
	if len(section) < 16 { // 12 header + 4 CRC
		return nil
	}

	programInfoLength := int(section[10]&0x0F)<<8 | int(section[11])
	offset := 12 + programInfoLength

	var streams []ElementaryStream
	for offset+5 <= len(section)-4 {
		streamType := section[offset]
		pid := uint16(section[offset+1]&0x1F)<<8 | uint16(section[offset+2])
		esInfoLength := int(section[offset+3]&0x0F)<<8 | int(section[offset+4])

		streams = append(streams, ElementaryStream{
			PID:        pid,
			StreamType: streamType,
		})
		offset += 5 + esInfoLength
	}
	return streams
}
