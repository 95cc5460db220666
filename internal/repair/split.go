package repair

import (
	"hash/crc32"
	"log/slog"

	"github.com/strec/hlsfix/internal/hls"
	"github.com/strec/hlsfix/internal/mpegts"
	"github.com/strec/hlsfix/internal/pipeline"
)

// SegmentSplit deep-inspects the fragment stream for encoding-parameter
// changes and injects an EndMarker boundary ahead of the fragment that
// introduced the change, so downstream consumers never span incompatible
// parameters in one output unit.
//
// fMP4 init segments are fingerprinted whole; TS fragments are scanned for
// PAT and PMT sections, each fingerprinted with CRC-32. The fingerprint
// deliberately covers the section's own trailing CRC field: it is an opaque
// change detector, not a validation of the section's integrity. Payloads
// are never modified.
type SegmentSplit struct {
	log *slog.Logger

	initCRC     uint32
	haveInitCRC bool
	patCRC      uint32
	havePATCRC  bool
	pmtCRC      uint32
	havePMTCRC  bool

	programs      map[uint16]uint16 // program number -> PMT PID
	activePMTPID  uint16
	haveActivePMT bool
}

// NewSegmentSplit creates a SegmentSplit operator. If log is nil,
// slog.Default() is used.
func NewSegmentSplit(log *slog.Logger) *SegmentSplit {
	if log == nil {
		log = slog.Default()
	}
	return &SegmentSplit{
		log:      log.With("component", "segment-split"),
		programs: make(map[uint16]uint16),
	}
}

// Name implements pipeline.Operator.
func (s *SegmentSplit) Name() string { return "SegmentSplit" }

// reset clears all fingerprints and the program map, giving the next
// stream epoch a clean baseline.
func (s *SegmentSplit) reset() {
	s.haveInitCRC = false
	s.havePATCRC = false
	s.havePMTCRC = false
	s.programs = make(map[uint16]uint16)
	s.haveActivePMT = false
}

// Process implements pipeline.Operator.
func (s *SegmentSplit) Process(frag hls.Fragment, emit pipeline.Emit[hls.Fragment]) error {
	split := false

	switch f := frag.(type) {
	case hls.EndMarker:
		// Upstream boundary: next epoch starts from a clean slate.
		s.reset()
	case *hls.M4sInitSegment:
		split = s.observeInit(f.Bytes)
	case *hls.TsSegment:
		split = s.scanTS(f.Bytes)
	}

	if split {
		s.log.Debug("emitting end marker for segment split")
		if err := emit(hls.EndMarker{}); err != nil {
			return err
		}
	}
	return emit(frag)
}

// Finish implements pipeline.Operator.
func (s *SegmentSplit) Finish(pipeline.Emit[hls.Fragment]) error {
	s.reset()
	return nil
}

// observeInit fingerprints an fMP4 init segment. The first one seen is the
// baseline; any later one with a different fingerprint requests a split.
func (s *SegmentSplit) observeInit(data []byte) bool {
	crc := crc32.ChecksumIEEE(data)
	if !s.haveInitCRC {
		s.initCRC = crc
		s.haveInitCRC = true
		s.log.Info("first init segment observed", "bytes", len(data))
		return false
	}
	if crc == s.initCRC {
		return false
	}
	s.log.Info("init segment changed, splitting stream")
	s.initCRC = crc
	return true
}

// scanTS walks the 188-byte packets of a TS fragment looking for PAT and
// PMT sections. Returns true when either table's fingerprint changed.
func (s *SegmentSplit) scanTS(data []byte) bool {
	patChanged, pmtChanged := false, false

	for off := 0; off+mpegts.PacketSize <= len(data); off += mpegts.PacketSize {
		h, tableID, section, ok := mpegts.Section(data[off : off+mpegts.PacketSize])
		if !ok {
			continue
		}
		switch {
		case h.PID == mpegts.PIDPAT && tableID == mpegts.TableIDPAT:
			if s.observePAT(section) {
				patChanged = true
			}
		case s.haveActivePMT && h.PID == s.activePMTPID && tableID == mpegts.TableIDPMT:
			if s.observePMT(section) {
				pmtChanged = true
			}
		}
	}
	return patChanged || pmtChanged
}

// observePAT fingerprints a PAT section and keeps the program map current.
// The first PAT is the baseline and never requests a split.
func (s *SegmentSplit) observePAT(section []byte) bool {
	crc := crc32.ChecksumIEEE(section)
	if s.havePATCRC && crc == s.patCRC {
		return false
	}

	first := !s.havePATCRC
	s.rebuildProgramMap(section)
	s.patCRC = crc
	s.havePATCRC = true

	if first {
		s.log.Info("first PAT observed", "programs", len(s.programs))
		return false
	}
	s.log.Info("PAT changed, program map rebuilt", "programs", len(s.programs))
	return true
}

// rebuildProgramMap replaces the program map from a PAT section and selects
// the first program's PID as the active PMT. When the active PID moves, the
// stored PMT fingerprint belongs to a different table and is dropped.
func (s *SegmentSplit) rebuildProgramMap(section []byte) {
	prevActive, hadActive := s.activePMTPID, s.haveActivePMT
	s.programs = make(map[uint16]uint16)
	s.haveActivePMT = false

	for _, p := range mpegts.ParsePATPrograms(section) {
		s.programs[p.ProgramNumber] = p.PMTPID
		if !s.haveActivePMT {
			s.activePMTPID = p.PMTPID
			s.haveActivePMT = true
		}
	}
	if s.haveActivePMT && hadActive && prevActive != s.activePMTPID {
		s.havePMTCRC = false
	}
}

// observePMT fingerprints the active program's PMT section. The first PMT
// is the baseline and never requests a split.
func (s *SegmentSplit) observePMT(section []byte) bool {
	crc := crc32.ChecksumIEEE(section)
	if !s.havePMTCRC {
		s.pmtCRC = crc
		s.havePMTCRC = true
		s.log.Info("first PMT observed", "streams", len(mpegts.ParsePMTStreams(section)))
		return false
	}
	if crc == s.pmtCRC {
		return false
	}
	s.log.Info("PMT changed, stream parameters changed",
		"streams", len(mpegts.ParsePMTStreams(section)))
	s.pmtCRC = crc
	return true
}
