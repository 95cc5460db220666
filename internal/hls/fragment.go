// Package hls defines the tagged fragment model shared by every stage of
// the segment reassembly pipeline. Raw bytes pulled from a CDN arrive
// already classified as one of a closed set of fragment variants (TS packet
// batch, fMP4 init segment, fMP4 media segment, end-of-stream marker), each
// carrying its playlist metadata for downstream consumers.
package hls

import "github.com/livepeer/m3u8"

// SegmentType tags a Fragment's container family.
type SegmentType int

const (
	// SegmentTypeTS is a batch of one or more 188-byte MPEG-TS packets.
	SegmentTypeTS SegmentType = iota + 1
	// SegmentTypeM4sInit is an fMP4 initialization segment (ftyp+moov).
	SegmentTypeM4sInit
	// SegmentTypeM4sMedia is an fMP4 media segment (moof+mdat).
	SegmentTypeM4sMedia
	// SegmentTypeEndMarker is the explicit end-of-stream sentinel.
	SegmentTypeEndMarker
)

// String returns a short name for logging.
func (t SegmentType) String() string {
	switch t {
	case SegmentTypeTS:
		return "ts"
	case SegmentTypeM4sInit:
		return "m4s-init"
	case SegmentTypeM4sMedia:
		return "m4s-media"
	case SegmentTypeEndMarker:
		return "end-marker"
	default:
		return "unknown"
	}
}

// SameFamily reports whether a transition from a to b stays within one
// container family. Init↔media transitions inside fMP4 are not a format
// change; everything else is.
func SameFamily(a, b SegmentType) bool {
	if a == b {
		return true
	}
	m4s := func(t SegmentType) bool {
		return t == SegmentTypeM4sInit || t == SegmentTypeM4sMedia
	}
	return m4s(a) && m4s(b)
}

// Fragment is one classified unit of the incoming stream. Exactly four
// concrete types implement it: *TsSegment, *M4sInitSegment,
// *M4sMediaSegment, and EndMarker. Consumers switch exhaustively on the
// concrete type (or on Type()) so that adding a variant is visible at
// every consumption site.
type Fragment interface {
	// Type returns the container-type tag for this fragment.
	Type() SegmentType
	// Data returns the raw payload bytes. Nil for EndMarker.
	Data() []byte
	// MediaSegment returns the playlist metadata the fragment was
	// classified from. Nil for EndMarker.
	MediaSegment() *m3u8.MediaSegment
	// Duration returns the playable duration in seconds. Init segments
	// and end markers carry no playable duration and report 0.
	Duration() float64
	// Size returns the payload length in bytes.
	Size() int
}

// TsSegment is a batch of concatenated MPEG-TS packets belonging to one
// playlist segment.
type TsSegment struct {
	Segment *m3u8.MediaSegment
	Bytes   []byte
}

func (s *TsSegment) Type() SegmentType                { return SegmentTypeTS }
func (s *TsSegment) Data() []byte                     { return s.Bytes }
func (s *TsSegment) MediaSegment() *m3u8.MediaSegment { return s.Segment }
func (s *TsSegment) Size() int                        { return len(s.Bytes) }

func (s *TsSegment) Duration() float64 {
	if s.Segment == nil {
		return 0
	}
	return s.Segment.Duration
}

// M4sInitSegment is an fMP4 initialization segment. It anchors a new fMP4
// unit; media segments are unusable until one has been delivered.
type M4sInitSegment struct {
	Segment *m3u8.MediaSegment
	Bytes   []byte
}

func (s *M4sInitSegment) Type() SegmentType                { return SegmentTypeM4sInit }
func (s *M4sInitSegment) Data() []byte                     { return s.Bytes }
func (s *M4sInitSegment) MediaSegment() *m3u8.MediaSegment { return s.Segment }
func (s *M4sInitSegment) Size() int                        { return len(s.Bytes) }

// Duration is always 0: init segments carry no playable media.
func (s *M4sInitSegment) Duration() float64 { return 0 }

// M4sMediaSegment is an fMP4 media segment (moof+mdat).
type M4sMediaSegment struct {
	Segment *m3u8.MediaSegment
	Bytes   []byte
}

func (s *M4sMediaSegment) Type() SegmentType                { return SegmentTypeM4sMedia }
func (s *M4sMediaSegment) Data() []byte                     { return s.Bytes }
func (s *M4sMediaSegment) MediaSegment() *m3u8.MediaSegment { return s.Segment }
func (s *M4sMediaSegment) Size() int                        { return len(s.Bytes) }

func (s *M4sMediaSegment) Duration() float64 {
	if s.Segment == nil {
		return 0
	}
	return s.Segment.Duration
}

// EndMarker signals end-of-stream or, when injected mid-stream by the
// change-detection stage, a boundary at which downstream consumers must
// close the current output unit and open a new one.
type EndMarker struct{}

func (EndMarker) Type() SegmentType                { return SegmentTypeEndMarker }
func (EndMarker) Data() []byte                     { return nil }
func (EndMarker) MediaSegment() *m3u8.MediaSegment { return nil }
func (EndMarker) Duration() float64                { return 0 }
func (EndMarker) Size() int                        { return 0 }

// IsEndMarker reports whether f is the end-of-stream sentinel.
func IsEndMarker(f Fragment) bool {
	_, ok := f.(EndMarker)
	return ok
}
