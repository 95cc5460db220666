// Package repair contains the segment reassembly operators: Defragment
// gathers undersized fragments into minimally viable segments, SegmentSplit
// injects boundaries when encoding parameters change, and SegmentLimiter
// caps output units by duration or size. All three implement the
// pipeline.Operator contract over hls.Fragment and are single-owner,
// single-threaded state machines.
package repair

import (
	"fmt"
	"log/slog"

	"github.com/strec/hlsfix/internal/hls"
	"github.com/strec/hlsfix/internal/pipeline"
)

const (
	// defaultTSThreshold covers PAT + PMT + at least one media packet.
	defaultTSThreshold = 3
	// defaultM4sThreshold is a conservative batch size for fMP4 streams.
	defaultM4sThreshold = 5
	// defaultMaxHold bounds the buffer of media fragments held while
	// waiting for an init segment that may never arrive.
	defaultMaxHold = 50
)

// DefragmentStats counts discarded data. Discards are routine live-stream
// conditions, exposed as counters rather than errors.
type DefragmentStats struct {
	DiscardedFragments int64
	DiscardedBytes     int64
}

// Defragment buffers fragments until a minimum viable segment has been
// gathered, then flushes it downstream in arrival order. Container-type
// transitions, end markers, and init segments all close the current
// gathering epoch. Fragments arriving outside a gathering epoch pass
// through untouched.
type Defragment struct {
	log          *slog.Logger
	tsThreshold  int
	m4sThreshold int
	maxHold      int

	gathering bool
	buffer    []hls.Fragment
	segType   hls.SegmentType
	haveType  bool
	seenInit  bool
	stats     DefragmentStats
}

// DefragmentOption configures a Defragment operator.
type DefragmentOption func(*Defragment)

// WithTSThreshold sets the minimum fragment count for a viable TS segment.
func WithTSThreshold(n int) DefragmentOption {
	return func(d *Defragment) { d.tsThreshold = n }
}

// WithM4sThreshold sets the minimum fragment count for a viable fMP4 segment.
func WithM4sThreshold(n int) DefragmentOption {
	return func(d *Defragment) { d.m4sThreshold = n }
}

// WithMaxHold caps how many media fragments are held while waiting for an
// init segment before the hold buffer is discarded.
func WithMaxHold(n int) DefragmentOption {
	return func(d *Defragment) { d.maxHold = n }
}

// NewDefragment creates a Defragment operator. If log is nil,
// slog.Default() is used.
func NewDefragment(log *slog.Logger, opts ...DefragmentOption) *Defragment {
	if log == nil {
		log = slog.Default()
	}
	d := &Defragment{
		log:          log.With("component", "defragment"),
		tsThreshold:  defaultTSThreshold,
		m4sThreshold: defaultM4sThreshold,
		maxHold:      defaultMaxHold,
		gathering:    true,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Name implements pipeline.Operator.
func (d *Defragment) Name() string { return "Defragment" }

// Stats returns discard counters accumulated so far.
func (d *Defragment) Stats() DefragmentStats { return d.stats }

// threshold returns the viability threshold for the current segment type.
func (d *Defragment) threshold() int {
	if d.haveType && d.segType == hls.SegmentTypeTS {
		return d.tsThreshold
	}
	return d.m4sThreshold
}

func (d *Defragment) bufferedBytes() int {
	total := 0
	for _, f := range d.buffer {
		total += f.Size()
	}
	return total
}

// discard drops the buffer, counting and logging what was lost. Never an
// error: partial segments are an expected condition of live delivery.
func (d *Defragment) discard(reason string) {
	if len(d.buffer) == 0 {
		return
	}
	n, bytes := len(d.buffer), d.bufferedBytes()
	d.stats.DiscardedFragments += int64(n)
	d.stats.DiscardedBytes += int64(bytes)
	d.log.Warn("discarding incomplete segment",
		"reason", reason, "fragments", n, "bytes", bytes)
	d.buffer = nil
}

// flush emits the whole buffer in arrival order and clears it.
func (d *Defragment) flush(emit pipeline.Emit[hls.Fragment]) error {
	for _, f := range d.buffer {
		if err := emit(f); err != nil {
			return err
		}
	}
	d.buffer = nil
	return nil
}

// closeEpoch runs the flush-or-discard decision for the current buffer and
// restarts gathering for the next epoch.
func (d *Defragment) closeEpoch(reason string, emit pipeline.Emit[hls.Fragment]) error {
	if len(d.buffer) > 0 {
		if len(d.buffer) >= d.threshold() {
			d.log.Debug("flushing buffered segment", "reason", reason, "fragments", len(d.buffer))
			if err := d.flush(emit); err != nil {
				return err
			}
		} else {
			d.discard(reason)
		}
	}
	d.gathering = true
	return nil
}

// Process implements pipeline.Operator.
func (d *Defragment) Process(frag hls.Fragment, emit pipeline.Emit[hls.Fragment]) error {
	if hls.IsEndMarker(frag) {
		if err := d.closeEpoch("end marker", emit); err != nil {
			return err
		}
		return emit(frag)
	}

	tag := frag.Type()
	switch {
	case !d.haveType:
		d.log.Info("stream segment type detected", "type", tag)
		d.segType = tag
		d.haveType = true
	case !hls.SameFamily(d.segType, tag):
		d.log.Info("stream segment type changed", "from", d.segType, "to", tag)
		// Implicit end of segment: same flush-or-discard handling as an
		// end marker, but no synthetic marker reaches the output.
		if err := d.closeEpoch("type change", emit); err != nil {
			return err
		}
		d.segType = tag
		d.seenInit = false
	default:
		d.segType = tag
	}

	switch f := frag.(type) {
	case *hls.M4sInitSegment:
		// An init segment always restarts gathering: it is the anchor of
		// a new fMP4 unit.
		d.discard("new init segment")
		d.gathering = true
		d.buffer = append(d.buffer, f)
		d.seenInit = true
		d.log.Debug("init segment received, gathering")
		return nil

	case *hls.M4sMediaSegment:
		if !d.seenInit {
			// Media fragments are unusable until their init segment has
			// been delivered. Hold them, bounded by maxHold.
			d.gathering = true
			if len(d.buffer) >= d.maxHold {
				d.discard("hold buffer full while waiting for init segment")
			}
			d.buffer = append(d.buffer, f)
			return nil
		}

	case *hls.TsSegment:
		// Gathered below alongside media fragments.

	default:
		return fmt.Errorf("unexpected fragment type %T", frag)
	}

	if !d.gathering {
		return emit(frag)
	}

	d.buffer = append(d.buffer, frag)
	if len(d.buffer) >= d.threshold() {
		d.log.Debug("gathered complete segment", "fragments", len(d.buffer))
		if err := d.flush(emit); err != nil {
			return err
		}
		d.gathering = false
	}
	return nil
}

// Finish implements pipeline.Operator. Buffered fragments are flushed when
// they form a viable segment and discarded otherwise.
func (d *Defragment) Finish(emit pipeline.Emit[hls.Fragment]) error {
	if len(d.buffer) == 0 {
		return nil
	}
	if len(d.buffer) >= d.threshold() {
		d.log.Debug("flushing buffered segment at stream end", "fragments", len(d.buffer))
		return d.flush(emit)
	}
	d.discard("stream end")
	return nil
}
