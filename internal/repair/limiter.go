package repair

import (
	"log/slog"
	"math"
	"time"

	"github.com/strec/hlsfix/internal/hls"
	"github.com/strec/hlsfix/internal/pipeline"
)

// SegmentLimiter caps output units by cumulative duration or byte size.
// When the next media fragment would cross a limit it emits an EndMarker
// first, and for fMP4 re-emits the retained init segment so every new unit
// is self-contained. Zero limits disable the corresponding check.
type SegmentLimiter struct {
	log         *slog.Logger
	maxDuration time.Duration
	maxBytes    int64

	curDuration time.Duration
	curBytes    int64
	initSeg     *hls.M4sInitSegment
	initSent    bool
}

// NewSegmentLimiter creates a SegmentLimiter. If log is nil,
// slog.Default() is used.
func NewSegmentLimiter(log *slog.Logger, maxDuration time.Duration, maxBytes int64) *SegmentLimiter {
	if log == nil {
		log = slog.Default()
	}
	return &SegmentLimiter{
		log:         log.With("component", "segment-limiter"),
		maxDuration: maxDuration,
		maxBytes:    maxBytes,
	}
}

// Name implements pipeline.Operator.
func (l *SegmentLimiter) Name() string { return "SegmentLimiter" }

// safeDuration converts playlist seconds to a Duration, treating NaN,
// infinities, and negatives as zero.
func safeDuration(secs float64) time.Duration {
	if math.IsNaN(secs) || math.IsInf(secs, 0) || secs <= 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}

// limitReached reports whether adding a fragment of the given size and
// duration would cross a configured limit.
func (l *SegmentLimiter) limitReached(size int, duration float64) bool {
	if l.maxBytes > 0 && l.curBytes+int64(size) > l.maxBytes {
		l.log.Debug("size limit reached", "bytes", l.curBytes+int64(size), "max", l.maxBytes)
		return true
	}
	if l.maxDuration > 0 && l.curDuration+safeDuration(duration) > l.maxDuration {
		l.log.Debug("duration limit reached",
			"duration", l.curDuration+safeDuration(duration), "max", l.maxDuration)
		return true
	}
	return false
}

func (l *SegmentLimiter) resetCounters() {
	l.curDuration = 0
	l.curBytes = 0
	l.initSent = false
}

func (l *SegmentLimiter) track(size int, duration float64) {
	l.curBytes += int64(size)
	l.curDuration += safeDuration(duration)
}

// Process implements pipeline.Operator.
func (l *SegmentLimiter) Process(frag hls.Fragment, emit pipeline.Emit[hls.Fragment]) error {
	switch f := frag.(type) {
	case hls.EndMarker:
		l.resetCounters()
		return emit(frag)

	case *hls.M4sInitSegment:
		// Retain the first init segment so later units can restart with it.
		if l.initSeg == nil {
			l.initSeg = f
		}
		l.initSent = true
		return emit(frag)

	case *hls.M4sMediaSegment:
		if l.limitReached(f.Size(), f.Duration()) {
			if err := emit(hls.EndMarker{}); err != nil {
				return err
			}
			l.resetCounters()
		}
		// Every new unit starts with an init segment.
		if !l.initSent && l.initSeg != nil {
			if err := emit(l.initSeg); err != nil {
				return err
			}
			l.initSent = true
		}
		l.track(f.Size(), f.Duration())
		return emit(frag)

	case *hls.TsSegment:
		if l.limitReached(f.Size(), f.Duration()) {
			if err := emit(hls.EndMarker{}); err != nil {
				return err
			}
			l.resetCounters()
		}
		l.track(f.Size(), f.Duration())
		return emit(frag)

	default:
		return emit(frag)
	}
}

// Finish implements pipeline.Operator. The limiter holds no flushable
// state; the retained init segment belongs to the stream, not a unit.
func (l *SegmentLimiter) Finish(pipeline.Emit[hls.Fragment]) error {
	return nil
}
