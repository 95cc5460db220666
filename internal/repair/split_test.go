package repair

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strec/hlsfix/internal/hls"
	"github.com/strec/hlsfix/internal/mpegts"
)

func TestSegmentSplit_InitSegmentChangeTriggersBoundary(t *testing.T) {
	t.Parallel()

	s := NewSegmentSplit(nil)
	var out []hls.Fragment
	emit := collect(&out)

	first := initFragment([]byte{1, 2, 3, 4})
	require.NoError(t, s.Process(first, emit))
	require.Len(t, out, 1)
	assert.Same(t, first, out[0])

	// A different init segment gets a boundary in front of it.
	second := initFragment([]byte{5, 6, 7, 8})
	require.NoError(t, s.Process(second, emit))
	require.Len(t, out, 3)
	assert.True(t, hls.IsEndMarker(out[1]))
	assert.Same(t, second, out[2])
}

func TestSegmentSplit_IdenticalInitSegmentNoBoundary(t *testing.T) {
	t.Parallel()

	s := NewSegmentSplit(nil)
	var out []hls.Fragment
	emit := collect(&out)

	require.NoError(t, s.Process(initFragment([]byte{1, 2, 3, 4}), emit))
	require.NoError(t, s.Process(initFragment([]byte{1, 2, 3, 4}), emit))

	require.Len(t, out, 2)
	for _, f := range out {
		assert.False(t, hls.IsEndMarker(f))
	}
}

func TestSegmentSplit_PATChangeTriggersBoundary(t *testing.T) {
	t.Parallel()

	s := NewSegmentSplit(nil)
	var out []hls.Fragment
	emit := collect(&out)

	// Baseline PAT with two programs never triggers a boundary.
	base := tsFragment(2.0, patPacket([][2]uint16{{1, 0x1000}, {2, 0x1001}}))
	require.NoError(t, s.Process(base, emit))
	require.Len(t, out, 1)

	// Same PAT again: no change.
	require.NoError(t, s.Process(tsFragment(2.0, patPacket([][2]uint16{{1, 0x1000}, {2, 0x1001}})), emit))
	require.Len(t, out, 2)

	// Program 2 replaced by program 3: boundary before the fragment.
	changed := tsFragment(2.0, patPacket([][2]uint16{{1, 0x1000}, {3, 0x1002}}))
	require.NoError(t, s.Process(changed, emit))
	require.Len(t, out, 4)
	assert.True(t, hls.IsEndMarker(out[2]))
	assert.Same(t, changed, out[3])
}

func TestSegmentSplit_PMTChangeTriggersBoundary(t *testing.T) {
	t.Parallel()

	s := NewSegmentSplit(nil)
	var out []hls.Fragment
	emit := collect(&out)

	pmtPID := uint16(0x1000)
	pat := patPacket([][2]uint16{{1, pmtPID}})

	// Baseline: PAT + PMT (H.264 video, AAC audio) in one fragment.
	seg1 := append(append([]byte{}, pat...), pmtPacket(pmtPID, [][2]uint16{{0x1B, 0x0101}, {0x0F, 0x0102}})...)
	require.NoError(t, s.Process(tsFragment(2.0, seg1), emit))
	require.Len(t, out, 1)

	// Identical PMT: no boundary.
	seg2 := append(append([]byte{}, pat...), pmtPacket(pmtPID, [][2]uint16{{0x1B, 0x0101}, {0x0F, 0x0102}})...)
	require.NoError(t, s.Process(tsFragment(2.0, seg2), emit))
	require.Len(t, out, 2)

	// Video codec switched to H.265 on the same PID: boundary.
	seg3 := append(append([]byte{}, pat...), pmtPacket(pmtPID, [][2]uint16{{0x24, 0x0101}, {0x0F, 0x0102}})...)
	changed := tsFragment(2.0, seg3)
	require.NoError(t, s.Process(changed, emit))
	require.Len(t, out, 4)
	assert.True(t, hls.IsEndMarker(out[2]))
	assert.Same(t, changed, out[3])
}

func TestSegmentSplit_PMTOnInactivePIDIgnored(t *testing.T) {
	t.Parallel()

	s := NewSegmentSplit(nil)
	var out []hls.Fragment
	emit := collect(&out)

	// Program 1's PMT PID (0x1000) is active. A PMT on 0x1001 belongs to
	// another program and does not participate in change detection.
	pat := patPacket([][2]uint16{{1, 0x1000}, {2, 0x1001}})
	seg1 := append(append([]byte{}, pat...), pmtPacket(0x1000, [][2]uint16{{0x1B, 0x0101}})...)
	require.NoError(t, s.Process(tsFragment(2.0, seg1), emit))

	seg2 := append(append([]byte{}, pat...), pmtPacket(0x1001, [][2]uint16{{0x24, 0x0201}})...)
	require.NoError(t, s.Process(tsFragment(2.0, seg2), emit))

	require.Len(t, out, 2)
	for _, f := range out {
		assert.False(t, hls.IsEndMarker(f))
	}
}

func TestSegmentSplit_EndMarkerResetsState(t *testing.T) {
	t.Parallel()

	s := NewSegmentSplit(nil)
	var out []hls.Fragment
	emit := collect(&out)

	require.NoError(t, s.Process(initFragment([]byte{1, 2, 3}), emit))
	require.NoError(t, s.Process(hls.EndMarker{}, emit))

	// After the reset, a different init segment is a fresh baseline,
	// not a change.
	require.NoError(t, s.Process(initFragment([]byte{9, 9, 9}), emit))

	require.Len(t, out, 3)
	assert.True(t, hls.IsEndMarker(out[1]))
	assert.False(t, hls.IsEndMarker(out[2]))
}

func TestSegmentSplit_MalformedPacketsSkipped(t *testing.T) {
	t.Parallel()

	s := NewSegmentSplit(nil)
	var out []hls.Fragment
	emit := collect(&out)

	// Garbage sync byte, a trailing partial packet, and a scrambled
	// packet are all skipped without errors or boundaries.
	bad := make([]byte, mpegts.PacketSize)
	bad[0] = 0x12

	scrambled := patPacket([][2]uint16{{1, 0x1000}})
	scrambled[3] |= 0x80

	data := append(append([]byte{}, bad...), scrambled...)
	data = append(data, 0x47, 0x00) // truncated packet tail

	require.NoError(t, s.Process(tsFragment(2.0, data), emit))
	require.Len(t, out, 1)
	assert.False(t, hls.IsEndMarker(out[0]))
}

func TestSegmentSplit_MediaSegmentsPassThrough(t *testing.T) {
	t.Parallel()

	s := NewSegmentSplit(nil)
	var out []hls.Fragment
	emit := collect(&out)

	m := mediaFragment(2.0, []byte{1, 2, 3})
	require.NoError(t, s.Process(m, emit))

	require.Len(t, out, 1)
	assert.Same(t, m, out[0])
}

func TestSegmentSplit_FirstPATNeverTriggers(t *testing.T) {
	t.Parallel()

	s := NewSegmentSplit(nil)
	var out []hls.Fragment
	emit := collect(&out)

	require.NoError(t, s.Process(tsFragment(2.0, patPacket([][2]uint16{{7, 0x1234}})), emit))

	require.Len(t, out, 1)
	assert.False(t, hls.IsEndMarker(out[0]))
}

func TestSegmentSplit_PATAndPMTChangeYieldSingleBoundary(t *testing.T) {
	t.Parallel()

	s := NewSegmentSplit(nil)
	var out []hls.Fragment
	emit := collect(&out)

	pat1 := patPacket([][2]uint16{{1, 0x1000}})
	pmt1 := pmtPacket(0x1000, [][2]uint16{{0x1B, 0x0101}})
	require.NoError(t, s.Process(tsFragment(2.0, append(append([]byte{}, pat1...), pmt1...)), emit))

	// Both tables change inside one fragment: still exactly one marker.
	pat2 := patPacket([][2]uint16{{1, 0x2000}})
	pmt2 := pmtPacket(0x2000, [][2]uint16{{0x24, 0x0201}})
	require.NoError(t, s.Process(tsFragment(2.0, append(append([]byte{}, pat2...), pmt2...)), emit))

	require.Len(t, out, 3)
	assert.True(t, hls.IsEndMarker(out[1]))
}

func TestSegmentSplit_FinishEmitsNothing(t *testing.T) {
	t.Parallel()

	s := NewSegmentSplit(nil)
	var out []hls.Fragment
	require.NoError(t, s.Process(initFragment([]byte{1}), collect(&out)))
	require.NoError(t, s.Finish(collect(&out)))
	assert.Len(t, out, 1)
}
