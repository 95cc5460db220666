// Command hlsfix repairs a recorded live HLS stream. It reads a media
// playlist, classifies the referenced segment files, and drives them
// through the reassembly pipeline (Defragment → SegmentSplit →
// SegmentLimiter), writing segment-bounded output files.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/livepeer/m3u8"
	"golang.org/x/sync/errgroup"

	"github.com/strec/hlsfix/internal/hls"
	"github.com/strec/hlsfix/internal/pipeline"
	"github.com/strec/hlsfix/internal/repair"
	"github.com/strec/hlsfix/internal/stream"
	"github.com/strec/hlsfix/internal/writer"
)

var version = "dev"

func main() {
	playlistPath := flag.String("playlist", "", "media playlist (.m3u8) to repair")
	outDir := flag.String("out", ".", "output directory")
	base := flag.String("base", "segment", "output file base name")
	maxDuration := flag.Duration("max-duration", 0, "max duration per output file (0 = unlimited)")
	maxSize := flag.Int64("max-size", 0, "max bytes per output file (0 = unlimited)")
	tsMin := flag.Int("ts-min", 3, "minimum fragments for a viable TS segment")
	m4sMin := flag.Int("m4s-min", 5, "minimum fragments for a viable fMP4 segment")
	flag.Parse()

	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if *playlistPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	slog.Info("hlsfix starting", "version", version, "playlist", *playlistPath, "out", *outDir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx, *playlistPath, *outDir, *base, *maxDuration, *maxSize, *tsMin, *m4sMin); err != nil {
		slog.Error("repair failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, playlistPath, outDir, base string, maxDuration time.Duration, maxSize int64, tsMin, m4sMin int) error {
	pls, err := loadPlaylist(playlistPath)
	if err != nil {
		return err
	}

	w := writer.New(nil, outDir, base)
	defer w.Close()

	ops := []pipeline.Operator[hls.Fragment]{
		repair.NewDefragment(nil,
			repair.WithTSThreshold(tsMin),
			repair.WithM4sThreshold(m4sMin)),
		repair.NewSegmentSplit(nil),
	}
	if maxDuration > 0 || maxSize > 0 {
		ops = append(ops, repair.NewSegmentLimiter(nil, maxDuration, maxSize))
	}
	chain := pipeline.NewChain(w.Write, ops...)

	mgr := stream.NewManager(nil)
	name := filepath.Base(playlistPath)
	sess, ok := mgr.Open(name, chain)
	if !ok {
		return fmt.Errorf("session %q already open", name)
	}
	defer mgr.Remove(sess.ID)

	frags := make(chan hls.Fragment, 16)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(frags)
		return readSegments(ctx, filepath.Dir(playlistPath), pls, frags)
	})
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case frag, ok := <-frags:
				if !ok {
					return sess.Close()
				}
				if err := sess.Push(frag); err != nil {
					return err
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	stats := w.Stats()
	slog.Info("repair complete",
		"files", stats.Files,
		"fragments", stats.Fragments,
		"bytes", stats.Bytes,
		"duration", stats.Duration,
	)
	return nil
}

func loadPlaylist(path string) (*m3u8.MediaPlaylist, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	p, _, err := m3u8.DecodeFrom(bufio.NewReader(f), true)
	if err != nil {
		return nil, fmt.Errorf("parse playlist: %w", err)
	}
	pls, ok := p.(*m3u8.MediaPlaylist)
	if !ok {
		return nil, fmt.Errorf("expected a media playlist, got a master playlist")
	}
	return pls, nil
}

// readSegments classifies each playlist entry and sends the resulting
// fragments in playlist order. Init segments referenced by EXT-X-MAP are
// injected whenever the map URI changes.
func readSegments(ctx context.Context, dir string, pls *m3u8.MediaPlaylist, out chan<- hls.Fragment) error {
	send := func(f hls.Fragment) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- f:
			return nil
		}
	}

	lastMapURI := ""
	for _, seg := range pls.Segments {
		if seg == nil {
			continue
		}

		if seg.Map != nil && seg.Map.URI != lastMapURI {
			data, err := os.ReadFile(filepath.Join(dir, seg.Map.URI))
			if err != nil {
				return fmt.Errorf("read init segment: %w", err)
			}
			if err := send(&hls.M4sInitSegment{Segment: seg, Bytes: data}); err != nil {
				return err
			}
			lastMapURI = seg.Map.URI
		}

		data, err := os.ReadFile(filepath.Join(dir, seg.URI))
		if err != nil {
			return fmt.Errorf("read segment %s: %w", seg.URI, err)
		}
		if err := send(classify(seg, data)); err != nil {
			return err
		}
	}
	return send(hls.EndMarker{})
}

// classify tags a segment buffer. Playlist metadata wins (an EXT-X-MAP
// implies fMP4 media); otherwise the container is sniffed from the bytes.
func classify(seg *m3u8.MediaSegment, data []byte) hls.Fragment {
	if seg.Map != nil {
		return &hls.M4sMediaSegment{Segment: seg, Bytes: data}
	}
	t, ok := hls.DetectType(data)
	if !ok {
		slog.Warn("could not sniff container, assuming TS", "uri", seg.URI)
		t = hls.SegmentTypeTS
	}
	switch t {
	case hls.SegmentTypeM4sInit:
		return &hls.M4sInitSegment{Segment: seg, Bytes: data}
	case hls.SegmentTypeM4sMedia:
		return &hls.M4sMediaSegment{Segment: seg, Bytes: data}
	default:
		return &hls.TsSegment{Segment: seg, Bytes: data}
	}
}
