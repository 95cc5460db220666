// Package writer is the downstream consumer of the reassembly pipeline:
// it turns the segment-bounded fragment stream into rolled output files.
// Every EndMarker closes the current file; the next data fragment opens a
// new one. The reassembly operators themselves never touch the filesystem.
package writer

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/strec/hlsfix/internal/hls"
)

// Stats summarizes what a Writer has produced.
type Stats struct {
	Files     int
	Fragments int64
	Bytes     int64
	Duration  float64
}

// Writer writes fragments to sequentially numbered files in a directory.
// It is single-owner like the operators feeding it.
type Writer struct {
	log  *slog.Logger
	dir  string
	base string

	seq       int
	f         *os.File
	path      string
	fileBytes int64
	stats     Stats
}

// New creates a Writer rooted at dir. Files are named
// <base>_<seq>.<ext>, with the extension chosen per container family.
// If log is nil, slog.Default() is used.
func New(log *slog.Logger, dir, base string) *Writer {
	if log == nil {
		log = slog.Default()
	}
	return &Writer{
		log:  log.With("component", "writer"),
		dir:  dir,
		base: base,
	}
}

// Stats returns totals accumulated so far.
func (w *Writer) Stats() Stats { return w.stats }

func extFor(t hls.SegmentType) string {
	if t == hls.SegmentTypeTS {
		return "ts"
	}
	return "mp4"
}

// Write consumes one fragment. It satisfies pipeline.Emit[hls.Fragment]
// as a method value (w.Write).
func (w *Writer) Write(frag hls.Fragment) error {
	if hls.IsEndMarker(frag) {
		return w.roll()
	}

	if w.f == nil {
		w.seq++
		w.path = filepath.Join(w.dir, fmt.Sprintf("%s_%05d.%s", w.base, w.seq, extFor(frag.Type())))
		f, err := os.Create(w.path)
		if err != nil {
			return fmt.Errorf("writer: create %s: %w", w.path, err)
		}
		w.f = f
		w.fileBytes = 0
		w.stats.Files++
		w.log.Info("opened output file", "path", w.path)
	}

	n, err := w.f.Write(frag.Data())
	if err != nil {
		return fmt.Errorf("writer: write %s: %w", w.path, err)
	}
	w.fileBytes += int64(n)
	w.stats.Bytes += int64(n)
	w.stats.Fragments++
	w.stats.Duration += frag.Duration()
	return nil
}

// roll closes the current output file, if any.
func (w *Writer) roll() error {
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.log.Info("closed output file", "path", w.path, "bytes", w.fileBytes)
	w.f = nil
	if err != nil {
		return fmt.Errorf("writer: close %s: %w", w.path, err)
	}
	return nil
}

// Close finalizes the writer, closing any open file.
func (w *Writer) Close() error {
	return w.roll()
}
