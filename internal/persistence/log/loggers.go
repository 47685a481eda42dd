package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// SegmentTicks is how many ticks share one log file: an hour at the default 100ms tick.
const SegmentTicks = 36000

// flushEvery bounds how many lines sit in the encoder before they are flushed to the file.
const flushEvery = 50

// segmentWriter appends JSON lines to zstd files named prefix-<first tick>.jsonl.zst. Ticks are
// zero padded, so lexical order is write order.
type segmentWriter struct {
	dir    string
	prefix string

	mu      sync.Mutex
	segment int64
	open    bool
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
	pending int
}

func newSegmentWriter(dir, prefix string) *segmentWriter {
	return &segmentWriter{dir: dir, prefix: prefix}
}

func (s *segmentWriter) write(segment int64, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open || segment != s.segment {
		if err := s.openLocked(segment); err != nil {
			return err
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := s.w.Write(b); err != nil {
		return err
	}
	if err := s.w.WriteByte('\n'); err != nil {
		return err
	}
	s.pending++
	if s.pending >= flushEvery {
		return s.flushLocked()
	}
	return nil
}

func (s *segmentWriter) flushLocked() error {
	if !s.open {
		return nil
	}
	s.pending = 0
	if err := s.w.Flush(); err != nil {
		return err
	}
	return s.enc.Flush()
}

// openLocked closes the current segment and opens (or appends to) the given one. Appending
// after a restart adds new zstd frames, which the reader decodes as one stream.
func (s *segmentWriter) openLocked(segment int64) error {
	if err := s.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(s.path(segment), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	s.f, s.enc, s.w = f, enc, bufio.NewWriterSize(enc, 64*1024)
	s.segment, s.open = segment, true
	return nil
}

func (s *segmentWriter) closeLocked() error {
	if !s.open {
		return nil
	}
	err := s.w.Flush()
	if cerr := s.enc.Close(); err == nil {
		err = cerr
	}
	if cerr := s.f.Close(); err == nil {
		err = cerr
	}
	s.f, s.enc, s.w = nil, nil, nil
	s.open, s.pending = false, 0
	return err
}

func (s *segmentWriter) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *segmentWriter) path(segment int64) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s-%012d.jsonl.zst", s.prefix, segment))
}

// TickLogger writes one compressed JSONL entry per tick under <dataDir>/ticks.
type TickLogger struct {
	w       *segmentWriter
	segment int64
}

func NewTickLogger(dataDir string) *TickLogger {
	return &TickLogger{w: newSegmentWriter(filepath.Join(dataDir, "ticks"), "ticks"), segment: SegmentTicks}
}

func (l *TickLogger) WriteTick(e TickEntry) error {
	return l.w.write(e.Tick-e.Tick%l.segment, e)
}

func (l *TickLogger) Close() error { return l.w.close() }
