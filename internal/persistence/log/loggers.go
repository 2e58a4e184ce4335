package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/oklog/ulid/v2"

	"skirmish.gg/internal/sim/world"
)

// Stream names under an arena directory.
const (
	TickStream     = "events"
	DeliveryStream = "deliveries"
)

// Stream appends JSON lines to zstd files that roll over every UTC hour:
// <dir>/<name>-<yyyy-mm-dd-hh>.jsonl.zst. Each line is flushed through the
// encoder so a crash loses at most the open frame.
type Stream struct {
	dir  string
	name string
	now  func() time.Time

	mu    sync.Mutex
	hour  string
	file  *os.File
	zw    *zstd.Encoder
	buf   *bufio.Writer
	enc   *json.Encoder
	lines uint64
}

// OpenStream prepares the named stream under worldDir/name. Files are created
// lazily on the first Append.
func OpenStream(worldDir, name string) *Stream {
	return &Stream{dir: filepath.Join(worldDir, name), name: name, now: time.Now}
}

func (s *Stream) Append(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if hour := s.now().UTC().Format("2006-01-02-15"); hour != s.hour {
		if err := s.roll(hour); err != nil {
			return fmt.Errorf("%s: roll: %w", s.name, err)
		}
	}
	if err := s.enc.Encode(v); err != nil {
		return fmt.Errorf("%s: encode: %w", s.name, err)
	}
	if err := s.buf.Flush(); err != nil {
		return err
	}
	if err := s.zw.Flush(); err != nil {
		return err
	}
	s.lines++
	return nil
}

// Lines is the number of entries appended since the stream was opened.
func (s *Stream) Lines() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lines
}

func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.release()
}

func (s *Stream) roll(hour string) error {
	if err := s.release(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(s.dir, fileName(s.name, hour)), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	s.file, s.zw = f, zw
	s.buf = bufio.NewWriterSize(zw, 64*1024)
	s.enc = json.NewEncoder(s.buf)
	s.hour = hour
	return nil
}

func (s *Stream) release() error {
	if s.file == nil {
		return nil
	}
	_ = s.buf.Flush()
	err := s.zw.Close()
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	s.file, s.zw, s.buf, s.enc = nil, nil, nil, nil
	s.hour = ""
	return err
}

func fileName(name, hour string) string { return name + "-" + hour + ".jsonl.zst" }

// TickJournal records every tick's inputs and digest, then hands the entry
// to Next when set.
type TickJournal struct {
	s    *Stream
	Next world.TickLogger
}

func NewTickJournal(worldDir string) *TickJournal {
	return &TickJournal{s: OpenStream(worldDir, TickStream)}
}

func (j *TickJournal) WriteTick(entry world.TickLogEntry) error {
	err := j.s.Append(entry)
	if j.Next != nil {
		if nerr := j.Next.WriteTick(entry); err == nil {
			err = nerr
		}
	}
	return err
}

func (j *TickJournal) Close() error { return j.s.Close() }

// DeliveryJournal stamps each damage report with a ULID, appends it to the
// deliveries stream and hands it to Next when set.
type DeliveryJournal struct {
	s    *Stream
	Next world.DeliveryLogger
}

func NewDeliveryJournal(worldDir string) *DeliveryJournal {
	return &DeliveryJournal{s: OpenStream(worldDir, DeliveryStream)}
}

func (j *DeliveryJournal) WriteDelivery(rec world.DeliveryRecord) error {
	if rec.ID == "" {
		rec.ID = ulid.Make().String()
	}
	err := j.s.Append(rec)
	if j.Next != nil {
		if nerr := j.Next.WriteDelivery(rec); err == nil {
			err = nerr
		}
	}
	return err
}

func (j *DeliveryJournal) Close() error { return j.s.Close() }
