// Package journal persists audit records to append-only segment files.
// It is the on-disk complement to the database and stream sinks: cheap,
// local, and replayable after a crash.
package journal

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"

	"main/internal/audit"
)

var (
	ErrQueueFull = errors.New("journal: queue full")
	ErrClosed    = errors.New("journal: writer closed")
)

const (
	frameHeaderSize = 8 // u32 payload length + u32 crc32
	maxPayloadSize  = 1 << 20
)

// Config controls segment layout and buffering.
type Config struct {
	Dir             string
	FilePrefix      string
	SegmentMaxBytes int64
	QueueSize       int
	FlushInterval   time.Duration
}

func (c Config) withDefaults() Config {
	if c.FilePrefix == "" {
		c.FilePrefix = "audit"
	}
	if c.SegmentMaxBytes <= 0 {
		c.SegmentMaxBytes = 64 << 20
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = time.Second
	}
	return c
}

// Writer appends audit records to segments from a buffered queue. It
// implements audit.Sink; Append never blocks the pipeline.
type Writer struct {
	cfg    Config
	ch     chan []byte
	wg     sync.WaitGroup
	err    atomic.Value
	closed atomic.Bool
}

// NewWriter creates a journal writer and ensures the directory exists.
func NewWriter(cfg Config) (*Writer, error) {
	cfg = cfg.withDefaults()
	if cfg.Dir == "" {
		return nil, errors.New("journal: empty directory")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create journal dir")
	}
	return &Writer{
		cfg: cfg,
		ch:  make(chan []byte, cfg.QueueSize),
	}, nil
}

// Start runs the writer loop until the context ends or Close is called.
func (w *Writer) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

// Close stops the writer and flushes buffered records.
func (w *Writer) Close() error {
	if w.closed.CompareAndSwap(false, true) {
		close(w.ch)
	}
	w.wg.Wait()
	return w.Err()
}

// Err returns the first write error observed, if any.
func (w *Writer) Err() error {
	if v := w.err.Load(); v != nil {
		return v.(error)
	}
	return nil
}

// Append enqueues a record. A full queue rejects instead of blocking; the
// database and log sinks still hold the record.
func (w *Writer) Append(_ context.Context, record audit.Record) error {
	if w.closed.Load() {
		return ErrClosed
	}
	if err := w.Err(); err != nil {
		return err
	}

	payload, err := sonic.Marshal(record)
	if err != nil {
		return errors.Wrap(err, "encode journal record")
	}
	if len(payload) > maxPayloadSize {
		return errors.New("journal: record too large")
	}

	select {
	case w.ch <- payload:
		return nil
	default:
		return ErrQueueFull
	}
}

func (w *Writer) run(ctx context.Context) {
	var seg *segment
	defer func() {
		if seg != nil {
			if err := seg.close(); err != nil && w.Err() == nil {
				w.err.Store(err)
			}
		}
	}()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.drain(&seg)
			return
		case payload, ok := <-w.ch:
			if !ok {
				return
			}
			if err := w.write(&seg, payload); err != nil {
				w.err.Store(err)
				return
			}
		case <-ticker.C:
			if seg != nil {
				if err := seg.flush(); err != nil {
					w.err.Store(err)
					return
				}
			}
		}
	}
}

func (w *Writer) drain(seg **segment) {
	for {
		select {
		case payload, ok := <-w.ch:
			if !ok {
				return
			}
			if err := w.write(seg, payload); err != nil {
				w.err.Store(err)
				return
			}
		default:
			return
		}
	}
}

func (w *Writer) write(seg **segment, payload []byte) error {
	if *seg != nil && (*seg).size+int64(frameHeaderSize+len(payload)) > w.cfg.SegmentMaxBytes {
		if err := (*seg).close(); err != nil {
			return err
		}
		*seg = nil
	}
	if *seg == nil {
		next, err := openSegment(w.cfg.Dir, w.cfg.FilePrefix)
		if err != nil {
			return err
		}
		*seg = next
	}
	return (*seg).append(payload)
}

type segment struct {
	f    *os.File
	size int64
}

func openSegment(dir, prefix string) (*segment, error) {
	name := fmt.Sprintf("%s-%d.journal", prefix, time.Now().UTC().UnixNano())
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "open journal segment")
	}
	return &segment{f: f}, nil
}

func (s *segment) append(payload []byte) error {
	var header [frameHeaderSize]byte
	binary.LittleEndian.PutUint32(header[0:4], uint32(len(payload)))
	binary.LittleEndian.PutUint32(header[4:8], crc32.ChecksumIEEE(payload))
	if _, err := s.f.Write(header[:]); err != nil {
		return errors.Wrap(err, "write journal frame")
	}
	if _, err := s.f.Write(payload); err != nil {
		return errors.Wrap(err, "write journal payload")
	}
	s.size += int64(frameHeaderSize + len(payload))
	return nil
}

func (s *segment) flush() error {
	return s.f.Sync()
}

func (s *segment) close() error {
	if err := s.f.Sync(); err != nil {
		_ = s.f.Close()
		return err
	}
	return s.f.Close()
}
