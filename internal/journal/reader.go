package journal

import (
	"encoding/binary"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"

	"main/internal/audit"
)

var ErrCorruptFrame = errors.New("journal: corrupt frame")

// Replay reads every record across the directory's segments in write
// order and hands each to fn. Replay stops on the first fn error.
func Replay(dir, prefix string, fn func(record audit.Record) error) error {
	if prefix == "" {
		prefix = "audit"
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return errors.Wrap(err, "read journal dir")
	}

	var segments []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, prefix+"-") && strings.HasSuffix(name, ".journal") {
			segments = append(segments, name)
		}
	}
	// Segment names embed the creation timestamp, so lexical order is
	// write order.
	sort.Strings(segments)

	for _, name := range segments {
		if err := replaySegment(filepath.Join(dir, name), fn); err != nil {
			return err
		}
	}
	return nil
}

func replaySegment(path string, fn func(record audit.Record) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open journal segment")
	}
	defer f.Close()

	var header [frameHeaderSize]byte
	for {
		if _, err := io.ReadFull(f, header[:]); err != nil {
			if err == io.EOF {
				return nil
			}
			// A torn trailing frame from a crash is tolerated; anything
			// else is corruption.
			if err == io.ErrUnexpectedEOF {
				return nil
			}
			return errors.Wrap(err, "read journal frame")
		}

		length := binary.LittleEndian.Uint32(header[0:4])
		sum := binary.LittleEndian.Uint32(header[4:8])
		if length > maxPayloadSize {
			return ErrCorruptFrame
		}

		payload := make([]byte, length)
		if _, err := io.ReadFull(f, payload); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil
			}
			return errors.Wrap(err, "read journal payload")
		}
		if crc32.ChecksumIEEE(payload) != sum {
			return ErrCorruptFrame
		}

		var record audit.Record
		if err := sonic.Unmarshal(payload, &record); err != nil {
			return errors.Wrap(err, "decode journal record")
		}
		if err := fn(record); err != nil {
			return err
		}
	}
}
