package audit

import (
	"context"
	"sync"

	"github.com/yanun0323/logs"
)

// LogSink writes records to the process log and keeps an in-memory tail
// for inspection. It is the default sink for paper runs and tests.
type LogSink struct {
	mu      sync.Mutex
	records []Record
	limit   int
}

// NewLogSink creates a log sink retaining at most limit records
// (0 = unbounded).
func NewLogSink(limit int) *LogSink {
	return &LogSink{limit: limit}
}

// Append logs and retains the record.
func (s *LogSink) Append(_ context.Context, record Record) error {
	logs.Infof("audit seq=%d kind=%s strategy=%s symbol=%s payload=%s",
		record.Seq, record.Kind, record.StrategyID, record.Symbol, record.Payload)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	if s.limit > 0 && len(s.records) > s.limit {
		s.records = s.records[len(s.records)-s.limit:]
	}
	return nil
}

// Records returns a copy of the retained tail.
func (s *LogSink) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// RecordsOfKind filters the retained tail by kind.
func (s *LogSink) RecordsOfKind(kind RecordKind) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	for _, r := range s.records {
		if r.Kind == kind {
			out = append(out, r)
		}
	}
	return out
}
