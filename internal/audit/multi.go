package audit

import "context"

// MultiSink fans one record into several sinks. Every sink sees every
// record; the first error is returned after all sinks ran.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink composes sinks into one.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Append delivers the record to every sink.
func (m *MultiSink) Append(ctx context.Context, record Record) error {
	var first error
	for _, s := range m.sinks {
		if err := s.Append(ctx, record); err != nil && first == nil {
			first = err
		}
	}
	return first
}
