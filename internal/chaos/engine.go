// Package chaos injects faults into a fill stream: dropped, duplicated,
// and reordered execution reports. It exists to prove that reconciliation
// and idempotency hold under a misbehaving venue feed.
package chaos

import (
	"math/rand"
	"time"

	"github.com/yanun0323/errors"

	"main/internal/schema"
)

// Config controls fault injection. Rates are probabilities in [0, 1].
type Config struct {
	Seed          int64
	DropRate      float64
	DuplicateRate float64
	ReorderWindow int
}

// Validate ensures the config is within supported ranges.
func (c Config) Validate() error {
	if c.DropRate < 0 || c.DropRate > 1 {
		return errors.New("dropRate must be between 0 and 1")
	}
	if c.DuplicateRate < 0 || c.DuplicateRate > 1 {
		return errors.New("duplicateRate must be between 0 and 1")
	}
	if c.ReorderWindow < 0 {
		return errors.New("reorderWindow must be >= 0")
	}
	return nil
}

// Engine applies the configured faults to fills. Not safe for concurrent
// use; run one engine per stream.
type Engine struct {
	cfg     Config
	rng     *rand.Rand
	pending []schema.Fill
}

// NewEngine creates a fault injector. Zero seed picks a time-based one.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.ReorderWindow <= 0 {
		cfg.ReorderWindow = 1
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UTC().UnixNano()
	}
	return &Engine{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Process applies faults to one fill and returns the fills to deliver.
// Reordering buffers up to ReorderWindow fills and releases a random one.
func (e *Engine) Process(fill schema.Fill) []schema.Fill {
	if e == nil {
		return []schema.Fill{fill}
	}
	if e.cfg.DropRate > 0 && e.rng.Float64() < e.cfg.DropRate {
		return nil
	}
	if e.cfg.ReorderWindow <= 1 {
		return e.duplicate(fill)
	}

	e.pending = append(e.pending, fill)
	if len(e.pending) < e.cfg.ReorderWindow {
		return nil
	}
	idx := e.rng.Intn(len(e.pending))
	out := e.pending[idx]
	e.pending = append(e.pending[:idx], e.pending[idx+1:]...)
	return e.duplicate(out)
}

// Flush releases buffered fills in random order after the stream ends.
func (e *Engine) Flush() []schema.Fill {
	if e == nil || len(e.pending) == 0 {
		return nil
	}
	out := make([]schema.Fill, 0, len(e.pending))
	for len(e.pending) > 0 {
		idx := e.rng.Intn(len(e.pending))
		fill := e.pending[idx]
		e.pending = append(e.pending[:idx], e.pending[idx+1:]...)
		out = append(out, e.duplicate(fill)...)
	}
	return out
}

// Pipe runs the engine between an input and output fill channel until the
// input closes, then flushes and closes the output.
func (e *Engine) Pipe(in <-chan schema.Fill, out chan<- schema.Fill) {
	for fill := range in {
		for _, f := range e.Process(fill) {
			out <- f
		}
	}
	for _, f := range e.Flush() {
		out <- f
	}
	close(out)
}

func (e *Engine) duplicate(fill schema.Fill) []schema.Fill {
	out := []schema.Fill{fill}
	if e.cfg.DuplicateRate > 0 && e.rng.Float64() < e.cfg.DuplicateRate {
		out = append(out, fill)
	}
	return out
}
