// Package pipeline defines the push-based operator contract that every
// reassembly stage implements, and a Chain that composes stages so each
// stage's emissions feed the next. Stages are pure, synchronous state
// machines: Process consumes one item and may emit zero or more items in
// order before returning; Finish flushes buffered state exactly once at
// stream end.
package pipeline

import (
	"context"
	"errors"
	"fmt"
)

// ErrFinished is returned when a chain is driven after Finish.
var ErrFinished = errors.New("pipeline: already finished")

// Emit delivers one item to the next stage or the terminal sink. A stage
// must not retain ownership of an item after passing it to emit.
type Emit[T any] func(T) error

// Operator is one reassembly stage.
type Operator[T any] interface {
	// Process consumes one item and emits zero or more items, in order,
	// before returning. It returns an error only for structural-contract
	// violations; routine stream irregularities are absorbed and logged.
	Process(item T, emit Emit[T]) error
	// Finish is called exactly once when the upstream source is
	// exhausted. It must flush or discard any buffered items. Calling
	// Process after Finish is undefined.
	Finish(emit Emit[T]) error
	// Name is a stable identifier for logging and error wrapping.
	Name() string
}

// Chain composes operators into a single pipeline. Items pushed into
// Process traverse every stage in order; emissions from stage i are fed
// synchronously into stage i+1.
type Chain[T any] struct {
	ops      []Operator[T]
	sink     Emit[T]
	finished bool
}

// NewChain builds a chain over the given operators, terminating in sink.
func NewChain[T any](sink Emit[T], ops ...Operator[T]) *Chain[T] {
	return &Chain[T]{ops: ops, sink: sink}
}

// Process pushes one item through every stage of the chain.
func (c *Chain[T]) Process(item T) error {
	if c.finished {
		return ErrFinished
	}
	return c.route(c.ops, item)
}

// route recursively threads an item through the given stages and into
// the sink.
func (c *Chain[T]) route(ops []Operator[T], item T) error {
	if len(ops) == 0 {
		return c.sink(item)
	}
	head, rest := ops[0], ops[1:]
	if err := head.Process(item, func(out T) error {
		return c.route(rest, out)
	}); err != nil {
		return fmt.Errorf("stage %s: %w", head.Name(), err)
	}
	return nil
}

// Finish finalizes the chain front to back, so anything a stage flushes
// still traverses the stages after it. Subsequent calls return
// ErrFinished.
func (c *Chain[T]) Finish() error {
	if c.finished {
		return ErrFinished
	}
	c.finished = true

	for i, op := range c.ops {
		rest := c.ops[i+1:]
		if err := op.Finish(func(out T) error {
			return c.route(rest, out)
		}); err != nil {
			return fmt.Errorf("stage %s finish: %w", op.Name(), err)
		}
	}
	return nil
}

// Run drains src through the chain and finalizes it. The context is
// checked between items; cancellation simply abandons buffered state,
// which is safe because partial segments are never semantically complete.
func (c *Chain[T]) Run(ctx context.Context, src <-chan T) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case item, ok := <-src:
			if !ok {
				return c.Finish()
			}
			if err := c.Process(item); err != nil {
				return err
			}
		}
	}
}
