package crawl

import (
	"context"
	"errors"
	"fmt"
)

// Executor runs the Builder over exactly the slice it is given. It performs no
// partitioning of its own.
type Executor struct {
	builder Builder
}

// NewExecutor constructs an Executor around builder.
func NewExecutor(builder Builder) *Executor {
	return &Executor{builder: builder}
}

// Execute hands targets to the builder and returns its error wrapped.
func (e *Executor) Execute(ctx context.Context, targets []Target) error {
	if e == nil || e.builder == nil {
		return errors.New("no builder configured")
	}
	if err := e.builder.Build(ctx, targets); err != nil {
		return fmt.Errorf("build %d targets: %w", len(targets), err)
	}
	return nil
}
