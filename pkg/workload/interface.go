package workload

import (
	"context"
)

// Workload is a unit of CPU-bound work whose running time scales with parameter.
// Its output is discarded; only how long it takes matters.
type Workload interface {
	// Name identifies the workload in logs and metrics.
	Name() string

	// Run executes the work. It should return early with ctx.Err() when the
	// context is cancelled.
	Run(ctx context.Context, parameter int) error
}

// ParameterChooser decides how big the next unit of work is.
type ParameterChooser interface {
	ChooseParameter() int
}
