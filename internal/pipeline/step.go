package pipeline

import (
	"context"
	"log/slog"
)

// Step is one unit of the input pipeline. Process mutates the turn context;
// it may record a soft failure on pc.Err or return a hard error that aborts
// the pipeline.
type Step interface {
	Name() string
	Enabled() bool
	Process(ctx context.Context, pc *Context) error
}

// Input runs an ordered list of steps over one turn context.
type Input struct {
	steps []Step
}

// NewInput returns an input pipeline over steps, run in order.
func NewInput(steps ...Step) *Input {
	return &Input{steps: steps}
}

// Run executes the steps in order, skipping disabled steps and stopping
// early when a step sets SkipRemaining. A hard error aborts immediately.
func (p *Input) Run(ctx context.Context, pc *Context) error {
	for _, step := range p.steps {
		if pc.SkipRemaining {
			return nil
		}
		if !step.Enabled() {
			continue
		}
		if err := step.Process(ctx, pc); err != nil {
			slog.Error("pipeline step failed", "step", step.Name(), "error", err)
			return err
		}
	}
	return nil
}
