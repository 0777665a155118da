package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrAllFailed is returned by [FallbackGroup.Execute] when every member of
// the group failed.
var ErrAllFailed = errors.New("all fallback candidates failed")

// FallbackGroup tries an ordered list of named candidates until one succeeds.
// It remembers the last candidate that worked and starts there on the next
// call, so a dead primary is not re-probed on every operation.
//
// It is used to degrade gracefully between provider backends of the same
// kind, e.g. from a model-based speech detector to an energy threshold when
// the model runtime is unavailable.
type FallbackGroup[T any] struct {
	mu         sync.Mutex
	candidates []candidate[T]
	active     int
}

type candidate[T any] struct {
	name  string
	value T
}

// NewFallbackGroup returns an empty group. Candidates are tried in the order
// they were added.
func NewFallbackGroup[T any]() *FallbackGroup[T] {
	return &FallbackGroup[T]{}
}

// Add appends a named candidate to the group.
func (g *FallbackGroup[T]) Add(name string, value T) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.candidates = append(g.candidates, candidate[T]{name: name, value: value})
}

// Len returns the number of candidates.
func (g *FallbackGroup[T]) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.candidates)
}

// Active returns the name of the candidate that will be tried first.
func (g *FallbackGroup[T]) Active() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active >= len(g.candidates) {
		return ""
	}
	return g.candidates[g.active].name
}

// Execute runs op against candidates starting at the active one, advancing
// on failure. On success the succeeding candidate becomes active. If all
// candidates fail, the active index resets to the first candidate and the
// last error is returned wrapped in [ErrAllFailed].
func (g *FallbackGroup[T]) Execute(ctx context.Context, op func(ctx context.Context, name string, value T) error) error {
	g.mu.Lock()
	start := g.active
	cands := g.candidates
	g.mu.Unlock()

	if len(cands) == 0 {
		return fmt.Errorf("%w: empty group", ErrAllFailed)
	}

	var lastErr error
	for i := start; i < len(cands); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		c := cands[i]
		err := op(ctx, c.name, c.value)
		if err == nil {
			if i != start {
				slog.Warn("fallback engaged", "from", cands[start].name, "to", c.name)
			}
			g.mu.Lock()
			g.active = i
			g.mu.Unlock()
			return nil
		}
		lastErr = err
		slog.Debug("fallback candidate failed", "candidate", c.name, "error", err)
	}

	g.mu.Lock()
	g.active = 0
	g.mu.Unlock()
	return fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}
