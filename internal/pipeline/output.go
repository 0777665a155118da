package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/anima-voice/anima/internal/eventbus"
	"github.com/anima-voice/anima/pkg/types"
)

// Output consumes an agent chunk stream and emits sequenced bus events.
//
// Every emission carries a per-turn sequence number starting at 0. After
// the stream drains without interrupt, a completion marker is emitted: an
// empty sentence with the next sequence number and is_complete metadata.
// Interrupt stops consumption at the next chunk boundary and suppresses the
// marker.
type Output struct {
	bus *eventbus.Bus

	seq         int
	interrupted atomic.Bool
}

// NewOutput returns an output pipeline emitting on bus.
func NewOutput(bus *eventbus.Bus) *Output {
	return &Output{bus: bus}
}

// ResetSeq restarts the per-turn sequence at 0 and clears the interrupt
// flag. Called by the orchestrator at the start of every turn.
func (p *Output) ResetSeq() {
	p.seq = 0
	p.interrupted.Store(false)
}

// Interrupt stops consumption at the next chunk boundary. Edge-triggered
// and idempotent.
func (p *Output) Interrupt() {
	p.interrupted.Store(true)
}

// Interrupted reports whether Interrupt was called since the last ResetSeq.
func (p *Output) Interrupted() bool {
	return p.interrupted.Load()
}

// Seq returns the next sequence number to be assigned.
func (p *Output) Seq() int {
	return p.seq
}

// Run drives the chunk stream to exhaustion or interrupt, accumulating the
// concatenated reply in pc.Response. A chunk carrying an error aborts the
// turn (no completion marker). On interrupt the remaining chunks are
// drained in the background so the provider goroutine can exit.
func (p *Output) Run(ctx context.Context, chunks <-chan types.Chunk, pc *Context) error {
	for chunk := range chunks {
		if p.interrupted.Load() {
			go func() {
				for range chunks {
				}
			}()
			return nil
		}

		switch {
		case chunk.Err != nil:
			return fmt.Errorf("agent stream: %w", chunk.Err)

		case chunk.Type == types.ChunkToolCall && chunk.ToolCall != nil:
			p.bus.Emit(ctx, eventbus.Event{
				Type: eventbus.TypeToolCall,
				Data: *chunk.ToolCall,
				Seq:  p.seq,
			})
			p.seq++

		case chunk.Text != "":
			pc.Response += chunk.Text
			p.bus.Emit(ctx, eventbus.Event{
				Type: eventbus.TypeSentence,
				Data: chunk.Text,
				Seq:  p.seq,
			})
			p.seq++
		}
	}

	if !p.interrupted.Load() {
		p.bus.Emit(ctx, eventbus.Event{
			Type:     eventbus.TypeSentence,
			Data:     "",
			Seq:      p.seq,
			Metadata: map[string]any{"is_complete": true},
		})
		p.seq++
	}
	return nil
}
