package pipeline_test

import (
	"context"
	"errors"
	"testing"

	"github.com/anima-voice/anima/internal/eventbus"
	"github.com/anima-voice/anima/internal/observe"
	"github.com/anima-voice/anima/internal/pipeline"
	asrmock "github.com/anima-voice/anima/pkg/provider/asr/mock"
	"github.com/anima-voice/anima/pkg/types"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestRecognize_TextInputPassesThrough(t *testing.T) {
	t.Parallel()
	step := &pipeline.RecognizeStep{}
	pc := &pipeline.Context{RawText: "hello there"}

	if err := step.Process(context.Background(), pc); err != nil {
		t.Fatal(err)
	}
	if pc.Text != "hello there" {
		t.Errorf("Text = %q", pc.Text)
	}
	if pc.Err != nil {
		t.Errorf("Err = %v, want nil", pc.Err)
	}
}

func TestRecognize_AudioEmitsTranscript(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	var transcripts []eventbus.Event
	bus.Subscribe(eventbus.TypeUserTranscript, func(_ context.Context, ev eventbus.Event) error {
		transcripts = append(transcripts, ev)
		return nil
	}, 0)

	step := &pipeline.RecognizeStep{
		ASR: &asrmock.Provider{Text: "what I said"},
		Bus: bus,
	}
	pc := &pipeline.Context{RawAudio: make([]float32, 1600)}

	if err := step.Process(context.Background(), pc); err != nil {
		t.Fatal(err)
	}
	if pc.Text != "what I said" {
		t.Errorf("Text = %q", pc.Text)
	}
	if len(transcripts) != 1 {
		t.Fatalf("got %d transcript events, want 1", len(transcripts))
	}
	if isFinal, _ := transcripts[0].Metadata["is_final"].(bool); !isFinal {
		t.Error("transcript event not marked is_final")
	}
}

func TestRecognize_SoftFailures(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		step *pipeline.RecognizeStep
		pc   *pipeline.Context
	}{
		{
			name: "empty audio",
			step: &pipeline.RecognizeStep{ASR: &asrmock.Provider{Text: "x"}},
			pc:   &pipeline.Context{RawAudio: []float32{}},
		},
		{
			// An audio turn with no buffered samples at all.
			name: "audio turn without samples",
			step: &pipeline.RecognizeStep{ASR: &asrmock.Provider{Text: "x"}},
			pc:   &pipeline.Context{IsAudio: true},
		},
		{
			name: "no provider",
			step: &pipeline.RecognizeStep{},
			pc:   &pipeline.Context{RawAudio: make([]float32, 100)},
		},
		{
			name: "provider error",
			step: &pipeline.RecognizeStep{ASR: &asrmock.Provider{Err: errors.New("offline")}},
			pc:   &pipeline.Context{RawAudio: make([]float32, 100)},
		},
		{
			name: "blank transcript",
			step: &pipeline.RecognizeStep{ASR: &asrmock.Provider{Text: "   "}},
			pc:   &pipeline.Context{RawAudio: make([]float32, 100)},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if err := tc.step.Process(context.Background(), tc.pc); err != nil {
				t.Fatalf("soft failure surfaced as hard error: %v", err)
			}
			if tc.pc.Err == nil {
				t.Error("Err = nil, want a recorded soft failure")
			}
		})
	}
}

func TestRecognize_RecordsLatencyHistogram(t *testing.T) {
	t.Parallel()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	metrics, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatal(err)
	}

	step := &pipeline.RecognizeStep{
		ASR:     &asrmock.Provider{Text: "spoken words"},
		Metrics: metrics,
	}
	pc := &pipeline.Context{RawAudio: make([]float32, 1600)}
	if err := step.Process(context.Background(), pc); err != nil {
		t.Fatal(err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatal(err)
	}
	var hist metricdata.Histogram[float64]
	found := false
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == "anima.asr.duration" {
				hist, found = m.Data.(metricdata.Histogram[float64])
			}
		}
	}
	if !found {
		t.Fatal("anima.asr.duration not collected")
	}
	if len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 1 {
		t.Fatalf("DataPoints = %+v, want a single point with count 1", hist.DataPoints)
	}
}

func TestClean_CollapsesWhitespaceAndStripsEmoji(t *testing.T) {
	t.Parallel()
	step := &pipeline.CleanStep{StripEmoji: true}
	pc := &pipeline.Context{Text: "  hi   there 😀  friend ❤️ "}

	if err := step.Process(context.Background(), pc); err != nil {
		t.Fatal(err)
	}
	if pc.Text != "hi there friend" {
		t.Errorf("Text = %q, want %q", pc.Text, "hi there friend")
	}
}

func TestClean_KeepsEmojiWhenDisabled(t *testing.T) {
	t.Parallel()
	step := &pipeline.CleanStep{}
	pc := &pipeline.Context{Text: "hi 😀"}

	if err := step.Process(context.Background(), pc); err != nil {
		t.Fatal(err)
	}
	if pc.Text != "hi 😀" {
		t.Errorf("Text = %q", pc.Text)
	}
}

func TestOutput_SequencesChunksAndEmitsMarker(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	var events []eventbus.Event
	bus.Subscribe(eventbus.TypeSentence, func(_ context.Context, ev eventbus.Event) error {
		events = append(events, ev)
		return nil
	}, 0)

	out := pipeline.NewOutput(bus)
	out.ResetSeq()

	chunks := make(chan types.Chunk, 4)
	chunks <- types.Chunk{Type: types.ChunkText, Text: "Hello "}
	chunks <- types.Chunk{Type: types.ChunkText, Text: "world"}
	close(chunks)

	pc := &pipeline.Context{}
	if err := out.Run(context.Background(), chunks, pc); err != nil {
		t.Fatal(err)
	}

	if pc.Response != "Hello world" {
		t.Errorf("Response = %q", pc.Response)
	}
	if len(events) != 3 {
		t.Fatalf("got %d sentence events, want 2 deltas + marker", len(events))
	}
	for i, ev := range events {
		if ev.Seq != i {
			t.Errorf("event %d has seq %d, want strictly increasing from 0", i, ev.Seq)
		}
	}
	marker := events[len(events)-1]
	if marker.Data != "" {
		t.Errorf("marker body = %v, want empty", marker.Data)
	}
	if isComplete, _ := marker.Metadata["is_complete"].(bool); !isComplete {
		t.Error("marker missing is_complete metadata")
	}
}

func TestOutput_InterruptSuppressesMarker(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	out := pipeline.NewOutput(bus)
	out.ResetSeq()

	var events []eventbus.Event
	bus.Subscribe(eventbus.TypeSentence, func(_ context.Context, ev eventbus.Event) error {
		events = append(events, ev)
		if len(events) == 1 {
			out.Interrupt()
		}
		return nil
	}, 0)

	chunks := make(chan types.Chunk, 4)
	chunks <- types.Chunk{Type: types.ChunkText, Text: "first"}
	chunks <- types.Chunk{Type: types.ChunkText, Text: "second"}
	chunks <- types.Chunk{Type: types.ChunkText, Text: "third"}
	close(chunks)

	pc := &pipeline.Context{}
	if err := out.Run(context.Background(), chunks, pc); err != nil {
		t.Fatal(err)
	}

	if len(events) != 1 {
		t.Fatalf("got %d events after interrupt, want 1", len(events))
	}
	if !out.Interrupted() {
		t.Error("Interrupted = false")
	}
	for _, ev := range events {
		if isComplete, _ := ev.Metadata["is_complete"].(bool); isComplete {
			t.Error("completion marker emitted despite interrupt")
		}
	}
}

func TestOutput_ChunkErrorAbortsWithoutMarker(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	var events []eventbus.Event
	bus.Subscribe(eventbus.TypeSentence, func(_ context.Context, ev eventbus.Event) error {
		events = append(events, ev)
		return nil
	}, 0)

	out := pipeline.NewOutput(bus)
	out.ResetSeq()

	chunks := make(chan types.Chunk, 2)
	chunks <- types.Chunk{Type: types.ChunkText, Text: "partial"}
	chunks <- types.Chunk{Err: errors.New("stream broke")}
	close(chunks)

	pc := &pipeline.Context{}
	err := out.Run(context.Background(), chunks, pc)
	if err == nil {
		t.Fatal("expected error from broken stream")
	}
	if len(events) != 1 {
		t.Errorf("got %d events, want just the delta before the error", len(events))
	}
}

func TestOutput_ToolCallEventsShareSequence(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	var seqs []int
	record := func(_ context.Context, ev eventbus.Event) error {
		seqs = append(seqs, ev.Seq)
		return nil
	}
	bus.Subscribe(eventbus.TypeSentence, record, 0)
	bus.Subscribe(eventbus.TypeToolCall, record, 0)

	out := pipeline.NewOutput(bus)
	out.ResetSeq()

	chunks := make(chan types.Chunk, 3)
	chunks <- types.Chunk{Type: types.ChunkText, Text: "let me check"}
	chunks <- types.Chunk{Type: types.ChunkToolCall, ToolCall: &types.ToolCall{Name: "lookup"}}
	chunks <- types.Chunk{Type: types.ChunkText, Text: "done"}
	close(chunks)

	if err := out.Run(context.Background(), chunks, &pipeline.Context{}); err != nil {
		t.Fatal(err)
	}
	for i, seq := range seqs {
		if seq != i {
			t.Errorf("event %d has seq %d, want one shared increasing counter", i, seq)
		}
	}
}

func TestInput_StepOrderAndSkip(t *testing.T) {
	t.Parallel()

	in := pipeline.NewInput(
		&pipeline.RecognizeStep{},
		&pipeline.CleanStep{},
	)
	pc := &pipeline.Context{RawText: "  spaced    out  "}
	if err := in.Run(context.Background(), pc); err != nil {
		t.Fatal(err)
	}
	if pc.Text != "spaced out" {
		t.Errorf("Text = %q", pc.Text)
	}
}
