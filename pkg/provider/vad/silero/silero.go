// Package silero provides a vad.Detector backed by the Silero VAD ONNX
// model, run through onnxruntime.
//
// The model is recurrent: it carries an LSTM state of shape [2, 1, 128] and
// a 64-sample context tail between windows, so one Detector serves exactly
// one audio stream. The onnxruntime environment itself is process-global and
// initialized once.
package silero

import (
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/anima-voice/anima/pkg/provider/vad"
)

const (
	stateSize   = 2 * 1 * 128
	contextSize = 64
)

var (
	ortInitMu   sync.Mutex
	ortInitDone bool
)

// initRuntime initializes the process-global onnxruntime environment. The
// shared library path can be overridden with ONNXRUNTIME_SHARED_LIBRARY_PATH.
func initRuntime() error {
	ortInitMu.Lock()
	defer ortInitMu.Unlock()

	if ortInitDone {
		return nil
	}
	if libPath := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH"); libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("initialize onnxruntime: %w", err)
	}
	ortInitDone = true
	return nil
}

// Detector implements vad.Detector using the Silero VAD model.
type Detector struct {
	mu      sync.Mutex
	session *ort.DynamicAdvancedSession

	// LSTM state, carried between windows.
	state []float32
	// Tail of the previous window, prepended to the next model input.
	context []float32

	closed bool
}

// New loads the Silero VAD model from modelPath and returns a fresh
// Detector with zeroed recurrent state.
func New(modelPath string) (*Detector, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("silero: model file: %w", err)
	}
	if err := initRuntime(); err != nil {
		return nil, fmt.Errorf("silero: %w", err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("silero: create session options: %w", err)
	}
	defer options.Destroy()

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		[]string{"input", "state", "sr"},
		[]string{"output", "stateN"},
		options,
	)
	if err != nil {
		return nil, fmt.Errorf("silero: create session: %w", err)
	}

	return &Detector{
		session: session,
		state:   make([]float32, stateSize),
		context: make([]float32, contextSize),
	}, nil
}

// SpeechProbability implements vad.Detector.
func (d *Detector) SpeechProbability(window []float32) (float64, error) {
	if len(window) != vad.WindowSize {
		return 0, fmt.Errorf("silero: window must be %d samples, got %d", vad.WindowSize, len(window))
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return 0, fmt.Errorf("silero: detector is closed")
	}

	// Model input is [1, context + window].
	inputData := make([]float32, contextSize+len(window))
	copy(inputData[:contextSize], d.context)
	copy(inputData[contextSize:], window)
	copy(d.context, window[len(window)-contextSize:])

	inputTensor, err := ort.NewTensor(ort.NewShape(1, int64(len(inputData))), inputData)
	if err != nil {
		return 0, fmt.Errorf("silero: create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	stateTensor, err := ort.NewTensor(ort.NewShape(2, 1, 128), d.state)
	if err != nil {
		return 0, fmt.Errorf("silero: create state tensor: %w", err)
	}
	defer stateTensor.Destroy()

	srTensor, err := ort.NewTensor(ort.NewShape(1), []int64{int64(vad.SampleRate)})
	if err != nil {
		return 0, fmt.Errorf("silero: create sr tensor: %w", err)
	}
	defer srTensor.Destroy()

	outputs := []ort.Value{nil, nil}
	if err := d.session.Run([]ort.Value{inputTensor, stateTensor, srTensor}, outputs); err != nil {
		return 0, fmt.Errorf("silero: run inference: %w", err)
	}
	defer func() {
		for _, out := range outputs {
			if out != nil {
				out.Destroy()
			}
		}
	}()

	probData := outputs[0].(*ort.Tensor[float32]).GetData()
	copy(d.state, outputs[1].(*ort.Tensor[float32]).GetData())

	if len(probData) == 0 {
		return 0, fmt.Errorf("silero: empty model output")
	}
	return float64(probData[0]), nil
}

// Reset implements vad.Detector.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	clear(d.state)
	clear(d.context)
}

// Close implements vad.Detector.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	if d.session != nil {
		if err := d.session.Destroy(); err != nil {
			return fmt.Errorf("silero: destroy session: %w", err)
		}
		d.session = nil
	}
	return nil
}

// Ensure Detector implements vad.Detector at compile time.
var _ vad.Detector = (*Detector)(nil)
