package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/anima-voice/anima/internal/config"
)

func TestRegisterBuiltinProviders_CoversAllCategories(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	for kind, names := range builtinProviders {
		for _, name := range names {
			if _, err := reg.Prototype(config.Category(kind), name); err != nil {
				t.Errorf("%s/%s not registered: %v", kind, name, err)
			}
		}
	}
}

func TestSileroFactory_MissingModelFallsBackToEnergy(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	seg, err := reg.CreateVAD(&config.VADSileroConfig{
		ModelPath: filepath.Join(t.TempDir(), "missing.onnx"),
	})
	if err != nil {
		t.Fatalf("factory failed instead of degrading: %v", err)
	}
	if seg == nil {
		t.Fatal("no segmenter returned")
	}

	// The energy-backed segmenter must be live: loud PCM opens speech with
	// the default tuning (3 hits, 5-window smoothing).
	loud := make([]float32, 512*10)
	for i := range loud {
		loud[i] = 0.25
	}
	if _, err := seg.Process(context.Background(), loud); err != nil {
		t.Fatalf("fallback segmenter cannot score: %v", err)
	}
	if !seg.InSpeech() {
		t.Error("fallback segmenter did not detect loud speech")
	}
}
