package audio_test

import (
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/anima-voice/anima/internal/audio"
)

// writeWAV writes a 16 kHz mono 16-bit WAV of the given samples.
func writeWAV(t *testing.T, samples []int16) string {
	t.Helper()
	dataLen := len(samples) * 2
	buf := make([]byte, 44+dataLen)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataLen))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1)
	binary.LittleEndian.PutUint16(buf[22:24], 1)
	binary.LittleEndian.PutUint32(buf[24:28], 16000)
	binary.LittleEndian.PutUint32(buf[28:32], 32000)
	binary.LittleEndian.PutUint16(buf[32:34], 2)
	binary.LittleEndian.PutUint16(buf[34:36], 16)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataLen))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[44+i*2:], uint16(s))
	}

	path := filepath.Join(t.TempDir(), "test.wav")
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestAnalyze_DurationAndEnvelope(t *testing.T) {
	t.Parallel()

	// One second: first half loud, second half quiet.
	samples := make([]int16, 16000)
	for i := range samples {
		level := 16000.0
		if i >= 8000 {
			level = 1600.0
		}
		samples[i] = int16(level * math.Sin(float64(i)*2*math.Pi*440/16000))
	}
	path := writeWAV(t, samples)

	a := &audio.Analyzer{}
	analysis, err := a.Analyze(path)
	if err != nil {
		t.Fatal(err)
	}

	if math.Abs(analysis.Duration-1.0) > 0.001 {
		t.Errorf("Duration = %g, want 1.0", analysis.Duration)
	}
	// 50 Hz default envelope rate over 1 s.
	if len(analysis.Envelope) != 50 {
		t.Fatalf("envelope length = %d, want 50", len(analysis.Envelope))
	}
	for i, v := range analysis.Envelope {
		if v < 0 || v > 1 {
			t.Errorf("envelope[%d] = %g outside [0, 1]", i, v)
		}
	}
	// Normalized by peak: the loud half should sit near 1, the quiet half
	// around a tenth of it.
	if analysis.Envelope[10] < 0.9 {
		t.Errorf("loud half envelope = %g, want near 1", analysis.Envelope[10])
	}
	if analysis.Envelope[40] > 0.3 {
		t.Errorf("quiet half envelope = %g, want well below the loud half", analysis.Envelope[40])
	}
}

func TestAnalyze_SilentAudioYieldsZeroEnvelope(t *testing.T) {
	t.Parallel()
	path := writeWAV(t, make([]int16, 1600))

	analysis, err := (&audio.Analyzer{}).Analyze(path)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range analysis.Envelope {
		if v != 0 {
			t.Errorf("envelope[%d] = %g, want 0 for silence", i, v)
		}
	}
}

func TestAnalyze_UnsupportedExtension(t *testing.T) {
	t.Parallel()
	_, err := (&audio.Analyzer{}).Analyze("speech.ogg")
	if !errors.Is(err, audio.ErrUnsupportedFormat) {
		t.Errorf("err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestAnalyze_MalformedWAV(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "bad.wav")
	if err := os.WriteFile(path, []byte("not a wav at all"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := (&audio.Analyzer{}).Analyze(path)
	if !errors.Is(err, audio.ErrMalformedWAV) {
		t.Errorf("err = %v, want ErrMalformedWAV", err)
	}
}

func TestBuffer_AppendPopClear(t *testing.T) {
	t.Parallel()
	b := audio.NewBuffer()

	b.Append([]float32{1, 2})
	b.Append([]float32{3})
	if b.Len() != 3 {
		t.Errorf("Len = %d, want 3", b.Len())
	}

	got := b.Pop()
	if len(got) != 3 || got[0] != 1 || got[2] != 3 {
		t.Errorf("Pop = %v", got)
	}
	if b.Len() != 0 {
		t.Errorf("Len after Pop = %d, want 0", b.Len())
	}

	b.Append([]float32{4})
	b.Clear()
	if b.Len() != 0 {
		t.Errorf("Len after Clear = %d, want 0", b.Len())
	}
}
