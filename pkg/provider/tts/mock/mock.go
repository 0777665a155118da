// Package mock provides a test double for the tts.Provider interface.
//
// By default Synthesize writes a tiny valid WAV file into a temp directory
// and returns its path, so downstream audio analysis keeps working in tests
// without a live backend.
package mock

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/anima-voice/anima/pkg/provider/tts"
)

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Dir is where generated WAV files are written. Defaults to os.TempDir().
	Dir string

	// SampleCount is the number of 16 kHz samples in generated files.
	// Defaults to 1600 (100 ms).
	SampleCount int

	// Path, if non-empty, is returned from Synthesize instead of generating
	// a file.
	Path string

	// Err, if non-nil, is returned from Synthesize.
	Err error

	// SynthesizeCalls records the texts passed to Synthesize.
	SynthesizeCalls []string

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// Synthesize records the call and returns either Path or the path of a
// freshly written silent WAV file.
func (p *Provider) Synthesize(_ context.Context, text string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.SynthesizeCalls = append(p.SynthesizeCalls, text)

	if p.Err != nil {
		return "", p.Err
	}
	if p.Path != "" {
		return p.Path, nil
	}

	dir := p.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	n := p.SampleCount
	if n <= 0 {
		n = 1600
	}

	path := filepath.Join(dir, fmt.Sprintf("mock-tts-%d.wav", len(p.SynthesizeCalls)))
	if err := os.WriteFile(path, silentWAV(n), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// Close records the call and returns nil.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CloseCallCount++
	return nil
}

// silentWAV returns a 16 kHz mono 16-bit WAV of n zero samples.
func silentWAV(n int) []byte {
	dataLen := n * 2
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
	return buf
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
