package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/hajimehoshi/go-mp3"
)

// DefaultEnvelopeRate is the envelope sampling rate in Hz (one value per
// 20 ms of audio). It matches the renderer's lip-sync update rate.
const DefaultEnvelopeRate = 50

// Analyzer errors.
var (
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrMalformedWAV      = errors.New("malformed WAV file")
)

// Analysis is the result of analyzing one synthesized audio file.
type Analysis struct {
	// Duration of the audio in seconds.
	Duration float64

	// Envelope is the normalized RMS level per envelope window, each value
	// in [0, 1] after dividing by the peak. All-silent audio yields all
	// zeros.
	Envelope []float64
}

// Analyzer computes duration and volume envelope from synthesized audio.
// The format is chosen by file extension: .wav (16-bit PCM) or .mp3.
type Analyzer struct {
	// EnvelopeRate is the envelope sampling rate in Hz. Zero means
	// DefaultEnvelopeRate.
	EnvelopeRate int
}

// Analyze reads the audio file at path and returns its analysis.
func (a *Analyzer) Analyze(path string) (*Analysis, error) {
	var (
		samples    []float32
		sampleRate int
		err        error
	)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		samples, sampleRate, err = decodeWAV(path)
	case ".mp3":
		samples, sampleRate, err = decodeMP3(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}

	rate := a.EnvelopeRate
	if rate <= 0 {
		rate = DefaultEnvelopeRate
	}

	return &Analysis{
		Duration: float64(len(samples)) / float64(sampleRate),
		Envelope: envelope(samples, sampleRate, rate),
	}, nil
}

// envelope computes per-window RMS at envelopeRate Hz and normalizes by the
// peak value.
func envelope(samples []float32, sampleRate, envelopeRate int) []float64 {
	hop := sampleRate / envelopeRate
	if hop <= 0 {
		hop = 1
	}

	n := (len(samples) + hop - 1) / hop
	out := make([]float64, 0, n)
	peak := 0.0

	for start := 0; start < len(samples); start += hop {
		end := min(start+hop, len(samples))
		var sum float64
		for _, s := range samples[start:end] {
			sum += float64(s) * float64(s)
		}
		rms := math.Sqrt(sum / float64(end-start))
		if rms > peak {
			peak = rms
		}
		out = append(out, rms)
	}

	if peak > 0 {
		for i := range out {
			out[i] /= peak
		}
	}
	return out
}

// decodeWAV reads a 16-bit PCM WAV file, down-mixing to mono.
func decodeWAV(path string) ([]float32, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("read wav: %w", err)
	}
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("%w: missing RIFF/WAVE header", ErrMalformedWAV)
	}

	var (
		sampleRate    int
		channels      int
		bitsPerSample int
		pcm           []byte
	)

	// Walk the chunk list; only fmt and data matter.
	for off := 12; off+8 <= len(data); {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if body+size > len(data) {
			size = len(data) - body
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return nil, 0, fmt.Errorf("%w: short fmt chunk", ErrMalformedWAV)
			}
			format := binary.LittleEndian.Uint16(data[body : body+2])
			if format != 1 {
				return nil, 0, fmt.Errorf("%w: non-PCM format %d", ErrUnsupportedFormat, format)
			}
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bitsPerSample = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
		case "data":
			pcm = data[body : body+size]
		}
		// Chunks are word-aligned.
		off = body + size + size%2
	}

	if sampleRate == 0 || pcm == nil {
		return nil, 0, fmt.Errorf("%w: missing fmt or data chunk", ErrMalformedWAV)
	}
	if bitsPerSample != 16 {
		return nil, 0, fmt.Errorf("%w: %d bits per sample", ErrUnsupportedFormat, bitsPerSample)
	}
	if channels <= 0 {
		return nil, 0, fmt.Errorf("%w: %d channels", ErrMalformedWAV, channels)
	}

	frames := len(pcm) / (2 * channels)
	samples := make([]float32, frames)
	for i := range frames {
		var sum float32
		for ch := range channels {
			idx := (i*channels + ch) * 2
			sum += float32(int16(binary.LittleEndian.Uint16(pcm[idx:idx+2]))) / 32768.0
		}
		samples[i] = sum / float32(channels)
	}
	return samples, sampleRate, nil
}

// decodeMP3 reads an MP3 file via go-mp3, which always outputs 16-bit
// stereo, and down-mixes to mono.
func decodeMP3(path string) ([]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open mp3: %w", err)
	}
	defer f.Close()

	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, 0, fmt.Errorf("decode mp3: %w", err)
	}

	// Length is in bytes of 16-bit stereo output (4 bytes per frame).
	pcm := make([]byte, dec.Length())
	n, err := io.ReadFull(dec, pcm)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, 0, fmt.Errorf("read mp3 pcm: %w", err)
	}
	pcm = pcm[:n]

	frames := len(pcm) / 4
	samples := make([]float32, frames)
	for i := range frames {
		left := float32(int16(binary.LittleEndian.Uint16(pcm[i*4:]))) / 32768.0
		right := float32(int16(binary.LittleEndian.Uint16(pcm[i*4+2:]))) / 32768.0
		samples[i] = (left + right) / 2
	}
	return samples, dec.SampleRate(), nil
}
