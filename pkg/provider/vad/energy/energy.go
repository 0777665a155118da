// Package energy provides a model-free vad.Detector based on signal energy.
//
// It is the fallback when no Silero model is available: the window's RMS
// level in dB (int16 scale, so full-scale sine is ~90 dB) is mapped linearly
// onto [0, 1] between a silence floor and a speech ceiling. It has no
// recurrent state and is far less robust than the model detector, but it
// keeps the voice loop alive.
package energy

import (
	"fmt"
	"math"

	"github.com/anima-voice/anima/pkg/provider/vad"
)

// Default dB mapping bounds.
const (
	DefaultFloorDB   = 45.0
	DefaultCeilingDB = 75.0
)

// Detector implements vad.Detector using an RMS energy mapping. The zero
// value is not usable; construct with New.
type Detector struct {
	floorDB   float64
	ceilingDB float64
}

// New returns an energy Detector mapping [floorDB, ceilingDB] onto [0, 1].
func New(floorDB, ceilingDB float64) (*Detector, error) {
	if ceilingDB <= floorDB {
		return nil, fmt.Errorf("energy: ceiling %.1f dB must exceed floor %.1f dB", ceilingDB, floorDB)
	}
	return &Detector{floorDB: floorDB, ceilingDB: ceilingDB}, nil
}

// NewDefault returns an energy Detector with the default dB bounds.
func NewDefault() *Detector {
	return &Detector{floorDB: DefaultFloorDB, ceilingDB: DefaultCeilingDB}
}

// SpeechProbability implements vad.Detector.
func (d *Detector) SpeechProbability(window []float32) (float64, error) {
	db := DecibelLevel(window)
	if math.IsInf(db, -1) {
		return 0, nil
	}
	p := (db - d.floorDB) / (d.ceilingDB - d.floorDB)
	return min(max(p, 0), 1), nil
}

// Reset implements vad.Detector. The detector is stateless.
func (d *Detector) Reset() {}

// Close implements vad.Detector.
func (d *Detector) Close() error { return nil }

// DecibelLevel returns the RMS level of window in dB on the int16 scale.
// An empty or all-zero window returns -Inf.
func DecibelLevel(window []float32) float64 {
	if len(window) == 0 {
		return math.Inf(-1)
	}
	var sum float64
	for _, s := range window {
		v := float64(s) * 32767
		sum += v * v
	}
	rms := math.Sqrt(sum / float64(len(window)))
	if rms == 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(rms)
}

// Ensure Detector implements vad.Detector at compile time.
var _ vad.Detector = (*Detector)(nil)
