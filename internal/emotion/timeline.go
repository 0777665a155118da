package emotion

import (
	"fmt"
)

// Strategy selects how emotion segments are sized over the audio.
type Strategy string

const (
	// StrategyPosition splits the duration into equal shares.
	StrategyPosition Strategy = "position"
	// StrategyDuration sizes segments by per-emotion weights.
	StrategyDuration Strategy = "duration"
	// StrategyIntensity filters weak emotions and blends duration with
	// intrinsic intensity.
	StrategyIntensity Strategy = "intensity"
)

// Segment is one expression span on the audio timeline. Times are seconds.
type Segment struct {
	Emotion   string
	Start     float64
	End       float64
	Intensity float64
}

// Duration returns the segment length in seconds.
func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// TimelineConfig tunes the timeline calculator. Zero values fall back to
// the documented defaults.
type TimelineConfig struct {
	// Strategy defaults to StrategyPosition.
	Strategy Strategy
	// DefaultEmotion fills gaps and empty inputs. Defaults to "neutral".
	DefaultEmotion string
	// Weights are multiplicative per-emotion weights for StrategyDuration.
	// Missing emotions weigh 1.0.
	Weights map[string]float64
	// MinDuration and MaxDuration clamp per-segment length for
	// StrategyDuration, in seconds. Zero disables the respective bound.
	MinDuration float64
	MaxDuration float64
	// Intensities are intrinsic per-emotion intensities in [0, 1] for
	// StrategyIntensity. Missing emotions default to 1.0.
	Intensities map[string]float64
	// MinIntensity filters emotions below it under StrategyIntensity.
	MinIntensity float64
	// Alpha in [0, 1] blends equal-share (0) with intensity-weighted (1)
	// durations under StrategyIntensity.
	Alpha float64
	// MergeAdjacent merges neighboring segments with the same emotion.
	MergeAdjacent bool
	// MinSegmentDuration drops-or-merges segments shorter than this.
	MinSegmentDuration float64
}

// Timeline builds expression timelines from extracted emotions and an audio
// duration.
type Timeline struct {
	cfg TimelineConfig
}

// NewTimeline returns a Timeline with cfg's defaults applied.
func NewTimeline(cfg TimelineConfig) *Timeline {
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyPosition
	}
	if cfg.DefaultEmotion == "" {
		cfg.DefaultEmotion = "neutral"
	}
	return &Timeline{cfg: cfg}
}

// Build returns an ordered, non-overlapping sequence of segments covering
// exactly [0, duration]. An empty emotion list yields a single
// default-emotion segment.
func (t *Timeline) Build(emotions []string, duration float64) ([]Segment, error) {
	if duration <= 0 {
		return nil, fmt.Errorf("timeline: duration must be positive, got %g", duration)
	}
	if len(emotions) == 0 {
		return []Segment{{Emotion: t.cfg.DefaultEmotion, Start: 0, End: duration, Intensity: 1}}, nil
	}

	var segments []Segment
	switch t.cfg.Strategy {
	case StrategyPosition:
		segments = t.buildPosition(emotions, duration)
	case StrategyDuration:
		segments = t.buildDuration(emotions, duration)
	case StrategyIntensity:
		segments = t.buildIntensity(emotions, duration)
	default:
		return nil, fmt.Errorf("timeline: unknown strategy %q", t.cfg.Strategy)
	}

	segments = t.enforceMinDuration(segments)
	if t.cfg.MergeAdjacent {
		segments = mergeAdjacent(segments)
	}
	return renormalize(segments, duration), nil
}

// buildPosition gives each emotion an equal share.
func (t *Timeline) buildPosition(emotions []string, duration float64) []Segment {
	n := len(emotions)
	share := duration / float64(n)
	segments := make([]Segment, n)
	for i, e := range emotions {
		segments[i] = Segment{
			Emotion:   e,
			Start:     float64(i) * share,
			End:       float64(i+1) * share,
			Intensity: 1,
		}
	}
	return segments
}

// buildDuration sizes segments proportionally to per-emotion weights,
// clamped to [MinDuration, MaxDuration] before normalizing back to the full
// duration.
func (t *Timeline) buildDuration(emotions []string, duration float64) []Segment {
	lengths := make([]float64, len(emotions))
	var sum float64
	for i, e := range emotions {
		w := 1.0
		if v, ok := t.cfg.Weights[e]; ok && v > 0 {
			w = v
		}
		lengths[i] = w
		sum += w
	}
	for i := range lengths {
		lengths[i] = lengths[i] / sum * duration
		if t.cfg.MinDuration > 0 && lengths[i] < t.cfg.MinDuration {
			lengths[i] = t.cfg.MinDuration
		}
		if t.cfg.MaxDuration > 0 && lengths[i] > t.cfg.MaxDuration {
			lengths[i] = t.cfg.MaxDuration
		}
	}
	return fromLengths(emotions, lengths, nil, duration)
}

// buildIntensity filters emotions below MinIntensity and weights lengths by
// (1-alpha)*1 + alpha*intensity.
func (t *Timeline) buildIntensity(emotions []string, duration float64) []Segment {
	var (
		kept        []string
		intensities []float64
		lengths     []float64
	)
	for _, e := range emotions {
		intensity := 1.0
		if v, ok := t.cfg.Intensities[e]; ok {
			intensity = v
		}
		if intensity < t.cfg.MinIntensity {
			continue
		}
		kept = append(kept, e)
		intensities = append(intensities, intensity)
		lengths = append(lengths, (1-t.cfg.Alpha)+t.cfg.Alpha*intensity)
	}
	if len(kept) == 0 {
		return []Segment{{Emotion: t.cfg.DefaultEmotion, Start: 0, End: duration, Intensity: 1}}
	}
	return fromLengths(kept, lengths, intensities, duration)
}

// fromLengths lays out segments back to back, scaled so they sum to
// duration. intensities may be nil (all 1.0).
func fromLengths(emotions []string, lengths, intensities []float64, duration float64) []Segment {
	var sum float64
	for _, l := range lengths {
		sum += l
	}
	segments := make([]Segment, len(emotions))
	cursor := 0.0
	for i, e := range emotions {
		length := lengths[i] / sum * duration
		intensity := 1.0
		if intensities != nil {
			intensity = intensities[i]
		}
		segments[i] = Segment{Emotion: e, Start: cursor, End: cursor + length, Intensity: intensity}
		cursor += length
	}
	return segments
}

// enforceMinDuration merges too-short segments into their predecessor (or
// successor for the first segment).
func (t *Timeline) enforceMinDuration(segments []Segment) []Segment {
	if t.cfg.MinSegmentDuration <= 0 || len(segments) <= 1 {
		return segments
	}
	out := segments[:0:0]
	for _, seg := range segments {
		if seg.Duration() >= t.cfg.MinSegmentDuration || len(out) == 0 {
			out = append(out, seg)
			continue
		}
		out[len(out)-1].End = seg.End
	}
	// A too-short leading segment is absorbed by its successor.
	if len(out) > 1 && out[0].Duration() < t.cfg.MinSegmentDuration {
		out[1].Start = out[0].Start
		out = out[1:]
	}
	return out
}

// mergeAdjacent collapses neighboring segments with the same emotion,
// keeping the higher intensity.
func mergeAdjacent(segments []Segment) []Segment {
	if len(segments) <= 1 {
		return segments
	}
	out := segments[:0:0]
	for _, seg := range segments {
		if n := len(out); n > 0 && out[n-1].Emotion == seg.Emotion {
			out[n-1].End = seg.End
			out[n-1].Intensity = max(out[n-1].Intensity, seg.Intensity)
			continue
		}
		out = append(out, seg)
	}
	return out
}

// renormalize pins the timeline to exactly [0, duration]: segments become
// contiguous and the last end lands on duration.
func renormalize(segments []Segment, duration float64) []Segment {
	if len(segments) == 0 {
		return segments
	}
	segments[0].Start = 0
	for i := 1; i < len(segments); i++ {
		segments[i].Start = segments[i-1].End
		if segments[i].End < segments[i].Start {
			segments[i].End = segments[i].Start
		}
	}
	segments[len(segments)-1].End = duration
	return segments
}
