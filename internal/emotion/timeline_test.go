package emotion_test

import (
	"math"
	"testing"

	"github.com/anima-voice/anima/internal/emotion"
)

const epsilon = 0.001 // 1 ms

// checkCoverage asserts segments are ordered, contiguous, and cover exactly
// [0, duration].
func checkCoverage(t *testing.T, segments []emotion.Segment, duration float64) {
	t.Helper()
	if len(segments) == 0 {
		t.Fatal("no segments")
	}
	if segments[0].Start != 0 {
		t.Errorf("first segment starts at %g, want 0", segments[0].Start)
	}
	var sum float64
	for i, seg := range segments {
		if seg.End < seg.Start {
			t.Errorf("segment %d has End %g < Start %g", i, seg.End, seg.Start)
		}
		if i > 0 && segments[i-1].End != seg.Start {
			t.Errorf("gap between segment %d and %d: %g != %g", i-1, i, segments[i-1].End, seg.Start)
		}
		sum += seg.Duration()
	}
	if last := segments[len(segments)-1].End; math.Abs(last-duration) > epsilon {
		t.Errorf("last segment ends at %g, want %g", last, duration)
	}
	if math.Abs(sum-duration) > epsilon {
		t.Errorf("durations sum to %g, want %g", sum, duration)
	}
}

func TestBuild_EmptyEmotionsYieldsDefault(t *testing.T) {
	t.Parallel()
	tl := emotion.NewTimeline(emotion.TimelineConfig{DefaultEmotion: "calm"})

	segments, err := tl.Build(nil, 3.5)
	if err != nil {
		t.Fatal(err)
	}
	if len(segments) != 1 || segments[0].Emotion != "calm" {
		t.Fatalf("segments = %v, want single calm segment", segments)
	}
	checkCoverage(t, segments, 3.5)
}

func TestBuild_PositionEqualShares(t *testing.T) {
	t.Parallel()
	tl := emotion.NewTimeline(emotion.TimelineConfig{})

	segments, err := tl.Build([]string{"happy", "sad", "angry", "neutral"}, 8)
	if err != nil {
		t.Fatal(err)
	}
	if len(segments) != 4 {
		t.Fatalf("got %d segments, want 4", len(segments))
	}
	for i, seg := range segments {
		if math.Abs(seg.Duration()-2) > epsilon {
			t.Errorf("segment %d duration = %g, want 2", i, seg.Duration())
		}
		if seg.Intensity != 1 {
			t.Errorf("segment %d intensity = %g, want 1", i, seg.Intensity)
		}
	}
	checkCoverage(t, segments, 8)
}

func TestBuild_DurationWeights(t *testing.T) {
	t.Parallel()
	tl := emotion.NewTimeline(emotion.TimelineConfig{
		Strategy: emotion.StrategyDuration,
		Weights:  map[string]float64{"happy": 3, "sad": 1},
	})

	segments, err := tl.Build([]string{"happy", "sad"}, 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(segments) != 2 {
		t.Fatalf("got %d segments, want 2", len(segments))
	}
	if math.Abs(segments[0].Duration()-3) > epsilon {
		t.Errorf("happy duration = %g, want 3 (weight 3 of 4)", segments[0].Duration())
	}
	if math.Abs(segments[1].Duration()-1) > epsilon {
		t.Errorf("sad duration = %g, want 1", segments[1].Duration())
	}
	checkCoverage(t, segments, 4)
}

func TestBuild_IntensityFiltersWeakEmotions(t *testing.T) {
	t.Parallel()
	tl := emotion.NewTimeline(emotion.TimelineConfig{
		Strategy:     emotion.StrategyIntensity,
		Intensities:  map[string]float64{"happy": 0.9, "bored": 0.1},
		MinIntensity: 0.5,
		Alpha:        0.5,
	})

	segments, err := tl.Build([]string{"happy", "bored"}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(segments) != 1 || segments[0].Emotion != "happy" {
		t.Fatalf("segments = %v, want only happy (bored filtered)", segments)
	}
	if segments[0].Intensity != 0.9 {
		t.Errorf("intensity = %g, want 0.9", segments[0].Intensity)
	}
	checkCoverage(t, segments, 2)
}

func TestBuild_IntensityAllFilteredFallsBackToDefault(t *testing.T) {
	t.Parallel()
	tl := emotion.NewTimeline(emotion.TimelineConfig{
		Strategy:     emotion.StrategyIntensity,
		Intensities:  map[string]float64{"bored": 0.1},
		MinIntensity: 0.5,
	})

	segments, err := tl.Build([]string{"bored"}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(segments) != 1 || segments[0].Emotion != "neutral" {
		t.Fatalf("segments = %v, want single neutral segment", segments)
	}
	checkCoverage(t, segments, 1)
}

func TestBuild_MergeAdjacentSameEmotion(t *testing.T) {
	t.Parallel()
	tl := emotion.NewTimeline(emotion.TimelineConfig{MergeAdjacent: true})

	segments, err := tl.Build([]string{"happy", "happy", "sad"}, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(segments) != 2 {
		t.Fatalf("got %d segments, want 2 after merge", len(segments))
	}
	if segments[0].Emotion != "happy" || math.Abs(segments[0].Duration()-2) > epsilon {
		t.Errorf("merged segment = %+v, want happy over 2s", segments[0])
	}
	checkCoverage(t, segments, 3)
}

func TestBuild_MinSegmentDurationMergesShorts(t *testing.T) {
	t.Parallel()
	tl := emotion.NewTimeline(emotion.TimelineConfig{
		Strategy:           emotion.StrategyDuration,
		Weights:            map[string]float64{"happy": 10, "blink": 0.1, "sad": 10},
		MinSegmentDuration: 0.5,
	})

	segments, err := tl.Build([]string{"happy", "blink", "sad"}, 10)
	if err != nil {
		t.Fatal(err)
	}
	for i, seg := range segments {
		if seg.Duration() < 0.5-epsilon {
			t.Errorf("segment %d duration = %g, want >= 0.5", i, seg.Duration())
		}
	}
	checkCoverage(t, segments, 10)
}

func TestBuild_RejectsNonPositiveDuration(t *testing.T) {
	t.Parallel()
	tl := emotion.NewTimeline(emotion.TimelineConfig{})
	if _, err := tl.Build([]string{"happy"}, 0); err == nil {
		t.Error("expected error for zero duration")
	}
}
