package stat

import (
	"math"
	"testing"
	"time"
)

func series(values ...float64) []Point {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	points := make([]Point, len(values))
	for i, v := range values {
		points[i] = Point{Timestamp: base.AddDate(0, 0, i), Value: v}
	}
	return points
}

func TestZScores_FlagsOutlier(t *testing.T) {
	hits := ZScores(series(10, 10, 10, 10, 100))

	if len(hits) != 1 {
		t.Fatalf("ZScores() returned %d hits, want 1", len(hits))
	}
	hit := hits[0]
	if hit.Index != 4 {
		t.Errorf("hit.Index = %d, want 4", hit.Index)
	}
	if hit.Value != 100 {
		t.Errorf("hit.Value = %v, want 100", hit.Value)
	}
	if hit.ZScore < ZScoreThreshold {
		t.Errorf("hit.ZScore = %v, want >= %v", hit.ZScore, ZScoreThreshold)
	}
	if hit.Confidence <= 0 || hit.Confidence > 0.99 {
		t.Errorf("hit.Confidence = %v, want in (0, 0.99]", hit.Confidence)
	}
}

func TestZScores_ShortSeries(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
	}{
		{"empty", nil},
		{"one sample", []float64{42}},
		{"two samples", []float64{1, 1000}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if hits := ZScores(series(tt.values...)); hits != nil {
				t.Errorf("ZScores() = %v, want nil", hits)
			}
		})
	}
}

func TestZScores_ZeroVariance(t *testing.T) {
	if hits := ZScores(series(10, 10, 10, 10, 10)); hits != nil {
		t.Errorf("ZScores() = %v, want nil for constant series", hits)
	}
}

func TestZScores_NoOutliers(t *testing.T) {
	// Mildly noisy series with nothing two standard deviations out.
	hits := ZScores(series(10, 11, 9, 10, 11, 9, 10))
	if len(hits) != 0 {
		t.Errorf("ZScores() returned %d hits, want 0", len(hits))
	}
}

func TestZScores_ConfidenceCapped(t *testing.T) {
	// Extreme outlier drives z far past 3; confidence must cap at 0.99.
	hits := ZScores(series(1, 1, 1, 1, 1, 1, 1, 1, 1, 1e6))
	if len(hits) == 0 {
		t.Fatal("ZScores() returned no hits for extreme outlier")
	}
	for _, h := range hits {
		if h.Confidence > 0.99 {
			t.Errorf("hit.Confidence = %v, want <= 0.99", h.Confidence)
		}
	}
}

func TestZScores_Deterministic(t *testing.T) {
	input := series(5, 7, 6, 5, 30, 6)
	first := ZScores(input)
	second := ZScores(input)
	if len(first) != len(second) {
		t.Fatalf("hit counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if math.Abs(first[i].ZScore-second[i].ZScore) > 1e-12 {
			t.Errorf("z-scores differ at %d: %v vs %v", i, first[i].ZScore, second[i].ZScore)
		}
	}
}
