package stat

import (
	"math"
	"testing"
)

func TestCUSUM_ShortSeries(t *testing.T) {
	if hits := CUSUM(series(10, 10, 10, 100)); hits != nil {
		t.Errorf("CUSUM() = %v, want nil below minimum length", hits)
	}
}

func TestCUSUM_StableSeries(t *testing.T) {
	if hits := CUSUM(series(10, 10, 10, 10, 10, 10)); len(hits) != 0 {
		t.Errorf("CUSUM() returned %d hits for constant series, want 0", len(hits))
	}
}

func TestCUSUM_LevelShift(t *testing.T) {
	// Mean is 12.4; the first four points accumulate -2.4 each on the
	// negative side, the final point contributes +9.6 on the positive side.
	hits := CUSUM(series(10, 10, 10, 10, 22))

	if len(hits) != 3 {
		t.Fatalf("CUSUM() returned %d hits, want 3", len(hits))
	}

	first := hits[0]
	if first.Index != 2 {
		t.Errorf("first hit index = %d, want 2", first.Index)
	}
	if first.Trend != TrendDownward {
		t.Errorf("first hit trend = %q, want %q", first.Trend, TrendDownward)
	}
	if math.Abs(first.CUSUMValue-7.2) > 0.001 {
		t.Errorf("first hit CUSUMValue = %v, want 7.2", first.CUSUMValue)
	}

	last := hits[2]
	if last.Index != 4 {
		t.Errorf("last hit index = %d, want 4", last.Index)
	}
	if last.Trend != TrendUpward {
		t.Errorf("last hit trend = %q, want %q", last.Trend, TrendUpward)
	}
	if math.Abs(last.CUSUMValue-9.6) > 0.001 {
		t.Errorf("last hit CUSUMValue = %v, want 9.6", last.CUSUMValue)
	}
	if math.Abs(last.Confidence-0.96) > 0.001 {
		t.Errorf("last hit confidence = %v, want 0.96", last.Confidence)
	}
}

func TestCUSUM_ConfidenceCapped(t *testing.T) {
	hits := CUSUM(series(0, 0, 0, 0, 0, 0, 0, 0, 0, 500))
	if len(hits) == 0 {
		t.Fatal("CUSUM() returned no hits for extreme shift")
	}
	for _, h := range hits {
		if h.Confidence > 0.99 {
			t.Errorf("hit confidence = %v, want <= 0.99", h.Confidence)
		}
	}
}

func TestCUSUM_BelowThreshold(t *testing.T) {
	// Small wobbles around the mean never push either accumulator past 5.
	hits := CUSUM(series(10, 10.5, 9.5, 10, 10.5, 9.5, 10))
	if len(hits) != 0 {
		t.Errorf("CUSUM() returned %d hits, want 0", len(hits))
	}
}
