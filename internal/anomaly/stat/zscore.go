// Package stat provides pure batch detectors for statistical outliers in
// metric series. Both detectors are deterministic: identical inputs always
// produce identical outputs.
package stat

import (
	"math"
	"time"
)

// Detection thresholds and series minimums.
const (
	ZScoreThreshold  = 2.0
	MinZScoreSamples = 3

	CUSUMThreshold  = 5.0
	MinCUSUMSamples = 5
)

// Point is one (timestamp, value) observation in a series.
type Point struct {
	Timestamp time.Time
	Value     float64
}

// ZScoreHit is one outlier flagged by the Z-score detector.
type ZScoreHit struct {
	Index      int
	Timestamp  time.Time
	Value      float64
	ZScore     float64
	Confidence float64
}

// ZScores flags every point whose absolute deviation from the series mean
// is at least ZScoreThreshold standard deviations. Series shorter than
// MinZScoreSamples, or with zero variance, produce no hits. Mean and
// standard deviation are computed over the full series (population σ).
func ZScores(points []Point) []ZScoreHit {
	if len(points) < MinZScoreSamples {
		return nil
	}

	mean, stdDev := meanStdDev(points)
	if stdDev == 0 {
		return nil
	}

	var hits []ZScoreHit
	for i, p := range points {
		z := math.Abs(p.Value-mean) / stdDev
		if z >= ZScoreThreshold {
			hits = append(hits, ZScoreHit{
				Index:      i,
				Timestamp:  p.Timestamp,
				Value:      p.Value,
				ZScore:     z,
				Confidence: math.Min(z/3.0, 0.99),
			})
		}
	}
	return hits
}

// meanStdDev returns the population mean and standard deviation.
func meanStdDev(points []Point) (mean, stdDev float64) {
	n := float64(len(points))
	var sum float64
	for _, p := range points {
		sum += p.Value
	}
	mean = sum / n

	var sq float64
	for _, p := range points {
		d := p.Value - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / n)
}
