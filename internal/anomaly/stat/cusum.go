package stat

import (
	"math"
	"time"
)

// Trend directions reported by the CUSUM detector.
const (
	TrendUpward   = "upward"
	TrendDownward = "downward"
)

// CUSUMHit is one sustained shift flagged by the CUSUM detector.
type CUSUMHit struct {
	Index      int
	Timestamp  time.Time
	Value      float64
	CUSUMValue float64
	Trend      string
	Confidence float64
}

// CUSUM runs a cumulative-sum control chart over the series and flags every
// index where either accumulator exceeds CUSUMThreshold. The positive and
// negative accumulators are seeded at zero and never reset; the trend is
// upward when the positive sum dominates the magnitude of the negative one.
// Series shorter than MinCUSUMSamples produce no hits.
func CUSUM(points []Point) []CUSUMHit {
	if len(points) < MinCUSUMSamples {
		return nil
	}

	var sum float64
	for _, p := range points {
		sum += p.Value
	}
	mean := sum / float64(len(points))

	var hits []CUSUMHit
	var pos, neg float64
	for i, p := range points {
		pos = math.Max(0, pos+p.Value-mean)
		neg = math.Min(0, neg+p.Value-mean)

		if math.Abs(pos) > CUSUMThreshold || math.Abs(neg) > CUSUMThreshold {
			value := math.Max(math.Abs(pos), math.Abs(neg))
			trend := TrendDownward
			if pos > math.Abs(neg) {
				trend = TrendUpward
			}
			hits = append(hits, CUSUMHit{
				Index:      i,
				Timestamp:  p.Timestamp,
				Value:      p.Value,
				CUSUMValue: value,
				Trend:      trend,
				Confidence: math.Min(value/10.0, 0.99),
			})
		}
	}
	return hits
}
