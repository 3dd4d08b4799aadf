package rating

import "math"

// Confidence buckets how far a performance score sits from a draw.
type Confidence string

const (
	ConfidenceNeutral Confidence = "NEUTRAL"
	ConfidenceLow     Confidence = "LOW"
	ConfidenceHigh    Confidence = "HIGH"
)

const (
	drawBand      = 0.001 // |close-open|/open below this is a draw
	scoreGain     = 50.0
	neutralRadius = 0.1
	lowRadius     = 0.25
)

// Score is the outcome of one period's game against the benchmark.
type Score struct {
	Value            float64    `json:"value"`
	PriceUp          bool       `json:"price_up"`
	Unchanged        bool       `json:"unchanged"`
	TakerBuyDominant bool       `json:"taker_buy_dominant"`
	Confidence       Confidence `json:"confidence"`
}

// PerformanceScore maps a candle to a game result in [0, 1]. A 1% move is
// worth 0.5 points, so anything beyond +/-1% saturates at a full win or loss.
// takerBuy is the aggressive buy volume out of volume; it only feeds metadata.
func PerformanceScore(open, close, volume, takerBuy float64) Score {
	s := Score{
		PriceUp:          close > open,
		TakerBuyDominant: takerBuy > volume-takerBuy,
	}
	if open <= 0 {
		s.Value = 0.5
		s.Unchanged = true
		s.Confidence = ConfidenceNeutral
		return s
	}

	change := (close - open) / open
	if math.Abs(change) < drawBand {
		s.Value = 0.5
		s.Unchanged = true
	} else {
		s.Value = clamp(0.5+change*scoreGain, 0, 1)
	}

	switch d := math.Abs(s.Value - 0.5); {
	case d < neutralRadius:
		s.Confidence = ConfidenceNeutral
	case d < lowRadius:
		s.Confidence = ConfidenceLow
	default:
		s.Confidence = ConfidenceHigh
	}
	return s
}
