package rating

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPerformanceScore(t *testing.T) {
	tests := []struct {
		name       string
		open       float64
		close      float64
		volume     float64
		takerBuy   float64
		want       float64
		confidence Confidence
		buyDom     bool
	}{
		{name: "high_confidence_win", open: 100, close: 105, volume: 1500, takerBuy: 1000, want: 1, confidence: ConfidenceHigh, buyDom: true},
		{name: "partial_win", open: 100, close: 100.5, volume: 1500, takerBuy: 500, want: 0.75, confidence: ConfidenceHigh},
		{name: "low_confidence_win", open: 100, close: 100.3, volume: 10, takerBuy: 5, want: 0.65, confidence: ConfidenceLow},
		{name: "draw_inside_band", open: 100, close: 100.05, volume: 10, takerBuy: 2, want: 0.5, confidence: ConfidenceNeutral},
		{name: "full_loss", open: 100, close: 90, volume: 10, takerBuy: 2, want: 0, confidence: ConfidenceHigh},
		{name: "zero_open", open: 0, close: 10, volume: 10, takerBuy: 2, want: 0.5, confidence: ConfidenceNeutral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := PerformanceScore(tt.open, tt.close, tt.volume, tt.takerBuy)
			assert.InDelta(t, tt.want, s.Value, 1e-9)
			assert.Equal(t, tt.confidence, s.Confidence)
			assert.Equal(t, tt.buyDom, s.TakerBuyDominant)
			assert.GreaterOrEqual(t, s.Value, 0.0)
			assert.LessOrEqual(t, s.Value, 1.0)
		})
	}
}

func TestPerformanceScore_Flags(t *testing.T) {
	up := PerformanceScore(100, 101, 0, 0)
	assert.True(t, up.PriceUp)
	assert.False(t, up.Unchanged)

	flat := PerformanceScore(100, 100, 0, 0)
	assert.False(t, flat.PriceUp)
	assert.True(t, flat.Unchanged)
}
