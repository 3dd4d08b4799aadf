package sweep

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/glickorun/internal/backtest/meanrev"
)

func TestGrid_Expand(t *testing.T) {
	base := meanrev.DefaultConfig()
	base.Asset = "BTCUSDT"

	g := Grid{
		ZScoreThresholds:     []float64{1.5, 2},
		MovingAveragePeriods: []int{10, 20, 30},
		StopLossPercents:     []float64{3, 5},
	}
	cfgs := g.Expand(base)
	require.Len(t, cfgs, 12)
	assert.Equal(t, g.Size(), len(cfgs))

	// Last dimension varies fastest
	assert.Equal(t, 3.0, cfgs[0].StopLossPercent)
	assert.Equal(t, 5.0, cfgs[1].StopLossPercent)
	assert.Equal(t, 20, cfgs[2].MovingAveragePeriod)
	assert.Equal(t, 2.0, cfgs[6].ZScoreThreshold)

	for _, c := range cfgs {
		assert.Equal(t, "BTCUSDT", c.Asset)
		assert.Equal(t, base.ProfitPercent, c.ProfitPercent, "empty dimension keeps base value")
	}
}

func TestGrid_ExpandAssets(t *testing.T) {
	g := Grid{Assets: []string{"BTCUSDT", "ETHUSDT"}}
	cfgs := g.Expand(meanrev.DefaultConfig())
	require.Len(t, cfgs, 2)
	assert.Equal(t, "ETHUSDT", cfgs[1].Asset)
}

func TestGrid_SizeOfEmptyGrid(t *testing.T) {
	assert.Equal(t, 1, Grid{}.Size())
	assert.Equal(t, 81, DefaultGrid().Size())
}

func TestGrid_Validate(t *testing.T) {
	assert.NoError(t, DefaultGrid().Validate())
	assert.Error(t, Grid{ZScoreThresholds: []float64{0}}.Validate())
	assert.Error(t, Grid{MovingAveragePeriods: []int{1}}.Validate())
	assert.Error(t, Grid{ProfitPercents: []float64{-1}}.Validate())
	assert.Error(t, Grid{StopLossPercents: []float64{100}}.Validate())
}
