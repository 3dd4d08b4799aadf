package rating

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(DefaultConfig())
	require.NoError(t, err)
	return e
}

func TestScaleRoundTrip(t *testing.T) {
	s := State{Rating: 1834.5, Deviation: 120}
	mu := (s.Rating - baseRating) / Scale
	phi := s.Deviation / Scale
	assert.InDelta(t, s.Rating, Scale*mu+baseRating, 1e-9)
	assert.InDelta(t, s.Deviation, Scale*phi, 1e-9)
}

func TestUpdate_AgainstEqualReference(t *testing.T) {
	e := newTestEngine(t)
	start := e.Initial()
	equal := Opponent{Rating: start.Rating, Deviation: 50}

	win := e.UpdateAgainst(start, equal, 1)
	loss := e.UpdateAgainst(start, equal, 0)
	draw := e.UpdateAgainst(start, equal, 0.5)

	assert.Greater(t, win.Rating, start.Rating)
	assert.Less(t, loss.Rating, start.Rating)
	assert.InDelta(t, start.Rating, draw.Rating, 1e-9)

	winMove := math.Abs(win.Rating - start.Rating)
	lossMove := math.Abs(loss.Rating - start.Rating)
	drawMove := math.Abs(draw.Rating - start.Rating)
	assert.Less(t, drawMove, winMove)
	assert.Less(t, drawMove, lossMove)

	// a game is information: deviation shrinks in every case
	assert.Less(t, win.Deviation, start.Deviation)
	assert.Less(t, loss.Deviation, start.Deviation)
	assert.Less(t, draw.Deviation, start.Deviation)
}

func TestUpdate_DirectionFollowsExpectation(t *testing.T) {
	e := newTestEngine(t)
	s := State{Rating: 1700, Deviation: 150, Volatility: 0.06}
	opp := Opponent{Rating: 1500, Deviation: 50}
	exp := Expected(s, opp)
	require.Greater(t, exp, 0.5)

	above := e.UpdateAgainst(s, opp, math.Min(1, exp+0.05))
	below := e.UpdateAgainst(s, opp, exp-0.05)
	same := e.UpdateAgainst(s, opp, exp)

	assert.Greater(t, above.Rating, s.Rating)
	assert.Less(t, below.Rating, s.Rating)
	assert.InDelta(t, s.Rating, same.Rating, 1e-6)
}

func TestUpdate_RepeatedDrawsConverge(t *testing.T) {
	e := newTestEngine(t)
	s := e.Initial()
	prevDev := s.Deviation
	for i := 0; i < 200; i++ {
		s = e.Update(s, 0.5)
		assert.InDelta(t, 1500.0, s.Rating, 1e-6)
		assert.LessOrEqual(t, s.Deviation, prevDev+1e-9)
		prevDev = s.Deviation
	}
	assert.False(t, math.IsNaN(s.Rating))
	assert.GreaterOrEqual(t, s.Deviation, e.Config().MinDeviation-1e-9)
}

func TestUpdate_BoundsHold(t *testing.T) {
	e := newTestEngine(t)
	s := e.Initial()
	for i := 0; i < 500; i++ {
		outcome := 1.0
		if i%3 == 0 {
			outcome = 0
		}
		s = e.Update(s, outcome)
		require.False(t, math.IsNaN(s.Rating) || math.IsInf(s.Rating, 0))
		assert.GreaterOrEqual(t, s.Volatility, 0.01)
		assert.LessOrEqual(t, s.Volatility, 0.2)
		assert.GreaterOrEqual(t, s.Deviation, 30.0-1e-9)
		assert.LessOrEqual(t, s.Deviation, 350.0+1e-9)
	}
}

func TestUpdate_ClampsOutcomeAndExtremeGap(t *testing.T) {
	e := newTestEngine(t)
	s := State{Rating: 4000, Deviation: 40, Volatility: 0.06}
	// expected score is ~1 here; the epsilon clamp must keep v finite
	got := e.UpdateAgainst(s, Opponent{Rating: 0, Deviation: 0}, 7)
	assert.False(t, math.IsNaN(got.Rating))
	assert.False(t, math.IsInf(got.Deviation, 0))
}

func TestUpdate_StrongerOpponentSwingsMore(t *testing.T) {
	e := newTestEngine(t)
	s := State{Rating: 1500, Deviation: 200, Volatility: 0.06}
	vsEqual := e.UpdateAgainst(s, Opponent{Rating: 1500, Deviation: 50}, 1)
	vsStrong := e.UpdateAgainst(s, Opponent{Rating: 1900, Deviation: 50}, 1)
	assert.Greater(t, vsStrong.Rating-s.Rating, vsEqual.Rating-s.Rating)
}

func TestNewEngine_RejectsBadBounds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxDeviation = 10
	_, err := NewEngine(cfg)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.MinVolatility = 0
	_, err = NewEngine(cfg)
	assert.Error(t, err)
}
