// Package rating maintains Glicko-2 style (rating, deviation, volatility)
// triples per asset. Each period an asset plays one game against a synthetic
// benchmark and the outcome is its performance score for that period.
package rating

import (
	"fmt"
	"math"
)

// Scale converts between the public rating scale and the internal Glicko-2 scale.
const Scale = 173.7178

const (
	baseRating = 1500.0
	epsilon    = 1e-6
)

// State is the per-asset rating triple.
type State struct {
	Rating     float64 `json:"rating"`
	Deviation  float64 `json:"deviation"`
	Volatility float64 `json:"volatility"`
}

// Opponent is the reference the asset is compared against each period.
type Opponent struct {
	Rating    float64 `json:"rating" yaml:"rating"`
	Deviation float64 `json:"deviation" yaml:"deviation"`
}

// Config holds engine defaults and bounds.
type Config struct {
	InitialRating     float64  `yaml:"initial_rating"`
	InitialDeviation  float64  `yaml:"initial_deviation"`
	InitialVolatility float64  `yaml:"initial_volatility"`
	MinDeviation      float64  `yaml:"min_deviation"`
	MaxDeviation      float64  `yaml:"max_deviation"`
	MinVolatility     float64  `yaml:"min_volatility"`
	MaxVolatility     float64  `yaml:"max_volatility"`
	Benchmark         Opponent `yaml:"benchmark"`
}

// DefaultConfig returns the engine defaults: new assets start at 1500/350/0.06
// and play a benchmark rated 1500 with deviation 50.
func DefaultConfig() Config {
	return Config{
		InitialRating:     baseRating,
		InitialDeviation:  350,
		InitialVolatility: 0.06,
		MinDeviation:      30,
		MaxDeviation:      350,
		MinVolatility:     0.01,
		MaxVolatility:     0.2,
		Benchmark:         Opponent{Rating: baseRating, Deviation: 50},
	}
}

// Validate checks that the bounds are ordered and positive.
func (c Config) Validate() error {
	if c.MinDeviation <= 0 || c.MaxDeviation < c.MinDeviation {
		return fmt.Errorf("deviation bounds [%v, %v] invalid", c.MinDeviation, c.MaxDeviation)
	}
	if c.MinVolatility <= 0 || c.MaxVolatility < c.MinVolatility {
		return fmt.Errorf("volatility bounds [%v, %v] invalid", c.MinVolatility, c.MaxVolatility)
	}
	if c.InitialDeviation <= 0 || c.InitialVolatility <= 0 {
		return fmt.Errorf("initial deviation and volatility must be positive")
	}
	if c.Benchmark.Deviation < 0 {
		return fmt.Errorf("benchmark deviation must be non-negative")
	}
	return nil
}

// Engine applies single-game rating updates. It holds no per-asset state and
// is safe for concurrent use.
type Engine struct {
	cfg Config
}

// NewEngine creates an engine, rejecting inconsistent bounds.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("rating config: %w", err)
	}
	return &Engine{cfg: cfg}, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// Initial returns the starting state for a newly seen asset.
func (e *Engine) Initial() State {
	return State{
		Rating:     e.cfg.InitialRating,
		Deviation:  e.cfg.InitialDeviation,
		Volatility: e.cfg.InitialVolatility,
	}
}

// Update plays one game against the configured benchmark.
func (e *Engine) Update(s State, outcome float64) State {
	return e.UpdateAgainst(s, e.cfg.Benchmark, outcome)
}

// UpdateAgainst plays one game against opp. outcome is clamped to [0, 1].
//
// Volatility uses the closed form sigma' = sqrt(sigma^2 + delta^2/v) instead of
// the iterative Illinois root-finding of full Glicko-2. Results therefore differ
// from reference Glicko-2 implementations in the volatility term.
func (e *Engine) UpdateAgainst(s State, opp Opponent, outcome float64) State {
	outcome = clamp(outcome, 0, 1)

	mu := (s.Rating - baseRating) / Scale
	phi := s.Deviation / Scale
	muJ := (opp.Rating - baseRating) / Scale
	phiJ := opp.Deviation / Scale

	g := gFunc(phiJ)
	expected := clamp(expectedScore(mu, muJ, g), epsilon, 1-epsilon)
	v := 1 / (g * g * expected * (1 - expected))
	delta := v * g * (outcome - expected)

	sigma := clamp(math.Sqrt(s.Volatility*s.Volatility+delta*delta/v), e.cfg.MinVolatility, e.cfg.MaxVolatility)

	phiStar := math.Sqrt(phi*phi + sigma*sigma)
	newPhi := 1 / math.Sqrt(1/(phiStar*phiStar)+1/v)
	newPhi = clamp(newPhi, e.cfg.MinDeviation/Scale, e.cfg.MaxDeviation/Scale)
	newMu := mu + newPhi*newPhi*g*(outcome-expected)

	return State{
		Rating:     Scale*newMu + baseRating,
		Deviation:  Scale * newPhi,
		Volatility: sigma,
	}
}

// Expected returns the win probability of s against opp.
func Expected(s State, opp Opponent) float64 {
	mu := (s.Rating - baseRating) / Scale
	muJ := (opp.Rating - baseRating) / Scale
	return expectedScore(mu, muJ, gFunc(opp.Deviation/Scale))
}

func gFunc(phi float64) float64 {
	return 1 / math.Sqrt(1+3*phi*phi/(math.Pi*math.Pi))
}

func expectedScore(mu, muJ, g float64) float64 {
	return 1 / (1 + math.Exp(-g*(mu-muJ)))
}

func clamp(x, lo, hi float64) float64 {
	if math.IsNaN(x) {
		return lo
	}
	return math.Max(lo, math.Min(hi, x))
}
