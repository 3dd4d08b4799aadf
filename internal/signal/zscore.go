// Package signal turns a rating series into a rolling z-score signal.
package signal

import (
	"fmt"
	"math"
	"time"

	"github.com/sawpanic/glickorun/internal/rating"
)

// Point is a derived z-score observation. It is never persisted on its own.
type Point struct {
	Timestamp         time.Time `json:"timestamp"`
	Rating            float64   `json:"rating"`
	MovingAverage     float64   `json:"moving_average"`
	StandardDeviation float64   `json:"standard_deviation"`
	ZScore            float64   `json:"z_score"`
}

// Action is the directional reading of a z-score against a threshold.
type Action string

const (
	Hold  Action = "HOLD"
	Entry Action = "ENTRY"
	Exit  Action = "EXIT"
)

// Stats are the moving statistics of a trailing window.
type Stats struct {
	Mean   float64
	StdDev float64
	ZScore float64
}

// flatTolerance is the relative deviation below which a window is flat
const flatTolerance = 1e-9

// Compute returns the population mean and standard deviation of window and
// the z-score of current against them. A flat or empty window yields a zero
// z-score. A deviation within flatTolerance of the mean's magnitude counts as
// flat, since summing equal values can leave rounding residue.
func Compute(window []float64, current float64) Stats {
	if len(window) == 0 {
		return Stats{Mean: current}
	}
	var sum float64
	for _, v := range window {
		sum += v
	}
	mean := sum / float64(len(window))

	var sq float64
	for _, v := range window {
		d := v - mean
		sq += d * d
	}
	std := math.Sqrt(sq / float64(len(window)))

	z := 0.0
	if std <= flatTolerance*math.Max(1, math.Abs(mean)) {
		std = 0
	} else {
		z = (current - mean) / std
	}
	return Stats{Mean: mean, StdDev: std, ZScore: z}
}

// Generate emits one Point per rating that has at least period predecessors.
// The trailing window holds the period ratings strictly before the current one.
func Generate(points []rating.Point, period int) ([]Point, error) {
	if period < 1 {
		return nil, fmt.Errorf("moving average period must be >= 1, got %d", period)
	}
	if len(points) <= period {
		return nil, nil
	}

	values := rating.Values(points)
	out := make([]Point, 0, len(points)-period)
	for i := period; i < len(points); i++ {
		st := Compute(values[i-period:i], values[i])
		out = append(out, Point{
			Timestamp:         points[i].Timestamp,
			Rating:            values[i],
			MovingAverage:     st.Mean,
			StandardDeviation: st.StdDev,
			ZScore:            st.ZScore,
		})
	}
	return out, nil
}

// Classify reads z against threshold. Boundaries are inclusive.
func Classify(z, threshold float64) Action {
	switch {
	case z >= threshold:
		return Entry
	case z <= -threshold:
		return Exit
	default:
		return Hold
	}
}
