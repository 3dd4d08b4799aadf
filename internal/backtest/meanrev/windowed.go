package meanrev

import (
	"time"

	"github.com/sawpanic/glickorun/internal/rating"
)

const (
	// DefaultWindowMonths is the walk-forward window length
	DefaultWindowMonths = 12

	windowMonth = 30 * 24 * time.Hour
)

// Window is one walk-forward slice, both ends inclusive
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Windows splits [start, end] into windows of months*30 days stepping by half
// a window. Only whole windows are returned.
func Windows(start, end time.Time, months int) []Window {
	if months <= 0 {
		months = DefaultWindowMonths
	}
	size := time.Duration(months) * windowMonth
	step := size / 2

	var out []Window
	for cur := start; !cur.Add(size).After(end); cur = cur.Add(step) {
		out = append(out, Window{Start: cur, End: cur.Add(size)})
	}
	return out
}

// WindowConfigs derives one config per walk-forward window of base that
// contains at least one rating. ratings must be time ordered.
func WindowConfigs(base Config, ratings []rating.Point, months int) []Config {
	var out []Config
	for _, w := range Windows(base.StartTime, base.EndTime, months) {
		if !hasRatingIn(ratings, w) {
			continue
		}
		cfg := base
		cfg.StartTime = w.Start
		cfg.EndTime = w.End
		out = append(out, cfg)
	}
	return out
}

func hasRatingIn(ratings []rating.Point, w Window) bool {
	upTo := rating.Until(ratings, w.End)
	return len(upTo) > 0 && !upTo[len(upTo)-1].Timestamp.Before(w.Start)
}
