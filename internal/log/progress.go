// Package log provides progress reporting for long-running sweeps and
// pipelines on top of zerolog.
package log

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ProgressConfig configures progress tracker behavior
type ProgressConfig struct {
	LogEvery int       // log one line per N completions (default: total/20, min 1)
	Bar      io.Writer // optional terminal bar target, nil disables it
	Clock    func() time.Time
}

// ProgressTracker counts completions of a fixed-size batch and estimates the
// remaining time. It is safe for concurrent use and purely advisory.
type ProgressTracker struct {
	mu        sync.Mutex
	name      string
	total     int
	completed int
	failed    int
	startTime time.Time
	logEvery  int
	bar       io.Writer
	now       func() time.Time
	logger    zerolog.Logger
}

// ProgressSnapshot is a point-in-time view of a tracker
type ProgressSnapshot struct {
	Name      string        `json:"name"`
	Total     int           `json:"total"`
	Completed int           `json:"completed"`
	Failed    int           `json:"failed"`
	Elapsed   time.Duration `json:"elapsed"`
	ETA       time.Duration `json:"eta"`
}

// NewProgressTracker creates a new progress tracker
func NewProgressTracker(name string, total int, config ProgressConfig) *ProgressTracker {
	now := config.Clock
	if now == nil {
		now = time.Now
	}
	every := config.LogEvery
	if every <= 0 {
		every = total / 20
	}
	if every < 1 {
		every = 1
	}
	return &ProgressTracker{
		name:      name,
		total:     total,
		startTime: now(),
		logEvery:  every,
		bar:       config.Bar,
		now:       now,
		logger:    log.With().Str("tracker", name).Logger(),
	}
}

// Done records one finished item
func (pt *ProgressTracker) Done(success bool) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	pt.completed++
	if !success {
		pt.failed++
	}

	snap := pt.snapshotLocked()
	if pt.bar != nil {
		fmt.Fprint(pt.bar, renderBar(snap))
	}
	if pt.completed%pt.logEvery == 0 || pt.completed == pt.total {
		pt.logger.Info().
			Int("completed", snap.Completed).
			Int("total", snap.Total).
			Int("failed", snap.Failed).
			Dur("eta", snap.ETA).
			Msg("Progress")
	}
}

// Snapshot returns the current counters and ETA
func (pt *ProgressTracker) Snapshot() ProgressSnapshot {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return pt.snapshotLocked()
}

// Finish logs the final tally
func (pt *ProgressTracker) Finish() {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	if pt.bar != nil {
		fmt.Fprintln(pt.bar)
	}
	snap := pt.snapshotLocked()
	pt.logger.Info().
		Int("completed", snap.Completed).
		Int("failed", snap.Failed).
		Dur("duration", snap.Elapsed.Round(time.Millisecond)).
		Msgf("%s completed", pt.name)
}

func (pt *ProgressTracker) snapshotLocked() ProgressSnapshot {
	elapsed := pt.now().Sub(pt.startTime)
	snap := ProgressSnapshot{
		Name:      pt.name,
		Total:     pt.total,
		Completed: pt.completed,
		Failed:    pt.failed,
		Elapsed:   elapsed,
	}
	if pt.completed > 0 && pt.total > pt.completed && elapsed > 0 {
		perItem := elapsed / time.Duration(pt.completed)
		snap.ETA = perItem * time.Duration(pt.total-pt.completed)
	}
	return snap
}

// renderBar draws a single-line progress bar
func renderBar(s ProgressSnapshot) string {
	var output strings.Builder

	// Clear line and return to beginning
	output.WriteString("\r\033[K")
	output.WriteString(s.Name)

	if s.Total > 0 {
		percentage := float64(s.Completed) / float64(s.Total) * 100
		barWidth := 20
		filled := barWidth * s.Completed / s.Total

		output.WriteString(" [")
		output.WriteString(strings.Repeat("█", filled))
		output.WriteString(strings.Repeat("░", barWidth-filled))
		output.WriteString(fmt.Sprintf("] %d/%d (%.1f%%)", s.Completed, s.Total, percentage))
	}

	if s.ETA > 0 {
		if s.ETA > time.Hour {
			output.WriteString(fmt.Sprintf(" ETA: %v", s.ETA.Round(time.Minute)))
		} else {
			output.WriteString(fmt.Sprintf(" ETA: %v", s.ETA.Round(time.Second)))
		}
	}
	if s.Failed > 0 {
		output.WriteString(fmt.Sprintf(" failed: %d", s.Failed))
	}
	return output.String()
}

// StepLogger provides step-by-step progress logging for pipelines
type StepLogger struct {
	name        string
	steps       []string
	currentStep int
	stepStart   time.Time
	startTime   time.Time
	stepTimes   []time.Duration
}

// NewStepLogger creates a new step logger for pipeline operations
func NewStepLogger(name string, steps []string) *StepLogger {
	return &StepLogger{
		name:        name,
		steps:       steps,
		currentStep: -1,
		startTime:   time.Now(),
		stepTimes:   make([]time.Duration, len(steps)),
	}
}

// StartStep begins a new pipeline step, completing the previous one
func (sl *StepLogger) StartStep(stepName string) {
	stepIndex := -1
	for i, step := range sl.steps {
		if step == stepName {
			stepIndex = i
			break
		}
	}

	if stepIndex == -1 {
		log.Warn().Str("step", stepName).Msg("Unknown pipeline step")
		return
	}

	sl.CompleteStep()
	sl.currentStep = stepIndex
	sl.stepStart = time.Now()

	log.Info().
		Str("pipeline", sl.name).
		Str("step", stepName).
		Int("step_number", stepIndex+1).
		Int("total_steps", len(sl.steps)).
		Msg("Starting pipeline step")
}

// CompleteStep marks the current step as completed
func (sl *StepLogger) CompleteStep() {
	if sl.currentStep < 0 || sl.stepTimes[sl.currentStep] > 0 {
		return
	}
	stepDuration := time.Since(sl.stepStart)
	sl.stepTimes[sl.currentStep] = stepDuration

	log.Debug().
		Str("step", sl.steps[sl.currentStep]).
		Dur("duration", stepDuration).
		Msg("Pipeline step completed")
}

// Finish completes the step logger
func (sl *StepLogger) Finish() {
	sl.CompleteStep()
	log.Info().
		Str("pipeline", sl.name).
		Dur("total_duration", time.Since(sl.startTime)).
		Msg("Pipeline completed")
}

// Fail marks the step logger as failed
func (sl *StepLogger) Fail(reason string) {
	failed := "unknown"
	if sl.currentStep >= 0 {
		failed = sl.steps[sl.currentStep]
	}
	log.Error().
		Str("pipeline", sl.name).
		Str("failed_step", failed).
		Int("total_steps", len(sl.steps)).
		Str("reason", reason).
		Msg("Pipeline failed")
}
