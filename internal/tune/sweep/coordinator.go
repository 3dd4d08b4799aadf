package sweep

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/glickorun/internal/backtest/meanrev"
	"github.com/sawpanic/glickorun/internal/data"
	runlog "github.com/sawpanic/glickorun/internal/log"
	"github.com/sawpanic/glickorun/internal/persistence"
)

// ErrUnknownAsset is returned for a config whose asset is not in the cache
var ErrUnknownAsset = errors.New("asset not in series cache")

// Config sizes the worker pool
type Config struct {
	Workers    int           `yaml:"workers"`     // default: runtime.NumCPU()
	RunTimeout time.Duration `yaml:"run_timeout"` // 0 disables the per-run timeout
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Workers:    runtime.NumCPU(),
		RunTimeout: 2 * time.Minute,
	}
}

// RunFunc executes one backtest against preloaded series
type RunFunc func(ctx context.Context, cfg meanrev.Config, series data.Series) (*meanrev.Result, error)

// MetricsRecorder observes run lifecycle events
type MetricsRecorder interface {
	RunStarted()
	RunFinished(status string, duration time.Duration, trades int)
}

// Outcome is the result of one submitted config. Result is nil unless
// Status is success.
type Outcome struct {
	Index    int
	RunID    string
	Config   meanrev.Config
	Result   *meanrev.Result
	Status   persistence.Status
	Err      error
	Duration time.Duration
}

// Summary aggregates the outcomes of one sweep
type Summary struct {
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	TimedOut  int           `json:"timed_out"`
	Duration  time.Duration `json:"duration"`
}

// Coordinator distributes configs over a fixed set of workers. Runs share
// only the read-only series cache.
type Coordinator struct {
	config  Config
	cache   *data.SeriesCache
	run     RunFunc
	sink    persistence.ResultSink
	metrics MetricsRecorder
	bar     io.Writer
	now     func() time.Time
}

// Option customizes a Coordinator
type Option func(*Coordinator)

// WithSink saves every finished run to sink
func WithSink(sink persistence.ResultSink) Option {
	return func(c *Coordinator) { c.sink = sink }
}

// WithMetrics reports run events to m
func WithMetrics(m MetricsRecorder) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithRunFunc replaces the backtest executed per config
func WithRunFunc(fn RunFunc) Option {
	return func(c *Coordinator) { c.run = fn }
}

// WithProgressBar draws a progress bar to w
func WithProgressBar(w io.Writer) Option {
	return func(c *Coordinator) { c.bar = w }
}

// WithClock overrides the clock used for record timestamps
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// NewCoordinator creates a coordinator over a preloaded cache
func NewCoordinator(config Config, cache *data.SeriesCache, opts ...Option) *Coordinator {
	if config.Workers <= 0 {
		config.Workers = runtime.NumCPU()
	}
	c := &Coordinator{
		config: config,
		cache:  cache,
		run:    runBacktest,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Cache returns the shared series cache
func (c *Coordinator) Cache() *data.SeriesCache {
	return c.cache
}

func runBacktest(ctx context.Context, cfg meanrev.Config, s data.Series) (*meanrev.Result, error) {
	return meanrev.Run(ctx, cfg, s.Ratings, s.Prices)
}

type task struct {
	index  int
	runID  string
	config meanrev.Config
}

// Run executes every config and returns outcomes in submission order. A
// failing, panicking or timed out run never affects its siblings. Cancelling
// ctx fails the runs that have not started yet.
func (c *Coordinator) Run(ctx context.Context, configs []meanrev.Config) ([]Outcome, Summary) {
	start := c.now()
	outcomes := make([]Outcome, len(configs))
	summary := Summary{Total: len(configs)}
	if len(configs) == 0 {
		return outcomes, summary
	}

	workers := c.config.Workers
	if workers > len(configs) {
		workers = len(configs)
	}

	log.Info().
		Int("runs", len(configs)).
		Int("workers", workers).
		Dur("run_timeout", c.config.RunTimeout).
		Msg("Starting sweep")

	tasks := make(chan task, len(configs))
	for i, cfg := range configs {
		tasks <- task{index: i, runID: uuid.NewString(), config: cfg}
	}
	close(tasks)

	results := make(chan Outcome, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range tasks {
				results <- c.execute(ctx, t)
			}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	tracker := runlog.NewProgressTracker("sweep", len(configs), runlog.ProgressConfig{Bar: c.bar})
	for o := range results {
		outcomes[o.Index] = o
		tracker.Done(o.Status == persistence.StatusSuccess)

		switch o.Status {
		case persistence.StatusSuccess:
			summary.Succeeded++
		case persistence.StatusTimeout:
			summary.TimedOut++
		default:
			summary.Failed++
		}
		if o.Err != nil {
			log.Warn().Err(o.Err).
				Str("run_id", o.RunID).
				Str("run", o.Config.Label()).
				Str("status", string(o.Status)).
				Msg("Sweep run did not succeed")
		}

		c.save(ctx, o)
	}
	tracker.Finish()

	summary.Duration = c.now().Sub(start)
	log.Info().
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Int("timed_out", summary.TimedOut).
		Dur("duration", summary.Duration).
		Msg("Sweep completed")
	return outcomes, summary
}

// execute runs one task with panic recovery and the per-run timeout
func (c *Coordinator) execute(ctx context.Context, t task) Outcome {
	o := Outcome{Index: t.index, RunID: t.runID, Config: t.config}
	if err := ctx.Err(); err != nil {
		o.Status = persistence.StatusFailed
		o.Err = fmt.Errorf("sweep cancelled before run: %w", err)
		return o
	}

	series, ok := c.cache.Get(t.config.Asset)
	if !ok {
		o.Status = persistence.StatusFailed
		o.Err = fmt.Errorf("%w: %s", ErrUnknownAsset, t.config.Asset)
		return o
	}

	runCtx := ctx
	cancel := func() {}
	if c.config.RunTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, c.config.RunTimeout)
	}
	defer cancel()

	if c.metrics != nil {
		c.metrics.RunStarted()
	}
	started := time.Now()

	type reply struct {
		result *meanrev.Result
		err    error
	}
	// Buffered so an abandoned run can still deliver and exit
	done := make(chan reply, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Str("run_id", t.runID).
					Interface("panic", r).
					Bytes("stack", debug.Stack()).
					Msg("Recovered panic in sweep run")
				done <- reply{err: fmt.Errorf("run panicked: %v", r)}
			}
		}()
		res, err := c.run(runCtx, t.config, series)
		done <- reply{result: res, err: err}
	}()

	var rep reply
	select {
	case rep = <-done:
	case <-runCtx.Done():
		rep = reply{err: runCtx.Err()}
	}
	o.Duration = time.Since(started)

	switch {
	case rep.err == nil:
		o.Status = persistence.StatusSuccess
		o.Result = rep.result
	case errors.Is(rep.err, context.DeadlineExceeded) && errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		o.Status = persistence.StatusTimeout
		o.Err = fmt.Errorf("run exceeded %s: %w", c.config.RunTimeout, rep.err)
	default:
		o.Status = persistence.StatusFailed
		o.Err = rep.err
	}

	if c.metrics != nil {
		trades := 0
		if o.Result != nil {
			trades = len(o.Result.Trades)
		}
		c.metrics.RunFinished(string(o.Status), o.Duration, trades)
	}
	return o
}

func (c *Coordinator) save(ctx context.Context, o Outcome) {
	if c.sink == nil {
		return
	}
	rec := persistence.NewRecord(o.RunID, o.Config, o.Result, o.Status, o.Err, c.now())
	if err := c.sink.Save(ctx, rec); err != nil {
		log.Error().Err(err).Str("run_id", o.RunID).Msg("Failed to save sweep run")
	}
}

// RunWindowed runs base over overlapping walk-forward windows of the given
// length in months. Windows without ratings are skipped.
func RunWindowed(ctx context.Context, c *Coordinator, base meanrev.Config, months int) ([]Outcome, Summary, error) {
	series, ok := c.Cache().Get(base.Asset)
	if !ok {
		return nil, Summary{}, fmt.Errorf("%w: %s", ErrUnknownAsset, base.Asset)
	}
	configs := meanrev.WindowConfigs(base, series.Ratings, months)
	if len(configs) == 0 {
		return nil, Summary{}, fmt.Errorf("no rating data in any %d-month window between %s and %s",
			months, base.StartTime.Format(time.DateOnly), base.EndTime.Format(time.DateOnly))
	}
	outcomes, summary := c.Run(ctx, configs)
	return outcomes, summary, nil
}
