// Package persistence stores the outcome of backtest runs.
package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/sawpanic/glickorun/internal/backtest/meanrev"
	"github.com/sawpanic/glickorun/internal/ledger"
	"github.com/sawpanic/glickorun/internal/report/perf"
)

// ErrNotFound is returned when a run ID has no stored record
var ErrNotFound = errors.New("run not found")

// Status is the terminal state of one run
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusTimeout Status = "timeout"
)

// Record is one stored run. Failed and timed out runs carry Error and an
// empty ledger.
type Record struct {
	RunID     string         `json:"run_id"`
	Config    meanrev.Config `json:"config"`
	Trades    []ledger.Trade `json:"trades"`
	Metrics   perf.Record    `json:"metrics"`
	Status    Status         `json:"status"`
	Error     string         `json:"error,omitempty"`
	DataGaps  int            `json:"data_gaps"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewRecord builds the record of a finished run. result may be nil when err is set.
func NewRecord(runID string, cfg meanrev.Config, result *meanrev.Result, status Status, err error, createdAt time.Time) Record {
	rec := Record{
		RunID:     runID,
		Config:    cfg,
		Status:    status,
		CreatedAt: createdAt,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	if result != nil {
		rec.Trades = result.Trades
		rec.Metrics = result.Metrics
		rec.DataGaps = result.DataGaps
	}
	return rec
}

// ResultSink receives completed runs. Implementations must be safe for
// concurrent use by sweep workers.
type ResultSink interface {
	Save(ctx context.Context, rec Record) error
}

// ResultStore is a sink that can also read runs back
type ResultStore interface {
	ResultSink

	// Get returns the run with the given ID or ErrNotFound
	Get(ctx context.Context, runID string) (*Record, error)

	// ListByAsset returns the newest runs for an asset, newest first
	ListByAsset(ctx context.Context, asset string, limit int) ([]Record, error)
}

// HealthCheck represents store health status
type HealthCheck struct {
	Healthy        bool           `json:"healthy"`
	Errors         []string       `json:"errors,omitempty"`
	ConnectionPool map[string]int `json:"connection_pool"`
	LastCheck      time.Time      `json:"last_check"`
	ResponseTimeMS int64          `json:"response_time_ms"`
}

// StoreHealth provides health monitoring for a store
type StoreHealth interface {
	// Health returns current health status
	Health(ctx context.Context) HealthCheck

	// Ping tests basic connectivity
	Ping(ctx context.Context) error
}
