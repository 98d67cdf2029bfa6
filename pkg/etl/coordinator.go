package etl

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/tumaini/pesaflow/pkg/config"
	"github.com/tumaini/pesaflow/pkg/model"
	"github.com/tumaini/pesaflow/pkg/store"
)

// State is the coordinator's position in the run lifecycle.
type State int32

const (
	StateIdle State = iota
	StateExtracting
	StateTransforming
	StateLoading
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateExtracting:
		return "extracting"
	case StateTransforming:
		return "transforming"
	case StateLoading:
		return "loading"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// transformResult gathers the three workers' outputs for the loader.
type transformResult struct {
	summary   summaryResult
	customers []model.CustomerAggregate
	temporal  temporalResult
}

// RunResult is the success summary handed back to the caller of Run.
type RunResult struct {
	// Empty means the extract returned no rows: workers and loader were
	// skipped and nothing was written.
	Empty bool

	Extracted      int
	SkippedRows    int
	SkippedAmounts int

	Count            int64
	Volume           decimal.Decimal
	CustomersTouched int
	TrendPeriods     int

	// MaxTransactionTime is the newest transaction in the batch, the
	// candidate next watermark. The hosting process commits it; the
	// pipeline never does.
	MaxTransactionTime time.Time

	// Loaded holds the per-kind write outcomes.
	Loaded LoadReport
}

// Coordinator owns a run: one extract, a concurrent fan-out to the three
// aggregation workers, a full gather, then the load. Stages are strictly
// sequential; only the workers within the transform stage overlap. A single
// run may be in flight at a time.
type Coordinator struct {
	extractor *Extractor
	summary   *SummaryWorker
	customer  *CustomerWorker
	temporal  *TemporalWorker
	loader    *Loader
	log       zerolog.Logger

	state   atomic.Int32
	running atomic.Bool
}

// NewCoordinator wires a pipeline over the given store.
func NewCoordinator(st store.Store, log zerolog.Logger) *Coordinator {
	log = log.With().Str("component", "coordinator").Logger()
	return &Coordinator{
		extractor: NewExtractor(st, log),
		summary:   NewSummaryWorker(),
		customer:  NewCustomerWorker(st, log),
		temporal:  NewTemporalWorker(st, log),
		loader:    NewLoader(st, log),
		log:       log,
	}
}

// State returns the coordinator's current lifecycle state.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

func (c *Coordinator) setState(s State) {
	c.state.Store(int32(s))
}

// Run executes one extract-transform-load cycle over rows newer than since
// (nil = full table). It returns the run summary or a typed error; it never
// panics across its boundary. A second call while a run is in flight fails
// fast with ErrRunInProgress.
func (c *Coordinator) Run(ctx context.Context, since *time.Time) (result *RunResult, err error) {
	if !c.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer c.running.Store(false)

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("etl: run panicked: %v", r)
		}
		if err != nil {
			c.setState(StateFailed)
			c.log.Error().Err(err).Msg("run failed")
		}
		c.setState(StateIdle)
	}()

	start := time.Now()

	// Extract.
	c.setState(StateExtracting)
	ectx, ecancel := context.WithTimeout(ctx, config.ExtractTimeout)
	raws, err := c.extractor.Extract(ectx, since)
	ecancel()
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}

	batch, skipped := parseBatch(raws)
	result = &RunResult{
		Extracted:   len(raws),
		SkippedRows: skipped,
		Volume:      decimal.Zero,
		Loaded:      LoadReport{},
	}
	if len(batch) == 0 {
		// Nothing aggregatable: zero-effect success, no store writes.
		result.Empty = true
		c.log.Info().Int("extracted", len(raws)).Int("skipped", skipped).
			Msg("empty batch, run short-circuited")
		return result, nil
	}
	result.MaxTransactionTime = batch.maxTime()

	// Transform: fan out to the three workers, wait for all of them.
	c.setState(StateTransforming)
	tctx, tcancel := context.WithTimeout(ctx, config.TransformTimeout)
	defer tcancel()
	var tr transformResult
	g, gctx := errgroup.WithContext(tctx)
	g.Go(func() error {
		return c.runWorker(c.summary.Name(), func() error {
			var err error
			tr.summary, err = c.summary.run(gctx, batch)
			return err
		})
	})
	g.Go(func() error {
		return c.runWorker(c.customer.Name(), func() error {
			var err error
			tr.customers, err = c.customer.run(gctx, batch)
			return err
		})
	})
	g.Go(func() error {
		return c.runWorker(c.temporal.Name(), func() error {
			var err error
			tr.temporal, err = c.temporal.run(gctx, batch)
			return err
		})
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("transform: %w", err)
	}

	result.Count = tr.summary.Count
	result.Volume = tr.summary.Volume
	result.SkippedAmounts = tr.summary.SkippedAmounts
	result.CustomersTouched = len(tr.customers)
	result.TrendPeriods = tr.temporal.Periods

	// Load.
	c.setState(StateLoading)
	lctx, lcancel := context.WithTimeout(ctx, config.LoadTimeout)
	defer lcancel()
	result.Loaded = c.loader.Load(lctx, &tr)
	if err := result.Loaded.Err(); err != nil {
		return result, fmt.Errorf("load: %w", err)
	}

	c.log.Info().
		Int("extracted", result.Extracted).
		Int("skipped", result.SkippedRows).
		Int64("count", result.Count).
		Str("volume", result.Volume.String()).
		Int("customers", result.CustomersTouched).
		Dur("elapsed", time.Since(start)).
		Msg("run complete")
	return result, nil
}

// runWorker invokes one worker and converts a panic into a stage error so
// nothing escapes Run.
func (c *Coordinator) runWorker(name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s worker panicked: %v", name, r)
		}
	}()
	if err := fn(); err != nil {
		return fmt.Errorf("%s worker: %w", name, err)
	}
	return nil
}
