package reconciler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fundingwatch/internal/fetcher"
	"fundingwatch/internal/metrics"
	"fundingwatch/internal/model"
	"fundingwatch/logger"
)

// Reconciler compares the funding rates of two exchanges symbol by symbol.
type Reconciler struct {
	a, b       fetcher.Fetcher
	maxWorkers int
	log        *logger.Log
	now        func() time.Time
}

// New returns a Reconciler fetching exchange A from a and exchange B from b.
func New(a, b fetcher.Fetcher, maxWorkers int, log *logger.Log) *Reconciler {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Reconciler{
		a:          a,
		b:          b,
		maxWorkers: maxWorkers,
		log:        log,
		now:        time.Now,
	}
}

// Reconcile fetches every symbol on both exchanges and builds the cycle
// result. Every symbol is processed even when ctx is canceled; samples keep
// the order of symbols.
func (r *Reconciler) Reconcile(ctx context.Context, symbols []string) *model.ReconciliationResult {
	result := &model.ReconciliationResult{
		CycleID:   uuid.New(),
		StartedAt: r.now(),
		Total:     len(symbols),
		MaxDiff:   zero(),
	}

	samples := make([]model.RateSample, len(symbols))
	jobs := make(chan int)

	var wg sync.WaitGroup
	workers := r.maxWorkers
	if workers > len(symbols) {
		workers = len(symbols)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				samples[i] = r.sample(ctx, symbols[i])
			}
		}()
	}
	for i := range symbols {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	for _, s := range samples {
		if s.Erroneous() {
			result.Errors++
			continue
		}
		if s.AbsDiff.GreaterThan(*result.MaxDiff) {
			d := *s.AbsDiff
			result.MaxDiff = &d
			result.MaxDiffSymbol = s.Symbol
		}
	}
	result.Samples = samples
	result.CompletedAt = r.now()

	r.report(result)
	return result
}

// sample fetches both sides concurrently.
func (r *Reconciler) sample(ctx context.Context, symbol string) model.RateSample {
	var a, b model.Outcome
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a = r.a.FetchRate(ctx, symbol)
	}()
	go func() {
		defer wg.Done()
		b = r.b.FetchRate(ctx, symbol)
	}()
	wg.Wait()

	return model.NewRateSample(symbol, a, b, r.now())
}

func (r *Reconciler) report(result *model.ReconciliationResult) {
	duration := result.Duration()
	maxDiff, _ := result.MaxDiff.Float64()

	r.log.WithComponent("reconciler").WithFields(logger.Fields{
		"cycle_id":        result.CycleID.String(),
		"total":           result.Total,
		"errors":          result.Errors,
		"max_diff":        result.MaxDiff.String(),
		"max_diff_symbol": result.MaxDiffSymbol,
		"duration_ms":     duration.Milliseconds(),
	}).Info("reconciliation cycle completed")

	logger.LogPerformance(r.log.WithComponent("reconciler"), "reconcile_cycle", duration, logger.Fields{
		"symbols": result.Total,
		"workers": r.maxWorkers,
	})

	metrics.ObserveCycle(result.Total, result.Errors, maxDiff, duration)

	metrics.EmitMetric(r.log, "reconciler", "cycle_total", result.Total, "gauge", nil)
	metrics.EmitMetric(r.log, "reconciler", "cycle_errors", result.Errors, "gauge", nil)
	metrics.EmitMetric(r.log, "reconciler", "cycle_max_diff", maxDiff, "gauge", logger.Fields{"unit": "none"})
	metrics.EmitMetric(r.log, "reconciler", "cycle_duration_ms", duration.Milliseconds(), "gauge", logger.Fields{"unit": "milliseconds"})
}

func zero() *decimal.Decimal {
	d := decimal.Zero
	return &d
}
