package refresher

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"fundingwatch/internal/model"
	"fundingwatch/logger"
)

// Reconciler runs one comparison pass over symbols.
type Reconciler interface {
	Reconcile(ctx context.Context, symbols []string) *model.ReconciliationResult
}

// Driver owns the refresh timer, the manual trigger and the latest result.
// Cycles run one at a time.
type Driver struct {
	rec      Reconciler
	symbols  []string
	interval time.Duration
	log      *logger.Log
	now      func() time.Time

	trigger chan struct{}
	last    atomic.Pointer[model.LastResult]
	running atomic.Bool

	subsMu sync.Mutex
	subs   map[int]chan model.LastResult
	nextID int
}

func New(rec Reconciler, symbols []string, interval time.Duration, log *logger.Log) *Driver {
	if log == nil {
		log = logger.GetLogger()
	}
	syms := make([]string, len(symbols))
	copy(syms, symbols)
	return &Driver{
		rec:      rec,
		symbols:  syms,
		interval: interval,
		log:      log,
		now:      time.Now,
		trigger:  make(chan struct{}, 1),
		subs:     make(map[int]chan model.LastResult),
	}
}

// Run performs a cycle immediately, then one per interval tick and one per
// manual trigger, until ctx is done. An in-flight cycle is allowed to finish.
func (d *Driver) Run(ctx context.Context) error {
	l := d.log.WithComponent("refresher")
	l.WithFields(logger.Fields{
		"symbols":  len(d.symbols),
		"interval": d.interval.String(),
	}).Info("refresh driver started")

	d.RunOnce(ctx)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.Info("refresh driver stopped")
			return nil
		case <-ticker.C:
			d.RunOnce(ctx)
		case <-d.trigger:
			l.Debug("manual refresh")
			d.RunOnce(ctx)
			ticker.Reset(d.interval)
		}
	}
}

// RunOnce runs a single cycle and publishes its result. Cancellation of ctx
// does not abort the cycle.
func (d *Driver) RunOnce(ctx context.Context) model.LastResult {
	d.running.Store(true)
	defer d.running.Store(false)

	res := d.rec.Reconcile(context.WithoutCancel(ctx), d.symbols)
	last := model.LastResult{
		Result:      res,
		RefreshedAt: d.now(),
		Interval:    d.interval,
	}
	d.last.Store(&last)
	d.publish(last)
	return last
}

// Trigger requests a manual refresh. Requests made while one is already
// pending coalesce; it reports whether a new request was queued.
func (d *Driver) Trigger() bool {
	select {
	case d.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Refreshing reports whether a cycle is in flight.
func (d *Driver) Refreshing() bool {
	return d.running.Load()
}

// Last returns the latest snapshot. Before the first cycle completes the
// result is nil.
func (d *Driver) Last() model.LastResult {
	if p := d.last.Load(); p != nil {
		return *p
	}
	return model.LastResult{Interval: d.interval}
}

func (d *Driver) Interval() time.Duration {
	return d.interval
}

// Subscribe returns a channel receiving every new snapshot and a function
// that cancels the subscription. A slow subscriber only sees the latest.
func (d *Driver) Subscribe() (<-chan model.LastResult, func()) {
	ch := make(chan model.LastResult, 1)

	d.subsMu.Lock()
	d.nextID++
	id := d.nextID
	d.subs[id] = ch
	d.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			d.subsMu.Lock()
			delete(d.subs, id)
			d.subsMu.Unlock()
			close(ch)
		})
	}
}

func (d *Driver) publish(last model.LastResult) {
	d.subsMu.Lock()
	defer d.subsMu.Unlock()

	for _, ch := range d.subs {
		select {
		case ch <- last:
			continue
		default:
		}
		// drop the stale snapshot
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- last:
		default:
		}
	}
}
