// Package automation wires the order and route rule sets to a trading
// gateway: it builds a Dataset per entity from lifecycle notifications
// and runs the matching RuleSet when relevant fields change.
package automation

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/liamcoop/hedgerules/gateway"
	"github.com/liamcoop/hedgerules/internal/logger"
	"github.com/liamcoop/hedgerules/internal/metrics"
	"github.com/liamcoop/hedgerules/journal"
	"github.com/liamcoop/hedgerules/refdata"
	"github.com/liamcoop/hedgerules/rules"
)

var (
	ErrQueueFull      = errors.New("worker queue full")
	ErrAlreadyRunning = errors.New("orchestrator already running")
)

// Config holds the operator parameters.
type Config struct {
	Threshold     decimal.Decimal
	HedgeTicker   string
	HedgeRatio    decimal.Decimal
	Workers       int
	QueueSize     int
	ActionTimeout time.Duration
	EvictAfter    time.Duration // zero keeps datasets forever
	DropWhenFull  bool          // reject with ErrQueueFull instead of waiting for queue space
	OrderGuard    string        // optional CEL expression over OrderSchema
	RouteGuard    string        // optional CEL expression over RouteSchema
}

func DefaultConfig() Config {
	return Config{
		HedgeRatio:    decimal.NewFromInt(1),
		Workers:       4,
		QueueSize:     1024,
		ActionTimeout: 5 * time.Second,
	}
}

func (c Config) Validate() error {
	if !c.Threshold.IsPositive() {
		return fmt.Errorf("threshold must be positive, got %s", c.Threshold)
	}
	if c.HedgeTicker == "" {
		return errors.New("hedge ticker is required")
	}
	if !c.HedgeRatio.IsPositive() {
		return fmt.Errorf("hedge ratio must be positive, got %s", c.HedgeRatio)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.QueueSize < 1 {
		return fmt.Errorf("queue size must be at least 1, got %d", c.QueueSize)
	}
	if c.ActionTimeout <= 0 {
		return fmt.Errorf("action timeout must be positive, got %s", c.ActionTimeout)
	}
	if c.EvictAfter < 0 {
		return fmt.Errorf("evict-after must not be negative, got %s", c.EvictAfter)
	}
	return nil
}

// Deps are the collaborators of an Orchestrator. Journal and Metrics
// default to an in-memory store and a private registry.
type Deps struct {
	Engine    *rules.Engine
	Submitter gateway.Submitter
	Orders    gateway.EntityLookup
	RefData   refdata.Lookup
	Journal   journal.Store
	Metrics   *metrics.Metrics
}

// Orchestrator turns gateway notifications into RuleSet passes.
type Orchestrator struct {
	cfg        Config
	engine     *rules.Engine
	orders     gateway.EntityLookup
	refs       refdata.Lookup
	journal    journal.Store
	metrics    *metrics.Metrics
	orderRules *rules.RuleSet
	routeRules *rules.RuleSet

	// terminal records when a dataset's status first became terminal.
	tmu      sync.Mutex
	terminal map[string]time.Time

	qmu      sync.RWMutex
	queues   []chan gateway.Notification
	closed   bool
	running  bool
	stopping chan struct{}
	finished chan struct{}
	stopOnce sync.Once
}

// New validates cfg, compiles the guard expressions and registers the
// order and route rule sets with the engine.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Engine == nil || deps.Submitter == nil || deps.Orders == nil || deps.RefData == nil {
		return nil, errors.New("engine, submitter, order lookup and reference data are required")
	}
	if deps.Journal == nil {
		deps.Journal = journal.NewMemoryStore(10000)
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New(prometheus.NewRegistry())
	}

	orderGuard, err := Guard("OrderGuard", OrderSchema, cfg.OrderGuard)
	if err != nil {
		return nil, err
	}
	routeGuard, err := Guard("RouteGuard", RouteSchema, cfg.RouteGuard)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		cfg:        cfg,
		engine:     deps.Engine,
		orders:     deps.Orders,
		refs:       deps.RefData,
		journal:    deps.Journal,
		metrics:    deps.Metrics,
		orderRules: NewOrderRules(deps.Submitter, cfg.ActionTimeout, orderGuard),
		routeRules: NewRouteRules(deps.Submitter, cfg.ActionTimeout, cfg.HedgeRatio, routeGuard),
		terminal:   make(map[string]time.Time),
		stopping:   make(chan struct{}),
		finished:   make(chan struct{}),
	}
	for _, rs := range []*rules.RuleSet{o.orderRules, o.routeRules} {
		if err := o.engine.AddRuleSet(rs); err != nil {
			return nil, err
		}
	}

	o.queues = make([]chan gateway.Notification, cfg.Workers)
	for i := range o.queues {
		o.queues[i] = make(chan gateway.Notification, cfg.QueueSize)
	}
	return o, nil
}

// Enqueue hands n to the worker owning its entity. When that worker's
// queue is full it waits for room until Stop is called; with DropWhenFull
// it returns ErrQueueFull instead.
func (o *Orchestrator) Enqueue(n gateway.Notification) error {
	o.qmu.RLock()
	defer o.qmu.RUnlock()

	if o.closed {
		return rules.ErrEngineStopped
	}
	q := o.queues[o.shard(n.Entity.Key())]

	if o.cfg.DropWhenFull {
		select {
		case q <- n:
			return nil
		default:
			o.metrics.Dropped.Inc()
			return fmt.Errorf("%w: %s", ErrQueueFull, n.Entity.Key())
		}
	}

	select {
	case q <- n:
		return nil
	case <-o.stopping:
		return rules.ErrEngineStopped
	}
}

func (o *Orchestrator) shard(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(o.queues)))
}

// Run starts one worker per queue, plus the eviction janitor when
// EvictAfter is set, and blocks until Stop drains the queues or ctx ends.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.qmu.Lock()
	if o.closed {
		o.qmu.Unlock()
		return rules.ErrEngineStopped
	}
	if o.running {
		o.qmu.Unlock()
		return ErrAlreadyRunning
	}
	o.running = true
	o.qmu.Unlock()
	defer close(o.finished)

	logger.Info("orchestrator started", "workers", len(o.queues), "queue_size", o.cfg.QueueSize)

	g, gctx := errgroup.WithContext(ctx)
	for i, q := range o.queues {
		g.Go(func() error {
			o.work(gctx, i, q)
			return nil
		})
	}
	if o.cfg.EvictAfter > 0 {
		g.Go(func() error {
			o.janitor(gctx)
			return nil
		})
	}
	return g.Wait()
}

func (o *Orchestrator) work(ctx context.Context, id int, q <-chan gateway.Notification) {
	for {
		select {
		case n, ok := <-q:
			if !ok {
				logger.Debug("worker drained", "worker", id)
				return
			}
			if err := o.Handle(ctx, n); err != nil {
				logger.ForEntity(n.Entity.Key()).Error("notification failed",
					"category", n.Category,
					"type", n.Type,
					"error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (o *Orchestrator) janitor(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.EvictAfter / 2)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			if n := o.Evict(now); n > 0 {
				logger.Info("evicted datasets", "count", n)
			}
		case <-o.stopping:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop rejects new notifications, lets the workers finish what is queued
// and then stops the engine. Later calls are no-ops.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() {
		// Releases Enqueue calls waiting for queue space, which hold qmu.
		close(o.stopping)

		o.qmu.Lock()
		o.closed = true
		for _, q := range o.queues {
			close(q)
		}
		running := o.running
		o.qmu.Unlock()

		if running {
			<-o.finished
		}
		o.engine.Stop()
		logger.Info("orchestrator stopped")
	})
}

// Handle processes one notification to completion, including any
// actions it triggers.
func (o *Orchestrator) Handle(ctx context.Context, n gateway.Notification) error {
	if o.engine.Stopped() {
		return rules.ErrEngineStopped
	}
	o.metrics.Notifications.WithLabelValues(string(n.Category), string(n.Type)).Inc()

	if n.Type == gateway.TypeDelete {
		o.remove(n.Entity.Key())
		return nil
	}

	switch n.Category {
	case gateway.CategoryOrder:
		return o.handleOrder(ctx, n)
	case gateway.CategoryRoute:
		return o.handleRoute(ctx, n)
	default:
		return fmt.Errorf("unknown category %q", n.Category)
	}
}

func (o *Orchestrator) handleOrder(ctx context.Context, n gateway.Notification) error {
	key := n.Entity.Key()
	ds, err := o.engine.Dataset(key)
	missing := errors.Is(err, rules.ErrDatasetNotFound)

	switch n.Type {
	case gateway.TypeNew, gateway.TypeInitialPaint:
		fresh := false
		if missing {
			if ds, fresh, err = o.build(ctx, n.Entity); err != nil {
				return err
			}
		}
		ds.Lock()
		defer ds.Unlock()
		if !fresh {
			applyEntity(ds, n.Entity)
		}
		o.track(ds, OrderStatus)
		return o.pass(ctx, o.orderRules, ds, false)

	case gateway.TypeUpdate:
		if missing {
			logger.ForEntity(key).Debug("update for unknown order")
			return nil
		}
		ds.Lock()
		defer ds.Unlock()
		applyChanges(ds, n.Changes)
		o.track(ds, OrderStatus)
		return nil
	}
	return nil
}

func (o *Orchestrator) handleRoute(ctx context.Context, n gateway.Notification) error {
	key := n.Entity.Key()
	ds, err := o.engine.Dataset(key)
	if errors.Is(err, rules.ErrDatasetNotFound) {
		var fresh bool
		if ds, fresh, err = o.build(ctx, n.Entity); err != nil {
			return err
		}
		// A route whose parent order could not be resolved earlier is
		// built on its next notification; that notification is not acted on.
		if fresh {
			ds.Lock()
			ds.ClearStale()
			o.track(ds, RouteStatus)
			ds.Unlock()
			return nil
		}
	}

	ds.Lock()
	defer ds.Unlock()

	switch n.Type {
	case gateway.TypeNew, gateway.TypeInitialPaint:
		applyEntity(ds, n.Entity)
	case gateway.TypeUpdate:
		applyChanges(ds, n.Changes)
	}
	o.track(ds, RouteStatus)

	if n.Type == gateway.TypeUpdate && n.Changed(gateway.FieldFilled) {
		return o.pass(ctx, o.routeRules, ds, true)
	}
	return nil
}

// build creates and registers the dataset for e. fresh is false when
// another path registered it first and the existing dataset is returned.
// Resolution failures are counted and returned; the next qualifying
// notification retries.
func (o *Orchestrator) build(ctx context.Context, e gateway.Entity) (ds *rules.Dataset, fresh bool, err error) {
	if e.Category == gateway.CategoryRoute {
		ds, err = BuildRouteDataset(ctx, e, o.cfg.HedgeTicker, o.orders, o.refs)
	} else {
		ds, err = BuildOrderDataset(ctx, e, o.cfg.Threshold, o.cfg.HedgeTicker, o.refs)
	}
	if err != nil {
		o.metrics.BuildFailures.WithLabelValues(string(e.Category)).Inc()
		return nil, false, fmt.Errorf("build dataset %s: %w", e.Key(), err)
	}

	if err := o.engine.AddDataset(ds); err != nil {
		if !errors.Is(err, rules.ErrDuplicateDataset) {
			return nil, false, err
		}
		existing, err := o.engine.Dataset(e.Key())
		return existing, false, err
	}
	o.metrics.Datasets.Inc()
	logger.Debug("dataset built", "entity", e.Key(), "datapoints", len(ds.Names()))
	return ds, true, nil
}

func applyEntity(ds *rules.Dataset, e gateway.Entity) {
	for field, value := range e.Fields {
		ds.ApplyFieldChange(field, value)
	}
}

func applyChanges(ds *rules.Dataset, changes []gateway.FieldChange) {
	for _, c := range changes {
		ds.ApplyFieldChange(c.Field, c.NewValue)
	}
}

// pass runs rs over ds, then journals and counts the outcome. The caller
// holds the dataset lock.
func (o *Orchestrator) pass(ctx context.Context, rs *rules.RuleSet, ds *rules.Dataset, changedOnly bool) error {
	var (
		report *rules.ExecutionReport
		err    error
		mode   = "full"
	)
	if changedOnly {
		mode = "changed"
		report, err = rs.ExecuteChanged(ctx, ds)
	} else {
		report, err = rs.Execute(ctx, ds)
	}
	ds.ClearStale()

	o.metrics.Passes.WithLabelValues(rs.Name(), mode).Inc()
	if report != nil {
		o.metrics.PassDuration.WithLabelValues(rs.Name()).Observe(report.Duration.Seconds())
		for _, rule := range report.Fired() {
			o.metrics.RulesFired.WithLabelValues(rs.Name(), rule).Inc()
		}
		o.record(ctx, report)
	}

	if err != nil {
		o.metrics.EvaluationErrors.WithLabelValues(rs.Name()).Inc()
		var evalErr *rules.EvaluationError
		if errors.As(err, &evalErr) {
			logger.ForEntity(ds.Name()).Error("rule evaluation failed",
				"ruleset", evalErr.RuleSet,
				"rule", evalErr.Rule,
				"condition", evalErr.Condition,
				"action", evalErr.Action,
				"error", evalErr.Err)
		}
		return err
	}
	return nil
}

func (o *Orchestrator) record(ctx context.Context, report *rules.ExecutionReport) {
	for _, e := range journal.Entries(report) {
		o.metrics.ActionResults.WithLabelValues(e.Action, string(e.Status)).Inc()

		log := logger.ForAction(e.Entity, e.RuleSet, e.Rule, e.Action)
		switch e.Status {
		case rules.StatusSucceeded:
			log.Info("action succeeded", "reference", e.Reference)
		default:
			log.Warn("action did not succeed", "status", e.Status, "error_code", e.ErrorCode, "message", e.Message)
		}

		if err := o.journal.Record(ctx, e); err != nil {
			log.Error("journal write failed", "error", err)
		}
	}
}

// track notes when the dataset entered a terminal status.
func (o *Orchestrator) track(ds *rules.Dataset, statusPoint string) {
	if o.cfg.EvictAfter <= 0 {
		return
	}
	dp, err := ds.DataPoint(statusPoint)
	if err != nil {
		return
	}
	status, err := dp.StringValue()
	if err != nil {
		return
	}

	o.tmu.Lock()
	defer o.tmu.Unlock()
	if !gateway.IsTerminal(status) {
		delete(o.terminal, ds.Name())
		return
	}
	if _, seen := o.terminal[ds.Name()]; !seen {
		o.terminal[ds.Name()] = time.Now()
	}
}

// Evict removes datasets that have been terminal for at least EvictAfter
// as of now, returning how many were removed.
func (o *Orchestrator) Evict(now time.Time) int {
	if o.cfg.EvictAfter <= 0 {
		return 0
	}

	o.tmu.Lock()
	var expired []string
	for key, since := range o.terminal {
		if now.Sub(since) >= o.cfg.EvictAfter {
			expired = append(expired, key)
		}
	}
	o.tmu.Unlock()

	evicted := 0
	for _, key := range expired {
		if o.remove(key) {
			o.metrics.Evicted.Inc()
			evicted++
		}
	}
	return evicted
}

// remove drops the dataset for key and reports whether one was registered.
func (o *Orchestrator) remove(key string) bool {
	o.tmu.Lock()
	delete(o.terminal, key)
	o.tmu.Unlock()

	if err := o.engine.RemoveDataset(key); err != nil {
		return false
	}
	o.metrics.Datasets.Dec()
	logger.Debug("dataset removed", "entity", key)
	return true
}
