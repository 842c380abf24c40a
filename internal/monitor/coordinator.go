package monitor

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"solana-pool-watch/internal/domain"
	"solana-pool-watch/internal/observability"
	"solana-pool-watch/internal/sink"
)

// Coordinator defaults.
const (
	DefaultMaxConcurrentResolves = 32
	DefaultShutdownGrace         = 10 * time.Second
)

// Coordinator fans in raw notifications from all venue workers, gates them
// through per-venue dedup trackers and drives each surviving notification
// through resolve → filter → extract → classify → append.
//
// Resolutions run concurrently so a slow lookup never blocks the intake
// loop; record order in the sink therefore does not follow chain order.
// Slot and block time inside each record are the ordering authority for
// consumers.
type Coordinator struct {
	venues   map[string]domain.VenueConfig
	trackers map[string]*Tracker
	resolver *Resolver
	classify *ClassifierRegistry
	out      sink.Sink
	logger   *log.Logger

	sem   chan struct{}
	grace time.Duration
	wg    sync.WaitGroup

	// procCtx outlives the intake context so in-flight resolutions get
	// their grace period; cancelProc fires once the grace expires.
	procCtx    context.Context
	cancelProc context.CancelFunc
}

// CoordinatorOptions contains configuration for creating a Coordinator.
type CoordinatorOptions struct {
	Venues        []domain.VenueConfig
	Resolver      *Resolver
	Classify      *ClassifierRegistry // nil means a default registry
	Sink          sink.Sink
	Tracker       TrackerOptions
	MaxResolves   int           // concurrent resolutions; 0 means default
	ShutdownGrace time.Duration // drain budget on shutdown; 0 means default
	Logger        *log.Logger
}

// NewCoordinator creates the pipeline coordinator. Each venue gets its own
// dedup tracker: venues subscribe independently, so the same signature may
// legitimately produce one record per venue that saw it.
func NewCoordinator(opts CoordinatorOptions) *Coordinator {
	classify := opts.Classify
	if classify == nil {
		classify = NewClassifierRegistry()
	}
	maxResolves := opts.MaxResolves
	if maxResolves <= 0 {
		maxResolves = DefaultMaxConcurrentResolves
	}
	grace := opts.ShutdownGrace
	if grace <= 0 {
		grace = DefaultShutdownGrace
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	venues := make(map[string]domain.VenueConfig, len(opts.Venues))
	trackers := make(map[string]*Tracker, len(opts.Venues))
	for _, v := range opts.Venues {
		venues[v.VenueID] = v
		trackers[v.VenueID] = NewTracker(opts.Tracker)
	}

	procCtx, cancelProc := context.WithCancel(context.Background())

	return &Coordinator{
		venues:     venues,
		trackers:   trackers,
		resolver:   opts.Resolver,
		classify:   classify,
		out:        opts.Sink,
		logger:     logger,
		sem:        make(chan struct{}, maxResolves),
		grace:      grace,
		procCtx:    procCtx,
		cancelProc: cancelProc,
	}
}

// Run consumes notifications until the context is cancelled or the channel
// closes, then drains in-flight work within the shutdown grace period.
func (c *Coordinator) Run(ctx context.Context, notifs <-chan domain.RawNotification) error {
	// Sweepers stop when Run returns, not only on intake cancellation;
	// the channel can close while ctx is still live.
	sweepCtx, cancelSweep := context.WithCancel(ctx)
	var sweepWG sync.WaitGroup
	for _, tracker := range c.trackers {
		sweepWG.Add(1)
		go func(t *Tracker) {
			defer sweepWG.Done()
			t.Run(sweepCtx)
		}(tracker)
	}
	defer sweepWG.Wait()
	defer cancelSweep()

	for {
		select {
		case <-ctx.Done():
			c.drain()
			return ctx.Err()
		case n, ok := <-notifs:
			if !ok {
				c.drain()
				return nil
			}
			c.accept(n)
		}
	}
}

// accept applies the dedup gate and hands the notification to a pipeline
// goroutine. Duplicates are rejected with no side effects.
func (c *Coordinator) accept(n domain.RawNotification) {
	tracker, ok := c.trackers[n.VenueID]
	if !ok {
		c.logger.Printf("[pipeline] notification for unknown venue %q, signature %s", n.VenueID, n.Signature)
		return
	}
	if !tracker.ShouldProcess(n.Signature) {
		observability.RecordDuplicateSkipped(n.VenueID)
		return
	}

	observability.RecordNotificationAccepted(n.VenueID)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.sem <- struct{}{}
		defer func() { <-c.sem }()
		c.process(n, tracker)
	}()
}

// drain waits for in-flight pipelines to flush their records, bounded by
// the grace period. Anything still running afterwards loses its context.
func (c *Coordinator) drain() {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Printf("[pipeline] drained cleanly")
	case <-time.After(c.grace):
		c.logger.Printf("[pipeline] shutdown grace %v expired with work in flight", c.grace)
	}
	c.cancelProc()
}

// process drives one seen notification to exactly one record (or a
// deliberate filter drop). A signature that was marked seen is never
// silently lost: any failure path still appends a degraded record.
func (c *Coordinator) process(n domain.RawNotification, tracker *Tracker) {
	defer tracker.Done(n.Signature)

	rec := &domain.OutputRecord{
		Venue:        n.VenueID,
		Signature:    n.Signature,
		Slot:         n.Slot,
		DetectedAtMs: n.DetectedAtMs,
	}

	defer func() {
		if r := recover(); r != nil {
			// One bad notification must not take the pipeline down.
			c.logger.Printf("[pipeline] panic processing %s: %v", n.Signature, r)
			rec.Error = "internal_error"
			rec.Note = fmt.Sprintf("panic: %v", r)
			c.append(rec)
		}
	}()

	if n.Err != nil {
		// The chain already reported the transaction failed; balance
		// deltas of a failed transaction carry no swap information.
		rec.ChainErr = n.Err
		rec.Note = "failed transaction, not resolved"
		c.append(rec)
		return
	}

	venue := c.venues[n.VenueID]

	resolved, err := c.resolver.Resolve(c.procCtx, n.Signature, venue.Commitment)
	if err != nil {
		tag := ClassifyError(err)
		if tag == "not_yet_available" {
			rec.Note = tag
		} else {
			rec.Error = tag
			rec.Note = err.Error()
			c.logger.Printf("[pipeline] resolve %s: %v", n.Signature, err)
		}
		observability.RecordResolveFailure(n.VenueID, tag)
		c.append(rec)
		return
	}

	pool, match := venue.MatchPool(resolved.AccountsTouched)
	if !match {
		observability.RecordFilteredOut(n.VenueID)
		return
	}
	if pool != "" {
		rec.Pool = &pool
	}

	logs := resolved.Logs
	if len(logs) == 0 {
		logs = n.Logs
	}
	rec.Instruction = c.classify.Classify(n.VenueID, logs)

	if swap, ok := ExtractSwap(resolved.PreBalances, resolved.PostBalances); ok {
		rec.Swap = swap
	}

	rec.BlockTimeMs = resolved.BlockTimeMs
	rec.ChainErr = resolved.Err
	rec.SetLatency()
	if rec.LatencyMs != nil {
		observability.ObserveDetectionLatency(n.VenueID, *rec.LatencyMs)
	}

	c.append(rec)
}

// append writes the record, serialized by the sink itself. Sink failures
// are logged and counted; there is nowhere further to report them.
func (c *Coordinator) append(rec *domain.OutputRecord) {
	start := time.Now()
	err := c.out.Append(c.procCtx, rec)
	observability.ObserveSinkWrite(time.Since(start).Seconds(), err)
	if err != nil {
		c.logger.Printf("[pipeline] append %s/%s: %v", rec.Venue, rec.Signature, err)
		return
	}
	observability.RecordRecordWritten(rec.Venue, recordStatus(rec))
}

func recordStatus(rec *domain.OutputRecord) string {
	switch {
	case rec.Error != "":
		return "error"
	case rec.Note == "not_yet_available":
		return "not_yet_available"
	default:
		return "ok"
	}
}
