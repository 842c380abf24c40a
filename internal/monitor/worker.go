package monitor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"solana-pool-watch/internal/domain"
	"solana-pool-watch/internal/observability"
	"solana-pool-watch/internal/solana"
)

// WorkerState is the state of a venue's subscription state machine.
type WorkerState int32

const (
	StateDisconnected WorkerState = iota
	StateConnecting
	StateSubscribed
	StateStreaming
	StateReconnectWait
	StateFailed
)

// String returns the string representation of WorkerState.
func (s WorkerState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateSubscribed:
		return "SUBSCRIBED"
	case StateStreaming:
		return "STREAMING"
	case StateReconnectWait:
		return "RECONNECT_WAIT"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// ErrReconnectBudgetExhausted means a worker gave up reconnecting. The
// worker stops permanently; whether the process exits is the supervisor's
// call.
var ErrReconnectBudgetExhausted = errors.New("reconnect budget exhausted")

// BackoffPolicy is the reconnect delay schedule.
type BackoffPolicy struct {
	Base        time.Duration // initial unit, doubled per attempt
	Cap         time.Duration // maximum delay
	MaxAttempts int           // consecutive failures tolerated before FAILED
}

// DefaultBackoff returns the default reconnect schedule.
func DefaultBackoff() BackoffPolicy {
	return BackoffPolicy{
		Base:        1 * time.Second,
		Cap:         30 * time.Second,
		MaxAttempts: 20,
	}
}

// Delay returns the wait before reconnect attempt n (n >= 1):
// min(Base * 2^n, Cap).
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	// Past ~30 doublings any sane Base has exceeded any sane Cap.
	if attempt > 30 {
		return p.Cap
	}
	d := p.Base << uint(attempt)
	if d > p.Cap || d <= 0 {
		d = p.Cap
	}
	return d
}

// WorkerHealth is an observability-only snapshot of one worker.
type WorkerHealth struct {
	VenueID     string `json:"venueId"`
	State       string `json:"state"`
	EventCount  int64  `json:"eventCount"`
	LastEventMs int64  `json:"lastEventMs"`
	Reconnects  int64  `json:"reconnects"`
}

// Worker owns one venue's live subscription. It drives the
// connect/subscribe/stream/reconnect cycle and forwards raw notifications
// to the coordinator. Reconnection is invisible to the coordinator except
// as a gap in notifications.
type Worker struct {
	venue   domain.VenueConfig
	client  solana.SubscriptionClient
	out     chan<- domain.RawNotification
	backoff BackoffPolicy
	logger  *log.Logger

	state      atomic.Int32
	eventCount atomic.Int64
	lastEvent  atomic.Int64
	reconnects atomic.Int64
}

// WorkerOptions contains configuration for creating a Worker.
type WorkerOptions struct {
	Venue   domain.VenueConfig
	Client  solana.SubscriptionClient
	Out     chan<- domain.RawNotification
	Backoff BackoffPolicy
	Logger  *log.Logger
}

// NewWorker creates a subscription worker for one venue.
func NewWorker(opts WorkerOptions) *Worker {
	backoff := opts.Backoff
	if backoff.Base == 0 {
		backoff = DefaultBackoff()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Worker{
		venue:   opts.Venue,
		client:  opts.Client,
		out:     opts.Out,
		backoff: backoff,
		logger:  logger,
	}
}

// State returns the current state machine state.
func (w *Worker) State() WorkerState {
	return WorkerState(w.state.Load())
}

func (w *Worker) setState(s WorkerState) {
	w.state.Store(int32(s))
	observability.SetWorkerState(w.venue.VenueID, int32(s))
}

// Health returns an observability snapshot.
func (w *Worker) Health() WorkerHealth {
	return WorkerHealth{
		VenueID:     w.venue.VenueID,
		State:       w.State().String(),
		EventCount:  w.eventCount.Load(),
		LastEventMs: w.lastEvent.Load(),
		Reconnects:  w.reconnects.Load(),
	}
}

// Run drives the state machine until the context is cancelled or the
// reconnect budget is exhausted. It returns ErrReconnectBudgetExhausted
// when the worker is permanently FAILED.
func (w *Worker) Run(ctx context.Context) error {
	attempt := 0

	for {
		w.setState(StateConnecting)
		sub, broad, err := w.subscribe(ctx)
		if err != nil {
			if ctx.Err() != nil {
				w.setState(StateDisconnected)
				return ctx.Err()
			}
			w.logger.Printf("[worker %s] subscribe failed: %v", w.venue.VenueID, err)
			attempt++
			if err := w.waitReconnect(ctx, attempt); err != nil {
				return err
			}
			continue
		}

		w.setState(StateSubscribed)
		if broad {
			w.logger.Printf("[worker %s] streaming with broad filter, matching %s locally", w.venue.VenueID, w.venue.Program)
		}

		w.stream(ctx, sub, broad, &attempt)

		if err := sub.Unsubscribe(); err != nil {
			// Defensive close on an already-broken stream; never fatal.
			w.logger.Printf("[worker %s] unsubscribe: %v", w.venue.VenueID, err)
		}

		if ctx.Err() != nil {
			w.setState(StateDisconnected)
			return ctx.Err()
		}

		if streamErr := sub.Err(); streamErr != nil {
			w.logger.Printf("[worker %s] stream ended: %v", w.venue.VenueID, streamErr)
		} else {
			w.logger.Printf("[worker %s] stream closed by provider", w.venue.VenueID)
		}

		attempt++
		if err := w.waitReconnect(ctx, attempt); err != nil {
			return err
		}
	}
}

// subscribe issues the venue's scoped filter. If the provider rejects it,
// retries once with a match-everything filter; the caller then filters on
// log content locally.
func (w *Worker) subscribe(ctx context.Context) (solana.Subscription, bool, error) {
	filter := solana.LogsFilter{Mentions: []string{w.venue.Program}}
	sub, err := w.client.Subscribe(ctx, filter, w.venue.Commitment.String())
	if err == nil {
		return sub, false, nil
	}
	if !errors.Is(err, solana.ErrFilterRejected) {
		return nil, false, err
	}

	w.logger.Printf("[worker %s] scoped filter rejected, retrying broad: %v", w.venue.VenueID, err)
	sub, err = w.client.Subscribe(ctx, solana.LogsFilter{}, w.venue.Commitment.String())
	if err != nil {
		return nil, false, err
	}
	return sub, true, nil
}

// stream consumes notifications until the subscription ends or the context
// is cancelled. The first notification transitions the worker to STREAMING,
// resets the reconnect attempt counter and the health counters.
func (w *Worker) stream(ctx context.Context, sub solana.Subscription, broad bool, attempt *int) {
	for {
		select {
		case <-ctx.Done():
			return
		case notif, ok := <-sub.Notifications():
			if !ok {
				return
			}

			if w.State() != StateStreaming {
				w.setState(StateStreaming)
				*attempt = 0
				w.eventCount.Store(0)
				w.lastEvent.Store(0)
			}

			if broad && !mentionsProgram(notif.Logs, w.venue.Program) {
				continue
			}

			detected := time.Now().UnixMilli()
			w.eventCount.Add(1)
			w.lastEvent.Store(detected)

			raw := domain.RawNotification{
				VenueID:      w.venue.VenueID,
				Signature:    notif.Signature,
				Slot:         notif.Slot,
				DetectedAtMs: detected,
				Logs:         notif.Logs,
				Err:          notif.Err,
			}

			select {
			case w.out <- raw:
			case <-ctx.Done():
				return
			}
		}
	}
}

// waitReconnect sleeps the backoff delay for the given attempt. Returns
// ErrReconnectBudgetExhausted when the budget is spent, moving the worker
// to its terminal state.
func (w *Worker) waitReconnect(ctx context.Context, attempt int) error {
	if w.backoff.MaxAttempts > 0 && attempt > w.backoff.MaxAttempts {
		w.setState(StateFailed)
		return fmt.Errorf("%w: venue %s gave up after %d attempts", ErrReconnectBudgetExhausted, w.venue.VenueID, attempt-1)
	}

	w.setState(StateReconnectWait)
	w.reconnects.Add(1)
	observability.RecordReconnect(w.venue.VenueID)
	delay := w.backoff.Delay(attempt)
	w.logger.Printf("[worker %s] reconnect attempt %d in %v", w.venue.VenueID, attempt, delay)

	select {
	case <-ctx.Done():
		w.setState(StateDisconnected)
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

// mentionsProgram reports whether any log line mentions the program ID.
// Used to filter locally when streaming with a broad subscription.
func mentionsProgram(logs []string, program string) bool {
	for _, line := range logs {
		if strings.Contains(line, program) {
			return true
		}
	}
	return false
}
