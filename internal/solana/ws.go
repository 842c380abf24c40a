package solana

import (
	"context"
	"errors"
)

// SubscriptionClient defines the subscribe-capable Solana connection.
// One Subscribe call produces one live stream; there is no transparent
// reconnection. A broken stream is restarted only by calling Subscribe
// again.
type SubscriptionClient interface {
	Subscribe(ctx context.Context, filter LogsFilter, commitment string) (Subscription, error)
}

// Subscription is one live log stream.
type Subscription interface {
	// Notifications returns the stream channel. It is closed when the
	// stream ends, either through Unsubscribe or a transport failure.
	Notifications() <-chan LogNotification

	// Err reports why the stream ended. It is nil before the channel is
	// closed and after a deliberate Unsubscribe.
	Err() error

	// Unsubscribe ends the stream and releases the connection.
	Unsubscribe() error
}

// LogsFilter defines a subscription filter for logs.
type LogsFilter struct {
	// Mentions filters logs that mention any of these addresses.
	// Empty means subscribe to everything.
	Mentions []string
}

// Broad reports whether the filter matches all transactions.
func (f LogsFilter) Broad() bool {
	return len(f.Mentions) == 0
}

// LogNotification represents one logs subscription message.
type LogNotification struct {
	Signature string
	Slot      int64
	Logs      []string
	Err       interface{}
}

// ErrFilterRejected indicates the provider refused the requested filter.
// Some providers mishandle scoped mentions filters; callers retry with a
// broad filter and match locally.
var ErrFilterRejected = errors.New("subscription filter rejected")
