package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WSConfig configures WebSocket transport behavior.
type WSConfig struct {
	// HandshakeTimeout bounds the dial.
	HandshakeTimeout time.Duration
	// SubscribeTimeout bounds the wait for a subscription confirmation.
	SubscribeTimeout time.Duration
	// PingInterval is the interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is the maximum silence (no data, no pong) tolerated
	// before the stream is considered dead.
	ReadTimeout time.Duration
	// WriteTimeout is the timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		HandshakeTimeout: 10 * time.Second,
		SubscribeTimeout: 30 * time.Second,
		PingInterval:     30 * time.Second,
		ReadTimeout:      60 * time.Second,
		WriteTimeout:     10 * time.Second,
	}
}

// WSTransport implements SubscriptionClient using gorilla/websocket.
// Each Subscribe dials a fresh connection carrying exactly one
// logsSubscribe; providers that deduplicate subscriptions per connection
// make sharing a socket across streams unreliable.
type WSTransport struct {
	endpoint  string
	config    WSConfig
	requestID atomic.Uint64
}

// NewWSTransport creates a WebSocket transport for the endpoint.
func NewWSTransport(endpoint string, config *WSConfig) *WSTransport {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	return &WSTransport{endpoint: endpoint, config: cfg}
}

// Subscribe dials the endpoint, issues a logsSubscribe and returns the
// live stream. A provider error on the subscribe request with an
// invalid-params code is surfaced as ErrFilterRejected.
func (t *WSTransport) Subscribe(ctx context.Context, filter LogsFilter, commitment string) (Subscription, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: t.config.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, t.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	reqID := t.requestID.Add(1)

	mentionsFilter := make(map[string]interface{})
	if len(filter.Mentions) > 0 {
		mentionsFilter["mentions"] = filter.Mentions
	} else {
		mentionsFilter["all"] = nil
	}

	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "logsSubscribe",
		Params: []interface{}{
			mentionsFilter,
			map[string]string{"commitment": commitment},
		},
	}

	conn.SetWriteDeadline(time.Now().Add(t.config.WriteTimeout))
	if err := conn.WriteJSON(req); err != nil {
		conn.Close()
		return nil, fmt.Errorf("write subscribe: %w", err)
	}

	subID, err := t.awaitConfirmation(ctx, conn, reqID)
	if err != nil {
		conn.Close()
		return nil, err
	}

	sub := &wsSubscription{
		conn:   conn,
		config: t.config,
		subID:  subID,
		reqID:  t.requestID.Add(1),
		notifs: make(chan LogNotification, 1024),
		done:   make(chan struct{}),
	}

	sub.wg.Add(2)
	go sub.readLoop()
	go sub.pingLoop()

	return sub, nil
}

// awaitConfirmation reads frames until the subscribe response for reqID
// arrives. Notifications cannot arrive before the confirmation on a fresh
// connection, so anything else unexpected is an error.
func (t *WSTransport) awaitConfirmation(ctx context.Context, conn *websocket.Conn, reqID uint64) (int64, error) {
	deadline := time.Now().Add(t.config.SubscribeTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	conn.SetReadDeadline(deadline)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return 0, fmt.Errorf("read subscribe response: %w", err)
		}

		var resp wsSubscribeResponse
		if err := json.Unmarshal(message, &resp); err != nil || resp.ID != reqID {
			continue
		}

		if resp.Error != nil {
			if isFilterRejection(resp.Error) {
				return 0, fmt.Errorf("%w: %s", ErrFilterRejected, resp.Error.Message)
			}
			return 0, fmt.Errorf("subscribe rejected: %w", resp.Error)
		}

		if resp.Result <= 0 {
			return 0, fmt.Errorf("subscribe returned invalid subscription id %d", resp.Result)
		}
		return resp.Result, nil
	}
}

// isFilterRejection reports whether a subscribe error means the provider
// refused the filter shape rather than the request as a whole.
func isFilterRejection(e *rpcError) bool {
	const invalidParams = -32602
	if e.Code == invalidParams {
		return true
	}
	return strings.Contains(strings.ToLower(e.Message), "filter")
}

// wsSubscription is one live logsSubscribe stream over a dedicated
// connection.
type wsSubscription struct {
	conn   *websocket.Conn
	config WSConfig
	subID  int64
	reqID  uint64

	notifs chan LogNotification
	done   chan struct{}
	wg     sync.WaitGroup

	closed atomic.Bool

	errMu sync.Mutex
	err   error
}

var _ Subscription = (*wsSubscription)(nil)

// Notifications returns the stream channel.
func (s *wsSubscription) Notifications() <-chan LogNotification {
	return s.notifs
}

// Err reports why the stream ended.
func (s *wsSubscription) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Unsubscribe sends a best-effort logsUnsubscribe and closes the
// connection.
func (s *wsSubscription) Unsubscribe() error {
	if s.closed.Swap(true) {
		return nil
	}
	close(s.done)

	req := wsRequest{
		JSONRPC: "2.0",
		ID:      s.reqID,
		Method:  "logsUnsubscribe",
		Params:  []interface{}{s.subID},
	}
	s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	writeErr := s.conn.WriteJSON(req)

	s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	closeErr := s.conn.Close()

	s.wg.Wait()

	if writeErr != nil {
		return fmt.Errorf("write unsubscribe: %w", writeErr)
	}
	return closeErr
}

// fail records the terminal error unless the stream was deliberately
// closed, then tears the connection down so both loops exit.
func (s *wsSubscription) fail(err error) {
	if s.closed.Swap(true) {
		return
	}
	s.errMu.Lock()
	s.err = err
	s.errMu.Unlock()
	close(s.done)
	s.conn.Close()
}

// readLoop reads frames and forwards log notifications until the stream
// ends. Missing traffic past ReadTimeout counts as a transport failure;
// pong frames extend the deadline so an idle but healthy stream survives.
func (s *wsSubscription) readLoop() {
	defer s.wg.Done()
	defer close(s.notifs)

	s.conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	})

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			s.fail(fmt.Errorf("read stream: %w", err))
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))

		var notif wsNotification
		if err := json.Unmarshal(message, &notif); err != nil {
			s.fail(fmt.Errorf("malformed server message: %w", err))
			return
		}
		if notif.Method != "logsNotification" || notif.Params == nil {
			continue
		}

		value := notif.Params.Result.Value
		logNotif := LogNotification{
			Signature: value.Signature,
			Logs:      value.Logs,
			Err:       value.Err,
		}
		if notif.Params.Result.Context != nil {
			logNotif.Slot = notif.Params.Result.Context.Slot
		}

		// Block until delivered - never drop events
		select {
		case s.notifs <- logNotif:
		case <-s.done:
			return
		}
	}
}

// pingLoop sends periodic ping frames to keep the connection alive.
func (s *wsSubscription) pingLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				// Connection is likely dead; the reader surfaces it
				return
			}
		}
	}
}

// WebSocket message types

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type wsSubscribeResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      uint64    `json:"id"`
	Result  int64     `json:"result"` // subscription ID
	Error   *rpcError `json:"error"`
}

type wsNotification struct {
	JSONRPC string                `json:"jsonrpc"`
	Method  string                `json:"method"`
	Params  *wsNotificationParams `json:"params"`
}

type wsNotificationParams struct {
	Subscription int64                `json:"subscription"`
	Result       wsNotificationResult `json:"result"`
}

type wsNotificationResult struct {
	Context *wsContext  `json:"context"`
	Value   wsLogsValue `json:"value"`
}

type wsContext struct {
	Slot int64 `json:"slot"`
}

type wsLogsValue struct {
	Signature string      `json:"signature"`
	Logs      []string    `json:"logs"`
	Err       interface{} `json:"err"`
}
