package solana

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{}

// wsServer runs handler on each websocket connection of an httptest server
// and returns the ws:// endpoint.
func wsServer(t *testing.T, handler func(conn *websocket.Conn)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// readRequest reads the next client request frame.
func readRequest(t *testing.T, conn *websocket.Conn) wsRequest {
	t.Helper()
	var req wsRequest
	if err := conn.ReadJSON(&req); err != nil {
		t.Errorf("read client request: %v", err)
	}
	return req
}

func confirmSubscribe(t *testing.T, conn *websocket.Conn, reqID uint64, subID int64) {
	t.Helper()
	err := conn.WriteJSON(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      reqID,
		"result":  subID,
	})
	if err != nil {
		t.Errorf("write confirmation: %v", err)
	}
}

func sendLogsNotification(t *testing.T, conn *websocket.Conn, subID int64, slot int64, signature string, logs []string) {
	t.Helper()
	err := conn.WriteJSON(map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  "logsNotification",
		"params": map[string]interface{}{
			"subscription": subID,
			"result": map[string]interface{}{
				"context": map[string]interface{}{"slot": slot},
				"value": map[string]interface{}{
					"signature": signature,
					"logs":      logs,
					"err":       nil,
				},
			},
		},
	})
	if err != nil {
		t.Errorf("write notification: %v", err)
	}
}

func TestWSTransport_SubscribeAndReceive(t *testing.T) {
	endpoint := wsServer(t, func(conn *websocket.Conn) {
		req := readRequest(t, conn)
		if req.Method != "logsSubscribe" {
			t.Errorf("method = %q, want logsSubscribe", req.Method)
		}
		if len(req.Params) != 2 {
			t.Fatalf("params = %v, want filter and commitment", req.Params)
		}
		filter, _ := req.Params[0].(map[string]interface{})
		if _, ok := filter["mentions"]; !ok {
			t.Errorf("filter = %v, want mentions", filter)
		}

		confirmSubscribe(t, conn, req.ID, 7)
		sendLogsNotification(t, conn, 7, 42, "sig1", []string{"Program log: Instruction: Swap"})

		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	transport := NewWSTransport(endpoint, nil)
	sub, err := transport.Subscribe(context.Background(), LogsFilter{Mentions: []string{"Prog"}}, "confirmed")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Unsubscribe()

	select {
	case notif := <-sub.Notifications():
		if notif.Signature != "sig1" || notif.Slot != 42 {
			t.Errorf("notification = %+v, want sig1 at slot 42", notif)
		}
		if len(notif.Logs) != 1 {
			t.Errorf("logs = %v", notif.Logs)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("notification not delivered")
	}
}

func TestWSTransport_BroadFilter(t *testing.T) {
	endpoint := wsServer(t, func(conn *websocket.Conn) {
		req := readRequest(t, conn)
		filter, _ := req.Params[0].(map[string]interface{})
		if _, ok := filter["all"]; !ok {
			t.Errorf("filter = %v, want all", filter)
		}
		confirmSubscribe(t, conn, req.ID, 1)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	transport := NewWSTransport(endpoint, nil)
	sub, err := transport.Subscribe(context.Background(), LogsFilter{}, "confirmed")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	sub.Unsubscribe()
}

func TestWSTransport_FilterRejected(t *testing.T) {
	endpoint := wsServer(t, func(conn *websocket.Conn) {
		req := readRequest(t, conn)
		conn.WriteJSON(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"error":   map[string]interface{}{"code": -32602, "message": "Invalid params: filter not supported"},
		})
	})

	transport := NewWSTransport(endpoint, nil)
	_, err := transport.Subscribe(context.Background(), LogsFilter{Mentions: []string{"Prog"}}, "confirmed")
	if !errors.Is(err, ErrFilterRejected) {
		t.Fatalf("err = %v, want ErrFilterRejected", err)
	}
}

func TestWSTransport_SubscribeErrorNotFilterRelated(t *testing.T) {
	endpoint := wsServer(t, func(conn *websocket.Conn) {
		req := readRequest(t, conn)
		conn.WriteJSON(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"error":   map[string]interface{}{"code": -32000, "message": "too many subscriptions"},
		})
	})

	transport := NewWSTransport(endpoint, nil)
	_, err := transport.Subscribe(context.Background(), LogsFilter{Mentions: []string{"Prog"}}, "confirmed")
	if err == nil {
		t.Fatal("expected an error")
	}
	if errors.Is(err, ErrFilterRejected) {
		t.Fatalf("err = %v, must not be classified as a filter rejection", err)
	}
}

func TestWSTransport_UnsubscribeClosesStream(t *testing.T) {
	gotUnsubscribe := make(chan struct{})
	endpoint := wsServer(t, func(conn *websocket.Conn) {
		req := readRequest(t, conn)
		confirmSubscribe(t, conn, req.ID, 9)

		var next wsRequest
		for {
			if err := conn.ReadJSON(&next); err != nil {
				return
			}
			if next.Method == "logsUnsubscribe" {
				close(gotUnsubscribe)
				return
			}
		}
	})

	transport := NewWSTransport(endpoint, nil)
	sub, err := transport.Subscribe(context.Background(), LogsFilter{Mentions: []string{"Prog"}}, "confirmed")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := sub.Unsubscribe(); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}

	select {
	case <-gotUnsubscribe:
	case <-time.After(5 * time.Second):
		t.Fatal("server never saw logsUnsubscribe")
	}

	select {
	case _, open := <-sub.Notifications():
		if open {
			t.Error("expected the notification channel to be closed")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("notification channel not closed")
	}

	if err := sub.Err(); err != nil {
		t.Errorf("Err = %v, want nil after a deliberate Unsubscribe", err)
	}
}

func TestWSTransport_ServerCloseSurfacesError(t *testing.T) {
	endpoint := wsServer(t, func(conn *websocket.Conn) {
		req := readRequest(t, conn)
		confirmSubscribe(t, conn, req.ID, 3)
		conn.Close()
	})

	transport := NewWSTransport(endpoint, nil)
	sub, err := transport.Subscribe(context.Background(), LogsFilter{Mentions: []string{"Prog"}}, "confirmed")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	select {
	case _, open := <-sub.Notifications():
		if open {
			t.Fatal("expected channel close, got a notification")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not end after server close")
	}

	if sub.Err() == nil {
		t.Error("Err = nil, want the transport failure")
	}
}

func TestWSTransport_MalformedFrameFailsStream(t *testing.T) {
	endpoint := wsServer(t, func(conn *websocket.Conn) {
		req := readRequest(t, conn)
		confirmSubscribe(t, conn, req.ID, 3)
		conn.WriteMessage(websocket.TextMessage, []byte("{not json"))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	transport := NewWSTransport(endpoint, nil)
	sub, err := transport.Subscribe(context.Background(), LogsFilter{Mentions: []string{"Prog"}}, "confirmed")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	select {
	case _, open := <-sub.Notifications():
		if open {
			t.Fatal("expected channel close on a malformed frame")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not end")
	}
	if sub.Err() == nil {
		t.Error("Err = nil, want a malformed-message failure")
	}
}
