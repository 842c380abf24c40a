package solana

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func rpcServer(t *testing.T, handler func(method string, params []interface{}) (interface{}, *rpcError)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		result, rpcErr := handler(req.Method, req.Params)
		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
		}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestHTTPClient_GetTransaction(t *testing.T) {
	srv := rpcServer(t, func(method string, params []interface{}) (interface{}, *rpcError) {
		if method != "getTransaction" {
			t.Errorf("method = %q, want getTransaction", method)
		}
		if sig, _ := params[0].(string); sig != "sig1" {
			t.Errorf("signature param = %v, want sig1", params[0])
		}
		opts, _ := params[1].(map[string]interface{})
		if opts["commitment"] != "confirmed" {
			t.Errorf("commitment = %v, want confirmed", opts["commitment"])
		}
		if _, ok := opts["maxSupportedTransactionVersion"]; !ok {
			t.Error("maxSupportedTransactionVersion missing")
		}

		return map[string]interface{}{
			"slot":      12345,
			"blockTime": 1700000000,
			"meta": map[string]interface{}{
				"err":         nil,
				"logMessages": []string{"Program log: Instruction: Swap"},
				"preTokenBalances": []map[string]interface{}{
					{"accountIndex": 1, "mint": "MintX", "uiTokenAmount": map[string]interface{}{"amount": "1000", "decimals": 6}},
				},
				"postTokenBalances": []map[string]interface{}{
					{"accountIndex": 1, "mint": "MintX", "uiTokenAmount": map[string]interface{}{"amount": "700", "decimals": 6}},
				},
				"loadedAddresses": map[string]interface{}{
					"writable": []string{"lookupW"},
					"readonly": []string{"lookupR", "acc1"},
				},
			},
			"transaction": map[string]interface{}{
				"message": map[string]interface{}{
					"accountKeys": []string{"acc1", "acc2"},
				},
			},
		}, nil
	})
	defer srv.Close()

	client := NewHTTPClient(srv.URL)
	tx, err := client.GetTransaction(context.Background(), "sig1", "confirmed")
	if err != nil {
		t.Fatalf("GetTransaction failed: %v", err)
	}
	if tx == nil {
		t.Fatal("expected a transaction")
	}
	if tx.Slot != 12345 || tx.BlockTime != 1700000000 {
		t.Errorf("slot/blockTime = %d/%d", tx.Slot, tx.BlockTime)
	}
	if tx.Meta == nil || len(tx.Meta.PreTokenBalances) != 1 {
		t.Fatalf("meta = %+v", tx.Meta)
	}
	if b := tx.Meta.PreTokenBalances[0]; b.Mint != "MintX" || b.Amount != "1000" || b.Decimals != 6 {
		t.Errorf("pre balance = %+v", b)
	}

	// Account keys include lookup-table addresses, deduplicated.
	keys := tx.AccountKeys()
	want := []string{"acc1", "acc2", "lookupW", "lookupR"}
	if len(keys) != len(want) {
		t.Fatalf("AccountKeys = %v, want %v", keys, want)
	}
	for i, k := range want {
		if keys[i] != k {
			t.Errorf("AccountKeys[%d] = %q, want %q", i, keys[i], k)
		}
	}
}

func TestHTTPClient_GetTransactionNotFound(t *testing.T) {
	srv := rpcServer(t, func(string, []interface{}) (interface{}, *rpcError) {
		return nil, nil // JSON null result
	})
	defer srv.Close()

	client := NewHTTPClient(srv.URL)
	tx, err := client.GetTransaction(context.Background(), "unknown", "confirmed")
	if err != nil {
		t.Fatalf("GetTransaction failed: %v", err)
	}
	if tx != nil {
		t.Errorf("tx = %+v, want nil for an unknown signature", tx)
	}
}

func TestHTTPClient_GetBlockTime(t *testing.T) {
	srv := rpcServer(t, func(method string, params []interface{}) (interface{}, *rpcError) {
		if method != "getBlockTime" {
			t.Errorf("method = %q, want getBlockTime", method)
		}
		return 1700000042, nil
	})
	defer srv.Close()

	client := NewHTTPClient(srv.URL)
	bt, err := client.GetBlockTime(context.Background(), 123)
	if err != nil {
		t.Fatalf("GetBlockTime failed: %v", err)
	}
	if bt == nil || *bt != 1700000042 {
		t.Errorf("block time = %v, want 1700000042", bt)
	}
}

func TestHTTPClient_RateLimitClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, WithMaxRetries(1), WithRetryDelay(time.Millisecond))
	_, err := client.GetTransaction(context.Background(), "sig1", "confirmed")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want wrapped ErrRateLimited", err)
	}
}

func TestHTTPClient_GatewayTimeoutClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGatewayTimeout)
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, WithMaxRetries(1), WithRetryDelay(time.Millisecond))
	_, err := client.GetTransaction(context.Background(), "sig1", "confirmed")
	if !errors.Is(err, ErrGatewayTimeout) {
		t.Fatalf("err = %v, want wrapped ErrGatewayTimeout", err)
	}
}

func TestHTTPClient_RetriesTransientFailures(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  1700000000,
		})
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, WithMaxRetries(3), WithRetryDelay(time.Millisecond))
	bt, err := client.GetBlockTime(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetBlockTime failed after retry: %v", err)
	}
	if bt == nil || *bt != 1700000000 {
		t.Errorf("block time = %v, want 1700000000", bt)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestHTTPClient_RPCErrorNotRetried(t *testing.T) {
	attempts := 0
	srv := rpcServer(t, func(string, []interface{}) (interface{}, *rpcError) {
		attempts++
		return nil, &rpcError{Code: -32603, Message: "internal error"}
	})
	defer srv.Close()

	client := NewHTTPClient(srv.URL, WithMaxRetries(3), WithRetryDelay(time.Millisecond))
	_, err := client.GetTransaction(context.Background(), "sig1", "confirmed")
	if err == nil {
		t.Fatal("expected an error")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (RPC-level errors must not be retried)", attempts)
	}
}
