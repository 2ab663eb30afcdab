package ethereum

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestWSClient_Connect(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		// Keep connection open
		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				return
			}
		}
	}))
	defer server.Close()

	client, err := NewWSClient(context.Background(), wsURL(server), nil, nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	if client.closed.Load() {
		t.Error("client should not be closed")
	}
}

func TestWSClient_SubscribeLogs(t *testing.T) {
	contract := common.HexToAddress("0x908f9AfF6eE262946d5A350c2C0e0388670cf5E4")
	unsubscribed := make(chan string, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer c.Close()

		// Read subscribe request
		var req wsRequest
		if err := c.ReadJSON(&req); err != nil {
			return
		}
		if req.Method != "eth_subscribe" {
			t.Errorf("expected eth_subscribe, got %s", req.Method)
		}
		if len(req.Params) != 2 || req.Params[0] != "logs" {
			t.Errorf("unexpected params: %v", req.Params)
		}

		c.WriteJSON(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  "0xcd0c3e8af590364c09d0fa6a1210faf5",
		})

		time.Sleep(50 * time.Millisecond)
		c.WriteJSON(map[string]interface{}{
			"jsonrpc": "2.0",
			"method":  "eth_subscription",
			"params": map[string]interface{}{
				"subscription": "0xcd0c3e8af590364c09d0fa6a1210faf5",
				"result": map[string]interface{}{
					"address":         contract.Hex(),
					"topics":          []string{"0x0000000000000000000000000000000000000000000000000000000000000abc"},
					"data":            "0x",
					"blockNumber":     "0x64",
					"transactionHash": "0x5c504ed432cb51138bcf09aa5e8a410dd4a1e204ef84bfed1be16dfba1b22060",
					"logIndex":        "0x1",
				},
			},
		})

		// Answer the unsubscribe
		for {
			var next wsRequest
			if err := c.ReadJSON(&next); err != nil {
				return
			}
			if next.Method == "eth_unsubscribe" {
				unsubscribed <- next.Params[0].(string)
				c.WriteJSON(map[string]interface{}{"jsonrpc": "2.0", "id": next.ID, "result": true})
			}
		}
	}))
	defer server.Close()

	ctx := context.Background()
	client, err := NewWSClient(ctx, wsURL(server), nil, nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	sub, err := client.SubscribeLogs(ctx, LogFilter{
		Addresses: []common.Address{contract},
	})
	if err != nil {
		t.Fatalf("SubscribeLogs: %v", err)
	}

	select {
	case l := <-sub.Logs():
		if l.Address != contract {
			t.Errorf("unexpected address %s", l.Address.Hex())
		}
		if l.BlockNumber != 100 {
			t.Errorf("expected block 100, got %d", l.BlockNumber)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for notification")
	}

	if err := sub.Unsubscribe(ctx); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}

	select {
	case id := <-unsubscribed:
		if id != "0xcd0c3e8af590364c09d0fa6a1210faf5" {
			t.Errorf("unexpected unsubscribe id %s", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for eth_unsubscribe")
	}

	select {
	case <-sub.Done():
	default:
		t.Error("subscription should be done")
	}

	// Second unsubscribe is a no-op
	if err := sub.Unsubscribe(ctx); err != nil {
		t.Errorf("second Unsubscribe: %v", err)
	}
}

func TestWSClient_SubscribeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer c.Close()

		for {
			var req wsRequest
			if err := c.ReadJSON(&req); err != nil {
				return
			}
			c.WriteJSON(map[string]interface{}{
				"jsonrpc": "2.0",
				"id":      req.ID,
				"error":   map[string]interface{}{"code": -32601, "message": "notifications not supported"},
			})
		}
	}))
	defer server.Close()

	ctx := context.Background()
	client, err := NewWSClient(ctx, wsURL(server), nil, nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	_, err = client.SubscribeLogs(ctx, LogFilter{})
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	rpcErr, ok := err.(*RPCError)
	if !ok {
		t.Fatalf("expected RPCError, got %T", err)
	}
	if rpcErr.Code != -32601 {
		t.Errorf("expected code -32601, got %d", rpcErr.Code)
	}
}

func TestWSClient_Close(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				return
			}
		}
	}))
	defer server.Close()

	client, err := NewWSClient(context.Background(), wsURL(server), nil, nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}

	if !client.closed.Load() {
		t.Error("client should be closed")
	}

	// Double close should be safe
	if err := client.Close(); err != nil {
		t.Errorf("double Close: %v", err)
	}
}

func TestWSClient_SubscribeAfterClose(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				return
			}
		}
	}))
	defer server.Close()

	client, err := NewWSClient(context.Background(), wsURL(server), nil, nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	client.Close()

	_, err = client.SubscribeLogs(context.Background(), LogFilter{})
	if err != ErrClientClosed {
		t.Errorf("expected ErrClientClosed, got %v", err)
	}
}

func TestWSClient_DialFailure(t *testing.T) {
	_, err := NewWSClient(context.Background(), "ws://127.0.0.1:1", nil, nil)
	if err == nil {
		t.Fatal("expected dial error")
	}
	if _, ok := err.(*TransportError); !ok {
		t.Errorf("expected TransportError, got %T", err)
	}
}

func TestLogFilter_ToArg(t *testing.T) {
	from := uint64(7)
	f := LogFilter{
		Addresses: []common.Address{common.HexToAddress("0x01")},
		Topics:    [][]common.Hash{{common.HexToHash("0x02")}, nil},
		FromBlock: &from,
	}

	raw, err := json.Marshal(f.toArg(true))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got map[string]interface{}
	json.Unmarshal(raw, &got)

	if got["fromBlock"] != "0x7" {
		t.Errorf("expected fromBlock 0x7, got %v", got["fromBlock"])
	}
	if got["toBlock"] != "latest" {
		t.Errorf("expected toBlock latest, got %v", got["toBlock"])
	}
	topics := got["topics"].([]interface{})
	if len(topics) != 2 || topics[1] != nil {
		t.Errorf("unexpected topics %v", topics)
	}

	if _, ok := f.toArg(false)["fromBlock"]; ok {
		t.Error("subscription filter must not carry a block range")
	}
}

func TestWSClient_QuietConnectionStaysUp(t *testing.T) {
	var connections atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		connections.Add(1)

		// Answer requests; reading also answers pings with pongs.
		for {
			var req wsRequest
			if err := c.ReadJSON(&req); err != nil {
				return
			}
			c.WriteJSON(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": "0x1"})
		}
	}))
	defer server.Close()

	cfg := DefaultWSConfig()
	cfg.ReadTimeout = 300 * time.Millisecond
	cfg.PingInterval = 100 * time.Millisecond
	cfg.ReconnectDelay = 10 * time.Millisecond

	ctx := context.Background()
	client, err := NewWSClient(ctx, wsURL(server), &cfg, nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	sub, err := client.SubscribeLogs(ctx, LogFilter{})
	if err != nil {
		t.Fatalf("SubscribeLogs: %v", err)
	}

	// No logs arrive for several read timeouts.
	time.Sleep(1500 * time.Millisecond)

	if n := connections.Load(); n != 1 {
		t.Errorf("expected 1 connection on a quiet link, got %d", n)
	}
	select {
	case <-sub.Resubscribed():
		t.Error("quiet link should not resubscribe")
	default:
	}
}

func TestWSClient_ResubscribesAfterDrop(t *testing.T) {
	var connections atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		n := connections.Add(1)

		var req wsRequest
		if err := c.ReadJSON(&req); err != nil {
			return
		}
		subID := "0x1"
		if n > 1 {
			subID = "0x2"
		}
		c.WriteJSON(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": subID})

		if n == 1 {
			// Drop the first connection right after subscribing.
			time.Sleep(20 * time.Millisecond)
			return
		}

		time.Sleep(50 * time.Millisecond)
		c.WriteJSON(map[string]interface{}{
			"jsonrpc": "2.0",
			"method":  "eth_subscription",
			"params": map[string]interface{}{
				"subscription": "0x2",
				"result": map[string]interface{}{
					"address":         "0x908f9AfF6eE262946d5A350c2C0e0388670cf5E4",
					"topics":          []string{},
					"data":            "0x",
					"blockNumber":     "0x65",
					"transactionHash": "0x5c504ed432cb51138bcf09aa5e8a410dd4a1e204ef84bfed1be16dfba1b22060",
					"logIndex":        "0x0",
				},
			},
		})
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	cfg := DefaultWSConfig()
	cfg.ReconnectDelay = 10 * time.Millisecond

	ctx := context.Background()
	client, err := NewWSClient(ctx, wsURL(server), &cfg, nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	sub, err := client.SubscribeLogs(ctx, LogFilter{})
	if err != nil {
		t.Fatalf("SubscribeLogs: %v", err)
	}

	select {
	case <-sub.Resubscribed():
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for resubscribe")
	}

	select {
	case l := <-sub.Logs():
		if l.BlockNumber != 101 {
			t.Errorf("expected block 101, got %d", l.BlockNumber)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for log on the new subscription")
	}
}
