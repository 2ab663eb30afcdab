package ethereum

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

func rpcServer(t *testing.T, handler func(req rpcRequest) map[string]interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}

		resp := handler(req)
		resp["jsonrpc"] = "2.0"
		resp["id"] = req.ID

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestHTTPClient_Accounts(t *testing.T) {
	server := rpcServer(t, func(req rpcRequest) map[string]interface{} {
		if req.Method != "eth_accounts" {
			t.Errorf("expected method eth_accounts, got %s", req.Method)
		}
		return map[string]interface{}{
			"result": []string{"0xAbCdEf0123456789aBCDef0123456789AbCdEf01"},
		}
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)
	accounts, err := client.Accounts(context.Background())
	if err != nil {
		t.Fatalf("Accounts: %v", err)
	}

	if len(accounts) != 1 {
		t.Fatalf("expected 1 account, got %d", len(accounts))
	}
}

func TestHTTPClient_RequestAccounts_UserRejected(t *testing.T) {
	var attempts atomic.Int32

	server := rpcServer(t, func(req rpcRequest) map[string]interface{} {
		attempts.Add(1)
		return map[string]interface{}{
			"error": map[string]interface{}{
				"code":    4001,
				"message": "User rejected the request.",
			},
		}
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)
	_, err := client.RequestAccounts(context.Background())
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected RPCError, got %T", err)
	}
	if rpcErr.Code != CodeUserRejected {
		t.Errorf("expected code 4001, got %d", rpcErr.Code)
	}
	if attempts.Load() != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts.Load())
	}
}

func TestHTTPClient_SendTransaction_NotRetried(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, WithRetryDelay(time.Millisecond))
	_, err := client.SendTransaction(context.Background(), TxRequest{
		From: common.HexToAddress("0x01"),
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected TransportError, got %T", err)
	}
	if attempts.Load() != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts.Load())
	}
}

func TestHTTPClient_SendTransaction(t *testing.T) {
	to := common.HexToAddress("0x908f9AfF6eE262946d5A350c2C0e0388670cf5E4")
	hash := "0x5c504ed432cb51138bcf09aa5e8a410dd4a1e204ef84bfed1be16dfba1b22060"

	server := rpcServer(t, func(req rpcRequest) map[string]interface{} {
		if req.Method != "eth_sendTransaction" {
			t.Errorf("expected method eth_sendTransaction, got %s", req.Method)
		}
		if len(req.Params) != 1 {
			t.Errorf("expected 1 param, got %d", len(req.Params))
			return map[string]interface{}{"result": hash}
		}
		tx, _ := req.Params[0].(map[string]interface{})
		if tx["data"] != "0x1234" {
			t.Errorf("unexpected data: %v", tx["data"])
		}
		return map[string]interface{}{"result": hash}
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)
	got, err := client.SendTransaction(context.Background(), TxRequest{
		From: common.HexToAddress("0x01"),
		To:   &to,
		Data: []byte{0x12, 0x34},
	})
	if err != nil {
		t.Fatalf("SendTransaction: %v", err)
	}
	if got != common.HexToHash(hash) {
		t.Errorf("expected %s, got %s", hash, got.Hex())
	}
}

func TestHTTPClient_Call(t *testing.T) {
	server := rpcServer(t, func(req rpcRequest) map[string]interface{} {
		if req.Method != "eth_call" {
			t.Errorf("expected method eth_call, got %s", req.Method)
		}
		if req.Params[1] != "latest" {
			t.Errorf("expected block tag latest, got %v", req.Params[1])
		}
		return map[string]interface{}{
			"result": "0x0000000000000000000000000000000000000000000000000000000000000539",
		}
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)
	out, err := client.Call(context.Background(), CallMsg{To: common.HexToAddress("0x02"), Data: []byte{0x01}})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if len(out) != 32 || out[31] != 0x39 || out[30] != 0x05 {
		t.Errorf("unexpected output: %x", out)
	}
}

func TestHTTPClient_GetTransactionReceipt(t *testing.T) {
	server := rpcServer(t, func(req rpcRequest) map[string]interface{} {
		if req.Method != "eth_getTransactionReceipt" {
			t.Errorf("expected method eth_getTransactionReceipt, got %s", req.Method)
		}
		return map[string]interface{}{
			"result": map[string]interface{}{
				"transactionHash": "0x5c504ed432cb51138bcf09aa5e8a410dd4a1e204ef84bfed1be16dfba1b22060",
				"blockNumber":     "0x10",
				"status":          "0x1",
				"from":            "0x0000000000000000000000000000000000000001",
				"to":              "0x908f9aff6ee262946d5a350c2c0e0388670cf5e4",
				"logs": []map[string]interface{}{
					{
						"address":         "0x908f9aff6ee262946d5a350c2c0e0388670cf5e4",
						"topics":          []string{"0x0000000000000000000000000000000000000000000000000000000000000abc"},
						"data":            "0x",
						"blockNumber":     "0x10",
						"transactionHash": "0x5c504ed432cb51138bcf09aa5e8a410dd4a1e204ef84bfed1be16dfba1b22060",
						"logIndex":        "0x0",
						"removed":         false,
					},
				},
			},
		}
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)
	receipt, err := client.GetTransactionReceipt(context.Background(), common.HexToHash("0x01"))
	if err != nil {
		t.Fatalf("GetTransactionReceipt: %v", err)
	}
	if receipt == nil {
		t.Fatal("expected receipt, got nil")
	}
	if !receipt.Succeeded() {
		t.Error("expected successful receipt")
	}
	if receipt.BlockNumber != 16 {
		t.Errorf("expected block 16, got %d", receipt.BlockNumber)
	}
	if len(receipt.Logs) != 1 {
		t.Fatalf("expected 1 log, got %d", len(receipt.Logs))
	}
}

func TestHTTPClient_GetTransactionReceipt_Pending(t *testing.T) {
	server := rpcServer(t, func(req rpcRequest) map[string]interface{} {
		return map[string]interface{}{"result": nil}
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)
	receipt, err := client.GetTransactionReceipt(context.Background(), common.HexToHash("0x01"))
	if err != nil {
		t.Fatalf("GetTransactionReceipt: %v", err)
	}
	if receipt != nil {
		t.Errorf("expected nil for pending, got %+v", receipt)
	}
}

func TestHTTPClient_GetTransactionByHash(t *testing.T) {
	server := rpcServer(t, func(req rpcRequest) map[string]interface{} {
		return map[string]interface{}{
			"result": map[string]interface{}{
				"hash":        "0x5c504ed432cb51138bcf09aa5e8a410dd4a1e204ef84bfed1be16dfba1b22060",
				"from":        "0xabcdef0123456789abcdef0123456789abcdef01",
				"to":          "0x908f9aff6ee262946d5a350c2c0e0388670cf5e4",
				"blockNumber": "0x2a",
				"input":       "0xd6ae5c4b",
			},
		}
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)
	tx, err := client.GetTransactionByHash(context.Background(), common.HexToHash("0x01"))
	if err != nil {
		t.Fatalf("GetTransactionByHash: %v", err)
	}
	if tx == nil {
		t.Fatal("expected transaction, got nil")
	}
	if tx.From != common.HexToAddress("0xabcdef0123456789abcdef0123456789abcdef01") {
		t.Errorf("unexpected from: %s", tx.From.Hex())
	}
	if tx.BlockNumber == nil || *tx.BlockNumber != 42 {
		t.Errorf("expected block 42")
	}
}

func TestHTTPClient_GetLogs(t *testing.T) {
	from := uint64(100)

	server := rpcServer(t, func(req rpcRequest) map[string]interface{} {
		if req.Method != "eth_getLogs" {
			t.Errorf("expected method eth_getLogs, got %s", req.Method)
		}
		filter, _ := req.Params[0].(map[string]interface{})
		if filter["fromBlock"] != "0x64" {
			t.Errorf("expected fromBlock 0x64, got %v", filter["fromBlock"])
		}
		if filter["toBlock"] != "latest" {
			t.Errorf("expected toBlock latest, got %v", filter["toBlock"])
		}
		return map[string]interface{}{
			"result": []map[string]interface{}{
				{
					"address":         "0x908f9aff6ee262946d5a350c2c0e0388670cf5e4",
					"topics":          []string{"0x0000000000000000000000000000000000000000000000000000000000000abc"},
					"data":            "0x01",
					"blockNumber":     "0x65",
					"transactionHash": "0x5c504ed432cb51138bcf09aa5e8a410dd4a1e204ef84bfed1be16dfba1b22060",
					"logIndex":        "0x3",
				},
			},
		}
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)
	logs, err := client.GetLogs(context.Background(), LogFilter{
		Addresses: []common.Address{common.HexToAddress("0x908f9AfF6eE262946d5A350c2C0e0388670cf5E4")},
		Topics:    [][]common.Hash{{common.HexToHash("0xabc")}},
		FromBlock: &from,
	})
	if err != nil {
		t.Fatalf("GetLogs: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected 1 log, got %d", len(logs))
	}
	if logs[0].BlockNumber != 101 || logs[0].LogIndex != 3 {
		t.Errorf("unexpected log position: %d/%d", logs[0].BlockNumber, logs[0].LogIndex)
	}
}

func TestHTTPClient_Retry(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count := attempts.Add(1)
		if count < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}

		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  "0x3e7",
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL,
		WithMaxRetries(3),
		WithRetryDelay(10*time.Millisecond),
	)

	block, err := client.BlockNumber(context.Background())
	if err != nil {
		t.Fatalf("BlockNumber: %v", err)
	}

	if block != 999 {
		t.Errorf("expected block 999, got %d", block)
	}

	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestHTTPClient_RPCError(t *testing.T) {
	server := rpcServer(t, func(req rpcRequest) map[string]interface{} {
		return map[string]interface{}{
			"error": map[string]interface{}{
				"code":    -32600,
				"message": "Invalid Request",
			},
		}
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)
	_, err := client.BlockNumber(context.Background())
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	rpcErr, ok := err.(*RPCError)
	if !ok {
		t.Fatalf("expected RPCError, got %T", err)
	}

	if rpcErr.Code != -32600 {
		t.Errorf("expected code -32600, got %d", rpcErr.Code)
	}
}

func TestHTTPClient_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Cancel immediately

	_, err := client.BlockNumber(ctx)
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
}
