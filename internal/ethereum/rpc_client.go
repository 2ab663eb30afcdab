package ethereum

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// HTTPClient implements RPCClient using HTTP JSON-RPC 2.0.
type HTTPClient struct {
	endpoint    string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	requestID   atomic.Uint64
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts for read methods.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.maxDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// NewHTTPClient creates a new Ethereum JSON-RPC HTTP client.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the configured URL.
func (c *HTTPClient) Endpoint() string {
	return c.endpoint
}

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

// rpcResponse represents a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// call performs a read-only JSON-RPC call with retries and exponential backoff.
func (c *HTTPClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	return c.do(ctx, method, params, result, c.maxRetries)
}

// callOnce performs a JSON-RPC call without retries.
// Used for methods with side effects: prompts and transaction submission.
func (c *HTTPClient) callOnce(ctx context.Context, method string, params []interface{}, result interface{}) error {
	return c.do(ctx, method, params, result, 0)
}

func (c *HTTPClient) do(ctx context.Context, method string, params []interface{}, result interface{}, maxRetries int) error {
	if params == nil {
		params = []interface{}{}
	}
	reqID := c.requestID.Add(1)
	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = &TransportError{Err: fmt.Errorf("http request: %w", err)}
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = &TransportError{Err: fmt.Errorf("read response: %w", err)}
			continue
		}

		// Handle rate limiting
		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = &TransportError{Err: fmt.Errorf("rate limited (429)")}
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = &TransportError{Err: fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))}
			continue
		}

		var rpcResp rpcResponse
		if err := json.Unmarshal(respBody, &rpcResp); err != nil {
			lastErr = fmt.Errorf("unmarshal response: %w", err)
			continue
		}

		if rpcResp.Error != nil {
			// RPC errors are not retried
			return rpcResp.Error
		}

		if result != nil && rpcResp.Result != nil {
			if err := json.Unmarshal(rpcResp.Result, result); err != nil {
				return fmt.Errorf("unmarshal result: %w", err)
			}
		}

		return nil
	}

	if maxRetries == 0 {
		return lastErr
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// TransportError marks failures to reach the endpoint at all.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Accounts lists already-authorized accounts.
func (c *HTTPClient) Accounts(ctx context.Context) ([]string, error) {
	var result []string
	if err := c.call(ctx, "eth_accounts", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// RequestAccounts prompts the wallet for account access.
func (c *HTTPClient) RequestAccounts(ctx context.Context) ([]string, error) {
	var result []string
	if err := c.callOnce(ctx, "eth_requestAccounts", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// SendTransaction submits a transaction for signing and broadcast.
func (c *HTTPClient) SendTransaction(ctx context.Context, tx TxRequest) (common.Hash, error) {
	var result common.Hash
	if err := c.callOnce(ctx, "eth_sendTransaction", []interface{}{tx}, &result); err != nil {
		return common.Hash{}, err
	}
	return result, nil
}

// Call executes eth_call against the latest block.
func (c *HTTPClient) Call(ctx context.Context, msg CallMsg) ([]byte, error) {
	var result hexutil.Bytes
	if err := c.call(ctx, "eth_call", []interface{}{msg, "latest"}, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// rawReceipt is the raw RPC response for eth_getTransactionReceipt.
type rawReceipt struct {
	TxHash      common.Hash     `json:"transactionHash"`
	BlockNumber hexutil.Uint64  `json:"blockNumber"`
	Status      hexutil.Uint64  `json:"status"`
	From        common.Address  `json:"from"`
	To          *common.Address `json:"to"`
	Logs        []rawLog        `json:"logs"`
}

// GetTransactionReceipt retrieves a receipt, nil while pending.
func (c *HTTPClient) GetTransactionReceipt(ctx context.Context, hash common.Hash) (*Receipt, error) {
	var result *rawReceipt
	if err := c.call(ctx, "eth_getTransactionReceipt", []interface{}{hash}, &result); err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}

	receipt := &Receipt{
		TxHash:      result.TxHash,
		BlockNumber: uint64(result.BlockNumber),
		Status:      uint64(result.Status),
		From:        result.From,
		To:          result.To,
	}
	for _, l := range result.Logs {
		receipt.Logs = append(receipt.Logs, l.toLog())
	}
	return receipt, nil
}

// rawTransaction is the raw RPC response for eth_getTransactionByHash.
type rawTransaction struct {
	Hash        common.Hash     `json:"hash"`
	From        common.Address  `json:"from"`
	To          *common.Address `json:"to"`
	BlockNumber *hexutil.Uint64 `json:"blockNumber"`
	Input       hexutil.Bytes   `json:"input"`
}

// GetTransactionByHash retrieves a transaction, nil if unknown.
func (c *HTTPClient) GetTransactionByHash(ctx context.Context, hash common.Hash) (*Transaction, error) {
	var result *rawTransaction
	if err := c.call(ctx, "eth_getTransactionByHash", []interface{}{hash}, &result); err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}

	tx := &Transaction{
		Hash:  result.Hash,
		From:  result.From,
		To:    result.To,
		Input: result.Input,
	}
	if result.BlockNumber != nil {
		n := uint64(*result.BlockNumber)
		tx.BlockNumber = &n
	}
	return tx, nil
}

// GetLogs retrieves logs matching the filter.
func (c *HTTPClient) GetLogs(ctx context.Context, filter LogFilter) ([]Log, error) {
	var result []rawLog
	if err := c.call(ctx, "eth_getLogs", []interface{}{filter.toArg(true)}, &result); err != nil {
		return nil, err
	}

	logs := make([]Log, len(result))
	for i, r := range result {
		logs[i] = r.toLog()
	}
	return logs, nil
}

// BlockNumber retrieves the latest block number.
func (c *HTTPClient) BlockNumber(ctx context.Context) (uint64, error) {
	var result hexutil.Uint64
	if err := c.call(ctx, "eth_blockNumber", nil, &result); err != nil {
		return 0, err
	}
	return uint64(result), nil
}

// ChainID retrieves the chain id.
func (c *HTTPClient) ChainID(ctx context.Context) (*big.Int, error) {
	var result hexutil.Big
	if err := c.call(ctx, "eth_chainId", nil, &result); err != nil {
		return nil, err
	}
	return (*big.Int)(&result), nil
}
