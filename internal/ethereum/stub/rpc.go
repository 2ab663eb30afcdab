package stub

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"epics/internal/ethereum"
)

// ErrNoCallResult is returned when no eth_call result was registered.
var ErrNoCallResult = errors.New("no call result")

// RPCClient implements ethereum.RPCClient for testing.
type RPCClient struct {
	mu sync.Mutex

	AuthorizedAccounts []string
	Requested          []string
	Receipts           map[common.Hash]*ethereum.Receipt
	Transactions       map[common.Hash]*ethereum.Transaction
	CallResults        map[string][]byte // keyed by hex-encoded 4-byte selector
	Logs               []ethereum.Log
	Block              uint64

	// Errors returned by the matching method when set.
	AccountsErr error
	RequestErr  error
	SendErr     error
	CallErr     error
	LogsErr     error

	NextTxHash common.Hash
	Sent       []ethereum.TxRequest
	Calls      map[string]int
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Receipts:     make(map[common.Hash]*ethereum.Receipt),
		Transactions: make(map[common.Hash]*ethereum.Transaction),
		CallResults:  make(map[string][]byte),
		Calls:        make(map[string]int),
	}
}

func (c *RPCClient) record(method string) {
	c.Calls[method]++
}

// CallCount returns how often method was invoked.
func (c *RPCClient) CallCount(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Calls[method]
}

// Accounts returns the authorized accounts.
func (c *RPCClient) Accounts(_ context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("eth_accounts")
	if c.AccountsErr != nil {
		return nil, c.AccountsErr
	}
	return append([]string(nil), c.AuthorizedAccounts...), nil
}

// RequestAccounts returns Requested, or the authorized accounts when unset.
func (c *RPCClient) RequestAccounts(_ context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("eth_requestAccounts")
	if c.RequestErr != nil {
		return nil, c.RequestErr
	}
	if c.Requested != nil {
		return append([]string(nil), c.Requested...), nil
	}
	return append([]string(nil), c.AuthorizedAccounts...), nil
}

// SendTransaction records the transaction and returns NextTxHash.
func (c *RPCClient) SendTransaction(_ context.Context, tx ethereum.TxRequest) (common.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("eth_sendTransaction")
	if c.SendErr != nil {
		return common.Hash{}, c.SendErr
	}
	c.Sent = append(c.Sent, tx)
	return c.NextTxHash, nil
}

// Call returns the registered result for the call's selector.
func (c *RPCClient) Call(_ context.Context, msg ethereum.CallMsg) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("eth_call")
	if c.CallErr != nil {
		return nil, c.CallErr
	}
	if len(msg.Data) < 4 {
		return nil, ErrNoCallResult
	}
	out, ok := c.CallResults[common.Bytes2Hex(msg.Data[:4])]
	if !ok {
		return nil, ErrNoCallResult
	}
	return out, nil
}

// GetTransactionReceipt returns the stored receipt or nil while pending.
func (c *RPCClient) GetTransactionReceipt(_ context.Context, hash common.Hash) (*ethereum.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("eth_getTransactionReceipt")
	return c.Receipts[hash], nil
}

// GetTransactionByHash returns the stored transaction or nil.
func (c *RPCClient) GetTransactionByHash(_ context.Context, hash common.Hash) (*ethereum.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("eth_getTransactionByHash")
	return c.Transactions[hash], nil
}

// GetLogs returns all stored logs in the filter's block range.
func (c *RPCClient) GetLogs(_ context.Context, filter ethereum.LogFilter) ([]ethereum.Log, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("eth_getLogs")
	if c.LogsErr != nil {
		return nil, c.LogsErr
	}

	var out []ethereum.Log
	for _, l := range c.Logs {
		if filter.FromBlock != nil && l.BlockNumber < *filter.FromBlock {
			continue
		}
		if filter.ToBlock != nil && l.BlockNumber > *filter.ToBlock {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

// BlockNumber returns Block.
func (c *RPCClient) BlockNumber(_ context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("eth_blockNumber")
	return c.Block, nil
}

// ChainID returns 4 (rinkeby).
func (c *RPCClient) ChainID(_ context.Context) (*big.Int, error) {
	return big.NewInt(4), nil
}

// AddTransaction stores a transaction for sender lookups.
func (c *RPCClient) AddTransaction(tx *ethereum.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Transactions[tx.Hash] = tx
}

// AddReceipt stores a receipt, completing the transaction.
func (c *RPCClient) AddReceipt(r *ethereum.Receipt) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Receipts[r.TxHash] = r
}

// AddLog appends a log to the history.
func (c *RPCClient) AddLog(l ethereum.Log) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Logs = append(c.Logs, l)
}

// SetCallResult registers the eth_call output for a 4-byte selector.
func (c *RPCClient) SetCallResult(selector []byte, out []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallResults[common.Bytes2Hex(selector)] = out
}

// SetBlock moves the chain head.
func (c *RPCClient) SetBlock(n uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Block = n
}
