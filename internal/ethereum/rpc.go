package ethereum

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// RPCClient defines the Ethereum JSON-RPC HTTP interface used by wallets and nodes.
type RPCClient interface {
	// Accounts lists accounts already authorized for this client (eth_accounts).
	Accounts(ctx context.Context) ([]string, error)

	// RequestAccounts prompts the wallet for authorization (eth_requestAccounts).
	RequestAccounts(ctx context.Context) ([]string, error)

	// SendTransaction asks the wallet to sign and broadcast a transaction.
	SendTransaction(ctx context.Context, tx TxRequest) (common.Hash, error)

	// Call executes a read-only contract call against the latest block.
	Call(ctx context.Context, msg CallMsg) ([]byte, error)

	// GetTransactionReceipt returns nil while the transaction is pending.
	GetTransactionReceipt(ctx context.Context, hash common.Hash) (*Receipt, error)

	// GetTransactionByHash returns nil if the node does not know the transaction.
	GetTransactionByHash(ctx context.Context, hash common.Hash) (*Transaction, error)

	// GetLogs returns logs matching the filter.
	GetLogs(ctx context.Context, filter LogFilter) ([]Log, error)

	// BlockNumber returns the latest block number.
	BlockNumber(ctx context.Context) (uint64, error)

	// ChainID returns the chain id of the endpoint.
	ChainID(ctx context.Context) (*big.Int, error)
}
