// Package gateway is the wallet and contract boundary of the mint client.
//
// A Gateway lists and requests wallet authorization, sends the mint
// transaction through the wallet, waits for it to be mined, reads the mint
// counters, replays and streams EpicMinted events, and resolves the sender
// of a transaction. All signing happens inside the wallet.
package gateway

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Gateway abstracts the wallet provider and the Epics contract.
type Gateway interface {
	// ListAuthorizedAccounts returns accounts authorized without prompting.
	ListAuthorizedAccounts(ctx context.Context) ([]string, error)

	// RequestAuthorization prompts the wallet user and returns the granted accounts.
	RequestAuthorization(ctx context.Context) ([]string, error)

	// CallMintFunction asks the wallet to sign and broadcast makeAnEpicNFT().
	// It returns once the transaction is in the pending pool.
	CallMintFunction(ctx context.Context, from string) (TxHandle, error)

	// AwaitConfirmation blocks until the transaction is mined.
	AwaitConfirmation(ctx context.Context, tx TxHandle) (Confirmation, error)

	// GetMaxMintCount reads getMaxMintCount().
	GetMaxMintCount(ctx context.Context) (int64, error)

	// GetCurrentMintCount reads currentMintCount().
	GetCurrentMintCount(ctx context.Context) (int64, error)

	// QueryMintEventsHistory returns every EpicMinted event since deployment.
	QueryMintEventsHistory(ctx context.Context) ([]MintEvent, error)

	// ResolveTransactionSender returns the lower-cased sender of a transaction.
	ResolveTransactionSender(ctx context.Context, txHash common.Hash) (string, error)

	// SubscribeMintEvents delivers live EpicMinted events to handler until unsubscribed.
	SubscribeMintEvents(ctx context.Context, handler func(MintEvent)) (Subscription, error)
}

// MintEvent is one EpicMinted emission.
type MintEvent struct {
	TokenID     int64
	Minter      common.Address // event payload
	TxHash      common.Hash
	BlockNumber uint64
	LogIndex    uint64
}

// TxHandle identifies a broadcast mint transaction.
type TxHandle struct {
	Hash   common.Hash
	From   string
	SentAt time.Time
}

// Confirmation describes a mined transaction.
type Confirmation struct {
	TxHash      common.Hash
	BlockNumber uint64
}

// Subscription is a live mint event stream.
type Subscription interface {
	// Unsubscribe stops delivery. Safe to call more than once.
	Unsubscribe() error
}
