// Package stub provides an in-memory gateway.Gateway for tests.
package stub

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"epics/internal/gateway"
)

// Gateway implements gateway.Gateway for testing.
// Fields may be set before use or changed later through Update.
type Gateway struct {
	mu sync.Mutex

	Authorized []string
	Granted    []string // RequestAuthorization result; Authorized when nil

	Max     int64
	Current int64
	History []gateway.MintEvent
	Senders map[common.Hash]string

	NextTxHash common.Hash

	// Errors returned by the matching method when set.
	ListErr      error
	RequestErr   error
	MintErr      error
	ConfirmErr   error
	MaxErr       error
	CurrentErr   error
	HistoryErr   error
	SubscribeErr error
	SenderErrs   map[common.Hash]error

	// Hooks override the default behavior. They run without the lock held,
	// so they may block.
	MintFunc    func(ctx context.Context, from string) (gateway.TxHandle, error)
	ConfirmFunc func(ctx context.Context, tx gateway.TxHandle) (gateway.Confirmation, error)
	HistoryFunc func(ctx context.Context) ([]gateway.MintEvent, error)

	// SubscribeFunc runs before the handler is registered; an error aborts.
	SubscribeFunc func(ctx context.Context) error

	calls   map[string]int
	subs    map[int]func(gateway.MintEvent)
	nextSub int
}

// NewGateway creates a stub gateway with an empty collection of size maxCount.
func NewGateway(maxCount int64) *Gateway {
	return &Gateway{
		Max:        maxCount,
		Senders:    make(map[common.Hash]string),
		SenderErrs: make(map[common.Hash]error),
		NextTxHash: common.HexToHash("0x6d696e74"),
		calls:      make(map[string]int),
		subs:       make(map[int]func(gateway.MintEvent)),
	}
}

// Update mutates the stub under its lock.
func (g *Gateway) Update(fn func(g *Gateway)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(g)
}

func (g *Gateway) record(method string) {
	g.calls[method]++
}

// CallCount returns how often a Gateway method was invoked.
func (g *Gateway) CallCount(method string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[method]
}

// ActiveSubscriptions returns the number of live subscriptions.
func (g *Gateway) ActiveSubscriptions() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.subs)
}

// AddMint appends an event to the history and registers its sender.
func (g *Gateway) AddMint(tokenID int64, sender string) gateway.MintEvent {
	g.mu.Lock()
	defer g.mu.Unlock()

	ev := gateway.MintEvent{
		TokenID:     tokenID,
		Minter:      common.HexToAddress(sender),
		TxHash:      common.BigToHash(big.NewInt(0x1000 + tokenID)),
		BlockNumber: uint64(tokenID) + 1,
	}
	g.History = append(g.History, ev)
	g.Senders[ev.TxHash] = sender
	return ev
}

// Emit delivers ev to every live subscription and returns how many received it.
func (g *Gateway) Emit(ev gateway.MintEvent) int {
	g.mu.Lock()
	handlers := make([]func(gateway.MintEvent), 0, len(g.subs))
	for _, h := range g.subs {
		handlers = append(handlers, h)
	}
	g.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
	return len(handlers)
}

// ListAuthorizedAccounts implements gateway.Gateway.
func (g *Gateway) ListAuthorizedAccounts(_ context.Context) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("ListAuthorizedAccounts")
	if g.ListErr != nil {
		return nil, g.ListErr
	}
	return append([]string(nil), g.Authorized...), nil
}

// RequestAuthorization implements gateway.Gateway.
func (g *Gateway) RequestAuthorization(_ context.Context) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("RequestAuthorization")
	if g.RequestErr != nil {
		return nil, g.RequestErr
	}
	if g.Granted != nil {
		return append([]string(nil), g.Granted...), nil
	}
	return append([]string(nil), g.Authorized...), nil
}

// CallMintFunction implements gateway.Gateway.
func (g *Gateway) CallMintFunction(ctx context.Context, from string) (gateway.TxHandle, error) {
	g.mu.Lock()
	g.record("CallMintFunction")
	fn, err, hash := g.MintFunc, g.MintErr, g.NextTxHash
	g.mu.Unlock()

	if fn != nil {
		return fn(ctx, from)
	}
	if err != nil {
		return gateway.TxHandle{}, err
	}
	return gateway.TxHandle{Hash: hash, From: from, SentAt: time.Now()}, nil
}

// AwaitConfirmation implements gateway.Gateway.
func (g *Gateway) AwaitConfirmation(ctx context.Context, tx gateway.TxHandle) (gateway.Confirmation, error) {
	g.mu.Lock()
	g.record("AwaitConfirmation")
	fn, err := g.ConfirmFunc, g.ConfirmErr
	g.mu.Unlock()

	if fn != nil {
		return fn(ctx, tx)
	}
	if err != nil {
		return gateway.Confirmation{}, err
	}
	return gateway.Confirmation{TxHash: tx.Hash, BlockNumber: 1}, nil
}

// GetMaxMintCount implements gateway.Gateway.
func (g *Gateway) GetMaxMintCount(_ context.Context) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("GetMaxMintCount")
	if g.MaxErr != nil {
		return 0, g.MaxErr
	}
	return g.Max, nil
}

// GetCurrentMintCount implements gateway.Gateway.
func (g *Gateway) GetCurrentMintCount(_ context.Context) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("GetCurrentMintCount")
	if g.CurrentErr != nil {
		return 0, g.CurrentErr
	}
	return g.Current, nil
}

// QueryMintEventsHistory implements gateway.Gateway.
func (g *Gateway) QueryMintEventsHistory(ctx context.Context) ([]gateway.MintEvent, error) {
	g.mu.Lock()
	g.record("QueryMintEventsHistory")
	fn, err := g.HistoryFunc, g.HistoryErr
	history := append([]gateway.MintEvent(nil), g.History...)
	g.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}
	if err != nil {
		return nil, err
	}
	return history, nil
}

// ResolveTransactionSender implements gateway.Gateway.
func (g *Gateway) ResolveTransactionSender(_ context.Context, txHash common.Hash) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("ResolveTransactionSender")
	if err := g.SenderErrs[txHash]; err != nil {
		return "", err
	}
	sender, ok := g.Senders[txHash]
	if !ok {
		return "", fmt.Errorf("transaction %s not found: %w", txHash.Hex(), gateway.ErrChainError)
	}
	return sender, nil
}

// SubscribeMintEvents implements gateway.Gateway.
func (g *Gateway) SubscribeMintEvents(ctx context.Context, handler func(gateway.MintEvent)) (gateway.Subscription, error) {
	g.mu.Lock()
	g.record("SubscribeMintEvents")
	fn := g.SubscribeFunc
	g.mu.Unlock()

	if fn != nil {
		if err := fn(ctx); err != nil {
			return nil, err
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.SubscribeErr != nil {
		return nil, g.SubscribeErr
	}
	if handler == nil {
		return nil, errors.New("mint event handler is required")
	}

	id := g.nextSub
	g.nextSub++
	g.subs[id] = handler
	return &subscription{gw: g, id: id}, nil
}

type subscription struct {
	gw   *Gateway
	id   int
	once sync.Once
}

func (s *subscription) Unsubscribe() error {
	s.once.Do(func() {
		s.gw.mu.Lock()
		defer s.gw.mu.Unlock()
		delete(s.gw.subs, s.id)
	})
	return nil
}
