package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"epics/internal/contract"
	"epics/internal/ethereum"
	"epics/internal/observability"
)

// Config tunes EthGateway.
type Config struct {
	// DeployBlock is the first block scanned for mint history.
	DeployBlock uint64
	// ReceiptPoll is the interval between receipt lookups.
	ReceiptPoll time.Duration
	// ConfirmTimeout bounds AwaitConfirmation.
	ConfirmTimeout time.Duration
	// SenderCacheTTL is the sender cache lifetime; zero disables the cache.
	SenderCacheTTL time.Duration
	// LogPollInterval is used for mint events when no websocket endpoint is set.
	LogPollInterval time.Duration
}

// DefaultConfig returns default gateway configuration.
func DefaultConfig() Config {
	return Config{
		ReceiptPoll:     2 * time.Second,
		ConfirmTimeout:  5 * time.Minute,
		SenderCacheTTL:  time.Hour,
		LogPollInterval: 4 * time.Second,
	}
}

// Dialer opens a websocket connection to the node.
type Dialer func(ctx context.Context) (ethereum.WSClient, error)

// WSDialer returns a Dialer for a websocket endpoint.
func WSDialer(endpoint string, cfg *ethereum.WSClientConfig, logger *zap.Logger) Dialer {
	return func(ctx context.Context) (ethereum.WSClient, error) {
		return ethereum.NewWSClient(ctx, endpoint, cfg, logger)
	}
}

// EthGateway implements Gateway over a wallet JSON-RPC provider and a node.
// The wallet signs; the node serves reads, receipts, logs and subscriptions.
type EthGateway struct {
	wallet  ethereum.RPCClient
	node    ethereum.RPCClient
	dial    Dialer
	binding *contract.Binding
	senders *senderCache
	config  Config
	logger  *zap.Logger
}

// New creates an EthGateway. node may be nil, in which case reads go
// through the wallet. dial may be nil, in which case mint events are polled.
func New(wallet, node ethereum.RPCClient, dial Dialer, binding *contract.Binding, cfg Config, logger *zap.Logger) (*EthGateway, error) {
	if wallet == nil {
		return nil, errors.New("wallet client is required")
	}
	if binding == nil {
		return nil, errors.New("contract binding is required")
	}
	if node == nil {
		node = wallet
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	defaults := DefaultConfig()
	if cfg.ReceiptPoll <= 0 {
		cfg.ReceiptPoll = defaults.ReceiptPoll
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = defaults.ConfirmTimeout
	}
	if cfg.LogPollInterval <= 0 {
		cfg.LogPollInterval = defaults.LogPollInterval
	}

	senders, err := newSenderCache(cfg.SenderCacheTTL)
	if err != nil {
		return nil, err
	}

	return &EthGateway{
		wallet:  wallet,
		node:    node,
		dial:    dial,
		binding: binding,
		senders: senders,
		config:  cfg,
		logger:  logger.Named("gateway"),
	}, nil
}

// Close releases the sender cache.
func (g *EthGateway) Close() error {
	return g.senders.close()
}

func (g *EthGateway) observe(method string, start time.Time, err error) {
	kind := ""
	if err != nil && !errors.Is(err, context.Canceled) {
		kind = Classify(err).String()
	}
	observability.RecordGatewayCall(method, time.Since(start).Seconds(), kind)
}

// ListAuthorizedAccounts implements Gateway.
func (g *EthGateway) ListAuthorizedAccounts(ctx context.Context) (accounts []string, err error) {
	start := time.Now()
	defer func() { g.observe("eth_accounts", start, err) }()

	accounts, err = g.wallet.Accounts(ctx)
	if err != nil {
		err = wrap("list accounts", err)
		return nil, err
	}
	return accounts, nil
}

// RequestAuthorization implements Gateway.
func (g *EthGateway) RequestAuthorization(ctx context.Context) (accounts []string, err error) {
	start := time.Now()
	defer func() { g.observe("eth_requestAccounts", start, err) }()

	accounts, err = g.wallet.RequestAccounts(ctx)
	if err != nil {
		err = wrap("request accounts", err)
		return nil, err
	}
	return accounts, nil
}

// CallMintFunction implements Gateway.
func (g *EthGateway) CallMintFunction(ctx context.Context, from string) (tx TxHandle, err error) {
	start := time.Now()
	defer func() { g.observe("eth_sendTransaction", start, err) }()

	if !common.IsHexAddress(from) {
		return TxHandle{}, fmt.Errorf("mint from %q: invalid address", from)
	}

	data, err := g.binding.PackMint()
	if err != nil {
		return TxHandle{}, fmt.Errorf("pack mint: %w", err)
	}

	to := g.binding.Address()
	hash, err := g.wallet.SendTransaction(ctx, ethereum.TxRequest{
		From: common.HexToAddress(from),
		To:   &to,
		Data: data,
	})
	if err != nil {
		err = wrap("send mint transaction", err)
		return TxHandle{}, err
	}

	g.logger.Info("mint transaction sent", zap.String("tx", hash.Hex()), zap.String("from", from))
	return TxHandle{Hash: hash, From: from, SentAt: start}, nil
}

// AwaitConfirmation implements Gateway by polling for the receipt until
// ConfirmTimeout. A reverted receipt or a timeout is a chain error.
func (g *EthGateway) AwaitConfirmation(ctx context.Context, tx TxHandle) (conf Confirmation, err error) {
	start := time.Now()
	defer func() { g.observe("await_confirmation", start, err) }()

	waitCtx, cancel := context.WithTimeout(ctx, g.config.ConfirmTimeout)
	defer cancel()

	ticker := time.NewTicker(g.config.ReceiptPoll)
	defer ticker.Stop()

	for {
		receipt, rerr := g.node.GetTransactionReceipt(waitCtx, tx.Hash)
		switch {
		case rerr != nil:
			if waitCtx.Err() == nil {
				g.logger.Warn("receipt lookup failed",
					zap.String("tx", tx.Hash.Hex()),
					zap.Error(rerr),
				)
			}
		case receipt != nil:
			if !receipt.Succeeded() {
				err = fmt.Errorf("transaction %s reverted in block %d: %w", tx.Hash.Hex(), receipt.BlockNumber, ErrChainError)
				return Confirmation{}, err
			}
			return Confirmation{TxHash: tx.Hash, BlockNumber: receipt.BlockNumber}, nil
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				err = ctx.Err()
				return Confirmation{}, err
			}
			err = fmt.Errorf("transaction %s not mined within %s: %w", tx.Hash.Hex(), g.config.ConfirmTimeout, ErrChainError)
			return Confirmation{}, err
		case <-ticker.C:
		}
	}
}

// GetMaxMintCount implements Gateway.
func (g *EthGateway) GetMaxMintCount(ctx context.Context) (int64, error) {
	return g.readCount(ctx, contract.MethodMaxMintCount, g.binding.PackMaxMintCount)
}

// GetCurrentMintCount implements Gateway.
func (g *EthGateway) GetCurrentMintCount(ctx context.Context) (int64, error) {
	return g.readCount(ctx, contract.MethodMintCount, g.binding.PackMintCount)
}

func (g *EthGateway) readCount(ctx context.Context, method string, pack func() ([]byte, error)) (n int64, err error) {
	start := time.Now()
	defer func() { g.observe(method, start, err) }()

	data, err := pack()
	if err != nil {
		return 0, fmt.Errorf("pack %s: %w", method, err)
	}

	out, err := g.node.Call(ctx, ethereum.CallMsg{To: g.binding.Address(), Data: data})
	if err != nil {
		err = wrap(method, err)
		return 0, err
	}

	n, err = g.binding.UnpackCount(method, out)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrChainError, err)
		return 0, err
	}
	return n, nil
}

// QueryMintEventsHistory implements Gateway.
func (g *EthGateway) QueryMintEventsHistory(ctx context.Context) (events []MintEvent, err error) {
	start := time.Now()
	defer func() { g.observe("eth_getLogs", start, err) }()

	logs, err := g.node.GetLogs(ctx, g.binding.MintedFilter(g.config.DeployBlock))
	if err != nil {
		err = wrap("query mint history", err)
		return nil, err
	}

	events = make([]MintEvent, 0, len(logs))
	for _, l := range logs {
		ev, ok := g.decode(l)
		if ok {
			events = append(events, ev)
		}
	}
	return events, nil
}

// ResolveTransactionSender implements Gateway.
func (g *EthGateway) ResolveTransactionSender(ctx context.Context, txHash common.Hash) (sender string, err error) {
	if cached, ok := g.senders.get(txHash); ok {
		observability.RecordSenderCache(true)
		return cached, nil
	}
	observability.RecordSenderCache(false)

	start := time.Now()
	defer func() { g.observe("eth_getTransactionByHash", start, err) }()

	tx, err := g.node.GetTransactionByHash(ctx, txHash)
	if err != nil {
		err = wrap("resolve sender", err)
		return "", err
	}
	if tx == nil {
		err = fmt.Errorf("transaction %s not found: %w", txHash.Hex(), ErrChainError)
		return "", err
	}

	sender = strings.ToLower(tx.From.Hex())
	if tx.BlockNumber != nil {
		g.senders.set(txHash, sender)
	}
	return sender, nil
}

// SubscribeMintEvents implements Gateway. With a websocket dialer the node
// pushes logs; otherwise new blocks are polled with eth_getLogs.
func (g *EthGateway) SubscribeMintEvents(ctx context.Context, handler func(MintEvent)) (Subscription, error) {
	if handler == nil {
		return nil, errors.New("mint event handler is required")
	}
	if g.dial == nil {
		return g.pollMintEvents(ctx, handler)
	}
	return g.streamMintEvents(ctx, handler)
}

func (g *EthGateway) decode(l ethereum.Log) (MintEvent, bool) {
	if l.Removed {
		return MintEvent{}, false
	}
	ev, err := g.binding.DecodeMinted(l)
	if err != nil {
		g.logger.Debug("skipping undecodable log",
			zap.String("tx", l.TxHash.Hex()),
			zap.Uint64("index", l.LogIndex),
			zap.Error(err),
		)
		return MintEvent{}, false
	}
	return MintEvent{
		TokenID:     ev.TokenID,
		Minter:      ev.From,
		TxHash:      ev.TxHash,
		BlockNumber: ev.BlockNumber,
		LogIndex:    ev.LogIndex,
	}, true
}
