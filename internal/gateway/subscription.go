package gateway

import (
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"epics/internal/ethereum"
	"epics/internal/observability"
)

const unsubscribeTimeout = 5 * time.Second

// streamSubscription owns one websocket connection and its log subscription.
type streamSubscription struct {
	client ethereum.WSClient
	sub    *ethereum.LogSubscription
	stop   chan struct{}
	once   sync.Once
	err    error
}

// logPosition orders logs on chain.
type logPosition struct {
	block uint64
	index uint64
}

func (p logPosition) before(block, index uint64) bool {
	return p.block < block || (p.block == block && p.index < index)
}

func (g *EthGateway) streamMintEvents(ctx context.Context, handler func(MintEvent)) (Subscription, error) {
	// Logs at or below the current head are history, not live mints.
	last, known := logPosition{}, false
	if head, err := g.node.BlockNumber(ctx); err != nil {
		g.logger.Warn("read block number failed, reconnect backfill starts at first streamed mint", zap.Error(err))
	} else {
		last, known = logPosition{block: head, index: math.MaxUint64}, true
	}

	client, err := g.dial(ctx)
	if err != nil {
		return nil, wrap("dial node websocket", err)
	}

	sub, err := client.SubscribeLogs(ctx, g.binding.MintedFilter(0))
	if err != nil {
		_ = client.Close()
		return nil, wrap("subscribe mint events", err)
	}

	s := &streamSubscription{
		client: client,
		sub:    sub,
		stop:   make(chan struct{}),
	}
	observability.UpdateActiveSubscriptions(1)
	g.logger.Info("subscribed to mint events", zap.String("contract", g.binding.Address().Hex()))

	go g.streamLoop(s, last, known, handler)
	return s, nil
}

// streamLoop delivers streamed mints in chain order. After a reconnect it
// fills the gap from the last delivered log with eth_getLogs.
func (g *EthGateway) streamLoop(s *streamSubscription, last logPosition, known bool, handler func(MintEvent)) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	deliver := func(l ethereum.Log) bool {
		if known && !last.before(l.BlockNumber, l.LogIndex) {
			return true
		}
		ev, ok := g.decode(l)
		if !ok {
			return true
		}
		select {
		case <-s.stop:
			return false
		default:
		}
		last, known = logPosition{block: l.BlockNumber, index: l.LogIndex}, true
		handler(ev)
		return true
	}

	for {
		select {
		case <-s.stop:
			return
		case <-s.sub.Done():
			return
		case <-s.sub.Resubscribed():
			if !known {
				continue
			}
			logs, err := g.node.GetLogs(ctx, g.binding.MintedFilter(last.block))
			if err != nil {
				if ctx.Err() == nil {
					g.logger.Warn("mint backfill failed", zap.Uint64("from", last.block), zap.Error(err))
				}
				continue
			}
			g.logger.Info("mint stream resumed", zap.Uint64("from_block", last.block), zap.Int("logs", len(logs)))
			for _, l := range logs {
				if !deliver(l) {
					return
				}
			}
		case l, ok := <-s.sub.Logs():
			if !ok {
				g.logger.Warn("mint event stream closed")
				return
			}
			if !deliver(l) {
				return
			}
		}
	}
}

func (s *streamSubscription) Unsubscribe() error {
	s.once.Do(func() {
		close(s.stop)

		ctx, cancel := context.WithTimeout(context.Background(), unsubscribeTimeout)
		defer cancel()

		s.err = s.sub.Unsubscribe(ctx)
		if err := s.client.Close(); s.err == nil {
			s.err = err
		}
		observability.UpdateActiveSubscriptions(-1)
	})
	return s.err
}

// pollSubscription scans new blocks for mint logs.
type pollSubscription struct {
	stop chan struct{}
	once sync.Once
}

func (g *EthGateway) pollMintEvents(ctx context.Context, handler func(MintEvent)) (Subscription, error) {
	head, err := g.node.BlockNumber(ctx)
	if err != nil {
		return nil, wrap("read block number", err)
	}

	s := &pollSubscription{stop: make(chan struct{})}
	observability.UpdateActiveSubscriptions(1)
	g.logger.Info("polling mint events",
		zap.Uint64("from_block", head+1),
		zap.Duration("interval", g.config.LogPollInterval),
	)

	go g.pollLoop(s, head, handler)
	return s, nil
}

func (g *EthGateway) pollLoop(s *pollSubscription, last uint64, handler func(MintEvent)) {
	ticker := time.NewTicker(g.config.LogPollInterval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}

		head, err := g.node.BlockNumber(ctx)
		if err != nil {
			if ctx.Err() == nil {
				g.logger.Warn("poll block number failed", zap.Error(err))
			}
			continue
		}
		if head <= last {
			continue
		}

		filter := g.binding.MintedFilter(last + 1)
		to := head
		filter.ToBlock = &to

		logs, err := g.node.GetLogs(ctx, filter)
		if err != nil {
			if ctx.Err() == nil {
				g.logger.Warn("poll mint logs failed", zap.Uint64("from", last+1), zap.Uint64("to", head), zap.Error(err))
			}
			continue
		}
		last = head

		for _, l := range logs {
			select {
			case <-s.stop:
				return
			default:
			}
			if ev, ok := g.decode(l); ok {
				handler(ev)
			}
		}
	}
}

func (s *pollSubscription) Unsubscribe() error {
	s.once.Do(func() {
		close(s.stop)
		observability.UpdateActiveSubscriptions(-1)
	})
	return nil
}
