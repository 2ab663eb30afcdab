package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"epics/internal/domain"
	"epics/internal/gateway"
	"epics/internal/observability"
)

// Mint runs one mint attempt:
// Idle -> AwaitingSignature -> Mining -> Confirmed -> Idle.
// It is a no-op returning ErrNotConnected or ErrMintBusy unless an account
// is connected and no mint is in progress. A rejected signature or a
// failed transaction returns the state to Idle with an error notice.
func (c *Controller) Mint(ctx context.Context) error {
	opID := uuid.NewString()
	sess, err := c.store.beginMint(opID)
	if err != nil {
		c.logger.Debug("mint ignored", zap.Error(err))
		return err
	}
	c.publishState()

	log := c.logger.With(zap.String("op", opID), zap.String("account", sess.Account))
	start := time.Now()

	log.Info("requesting mint signature")
	tx, err := c.gw.CallMintFunction(ctx, sess.Account)
	if err != nil {
		// The session moved on while the wallet was open; its notices are not ours.
		if !c.transition(log, opID, domain.MintIdle, "") {
			return ErrAccountChanged
		}
		c.mintFailed(log, err, start)
		return err
	}
	c.walletReachable()

	txHash := tx.Hash.Hex()
	if !c.transition(log, opID, domain.MintMining, txHash) {
		return ErrAccountChanged
	}
	log.Info("mining", zap.String("tx", txHash))
	c.notifyOp(opID, domain.NoticeInfo, "Mining... please wait.", c.config.Links.TxURL(txHash))

	conf, err := c.gw.AwaitConfirmation(ctx, tx)
	c.store.dropNotices(opID)
	if err != nil {
		if !c.transition(log, opID, domain.MintIdle, "") {
			return ErrAccountChanged
		}
		c.mintFailed(log, err, start)
		return err
	}

	if !c.transition(log, opID, domain.MintConfirmed, "") {
		return ErrAccountChanged
	}
	log.Info("mint confirmed", zap.Uint64("block", conf.BlockNumber))
	observability.RecordMintAttempt(observability.OutcomeConfirmed, time.Since(start))
	c.notifyOp(opID, domain.NoticeSuccess, "Mined! Your Epic is on its way.", c.config.Links.TxURL(txHash))

	c.timers.Schedule(timerMintReset, c.config.ConfirmedDisplay, func() {
		if c.transition(log, opID, domain.MintIdle, "") {
			c.store.dropNotices(opID)
			c.publishState()
		}
	})
	return nil
}

// transition applies a mint phase change and publishes it.
// Stale or invalid transitions are dropped.
func (c *Controller) transition(log *zap.Logger, opID string, to domain.MintPhase, txHash string) bool {
	if err := c.store.transitionMint(opID, to, txHash); err != nil {
		log.Debug("mint transition ignored", zap.String("to", to.String()), zap.Error(err))
		return false
	}
	c.publishState()
	return true
}

func (c *Controller) mintFailed(log *zap.Logger, err error, start time.Time) {
	elapsed := time.Since(start)
	if errors.Is(err, context.Canceled) {
		log.Info("mint cancelled")
		observability.RecordMintAttempt(observability.OutcomeFailed, elapsed)
		return
	}

	kind := gateway.Classify(err)
	log.Warn("mint failed", zap.String("kind", kind.String()), zap.Error(err))

	switch kind {
	case gateway.KindUserRejected:
		observability.RecordMintAttempt(observability.OutcomeRejected, elapsed)
		c.notify(domain.NoticeError, "Transaction rejected in your wallet.", "")
	case gateway.KindGatewayUnavailable:
		observability.RecordMintAttempt(observability.OutcomeUnavailable, elapsed)
		c.notifyPersistent(domain.NoticeError, "No wallet found. Start your wallet and try again.")
	default:
		observability.RecordMintAttempt(observability.OutcomeFailed, elapsed)
		c.notify(domain.NoticeError, fmt.Sprintf("Mint failed: %v", err), "")
	}
}
