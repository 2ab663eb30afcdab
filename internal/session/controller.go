// Package session implements the wallet session controller: it adopts a
// wallet account, drives the mint state machine, keeps mint counts and the
// owned-token gallery current, and listens for new mints.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"epics/internal/contract"
	"epics/internal/domain"
	"epics/internal/gateway"
	"epics/internal/observability"
)

var (
	// ErrNotConnected is returned by operations that need an adopted account.
	ErrNotConnected = errors.New("no wallet account connected")

	// ErrMintBusy is returned when a mint is already in progress.
	ErrMintBusy = errors.New("mint already in progress")

	// ErrNoAccount is returned when the wallet grants no account.
	ErrNoAccount = errors.New("wallet returned no account")

	// ErrAccountChanged is returned when the target account is no longer connected.
	ErrAccountChanged = errors.New("account no longer connected")
)

// Timer keys.
const (
	timerMintReset = "mint-reset"
	timerLinkReset = "mint-link"
)

// Config tunes the controller.
type Config struct {
	// ConfirmedDisplay is how long Confirmed is shown before returning to Idle.
	ConfirmedDisplay time.Duration
	// LinkReset is how long a minted token link is shown before the collection link returns.
	LinkReset time.Duration
	// DefaultMaxMint is the supply shown before the first count refresh.
	DefaultMaxMint int64
	// Links renders token, collection and transaction URLs.
	Links contract.Links
}

// DefaultConfig returns default controller configuration.
func DefaultConfig() Config {
	return Config{
		ConfirmedDisplay: 4 * time.Second,
		LinkReset:        10 * time.Second,
		DefaultMaxMint:   domain.DefaultMaxMintCount,
		Links:            contract.DefaultLinks(contract.DefaultAddress),
	}
}

// Controller orchestrates wallet authorization, minting and
// event-driven refresh over a Gateway.
type Controller struct {
	gw       gateway.Gateway
	store    *Store
	timers   *Timers
	notifier *Notifier
	config   Config
	logger   *zap.Logger

	// subMu guards subscription bookkeeping so a session holds at most one.
	// It is never held across a gateway call.
	subMu   sync.Mutex
	dialing *pendingDial

	bg        context.Context
	stop      context.CancelFunc
	closeOnce sync.Once
}

// New creates a disconnected controller.
func New(gw gateway.Gateway, cfg Config, logger *zap.Logger) *Controller {
	defaults := DefaultConfig()
	if cfg.ConfirmedDisplay <= 0 {
		cfg.ConfirmedDisplay = defaults.ConfirmedDisplay
	}
	if cfg.LinkReset <= 0 {
		cfg.LinkReset = defaults.LinkReset
	}
	if cfg.DefaultMaxMint <= 0 {
		cfg.DefaultMaxMint = defaults.DefaultMaxMint
	}
	if cfg.Links.Collection == "" {
		cfg.Links = defaults.Links
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	bg, stop := context.WithCancel(context.Background())
	return &Controller{
		gw:       gw,
		store:    NewStore(cfg.DefaultMaxMint, cfg.Links),
		timers:   NewTimers(),
		notifier: NewNotifier(),
		config:   cfg,
		logger:   logger.Named("session"),
		bg:       bg,
		stop:     stop,
	}
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	return c.store.Snapshot()
}

// Store returns the controller's state object.
func (c *Controller) Store() *Store {
	return c.store
}

// OnNotice registers a notice listener.
func (c *Controller) OnNotice(fn func(domain.Notice)) (func(), error) {
	return c.notifier.OnNotice(fn)
}

// OnState registers a state listener.
func (c *Controller) OnState(fn func(Snapshot)) (func(), error) {
	return c.notifier.OnState(fn)
}

// CheckExistingSession adopts the first account the wallet has already
// authorized, without prompting.
func (c *Controller) CheckExistingSession(ctx context.Context) error {
	accounts, err := c.gw.ListAuthorizedAccounts(ctx)
	if err != nil {
		c.gatewayFailed("check existing session", err)
		return err
	}
	c.walletReachable()

	if len(accounts) == 0 {
		c.logger.Info("no authorized account")
		c.notify(domain.NoticeInfo, "No authorized account found. Connect your wallet to mint an Epic.", "")
		return nil
	}
	return c.adopt(ctx, accounts[0])
}

// Connect prompts the wallet for authorization and adopts the granted account.
// On failure the state is left unchanged.
func (c *Controller) Connect(ctx context.Context) error {
	accounts, err := c.gw.RequestAuthorization(ctx)
	if err != nil {
		c.gatewayFailed("connect", err)
		return err
	}
	c.walletReachable()

	if len(accounts) == 0 {
		c.notify(domain.NoticeError, "Your wallet did not share an account.", "")
		return ErrNoAccount
	}
	return c.adopt(ctx, accounts[0])
}

// Refresh reloads the gallery and counts and restores a missing subscription.
func (c *Controller) Refresh(ctx context.Context) error {
	sess := c.store.Session()
	if !sess.IsConnected() {
		return ErrNotConnected
	}
	c.refreshAll(ctx, sess.Account)
	return nil
}

// Disconnect drops the session: the subscription is torn down, timers are
// cancelled and gallery and mint state are reset. Mint progress is kept.
func (c *Controller) Disconnect() {
	c.subMu.Lock()
	sub, wasConnected := c.store.disconnect()
	c.dialing = nil
	c.subMu.Unlock()

	c.timers.CancelAll()
	c.unsubscribe(sub)

	if wasConnected {
		c.logger.Info("session disconnected")
		c.notify(domain.NoticeInfo, "Wallet disconnected.", "")
		return
	}
	c.publishState()
}

// Close tears the controller down.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.stop()

		c.subMu.Lock()
		sub, _ := c.store.disconnect()
		c.dialing = nil
		c.subMu.Unlock()

		c.timers.CancelAll()
		c.unsubscribe(sub)
		c.notifier.Wait()
	})
}

func (c *Controller) adopt(ctx context.Context, account string) error {
	sess, err := domain.NewSession(account)
	if err != nil {
		c.logger.Warn("wallet returned invalid account", zap.String("account", account))
		c.notify(domain.NoticeError, fmt.Sprintf("Your wallet returned an invalid account %q.", account), "")
		return fmt.Errorf("adopt account %q: %w", account, err)
	}

	c.subMu.Lock()
	previous, old := c.store.adopt(sess)
	if c.dialing != nil && c.dialing.account != sess.Account {
		c.dialing = nil
	}
	c.subMu.Unlock()

	if previous != sess.Account {
		if previous != "" {
			c.logger.Info("account switched", zap.String("from", previous), zap.String("to", sess.Account))
			c.timers.CancelAll()
			c.unsubscribe(old)
		}
		c.logger.Info("session connected", zap.String("account", sess.Account))
		c.notify(domain.NoticeSuccess, "Connected as "+domain.ShortAddress(sess.Account)+".", "")
	}

	c.refreshAll(ctx, sess.Account)
	return nil
}

// refreshAll runs gallery load, count refresh and subscription in order.
// Each step handles its own failure.
func (c *Controller) refreshAll(ctx context.Context, account string) {
	_ = c.LoadGallery(ctx, account)
	_ = c.RefreshMintCounts(ctx)
	_ = c.SubscribeToMintEvents(ctx, account)
}

// RefreshMintCounts overwrites the mint progress with the contract counters.
// Failure leaves the previous counts in place.
func (c *Controller) RefreshMintCounts(ctx context.Context) error {
	current, err := c.gw.GetCurrentMintCount(ctx)
	if err != nil {
		return c.refreshFailed("mint counts", err)
	}
	maxCount, err := c.gw.GetMaxMintCount(ctx)
	if err != nil {
		return c.refreshFailed("mint counts", err)
	}

	if err := c.store.setProgress(domain.MintProgress{Current: current, Max: maxCount}); err != nil {
		return c.refreshFailed("mint counts", err)
	}

	c.logger.Debug("mint counts refreshed", zap.Int64("current", current), zap.Int64("max", maxCount))
	c.publishState()
	return nil
}

// LoadGallery replaces the owned token set of account with every minted
// token whose transaction sender is account. Concurrent loads are allowed;
// the last one to finish wins.
func (c *Controller) LoadGallery(ctx context.Context, account string) error {
	account, err := domain.NormalizeAddress(account)
	if err != nil {
		return err
	}

	gen, ok := c.store.startGalleryLoad(account)
	if !ok {
		return ErrAccountChanged
	}
	c.publishState()

	start := time.Now()
	tokens, err := c.collectTokens(ctx, account)
	if err != nil {
		c.store.finishGalleryLoad(gen, account, nil, false)
		c.publishState()
		return c.refreshFailed("gallery", err)
	}

	if c.store.finishGalleryLoad(gen, account, tokens, true) {
		observability.RecordGalleryReload(time.Since(start).Seconds(), len(tokens))
		c.logger.Debug("gallery loaded", zap.String("account", account), zap.Int("tokens", len(tokens)))
	}
	c.publishState()
	return nil
}

func (c *Controller) collectTokens(ctx context.Context, account string) ([]domain.OwnedToken, error) {
	events, err := c.gw.QueryMintEventsHistory(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]bool, len(events))
	tokens := make([]domain.OwnedToken, 0)
	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if seen[ev.TokenID] {
			continue
		}

		sender, err := c.gw.ResolveTransactionSender(ctx, ev.TxHash)
		if err != nil {
			c.logger.Debug("skipping token with unresolved sender",
				zap.Int64("token", ev.TokenID),
				zap.String("tx", ev.TxHash.Hex()),
				zap.Error(err),
			)
			continue
		}
		if !domain.SameAddress(sender, account) {
			continue
		}

		seen[ev.TokenID] = true
		tokens = append(tokens, domain.OwnedToken{
			TokenID: ev.TokenID,
			Owner:   account,
			TxHash:  ev.TxHash.Hex(),
		})
	}

	domain.SortTokens(tokens)
	return tokens, nil
}

// SubscribeToMintEvents starts the live mint listener for account.
// It is a no-op when account is already subscribed.
func (c *Controller) SubscribeToMintEvents(ctx context.Context, account string) error {
	account, err := domain.NormalizeAddress(account)
	if err != nil {
		return err
	}

	c.subMu.Lock()
	if !c.store.isCurrent(account) {
		c.subMu.Unlock()
		return ErrAccountChanged
	}
	if c.store.subscribedTo(account) || (c.dialing != nil && c.dialing.account == account) {
		c.subMu.Unlock()
		c.logger.Debug("already subscribed", zap.String("account", account))
		return nil
	}
	dial := &pendingDial{account: account}
	c.dialing = dial
	c.subMu.Unlock()

	sub, err := c.gw.SubscribeMintEvents(ctx, func(ev gateway.MintEvent) {
		c.onMintEvent(account, ev)
	})

	c.subMu.Lock()
	stale := c.dialing != dial
	if !stale {
		c.dialing = nil
	}
	c.subMu.Unlock()

	if stale {
		// Disconnected or switched accounts while dialing.
		c.logger.Debug("discarding stale subscription", zap.String("account", account))
		c.unsubscribe(sub)
		return ErrAccountChanged
	}
	if err != nil {
		err = c.refreshFailed("subscribe", err)
		c.notify(domain.NoticeWarning, "Live mint updates are unavailable. Refresh manually to see new mints.", "")
		return err
	}

	if !c.store.setSubscription(account, sub) {
		c.unsubscribe(sub)
		return ErrAccountChanged
	}

	c.logger.Info("listening for mint events", zap.String("account", account))
	c.publishState()
	return nil
}

// pendingDial marks a subscription being established outside subMu.
type pendingDial struct {
	account string
}

func (c *Controller) onMintEvent(account string, ev gateway.MintEvent) {
	if c.bg.Err() != nil || !c.store.isCurrent(account) {
		return
	}
	observability.RecordMintEvent()

	log := c.logger.With(zap.Int64("token", ev.TokenID), zap.String("tx", ev.TxHash.Hex()))
	log.Info("mint event")

	if err := c.store.setCurrentCount(ev.TokenID + 1); err != nil {
		log.Warn("rejected mint progress from event", zap.Error(err))
	}
	c.publishState()

	_ = c.LoadGallery(c.bg, account)

	link := c.config.Links.TokenURL(ev.TokenID)
	c.store.setMintLink(link)

	msg := fmt.Sprintf("Epic #%d was just minted by %s.", ev.TokenID, domain.ShortAddress(ev.Minter.Hex()))
	if domain.SameAddress(ev.Minter.Hex(), account) {
		msg = fmt.Sprintf("We've minted your Epic #%d and sent it to your wallet. It can take up to 10 minutes to show up on OpenSea.", ev.TokenID)
	}
	c.notify(domain.NoticeSuccess, msg, link)

	c.timers.Schedule(timerLinkReset, c.config.LinkReset, func() {
		c.store.setMintLink(c.config.Links.CollectionURL())
		c.publishState()
	})
}

func (c *Controller) unsubscribe(sub gateway.Subscription) {
	if sub == nil {
		return
	}
	if err := sub.Unsubscribe(); err != nil {
		c.logger.Warn("unsubscribe failed", zap.Error(err))
	}
}

// walletReachable clears the "no wallet" banner after a successful call.
func (c *Controller) walletReachable() {
	if c.store.clearBanner() {
		c.publishState()
	}
}

// gatewayFailed turns a failed wallet call into a notice.
func (c *Controller) gatewayFailed(op string, err error) {
	if errors.Is(err, context.Canceled) {
		c.logger.Debug("cancelled", zap.String("operation", op))
		return
	}

	kind := gateway.Classify(err)
	c.logger.Warn("wallet call failed",
		zap.String("operation", op),
		zap.String("kind", kind.String()),
		zap.Error(err),
	)

	switch kind {
	case gateway.KindUserRejected:
		c.notify(domain.NoticeError, "The request was rejected in your wallet.", "")
	case gateway.KindGatewayUnavailable:
		c.notifyPersistent(domain.NoticeError, "No wallet found. Start your wallet and try again.")
	default:
		c.notify(domain.NoticeError, fmt.Sprintf("Could not %s: %v", op, err), "")
	}
}

// refreshFailed logs a background failure and wraps it as a refresh failure.
func (c *Controller) refreshFailed(op string, err error) error {
	c.logger.Warn("refresh failed", zap.String("operation", op), zap.Error(err))
	observability.RecordRefreshFailure(op)
	if errors.Is(err, gateway.ErrRefreshFailure) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, gateway.ErrRefreshFailure, err)
}

func (c *Controller) notify(kind domain.NoticeKind, message, link string) {
	c.emit(domain.Notice{Kind: kind, Message: message, Link: link})
}

func (c *Controller) notifyOp(opID string, kind domain.NoticeKind, message, link string) {
	c.emit(domain.Notice{Kind: kind, Message: message, Link: link, OpID: opID})
}

func (c *Controller) notifyPersistent(kind domain.NoticeKind, message string) {
	c.emit(domain.Notice{Kind: kind, Message: message, Persistent: true})
}

func (c *Controller) emit(n domain.Notice) {
	n.ID = uuid.NewString()
	n.CreatedAt = time.Now()

	c.store.addNotice(n)
	observability.RecordNotice(n.Kind.String())
	c.notifier.publishNotice(n)
	c.publishState()
}

func (c *Controller) publishState() {
	c.notifier.publishState(c.store.Snapshot())
}
