package session

import (
	"sync"

	"epics/internal/contract"
	"epics/internal/domain"
	"epics/internal/gateway"
)

const maxNotices = 10

// Store is the single UI state object owned by a Controller.
// Every read returns a copy; every write goes through a method that keeps
// the invariants of the domain types.
type Store struct {
	mu sync.RWMutex

	session  domain.Session
	progress domain.MintProgress
	mint     domain.MintState
	gallery  domain.Gallery
	mintLink string
	banner   *domain.Notice
	notices  []domain.Notice

	// galleryGen invalidates in-flight loads when the account changes.
	galleryGen   uint64
	galleryLoads int

	sub        gateway.Subscription
	subAccount string

	links contract.Links
}

// NewStore creates a disconnected store showing defaultMax as the supply.
func NewStore(defaultMax int64, links contract.Links) *Store {
	if defaultMax <= 0 {
		defaultMax = domain.DefaultMaxMintCount
	}
	return &Store{
		session:  domain.Session{State: domain.Disconnected},
		progress: domain.MintProgress{Current: 0, Max: defaultMax},
		mint:     domain.IdleMint(),
		mintLink: links.CollectionURL(),
		links:    links,
	}
}

// Session returns the current session.
func (s *Store) Session() domain.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// Progress returns the current mint progress.
func (s *Store) Progress() domain.MintProgress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.progress
}

// Mint returns the current mint state.
func (s *Store) Mint() domain.MintState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mint
}

// Gallery returns a copy of the gallery.
func (s *Store) Gallery() domain.Gallery {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g := s.gallery
	g.Tokens = append([]domain.OwnedToken(nil), s.gallery.Tokens...)
	g.Loading = s.galleryLoads > 0
	return g
}

// MintLink returns the link shown with the latest mint notification.
func (s *Store) MintLink() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mintLink
}

// isCurrent reports whether account is the connected account.
func (s *Store) isCurrent(account string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.IsConnected() && s.session.Account == account
}

// adopt connects sess. When it replaces a different account the
// account-scoped state is reset and the old subscription is returned
// for teardown.
func (s *Store) adopt(sess domain.Session) (previous string, old gateway.Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session.IsConnected() {
		previous = s.session.Account
	}
	if previous != "" && previous != sess.Account {
		old = s.resetAccountLocked()
	}
	s.session = sess
	return previous, old
}

// disconnect drops the session and returns the subscription to tear down.
func (s *Store) disconnect() (old gateway.Subscription, wasConnected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wasConnected = s.session.IsConnected()
	old = s.resetAccountLocked()
	s.session = domain.Session{State: domain.Disconnected}
	return old, wasConnected
}

func (s *Store) resetAccountLocked() gateway.Subscription {
	old := s.sub
	s.sub = nil
	s.subAccount = ""
	s.gallery = domain.Gallery{}
	s.galleryGen++
	s.galleryLoads = 0
	s.mint = domain.IdleMint()
	s.mintLink = s.links.CollectionURL()
	s.notices = nil
	return old
}

// beginMint starts operation opID if connected and Idle.
func (s *Store) beginMint(opID string) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.session.IsConnected() {
		return domain.Session{}, ErrNotConnected
	}
	if s.mint.Phase != domain.MintIdle {
		return domain.Session{}, ErrMintBusy
	}
	next, err := s.mint.Begin(opID)
	if err != nil {
		return domain.Session{}, err
	}
	s.mint = next
	return s.session, nil
}

// transitionMint moves opID to phase to, recording txHash when non-empty.
func (s *Store) transitionMint(opID string, to domain.MintPhase, txHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := s.mint.Transition(opID, to)
	if err != nil {
		return err
	}
	if txHash != "" {
		next = next.WithTxHash(txHash)
	}
	s.mint = next
	return nil
}

// setProgress replaces the progress if it is valid.
func (s *Store) setProgress(p domain.MintProgress) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = p
	return nil
}

// setCurrentCount replaces the minted count, keeping the known max.
func (s *Store) setCurrentCount(current int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := domain.MintProgress{Current: current, Max: s.progress.Max}
	if err := p.Validate(); err != nil {
		return err
	}
	s.progress = p
	return nil
}

// startGalleryLoad marks a load for account in flight.
// It fails when account is not the connected account.
func (s *Store) startGalleryLoad(account string) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.session.IsConnected() || s.session.Account != account {
		return 0, false
	}
	s.galleryLoads++
	return s.galleryGen, true
}

// finishGalleryLoad ends a load. On success the token set is replaced
// wholesale; results of loads started before an account change are dropped.
func (s *Store) finishGalleryLoad(gen uint64, account string, tokens []domain.OwnedToken, ok bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.galleryGen {
		return false
	}
	s.galleryLoads--
	if !ok || s.session.Account != account {
		return false
	}
	s.gallery = domain.Gallery{
		Account: account,
		Tokens:  tokens,
		Loaded:  true,
	}
	return true
}

// subscribedTo reports whether account already has a live subscription.
func (s *Store) subscribedTo(account string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sub != nil && s.subAccount == account
}

// setSubscription stores sub for account unless the account changed
// or a subscription already exists.
func (s *Store) setSubscription(account string, sub gateway.Subscription) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sub != nil || !s.session.IsConnected() || s.session.Account != account {
		return false
	}
	s.sub = sub
	s.subAccount = account
	return true
}

func (s *Store) setMintLink(link string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mintLink = link
}

// addNotice records a notice. Persistent notices replace the banner;
// transient ones are kept in a short history.
func (s *Store) addNotice(n domain.Notice) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.Persistent {
		banner := n
		s.banner = &banner
		return
	}
	s.notices = append(s.notices, n)
	if len(s.notices) > maxNotices {
		s.notices = append([]domain.Notice(nil), s.notices[len(s.notices)-maxNotices:]...)
	}
}

// clearBanner removes the persistent notice and reports whether one was set.
func (s *Store) clearBanner() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	had := s.banner != nil
	s.banner = nil
	return had
}

// dropNotices removes the notices of a mint operation.
func (s *Store) dropNotices(opID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.notices[:0]
	for _, n := range s.notices {
		if n.OpID != opID {
			kept = append(kept, n)
		}
	}
	s.notices = kept
}
