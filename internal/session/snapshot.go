package session

import (
	"epics/internal/domain"
)

// TokenView is an owned token as shown on the page.
type TokenView struct {
	ID  int64  `json:"id"`
	URL string `json:"url"`
}

// Snapshot is an immutable view of the controller state.
type Snapshot struct {
	Account        string                 `json:"account,omitempty"`
	AccountLabel   string                 `json:"accountLabel,omitempty"`
	Connection     domain.ConnectionState `json:"connection"`
	Minted         int64                  `json:"minted"`
	MaxSupply      int64                  `json:"maxSupply"`
	MintPhase      domain.MintPhase       `json:"mintPhase"`
	TxHash         string                 `json:"txHash,omitempty"`
	TxURL          string                 `json:"txUrl,omitempty"`
	Tokens         []TokenView            `json:"tokens"`
	GalleryLoading bool                   `json:"galleryLoading"`
	GalleryLoaded  bool                   `json:"galleryLoaded"`
	MintLink       string                 `json:"mintLink"`
	Banner         *domain.Notice         `json:"banner,omitempty"`
	Notices        []domain.Notice        `json:"notices"`
	Subscribed     bool                   `json:"subscribed"`
}

// Connected reports whether an account is adopted.
func (s Snapshot) Connected() bool {
	return s.Connection == domain.Connected
}

// Snapshot returns the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Account:        s.session.Account,
		AccountLabel:   domain.ShortAddress(s.session.Account),
		Connection:     s.session.State,
		Minted:         s.progress.Current,
		MaxSupply:      s.progress.Max,
		MintPhase:      s.mint.Phase,
		TxHash:         s.mint.TxHash,
		TxURL:          s.links.TxURL(s.mint.TxHash),
		Tokens:         make([]TokenView, 0, len(s.gallery.Tokens)),
		GalleryLoading: s.galleryLoads > 0,
		GalleryLoaded:  s.gallery.Loaded,
		MintLink:       s.mintLink,
		Notices:        append([]domain.Notice{}, s.notices...),
		Subscribed:     s.sub != nil,
	}
	for _, t := range s.gallery.Tokens {
		snap.Tokens = append(snap.Tokens, TokenView{ID: t.TokenID, URL: s.links.TokenURL(t.TokenID)})
	}
	if s.banner != nil {
		banner := *s.banner
		snap.Banner = &banner
	}
	return snap
}
