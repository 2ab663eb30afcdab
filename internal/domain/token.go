package domain

import "sort"

// OwnedToken is a token minted by the connected account.
type OwnedToken struct {
	TokenID int64
	Owner   string // lower-cased hex
	TxHash  string
}

// SortTokens orders tokens by token id ascending.
func SortTokens(tokens []OwnedToken) {
	sort.Slice(tokens, func(i, j int) bool {
		return tokens[i].TokenID < tokens[j].TokenID
	})
}

// Gallery is the owned token view for one account.
// Loaded distinguishes "no tokens yet" from "never fetched".
type Gallery struct {
	Account string
	Tokens  []OwnedToken
	Loading bool
	Loaded  bool
}

// Contains reports whether tokenID is in the gallery.
func (g Gallery) Contains(tokenID int64) bool {
	for _, t := range g.Tokens {
		if t.TokenID == tokenID {
			return true
		}
	}
	return false
}
