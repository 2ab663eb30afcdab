package contract

import (
	"fmt"
	"strings"
)

// Default marketplace and explorer links.
const (
	DefaultTokenURL      = "https://testnets.opensea.io/assets/{contract}/{id}"
	DefaultCollectionURL = "https://opensea.io/collection/theepics"
	DefaultTxURL         = "https://rinkeby.etherscan.io/tx/{hash}"
)

// Links renders user-facing URLs for tokens and transactions.
// Templates use {contract}, {id} and {hash} placeholders.
type Links struct {
	Contract   string
	Token      string
	Collection string
	Tx         string
}

// DefaultLinks returns the links for the deployed collection.
func DefaultLinks(contract string) Links {
	return Links{
		Contract:   contract,
		Token:      DefaultTokenURL,
		Collection: DefaultCollectionURL,
		Tx:         DefaultTxURL,
	}
}

// TokenURL is the deep link to a minted token.
func (l Links) TokenURL(tokenID int64) string {
	r := strings.NewReplacer("{contract}", l.Contract, "{id}", fmt.Sprint(tokenID))
	return r.Replace(l.Token)
}

// CollectionURL is the default collection link.
func (l Links) CollectionURL() string {
	return l.Collection
}

// TxURL links a transaction on the block explorer.
func (l Links) TxURL(hash string) string {
	if hash == "" {
		return ""
	}
	return strings.ReplaceAll(l.Tx, "{hash}", hash)
}
