package domain

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ErrInvalidAddress is returned when a wallet reports a malformed account.
var ErrInvalidAddress = errors.New("invalid address")

// ConnectionState represents whether a wallet account is adopted.
type ConnectionState string

const (
	Disconnected ConnectionState = "DISCONNECTED"
	Connected    ConnectionState = "CONNECTED"
)

// String returns the string representation of ConnectionState.
func (s ConnectionState) String() string {
	return string(s)
}

// IsValid checks if the state is a valid value.
func (s ConnectionState) IsValid() bool {
	return s == Disconnected || s == Connected
}

// Session holds the adopted wallet account.
// Account is always lower-cased hex; empty when Disconnected.
type Session struct {
	Account string
	State   ConnectionState
}

// NewSession creates a connected session for account.
func NewSession(account string) (Session, error) {
	normalized, err := NormalizeAddress(account)
	if err != nil {
		return Session{}, err
	}
	return Session{Account: normalized, State: Connected}, nil
}

// IsConnected reports whether an account is adopted.
func (s Session) IsConnected() bool {
	return s.State == Connected && s.Account != ""
}

// NormalizeAddress validates a hex address and lower-cases it.
func NormalizeAddress(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if !common.IsHexAddress(addr) {
		return "", ErrInvalidAddress
	}
	return strings.ToLower(common.HexToAddress(addr).Hex()), nil
}

// SameAddress compares two addresses case-insensitively.
func SameAddress(a, b string) bool {
	return a != "" && strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// ShortAddress renders 0xab..cd style labels.
func ShortAddress(addr string) string {
	if len(addr) <= 6 {
		return addr
	}
	return addr[:4] + ".." + addr[len(addr)-2:]
}
