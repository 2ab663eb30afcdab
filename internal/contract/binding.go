// Package contract binds the Epics NFT contract ABI.
package contract

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"epics/internal/ethereum"
)

//go:embed TheEpics.json
var epicsABI []byte

// Contract method and event names.
const (
	MethodMint         = "makeAnEpicNFT"
	MethodMaxMintCount = "getMaxMintCount"
	MethodMintCount    = "currentMintCount"
	EventMinted        = "EpicMinted"
)

// DefaultAddress is the deployed Epics contract.
const DefaultAddress = "0x908f9AfF6eE262946d5A350c2C0e0388670cf5E4"

var (
	// ErrNotMintedEvent is returned when a log is not an EpicMinted event.
	ErrNotMintedEvent = errors.New("not an EpicMinted log")

	// ErrCountOverflow is returned when a count does not fit int64.
	ErrCountOverflow = errors.New("count overflows int64")
)

// MintedEvent is a decoded EpicMinted log.
type MintedEvent struct {
	TokenID     int64
	From        common.Address
	TxHash      common.Hash
	BlockNumber uint64
	LogIndex    uint64
}

// Binding packs calls to and decodes events from the contract.
type Binding struct {
	address common.Address
	abi     abi.ABI
}

// New parses the embedded ABI and binds it to address.
func New(address string) (*Binding, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("contract address %q: invalid hex address", address)
	}

	parsed, err := abi.JSON(bytes.NewReader(epicsABI))
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}

	return &Binding{
		address: common.HexToAddress(address),
		abi:     parsed,
	}, nil
}

// Address returns the contract address.
func (b *Binding) Address() common.Address {
	return b.address
}

// Selector returns the 4-byte selector of a method.
func (b *Binding) Selector(method string) []byte {
	m, ok := b.abi.Methods[method]
	if !ok {
		return nil
	}
	return m.ID
}

// PackMint encodes a makeAnEpicNFT() call.
func (b *Binding) PackMint() ([]byte, error) {
	return b.abi.Pack(MethodMint)
}

// PackMaxMintCount encodes a getMaxMintCount() call.
func (b *Binding) PackMaxMintCount() ([]byte, error) {
	return b.abi.Pack(MethodMaxMintCount)
}

// PackMintCount encodes a currentMintCount() call.
func (b *Binding) PackMintCount() ([]byte, error) {
	return b.abi.Pack(MethodMintCount)
}

// UnpackCount decodes the uint256 returned by a count method.
func (b *Binding) UnpackCount(method string, out []byte) (int64, error) {
	vals, err := b.abi.Unpack(method, out)
	if err != nil {
		return 0, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(vals) != 1 {
		return 0, fmt.Errorf("unpack %s: expected 1 value, got %d", method, len(vals))
	}
	n, ok := vals[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("unpack %s: unexpected type %T", method, vals[0])
	}
	if !n.IsInt64() {
		return 0, fmt.Errorf("unpack %s: %w", method, ErrCountOverflow)
	}
	return n.Int64(), nil
}

// MintedTopic is topic[0] of EpicMinted logs.
func (b *Binding) MintedTopic() common.Hash {
	return b.abi.Events[EventMinted].ID
}

// MintedFilter selects EpicMinted logs emitted by the contract from block onwards.
func (b *Binding) MintedFilter(fromBlock uint64) ethereum.LogFilter {
	from := fromBlock
	return ethereum.LogFilter{
		Addresses: []common.Address{b.address},
		Topics:    [][]common.Hash{{b.MintedTopic()}},
		FromBlock: &from,
	}
}

// DecodeMinted decodes an EpicMinted log.
func (b *Binding) DecodeMinted(l ethereum.Log) (MintedEvent, error) {
	if len(l.Topics) == 0 || l.Topics[0] != b.MintedTopic() || l.Address != b.address {
		return MintedEvent{}, ErrNotMintedEvent
	}

	vals, err := b.abi.Unpack(EventMinted, l.Data)
	if err != nil {
		return MintedEvent{}, fmt.Errorf("unpack %s: %w", EventMinted, err)
	}
	if len(vals) != 2 {
		return MintedEvent{}, fmt.Errorf("unpack %s: expected 2 values, got %d", EventMinted, len(vals))
	}

	id, ok := vals[0].(*big.Int)
	if !ok || !id.IsInt64() {
		return MintedEvent{}, fmt.Errorf("unpack %s: bad token id %v", EventMinted, vals[0])
	}
	from, ok := vals[1].(common.Address)
	if !ok {
		return MintedEvent{}, fmt.Errorf("unpack %s: bad sender %v", EventMinted, vals[1])
	}

	return MintedEvent{
		TokenID:     id.Int64(),
		From:        from,
		TxHash:      l.TxHash,
		BlockNumber: l.BlockNumber,
		LogIndex:    l.LogIndex,
	}, nil
}
