package ethereum

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// EIP-1193 provider error codes.
const (
	CodeUserRejected      = 4001
	CodeUnauthorized      = 4100
	CodeUnsupported       = 4200
	CodeDisconnected      = 4900
	CodeChainDisconnected = 4901
)

// RPCError is a JSON-RPC 2.0 error returned by a wallet or node.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// TxRequest is the eth_sendTransaction payload.
type TxRequest struct {
	From  common.Address  `json:"from"`
	To    *common.Address `json:"to,omitempty"`
	Data  hexutil.Bytes   `json:"data,omitempty"`
	Value *hexutil.Big    `json:"value,omitempty"`
	Gas   *hexutil.Uint64 `json:"gas,omitempty"`
}

// CallMsg is the eth_call payload.
type CallMsg struct {
	From *common.Address `json:"from,omitempty"`
	To   common.Address  `json:"to"`
	Data hexutil.Bytes   `json:"data"`
}

// Receipt is a mined transaction receipt.
type Receipt struct {
	TxHash      common.Hash
	BlockNumber uint64
	Status      uint64 // 1 success, 0 reverted
	From        common.Address
	To          *common.Address
	Logs        []Log
}

// Succeeded reports whether the transaction executed without revert.
func (r *Receipt) Succeeded() bool {
	return r != nil && r.Status == 1
}

// Transaction is the subset of eth_getTransactionByHash used for sender lookup.
type Transaction struct {
	Hash        common.Hash
	From        common.Address
	To          *common.Address
	BlockNumber *uint64 // nil while pending
	Input       []byte
}

// Log is a contract event log.
type Log struct {
	Address     common.Address
	Topics      []common.Hash
	Data        []byte
	BlockNumber uint64
	TxHash      common.Hash
	LogIndex    uint64
	Removed     bool
}

// LogFilter selects logs for eth_getLogs and eth_subscribe.
// Nil FromBlock means "earliest", nil ToBlock means "latest".
type LogFilter struct {
	Addresses []common.Address
	Topics    [][]common.Hash
	FromBlock *uint64
	ToBlock   *uint64
}

// toArg renders the filter as a JSON-RPC parameter object.
func (f LogFilter) toArg(withRange bool) map[string]interface{} {
	arg := make(map[string]interface{})
	if len(f.Addresses) == 1 {
		arg["address"] = f.Addresses[0]
	} else if len(f.Addresses) > 1 {
		arg["address"] = f.Addresses
	}
	if len(f.Topics) > 0 {
		topics := make([]interface{}, len(f.Topics))
		for i, group := range f.Topics {
			switch len(group) {
			case 0:
				topics[i] = nil
			case 1:
				topics[i] = group[0]
			default:
				topics[i] = group
			}
		}
		arg["topics"] = topics
	}
	if !withRange {
		return arg
	}
	if f.FromBlock != nil {
		arg["fromBlock"] = hexutil.Uint64(*f.FromBlock)
	} else {
		arg["fromBlock"] = "earliest"
	}
	if f.ToBlock != nil {
		arg["toBlock"] = hexutil.Uint64(*f.ToBlock)
	} else {
		arg["toBlock"] = "latest"
	}
	return arg
}

// rawLog is the wire form of a log.
type rawLog struct {
	Address     common.Address `json:"address"`
	Topics      []common.Hash  `json:"topics"`
	Data        hexutil.Bytes  `json:"data"`
	BlockNumber hexutil.Uint64 `json:"blockNumber"`
	TxHash      common.Hash    `json:"transactionHash"`
	LogIndex    hexutil.Uint64 `json:"logIndex"`
	Removed     bool           `json:"removed"`
}

func (r rawLog) toLog() Log {
	return Log{
		Address:     r.Address,
		Topics:      r.Topics,
		Data:        r.Data,
		BlockNumber: uint64(r.BlockNumber),
		TxHash:      r.TxHash,
		LogIndex:    uint64(r.LogIndex),
		Removed:     r.Removed,
	}
}
