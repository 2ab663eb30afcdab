package gateway

import (
	"context"
	"errors"
	"fmt"

	"epics/internal/ethereum"
)

var (
	// ErrGatewayUnavailable is returned when no wallet provider answers.
	ErrGatewayUnavailable = errors.New("wallet gateway unavailable")

	// ErrUserRejected is returned when the wallet user declines a request.
	ErrUserRejected = errors.New("user rejected request")

	// ErrChainError is returned for reverted, dropped or unconfirmed transactions
	// and failed contract reads.
	ErrChainError = errors.New("chain error")

	// ErrRefreshFailure marks a failed background refresh.
	ErrRefreshFailure = errors.New("refresh failure")
)

// Kind is the error taxonomy used for notices and metrics.
type Kind int

const (
	KindNone Kind = iota
	KindGatewayUnavailable
	KindUserRejected
	KindChainError
	KindRefreshFailure
)

// String returns the metric label for the kind.
func (k Kind) String() string {
	switch k {
	case KindGatewayUnavailable:
		return "gateway_unavailable"
	case KindUserRejected:
		return "user_rejected"
	case KindChainError:
		return "chain_error"
	case KindRefreshFailure:
		return "refresh_failure"
	}
	return "none"
}

// Err returns the sentinel error of the kind.
func (k Kind) Err() error {
	switch k {
	case KindGatewayUnavailable:
		return ErrGatewayUnavailable
	case KindUserRejected:
		return ErrUserRejected
	case KindChainError:
		return ErrChainError
	case KindRefreshFailure:
		return ErrRefreshFailure
	}
	return nil
}

// Classify maps any gateway or transport error to a Kind.
// EIP-1193 4001 is a rejection; provider disconnect codes, transport
// failures and deadlines mean the wallet is unreachable; anything else
// the chain or contract refused.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}

	switch {
	case errors.Is(err, ErrUserRejected):
		return KindUserRejected
	case errors.Is(err, ErrGatewayUnavailable):
		return KindGatewayUnavailable
	case errors.Is(err, ErrChainError):
		return KindChainError
	case errors.Is(err, ErrRefreshFailure):
		return KindRefreshFailure
	}

	var rpcErr *ethereum.RPCError
	if errors.As(err, &rpcErr) {
		switch rpcErr.Code {
		case ethereum.CodeUserRejected:
			return KindUserRejected
		case ethereum.CodeUnauthorized, ethereum.CodeUnsupported,
			ethereum.CodeDisconnected, ethereum.CodeChainDisconnected:
			return KindGatewayUnavailable
		}
		return KindChainError
	}

	var transportErr *ethereum.TransportError
	if errors.As(err, &transportErr) ||
		errors.Is(err, ethereum.ErrClientClosed) ||
		errors.Is(err, context.DeadlineExceeded) {
		return KindGatewayUnavailable
	}

	return KindChainError
}

// wrap attaches the classified sentinel so callers can use errors.Is.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	sentinel := Classify(err).Err()
	if errors.Is(err, sentinel) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, sentinel, err)
}
