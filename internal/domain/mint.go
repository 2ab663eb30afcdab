package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition is returned for a mint phase change outside the transition table.
	ErrInvalidTransition = errors.New("invalid mint transition")

	// ErrStaleOperation is returned when a transition names a superseded operation.
	ErrStaleOperation = errors.New("stale mint operation")

	// ErrInvalidProgress is returned when mint counts violate current <= max.
	ErrInvalidProgress = errors.New("invalid mint progress")
)

// MintPhase is the phase of the current mint operation.
type MintPhase string

const (
	MintIdle              MintPhase = "IDLE"
	MintAwaitingSignature MintPhase = "AWAITING_SIGNATURE"
	MintMining            MintPhase = "MINING"
	MintConfirmed         MintPhase = "CONFIRMED"
)

// String returns the string representation of MintPhase.
func (p MintPhase) String() string {
	return string(p)
}

// IsValid checks if the phase is a valid value.
func (p MintPhase) IsValid() bool {
	switch p {
	case MintIdle, MintAwaitingSignature, MintMining, MintConfirmed:
		return true
	}
	return false
}

var mintTransitions = map[MintPhase][]MintPhase{
	MintIdle:              {MintAwaitingSignature},
	MintAwaitingSignature: {MintIdle, MintMining},
	MintMining:            {MintConfirmed, MintIdle},
	MintConfirmed:         {MintIdle},
}

// CanTransition reports whether from -> to is in the transition table.
func CanTransition(from, to MintPhase) bool {
	for _, next := range mintTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// MintState is the mint operation state machine.
// OpID identifies the attempt that owns the state; TxHash is set from Mining on.
type MintState struct {
	Phase  MintPhase
	OpID   string
	TxHash string
}

// IdleMint returns the resting state.
func IdleMint() MintState {
	return MintState{Phase: MintIdle}
}

// Begin starts a new operation: Idle -> AwaitingSignature.
func (s MintState) Begin(opID string) (MintState, error) {
	if s.Phase != MintIdle {
		return s, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Phase, MintAwaitingSignature)
	}
	return MintState{Phase: MintAwaitingSignature, OpID: opID}, nil
}

// Transition moves the operation opID to phase to.
// Returning to Idle clears the operation.
func (s MintState) Transition(opID string, to MintPhase) (MintState, error) {
	if s.OpID != opID {
		return s, ErrStaleOperation
	}
	if !CanTransition(s.Phase, to) {
		return s, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Phase, to)
	}
	if to == MintIdle {
		return IdleMint(), nil
	}
	next := s
	next.Phase = to
	return next, nil
}

// WithTxHash records the pending transaction hash.
func (s MintState) WithTxHash(hash string) MintState {
	s.TxHash = hash
	return s
}

// DefaultMaxMintCount is the collection size shown before the first refresh.
const DefaultMaxMintCount int64 = 1337

// MintProgress tracks minted vs. maximum supply.
type MintProgress struct {
	Current int64
	Max     int64
}

// Validate checks 0 <= Current <= Max and Max > 0.
func (p MintProgress) Validate() error {
	if p.Max <= 0 {
		return fmt.Errorf("%w: max %d", ErrInvalidProgress, p.Max)
	}
	if p.Current < 0 || p.Current > p.Max {
		return fmt.Errorf("%w: %d/%d", ErrInvalidProgress, p.Current, p.Max)
	}
	return nil
}

// Remaining returns how many tokens can still be minted.
func (p MintProgress) Remaining() int64 {
	if p.Current >= p.Max {
		return 0
	}
	return p.Max - p.Current
}
