package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMintState_HappyPath(t *testing.T) {
	s := IdleMint()

	s, err := s.Begin("op-1")
	require.NoError(t, err)
	assert.Equal(t, MintAwaitingSignature, s.Phase)

	s, err = s.Transition("op-1", MintMining)
	require.NoError(t, err)
	s = s.WithTxHash("0xabc")
	assert.Equal(t, "0xabc", s.TxHash)

	s, err = s.Transition("op-1", MintConfirmed)
	require.NoError(t, err)
	assert.Equal(t, MintConfirmed, s.Phase)
	assert.Equal(t, "0xabc", s.TxHash)

	s, err = s.Transition("op-1", MintIdle)
	require.NoError(t, err)
	assert.Equal(t, IdleMint(), s)
}

func TestMintState_BeginRequiresIdle(t *testing.T) {
	s, err := IdleMint().Begin("op-1")
	require.NoError(t, err)

	_, err = s.Begin("op-2")
	assert.True(t, errors.Is(err, ErrInvalidTransition))
}

func TestMintState_RejectsStaleOperation(t *testing.T) {
	s, err := IdleMint().Begin("op-1")
	require.NoError(t, err)

	got, err := s.Transition("op-0", MintIdle)
	assert.ErrorIs(t, err, ErrStaleOperation)
	assert.Equal(t, s, got)
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to MintPhase
		want     bool
	}{
		{MintIdle, MintAwaitingSignature, true},
		{MintIdle, MintMining, false},
		{MintIdle, MintConfirmed, false},
		{MintAwaitingSignature, MintIdle, true},
		{MintAwaitingSignature, MintMining, true},
		{MintAwaitingSignature, MintConfirmed, false},
		{MintMining, MintConfirmed, true},
		{MintMining, MintIdle, true},
		{MintMining, MintAwaitingSignature, false},
		{MintConfirmed, MintIdle, true},
		{MintConfirmed, MintMining, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestMintProgress_Validate(t *testing.T) {
	assert.NoError(t, MintProgress{Current: 5, Max: 1337}.Validate())
	assert.NoError(t, MintProgress{Current: 1337, Max: 1337}.Validate())
	assert.ErrorIs(t, MintProgress{Current: 1338, Max: 1337}.Validate(), ErrInvalidProgress)
	assert.ErrorIs(t, MintProgress{Current: -1, Max: 10}.Validate(), ErrInvalidProgress)
	assert.ErrorIs(t, MintProgress{Current: 0, Max: 0}.Validate(), ErrInvalidProgress)

	assert.Equal(t, int64(1332), MintProgress{Current: 5, Max: 1337}.Remaining())
}
