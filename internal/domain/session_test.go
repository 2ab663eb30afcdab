package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAddress(t *testing.T) {
	got, err := NormalizeAddress(" 0xAbCdEf0123456789aBCDef0123456789AbCdEf01 ")
	require.NoError(t, err)
	assert.Equal(t, "0xabcdef0123456789abcdef0123456789abcdef01", got)

	_, err = NormalizeAddress("0x1234")
	assert.ErrorIs(t, err, ErrInvalidAddress)

	_, err = NormalizeAddress("")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestNewSession(t *testing.T) {
	s, err := NewSession("0xABCDEF0123456789ABCDEF0123456789ABCDEF01")
	require.NoError(t, err)
	assert.True(t, s.IsConnected())
	assert.Equal(t, "0xabcdef0123456789abcdef0123456789abcdef01", s.Account)

	assert.False(t, Session{}.IsConnected())
}

func TestSameAddress(t *testing.T) {
	assert.True(t, SameAddress("0xABC", "0xabc"))
	assert.False(t, SameAddress("0xabc", "0xabd"))
	assert.False(t, SameAddress("", ""))
}

func TestShortAddress(t *testing.T) {
	assert.Equal(t, "0xab..01", ShortAddress("0xabcdef0123456789abcdef0123456789abcdef01"))
	assert.Equal(t, "0xab", ShortAddress("0xab"))
}

func TestGallery_Contains(t *testing.T) {
	g := Gallery{Tokens: []OwnedToken{{TokenID: 3}, {TokenID: 7}}}
	assert.True(t, g.Contains(7))
	assert.False(t, g.Contains(4))
}

func TestSortTokens(t *testing.T) {
	tokens := []OwnedToken{{TokenID: 9}, {TokenID: 1}, {TokenID: 4}}
	SortTokens(tokens)
	assert.Equal(t, []int64{1, 4, 9}, []int64{tokens[0].TokenID, tokens[1].TokenID, tokens[2].TokenID})
}
