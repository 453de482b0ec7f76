package model_test

import (
	"math/big"
	"testing"

	"github.com/coreledger/chaincore/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderHashIsDeterministic(t *testing.T) {
	h := &model.BlockHeader{Version: 1, Time: 1231006505, Bits: 0x1d00ffff, Nonce: 2083236893}
	hash1 := h.Hash(nil)
	hash2 := h.Hash(nil)
	assert.Equal(t, hash1, hash2)
}

func TestHeaderHashChangesWithNonce(t *testing.T) {
	h1 := &model.BlockHeader{Version: 1, Bits: 0x1d00ffff, Nonce: 1}
	h2 := &model.BlockHeader{Version: 1, Bits: 0x1d00ffff, Nonce: 2}
	assert.NotEqual(t, h1.Hash(nil), h2.Hash(nil))
}

func TestWorkFromBitsIncreasesAsTargetShrinks(t *testing.T) {
	easyWork := model.WorkFromBits(0x1d00ffff)
	hardWork := model.WorkFromBits(0x1c00ffff) // smaller target, more work

	require.NotNil(t, easyWork)
	require.NotNil(t, hardWork)
	assert.True(t, hardWork.Cmp(easyWork) > 0)
}

func TestExpandBitsLowExponent(t *testing.T) {
	target := model.ExpandBits(0x02008000)
	assert.Equal(t, 0, target.Cmp(big.NewInt(0x80)))
}
