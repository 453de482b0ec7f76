package errors_test

import (
	"fmt"
	"testing"

	"github.com/coreledger/chaincore/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFoldsTrailingError(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := errors.New(errors.ERR_STORAGE_CORRUPT, "could not commit block", cause)

	require.Error(t, err)
	assert.Equal(t, errors.ERR_STORAGE_CORRUPT, err.Code())
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "disk full")
}

func TestValidationErrorCarriesBlockHash(t *testing.T) {
	err := errors.ValidationErrorf(errors.ERR_MERKLE_ROOT_MISMATCH, "deadbeef", "merkle root mismatch")

	assert.Equal(t, "deadbeef", err.BlockHash())
	assert.True(t, errors.IsValidationError(err))
}

func TestIsFatalOnlyForStorageCorrupt(t *testing.T) {
	assert.True(t, errors.IsFatal(errors.ErrStorageCorrupt))
	assert.False(t, errors.IsFatal(errors.ErrMissingData))
	assert.False(t, errors.IsFatal(errors.New(errors.ERR_SCRIPT_INVALID, "bad script")))
}

func TestIsMissingDataAndCancelled(t *testing.T) {
	assert.True(t, errors.IsMissingData(errors.ErrMissingData))
	assert.True(t, errors.IsCancelled(errors.ErrContextCancelled))
	assert.False(t, errors.IsCancelled(errors.ErrMissingData))
}

func TestIsCodeMatch(t *testing.T) {
	a := errors.New(errors.ERR_SIZE_LIMIT, "too big")
	b := errors.New(errors.ERR_SIZE_LIMIT, "also too big")
	c := errors.New(errors.ERR_SIGOP_LIMIT, "too many sigops")

	assert.True(t, a.Is(b))
	assert.False(t, a.Is(c))
}
