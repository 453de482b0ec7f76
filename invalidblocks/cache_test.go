package invalidblocks_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/coreledger/chaincore/invalidblocks"
	"github.com/coreledger/chaincore/model"
	"github.com/coreledger/chaincore/storage"
	"github.com/coreledger/chaincore/ulogger"
	"github.com/stretchr/testify/require"
)

func TestCacheAddAndContains(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemoryBackend().OpenInvalidBlockBackend()
	logger := ulogger.New("test", ulogger.WithWriter(&bytes.Buffer{}))
	cache := invalidblocks.New(backend, logger)
	defer cache.Close()

	hash := model.Hash{0x09}

	_, ok, err := cache.Contains(ctx, hash)
	require.NoError(t, err)
	require.False(t, ok)

	var published invalidblocks.Addition
	cache.Added.Subscribe(func(e invalidblocks.Addition) { published = e })

	require.NoError(t, cache.Add(ctx, hash, "merkle-root-mismatch"))

	reason, ok, err := cache.Contains(ctx, hash)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "merkle-root-mismatch", reason)
	require.Equal(t, hash, published.Hash)
	require.Equal(t, "merkle-root-mismatch", published.Reason)
}
