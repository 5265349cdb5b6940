package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := Config{Addr: mr.Addr()}
	assert.True(t, cfg.Enabled())

	client, err := NewClient(context.Background(), cfg)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestNewClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewClient(context.Background(), Config{Addr: addr})
	assert.Error(t, err)
	assert.False(t, Config{}.Enabled())
}
