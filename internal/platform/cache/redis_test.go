package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestNewPingsServer(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()

	client, err := New(context.Background(), Options{Addr: addr})
	require.NoError(t, err)
	require.NoError(t, client.Close())

	mr.Close()
	_, err = New(context.Background(), Options{Addr: addr})
	require.Error(t, err)
}
