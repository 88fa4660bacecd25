package database

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := ConnectRedis(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	defer DisconnectRedis(client)

	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	assert.True(t, mr.Exists("k"))
}

func TestConnectRedis_Errors(t *testing.T) {
	_, err := ConnectRedis(context.Background(), "not-a-url")
	assert.Error(t, err)

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	_, err = ConnectRedis(context.Background(), "redis://"+addr)
	assert.Error(t, err)
}

func TestDisconnectRedis_Nil(t *testing.T) {
	assert.NoError(t, DisconnectRedis(nil))
}
