package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)

	for _, addr := range []string{mr.Addr(), "redis://" + mr.Addr() + "/0"} {
		client, err := Connect(addr, time.Second)
		require.NoError(t, err, addr)
		check := HealthCheck(client)
		assert.NoError(t, check(context.Background()))
		require.NoError(t, client.Close())
	}
}

func TestConnect_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := Connect(addr, 200*time.Millisecond)
	assert.Error(t, err)

	_, err = Connect("redis://:bad url", time.Second)
	assert.Error(t, err)
}
