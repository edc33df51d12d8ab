package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	iredis "github.com/aelexs/otp-fetcher/internal/redis"
)

func TestNewClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client := iredis.NewClient(iredis.Config{
		Addr:    mr.Addr(),
		Timeout: 5 * time.Second,
	})
	t.Cleanup(func() {
		require.NoError(t, client.Close())
	})

	require.NotNil(t, client.RDB, "client.RDB must be non-nil")
	require.NoError(t, client.Ping(context.Background()))

	var _ iredis.Cmdable = client.RDB
}

func TestPingUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	client := iredis.NewClient(iredis.Config{Addr: addr, Timeout: 200 * time.Millisecond})
	t.Cleanup(func() { _ = client.Close() })

	err := client.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), addr)
}

func TestPingRequiresPassword(t *testing.T) {
	mr := miniredis.RunT(t)
	mr.RequireAuth("s3cret")

	bad := iredis.NewClient(iredis.Config{Addr: mr.Addr(), Timeout: time.Second})
	t.Cleanup(func() { _ = bad.Close() })
	assert.Error(t, bad.Ping(context.Background()))

	good := iredis.NewClient(iredis.Config{Addr: mr.Addr(), Password: "s3cret", Timeout: time.Second})
	t.Cleanup(func() { _ = good.Close() })
	assert.NoError(t, good.Ping(context.Background()))
}
