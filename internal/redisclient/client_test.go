package redisclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAddr(t *testing.T) {
	require.Equal(t, "localhost:6379", Addr("localhost", 6379))
}

func TestNewAppliesDefaults(t *testing.T) {
	c := New(Options{Addr: "localhost:6379"})
	defer c.Close()

	opts := c.Options()
	require.Greater(t, opts.PoolSize, 0)
	require.Equal(t, 5*time.Second, opts.DialTimeout)
	require.Equal(t, 3*time.Second, opts.ReadTimeout)
	require.Equal(t, 3, opts.MaxRetries)
}

func TestNewHonorsExplicitValues(t *testing.T) {
	c := New(Options{Addr: "localhost:6379", PoolSize: 5, MaxRetries: 1})
	defer c.Close()

	opts := c.Options()
	require.Equal(t, 5, opts.PoolSize)
	require.Equal(t, 1, opts.MaxRetries)
}
