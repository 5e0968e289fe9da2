package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/statewire/internal/ir"
)

func newTestRedisJournal(t *testing.T, opts ...RedisOption) (*RedisJournal, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisJournalFromClient(client, opts...), mr
}

func TestRedisJournal_Contract(t *testing.T) {
	j, _ := newTestRedisJournal(t)
	runJournalContract(t, j)
}

func TestRedisJournal_KeyLayout(t *testing.T) {
	ctx := context.Background()
	j, mr := newTestRedisJournal(t, WithPrefix("test:"))

	require.NoError(t, j.Ping(ctx))
	require.NoError(t, j.Record(ctx, testRecord("door-1", 1, ir.RecordInit, "Closed", "Closed")))
	require.NoError(t, j.RegisterInstance(ctx, NewInstance("door-1", "Door", "abc")))

	assert.True(t, mr.Exists("test:instances"))
	assert.True(t, mr.Exists("test:dispatches:door-1"))
	assert.Equal(t, "abc", mr.HGet("test:instance:door-1", "fingerprint"))

	members, err := mr.Members("test:instances")
	require.NoError(t, err)
	assert.Equal(t, []string{"door-1"}, members)
}

func TestRedisJournal_ServerDown(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	defer client.Close()
	j := NewRedisJournalFromClient(client)
	mr.Close()

	assert.Error(t, j.Ping(ctx))
	assert.Error(t, j.Record(ctx, testRecord("door-1", 1, ir.RecordInit, "A", "A")))
}

func TestNewRedisJournal_OwnsClient(t *testing.T) {
	mr := miniredis.RunT(t)
	j := NewRedisJournal(mr.Addr(), "", 0)

	require.NoError(t, j.Ping(context.Background()))
	assert.NoError(t, j.Close())
}
