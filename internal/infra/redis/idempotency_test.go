package redis

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	radix "github.com/mediocregopher/radix/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedis answers the handful of commands the store sends.
type fakeRedis struct {
	mu   sync.Mutex
	data map[string]string
	cmds [][]string
}

func (f *fakeRedis) handle(args []string) interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cmds = append(f.cmds, args)
	switch strings.ToUpper(args[0]) {
	case "SET":
		nx := false
		for _, a := range args[3:] {
			if strings.EqualFold(a, "NX") {
				nx = true
			}
		}
		if _, exists := f.data[args[1]]; nx && exists {
			return nil
		}
		f.data[args[1]] = args[2]
		return "OK"
	case "GET":
		v, ok := f.data[args[1]]
		if !ok {
			return nil
		}
		return v
	case "DEL":
		delete(f.data, args[1])
		return 1
	}
	return nil
}

func newStore(t *testing.T) (*IdempotencyStore, *fakeRedis) {
	t.Helper()
	f := &fakeRedis{data: make(map[string]string)}
	conn := radix.Stub("tcp", "127.0.0.1:6379", f.handle)
	t.Cleanup(func() { conn.Close() })
	return NewIdempotencyStore(conn, time.Hour), f
}

func TestClaimCompleteReplay(t *testing.T) {
	s, f := newStore(t)
	ctx := context.Background()

	ref, claimed, err := s.Claim(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Empty(t, ref)

	ref, claimed, err = s.Claim(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Empty(t, ref, "placement still in flight")

	require.NoError(t, s.Complete(ctx, "abc", "order-1"))
	ref, claimed, err = s.Claim(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Equal(t, "order-1", ref)

	assert.Equal(t, []string{"SET", keyPrefix + "abc", inFlight, "NX", "EX", "3600"}, f.cmds[0])
}

func TestForgetReleasesKey(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	_, claimed, err := s.Claim(ctx, "k")
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, s.Forget(ctx, "k"))

	_, claimed, err = s.Claim(ctx, "k")
	require.NoError(t, err)
	assert.True(t, claimed)
}
