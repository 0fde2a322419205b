// Package redis holds the Redis-backed pieces: the placement idempotency
// store shared by every API replica.
package redis

import (
	"context"
	"time"

	radix "github.com/mediocregopher/radix/v3"
	"github.com/pkg/errors"
)

// inFlight marks a key whose placement has not finished yet.
const inFlight = "-"

const keyPrefix = "shop:idempotency:"

// NewPool opens a connection pool.
func NewPool(addr string, size int) (*radix.Pool, error) {
	pool, err := radix.NewPool("tcp", addr, size)
	if err != nil {
		return nil, errors.Wrapf(err, "connect redis %s", addr)
	}
	return pool, nil
}

// IdempotencyStore maps Idempotency-Key header values to the order they
// produced. Entries expire after ttl.
type IdempotencyStore struct {
	client radix.Client
	ttl    time.Duration
}

func NewIdempotencyStore(client radix.Client, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{client: client, ttl: ttl}
}

func (s *IdempotencyStore) seconds() int64 {
	secs := int64(s.ttl / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

func (s *IdempotencyStore) Claim(_ context.Context, key string) (string, bool, error) {
	var ok string
	reply := radix.MaybeNil{Rcv: &ok}
	if err := s.client.Do(radix.FlatCmd(&reply, "SET", keyPrefix+key, inFlight, "NX", "EX", s.seconds())); err != nil {
		return "", false, errors.Wrap(err, "claim idempotency key")
	}
	if !reply.Nil {
		return "", true, nil
	}

	var ref string
	if err := s.client.Do(radix.Cmd(&ref, "GET", keyPrefix+key)); err != nil {
		return "", false, errors.Wrap(err, "read idempotency key")
	}
	if ref == inFlight {
		ref = ""
	}
	return ref, false, nil
}

func (s *IdempotencyStore) Complete(_ context.Context, key, ref string) error {
	err := s.client.Do(radix.FlatCmd(nil, "SET", keyPrefix+key, ref, "EX", s.seconds()))
	return errors.Wrap(err, "complete idempotency key")
}

func (s *IdempotencyStore) Forget(_ context.Context, key string) error {
	return errors.Wrap(s.client.Do(radix.Cmd(nil, "DEL", keyPrefix+key)), "forget idempotency key")
}
