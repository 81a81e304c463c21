package state

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/redis/go-redis/v9"
)

var errStaleRead = errors.New("stale read")

// Redis stores contract state as plain string keys. Commits are optimistic:
// every key read by the transaction is WATCHed and re-checked before the
// buffered writes are applied in a MULTI/EXEC block.
type Redis struct {
	client *redis.Client
	prefix string
}

var _ Backend = (*Redis)(nil)

func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "verida"
	}
	return &Redis{client: client, prefix: prefix}
}

// OpenRedis dials the server described by rawURL and pings it.
func OpenRedis(ctx context.Context, rawURL, prefix string) (*Redis, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewRedis(client, prefix), nil
}

// Health checks the connection.
func (r *Redis) Health(ctx context.Context) error { return r.client.Ping(ctx).Err() }

func (r *Redis) Close() error { return r.client.Close() }

func (r *Redis) Update(ctx context.Context, fn func(Txn) error) error {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := r.update(ctx, fn)
		if errors.Is(err, redis.TxFailedErr) || errors.Is(err, errStaleRead) {
			continue
		}
		return err
	}
	return ErrConflict
}

func (r *Redis) update(ctx context.Context, fn func(Txn) error) error {
	txn := newBuffered(redisSource{r: r}, false)
	if err := fn(txn); err != nil {
		return err
	}
	writes := txn.pending()
	if len(writes) == 0 {
		return nil
	}

	watched := make([]string, 0, len(txn.reads))
	for ref := range txn.reads {
		watched = append(watched, r.storageKey(ref))
	}
	return r.client.Watch(ctx, func(tx *redis.Tx) error {
		for ref, seen := range txn.reads {
			cur, err := tx.Get(ctx, r.storageKey(ref)).Bytes()
			found := true
			if errors.Is(err, redis.Nil) {
				found, err = false, nil
			}
			if err != nil {
				return err
			}
			if found != seen.found || !bytes.Equal(cur, seen.value) {
				return errStaleRead
			}
		}
		_, err := tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			for _, w := range writes {
				p.Set(ctx, r.storageKey(w.ref), w.value, 0)
			}
			return nil
		})
		return err
	}, watched...)
}

func (r *Redis) View(ctx context.Context, fn func(Txn) error) error {
	return fn(newBuffered(redisSource{r: r}, true))
}

func (r *Redis) storageKey(ref ref) string {
	return strings.Join([]string{
		r.prefix,
		string(ref.ns),
		ref.key.Kind().String(),
		url.PathEscape(ref.key.Scope()),
		url.PathEscape(ref.key.ID()),
	}, ":")
}

type redisSource struct {
	r *Redis
}

func (s redisSource) load(ctx context.Context, ref ref) ([]byte, bool, error) {
	v, err := s.r.client.Get(ctx, s.r.storageKey(ref)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}
