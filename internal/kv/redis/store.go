// Package redis implements kv.Store on a namespaced Redis keyspace.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"paga/internal/kv"
)

const defaultNamespace = "paga"

type Options struct {
	Addr      string
	Password  string
	DB        int
	Namespace string
}

type Store struct {
	client    goredis.UniversalClient
	namespace string
}

var (
	_ kv.Store   = (*Store)(nil)
	_ kv.Updater = (*Store)(nil)
)

// maxTxRetries bounds how often Update restarts after a watched key changed.
const maxTxRetries = 5

// ErrTxConflict is returned when every Update attempt lost a WATCH race.
var ErrTxConflict = errors.New("redis transaction kept conflicting")

func New(opts Options) *Store {
	client := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return NewWithClient(client, opts.Namespace)
}

// NewWithClient wraps an existing client, single node or cluster.
func NewWithClient(client goredis.UniversalClient, namespace string) *Store {
	namespace = strings.TrimSuffix(strings.TrimSpace(namespace), ":")
	if namespace == "" {
		namespace = defaultNamespace
	}
	return &Store{client: client, namespace: namespace}
}

func (s *Store) key(k string) string {
	return s.namespace + ":" + k
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, true, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// Clear removes every key under the store namespace. Keys outside it are untouched.
func (s *Store) Clear(ctx context.Context) error {
	var keys []string
	iter := s.client.Scan(ctx, 0, s.key("*"), 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis clear: %w", err)
	}
	return nil
}

// txn watches every key it reads and queues writes until the MULTI block.
type txn struct {
	store  *Store
	tx     *goredis.Tx
	writes []write
}

type write struct {
	key   string
	value []byte
}

func (t *txn) Get(ctx context.Context, key string) ([]byte, bool, error) {
	k := t.store.key(key)
	if err := t.tx.Watch(ctx, k).Err(); err != nil {
		return nil, false, fmt.Errorf("redis watch %s: %w", key, err)
	}
	v, err := t.tx.Get(ctx, k).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, true, nil
}

func (t *txn) Set(_ context.Context, key string, value []byte) error {
	t.writes = append(t.writes, write{key: key, value: value})
	return nil
}

// Update runs fn under WATCH and commits its writes in one MULTI/EXEC. When a
// watched key changes before EXEC, fn runs again on fresh values.
func (s *Store) Update(ctx context.Context, fn func(tx kv.Txn) error) error {
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := s.client.Watch(ctx, func(tx *goredis.Tx) error {
			t := &txn{store: s, tx: tx}
			if err := fn(t); err != nil {
				return err
			}
			if len(t.writes) == 0 {
				return nil
			}
			_, err := tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
				for _, w := range t.writes {
					pipe.Set(ctx, s.key(w.key), w.value, 0)
				}
				return nil
			})
			return err
		})
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("redis update: %w", err)
		}
		return nil
	}
	return ErrTxConflict
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}
