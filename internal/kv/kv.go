// Package kv defines the key-value persistence port used by the ledger and
// the error taxonomy shared by its backends.
package kv

import (
	"context"
	"errors"
	"fmt"
)

// Store is a string-keyed store of JSON-encoded values.
type Store interface {
	// Get returns the raw value for key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error
	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
	// Clear deletes every key owned by the store.
	Clear(ctx context.Context) error
}

// Txn reads and writes keys inside one Update call.
type Txn interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
}

// Updater is implemented by stores that run a read-modify-write atomically,
// also against other processes sharing the same backend. When fn returns an
// error nothing it wrote is kept.
type Updater interface {
	Update(ctx context.Context, fn func(tx Txn) error) error
}

// Update runs fn through s.Update when s is an Updater and directly against
// s otherwise. fn may run more than once, so it must not have side effects
// beyond what it does through tx.
func Update(ctx context.Context, s Store, fn func(tx Txn) error) error {
	if u, ok := s.(Updater); ok {
		return u.Update(ctx, fn)
	}
	return fn(s)
}

type Op string

const (
	OpRead  Op = "read"
	OpWrite Op = "write"
)

var (
	ErrStorageRead  = errors.New("storage read failed")
	ErrStorageWrite = errors.New("storage write failed")
)

// StorageError records a failed persistence operation on a key. It matches
// ErrStorageRead or ErrStorageWrite with errors.Is, depending on Op.
type StorageError struct {
	Op  Op
	Key string
	Err error
}

func (e *StorageError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Is(target error) bool {
	switch target {
	case ErrStorageRead:
		return e.Op == OpRead
	case ErrStorageWrite:
		return e.Op == OpWrite
	}
	return false
}

// ReadError wraps err as a read failure on key.
func ReadError(key string, err error) error {
	return &StorageError{Op: OpRead, Key: key, Err: err}
}

// WriteError wraps err as a write failure on key. An empty key means the
// whole store (Clear).
func WriteError(key string, err error) error {
	return &StorageError{Op: OpWrite, Key: key, Err: err}
}
