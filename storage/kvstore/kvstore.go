// Package kvstore implements a key-value store.
package kvstore

import (
	"errors"
	"fmt"
	"unicode"

	"github.com/oasisprotocol/oasis-core/go/common/cbor"

	"github.com/verilayer/verilayer/metrics"
)

// ErrNoSuchKey is returned by typed reads of absent keys.
var ErrNoSuchKey = errors.New("no such key")

// A key in the KVStore.
type Key []byte

// A key-value store. Additional method-like functions that give a typed interface
// to the store (i.e. with typed values instead of []byte) are provided below,
// taking KVStore as the first argument so they can use generics.
type KVStore interface {
	Has(key []byte) (bool, error)
	Get(key []byte) ([]byte, error)
	Put(key []byte, value []byte) error
	Delete(key []byte) error
	Close() error
}

// instrumented is implemented by stores that record read metrics.
type instrumented interface {
	storageMetrics() *metrics.StorageMetrics
}

// Pretty returns a human-readable version of the key: the key itself if it
// is printable, otherwise its hex encoding.
// Intended only for debugging. Not guaranteed to be a stable representation.
func (key Key) Pretty() string {
	for _, r := range string(key) {
		if r > unicode.MaxASCII || !unicode.IsPrint(r) {
			return fmt.Sprintf("%x", []byte(key))
		}
	}
	return string(key)
}

func increaseReadCounter(store KVStore, status metrics.CacheReadStatus) {
	// Make sure the store supports metric-gathering.
	if s, ok := store.(instrumented); ok && s.storageMetrics() != nil {
		s.storageMetrics().KVReads(status).Inc()
	}
}

// GetTyped fetches the value of `key` from the store, interpreted as a `Value`.
// Returns ErrNoSuchKey if the key is absent.
func GetTyped[Value any](store KVStore, key Key, value *Value) error {
	exists, err := store.Has(key)
	if err != nil {
		increaseReadCounter(store, metrics.CacheReadStatusError)
		return err
	}
	if !exists {
		increaseReadCounter(store, metrics.CacheReadStatusMiss)
		return ErrNoSuchKey
	}
	raw, err := store.Get(key)
	if err != nil {
		increaseReadCounter(store, metrics.CacheReadStatusError)
		return fmt.Errorf("failed to fetch key %s: %w", key.Pretty(), err)
	}
	if err = cbor.Unmarshal(raw, value); err != nil {
		increaseReadCounter(store, metrics.CacheReadStatusBadValue)
		return fmt.Errorf("failed to unmarshal the value for key %s into %T: %w; raw value was %x", key.Pretty(), value, err, raw)
	}
	increaseReadCounter(store, metrics.CacheReadStatusHit)

	return nil
}

// PutTyped stores the CBOR encoding of value under key.
func PutTyped[Value any](store KVStore, key Key, value Value) error {
	if err := store.Put(key, cbor.Marshal(value)); err != nil {
		return fmt.Errorf("failed to store key %s: %w", key.Pretty(), err)
	}
	return nil
}
