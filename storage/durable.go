// Package storage holds the node's two persistence tiers.
//
// The durable tier (DurableStore) survives full power loss and is fallible:
// every I/O error is returned to the caller. The retained tier (Retained)
// survives deep sleep only; it is plain memory and cannot fail, but it must
// be initialised from the reset cause before anything reads it.
package storage

import (
	"sort"

	"pixelweather-go/errcode"
)

// DurableStore is a flat key/value store in non-volatile memory.
type DurableStore interface {
	// Get returns the value for key; ok is false when the key is absent.
	Get(key string) (value []byte, ok bool, err error)
	Set(key string, value []byte) error
	// Delete removes key. Deleting an absent key returns InvalidNvsKey.
	Delete(key string) error
}

// MemStore is an in-memory DurableStore for tests and host tools.
type MemStore struct {
	m map[string][]byte
}

func NewMemStore() *MemStore { return &MemStore{m: map[string][]byte{}} }

func (s *MemStore) Get(key string) ([]byte, bool, error) {
	v, ok := s.m[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *MemStore) Set(key string, value []byte) error {
	s.m[key] = append([]byte(nil), value...)
	return nil
}

func (s *MemStore) Delete(key string) error {
	if _, ok := s.m[key]; !ok {
		return errcode.New(errcode.InvalidNvsKey, "delete", key)
	}
	delete(s.m, key)
	return nil
}

// Keys lists stored keys in order.
func (s *MemStore) Keys() []string {
	out := make([]string, 0, len(s.m))
	for k := range s.m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
