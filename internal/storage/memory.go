package storage

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultMemorySize = 128

// MemoryStore is a bounded in-process store. Values do not survive a restart.
// lru.Cache does its own locking.
type MemoryStore struct {
	cache *lru.Cache[string, []byte]
}

func NewMemoryStore(size int) (*MemoryStore, error) {
	cache, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{cache: cache}, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := s.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	s.cache.Add(key, append([]byte(nil), value...))
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.cache.Remove(key)
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
