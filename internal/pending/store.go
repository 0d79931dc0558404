// Package pending keeps short-lived workflow state, such as a staged scan or a
// terminate waiting for its destination machine, under random tokens.
package pending

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// Store is a TTL map from token to T. Take hands an entry to exactly one caller.
type Store[T any] struct {
	mu    sync.Mutex
	items *cache.Cache
}

// New creates a store whose entries expire after ttl.
func New[T any](ttl time.Duration) *Store[T] {
	return &Store[T]{items: cache.New(ttl, 2*ttl)}
}

// Put stores v under a fresh token.
func (s *Store[T]) Put(v T) string {
	token := uuid.NewString()
	s.items.SetDefault(token, v)
	return token
}

// Get returns the entry for token and when it expires.
func (s *Store[T]) Get(token string) (T, time.Time, bool) {
	v, exp, ok := s.items.GetWithExpiration(token)
	if !ok {
		var zero T
		return zero, time.Time{}, false
	}
	return v.(T), exp, true
}

// Replace overwrites an existing, unexpired entry and renews its lifetime.
func (s *Store[T]) Replace(token string, v T) bool {
	return s.items.Replace(token, v, cache.DefaultExpiration) == nil
}

// Take removes and returns the entry for token.
func (s *Store[T]) Take(token string) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.items.Get(token)
	if !ok {
		var zero T
		return zero, false
	}
	s.items.Delete(token)
	return v.(T), true
}

// Restore puts back an entry previously taken, under the same token.
func (s *Store[T]) Restore(token string, v T) {
	s.items.SetDefault(token, v)
}

// Drop discards the entry for token, reporting whether it existed.
func (s *Store[T]) Drop(token string) bool {
	_, ok := s.Take(token)
	return ok
}

// Len returns the number of entries, including expired ones not yet evicted.
func (s *Store[T]) Len() int {
	return s.items.ItemCount()
}
