// Package cache memoizes expensive descriptor transforms keyed by content
// hash. Concurrent callers computing the same key share a single in-flight
// computation.
package cache

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// Memo is a concurrency-safe compute-once map. The zero value is ready to
// use.
type Memo struct {
	group   singleflight.Group
	results sync.Map
}

// Do returns the cached value for key, computing it with fn on first use.
// If fn fails, nothing is cached and the error is returned; a later call
// with the same key retries.
func (m *Memo) Do(key string, fn func() (any, error)) (any, error) {
	if v, ok := m.results.Load(key); ok {
		return v, nil
	}
	v, err, _ := m.group.Do(key, func() (any, error) {
		if v, ok := m.results.Load(key); ok {
			return v, nil
		}
		v, err := fn()
		if err != nil {
			return nil, err
		}
		m.results.Store(key, v)
		return v, nil
	})
	return v, err
}
