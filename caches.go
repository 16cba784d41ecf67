package finn

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
)

var errNotFound = errors.New("cache entry not found")

// buildMu serializes construction of new codecs. Lookups of codecs
// that are already built do not take the lock.
var buildMu sync.Mutex

// cache is a concurrent map of per-type codec state.
//
// Get reserves an entry for missing keys, so that a type which
// refers to itself is reported as an error instead of recursing
// forever.
type cache[K comparable, V any] struct {
	m sync.Map
}

type cacheEntry[V any] struct {
	val V
	err error
}

// Get returns the cached value for k. If there is no entry for k, Get
// returns errNotFound and reserves the entry. The caller must then
// call Set or SetErr.
func (c *cache[K, V]) Get(k K) (V, error) {
	var zero V
	ent, loaded := c.m.LoadOrStore(k, nil)
	if !loaded {
		return zero, errNotFound
	}
	if ent == nil {
		return zero, typeErr(typeOf(k), "recursive type")
	}
	e := ent.(*cacheEntry[V])
	return e.val, e.err
}

// Load returns the cached value for k, if construction of the value
// has completed.
func (c *cache[K, V]) Load(k K) (val V, ok bool, err error) {
	ent, found := c.m.Load(k)
	if !found || ent == nil {
		return val, false, nil
	}
	e := ent.(*cacheEntry[V])
	return e.val, true, e.err
}

// Set sets the cached value for k.
func (c *cache[K, V]) Set(k K, v V) {
	c.m.Store(k, &cacheEntry[V]{val: v})
}

// SetErr caches err as the result of looking up k.
func (c *cache[K, V]) SetErr(k K, err error) {
	c.m.Store(k, &cacheEntry[V]{err: err})
}

func typeOf(k any) reflect.Type {
	if t, ok := k.(reflect.Type); ok {
		return t
	}
	panic(fmt.Sprintf("mystery cache key %v (%T)", k, k))
}
