// Package locks provides an in-process mutex keyed by string. It serializes
// settlement work for a single process when the database cannot take row
// locks (sqlite ignores FOR UPDATE).
package locks

import (
	"sort"
	"sync"
)

type entry struct {
	mu   sync.Mutex
	refs int
}

// Keyed hands out one mutex per key and frees it when nobody holds it.
type Keyed struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func NewKeyed() *Keyed {
	return &Keyed{entries: make(map[string]*entry)}
}

// Lock blocks until key is held and returns the matching unlock func.
func (k *Keyed) Lock(key string) func() {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &entry{}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}

// LockOrdered takes first, then the remaining keys sorted and de-duplicated,
// and releases them in reverse.
func (k *Keyed) LockOrdered(first string, rest ...string) func() {
	sorted := append([]string(nil), rest...)
	sort.Strings(sorted)

	unlocks := []func(){k.Lock(first)}
	seen := map[string]struct{}{first: {}}
	for _, key := range sorted {
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		unlocks = append(unlocks, k.Lock(key))
	}

	return func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
}
