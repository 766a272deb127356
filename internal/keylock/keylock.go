// Package keylock provides exclusive in-process locks keyed by string.
package keylock

import "sync"

// Locker hands out one mutex per key and forgets keys nobody holds.
type Locker struct {
	mutex   sync.Mutex
	entries map[string]*entry
}

type entry struct {
	mutex sync.Mutex
	refs  int
}

// New returns an empty Locker.
func New() *Locker {
	return &Locker{entries: make(map[string]*entry)}
}

// Lock blocks until key is free and returns the function that releases it.
func (locker *Locker) Lock(key string) func() {
	locker.mutex.Lock()
	current, ok := locker.entries[key]
	if !ok {
		current = &entry{}
		locker.entries[key] = current
	}
	current.refs++
	locker.mutex.Unlock()

	current.mutex.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			current.mutex.Unlock()
			locker.mutex.Lock()
			current.refs--
			if current.refs == 0 {
				delete(locker.entries, key)
			}
			locker.mutex.Unlock()
		})
	}
}

// Held returns the number of keys currently locked or awaited.
func (locker *Locker) Held() int {
	locker.mutex.Lock()
	defer locker.mutex.Unlock()
	return len(locker.entries)
}
