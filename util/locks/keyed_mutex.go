package locks

import "sync"

// KeyedMutex serializes work per key. Different keys never block each other.
type KeyedMutex[K comparable] struct {
	lock    sync.Mutex
	entries map[K]*keyedEntry
}

type keyedEntry struct {
	mutex   sync.Mutex
	waiters int
}

// NewKeyedMutex returns an empty KeyedMutex.
func NewKeyedMutex[K comparable]() *KeyedMutex[K] {
	return &KeyedMutex[K]{entries: make(map[K]*keyedEntry)}
}

// Lock locks key and returns the function that unlocks it.
func (km *KeyedMutex[K]) Lock(key K) (unlock func()) {
	km.lock.Lock()
	entry, ok := km.entries[key]
	if !ok {
		entry = &keyedEntry{}
		km.entries[key] = entry
	}
	entry.waiters++
	km.lock.Unlock()

	entry.mutex.Lock()
	return func() {
		entry.mutex.Unlock()
		km.lock.Lock()
		entry.waiters--
		if entry.waiters == 0 {
			delete(km.entries, key)
		}
		km.lock.Unlock()
	}
}

// Len returns the number of keys currently locked or waited on.
func (km *KeyedMutex[K]) Len() int {
	km.lock.Lock()
	defer km.lock.Unlock()
	return len(km.entries)
}
