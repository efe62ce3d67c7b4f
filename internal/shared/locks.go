package shared

import (
	"fmt"
	"sync"
)

// RoleGrantKey builds the lock key serializing grant writes for a role.
func RoleGrantKey(roleID int64) string {
	return fmt.Sprintf("grants:role:%d", roleID)
}

// UserGrantKey builds the lock key serializing grant writes for a user.
func UserGrantKey(userID int64) string {
	return fmt.Sprintf("grants:user:%d", userID)
}

// KeyedMutex serializes critical sections per key. Grant mutations for
// the same role or user take the subject's lock so a write and a
// concurrent effective-set read cannot interleave into a torn result;
// different subjects proceed independently.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedMutex constructs a KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{entries: make(map[string]*keyedEntry)}
}

// Lock acquires the lock for key and returns the matching unlock.
func (k *KeyedMutex) Lock(key string) func() {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &keyedEntry{}
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
