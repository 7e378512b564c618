// Package session holds ephemeral per-user conversation state.
//
// Every table is an owned, mutex-guarded map with optional expiry. Handlers
// consume entries with Take so that two interleaved events for the same user
// cannot both act on one session.
package session

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value   V
	touched time.Time
}

// Table maps keys to session values. The zero value is not usable; call NewTable.
type Table[K comparable, V any] struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	data map[K]entry[V]
}

// NewTable creates a table whose entries expire after ttl of inactivity.
// A non-positive ttl disables expiry.
func NewTable[K comparable, V any](ttl time.Duration) *Table[K, V] {
	return &Table[K, V]{ttl: ttl, now: time.Now, data: make(map[K]entry[V])}
}

func (t *Table[K, V]) expired(e entry[V], now time.Time) bool {
	return t.ttl > 0 && now.Sub(e.touched) > t.ttl
}

// Put stores v under k, replacing any prior session. It reports whether one was replaced.
func (t *Table[K, V]) Put(k K, v V) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	old, ok := t.data[k]
	t.data[k] = entry[V]{value: v, touched: now}
	return ok && !t.expired(old, now)
}

// Get returns the live session for k.
func (t *Table[K, V]) Get(k K) (V, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.data[k]
	if !ok {
		var zero V
		return zero, false
	}
	if t.expired(e, t.now()) {
		delete(t.data, k)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Take removes and returns the live session for k in one step.
func (t *Table[K, V]) Take(k K) (V, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.data[k]
	delete(t.data, k)
	if !ok || t.expired(e, t.now()) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// TakeIf removes and returns the session for k only when match accepts it.
func (t *Table[K, V]) TakeIf(k K, match func(V) bool) (V, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var zero V
	e, ok := t.data[k]
	if !ok {
		return zero, false
	}
	if t.expired(e, t.now()) {
		delete(t.data, k)
		return zero, false
	}
	if !match(e.value) {
		return zero, false
	}
	delete(t.data, k)
	return e.value, true
}

// Update runs fn on the live session for k while holding the table lock.
// fn returns the new value and whether the session continues; returning false
// deletes it. Update reports false when no live session exists.
func (t *Table[K, V]) Update(k K, fn func(V) (V, bool)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	e, ok := t.data[k]
	if !ok {
		return false
	}
	if t.expired(e, now) {
		delete(t.data, k)
		return false
	}
	next, keep := fn(e.value)
	if keep {
		t.data[k] = entry[V]{value: next, touched: now}
	} else {
		delete(t.data, k)
	}
	return true
}

// Delete removes k and reports whether a live session was present.
func (t *Table[K, V]) Delete(k K) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.data[k]
	delete(t.data, k)
	return ok && !t.expired(e, t.now())
}

// DeleteFunc removes every session for which match reports true and returns the count.
func (t *Table[K, V]) DeleteFunc(match func(K, V) bool) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for k, e := range t.data {
		if match(k, e.value) {
			delete(t.data, k)
			n++
		}
	}
	return n
}

// Len counts stored entries, expired ones included until swept.
func (t *Table[K, V]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.data)
}

// Sweep drops expired entries and returns how many were removed.
func (t *Table[K, V]) Sweep() int {
	if t.ttl <= 0 {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	n := 0
	for k, e := range t.data {
		if t.expired(e, now) {
			delete(t.data, k)
			n++
		}
	}
	return n
}

// Clear drops every entry.
func (t *Table[K, V]) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.data)
}
