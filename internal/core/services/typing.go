package services

import (
	"sync"
	"time"
)

type typingKey struct {
	from string
	to   string
}

type typingEntry struct {
	timer *time.Timer
}

// TypingTracker expires typing indicators that were never stopped. Each
// (from, to) pair holds one timer, renewed on every start.
type TypingTracker struct {
	mu       sync.Mutex
	ttl      time.Duration
	entries  map[typingKey]*typingEntry
	onExpire func(from, to string)
}

// NewTypingTracker returns a tracker calling onExpire when an indicator
// lapses. A ttl of zero disables tracking.
func NewTypingTracker(ttl time.Duration, onExpire func(from, to string)) *TypingTracker {
	return &TypingTracker{
		ttl:      ttl,
		entries:  make(map[typingKey]*typingEntry),
		onExpire: onExpire,
	}
}

func (t *TypingTracker) Enabled() bool { return t != nil && t.ttl > 0 }

// Start arms or renews the timer for from typing to to.
func (t *TypingTracker) Start(from, to string) {
	if !t.Enabled() {
		return
	}
	key := typingKey{from, to}
	e := &typingEntry{}
	t.mu.Lock()
	if old := t.entries[key]; old != nil {
		old.timer.Stop()
	}
	t.entries[key] = e
	e.timer = time.AfterFunc(t.ttl, func() { t.expire(key, e) })
	t.mu.Unlock()
}

func (t *TypingTracker) expire(key typingKey, e *typingEntry) {
	t.mu.Lock()
	// A renewal or stop may have raced with the timer.
	if t.entries[key] != e {
		t.mu.Unlock()
		return
	}
	delete(t.entries, key)
	t.mu.Unlock()
	if t.onExpire != nil {
		t.onExpire(key.from, key.to)
	}
}

// Stop disarms the pair and reports whether it was armed.
func (t *TypingTracker) Stop(from, to string) bool {
	if !t.Enabled() {
		return false
	}
	key := typingKey{from, to}
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.entries[key]
	if e == nil {
		return false
	}
	e.timer.Stop()
	delete(t.entries, key)
	return true
}

// StopAll disarms every indicator from is showing and returns the targets.
func (t *TypingTracker) StopAll(from string) []string {
	if !t.Enabled() {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	var targets []string
	for key, e := range t.entries {
		if key.from != from {
			continue
		}
		e.timer.Stop()
		delete(t.entries, key)
		targets = append(targets, key.to)
	}
	return targets
}

// Len is the number of armed indicators.
func (t *TypingTracker) Len() int {
	if !t.Enabled() {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
