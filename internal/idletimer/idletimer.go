// Package idletimer implements the Idle Timer (C6): arms a per-IAP timer
// on entering CONNECTED and disarms it on any state change away from
// CONNECTED. Expiry submits a disconnect with no error tag, same as a
// user-initiated disconnect.
package idletimer

import (
	"sync"
	"time"
)

// DisconnectFunc is called with the expired IAP's name when its idle timer
// fires. err_str is always empty, per spec.md §4.6.
type DisconnectFunc func(iapName string)

// Timer arms and disarms one time.AfterFunc per IAP, the same primitive
// the settings facade's TTLStore uses for entry expiry.
type Timer struct {
	mu       sync.Mutex
	timers   map[string]*time.Timer
	timeout  func(networkType string) time.Duration
	onExpire DisconnectFunc
}

// New creates a Timer. timeoutFor resolves the per-network-type timeout;
// onExpire is invoked (on its own goroutine, via time.AfterFunc) when an
// armed IAP goes untouched for that long.
func New(timeoutFor func(networkType string) time.Duration, onExpire DisconnectFunc) *Timer {
	return &Timer{
		timers:   make(map[string]*time.Timer),
		timeout:  timeoutFor,
		onExpire: onExpire,
	}
}

// Arm starts (or restarts) iapName's idle timer. Call on entering
// CONNECTED.
func (t *Timer) Arm(iapName, networkType string) {
	d := t.timeout(networkType)
	if d <= 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.timers[iapName]; ok {
		existing.Stop()
	}
	t.timers[iapName] = time.AfterFunc(d, func() {
		t.Disarm(iapName)
		t.onExpire(iapName)
	})
}

// Disarm stops iapName's idle timer, if any. Call on any state change away
// from CONNECTED (including the expiry-triggered disconnect itself).
func (t *Timer) Disarm(iapName string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.timers[iapName]; ok {
		existing.Stop()
		delete(t.timers, iapName)
	}
}

// Armed reports whether iapName currently has a live idle timer, for
// tests and diagnostics.
func (t *Timer) Armed(iapName string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.timers[iapName]
	return ok
}
