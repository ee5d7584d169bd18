// Package settings implements the Settings Facade (C3): read/rename/delete
// named IAP settings, temporary-IAP detection, and deletion notifications.
// The persistent configuration store itself (spec.md §1) is an external
// collaborator; this facade is the in-memory stand-in the core tests and
// the bundled daemon wire up against.
package settings

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sebas/icd/internal/events"
)

// TemporaryPrefix marks a settings name as transient regardless of the
// "temporary" key (spec.md §3 invariant 6, glossary "Temporary IAP").
const TemporaryPrefix = "[Easy"

// DefaultTemporaryTTL bounds how long a temporary entry survives without an
// explicit RemoveTemporary sweep (SPEC_FULL.md §4.3).
const DefaultTemporaryTTL = 30 * time.Minute

// entryBag holds one IAP's settings keys.
type entryBag map[string]any

// Facade is the in-memory settings store.
type Facade struct {
	root  string
	store *TTLStore[string, entryBag]
	bus   *events.Bus

	mu   sync.Mutex
	subs []func(name string)
}

// New creates a settings facade rooted at root (conventionally
// "/system/osso/connectivity/IAP"), publishing deletions on bus.
func New(root string, bus *events.Bus) *Facade {
	return &Facade{
		root:  root,
		store: NewTTLStore[string, entryBag](time.Minute),
		bus:   bus,
	}
}

// Put installs or replaces a settings entry for name. Used by tests and by
// bootstrap code seeding known IAPs; the real store's write path is out of
// scope (spec.md §1).
func (f *Facade) Put(name string, keys map[string]any, temporary bool) {
	bag := make(entryBag, len(keys)+1)
	for k, v := range keys {
		bag[k] = v
	}
	bag["temporary"] = temporary

	ttl := time.Duration(0)
	if temporary || strings.HasPrefix(name, TemporaryPrefix) {
		ttl = DefaultTemporaryTTL
	}
	f.store.Set(name, bag, ttl)
}

// GetBool fetches a boolean setting, logging and returning def on any
// failure to resolve the entry (spec §4.3: "log-and-default on error").
func (f *Facade) GetBool(name, key string, def bool) bool {
	bag, ok := f.store.Get(name)
	if !ok {
		return def
	}
	v, ok := bag[key]
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		slog.Warn("settings: non-bool value for key", "name", name, "key", key)
		return def
	}
	return b
}

// GetString fetches a string setting, returning "" on any failure.
func (f *Facade) GetString(name, key string) string {
	bag, ok := f.store.Get(name)
	if !ok {
		return ""
	}
	v, ok := bag[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		slog.Warn("settings: non-string value for key", "name", name, "key", key)
		return ""
	}
	return s
}

// IsTemporary reports whether name carries temporary=true or begins with
// the [Easy prefix, NULL-safe on an empty name.
func (f *Facade) IsTemporary(name string) bool {
	if name == "" {
		return false
	}
	if strings.HasPrefix(name, TemporaryPrefix) {
		return true
	}
	return f.GetBool(name, "temporary", false)
}

// RemoveTemporary removes name if it is temporary, or (when name == "")
// scans every top-level entry and removes all temporary ones. Returns true
// iff any removal occurred.
func (f *Facade) RemoveTemporary(name string) bool {
	if name != "" {
		if !f.IsTemporary(name) {
			return false
		}
		f.delete(name)
		return true
	}

	removed := false
	for _, k := range f.store.Keys() {
		if f.IsTemporary(k) {
			f.delete(k)
			removed = true
		}
	}
	return removed
}

// Rename moves the settings subtree at oldID to newID. Per spec invariant
//6, a non-temporary name must not be unset by the core: Rename is the one
// mutating operation the core performs directly (it is how SAVING
// publishes a user-chosen name), so it is explicitly permitted regardless
// of temporary status.
func (f *Facade) Rename(oldID, newID string) bool {
	bag, ok := f.store.Get(oldID)
	if !ok {
		return false
	}
	ttl := time.Duration(0)
	if b, _ := bag["temporary"].(bool); b || strings.HasPrefix(newID, TemporaryPrefix) {
		ttl = DefaultTemporaryTTL
	}
	f.store.Set(newID, bag, ttl)
	f.delete(oldID)
	return true
}

// SubscribeDeletions registers cb to be invoked with the settings name
// whenever an entry disappears (whether via RemoveTemporary, Rename's
// move, or an external deletion simulated via Delete). An entry that the
// store drops because its TTL expired is not reported.
func (f *Facade) SubscribeDeletions(cb func(name string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, cb)
}

// Delete simulates an external deletion of a direct child of the settings
// root (spec.md §6: "deletion of any direct child... fires the scan-cache
// eviction callback with the unescaped child name").
func (f *Facade) Delete(name string) {
	f.delete(name)
}

func (f *Facade) delete(name string) {
	f.store.Delete(name)

	f.mu.Lock()
	subs := append([]func(name string){}, f.subs...)
	f.mu.Unlock()

	for _, cb := range subs {
		cb(name)
	}
	if f.bus != nil {
		f.bus.Publish(events.RegistrySubject(name, events.SuffixEntryDeleted), name)
	}
}

// Close releases the store's background sweep goroutine.
func (f *Facade) Close() {
	f.store.Close()
}
