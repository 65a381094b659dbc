package cache

import "context"

// Tiered consults the process-local Memory first and falls back to a shared
// Store. Shared hits are copied into Memory with their original timestamp so
// the retention window is not extended.
type Tiered struct {
	local  *Memory
	shared Store
}

var _ Store = (*Tiered)(nil)

// NewTiered layers local over shared. A nil shared store makes Tiered behave
// exactly like local.
func NewTiered(local *Memory, shared Store) *Tiered {
	return &Tiered{local: local, shared: shared}
}

// Get returns the local entry, or the shared one when local misses.
func (t *Tiered) Get(ctx context.Context, key string) (Entry, bool) {
	if e, ok := t.local.Get(ctx, key); ok {
		return e, true
	}
	if t.shared == nil {
		return Entry{}, false
	}
	e, ok := t.shared.Get(ctx, key)
	if !ok {
		return Entry{}, false
	}
	t.local.Put(ctx, key, e)
	return e, true
}

// Set writes to both tiers.
func (t *Tiered) Set(ctx context.Context, key, translation string) {
	t.local.Set(ctx, key, translation)
	if t.shared != nil {
		t.shared.Set(ctx, key, translation)
	}
}

// Local returns the process-local tier.
func (t *Tiered) Local() *Memory { return t.local }

// Len reports the number of entries in the local tier.
func (t *Tiered) Len() int { return t.local.Len() }
