// Package cache stores translations keyed by a hash of their source text.
//
// Memory is the process-local store: entries expire after a retention
// window and are removed by an opportunistic sweep once the entry count
// passes a soft threshold. Redis is an optional shared tier, and Tiered
// layers the two so warm entries survive a cold start of one instance.
package cache

import (
	"context"
	"time"
)

// Entry is a cached translation and the moment it was produced.
type Entry struct {
	Translation string    `json:"translation"`
	Time        time.Time `json:"time"`
}

// Age returns how old the entry is at now.
func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.Time)
}

// Store defines the interface for translation caching. Get reports only
// entries still inside the retention window.
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool)
	Set(ctx context.Context, key, translation string)
}
